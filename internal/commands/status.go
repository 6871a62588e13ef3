package commands

import (
	"fmt"
	"runtime"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/NexusBot-official/Nexus/internal/correlator"
	"github.com/NexusBot-official/Nexus/internal/metrics"
	"github.com/NexusBot-official/Nexus/internal/state"
)

// HostStats is the host part of /status.
type HostStats struct {
	Hostname      string
	Platform      string
	Uptime        time.Duration
	CPUCores      int
	CPUUsage      float64
	TotalMemory   uint64
	UsedMemory    uint64
	MemoryPercent float64
	GoVersion     string
	Goroutines    int
	HeapAlloc     uint64
}

// gatherHostStats collects what gopsutil can read; missing values stay zero.
func gatherHostStats() HostStats {
	stats := HostStats{
		CPUCores:   runtime.NumCPU(),
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
	}

	if info, err := host.Info(); err == nil {
		stats.Hostname = info.Hostname
		stats.Platform = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
		stats.Uptime = time.Duration(info.Uptime) * time.Second
	}
	if usage, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(usage) > 0 {
		stats.CPUUsage = usage[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.TotalMemory = vm.Total
		stats.UsedMemory = vm.Used
		stats.MemoryPercent = vm.UsedPercent
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	stats.HeapAlloc = ms.HeapAlloc
	return stats
}

// handleStatus handles /status. Gathering CPU usage blocks briefly, so the
// reply is deferred.
func (h *Handler) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		return err
	}

	engine := h.correlator.Engine()
	embed := statusEmbed(statusInput{
		Host:      gatherHostStats(),
		Metrics:   h.metrics.Snapshot(),
		Stats:     h.correlator.Stats(),
		Guild:     engine.States().Get(i.GuildID),
		Locked:    len(engine.States().Guilds(state.StatusLockdown)),
		Heartbeat: s.HeartbeatLatency(),
		Uptime:    time.Since(h.started),
	})

	_, err = s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{embed},
	})
	return err
}

type statusInput struct {
	Host      HostStats
	Metrics   metrics.Snapshot
	Stats     correlator.Stats
	Guild     state.GuildSecurityState
	Locked    int
	Heartbeat time.Duration
	Uptime    time.Duration
}

func statusEmbed(in statusInput) *discordgo.MessageEmbed {
	color := colorOK
	health := "Healthy"
	if !in.Metrics.Healthy {
		color = colorAlert
		health = "Stalled"
	}
	if in.Guild.Locked() {
		color = colorAlert
	}

	embed := newEmbed("System Status", fmt.Sprintf("This server: **%s**", in.Guild.Status), color)
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "⚙️ Engine", Value: fmt.Sprintf("%s\n`%d` in flight\n`%d` guilds locked", health, in.Metrics.InFlight, in.Locked), Inline: true},
		{Name: "📊 Events", Value: fmt.Sprintf("`%d` total\n`%.1f`/s\n`%d` gated", in.Stats.Events, in.Metrics.EventRate, in.Stats.Gated), Inline: true},
		{Name: "🔎 Attribution", Value: fmt.Sprintf("avg `%s`\nmax `%s`\n`%d` late", in.Metrics.Attribution.Avg.Round(time.Millisecond), in.Metrics.Attribution.Max.Round(time.Millisecond), in.Stats.LateResolved), Inline: true},
		{Name: "💻 Host", Value: fmt.Sprintf("%s\n%s\nup `%s`", orDash(in.Host.Hostname), orDash(in.Host.Platform), in.Host.Uptime.Round(time.Minute)), Inline: true},
		{Name: "🧮 Resources", Value: fmt.Sprintf("CPU `%.1f%%` of %d cores\nRAM `%s` / `%s` (%.1f%%)", in.Host.CPUUsage, in.Host.CPUCores, formatBytes(in.Host.UsedMemory), formatBytes(in.Host.TotalMemory), in.Host.MemoryPercent), Inline: true},
		{Name: "🐹 Runtime", Value: fmt.Sprintf("%s\n`%d` goroutines\nheap `%s`", in.Host.GoVersion, in.Host.Goroutines, formatBytes(in.Host.HeapAlloc)), Inline: true},
		{Name: "⚡ Gateway", Value: fmt.Sprintf("`%dms` heartbeat\nbot up `%s`", in.Heartbeat.Milliseconds(), in.Uptime.Round(time.Second)), Inline: true},
	}
	return embed
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
