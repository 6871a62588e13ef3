package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/NexusBot-official/Nexus/internal/logging"
	"github.com/NexusBot-official/Nexus/internal/models"
)

const (
	colorInfo     = 0x5865F2
	colorWarning  = 0xFEE75C
	colorCritical = 0xED4245
	colorResolved = 0x57F287

	// embeds cap at 25 fields; keep room for the header fields
	maxRecordFields = 15
)

// EmbedSender is the part of *discordgo.Session the Discord sink needs.
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ChannelResolver maps a guild to its log channel; "" means none is set.
type ChannelResolver func(guildID string) string

// DiscordSink posts notifications as embeds to the guild's log channel.
type DiscordSink struct {
	sender  EmbedSender
	channel ChannelResolver
}

func NewDiscordSink(sender EmbedSender, channel ChannelResolver) *DiscordSink {
	return &DiscordSink{sender: sender, channel: channel}
}

func (d *DiscordSink) Notify(ctx context.Context, n models.Notification) {
	if d.sender == nil || d.channel == nil {
		return
	}
	channelID := d.channel(n.GuildID)
	if channelID == "" {
		return
	}
	if _, err := d.sender.ChannelMessageSendEmbed(channelID, BuildEmbed(n), discordgo.WithContext(ctx)); err != nil {
		logging.Warn("[NOTIFIER] Failed to send %s embed to %s: %v", n.Kind, channelID, err)
	}
}

func embedColor(n models.Notification) int {
	if n.Kind == models.NotifyUnlock {
		return colorResolved
	}
	switch n.Severity {
	case models.SeverityCritical:
		return colorCritical
	case models.SeverityWarning:
		return colorWarning
	default:
		return colorInfo
	}
}

func embedTitle(n models.Notification) string {
	switch n.Kind {
	case models.NotifyLockdown:
		return "🔒 Server Locked Down"
	case models.NotifyMonitoring:
		return "👀 Suspicious Activity"
	case models.NotifyMitigation:
		return "🛡️ Mitigation Applied"
	case models.NotifyUnlock:
		return "🔓 Lockdown Lifted"
	default:
		return string(n.Kind)
	}
}

func userMention(id string) string {
	if id == "" {
		return "unknown"
	}
	return fmt.Sprintf("<@%s> (`%s`)", id, id)
}

// BuildEmbed renders a notification as a log-channel embed.
func BuildEmbed(n models.Notification) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       embedTitle(n),
		Color:       embedColor(n),
		Description: n.Reason,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "👤 Actor", Value: userMention(n.ActorID), Inline: true},
			{Name: "⚠️ Severity", Value: n.Severity.String(), Inline: true},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: "Nexus Anti-Nuke"},
		Timestamp: n.At.Format("2006-01-02T15:04:05Z07:00"),
	}
	if n.Trigger != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "🎯 Trigger", Value: string(n.Trigger), Inline: true})
	}

	for i, rec := range n.Records {
		if i == maxRecordFields {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  "…",
				Value: fmt.Sprintf("%d more records", len(n.Records)-maxRecordFields),
			})
			break
		}
		embed.Fields = append(embed.Fields, recordField(rec))
	}
	return embed
}

func recordField(rec models.MitigationRecord) *discordgo.MessageEmbedField {
	var b strings.Builder
	if rec.TargetID != "" {
		fmt.Fprintf(&b, "target `%s`", rec.TargetID)
	}
	if rec.Failed() {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "❌ %s", rec.Error)
	}
	if b.Len() == 0 {
		b.WriteString(rec.Reason)
	}
	return &discordgo.MessageEmbedField{Name: string(rec.Action), Value: b.String(), Inline: true}
}
