package bot

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/NexusBot-official/Nexus/internal/logging"
	"github.com/NexusBot-official/Nexus/internal/models"
)

// SetupEventHandlers feeds gateway events into the correlator. discordgo runs
// every handler on its own goroutine.
func (s *Session) SetupEventHandlers() {
	logging.Info("Setting up Discord event handlers...")

	s.discord.AddHandler(func(sess *discordgo.Session, r *discordgo.Ready) {
		logging.Info("Bot ready! Connected as %s (%s) in %d guilds", r.User.Username, r.User.ID, len(r.Guilds))
		s.profiles.SetBotID(r.User.ID)
		if s.onReady != nil {
			s.onReady(r.User.ID)
		}
	})

	s.discord.AddHandler(func(sess *discordgo.Session, g *discordgo.GuildCreate) {
		if g.Guild == nil || g.Unavailable {
			return
		}
		s.syncGuild(g.Guild)

		perms := s.correlator.Classifier().Permissions()
		for _, role := range g.Roles {
			perms.Remember(role.ID, role.Permissions)
		}
		if s.correlator.Engine().States().IsLocked(g.ID) {
			logging.Warn("[BOT] Guild %s (%s) loaded while in lockdown", g.Name, g.ID)
		}
		logging.Info("Loaded guild: %s (ID: %s, %d roles)", g.Name, g.ID, len(g.Roles))
	})

	s.discord.AddHandler(func(sess *discordgo.Session, g *discordgo.GuildDelete) {
		// an unavailable guild is an outage, not a removal
		if g.Guild == nil || g.Unavailable {
			return
		}
		s.correlator.ForgetGuild(g.ID)
		logging.Info("Removed from guild %s", g.ID)
	})

	s.discord.AddHandler(func(sess *discordgo.Session, g *discordgo.GuildUpdate) {
		if g.Guild == nil {
			return
		}
		s.correlator.Profiles().SetOwner(g.ID, g.OwnerID)
	})

	s.discord.AddHandler(func(sess *discordgo.Session, a *discordgo.GuildAuditLogEntryCreate) {
		if a.GuildID == "" || a.AuditLogEntry == nil {
			return
		}
		s.correlator.Observe(a.GuildID, a.AuditLogEntry)
		if ev, ok := auditEvent(a); ok {
			s.handle(ev)
		}
	})

	s.discord.AddHandler(func(sess *discordgo.Session, c *discordgo.ChannelCreate) {
		if ev, ok := channelEvent(models.ActionChannelCreate, c.Channel); ok {
			s.handle(ev)
		}
	})

	s.discord.AddHandler(func(sess *discordgo.Session, c *discordgo.ChannelDelete) {
		if ev, ok := channelEvent(models.ActionChannelDelete, c.Channel); ok {
			s.handle(ev)
		}
	})

	s.discord.AddHandler(func(sess *discordgo.Session, c *discordgo.ChannelUpdate) {
		if ev, ok := channelEvent(models.ActionChannelUpdate, c.Channel); ok {
			s.handle(ev)
		}
	})

	s.discord.AddHandler(func(sess *discordgo.Session, r *discordgo.GuildRoleCreate) {
		if r.GuildRole == nil {
			return
		}
		if ev, ok := roleEvent(models.ActionRoleCreate, r.GuildID, r.Role); ok {
			s.handle(ev)
		}
	})

	s.discord.AddHandler(func(sess *discordgo.Session, r *discordgo.GuildRoleUpdate) {
		if r.GuildRole == nil {
			return
		}
		if ev, ok := roleEvent(models.ActionRoleUpdate, r.GuildID, r.Role); ok {
			s.handle(ev)
		}
	})

	s.discord.AddHandler(func(sess *discordgo.Session, r *discordgo.GuildRoleDelete) {
		if ev, ok := roleDeleteEvent(r); ok {
			s.handle(ev)
		}
	})

	s.discord.AddHandler(func(sess *discordgo.Session, b *discordgo.GuildBanAdd) {
		if ev, ok := banEvent(b); ok {
			s.handle(ev)
		}
	})

	s.discord.AddHandler(func(sess *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if ev, ok := botAddEvent(m); ok {
			s.handle(ev)
		}
	})

	logging.Info("Discord event handlers configured")
}

func (s *Session) handle(ev models.ActionEvent) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logging.Error("[EVENT] Panic handling %s %s in %s: %v", ev.Type, ev.TargetID, ev.GuildID, r)
		}
	}()

	res := s.correlator.Handle(context.Background(), ev)
	switch {
	case res.Skipped || res.Duplicate:
		logging.Debug("[EVENT] %s %s in %s skipped", ev.Type, ev.TargetID, ev.GuildID)
	case res.Gated:
		logging.Info("[EVENT] %s %s in %s gated by lockdown | Latency: %d µs", ev.Type, ev.TargetID, ev.GuildID, time.Since(start).Microseconds())
	default:
		logging.Debug("[EVENT] %s %s in %s by %q -> %s | Latency: %d µs",
			ev.Type, ev.TargetID, ev.GuildID, res.ActorID, res.Status, time.Since(start).Microseconds())
	}
}
