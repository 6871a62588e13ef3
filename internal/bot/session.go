package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/NexusBot-official/Nexus/internal/config"
	"github.com/NexusBot-official/Nexus/internal/correlator"
	"github.com/NexusBot-official/Nexus/internal/database"
	"github.com/NexusBot-official/Nexus/internal/logging"
)

// Intents covers every gateway event the handlers consume.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildBans |
	discordgo.IntentsGuildWebhooks

type Session struct {
	discord    *discordgo.Session
	correlator *correlator.Correlator
	profiles   *config.ProfileStore
	db         *database.Database
	defaults   config.DetectionConfig

	// onReady runs once the bot user is known.
	onReady func(botID string)
}

type Options struct {
	// Discord is the session built by NewDiscord.
	Discord    *discordgo.Session
	Correlator *correlator.Correlator
	Database   *database.Database
	Defaults   config.DetectionConfig
	OnReady    func(botID string)
}

// NewDiscord creates the gateway session. It is built before the correlator
// because the audit resolver queries through it.
func NewDiscord(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token is not configured")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	dg.Identify.Intents = Intents
	dg.StateEnabled = true
	return dg, nil
}

// New binds the session to the correlator. Handlers are attached by
// SetupEventHandlers.
func New(opts Options) *Session {
	return &Session{
		discord:    opts.Discord,
		correlator: opts.Correlator,
		profiles:   opts.Correlator.Profiles(),
		db:         opts.Database,
		defaults:   opts.Defaults,
		onReady:    opts.OnReady,
	}
}

func (s *Session) Discord() *discordgo.Session {
	return s.discord
}

// Connect opens the gateway connection.
func (s *Session) Connect() error {
	if err := s.discord.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	logging.Info("Discord bot connected successfully")
	return nil
}

func (s *Session) Close() error {
	if s.discord != nil {
		return s.discord.Close()
	}
	return nil
}

// RegisterCommands overwrites the global slash commands in one call.
func (s *Session) RegisterCommands(commands []*discordgo.ApplicationCommand) error {
	if s.discord.State.User == nil {
		return fmt.Errorf("cannot register commands before the session is ready")
	}
	logging.Info("Registering %d slash commands...", len(commands))

	if _, err := s.discord.ApplicationCommandBulkOverwrite(s.discord.State.User.ID, "", commands); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	for _, cmd := range commands {
		logging.Info("Registered command: /%s", cmd.Name)
	}
	return nil
}

func (s *Session) AddHandler(handler interface{}) {
	s.discord.AddHandler(handler)
}

// syncGuild records the guild in the database and loads its stored profile.
func (s *Session) syncGuild(g *discordgo.Guild) {
	s.profiles.Update(g.ID, func(p *config.GuildProfile) {
		p.Name = g.Name
		p.OwnerID = g.OwnerID
		if g.MemberCount > 0 {
			p.MemberCount = g.MemberCount
		}
	})

	if s.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.db.EnsureGuildConfig(ctx, &database.GuildConfig{
		GuildID:     g.ID,
		Enabled:     s.defaults.Enabled,
		Sensitivity: s.defaults.Sensitivity,
		OwnerID:     g.OwnerID,
		MemberCount: g.MemberCount,
	})
	if err != nil {
		logging.Warn("Failed to ensure config for guild %s: %v", g.ID, err)
		return
	}
	if err := s.db.SyncGuild(ctx, s.profiles, g.ID); err != nil {
		logging.Warn("Failed to sync guild %s: %v", g.ID, err)
	}
}
