package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/NexusBot-official/Nexus/internal/bot"
	"github.com/NexusBot-official/Nexus/internal/config"
	"github.com/NexusBot-official/Nexus/internal/correlator"
	"github.com/NexusBot-official/Nexus/internal/database"
	"github.com/NexusBot-official/Nexus/internal/logging"
	"github.com/NexusBot-official/Nexus/internal/metrics"
)

const (
	colorNeutral = 0x2B2D31
	colorOK      = 0x57F287
	colorAlert   = 0xED4245

	footerText = "Nexus Anti-Nuke"

	commandTimeout = 10 * time.Second
)

// Handler manages all command interactions
type Handler struct {
	correlator *correlator.Correlator
	profiles   *config.ProfileStore
	db         *database.Database
	metrics    *metrics.Metrics
	started    time.Time
}

func NewHandler(c *correlator.Correlator, db *database.Database, m *metrics.Metrics) *Handler {
	return &Handler{
		correlator: c,
		profiles:   c.Profiles(),
		db:         db,
		metrics:    m,
		started:    time.Now(),
	}
}

// Register attaches the interaction handler and publishes the commands.
func (h *Handler) Register(session *bot.Session) error {
	session.AddHandler(h.handleInteraction)

	commands := GetAllCommands()
	if err := session.RegisterCommands(commands); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	logging.Info("Command handler initialized with %d commands", len(commands))
	return nil
}

func (h *Handler) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.GuildID == "" || i.Member == nil {
		respondError(s, i, "commands only work inside a server")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error("Command panic: %v", r)
		}
	}()
	h.handleCommand(s, i)
}

// handleCommand routes slash commands to their handlers
func (h *Handler) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sub, group := subcommand(data.Options)

	var err error
	switch data.Name {
	case "antinuke":
		switch sub {
		case "enable":
			err = h.handleEnable(ctx, s, i, true)
		case "disable":
			err = h.handleEnable(ctx, s, i, false)
		case "sensitivity":
			err = h.handleSensitivity(ctx, s, i, group)
		case "logs":
			err = h.handleLogs(ctx, s, i, group)
		case "whitelist":
			err = h.handleWhitelist(ctx, s, i, group)
		case "limits":
			err = h.handleLimits(ctx, s, i, group)
		}
	case "lockdown":
		switch sub {
		case "status":
			err = h.handleLockdownStatus(s, i)
		case "unlock":
			err = h.handleUnlock(ctx, s, i)
		}
	case "status":
		err = h.handleStatus(s, i)
	default:
		err = fmt.Errorf("unknown command: %s", data.Name)
	}

	if err != nil {
		logging.Error("Command error [%s %s]: %v", data.Name, sub, err)
		respondError(s, i, err.Error())
	}
}

// subcommand returns the first subcommand name and its options.
func subcommand(opts []*discordgo.ApplicationCommandInteractionDataOption) (string, []*discordgo.ApplicationCommandInteractionDataOption) {
	if len(opts) == 0 {
		return "", nil
	}
	return opts[0].Name, opts[0].Options
}

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func newEmbed(title, description string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

func respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

// respondError sends an ephemeral error message
func respondError(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("❌ Error: %s", message),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// persistGuild writes the current profile of the guild back to the database.
func (h *Handler) persistGuild(ctx context.Context, guildID string) error {
	if h.db == nil {
		return nil
	}
	p := h.profiles.Get(guildID)
	return h.db.UpsertGuildConfig(ctx, &database.GuildConfig{
		GuildID:      guildID,
		Enabled:      p.Enabled,
		Sensitivity:  p.Sensitivity.String(),
		OwnerID:      p.OwnerID,
		LogChannelID: p.LogChannelID,
		MemberCount:  p.MemberCount,
	})
}
