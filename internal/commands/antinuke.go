package commands

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/NexusBot-official/Nexus/internal/config"
	"github.com/NexusBot-official/Nexus/internal/logging"
)

// handleEnable handles /antinuke enable and /antinuke disable
func (h *Handler) handleEnable(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, enabled bool) error {
	if ok, err := h.guard(s, i); !ok {
		return err
	}

	h.profiles.SetEnabled(i.GuildID, enabled)
	if err := h.persistGuild(ctx, i.GuildID); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	state := "disabled"
	color := colorAlert
	if enabled {
		state = "enabled"
		color = colorOK
	}
	logging.Info("[COMMANDS] Anti-nuke %s in %s by %s", state, i.GuildID, i.Member.User.ID)

	embed := newEmbed("Configuration Updated", fmt.Sprintf("Anti-nuke protection is now **%s**.", state), color)
	if !enabled && h.correlator.Engine().States().IsLocked(i.GuildID) {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Lockdown",
			Value: "The server is still locked down. Use `/lockdown unlock` to lift it.",
		})
	}
	return respondEmbed(s, i, embed, false)
}

// handleSensitivity handles /antinuke sensitivity
func (h *Handler) handleSensitivity(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) error {
	if ok, err := h.guard(s, i); !ok {
		return err
	}

	o, ok := optionMap(opts)["level"]
	if !ok {
		return fmt.Errorf("no level specified")
	}
	level := config.ParseSensitivity(o.StringValue())

	h.profiles.Update(i.GuildID, func(p *config.GuildProfile) { p.Sensitivity = level })
	if err := h.persistGuild(ctx, i.GuildID); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	policy := h.profiles.Policy(i.GuildID)
	embed := newEmbed("Configuration Updated", fmt.Sprintf("Sensitivity set to **%s**.", level), colorNeutral)
	embed.Fields = limitFields(policy)
	return respondEmbed(s, i, embed, false)
}

// handleLogs handles /antinuke logs
func (h *Handler) handleLogs(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) error {
	if ok, err := h.guard(s, i); !ok {
		return err
	}

	o, ok := optionMap(opts)["channel"]
	if !ok {
		return fmt.Errorf("no channel specified")
	}
	channel := o.ChannelValue(s)
	if channel == nil {
		return fmt.Errorf("channel not found")
	}

	h.profiles.SetLogChannel(i.GuildID, channel.ID)
	if err := h.persistGuild(ctx, i.GuildID); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	return respondEmbed(s, i, newEmbed("Configuration Updated",
		fmt.Sprintf("Incidents will be reported to <#%s>.", channel.ID), colorOK), false)
}
