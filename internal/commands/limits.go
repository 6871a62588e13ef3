package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/NexusBot-official/Nexus/internal/config"
	"github.com/NexusBot-official/Nexus/internal/database"
	"github.com/NexusBot-official/Nexus/internal/logging"
)

// handleLimits handles /antinuke limits. Without options it shows the
// effective policy; with options it merges them into the stored override.
func (h *Handler) handleLimits(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) error {
	if ok, err := h.guard(s, i); !ok {
		return err
	}

	title := "Detection Limits"
	if len(opts) > 0 {
		if err := h.updateLimits(ctx, i.GuildID, optionMap(opts)); err != nil {
			return err
		}
		title = "Configuration Updated"
		logging.Info("[COMMANDS] Limits of %s changed by %s", i.GuildID, i.Member.User.ID)
	}

	embed := newEmbed(title, "Effective limits after guild size and sensitivity scaling.", colorNeutral)
	embed.Fields = limitFields(h.profiles.Policy(i.GuildID))
	return respondEmbed(s, i, embed, false)
}

func (h *Handler) updateLimits(ctx context.Context, guildID string, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) error {
	if o, ok := opts["reset"]; ok && o.BoolValue() {
		if h.db != nil {
			if err := h.db.DeleteGuildLimits(ctx, guildID); err != nil {
				return fmt.Errorf("failed to reset limits: %w", err)
			}
		}
		h.profiles.Update(guildID, func(p *config.GuildProfile) { p.Override = nil })
		return nil
	}

	limits := &database.GuildLimits{GuildID: guildID}
	if h.db != nil {
		stored, err := h.db.GetGuildLimits(ctx, guildID)
		if err != nil {
			return fmt.Errorf("failed to load limits: %w", err)
		}
		if stored != nil {
			limits = stored
		}
	}

	if err := applyLimitOptions(limits, opts); err != nil {
		return err
	}

	if h.db != nil {
		if err := h.db.UpsertGuildLimits(ctx, limits); err != nil {
			return fmt.Errorf("failed to save limits: %w", err)
		}
	}
	h.profiles.Update(guildID, func(p *config.GuildProfile) { p.Override = limits.Override() })
	return nil
}

// applyLimitOptions merges slash command options into stored limits and
// rejects a soft threshold above the hard one.
func applyLimitOptions(l *database.GuildLimits, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) error {
	if o, ok := opts["soft"]; ok {
		l.SoftThreshold = int(o.IntValue())
	}
	if o, ok := opts["hard"]; ok {
		l.HardThreshold = int(o.IntValue())
	}
	if o, ok := opts["window"]; ok {
		l.HardWindowMs = (time.Duration(o.IntValue()) * time.Second).Milliseconds()
	}
	if o, ok := opts["unattributed"]; ok {
		l.UnattributedThreshold = int(o.IntValue())
	}
	if o, ok := opts["ban"]; ok {
		ban := o.BoolValue()
		l.BanOnLockdown = &ban
	}

	if l.SoftThreshold > 0 && l.HardThreshold > 0 && l.SoftThreshold > l.HardThreshold {
		return fmt.Errorf("soft limit %d cannot exceed hard limit %d", l.SoftThreshold, l.HardThreshold)
	}
	return nil
}

func limitFields(p config.Policy) []*discordgo.MessageEmbedField {
	ban := "No"
	if p.BanOnLockdown {
		ban = "Yes"
	}
	return []*discordgo.MessageEmbedField{
		{Name: "Monitoring", Value: fmt.Sprintf("`%d` actions / `%s`", p.SoftThreshold, p.SoftWindow), Inline: true},
		{Name: "Lockdown", Value: fmt.Sprintf("`%d` actions / `%s`", p.HardThreshold, p.HardWindow), Inline: true},
		{Name: "Unattributed", Value: fmt.Sprintf("`%d` actions / `%s`", p.UnattributedThreshold, p.UnattributedWindow), Inline: true},
		{Name: "Monitoring Cooldown", Value: fmt.Sprintf("`%s`", p.MonitoringCooldown), Inline: true},
		{Name: "Ban On Lockdown", Value: ban, Inline: true},
	}
}
