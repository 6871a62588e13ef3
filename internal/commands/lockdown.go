package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/NexusBot-official/Nexus/internal/decision"
	"github.com/NexusBot-official/Nexus/internal/state"
)

// handleLockdownStatus handles /lockdown status
func (h *Handler) handleLockdownStatus(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	if ok, err := h.guard(s, i); !ok {
		return err
	}
	return respondEmbed(s, i, securityEmbed(h.correlator.Engine().States().Get(i.GuildID)), false)
}

func securityEmbed(st state.GuildSecurityState) *discordgo.MessageEmbed {
	switch st.Status {
	case state.StatusLockdown:
		embed := newEmbed("🔒 Server Locked Down", st.Reason, colorAlert)
		actor := "unknown"
		if st.TriggeringActorID != "" {
			actor = fmt.Sprintf("<@%s>", st.TriggeringActorID)
		}
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Since", Value: fmt.Sprintf("<t:%d:R>", st.LockdownStartedAt.Unix()), Inline: true},
			{Name: "Actor", Value: actor, Inline: true},
			{Name: "Lift", Value: "`/lockdown unlock`", Inline: true},
		}
		return embed
	case state.StatusMonitoring:
		embed := newEmbed("👀 Monitoring", st.Reason, 0xFEE75C)
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Since", Value: fmt.Sprintf("<t:%d:R>", st.MonitoringSince.Unix()), Inline: true},
		}
		return embed
	default:
		return newEmbed("✅ Normal", "No suspicious activity.", colorOK)
	}
}

// handleUnlock handles /lockdown unlock
func (h *Handler) handleUnlock(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	if ok, err := h.guard(s, i); !ok {
		return err
	}

	err := h.correlator.Engine().Unlock(ctx, i.GuildID, i.Member.User.ID)
	if errors.Is(err, decision.ErrNotLocked) {
		return respondEmbed(s, i, newEmbed("Not Locked", "This server is not in lockdown.", colorNeutral), true)
	}

	embed := newEmbed("🔓 Lockdown Lifted", fmt.Sprintf("Lifted by <@%s>.", i.Member.User.ID), colorOK)
	if err != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "⚠️ Permissions",
			Value: fmt.Sprintf("Could not restore @everyone permissions: %v", err),
		})
	}
	return respondEmbed(s, i, embed, false)
}
