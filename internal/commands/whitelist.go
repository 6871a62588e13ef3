package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/NexusBot-official/Nexus/internal/logging"
)

// maxListed keeps the whitelist embed under the description limit.
const maxListed = 50

// handleWhitelist handles /antinuke whitelist add|remove|view
func (h *Handler) handleWhitelist(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) error {
	if ok, err := h.guard(s, i); !ok {
		return err
	}

	action, args := subcommand(opts)
	if action == "view" {
		return h.handleWhitelistView(s, i)
	}

	o, ok := optionMap(args)["user"]
	if !ok {
		return fmt.Errorf("no user specified")
	}
	user := o.UserValue(nil)
	if user == nil || user.ID == "" {
		return fmt.Errorf("user not found")
	}

	switch action {
	case "add":
		if user.ID == h.profiles.BotID() {
			return fmt.Errorf("the bot is always trusted")
		}
		if h.db != nil {
			if err := h.db.AddWhitelist(ctx, i.GuildID, user.ID, i.Member.User.ID); err != nil {
				return fmt.Errorf("failed to save whitelist: %w", err)
			}
		}
		h.profiles.AddWhitelist(i.GuildID, user.ID)
		logging.Info("[COMMANDS] %s whitelisted %s in %s", i.Member.User.ID, user.ID, i.GuildID)
		return respondEmbed(s, i, newEmbed("Whitelist Updated",
			fmt.Sprintf("<@%s> is now trusted. Their actions are never counted or punished.", user.ID), colorOK), false)

	case "remove":
		if !h.profiles.IsWhitelisted(i.GuildID, user.ID) {
			return fmt.Errorf("<@%s> is not whitelisted", user.ID)
		}
		if h.db != nil {
			if err := h.db.RemoveWhitelist(ctx, i.GuildID, user.ID); err != nil {
				return fmt.Errorf("failed to save whitelist: %w", err)
			}
		}
		h.profiles.RemoveWhitelist(i.GuildID, user.ID)
		logging.Info("[COMMANDS] %s removed %s from the whitelist of %s", i.Member.User.ID, user.ID, i.GuildID)
		return respondEmbed(s, i, newEmbed("Whitelist Updated",
			fmt.Sprintf("<@%s> is no longer trusted.", user.ID), colorNeutral), false)
	}
	return fmt.Errorf("unknown whitelist action: %s", action)
}

func (h *Handler) handleWhitelistView(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p := h.profiles.Get(i.GuildID)
	ids := make([]string, 0, len(p.Whitelist))
	for id := range p.Whitelist {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return respondEmbed(s, i, newEmbed("Whitelisted Users", formatWhitelist(p.OwnerID, ids), colorNeutral), true)
}

func formatWhitelist(ownerID string, ids []string) string {
	var b strings.Builder
	if ownerID != "" {
		fmt.Fprintf(&b, "👑 <@%s> (owner)\n", ownerID)
	}
	if len(ids) == 0 {
		b.WriteString("No whitelisted users.")
		return b.String()
	}
	for n, id := range ids {
		if n == maxListed {
			fmt.Fprintf(&b, "…and %d more", len(ids)-maxListed)
			break
		}
		fmt.Fprintf(&b, "• <@%s>\n", id)
	}
	return strings.TrimRight(b.String(), "\n")
}
