package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// checkPermissions allows the server owner, or an administrator whose
// highest role sits above the bot's. The whitelist grants nothing here.
func (h *Handler) checkPermissions(s *discordgo.Session, i *discordgo.InteractionCreate) (bool, error) {
	userID := i.Member.User.ID
	if owner := h.profiles.Get(i.GuildID).OwnerID; owner != "" && owner == userID {
		return true, nil
	}

	guild, err := s.State.Guild(i.GuildID)
	if err != nil {
		guild, err = s.Guild(i.GuildID)
		if err != nil {
			return false, fmt.Errorf("failed to get guild: %w", err)
		}
	}
	if userID == guild.OwnerID {
		return true, nil
	}

	if i.Member.Permissions&discordgo.PermissionAdministrator == 0 {
		return false, nil
	}

	botMember, err := s.State.Member(i.GuildID, s.State.User.ID)
	if err != nil {
		botMember, err = s.GuildMember(i.GuildID, s.State.User.ID)
		if err != nil {
			return false, fmt.Errorf("failed to get bot member: %w", err)
		}
	}

	return outranks(guild.Roles, i.Member.Roles, botMember.Roles), nil
}

// outranks reports whether the highest of userRoles sits above the highest
// of botRoles. A user without roles never outranks the bot.
func outranks(roles []*discordgo.Role, userRoles, botRoles []string) bool {
	user := highestPosition(roles, userRoles)
	if user < 0 {
		return false
	}
	return user > highestPosition(roles, botRoles)
}

func highestPosition(roles []*discordgo.Role, ids []string) int {
	has := make(map[string]bool, len(ids))
	for _, id := range ids {
		has[id] = true
	}
	highest := -1
	for _, r := range roles {
		if has[r.ID] && r.Position > highest {
			highest = r.Position
		}
	}
	return highest
}

// guard runs the permission check and answers the denial itself.
func (h *Handler) guard(s *discordgo.Session, i *discordgo.InteractionCreate) (bool, error) {
	allowed, err := h.checkPermissions(s, i)
	if err != nil {
		return false, err
	}
	if !allowed {
		respondPermissionError(s, i, "You need Administrator permission and a role higher than the bot.")
	}
	return allowed, nil
}

// respondPermissionError sends a permission denied error response
func respondPermissionError(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	respondEmbed(s, i, newEmbed("Access Denied", message, colorNeutral), true)
}
