package commands

import "github.com/bwmarrin/discordgo"

var adminOnly = int64(discordgo.PermissionAdministrator)

var minOne = 1.0

// GetAllCommands returns all application commands
func GetAllCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "antinuke",
			Description:              "Manage anti-nuke protection",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "enable",
					Description: "Enable anti-nuke protection",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
				{
					Name:        "disable",
					Description: "Disable anti-nuke protection",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
				{
					Name:        "sensitivity",
					Description: "Tighten detection thresholds",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{
							Name:        "level",
							Description: "Sensitivity level",
							Type:        discordgo.ApplicationCommandOptionString,
							Required:    true,
							Choices: []*discordgo.ApplicationCommandOptionChoice{
								{Name: "Normal", Value: "normal"},
								{Name: "Elevated", Value: "elevated"},
								{Name: "High", Value: "high"},
							},
						},
					},
				},
				{
					Name:        "logs",
					Description: "Set the channel incidents are reported to",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{
							Name:         "channel",
							Description:  "Log channel",
							Type:         discordgo.ApplicationCommandOptionChannel,
							ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
							Required:     true,
						},
					},
				},
				{
					Name:        "whitelist",
					Description: "Manage trusted users",
					Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
					Options: []*discordgo.ApplicationCommandOption{
						{
							Name:        "add",
							Description: "Trust a user",
							Type:        discordgo.ApplicationCommandOptionSubCommand,
							Options: []*discordgo.ApplicationCommandOption{
								{
									Name:        "user",
									Description: "User to whitelist",
									Type:        discordgo.ApplicationCommandOptionUser,
									Required:    true,
								},
							},
						},
						{
							Name:        "remove",
							Description: "Stop trusting a user",
							Type:        discordgo.ApplicationCommandOptionSubCommand,
							Options: []*discordgo.ApplicationCommandOption{
								{
									Name:        "user",
									Description: "User to remove",
									Type:        discordgo.ApplicationCommandOptionUser,
									Required:    true,
								},
							},
						},
						{
							Name:        "view",
							Description: "List whitelisted users",
							Type:        discordgo.ApplicationCommandOptionSubCommand,
						},
					},
				},
				{
					Name:        "limits",
					Description: "View or change detection limits",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{
							Name:        "soft",
							Description: "Actions before the guild is monitored",
							Type:        discordgo.ApplicationCommandOptionInteger,
							MinValue:    &minOne,
						},
						{
							Name:        "hard",
							Description: "Actions before the guild is locked down",
							Type:        discordgo.ApplicationCommandOptionInteger,
							MinValue:    &minOne,
						},
						{
							Name:        "window",
							Description: "Hard window in seconds",
							Type:        discordgo.ApplicationCommandOptionInteger,
							MinValue:    &minOne,
						},
						{
							Name:        "unattributed",
							Description: "Unattributed actions before lockdown",
							Type:        discordgo.ApplicationCommandOptionInteger,
							MinValue:    &minOne,
						},
						{
							Name:        "ban",
							Description: "Ban the actor on lockdown",
							Type:        discordgo.ApplicationCommandOptionBoolean,
						},
						{
							Name:        "reset",
							Description: "Drop every override and use the defaults",
							Type:        discordgo.ApplicationCommandOptionBoolean,
						},
					},
				},
			},
		},
		{
			Name:                     "lockdown",
			Description:              "Inspect or lift a lockdown",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "status",
					Description: "Show the guild's security state",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
				{
					Name:        "unlock",
					Description: "Lift the lockdown and restore @everyone permissions",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
			},
		},
		{
			Name:        "status",
			Description: "Show engine and host status",
		},
	}
}
