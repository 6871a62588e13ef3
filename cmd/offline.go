package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/NexusBot-official/Nexus/internal/config"
	"github.com/NexusBot-official/Nexus/internal/database"
	"github.com/NexusBot-official/Nexus/internal/dispatcher"
)

const offlineTimeout = 30 * time.Second

func openStore(ctx context.Context, configPath string) (*config.Config, *database.Database, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return cfg, db, nil
}

// newUnlockCmd lifts a lockdown while the bot is offline. The saved
// @everyone permissions are restored over REST when a token is configured.
func newUnlockCmd(configPath *string) *cobra.Command {
	var keepPermissions bool

	cmd := &cobra.Command{
		Use:   "unlock <guild-id>",
		Short: "Lift a persisted lockdown without the bot running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), offlineTimeout)
			defer cancel()

			cfg, db, err := openStore(ctx, *configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			guildID := args[0]
			locked, err := db.LoadLockdowns(ctx)
			if err != nil {
				return err
			}

			found := false
			for _, st := range locked {
				if st.GuildID != guildID {
					continue
				}
				found = true
				if st.PermissionsSaved && !keepPermissions {
					if cfg.Bot.Token == "" {
						return fmt.Errorf("no bot token configured to restore @everyone permissions (use --keep-permissions to skip)")
					}
					client := dispatcher.NewClient(dispatcher.Options{
						Token:          cfg.Bot.Token,
						BaseURL:        cfg.Network.APIBaseURL,
						PoolSize:       1,
						RequestTimeout: cfg.Network.RequestTimeout,
						RetryAttempts:  cfg.Network.RetryAttempts,
					})
					if err := client.UnlockGuild(ctx, guildID, st.EveryonePermissions, "Lockdown lifted from the command line"); err != nil {
						return fmt.Errorf("failed to restore @everyone permissions: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Restored @everyone permissions")
				}
			}
			if !found {
				return fmt.Errorf("guild %s is not locked", guildID)
			}

			if err := db.ClearLockdown(ctx, guildID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Lockdown of %s lifted\n", guildID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepPermissions, "keep-permissions", false, "Only clear the stored state, leave @everyone as it is")
	return cmd
}

func newRecordsCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "records <guild-id>",
		Short: "Print the most recent mitigations taken in a guild",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), offlineTimeout)
			defer cancel()

			_, db, err := openStore(ctx, *configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			recs, err := db.RecentRecords(ctx, args[0], limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No mitigations recorded.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTION\tTRIGGER\tACTOR\tTARGET\tERROR")
			for _, r := range recs {
				actor := r.ActorID
				if actor == "" {
					actor = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.At.Local().Format(time.DateTime), r.Action, r.Trigger, actor, r.TargetID, r.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "Number of records to show")
	return cmd
}
