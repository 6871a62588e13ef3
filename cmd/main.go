package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NexusBot-official/Nexus/internal/bootstrap"
	"github.com/NexusBot-official/Nexus/internal/logging"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "nexus",
		Short:         "Nexus: anti-raid and anti-nuke protection for Discord guilds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("NEXUS_CONFIG"), "Path to config file (default: ./config.*)")

	cmd.AddCommand(newRunCmd(&configPath))
	cmd.AddCommand(newUnlockCmd(&configPath))
	cmd.AddCommand(newRecordsCmd(&configPath))
	return cmd
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the gateway and protect every guild the bot is in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), *configPath)
		},
	}
}

func run(ctx context.Context, configPath string) error {
	fmt.Println("Starting Nexus Anti-Nuke Engine")

	b := bootstrap.New(configPath)
	if err := b.Initialize(); err != nil {
		return err
	}
	defer logging.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := b.Start(ctx); err != nil {
		b.Shutdown()
		return err
	}
	logging.Info("Discord bot connected and commands registered")

	<-ctx.Done()
	fmt.Println("\nShutdown signal received")

	return b.Shutdown()
}
