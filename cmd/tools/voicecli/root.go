package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/voicedesk/backend/internal/client"
	"github.com/voicedesk/backend/internal/logger"
)

func execute() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "voicecli",
		Short:         "Terminal client for the voice ticket backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			_, err := logger.Init(logger.Config{Level: level, Format: "console"}, os.Stderr)
			return err
		},
	}

	rootCmd.PersistentFlags().String("server", envOrDefault("VOICE_SERVER", "http://localhost:8080"), "backend base URL")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level")

	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newSessionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	return client.New(server)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
