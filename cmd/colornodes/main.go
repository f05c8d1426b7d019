package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type config struct {
	serverURL string
	hubURL    string
	username  string
	roomCode  string
	configDir string
	verbose   bool
}

func main() {
	_ = godotenv.Load()

	cfg := &config{}
	cmd := &cobra.Command{
		Use:           "colornodes",
		Short:         "Terminal client for the cup-matching party game.",
		Args:          cobra.ExactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.username == "" {
				return fmt.Errorf("--name is required")
			}
			log, err := newLogger(cfg.verbose)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runApp(cmd.Context(), cfg, log)
		},
	}

	cmd.Flags().StringVar(&cfg.serverURL, "server", envOr("COLORNODES_SERVER_URL", "http://localhost:5197/api"), "base URL of the Room/Game API")
	cmd.Flags().StringVar(&cfg.hubURL, "hub", envOr("COLORNODES_HUB_URL", "ws://localhost:5197/api/hub"), "websocket URL of the push hub")
	cmd.Flags().StringVar(&cfg.username, "name", envOr("COLORNODES_NAME", ""), "display name")
	cmd.Flags().StringVar(&cfg.roomCode, "room", "", "room code to join; omit to create a room")
	cmd.Flags().StringVar(&cfg.configDir, "config-dir", "", "directory for persisted identity (default: user config dir)")
	cmd.Flags().BoolVarP(&cfg.verbose, "verbose", "v", false, "debug logging")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
