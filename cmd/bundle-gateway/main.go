package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/bundle-gateway/internal/pkg/config"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var configPath string
	rootCmd := &cobra.Command{
		Use:           "bundle-gateway",
		Short:         "Validate clinical bundles and forward them to the scoring system",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML config file")

	rootCmd.AddCommand(serveCmd(&configPath, logger))
	rootCmd.AddCommand(replayCmd(&configPath, logger))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
