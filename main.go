package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/soocke/board-calibrator-go/config"
)

var (
	configPath = "calibrator.json"
	logLevel   = ""
)

func main() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrator",
		Short: "calibrator locks onto a physical board in a camera feed and serves it rectified",
		Long: `calibrator watches a frame source (screen, camera or image file), recognises the
four corners of a board, and publishes a perspective-corrected image of it together
with the corner points in screen space.`,
		SilenceUsage: true,
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVarP(&logLevel, "log-level", "l", logLevel, "log level (debug, info, warn, error); overrides the config file")

	cmd.AddCommand(
		NewRunCommand(),
		NewRectifyCommand(),
		NewConfigCommand(),
	)
	return cmd
}

// loadConfig reads the config file and sets up the logger. A missing file
// yields defaults.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Debug && level > slog.LevelDebug {
		level = slog.LevelDebug
	}
	return cfg, NewLogger(os.Stderr, level), nil
}

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to the config path",
		RunE: func(_ *cobra.Command, _ []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", configPath)
			}
			if err := config.DefaultConfig().Save(configPath); err != nil {
				return err
			}
			fmt.Printf("Wrote default configuration to %s\n", configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			enc := jsonEncoder(cmd.OutOrStdout())
			return enc.Encode(cfg)
		},
	}
	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
