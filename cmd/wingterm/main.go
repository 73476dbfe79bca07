package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/wingterm/internal/config"
	"github.com/ehrlich-b/wingterm/internal/logger"
)

var (
	configFlag   string
	logLevelFlag string
	logFileFlag  string
)

func main() {
	root := &cobra.Command{
		Use:   "wingterm",
		Short: "wingterm — remote shell and AI assistant over one WebSocket",
		Long: "Connects to a wingterm backend, runs shell commands on it, asks its AI assistant " +
			"questions or hands it goals, and moves files in either direction.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default ~/.wingterm/config.yaml)")
	root.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "also append logs to this file")

	root.AddCommand(
		connectCmd(),
		testCmd(),
		historyCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, applies the global flags and starts
// the logger.
func loadConfig() (*config.Config, error) {
	path := configFlag
	if path == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("locate config: %w", err)
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if logFileFlag != "" {
		cfg.Logging.File = logFileFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File, nil); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}
