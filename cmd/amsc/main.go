package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/common"
)

var (
	// Global flags
	configFiles []string
	logLevel    string

	// Global state, set in PersistentPreRunE
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "amsc",
	Short: "Acceptance harness for the Archivematica dashboard and Storage Service",
	Long: `amsc drives the Archivematica dashboard and Storage Service through a
remote-controlled Chrome and runs acceptance scenarios against them.

Examples:
  amsc run scenarios/standard-transfer.toml
  amsc run --config amsc.toml --var accession=acc-42 ingest.yaml
  amsc vocab "Scan for viruses"`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		// Startup sequence:
		// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
		// 2. Apply CLI overrides
		// 3. Initialize logger
		// 4. Print banner
		if len(configFiles) == 0 {
			if _, err := os.Stat("amsc.toml"); err == nil {
				configFiles = append(configFiles, "amsc.toml")
			} else if _, err := os.Stat("deployments/local/amsc.toml"); err == nil {
				configFiles = append(configFiles, "deployments/local/amsc.toml")
			}
		}

		cfg, err := common.LoadFromFiles(configFiles...)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		config = cfg

		logger = common.InitLogger(config)
		common.InstallCrashHandler(config.Logging.Dir)
		common.PrintBanner(common.LoadVersionFromFile())

		logger.Debug().
			Strs("config_files", configFiles).
			Str("dashboard", config.Dashboard.URL).
			Str("storage_service", config.StorageService.URL).
			Str("version", config.Dashboard.Version).
			Str("log_level", config.Logging.Level).
			Msg("Configuration loaded")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil, "configuration file (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(vocabCmd)
	rootCmd.AddCommand(actionsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
