package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/techwithparamesh/agent-app-sub006/internal/config"
)

// app carries the loaded configuration from the root command to subcommands.
type app struct {
	configFile string
	config     config.Config
}

func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "flowcore",
		Short: "Workflow automation engine",
		Long: `flowcore fires workflows from polled resources, cron schedules and inbound
webhooks, and runs their node graphs against the configured integrations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipConfig"] == "true" {
				return nil
			}

			return a.loadConfig(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "Path to a config file (default: flowcore.yaml in ., ./config or $HOME/.flowcore)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(NewServeCommand(a))
	rootCmd.AddCommand(NewTickCommand(a))
	rootCmd.AddCommand(NewRunCommand(a))
	rootCmd.AddCommand(NewKeygenCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(config.New(a.configFile))
	if err != nil {
		return err
	}

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Log.Level = "debug"
	}

	if err := setupLogging(cfg.Log); err != nil {
		return err
	}

	a.config = cfg

	return nil
}

func setupLogging(cfg config.LogConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return fmt.Errorf("invalid log.level %q: %w", cfg.Level, err)
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	return nil
}

// Execute runs the root command
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
