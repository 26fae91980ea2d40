package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool

	globalConfig *Config
)

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Real-time conversational crisis voice agent",
	Long: `Vigil - a voice agent server for crisis conversations.

Clients connect over WebSocket and exchange JSON frames carrying audio or
text. The agent transcribes, classifies emergencies, walks callers through
type-specific safety protocols, and escalates to an automated emergency
call when a caller stops responding.

Examples:
  # Run the server with a config file
  vigil serve --config vigil.yaml

  # Inspect the emergency call audit log
  vigil calls list --config vigil.yaml
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(callsCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	var err error
	globalConfig, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config: %v\n", err)
		globalConfig = &Config{}
	}
}

func getConfig() *Config {
	return globalConfig
}
