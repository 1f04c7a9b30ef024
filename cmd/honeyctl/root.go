package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/honeywire/pkg/cli"
	"mercator-hq/honeywire/pkg/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "honeyctl",
	Short: "Operate the honeywire deception agent",
	Long: `honeyctl validates honeyaml deception rules and inspects the evidence
recorded by processes running with the honeywire agent preloaded.

The agent configuration is read from --config, or from the file named by
HONEYWIRE_CONFIG. HONEYWIRE_* environment variables override single fields
exactly as they do for the injected agent.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "agent config file (default: $HONEYWIRE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

// loadConfig resolves the agent configuration the same way the injected
// agent does, with --config taking the place of HONEYWIRE_CONFIG.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		cfg, err := config.FromEnvironment()
		if err != nil {
			return nil, cli.NewConfigError(os.Getenv(config.EnvConfigPath), err)
		}
		return cfg, nil
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	return cfg, nil
}

// newLogger writes to stderr so command output on stdout stays parseable.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// outputOf returns the writer a command prints its results to.
func outputOf(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}
