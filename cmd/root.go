package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Mickaeljc/app-bofip/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagRefresh bool
	flagConfig  string
	flagVerbose bool

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "bofip",
	Short: "Ask questions about French tax doctrine from the BOFIP",
	Long: `bofip downloads the Bulletin officiel des finances publiques (BOFIP) open data,
keeps a local snapshot, and answers questions about VAT, agriculture and taxes
from the matching entries.

Run without arguments to start the interactive prompt.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The interactive prompt owns the terminal, so it logs to a file.
		var err error
		logger, err = newLogger(!cmd.HasParent())
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&flagRefresh, "refresh", false, "ignore the local snapshot and fetch again")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(historyCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bofip %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

// newLogger builds a production zap logger. Console commands only show
// warnings unless verbose; the TUI writes everything from info up to the log
// file.
func newLogger(toFile bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch {
	case flagVerbose:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case !toFile:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	if toFile {
		path := config.LogPath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		cfg.OutputPaths = []string{path}
		cfg.ErrorOutputPaths = []string{path}
	}
	return cfg.Build()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
