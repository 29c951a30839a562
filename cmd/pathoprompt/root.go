package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pathoprompt/internal/config"
	"github.com/jackzampolin/pathoprompt/internal/home"
	"github.com/jackzampolin/pathoprompt/internal/output"
	"github.com/jackzampolin/pathoprompt/internal/providers"
	"github.com/jackzampolin/pathoprompt/internal/svcctx"
	"github.com/jackzampolin/pathoprompt/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "pathoprompt",
	Short: "Compare prompting techniques for pathogen surveillance reports",
	Long: `pathoprompt turns metagenomic classifier evidence (taxa with confidences,
an out-of-distribution rate and a sample description) into structured
surveillance reports using several prompting techniques, and compares them.

Every technique's output goes through the same extraction and schema
validation, with a deterministic inconclusive fallback when no JSON can be
recovered. Comparison runs are written to ~/.pathoprompt/runs.

Techniques:
  - Role+Task+Constraints, Few-shot Contrastive, Structured JSON Guard
  - RAG-lite, Chain-of-Verification
  - Self-Consistency (majority vote over samples)
  - Critique-and-Revise (draft, then reviewed revision)`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.pathoprompt/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "pathoprompt home directory (default: ~/.pathoprompt)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "warn", "log level: debug, info, warn, error",
	)

	// Set output format and logger before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		output.SetFormat(format)

		level, err := parseLevel(logLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	}

	rootCmd.AddCommand(versionCmd)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// loadServices builds the home directory, config and provider registry and
// attaches them to the command context.
func loadServices(cmd *cobra.Command) (*svcctx.Services, error) {
	if s := svcctx.ServicesFrom(cmd.Context()); s != nil {
		return s, nil
	}
	logger := slog.Default()

	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}

	cfgMgr, err := config.NewManager(cfgFile, h.Path(), logger)
	if err != nil {
		return nil, err
	}
	registry := providers.NewRegistryFromConfig(cfgMgr.Get().ToProviderRegistryConfig())
	registry.SetLogger(logger)

	if used := cfgMgr.ConfigFile(); used != "" {
		logger.Debug("loaded config", "file", used)
		cfgMgr.OnChange(func(c *config.Config) {
			registry.Reload(c.ToProviderRegistryConfig())
		})
		cfgMgr.WatchConfig()
	}

	s := &svcctx.Services{
		Config:   cfgMgr,
		Registry: registry,
		Logger:   logger,
		Home:     h,
	}
	cmd.SetContext(svcctx.WithServices(cmd.Context(), s))
	return s, nil
}
