package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"mcpscene/internal/app"
	"mcpscene/internal/domain"
	"mcpscene/internal/infra/catalog"
)

type cliOptions struct {
	cfg    app.ServeConfig
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&cliOptions{logger: zap.NewNop()})
}

func buildRootCmd(opts *cliOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "mcpscene",
		Short:         "Scene-aware MCP tool orchestration for chat generation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadServeConfig()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			applyFlagBindings(cmd, opts)
			logger, err := app.NewRootLogger(opts.cfg.LogLevel)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", domain.DefaultCatalogPath, "path to the tool catalog (YAML or JSON)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newAnalyzeCmd(opts),
		newVersionCmd(),
	)
	return root
}

// applyFlagBindings lets explicitly set flags override the environment.
func applyFlagBindings(cmd *cobra.Command, opts *cliOptions) {
	flags := cmd.Flags()
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "config":
			opts.cfg.CatalogPath, _ = flags.GetString("config")
		case "log-level":
			opts.cfg.LogLevel, _ = flags.GetString("log-level")
		case "settings":
			opts.cfg.SettingsPath, _ = flags.GetString("settings")
		case "admin-addr":
			opts.cfg.AdminAddr, _ = flags.GetString("admin-addr")
		case "metrics-addr":
			opts.cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
		case "health-schedule":
			opts.cfg.HealthSchedule, _ = flags.GetString("health-schedule")
		case "watch":
			opts.cfg.WatchCatalog, _ = flags.GetBool("watch")
		case "timezone":
			opts.cfg.Timezone, _ = flags.GetString("timezone")
		case "otlp-endpoint":
			opts.cfg.OTLPEndpoint, _ = flags.GetString("otlp-endpoint")
		}
	})
}

func newServeCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration engine and its admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()
			return app.New(opts.logger).Serve(ctx, opts.cfg)
		},
	}
	flags := cmd.Flags()
	flags.String("settings", domain.DefaultSettingsPath, "path to the settings database")
	flags.String("admin-addr", domain.DefaultAdminListenAddress, "admin API listen address")
	flags.String("metrics-addr", domain.DefaultMetricsListenAddress, "metrics and healthz listen address")
	flags.String("health-schedule", domain.DefaultHealthSchedule, "cron schedule for tool health checks")
	flags.Bool("watch", true, "reload the catalog when the file changes")
	flags.String("timezone", "", "IANA timezone for summaries (default: host zone)")
	flags.String("otlp-endpoint", "", "OTLP gRPC endpoint for trace export")
	return cmd
}

func newValidateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the tool catalog without connecting to any tool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := app.New(opts.logger).ValidateConfig(cmd.Context(), app.ValidateConfig{
				CatalogPath: opts.cfg.CatalogPath,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), catalog.Encode(loaded))
		},
	}
}

func newAnalyzeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <text>",
		Short: "Print the scene analysis for a piece of text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis := app.New(opts.logger).Analyze(domain.AnalysisContext{
				UserInput: strings.Join(args, " "),
			})
			return writeJSON(cmd.OutOrStdout(), analysis)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "mcpscene %s (%s)\n", app.Version, app.Build)
			return err
		},
	}
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(value)
}
