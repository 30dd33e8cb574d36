package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vyrodovalexey/corsrelay/internal/config"
	"github.com/vyrodovalexey/corsrelay/internal/observability"
)

// flagBindings maps command line flags to configuration keys.
var flagBindings = map[string]string{
	"config":       "config",
	"address":      "listen.address",
	"port":         "listen.port",
	"upstream":     "upstream.url",
	"username":     "upstream.username",
	"password":     "upstream.password",
	"timeout":      "upstream.timeout",
	"mode":         "mode",
	"dataset":      "fallback.dataset_file",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"metrics-port": "metrics.port",
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:           "corsrelay",
		Short:         "corsrelay: CORS relay in front of the Faraday REST API",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	registerFlags(cmd.PersistentFlags())
	bindFlags(v, cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(v), newVersionCmd())

	return cmd
}

func registerFlags(fs *pflag.FlagSet) {
	d := config.DefaultConfig()

	fs.String("config", "", "config file (YAML)")
	fs.String("address", d.Listen.Address, "listen address")
	fs.Int("port", d.Listen.Port, "listen port")
	fs.String("upstream", d.Upstream.URL, "upstream base URL")
	fs.String("username", d.Upstream.Username, "default upstream username")
	fs.String("password", d.Upstream.Password, "default upstream password")
	fs.Duration("timeout", d.Upstream.Timeout, "upstream request timeout")
	fs.String("mode", string(d.Mode), "operating mode (pass-through, static-fallback)")
	fs.String("dataset", "", "static fallback dataset file (YAML)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log-format", d.Log.Format, "log format (json, console)")
	fs.Int("metrics-port", d.Metrics.Port, "metrics listener port")
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	for name, key := range flagBindings {
		_ = v.BindPFlag(key, fs.Lookup(name))
	}
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "corsrelay version %s\n", version)
			_, _ = fmt.Fprintf(out, "  Build time: %s\n", buildTime)
			_, _ = fmt.Fprintf(out, "  Git commit: %s\n", gitCommit)
		},
	}
}

// loadConfig merges the config file named by the "config" key and decodes
// the result.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	if err := config.ReadFile(v, v.GetString("config")); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func runServe(ctx context.Context, v *viper.Viper) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting corsrelay",
		observability.String("version", version),
		observability.String("config", cfg.String()),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize relay", observability.Error(err))
		return err
	}
	defer app.shutdown()

	return app.run(ctx)
}
