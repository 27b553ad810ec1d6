package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/sugos/sugos"
)

var errNoConfig = errors.New("no configuration file found (use --config or $" + sugos.EnvConfig + ")")

// commandContext carries the persistent flags and lazily loaded state.
type commandContext struct {
	configFlag   string
	logLevelFlag string

	stderr io.Writer
	level  slog.LevelVar
	logger *slog.Logger
	config *sugos.Config
}

func newCommandContext(stderr io.Writer) *commandContext {
	c := &commandContext{stderr: stderr}
	c.logger = slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: &c.level}))
	return c
}

func (c *commandContext) loadConfig() (*sugos.Config, error) {
	if c.config != nil {
		return c.config, nil
	}
	path := sugos.FindConfig(c.configFlag)
	if path == "" {
		return nil, errNoConfig
	}
	cfg, err := sugos.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if c.logLevelFlag != "" {
		level = c.logLevelFlag
	}
	c.level.Set(parseLevel(level))
	c.logger.Debug("sugos: config loaded", "path", path, "tenants", len(cfg.Tenants))
	c.config = cfg
	return cfg, nil
}

func (c *commandContext) service(opts ...sugos.ServiceOption) (*sugos.Service, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	opts = append([]sugos.ServiceOption{sugos.WithLogger(c.logger)}, opts...)
	return sugos.New(cfg, opts...)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newRootCommand() *cobra.Command {
	ctx := newCommandContext(os.Stderr)

	root := &cobra.Command{
		Use:           "sugos",
		Short:         "Export case-management orders into zip archives",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if ctx.logLevelFlag != "" {
				ctx.level.Set(parseLevel(ctx.logLevelFlag))
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file (yaml or toml)")
	root.PersistentFlags().StringVar(&ctx.logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newExportCommand(ctx),
		newLinksCommand(ctx),
		newTenantsCommand(ctx),
		newHistoryCommand(ctx),
		newServeCommand(ctx, prometheus.NewRegistry()),
		newMCPCommand(ctx),
		newHashPasswordCommand(),
	)
	return root
}

// requestFlags are shared by export and links.
type requestFlags struct {
	tenant   string
	ids      string
	idsFile  string
	user     string
	password string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.tenant, "tenant", "t", "", "Tenant key from the configuration")
	cmd.Flags().StringVar(&f.ids, "ids", "", "Comma-separated person identifiers")
	cmd.Flags().StringVar(&f.idsFile, "ids-file", "", "File with identifiers, one per line or comma-separated")
	cmd.Flags().StringVar(&f.user, "user", "", "API username (default: configuration or $"+sugos.EnvUsername+")")
	cmd.Flags().StringVar(&f.password, "password", "", "API password (default: configuration or $"+sugos.EnvPassword+")")
	_ = cmd.MarkFlagRequired("tenant")
}

func (f *requestFlags) request() (sugos.Request, error) {
	ids := f.ids
	if f.idsFile != "" {
		data, err := os.ReadFile(f.idsFile)
		if err != nil {
			return sugos.Request{}, fmt.Errorf("read ids file: %w", err)
		}
		lines := strings.ReplaceAll(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n", ",")
		if ids != "" {
			ids += ","
		}
		ids += lines
	}
	return sugos.Request{
		Tenant:      f.tenant,
		Username:    f.user,
		Password:    f.password,
		Identifiers: ids,
	}, nil
}
