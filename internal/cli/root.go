// Package cli implements the bqpipe command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joacominatel/bqpipe/internal/app"
	"github.com/joacominatel/bqpipe/internal/config"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

var version = "dev"

// Snowflake folds unquoted identifiers to upper case, so the flag only
// changes BigQuery and Postgres names.
const acceptCapitalsUsage = "Keep capital letters in dataset and table names (ignored on Snowflake, which upper-cases them)"

// DriverFactory builds the warehouse driver of a profile.
type DriverFactory func(p config.Profile, logger *slog.Logger) (warehouse.Driver, error)

type rootOptions struct {
	configPath string
	profile    string
	logLevel   string
	output     string

	newDriver    DriverFactory
	now          func() time.Time
	readPassword func(cmd *cobra.Command) (string, error)
	runTUI       func(ctx context.Context, svc *app.Service) error
}

func defaultOptions() *rootOptions {
	return &rootOptions{
		newDriver:    NewDriver,
		now:          time.Now,
		readPassword: promptPassword,
		runTUI:       runBrowser,
	}
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd(defaultOptions())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bqpipe",
		Short:         "Move tabular data between files and warehouse tables",
		Long:          "bqpipe reads, writes and inspects BigQuery, Snowflake and Postgres tables.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			switch opts.output {
			case formatTable, formatCSV, formatJSON, formatNDJSON:
				return nil
			default:
				return fmt.Errorf("unsupported output format %q: use table, csv, json or ndjson", opts.output)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default ~/.bqpipe/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&opts.profile, "profile", "p", "", "Profile to use (env BQPIPE_PROFILE)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (env BQPIPE_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", formatTable, "Output format (table, csv, json, ndjson)")

	rootCmd.AddCommand(newReadCmd(opts))
	rootCmd.AddCommand(newWriteCmd(opts))
	rootCmd.AddCommand(newCreateCmd(opts))
	rootCmd.AddCommand(newMetadataCmd(opts))
	rootCmd.AddCommand(newSessionCmd(opts))
	rootCmd.AddCommand(newProfilesCmd(opts))
	rootCmd.AddCommand(newBrowseCmd(opts))

	return rootCmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, &app.ErrConfig{Cause: err}
	}
	return cfg, nil
}

// logger writes text logs to stderr. The level comes from --log-level, then
// BQPIPE_LOG_LEVEL or the config preference.
func (o *rootOptions) logger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	level := o.logLevel
	if level == "" {
		level = cfg.Preferences.LogLevel
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: config.SlogLevel(level)}))
}

// connect resolves the active profile and returns a connected service.
func (o *rootOptions) connect(cmd *cobra.Command) (*app.Service, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := o.logger(cmd, cfg)

	name := o.profile
	if name == "" {
		name = cfg.Preferences.DefaultProfile
	}
	p, err := cfg.ActiveProfile(name)
	if err != nil {
		return nil, &app.ErrConfig{Cause: err}
	}
	profile := *p
	if err := profile.ResolveSecrets(); err != nil {
		return nil, &app.ErrConfig{Cause: err}
	}
	if err := profile.Validate(); err != nil {
		return nil, &app.ErrConfig{Cause: err}
	}

	driver, err := o.newDriver(profile, logger)
	if err != nil {
		return nil, &app.ErrConfig{Cause: err}
	}
	svc := app.NewService(driver, app.Options{
		DefaultDataset: profile.DefaultDataset(),
		AuditColumn:    cfg.Preferences.AuditColumn,
		Logger:         logger.With("profile", profile.Name),
		Now:            o.now,
	})
	if err := svc.Connect(cmd.Context()); err != nil {
		return nil, err
	}
	return svc, nil
}

// withService runs fn against a connected service and disconnects afterwards.
func (o *rootOptions) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *app.Service) error) error {
	svc, err := o.connect(cmd)
	if err != nil {
		return err
	}
	defer svc.Disconnect() //nolint:errcheck

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, svc)
}

func readAll(r io.Reader, name string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}
