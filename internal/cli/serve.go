package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ruff-uno/simonini-isms/internal/auth"
	"github.com/ruff-uno/simonini-isms/internal/config"
	"github.com/ruff-uno/simonini-isms/internal/jobtread"
	"github.com/ruff-uno/simonini-isms/internal/logging"
	"github.com/ruff-uno/simonini-isms/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web application",
		Long: `Run the Simonini-isms web application.

Serves the rule book pages and the JSON API until interrupted. Sessions are
resolved against the configured database; demo sessions are read from the demo
database when one is configured. The phase spec library needs a JobTread API key.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}

	logger, err := logging.New(cfg.Logging, opts.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize logger", err)
	}
	defer func() { _ = logger.Sync() }()
	if cfg.IsDevelopment() {
		logger.Warn("development profile active; session cookies are not secure")
	}

	st, err := openStore(cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)
	logger.Info("database ready", zap.String("path", cfg.Database.Path))

	var demo auth.DemoLookup = st
	if cfg.DemoDatabase.Path != "" {
		demoStore, err := openStore(cfg.DemoDatabase.Path, logger)
		if err != nil {
			return err
		}
		defer closeStore(demoStore, logger)
		demo = demoStore
		logger.Info("demo database ready", zap.String("path", cfg.DemoDatabase.Path))
	}

	authn := auth.New(st, demo, auth.Options{
		CookieName:     cfg.Session.CookieName,
		CookieDomain:   cfg.Session.CookieDomain,
		CookieSecure:   cfg.Session.CookieSecure,
		DemoCookieName: cfg.Session.DemoCookieName,
		LoginURL:       cfg.LoginURL,
		Logger:         logger,
	})

	srvOpts := server.Options{
		AppURL:          cfg.AppURL,
		CORSOrigins:     cfg.CORSOrigins,
		PhaseSpecsJobID: cfg.JobTread.PhaseSpecsJobID,
		Logger:          logger,
	}
	client, err := newJobTreadClient(cfg, logger)
	switch {
	case errors.Is(err, jobtread.ErrNoAPIKey):
		logger.Warn("JobTread API key not set; phase spec library disabled")
	case err != nil:
		return WrapExitError(ExitCommandError, "failed to create JobTread client", err)
	default:
		srvOpts.Files = client
	}

	srv, err := server.New(st, authn, srvOpts)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create server", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	logger.Info("server starting", zap.String("env", cfg.Env), zap.String("listen", cfg.Listen))
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s. Press Ctrl-C to stop.\n", cfg.Listen)

	if err := srv.Run(ctx, cfg.Listen); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}

// newJobTreadClient builds a client from configuration. Returns
// jobtread.ErrNoAPIKey when no key is configured.
func newJobTreadClient(cfg *config.Config, logger *zap.Logger) (*jobtread.Client, error) {
	return jobtread.New(jobtread.Config{
		APIKey:         cfg.JobTread.APIKey,
		BaseURL:        cfg.JobTread.BaseURL,
		OrganizationID: cfg.JobTread.OrganizationID,
		Timeout:        cfg.JobTreadTimeout(),
	}, jobtread.WithLogger(logger))
}

// signalContext derives a context from the command's that is cancelled on
// SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
