package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/client"
	"github.com/sakif/campus-client/internal/config"
	"github.com/sakif/campus-client/internal/logger"
	"github.com/sakif/campus-client/internal/metrics"
)

// app is the state shared by every command of one invocation.
type app struct {
	configPath  string
	verbose     bool
	dumpMetrics bool

	cfg    *config.Config
	logger *slog.Logger
	client *client.Client
	nav    *terminalNavigator

	// newClient is swapped by tests to point at an in-process server.
	newClient func(client.Options) (*client.Client, error)
}

// execute runs cmd and closes the session afterwards, whether or not the
// command failed. Post-run hooks are skipped on error, so closing cannot
// live there.
func (a *app) execute(ctx context.Context, cmd *cobra.Command) error {
	err := cmd.ExecuteContext(ctx)
	if a.client != nil {
		if cerr := a.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "qaclient",
		Short: "Campus Q&A forum client",
		Long: `qaclient talks to the campus Q&A forum API.

The session token is kept in a small SQLite file (see QA_TOKEN_DB) so that
"qaclient login" is needed only once until the token expires.`,
		Version:           fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.writeMetrics(cmd.OutOrStdout())
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file path (default $QA_CONFIG)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")
	root.PersistentFlags().BoolVar(&a.dumpMetrics, "metrics", false, "print this invocation's client metrics on exit")

	root.AddCommand(
		a.loginCmd(),
		a.registerCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.profileCmd(),
		a.questionsCmd(),
		a.answersCmd(),
	)
	return root
}

// setup loads configuration and restores the session.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env")

	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := logger.ParseLevel(cfg.LogLevel)
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = logger.Setup(cmd.ErrOrStderr(), level, cfg.LogFormat)
	a.nav = &terminalNavigator{w: cmd.ErrOrStderr(), signInPath: cfg.SignInPath}

	c, err := a.newClient(client.Options{
		Config:    cfg,
		Navigator: a.nav,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}
	a.client = c

	// An unreachable server leaves the session anonymous for this run; the
	// command decides whether it can go on without one.
	if err := c.Bootstrap(cmd.Context()); err != nil {
		if !apperror.Retryable(err) {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", userMessage(err))
	}
	return nil
}

func (a *app) writeMetrics(w io.Writer) error {
	if a.client == nil || !a.dumpMetrics {
		return nil
	}
	return metrics.WriteText(w, a.client.Metrics)
}

func (a *app) ctx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// userMessage returns the message of the innermost AppError, which is
// written for people, or the error text otherwise.
func userMessage(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
