package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
	"github.com/goliatone/go-accounts/mail"
	"github.com/goliatone/go-accounts/repository"
	"github.com/goliatone/go-router"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "accounts: %v\n", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "accounts",
		Short:         "Account registration, activation and session service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", DefaultConfigPath, "path to the TOML config file")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newSettingsCmd(opts),
	)
	return root
}

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func newMigrateCmd(opts *cliOptions) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}

			repos, err := openRepositories(cfg)
			if err != nil {
				return err
			}
			defer repos.Close()

			if down {
				if err := repository.Rollback(cmd.Context(), repos.DB()); err != nil {
					return err
				}
				logger.Info("rolled back last migration")
				return nil
			}

			if err := repos.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	return cmd
}

func newSettingsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and change runtime settings",
	}

	withSettings := func(run func(ctx context.Context, store *repository.Settings, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(opts)
			if err != nil {
				return err
			}

			repos, err := openRepositories(cfg)
			if err != nil {
				return err
			}
			defer repos.Close()

			return run(cmd.Context(), repos.Settings(), args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get [key]",
			Short: "Print one setting or every stored setting",
			Args:  cobra.MaximumNArgs(1),
			RunE: withSettings(func(ctx context.Context, store *repository.Settings, args []string) error {
				if len(args) == 1 {
					value, found, err := store.Get(ctx, args[0])
					if err != nil {
						return err
					}
					if !found {
						return fmt.Errorf("setting %q is not set", args[0])
					}
					fmt.Println(value)
					return nil
				}

				all, err := store.All(ctx)
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(all))
				for k := range all {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("%s=%s\n", k, all[k])
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Store a setting",
			Args:  cobra.ExactArgs(2),
			RunE: withSettings(func(ctx context.Context, store *repository.Settings, args []string) error {
				key, value := args[0], args[1]
				// resolve against a copy to reject bad values before storing them
				if _, err := accounts.ResolveSettings(ctx, accounts.StaticSettings{key: value}, accounts.DefaultSettings()); err != nil {
					return err
				}
				return store.Set(ctx, key, value)
			}),
		},
		&cobra.Command{
			Use:   "unset <key>",
			Short: "Remove a stored setting so the configured default applies",
			Args:  cobra.ExactArgs(1),
			RunE: withSettings(func(ctx context.Context, store *repository.Settings, args []string) error {
				return store.Delete(ctx, args[0])
			}),
		},
	)

	return cmd
}

func setup(opts *cliOptions) (Config, *slog.Logger, error) {
	cfg, err := LoadConfig(opts.configPath)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, newLogger(cfg.Log), nil
}

func newLogger(cfg LogConfig) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

func openRepositories(cfg Config) (*repository.Manager, error) {
	db, err := repository.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	repos := repository.NewManager(db)
	if err := repos.Validate(); err != nil {
		return nil, err
	}
	return repos, nil
}

func newMailer(cfg MailConfig, logger *slog.Logger) (accounts.Mailer, error) {
	renderer, err := mail.NewDefaultRenderer()
	if err != nil {
		return nil, err
	}

	var sender mail.Sender
	switch cfg.Sender {
	case "smtp":
		sender = mail.NewSMTPSender(mail.SMTPSettings{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			TLS:      cfg.TLS,
			Timeout:  cfg.Timeout,
		})
	case "log", "":
		sender = mail.NewLogSender(logger.With("component", "mail"))
	default:
		return nil, fmt.Errorf("unknown mail sender %q", cfg.Sender)
	}

	return mail.NewService(renderer, sender, mail.Address(cfg.From)).
		WithLink(accounts.TemplateActivation, cfg.ActivationURL).
		WithLink(accounts.TemplatePasswordReset, cfg.ResetURL), nil
}

func serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	if cfg.Session.SigningKey == "" {
		return errors.New("session signing_key is required (ACCOUNTS_SESSION_SIGNING_KEY)")
	}

	repos, err := openRepositories(cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	if cfg.Database.AutoMigrate {
		if err := repos.Migrate(ctx); err != nil {
			return err
		}
	}

	mailer, err := newMailer(cfg.Mail, logger)
	if err != nil {
		return err
	}

	logFor := func(component string) accounts.Logger {
		return accounts.NewSlogLogger(logger).With("component", component)
	}

	activity := activitymap.Sink(func(ctx context.Context, record activitymap.Record) error {
		logger.InfoContext(ctx, "activity",
			"verb", record.Verb,
			"channel", record.Channel,
			"actor_id", record.ActorID,
			"object_id", record.ObjectID,
			"metadata", record.Metadata,
		)
		return nil
	})

	defaults := cfg.Accounts.Settings()
	store := repos.Accounts()
	featureGate := newFeatureGate(cfg.Features)

	registration := accounts.NewRegistrationService(store).
		WithMailer(mailer).
		WithActivitySink(activity).
		WithFeatureGate(featureGate).
		WithDeterministicIDs(cfg.Accounts.DeterministicIDs).
		WithLogger(logFor("registration"))

	activation := accounts.NewActivationService(store).
		WithMailer(mailer).
		WithActivitySink(activity).
		WithLogger(logFor("activation"))

	passwordReset := accounts.NewPasswordResetService(store).
		WithMailer(mailer).
		WithActivitySink(activity).
		WithFeatureGate(featureGate).
		WithLogger(logFor("password_reset"))

	tokens := accounts.NewSessionTokens([]byte(cfg.Session.SigningKey), cfg.Session.Issuer).
		WithTTL(cfg.Session.TTL, cfg.Session.RememberTTL).
		WithLogger(logFor("session_tokens"))

	sessions := accounts.NewSessionAuthenticator(store, tokens).
		WithActivitySink(activity).
		WithLogger(logFor("sessions"))

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:          true,
			StrictRouting:         false,
			DisableStartupMessage: true,
		}))
	})

	accounts.RegisterAccountRoutes(srv.Router().Group(cfg.Server.Prefix),
		func(ac *accounts.AccountsController) *accounts.AccountsController {
			ac.Debug = cfg.Server.Debug
			ac.Registration = registration
			ac.Activation = activation
			ac.PasswordReset = passwordReset
			ac.Sessions = sessions
			ac.Settings = repos.Settings()
			ac.Defaults = defaults
			ac.CookieName = cfg.Session.CookieName
			ac.SecureCookie = cfg.Session.SecureCookie
			ac.WithLogger(logFor("http"))
			return ac
		})

	logger.Info("serving accounts api", "addr", cfg.Server.Addr, "prefix", cfg.Server.Prefix)

	go func() {
		if err := srv.Serve(cfg.Server.Addr); err != nil {
			logger.Error("http server stopped", "error", err)
		}
	}()

	sig := WaitExitSignal(ctx)
	logger.Info("shutting down", "signal", fmt.Sprint(sig))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// WaitExitSignal blocks until the process is asked to stop or ctx is done.
func WaitExitSignal(ctx context.Context) os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	defer signal.Stop(ch)

	select {
	case sig := <-ch:
		return sig
	case <-ctx.Done():
		return nil
	}
}
