// Package cli implements emilctl, a terminal client for the session core:
// it signs in against the remote API, keeps the session in a store and
// evaluates route access the same way the web client does.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/NelsonFranklinWere/emil/backend/internal/apiclient"
	"github.com/NelsonFranklinWere/emil/backend/internal/config"
	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
	"github.com/NelsonFranklinWere/emil/backend/internal/session"
	"github.com/NelsonFranklinWere/emil/backend/internal/store"
)

// Factory opens a session service for one command invocation. The returned
// func releases whatever the service holds.
type Factory func(cmd *cobra.Command) (*session.Service, func(), error)

type globalFlags struct {
	apiURL      string
	sessionFile string
	verbose     bool
}

func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}
	return newRootCommand(flags, func(cmd *cobra.Command) (*session.Service, func(), error) {
		return openSession(cmd, flags)
	})
}

func newRootCommand(flags *globalFlags, factory Factory) *cobra.Command {
	root := &cobra.Command{
		Use:   "emilctl",
		Short: "Sign in to Emil and inspect your session",
		Long: `emilctl drives the Emil session from a terminal.

The session (token and user) is kept in a local file by default, or in redis
when SESSION_BACKEND=redis. Every command restores it first, exactly like the
web client does when a page loads.

Examples:
  echo "$PASSWORD" | emilctl login --email hr@acme.test --password-stdin
  emilctl status
  emilctl check --path /admin/users --role ADMIN
  emilctl logout`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.apiURL, "api-url", "", "API base URL (overrides API_BASE_URL)")
	root.PersistentFlags().StringVar(&flags.sessionFile, "session-file", "", "session file (overrides SESSION_FILE)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log session activity to stderr")

	root.AddCommand(
		newLoginCmd(factory),
		newRegisterCmd(factory),
		newRegisterCompanyCmd(factory),
		newFederatedCmd(factory),
		newLogoutCmd(factory),
		newStatusCmd(factory),
		newCheckCmd(factory),
	)
	return root
}

func openSession(cmd *cobra.Command, flags *globalFlags) (*session.Service, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, nil, err
	}
	if flags.apiURL != "" {
		cfg.API.BaseURL = flags.apiURL
	}
	if flags.sessionFile != "" {
		cfg.Session.File = flags.sessionFile
	}

	level := slog.LevelWarn
	if flags.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	st, release, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	api, err := apiclient.New(cfg.API.BaseURL, apiclient.WithTimeout(cfg.API.Timeout))
	if err != nil {
		release()
		return nil, nil, err
	}

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithNavigator(printNavigator(cmd.OutOrStdout())),
	}
	if cfg.Session.DefaultRole != "" {
		role, err := domain.ParseRole(cfg.Session.DefaultRole)
		if err != nil {
			release()
			return nil, nil, fmt.Errorf("SESSION_DEFAULT_ROLE: %w", err)
		}
		opts = append(opts, session.WithDefaultRole(role))
	}

	svc, err := session.New(api, st, opts...)
	if err != nil {
		release()
		return nil, nil, err
	}
	return svc, release, nil
}

func openStore(cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Session.Backend {
	case "memory":
		return store.NewMemoryStore(), func() {}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return store.NewRedisStore(rdb, cfg.Session.RedisPrefix), func() { _ = rdb.Close() }, nil
	default:
		path := cfg.Session.File
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, nil, errors.New("cannot locate a config directory; set SESSION_FILE")
			}
			path = filepath.Join(dir, "emil", "session.json")
		}
		return store.NewFileStore(path), func() {}, nil
	}
}

func printNavigator(w io.Writer) session.Navigator {
	return session.NavigatorFunc(func(target string) {
		fmt.Fprintf(w, "-> %s\n", target)
	})
}

// run opens and restores the session, then hands it to fn.
func run(cmd *cobra.Command, factory Factory, fn func(ctx context.Context, svc *session.Service) error) error {
	svc, release, err := factory(cmd)
	if err != nil {
		return err
	}
	defer release()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc.Initialize(ctx)
	return fn(ctx, svc)
}

func report(cmd *cobra.Command, svc *session.Service, res session.Result) error {
	if !res.Success {
		return errors.New(res.Error)
	}
	u, _ := svc.User()
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s> (%s)\n", u.DisplayName, u.Email, u.Role)
	return nil
}
