package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yolodolo42/scwkeyring/internal/bundler"
	"github.com/yolodolo42/scwkeyring/internal/chain"
	"github.com/yolodolo42/scwkeyring/internal/config"
	"github.com/yolodolo42/scwkeyring/internal/keyring"
	"github.com/yolodolo42/scwkeyring/internal/logging"
	"github.com/yolodolo42/scwkeyring/internal/notify"
	"github.com/yolodolo42/scwkeyring/internal/router"
	"github.com/yolodolo42/scwkeyring/internal/state"
	"github.com/yolodolo42/scwkeyring/internal/userop"
)

// App is a fully wired keyring process.
type App struct {
	Config   *config.Config
	Registry *chain.Registry
	Store    state.Store
	Bundler  *bundler.Client
	Journal  *notify.Journal
	Keyring  *keyring.Keyring
	Router   *router.Router

	chains *chain.Client
}

// AppOptions replace process-level collaborators.
type AppOptions struct {
	// Reader replaces the RPC-backed chain client.
	Reader chain.Reader
	// Passphrase is asked when signer.passphrase is empty. Defaults to a
	// terminal prompt.
	Passphrase func() (string, error)
}

// NewApp opens state, the journal and the chain and bundler clients for cfg.
func NewApp(ctx context.Context, cfg *config.Config, opts AppOptions) (*App, error) {
	overrides, err := cfg.ChainOverrides()
	if err != nil {
		return nil, err
	}
	registry, err := chain.NewRegistry(overrides...)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	passphrase := cfg.Signer.Passphrase
	if passphrase == "" {
		ask := opts.Passphrase
		if ask == nil {
			ask = promptPassphrase
		}
		if passphrase, err = ask(); err != nil {
			return nil, err
		}
	}

	app := &App{Config: cfg, Registry: registry}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	if app.Store, err = state.Open(cfg.StateOptions()); err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}

	reader := opts.Reader
	if reader == nil {
		app.chains = chain.NewClient(registry)
		reader = app.chains
	}
	app.Bundler = bundler.New(registry, cfg.BundlerConfig())

	notifiers := notify.Multi{notify.NewLog()}
	if cfg.Journal.Enabled {
		if app.Journal, err = notify.OpenJournal(cfg.DataDir); err != nil {
			return nil, err
		}
		notifiers = append(notifiers, app.Journal)
	}

	policy := cfg.RetryPolicy()
	app.Keyring, err = keyring.New(ctx, keyring.Deps{
		Store:    app.Store,
		Registry: registry,
		Builder:  userop.NewBuilder(registry, reader, policy, cfg.ChainCallTimeout),
		Signer:   userop.NewEngine(registry, reader, policy, cfg.ChainCallTimeout),
		Bundler:  app.Bundler,
		Notifier: notifiers,
	}, keyring.Config{
		DefaultChainID: cfg.ActiveChainID(),
		Passphrase:     passphrase,
		Scrypt:         cfg.ScryptParams(),
	})
	if err != nil {
		return nil, err
	}

	app.Router = router.New(router.Logging(), router.NewKeyringHandler(app.Keyring))
	ok = true
	log.Debug().
		Str("data_dir", cfg.DataDir).
		Str("backend", cfg.State.Backend).
		Uint64("chain_id", cfg.ActiveChainID()).
		Msg("keyring ready")
	return app, nil
}

// Close locks the signer and releases every connection.
func (a *App) Close() error {
	if a.Keyring != nil {
		a.Keyring.Close()
	}
	if a.Bundler != nil {
		a.Bundler.Close()
	}
	if a.chains != nil {
		a.chains.Close()
	}
	var errList []error
	if a.Journal != nil {
		errList = append(errList, a.Journal.Close())
	}
	if a.Store != nil {
		errList = append(errList, a.Store.Close())
	}
	return errors.Join(errList...)
}

// loadConfig decodes the viper state and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp runs fn against an App built from the command's configuration.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := NewApp(ctx, cfg, AppOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn().Err(err).Msg("close keyring")
		}
	}()
	return fn(ctx, app)
}
