package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bcnelson/webscenario-manager/internal/config"
	"github.com/bcnelson/webscenario-manager/internal/domain"
	"github.com/bcnelson/webscenario-manager/internal/logging"
	"github.com/bcnelson/webscenario-manager/internal/service"
	"github.com/bcnelson/webscenario-manager/internal/storage"
	"github.com/bcnelson/webscenario-manager/internal/storage/sql"
)

var (
	verbose bool
	cfg     *config.Config
	log     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "scenarioctl",
	Short: "Operate on web scenarios and template links",
	Long: `scenarioctl works directly on the web scenario database.

It applies migrations, links and unlinks templates and re-propagates
template scenarios to linked hosts. Hosts and templates may be given
by name or by id. Configuration comes from the same environment
variables as the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		log, err = logging.New(cfg.Log.Level, cfg.Log.Encoding)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if log != nil {
			_ = log.Sync()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// openService opens the configured database and returns a service over it.
// The caller closes the returned store.
func openService() (storage.Storage, *service.ScenarioService, error) {
	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return store, service.NewScenarioService(store, log, cfg.Inheritance.MaxDepth), nil
}

// resolveHost looks ref up as a host name first and as an id second.
func resolveHost(ctx context.Context, store storage.Storage, ref string) (*domain.Host, error) {
	host, err := store.GetHostByName(ctx, ref)
	if err == nil {
		return host, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	host, err = store.GetHost(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("host %q: %w", ref, err)
	}
	return host, nil
}
