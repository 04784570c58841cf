package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github/martinmaurice/llmgate/internal/bootstrap"
	"github/martinmaurice/llmgate/pkg/config"
	"github/martinmaurice/llmgate/pkg/enum"
	"github/martinmaurice/llmgate/pkg/env"
	"github/martinmaurice/llmgate/pkg/ledger"
)

type app struct {
	tokenSecret string
	openLedger  func(ctx context.Context) (*ledger.Service, func() error, error)
	migrate     func(ctx context.Context) error
}

func wireApp(envFile string) (*app, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	spec, err := env.Load()
	if err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	slog.SetDefault(bootstrap.NewLogger(os.Stderr, spec))

	cfg, err := config.Load(spec.ConfigFile)
	if err != nil {
		return nil, err
	}

	return &app{
		tokenSecret: spec.AuthTokenSecret,
		openLedger: func(ctx context.Context) (*ledger.Service, func() error, error) {
			if cfg.Ledger.Backend == enum.MemoryBackend {
				return nil, nil, fmt.Errorf("%w: gatewayctl needs a redis or postgres ledger backend", bootstrap.ErrConfiguration)
			}
			store, closeStore, err := bootstrap.NewLedgerStore(ctx, cfg.Ledger.Backend, spec, false)
			if err != nil {
				return nil, nil, err
			}
			return ledger.NewService(store, cfg.Ledger), closeStore, nil
		},
		migrate: func(ctx context.Context) error {
			if cfg.Ledger.Backend != enum.PostgresBackend {
				return fmt.Errorf("%w: migrations only apply to the postgres ledger backend", bootstrap.ErrConfiguration)
			}
			db, err := bootstrap.OpenPostgres(ctx, spec.DatabaseUrl)
			if err != nil {
				return err
			}
			defer db.Close()
			return ledger.RunMigrations(ctx, db)
		},
	}, nil
}

// withLedger opens the ledger for the duration of fn.
func (a *app) withLedger(ctx context.Context, fn func(svc *ledger.Service) error) error {
	svc, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLedger(); err != nil {
			slog.Warn("could not close the ledger store", "error", err)
		}
	}()
	return fn(svc)
}
