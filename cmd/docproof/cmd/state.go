package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmcleod/docproof/config"
	"github.com/jmcleod/docproof/storage"
	"github.com/jmcleod/docproof/storage/authstore"
	bboltbackend "github.com/jmcleod/docproof/storage/bbolt"
	"github.com/jmcleod/docproof/storage/memory"
)

// openStore opens the configured backend and registers the seed contracts
// that are not stored yet.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*authstore.Store, error) {
	var backend storage.Backend
	switch cfg.Storage.Backend {
	case "memory":
		backend = memory.New()
	case "bbolt":
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		b, err := bboltbackend.NewFromFile(cfg.Storage.Path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open state storage: %w", err)
		}
		backend = b
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	store := authstore.New(backend, authstore.WithLogger(logger))
	if err := seedContracts(ctx, store, cfg.Storage.Contracts, logger); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func seedContracts(ctx context.Context, store *authstore.Store, seeds []config.ContractSeed, logger *slog.Logger) error {
	for _, seed := range seeds {
		id, err := seed.ContractID()
		if err != nil {
			return err
		}
		_, err = store.Get(ctx, storage.ContractPath(id), storage.ContractStorageKey, nil)
		var nf *storage.NotFoundError
		switch {
		case err == nil:
			continue
		case !errors.As(err, &nf):
			return fmt.Errorf("reading contract %s: %w", id, err)
		}
		raw, err := os.ReadFile(seed.File)
		if err != nil {
			return fmt.Errorf("reading contract %s: %w", id, err)
		}
		if err := store.RegisterContract(ctx, id, raw, nil); err != nil {
			return fmt.Errorf("registering contract %s: %w", id, err)
		}
		logger.Info("contract registered", "contract_id", id.String(), "bytes", len(raw))
	}
	return nil
}
