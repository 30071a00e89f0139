package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"meridian/config"
	"meridian/core/types"
	"meridian/crypto"
	"meridian/native/lending"
	"meridian/services/poold"
	"meridian/storage"
)

func main() {
	configPath := flag.String("config", "./poold.toml", "Path to the daemon configuration file.")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("poold exited", "err", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	authority, err := cfg.AuthorityAddress()
	if err != nil {
		return err
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "pool"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	store := lending.NewStore(db)
	engine := lending.NewEngine()
	engine.SetState(store)
	engine.SetDebtOverrideEnabled(cfg.EnableDebtOverride)
	engine.SetEventSink(func(ev *types.Event) {
		logger.Info("event", "type", ev.Type, "attributes", ev.Attributes)
	})

	if err := bootstrap(engine, store, cfg, authority, logger); err != nil {
		return err
	}

	server, err := poold.New(poold.Config{
		Engine:            engine,
		Logger:            logger,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.RequestBurst,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("poold listening", "addr", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// bootstrap creates the pool and seeds genesis balances on first start. An
// existing pool is left untouched so restarts never reapply genesis.
func bootstrap(engine *lending.Engine, store *lending.Store, cfg *config.Config, authority crypto.Address, logger *slog.Logger) error {
	existing, err := store.GetPool()
	if err != nil {
		return fmt.Errorf("read pool: %w", err)
	}
	if existing != nil {
		logger.Info("pool already initialised", "owner", existing.Owner.String())
		return nil
	}

	if err := engine.Initialize(authority, cfg.Lending); err != nil {
		return fmt.Errorf("initialise pool: %w", err)
	}
	balances, order, err := cfg.GenesisBalances()
	if err != nil {
		return err
	}
	for _, addr := range order {
		account := &types.Account{BalanceStable: balances[string(addr.Bytes())]}
		account.EnsureDefaults()
		if err := store.PutAccount(addr, account); err != nil {
			return fmt.Errorf("seed account %s: %w", addr, err)
		}
		logger.Info("seeded genesis account", "address", addr.String(), "balance", account.BalanceStable)
	}
	logger.Info("pool initialised", "authority", authority.String(), "accounts", len(order))
	return nil
}
