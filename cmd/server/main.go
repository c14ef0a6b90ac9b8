package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	rgsdb "github.com/Ashenafi-pixel/gamecrafter-round-engine"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/config"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/events"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/games"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/logger"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/platform"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/round"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/server"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/wallet"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool
	root := &cobra.Command{
		Use:           "rgs",
		Short:         "Round engine for crash, lottery, drop and instant games",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env so DATABASE_URL is set: cwd .env, or project root .env/.env.local
			_ = godotenv.Load(".env")
			_ = godotenv.Load("../.env")
			_ = godotenv.Load("../.env.local")
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			logger.Init(&logger.Options{Level: level, TimeFormat: time.RFC3339})
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logs")
	root.AddCommand(newServeCmd(), newSeedCmd(), newUsersCmd(), newTablesCmd(), newWatchCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if port > 0 {
				cfg.RGSPort = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := serve(ctx, cfg); err != nil {
				logger.L().Error("RGS stopped", "err", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides PORT/RGS_PORT)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.L()
	gs, err := config.LoadGameStore(cfg.GameConfigPath)
	if err != nil {
		return fmt.Errorf("load game config: %w", err)
	}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	ledger := wallet.NewLedger(store)

	// Stakes of rounds that never settled before the last shutdown go back.
	journal := round.NewJournal(cfg.DataDir)
	refunded, err := journal.Recover(ctx, ledger)
	if len(refunded) > 0 {
		log.Warn("Refunded unsettled stakes", "count", len(refunded))
	}
	if err != nil {
		log.Error("Journal recovery incomplete", "err", err, "pending", len(journal.Pending()))
	}

	results := round.NewResultsStore(cfg.DataDir, nil)
	var sink round.Sink = results
	if cfg.NATSURL != "" {
		pub, err := events.Connect(cfg.NATSURL, cfg.NATSSubject, log)
		if err != nil {
			log.Warn("Publishing disabled", "err", err)
		} else {
			defer pub.Close()
			sink = round.Tee(results, pub)
			log.Info("Publishing settled rounds", "subject", cfg.NATSSubject+".*")
		}
	}

	registry := games.NewRegistry(cfg.Games)
	if db, err := rgsdb.GetDB(); err == nil {
		if n, err := registry.LoadFromDB(ctx, db); err != nil {
			log.Warn("Game catalog not loaded", "err", err)
		} else {
			log.Info("Game catalog loaded", "rows", n)
		}
	} else if !errors.Is(err, rgsdb.ErrNoDatabase) {
		log.Warn("Database unavailable", "err", err)
	}

	srv := server.New(server.Options{
		Config:   cfg,
		Games:    gs,
		Registry: registry,
		Ledger:   ledger,
		Results:  results,
		Sink:     sink,
		Journal:  journal,
		Logger:   log,
	})
	defer srv.Close()
	return srv.Run(ctx)
}

// openStore selects the Balance Store from cfg.BalanceStore.
func openStore(ctx context.Context, cfg *config.Config) (wallet.Store, func(), error) {
	noop := func() {}
	switch cfg.BalanceStore {
	case config.StoreMemory:
		return wallet.NewMemory(), noop, nil
	case config.StoreBadger:
		b, err := wallet.NewBadgerStore(cfg.BadgerDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open badger store %s: %w", cfg.BadgerDir, err)
		}
		return b, func() { _ = b.Close() }, nil
	case config.StorePostgres:
		db, err := rgsdb.GetDB()
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		p := wallet.NewPostgresStore(db)
		if err := p.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		return p, func() { _ = db.Close() }, nil
	case config.StorePlatform:
		c := platform.NewClient(cfg.PlatformURL, cfg.PlatformToken).WithSecret(cfg.PlatformSecret)
		return c, noop, nil
	}
	return nil, nil, fmt.Errorf("unknown balance store %q", cfg.BalanceStore)
}
