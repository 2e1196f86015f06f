package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/scratch-engine/internal/api"
	"github.com/atmx/scratch-engine/internal/asset"
	"github.com/atmx/scratch-engine/internal/config"
	"github.com/atmx/scratch-engine/internal/ledger"
	"github.com/atmx/scratch-engine/internal/limits"
	"github.com/atmx/scratch-engine/internal/metrics"
	"github.com/atmx/scratch-engine/internal/rng"
	"github.com/atmx/scratch-engine/internal/scratch"
	"github.com/atmx/scratch-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := flag.String("config", os.Getenv("SCRATCH_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store and ledger ---
	var (
		st      store.Store
		l       ledger.Ledger
		reg     ledger.Registry
		cleanup []func()
	)

	if cfg.Database.URL != "" {
		if cfg.Database.Migrate {
			if err := store.Migrate(cfg.Database.URL); err != nil {
				slog.Error("database migration failed", "err", err)
				os.Exit(1)
			}
		}
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		l = ledger.NewPostgres(pool)
		reg = ledger.NewPostgresRegistry(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				slog.Error("invalid redis url", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.Redis.CacheTTL)
		}
	} else {
		slog.Warn("database url not set, using in-memory store and ledger (data will not persist)")
		st = store.NewMemoryStore()
		l = ledger.NewMemory()
		reg = ledger.NewMemoryRegistry()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Randomness ---
	src := rng.Crypto()
	if cfg.Game.RNGSeed != 0 {
		slog.Warn("using seeded rng, card outcomes are predictable", "seed", cfg.Game.RNGSeed)
		src = rng.NewSeeded(cfg.Game.RNGSeed)
	}

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run(ctx)

	// --- Scratch engine ---
	engine, err := scratch.New(st, l, reg, src, scratch.Config{
		Treasury:     cfg.Game.Treasury,
		DefaultAsset: asset.ID(cfg.Game.DefaultAsset),
		Cost:         cfg.Game.Cost,
	}, scratch.WithEventSink(wsHub))
	if err != nil {
		slog.Error("engine init failed", "err", err)
		os.Exit(1)
	}

	seed, err := config.SeedState(cfg.Game)
	if err != nil {
		slog.Error("invalid seed tables", "err", err)
		os.Exit(1)
	}
	state, err := engine.Bootstrap(ctx, seed)
	if err != nil {
		slog.Error("bootstrap failed", "err", err)
		os.Exit(1)
	}
	slog.Info("game state ready",
		"admin", state.Admin,
		"prize_tiers", state.Prizes.Len(),
		"win_odds", state.Prizes.Sum(),
		"secondary_tiers", state.Secondary.Len(),
		"cost", cfg.Game.Cost,
		"asset", cfg.Game.DefaultAsset,
	)

	// --- Purchase limits ---
	limiter := limits.NewPurchaseLimiter(cfg.Limits.MaxCardsPerPurchase, cfg.Limits.CardsPerSecond, cfg.Limits.Burst)
	limiter.StartPruning(time.Minute, ctx.Done())

	svc := api.NewService(engine, limiter, cfg.Server.DevFaucet)
	if cfg.Server.DevFaucet {
		slog.Warn("dev faucet enabled")
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+api.AccountHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"scratch-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for live card events. Kept outside the timeout
		// middleware so long-lived connections survive.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			svc.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("scratch-engine listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down scratch-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("scratch-engine stopped")
}
