package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/tiergate/internal/auth"
	"github.com/af-corp/tiergate/internal/budget"
	"github.com/af-corp/tiergate/internal/config"
	"github.com/af-corp/tiergate/internal/gateway"
	"github.com/af-corp/tiergate/internal/profile"
	"github.com/af-corp/tiergate/internal/ratelimit"
	"github.com/af-corp/tiergate/internal/routing"
	"github.com/af-corp/tiergate/internal/telemetry"
	"github.com/af-corp/tiergate/internal/toolgate"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	channel := flag.String("channel", "http", "channel name this instance serves")
	flag.Parse()

	bootstrap := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(bootstrap)

	loader := config.NewLoader(*configDir, bootstrap)
	if err := loader.Load(); err != nil {
		bootstrap.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := loader.Watch(); err != nil {
		bootstrap.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()
	logger := buildLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	// PostgreSQL holds sender key metadata only; spend and rate state stay
	// in-process.
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (key auth will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (key cache disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	metrics := telemetry.NewMetrics(nil)

	persistPath := ""
	if cfg.Budget.Persist {
		persistPath = cfg.Budget.PersistPath
	}
	tracker := budget.NewTracker(budget.Config{
		GlobalDailyUSD:   cfg.Budget.GlobalDailyUSD,
		GlobalMonthlyUSD: cfg.Budget.GlobalMonthlyUSD,
		ResetHourUTC:     cfg.Budget.ResetHourUTC,
		PersistPath:      persistPath,
		SaveEvery:        cfg.Budget.SaveEvery,
	}, logger)
	if err := tracker.Load(); err != nil {
		logger.Error("failed to load ledger snapshot", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Window:            cfg.RateLimit.Window,
		GlobalLimit:       cfg.RateLimit.GlobalLimit,
		MaxTrackedSenders: cfg.RateLimit.MaxTrackedSenders,
	})

	// Router, resolver, and tool gate are rebuilt as a unit on config
	// reload; handlers read them through accessor funcs.
	var routerVal atomic.Pointer[routing.Router]
	var resolverVal atomic.Pointer[profile.Resolver]
	var gateVal atomic.Pointer[toolgate.Gate]

	rebuild := func() error {
		rcfg, err := loader.Tiers().RouterConfig()
		if err != nil {
			return err
		}
		rt := routing.NewRouter(rcfg,
			meteredCosts{t: tracker, m: metrics},
			meteredRates{l: limiter, m: metrics},
			logger,
		)

		perms := loader.Permissions()
		layers := perms.Layers()
		if th := loader.Tiers().Escalation.DefaultThreshold; th > 0 {
			layers.Global = withDefaultThreshold(layers.Global, th)
		}
		res := profile.NewResolver(layers, perms.OperatorChannel, rt.TierRank)

		policies := make(map[string]toolgate.Policy, len(perms.Tools))
		for name, tp := range perms.Tools {
			policies[name] = toolgate.Policy{
				MinLevel:          profile.Level(tp.MinLevel),
				RequiredExtension: tp.RequiredExtension,
			}
		}

		routerVal.Store(rt)
		resolverVal.Store(res)
		gateVal.Store(toolgate.NewGate(policies))
		return nil
	}
	if err := rebuild(); err != nil {
		logger.Error("failed to build routing tables", "error", err)
		os.Exit(1)
	}
	loader.OnReload(func() {
		if err := rebuild(); err != nil {
			logger.Error("config reload rejected", "error", err)
			return
		}
		logger.Info("routing tables reloaded")
	})

	keyStore := auth.NewCachedKeyStore(dbPool, rdb)
	handler := gateway.NewHandler(routerVal.Load, gateVal.Load, tracker, metrics)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/tiergate/v1/health", healthHandler)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(keyStore, resolverVal.Load, *channel))
		r.Post("/v1/route", handler.Route)
		r.Post("/v1/outcome", handler.Outcome)
		r.Post("/v1/toolcheck", handler.ToolCheck)

		r.Get("/admin/spend", handler.Spend)
		r.Post("/admin/budget/reset", handler.ResetBudget)
		r.Post("/admin/ledger/save", handler.SaveLedger)
	})

	if cfg.Telemetry.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("metrics listening", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("routerd starting", "addr", addr, "channel", *channel, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	if persistPath != "" {
		if err := tracker.Save(); err != nil {
			logger.Error("final ledger save failed", "error", err)
		}
	}
	logger.Info("routerd stopped")
}

// meteredCosts wraps the spend tracker with rejection metrics.
type meteredCosts struct {
	t *budget.Tracker
	m *telemetry.Metrics
}

func (c meteredCosts) Reserve(senderID string, estimatedCost, dailyLimit, monthlyLimit float64) budget.Result {
	res := c.t.Reserve(senderID, estimatedCost, dailyLimit, monthlyLimit)
	if !res.Allowed() {
		c.m.RecordBudgetRejection(res.String())
	}
	return res
}

func (c meteredCosts) Reconcile(senderID string, estimatedCost, actualCost float64) {
	c.t.Reconcile(senderID, estimatedCost, actualCost)
}

// meteredRates wraps the limiter with hit metrics by scope.
type meteredRates struct {
	l *ratelimit.Limiter
	m *telemetry.Metrics
}

func (r meteredRates) Check(senderID string, limit int) bool {
	ok, scope := r.l.CheckScope(senderID, limit)
	if !ok {
		r.m.RecordRateLimitHit(scope)
	}
	return ok
}

// withDefaultThreshold returns a copy of the global override seeded with the
// tier config's default escalation threshold when it carries none.
func withDefaultThreshold(global *profile.Override, th float64) *profile.Override {
	if global == nil {
		return &profile.Override{EscalationThreshold: &th}
	}
	if global.EscalationThreshold != nil {
		return global
	}
	g := *global
	g.EscalationThreshold = &th
	return &g
}

func buildLogger(tc config.TelemetryConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(tc.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(tc.LogFormat) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}
