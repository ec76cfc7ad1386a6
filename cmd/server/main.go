package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"tokengate/internal/captcha"
	"tokengate/internal/check"
	checkhandler "tokengate/internal/check/handler"
	checkmetrics "tokengate/internal/check/metrics"
	"tokengate/internal/platform/config"
	"tokengate/internal/platform/httpserver"
	"tokengate/internal/platform/logger"
	"tokengate/internal/platform/postgres"
	platformredis "tokengate/internal/platform/redis"
	"tokengate/internal/rules"
	ruleshandler "tokengate/internal/rules/handler"
	rulesstore "tokengate/internal/rules/store"
	"tokengate/internal/session"
	"tokengate/internal/stats"
	httptransport "tokengate/internal/transport/http"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := captcha.ForName(cfg.Provider, cfg.DefaultScore)
	if err != nil {
		return err
	}

	// Stats are off unless enabled; with no brokers configured events go to
	// the structured log instead of Kafka.
	var sink stats.Sink = stats.NewSlogSink(log)
	if cfg.StatsEnabled && len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := stats.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		sink = kafkaSink
	}
	recorder := stats.NewRecorder(cfg.StatsEnabled, sink, log, stats.WithAsyncBuffer(1024))
	defer recorder.Close()

	verifier, err := captcha.NewVerifier(provider, cfg.SecretKey,
		captcha.WithVerifyURL(cfg.VerifyURL),
		captcha.WithTimeout(cfg.VerifyTimeout),
		captcha.WithStats(recorder),
	)
	if err != nil {
		return err
	}

	var health []httptransport.HealthCheck

	// Rule storage: postgres when configured, in-memory otherwise.
	var ruleStore rules.Store = rulesstore.NewMemory()
	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()

		pgStore := rulesstore.NewPostgres(db)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return err
		}
		ruleStore = pgStore
		health = append(health, httptransport.HealthCheck{
			Name:  "postgres",
			Check: func() error { return db.PingContext(context.Background()) },
		})
		log.Info("rule storage", "backend", "postgres")
	} else {
		log.Warn("no postgres DSN configured, rules are held in memory")
	}

	// Session stash: redis when configured, in-memory otherwise.
	var sessions session.Store = session.NewMemoryStore()
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessions = session.NewRedisStore(redisClient)
		health = append(health, httptransport.HealthCheck{
			Name:  "redis",
			Check: func() error { return redisClient.Health(context.Background()) },
		})
		log.Info("session stash", "backend", "redis")
	}

	ruleSvc, err := rules.New(ruleStore, provider, cfg.DefaultScore, rules.WithLogger(log))
	if err != nil {
		return err
	}

	checkSvc, err := check.New(verifier, ruleSvc,
		check.WithSessionStore(sessions, cfg.SessionTTL),
		check.WithStats(recorder),
		check.WithMetrics(checkmetrics.New()),
		check.WithLogger(log),
	)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Check:      checkhandler.New(checkSvc, cfg.CheckEnabled, cfg.TrustedProxies, log),
		Rules:      ruleshandler.New(ruleSvc, log),
		AdminToken: cfg.AdminToken,
		Health:     health,
		Logger:     log,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting tokengate", "addr", cfg.Addr, "provider", provider.Name(), "check_enabled", cfg.CheckEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := recorder.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return httpserver.Shutdown(srv)
	})

	return g.Wait()
}
