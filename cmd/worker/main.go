package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/config"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/estimate"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/money"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/notify"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/obs"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(envOrDefault("OBS_LOG_FORMAT", "json"), envOrDefault("OBS_LOG_LEVEL", "info")).
		With().Str("env", cfg.AppEnv).Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "estimator"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "estimator-worker"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	queries := store.New(pool)

	defaultTaxRate, ok := money.FromString(cfg.DefaultTaxRate)
	if !ok {
		logger.Fatal().Str("value", cfg.DefaultTaxRate).Msg("parse default tax rate")
	}
	estimateSvc := &estimate.Service{
		Q:              estimate.NewQuerier(queries),
		Pool:           pool,
		NumberPrefix:   cfg.EstimateNumberPrefix,
		DefaultTaxRate: defaultTaxRate,
		ValidityDays:   cfg.EstimateValidityDays,
	}

	sweepInterval := envDuration("ESTIMATE_EXPIRY_SWEEP_INTERVAL", time.Minute)
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				expired, err := estimateSvc.ExpireDue(ctx, 100)
				if err != nil {
					logger.Error().Err(err).Msg("expiry sweep failed")
					continue
				}
				if expired > 0 {
					logger.Info().Int("expired", expired).Msg("expired stale estimates")
				}
			}
		}
	}()

	if !cfg.WebhookDeliveryEnabled {
		logger.Info().Msg("webhook delivery disabled, running expiry sweep only")
		<-ctx.Done()
		logger.Info().Msg("worker shutting down")
		return
	}

	redisConn, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis uri for asynq")
	}

	deliverer := &notify.Deliverer{
		Q:      queries,
		Client: notify.HTTPClient(cfg.WebhookRequestTimeout, envBool("WEBHOOK_ALLOW_INSECURE_TLS", false)),
		Logger: logger,
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(notify.TaskWebhookDeliver, deliverer.HandleTask)

	srv := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: envInt("WORKER_CONCURRENCY", 10),
		Queues: map[string]int{
			notify.QueueWebhooks: 10,
		},
		Logger: asynqLogger{logger},
	})

	logger.Info().Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}

	<-ctx.Done()
	logger.Info().Msg("worker shutting down")
	srv.Shutdown()
}

// asynqLogger adapts zerolog to asynq's logger interface.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
