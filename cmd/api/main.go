package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/catalog"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/common"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/config"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/customer"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/estimate"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/events"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/health"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/money"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/notify"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/obs"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/ratelimit"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/rules"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "estimator")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "estimator-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.Migrate(migrateURL(cfg.DatabaseURL)); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "estimator-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	queries := store.New(pool)
	validate := validator.New()

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Queries: queries,
		Cache:   catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService, Validate: validate})

	ruleSvc := &rules.Service{Q: queries}
	ruleHandler := &rules.Handler{Svc: ruleSvc, Validate: validate}

	customerHandler := &customer.Handler{Svc: customer.NewService(queries), Validate: validate}

	var taskClient *asynq.Client
	var dispatcher *notify.Dispatcher
	if cfg.WebhookDeliveryEnabled {
		redisConn, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis uri for asynq")
		}
		taskClient = asynq.NewClient(redisConn)
		defer func() {
			if err := taskClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close task client")
			}
		}()
		dispatcher = &notify.Dispatcher{
			Q:        queries,
			Tasks:    taskClient,
			MaxRetry: cfg.WebhookMaxAttempts,
			Timeout:  cfg.WebhookRequestTimeout,
		}
	}
	bus := &events.Bus{Store: queries}
	if dispatcher != nil {
		bus.Scheduler = dispatcher
	}

	defaultTaxRate, ok := money.FromString(cfg.DefaultTaxRate)
	if !ok {
		logger.Fatal().Str("value", cfg.DefaultTaxRate).Msg("parse default tax rate")
	}
	estimateSvc := &estimate.Service{
		Q:              estimate.NewQuerier(queries),
		Pool:           pool,
		Events:         bus,
		NumberPrefix:   cfg.EstimateNumberPrefix,
		DefaultTaxRate: defaultTaxRate,
		ValidityDays:   cfg.EstimateValidityDays,
	}
	estimateHandler := &estimate.Handler{Svc: estimateSvc, Validate: validate}

	notifyAdmin := &notify.AdminHandler{Q: queries, Validate: validate}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	limiterStore, err := ratelimit.NewStore(redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise limiter store")
	}
	limit := ratelimit.New(limiterStore, limiter.Rate{
		Period: time.Minute,
		Limit:  int64(cfg.RateLimitPerMinute),
	})
	limit.OnError = func(err error) {
		logger.Error().Err(err).Msg("rate limiter")
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      health.Probes{Pool: pool, Redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(limit.Middleware)

		v.Route("/services", func(s chi.Router) {
			s.Get("/", catalogHandler.List)
			s.Get("/{serviceID}", catalogHandler.Get)
			s.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/", catalogHandler.Create)
				g.Put("/{serviceID}", catalogHandler.Update)
			})
		})

		v.Route("/price-rules", func(p chi.Router) {
			p.Get("/", ruleHandler.List)
			p.Get("/{ruleID}", ruleHandler.Get)
			p.Post("/preview", ruleHandler.Preview)
			p.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/", ruleHandler.Create)
				g.Put("/{ruleID}", ruleHandler.Update)
				g.Delete("/{ruleID}", ruleHandler.Delete)
			})
		})

		v.Route("/customers", func(c chi.Router) {
			c.Get("/", customerHandler.List)
			c.Get("/{customerID}", customerHandler.Get)
			c.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/", customerHandler.Create)
				g.Put("/{customerID}", customerHandler.Update)
				g.Delete("/{customerID}", customerHandler.Delete)
			})
		})

		v.Route("/estimates", func(e chi.Router) {
			e.Get("/", estimateHandler.List)
			e.Get("/{estimateID}", estimateHandler.Get)
			e.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/", estimateHandler.Create)
				g.Post("/{estimateID}/lines", estimateHandler.AddLine)
				g.Put("/{estimateID}/lines/{lineID}", estimateHandler.UpdateLine)
				g.Delete("/{estimateID}/lines/{lineID}", estimateHandler.RemoveLine)
				g.Post("/{estimateID}/lines/reorder", estimateHandler.ReorderLines)
				g.Post("/{estimateID}/charges", estimateHandler.AddCharge)
				g.Put("/{estimateID}/charges/{chargeID}", estimateHandler.UpdateCharge)
				g.Delete("/{estimateID}/charges/{chargeID}", estimateHandler.RemoveCharge)
				g.Put("/{estimateID}/pricing", estimateHandler.UpdatePricing)
				g.Put("/{estimateID}/notes", estimateHandler.UpdateNotes)
				g.Post("/{estimateID}/send", estimateHandler.Send)
				g.Post("/{estimateID}/accept", estimateHandler.Accept)
				g.Post("/{estimateID}/cancel", estimateHandler.Cancel)
				g.Post("/{estimateID}/expire", estimateHandler.Expire)
				g.Post("/{estimateID}/duplicate", estimateHandler.Duplicate)
			})
		})

		v.Route("/webhooks", func(wh chi.Router) {
			wh.Get("/", notifyAdmin.List)
			wh.Get("/{endpointID}", notifyAdmin.Get)
			wh.Get("/{endpointID}/deliveries", notifyAdmin.Deliveries)
			wh.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/", notifyAdmin.Create)
				g.Put("/{endpointID}", notifyAdmin.Update)
				g.Delete("/{endpointID}", notifyAdmin.Delete)
			})
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

// migrateURL rewrites the pool URL onto the scheme golang-migrate's pgx v5
// driver registers under.
func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
		}
	}
	return databaseURL
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

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

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
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

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="pprof"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
