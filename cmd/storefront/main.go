package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/catalog"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/gateway"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/httpx"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/links"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/metrics"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/ratelimit"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/session"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/store"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/telemetry"
)

// Server is the storefront BFF: it owns the catalog engine and the request
// middleware, and serves the browse API plus operational endpoints.
type Server struct {
	Catalog  *catalog.Service
	Sessions *session.Verifier
	Guard    *ratelimit.Guard
	Metrics  *metrics.Registry
	Config   Config
}

type storefrontInitTelemetryFunc func(ctx context.Context, service string) (func(context.Context) error, error)
type storefrontOpenRedisFunc func(ctx context.Context, addr string) (*redis.Client, error)
type storefrontListenFunc func(server *http.Server) error

// Testable variables for main()
var (
	logFatalf       = log.Fatalf
	initTelemetryFn = telemetry.Init
	openRedisFn     = store.NewRedis
	listenFn        = func(server *http.Server) error { return server.ListenAndServe() }
)

func main() {
	if err := runStorefront(initTelemetryFn, openRedisFn, listenFn); err != nil {
		logFatalf("storefront: %v", err)
	}
}

func runStorefront(
	initTelemetry storefrontInitTelemetryFunc,
	openRedis storefrontOpenRedisFunc,
	listen storefrontListenFunc,
) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	shutdown, err := initTelemetry(ctx, "storefront")
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	redisClient, err := openRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Printf("redis unavailable, falling back to in-memory cache/limits: %v", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	s := buildServer(ctx, cfg, redisClient)

	log.Printf("storefront listening on %s (gateway %s)", cfg.Addr, cfg.GatewayURL)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: time.Second * time.Duration(cfg.ReadHeaderTimeoutSec),
		ReadTimeout:       time.Second * time.Duration(cfg.ReadTimeoutSec),
		WriteTimeout:      time.Second * time.Duration(cfg.WriteTimeoutSec),
		IdleTimeout:       time.Second * time.Duration(cfg.IdleTimeoutSec),
	}
	if listen == nil {
		return errors.New("listen function required")
	}
	return listen(server)
}

func buildServer(ctx context.Context, cfg Config, redisClient *redis.Client) *Server {
	reg := metrics.NewRegistry()

	httpClient := telemetry.InstrumentClient(&http.Client{
		Timeout: time.Millisecond * time.Duration(cfg.GatewayTimeoutMS),
	})
	gw := gateway.NewClient(cfg.GatewayURL, httpClient)
	gw.AuthHeader = cfg.GatewayAuthHeader
	gw.AuthToken = cfg.GatewayAuthToken
	gw.Retries = cfg.GatewayRetries
	gw.RetryDelay = time.Millisecond * time.Duration(cfg.GatewayRetryDelayMS)

	cache := store.NewResultCache(ctx, redisClient, cfg.CacheMaxEntries)

	svc := catalog.NewService(gw, cache, links.NewGenerator(cfg.BasePath), reg)
	svc.Logger = log.Default()
	if cfg.CacheTTLSec > 0 {
		svc.TTL = time.Second * time.Duration(cfg.CacheTTLSec)
	}

	verifier := session.NewVerifier(cfg.SessionMode, cfg.SessionSecret,
		session.WithJWKS(cfg.SessionJWKSURL),
		session.WithIssuer(cfg.SessionIssuer),
		session.WithAudience(cfg.SessionAudience),
		session.WithTimeout(time.Millisecond*time.Duration(cfg.SessionTimeoutMS)),
	)

	var guard *ratelimit.Guard
	if cfg.RateLimitEnabled && cfg.RateLimitPerMinute > 0 {
		window := time.Second * time.Duration(cfg.RateLimitWindowSec)
		if window <= 0 {
			window = time.Minute
		}
		var limiter ratelimit.Limiter
		if redisClient != nil {
			limiter = ratelimit.NewRedis(redisClient, window)
		} else {
			limiter = ratelimit.NewInMemory(window)
		}
		guard = ratelimit.NewGuard(limiter, cfg.RateLimitPerMinute)
		guard.TrustedProxyCIDRs = ratelimit.ParseTrustedProxies(cfg.TrustedProxyCIDRs)
	}

	return &Server{
		Catalog:  svc,
		Sessions: verifier,
		Guard:    guard,
		Metrics:  reg,
		Config:   cfg,
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(httpx.RequestIDMiddleware)
	r.Use(httpx.CORSMiddleware(s.Config.CORSAllowedOrigins))
	r.Use(httpx.SecurityHeadersMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(telemetry.HTTPMiddleware("storefront"))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.Metrics.Handler())
	r.Get("/metrics/prometheus", s.Metrics.PrometheusHandler())

	api := chi.NewRouter()
	if s.Guard != nil {
		api.Use(s.Guard.Middleware)
	}
	api.Use(s.Sessions.Middleware(s.Metrics.IncInvalidSession))
	api.Get("/catalog", s.handleCatalog)
	api.Get("/items/{id}", s.handleItem)
	api.Get("/items/{id}/warp", s.handleItemWarp)
	r.Mount(s.Config.BasePath, api)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(statusCode int) {
	s.code = statusCode
	s.ResponseWriter.WriteHeader(statusCode)
}

// metricsMiddleware observes every request under its route pattern, so item
// detail traffic aggregates as one endpoint instead of one per item id.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: 200}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		endpoint := r.Method + " " + path
		s.Metrics.Observe(endpoint, rec.code, elapsed)
		s.Metrics.ObserveLatency(endpoint, elapsed)
	})
}
