package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/config"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/alecthomas/kong"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// unmatchedEndpoint agrupa as rotas sem regra: passam só pelo gate global.
const unmatchedEndpoint = "*"

type CLI struct {
	ListenAddr      string        `name:"listen-addr" env:"LISTEN_ADDR" default:":8080" help:"Endereço do proxy."`
	UpstreamURL     string        `name:"upstream-url" env:"UPSTREAM_URL" required:"" help:"URL do serviço protegido."`
	RateLimitConfig string        `name:"config" env:"RATE_LIMIT_CONFIG" help:"Arquivo YAML com as estratégias por endpoint."`
	TrustXFF        bool          `name:"trust-xff" env:"TRUST_XFF" help:"Usa o primeiro IP do X-Forwarded-For."`
	AddHeaders      bool          `name:"add-ratelimit-headers" env:"ADD_RATELIMIT_HEADERS" help:"Adiciona X-RateLimit-* nas respostas."`
	RejectStatus    int           `name:"reject-status" env:"REJECT_STATUS" default:"503" help:"Status HTTP das recusas."`
	RetryAfter      time.Duration `name:"retry-after" env:"RETRY_AFTER" default:"1s" help:"Valor do Retry-After nas recusas."`
	MetricsAddr     string        `name:"metrics-addr" env:"METRICS_ADDR" default:":9090" help:"Endereço do /metrics (vazio desliga)."`
	LogLevel        string        `name:"log-level" env:"LOG_LEVEL" default:"info" help:"debug, info, warn, error."`

	Stats StatsFlags `embed:"" prefix:"rate-stats-" envprefix:"RATE_STATS_"`
}

type StatsFlags struct {
	Enabled       bool          `name:"enabled" env:"ENABLED" help:"Grava as decisões no Redis."`
	RedisAddr     string        `name:"redis-addr" env:"REDIS_ADDR"`
	RedisPassword string        `name:"redis-password" env:"REDIS_PASSWORD"`
	RedisDB       int           `name:"redis-db" env:"REDIS_DB" default:"0"`
	Prefix        string        `name:"prefix" env:"PREFIX" default:"admission:stats"`
	TTL           time.Duration `name:"ttl" env:"TTL" default:"24h"`
	Bucket        string        `name:"bucket" env:"BUCKET" default:"minute" enum:"minute,none"`
	TrackKeys     bool          `name:"track-keys" env:"TRACK_KEYS"`
}

func (s StatsFlags) validate() error {
	if s.Enabled && strings.TrimSpace(s.RedisAddr) == "" {
		return errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("gateway"),
		kong.Description("Reverse proxy com admission control por endpoint."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(cli.Stats.validate())

	logger, err := newLogger(cli.LogLevel)
	kctx.FatalIfErrorf(err)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cli, logger); err != nil {
		logger.Fatal("gateway stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(ctx context.Context, cli CLI, logger *zap.Logger) error {
	target, err := url.Parse(cli.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	cfg, err := loadConfig(cli.RateLimitConfig)
	if err != nil {
		return err
	}

	registry := infra.NewRegistry(cfg.DefaultQPS, logger.Named("ratelimit"))
	container := application.NewContainer()
	registrar := application.Registrar{Container: container, Resolver: registry, Logger: logger.Named("ratelimit")}
	if err := registrar.RegisterAll(ratelimit.DefaultNamespace, cfg.HTTPRules()); err != nil {
		return err
	}
	if len(cfg.RPC) > 0 {
		logger.Info("ignoring rpc rules, the gateway only proxies http", zap.Int("rules", len(cfg.RPC)))
	}

	limiters, err := registry.Global(cfg.Global.QPS, cfg.Global.IPQPS, cfg.Global.IPCapacity, cfg.Global.IPIdle)
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := infra.NewPrometheusMetrics(promReg, "")
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	stats := infra.MultiStats{metrics}
	if cli.Stats.Enabled {
		redisStats, closeRedis, err := newRedisStats(ctx, cli.Stats)
		if err != nil {
			return err
		}
		defer closeRedis()
		stats = append(stats, redisStats)
	}

	gate := &application.Gate{
		Global:     application.NewGlobalGate(cfg.Global.AcquireTimeout, limiters...),
		Container:  container,
		Stats:      stats,
		Latency:    metrics,
		RetryAfter: cli.RetryAfter,
		Logger:     logger.Named("gate"),
	}

	limit := ratelimit.Middleware(ratelimit.Options{
		Gate:                gate,
		HeaderKeys:          registry.HeaderKeys(),
		TrustXForwardedFor:  cli.TrustXFF,
		RejectStatus:        cli.RejectStatus,
		AddRateLimitHeaders: cli.AddHeaders,
		Logger:              logger.Named("http"),
	})

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	srv := &http.Server{
		Addr:              cli.ListenAddr,
		Handler:           newRouter(cfg, limit, proxy),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	janitors := registry.StartJanitors(gctx)

	servers := []*http.Server{srv}
	g.Go(func() error { return serve(srv) })

	if cli.MetricsAddr != "" {
		metricsSrv := &http.Server{
			Addr:              cli.MetricsAddr,
			Handler:           promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		servers = append(servers, metricsSrv)
		g.Go(func() error { return serve(metricsSrv) })
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var err error
		for _, s := range servers {
			err = multierr.Append(err, s.Shutdown(shutdownCtx))
		}
		return err
	})

	logger.Info("gateway listening",
		zap.String("addr", cli.ListenAddr),
		zap.Stringer("upstream", target),
		zap.Int("endpoints", container.Len()),
		zap.Float64("default_qps", cfg.DefaultQPS),
		zap.Float64("global_qps", cfg.Global.QPS),
		zap.Float64("global_ip_qps", cfg.Global.IPQPS),
		zap.Duration("acquire_timeout", cfg.Global.AcquireTimeout),
		zap.Int("janitors", janitors),
		zap.Bool("trust_xff", cli.TrustXFF),
		zap.Bool("stats_redis", cli.Stats.Enabled),
		zap.String("metrics_addr", cli.MetricsAddr),
	)

	return g.Wait()
}

// newRouter liga cada path configurado ao seu endpoint; o resto cai no
// endpoint sem regra.
func newRouter(cfg config.Config, limit func(string) func(http.Handler) http.Handler, upstream http.Handler) http.Handler {
	r := chi.NewRouter()
	for _, rule := range cfg.HTTP {
		for _, path := range rule.Paths {
			r.With(limit(rule.Endpoint)).Handle(path, upstream)
		}
	}
	r.With(limit(unmatchedEndpoint)).Handle("/*", upstream)
	return r
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", srv.Addr, err)
	}
	return nil
}

func newRedisStats(ctx context.Context, f StatsFlags) (domain.StatsStore, func(), error) {
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{f.RedisAddr},
		Password: f.RedisPassword,
		DB:       f.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis stats ping: %w", err)
	}

	store := infra.NewRedisStatsStore(rdb,
		infra.WithStatsPrefix(f.Prefix),
		infra.WithStatsTTL(f.TTL),
		infra.WithStatsBucket(f.Bucket),
		infra.WithStatsTrackKeys(f.TrackKeys),
	)
	return store, func() { _ = rdb.Close() }, nil
}
