package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	// Exemplo: o gate dentro do próprio servidor (sem proxy), HTTP e gRPC
	// compartilhando o mesmo container e o mesmo gate global.
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Fatal("example server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	registry := infra.NewRegistry(100, logger)
	container := application.NewContainer()
	registrar := application.Registrar{Container: container, Resolver: registry, Logger: logger}

	err := registrar.RegisterAll(ratelimit.DefaultNamespace, []application.EndpointRule{
		{Endpoint: "GetNowBlock", Strategy: infra.StrategyPreemptible, Params: "permit=1"},
		{Endpoint: "GetAccount", Strategy: infra.StrategyHeaderQps, Params: "qps=5,capacity=1000,idle=10m,header=X-Api-Key"},
	})
	if err != nil {
		return err
	}
	err = registrar.Register(ratelimit.DefaultRPCNamespace, application.EndpointRule{
		Endpoint: healthpb.Health_Check_FullMethodName,
		Strategy: infra.StrategyQps,
		Params:   "qps=50",
	})
	if err != nil {
		return err
	}

	limiters, err := registry.Global(1000, 0, 0, 0)
	if err != nil {
		return err
	}
	gate := &application.Gate{
		Global:    application.NewGlobalGate(2*time.Second, limiters...),
		Container: container,
		Stats:     infra.NewMemoryStatsStore(),
		Logger:    logger,
	}

	limit := ratelimit.Middleware(ratelimit.Options{
		Gate:                gate,
		TrustXForwardedFor:  true,
		HeaderKeys:          registry.HeaderKeys(),
		AddRateLimitHeaders: true,
		Logger:              logger,
	})

	r := chi.NewRouter()
	r.With(limit("GetNowBlock")).Get("/wallet/getnowblock", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("block\n"))
	})
	r.With(limit("GetAccount")).Get("/wallet/getaccount", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("account\n"))
	})
	// sem regra: só o gate global
	r.With(limit("Ping")).Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong\n"))
	})

	httpAddr := getenvDefault("LISTEN_ADDR", ":8081")
	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	rpcAddr := getenvDefault("GRPC_ADDR", ":9091")
	lis, err := net.Listen("tcp", rpcAddr)
	if err != nil {
		return err
	}
	rpcOpts := ratelimit.InterceptorOptions{Gate: gate, HeaderKeys: registry.HeaderKeys(), Logger: logger}
	gsrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(ratelimit.UnaryServerInterceptor(rpcOpts)),
		grpc.ChainStreamInterceptor(ratelimit.StreamServerInterceptor(rpcOpts)),
	)
	healthpb.RegisterHealthServer(gsrv, health.NewServer())

	g, gctx := errgroup.WithContext(ctx)
	registry.StartJanitors(gctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return gsrv.Serve(lis) })
	g.Go(func() error {
		<-gctx.Done()
		gsrv.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("example server listening", zap.String("http", httpAddr), zap.String("grpc", rpcAddr))
	return g.Wait()
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
