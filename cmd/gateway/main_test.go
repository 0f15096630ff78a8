package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/config"
	"admission-gateway/middleware/ratelimit/infra"
)

func TestNewRouter_MapsPathsToEndpoints(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader(`
http:
  - endpoint: GetNowBlock
    strategy: preemptible
    params: permit=1
    paths: ["/wallet/getnowblock"]
`))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	container := application.NewContainer()
	reg := application.Registrar{Container: container, Resolver: infra.NewRegistry(cfg.DefaultQPS, nil)}
	if err := reg.RegisterAll(ratelimit.DefaultNamespace, cfg.HTTPRules()); err != nil {
		t.Fatalf("register: %v", err)
	}
	stats := infra.NewMemoryStatsStore()
	gate := &application.Gate{Container: container, Stats: stats}

	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := newRouter(cfg, ratelimit.Middleware(ratelimit.Options{Gate: gate, AddRateLimitHeaders: true}), upstream)

	for _, path := range []string{"/wallet/getnowblock", "/wallet/getaccount"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "http://gw"+path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
	}

	byEndpoint := stats.ByEndpoint()
	if byEndpoint["http_GetNowBlock"].Allowed != 1 {
		t.Fatalf("expected GetNowBlock hit, got %+v", byEndpoint)
	}
	if byEndpoint["http_"+unmatchedEndpoint].Allowed != 1 {
		t.Fatalf("expected unmatched hit, got %+v", byEndpoint)
	}
}

func TestStatsFlags_RequireRedisAddr(t *testing.T) {
	if err := (StatsFlags{Enabled: true}).validate(); err == nil {
		t.Fatalf("expected error without redis addr")
	}
	if err := (StatsFlags{Enabled: true, RedisAddr: "localhost:6379"}).validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	if _, err := newLogger("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := newLogger("debug"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
