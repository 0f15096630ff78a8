package infra

import (
	"context"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

const statsBucketMinute = "minute"

// RedisStatsStore grava contadores de decisão em hashes do Redis.
// Só estatística: o estado de admissão continua local ao processo.
//
// Chaves (com o prefixo padrão "admission:stats"):
//
//	<prefix>:total               allowed / denied
//	<prefix>:minute:YYYYMMDDhhmm allowed / denied (expira em ttl)
//	<prefix>:endpoint            <namespace><endpoint>:allowed|denied
//	<prefix>:reason              <reason> (apenas recusas)
//	<prefix>:route               "<METHOD> <path>:allowed|denied"
//	<prefix>:key:<key>           allowed / denied (opcional, expira em ttl)
type RedisStatsStore struct {
	// UniversalClient aceita cliente simples, cluster ou sentinel.
	rdb redis.UniversalClient

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "admission:stats",
		ttl:    24 * time.Hour,
		bucket: statsBucketMinute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.key("total"), field, 1)

	if s.bucket == statsBucketMinute {
		s.incrExpiring(ctx, pipe, s.key("minute", at.UTC().Format("200601021504")), field)
	}

	if ev.Endpoint != "" {
		pipe.HIncrBy(ctx, s.key("endpoint"), ev.Namespace+ev.Endpoint+":"+field, 1)
	}

	if !ev.Allowed && ev.Reason != "" {
		pipe.HIncrBy(ctx, s.key("reason"), ev.Reason, 1)
	}

	if route := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path)); route != "" {
		pipe.HIncrBy(ctx, s.key("route"), route+":"+field, 1)
	}

	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			s.incrExpiring(ctx, pipe, s.key("key", k), field)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatsStore) incrExpiring(ctx context.Context, pipe redis.Pipeliner, key, field string) {
	pipe.HIncrBy(ctx, key, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

func (s *RedisStatsStore) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}
