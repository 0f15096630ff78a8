package infra

import (
	"context"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRegistry_BuildsEveryKnownStrategy(t *testing.T) {
	r := NewRegistry(100, nil)

	qps, err := r.New("qps", "qps=5.0")
	require.NoError(t, err)
	require.IsType(t, &QpsAdapter{}, qps)
	assert.Equal(t, 5.0, qps.(*QpsAdapter).Strategy().QPS())

	ip, err := r.New("ip_qps", "qps=2,capacity=50,idle=10m")
	require.NoError(t, err)
	require.IsType(t, &IPQpsAdapter{}, ip)
	assert.Equal(t, 50, ip.(*IPQpsAdapter).Strategy().Store().Capacity())

	pre, err := r.New("preemptible", "permit=2")
	require.NoError(t, err)
	require.IsType(t, &PreemptibleAdapter{}, pre)
	assert.Equal(t, 2, pre.(*PreemptibleAdapter).Strategy().Capacity())
	_, isPreemptible := pre.(domain.Preemptible)
	assert.True(t, isPreemptible)
}

func TestRegistry_QpsDefaultsToGlobalDefault(t *testing.T) {
	r := NewRegistry(42, nil)

	rl, err := r.New("qps", "")
	require.NoError(t, err)
	assert.Equal(t, 42.0, rl.(*QpsAdapter).Strategy().QPS())

	rl, err = r.New("preemptible", "")
	require.NoError(t, err)
	assert.Equal(t, 1, rl.(*PreemptibleAdapter).Strategy().Capacity())
}

func TestRegistry_UnknownStrategy(t *testing.T) {
	r := NewRegistry(100, nil)

	_, err := r.New("DoesNotExist", "qps=1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
	assert.Contains(t, err.Error(), "DoesNotExist")
}

func TestRegistry_InvalidResultingParamsFailConstruction(t *testing.T) {
	r := NewRegistry(100, nil)

	_, err := r.New("preemptible", "permit=0")
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = r.New("qps", "qps=-3")
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestRegistry_MalformedParamIsLoggedAndDefaulted(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewRegistry(7, zap.New(core))

	rl, err := r.New("qps", "qps=lots")
	require.NoError(t, err)
	assert.Equal(t, 7.0, rl.(*QpsAdapter).Strategy().QPS())
	assert.Equal(t, 1, logs.FilterMessageSnippet("malformed").Len())
}

func TestRegistry_DefaultIsQpsAdapter(t *testing.T) {
	r := NewRegistry(9, nil)

	rl, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, StrategyQps, rl.(domain.Named).Name())
	assert.Equal(t, 9.0, rl.(*QpsAdapter).Strategy().QPS())

	_, err = NewRegistry(0, nil).Default()
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestRegistry_Names(t *testing.T) {
	assert.Equal(t, []string{"header_qps", "ip_qps", "preemptible", "qps"}, NewRegistry(1, nil).Names())
}

func TestRegistry_StartJanitorsCoversKeyedStrategies(t *testing.T) {
	r := NewRegistry(100, nil)
	_, err := r.New("ip_qps", "idle=1ms")
	require.NoError(t, err)
	_, err = r.New("qps", "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, 1, r.StartJanitors(ctx))
}

func TestAdapters_DispatchKeyComesFromRuntimeData(t *testing.T) {
	s, err := NewKeyedQpsStrategy(0.01, 10, time.Hour)
	require.NoError(t, err)
	a := NewIPQpsAdapter(s)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	rd1 := domain.NewRuntimeData("GET", "/", "1.1.1.1", nil)
	rd2 := domain.NewRuntimeData("GET", "/", "2.2.2.2", nil)
	assert.True(t, a.Acquire(ctx, rd1))
	assert.True(t, a.Acquire(ctx, rd2))
	assert.False(t, a.Acquire(ctx, rd1))
}

func TestPreemptibleAdapter_ReleaseFreesSlot(t *testing.T) {
	s, err := NewPreemptibleStrategy(1)
	require.NoError(t, err)
	a := NewPreemptibleAdapter(s)

	var rd domain.RuntimeData
	require.True(t, a.Acquire(context.Background(), rd))
	require.False(t, a.Acquire(context.Background(), rd))
	a.Release()
	assert.True(t, a.Acquire(context.Background(), rd))
}

func TestRegistry_GlobalOrdersPerIPFirst(t *testing.T) {
	r := NewRegistry(100, nil)

	only, err := r.Global(500, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.IsType(t, &QpsAdapter{}, only[0])

	both, err := r.Global(500, 5, 100, time.Minute)
	require.NoError(t, err)
	require.Len(t, both, 2)
	assert.IsType(t, &IPQpsAdapter{}, both[0])
	assert.IsType(t, &QpsAdapter{}, both[1])

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.Equal(t, 1, r.StartJanitors(ctx))

	_, err = r.Global(0, 0, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestHeaderQpsAdapter_KeysOnHeaderThenClientIP(t *testing.T) {
	r := NewRegistry(100, nil)
	rl, err := r.New("header_qps", "qps=0.01,header=x-client-id")
	require.NoError(t, err)
	require.IsType(t, &HeaderQpsAdapter{}, rl)
	a := rl.(*HeaderQpsAdapter)
	assert.Equal(t, "X-Client-Id", a.Header())
	assert.Equal(t, []string{"X-Client-Id"}, r.HeaderKeys())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	keyA := map[string][]string{"X-Client-Id": {"A"}}
	keyB := map[string][]string{"X-Client-Id": {"B"}}
	// mesmo IP, chaves diferentes: buckets independentes
	assert.True(t, a.Acquire(ctx, domain.NewRuntimeData("GET", "/", "1.1.1.1", keyA)))
	assert.True(t, a.Acquire(ctx, domain.NewRuntimeData("GET", "/", "1.1.1.1", keyB)))
	assert.False(t, a.Acquire(ctx, domain.NewRuntimeData("GET", "/", "2.2.2.2", keyA)))

	// sem header cai no IP, que não compartilha bucket com a chave "A"
	assert.True(t, a.Acquire(ctx, domain.NewRuntimeData("GET", "/", "1.1.1.1", nil)))
	assert.False(t, a.Acquire(ctx, domain.NewRuntimeData("GET", "/", "1.1.1.1", nil)))
}

func TestHeaderQpsAdapter_DefaultHeader(t *testing.T) {
	r := NewRegistry(100, nil)
	rl, err := r.New("header_qps", "")
	require.NoError(t, err)
	assert.Equal(t, "X-Api-Key", rl.(*HeaderQpsAdapter).Header())
	assert.Equal(t, []string{"X-Api-Key"}, r.HeaderKeys())
	assert.Empty(t, NewRegistry(100, nil).HeaderKeys())
}

func TestRegistry_AcceptsLegacyAdapterNames(t *testing.T) {
	r := NewRegistry(100, nil)

	cases := map[string]string{
		"QpsRateLimiterAdapter":    "qps",
		"DefaultBaseQqsAdapter":    "qps",
		"IPQPSRateLimiterAdapter":  "ip_qps",
		"GlobalPreemptibleAdapter": "preemptible",
	}
	for legacy, want := range cases {
		rl, err := r.New(legacy, "")
		require.NoError(t, err, legacy)
		assert.Equal(t, want, rl.(domain.Named).Name(), legacy)
	}
}
