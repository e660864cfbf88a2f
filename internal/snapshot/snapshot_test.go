package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"checkcx/internal/types"
)

type fakeHistory struct {
	mu         sync.Mutex
	appendCalls int32
	stored     types.HistorySnapshot
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{stored: types.HistorySnapshot{}}
}

func (f *fakeHistory) Fetch(ctx context.Context, allowedIds []uuid.UUID) (types.HistorySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := types.HistorySnapshot{}
	for _, id := range allowedIds {
		if items, ok := f.stored[id]; ok {
			out[id] = items
		}
	}
	return out, nil
}

func (f *fakeHistory) Append(ctx context.Context, results []types.CheckResult) {
	atomic.AddInt32(&f.appendCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range results {
		f.stored[r.ID] = append(f.stored[r.ID], r)
	}
}

type fakeProber struct {
	calls int32
	delay time.Duration
}

func (f *fakeProber) Probe(ctx context.Context, cfg types.ProviderConfig) types.CheckResult {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	latency := int64(100)
	return types.CheckResult{
		ID:        cfg.ID,
		Status:    types.StatusOperational,
		LatencyMs: &latency,
		CheckedAt: time.Now().UTC(),
	}
}

func TestLoadSnapshot_EmptyScopeShortCircuits(t *testing.T) {
	svc := New(newFakeHistory(), &fakeProber{}, zap.NewNop(), nil)
	snap, err := svc.LoadSnapshot(context.Background(), Scope{Key: "empty"}, RefreshAlways)
	assert.NoError(t, err)
	assert.Empty(t, snap)
}

func TestLoadSnapshot_AlwaysProbesEveryCall(t *testing.T) {
	prober := &fakeProber{}
	svc := New(newFakeHistory(), prober, zap.NewNop(), nil)
	cfg := types.ProviderConfig{ID: uuid.New(), Type: types.ProviderOpenAI}
	// PollInterval 0 disables the freshness window, so "always" re-probes
	// every call regardless of how recently the scope last refreshed.
	scope := Scope{Key: "s1", Configs: []types.ProviderConfig{cfg}, PollInterval: 0}

	_, err := svc.LoadSnapshot(context.Background(), scope, RefreshAlways)
	assert.NoError(t, err)
	_, err = svc.LoadSnapshot(context.Background(), scope, RefreshAlways)
	assert.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&prober.calls))
}

func TestLoadSnapshot_MissingModeSkipsWhenHistoryPresent(t *testing.T) {
	prober := &fakeProber{}
	svc := New(newFakeHistory(), prober, zap.NewNop(), nil)
	cfg := types.ProviderConfig{ID: uuid.New(), Type: types.ProviderOpenAI}
	scope := Scope{Key: "s2", Configs: []types.ProviderConfig{cfg}, PollInterval: time.Hour}

	_, err := svc.LoadSnapshot(context.Background(), scope, RefreshMissing)
	assert.NoError(t, err)
	_, err = svc.LoadSnapshot(context.Background(), scope, RefreshMissing)
	assert.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&prober.calls))
}

func TestLoadSnapshot_NeverModeNeverProbes(t *testing.T) {
	prober := &fakeProber{}
	svc := New(newFakeHistory(), prober, zap.NewNop(), nil)
	cfg := types.ProviderConfig{ID: uuid.New(), Type: types.ProviderOpenAI}
	scope := Scope{Key: "s3", Configs: []types.ProviderConfig{cfg}, PollInterval: time.Hour}

	snap, err := svc.LoadSnapshot(context.Background(), scope, RefreshNever)
	assert.NoError(t, err)
	assert.Empty(t, snap)
	assert.Equal(t, int32(0), atomic.LoadInt32(&prober.calls))
}

func TestLoadSnapshot_FreshnessWindowSkipsReprobe(t *testing.T) {
	prober := &fakeProber{}
	svc := New(newFakeHistory(), prober, zap.NewNop(), nil)
	cfg := types.ProviderConfig{ID: uuid.New(), Type: types.ProviderOpenAI}
	scope := Scope{Key: "s4", Configs: []types.ProviderConfig{cfg}, PollInterval: time.Hour}

	_, err := svc.LoadSnapshot(context.Background(), scope, RefreshAlways)
	assert.NoError(t, err)

	// Within the freshness window, loadSnapshot should keep entering the
	// refresh path for "always" but short-circuit at the freshness check.
	_, err = svc.LoadSnapshot(context.Background(), scope, RefreshAlways)
	assert.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&prober.calls))
}

func TestLoadSnapshot_ConcurrentCallersCoalesce(t *testing.T) {
	prober := &fakeProber{delay: 50 * time.Millisecond}
	svc := New(newFakeHistory(), prober, zap.NewNop(), nil)
	cfg := types.ProviderConfig{ID: uuid.New(), Type: types.ProviderOpenAI}
	scope := Scope{Key: "s5", Configs: []types.ProviderConfig{cfg}, PollInterval: time.Hour}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.LoadSnapshot(context.Background(), scope, RefreshAlways)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&prober.calls))
}

func TestScopeKey_StableAcrossOrdering(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	k1 := ScopeKey("dashboard", []uuid.UUID{a, b}, time.Minute)
	k2 := ScopeKey("dashboard", []uuid.UUID{b, a}, time.Minute)
	assert.Equal(t, k1, k2)

	k3 := ScopeKey("dashboard", nil, time.Minute)
	assert.Equal(t, "dashboard:__empty__", k3)
}
