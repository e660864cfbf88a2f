// Package snapshot implements the Snapshot Service (C6): per-scope
// coalesced refresh over the Provider Probes and History Store, with a
// freshness window that skips re-probing when the last run is recent
// enough.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"checkcx/internal/metrics"
	"checkcx/internal/types"
)

// HistoryStore is the subset of *history.Store the Snapshot Service needs.
type HistoryStore interface {
	Fetch(ctx context.Context, allowedIds []uuid.UUID) (types.HistorySnapshot, error)
	Append(ctx context.Context, results []types.CheckResult)
}

// Prober is the subset of *providers.Registry the Snapshot Service needs.
type Prober interface {
	Probe(ctx context.Context, cfg types.ProviderConfig) types.CheckResult
}

// RefreshMode controls whether loadSnapshot enters the refresh path.
type RefreshMode string

const (
	// RefreshAlways unconditionally refreshes before returning.
	RefreshAlways RefreshMode = "always"
	// RefreshMissing refreshes only if active ids exist and stored
	// history is empty.
	RefreshMissing RefreshMode = "missing"
	// RefreshNever is read-only; it never advances scope state.
	RefreshNever RefreshMode = "never"
)

// Scope identifies one cacheable view: a stable key plus the active
// configs driving a potential refresh.
type Scope struct {
	Key          string
	Configs      []types.ProviderConfig
	PollInterval time.Duration
}

// ScopeKey derives the stable cache/singleflight key for a set of config
// ids and a poll interval, so callers never have to hand-assemble it.
func ScopeKey(prefix string, ids []uuid.UUID, pollInterval time.Duration) string {
	if len(ids) == 0 {
		return prefix + ":__empty__"
	}
	sorted := make([]string, len(ids))
	for i, id := range ids {
		sorted[i] = id.String()
	}
	sort.Strings(sorted)
	h := sha256.Sum256([]byte(strings.Join(sorted, "|")))
	return prefix + ":" + pollInterval.String() + ":" + hex.EncodeToString(h[:])[:16]
}

type entry struct {
	lastPingAt time.Time
	history    types.HistorySnapshot
}

// Service is the Snapshot Service (C6).
type Service struct {
	history  HistoryStore
	registry Prober
	logger   *zap.Logger
	metrics  *metrics.Registry

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
}

// New builds a Service. logger may be zap.NewNop() in tests. m may be nil.
func New(store HistoryStore, registry Prober, logger *zap.Logger, m *metrics.Registry) *Service {
	return &Service{
		history:  store,
		registry: registry,
		logger:   logger,
		metrics:  m,
		entries:  make(map[string]*entry),
	}
}

// LoadSnapshot returns the scope's history, refreshing it first per mode.
// singleflight.Group coalesces concurrent refreshes on the same scope key,
// so "at-most-one inflight per scope" falls out of group.Do rather than a
// hand-rolled inflight flag.
func (s *Service) LoadSnapshot(ctx context.Context, scope Scope, mode RefreshMode) (types.HistorySnapshot, error) {
	if len(scope.Configs) == 0 {
		return types.HistorySnapshot{}, nil
	}

	e := s.entryFor(scope.Key)

	if !s.entersRefreshPath(e, mode) {
		return e.snapshotOrEmpty(), nil
	}

	s.mu.Lock()
	fresh := e.history != nil && time.Since(e.lastPingAt) < scope.PollInterval
	s.mu.Unlock()
	if fresh {
		return e.snapshotOrEmpty(), nil
	}

	// singleflight reports shared=true to the leader too whenever others
	// joined, so the leader is identified by having run the function.
	executed := false
	result, err, _ := s.group.Do(scope.Key, func() (any, error) {
		executed = true
		return s.refresh(ctx, scope, e)
	})
	s.recordRefresh(scope.Key, !executed)
	if err != nil {
		return e.snapshotOrEmpty(), nil
	}
	return result.(types.HistorySnapshot), nil
}

func (s *Service) recordRefresh(key string, coalesced bool) {
	if s.metrics == nil {
		return
	}
	label := key
	if i := strings.Index(key, ":"); i >= 0 {
		label = key[:i]
	}
	if coalesced {
		s.metrics.RefreshCoalesced.WithLabelValues(label).Inc()
		return
	}
	s.metrics.RefreshesTotal.WithLabelValues(label).Inc()
}

func (s *Service) entersRefreshPath(e *entry, mode RefreshMode) bool {
	switch mode {
	case RefreshAlways:
		return true
	case RefreshMissing:
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(e.history) == 0
	default:
		return false
	}
}

func (e *entry) snapshotOrEmpty() types.HistorySnapshot {
	if e == nil || e.history == nil {
		return types.HistorySnapshot{}
	}
	return e.history
}

func (s *Service) entryFor(key string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

// refresh probes every active config concurrently, appends the results,
// re-reads the scoped history, and updates the cache entry.
func (s *Service) refresh(ctx context.Context, scope Scope, e *entry) (types.HistorySnapshot, error) {
	results := make([]types.CheckResult, len(scope.Configs))
	var wg sync.WaitGroup
	for i, cfg := range scope.Configs {
		wg.Add(1)
		go func(i int, cfg types.ProviderConfig) {
			defer wg.Done()
			results[i] = s.registry.Probe(ctx, cfg)
		}(i, cfg)
	}
	wg.Wait()

	s.history.Append(ctx, results)

	ids := make([]uuid.UUID, len(scope.Configs))
	for i, cfg := range scope.Configs {
		ids[i] = cfg.ID
	}
	snap, _ := s.history.Fetch(ctx, ids)

	s.mu.Lock()
	e.history = snap
	e.lastPingAt = time.Now().UTC()
	s.mu.Unlock()

	return snap, nil
}
