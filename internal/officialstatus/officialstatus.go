// Package officialstatus implements the Official-Status Poller (C5):
// periodic vendor status-page fetches cached one OfficialStatusResult per
// ProviderType, shared across replicas via Redis.
package officialstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"checkcx/internal/logging"
	"checkcx/internal/metrics"
	"checkcx/internal/types"
)

const (
	fetchTimeout   = 15 * time.Second
	redisKeyPrefix = "checkcx:official-status:"
	redisTTL       = 24 * time.Hour

	// lockKey and lockTTL guard the cross-replica fetch: only the replica
	// that wins the SET NX performs this tick's fetch, the rest reload
	// their local cache from the values already stored in Redis.
	lockKey = redisKeyPrefix + "lock"
	lockTTL = 30 * time.Second

	msgCheckTimeout = "检查超时"
	msgCheckFailed  = "检查失败"
)

// endpoints maps each provider type to its public status-page JSON.
// Anthropic and OpenAI serve the statuspage.io summary shape parsed below.
// Google's incidents.json is a JSON array, which does not decode into that
// shape, so the Gemini fetch resolves to unknown with msgCheckFailed.
var endpoints = map[types.ProviderType]string{
	types.ProviderAnthropic: "https://status.anthropic.com/api/v2/summary.json",
	types.ProviderOpenAI:    "https://status.openai.com/api/v2/summary.json",
	types.ProviderGemini:    "https://status.cloud.google.com/incidents.json",
}

// Poller is the Official-Status Poller (C5).
type Poller struct {
	client  *http.Client
	redis   *redis.Client
	logger  *zap.Logger
	metrics *metrics.Registry
	interval time.Duration

	mu    sync.RWMutex
	cache map[types.ProviderType]types.OfficialStatusResult

	running int32
	cancel  context.CancelFunc
	once    sync.Once
}

// New builds a Poller. logger may be zap.NewNop() in tests. m may be nil.
func New(rdb *redis.Client, interval time.Duration, logger *zap.Logger, m *metrics.Registry) *Poller {
	return &Poller{
		client:   &http.Client{Timeout: fetchTimeout},
		redis:    rdb,
		logger:   logger,
		metrics:  m,
		interval: interval,
		cache:    make(map[types.ProviderType]types.OfficialStatusResult),
	}
}

// GetOfficialStatus returns the cached value for t, or false if none has
// been fetched yet.
func (p *Poller) GetOfficialStatus(t types.ProviderType) (types.OfficialStatusResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.cache[t]
	return v, ok
}

// EnsureRunning starts the background timer if none exists yet, triggering
// an immediate first run asynchronously. Calling it any number of times
// has the same effect as calling it once.
func (p *Poller) EnsureRunning(ctx context.Context) {
	p.once.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		p.cancel = cancel
		go p.loop(runCtx)
	})
}

// Stop cancels the background timer, if running.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Poller) loop(ctx context.Context) {
	p.runOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

// runOnce skips the tick entirely if a run is already in flight in this
// process, then claims the cross-replica Redis lock so that, among replicas
// whose ticks fire within lockTTL of each other, only one actually fetches;
// the others reload their local cache from Redis. Ticks further apart than
// lockTTL each fetch on their own.
func (p *Poller) runOnce(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&p.running, 0)

	if !p.acquireLock(ctx) {
		// Another replica holds this tick: refresh the local mirror from
		// the values it stored in Redis.
		for t := range endpoints {
			payload, err := p.redis.Get(ctx, redisKeyPrefix+string(t)).Bytes()
			if err != nil {
				continue
			}
			var result types.OfficialStatusResult
			if json.Unmarshal(payload, &result) == nil {
				p.mu.Lock()
				p.cache[t] = result
				p.mu.Unlock()
			}
		}
		return
	}

	var wg sync.WaitGroup
	for providerType := range endpoints {
		wg.Add(1)
		go func(t types.ProviderType) {
			defer wg.Done()
			result := p.fetchOne(ctx, t)
			p.recordFetch(t, result)
			p.store(ctx, t, result)
		}(providerType)
	}
	wg.Wait()
}

// acquireLock claims lockKey via Redis SET NX EX for this tick. With no
// Redis client configured it returns true unconditionally, leaving the
// in-process atomic guard as the only concurrency control (single-replica
// and test setups). A Redis error also degrades to true rather than
// skipping the fetch outright: a missed cross-replica dedup is cheaper than
// every replica going dark on a Redis hiccup.
func (p *Poller) acquireLock(ctx context.Context) bool {
	if p.redis == nil {
		return true
	}
	ok, err := p.redis.SetNX(ctx, lockKey, "1", lockTTL).Result()
	if err != nil {
		p.logger.Warn("officialstatus: lock acquire failed", zap.Error(err), logging.KindStorage.Field())
		return true
	}
	return ok
}

func (p *Poller) recordFetch(t types.ProviderType, result types.OfficialStatusResult) {
	if p.metrics == nil {
		return
	}
	p.metrics.OfficialStatusFetchesTotal.WithLabelValues(string(t), string(result.Status)).Inc()
}

func (p *Poller) store(ctx context.Context, t types.ProviderType, result types.OfficialStatusResult) {
	p.mu.Lock()
	p.cache[t] = result
	p.mu.Unlock()

	if p.redis == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := p.redis.Set(ctx, redisKeyPrefix+string(t), payload, redisTTL).Err(); err != nil {
		p.logger.Warn("officialstatus: redis set failed", zap.Error(err), logging.KindStorage.Field())
	}
}

func (p *Poller) fetchOne(ctx context.Context, t types.ProviderType) types.OfficialStatusResult {
	endpoint, ok := endpoints[t]
	if !ok {
		return unknownResult(msgCheckFailed)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return unknownResult(msgCheckFailed)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return unknownResult(msgCheckTimeout)
		}
		return unknownResult(msgCheckFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unknownResult(fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	var page statusPageSummary
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return unknownResult(msgCheckFailed)
	}

	return parseSummary(page)
}

func unknownResult(message string) types.OfficialStatusResult {
	return types.OfficialStatusResult{
		Status:    types.OfficialUnknown,
		Message:   message,
		CheckedAt: time.Now().UTC(),
	}
}

// statusPageSummary is the statuspage.io-shaped summary.json response:
// an overall indicator plus a flat list of named components each with
// their own status string.
type statusPageSummary struct {
	Status struct {
		Indicator   string `json:"indicator"`
		Description string `json:"description"`
	} `json:"status"`
	Components []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"components"`
}

func parseSummary(page statusPageSummary) types.OfficialStatusResult {
	status := indicatorToStatus(page.Status.Indicator)

	var affected []string
	for _, c := range page.Components {
		componentStatus := strings.ToLower(c.Status)
		switch {
		case strings.Contains(componentStatus, "outage") || componentStatus == "major_outage":
			status = types.OfficialDown
			affected = append(affected, c.Name)
		case strings.Contains(componentStatus, "degraded"):
			if status != types.OfficialDown {
				status = types.OfficialDegraded
			}
			affected = append(affected, c.Name)
		}
	}

	result := types.OfficialStatusResult{
		Status:    status,
		Message:   page.Status.Description,
		CheckedAt: time.Now().UTC(),
	}
	if len(affected) > 0 {
		result.AffectedComponents = affected
		result.Message = affectedComponentsMessage(affected)
	}
	return result
}

func indicatorToStatus(indicator string) types.OfficialHealthStatus {
	switch strings.ToLower(indicator) {
	case "none":
		return types.OfficialOperational
	case "minor":
		return types.OfficialDegraded
	case "major", "critical":
		return types.OfficialDown
	default:
		return types.OfficialUnknown
	}
}

func affectedComponentsMessage(names []string) string {
	if len(names) > 3 {
		return fmt.Sprintf("%s, %s, %s 等 %d 个组件 受影响", names[0], names[1], names[2], len(names))
	}
	return strings.Join(names, ", ") + " 受影响"
}
