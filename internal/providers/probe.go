// Package providers implements the minimal streaming health probe for each
// supported vendor (OpenAI-compatible, Gemini, Anthropic), sharing a single
// contract: probe(config) always resolves to a CheckResult, never an error.
package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"checkcx/internal/metrics"
	"checkcx/internal/ping"
	"checkcx/internal/types"
)

const (
	// ProbeTimeout is the overall deadline for a single probe, covering
	// transport connect and the first streamed event.
	ProbeTimeout = 45 * time.Second

	// DegradedThresholdMs is the elapsed-time boundary above which a
	// successful probe is reported as degraded rather than operational.
	DegradedThresholdMs = 6000

	userAgent = "check-cx/0.1.0"

	msgTimeout     = "请求超时"
	msgMaintenance = "配置处于维护模式"
	msgUnknown     = "未知错误"
)

// Probe resolves a single ProviderConfig into a CheckResult. It never
// returns an error; failures are encoded into the result itself.
type Probe interface {
	Probe(ctx context.Context, cfg types.ProviderConfig) types.CheckResult
}

// Registry hands out one Probe per ProviderType and caches the underlying
// *http.Client per (baseURL, apiKey, stable header hash) tuple, so repeated
// probes against the same target reuse connections.
type Registry struct {
	logger  *zap.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewRegistry builds a Registry. logger may be zap.NewNop() in tests. m may
// be nil, in which case probes run unmetered.
func NewRegistry(logger *zap.Logger, m *metrics.Registry) *Registry {
	return &Registry{
		logger:  logger,
		metrics: m,
		clients: make(map[string]*http.Client),
	}
}

// Probe dispatches cfg to the vendor-specific implementation. Unknown
// provider types resolve to a failed CheckResult rather than a panic.
func (r *Registry) Probe(ctx context.Context, cfg types.ProviderConfig) types.CheckResult {
	if cfg.IsMaintenance {
		return r.resultFor(cfg, types.StatusMaintenance, nil, msgMaintenance, nil)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	var pingLatency *int64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pingLatency = ping.MeasureEndpointPing(ctx, cfg.EffectiveEndpoint())
	}()

	var result types.CheckResult
	switch cfg.Type {
	case types.ProviderOpenAI:
		result = r.probeOpenAI(ctx, cfg)
	case types.ProviderGemini:
		result = r.probeGemini(ctx, cfg)
	case types.ProviderAnthropic:
		result = r.probeAnthropic(ctx, cfg)
	default:
		result = r.resultFor(cfg, types.StatusFailed, nil, msgUnknown, nil)
	}

	wg.Wait()
	result.PingLatencyMs = pingLatency
	r.record(cfg.Type, result, time.Since(start))
	return result
}

func (r *Registry) record(providerType types.ProviderType, result types.CheckResult, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.ProbesTotal.WithLabelValues(string(providerType), string(result.Status)).Inc()
	r.metrics.ProbeDuration.WithLabelValues(string(providerType)).Observe(elapsed.Seconds())
	if result.LatencyMs != nil {
		r.metrics.ProbeLatencyMs.WithLabelValues(string(providerType)).Observe(float64(*result.LatencyMs))
	}
}

// clientFor returns the cached *http.Client for the tuple, creating one on
// first use.
func (r *Registry) clientFor(baseURL, apiKey string, headers map[string]string) *http.Client {
	key := clientKey(baseURL, apiKey, headers)

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[key]; ok {
		return c
	}

	c := &http.Client{
		Timeout: ProbeTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	r.clients[key] = c
	return c
}

func clientKey(baseURL, apiKey string, headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(baseURL)
	b.WriteByte('|')
	b.WriteString(apiKey)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(headers[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// buildHeaders merges the default User-Agent with the config's overlay,
// config entries taking precedence.
func buildHeaders(cfg types.ProviderConfig) map[string]string {
	headers := map[string]string{"User-Agent": userAgent}
	for k, v := range cfg.RequestHeaders {
		headers[k] = v
	}
	return headers
}

func applyHeaders(req *http.Request, headers map[string]string) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

// classify converts an elapsed probe time into a HealthStatus per the
// 6000ms degraded threshold.
func classify(elapsedMs int64) types.HealthStatus {
	if elapsedMs > DegradedThresholdMs {
		return types.StatusDegraded
	}
	return types.StatusOperational
}

func messageFor(status types.HealthStatus, elapsedMs int64) string {
	switch status {
	case types.StatusDegraded:
		return fmt.Sprintf("响应成功但耗时 %d ms", elapsedMs)
	case types.StatusOperational:
		return fmt.Sprintf("流式响应正常 (%d ms)", elapsedMs)
	default:
		return msgUnknown
	}
}

func (r *Registry) resultFor(cfg types.ProviderConfig, status types.HealthStatus, latencyMs *int64, message string, pingLatency *int64) types.CheckResult {
	return types.CheckResult{
		ID:            cfg.ID,
		Name:          cfg.Name,
		Type:          cfg.Type,
		Endpoint:      cfg.EffectiveEndpoint(),
		Model:         cfg.Model,
		Status:        status,
		LatencyMs:     latencyMs,
		PingLatencyMs: pingLatency,
		CheckedAt:     time.Now().UTC(),
		Message:       message,
		GroupName:     cfg.GroupName,
	}
}

// mergeMetadata shallow-merges cfg.Metadata into body, config fields never
// overriding the required probe fields already set.
func mergeMetadata(body map[string]any, cfg types.ProviderConfig) {
	for k, v := range cfg.Metadata {
		if _, exists := body[k]; !exists {
			body[k] = v
		}
	}
}
