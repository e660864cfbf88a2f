package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"checkcx/internal/types"
)

var abortedMessagePattern = regexp.MustCompile(`(?i)request was aborted`)

// anthropicBaseURL strips a trailing "/v1/messages" from the configured
// endpoint, since the probe re-appends it itself.
func anthropicBaseURL(endpoint string) string {
	return strings.TrimSuffix(endpoint, "/v1/messages")
}

func (r *Registry) probeAnthropic(ctx context.Context, cfg types.ProviderConfig) types.CheckResult {
	endpoint := cfg.EffectiveEndpoint()
	baseURL := anthropicBaseURL(endpoint)
	headers := buildHeaders(cfg)
	client := r.clientFor(baseURL, cfg.APIKey, headers)

	body := map[string]any{
		"model":      cfg.Model,
		"max_tokens": 1,
		"messages": []map[string]string{
			{"role": "user", "content": "hi"},
		},
		"stream": true,
	}
	mergeMetadata(body, cfg)

	payload, err := json.Marshal(body)
	if err != nil {
		return r.resultFor(cfg, types.StatusFailed, nil, msgUnknown, nil)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return r.resultFor(cfg, types.StatusFailed, nil, msgUnknown, nil)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Cache-Control", "no-cache")
	applyHeaders(req, headers)

	resp, err := client.Do(req)
	if err != nil {
		if abortedMessagePattern.MatchString(err.Error()) {
			return r.resultFor(cfg, types.StatusFailed, nil, msgTimeout, nil)
		}
		return r.resultFor(cfg, types.StatusFailed, nil, classifyTransportError(err), nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return r.resultFor(cfg, types.StatusFailed, nil, httpStatusMessage(resp.StatusCode), nil)
	}

	sr := NewStreamReader(resp.Body)
	defer sr.Close()

	event := sr.Next()
	elapsed := time.Since(start).Milliseconds()

	if event.Error != nil {
		if abortedMessagePattern.MatchString(event.Error.Error()) {
			return r.resultFor(cfg, types.StatusFailed, nil, msgTimeout, nil)
		}
		return r.resultFor(cfg, types.StatusFailed, nil, classifyTransportError(event.Error), nil)
	}
	if event.Done && event.Data == nil {
		return r.resultFor(cfg, types.StatusFailed, nil, msgUnknown, nil)
	}

	status := classify(elapsed)
	return r.resultFor(cfg, status, &elapsed, messageFor(status, elapsed), nil)
}
