package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"checkcx/internal/types"
)

// geminiBaseURL keeps the endpoint as-is; Gemini's base stays "…/v1beta"
// per spec, the model is appended to the streaming path at call time.
func geminiBaseURL(endpoint string) string {
	return strings.TrimSuffix(endpoint, "/")
}

func (r *Registry) probeGemini(ctx context.Context, cfg types.ProviderConfig) types.CheckResult {
	endpoint := cfg.EffectiveEndpoint()
	baseURL := geminiBaseURL(endpoint)
	headers := buildHeaders(cfg)
	client := r.clientFor(baseURL, cfg.APIKey, headers)

	body := map[string]any{
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]string{{"text": "hi"}},
			},
		},
		"generationConfig": map[string]any{
			"maxOutputTokens": 1,
			"temperature":     0,
		},
	}
	mergeMetadata(body, cfg)

	payload, err := json.Marshal(body)
	if err != nil {
		return r.resultFor(cfg, types.StatusFailed, nil, msgUnknown, nil)
	}

	url := baseURL + "/models/" + cfg.Model + ":streamGenerateContent?alt=sse&key=" + cfg.APIKey

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return r.resultFor(cfg, types.StatusFailed, nil, msgUnknown, nil)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	applyHeaders(req, headers)

	resp, err := client.Do(req)
	if err != nil {
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
		return r.resultFor(cfg, types.StatusFailed, nil, classifyTransportError(event.Error), nil)
	}
	if event.Done && event.Data == nil {
		return r.resultFor(cfg, types.StatusFailed, nil, msgUnknown, nil)
	}

	status := classify(elapsed)
	return r.resultFor(cfg, status, &elapsed, messageFor(status, elapsed), nil)
}
