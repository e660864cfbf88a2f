package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"checkcx/internal/types"
)

var reasoningModelPattern = regexp.MustCompile(`(?i)codex|\bgpt-5|\bo[1-9]|deepseek-r1|qwq`)

var directivePattern = regexp.MustCompile(`(?i)^(.*?)[@#](mini|minimal|low|medium|high)$`)

// parseModelDirective splits an inline "@effort"/"#effort" suffix off model,
// normalizing "mini" to "minimal". If no directive is present, it falls
// back to reasoningModelPattern to decide whether "medium" effort should be
// inferred. ok is false only when neither a directive nor the fallback
// pattern applies, in which case effort should be omitted entirely.
func parseModelDirective(model string) (base string, effort types.ReasoningEffort, ok bool) {
	if m := directivePattern.FindStringSubmatch(model); m != nil {
		base = m[1]
		effort = normalizeEffort(m[2])
		return base, effort, true
	}

	if reasoningModelPattern.MatchString(model) {
		return model, types.ReasoningMedium, true
	}

	return model, "", false
}

func normalizeEffort(raw string) types.ReasoningEffort {
	if strings.EqualFold(raw, "mini") {
		return types.ReasoningMinimal
	}
	return types.ReasoningEffort(strings.ToLower(raw))
}

// openAIBaseURL derives the chat-completions base URL per spec: trim the
// "/chat/completions" suffix, normalizing api.openai.com hosts to "/v1".
func openAIBaseURL(endpoint string) string {
	base := strings.TrimSuffix(endpoint, "/chat/completions")
	if strings.Contains(base, "api.openai.com") && !strings.HasSuffix(base, "/v1") {
		base = strings.TrimSuffix(base, "/") + "/v1"
	}
	return base
}

func (r *Registry) probeOpenAI(ctx context.Context, cfg types.ProviderConfig) types.CheckResult {
	endpoint := cfg.EffectiveEndpoint()
	baseURL := openAIBaseURL(endpoint)
	headers := buildHeaders(cfg)
	client := r.clientFor(baseURL, cfg.APIKey, headers)

	model, effort, hasEffort := parseModelDirective(cfg.Model)

	body := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "user", "content": "hi"},
		},
		"max_tokens":  1,
		"temperature": 0,
		"stream":      true,
	}
	if hasEffort {
		body["reasoning_effort"] = string(effort)
	}
	mergeMetadata(body, cfg)

	payload, err := json.Marshal(body)
	if err != nil {
		return r.resultFor(cfg, types.StatusFailed, nil, msgUnknown, nil)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return r.resultFor(cfg, types.StatusFailed, nil, msgUnknown, nil)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
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

func classifyTransportError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return msgTimeout
	}
	if errors.Is(err, context.Canceled) {
		return msgTimeout
	}
	return msgUnknown
}

func httpStatusMessage(statusCode int) string {
	return "HTTP " + strconv.Itoa(statusCode)
}
