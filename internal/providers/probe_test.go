package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"checkcx/internal/types"
)

func TestRegistry_Probe_MaintenanceShortCircuits(t *testing.T) {
	r := NewRegistry(zap.NewNop(), nil)
	cfg := types.ProviderConfig{
		ID:            uuid.New(),
		Type:          types.ProviderOpenAI,
		Model:         "gpt-4o",
		IsMaintenance: true,
	}

	result := r.Probe(context.Background(), cfg)
	assert.Equal(t, types.StatusMaintenance, result.Status)
	assert.Equal(t, "配置处于维护模式", result.Message)
	assert.Nil(t, result.LatencyMs)
}

func TestRegistry_Probe_UnknownProviderType(t *testing.T) {
	r := NewRegistry(zap.NewNop(), nil)
	cfg := types.ProviderConfig{
		ID:   uuid.New(),
		Type: types.ProviderType("unknown"),
	}

	result := r.Probe(context.Background(), cfg)
	assert.Equal(t, types.StatusFailed, result.Status)
}

func TestRegistry_Probe_OpenAIStreamSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"h\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	r := NewRegistry(zap.NewNop(), nil)
	endpoint := srv.URL + "/chat/completions"
	cfg := types.ProviderConfig{
		ID:       uuid.New(),
		Type:     types.ProviderOpenAI,
		Model:    "gpt-4o",
		Endpoint: &endpoint,
		APIKey:   "test-key",
	}

	result := r.Probe(context.Background(), cfg)
	assert.Equal(t, types.StatusOperational, result.Status)
	assert.NotNil(t, result.LatencyMs)
}

func TestRegistry_Probe_OpenAIHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r := NewRegistry(zap.NewNop(), nil)
	endpoint := srv.URL + "/chat/completions"
	cfg := types.ProviderConfig{
		ID:       uuid.New(),
		Type:     types.ProviderOpenAI,
		Model:    "gpt-4o",
		Endpoint: &endpoint,
		APIKey:   "test-key",
	}

	result := r.Probe(context.Background(), cfg)
	assert.Equal(t, types.StatusFailed, result.Status)
	assert.Equal(t, "HTTP 401", result.Message)
}

// TestRegistry_Probe_OpenAIMidStreamHangReportsTimeout covers spec.md §8
// scenario 3: the vendor accepts the connection and opens the stream but
// then hangs before the first event, so the overall deadline expires while
// StreamReader.Next is blocked on the body read rather than on client.Do.
func TestRegistry_Probe_OpenAIMidStreamHangReportsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	r := NewRegistry(zap.NewNop(), nil)
	endpoint := srv.URL + "/chat/completions"
	cfg := types.ProviderConfig{
		ID:       uuid.New(),
		Type:     types.ProviderOpenAI,
		Model:    "gpt-4o",
		Endpoint: &endpoint,
		APIKey:   "test-key",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := r.Probe(ctx, cfg)
	assert.Equal(t, types.StatusFailed, result.Status)
	assert.Equal(t, msgTimeout, result.Message)
}

func TestClientFor_ReusesSameClientForSameTuple(t *testing.T) {
	r := NewRegistry(zap.NewNop(), nil)
	headers := map[string]string{"User-Agent": "check-cx/0.1.0"}

	c1 := r.clientFor("https://api.openai.com/v1", "key-a", headers)
	c2 := r.clientFor("https://api.openai.com/v1", "key-a", headers)
	c3 := r.clientFor("https://api.openai.com/v1", "key-b", headers)

	assert.Same(t, c1, c2)
	assert.NotSame(t, c1, c3)
}
