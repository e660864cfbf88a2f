package officialstatus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"checkcx/internal/types"
)

func TestAcquireLock_NoRedisAlwaysSucceeds(t *testing.T) {
	p := New(nil, 0, zap.NewNop(), nil)
	assert.True(t, p.acquireLock(context.Background()))
	assert.True(t, p.acquireLock(context.Background()))
}

func TestIndicatorToStatus(t *testing.T) {
	tests := map[string]types.OfficialHealthStatus{
		"none":     types.OfficialOperational,
		"minor":    types.OfficialDegraded,
		"major":    types.OfficialDown,
		"critical": types.OfficialDown,
		"":         types.OfficialUnknown,
		"weird":    types.OfficialUnknown,
	}
	for indicator, want := range tests {
		assert.Equal(t, want, indicatorToStatus(indicator))
	}
}

func TestParseSummary_OutageComponentForcesDown(t *testing.T) {
	page := statusPageSummary{}
	page.Status.Indicator = "minor"
	page.Components = []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}{
		{Name: "API", Status: "major_outage"},
	}

	result := parseSummary(page)
	assert.Equal(t, types.OfficialDown, result.Status)
	assert.Equal(t, []string{"API"}, result.AffectedComponents)
}

func TestParseSummary_DegradedComponent(t *testing.T) {
	page := statusPageSummary{}
	page.Status.Indicator = "none"
	page.Components = []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}{
		{Name: "Console", Status: "degraded_performance"},
	}

	result := parseSummary(page)
	assert.Equal(t, types.OfficialDegraded, result.Status)
}

func TestParseSummary_NoComponentIssues(t *testing.T) {
	page := statusPageSummary{}
	page.Status.Indicator = "none"
	page.Status.Description = "All Systems Operational"

	result := parseSummary(page)
	assert.Equal(t, types.OfficialOperational, result.Status)
	assert.Empty(t, result.AffectedComponents)
	assert.Equal(t, "All Systems Operational", result.Message)
}

func TestAffectedComponentsMessage(t *testing.T) {
	assert.Equal(t, "A, B 受影响", affectedComponentsMessage([]string{"A", "B"}))
	assert.Equal(t, "A, B, C 等 4 个组件 受影响", affectedComponentsMessage([]string{"A", "B", "C", "D"}))
}
