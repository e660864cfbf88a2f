package history

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"checkcx/internal/types"
)

func TestIsMissingProcedure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		proc string
		want bool
	}{
		{"matches", errors.New(`pq: function fetch_check_history(uuid[], integer) does not exist`), "fetch_check_history", true},
		{"different procedure", errors.New(`pq: function prune_check_history(uuid[], integer) does not exist`), "fetch_check_history", false},
		{"unrelated error", errors.New("connection refused"), "fetch_check_history", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isMissingProcedure(tc.err, tc.proc))
		})
	}
}

func TestPQ(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	got := pq([]uuid.UUID{a, b})
	assert.Equal(t, "{"+a.String()+","+b.String()+"}", got)
}

func TestHistoryCacheKey(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	assert.Equal(t, "history:*", historyCacheKey(nil))
	assert.NotEqual(t, historyCacheKey(nil), historyCacheKey([]uuid.UUID{}))
	assert.Equal(t, historyCacheKey([]uuid.UUID{a, b}), historyCacheKey([]uuid.UUID{b, a}))
}

func TestIdsOrNil(t *testing.T) {
	assert.Nil(t, idsOrNil(nil))
	assert.Nil(t, idsOrNil([]uuid.UUID{}))

	id := uuid.New()
	assert.Equal(t, "{"+id.String()+"}", idsOrNil([]uuid.UUID{id}))
}

func TestHistoryRow_ToCheckResult(t *testing.T) {
	id := uuid.New()
	now := time.Now().UTC()

	row := historyRow{
		ConfigID:  id,
		Name:      "primary-gpt",
		Type:      "openai",
		Model:     "gpt-4o",
		Endpoint:  "https://api.openai.com/v1/chat/completions",
		Status:    "operational",
		LatencyMs: sql.NullInt64{Int64: 320, Valid: true},
		PingMs:    sql.NullInt64{Int64: 40, Valid: true},
		Message:   sql.NullString{String: "流式响应正常 (320 ms)", Valid: true},
		CheckedAt: sql.NullTime{Time: now, Valid: true},
	}

	cr := row.toCheckResult()
	assert.Equal(t, id, cr.ID)
	assert.Equal(t, types.ProviderOpenAI, cr.Type)
	assert.Equal(t, types.StatusOperational, cr.Status)
	if assert.NotNil(t, cr.LatencyMs) {
		assert.Equal(t, int64(320), *cr.LatencyMs)
	}
	assert.Nil(t, cr.GroupName)
	assert.True(t, cr.CheckedAt.Equal(now))
}

func TestHistoryRow_ToCheckResult_NullLatencyOnFailure(t *testing.T) {
	row := historyRow{
		ConfigID: uuid.New(),
		Status:   "failed",
		Message:  sql.NullString{String: "请求超时", Valid: true},
	}

	cr := row.toCheckResult()
	assert.Nil(t, cr.LatencyMs)
	assert.Equal(t, types.StatusFailed, cr.Status)
}
