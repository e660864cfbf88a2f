package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkcx/internal/snapshot"
	"checkcx/internal/types"
)

type fakeConfigLoader struct {
	configs []types.ProviderConfig
	err     error
}

func (f *fakeConfigLoader) LoadEnabledConfigs(ctx context.Context) ([]types.ProviderConfig, error) {
	return f.configs, f.err
}

type fakeSnapshotLoader struct {
	history types.HistorySnapshot
}

func (f *fakeSnapshotLoader) LoadSnapshot(ctx context.Context, scope snapshot.Scope, mode snapshot.RefreshMode) (types.HistorySnapshot, error) {
	return f.history, nil
}

type fakeOfficialStatus struct {
	byType map[types.ProviderType]types.OfficialStatusResult
}

func (f *fakeOfficialStatus) GetOfficialStatus(t types.ProviderType) (types.OfficialStatusResult, bool) {
	v, ok := f.byType[t]
	return v, ok
}

func strPtr(s string) *string { return &s }

func TestLoadDashboardData_AttachesOfficialStatusAndSortsByName(t *testing.T) {
	idB := uuid.New()
	idA := uuid.New()
	configs := []types.ProviderConfig{
		{ID: idB, Name: "zeta", Type: types.ProviderOpenAI},
		{ID: idA, Name: "alpha", Type: types.ProviderAnthropic},
	}
	history := types.HistorySnapshot{
		idB: {{ID: idB, Name: "zeta", Type: types.ProviderOpenAI, Status: types.StatusOperational, CheckedAt: time.Now()}},
		idA: {{ID: idA, Name: "alpha", Type: types.ProviderAnthropic, Status: types.StatusOperational, CheckedAt: time.Now()}},
	}

	agg := New(
		&fakeConfigLoader{configs: configs},
		&fakeSnapshotLoader{history: history},
		&fakeOfficialStatus{byType: map[types.ProviderType]types.OfficialStatusResult{
			types.ProviderAnthropic: {Status: types.OfficialOperational, Message: "ok"},
		}},
		time.Minute,
	)

	data, err := agg.LoadDashboardData(context.Background(), snapshot.RefreshNever)
	require.NoError(t, err)
	require.Len(t, data.ProviderTimelines, 2)

	assert.Equal(t, "alpha", data.ProviderTimelines[0].Latest.Name)
	assert.Equal(t, "zeta", data.ProviderTimelines[1].Latest.Name)
	require.NotNil(t, data.ProviderTimelines[0].Latest.OfficialStatus)
	assert.Equal(t, types.OfficialOperational, data.ProviderTimelines[0].Latest.OfficialStatus.Status)
	assert.Nil(t, data.ProviderTimelines[1].Latest.OfficialStatus)
	assert.Equal(t, 2, data.Total)
}

func TestLoadDashboardData_MaintenancePlaceholder(t *testing.T) {
	id := uuid.New()
	configs := []types.ProviderConfig{
		{ID: id, Name: "maint-target", Type: types.ProviderOpenAI, IsMaintenance: true},
	}

	agg := New(
		&fakeConfigLoader{configs: configs},
		&fakeSnapshotLoader{history: types.HistorySnapshot{}},
		&fakeOfficialStatus{byType: map[types.ProviderType]types.OfficialStatusResult{}},
		time.Minute,
	)

	data, err := agg.LoadDashboardData(context.Background(), snapshot.RefreshNever)
	require.NoError(t, err)
	require.Len(t, data.ProviderTimelines, 1)

	tl := data.ProviderTimelines[0]
	assert.Equal(t, types.StatusMaintenance, tl.Latest.Status)
	assert.Equal(t, "配置处于维护模式", tl.Latest.Message)
	assert.Nil(t, tl.Latest.LatencyMs)
	assert.Empty(t, tl.Items)
}

func TestLoadDashboardData_ConfigLoadErrorDegradesToEmpty(t *testing.T) {
	agg := New(
		&fakeConfigLoader{err: assert.AnError},
		&fakeSnapshotLoader{},
		&fakeOfficialStatus{},
		time.Minute,
	)

	data, err := agg.LoadDashboardData(context.Background(), snapshot.RefreshAlways)
	require.NoError(t, err)
	assert.Equal(t, 0, data.Total)
	assert.Empty(t, data.ProviderTimelines)
}

func TestLoadGroupDashboardData_UnknownGroupReturnsNil(t *testing.T) {
	agg := New(
		&fakeConfigLoader{configs: []types.ProviderConfig{{ID: uuid.New(), Name: "a", Type: types.ProviderOpenAI, GroupName: strPtr("team-a")}}},
		&fakeSnapshotLoader{history: types.HistorySnapshot{}},
		&fakeOfficialStatus{},
		time.Minute,
	)

	data, err := agg.LoadGroupDashboardData(context.Background(), "team-b", snapshot.RefreshNever)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestLoadGroupDashboardData_UngroupedSentinel(t *testing.T) {
	id := uuid.New()
	configs := []types.ProviderConfig{
		{ID: id, Name: "ungrouped-target", Type: types.ProviderOpenAI},
		{ID: uuid.New(), Name: "grouped-target", Type: types.ProviderOpenAI, GroupName: strPtr("team-a")},
	}
	history := types.HistorySnapshot{
		id: {{ID: id, Name: "ungrouped-target", Type: types.ProviderOpenAI, Status: types.StatusOperational, CheckedAt: time.Now()}},
	}

	agg := New(
		&fakeConfigLoader{configs: configs},
		&fakeSnapshotLoader{history: history},
		&fakeOfficialStatus{},
		time.Minute,
	)

	data, err := agg.LoadGroupDashboardData(context.Background(), types.UngroupedSentinel, snapshot.RefreshNever)
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, types.UngroupedDisplayName, data.DisplayName)
	assert.Len(t, data.ProviderTimelines, 1)
	assert.Equal(t, "ungrouped-target", data.ProviderTimelines[0].Latest.Name)
}

func TestGroupTimelines_NamedGroupsBeforeUngrouped(t *testing.T) {
	idA := uuid.New()
	idB := uuid.New()
	idC := uuid.New()
	configs := []types.ProviderConfig{
		{ID: idA, Name: "c", Type: types.ProviderOpenAI},
		{ID: idB, Name: "b", Type: types.ProviderOpenAI, GroupName: strPtr("zzz")},
		{ID: idC, Name: "a", Type: types.ProviderOpenAI, GroupName: strPtr("aaa")},
	}
	now := time.Now()
	history := types.HistorySnapshot{
		idA: {{ID: idA, Name: "c", Type: types.ProviderOpenAI, Status: types.StatusOperational, CheckedAt: now}},
		idB: {{ID: idB, Name: "b", Type: types.ProviderOpenAI, Status: types.StatusOperational, CheckedAt: now, GroupName: strPtr("zzz")}},
		idC: {{ID: idC, Name: "a", Type: types.ProviderOpenAI, Status: types.StatusOperational, CheckedAt: now, GroupName: strPtr("aaa")}},
	}

	agg := New(
		&fakeConfigLoader{configs: configs},
		&fakeSnapshotLoader{history: history},
		&fakeOfficialStatus{},
		time.Minute,
	)

	data, err := agg.LoadDashboardData(context.Background(), snapshot.RefreshNever)
	require.NoError(t, err)
	require.Len(t, data.GroupedTimelines, 3)
	assert.Equal(t, "aaa", data.GroupedTimelines[0].GroupName)
	assert.Equal(t, "zzz", data.GroupedTimelines[1].GroupName)
	assert.Equal(t, types.UngroupedSentinel, data.GroupedTimelines[2].GroupName)
}
