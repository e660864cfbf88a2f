// Package dashboard implements the Dashboard Aggregator (C8): turning a
// Snapshot Service read into the grouped, ordered view the HTTP surface
// serves.
package dashboard

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"checkcx/internal/snapshot"
	"checkcx/internal/types"
)

const maintenanceMessage = "配置处于维护模式"

// ConfigLoader is the subset of *configrepo.Repository the aggregator needs.
type ConfigLoader interface {
	LoadEnabledConfigs(ctx context.Context) ([]types.ProviderConfig, error)
}

// SnapshotLoader is the subset of *snapshot.Service the aggregator needs.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, scope snapshot.Scope, mode snapshot.RefreshMode) (types.HistorySnapshot, error)
}

// OfficialStatusLookup is the subset of *officialstatus.Poller the
// aggregator needs.
type OfficialStatusLookup interface {
	GetOfficialStatus(t types.ProviderType) (types.OfficialStatusResult, bool)
}

// DashboardData is the body of GET /api/dashboard.
type DashboardData struct {
	ProviderTimelines []types.ProviderTimeline         `json:"providerTimelines"`
	GroupedTimelines  []types.GroupedProviderTimelines `json:"groupedTimelines"`
	LastUpdated       *time.Time                        `json:"lastUpdated"`
	Total             int                               `json:"total"`
	PollIntervalLabel string                            `json:"pollIntervalLabel"`
	PollIntervalMs    int64                             `json:"pollIntervalMs"`
	GeneratedAt       time.Time                         `json:"generatedAt"`
}

// GroupDashboardData is the body of GET /api/group/{groupName}.
type GroupDashboardData struct {
	GroupName         string                    `json:"groupName"`
	DisplayName       string                    `json:"displayName"`
	ProviderTimelines []types.ProviderTimeline `json:"providerTimelines"`
	LastUpdated       *time.Time               `json:"lastUpdated"`
	Total             int                      `json:"total"`
	PollIntervalLabel string                   `json:"pollIntervalLabel"`
	PollIntervalMs    int64                    `json:"pollIntervalMs"`
	GeneratedAt       time.Time                `json:"generatedAt"`
}

// Aggregator is the Dashboard Aggregator (C8).
type Aggregator struct {
	configs        ConfigLoader
	snapshots      SnapshotLoader
	officialStatus OfficialStatusLookup
	pollInterval   time.Duration
	collator       *collate.Collator
}

// New builds an Aggregator. pollInterval is the configured
// CHECK_POLL_INTERVAL_SECONDS value, used both as the freshness window and
// as the echoed pollIntervalMs/pollIntervalLabel fields.
func New(configs ConfigLoader, snapshots SnapshotLoader, officialStatus OfficialStatusLookup, pollInterval time.Duration) *Aggregator {
	return &Aggregator{
		configs:        configs,
		snapshots:      snapshots,
		officialStatus: officialStatus,
		pollInterval:   pollInterval,
		collator:       collate.New(language.Und),
	}
}

// RefreshDefaultScope drives one unconditional refresh of the full-fleet
// scope, for the Background Poller.
func (a *Aggregator) RefreshDefaultScope(ctx context.Context) error {
	_, err := a.loadDashboardData(ctx, snapshot.RefreshAlways)
	return err
}

// LoadDashboardData builds the full dashboard view.
func (a *Aggregator) LoadDashboardData(ctx context.Context, mode snapshot.RefreshMode) (DashboardData, error) {
	return a.loadDashboardData(ctx, mode)
}

func (a *Aggregator) loadDashboardData(ctx context.Context, mode snapshot.RefreshMode) (DashboardData, error) {
	configs, err := a.configs.LoadEnabledConfigs(ctx)
	if err != nil || configs == nil {
		return a.emptyDashboard(), nil
	}

	active, maintenance := splitByMaintenance(configs)

	scope := snapshot.Scope{
		Key:          snapshot.ScopeKey("dashboard", idsOf(active), a.pollInterval),
		Configs:      active,
		PollInterval: a.pollInterval,
	}
	history, err := a.snapshots.LoadSnapshot(ctx, scope, mode)
	if err != nil {
		history = types.HistorySnapshot{}
	}

	timelines := a.buildProviderTimelines(history, maintenance)
	grouped := groupTimelines(timelines, a.collator)

	return DashboardData{
		ProviderTimelines: timelines,
		GroupedTimelines:  grouped,
		LastUpdated:       lastUpdated(timelines),
		Total:             len(timelines),
		PollIntervalLabel: pollIntervalLabel(a.pollInterval),
		PollIntervalMs:    a.pollInterval.Milliseconds(),
		GeneratedAt:       time.Now().UTC(),
	}, nil
}

// LoadGroupDashboardData filters to one group (or the ungrouped sentinel),
// returning nil when no configured target matches.
func (a *Aggregator) LoadGroupDashboardData(ctx context.Context, groupName string, mode snapshot.RefreshMode) (*GroupDashboardData, error) {
	configs, err := a.configs.LoadEnabledConfigs(ctx)
	if err != nil || configs == nil {
		return nil, nil
	}

	matching := filterByGroup(configs, groupName)
	if len(matching) == 0 {
		return nil, nil
	}

	active, maintenance := splitByMaintenance(matching)

	scope := snapshot.Scope{
		Key:          snapshot.ScopeKey("group:"+groupName, idsOf(active), a.pollInterval),
		Configs:      active,
		PollInterval: a.pollInterval,
	}
	history, err := a.snapshots.LoadSnapshot(ctx, scope, mode)
	if err != nil {
		history = types.HistorySnapshot{}
	}

	timelines := a.buildProviderTimelines(history, maintenance)
	sortByName(timelines, a.collator)

	displayName := groupName
	if groupName == types.UngroupedSentinel {
		displayName = types.UngroupedDisplayName
	}

	return &GroupDashboardData{
		GroupName:         groupName,
		DisplayName:       displayName,
		ProviderTimelines: timelines,
		LastUpdated:       lastUpdated(timelines),
		Total:             len(timelines),
		PollIntervalLabel: pollIntervalLabel(a.pollInterval),
		PollIntervalMs:    a.pollInterval.Milliseconds(),
		GeneratedAt:       time.Now().UTC(),
	}, nil
}

func (a *Aggregator) emptyDashboard() DashboardData {
	return DashboardData{
		ProviderTimelines: []types.ProviderTimeline{},
		GroupedTimelines:  []types.GroupedProviderTimelines{},
		Total:             0,
		PollIntervalLabel: pollIntervalLabel(a.pollInterval),
		PollIntervalMs:    a.pollInterval.Milliseconds(),
		GeneratedAt:       time.Now().UTC(),
	}
}

// buildProviderTimelines attaches officialStatus to probed items and
// synthesizes a maintenance placeholder per maintenance config.
func (a *Aggregator) buildProviderTimelines(history types.HistorySnapshot, maintenanceConfigs []types.ProviderConfig) []types.ProviderTimeline {
	timelines := make([]types.ProviderTimeline, 0, len(history)+len(maintenanceConfigs))

	for id, items := range history {
		if len(items) == 0 {
			continue
		}
		sort.Slice(items, func(i, j int) bool { return items[i].CheckedAt.After(items[j].CheckedAt) })
		latest := items[0]
		if status, ok := a.officialStatus.GetOfficialStatus(latest.Type); ok {
			latest.OfficialStatus = &status
		}
		timelines = append(timelines, types.ProviderTimeline{
			ID:     id,
			Items:  items,
			Latest: latest,
		})
	}

	now := time.Now().UTC()
	for _, cfg := range maintenanceConfigs {
		timelines = append(timelines, types.ProviderTimeline{
			ID:    cfg.ID,
			Items: []types.CheckResult{},
			Latest: types.CheckResult{
				ID:        cfg.ID,
				Name:      cfg.Name,
				Type:      cfg.Type,
				Endpoint:  cfg.EffectiveEndpoint(),
				Model:     cfg.Model,
				Status:    types.StatusMaintenance,
				Message:   maintenanceMessage,
				CheckedAt: now,
				GroupName: cfg.GroupName,
			},
		})
	}

	sortByName(timelines, a.collator)
	return timelines
}

func sortByName(timelines []types.ProviderTimeline, c *collate.Collator) {
	sort.Slice(timelines, func(i, j int) bool {
		return c.CompareString(timelines[i].Latest.Name, timelines[j].Latest.Name) < 0
	})
}

// groupTimelines buckets by groupName: named groups sorted lexicographically
// first, then a single ungrouped bucket last.
func groupTimelines(timelines []types.ProviderTimeline, c *collate.Collator) []types.GroupedProviderTimelines {
	buckets := make(map[string][]types.ProviderTimeline)
	var names []string
	hasUngrouped := false

	for _, tl := range timelines {
		key := types.UngroupedSentinel
		if tl.Latest.GroupName != nil && *tl.Latest.GroupName != "" {
			key = *tl.Latest.GroupName
		}
		if key == types.UngroupedSentinel {
			hasUngrouped = true
		} else if _, seen := buckets[key]; !seen {
			names = append(names, key)
		}
		buckets[key] = append(buckets[key], tl)
	}

	sort.Strings(names)
	if hasUngrouped {
		names = append(names, types.UngroupedSentinel)
	}

	grouped := make([]types.GroupedProviderTimelines, 0, len(names))
	for _, name := range names {
		items := buckets[name]
		sortByName(items, c)
		displayName := name
		if name == types.UngroupedSentinel {
			displayName = types.UngroupedDisplayName
		}
		grouped = append(grouped, types.GroupedProviderTimelines{
			GroupName:   name,
			DisplayName: displayName,
			Timelines:   items,
		})
	}
	return grouped
}

func splitByMaintenance(configs []types.ProviderConfig) (active, maintenance []types.ProviderConfig) {
	for _, cfg := range configs {
		if cfg.IsMaintenance {
			maintenance = append(maintenance, cfg)
		} else {
			active = append(active, cfg)
		}
	}
	return active, maintenance
}

// filterByGroup matches groupName, treating the ungrouped sentinel as
// "groupName is absent".
func filterByGroup(configs []types.ProviderConfig, groupName string) []types.ProviderConfig {
	var matching []types.ProviderConfig
	for _, cfg := range configs {
		if groupName == types.UngroupedSentinel {
			if cfg.GroupName == nil || *cfg.GroupName == "" {
				matching = append(matching, cfg)
			}
			continue
		}
		if cfg.GroupName != nil && *cfg.GroupName == groupName {
			matching = append(matching, cfg)
		}
	}
	return matching
}

func idsOf(configs []types.ProviderConfig) []uuid.UUID {
	ids := make([]uuid.UUID, len(configs))
	for i, cfg := range configs {
		ids[i] = cfg.ID
	}
	return ids
}

func lastUpdated(timelines []types.ProviderTimeline) *time.Time {
	var latest time.Time
	found := false
	for _, tl := range timelines {
		if !found || tl.Latest.CheckedAt.After(latest) {
			latest = tl.Latest.CheckedAt
			found = true
		}
	}
	if !found {
		return nil
	}
	return &latest
}

func pollIntervalLabel(d time.Duration) string {
	seconds := int64(d.Seconds())
	if seconds%60 == 0 {
		return strconv.FormatInt(seconds/60, 10) + "分钟"
	}
	return strconv.FormatInt(seconds, 10) + "秒"
}
