// Package types holds the core data model shared by every component: the
// provider configuration read from storage, the probe outcomes that become
// history, and the aggregated views served over HTTP.
package types

import (
	"time"

	"github.com/google/uuid"
)

// ProviderType is the closed set of vendors this gateway knows how to probe.
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderGemini    ProviderType = "gemini"
	ProviderAnthropic ProviderType = "anthropic"
)

// Valid reports whether t is one of the known provider types.
func (t ProviderType) Valid() bool {
	switch t {
	case ProviderOpenAI, ProviderGemini, ProviderAnthropic:
		return true
	default:
		return false
	}
}

// HealthStatus is the outcome of a single probe, or a synthesized placeholder.
type HealthStatus string

const (
	StatusOperational HealthStatus = "operational"
	StatusDegraded     HealthStatus = "degraded"
	StatusFailed       HealthStatus = "failed"
	StatusMaintenance  HealthStatus = "maintenance"
)

// OfficialHealthStatus is the normalized outcome of a vendor status-page fetch.
type OfficialHealthStatus string

const (
	OfficialOperational OfficialHealthStatus = "operational"
	OfficialDegraded    OfficialHealthStatus = "degraded"
	OfficialDown        OfficialHealthStatus = "down"
	OfficialUnknown     OfficialHealthStatus = "unknown"
)

// ProviderConfig is one monitored target, as read from the config repository.
type ProviderConfig struct {
	ID             uuid.UUID         `db:"id" json:"id"`
	Name           string            `db:"name" json:"name"`
	Type           ProviderType      `db:"type" json:"type"`
	Endpoint       *string           `db:"endpoint" json:"endpoint,omitempty"`
	Model          string            `db:"model" json:"model"`
	APIKey         string            `db:"api_key" json:"-"`
	Enabled        bool              `db:"enabled" json:"-"`
	IsMaintenance  bool              `db:"is_maintenance" json:"isMaintenance"`
	RequestHeaders StringMap         `db:"request_header" json:"requestHeaders,omitempty"`
	Metadata       AnyMap            `db:"metadata" json:"metadata,omitempty"`
	GroupName      *string           `db:"group_name" json:"groupName,omitempty"`
}

// EffectiveEndpoint returns the config's endpoint, or the vendor default.
func (c ProviderConfig) EffectiveEndpoint() string {
	if c.Endpoint != nil && *c.Endpoint != "" {
		return *c.Endpoint
	}
	return DefaultEndpoint(c.Type)
}

// DefaultEndpoint returns the well-known base endpoint for a provider type.
func DefaultEndpoint(t ProviderType) string {
	switch t {
	case ProviderOpenAI:
		return "https://api.openai.com/v1/chat/completions"
	case ProviderGemini:
		return "https://generativelanguage.googleapis.com/v1beta"
	case ProviderAnthropic:
		return "https://api.anthropic.com/v1/messages"
	default:
		return ""
	}
}

// CheckResult is one probe outcome; once appended it is an immutable history
// record.
type CheckResult struct {
	ID             uuid.UUID             `db:"config_id" json:"id"`
	Name           string                `db:"name" json:"name"`
	Type           ProviderType          `db:"type" json:"type"`
	Endpoint       string                `db:"endpoint" json:"endpoint"`
	Model          string                `db:"model" json:"model"`
	Status         HealthStatus          `db:"status" json:"status"`
	LatencyMs      *int64                `db:"latency_ms" json:"latencyMs"`
	PingLatencyMs  *int64                `db:"ping_latency_ms" json:"pingLatencyMs"`
	CheckedAt      time.Time             `db:"checked_at" json:"checkedAt"`
	Message        string                `db:"message" json:"message"`
	GroupName      *string               `db:"group_name" json:"groupName,omitempty"`
	OfficialStatus *OfficialStatusResult `db:"-" json:"officialStatus,omitempty"`
}

// OfficialStatusResult is the normalized outcome of a vendor status-page poll.
type OfficialStatusResult struct {
	Status              OfficialHealthStatus `json:"status"`
	Message             string               `json:"message"`
	CheckedAt           time.Time            `json:"checkedAt"`
	AffectedComponents  []string             `json:"affectedComponents,omitempty"`
}

// HistorySnapshot maps config id to its newest-first, length-capped history.
type HistorySnapshot map[uuid.UUID][]CheckResult

// MaxHistoryLen is the hard cap on entries retained per config id.
const MaxHistoryLen = 60

// ProviderTimeline is the aggregated, read-facing view of one target.
type ProviderTimeline struct {
	ID     uuid.UUID     `json:"id"`
	Items  []CheckResult `json:"items"`
	Latest CheckResult   `json:"latest"`
}

// UngroupedSentinel is the reserved group name selecting configs with no group.
const UngroupedSentinel = "__ungrouped__"

// UngroupedDisplayName is the display label for the ungrouped bucket.
const UngroupedDisplayName = "未分组"

// GroupedProviderTimelines is one named (or ungrouped) bucket of timelines.
type GroupedProviderTimelines struct {
	GroupName   string             `json:"groupName"`
	DisplayName string             `json:"displayName"`
	Timelines   []ProviderTimeline `json:"timelines"`
}

// ReasoningEffort is the closed set of values the OpenAI probe's
// model-directive parser can produce.
type ReasoningEffort string

const (
	ReasoningMinimal ReasoningEffort = "minimal"
	ReasoningLow     ReasoningEffort = "low"
	ReasoningMedium  ReasoningEffort = "medium"
	ReasoningHigh    ReasoningEffort = "high"
)
