// Package history implements the bounded per-target check-result ring:
// fetch, append, and prune against the check_history table, with a
// stored-procedure-first path and a raw-query fallback when the procedures
// are not installed.
package history

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"checkcx/internal/logging"
	"checkcx/internal/storage"
	"checkcx/internal/types"
)

// Store is the History Store (C4).
type Store struct {
	db     *storage.DB
	logger *zap.Logger
}

// New builds a Store over db. logger may be zap.NewNop() in tests.
func New(db *storage.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

type historyRow struct {
	ConfigID  uuid.UUID      `db:"config_id"`
	Name      string         `db:"name"`
	Type      string         `db:"type"`
	Model     string         `db:"model"`
	Endpoint  string         `db:"endpoint"`
	GroupName sql.NullString `db:"group_name"`
	Status    string         `db:"status"`
	LatencyMs sql.NullInt64  `db:"latency_ms"`
	PingMs    sql.NullInt64  `db:"ping_latency_ms"`
	Message   sql.NullString `db:"message"`
	CheckedAt sql.NullTime   `db:"checked_at"`
}

func (r historyRow) toCheckResult() types.CheckResult {
	cr := types.CheckResult{
		ID:       r.ConfigID,
		Name:     r.Name,
		Type:     types.ProviderType(r.Type),
		Endpoint: r.Endpoint,
		Model:    r.Model,
		Status:   types.HealthStatus(r.Status),
		Message:  r.Message.String,
	}
	if r.LatencyMs.Valid {
		v := r.LatencyMs.Int64
		cr.LatencyMs = &v
	}
	if r.PingMs.Valid {
		v := r.PingMs.Int64
		cr.PingLatencyMs = &v
	}
	if r.CheckedAt.Valid {
		cr.CheckedAt = r.CheckedAt.Time.UTC()
	}
	if r.GroupName.Valid {
		g := r.GroupName.String
		cr.GroupName = &g
	}
	return cr
}

// Fetch returns up to types.MaxHistoryLen rows per id, newest first. If
// allowedIds is non-nil and empty, it returns {} without touching the
// backend. A backend failure logs and returns {}, nil — fetch never
// surfaces an error to the caller. Reads are fronted by the History Cache
// so concurrent callers asking for the same id set within one poll cycle
// don't each hit Postgres; Append clears the cache on write so a refresh
// never serves history it just appended.
func (s *Store) Fetch(ctx context.Context, allowedIds []uuid.UUID) (types.HistorySnapshot, error) {
	if allowedIds != nil && len(allowedIds) == 0 {
		return types.HistorySnapshot{}, nil
	}

	cacheKey := historyCacheKey(allowedIds)
	if cached, ok := s.db.HistoryCache().Get(cacheKey); ok {
		return cached.(types.HistorySnapshot), nil
	}

	rows, err := s.fetchViaProcedure(ctx, allowedIds)
	if err != nil {
		if !isMissingProcedure(err, "fetch_check_history") {
			s.logger.Warn("history: fetch via procedure failed", zap.Error(err), logging.KindStorage.Field())
			return types.HistorySnapshot{}, nil
		}
		rows, err = s.fetchViaRawQuery(ctx, allowedIds)
		if err != nil {
			s.logger.Warn("history: fetch via raw query failed", zap.Error(err), logging.KindStorage.Field())
			return types.HistorySnapshot{}, nil
		}
	}

	snapshot := make(types.HistorySnapshot)
	for _, row := range rows {
		cr := row.toCheckResult()
		snapshot[cr.ID] = append(snapshot[cr.ID], cr)
	}
	for id, items := range snapshot {
		sort.Slice(items, func(i, j int) bool { return items[i].CheckedAt.After(items[j].CheckedAt) })
		if len(items) > types.MaxHistoryLen {
			items = items[:types.MaxHistoryLen]
		}
		snapshot[id] = items
	}
	s.db.HistoryCache().Set(cacheKey, snapshot)
	return snapshot, nil
}

// historyCacheKey canonicalizes allowedIds into a stable cache key: nil
// (no restriction) and any given id set each get their own deterministic
// slot regardless of input order.
func historyCacheKey(allowedIds []uuid.UUID) string {
	if allowedIds == nil {
		return "history:*"
	}
	ids := make([]string, len(allowedIds))
	for i, id := range allowedIds {
		ids[i] = id.String()
	}
	sort.Strings(ids)
	return "history:" + strings.Join(ids, ",")
}

func (s *Store) fetchViaProcedure(ctx context.Context, allowedIds []uuid.UUID) ([]historyRow, error) {
	var rows []historyRow
	query := `SELECT * FROM fetch_check_history($1, $2)`
	err := s.db.Conn().SelectContext(ctx, &rows, query, idsOrNil(allowedIds), types.MaxHistoryLen)
	return rows, err
}

func (s *Store) fetchViaRawQuery(ctx context.Context, allowedIds []uuid.UUID) ([]historyRow, error) {
	var rows []historyRow
	base := `
		SELECT h.config_id, c.name, c.type, c.model, c.endpoint, c.group_name,
		       h.status, h.latency_ms, h.ping_latency_ms, h.message, h.checked_at
		FROM check_history h
		JOIN check_configs c ON c.id = h.config_id`
	args := []any{}
	if len(allowedIds) > 0 {
		base += ` WHERE h.config_id = ANY($1)`
		args = append(args, pq(allowedIds))
	}
	base += ` ORDER BY h.config_id, h.checked_at DESC`

	err := s.db.Conn().SelectContext(ctx, &rows, base, args...)
	return rows, err
}

// Append inserts results then prunes each touched id back to
// types.MaxHistoryLen, in one logical action. Maintenance results are never
// persisted: they describe a configuration state, not a probe outcome.
// An insert failure logs and returns without pruning, leaving history
// momentarily over the cap.
func (s *Store) Append(ctx context.Context, results []types.CheckResult) {
	persistable := make([]types.CheckResult, 0, len(results))
	for _, r := range results {
		if r.Status == types.StatusMaintenance {
			continue
		}
		persistable = append(persistable, r)
	}
	if len(persistable) == 0 {
		return
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Warn("history: begin tx failed", zap.Error(err), logging.KindStorage.Field())
		return
	}

	const insertStmt = `
		INSERT INTO check_history (config_id, status, latency_ms, ping_latency_ms, message, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for _, r := range persistable {
		if _, err := tx.ExecContext(ctx, insertStmt, r.ID, string(r.Status), r.LatencyMs, r.PingLatencyMs, r.Message, r.CheckedAt); err != nil {
			s.logger.Warn("history: insert failed", zap.Error(err), logging.KindStorage.Field())
			tx.Rollback()
			return
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Warn("history: commit failed", zap.Error(err), logging.KindStorage.Field())
		return
	}

	// Any cached id-set combination could now be stale, including the one
	// the caller is about to Fetch; clear rather than try to pick out the
	// affected keys.
	s.db.HistoryCache().Clear()

	ids := make([]uuid.UUID, 0, len(persistable))
	seen := make(map[uuid.UUID]bool)
	for _, r := range persistable {
		if !seen[r.ID] {
			seen[r.ID] = true
			ids = append(ids, r.ID)
		}
	}
	s.Prune(ctx, ids, types.MaxHistoryLen)
}

// Prune retains the most recent limit rows per id in ids and deletes the
// rest. A failure logs and is a no-op.
func (s *Store) Prune(ctx context.Context, ids []uuid.UUID, limit int) {
	if len(ids) == 0 {
		return
	}

	err := s.pruneViaProcedure(ctx, ids, limit)
	if err != nil {
		if !isMissingProcedure(err, "prune_check_history") {
			s.logger.Warn("history: prune via procedure failed", zap.Error(err), logging.KindStorage.Field())
			return
		}
		if err := s.pruneViaRawQuery(ctx, ids, limit); err != nil {
			s.logger.Warn("history: prune via raw query failed", zap.Error(err), logging.KindStorage.Field())
		}
	}
}

func (s *Store) pruneViaProcedure(ctx context.Context, ids []uuid.UUID, limit int) error {
	_, err := s.db.Conn().ExecContext(ctx, `CALL prune_check_history($1, $2)`, pq(ids), limit)
	return err
}

func (s *Store) pruneViaRawQuery(ctx context.Context, ids []uuid.UUID, limit int) error {
	const stmt = `
		DELETE FROM check_history
		WHERE config_id = $1
		  AND id NOT IN (
		      SELECT id FROM check_history
		      WHERE config_id = $1
		      ORDER BY checked_at DESC
		      LIMIT $2
		  )`
	for _, id := range ids {
		if _, err := s.db.Conn().ExecContext(ctx, stmt, id, limit); err != nil {
			return err
		}
	}
	return nil
}

// isMissingProcedure matches the lib/pq idiom for undefined_function
// (42883) / undefined_table (42P01): the driver error text contains
// "does not exist" plus the procedure name.
func isMissingProcedure(err error, procedureName string) bool {
	msg := err.Error()
	return strings.Contains(msg, "does not exist") && strings.Contains(msg, procedureName)
}

func idsOrNil(ids []uuid.UUID) any {
	if len(ids) == 0 {
		return nil
	}
	return pq(ids)
}

// pq renders a []uuid.UUID as a Postgres array literal understood by
// ANY($1) and the stored procedures, avoiding a direct pq.Array dependency
// on uuid.UUID (which does not implement driver.Valuer for array members).
func pq(ids []uuid.UUID) string {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return "{" + strings.Join(strs, ",") + "}"
}
