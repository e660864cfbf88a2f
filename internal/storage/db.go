package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB wraps the Postgres connection shared by the Config Repository and the
// History Store, plus the two read caches that front their hot queries.
type DB struct {
	conn *sqlx.DB

	configCache  *LRUCache
	historyCache *LRUCache
}

// DBConfig holds pool-tuning and cache-sizing settings. The DSN itself
// (config.DatabaseConfig.URL) is passed separately to NewDB so this type
// stays agnostic of how the DSN was assembled.
type DBConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	ConfigCacheSize  int
	ConfigCacheTTL   time.Duration
	HistoryCacheSize int
	HistoryCacheTTL  time.Duration
}

// DefaultDBConfig returns sane pool and cache defaults.
func DefaultDBConfig() DBConfig {
	return DBConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		ConfigCacheSize:  200,
		ConfigCacheTTL:   30 * time.Second,
		HistoryCacheSize: 500,
		HistoryCacheTTL:  5 * time.Second,
	}
}

// NewDB opens a pooled Postgres connection against dsn and wires the two
// read caches.
func NewDB(dsn string, cfg DBConfig) (*DB, error) {
	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	db := &DB{
		conn:         conn,
		configCache:  NewLRUCache(cfg.ConfigCacheSize, cfg.ConfigCacheTTL),
		historyCache: NewLRUCache(cfg.HistoryCacheSize, cfg.HistoryCacheTTL),
	}

	return db, nil
}

// Close closes the database connection and clears caches.
func (db *DB) Close() error {
	db.configCache.Clear()
	db.historyCache.Clear()
	return db.conn.Close()
}

// Ping checks if the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health returns the health status of the database.
func (db *DB) Health(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := db.conn.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}

	return nil
}

// DBStats reports pool and cache occupancy.
type DBStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
	MaxIdleClosed      int64
	MaxLifetimeClosed  int64

	ConfigCacheStats  CacheStats
	HistoryCacheStats CacheStats
}

// GetStats returns current database and cache statistics.
func (db *DB) GetStats() DBStats {
	stats := db.conn.Stats()

	return DBStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
		MaxIdleClosed:      stats.MaxIdleClosed,
		MaxLifetimeClosed:  stats.MaxLifetimeClosed,

		ConfigCacheStats:  db.configCache.GetStats(),
		HistoryCacheStats: db.historyCache.GetStats(),
	}
}

// BeginTx starts a new transaction.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return db.conn.BeginTxx(ctx, opts)
}

// Conn returns the underlying sqlx connection, for repositories that need
// raw query access.
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// ConfigCache returns the Config Repository's row cache.
func (db *DB) ConfigCache() *LRUCache {
	return db.configCache
}

// HistoryCache returns the History Store's burst-absorbing read cache.
func (db *DB) HistoryCache() *LRUCache {
	return db.historyCache
}

// CleanupExpiredCacheEntries removes expired entries from both caches.
// Intended to be called periodically (e.g. alongside the background poller
// tick).
func (db *DB) CleanupExpiredCacheEntries() (configRemoved, historyRemoved int) {
	configRemoved = db.configCache.CleanupExpired()
	historyRemoved = db.historyCache.CleanupExpired()
	return
}
