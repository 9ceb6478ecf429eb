package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"igengage/pkg/engagement"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PostgresSink inserts one row per result into a PostgreSQL table
type PostgresSink struct {
	db    *sql.DB
	table string
	runID string
	now   func() time.Time
}

// OpenPostgresSink connects to databaseURL and makes sure table exists
func OpenPostgresSink(ctx context.Context, databaseURL, table, runID string) (*PostgresSink, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sink := NewPostgresSink(db, table, runID)
	if err := sink.EnsureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return sink, nil
}

// NewPostgresSink wraps an open database handle
func NewPostgresSink(db *sql.DB, table, runID string) *PostgresSink {
	return &PostgresSink{db: db, table: table, runID: runID, now: time.Now}
}

// EnsureTable creates the results table when it does not exist yet
func (s *PostgresSink) EnsureTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL(s.table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Append inserts result
func (s *PostgresSink) Append(ctx context.Context, result engagement.Result) error {
	query, args, err := insertQuery(s.table, s.runID, result, s.now()).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert result for %s: %w", result.Username, err)
	}
	return nil
}

// Close closes the database handle
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

func createTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	username TEXT NOT NULL,
	followers BIGINT NOT NULL DEFAULT 0,
	posts_analyzed INTEGER NOT NULL DEFAULT 0,
	avg_engagement_score BIGINT NOT NULL DEFAULT 0,
	engagement_rate_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
	error TEXT,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, pq.QuoteIdentifier(table))
}

func insertQuery(table, runID string, result engagement.Result, fetchedAt time.Time) sq.InsertBuilder {
	var errValue sql.NullString
	if result.Error != "" {
		errValue = sql.NullString{String: result.Error, Valid: true}
	}

	return sq.Insert(pq.QuoteIdentifier(table)).
		Columns("run_id", "username", "followers", "posts_analyzed",
			"avg_engagement_score", "engagement_rate_pct", "error", "fetched_at").
		Values(runID, result.Username, result.Followers, result.PostsAnalyzed,
			result.AvgEngagementScore, result.EngagementRatePct, errValue, fetchedAt).
		PlaceholderFormat(sq.Dollar)
}
