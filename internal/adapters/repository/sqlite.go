package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/minkalla/valyze/internal/domain/model"
	"github.com/minkalla/valyze/pkg/metrics"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed sql/*
var ddl embed.FS

const (
	insertProvenanceSQL = `INSERT INTO provenance (
		id, data_id, category, source, model_used, model_version,
		valuation_score, confidence_score, valuation_timestamp, recorded_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectByDataIDSQL = `SELECT
		id, data_id, category, source, model_used, model_version,
		valuation_score, confidence_score, valuation_timestamp, recorded_at
	FROM provenance
	WHERE data_id = ?
	ORDER BY seq DESC
	LIMIT ?`

	countSQL = `SELECT COUNT(*) FROM provenance`
)

// SQLiteLedger is a durable Ledger backed by a SQLite file.
type SQLiteLedger struct {
	db   *sql.DB
	path string

	mu     sync.RWMutex
	closed bool
}

// OpenSQLiteLedger opens (creating if needed) the ledger database at path.
func OpenSQLiteLedger(ctx context.Context, path string) (*SQLiteLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite ledger: path not specified")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite ledger: open %s: %w", path, err)
	}
	// One writer keeps SQLite free of "database is locked" errors.
	db.SetMaxOpenConns(1)

	b, err := ddl.ReadFile("sql/ddl.sql")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ledger: read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(b)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ledger: create schema in %s: %w", path, err)
	}

	l := &SQLiteLedger{db: db, path: path}
	if n, err := l.Count(ctx); err == nil {
		metrics.UpdateLedgerRecords(n)
	}
	return l, nil
}

// Path returns the database file path.
func (l *SQLiteLedger) Path() string { return l.path }

// Name implements the worker sink contract.
func (l *SQLiteLedger) Name() string { return "sqlite_ledger" }

// Write implements the worker sink contract.
func (l *SQLiteLedger) Write(ctx context.Context, p model.Provenance) error { //nolint:gocritic // hugeParam: sink contract takes records by value
	return l.Append(ctx, p)
}

// Append inserts p.
func (l *SQLiteLedger) Append(ctx context.Context, p model.Provenance) error { //nolint:gocritic // hugeParam: records are stored by value
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}

	_, err := l.db.ExecContext(ctx, insertProvenanceSQL,
		p.ID, p.DataID, p.Category, p.Source, p.ModelUsed, p.ModelVersion,
		p.ValuationScore, p.ConfidenceScore,
		p.ValuationTimestamp.UTC().Format(time.RFC3339Nano),
		p.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite ledger: insert %s: %w", p.ID, err)
	}
	metrics.UpdateLedgerRecordsDelta(1)
	return nil
}

// ByDataID returns up to limit records for dataID, newest first.
func (l *SQLiteLedger) ByDataID(ctx context.Context, dataID string, limit int) ([]model.Provenance, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	start := time.Now()
	defer func() {
		metrics.RecordLedgerQueryLatency(metrics.DurationMs(time.Since(start)))
	}()

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}

	rows, err := l.db.QueryContext(ctx, selectByDataIDSQL, dataID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite ledger: query %s: %w", dataID, err)
	}
	defer rows.Close()

	out := make([]model.Provenance, 0)
	for rows.Next() {
		var (
			p              model.Provenance
			valuedAt, recd string
		)
		if err := rows.Scan(&p.ID, &p.DataID, &p.Category, &p.Source, &p.ModelUsed, &p.ModelVersion,
			&p.ValuationScore, &p.ConfidenceScore, &valuedAt, &recd); err != nil {
			return nil, fmt.Errorf("sqlite ledger: scan: %w", err)
		}
		if p.ValuationTimestamp, err = time.Parse(time.RFC3339Nano, valuedAt); err != nil {
			return nil, fmt.Errorf("sqlite ledger: parse valuation_timestamp %q: %w", valuedAt, err)
		}
		if p.RecordedAt, err = time.Parse(time.RFC3339Nano, recd); err != nil {
			return nil, fmt.Errorf("sqlite ledger: parse recorded_at %q: %w", recd, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite ledger: rows: %w", err)
	}
	return out, nil
}

// Count returns the number of stored records.
func (l *SQLiteLedger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, countSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite ledger: count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (l *SQLiteLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("sqlite ledger: close: %w", err)
	}
	return nil
}
