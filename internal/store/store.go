package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"chatpilot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps tracked links and delivery history in one SQLite file.
// It implements domain.LinkStore and domain.DeliveryLog.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ domain.LinkStore   = (*SQLiteStore)(nil)
	_ domain.DeliveryLog = (*SQLiteStore)(nil)
)

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: every statement is serialized, which also makes
	// each upsert and visit increment atomic with respect to the others.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, id, targetURL string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_links (id, target_url, visit_count, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET target_url = excluded.target_url, updated_at = excluded.updated_at`,
		id, targetURL, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert link %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Resolve(ctx context.Context, id string) (string, error) {
	var target string
	err := s.db.QueryRowContext(ctx,
		`UPDATE tracked_links SET visit_count = visit_count + 1 WHERE id = ? RETURNING target_url`, id,
	).Scan(&target)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrLinkNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve link %s: %w", id, err)
	}
	return target, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.TrackedLink, error) {
	var l domain.TrackedLink
	err := s.db.QueryRowContext(ctx,
		`SELECT id, target_url, visit_count, created_at FROM tracked_links WHERE id = ?`, id,
	).Scan(&l.ID, &l.TargetURL, &l.VisitCount, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get link %s: %w", id, err)
	}
	return &l, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]domain.TrackedLink, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, target_url, visit_count, created_at FROM tracked_links
		 ORDER BY created_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	var links []domain.TrackedLink
	for rows.Next() {
		var l domain.TrackedLink
		if err := rows.Scan(&l.ID, &l.TargetURL, &l.VisitCount, &l.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *SQLiteStore) RecordDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (id, chat, payload_kind, phase, outcome, error_kind, message, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Chat, rec.PayloadKind, rec.Phase, rec.Outcome, string(rec.ErrorKind), rec.Message,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record delivery %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) RecentDeliveries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat, payload_kind, phase, outcome, error_kind, message, started_at, finished_at
		 FROM deliveries ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var recs []domain.DeliveryRecord
	for rows.Next() {
		var r domain.DeliveryRecord
		var kind string
		if err := rows.Scan(&r.ID, &r.Chat, &r.PayloadKind, &r.Phase, &r.Outcome, &kind, &r.Message,
			&r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.ErrorKind = domain.ErrorKind(kind)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Ping checks that the database answers queries.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
