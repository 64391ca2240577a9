package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
	apperrors "github.com/kurihiro0119/sponsor-access-sync/internal/errors"
	"github.com/kurihiro0119/sponsor-access-sync/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		dry_run INTEGER NOT NULL,
		total INTEGER NOT NULL,
		count INTEGER NOT NULL,
		eligible INTEGER NOT NULL,
		targets TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS sponsors (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		image TEXT NOT NULL,
		url TEXT NOT NULL,
		is_org INTEGER NOT NULL,
		is_private INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		monthly_amount INTEGER NOT NULL,
		PRIMARY KEY (run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_sponsors_name ON sponsors(name);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun saves a run and its sponsor snapshot in one transaction
func (s *sqliteStorage) SaveRun(ctx context.Context, run *domain.Run, sponsors []*domain.Sponsor) error {
	targetsJSON, err := json.Marshal(run.Targets)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, started_at, finished_at, dry_run, total, count, eligible, targets)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.DryRun,
		run.Numbers.Total,
		run.Numbers.Count,
		run.Eligible,
		string(targetsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sponsors WHERE run_id = ?`, run.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO sponsors (run_id, position, name, image, url, is_org, is_private, created_at, monthly_amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, sp := range sponsors {
		_, err = stmt.ExecContext(ctx,
			run.ID,
			i,
			sp.Account.Name,
			sp.Account.Image,
			sp.Account.URL,
			sp.Account.IsOrganization,
			sp.IsPrivate,
			sp.CreatedAt.UTC(),
			sp.MonthlyAmount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert sponsor %s: %w", sp.Account.Name, err)
		}
	}

	return tx.Commit()
}

// GetRun returns a run by ID
func (s *sqliteStorage) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, dry_run, total, count, eligible, targets
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("run " + id)
	}
	return run, err
}

// ListRuns returns the newest runs first
func (s *sqliteStorage) ListRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, dry_run, total, count, eligible, targets
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetSponsors returns the sponsor snapshot of a run
func (s *sqliteStorage) GetSponsors(ctx context.Context, runID string) ([]*domain.Sponsor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, image, url, is_org, is_private, created_at, monthly_amount
		FROM sponsors
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sponsors []*domain.Sponsor
	for rows.Next() {
		sp := &domain.Sponsor{}
		if err := rows.Scan(
			&sp.Account.Name,
			&sp.Account.Image,
			&sp.Account.URL,
			&sp.Account.IsOrganization,
			&sp.IsPrivate,
			&sp.CreatedAt,
			&sp.MonthlyAmount,
		); err != nil {
			return nil, err
		}
		sponsors = append(sponsors, sp)
	}
	return sponsors, rows.Err()
}

// GetLatestRun returns the most recent published (non dry-run) run
func (s *sqliteStorage) GetLatestRun(ctx context.Context) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, dry_run, total, count, eligible, targets
		FROM runs
		WHERE dry_run = 0
		ORDER BY started_at DESC
		LIMIT 1
	`)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("run")
	}
	return run, err
}

// GetLatestSponsors returns the sponsor snapshot of the most recent published run
func (s *sqliteStorage) GetLatestSponsors(ctx context.Context) ([]*domain.Sponsor, error) {
	run, err := s.GetLatestRun(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetSponsors(ctx, run.ID)
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*domain.Run, error) {
	run := &domain.Run{}
	var targetsJSON string
	if err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.DryRun,
		&run.Numbers.Total,
		&run.Numbers.Count,
		&run.Eligible,
		&targetsJSON,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(targetsJSON), &run.Targets); err != nil {
		return nil, fmt.Errorf("failed to decode targets of run %s: %w", run.ID, err)
	}
	return run, nil
}
