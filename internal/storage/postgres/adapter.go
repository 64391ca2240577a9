package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
	apperrors "github.com/kurihiro0119/sponsor-access-sync/internal/errors"
	"github.com/kurihiro0119/sponsor-access-sync/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		dry_run BOOLEAN NOT NULL,
		total INTEGER NOT NULL,
		count INTEGER NOT NULL,
		eligible INTEGER NOT NULL,
		targets JSONB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS sponsors (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		image TEXT NOT NULL,
		url TEXT NOT NULL,
		is_org BOOLEAN NOT NULL,
		is_private BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		monthly_amount INTEGER NOT NULL,
		PRIMARY KEY (run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_sponsors_name ON sponsors(name);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun saves a run and its sponsor snapshot in one transaction
func (s *postgresStorage) SaveRun(ctx context.Context, run *domain.Run, sponsors []*domain.Sponsor) error {
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
		INSERT INTO runs (id, started_at, finished_at, dry_run, total, count, eligible, targets)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			dry_run = EXCLUDED.dry_run,
			total = EXCLUDED.total,
			count = EXCLUDED.count,
			eligible = EXCLUDED.eligible,
			targets = EXCLUDED.targets
	`,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		run.DryRun,
		run.Numbers.Total,
		run.Numbers.Count,
		run.Eligible,
		string(targetsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sponsors WHERE run_id = $1`, run.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sponsors (run_id, position, name, image, url, is_org, is_private, created_at, monthly_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
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
			sp.CreatedAt,
			sp.MonthlyAmount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert sponsor %s: %w", sp.Account.Name, err)
		}
	}

	return tx.Commit()
}

// GetRun returns a run by ID
func (s *postgresStorage) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, dry_run, total, count, eligible, targets
		FROM runs WHERE id = $1
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("run " + id)
	}
	return run, err
}

// ListRuns returns the newest runs first
func (s *postgresStorage) ListRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, dry_run, total, count, eligible, targets
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1
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
func (s *postgresStorage) GetSponsors(ctx context.Context, runID string) ([]*domain.Sponsor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, image, url, is_org, is_private, created_at, monthly_amount
		FROM sponsors
		WHERE run_id = $1
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
func (s *postgresStorage) GetLatestRun(ctx context.Context) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, dry_run, total, count, eligible, targets
		FROM runs
		WHERE dry_run = FALSE
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
func (s *postgresStorage) GetLatestSponsors(ctx context.Context) ([]*domain.Sponsor, error) {
	run, err := s.GetLatestRun(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetSponsors(ctx, run.ID)
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}

func scanRun(row interface{ Scan(dest ...interface{}) error }) (*domain.Run, error) {
	run := &domain.Run{}
	var targetsJSON []byte
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
	if err := json.Unmarshal(targetsJSON, &run.Targets); err != nil {
		return nil, fmt.Errorf("failed to decode targets of run %s: %w", run.ID, err)
	}
	return run, nil
}
