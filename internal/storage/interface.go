package storage

import (
	"context"

	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
)

// Storage is the abstract interface for the persistence layer
type Storage interface {
	// SaveRun stores a run together with the sponsor snapshot it was computed from
	SaveRun(ctx context.Context, run *domain.Run, sponsors []*domain.Sponsor) error

	// GetRun returns a run by ID, or a NOT_FOUND error
	GetRun(ctx context.Context, id string) (*domain.Run, error)

	// ListRuns returns up to limit runs, newest first
	ListRuns(ctx context.Context, limit int) ([]*domain.Run, error)

	// GetSponsors returns the sponsor snapshot of a run in fetch order
	GetSponsors(ctx context.Context, runID string) ([]*domain.Sponsor, error)

	// GetLatestRun returns the most recent run that was not a dry run, or a NOT_FOUND error
	GetLatestRun(ctx context.Context) (*domain.Run, error)

	// GetLatestSponsors returns the sponsor snapshot of the most recent run
	// that was not a dry run
	GetLatestSponsors(ctx context.Context) ([]*domain.Sponsor, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
