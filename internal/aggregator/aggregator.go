package aggregator

import (
	"context"

	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
	apperrors "github.com/kurihiro0119/sponsor-access-sync/internal/errors"
	"github.com/kurihiro0119/sponsor-access-sync/internal/storage"
)

// DefaultRunLimit is the number of runs returned when no limit is given
const DefaultRunLimit = 20

// Summarize returns the total monthly amount and number of sponsorships.
// Private sponsorships count.
func Summarize(sponsors []*domain.Sponsor) domain.Numbers {
	n := domain.Numbers{Count: len(sponsors)}
	for _, s := range sponsors {
		n.Total += s.MonthlyAmount
	}
	return n
}

// PublicRoster returns the accounts of non-private sponsors in fetch order
func PublicRoster(sponsors []*domain.Sponsor) []domain.Account {
	roster := make([]domain.Account, 0, len(sponsors))
	for _, s := range sponsors {
		if s.IsPrivate {
			continue
		}
		roster = append(roster, s.Account)
	}
	return roster
}

// Aggregator defines the interface for reading published reports
type Aggregator interface {
	// GetNumbers returns the aggregate figures of the latest published run
	GetNumbers(ctx context.Context) (*domain.Numbers, error)

	// GetPublicRoster returns the public roster of the latest published run
	GetPublicRoster(ctx context.Context) ([]domain.Account, error)

	// ListRuns returns the most recent runs, newest first
	ListRuns(ctx context.Context, limit int) ([]*domain.Run, error)

	// GetRun returns a single run
	GetRun(ctx context.Context, id string) (*domain.Run, error)
}

// aggregator implements the Aggregator interface
type aggregator struct {
	storage storage.Storage
}

// NewAggregator creates a new aggregator
func NewAggregator(storage storage.Storage) Aggregator {
	return &aggregator{
		storage: storage,
	}
}

// GetNumbers returns the aggregate figures of the latest published run
func (a *aggregator) GetNumbers(ctx context.Context) (*domain.Numbers, error) {
	run, err := a.storage.GetLatestRun(ctx)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, err
		}
		return nil, apperrors.NewInternalError("failed to load latest run", err)
	}
	numbers := run.Numbers
	return &numbers, nil
}

// GetPublicRoster returns the public roster of the latest published run
func (a *aggregator) GetPublicRoster(ctx context.Context) ([]domain.Account, error) {
	sponsors, err := a.storage.GetLatestSponsors(ctx)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, err
		}
		return nil, apperrors.NewInternalError("failed to load sponsors", err)
	}
	return PublicRoster(sponsors), nil
}

// ListRuns returns the most recent runs, newest first
func (a *aggregator) ListRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	runs, err := a.storage.ListRuns(ctx, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list runs", err)
	}
	return runs, nil
}

// GetRun returns a single run
func (a *aggregator) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	run, err := a.storage.GetRun(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, err
		}
		return nil, apperrors.NewInternalError("failed to load run", err)
	}
	return run, nil
}
