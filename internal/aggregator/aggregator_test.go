package aggregator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
	apperrors "github.com/kurihiro0119/sponsor-access-sync/internal/errors"
	"github.com/kurihiro0119/sponsor-access-sync/internal/storage"
)

type memoryStorage struct {
	storage.Storage
	runs     []*domain.Run
	sponsors map[string][]*domain.Sponsor
	err      error
}

func (m *memoryStorage) ListRuns(_ context.Context, limit int) ([]*domain.Run, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.runs) {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

func (m *memoryStorage) GetRun(_ context.Context, id string) (*domain.Run, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, apperrors.NewNotFoundError("run " + id)
}

func (m *memoryStorage) GetLatestRun(_ context.Context) (*domain.Run, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.runs {
		if !r.DryRun {
			return r, nil
		}
	}
	return nil, apperrors.NewNotFoundError("run")
}

func (m *memoryStorage) GetLatestSponsors(ctx context.Context) ([]*domain.Sponsor, error) {
	run, err := m.GetLatestRun(ctx)
	if err != nil {
		return nil, err
	}
	return m.sponsors[run.ID], nil
}

var fixture = []*domain.Sponsor{
	{Account: domain.Account{Name: "alice"}, MonthlyAmount: 10},
	{Account: domain.Account{Name: "hidden"}, IsPrivate: true, MonthlyAmount: 25},
	{Account: domain.Account{Name: "acme", IsOrganization: true}, MonthlyAmount: 5},
}

func TestSummarizeIncludesPrivateSponsors(t *testing.T) {
	assert.Equal(t, domain.Numbers{Total: 40, Count: 3}, Summarize(fixture))
	assert.Equal(t, domain.Numbers{}, Summarize(nil))
}

func TestPublicRosterExcludesPrivateSponsors(t *testing.T) {
	roster := PublicRoster(fixture)

	require.Len(t, roster, 2)
	assert.Equal(t, "alice", roster[0].Name)
	assert.Equal(t, "acme", roster[1].Name)
	assert.True(t, roster[1].IsOrganization)
}

func TestAggregatorReadsLatestRun(t *testing.T) {
	store := &memoryStorage{
		runs: []*domain.Run{
			{ID: "new", Numbers: domain.Numbers{Total: 40, Count: 3}},
			{ID: "old", Numbers: domain.Numbers{Total: 4, Count: 1}},
		},
		sponsors: map[string][]*domain.Sponsor{"new": fixture},
	}
	agg := NewAggregator(store)
	ctx := context.Background()

	numbers, err := agg.GetNumbers(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Numbers{Total: 40, Count: 3}, *numbers)

	roster, err := agg.GetPublicRoster(ctx)
	require.NoError(t, err)
	assert.Len(t, roster, 2)

	runs, err := agg.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	run, err := agg.GetRun(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Numbers.Count)

	_, err = agg.GetRun(ctx, "nope")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAggregatorPublishesOnlyAppliedRuns(t *testing.T) {
	store := &memoryStorage{
		runs: []*domain.Run{
			{ID: "plan", DryRun: true, Numbers: domain.Numbers{Total: 1, Count: 1}},
			{ID: "sync", Numbers: domain.Numbers{Total: 40, Count: 3}},
		},
		sponsors: map[string][]*domain.Sponsor{
			"plan": {{Account: domain.Account{Name: "mallory"}, MonthlyAmount: 1}},
			"sync": fixture,
		},
	}
	agg := NewAggregator(store)

	numbers, err := agg.GetNumbers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, numbers.Total)

	roster, err := agg.GetPublicRoster(context.Background())
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "alice", roster[0].Name)

	agg = NewAggregator(&memoryStorage{runs: []*domain.Run{{ID: "plan", DryRun: true}}})
	_, err = agg.GetNumbers(context.Background())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAggregatorErrors(t *testing.T) {
	agg := NewAggregator(&memoryStorage{})
	_, err := agg.GetNumbers(context.Background())
	assert.True(t, apperrors.IsNotFound(err))

	agg = NewAggregator(&memoryStorage{err: errors.New("disk full")})
	_, err = agg.ListRuns(context.Background(), 5)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeInternal, appErr.Code)
}
