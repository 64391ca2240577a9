package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/sponsor-access-sync/internal/config"
	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
	apperrors "github.com/kurihiro0119/sponsor-access-sync/internal/errors"
	"github.com/kurihiro0119/sponsor-access-sync/internal/reconciler"
	"github.com/kurihiro0119/sponsor-access-sync/internal/reporter"
	"github.com/kurihiro0119/sponsor-access-sync/internal/storage/sqlite"
)

var target = domain.GroupTarget{Org: "acme-insiders", Team: "insiders"}

type staticSource struct {
	sponsors []*domain.Sponsor
	err      error
}

func (s staticSource) GetSponsors(context.Context) ([]*domain.Sponsor, error) {
	return s.sponsors, s.err
}

type memoryTeam struct {
	members    domain.HandleSet
	failFor    map[string]bool
	failTarget string
	grants     int
}

func (m *memoryTeam) GetMembership(_ context.Context, t domain.GroupTarget) (domain.HandleSet, error) {
	if t.String() == m.failTarget {
		return nil, &apperrors.TransportError{Operation: "list members of " + t.String(), StatusCode: 500}
	}
	snapshot := domain.NewHandleSet()
	snapshot.Union(m.members)
	return snapshot, nil
}

func (m *memoryTeam) Grant(_ context.Context, t domain.GroupTarget, handle string) error {
	m.grants++
	if m.failFor[handle] {
		return &apperrors.MutationError{Action: "grant", Handle: handle, Target: t.String(), StatusCode: 422}
	}
	m.members.Add(handle)
	return nil
}

func (m *memoryTeam) Revoke(_ context.Context, _ domain.GroupTarget, handle string) error {
	delete(m.members, handle)
	return nil
}

func fixture() ([]*domain.Sponsor, *config.Policy) {
	sponsors := []*domain.Sponsor{
		{Account: domain.Account{Name: "alice"}, MonthlyAmount: 10},
		{Account: domain.Account{Name: "acme", IsOrganization: true}, MonthlyAmount: 5},
		{Account: domain.Account{Name: "shy"}, IsPrivate: true, MonthlyAmount: 2},
	}
	policy := &config.Policy{
		MinAmount:       4,
		Targets:         []domain.GroupTarget{target},
		PrivilegedUsers: []string{"zed"},
		OrgUsers:        map[string][]string{"acme": {"bob"}},
	}
	return sponsors, policy
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunEndToEnd(t *testing.T) {
	sponsors, policy := fixture()
	team := &memoryTeam{members: domain.NewHandleSet("zed", "carol"), failFor: map[string]bool{"bob": true}}
	dir := t.TempDir()
	store, err := sqlite.NewSQLiteStorage(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	p := New(staticSource{sponsors: sponsors}, reconciler.New(team, quiet()), policy, reporter.New(dir, quiet()), store, quiet())
	res, err := p.Run(context.Background(), false)
	require.NoError(t, err)

	require.Len(t, res.Targets, 1)
	plan := res.Targets[0].Plan
	assert.Equal(t, []string{"alice", "bob"}, plan.ToGrant)
	assert.Equal(t, []string{"carol"}, plan.ToRevoke)

	// bob failed but alice was still granted
	assert.Equal(t, []string{"alice", "zed"}, team.members.Sorted())
	assert.Equal(t, domain.TargetSummary{Org: "acme-insiders", Team: "insiders", Granted: 1, Revoked: 1, Failed: 1, Planned: 3}, res.Run.Targets[0])
	assert.Equal(t, 1, res.Run.Failed())
	assert.Equal(t, domain.Numbers{Total: 17, Count: 3}, res.Run.Numbers)
	assert.Equal(t, 3, res.Run.Eligible)

	_, err = os.Stat(filepath.Join(dir, reporter.NumbersFile))
	assert.NoError(t, err)

	saved, err := store.GetRun(context.Background(), res.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Run.Targets, saved.Targets)

	snapshot, err := store.GetLatestSponsors(context.Background())
	require.NoError(t, err)
	assert.Len(t, snapshot, 3)
}

func TestRunFetchFailureWritesNothing(t *testing.T) {
	_, policy := fixture()
	team := &memoryTeam{members: domain.NewHandleSet("carol")}
	dir := t.TempDir()
	fetchErr := &apperrors.TransportError{Operation: "query sponsorships", StatusCode: 502}

	p := New(staticSource{err: fetchErr}, reconciler.New(team, quiet()), policy, reporter.New(dir, quiet()), nil, quiet())
	res, err := p.Run(context.Background(), false)

	assert.Nil(t, res)
	assert.True(t, apperrors.IsTransport(err))
	assert.Equal(t, 0, team.grants)
	assert.Equal(t, []string{"carol"}, team.members.Sorted())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunLaterTargetFetchFailureWritesNothing(t *testing.T) {
	sponsors, policy := fixture()
	broken := domain.GroupTarget{Org: "acme-insiders", Team: "alumni"}
	policy.Targets = []domain.GroupTarget{target, broken}
	team := &memoryTeam{members: domain.NewHandleSet("carol"), failTarget: broken.String()}
	dir := t.TempDir()
	store, err := sqlite.NewSQLiteStorage(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	p := New(staticSource{sponsors: sponsors}, reconciler.New(team, quiet()), policy, reporter.New(dir, quiet()), store, quiet())
	res, err := p.Run(context.Background(), false)

	assert.Nil(t, res)
	assert.True(t, apperrors.IsTransport(err))
	// the first target was already reconciled
	assert.Equal(t, 3, team.grants)
	assert.Equal(t, []string{"alice", "bob", "zed"}, team.members.Sorted())

	for _, name := range []string{reporter.NumbersFile, reporter.SponsorsFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), name)
	}
	_, err = store.GetLatestRun(context.Background())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRunDryRun(t *testing.T) {
	sponsors, policy := fixture()
	team := &memoryTeam{members: domain.NewHandleSet("carol")}
	dir := t.TempDir()

	p := New(staticSource{sponsors: sponsors}, reconciler.New(team, quiet()), policy, reporter.New(dir, quiet()), nil, quiet())
	res, err := p.Run(context.Background(), true)
	require.NoError(t, err)

	assert.True(t, res.Run.DryRun)
	assert.Equal(t, 4, res.Run.Targets[0].Planned)
	assert.Equal(t, 0, team.grants)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEligibleWrapsFetchError(t *testing.T) {
	_, policy := fixture()
	boom := errors.New("boom")
	p := New(staticSource{err: boom}, nil, policy, nil, nil, quiet())

	_, _, err := p.Eligible(context.Background())
	assert.ErrorIs(t, err, boom)
}
