package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kurihiro0119/sponsor-access-sync/internal/aggregator"
	"github.com/kurihiro0119/sponsor-access-sync/internal/config"
	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
	"github.com/kurihiro0119/sponsor-access-sync/internal/eligibility"
	"github.com/kurihiro0119/sponsor-access-sync/internal/reconciler"
	"github.com/kurihiro0119/sponsor-access-sync/internal/reporter"
	"github.com/kurihiro0119/sponsor-access-sync/internal/storage"
)

// SponsorSource lists current sponsorships
type SponsorSource interface {
	GetSponsors(ctx context.Context) ([]*domain.Sponsor, error)
}

// Pipeline runs one sync: fetch sponsors, compute eligibility, reconcile
// every target, then publish reports and record the run
type Pipeline struct {
	source     SponsorSource
	reconciler *reconciler.Reconciler
	policy     *config.Policy
	reporter   *reporter.Reporter
	store      storage.Storage
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a pipeline. reporter and store may be nil to skip publishing.
func New(source SponsorSource, rec *reconciler.Reconciler, policy *config.Policy, rep *reporter.Reporter, store storage.Storage, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source:     source,
		reconciler: rec,
		policy:     policy,
		reporter:   rep,
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

// Result is the outcome of a pipeline run
type Result struct {
	Run      *domain.Run
	Sponsors []*domain.Sponsor
	Eligible domain.HandleSet
	Targets  []*domain.TargetResult
}

// Rules returns the eligibility rules of the policy
func Rules(p *config.Policy) eligibility.Rules {
	return eligibility.Rules{
		MinAmount:        p.MinAmount,
		Privileged:       p.Privileged(),
		OrgMembers:       p.OrgMembers(),
		GrantOrgAccounts: p.GrantOrgAccounts,
	}
}

// Eligible fetches sponsors and computes the eligibility set without touching any team
func (p *Pipeline) Eligible(ctx context.Context) ([]*domain.Sponsor, domain.HandleSet, error) {
	sponsors, err := p.source.GetSponsors(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get sponsors: %w", err)
	}
	eligible := eligibility.Compute(sponsors, Rules(p.policy))
	p.logger.Info("computed eligibility", "sponsors", len(sponsors), "eligible", len(eligible))
	return sponsors, eligible, nil
}

// Run executes the pipeline. Any fetch failure aborts before reports are
// written. Grant and revoke failures are reported in the result only. A dry
// run plans every target but mutates nothing and writes no reports.
func (p *Pipeline) Run(ctx context.Context, dryRun bool) (*Result, error) {
	started := p.now()

	sponsors, eligible, err := p.Eligible(ctx)
	if err != nil {
		return nil, err
	}

	targets, err := p.reconciler.ReconcileAll(ctx, p.policy.Targets, eligible, dryRun)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile: %w", err)
	}

	numbers := aggregator.Summarize(sponsors)
	if p.reporter != nil && !dryRun {
		if numbers, err = p.reporter.Write(sponsors); err != nil {
			return nil, fmt.Errorf("failed to write reports: %w", err)
		}
	}

	run := &domain.Run{
		ID:         uuid.New().String(),
		StartedAt:  started,
		FinishedAt: p.now(),
		DryRun:     dryRun,
		Numbers:    numbers,
		Eligible:   len(eligible),
		Targets:    summarize(targets),
	}

	if p.store != nil {
		if err := p.store.SaveRun(ctx, run, sponsors); err != nil {
			p.logger.Warn("failed to save run", "run", run.ID, "error", err)
		}
	}

	return &Result{Run: run, Sponsors: sponsors, Eligible: eligible, Targets: targets}, nil
}

func summarize(results []*domain.TargetResult) []domain.TargetSummary {
	out := make([]domain.TargetSummary, len(results))
	for i, res := range results {
		out[i] = domain.TargetSummary{
			Org:     res.Target.Org,
			Team:    res.Target.Team,
			Granted: res.Count(domain.ActionGrant),
			Revoked: res.Count(domain.ActionRevoke),
			Failed:  len(res.Failures()),
			Planned: len(res.Plan.ToGrant) + len(res.Plan.ToRevoke),
		}
	}
	return out
}
