package reconciler

import (
	"context"
	"log/slog"

	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
)

// MembershipService reads and mutates the membership of a team
type MembershipService interface {
	GetMembership(ctx context.Context, target domain.GroupTarget) (domain.HandleSet, error)
	Grant(ctx context.Context, target domain.GroupTarget, handle string) error
	Revoke(ctx context.Context, target domain.GroupTarget, handle string) error
}

// Reconciler brings team membership in line with an eligibility set
type Reconciler struct {
	svc    MembershipService
	logger *slog.Logger
}

// New creates a new reconciler
func New(svc MembershipService, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{svc: svc, logger: logger}
}

// Audit computes the delta between current membership and eligibility.
// Both lists are sorted so runs log in a reproducible order.
func Audit(target domain.GroupTarget, current, eligible domain.HandleSet) *domain.Plan {
	return &domain.Plan{
		Target:   target,
		Current:  current,
		ToRevoke: current.Difference(eligible).Sorted(),
		ToGrant:  eligible.Difference(current).Sorted(),
	}
}

// Plan takes one membership snapshot of the target and audits it. The
// snapshot is never re-read while the plan is applied.
func (r *Reconciler) Plan(ctx context.Context, target domain.GroupTarget, eligible domain.HandleSet) (*domain.Plan, error) {
	current, err := r.svc.GetMembership(ctx, target)
	if err != nil {
		return nil, err
	}

	plan := Audit(target, current, eligible)
	r.logger.Info("audited team",
		"target", target.String(),
		"current", len(current),
		"eligible", len(eligible),
		"to_grant", len(plan.ToGrant),
		"to_revoke", len(plan.ToRevoke),
	)
	return plan, nil
}

// Apply issues every revoke and then every grant in the plan. A failed call
// is recorded and logged; it never stops the remaining calls.
func (r *Reconciler) Apply(ctx context.Context, plan *domain.Plan) []domain.OperationResult {
	results := make([]domain.OperationResult, 0, len(plan.ToRevoke)+len(plan.ToGrant))
	target := plan.Target

	for _, handle := range plan.ToRevoke {
		err := r.svc.Revoke(ctx, target, handle)
		if err != nil {
			r.logger.Error("revoke failed", "target", target.String(), "user", handle, "error", err)
		} else {
			r.logger.Info("removed from team", "target", target.String(), "user", handle)
		}
		results = append(results, domain.OperationResult{Action: domain.ActionRevoke, Handle: handle, Err: err})
	}

	for _, handle := range plan.ToGrant {
		err := r.svc.Grant(ctx, target, handle)
		if err != nil {
			r.logger.Error("grant failed", "target", target.String(), "user", handle, "error", err)
		} else {
			r.logger.Info("added to team", "target", target.String(), "user", handle)
		}
		results = append(results, domain.OperationResult{Action: domain.ActionGrant, Handle: handle, Err: err})
	}

	return results
}

// Reconcile audits one target and, unless dryRun is set, applies the plan.
// Only a failure to read membership is returned as an error.
func (r *Reconciler) Reconcile(ctx context.Context, target domain.GroupTarget, eligible domain.HandleSet, dryRun bool) (*domain.TargetResult, error) {
	plan, err := r.Plan(ctx, target, eligible)
	if err != nil {
		return nil, err
	}

	result := &domain.TargetResult{Target: target, Plan: plan}
	if !dryRun {
		result.Results = r.Apply(ctx, plan)
	}
	return result, nil
}

// ReconcileAll reconciles each target in turn against the same eligibility set
func (r *Reconciler) ReconcileAll(ctx context.Context, targets []domain.GroupTarget, eligible domain.HandleSet, dryRun bool) ([]*domain.TargetResult, error) {
	results := make([]*domain.TargetResult, 0, len(targets))
	for _, target := range targets {
		res, err := r.Reconcile(ctx, target, eligible, dryRun)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}
