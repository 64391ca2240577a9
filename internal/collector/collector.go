package collector

import (
	"context"

	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
)

// Collector defines the interface for reading sponsorships and managing team membership on GitHub
type Collector interface {
	// GetSponsors retrieves every recurring sponsorship of the authenticated maintainer,
	// newest first. One-time payments are skipped.
	GetSponsors(ctx context.Context) ([]*domain.Sponsor, error)

	// GetMembers retrieves the confirmed members of a team
	GetMembers(ctx context.Context, target domain.GroupTarget) (domain.HandleSet, error)

	// GetInvited retrieves the pending invitees of a team
	GetInvited(ctx context.Context, target domain.GroupTarget) (domain.HandleSet, error)

	// GetMembership retrieves members and pending invitees as a single set
	GetMembership(ctx context.Context, target domain.GroupTarget) (domain.HandleSet, error)

	// Grant adds (or invites) a user to a team
	Grant(ctx context.Context, target domain.GroupTarget, handle string) error

	// Revoke removes a user's team membership or pending invitation
	Revoke(ctx context.Context, target domain.GroupTarget, handle string) error
}
