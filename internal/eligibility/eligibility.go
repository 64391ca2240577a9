// Package eligibility derives the set of handles entitled to team access
// from sponsorships and the static access policy.
package eligibility

import "github.com/kurihiro0119/sponsor-access-sync/internal/domain"

// Rules is the static input to Compute
type Rules struct {
	// MinAmount is the monthly amount, in whole dollars, a sponsorship must reach
	MinAmount int
	// Privileged handles are eligible unconditionally
	Privileged domain.HandleSet
	// OrgMembers maps a lowercase org handle to the users granted access through it
	OrgMembers map[string]domain.HandleSet
	// GrantOrgAccounts also makes the eligible org handles themselves eligible
	GrantOrgAccounts bool
}

// Compute returns the eligibility set: individual sponsors at or above the
// threshold, the privileged handles, and the expansion of every qualifying
// org. Org handles are only included when GrantOrgAccounts is set.
func Compute(sponsors []*domain.Sponsor, rules Rules) domain.HandleSet {
	eligibleOrgs := domain.NewHandleSet()
	eligible := domain.NewHandleSet()

	for _, s := range sponsors {
		if s.MonthlyAmount < rules.MinAmount {
			continue
		}
		if s.Account.IsOrganization {
			eligibleOrgs.Add(s.Account.Name)
		} else {
			eligible.Add(s.Account.Name)
		}
	}

	eligible.Union(rules.Privileged)

	for key, org := range eligibleOrgs {
		if members, ok := rules.OrgMembers[key]; ok {
			eligible.Union(members)
		}
		if rules.GrantOrgAccounts {
			eligible.Add(org)
		}
	}

	return eligible
}
