package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
)

// Policy is the static access policy: who qualifies and which teams to manage
type Policy struct {
	MinAmount        int                  `yaml:"min_amount"`
	GrantOrgAccounts bool                 `yaml:"grant_org_accounts"`
	Targets          []domain.GroupTarget `yaml:"targets"`
	PrivilegedUsers  []string             `yaml:"privileged_users"`
	OrgUsers         map[string][]string  `yaml:"org_users"`
}

// LoadPolicy reads and validates a policy file
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// requiredKeys holds policy keys whose zero value is a valid setting and so
// must be present explicitly
type requiredKeys struct {
	MinAmount *int `yaml:"min_amount"`
}

// ParsePolicy decodes a YAML policy document. min_amount has no default:
// a policy without it is rejected rather than granting access to everyone.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	var required requiredKeys
	if err := yaml.Unmarshal(data, &required); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if required.MinAmount == nil {
		return nil, &ConfigError{Field: "min_amount", Message: "is required"}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate validates the policy
func (p *Policy) Validate() error {
	if p.MinAmount < 0 {
		return &ConfigError{Field: "min_amount", Message: "must not be negative"}
	}
	if len(p.Targets) == 0 {
		return &ConfigError{Field: "targets", Message: "at least one org/team target is required"}
	}
	for i, t := range p.Targets {
		if t.Org == "" || t.Team == "" {
			return &ConfigError{Field: fmt.Sprintf("targets[%d]", i), Message: "org and team are required"}
		}
	}
	return nil
}

// Privileged returns the always-eligible handles as a set
func (p *Policy) Privileged() domain.HandleSet {
	return domain.NewHandleSet(p.PrivilegedUsers...)
}

// OrgMembers returns the org-to-members expansion keyed by org handle
func (p *Policy) OrgMembers() map[string]domain.HandleSet {
	out := make(map[string]domain.HandleSet, len(p.OrgUsers))
	for org, users := range p.OrgUsers {
		set := domain.NewHandleSet(users...)
		if existing, ok := out[strings.ToLower(org)]; ok {
			existing.Union(set)
			continue
		}
		out[strings.ToLower(org)] = set
	}
	return out
}
