package domain

import "time"

// GroupTarget names one access-controlled team
type GroupTarget struct {
	Org  string `yaml:"org" json:"org"`
	Team string `yaml:"team" json:"team"`
}

func (t GroupTarget) String() string {
	return t.Org + "/" + t.Team
}

// Action is a membership mutation kind
type Action string

const (
	ActionGrant  Action = "grant"
	ActionRevoke Action = "revoke"
)

// Plan is the grant/revoke delta for one target, computed from a single
// membership snapshot taken before any mutation.
type Plan struct {
	Target   GroupTarget
	Current  HandleSet
	ToGrant  []string
	ToRevoke []string
}

// Empty reports whether the plan has nothing to apply
func (p *Plan) Empty() bool {
	return len(p.ToGrant) == 0 && len(p.ToRevoke) == 0
}

// OperationResult is the outcome of a single grant or revoke call
type OperationResult struct {
	Action Action
	Handle string
	Err    error
}

// TargetResult summarizes reconciliation of one target
type TargetResult struct {
	Target  GroupTarget
	Plan    *Plan
	Results []OperationResult
}

// Failures returns the operations that did not succeed
func (r *TargetResult) Failures() []OperationResult {
	var failed []OperationResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Count returns the number of successful operations of the given action
func (r *TargetResult) Count(action Action) int {
	n := 0
	for _, res := range r.Results {
		if res.Action == action && res.Err == nil {
			n++
		}
	}
	return n
}

// TargetSummary is the persisted form of a TargetResult
type TargetSummary struct {
	Org     string `json:"org"`
	Team    string `json:"team"`
	Granted int    `json:"granted"`
	Revoked int    `json:"revoked"`
	Failed  int    `json:"failed"`
	Planned int    `json:"planned"`
}

// Run is one execution of the sync pipeline
type Run struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	DryRun     bool            `json:"dry_run"`
	Numbers    Numbers         `json:"numbers"`
	Eligible   int             `json:"eligible"`
	Targets    []TargetSummary `json:"targets"`
}

// Failed returns the total number of failed operations across targets
func (r *Run) Failed() int {
	n := 0
	for _, t := range r.Targets {
		n += t.Failed
	}
	return n
}
