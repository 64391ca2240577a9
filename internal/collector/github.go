package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
)

// DefaultPageSize is the largest page GitHub serves for list endpoints
const DefaultPageSize = 100

// githubCollector implements Collector using GitHub API
type githubCollector struct {
	client         *github.Client
	rateLimiter    RateLimiter
	graphQLLimiter RateLimiter // GitHub meters GraphQL against its own quota
	graphQLPath    string
	pageSize       int
	logger         *slog.Logger
}

// Option configures a GitHub collector
type Option func(*githubCollector) error

// WithBaseURL points the collector at a different API root (GitHub Enterprise or a test server).
// For an Enterprise REST root ending in /api/v3/, GraphQL is sent to /api/graphql.
func WithBaseURL(baseURL string) Option {
	return func(c *githubCollector) error {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return fmt.Errorf("invalid GitHub API URL: %w", err)
		}
		c.client.BaseURL = u
		c.graphQLPath = graphQLPath(u)
		return nil
	}
}

// graphQLPath returns the GraphQL endpoint relative to a REST base URL
func graphQLPath(base *url.URL) string {
	if strings.HasSuffix(base.Path, "/api/v3/") {
		return "../graphql"
	}
	return "graphql"
}

// WithPageSize sets the page size used for list requests
func WithPageSize(size int) Option {
	return func(c *githubCollector) error {
		if size < 1 || size > 100 {
			return fmt.Errorf("page size must be between 1 and 100, got %d", size)
		}
		c.pageSize = size
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *githubCollector) error {
		c.logger = logger
		return nil
	}
}

// WithRateLimiter replaces the default rate limiter for REST calls
func WithRateLimiter(rl RateLimiter) Option {
	return func(c *githubCollector) error {
		c.rateLimiter = rl
		return nil
	}
}

// WithGraphQLRateLimiter replaces the default rate limiter for GraphQL queries
func WithGraphQLRateLimiter(rl RateLimiter) Option {
	return func(c *githubCollector) error {
		c.graphQLLimiter = rl
		return nil
	}
}

// NewGitHubCollector creates a new GitHub collector authenticated with a bearer token
func NewGitHubCollector(token string, opts ...Option) (Collector, error) {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	c := &githubCollector{
		client:      github.NewClient(tc),
		graphQLPath: "graphql",
		pageSize:    DefaultPageSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.rateLimiter == nil {
		c.rateLimiter = NewRateLimiter(100*time.Millisecond, c.logger)
	}
	if c.graphQLLimiter == nil {
		c.graphQLLimiter = NewRateLimiter(100*time.Millisecond, c.logger)
	}

	return c, nil
}

// GetMembers retrieves all confirmed members of a team
func (c *githubCollector) GetMembers(ctx context.Context, target domain.GroupTarget) (domain.HandleSet, error) {
	op := "list members of " + target.String()

	logins, err := FetchAllPages(ctx, c.pageSize, func(ctx context.Context, page, perPage int) ([]string, error) {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		opts := &github.TeamListTeamMembersOptions{
			ListOptions: github.ListOptions{Page: page, PerPage: perPage},
		}
		users, resp, err := c.client.Teams.ListTeamMembersBySlug(ctx, target.Org, target.Team, opts)
		updateRateLimitFromResponse(c.rateLimiter, resp)
		if err != nil {
			return nil, transportError(op, resp, err)
		}

		c.logger.Debug("fetched team members page", "target", target.String(), "page", page, "count", len(users))
		logins := make([]string, len(users))
		for i, u := range users {
			logins[i] = u.GetLogin()
		}
		return logins, nil
	})
	if err != nil {
		return nil, err
	}

	return domain.NewHandleSet(logins...), nil
}

// GetInvited retrieves all pending invitations of a team. Invitations are
// paginated the same way as members.
func (c *githubCollector) GetInvited(ctx context.Context, target domain.GroupTarget) (domain.HandleSet, error) {
	op := "list invitations of " + target.String()

	logins, err := FetchAllPages(ctx, c.pageSize, func(ctx context.Context, page, perPage int) ([]string, error) {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		opts := &github.ListOptions{Page: page, PerPage: perPage}
		invitations, resp, err := c.client.Teams.ListPendingTeamInvitationsBySlug(ctx, target.Org, target.Team, opts)
		updateRateLimitFromResponse(c.rateLimiter, resp)
		if err != nil {
			return nil, transportError(op, resp, err)
		}

		c.logger.Debug("fetched team invitations page", "target", target.String(), "page", page, "count", len(invitations))
		// Email-only invitations carry no login and are dropped by the set.
		logins := make([]string, len(invitations))
		for i, inv := range invitations {
			logins[i] = inv.GetLogin()
		}
		return logins, nil
	})
	if err != nil {
		return nil, err
	}

	return domain.NewHandleSet(logins...), nil
}

// GetMembership retrieves members and pending invitees as one set
func (c *githubCollector) GetMembership(ctx context.Context, target domain.GroupTarget) (domain.HandleSet, error) {
	members, err := c.GetMembers(ctx, target)
	if err != nil {
		return nil, err
	}

	invited, err := c.GetInvited(ctx, target)
	if err != nil {
		return nil, err
	}

	members.Union(invited)

	remaining, reset := c.rateLimiter.CheckLimit()
	c.logger.Debug("fetched team membership", "target", target.String(), "count", len(members),
		"rate_remaining", remaining, "rate_reset", reset)
	return members, nil
}

// Grant adds a user to a team. GitHub invites users who are not yet org members.
func (c *githubCollector) Grant(ctx context.Context, target domain.GroupTarget, handle string) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return mutationError(domain.ActionGrant, target, handle, nil, err)
	}

	opts := &github.TeamAddTeamMembershipOptions{Role: "member"}
	_, resp, err := c.client.Teams.AddTeamMembershipBySlug(ctx, target.Org, target.Team, handle, opts)
	updateRateLimitFromResponse(c.rateLimiter, resp)
	if err != nil {
		return mutationError(domain.ActionGrant, target, handle, resp, err)
	}
	return nil
}

// Revoke removes a user from a team
func (c *githubCollector) Revoke(ctx context.Context, target domain.GroupTarget, handle string) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return mutationError(domain.ActionRevoke, target, handle, nil, err)
	}

	resp, err := c.client.Teams.RemoveTeamMembershipBySlug(ctx, target.Org, target.Team, handle)
	updateRateLimitFromResponse(c.rateLimiter, resp)
	if err != nil {
		return mutationError(domain.ActionRevoke, target, handle, resp, err)
	}
	return nil
}

// updateRateLimitFromResponse updates a rate limiter from API response headers
func updateRateLimitFromResponse(rl RateLimiter, resp *github.Response) {
	if resp != nil && resp.Rate.Limit > 0 {
		rl.UpdateLimit(resp.Rate.Remaining, resp.Rate.Reset.Time)
	}
}
