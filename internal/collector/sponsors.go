package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
	apperrors "github.com/kurihiro0119/sponsor-access-sync/internal/errors"
)

const sponsorshipsQuery = `
query($first: Int!, $after: String) {
  viewer {
    sponsorshipsAsMaintainer(
      first: $first
      after: $after
      includePrivate: true
      orderBy: {field: CREATED_AT, direction: DESC}
    ) {
      pageInfo {
        hasNextPage
        endCursor
      }
      nodes {
        createdAt
        isOneTimePayment
        privacyLevel
        sponsorEntity {
          ... on Actor {
            __typename
            login
            avatarUrl
            url
          }
        }
        tier {
          monthlyPriceInDollars
        }
      }
    }
  }
}`

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type sponsorshipNode struct {
	CreatedAt        string `json:"createdAt"`
	IsOneTimePayment bool   `json:"isOneTimePayment"`
	PrivacyLevel     string `json:"privacyLevel"`
	SponsorEntity    *struct {
		Typename  string `json:"__typename"`
		Login     string `json:"login"`
		AvatarURL string `json:"avatarUrl"`
		URL       string `json:"url"`
	} `json:"sponsorEntity"`
	Tier *struct {
		MonthlyPriceInDollars int `json:"monthlyPriceInDollars"`
	} `json:"tier"`
}

type sponsorshipsResponse struct {
	Data *struct {
		Viewer struct {
			SponsorshipsAsMaintainer struct {
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
				Nodes []sponsorshipNode `json:"nodes"`
			} `json:"sponsorshipsAsMaintainer"`
		} `json:"viewer"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// GetSponsors retrieves all recurring sponsorships, newest first
func (c *githubCollector) GetSponsors(ctx context.Context) ([]*domain.Sponsor, error) {
	return FetchAllCursor(ctx, func(ctx context.Context, cursor *string) (CursorPage[*domain.Sponsor], error) {
		return c.fetchSponsorsPage(ctx, cursor)
	})
}

func (c *githubCollector) fetchSponsorsPage(ctx context.Context, cursor *string) (CursorPage[*domain.Sponsor], error) {
	const op = "query sponsorships"
	var page CursorPage[*domain.Sponsor]

	if err := c.graphQLLimiter.Wait(ctx); err != nil {
		return page, err
	}

	body := &graphQLRequest{
		Query: sponsorshipsQuery,
		Variables: map[string]interface{}{
			"first": c.pageSize,
			"after": cursor,
		},
	}
	req, err := c.client.NewRequest("POST", c.graphQLPath, body)
	if err != nil {
		return page, &apperrors.TransportError{Operation: op, Err: err}
	}

	var out sponsorshipsResponse
	resp, err := c.client.Do(ctx, req, &out)
	updateRateLimitFromResponse(c.graphQLLimiter, resp)
	if err != nil {
		return page, transportError(op, resp, err)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, len(out.Errors))
		for i, e := range out.Errors {
			msgs[i] = e.Message
		}
		return page, &apperrors.TransportError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    strings.Join(msgs, "; "),
		}
	}
	if out.Data == nil {
		return page, &apperrors.TransportError{Operation: op, StatusCode: resp.StatusCode, Message: "response has no data"}
	}

	conn := out.Data.Viewer.SponsorshipsAsMaintainer
	for i, node := range conn.Nodes {
		if node.IsOneTimePayment {
			continue
		}
		sponsor, err := sponsorFromNode(node)
		if err != nil {
			return page, &apperrors.TransportError{
				Operation: op,
				Message:   fmt.Sprintf("malformed sponsorship node %d", i),
				Err:       err,
			}
		}
		page.Items = append(page.Items, sponsor)
	}
	page.HasNextPage = conn.PageInfo.HasNextPage
	page.EndCursor = conn.PageInfo.EndCursor

	c.logger.Debug("fetched sponsorships page", "nodes", len(conn.Nodes), "kept", len(page.Items), "has_next", page.HasNextPage)
	return page, nil
}

func sponsorFromNode(node sponsorshipNode) (*domain.Sponsor, error) {
	if node.SponsorEntity == nil || node.SponsorEntity.Login == "" {
		return nil, fmt.Errorf("missing sponsor entity")
	}
	if node.Tier == nil {
		return nil, fmt.Errorf("sponsor %s has no tier", node.SponsorEntity.Login)
	}
	created, err := time.Parse(time.RFC3339, node.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid createdAt for %s: %w", node.SponsorEntity.Login, err)
	}

	return &domain.Sponsor{
		Account: domain.Account{
			Name:           node.SponsorEntity.Login,
			Image:          node.SponsorEntity.AvatarURL,
			URL:            node.SponsorEntity.URL,
			IsOrganization: strings.EqualFold(node.SponsorEntity.Typename, "organization"),
		},
		IsPrivate:     strings.EqualFold(node.PrivacyLevel, "private"),
		CreatedAt:     created,
		MonthlyAmount: node.Tier.MonthlyPriceInDollars,
	}, nil
}
