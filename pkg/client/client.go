package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
)

// Client is the API client for the sponsor report server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetNumbers retrieves the aggregate sponsorship figures
func (c *Client) GetNumbers() (*domain.Numbers, error) {
	var response struct {
		Data *domain.Numbers `json:"data"`
	}
	if err := c.get("/api/v1/numbers", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetSponsors retrieves the public sponsor roster
func (c *Client) GetSponsors() ([]domain.Account, error) {
	var response struct {
		Data []domain.Account `json:"data"`
	}
	if err := c.get("/api/v1/sponsors", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// ListRuns retrieves recent sync runs. A non-positive limit uses the server default.
func (c *Client) ListRuns(limit int) ([]*domain.Run, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var response struct {
		Data []*domain.Run `json:"data"`
	}
	if err := c.get("/api/v1/runs", params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetRun retrieves a single sync run
func (c *Client) GetRun(id string) (*domain.Run, error) {
	var response struct {
		Data *domain.Run `json:"data"`
	}
	if err := c.get("/api/v1/runs/"+url.PathEscape(id), nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck() error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get("/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) get(path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	resp, err := c.httpClient.Get(u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
