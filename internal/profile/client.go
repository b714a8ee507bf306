package profile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/kumii/tender-finder/internal/models"
)

// Client fetches the business profile from the profile service using the
// opaque bearer token handed in by the caller. Unlike most collaborators
// the profile is required upfront, so failures here do surface.
type Client struct {
	url    string
	http   *http.Client
	logger *zap.Logger
}

func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 1
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil

	return &Client{
		url:    url,
		http:   rc.StandardClient(),
		logger: logger,
	}
}

// Fetch retrieves the raw profile payload and resolves it into the matching
// subject.
func (c *Client) Fetch(ctx context.Context, token string) (models.Profile, error) {
	if token == "" {
		return models.Profile{}, fmt.Errorf("bearer token is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return models.Profile{}, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Profile{}, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Profile{}, fmt.Errorf("profile service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Profile{}, fmt.Errorf("read profile response: %w", err)
	}

	p := Resolve(body)
	c.logger.Debug("profile resolved",
		zap.String("display_name", p.DisplayName),
		zap.String("location", p.Location),
		zap.Int("categories", len(p.Categories)),
	)
	return p, nil
}
