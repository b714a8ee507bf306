package ocds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kumii/tender-finder/internal/models"
)

// Client talks to the upstream OCDS releases API. It is deliberately
// defensive: the upstream has shipped results under "results", "data" and
// as a bare array at different times.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

type PageRequest struct {
	Page     int
	Limit    int
	Search   string
	DateFrom string
	DateTo   string
}

// Page is one fetched page of releases, already normalized. Total reflects
// the upstream's reported total across all pages, falling back to the page
// length when the upstream omits it.
type Page struct {
	Records []models.ProcurementRecord
	Total   int
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil

	return &Client{
		baseURL: baseURL,
		http:    rc.StandardClient(),
		logger:  logger,
	}
}

// FetchPage fetches and normalizes one page of releases.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	body, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return parsePage(body), nil
}

// FetchRaw returns the upstream response body untouched. Used by the thin
// proxy endpoint, which passes the payload through as-is.
func (c *Client) FetchRaw(ctx context.Context, req PageRequest) ([]byte, error) {
	return c.fetch(ctx, req)
}

func (c *Client) fetch(ctx context.Context, req PageRequest) ([]byte, error) {
	q := url.Values{}
	if req.Page > 0 {
		q.Set("PageNumber", strconv.Itoa(req.Page))
	}
	if req.Limit > 0 {
		q.Set("PageSize", strconv.Itoa(req.Limit))
	}
	if req.Search != "" {
		q.Set("search", req.Search)
	}
	if req.DateFrom != "" {
		q.Set("dateFrom", req.DateFrom)
	}
	if req.DateTo != "" {
		q.Set("dateTo", req.DateTo)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	c.logger.Debug("fetched upstream page",
		zap.Int("page", req.Page),
		zap.Int("limit", req.Limit),
		zap.Int("bytes", len(body)),
	)
	return body, nil
}

// parsePage sniffs the response shape and normalizes each release.
func parsePage(body []byte) *Page {
	releases := gjson.GetBytes(body, "releases")
	if !releases.Exists() {
		releases = gjson.GetBytes(body, "results")
	}
	if !releases.Exists() {
		releases = gjson.GetBytes(body, "data")
	}
	if !releases.Exists() {
		if root := gjson.ParseBytes(body); root.IsArray() {
			releases = root
		}
	}

	page := &Page{}
	releases.ForEach(func(_, rel gjson.Result) bool {
		page.Records = append(page.Records, Normalize([]byte(rel.Raw)))
		return true
	})

	for _, path := range []string{"total", "totalReleases", "count"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Int() > 0 {
			page.Total = int(v.Int())
			break
		}
	}
	if page.Total == 0 {
		page.Total = len(page.Records)
	}

	return page
}
