package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/kumii/tender-finder/internal/auth"
	"github.com/kumii/tender-finder/internal/db"
	"github.com/kumii/tender-finder/internal/match"
	"github.com/kumii/tender-finder/internal/models"
	"github.com/kumii/tender-finder/internal/ocds"
	"github.com/kumii/tender-finder/internal/profile"
)

const dateLayout = "2006-01-02"

// matchWindowDays is the default lookback window for the matched view.
const matchWindowDays = 30

type Server struct {
	Echo     *echo.Echo
	Store    *db.Store
	Matcher  *match.Service
	Upstream *ocds.Client
	Profiles *profile.Client

	logger *zap.Logger
}

func NewServer(store *db.Store, matcher *match.Service, upstream *ocds.Client, profiles *profile.Client, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		Echo:     e,
		Store:    store,
		Matcher:  matcher,
		Upstream: upstream,
		Profiles: profiles,
		logger:   logger,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api/v1")
	api.GET("/tenders", s.handleProxyTenders)
	api.GET("/cache", s.handleCacheInfo)
	api.DELETE("/cache", s.handleCacheInvalidate)

	matches := api.Group("/matches")
	matches.Use(auth.Middleware)
	matches.GET("", s.handleGetMatches)
	matches.GET("/summary", s.handleGetSummary)

	api.POST("/private-tenders", s.handleCreatePrivateTender)
	api.GET("/private-tenders", s.handleListPrivateTenders)
	api.DELETE("/private-tenders/:id", s.handleDeletePrivateTender)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// handleProxyTenders is a thin passthrough to the upstream OCDS releases
// API; the payload is returned untouched.
func (s *Server) handleProxyTenders(c echo.Context) error {
	req := ocds.PageRequest{Page: 1, Limit: match.PageSize}
	if v, err := strconv.Atoi(c.QueryParam("page")); err == nil && v > 0 {
		req.Page = v
	}
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 500 {
		req.Limit = v
	}
	req.Search = c.QueryParam("search")
	req.DateFrom = c.QueryParam("dateFrom")
	req.DateTo = c.QueryParam("dateTo")

	body, err := s.Upstream.FetchRaw(c.Request().Context(), req)
	if err != nil {
		s.logger.Error("tender proxy failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to fetch tenders"})
	}
	return c.JSONBlob(http.StatusOK, body)
}

func (s *Server) handleGetMatches(c echo.Context) error {
	dateFrom, dateTo, err := matchWindow(c.QueryParam("date_from"), c.QueryParam("date_to"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	// The profile is mandatory upfront; a failure here is the one network
	// error that reaches the user.
	prof, err := s.Profiles.Fetch(c.Request().Context(), auth.Token(c))
	if err != nil {
		s.logger.Error("profile fetch failed",
			zap.String("subject", auth.Subject(c)),
			zap.Error(err),
		)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to fetch profile data"})
	}

	s.Matcher.Refresh(dateFrom, dateTo, prof)

	filter, page, err := parseFilter(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, s.Matcher.Snapshot(filter, page))
}

func (s *Server) handleGetSummary(c echo.Context) error {
	summary := s.Matcher.Summary()
	if summary == "" {
		return c.JSON(http.StatusOK, map[string]any{"summary": nil})
	}
	return c.JSON(http.StatusOK, map[string]any{"summary": summary})
}

func (s *Server) handleCacheInfo(c echo.Context) error {
	info := s.Matcher.CacheInfo()
	if info == nil {
		return c.JSON(http.StatusOK, map[string]any{"cached": false})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"cached":       true,
		"record_count": info.RecordCount,
		"age_ms":       info.Age.Milliseconds(),
		"remaining_ms": info.Remaining.Milliseconds(),
		"expired":      info.Expired,
		"date_from":    info.DateFrom,
		"date_to":      info.DateTo,
	})
}

func (s *Server) handleCacheInvalidate(c echo.Context) error {
	s.Matcher.InvalidateCache()
	return c.JSON(http.StatusOK, map[string]string{"status": "invalidated"})
}

type createTenderRequest struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	BuyerName   string            `json:"buyer_name"`
	Province    string            `json:"province"`
	Category    string            `json:"category"`
	Status      string            `json:"status"`
	OpeningDate string            `json:"opening_date"`
	ClosingDate string            `json:"closing_date"`
	Documents   []models.Document `json:"documents"`
	Briefing    *briefingRequest  `json:"briefing"`
}

type briefingRequest struct {
	Compulsory bool   `json:"compulsory"`
	Date       string `json:"date"`
	Venue      string `json:"venue"`
}

func (s *Server) handleCreatePrivateTender(c echo.Context) error {
	var req createTenderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if strings.TrimSpace(req.Title) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Title is required"})
	}

	rec := models.ProcurementRecord{
		ID:          req.ID,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		BuyerName:   strings.TrimSpace(req.BuyerName),
		Province:    strings.TrimSpace(req.Province),
		Category:    strings.TrimSpace(req.Category),
		Status:      strings.TrimSpace(req.Status),
		Documents:   dedupeDocuments(req.Documents),
	}

	now := time.Now()
	var err error
	if rec.OpeningDate, err = parseOptionalDate(req.OpeningDate); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid opening date"})
	}
	if rec.ClosingDate, err = parseOptionalDate(req.ClosingDate); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid closing date"})
	}
	if rec.ClosingDate != nil && rec.ClosingDate.Before(now) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Closing date must be in the future"})
	}

	if req.Briefing != nil {
		briefing := &models.BriefingSession{
			Compulsory: req.Briefing.Compulsory,
			Venue:      strings.TrimSpace(req.Briefing.Venue),
		}
		if briefing.Date, err = parseOptionalDate(req.Briefing.Date); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid briefing date"})
		}
		if briefing.Date != nil && briefing.Date.Before(now) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Briefing date must be in the future"})
		}
		rec.Briefing = briefing
	}

	created, err := s.Store.CreatePrivateTender(c.Request().Context(), rec)
	if err != nil {
		s.logger.Error("create private tender failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create tender"})
	}

	return c.JSON(http.StatusCreated, created)
}

func (s *Server) handleListPrivateTenders(c echo.Context) error {
	records, err := s.Store.ListPrivateTenders(c.Request().Context())
	if err != nil {
		s.logger.Error("list private tenders failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list tenders"})
	}

	filter, page, err := parseFilter(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if filter.SortKey == "" {
		filter.SortKey = match.SortRecentlyAdded
	}

	filtered := match.Apply(match.WrapRecords(records), filter)

	return c.JSON(http.StatusOK, map[string]any{
		"tenders":    match.Paginate(filtered, page),
		"total":      len(filtered),
		"page":       page,
		"page_count": match.PageCount(len(filtered)),
	})
}

func (s *Server) handleDeletePrivateTender(c echo.Context) error {
	id := c.Param("id")
	if err := s.Store.DeletePrivateTender(c.Request().Context(), id); err != nil {
		if err == db.ErrNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
		}
		s.logger.Error("delete private tender failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete tender"})
	}
	return c.NoContent(http.StatusNoContent)
}

// parseFilter builds the filter state from query parameters.
func parseFilter(c echo.Context) (match.FilterState, int, error) {
	f := match.FilterState{
		Keywords: c.QueryParam("keywords"),
		Province: c.QueryParam("province"),
		Category: c.QueryParam("category"),
		Status:   c.QueryParam("status"),
		SortKey:  c.QueryParam("sort"),
	}

	if v := c.QueryParam("closing_before"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, 0, fmt.Errorf("invalid closing_before date")
		}
		f.ClosingBefore = &t
	}
	if v := c.QueryParam("min_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, 0, fmt.Errorf("invalid min_score")
		}
		f.MinScore = n
	}

	page := 1
	if v, err := strconv.Atoi(c.QueryParam("page")); err == nil && v > 0 {
		page = v
	}
	return f, page, nil
}

// matchWindow validates the requested date range, defaulting to the last
// thirty days.
func matchWindow(from, to string) (string, string, error) {
	if from == "" && to == "" {
		now := time.Now()
		return now.AddDate(0, 0, -matchWindowDays).Format(dateLayout), now.Format(dateLayout), nil
	}

	fromDate, err := time.Parse(dateLayout, from)
	if err != nil {
		return "", "", fmt.Errorf("invalid date_from")
	}
	toDate, err := time.Parse(dateLayout, to)
	if err != nil {
		return "", "", fmt.Errorf("invalid date_to")
	}
	if fromDate.After(toDate) {
		return "", "", fmt.Errorf("date_from must not be after date_to")
	}
	return from, to, nil
}

func parseOptionalDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date format %q", s)
}

// dedupeDocuments collapses documents sharing a URL, first occurrence wins.
func dedupeDocuments(docs []models.Document) []models.Document {
	var out []models.Document
	seen := make(map[string]bool)
	for _, doc := range docs {
		if doc.URL == "" || seen[doc.URL] {
			continue
		}
		seen[doc.URL] = true
		out = append(out, doc)
	}
	return out
}
