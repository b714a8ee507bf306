package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/kumii/tender-finder/internal/db"
	"github.com/kumii/tender-finder/internal/match"
	"github.com/kumii/tender-finder/internal/models"
	"github.com/kumii/tender-finder/internal/ocds"
	"github.com/kumii/tender-finder/internal/profile"
)

type testEnv struct {
	server   *Server
	cache    *match.SessionCache
	upstream *httptest.Server
	profiles *httptest.Server
}

func newTestEnv(t *testing.T, upstreamHandler, profileHandler http.HandlerFunc) *testEnv {
	t.Helper()
	if upstreamHandler == nil {
		upstreamHandler = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"releases": [{"ocid": "ocds-1", "tender": {"title": "Medical supplies"}}], "total": 1}`))
		}
	}
	if profileHandler == nil {
		profileHandler = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"user": {"first_name": "Thandi", "last_name": "Nkosi"}, "company": {"industry": "medical supplies"}}`))
		}
	}
	upstream := httptest.NewServer(upstreamHandler)
	profiles := httptest.NewServer(profileHandler)
	t.Cleanup(upstream.Close)
	t.Cleanup(profiles.Close)

	logger := zap.NewNop()
	upstreamClient := ocds.NewClient(upstream.URL, 5*time.Second, logger)
	cache := match.NewSessionCache(match.DefaultCacheTTL, logger)
	loader := match.NewLoader(upstreamClient, 50, 0, logger)
	matcher := match.NewService(cache, loader, nil, logger)
	server := NewServer(db.NewStore(nil), matcher, upstreamClient, profile.NewClient(profiles.URL, 5*time.Second, logger), logger)

	return &testEnv{server: server, cache: cache, upstream: upstream, profiles: profiles}
}

func (env *testEnv) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.server.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestProxyTendersPassthrough(t *testing.T) {
	const payload = `{"releases": [], "upstreamField": 7}`
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}, nil)

	rec := env.do(http.MethodGet, "/api/v1/tenders?page=2&limit=10", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != payload {
		t.Errorf("payload altered: %q", rec.Body.String())
	}
}

func TestProxyTendersUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, nil)

	rec := env.do(http.MethodGet, "/api/v1/tenders", "", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status %d, want 502", rec.Code)
	}
}

func TestMatchesRequiresAuth(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(http.MethodGet, "/api/v1/matches", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status %d, want 401", rec.Code)
	}
}

func TestMatchesProfileFailureSurfaces(t *testing.T) {
	env := newTestEnv(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	rec := env.do(http.MethodGet, "/api/v1/matches", "", map[string]string{"Authorization": "Bearer tok"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Failed to fetch profile data") {
		t.Errorf("body: %s", rec.Body.String())
	}
}

func TestMatchesHappyPath(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(http.MethodGet, "/api/v1/matches", "", map[string]string{"Authorization": "Bearer tok"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var snap match.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.DisplayName != "Thandi Nkosi" {
		t.Errorf("display name: %q", snap.DisplayName)
	}
	if snap.Page != 1 || snap.PageCount < 1 {
		t.Errorf("paging: %+v", snap)
	}
}

func TestMatchesRejectsBadWindow(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	headers := map[string]string{"Authorization": "Bearer tok"}

	for _, path := range []string{
		"/api/v1/matches?date_from=2026-08-29&date_to=2026-08-01",
		"/api/v1/matches?date_from=nonsense&date_to=2026-08-29",
		"/api/v1/matches?date_from=2026-08-01",
	} {
		if rec := env.do(http.MethodGet, path, "", headers); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", path, rec.Code)
		}
	}
}

func TestCacheEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(http.MethodGet, "/api/v1/cache", "", nil)
	var info map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info["cached"] != false {
		t.Errorf("empty cache: %v", info)
	}

	env.cache.Put([]models.ProcurementRecord{{ID: "a"}}, "2026-08-01", "2026-08-29")

	rec = env.do(http.MethodGet, "/api/v1/cache", "", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info["cached"] != true || info["record_count"] != float64(1) {
		t.Errorf("populated cache: %v", info)
	}

	if rec = env.do(http.MethodDelete, "/api/v1/cache", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("invalidate status %d", rec.Code)
	}
	rec = env.do(http.MethodGet, "/api/v1/cache", "", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info["cached"] != false {
		t.Errorf("after invalidate: %v", info)
	}
}

func TestCreatePrivateTenderValidation(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing title",
			body: `{"description": "no title here"}`,
			want: "Title is required",
		},
		{
			name: "past closing date",
			body: `{"title": "Old tender", "closing_date": "2020-01-01"}`,
			want: "Closing date must be in the future",
		},
		{
			name: "unparsable closing date",
			body: `{"title": "Bad date", "closing_date": "soon"}`,
			want: "Invalid closing date",
		},
		{
			name: "past briefing date",
			body: `{"title": "Briefing", "briefing": {"date": "2020-01-01", "venue": "Hall"}}`,
			want: "Briefing date must be in the future",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/v1/private-tenders", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body %q, want %q", rec.Body.String(), tt.want)
			}
		})
	}
}

func TestParseFilter(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?keywords=medical&province=Gauteng&min_score=25&sort=closing-soon&closing_before=2026-09-30&page=2", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	f, page, err := parseFilter(c)
	if err != nil {
		t.Fatalf("parseFilter: %v", err)
	}
	if f.Keywords != "medical" || f.Province != "Gauteng" || f.MinScore != 25 || f.SortKey != "closing-soon" {
		t.Errorf("filter: %+v", f)
	}
	if f.ClosingBefore == nil || f.ClosingBefore.Format(dateLayout) != "2026-09-30" {
		t.Errorf("closing_before: %v", f.ClosingBefore)
	}
	if page != 2 {
		t.Errorf("page: %d", page)
	}
}

func TestParseFilterRejectsBadValues(t *testing.T) {
	e := echo.New()
	for _, query := range []string{"?min_score=-1", "?min_score=lots", "?closing_before=tomorrow"} {
		req := httptest.NewRequest(http.MethodGet, "/"+query, nil)
		c := e.NewContext(req, httptest.NewRecorder())
		if _, _, err := parseFilter(c); err == nil {
			t.Errorf("%s: expected error", query)
		}
	}
}

func TestMatchWindow(t *testing.T) {
	from, to, err := matchWindow("2026-08-01", "2026-08-29")
	if err != nil || from != "2026-08-01" || to != "2026-08-29" {
		t.Errorf("got %q %q %v", from, to, err)
	}

	from, to, err = matchWindow("", "")
	if err != nil {
		t.Fatalf("default window: %v", err)
	}
	fromDate, _ := time.Parse(dateLayout, from)
	toDate, _ := time.Parse(dateLayout, to)
	if days := toDate.Sub(fromDate).Hours() / 24; days != matchWindowDays {
		t.Errorf("default window spans %v days", days)
	}

	if _, _, err = matchWindow("2026-08-29", "2026-08-01"); err == nil {
		t.Error("reversed window must fail")
	}
}

func TestParseOptionalDate(t *testing.T) {
	if d, err := parseOptionalDate(""); err != nil || d != nil {
		t.Errorf("empty: %v %v", d, err)
	}
	if d, err := parseOptionalDate("2026-09-15"); err != nil || d == nil {
		t.Errorf("date: %v %v", d, err)
	}
	if d, err := parseOptionalDate("2026-09-15T10:00:00Z"); err != nil || d == nil {
		t.Errorf("rfc3339: %v %v", d, err)
	}
	if _, err := parseOptionalDate("whenever"); err == nil {
		t.Error("expected error")
	}
}

func TestDedupeDocuments(t *testing.T) {
	docs := []models.Document{
		{Title: "First", URL: "https://example.com/a"},
		{Title: "Dup", URL: "https://example.com/a"},
		{Title: "NoURL"},
		{Title: "Second", URL: "https://example.com/b"},
	}
	out := dedupeDocuments(docs)
	if len(out) != 2 {
		t.Fatalf("got %d documents", len(out))
	}
	if out[0].Title != "First" || out[1].Title != "Second" {
		t.Errorf("order/first-wins broken: %+v", out)
	}
}
