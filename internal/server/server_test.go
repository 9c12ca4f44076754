package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"oppline/internal/config"
	"oppline/internal/db"
	"oppline/internal/engine"
	"oppline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{AllowActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

var actorHeaders = map[string]string{"X-Actor-Id": "sm-1"}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createOpportunity(t *testing.T, srv *testServer) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/opportunities", map[string]any{
		"title":       "CRM replatform",
		"description": "Replace the legacy CRM",
		"customer_id": "cust-1",
		"arr_cents":   120000000,
		"priority":    "high",
	}, actorHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created OpportunityResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.Status != "draft" || created.SalesManagerID != "sm-1" {
		t.Fatalf("unexpected created body: %+v", created)
	}
	return created.ID
}

func prepareForSubmission(t *testing.T, srv *testServer, id string) {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v1/opportunities/"+id+"/problem-statement", map[string]any{
		"title":                  "CRM cannot scale",
		"description":            strings.Repeat("The current CRM cannot keep up with growth. ", 4),
		"business_impact":        "Churn rising",
		"technical_requirements": "Cloud-native",
		"success_criteria":       "Churn below 2%",
	}, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("problem statement status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/opportunities/"+id+"/skills", map[string]any{
		"name":        "Kubernetes",
		"category":    "technical",
		"importance":  "must_have",
		"proficiency": "advanced",
	}, actorHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add skill status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/opportunities/"+id+"/timeline", map[string]any{
		"start_date":    "2026-04-01",
		"duration_days": 60,
		"flexibility":   "flexible",
	}, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("timeline status %d: %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/opportunities", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestHealthIsOpen(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestSubmitValidationEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	id := createOpportunity(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/opportunities/"+id+"/submit", nil, actorHeaders)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details struct {
				Errors []string `json:"errors"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v: %s", err, string(data))
	}
	if envelope.Error.Code != "validation_failed" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}
	if len(envelope.Error.Details.Errors) < 3 {
		t.Fatalf("expected every failed rule listed, got %v", envelope.Error.Details.Errors)
	}
}

func TestLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	id := createOpportunity(t, srv)
	prepareForSubmission(t, srv, id)

	steps := []struct {
		path       string
		body       any
		wantStatus string
	}{
		{"/submit", nil, "submitted"},
		{"/status", map[string]any{"status": "matching_in_progress"}, "matching_in_progress"},
		{"/status", map[string]any{"status": "matches_found"}, "matches_found"},
		{"/select-architect", map[string]any{"architect_id": "arch-7"}, "architect_selected"},
		{"/complete", nil, "completed"},
	}
	for _, step := range steps {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/opportunities/"+id+step.path, step.body, actorHeaders)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s status %d: %s", step.path, res.StatusCode, string(data))
		}
		var o OpportunityResponse
		if err := json.Unmarshal(data, &o); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if o.Status != step.wantStatus {
			t.Fatalf("%s produced status %q, want %q", step.path, o.Status, step.wantStatus)
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/opportunities/"+id+"/history", nil, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var history []StatusHistoryResponse
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history) != 6 {
		t.Fatalf("history rows = %d, want 6", len(history))
	}
}

func TestCancelAndReactivateOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	id := createOpportunity(t, srv)
	prepareForSubmission(t, srv, id)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/opportunities/"+id+"/submit", nil, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/opportunities/"+id+"/cancel", map[string]any{
		"reason": "budget pulled",
	}, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cancel status %d: %s", res.StatusCode, string(data))
	}
	var o OpportunityResponse
	if err := json.Unmarshal(data, &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if o.Status != "cancelled" || o.ReactivationDeadline == nil {
		t.Fatalf("unexpected cancelled body: %+v", o)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/opportunities/"+id+"/reactivate", map[string]any{}, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reactivate status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if o.Status != "submitted" {
		t.Fatalf("reactivated status = %q, want submitted", o.Status)
	}
}

func TestUpdateAndChangeAudit(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	id := createOpportunity(t, srv)

	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/opportunities/"+id, map[string]any{
		"title":  "CRM replatform phase 2",
		"reason": "scope grew",
	}, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/opportunities/"+id+"/changes", nil, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("changes status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedChangeRecords
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal changes: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].FieldChanged != "title" {
		t.Fatalf("unexpected change records: %+v", page.Items)
	}
}

func TestListFilters(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	id := createOpportunity(t, srv)
	_ = createOpportunity(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/opportunities/"+id+"/cancel", map[string]any{
		"reason": "duplicate",
	}, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cancel status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/opportunities?status=draft", nil, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedOpportunities
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Status != "draft" {
		t.Fatalf("unexpected filtered list: %+v", page.Items)
	}
}

func TestVersionReturnedAndBumped(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	id := createOpportunity(t, srv)

	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/opportunities/"+id, map[string]any{
		"notes": "call scheduled",
	}, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}
	var o OpportunityResponse
	if err := json.Unmarshal(data, &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if o.Version != 2 {
		t.Fatalf("version = %d, want 2", o.Version)
	}
}

func TestTimelineAndSkillRendering(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	id := createOpportunity(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/opportunities/"+id+"/skills", map[string]any{
		"name":        "Kubernetes",
		"category":    "technical",
		"importance":  "must_have",
		"proficiency": "advanced",
	}, actorHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add skill status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/opportunities/"+id+"/skills", map[string]any{
		"name":       "Stakeholder management",
		"category":   "soft",
		"importance": "nice_to_have",
	}, actorHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add skill status %d: %s", res.StatusCode, string(data))
	}
	var updated OpportunityResponse
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(updated.Skills) != 2 {
		t.Fatalf("got %d skills, want 2", len(updated.Skills))
	}
	byName := map[string]SkillRequirementResponse{}
	for _, s := range updated.Skills {
		byName[s.Name] = s
	}
	if byName["Kubernetes"].Proficiency != "advanced" {
		t.Fatalf("proficiency = %q, want advanced", byName["Kubernetes"].Proficiency)
	}
	if byName["Stakeholder management"].Proficiency != "" {
		t.Fatalf("omitted proficiency should render empty, got %q", byName["Stakeholder management"].Proficiency)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/opportunities/"+id+"/timeline", map[string]any{
		"start_date":    "2026-04-01",
		"end_date":      "2026-06-15",
		"duration_days": 60,
		"flexibility":   "flexible",
	}, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("timeline status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if updated.Timeline == nil || updated.Timeline.StartDate != "2026-04-01" {
		t.Fatalf("unexpected timeline: %+v", updated.Timeline)
	}
	if updated.Timeline.EndDate == nil || *updated.Timeline.EndDate != "2026-06-15" {
		t.Fatalf("end date not carried through: %+v", updated.Timeline)
	}
}
