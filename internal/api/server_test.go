package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/forestwatch/forestwatch/internal/alert"
	"github.com/forestwatch/forestwatch/internal/sched"
	"github.com/forestwatch/forestwatch/internal/store"
)

type fakeStore struct {
	alerts     []alert.Alert
	lastFilter store.UnresolvedFilter
	resolveErr error
}

func (f *fakeStore) QueryUnresolved(_ context.Context, filter store.UnresolvedFilter) ([]alert.Alert, error) {
	f.lastFilter = filter
	return f.alerts, nil
}

func (f *fakeStore) Resolve(_ context.Context, id, resolvedBy, notes string) (alert.Alert, error) {
	if f.resolveErr != nil {
		return alert.Alert{ID: id, Resolved: true}, f.resolveErr
	}
	return alert.Alert{ID: id, Resolved: true, ResolvedBy: resolvedBy, Notes: notes}, nil
}

func (f *fakeStore) CountAlerts(context.Context) (store.AlertCounts, error) {
	return store.AlertCounts{Unresolved: len(f.alerts)}, nil
}

type fakeJobs struct{}

func (fakeJobs) Snapshot() []sched.JobStatus {
	return []sched.JobStatus{{Name: "fire-scan", State: sched.StateIdle}}
}

func newTestServer(st *fakeStore) *Server {
	return NewServer(st, fakeJobs{}, NewLogBuffer(16), "0", zerolog.Nop())
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	rec := doRequest(newTestServer(&fakeStore{}), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %q", body["status"])
	}
}

func TestAlertsFilterParsing(t *testing.T) {
	st := &fakeStore{alerts: []alert.Alert{{ID: "a-1", Severity: alert.SeverityCritical}}}
	s := newTestServer(st)

	rec := doRequest(s, http.MethodGet, "/alerts?severity=critical&category=fire&notified=false", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if st.lastFilter.Severity == nil || *st.lastFilter.Severity != alert.SeverityCritical {
		t.Error("severity filter not applied")
	}
	if st.lastFilter.Category != alert.CategoryFire {
		t.Error("category filter not applied")
	}
	if st.lastFilter.Notified == nil || *st.lastFilter.Notified {
		t.Error("notified filter not applied")
	}

	if rec := doRequest(s, http.MethodGet, "/alerts?severity=apocalyptic", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown severity: status = %d, want 400", rec.Code)
	}
	if rec := doRequest(s, http.MethodGet, "/alerts?since=yesterday", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad since: status = %d, want 400", rec.Code)
	}
}

func TestResolveEndpoint(t *testing.T) {
	s := newTestServer(&fakeStore{})

	rec := doRequest(s, http.MethodPost, "/alerts/a-1/resolve", `{"resolved_by":"ranger-7","notes":"contained"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Alert alert.Alert `json:"alert"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if !body.Alert.Resolved || body.Alert.ResolvedBy != "ranger-7" {
		t.Errorf("alert = %+v", body.Alert)
	}

	if rec := doRequest(s, http.MethodPost, "/alerts/a-1/resolve", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing resolved_by: status = %d, want 400", rec.Code)
	}
	if rec := doRequest(s, http.MethodGet, "/alerts/a-1/resolve", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET resolve: status = %d, want 405", rec.Code)
	}
}

func TestResolveNotFoundAndIdempotent(t *testing.T) {
	notFound := newTestServer(&fakeStore{resolveErr: store.ErrNotFound})
	if rec := doRequest(notFound, http.MethodPost, "/alerts/ghost/resolve", `{"resolved_by":"r"}`); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	already := newTestServer(&fakeStore{resolveErr: store.ErrAlreadyResolved})
	rec := doRequest(already, http.MethodPost, "/alerts/a-1/resolve", `{"resolved_by":"r"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want idempotent 200", rec.Code)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if _, ok := body["already_resolved"]; !ok {
		t.Error("response does not flag the alert as already resolved")
	}
}

func TestLogsEndpoint(t *testing.T) {
	s := newTestServer(&fakeStore{})
	s.logBuffer.Write([]byte(`{"level":"warn","message":"previous run still in flight"}`))

	rec := doRequest(s, http.MethodGet, "/api/logs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Entries []LogEntry `json:"entries"`
		Count   int        `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Count != 1 || body.Entries[0].Level != "warn" {
		t.Errorf("entries = %+v", body.Entries)
	}
	if body.Entries[0].Message != "previous run still in flight" {
		t.Errorf("message = %q", body.Entries[0].Message)
	}
}
