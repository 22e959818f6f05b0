package server

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/issueboard/issueboard/internal/idgen"
	"github.com/issueboard/issueboard/internal/types"
)

// doJSON performs an authenticated request against the full pipeline.
func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeIssue(t *testing.T, rec *httptest.ResponseRecorder) types.Issue {
	t.Helper()
	var issue types.Issue
	if err := json.Unmarshal(rec.Body.Bytes(), &issue); err != nil {
		t.Fatalf("failed to decode issue: %v (body %s)", err, rec.Body.String())
	}
	return issue
}

func decodeIssues(t *testing.T, rec *httptest.ResponseRecorder) []types.Issue {
	t.Helper()
	var issues []types.Issue
	if err := json.Unmarshal(rec.Body.Bytes(), &issues); err != nil {
		t.Fatalf("failed to decode issues: %v (body %s)", err, rec.Body.String())
	}
	return issues
}

func seedServerLabel(t *testing.T, srv *Server, name, color string) string {
	t.Helper()
	id := idgen.New()
	if _, err := srv.store.DB().Exec(
		"INSERT INTO labels (id, name, color) VALUES (?, ?, ?)", id, name, color); err != nil {
		t.Fatalf("failed to seed label: %v", err)
	}
	return id
}

func seedServerUser(t *testing.T, srv *Server, name string) string {
	t.Helper()
	id := idgen.New()
	if _, err := srv.store.DB().Exec(
		"INSERT INTO users (id, name, avatar_url) VALUES (?, ?, '')", id, name); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return id
}

func TestCreateThenList(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/issues", map[string]any{
		"title": "T", "description": "", "status": "Todo", "priority": "Low",
		"label_ids": []string{},
	})
	if rec.Code != 201 {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeIssue(t, rec)
	if created.OrderIndex != 0 {
		t.Errorf("first issue in empty column should sit at 0, got %v", created.OrderIndex)
	}
	if created.Labels == nil || len(created.Labels) != 0 {
		t.Errorf("expected empty labels array, got %v", created.Labels)
	}

	rec = doJSON(t, srv, "GET", "/api/issues?status=Todo", nil)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	issues := decodeIssues(t, rec)
	if len(issues) != 1 || issues[0].Title != "T" {
		t.Errorf("unexpected list %+v", issues)
	}
}

func TestTopOfColumnInsertion(t *testing.T) {
	srv := newTestServer(t)

	for _, body := range []map[string]any{
		{"title": "at zero", "status": "Todo", "priority": "Low"},
		{"title": "at five", "status": "Todo", "priority": "Low"},
	} {
		if rec := doJSON(t, srv, "POST", "/api/issues", body); rec.Code != 201 {
			t.Fatalf("seed create failed: %d", rec.Code)
		}
	}
	// Push one issue down to order 5 so the column spans 0..5.
	issues := decodeIssues(t, doJSON(t, srv, "GET", "/api/issues?status=Todo", nil))
	rec := doJSON(t, srv, "PATCH", "/api/issues/"+issues[len(issues)-1].ID+"/move",
		map[string]any{"order_index": 5.0})
	if rec.Code != 200 {
		t.Fatalf("move failed: %d", rec.Code)
	}

	rec = doJSON(t, srv, "POST", "/api/issues", map[string]any{
		"title": "newest", "status": "Todo", "priority": "Low",
	})
	if rec.Code != 201 {
		t.Fatalf("create failed: %d", rec.Code)
	}

	issues = decodeIssues(t, doJSON(t, srv, "GET", "/api/issues?status=Todo", nil))
	if issues[0].Title != "newest" {
		t.Fatalf("new issue should lead the column, got %q", issues[0].Title)
	}
	if issues[0].OrderIndex >= issues[1].OrderIndex {
		t.Errorf("new issue must sit above the previous minimum: %v", issues[0].OrderIndex)
	}
}

func TestMoveAcrossColumns(t *testing.T) {
	srv := newTestServer(t)

	created := decodeIssue(t, doJSON(t, srv, "POST", "/api/issues", map[string]any{
		"title": "X", "status": "Todo", "priority": "Low",
	}))

	rec := doJSON(t, srv, "PATCH", "/api/issues/"+created.ID+"/move", map[string]any{
		"status": "Done", "order_index": 5.5,
	})
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.Len() != 0 {
		t.Errorf("move response must have an empty body, got %q", rec.Body.String())
	}

	got := decodeIssue(t, doJSON(t, srv, "GET", "/api/issues/"+created.ID, nil))
	if got.Status != types.StatusDone || got.OrderIndex != 5.5 {
		t.Errorf("move not applied: %+v", got)
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	srv := newTestServer(t)
	userID := seedServerUser(t, srv, "ada")
	a := seedServerLabel(t, srv, "A", "#111111")
	b := seedServerLabel(t, srv, "B", "#222222")

	created := decodeIssue(t, doJSON(t, srv, "POST", "/api/issues", map[string]any{
		"title": "before", "status": "Todo", "priority": "Low",
	}))

	payload := map[string]any{
		"title":       "after",
		"status":      "In Progress",
		"priority":    "High",
		"assignee_id": userID,
		"label_ids":   []string{a, b},
		"order_index": 2.5,
	}
	first := decodeIssue(t, doJSON(t, srv, "PATCH", "/api/issues/"+created.ID, payload))
	second := decodeIssue(t, doJSON(t, srv, "PATCH", "/api/issues/"+created.ID, payload))

	// Same payload twice converges to the same stored state; only the
	// updated_at stamp may move.
	first.UpdatedAt = second.UpdatedAt
	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	if !bytes.Equal(firstJSON, secondJSON) {
		t.Errorf("repeated update diverged:\nfirst  %s\nsecond %s", firstJSON, secondJSON)
	}
}

func TestNoOpMovePreservesOrder(t *testing.T) {
	srv := newTestServer(t)

	for _, title := range []string{"a", "b", "c"} {
		if rec := doJSON(t, srv, "POST", "/api/issues", map[string]any{
			"title": title, "status": "Todo", "priority": "Low",
		}); rec.Code != 201 {
			t.Fatalf("seed create failed: %d", rec.Code)
		}
	}

	before := decodeIssues(t, doJSON(t, srv, "GET", "/api/issues?status=Todo", nil))
	if len(before) != 3 {
		t.Fatalf("expected 3 issues, got %d", len(before))
	}

	// Moving the middle issue to its current position must not reorder.
	middle := before[1]
	rec := doJSON(t, srv, "PATCH", "/api/issues/"+middle.ID+"/move", map[string]any{
		"status": string(middle.Status), "order_index": middle.OrderIndex,
	})
	if rec.Code != 200 {
		t.Fatalf("move failed: %d", rec.Code)
	}

	after := decodeIssues(t, doJSON(t, srv, "GET", "/api/issues?status=Todo", nil))
	for i := range before {
		if after[i].ID != before[i].ID {
			t.Fatalf("column order changed at position %d: %s vs %s",
				i, before[i].Title, after[i].Title)
		}
	}
}

func TestMoveInvalidStatusFailsOnConstraint(t *testing.T) {
	srv := newTestServer(t)

	created := decodeIssue(t, doJSON(t, srv, "POST", "/api/issues", map[string]any{
		"title": "X", "status": "Todo", "priority": "Low",
	}))

	// The handler does not validate; the store CHECK rejects it.
	rec := doJSON(t, srv, "PATCH", "/api/issues/"+created.ID+"/move", map[string]any{
		"status": "NotAColumn",
	})
	if rec.Code != 500 {
		t.Errorf("expected 500 from CHECK constraint, got %d", rec.Code)
	}
}

func TestLabelReplace(t *testing.T) {
	srv := newTestServer(t)
	a := seedServerLabel(t, srv, "A", "#111111")
	b := seedServerLabel(t, srv, "B", "#222222")
	c := seedServerLabel(t, srv, "C", "#333333")

	created := decodeIssue(t, doJSON(t, srv, "POST", "/api/issues", map[string]any{
		"title": "labeled", "status": "Todo", "priority": "Low",
		"label_ids": []string{a, b},
	}))
	if len(created.Labels) != 2 {
		t.Fatalf("expected 2 labels on create, got %d", len(created.Labels))
	}

	updated := decodeIssue(t, doJSON(t, srv, "PATCH", "/api/issues/"+created.ID, map[string]any{
		"label_ids": []string{b, c},
	}))
	got := map[string]bool{}
	for _, l := range updated.Labels {
		got[l.ID] = true
	}
	if len(got) != 2 || !got[b] || !got[c] {
		t.Errorf("expected label set {B, C}, got %+v", updated.Labels)
	}
}

func TestFilterIntersection(t *testing.T) {
	srv := newTestServer(t)

	for _, body := range []map[string]any{
		{"title": "todo high", "status": "Todo", "priority": "High"},
		{"title": "wip medium", "status": "In Progress", "priority": "Medium"},
		{"title": "done high", "status": "Done", "priority": "High"},
	} {
		if rec := doJSON(t, srv, "POST", "/api/issues", body); rec.Code != 201 {
			t.Fatalf("seed create failed: %d", rec.Code)
		}
	}

	issues := decodeIssues(t, doJSON(t, srv, "GET", "/api/issues?status=Todo&priority=High", nil))
	if len(issues) != 1 || issues[0].Title != "todo high" {
		t.Errorf("expected exactly the Todo/High issue, got %+v", issues)
	}
}

func TestCascadeDelete(t *testing.T) {
	srv := newTestServer(t)
	a := seedServerLabel(t, srv, "A", "#111111")

	created := decodeIssue(t, doJSON(t, srv, "POST", "/api/issues", map[string]any{
		"title": "doomed", "status": "Todo", "priority": "Low",
		"label_ids": []string{a},
	}))

	rec := doJSON(t, srv, "DELETE", "/api/issues/"+created.ID, nil)
	if rec.Code != 204 {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	var edges int
	if err := srv.store.DB().QueryRow(
		"SELECT COUNT(*) FROM issue_labels WHERE issue_id = ?", created.ID).Scan(&edges); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if edges != 0 {
		t.Errorf("expected cascaded edges, found %d", edges)
	}
}

func TestEmptyListSerializesAsArray(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "GET", "/api/issues", nil)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected [], got %q", body)
	}
}

func TestGetIssueNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, "GET", "/api/issues/"+idgen.New(), nil)
	if rec.Code != 404 {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestUpdateUnknownIssueReturns500(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, "PATCH", "/api/issues/"+idgen.New(), map[string]any{"title": "x"})
	if rec.Code != 500 {
		t.Errorf("expected 500 for unknown id, got %d", rec.Code)
	}
}

func TestDeleteUnknownIssueReturns500(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, "DELETE", "/api/issues/"+idgen.New(), nil)
	if rec.Code != 500 {
		t.Errorf("expected 500 for unknown id, got %d", rec.Code)
	}
}

func TestCreateValidationFailure(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/issues", map[string]any{
		"title": "", "status": "Nowhere", "priority": "Low",
	})
	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	// details is an object; validation failures carry the joined field
	// messages under its "errors" key.
	msgs, ok := body.Details["errors"].(string)
	if !ok {
		t.Fatalf("expected details.errors string, got %#v", body.Details)
	}
	if !strings.Contains(msgs, "title") || !strings.Contains(msgs, "status") {
		t.Errorf("expected field details, got %q", msgs)
	}
}

func TestEmptyPatchTouchesTimestamp(t *testing.T) {
	srv := newTestServer(t)

	created := decodeIssue(t, doJSON(t, srv, "POST", "/api/issues", map[string]any{
		"title": "touch me", "status": "Todo", "priority": "Low",
	}))

	rec := doJSON(t, srv, "PATCH", "/api/issues/"+created.ID, map[string]any{})
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	updated := decodeIssue(t, rec)
	if updated.Title != "touch me" {
		t.Errorf("content must be untouched, got %q", updated.Title)
	}
	if updated.UpdatedAt.Before(created.UpdatedAt) {
		t.Errorf("updated_at must not regress: %v vs %v", updated.UpdatedAt, created.UpdatedAt)
	}
}

func TestExplicitNullClearsAssignee(t *testing.T) {
	srv := newTestServer(t)
	userID := seedServerUser(t, srv, "ada")

	created := decodeIssue(t, doJSON(t, srv, "POST", "/api/issues", map[string]any{
		"title": "assigned", "status": "Todo", "priority": "Low", "assignee_id": userID,
	}))
	if created.Assignee == nil {
		t.Fatal("expected hydrated assignee after create")
	}

	// Raw JSON so assignee_id is an explicit null, not an absent key.
	req := httptest.NewRequest("PATCH", "/api/issues/"+created.ID,
		strings.NewReader(`{"assignee_id": null}`))
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	updated := decodeIssue(t, rec)
	if updated.AssigneeID != nil || updated.Assignee != nil {
		t.Errorf("expected cleared assignee, got %+v", updated)
	}
}

func TestUsersAndLabelsEndpoints(t *testing.T) {
	srv := newTestServer(t)
	seedServerUser(t, srv, "ada")
	seedServerLabel(t, srv, "bug", "#ff0000")

	rec := doJSON(t, srv, "GET", "/api/users", nil)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var users []types.User
	if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil || len(users) != 1 {
		t.Errorf("unexpected users body %s", rec.Body.String())
	}

	rec = doJSON(t, srv, "GET", "/api/labels", nil)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var labels []types.Label
	if err := json.Unmarshal(rec.Body.Bytes(), &labels); err != nil || len(labels) != 1 {
		t.Errorf("unexpected labels body %s", rec.Body.String())
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "GET", "/api/health", nil)
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id response header")
	}

	// A caller-supplied id is echoed back.
	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("X-Request-Id", "caller-id")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "caller-id" {
		t.Errorf("expected echoed request id, got %q", got)
	}
}

func TestPagination(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 3; i++ {
		if rec := doJSON(t, srv, "POST", "/api/issues", map[string]any{
			"title": "issue", "status": "Todo", "priority": "Low",
		}); rec.Code != 201 {
			t.Fatalf("seed create failed: %d", rec.Code)
		}
	}

	issues := decodeIssues(t, doJSON(t, srv, "GET", "/api/issues?page_size=2", nil))
	if len(issues) != 2 {
		t.Errorf("expected page of 2, got %d", len(issues))
	}
	issues = decodeIssues(t, doJSON(t, srv, "GET", "/api/issues?page=2&page_size=2", nil))
	if len(issues) != 1 {
		t.Errorf("expected 1 issue on the last page, got %d", len(issues))
	}
	// Garbage pagination falls back to unbounded.
	issues = decodeIssues(t, doJSON(t, srv, "GET", "/api/issues?page_size=banana", nil))
	if len(issues) != 3 {
		t.Errorf("expected full list on invalid page_size, got %d", len(issues))
	}
}
