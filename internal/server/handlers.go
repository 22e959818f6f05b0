package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/issueboard/issueboard/internal/idgen"
	"github.com/issueboard/issueboard/internal/storage"
	"github.com/issueboard/issueboard/internal/types"
	"github.com/issueboard/issueboard/internal/validation"
)

// logError records the underlying failure with the request id; the response
// body carries only the public message.
func (s *Server) logError(r *http.Request, msg string, err error) {
	s.log.Error(msg,
		zap.Error(err),
		zap.String("request_id", RequestIDFromContext(r.Context())),
	)
}

// handleHealth reports process and store health. No auth.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logError(r, "health check failed", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "degraded",
			"database": "unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"database": "healthy",
	})
}

// handleListIssues answers GET /api/issues with optional filters and
// pagination. The body is always a JSON array.
func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.IssueFilter{
		Statuses:   q["status"],
		Priorities: q["priority"],
		Labels:     q["labels"],
		AssigneeID: q.Get("assignee"),
		Page:       intParam(q.Get("page"), 1),
		PageSize:   intParam(q.Get("page_size"), 0),
	}

	issues, err := s.repo.GetIssues(r.Context(), filter)
	if err != nil {
		s.logError(r, "failed to fetch issues", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch issues", nil)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

// intParam parses a positive integer query parameter, falling back to def on
// absence, garbage, or non-positive values.
func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// handleCreateIssue answers POST /api/issues. The new issue is placed at the
// top of its column: one less than the column's current minimum order index,
// or 0 when the column is empty.
func (s *Server) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	var req types.CreateIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", map[string]any{"error": err.Error()})
		return
	}
	if err := validation.CreateIssue(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", map[string]any{"errors": err.Error()})
		return
	}

	orderIndex := 0.0
	if min, ok, err := s.repo.MinOrderIndex(r.Context(), req.Status); err != nil {
		s.logError(r, "failed to compute order index", err)
		writeError(w, http.StatusInternalServerError, "Failed to create issue", nil)
		return
	} else if ok {
		orderIndex = types.Above(min)
	}

	now := time.Now().UTC()
	issue := &types.Issue{
		ID:          idgen.New(),
		Title:       req.Title,
		Description: req.Description,
		Status:      types.Status(req.Status),
		Priority:    types.Priority(req.Priority),
		AssigneeID:  req.AssigneeID,
		Labels:      []types.Label{},
		CreatedAt:   now,
		UpdatedAt:   now,
		OrderIndex:  orderIndex,
	}

	if err := s.repo.CreateIssue(r.Context(), issue, req.LabelIDs); err != nil {
		s.logError(r, "failed to create issue", err)
		writeError(w, http.StatusInternalServerError, "Failed to create issue", nil)
		return
	}

	created, err := s.repo.GetIssue(r.Context(), issue.ID)
	if err != nil {
		s.logError(r, "failed to fetch created issue", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch created issue", nil)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleGetIssue answers GET /api/issues/{id}.
func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	issue, err := s.repo.GetIssue(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Issue not found", nil)
		return
	}
	if err != nil {
		s.logError(r, "failed to fetch issue", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch issue", nil)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// handleUpdateIssue answers PATCH /api/issues/{id}. Only fields present in
// the payload are applied; an empty body still bumps updated_at. A present
// label_ids replaces the whole label set. Missing rows surface as 500, which
// the deployed clients rely on.
func (s *Server) handleUpdateIssue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req types.UpdateIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", map[string]any{"error": err.Error()})
		return
	}
	if err := validation.UpdateIssue(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", map[string]any{"errors": err.Error()})
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}
	if req.AssigneeID.Present {
		// Explicit null clears the assignee; Value is nil in that case.
		updates["assignee_id"] = req.AssigneeID.Value
	}
	if req.OrderIndex != nil {
		updates["order_index"] = *req.OrderIndex
	}

	if err := s.repo.UpdateIssue(r.Context(), id, updates); err != nil {
		s.logError(r, "failed to update issue", err)
		writeError(w, http.StatusInternalServerError, "Failed to update issue", nil)
		return
	}

	if req.LabelIDs != nil {
		if err := s.repo.UpdateIssueLabels(r.Context(), id, req.LabelIDs); err != nil {
			s.logError(r, "failed to update labels", err)
			writeError(w, http.StatusInternalServerError, "Failed to update labels", nil)
			return
		}
	}

	updated, err := s.repo.GetIssue(r.Context(), id)
	if err != nil {
		s.logError(r, "failed to fetch updated issue", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch updated issue", nil)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleMoveIssue answers PATCH /api/issues/{id}/move, the drag-and-drop hot
// path. The order index is accepted verbatim; status is not validated here,
// the store's CHECK constraint is the backstop.
func (s *Server) handleMoveIssue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req types.MoveIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", map[string]any{"error": err.Error()})
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.OrderIndex != nil {
		updates["order_index"] = *req.OrderIndex
	}

	if err := s.repo.UpdateIssue(r.Context(), id, updates); err != nil {
		s.logError(r, "failed to move issue", err)
		writeError(w, http.StatusInternalServerError, "Failed to update issue", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleDeleteIssue answers DELETE /api/issues/{id}. The edge rows cascade.
func (s *Server) handleDeleteIssue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.repo.DeleteIssue(r.Context(), id); err != nil {
		s.logError(r, "failed to delete issue", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete issue", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListUsers answers GET /api/users.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.repo.GetUsers(r.Context())
	if err != nil {
		s.logError(r, "failed to fetch users", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch users", nil)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// handleListLabels answers GET /api/labels.
func (s *Server) handleListLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := s.repo.GetLabels(r.Context())
	if err != nil {
		s.logError(r, "failed to fetch labels", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch labels", nil)
		return
	}
	writeJSON(w, http.StatusOK, labels)
}
