// Package types defines core data structures for the issue board.
package types

import "time"

// Status is the column an issue lives in.
type Status string

// Issue status constants. These mirror the CHECK constraint on issues.status.
const (
	StatusBacklog    Status = "Backlog"
	StatusTodo       Status = "Todo"
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
	StatusCanceled   Status = "Canceled"
)

// IsValid checks if the status value is one of the enumerated columns.
func (s Status) IsValid() bool {
	switch s {
	case StatusBacklog, StatusTodo, StatusInProgress, StatusDone, StatusCanceled:
		return true
	}
	return false
}

// StatusValues returns the enumerated statuses as strings, in board order.
func StatusValues() []string {
	return []string{
		string(StatusBacklog),
		string(StatusTodo),
		string(StatusInProgress),
		string(StatusDone),
		string(StatusCanceled),
	}
}

// Priority is the urgency of an issue.
type Priority string

// Issue priority constants.
const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// IsValid checks if the priority value is one of the enumerated levels.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// PriorityValues returns the enumerated priorities as strings, lowest first.
func PriorityValues() []string {
	return []string{
		string(PriorityLow),
		string(PriorityMedium),
		string(PriorityHigh),
		string(PriorityCritical),
	}
}

// Field length bounds enforced at the API boundary.
const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 5000
)

// User is a board member. Users are read-only through the API; they are
// created by the seed utility.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Label is a tag attachable to issues. Read-only through the API.
type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Issue is a card on the board.
//
// Assignee and Labels are hydrated views of assignee_id and the issue_labels
// edge set; they are populated on reads and ignored on writes. Labels always
// serializes as an array, never null.
type Issue struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	AssigneeID  *string   `json:"assignee_id"`
	Assignee    *User     `json:"assignee,omitempty"`
	Labels      []Label   `json:"labels"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	OrderIndex  float64   `json:"order_index"`
}

// CreateIssueRequest is the body of POST /issues.
type CreateIssueRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	AssigneeID  *string  `json:"assignee_id"`
	LabelIDs    []string `json:"label_ids"`
}

// UpdateIssueRequest is the body of PATCH /issues/{id}. Every field is
// optional; only fields present in the JSON are applied. AssigneeID uses
// OptionalString so an explicit null clears the assignee while an absent key
// leaves it untouched. LabelIDs replaces the whole label set when present
// (an explicit empty array clears it) and is a no-op when absent.
type UpdateIssueRequest struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Status      *string        `json:"status"`
	Priority    *string        `json:"priority"`
	AssigneeID  OptionalString `json:"assignee_id"`
	LabelIDs    []string       `json:"label_ids"`
	OrderIndex  *float64       `json:"order_index"`
}

// MoveIssueRequest is the body of PATCH /issues/{id}/move. Both fields are
// optional; an empty body is accepted as a timestamp-only touch.
type MoveIssueRequest struct {
	Status     *string  `json:"status"`
	OrderIndex *float64 `json:"order_index"`
}
