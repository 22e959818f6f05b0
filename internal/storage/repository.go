package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/issueboard/issueboard/internal/types"
)

// Repository provides typed access to the issue board tables.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a Repository over the store's handle.
func NewRepository(s *Store) *Repository {
	return &Repository{db: s.db}
}

// IssueFilter narrows GetIssues. Empty slices and strings mean "no
// constraint"; all populated filters are ANDed. Labels match by label name,
// not id. PageSize <= 0 means unbounded.
type IssueFilter struct {
	Statuses   []string
	Priorities []string
	Labels     []string
	AssigneeID string
	Page       int
	PageSize   int
}

// placeholders returns "?, ?, ..." for n bind parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// allowedUpdateFields whitelists columns UpdateIssue will touch. Anything
// else in the fields map is a programming error.
var allowedUpdateFields = map[string]bool{
	"title":       true,
	"description": true,
	"status":      true,
	"priority":    true,
	"assignee_id": true,
	"order_index": true,
	"updated_at":  true,
}

const issueColumns = `i.id, i.title, i.description, i.status, i.priority,
	i.assignee_id, i.created_at, i.updated_at, i.order_index,
	u.id, u.name, u.avatar_url`

// scanIssue reads one issue row joined with its (possibly absent) assignee.
func scanIssue(row interface{ Scan(...any) error }) (*types.Issue, error) {
	var issue types.Issue
	var assigneeID, userID, userName, userAvatar sql.NullString
	err := row.Scan(
		&issue.ID, &issue.Title, &issue.Description, &issue.Status, &issue.Priority,
		&assigneeID, &issue.CreatedAt, &issue.UpdatedAt, &issue.OrderIndex,
		&userID, &userName, &userAvatar,
	)
	if err != nil {
		return nil, err
	}
	if assigneeID.Valid {
		issue.AssigneeID = &assigneeID.String
	}
	if userID.Valid {
		issue.Assignee = &types.User{
			ID:        userID.String,
			Name:      userName.String,
			AvatarURL: userAvatar.String,
		}
	}
	issue.Labels = []types.Label{}
	return &issue, nil
}

// GetIssues returns issues matching the filter in board order, assignees and
// labels hydrated. The result is never nil.
func (r *Repository) GetIssues(ctx context.Context, filter IssueFilter) ([]*types.Issue, error) {
	query := `SELECT ` + issueColumns + `
		FROM issues i
		LEFT JOIN users u ON u.id = i.assignee_id`

	var conditions []string
	var args []any
	if len(filter.Statuses) > 0 {
		conditions = append(conditions, "i.status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, s)
		}
	}
	if len(filter.Priorities) > 0 {
		conditions = append(conditions, "i.priority IN ("+placeholders(len(filter.Priorities))+")")
		for _, p := range filter.Priorities {
			args = append(args, p)
		}
	}
	if filter.AssigneeID != "" {
		conditions = append(conditions, "i.assignee_id = ?")
		args = append(args, filter.AssigneeID)
	}
	if len(filter.Labels) > 0 {
		// Semi-join by label name; EXISTS avoids duplicating issues with
		// several matching labels.
		conditions = append(conditions, `EXISTS (
			SELECT 1 FROM issue_labels il
			JOIN labels l ON l.id = il.label_id
			WHERE il.issue_id = i.id AND l.name IN (`+placeholders(len(filter.Labels))+`))`)
		for _, l := range filter.Labels {
			args = append(args, l)
		}
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	// id breaks order_index ties so board order is stable across reloads.
	query += " ORDER BY i.order_index ASC, i.id ASC"
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	issues := []*types.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate issues: %w", err)
	}

	if err := r.hydrateLabels(ctx, issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// hydrateLabels fills Labels for the given issues with a single batch query
// instead of one query per issue.
func (r *Repository) hydrateLabels(ctx context.Context, issues []*types.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	byID := make(map[string]*types.Issue, len(issues))
	placeholders := make([]string, len(issues))
	args := make([]any, len(issues))
	for i, issue := range issues {
		byID[issue.ID] = issue
		placeholders[i] = "?"
		args[i] = issue.ID
	}

	query := fmt.Sprintf(`SELECT il.issue_id, l.id, l.name, l.color
		FROM issue_labels il
		JOIN labels l ON l.id = il.label_id
		WHERE il.issue_id IN (%s)
		ORDER BY il.issue_id, l.name`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query issue labels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var issueID string
		var label types.Label
		if err := rows.Scan(&issueID, &label.ID, &label.Name, &label.Color); err != nil {
			return fmt.Errorf("failed to scan issue label: %w", err)
		}
		if issue, ok := byID[issueID]; ok {
			issue.Labels = append(issue.Labels, label)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate issue labels: %w", err)
	}
	return nil
}

// GetIssue fetches a single issue by id, fully hydrated. Returns ErrNotFound
// when no row matches.
func (r *Repository) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	query := `SELECT ` + issueColumns + `
		FROM issues i
		LEFT JOIN users u ON u.id = i.assignee_id
		WHERE i.id = ?`

	issue, err := scanIssue(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue %s: %w", id, err)
	}
	if err := r.hydrateLabels(ctx, []*types.Issue{issue}); err != nil {
		return nil, err
	}
	return issue, nil
}

// MinOrderIndex returns the smallest order_index within a status column, and
// whether the column holds any issue at all. New cards go above the current
// minimum.
func (r *Repository) MinOrderIndex(ctx context.Context, status string) (float64, bool, error) {
	var min sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		"SELECT MIN(order_index) FROM issues WHERE status = ?", status).Scan(&min)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query min order index: %w", err)
	}
	return min.Float64, min.Valid, nil
}

// CreateIssue inserts the issue and attaches its labels in one transaction.
func (r *Repository) CreateIssue(ctx context.Context, issue *types.Issue, labelIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO issues
		(id, title, description, status, priority, assignee_id, created_at, updated_at, order_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.Title, issue.Description, issue.Status, issue.Priority,
		issue.AssigneeID, issue.CreatedAt, issue.UpdatedAt, issue.OrderIndex)
	if err != nil {
		return fmt.Errorf("failed to insert issue: %w", err)
	}

	if err := insertLabels(ctx, tx, issue.ID, labelIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateIssue applies a partial update. The fields map is column -> value and
// must only contain whitelisted columns; updated_at is stamped automatically
// when the caller did not set it. Returns ErrNotFound when the id matches no
// row.
func (r *Repository) UpdateIssue(ctx context.Context, id string, fields map[string]any) error {
	// Copy so the stamped updated_at never leaks into the caller's map.
	cols := make(map[string]any, len(fields)+1)
	for col, val := range fields {
		cols[col] = val
	}
	if _, ok := cols["updated_at"]; !ok {
		cols["updated_at"] = time.Now().UTC()
	}

	var sets []string
	var args []any
	for col, val := range cols {
		if !allowedUpdateFields[col] {
			return fmt.Errorf("update of column %q is not allowed", col)
		}
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx,
		"UPDATE issues SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update issue %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateIssueLabels replaces the issue's label set. The whole replacement is
// one transaction so readers never see a half-swapped set.
func (r *Repository) UpdateIssueLabels(ctx context.Context, issueID string, labelIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM issue_labels WHERE issue_id = ?", issueID); err != nil {
		return fmt.Errorf("failed to clear issue labels: %w", err)
	}
	if err := insertLabels(ctx, tx, issueID, labelIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// insertLabels attaches labelIDs to an issue, deduplicating the input so a
// repeated id does not violate the edge table's primary key.
func insertLabels(ctx context.Context, tx *sql.Tx, issueID string, labelIDs []string) error {
	if len(labelIDs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO issue_labels (issue_id, label_id) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare label insert: %w", err)
	}
	defer stmt.Close()

	seen := make(map[string]bool, len(labelIDs))
	for _, labelID := range labelIDs {
		if seen[labelID] {
			continue
		}
		seen[labelID] = true
		if _, err := stmt.ExecContext(ctx, issueID, labelID); err != nil {
			return fmt.Errorf("failed to attach label %s: %w", labelID, err)
		}
	}
	return nil
}

// DeleteIssue removes an issue; the edge table rows cascade. Returns
// ErrNotFound when the id matches no row.
func (r *Repository) DeleteIssue(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM issues WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete issue %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetUsers returns all users ordered by name. Never nil.
func (r *Repository) GetUsers(ctx context.Context) ([]types.User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, avatar_url FROM users ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []types.User{}
	for rows.Next() {
		var u types.User
		var avatar sql.NullString
		if err := rows.Scan(&u.ID, &u.Name, &avatar); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.AvatarURL = avatar.String
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// GetLabels returns all labels ordered by name. Never nil.
func (r *Repository) GetLabels(ctx context.Context) ([]types.Label, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, color FROM labels ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query labels: %w", err)
	}
	defer rows.Close()

	labels := []types.Label{}
	for rows.Next() {
		var l types.Label
		if err := rows.Scan(&l.ID, &l.Name, &l.Color); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate labels: %w", err)
	}
	return labels, nil
}
