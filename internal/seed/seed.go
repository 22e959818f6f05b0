// Package seed wipes and repopulates the store with demo data. It is the
// only write path for users and labels.
package seed

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/issueboard/issueboard/internal/idgen"
	"github.com/issueboard/issueboard/internal/storage"
)

//go:embed defaults.yaml
var defaultData []byte

// Data is the fixture document.
type Data struct {
	Users  []User  `yaml:"users"`
	Labels []Label `yaml:"labels"`
	Issues []Issue `yaml:"issues"`
}

// User is a seeded board member.
type User struct {
	Name      string `yaml:"name"`
	AvatarURL string `yaml:"avatar_url"`
}

// Label is a seeded tag.
type Label struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

// Issue is a seeded card. Assignee and Labels refer to seeded users and
// labels by name.
type Issue struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Status      string   `yaml:"status"`
	Priority    string   `yaml:"priority"`
	Assignee    string   `yaml:"assignee"`
	Labels      []string `yaml:"labels"`
}

// Load reads a fixture document from path, or the embedded defaults when
// path is empty.
func Load(path string) (*Data, error) {
	raw := defaultData
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read seed file: %w", err)
		}
	}
	var data Data
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	return &data, nil
}

// Run wipes the four tables and inserts the fixture. Everything happens in
// one transaction so a partial seed never survives.
func Run(ctx context.Context, store *storage.Store, data *Data) error {
	tx, err := store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"issue_labels", "issues", "labels", "users"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	userIDs := make(map[string]string, len(data.Users))
	for _, u := range data.Users {
		id := idgen.New()
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO users (id, name, avatar_url) VALUES (?, ?, ?)",
			id, u.Name, u.AvatarURL); err != nil {
			return fmt.Errorf("failed to insert user %s: %w", u.Name, err)
		}
		userIDs[u.Name] = id
	}

	labelIDs := make(map[string]string, len(data.Labels))
	for _, l := range data.Labels {
		id := idgen.New()
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO labels (id, name, color) VALUES (?, ?, ?)",
			id, l.Name, l.Color); err != nil {
			return fmt.Errorf("failed to insert label %s: %w", l.Name, err)
		}
		labelIDs[l.Name] = id
	}

	now := time.Now().UTC()
	for i, issue := range data.Issues {
		id := idgen.New()

		var assigneeID any
		if issue.Assignee != "" {
			uid, ok := userIDs[issue.Assignee]
			if !ok {
				return fmt.Errorf("issue %q references unknown user %q", issue.Title, issue.Assignee)
			}
			assigneeID = uid
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO issues
			(id, title, description, status, priority, assignee_id, created_at, updated_at, order_index)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, issue.Title, issue.Description, issue.Status, issue.Priority,
			assigneeID, now, now, float64(i)); err != nil {
			return fmt.Errorf("failed to insert issue %q: %w", issue.Title, err)
		}

		for _, name := range issue.Labels {
			lid, ok := labelIDs[name]
			if !ok {
				return fmt.Errorf("issue %q references unknown label %q", issue.Title, name)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO issue_labels (issue_id, label_id) VALUES (?, ?)",
				id, lid); err != nil {
				return fmt.Errorf("failed to attach label %q: %w", name, err)
			}
		}
	}

	return tx.Commit()
}

// Counts reports how many rows each table holds after seeding.
func Counts(ctx context.Context, db *sql.DB) (users, labels, issues int, err error) {
	if err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&users); err != nil {
		return
	}
	if err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM labels").Scan(&labels); err != nil {
		return
	}
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues").Scan(&issues)
	return
}
