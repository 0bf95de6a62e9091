package design

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultName is used when a design is created without a name.
const DefaultName = "Untitled Design"

// Design is a stored chart.
type Design struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Nodes       json.RawMessage `json:"nodes,omitempty"`
	Edges       json.RawMessage `json:"edges,omitempty"`
	Viewport    json.RawMessage `json:"viewport,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Repository defines design persistence operations.
type Repository interface {
	Create(ctx context.Context, d *Design) error
	Get(ctx context.Context, id string) (*Design, error)
	List(ctx context.Context) ([]Design, error)
	UpdateMeta(ctx context.Context, id, name, description string) (*Design, error)
	SaveChart(ctx context.Context, id string, nodes, edges, viewport json.RawMessage) error
	Delete(ctx context.Context, id string) error
	Load(ctx context.Context, id string) (Chart, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed design repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Create inserts a design, filling in id, name, empty chart data and
// timestamps when absent. Submitted chart data is validated.
func (r *SQLiteRepository) Create(ctx context.Context, d *Design) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		d.Name = DefaultName
	}
	nodes, edges, viewport, err := normalizeChart(d.ID, d.Nodes, d.Edges, d.Viewport)
	if err != nil {
		return err
	}
	d.Nodes, d.Edges, d.Viewport = nodes, edges, viewport

	now := r.now().UTC().Truncate(time.Second)
	d.CreatedAt, d.UpdatedAt = now, now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO designs (id, name, description, nodes, edges, viewport, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Description,
		string(d.Nodes), string(d.Edges), string(d.Viewport),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting design %s: %w", d.ID, err)
	}
	return nil
}

// Get returns a design with its chart data.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Design, error) {
	var (
		d                  Design
		nodes, edges, view string
		created, updated   string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, nodes, edges, viewport, created_at, updated_at
		FROM designs WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name, &d.Description, &nodes, &edges, &view, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDesignNotFound
		}
		return nil, fmt.Errorf("querying design: %w", err)
	}
	d.Nodes = json.RawMessage(nodes)
	d.Edges = json.RawMessage(edges)
	d.Viewport = json.RawMessage(view)
	d.CreatedAt, _ = time.Parse(time.RFC3339, created) //nolint:errcheck // Format is controlled
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updated) //nolint:errcheck // Format is controlled
	return &d, nil
}

// List returns design metadata without chart data, most recently updated
// first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Design, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM designs ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying designs: %w", err)
	}
	defer rows.Close()

	designs := []Design{}
	for rows.Next() {
		var (
			d                Design
			created, updated string
		)
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &created, &updated); err != nil {
			return nil, fmt.Errorf("scanning design: %w", err)
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339, created) //nolint:errcheck // Format is controlled
		d.UpdatedAt, _ = time.Parse(time.RFC3339, updated) //nolint:errcheck // Format is controlled
		designs = append(designs, d)
	}
	return designs, rows.Err()
}

// UpdateMeta changes name and description. An empty name resets to
// DefaultName.
func (r *SQLiteRepository) UpdateMeta(ctx context.Context, id, name, description string) (*Design, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	err := r.update(ctx, id, `name = ?, description = ?`, name, description)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// SaveChart replaces a design's nodes, edges and viewport.
func (r *SQLiteRepository) SaveChart(ctx context.Context, id string, nodes, edges, viewport json.RawMessage) error {
	nodes, edges, viewport, err := normalizeChart(id, nodes, edges, viewport)
	if err != nil {
		return err
	}
	return r.update(ctx, id, `nodes = ?, edges = ?, viewport = ?`,
		string(nodes), string(edges), string(viewport))
}

func (r *SQLiteRepository) update(ctx context.Context, id, set string, args ...any) error {
	now := r.now().UTC().Truncate(time.Second).Format(time.RFC3339)
	args = append(args, now, id)

	//nolint:gosec // set clauses come from this package
	result, err := r.db.ExecContext(ctx, `UPDATE designs SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating design %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports rows affected
		return ErrDesignNotFound
	}
	return nil
}

// Delete removes a design.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM designs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting design %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports rows affected
		return ErrDesignNotFound
	}
	return nil
}

// Load returns the decoded chart of a design.
func (r *SQLiteRepository) Load(ctx context.Context, id string) (Chart, error) {
	var nodes, edges string
	err := r.db.QueryRowContext(ctx, `SELECT nodes, edges FROM designs WHERE id = ?`, id).Scan(&nodes, &edges)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Chart{}, ErrDesignNotFound
		}
		return Chart{}, fmt.Errorf("loading design %s: %w", id, err)
	}
	return DecodeChart(id, []byte(nodes), []byte(edges))
}

// normalizeChart validates chart data and substitutes empty defaults.
func normalizeChart(id string, nodes, edges, viewport json.RawMessage) (n, e, v json.RawMessage, err error) {
	n = orDefault(nodes, "[]")
	e = orDefault(edges, "[]")
	v = orDefault(viewport, "{}")

	if _, err := DecodeChart(id, n, e); err != nil {
		return nil, nil, nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(v, &obj); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: viewport must be an object", ErrInvalidChart)
	}
	return n, e, v, nil
}

func orDefault(raw json.RawMessage, def string) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(def)
	}
	return json.RawMessage(trimmed)
}
