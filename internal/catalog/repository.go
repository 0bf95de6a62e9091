package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

// defaultSearchLimit caps SearchVariables when no limit is given.
const defaultSearchLimit = 50

// Repository defines the catalog persistence operations.
type Repository interface {
	GetServerConfig(ctx context.Context) (ServerConfig, error)
	SaveServerConfig(ctx context.Context, cfg ServerConfig) (ServerConfig, error)

	ReplaceVariables(ctx context.Context, vars []Variable) (int, error)
	ListVariables(ctx context.Context) ([]Variable, error)
	SearchVariables(ctx context.Context, query string, limit int) ([]Variable, error)

	GetTracking(ctx context.Context) (Selection, error)
	SaveTracking(ctx context.Context, sel Selection) (Selection, error)
	GetSelection(ctx context.Context) (Selection, error)
	SaveSelection(ctx context.Context, sel Selection) (Selection, error)

	TrackedVariables(ctx context.Context) ([]TrackedVariable, error)
}

// selectionTable names the storage for one kind of Selection.
type selectionTable struct {
	table  string
	column string
}

var (
	trackingTable = selectionTable{table: "tracking_config", column: "tracked_nodes"}
	designerTable = selectionTable{table: "selection_config", column: "selected_nodes"}
)

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed catalog repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// GetServerConfig returns the automation server configuration.
func (r *SQLiteRepository) GetServerConfig(ctx context.Context) (ServerConfig, error) {
	var (
		cfg     ServerConfig
		updated string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT url, prefix, updated_at FROM server_config WHERE id = 1`,
	).Scan(&cfg.URL, &cfg.Prefix, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ServerConfig{}, ErrNoServerConfig
		}
		return ServerConfig{}, fmt.Errorf("querying server config: %w", err)
	}
	cfg.UpdatedAt, _ = time.Parse(time.RFC3339, updated) //nolint:errcheck // Format is controlled
	return cfg, nil
}

// SaveServerConfig creates or replaces the automation server configuration.
func (r *SQLiteRepository) SaveServerConfig(ctx context.Context, cfg ServerConfig) (ServerConfig, error) {
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" {
		return ServerConfig{}, ErrInvalidServerConfig
	}
	cfg.Prefix = strings.TrimSpace(cfg.Prefix)
	cfg.UpdatedAt = r.now().UTC().Truncate(time.Second)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO server_config (id, url, prefix, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url, prefix = excluded.prefix, updated_at = excluded.updated_at`,
		cfg.URL, cfg.Prefix, cfg.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("saving server config: %w", err)
	}
	return cfg, nil
}

// ReplaceVariables swaps the whole catalog for vars in one transaction.
// Duplicate node ids keep their first occurrence. It returns the number
// of variables stored.
func (r *SQLiteRepository) ReplaceVariables(ctx context.Context, vars []Variable) (int, error) {
	for _, v := range vars {
		if strings.TrimSpace(v.NodeID) == "" {
			return 0, ErrInvalidVariable
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM variables`); err != nil {
		return 0, fmt.Errorf("clearing variables: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO variables (node_id, browse_name, parent_id, data_type, value_rank)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing variable insert: %w", err)
	}
	defer stmt.Close()

	stored := 0
	for _, v := range vars {
		res, err := stmt.ExecContext(ctx, v.NodeID, v.BrowseName, v.ParentID, v.DataType, v.ValueRank)
		if err != nil {
			return 0, fmt.Errorf("inserting variable %s: %w", v.NodeID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 { //nolint:errcheck // sqlite3 always reports rows affected
			stored++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing variables: %w", err)
	}
	return stored, nil
}

// ListVariables returns the whole catalog ordered by node id.
func (r *SQLiteRepository) ListVariables(ctx context.Context) ([]Variable, error) {
	return r.queryVariables(ctx, `
		SELECT node_id, browse_name, parent_id, data_type, value_rank
		FROM variables ORDER BY node_id`)
}

// SearchVariables returns variables whose node id or browse name contains
// query, case-insensitively. An empty query matches everything.
func (r *SQLiteRepository) SearchVariables(ctx context.Context, query string, limit int) ([]Variable, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	like := "%" + escapeLike(strings.ToLower(query)) + "%"
	return r.queryVariables(ctx, `
		SELECT node_id, browse_name, parent_id, data_type, value_rank
		FROM variables
		WHERE lower(node_id) LIKE ? ESCAPE '\' OR lower(browse_name) LIKE ? ESCAPE '\'
		ORDER BY node_id
		LIMIT ?`, like, like, limit)
}

func (r *SQLiteRepository) queryVariables(ctx context.Context, query string, args ...any) ([]Variable, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying variables: %w", err)
	}
	defer rows.Close()

	vars := []Variable{}
	for rows.Next() {
		var v Variable
		if err := rows.Scan(&v.NodeID, &v.BrowseName, &v.ParentID, &v.DataType, &v.ValueRank); err != nil {
			return nil, fmt.Errorf("scanning variable: %w", err)
		}
		vars = append(vars, v)
	}
	return vars, rows.Err()
}

// GetTracking returns the monitor's tracking configuration. An unset
// configuration is an empty Selection.
func (r *SQLiteRepository) GetTracking(ctx context.Context) (Selection, error) {
	return r.getSelection(ctx, trackingTable)
}

// SaveTracking validates and stores the tracking configuration.
func (r *SQLiteRepository) SaveTracking(ctx context.Context, sel Selection) (Selection, error) {
	return r.saveSelection(ctx, trackingTable, sel)
}

// GetSelection returns the designer's variable selection.
func (r *SQLiteRepository) GetSelection(ctx context.Context) (Selection, error) {
	return r.getSelection(ctx, designerTable)
}

// SaveSelection validates and stores the designer's variable selection.
func (r *SQLiteRepository) SaveSelection(ctx context.Context, sel Selection) (Selection, error) {
	return r.saveSelection(ctx, designerTable, sel)
}

func (r *SQLiteRepository) getSelection(ctx context.Context, t selectionTable) (Selection, error) {
	var (
		sel     Selection
		raw     string
		updated string
	)
	//nolint:gosec // table and column names come from package constants
	query := fmt.Sprintf(`SELECT regex_pattern, %s, updated_at FROM %s WHERE id = 1`, t.column, t.table)
	err := r.db.QueryRowContext(ctx, query).Scan(&sel.Pattern, &raw, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Selection{Nodes: []string{}}, nil
		}
		return Selection{}, fmt.Errorf("querying %s: %w", t.table, err)
	}
	if err := json.Unmarshal([]byte(raw), &sel.Nodes); err != nil {
		return Selection{}, fmt.Errorf("decoding %s: %w", t.column, err)
	}
	if sel.Nodes == nil {
		sel.Nodes = []string{}
	}
	sel.UpdatedAt, _ = time.Parse(time.RFC3339, updated) //nolint:errcheck // Format is controlled
	return sel, nil
}

func (r *SQLiteRepository) saveSelection(ctx context.Context, t selectionTable, sel Selection) (Selection, error) {
	if _, err := regexp.Compile(sel.Pattern); err != nil {
		return Selection{}, fmt.Errorf("%w: %v", ErrInvalidPattern, err) //nolint:errorlint // regexp error is informational
	}

	nodes := dedupe(sel.Nodes)
	missing, err := r.missingVariables(ctx, nodes)
	if err != nil {
		return Selection{}, err
	}
	if len(missing) > 0 {
		return Selection{}, fmt.Errorf("%w: %s", ErrUnknownVariable, strings.Join(missing, ", "))
	}

	raw, err := json.Marshal(nodes)
	if err != nil {
		return Selection{}, fmt.Errorf("encoding %s: %w", t.column, err)
	}
	sel.Nodes = nodes
	sel.UpdatedAt = r.now().UTC().Truncate(time.Second)

	//nolint:gosec // table and column names come from package constants
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (id, regex_pattern, %[2]s, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			regex_pattern = excluded.regex_pattern,
			%[2]s = excluded.%[2]s,
			updated_at = excluded.updated_at`, t.table, t.column)
	if _, err := r.db.ExecContext(ctx, query, sel.Pattern, string(raw), sel.UpdatedAt.Format(time.RFC3339)); err != nil {
		return Selection{}, fmt.Errorf("saving %s: %w", t.table, err)
	}
	return sel, nil
}

// missingVariables returns the ids not present in the catalog, in input order.
func (r *SQLiteRepository) missingVariables(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	stmt, err := r.db.PrepareContext(ctx, `SELECT 1 FROM variables WHERE node_id = ?`)
	if err != nil {
		return nil, fmt.Errorf("preparing variable lookup: %w", err)
	}
	defer stmt.Close()

	var missing []string
	for _, id := range ids {
		var one int
		err := stmt.QueryRowContext(ctx, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("looking up variable %s: %w", id, err)
		}
	}
	return missing, nil
}

// TrackedVariables returns the tracked ids with their catalog data types.
// Ids removed from the catalog since tracking was saved are kept with an
// empty declared type.
func (r *SQLiteRepository) TrackedVariables(ctx context.Context) ([]TrackedVariable, error) {
	sel, err := r.GetTracking(ctx)
	if err != nil {
		return nil, err
	}
	if len(sel.Nodes) == 0 {
		return nil, nil
	}

	stmt, err := r.db.PrepareContext(ctx, `SELECT data_type FROM variables WHERE node_id = ?`)
	if err != nil {
		return nil, fmt.Errorf("preparing data type lookup: %w", err)
	}
	defer stmt.Close()

	tracked := make([]TrackedVariable, 0, len(sel.Nodes))
	for _, id := range sel.Nodes {
		tv := TrackedVariable{ID: id}
		err := stmt.QueryRowContext(ctx, id).Scan(&tv.DeclaredType)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("looking up data type of %s: %w", id, err)
		}
		tracked = append(tracked, tv)
	}
	return tracked, nil
}

// BrowseName returns the catalog browse name of id, or "" if unknown.
func (r *SQLiteRepository) BrowseName(ctx context.Context, id string) (string, error) {
	var name string
	err := r.db.QueryRowContext(ctx, `SELECT browse_name FROM variables WHERE node_id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying browse name: %w", err)
	}
	return name, nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
