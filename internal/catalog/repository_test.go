package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-sfc/migrations"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "catalog.db"),
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	repo := NewSQLiteRepository(db.DB)
	repo.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return repo
}

var plantVariables = []Variable{
	{NodeID: "ns=3;s=Tank.Level", BrowseName: "Level", ParentID: "ns=3;s=Tank", DataType: "Float"},
	{NodeID: "ns=3;s=Tank.Valve", BrowseName: "Valve", ParentID: "ns=3;s=Tank", DataType: "Boolean"},
	{NodeID: "ns=3;s=Pump.Speed", BrowseName: "Speed", ParentID: "ns=3;s=Pump", DataType: "Int32"},
}

func TestServerConfig(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)

	_, err := repo.GetServerConfig(ctx)
	assert.ErrorIs(t, err, ErrNoServerConfig)

	_, err = repo.SaveServerConfig(ctx, ServerConfig{URL: "  "})
	assert.ErrorIs(t, err, ErrInvalidServerConfig)

	_, err = repo.SaveServerConfig(ctx, ServerConfig{URL: "opc.tcp://plc:4840", Prefix: "ns=3;s=Plant"})
	require.NoError(t, err)
	_, err = repo.SaveServerConfig(ctx, ServerConfig{URL: "opc.tcp://plc2:4840", Prefix: " ns=3 "})
	require.NoError(t, err)

	cfg, err := repo.GetServerConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opc.tcp://plc2:4840", cfg.URL)
	assert.Equal(t, "ns=3", cfg.Prefix)
	assert.Equal(t, 2026, cfg.UpdatedAt.Year())
}

func TestReplaceVariables(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)

	n, err := repo.ReplaceVariables(ctx, append(plantVariables, plantVariables[0]))
	require.NoError(t, err)
	assert.Equal(t, 3, n, "duplicates are ignored")

	vars, err := repo.ListVariables(ctx)
	require.NoError(t, err)
	require.Len(t, vars, 3)
	assert.Equal(t, "ns=3;s=Pump.Speed", vars[0].NodeID)

	n, err = repo.ReplaceVariables(ctx, plantVariables[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	vars, err = repo.ListVariables(ctx)
	require.NoError(t, err)
	assert.Len(t, vars, 1)

	_, err = repo.ReplaceVariables(ctx, []Variable{{NodeID: ""}})
	assert.ErrorIs(t, err, ErrInvalidVariable)
}

func TestSearchVariables(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	_, err := repo.ReplaceVariables(ctx, plantVariables)
	require.NoError(t, err)

	tests := []struct {
		name  string
		query string
		limit int
		want  int
	}{
		{"by id", "tank", 0, 2},
		{"by browse name", "SPEED", 0, 1},
		{"empty matches all", "", 0, 3},
		{"limit", "", 2, 2},
		{"like wildcards are literal", "%", 0, 0},
		{"no match", "boiler", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.SearchVariables(ctx, tt.query, tt.limit)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestSelections(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	_, err := repo.ReplaceVariables(ctx, plantVariables)
	require.NoError(t, err)

	sel, err := repo.GetTracking(ctx)
	require.NoError(t, err)
	assert.Empty(t, sel.Nodes)
	assert.NotNil(t, sel.Nodes)

	_, err = repo.SaveTracking(ctx, Selection{Pattern: "(", Nodes: nil})
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = repo.SaveTracking(ctx, Selection{Pattern: "Tank", Nodes: []string{"ns=3;s=Tank.Level", "ns=3;s=Ghost", "ns=3;s=Other"}})
	require.ErrorIs(t, err, ErrUnknownVariable)
	assert.Contains(t, err.Error(), "ns=3;s=Ghost, ns=3;s=Other")

	saved, err := repo.SaveTracking(ctx, Selection{
		Pattern: "Tank\\..*",
		Nodes:   []string{"ns=3;s=Tank.Level", "ns=3;s=Tank.Valve", "ns=3;s=Tank.Level"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ns=3;s=Tank.Level", "ns=3;s=Tank.Valve"}, saved.Nodes)

	got, err := repo.GetTracking(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.Pattern, got.Pattern)
	assert.Equal(t, saved.Nodes, got.Nodes)

	// The designer selection is stored independently.
	designer, err := repo.GetSelection(ctx)
	require.NoError(t, err)
	assert.Empty(t, designer.Nodes)

	_, err = repo.SaveSelection(ctx, Selection{Pattern: ".*", Nodes: []string{"ns=3;s=Pump.Speed"}})
	require.NoError(t, err)
	designer, err = repo.GetSelection(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ns=3;s=Pump.Speed"}, designer.Nodes)

	got, err = repo.GetTracking(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Nodes, 2)
}

func TestTrackedVariables(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)

	tracked, err := repo.TrackedVariables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tracked)

	_, err = repo.ReplaceVariables(ctx, plantVariables)
	require.NoError(t, err)
	_, err = repo.SaveTracking(ctx, Selection{Nodes: []string{"ns=3;s=Pump.Speed", "ns=3;s=Tank.Valve"}})
	require.NoError(t, err)

	// Dropping a variable from the catalog keeps it tracked without a type.
	_, err = repo.ReplaceVariables(ctx, plantVariables[1:2])
	require.NoError(t, err)

	tracked, err = repo.TrackedVariables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TrackedVariable{
		{ID: "ns=3;s=Pump.Speed", DeclaredType: ""},
		{ID: "ns=3;s=Tank.Valve", DeclaredType: "Boolean"},
	}, tracked)
}
