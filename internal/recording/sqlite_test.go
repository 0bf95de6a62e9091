package recording

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sfc/internal/variable"
	_ "github.com/nerrad567/gray-logic-sfc/migrations"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db.DB
}

func sampleAt(runID, id string, v variable.Value, ts time.Time) Sample {
	return NewSample(runID, id, "x", string(v.Kind()), variable.DataValue{Value: &v, Quality: variable.QualityGood}, ts)
}

func TestSQLiteStoreRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(testDB(t))
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateRun(ctx, Run{ID: "r1", DesignID: "d1", StartedAt: started, VariableCount: 2}))
	assert.ErrorIs(t, store.CreateRun(ctx, Run{ID: "r1", DesignID: "d1", StartedAt: started}), ErrRunExists)

	run, err := store.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, RunRunning, run.Status)
	assert.Equal(t, 2, run.VariableCount)
	assert.Nil(t, run.EndedAt)
	assert.True(t, started.Equal(run.StartedAt))

	require.NoError(t, store.Append(ctx, []Sample{
		sampleAt("r1", "ns=3;s=A", variable.FloatValue(1.5), started),
		sampleAt("r1", "ns=3;s=B", variable.Int32Value(7), started.Add(time.Millisecond)),
	}))

	ended := started.Add(time.Minute)
	require.NoError(t, store.FinishRun(ctx, "r1", RunFinished, ended))

	run, err = store.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, RunFinished, run.Status)
	assert.Equal(t, 2, run.SampleCount)
	require.NotNil(t, run.EndedAt)
	assert.True(t, ended.Equal(*run.EndedAt))

	assert.ErrorIs(t, store.FinishRun(ctx, "missing", RunFinished, ended), ErrRunNotFound)
	_, err = store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSQLiteStoreSamples(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(testDB(t))
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateRun(ctx, Run{ID: "r1", DesignID: "d1", StartedAt: t0}))

	failed := NewSample("r1", "ns=3;s=C", "C", "Boolean", variable.DataValue{Quality: variable.QualityBad}, t0.Add(2*time.Second))
	require.NoError(t, store.Append(ctx, []Sample{
		sampleAt("r1", "ns=3;s=A", variable.FloatValue(1), t0.Add(time.Second)),
		sampleAt("r1", "ns=3;s=B", variable.BoolValue(true), t0),
		failed,
		sampleAt("r1", "ns=3;s=A", variable.FloatValue(2), t0.Add(3*time.Second)),
	}))
	require.NoError(t, store.Append(ctx, nil))

	all, err := store.Samples(ctx, "r1", nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "ns=3;s=B", all[0].Variable, "ordered by timestamp")
	assert.Equal(t, "null", all[2].Value)
	assert.Nil(t, all[2].Decoded())
	assert.Equal(t, string(variable.QualityBad), all[2].Quality)

	onlyA, err := store.Samples(ctx, "r1", []string{"ns=3;s=A"}, 0)
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	v := onlyA[1].Decoded()
	require.NotNil(t, v)
	assert.True(t, variable.FloatValue(2).Equal(*v))

	limited, err := store.Samples(ctx, "r1", []string{"ns=3;s=A", "ns=3;s=B"}, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLiteStoreAppendUnknownRun(t *testing.T) {
	store := NewSQLiteStore(testDB(t))
	err := store.Append(context.Background(), []Sample{
		sampleAt("nope", "ns=3;s=A", variable.FloatValue(1), time.Now()),
	})
	assert.Error(t, err, "foreign key should reject orphan samples")
}

func TestSQLiteStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(testDB(t))
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, store.CreateRun(ctx, Run{ID: id, DesignID: "d1", StartedAt: t0.Add(time.Duration(i) * time.Hour)}))
	}
	require.NoError(t, store.Append(ctx, []Sample{sampleAt("old", "a", variable.FloatValue(1), t0)}))

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "new", runs[0].ID)

	runs, err = store.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	require.NoError(t, store.DeleteRun(ctx, "old"))
	assert.ErrorIs(t, store.DeleteRun(ctx, "old"), ErrRunNotFound)

	samples, err := store.Samples(ctx, "old", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, samples, "samples cascade with their run")
}
