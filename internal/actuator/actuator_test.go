package actuator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-sfc/internal/variable"
)

// flakyAccess wraps a MemoryServer and fails writes after a budget is spent.
type flakyAccess struct {
	srv *variable.MemoryServer

	mu       sync.Mutex
	budget   int
	failures int
}

func (f *flakyAccess) Connect(ctx context.Context, endpoint string) (variable.Session, error) {
	sess, err := f.srv.Connect(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return &flakySession{Session: sess, access: f}, nil
}

type flakySession struct {
	variable.Session
	access *flakyAccess
}

func (s *flakySession) Write(ctx context.Context, id string, v variable.Value) error {
	s.access.mu.Lock()
	if s.access.budget == 0 && s.access.failures > 0 {
		s.access.failures--
		s.access.mu.Unlock()
		return errors.New("write rejected")
	}
	if s.access.budget > 0 {
		s.access.budget--
	}
	s.access.mu.Unlock()
	return s.Session.Write(ctx, id, v)
}

func values(t *testing.T, writes []variable.WriteRecord) []variable.Value {
	t.Helper()
	out := make([]variable.Value, len(writes))
	for i, w := range writes {
		out[i] = w.Value
	}
	return out
}

func TestStepsFor(t *testing.T) {
	assert.Equal(t, 10, StepsFor(time.Second, 10))
	assert.Equal(t, 25, StepsFor(2500*time.Millisecond, 10))
	assert.Equal(t, 1, StepsFor(50*time.Millisecond, 10))
	assert.Equal(t, 1, StepsFor(0, 10))
}

func TestRampLinearFloat(t *testing.T) {
	srv := variable.NewMemoryServer()
	srv.Set("Tank.Level", variable.FloatValue(-1))
	act := New(srv, nil)

	began := time.Now()
	err := act.Ramp(context.Background(), Ramp{
		Endpoint: "sim://local",
		Variable: "Tank.Level",
		Start:    "0",
		End:      "100",
		Steps:    10,
		Duration: 200 * time.Millisecond,
	})
	elapsed := time.Since(began)
	require.NoError(t, err)

	writes := srv.Writes()
	require.Len(t, writes, 10)
	for i, v := range values(t, writes) {
		f, ok := v.Float64()
		require.True(t, ok)
		assert.InDelta(t, 100*float64(i)/9, f, 1e-9, "write %d", i)
	}

	// Write i lands at about i*20ms after the first.
	last := writes[9].At.Sub(writes[0].At)
	assert.GreaterOrEqual(t, last, 170*time.Millisecond)
	assert.Less(t, last, 260*time.Millisecond)
	assert.GreaterOrEqual(t, elapsed, 190*time.Millisecond)

	opened, closed := srv.Sessions()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestRampTypeInference(t *testing.T) {
	tests := []struct {
		name    string
		initial variable.Value
		start   string
		end     string
		steps   int
		want    []variable.Value
	}{
		{
			name:    "int32 truncates",
			initial: variable.Int32Value(0),
			start:   "0", end: "10", steps: 4,
			want: []variable.Value{
				variable.Int32Value(0), variable.Int32Value(3),
				variable.Int32Value(6), variable.Int32Value(10),
			},
		},
		{
			name:    "boolean is non-zero",
			initial: variable.BoolValue(true),
			start:   "false", end: "true", steps: 3,
			want: []variable.Value{
				variable.BoolValue(false), variable.BoolValue(true), variable.BoolValue(true),
			},
		},
		{
			name:    "blank values mean zero",
			initial: variable.FloatValue(5),
			start:   "", end: "", steps: 2,
			want: []variable.Value{variable.FloatValue(0), variable.FloatValue(0)},
		},
		{
			name:    "single step writes start",
			initial: variable.FloatValue(5),
			start:   "7", end: "9", steps: 1,
			want: []variable.Value{variable.FloatValue(7)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := variable.NewMemoryServer()
			srv.Set("V", tt.initial)

			err := New(srv, nil).Ramp(context.Background(), Ramp{
				Variable: "V", Start: tt.start, End: tt.end,
				Steps: tt.steps, Duration: 10 * time.Millisecond,
			})
			require.NoError(t, err)

			got := values(t, srv.Writes())
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.True(t, got[i].Equal(tt.want[i]), "write %d = %v, want %v", i, got[i], tt.want[i])
			}
		})
	}
}

func TestRampReadFailureAssumesFloat(t *testing.T) {
	srv := variable.NewMemoryServer()
	srv.Set("V", variable.FloatValue(0))
	srv.FailRead("V", errors.New("read denied"))

	err := New(srv, nil).Ramp(context.Background(), Ramp{
		Variable: "V", Start: "1", End: "2", Steps: 2, Duration: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Len(t, srv.Writes(), 2)
}

func TestRampFallbackWritesStartOnce(t *testing.T) {
	t.Run("string variable", func(t *testing.T) {
		srv := variable.NewMemoryServer()
		srv.Set("Mode", variable.StringValue("manual"))

		err := New(srv, nil).Ramp(context.Background(), Ramp{
			Variable: "Mode", Start: "auto", End: "off", Steps: 5, Duration: 50 * time.Millisecond,
		})
		require.NoError(t, err)

		got := values(t, srv.Writes())
		require.Len(t, got, 1)
		assert.True(t, got[0].Equal(variable.StringValue("auto")))
	})

	t.Run("unparseable end value", func(t *testing.T) {
		srv := variable.NewMemoryServer()
		srv.Set("V", variable.Int32Value(0))

		err := New(srv, nil).Ramp(context.Background(), Ramp{
			Variable: "V", Start: "4", End: "4.5", Steps: 5, Duration: 50 * time.Millisecond,
		})
		require.NoError(t, err)

		got := values(t, srv.Writes())
		require.Len(t, got, 1)
		assert.True(t, got[0].Equal(variable.Int32Value(4)))
	})

	t.Run("write failure mid ramp", func(t *testing.T) {
		srv := variable.NewMemoryServer()
		srv.Set("V", variable.FloatValue(0))
		access := &flakyAccess{srv: srv, budget: 3, failures: 1}

		err := New(access, nil).Ramp(context.Background(), Ramp{
			Variable: "V", Start: "0", End: "90", Steps: 10, Duration: 50 * time.Millisecond,
		})
		require.NoError(t, err)

		// Three ramp writes are visible, then the start value once.
		got := values(t, srv.Writes())
		require.Len(t, got, 4)
		assert.True(t, got[3].Equal(variable.FloatValue(0)))
	})
}

func TestRampErrors(t *testing.T) {
	t.Run("no variable", func(t *testing.T) {
		err := New(variable.NewMemoryServer(), nil).Ramp(context.Background(), Ramp{Steps: 1})
		assert.ErrorIs(t, err, ErrNoVariable)
	})

	t.Run("connect failure", func(t *testing.T) {
		srv := variable.NewMemoryServer()
		boom := errors.New("refused")
		srv.FailConnect(boom)

		err := New(srv, nil).Ramp(context.Background(), Ramp{Variable: "V", Steps: 1})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("fallback failure", func(t *testing.T) {
		srv := variable.NewMemoryServer()
		srv.Set("V", variable.FloatValue(0))
		srv.FailWrite("V", errors.New("read only"))

		err := New(srv, nil).Ramp(context.Background(), Ramp{
			Variable: "V", Start: "0", End: "1", Steps: 2, Duration: 10 * time.Millisecond,
		})
		assert.ErrorIs(t, err, ErrFallbackFailed)
	})
}

func TestRampCancellation(t *testing.T) {
	srv := variable.NewMemoryServer()
	srv.Set("V", variable.FloatValue(0))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := New(srv, nil).Ramp(ctx, Ramp{
		Variable: "V", Start: "0", End: "100", Steps: 10, Duration: time.Second,
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Partial ramp stays visible and no fallback write happens.
	got := srv.Writes()
	assert.NotEmpty(t, got)
	assert.Less(t, len(got), 10)

	_, closed := srv.Sessions()
	assert.Equal(t, 1, closed, "session closed even when cancelled")
}
