package recording

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-sfc/internal/variable"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunFinished  = "finished"
	RunCancelled = "cancelled"

	// RunFailed marks a run whose monitor could not reach the server.
	RunFailed = "failed"
)

// Sample is one recorded observation. Samples are never modified.
type Sample struct {
	RunID        string    `json:"run_id"`
	Timestamp    time.Time `json:"timestamp"`
	Variable     string    `json:"variable"`
	ShortName    string    `json:"short_name"`
	DeclaredType string    `json:"declared_type"`

	// Value is the JSON encoding of the reading ("null" for a failed read).
	Value string `json:"value"`

	Quality         string     `json:"quality"`
	SourceTimestamp *time.Time `json:"source_timestamp,omitempty"`
}

// NewSample builds a sample from a reading taken at ts.
func NewSample(runID, id, shortName, declaredType string, dv variable.DataValue, ts time.Time) Sample {
	raw := "null"
	if dv.Value != nil {
		if data, err := json.Marshal(dv.Value); err == nil {
			raw = string(data)
		}
	}

	s := Sample{
		RunID:        runID,
		Timestamp:    ts.UTC(),
		Variable:     id,
		ShortName:    shortName,
		DeclaredType: declaredType,
		Value:        raw,
		Quality:      string(dv.Quality),
	}
	if !dv.SourceTime.IsZero() {
		st := dv.SourceTime.UTC()
		s.SourceTimestamp = &st
	}
	return s
}

// Decoded returns the sample's value, or nil when it recorded a failed read.
func (s Sample) Decoded() *variable.Value {
	if s.Value == "" || s.Value == "null" {
		return nil
	}
	var v variable.Value
	if err := json.Unmarshal([]byte(s.Value), &v); err != nil {
		return nil
	}
	return &v
}

// Run is the bookkeeping record of one monitored run.
type Run struct {
	ID            string     `json:"id"`
	DesignID      string     `json:"design_id"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Status        string     `json:"status"`
	VariableCount int        `json:"variable_count"`
	SampleCount   int        `json:"sample_count"`
}

// Sink accepts batches of samples.
type Sink interface {
	Append(ctx context.Context, samples []Sample) error
}

// RunLog opens and closes run records.
type RunLog interface {
	CreateRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, runID, status string, endedAt time.Time) error
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
