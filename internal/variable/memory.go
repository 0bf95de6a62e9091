package variable

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// WriteRecord is one write accepted by a MemoryServer.
type WriteRecord struct {
	Variable string
	Value    Value
	At       time.Time
}

// MemoryServer is an in-process automation server.
//
// Variables must be declared with Set before they can be read or written,
// and writes must match the declared kind. Failures can be injected per
// operation for tests.
//
// Thread Safety: all methods are safe for concurrent use.
type MemoryServer struct {
	mu          sync.Mutex
	values      map[string]Value
	sourceTimes map[string]time.Time
	writes      []WriteRecord

	connectErr error
	batchErr   error
	readErrs   map[string]error
	writeErrs  map[string]error

	stall   atomic.Bool
	stalled atomic.Int64

	opened atomic.Int64
	closed atomic.Int64
}

// NewMemoryServer creates an empty simulated server.
func NewMemoryServer() *MemoryServer {
	return &MemoryServer{
		values:      make(map[string]Value),
		sourceTimes: make(map[string]time.Time),
		readErrs:    make(map[string]error),
		writeErrs:   make(map[string]error),
	}
}

// Set declares or overwrites a variable without recording a write.
func (m *MemoryServer) Set(id string, v Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[id] = v
	m.sourceTimes[id] = time.Now().UTC()
}

// Get returns the current value of a variable.
func (m *MemoryServer) Get(id string) (Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[id]
	return v, ok
}

// Writes returns a copy of every accepted write, oldest first.
func (m *MemoryServer) Writes() []WriteRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WriteRecord, len(m.writes))
	copy(out, m.writes)
	return out
}

// Sessions reports how many sessions were opened and closed.
func (m *MemoryServer) Sessions() (opened, closed int) {
	return int(m.opened.Load()), int(m.closed.Load())
}

// FailConnect makes Connect return err. A nil err clears the failure.
func (m *MemoryServer) FailConnect(err error) {
	m.mu.Lock()
	m.connectErr = err
	m.mu.Unlock()
}

// FailBatch makes BatchRead return err. A nil err clears the failure.
func (m *MemoryServer) FailBatch(err error) {
	m.mu.Lock()
	m.batchErr = err
	m.mu.Unlock()
}

// FailRead makes Read of id return err. A nil err clears the failure.
func (m *MemoryServer) FailRead(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.readErrs, id)
		return
	}
	m.readErrs[id] = err
}

// FailWrite makes writes to id return err. A nil err clears the failure.
func (m *MemoryServer) FailWrite(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.writeErrs, id)
		return
	}
	m.writeErrs[id] = err
}

// StallReads makes Read and BatchRead block until their context ends,
// like a server that stopped answering. Writes are unaffected.
func (m *MemoryServer) StallReads(on bool) {
	m.stall.Store(on)
}

// StalledReads returns how many reads are blocked by StallReads right now.
func (m *MemoryServer) StalledReads() int {
	return int(m.stalled.Load())
}

func (m *MemoryServer) waitStall(ctx context.Context) error {
	if !m.stall.Load() {
		return nil
	}
	m.stalled.Add(1)
	defer m.stalled.Add(-1)
	<-ctx.Done()
	return ctx.Err()
}

// Connect opens a session. The endpoint is only used in error messages.
func (m *MemoryServer) Connect(ctx context.Context, endpoint string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	err := m.connectErr
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", endpoint, err)
	}

	m.opened.Add(1)
	return &memorySession{server: m}, nil
}

func (m *MemoryServer) read(id string) (DataValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.readErrs[id]; err != nil {
		return DataValue{}, err
	}
	v, ok := m.values[id]
	if !ok {
		return DataValue{}, fmt.Errorf("%w: %s", ErrUnknownVariable, id)
	}
	return DataValue{Value: &v, Quality: QualityGood, SourceTime: m.sourceTimes[id]}, nil
}

func (m *MemoryServer) write(id string, v Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeErrs[id]; err != nil {
		return err
	}
	current, ok := m.values[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, id)
	}
	if current.Kind() != v.Kind() {
		return fmt.Errorf("%w: %s is %s, got %s", ErrTypeMismatch, id, current.Kind(), v.Kind())
	}

	now := time.Now().UTC()
	m.values[id] = v
	m.sourceTimes[id] = now
	m.writes = append(m.writes, WriteRecord{Variable: id, Value: v, At: now})
	return nil
}

type memorySession struct {
	server *MemoryServer
	closed atomic.Bool
}

func (s *memorySession) Read(ctx context.Context, id string) (DataValue, error) {
	if err := s.check(ctx); err != nil {
		return DataValue{}, err
	}
	if err := s.server.waitStall(ctx); err != nil {
		return DataValue{}, err
	}
	return s.server.read(id)
}

func (s *memorySession) Write(ctx context.Context, id string, v Value) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.server.write(id, v)
}

// BatchRead reports unknown or failing variables as bad-quality nulls,
// like a server returning per-item status codes.
func (s *memorySession) BatchRead(ctx context.Context, ids []string) ([]DataValue, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if err := s.server.waitStall(ctx); err != nil {
		return nil, err
	}

	s.server.mu.Lock()
	batchErr := s.server.batchErr
	s.server.mu.Unlock()
	if batchErr != nil {
		return nil, batchErr
	}

	out := make([]DataValue, len(ids))
	for i, id := range ids {
		dv, err := s.server.read(id)
		if err != nil {
			out[i] = DataValue{Quality: QualityBad}
			continue
		}
		out[i] = dv
	}
	return out, nil
}

func (s *memorySession) Close(_ context.Context) error {
	if s.closed.CompareAndSwap(false, true) {
		s.server.closed.Add(1)
	}
	return nil
}

func (s *memorySession) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return ctx.Err()
}
