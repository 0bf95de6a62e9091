package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingNamer struct {
	mu    sync.Mutex
	names map[string]string
	err   error
	calls int
}

func (c *countingNamer) BrowseName(_ context.Context, id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.names[id], nil
}

func TestShortName(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"ns=3;s=Plant.Tank.Level", "Level"},
		{"ns=3;s=Level", "Level"},
		{"Tank.Level", "Level"},
		{"Level", "Level"},
		{"Tank.", "Tank."},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, ShortName(tt.id))
		})
	}
}

func TestResolverCaches(t *testing.T) {
	namer := &countingNamer{names: map[string]string{"ns=3;s=Tank.Level": "TankLevel"}}
	r := NewResolver(namer, time.Minute)
	ctx := context.Background()

	assert.Equal(t, "TankLevel", r.Resolve(ctx, "ns=3;s=Tank.Level"))
	assert.Equal(t, "TankLevel", r.Resolve(ctx, "ns=3;s=Tank.Level"))
	assert.Equal(t, "Speed", r.Resolve(ctx, "ns=3;s=Pump.Speed"))
	assert.Equal(t, 2, namer.calls)

	r.Flush()
	r.Resolve(ctx, "ns=3;s=Tank.Level")
	assert.Equal(t, 3, namer.calls)
}

func TestResolverLookupFailure(t *testing.T) {
	namer := &countingNamer{err: errors.New("db closed")}
	r := NewResolver(namer, 0)
	ctx := context.Background()

	assert.Equal(t, "Level", r.Resolve(ctx, "ns=3;s=Tank.Level"))
	assert.Equal(t, "Level", r.Resolve(ctx, "ns=3;s=Tank.Level"))
	assert.Equal(t, 2, namer.calls, "failures are not cached")
}

func TestResolverWithRepository(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	_, err := repo.ReplaceVariables(ctx, plantVariables)
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver(repo, time.Minute)
	assert.Equal(t, "Valve", r.Resolve(ctx, "ns=3;s=Tank.Valve"))
	assert.Equal(t, "Missing", r.Resolve(ctx, "ns=3;s=Tank.Missing"))
}
