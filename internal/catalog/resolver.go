package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// BrowseNamer looks up a variable's browse name. An unknown id yields "".
type BrowseNamer interface {
	BrowseName(ctx context.Context, id string) (string, error)
}

// Resolver maps full variable ids to short display names for sample
// labelling. Lookups are cached for ttl; resolution never fails.
type Resolver struct {
	names BrowseNamer
	cache *cache.Cache
}

// NewResolver creates a resolver over a browse-name source. A non-positive
// ttl disables expiry.
func NewResolver(names BrowseNamer, ttl time.Duration) *Resolver {
	expiry := ttl
	if expiry <= 0 {
		expiry = cache.NoExpiration
	}
	return &Resolver{
		names: names,
		cache: cache.New(expiry, 2*expiry),
	}
}

// Resolve returns the catalog browse name of id when known, otherwise the
// id's last path segment.
func (r *Resolver) Resolve(ctx context.Context, id string) string {
	if cached, ok := r.cache.Get(id); ok {
		return cached.(string) //nolint:forcetypeassert // only strings are stored
	}

	name := ""
	if r.names != nil {
		if n, err := r.names.BrowseName(ctx, id); err == nil {
			name = n
		} else {
			// Not cached so the next call retries the lookup.
			return ShortName(id)
		}
	}
	if name == "" {
		name = ShortName(id)
	}
	r.cache.SetDefault(id, name)
	return name
}

// Flush drops every cached name, e.g. after the catalog is replaced.
func (r *Resolver) Flush() {
	r.cache.Flush()
}

// ShortName returns the segment of id after the last ";s=" and then after
// the last ".". "ns=3;s=Plant.Tank.Level" becomes "Level".
func ShortName(id string) string {
	if i := strings.LastIndex(id, ";s="); i >= 0 {
		id = id[i+len(";s="):]
	}
	if i := strings.LastIndex(id, "."); i >= 0 && i < len(id)-1 {
		id = id[i+1:]
	}
	return id
}
