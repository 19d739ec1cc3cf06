// Package resolver caches the server-assigned ids of protocol-owned links,
// keyed by their decoded names. Lookups that miss force a fresh listing
// before giving up.
package resolver

import (
	"context"
	"sync"

	"mux/internal/naming"
	"mux/internal/pulse"
)

// Lister is the slice of the audio server the resolver needs.
type Lister interface {
	ListSinkInputs(ctx context.Context) ([]pulse.SinkInput, error)
}

// LinkRef is a resolved link.
type LinkRef struct {
	InputID  string
	ModuleID string
	SinkID   string
}

// Resolver maps link names to their current stream ids.
type Resolver struct {
	mu    sync.Mutex
	lst   Lister
	links map[naming.LinkName]LinkRef
}

// New returns an empty resolver.
func New(lst Lister) *Resolver {
	return &Resolver{lst: lst, links: map[naming.LinkName]LinkRef{}}
}

// Refresh re-reads the routed-stream listing and rebuilds the cache. The
// full listing is returned so callers that also need third-party streams
// avoid a second query.
func (r *Resolver) Refresh(ctx context.Context) ([]pulse.SinkInput, error) {
	inputs, err := r.lst.ListSinkInputs(ctx)
	if err != nil {
		return nil, err
	}
	r.Store(inputs)
	return inputs, nil
}

// Store rebuilds the cache from an already fetched listing.
func (r *Resolver) Store(inputs []pulse.SinkInput) {
	links := make(map[naming.LinkName]LinkRef, len(inputs))
	for _, in := range inputs {
		name, ok := naming.Parse(in.MediaName)
		if !ok {
			continue
		}
		links[name] = LinkRef{InputID: in.ID, ModuleID: in.OwnerModule, SinkID: in.SinkID}
	}
	r.mu.Lock()
	r.links = links
	r.mu.Unlock()
}

// Cached returns the cached ref without touching the server.
func (r *Resolver) Cached(name naming.LinkName) (LinkRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.links[name]
	return ref, ok
}

// Lookup returns the ref for name, refreshing once on a cache miss. A link
// that is absent after the refresh returns ok=false with a nil error.
func (r *Resolver) Lookup(ctx context.Context, name naming.LinkName) (LinkRef, bool, error) {
	if ref, ok := r.Cached(name); ok {
		return ref, true, nil
	}
	if _, err := r.Refresh(ctx); err != nil {
		return LinkRef{}, false, err
	}
	ref, ok := r.Cached(name)
	return ref, ok, nil
}

// Invalidate drops every cached id. Called after a reconciliation pass
// replaces all links.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.links = map[naming.LinkName]LinkRef{}
	r.mu.Unlock()
}

// Len returns the number of cached links.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.links)
}
