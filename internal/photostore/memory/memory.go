// Package memory provides an in-memory photo provider used by tests and
// the demo mode. Album membership is modeled as an ID prefix
// ("albumID/...").
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/photosweep/photosweep/internal/photostore"
)

// Provider implements photostore.Provider over an in-memory asset set.
// All methods are safe for concurrent use.
type Provider struct {
	index *photostore.Index

	mu    sync.RWMutex
	sizes map[string]int64

	// Fault injection for tests.
	resolveErrs map[string]error
	pageErr     error
	deleteErr   error
}

// New creates an empty in-memory provider.
func New() *Provider {
	return &Provider{
		index:       photostore.NewIndex(),
		sizes:       make(map[string]int64),
		resolveErrs: make(map[string]error),
	}
}

// Add inserts an asset with an exact byte size.
func (p *Provider) Add(d photostore.Descriptor, size int64) {
	p.mu.Lock()
	p.sizes[d.ID] = size
	p.mu.Unlock()
	p.index.Add(d)
}

// SetResolveErr makes Resolve fail for the given asset id.
func (p *Provider) SetResolveErr(id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolveErrs[id] = err
}

// SetPageErr makes page fetches fail with err until reset with nil.
func (p *Provider) SetPageErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageErr = err
}

// SetDeleteErr makes Delete fail with err until reset with nil.
func (p *Provider) SetDeleteErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleteErr = err
}

// Len returns the number of assets currently stored.
func (p *Provider) Len() int {
	return p.index.Len()
}

func match(scope photostore.Scope) func(photostore.Descriptor) bool {
	return func(d photostore.Descriptor) bool {
		if !scope.IsRange() {
			return strings.HasPrefix(d.ID, scope.AlbumID+"/")
		}
		return d.TakenAt >= scope.Start && d.TakenAt < scope.End
	}
}

// FirstPage returns the first page of descriptors for a scope.
func (p *Provider) FirstPage(ctx context.Context, scope photostore.Scope, pageSize int) (photostore.Page, error) {
	return p.page(ctx, scope, "", pageSize)
}

// NextPage continues enumeration after the given cursor.
func (p *Provider) NextPage(ctx context.Context, scope photostore.Scope, after string, pageSize int) (photostore.Page, error) {
	return p.page(ctx, scope, after, pageSize)
}

func (p *Provider) page(ctx context.Context, scope photostore.Scope, after string, pageSize int) (photostore.Page, error) {
	if err := ctx.Err(); err != nil {
		return photostore.Page{}, err
	}
	p.mu.RLock()
	pageErr := p.pageErr
	p.mu.RUnlock()
	if pageErr != nil {
		return photostore.Page{}, pageErr
	}
	return p.index.Page(match(scope), after, pageSize), nil
}

// NearestBefore returns the newest TakenAt strictly older than ts.
func (p *Provider) NearestBefore(ctx context.Context, ts int64) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	found, ok := p.index.NearestBefore(ts)
	return found, ok, nil
}

// Resolve materializes a descriptor.
func (p *Provider) Resolve(ctx context.Context, d photostore.Descriptor) (photostore.Resolution, error) {
	if err := ctx.Err(); err != nil {
		return photostore.Resolution{}, err
	}
	p.mu.RLock()
	injected := p.resolveErrs[d.ID]
	size := p.sizes[d.ID]
	p.mu.RUnlock()

	if injected != nil {
		return photostore.Resolution{}, injected
	}
	cur, ok := p.index.Get(d.ID)
	if !ok {
		return photostore.Resolution{}, fmt.Errorf("asset not found: %s", d.ID)
	}
	uri := cur.URI
	if uri == "" {
		uri = "mem://" + d.ID
	}
	return photostore.Resolution{URI: uri, ByteSize: size}, nil
}

// Delete removes the given assets. All-or-nothing: a missing id fails the
// whole batch without removing anything.
func (p *Provider) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	deleteErr := p.deleteErr
	p.mu.Unlock()
	if deleteErr != nil {
		return deleteErr
	}

	for _, id := range ids {
		if _, ok := p.index.Get(id); !ok {
			return fmt.Errorf("asset not found: %s", id)
		}
	}
	p.index.Remove(ids)

	p.mu.Lock()
	for _, id := range ids {
		delete(p.sizes, id)
	}
	p.mu.Unlock()
	return nil
}

// Type returns the provider type identifier.
func (p *Provider) Type() string {
	return "memory"
}

// Close releases resources (none for the in-memory provider).
func (p *Provider) Close() error {
	return nil
}
