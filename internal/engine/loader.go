package engine

import (
	"context"
	"sync"
	"time"

	"github.com/photosweep/photosweep/internal/metrics"
	"github.com/photosweep/photosweep/internal/photostore"
)

// StagedLoader materializes pages of descriptors in two tiers: a priority
// slice resolved before the caller unblocks, and a background remainder
// resolved batch by batch while the caller is already interactive.
type StagedLoader struct {
	provider    photostore.Provider
	concurrency int           // priority tier concurrency bound
	batchSize   int           // background tier batch size
	yield       time.Duration // inter-batch pause, a scheduling courtesy
}

// NewStagedLoader creates a staged loader.
func NewStagedLoader(provider photostore.Provider, concurrency, batchSize int, yield time.Duration) *StagedLoader {
	if concurrency <= 0 {
		concurrency = 5
	}
	if batchSize <= 0 {
		batchSize = 8
	}
	return &StagedLoader{
		provider:    provider,
		concurrency: concurrency,
		batchSize:   batchSize,
		yield:       yield,
	}
}

// resolve materializes one descriptor. It never fails: a size lookup
// failure degrades to the pixel estimate, and only an unresolvable
// identity/URI leaves the record a placeholder.
func (l *StagedLoader) resolve(ctx context.Context, d photostore.Descriptor) Asset {
	res, err := l.provider.Resolve(ctx, d)
	if err != nil || res.URI == "" {
		metrics.RecordAssetLoadFailure()
		return Placeholder(d)
	}

	a := Asset{
		Descriptor:  d,
		ResolvedURI: res.URI,
		State:       StateLoaded,
	}
	if res.ByteSize > 0 {
		a.ByteSize = res.ByteSize
		a.SizeExact = true
	} else {
		a.ByteSize = EstimateByteSize(d.Width, d.Height)
	}
	return a
}

// resolveAll settles every descriptor concurrently, bounded by limit.
// Individual failures never short-circuit the batch.
func (l *StagedLoader) resolveAll(ctx context.Context, descs []photostore.Descriptor, limit int) []Asset {
	results := make([]Asset, len(descs))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, d := range descs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, d photostore.Descriptor) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = l.resolve(ctx, d)
		}(i, d)
	}
	wg.Wait()
	return results
}

// LoadPriority materializes the priority slice of a page. It returns only
// once every item has settled, success or fallback.
func (l *StagedLoader) LoadPriority(ctx context.Context, descs []photostore.Descriptor) []Asset {
	results := l.resolveAll(ctx, descs, l.concurrency)
	metrics.RecordAssetsLoaded("priority", len(results))
	return results
}

// LoadBackground materializes the background slice in fixed-size batches.
// The session's liveness is re-checked before and after every batch; a
// batch is applied atomically through apply or not at all. apply receives
// settled assets and merges them by identity; onBatch reports progress
// after each applied batch.
func (l *StagedLoader) LoadBackground(
	ctx context.Context,
	ctrl *Controller,
	sess *Session,
	descs []photostore.Descriptor,
	apply func([]Asset) bool,
	onBatch func(loaded, total int),
) {
	total := len(descs)
	loaded := 0

	for start := 0; start < total; start += l.batchSize {
		if !live(ctrl, sess) || ctx.Err() != nil {
			return
		}

		end := start + l.batchSize
		if end > total {
			end = total
		}
		batch := l.resolveAll(ctx, descs[start:end], l.batchSize)

		// Results of a superseded session must never reach shared state.
		if !live(ctrl, sess) || ctx.Err() != nil {
			return
		}
		if !apply(batch) {
			return
		}

		loaded += len(batch)
		metrics.RecordAssetsLoaded("background", len(batch))
		if onBatch != nil {
			onBatch(loaded, total)
		}

		if l.yield > 0 && loaded < total {
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.yield):
			}
		}
	}
}

func live(ctrl *Controller, sess *Session) bool {
	return ctrl.Current(sess.ID) && !sess.Token.Cancelled()
}
