// Package summary computes per-month library overviews (asset count, byte
// total, a cover thumbnail) and memoizes them in the scope cache.
package summary

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/photosweep/photosweep/internal/engine"
	"github.com/photosweep/photosweep/internal/logging"
	"github.com/photosweep/photosweep/internal/photostore"
	"github.com/photosweep/photosweep/internal/scopecache"
)

const countPageSize = 100

// Service builds month summaries over a provider, memoized best-effort in
// the scope cache.
type Service struct {
	provider photostore.Provider
	cache    *scopecache.Store // optional
}

// New creates a summary service. cache may be nil.
func New(provider photostore.Provider, cache *scopecache.Store) *Service {
	return &Service{provider: provider, cache: cache}
}

// Months returns summaries for up to n most recent non-empty months,
// newest first.
func (s *Service) Months(ctx context.Context, n int) ([]scopecache.MonthSummary, error) {
	var out []scopecache.MonthSummary

	// Start the probe just past "now" so the current month is included.
	probe := time.Now().UTC().Add(24 * time.Hour).UnixMilli()
	for len(out) < n {
		ts, ok, err := s.provider.NearestBefore(ctx, probe)
		if err != nil {
			return out, fmt.Errorf("probe month: %w", err)
		}
		if !ok {
			break
		}
		scope := photostore.MonthScope(time.UnixMilli(ts).UTC())
		month := time.UnixMilli(scope.Start).UTC().Format("2006-01")

		if s.cache != nil {
			if cached, hit := s.cache.GetSummary(month); hit {
				out = append(out, cached)
				probe = scope.Start
				continue
			}
		}

		sum, err := s.build(ctx, scope, month)
		if err != nil {
			return out, err
		}
		if s.cache != nil {
			if putErr := s.cache.PutSummary(sum); putErr != nil {
				logging.Debug("summary cache write failed", zap.Error(putErr))
			}
		}
		out = append(out, sum)
		probe = scope.Start
	}
	return out, nil
}

// build pages through one month counting assets and estimating bytes, and
// picks the newest asset as the cover thumbnail.
func (s *Service) build(ctx context.Context, scope photostore.Scope, month string) (scopecache.MonthSummary, error) {
	sum := scopecache.MonthSummary{
		Month:       month,
		GeneratedAt: time.Now().UnixMilli(),
	}

	page, err := s.provider.FirstPage(ctx, scope, countPageSize)
	if err != nil {
		return sum, fmt.Errorf("summarize %s: %w", month, err)
	}
	var cover *photostore.Descriptor
	for {
		for i, d := range page.Items {
			if cover == nil && i == 0 {
				c := d
				cover = &c
			}
			sum.Count++
			sum.Bytes += engine.EstimateByteSize(d.Width, d.Height)
		}
		if !page.HasNextPage {
			break
		}
		page, err = s.provider.NextPage(ctx, scope, page.EndCursor, countPageSize)
		if err != nil {
			return sum, fmt.Errorf("summarize %s: %w", month, err)
		}
		if len(page.Items) == 0 {
			break
		}
	}

	if cover != nil {
		if thumb, err := thumbFromFile(cover.URI); err == nil {
			sum.ThumbJPEG = thumb
		} else {
			logging.Debug("cover thumbnail skipped",
				zap.String("uri", cover.URI), zap.Error(err))
		}
	}
	return sum, nil
}
