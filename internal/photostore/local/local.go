// Package local provides a photo provider over a local image library.
//
// The library root is scanned once at open: every image file becomes a
// descriptor whose taken-time comes from EXIF when present, falling back
// to the file modification time. Top-level subdirectories double as
// albums.
package local

import (
	"context"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"

	"github.com/photosweep/photosweep/internal/logging"
	"github.com/photosweep/photosweep/internal/metrics"
	"github.com/photosweep/photosweep/internal/photostore"
)

// imageExtensions are file extensions treated as library images.
var imageExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif",
	".heic", ".heif", ".avif", ".webp", ".bmp", ".tiff", ".tif",
}

// IsImageFile checks if a file path has an image extension.
func IsImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Provider implements photostore.Provider over a directory tree.
type Provider struct {
	root  string
	index *photostore.Index
}

// New creates a provider rooted at root and scans the library.
func New(root string) (*Provider, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat library root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library root %s is not a directory", root)
	}

	p := &Provider{root: root, index: photostore.NewIndex()}
	if err := p.Rescan(); err != nil {
		return nil, err
	}
	return p, nil
}

// Rescan rebuilds the descriptor index from the filesystem.
func (p *Provider) Rescan() error {
	start := time.Now()
	var descs []photostore.Descriptor

	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			logging.Debug("library scan skip", zap.String("path", path), zap.Error(err))
			return nil
		}
		if d.IsDir() || !IsImageFile(path) {
			return nil
		}
		desc, ok := p.describe(path)
		if ok {
			descs = append(descs, desc)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan library: %w", err)
	}

	p.index.Replace(descs)
	metrics.RecordProviderOp("local", "scan", time.Since(start))
	logging.Info("library scanned",
		zap.String("root", p.root),
		zap.Int("assets", len(descs)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// describe builds a descriptor for one file. Files that cannot even be
// stat'd are dropped; EXIF and dimension failures degrade to defaults.
func (p *Provider) describe(path string) (photostore.Descriptor, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return photostore.Descriptor{}, false
	}

	rel, err := filepath.Rel(p.root, path)
	if err != nil {
		return photostore.Descriptor{}, false
	}

	d := photostore.Descriptor{
		ID:      filepath.ToSlash(rel),
		TakenAt: info.ModTime().UnixMilli(),
		URI:     path,
	}

	f, err := os.Open(path)
	if err != nil {
		return d, true
	}
	defer f.Close()

	if cfg, _, err := image.DecodeConfig(f); err == nil {
		d.Width = cfg.Width
		d.Height = cfg.Height
	}

	if _, err := f.Seek(0, 0); err == nil {
		if x, err := exif.Decode(f); err == nil {
			if taken, err := x.DateTime(); err == nil {
				d.TakenAt = taken.UnixMilli()
			}
		}
	}
	return d, true
}

func match(scope photostore.Scope) func(photostore.Descriptor) bool {
	return func(d photostore.Descriptor) bool {
		if !scope.IsRange() {
			// Album = top-level subdirectory.
			return strings.HasPrefix(d.ID, scope.AlbumID+"/")
		}
		return d.TakenAt >= scope.Start && d.TakenAt < scope.End
	}
}

// FirstPage returns the first page of descriptors for a scope.
func (p *Provider) FirstPage(ctx context.Context, scope photostore.Scope, pageSize int) (photostore.Page, error) {
	if err := ctx.Err(); err != nil {
		return photostore.Page{}, err
	}
	return p.index.Page(match(scope), "", pageSize), nil
}

// NextPage continues enumeration after the given cursor.
func (p *Provider) NextPage(ctx context.Context, scope photostore.Scope, after string, pageSize int) (photostore.Page, error) {
	if err := ctx.Err(); err != nil {
		return photostore.Page{}, err
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

// Resolve stats the file for its exact byte size.
func (p *Provider) Resolve(ctx context.Context, d photostore.Descriptor) (photostore.Resolution, error) {
	if err := ctx.Err(); err != nil {
		return photostore.Resolution{}, err
	}
	start := time.Now()
	path := filepath.Join(p.root, filepath.FromSlash(d.ID))
	info, err := os.Stat(path)
	metrics.RecordProviderOp("local", "resolve", time.Since(start))
	if err != nil {
		return photostore.Resolution{}, fmt.Errorf("stat %s: %w", d.ID, err)
	}
	return photostore.Resolution{URI: path, ByteSize: info.Size()}, nil
}

// Delete removes the given files. Existence is verified for the whole
// batch before anything is removed.
func (p *Provider) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	defer func() { metrics.RecordProviderOp("local", "delete", time.Since(start)) }()

	paths := make([]string, len(ids))
	for i, id := range ids {
		paths[i] = filepath.Join(p.root, filepath.FromSlash(id))
		if _, err := os.Stat(paths[i]); err != nil {
			return fmt.Errorf("stat %s: %w", id, err)
		}
	}
	for i, path := range paths {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove %s: %w", ids[i], err)
		}
	}
	p.index.Remove(ids)
	return nil
}

// Type returns the provider type identifier.
func (p *Provider) Type() string {
	return "local"
}

// Close releases resources (none for the local provider).
func (p *Provider) Close() error {
	return nil
}
