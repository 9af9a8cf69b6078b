// Package imagecodec renders documents assembled from ordinary raster
// images. A locator may point at a single image file, which becomes a
// one-page document, or at a directory whose image files become pages in
// lexical filename order.
package imagecodec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pagefold/renderkit/codec"

	// Register decoders for the formats a document directory may hold.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var pageExtensions = map[string]bool{
	".bmp":  true,
	".gif":  true,
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// Codec opens image-backed documents.
type Codec struct {
	scaler Scaler
}

// Option configures a Codec.
type Option func(*Codec)

// WithScaler replaces the interpolator used when rasterizing pages.
func WithScaler(s Scaler) Option {
	return func(c *Codec) { c.scaler = s }
}

// New creates an image codec. Without options pages are scaled with the
// default Catmull-Rom interpolator.
func New(opts ...Option) *Codec {
	c := &Codec{scaler: DefaultScaler()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenDocument opens the file or directory at path as a paginated document.
func (c *Codec) OpenDocument(ctx context.Context, path string) (codec.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var pages []string
	if info.IsDir() {
		pages, err = listPages(path)
		if err != nil {
			return nil, err
		}
		if len(pages) == 0 {
			return nil, fmt.Errorf("directory %s holds no supported image files", path)
		}
	} else {
		if !pageExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil, fmt.Errorf("unsupported image file %s", path)
		}
		pages = []string{path}
	}
	return &document{paths: pages, scaler: c.scaler}, nil
}

func listPages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var pages []string
	for _, e := range entries {
		if e.IsDir() || !pageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		pages = append(pages, filepath.Join(dir, e.Name()))
	}
	sort.Strings(pages)
	return pages, nil
}

// document is an ordered set of image files.
type document struct {
	paths  []string
	scaler Scaler

	mu     sync.Mutex
	closed bool
}

func (d *document) PageCount() int { return len(d.paths) }

// Page creates the page at index, reading the image header synchronously for
// its dimensions and decoding the pixels on a background goroutine.
func (d *document) Page(ctx context.Context, index int) (codec.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, &codec.DecodeError{PageIndex: index, Err: fmt.Errorf("document closed")}
	}
	if index < 0 || index >= len(d.paths) {
		return nil, &codec.DecodeError{PageIndex: index, Err: fmt.Errorf("page index out of range [0,%d)", len(d.paths))}
	}
	return newPage(index, d.paths[index], d.scaler)
}

func (d *document) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
