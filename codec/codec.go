// Package codec defines the capability surface the decode pipeline consumes
// from a document format implementation. The interfaces are intentionally
// small so codecs can be backed by native libraries, pure-Go decoders, or
// remote services without leaking format-specific concerns into callers.
package codec

import (
	"context"
	"image"

	"github.com/pagefold/renderkit/geo"
)

// Codec opens documents of one format family.
type Codec interface {
	// OpenDocument opens the document at path. The returned Document is
	// owned by the caller for its lifetime.
	OpenDocument(ctx context.Context, path string) (Document, error)
}

// Document is an open paginated document.
type Document interface {
	// PageCount returns the number of pages.
	PageCount() int

	// Page returns a handle for the page at index. Obtaining a page may
	// start its decode; the returned handle is usable immediately for
	// dimension queries, while pixel data becomes available once the
	// decode completes.
	Page(ctx context.Context, index int) (Page, error)

	// Close releases the document and everything derived from it.
	Close() error
}

// Page is a decoded or decoding page. A page transitions from decoding to
// ready exactly once; ready is terminal. Any number of observers may wait on
// the same page concurrently without triggering a second decode.
type Page interface {
	// Width returns the natural pixel width of the page.
	Width() int

	// Height returns the natural pixel height of the page.
	Height() int

	// IsDecoding reports whether the page's decode is still in progress.
	IsDecoding() bool

	// WaitForDecode blocks until the page is no longer decoding or ctx is
	// done, whichever comes first.
	WaitForDecode(ctx context.Context) error

	// Render produces a pixel buffer of the given target size containing
	// the part of the page covered by the normalized slice rectangle.
	// Render may block on the page's decode.
	Render(ctx context.Context, targetWidth, targetHeight int, slice geo.RectF) (PixelBuffer, error)
}

// PixelBuffer is a rendered bitmap handed to the UI layer. Callers must call
// Release exactly once when done with it.
type PixelBuffer interface {
	Image() image.Image
	Release()
}
