package decode

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/pagefold/renderkit/codec"
	"github.com/pagefold/renderkit/geo"
)

// fakePage is a controllable codec.Page: tests decide when its decode
// completes by closing the gate.
type fakePage struct {
	width, height int
	gate          chan struct{}
	onRender      func() // ordering probe hook

	mu      sync.Mutex
	renders []renderCall
}

type renderCall struct {
	width, height int
	slice         geo.RectF
}

func newReadyPage(w, h int) *fakePage {
	p := &fakePage{width: w, height: h, gate: make(chan struct{})}
	close(p.gate)
	return p
}

func newDecodingPage(w, h int) *fakePage {
	return &fakePage{width: w, height: h, gate: make(chan struct{})}
}

func (p *fakePage) finishDecode() { close(p.gate) }

func (p *fakePage) Width() int  { return p.width }
func (p *fakePage) Height() int { return p.height }

func (p *fakePage) IsDecoding() bool {
	select {
	case <-p.gate:
		return false
	default:
		return true
	}
}

func (p *fakePage) WaitForDecode(ctx context.Context) error {
	select {
	case <-p.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *fakePage) Render(ctx context.Context, w, h int, slice geo.RectF) (codec.PixelBuffer, error) {
	if err := p.WaitForDecode(ctx); err != nil {
		return nil, err
	}
	if p.onRender != nil {
		p.onRender()
	}
	p.mu.Lock()
	p.renders = append(p.renders, renderCall{width: w, height: h, slice: slice})
	p.mu.Unlock()
	return &fakeBuffer{width: w, height: h}, nil
}

func (p *fakePage) renderCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.renders)
}

type fakeBuffer struct {
	width, height int
	released      atomic.Bool
}

func (b *fakeBuffer) Image() image.Image {
	return image.NewRGBA(image.Rect(0, 0, b.width, b.height))
}

func (b *fakeBuffer) Release() { b.released.Store(true) }

// fakeDocument builds pages on demand via makePage, counting calls per index.
type fakeDocument struct {
	count    int
	makePage func(index int) (codec.Page, error)

	mu        sync.Mutex
	pageCalls map[int]int
	closed    bool
}

// newFakeDocument creates a document whose pages are all ready at 100x100
// unless makePage overrides that.
func newFakeDocument(count int, makePage func(index int) (codec.Page, error)) *fakeDocument {
	if makePage == nil {
		makePage = func(int) (codec.Page, error) { return newReadyPage(100, 100), nil }
	}
	return &fakeDocument{count: count, makePage: makePage, pageCalls: make(map[int]int)}
}

func (d *fakeDocument) PageCount() int { return d.count }

func (d *fakeDocument) Page(ctx context.Context, index int) (codec.Page, error) {
	d.mu.Lock()
	d.pageCalls[index]++
	d.mu.Unlock()
	if index < 0 || index >= d.count {
		return nil, fmt.Errorf("page index %d out of range", index)
	}
	return d.makePage(index)
}

func (d *fakeDocument) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDocument) calls(index int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pageCalls[index]
}

// fakeCodec hands out a fixed sequence of documents, or fails.
type fakeCodec struct {
	mu   sync.Mutex
	docs []codec.Document
	err  error
}

func (c *fakeCodec) OpenDocument(ctx context.Context, path string) (codec.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if len(c.docs) == 0 {
		return nil, fmt.Errorf("no document staged for %q", path)
	}
	doc := c.docs[0]
	if len(c.docs) > 1 {
		c.docs = c.docs[1:]
	}
	return doc, nil
}
