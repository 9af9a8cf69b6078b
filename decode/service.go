// Package decode orchestrates asynchronous page decoding for a paginated
// document renderer: a bounded single-worker lane pulls decode tasks, a
// per-slot registry supersedes stale work, and a reclaimable page cache
// keeps decoded pages warm.
package decode

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pagefold/renderkit/codec"
	"github.com/pagefold/renderkit/geo"
	"github.com/pagefold/renderkit/locator"
	"github.com/pagefold/renderkit/observability"
)

// session binds an open document to its page cache. It is replaced wholesale
// on re-open so a task submitted against one document can never resolve
// pages from another.
type session struct {
	doc   codec.Document
	cache *PageCache
}

// Service is the decode facade. It is safe for concurrent use; submissions
// may come from any goroutine while the single worker lane processes them in
// submission order.
type Service struct {
	codec    codec.Codec
	resolver locator.Resolver
	log      observability.Logger
	tracer   observability.Tracer

	cacheCapacity int
	queueDepth    int
	prefetch      bool

	viewportWidth atomic.Int64

	reg *registry
	w   *worker

	mu   sync.RWMutex
	sess *session
}

// Option configures a Service.
type Option func(*Service)

// WithLogger attaches a structured logger. The default discards everything.
func WithLogger(l observability.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithTracer attaches a tracer for span hooks around decode work.
func WithTracer(t observability.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithResolver replaces the locator resolver used by Open.
func WithResolver(r locator.Resolver) Option {
	return func(s *Service) { s.resolver = r }
}

// WithCacheCapacity bounds the page cache.
func WithCacheCapacity(n int) Option {
	return func(s *Service) { s.cacheCapacity = n }
}

// WithQueueDepth bounds the worker queue.
func WithQueueDepth(n int) Option {
	return func(s *Service) { s.queueDepth = n }
}

// WithViewportWidth sets the initial viewport width used for scale
// computation. It can be changed later with SetViewportWidth.
func WithViewportWidth(w int) Option {
	return func(s *Service) { s.viewportWidth.Store(int64(w)) }
}

// WithPrefetch enables or disables the opportunistic warm-up of the page
// following each decoded one. Enabled by default.
func WithPrefetch(enabled bool) Option {
	return func(s *Service) { s.prefetch = enabled }
}

// NewService creates a Service over c and starts its worker lane. Call Close
// when done.
func NewService(c codec.Codec, opts ...Option) *Service {
	s := &Service{
		codec:         c,
		resolver:      locator.FileResolver{},
		log:           observability.NopLogger{},
		tracer:        observability.NopTracer(),
		cacheCapacity: DefaultCacheCapacity,
		queueDepth:    DefaultQueueDepth,
		prefetch:      true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reg = newRegistry()
	s.w = newWorker(s.reg, s.log, s.tracer, s.queueDepth, s.prefetch, s.ViewportWidth)
	s.w.start()
	return s
}

// Open resolves loc and opens the document behind it, replacing any
// previously open document. Every outstanding slot task is cancelled first
// so no task ever observes a mixed document. A failed Open leaves the
// previous document (if any) in place.
func (s *Service) Open(ctx context.Context, loc string) error {
	path, err := s.resolver.Resolve(loc)
	if err != nil {
		return &codec.OpenError{Locator: loc, Err: err}
	}
	doc, err := s.codec.OpenDocument(ctx, path)
	if err != nil {
		var oe *codec.OpenError
		if errors.As(err, &oe) {
			return err
		}
		return &codec.OpenError{Locator: loc, Err: err}
	}

	s.reg.cancelAll()
	s.mu.Lock()
	old := s.sess
	s.sess = &session{doc: doc, cache: NewPageCache(doc, s.cacheCapacity)}
	s.mu.Unlock()
	if old != nil {
		_ = old.doc.Close()
	}

	s.log.Info("document opened",
		observability.String("locator", loc),
		observability.Int(observability.MetricPageCount, doc.PageCount()))
	return nil
}

// DecodePage submits a decode request for pageIndex on behalf of slot. Any
// in-flight task for the same slot is superseded: it will either be skipped
// before rendering or have its output discarded, never delivered. cb runs on
// the worker lane once the bitmap is ready.
func (s *Service) DecodePage(slot SlotKey, pageIndex int, cb Callback, zoom float64, slice geo.RectF) {
	sess := s.session()
	if sess == nil {
		s.log.Warn("decode requested before open", observability.Int("page", pageIndex))
		return
	}
	task := &Task{Slot: slot, PageIndex: pageIndex, Zoom: zoom, Slice: slice.Clamp(), Callback: cb}
	h := s.reg.submit(task)
	s.w.enqueue(workItem{task: task, h: h, sess: sess})
}

// StopDecoding cancels the in-flight task for slot, if any. Idempotent.
func (s *Service) StopDecoding(slot SlotKey) {
	s.reg.stop(slot)
}

// PageCount returns the page count of the open document, or 0 when nothing
// is open.
func (s *Service) PageCount() int {
	sess := s.session()
	if sess == nil {
		return 0
	}
	return sess.doc.PageCount()
}

// PageWidth returns the natural pixel width of the page at index. The query
// may itself pull the page into the cache and start its decode; it is not
// guaranteed to be cheap.
func (s *Service) PageWidth(ctx context.Context, index int) (int, error) {
	page, err := s.getPage(ctx, index)
	if err != nil {
		return 0, err
	}
	return page.Width(), nil
}

// PageHeight returns the natural pixel height of the page at index. Same
// cost caveat as PageWidth.
func (s *Service) PageHeight(ctx context.Context, index int) (int, error) {
	page, err := s.getPage(ctx, index)
	if err != nil {
		return 0, err
	}
	return page.Height(), nil
}

// EffectivePagesWidth returns page 0's width scaled to the viewport at
// zoom 1.
func (s *Service) EffectivePagesWidth(ctx context.Context) (int, error) {
	page, err := s.getPage(ctx, 0)
	if err != nil {
		return 0, err
	}
	w, _ := targetSize(page, s.ViewportWidth(), 1, geo.FullPage())
	return w, nil
}

// EffectivePagesHeight returns page 0's height scaled to the viewport at
// zoom 1.
func (s *Service) EffectivePagesHeight(ctx context.Context) (int, error) {
	page, err := s.getPage(ctx, 0)
	if err != nil {
		return 0, err
	}
	_, h := targetSize(page, s.ViewportWidth(), 1, geo.FullPage())
	return h, nil
}

// SetViewportWidth records the width of the display area page scales derive
// from. Safe to call concurrently with decoding.
func (s *Service) SetViewportWidth(w int) { s.viewportWidth.Store(int64(w)) }

// ViewportWidth returns the current viewport width; 0 means pages render at
// natural size.
func (s *Service) ViewportWidth() int { return int(s.viewportWidth.Load()) }

// CacheStats returns cumulative page cache hit, miss and eviction counts for
// the current document. All zeros when nothing is open.
func (s *Service) CacheStats() (hits, misses, evictions int64) {
	sess := s.session()
	if sess == nil {
		return 0, 0, 0
	}
	return sess.cache.Stats()
}

// LaneStats returns cumulative delivered and skipped task counts for the
// worker lane.
func (s *Service) LaneStats() (delivered, skipped int64) {
	return s.w.stats()
}

// Close stops the worker lane, cancels all outstanding tasks and closes the
// open document.
func (s *Service) Close() error {
	s.w.stop()
	s.reg.cancelAll()
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()

	delivered, skipped := s.w.stats()
	hits, misses, evictions := int64(0), int64(0), int64(0)
	if sess != nil {
		hits, misses, evictions = sess.cache.Stats()
	}
	s.log.Info("decode service closed",
		observability.Int64(observability.MetricDeliveredFrames, delivered),
		observability.Int64(observability.MetricSkippedTasks, skipped),
		observability.Int64(observability.MetricCacheHits, hits),
		observability.Int64(observability.MetricCacheMisses, misses),
		observability.Int64(observability.MetricCacheEvictions, evictions))

	if sess != nil {
		return sess.doc.Close()
	}
	return nil
}

var errNotOpen = errors.New("no document open")

func (s *Service) session() *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess
}

func (s *Service) getPage(ctx context.Context, index int) (codec.Page, error) {
	sess := s.session()
	if sess == nil {
		return nil, errNotOpen
	}
	return sess.cache.Get(ctx, index)
}
