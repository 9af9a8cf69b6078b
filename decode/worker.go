package decode

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pagefold/renderkit/codec"
	"github.com/pagefold/renderkit/geo"
	"github.com/pagefold/renderkit/observability"
)

// DefaultQueueDepth bounds the worker queue when no explicit depth is
// configured.
const DefaultQueueDepth = 64

// workItem carries a submitted task together with its cancellation handle
// and a snapshot of the session it was submitted against, so a task enqueued
// before a re-open never touches the new document's cache.
type workItem struct {
	task *Task
	h    *handle
	sess *session
}

// worker is the single serialized execution lane. Exactly one goroutine
// drains the queue in submission order, bounding decode load to one page at
// a time and keeping cache warm-up order deterministic.
type worker struct {
	reg      *registry
	log      observability.Logger
	tracer   observability.Tracer
	viewport func() int
	prefetch bool

	queue chan workItem
	done  chan struct{}
	wg    sync.WaitGroup

	delivered atomic.Int64
	skipped   atomic.Int64
}

func newWorker(reg *registry, log observability.Logger, tracer observability.Tracer, queueDepth int, prefetch bool, viewport func() int) *worker {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &worker{
		reg:      reg,
		log:      log,
		tracer:   tracer,
		viewport: viewport,
		prefetch: prefetch,
		queue:    make(chan workItem, queueDepth),
		done:     make(chan struct{}),
	}
}

func (w *worker) start() {
	w.wg.Add(1)
	go w.loop()
}

func (w *worker) stop() {
	close(w.done)
	w.wg.Wait()
}

// enqueue adds an item to the lane. It blocks while the bounded queue is
// full and returns immediately once the worker has been stopped.
func (w *worker) enqueue(it workItem) {
	select {
	case w.queue <- it:
	case <-w.done:
	}
}

func (w *worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case it := <-w.queue:
			w.perform(it)
		}
	}
}

func (w *worker) perform(it workItem) {
	task, h := it.task, it.h
	log := w.log.With(observability.Int("page", task.PageIndex))

	if !w.reg.isLive(h) {
		w.skipped.Add(1)
		log.Debug("skipping superseded decode task")
		return
	}

	ctx, span := w.tracer.StartSpan(h.ctx, "decode.page")
	defer span.Finish()
	span.SetTag("page", task.PageIndex)
	start := time.Now()

	page, err := it.sess.cache.Get(ctx, task.PageIndex)
	if err != nil {
		// Recoverable: the task is abandoned, no callback fires, and the
		// service stays usable for other slots and pages.
		span.SetError(err)
		log.Error("page decode failed", observability.Error("error", err))
		return
	}

	w.warmNextPage(it, log)

	for page.IsDecoding() {
		if !w.reg.isLive(h) {
			w.skipped.Add(1)
			log.Debug("decode task superseded while waiting")
			return
		}
		if err := page.WaitForDecode(ctx); err != nil {
			w.skipped.Add(1)
			log.Debug("decode wait aborted", observability.Error("error", err))
			return
		}
	}
	if !w.reg.isLive(h) {
		w.skipped.Add(1)
		return
	}

	tw, th := targetSize(page, w.viewport(), task.Zoom, task.Slice)
	renderStart := time.Now()
	buf, err := page.Render(ctx, tw, th, task.Slice)
	if err != nil {
		span.SetError(err)
		log.Error("page render failed", observability.Error("error", err))
		return
	}
	if !w.reg.isLive(h) {
		buf.Release()
		w.skipped.Add(1)
		log.Debug("discarding superseded render")
		return
	}

	task.Callback(buf)
	w.reg.finish(h)
	w.delivered.Add(1)
	log.Debug("page delivered",
		observability.Int("width", tw),
		observability.Int("height", th),
		observability.Float64(observability.MetricDecodeTime, time.Since(start).Seconds()),
		observability.Float64(observability.MetricRenderTime, time.Since(renderStart).Seconds()))
}

// stats returns cumulative delivered and skipped task counts.
func (w *worker) stats() (delivered, skipped int64) {
	return w.delivered.Load(), w.skipped.Load()
}

// warmNextPage starts the decode of the following page so sequential reading
// hits a warm cache. Its completion is neither awaited nor reported and a
// failure is non-fatal.
func (w *worker) warmNextPage(it workItem, log observability.Logger) {
	if !w.prefetch {
		return
	}
	next := it.task.PageIndex + 1
	if next >= it.sess.doc.PageCount() {
		return
	}
	if _, err := it.sess.cache.Get(context.Background(), next); err != nil {
		log.Debug("prefetch failed", observability.Int("next", next), observability.Error("error", err))
	}
}

// targetSize computes the output raster size. The full-page scaled
// dimensions are rounded before the slice fraction is applied; collapsing
// the two roundings into one changes pixel sizes at some zoom ratios.
func targetSize(page codec.Page, viewportWidth int, zoom float64, slice geo.RectF) (int, int) {
	scale := pageScale(page, viewportWidth) * zoom
	fullW := math.Round(scale * float64(page.Width()))
	fullH := math.Round(scale * float64(page.Height()))
	return int(math.Round(fullW * slice.Width())), int(math.Round(fullH * slice.Height()))
}

// pageScale maps the page's natural width onto the viewport width. With no
// viewport configured the page renders at natural size.
func pageScale(page codec.Page, viewportWidth int) float64 {
	w := page.Width()
	if viewportWidth <= 0 || w <= 0 {
		return 1
	}
	return float64(viewportWidth) / float64(w)
}
