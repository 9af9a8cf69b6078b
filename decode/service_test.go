package decode

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pagefold/renderkit/codec"
	"github.com/pagefold/renderkit/geo"
)

const testTimeout = 5 * time.Second

// recorder counts callback invocations and hands buffers to the test.
type recorder struct {
	ch    chan codec.PixelBuffer
	count atomic.Int32
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan codec.PixelBuffer, 16)}
}

func (r *recorder) callback(buf codec.PixelBuffer) {
	r.count.Add(1)
	r.ch <- buf
}

func (r *recorder) wait(t *testing.T) codec.PixelBuffer {
	t.Helper()
	select {
	case buf := <-r.ch:
		return buf
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for decodeComplete")
		return nil
	}
}

func newTestService(t *testing.T, docs []codec.Document, opts ...Option) *Service {
	t.Helper()
	s := NewService(&fakeCodec{docs: docs}, append([]Option{WithViewportWidth(400)}, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Open(context.Background(), "/doc"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestDeliveredBitmapSize(t *testing.T) {
	page := newReadyPage(800, 1000)
	doc := newFakeDocument(1, func(int) (codec.Page, error) { return page, nil })
	s := newTestService(t, []codec.Document{doc})

	rec := newRecorder()
	s.DecodePage("slot", 0, rec.callback, 1.0, geo.FullPage())
	rec.wait(t)

	if n := page.renderCount(); n != 1 {
		t.Fatalf("render invoked %d times, want 1", n)
	}
	page.mu.Lock()
	call := page.renders[0]
	page.mu.Unlock()
	if call.width != 400 || call.height != 500 {
		t.Errorf("render target = %dx%d, want 400x500", call.width, call.height)
	}
}

func TestDeliveredBitmapSizeZoomedSlice(t *testing.T) {
	page := newReadyPage(800, 1000)
	doc := newFakeDocument(1, func(int) (codec.Page, error) { return page, nil })
	s := newTestService(t, []codec.Document{doc})

	rec := newRecorder()
	rightHalf := geo.RectF{Left: 0.5, Top: 0, Right: 1, Bottom: 1}
	s.DecodePage("slot", 0, rec.callback, 2.0, rightHalf)
	rec.wait(t)

	page.mu.Lock()
	call := page.renders[0]
	page.mu.Unlock()
	if call.width != 400 || call.height != 1000 {
		t.Errorf("render target = %dx%d, want 400x1000", call.width, call.height)
	}
	if call.slice != rightHalf {
		t.Errorf("render slice = %v, want %v", call.slice, rightHalf)
	}
}

func TestSupersessionLaw(t *testing.T) {
	page := newDecodingPage(800, 1000)
	doc := newFakeDocument(1, func(int) (codec.Page, error) { return page, nil })
	s := newTestService(t, []codec.Document{doc})

	first := newRecorder()
	second := newRecorder()
	s.DecodePage("slot", 0, first.callback, 1.0, geo.FullPage())
	s.DecodePage("slot", 0, second.callback, 2.0, geo.FullPage())
	page.finishDecode()

	second.wait(t)
	if got := first.count.Load(); got != 0 {
		t.Errorf("superseded task delivered %d times, want 0", got)
	}
	if got := second.count.Load(); got != 1 {
		t.Errorf("last task delivered %d times, want 1", got)
	}
	delivered, skipped := s.LaneStats()
	if delivered != 1 || skipped != 1 {
		t.Errorf("lane stats = %d delivered / %d skipped, want 1/1", delivered, skipped)
	}
}

func TestStopBeforeDequeue(t *testing.T) {
	blocker := newDecodingPage(100, 100)
	doc := newFakeDocument(2, func(index int) (codec.Page, error) {
		if index == 0 {
			return blocker, nil
		}
		return newReadyPage(100, 100), nil
	})
	// Prefetch would pull page 1 while the lane is parked on page 0 and
	// confuse the counts; this test is about the stopped slot only.
	s := newTestService(t, []codec.Document{doc}, WithPrefetch(false))

	parked := newRecorder()
	stopped := newRecorder()
	s.DecodePage("a", 0, parked.callback, 1.0, geo.FullPage())
	s.DecodePage("b", 1, stopped.callback, 1.0, geo.FullPage())
	// Slot b's task sits in the queue while the lane waits on page 0.
	s.StopDecoding("b")
	blocker.finishDecode()

	parked.wait(t)
	// A sentinel behind slot b proves the lane dequeued (and skipped) it.
	sentinel := newRecorder()
	s.DecodePage("c", 1, sentinel.callback, 1.0, geo.FullPage())
	sentinel.wait(t)
	if got := stopped.count.Load(); got != 0 {
		t.Errorf("stopped task delivered %d times, want 0", got)
	}
}

func TestPrefetchWarmsNextPage(t *testing.T) {
	doc := newFakeDocument(3, nil)
	s := newTestService(t, []codec.Document{doc})

	rec := newRecorder()
	s.DecodePage("slot", 0, rec.callback, 1.0, geo.FullPage())
	rec.wait(t)

	cache := s.session().cache
	if !cache.Contains(1) {
		t.Errorf("page 1 not warmed after decoding page 0")
	}
	if got := doc.calls(1); got != 1 {
		t.Errorf("document asked for page 1 %d times, want 1", got)
	}
}

func TestNoPrefetchPastLastPage(t *testing.T) {
	doc := newFakeDocument(3, nil)
	s := newTestService(t, []codec.Document{doc})

	rec := newRecorder()
	s.DecodePage("slot", 2, rec.callback, 1.0, geo.FullPage())
	rec.wait(t)

	if got := doc.calls(3); got != 0 {
		t.Errorf("document asked for out-of-range page 3 %d times, want 0", got)
	}
}

func TestSubmissionOrderIsPreserved(t *testing.T) {
	const pages = 8
	var mu sync.Mutex
	var order []int
	doc := newFakeDocument(pages, func(index int) (codec.Page, error) {
		p := newReadyPage(100, 100)
		p.onRender = func() {
			mu.Lock()
			order = append(order, index)
			mu.Unlock()
		}
		return p, nil
	})
	s := newTestService(t, []codec.Document{doc})

	rec := newRecorder()
	for i := 0; i < pages; i++ {
		s.DecodePage(i, i, rec.callback, 1.0, geo.FullPage())
	}
	for i := 0; i < pages; i++ {
		rec.wait(t)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != pages {
		t.Fatalf("rendered %d pages, want %d", len(order), pages)
	}
	for i, page := range order {
		if page != i {
			t.Fatalf("render order %v does not match submission order", order)
		}
	}
}

func TestConcurrentDistinctSlotsAllDeliver(t *testing.T) {
	const slots = 16
	doc := newFakeDocument(slots, nil)
	s := newTestService(t, []codec.Document{doc})

	var wg sync.WaitGroup
	counts := make([]atomic.Int32, slots)
	wg.Add(slots)
	done := make(chan struct{})
	for i := 0; i < slots; i++ {
		go func(i int) {
			s.DecodePage(i, i, func(codec.PixelBuffer) {
				counts[i].Add(1)
				wg.Done()
			}, 1.0, geo.FullPage())
		}(i)
	}
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for all slots to deliver")
	}
	for i := range counts {
		if got := counts[i].Load(); got != 1 {
			t.Errorf("slot %d delivered %d times, want exactly 1", i, got)
		}
	}
}

func TestDeliveryRetiresSlot(t *testing.T) {
	doc := newFakeDocument(1, nil)
	s := newTestService(t, []codec.Document{doc})

	rec := newRecorder()
	s.DecodePage("slot", 0, rec.callback, 1.0, geo.FullPage())
	rec.wait(t)
	waitFor(t, func() bool { return s.reg.len() == 0 })
}

func TestOpenFailurePropagates(t *testing.T) {
	wantErr := errors.New("not a document")
	s := NewService(&fakeCodec{err: wantErr})
	t.Cleanup(func() { _ = s.Close() })

	err := s.Open(context.Background(), "/bad")
	var oe *codec.OpenError
	if !errors.As(err, &oe) {
		t.Fatalf("Open error %v is not an OpenError", err)
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("OpenError does not wrap the codec failure: %v", err)
	}
	if s.PageCount() != 0 {
		t.Errorf("PageCount = %d with no document open, want 0", s.PageCount())
	}
}

func TestOpenRejectsBadLocator(t *testing.T) {
	s := NewService(&fakeCodec{docs: []codec.Document{newFakeDocument(1, nil)}})
	t.Cleanup(func() { _ = s.Close() })

	err := s.Open(context.Background(), "content://media/1")
	var oe *codec.OpenError
	if !errors.As(err, &oe) {
		t.Fatalf("Open error %v is not an OpenError", err)
	}
}

func TestReopenCancelsInFlightTasks(t *testing.T) {
	stuck := newDecodingPage(100, 100)
	doc1 := newFakeDocument(1, func(int) (codec.Page, error) { return stuck, nil })
	doc2 := newFakeDocument(2, nil)
	s := newTestService(t, []codec.Document{doc1, doc2})

	orphan := newRecorder()
	s.DecodePage("slot", 0, orphan.callback, 1.0, geo.FullPage())

	if err := s.Open(context.Background(), "/doc2"); err != nil {
		t.Fatalf("re-open: %v", err)
	}
	if s.reg.len() != 0 {
		t.Errorf("registry holds %d handles after re-open, want 0", s.reg.len())
	}

	// The new document is fully usable.
	rec := newRecorder()
	s.DecodePage("slot", 1, rec.callback, 1.0, geo.FullPage())
	rec.wait(t)

	if got := orphan.count.Load(); got != 0 {
		t.Errorf("task against the replaced document delivered %d times, want 0", got)
	}
	waitFor(t, func() bool {
		doc1.mu.Lock()
		defer doc1.mu.Unlock()
		return doc1.closed
	})
}

func TestDecodeErrorAbandonsTaskSilently(t *testing.T) {
	boom := errors.New("unreadable page")
	doc := newFakeDocument(2, func(index int) (codec.Page, error) {
		if index == 0 {
			return nil, boom
		}
		return newReadyPage(100, 100), nil
	})
	s := newTestService(t, []codec.Document{doc}, WithPrefetch(false))

	failed := newRecorder()
	ok := newRecorder()
	s.DecodePage("a", 0, failed.callback, 1.0, geo.FullPage())
	s.DecodePage("b", 1, ok.callback, 1.0, geo.FullPage())

	ok.wait(t)
	if got := failed.count.Load(); got != 0 {
		t.Errorf("failed task invoked its callback %d times, want 0", got)
	}
}

func TestDecodePageBeforeOpenIsIgnored(t *testing.T) {
	s := NewService(&fakeCodec{})
	t.Cleanup(func() { _ = s.Close() })

	rec := newRecorder()
	s.DecodePage("slot", 0, rec.callback, 1.0, geo.FullPage())
	if got := rec.count.Load(); got != 0 {
		t.Errorf("callback invoked %d times with no document open", got)
	}
}

func TestMetricQueries(t *testing.T) {
	doc := newFakeDocument(3, func(int) (codec.Page, error) { return newReadyPage(800, 1000), nil })
	s := newTestService(t, []codec.Document{doc})
	ctx := context.Background()

	if got := s.PageCount(); got != 3 {
		t.Errorf("PageCount = %d, want 3", got)
	}
	if w, err := s.PageWidth(ctx, 1); err != nil || w != 800 {
		t.Errorf("PageWidth = %d, %v; want 800", w, err)
	}
	if h, err := s.PageHeight(ctx, 1); err != nil || h != 1000 {
		t.Errorf("PageHeight = %d, %v; want 1000", h, err)
	}
	if w, err := s.EffectivePagesWidth(ctx); err != nil || w != 400 {
		t.Errorf("EffectivePagesWidth = %d, %v; want 400", w, err)
	}
	if h, err := s.EffectivePagesHeight(ctx); err != nil || h != 500 {
		t.Errorf("EffectivePagesHeight = %d, %v; want 500", h, err)
	}
	// Metric queries intentionally share the page cache with the lane.
	if !s.session().cache.Contains(1) {
		t.Errorf("PageWidth did not populate the cache")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %v", testTimeout)
}
