package decode

import (
	"testing"

	"github.com/pagefold/renderkit/geo"
)

func TestTargetSize(t *testing.T) {
	tests := []struct {
		name         string
		pageW, pageH int
		viewport     int
		zoom         float64
		slice        geo.RectF
		wantW, wantH int
	}{
		{
			name:  "full page at zoom 1",
			pageW: 800, pageH: 1000, viewport: 400, zoom: 1,
			slice: geo.FullPage(),
			wantW: 400, wantH: 500,
		},
		{
			name:  "right half at zoom 2",
			pageW: 800, pageH: 1000, viewport: 400, zoom: 2,
			slice: geo.RectF{Left: 0.5, Top: 0, Right: 1, Bottom: 1},
			wantW: 400, wantH: 1000,
		},
		{
			name:  "no viewport renders at natural size",
			pageW: 640, pageH: 480, viewport: 0, zoom: 1,
			slice: geo.FullPage(),
			wantW: 640, wantH: 480,
		},
		{
			// Rounding the full-page size before applying the slice
			// fraction: round(round(12.5) * 0.5) = 7, while a single
			// rounding of 100*0.125*0.5 would give 6.
			name:  "two-stage rounding",
			pageW: 100, pageH: 100, viewport: 0, zoom: 0.125,
			slice: geo.RectF{Left: 0, Top: 0, Right: 0.5, Bottom: 1},
			wantW: 7, wantH: 13,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newReadyPage(tt.pageW, tt.pageH)
			w, h := targetSize(page, tt.viewport, tt.zoom, tt.slice)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("targetSize() = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestPageScale(t *testing.T) {
	if got := pageScale(newReadyPage(800, 1000), 400); got != 0.5 {
		t.Errorf("pageScale = %g, want 0.5", got)
	}
	if got := pageScale(newReadyPage(800, 1000), 0); got != 1 {
		t.Errorf("pageScale with no viewport = %g, want 1", got)
	}
	if got := pageScale(newReadyPage(0, 0), 400); got != 1 {
		t.Errorf("pageScale with degenerate page = %g, want 1", got)
	}
}
