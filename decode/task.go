package decode

import (
	"github.com/pagefold/renderkit/codec"
	"github.com/pagefold/renderkit/geo"
)

// SlotKey identifies a display slot whose content may be redecoded and
// replaced over time. Keys are supplied by the caller and must be comparable.
type SlotKey any

// Callback receives the rendered bitmap of a delivered task. It is invoked
// at most once per submitted task, on the worker lane; callers must not
// assume their own goroutine.
type Callback func(codec.PixelBuffer)

// Task describes one decode request. Tasks are immutable after creation and
// identified by pointer, never by value equality.
type Task struct {
	Slot      SlotKey
	PageIndex int
	Zoom      float64
	Slice     geo.RectF
	Callback  Callback
}
