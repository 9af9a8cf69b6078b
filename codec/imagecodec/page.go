package imagecodec

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"

	"github.com/pagefold/renderkit/codec"
	"github.com/pagefold/renderkit/geo"
)

// page decodes one image file. The dimensions come from the header at
// construction time; the pixel decode runs on its own goroutine and the done
// channel closes when it settles, successfully or not.
type page struct {
	index         int
	width, height int
	scaler        Scaler

	done chan struct{}
	img  image.Image
	err  error
}

func newPage(index int, path string, scaler Scaler) (*page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &codec.DecodeError{PageIndex: index, Err: err}
	}
	cfg, _, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return nil, &codec.DecodeError{PageIndex: index, Err: fmt.Errorf("decode header of %s: %w", path, err)}
	}

	p := &page{
		index:  index,
		width:  cfg.Width,
		height: cfg.Height,
		scaler: scaler,
		done:   make(chan struct{}),
	}
	go p.decode(path)
	return p, nil
}

func (p *page) decode(path string) {
	defer close(p.done)
	f, err := os.Open(path)
	if err != nil {
		p.err = err
		return
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		p.err = fmt.Errorf("decode %s: %w", path, err)
		return
	}
	p.img = img
}

func (p *page) Width() int  { return p.width }
func (p *page) Height() int { return p.height }

func (p *page) IsDecoding() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *page) WaitForDecode(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Render rasterizes the slice of the page into a width x height buffer.
func (p *page) Render(ctx context.Context, width, height int, slice geo.RectF) (codec.PixelBuffer, error) {
	if err := p.WaitForDecode(ctx); err != nil {
		return nil, &codec.DecodeError{PageIndex: p.index, Err: err}
	}
	if width <= 0 || height <= 0 {
		return nil, &codec.DecodeError{PageIndex: p.index, Err: fmt.Errorf("invalid raster size %dx%d", width, height)}
	}

	src := p.img.Bounds()
	region := image.Rect(
		src.Min.X+int(math.Round(slice.Left*float64(src.Dx()))),
		src.Min.Y+int(math.Round(slice.Top*float64(src.Dy()))),
		src.Min.X+int(math.Round(slice.Right*float64(src.Dx()))),
		src.Min.Y+int(math.Round(slice.Bottom*float64(src.Dy()))),
	).Intersect(src)
	if region.Empty() {
		return nil, &codec.DecodeError{PageIndex: p.index, Err: fmt.Errorf("slice %v selects no pixels", slice)}
	}

	out, err := p.scaler.Scale(ctx, p.img, region, width, height)
	if err != nil {
		return nil, &codec.DecodeError{PageIndex: p.index, Err: err}
	}
	return &buffer{img: out}, nil
}

// buffer is a plain in-memory pixel buffer. Release drops the pixel
// reference so a discarded render does not pin its backing array.
type buffer struct {
	img image.Image
}

func (b *buffer) Image() image.Image { return b.img }
func (b *buffer) Release()           { b.img = nil }
