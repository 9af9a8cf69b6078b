package imagecodec

import (
	"context"
	"image"

	"golang.org/x/image/draw"
)

// Scaler rasterizes a source image region into a target-sized RGBA image.
type Scaler interface {
	Scale(ctx context.Context, src image.Image, region image.Rectangle, width, height int) (image.Image, error)
}

// drawScaler scales with one of the x/image/draw interpolators.
type drawScaler struct {
	kernel draw.Interpolator
}

// DefaultScaler returns the Catmull-Rom scaler. Slow but sharp; page renders
// are cached downstream so quality wins over speed here.
func DefaultScaler() Scaler {
	return drawScaler{kernel: draw.CatmullRom}
}

// FastScaler returns a bilinear scaler for latency-sensitive callers such as
// thumbnail strips.
func FastScaler() Scaler {
	return drawScaler{kernel: draw.ApproxBiLinear}
}

func (s drawScaler) Scale(ctx context.Context, src image.Image, region image.Rectangle, width, height int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	s.kernel.Scale(dst, dst.Bounds(), src, region, draw.Src, nil)
	return dst, nil
}
