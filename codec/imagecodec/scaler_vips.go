//go:build vips

package imagecodec

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"runtime"
	"sync"

	govips "github.com/davidbyttow/govips/v2/vips"
)

var vipsStartup sync.Once

// VipsScaler scales through libvips. Worth it when pages are large and many
// renders share a process; the round-trip through an encoded buffer makes it
// a poor fit for tiny tiles.
type VipsScaler struct{}

// NewVipsScaler initialises libvips on first use and returns a Scaler backed
// by it. Call ShutdownVips at process exit.
func NewVipsScaler() *VipsScaler {
	vipsStartup.Do(func() {
		govips.Startup(&govips.Config{
			ConcurrencyLevel: runtime.NumCPU(),
		})
	})
	return &VipsScaler{}
}

// ShutdownVips releases all libvips resources. Call once at process exit.
func ShutdownVips() {
	govips.Shutdown()
}

func (s *VipsScaler) Scale(ctx context.Context, src image.Image, region image.Rectangle, width, height int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cropped := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	copyRegion(cropped, src, region)
	var buf bytes.Buffer
	if err := png.Encode(&buf, cropped); err != nil {
		return nil, fmt.Errorf("vips scale: %w", err)
	}

	ref, err := govips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("vips scale: %w", err)
	}
	defer ref.Close()

	hscale := float64(width) / float64(region.Dx())
	vscale := float64(height) / float64(region.Dy())
	if err := ref.ResizeWithVScale(hscale, vscale, govips.KernelLanczos3); err != nil {
		return nil, fmt.Errorf("vips resize: %w", err)
	}
	out, _, err := ref.ExportPng(govips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("vips export: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("vips scale: %w", err)
	}
	return img, nil
}

func copyRegion(dst *image.RGBA, src image.Image, region image.Rectangle) {
	for y := 0; y < region.Dy(); y++ {
		for x := 0; x < region.Dx(); x++ {
			dst.Set(x, y, src.At(region.Min.X+x, region.Min.Y+y))
		}
	}
}
