package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pagefold/renderkit/codec"
	"github.com/pagefold/renderkit/codec/imagecodec"
	"github.com/pagefold/renderkit/decode"
	"github.com/pagefold/renderkit/geo"
	"github.com/pagefold/renderkit/observability"
	"github.com/pagefold/renderkit/textrec"
)

type options struct {
	locator  string
	page     int
	zoom     float64
	slice    geo.RectF
	viewport int
	outPath  string
	ocr      bool
	langs    string
	verbose  bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pagerender: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "pagerender: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: pagerender [flags] <image file or directory>\n")
		flag.PrintDefaults()
	}
	page := flag.Int("page", 0, "Zero-based page index to render")
	zoom := flag.Float64("zoom", 1.0, "Zoom factor applied on top of the viewport scale")
	slice := flag.String("slice", "", "Page slice as left,top,right,bottom in [0,1]; empty renders the full page")
	viewport := flag.Int("width", 0, "Viewport width in pixels; 0 renders at natural size")
	out := flag.String("out", "page.png", "Output PNG path")
	ocr := flag.Bool("ocr", false, "Run text recognition on the rendered page and print the result")
	langs := flag.String("lang", "eng", "Comma-separated language hints for recognition")
	verbose := flag.Bool("v", false, "Log decode progress")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return options{}, fmt.Errorf("missing document locator")
	}
	opts.locator = flag.Arg(0)
	opts.page = *page
	opts.zoom = *zoom
	opts.viewport = *viewport
	opts.outPath = *out
	opts.ocr = *ocr
	opts.langs = *langs
	opts.verbose = *verbose

	opts.slice = geo.FullPage()
	if *slice != "" {
		r, err := parseSlice(*slice)
		if err != nil {
			return options{}, err
		}
		opts.slice = r
	}
	return opts, nil
}

func parseSlice(s string) (geo.RectF, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geo.RectF{}, fmt.Errorf("slice must have four components, got %q", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.RectF{}, fmt.Errorf("slice component %q: %w", p, err)
		}
		vals[i] = v
	}
	r := geo.RectF{Left: vals[0], Top: vals[1], Right: vals[2], Bottom: vals[3]}
	if r.IsEmpty() {
		return geo.RectF{}, fmt.Errorf("slice %q selects no area", s)
	}
	return r, nil
}

func run(opts options) error {
	serviceOpts := []decode.Option{decode.WithViewportWidth(opts.viewport)}
	if opts.verbose {
		log := observability.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
		serviceOpts = append(serviceOpts, decode.WithLogger(log))
	}

	svc := decode.NewService(imagecodec.New(), serviceOpts...)
	defer svc.Close()

	ctx := context.Background()
	if err := svc.Open(ctx, opts.locator); err != nil {
		return err
	}
	if opts.page < 0 || opts.page >= svc.PageCount() {
		return fmt.Errorf("page %d out of range, document has %d pages", opts.page, svc.PageCount())
	}

	frames := make(chan codec.PixelBuffer, 1)
	svc.DecodePage("cli", opts.page, func(buf codec.PixelBuffer) {
		frames <- buf
	}, opts.zoom, opts.slice)

	var frame codec.PixelBuffer
	select {
	case frame = <-frames:
	case <-time.After(2 * time.Minute):
		return fmt.Errorf("timed out decoding page %d", opts.page)
	}
	defer frame.Release()

	f, err := os.Create(opts.outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", opts.outPath, err)
	}
	defer f.Close()
	if err := png.Encode(f, frame.Image()); err != nil {
		return fmt.Errorf("encode %s: %w", opts.outPath, err)
	}
	fmt.Printf("wrote %s\n", opts.outPath)

	if opts.ocr {
		return recognize(ctx, opts, frame)
	}
	return nil
}

// recognize runs the default recognition engine over the rendered frame.
// Build with -tags ocr to back it with Tesseract.
func recognize(ctx context.Context, opts options, frame codec.PixelBuffer) error {
	langs := strings.Split(opts.langs, ",")
	in, err := textrec.InputFromFrame(opts.page, frame, textrec.WithLanguages(langs...))
	if err != nil {
		return err
	}
	res, err := textrec.DefaultEngine().Recognize(ctx, in)
	if err != nil {
		return fmt.Errorf("recognize page %d: %w", opts.page, err)
	}
	if res.PlainText == "" {
		fmt.Printf("== text (%s) ==\n(no text recognized)\n", textrec.DefaultEngine().Name())
		return nil
	}
	fmt.Printf("== text (%s) ==\n%s\n", textrec.DefaultEngine().Name(), res.PlainText)
	return nil
}
