package textrec

import (
	"context"
	"fmt"

	"github.com/pagefold/renderkit/codec"
)

var defaultEngine Engine = &noopEngine{}

// DefaultEngine returns the library's default recognition engine. Importing
// the tesseract subpackage replaces the built-in no-op engine.
func DefaultEngine() Engine {
	return defaultEngine
}

// SetDefaultEngine sets the library's default recognition engine.
func SetDefaultEngine(engine Engine) {
	defaultEngine = engine
}

// RecognizeFrames converts rendered frames to recognition inputs and invokes
// the provided engine. If the engine supports batch operation, it is used;
// otherwise calls are executed sequentially. frames maps page index to frame.
func RecognizeFrames(ctx context.Context, engine Engine, frames map[int]codec.PixelBuffer, opts ...InputOption) ([]Result, error) {
	inputs := make([]Input, 0, len(frames))
	for pageIndex, frame := range frames {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		in, err := InputFromFrame(pageIndex, frame, opts...)
		if err != nil {
			return nil, fmt.Errorf("build input for page %d: %w", pageIndex, err)
		}
		inputs = append(inputs, in)
	}
	if b, ok := engine.(BatchEngine); ok {
		return b.RecognizeBatch(ctx, inputs)
	}
	results := make([]Result, 0, len(inputs))
	for _, in := range inputs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		res, err := engine.Recognize(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// DefaultRecognizeFrames runs recognition with the default engine.
func DefaultRecognizeFrames(ctx context.Context, frames map[int]codec.PixelBuffer, opts ...InputOption) ([]Result, error) {
	return RecognizeFrames(ctx, DefaultEngine(), frames, opts...)
}

type noopEngine struct{}

func (n noopEngine) Name() string {
	return "noop"
}

func (n noopEngine) Recognize(ctx context.Context, input Input) (Result, error) {
	return Result{InputID: input.ID}, nil
}
