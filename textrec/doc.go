package textrec

// Package textrec defines abstraction layers for plugging text recognition
// engines (for example, Tesseract or cloud services) into the page rendering
// pipeline. The interfaces are intentionally small and transport-agnostic so
// engines can be backed by native libraries or remote APIs without leaking
// provider-specific concerns into callers.
