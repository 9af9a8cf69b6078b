//go:build ocr

package main

// Importing the tesseract subpackage swaps the default recognition engine
// from the no-op implementation to gosseract.
import _ "github.com/pagefold/renderkit/textrec/tesseract"
