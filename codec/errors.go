package codec

import "fmt"

// OpenError reports that a document could not be opened. It is fatal to the
// service that attempted the open until a subsequent open succeeds.
type OpenError struct {
	Locator string
	Err     error
}

func (e *OpenError) Error() string { return fmt.Sprintf("open document %q: %v", e.Locator, e.Err) }
func (e *OpenError) Unwrap() error { return e.Err }

// DecodeError reports an I/O or codec failure while materializing a page.
// It is recoverable: other pages of the same document remain usable.
type DecodeError struct {
	PageIndex int
	Err       error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode page %d: %v", e.PageIndex, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }
