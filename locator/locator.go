// Package locator resolves opaque resource identifiers into paths a codec
// can read.
package locator

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Resolver turns an opaque locator into a readable filesystem path.
type Resolver interface {
	Resolve(uri string) (string, error)
}

// FileResolver accepts plain filesystem paths and file:// URLs.
type FileResolver struct{}

func (FileResolver) Resolve(uri string) (string, error) {
	if uri == "" {
		return "", errors.New("empty locator")
	}
	if strings.HasPrefix(uri, "file://") {
		u, err := url.Parse(uri)
		if err != nil {
			return "", fmt.Errorf("parse locator %q: %w", uri, err)
		}
		if u.Path == "" {
			return "", fmt.Errorf("locator %q has no path", uri)
		}
		return u.Path, nil
	}
	if i := strings.Index(uri, "://"); i >= 0 {
		return "", fmt.Errorf("unsupported locator scheme %q", uri[:i])
	}
	return uri, nil
}
