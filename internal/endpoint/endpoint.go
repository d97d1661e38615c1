// Package endpoint validates backend URLs and classifies network errors.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
)

// ErrMalformed marks an endpoint that cannot be used as configured.
// It is never retried.
var ErrMalformed = errors.New("malformed endpoint")

// Parse parses raw and requires both a scheme and a host.
func Parse(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformed, raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q: missing scheme or host", ErrMalformed, raw)
	}
	return u, nil
}

// IsTimeout reports whether err is a timeout anywhere in its chain.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
