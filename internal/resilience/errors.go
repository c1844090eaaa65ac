// Package resilience provides caller-side retry and circuit breaking for prediction calls.
package resilience

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// temporary is implemented by errors that know whether a retry may succeed.
type temporary interface {
	Temporary() bool
}

// IsTransient reports whether err is worth retrying: a refused, reset or aborted
// connection, an error in the chain that reports Temporary() == true, or a network
// timeout. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	// net.OpError and syscall.Errno report Temporary() == false for these.
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
