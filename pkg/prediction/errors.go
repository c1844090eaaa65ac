package prediction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// PredictionFailedError is returned for a non-success response or a transport failure.
type PredictionFailedError struct {
	// StatusCode is zero when the request never got a response.
	StatusCode int
	// Detail is the service-provided reason, shown to the user.
	Detail string
	Err    error
}

func (e *PredictionFailedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("prediction: request failed: %s", e.Detail)
	}
	return fmt.Sprintf("prediction: service returned %d: %s", e.StatusCode, e.Detail)
}

func (e *PredictionFailedError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same request may succeed.
func (e *PredictionFailedError) Temporary() bool {
	switch {
	case e.StatusCode == 0:
		return !errors.Is(e.Err, context.Canceled)
	case e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode >= 500:
		return true
	}
	return false
}
