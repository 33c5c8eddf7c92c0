// Package errsink collects failures raised inside fire-and-forget callbacks.
package errsink

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

var capturedErrors, _ = meter.Int64Counter("errsink.captured_errors",
	metric.WithDescription("Errors captured from notification callbacks"))

// Sink is an append-only, goroutine-safe collection of errors. The zero value
// is ready to use.
type Sink struct {
	mu   sync.Mutex
	errs []error

	onCapture func(error)
}

type Option func(*Sink)

// WithCaptureCallback registers a callback that is called after every
// captured error. It runs on the capturing goroutine.
func WithCaptureCallback(callback func(err error)) Option {
	return func(s *Sink) {
		s.onCapture = callback
	}
}

func New(opts ...Option) *Sink {
	s := &Sink{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capture appends err. Nil errors are ignored.
func (s *Sink) Capture(err error) {
	if s == nil || err == nil {
		return
	}

	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()

	ctx := context.Background()
	if capturedErrors != nil {
		capturedErrors.Add(ctx, 1)
	}
	logger.WarnContext(ctx, "captured callback error", "error", err)

	if s.onCapture != nil {
		s.onCapture(err)
	}
}

// Errors returns a copy of the captured errors in capture order.
func (s *Sink) Errors() []error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func (s *Sink) Len() int {
	if s == nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

// Err joins every captured error, or returns nil when nothing was captured.
func (s *Sink) Err() error {
	return errors.Join(s.Errors()...)
}
