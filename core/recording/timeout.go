package recording

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// StartWithTimeout records for the given duration and returns the finished,
// closed recording. Its Data stays readable.
func StartWithTimeout(ctx context.Context, recorder Recorder, timeout time.Duration, format Format) (rec Recording, err error) {
	if recorder == nil {
		return nil, errors.New("recorder is nil")
	}
	if format == FormatNone {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	rec, err = recorder.Start(ctx, format)
	if err != nil {
		return nil, fmt.Errorf("failed to start recording: %w", err)
	}
	defer func() {
		if closeErr := rec.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close recording: %w", closeErr))
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return rec, ctx.Err()
	}

	if err := rec.Stop(ctx); err != nil {
		return rec, fmt.Errorf("failed to stop recording: %w", err)
	}

	return rec, nil
}
