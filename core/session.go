package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-listen/core/deferred"
	"github.com/koscakluka/ema-listen/core/recording"
	"github.com/koscakluka/ema-listen/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartStreamingSession records in the format recognizer streams and feeds
// the recording into a new streaming recognition.
//
// The caller owns the returned recognition. Stopping it stops and closes the
// recording, and the stop does not finish before every recorded chunk was
// written to the recognition.
func StartStreamingSession(ctx context.Context, recognizer speechtotext.Recognizer, recorder recording.Recorder, sink ErrorSink) (speechtotext.StreamingRecognition, error) {
	if recognizer == nil || recorder == nil {
		return nil, fmt.Errorf("%w: recognizer and recorder are required", ErrNilArgument)
	}
	format := recognizer.StreamingFormat()
	if format == recording.FormatNone {
		return nil, ErrStreamingUnsupported
	}

	sessionID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "start streaming session", trace.WithAttributes(
		attribute.String("streaming_session.id", sessionID),
		attribute.String("recording.format", format.String()),
	))
	defer span.End()

	rec, err := recorder.Start(ctx, format)
	if err != nil {
		err = fmt.Errorf("failed to start recording: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	recognition, err := recognizer.StartStreaming(ctx)
	if err != nil {
		err = fmt.Errorf("failed to start streaming recognition: %w", err)
		if releaseErr := releaseRecording(context.WithoutCancel(ctx), rec); releaseErr != nil {
			err = errors.Join(err, releaseErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sessionCtx := ctx
	teardownCtx := context.WithoutCancel(ctx)
	var binding atomic.Pointer[Binding]
	recognition.Stopping().Subscribe(func(_ any, args *deferred.Args[struct{}]) {
		deferral := args.Deferral()
		go func() {
			defer deferral.Complete()

			ctx, span := tracer.Start(teardownCtx, "tear down streaming session")
			defer span.End()

			if err := releaseRecording(ctx, rec); err != nil {
				logger.WarnContext(ctx, "Failed to release recording", "session", sessionID, "error", err)
				span.RecordError(err)
				capture(sink, err)
			}
			if b := binding.Load(); b != nil {
				_ = b.Close()
				select {
				case <-b.Done():
				case <-sessionCtx.Done():
					logger.WarnContext(ctx, "Stopped waiting for recorded audio to be written", "session", sessionID, "error", context.Cause(sessionCtx))
				}
			}
		}()
	})

	b, err := Bind(ctx, recognition, rec, sink)
	if err != nil {
		err = fmt.Errorf("failed to bind recording: %w", err)
		if stopErr := recognition.Stop(teardownCtx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to stop streaming recognition: %w", stopErr))
		}
		if closeErr := recognition.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close streaming recognition: %w", closeErr))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	binding.Store(b)

	logger.InfoContext(ctx, "Streaming session started", "session", sessionID, "format", format.String())
	return recognition, nil
}

// releaseRecording stops rec and closes it even when stopping failed.
func releaseRecording(ctx context.Context, rec recording.Recording) error {
	var errs error
	if err := rec.Stop(ctx); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to stop recording: %w", err))
	}
	if err := rec.Close(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to close recording: %w", err))
	}
	return errs
}
