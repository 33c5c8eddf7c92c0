package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-listen/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ConvertOverStreamingRecognition recognizes a complete audio buffer through
// a streaming session and returns the last final result. An empty string
// without error means the recognizer reported nothing.
func ConvertOverStreamingRecognition(ctx context.Context, recognizer speechtotext.Recognizer, data []byte) (text string, err error) {
	if recognizer == nil {
		return "", fmt.Errorf("%w: recognizer is required", ErrNilArgument)
	}

	ctx, span := tracer.Start(ctx, "convert over streaming recognition",
		trace.WithAttributes(attribute.Int("audio.bytes", len(data))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	recognition, err := recognizer.StartStreaming(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to start streaming recognition: %w", err)
	}
	defer func() {
		if closeErr := recognition.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close streaming recognition: %w", closeErr))
		}
	}()

	var mu sync.Mutex
	var lastResult string
	recognition.FinalResult().Subscribe(func(_ any, result string) {
		mu.Lock()
		defer mu.Unlock()
		lastResult = result
	})

	if len(data) > 0 {
		if err := recognition.Write(ctx, data); err != nil {
			return "", fmt.Errorf("failed to write audio: %w", err)
		}
	}
	if err := recognition.Stop(ctx); err != nil {
		return "", fmt.Errorf("failed to stop streaming recognition: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return lastResult, nil
}
