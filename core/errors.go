package orchestration

import (
	"errors"

	"github.com/koscakluka/ema-listen/core/recording"
)

var (
	ErrNilArgument          = errors.New("required argument is nil")
	ErrUnsupportedFormat    = recording.ErrUnsupportedFormat
	ErrMissingHeader        = errors.New("recording format requires a header")
	ErrStreamingUnsupported = errors.New("recognizer does not support streaming")
)

// ErrorSink collects failures that happen inside notification handlers,
// where they cannot be returned to anyone. Capture must be safe for
// concurrent use. *errsink.Sink implements it.
type ErrorSink interface {
	Capture(err error)
}

func capture(sink ErrorSink, err error) {
	if sink == nil || err == nil {
		return
	}
	sink.Capture(err)
}
