package recording

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/koscakluka/ema-listen/core/audio"
)

const (
	wavFormatPCM   = 1
	wavFormatALaw  = 6
	wavFormatMulaw = 7
)

// WAVHeader returns a RIFF/WAVE header for a stream described by
// encodingInfo. The length fields describe an empty data chunk since the
// final length of a live stream is unknown.
func WAVHeader(encodingInfo audio.EncodingInfo) ([]byte, error) {
	encodingInfo = encodingInfo.WithDefaults()

	var audioFormat int
	switch encodingInfo.Encoding {
	case audio.EncodingLinear16:
		audioFormat = wavFormatPCM
	case audio.EncodingALaw:
		audioFormat = wavFormatALaw
	case audio.EncodingMulaw:
		audioFormat = wavFormatMulaw
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encodingInfo.Encoding)
	}

	out := &writeSeeker{}
	enc := wav.NewEncoder(out, encodingInfo.SampleRate, encodingInfo.BitDepth(), encodingInfo.Channels, audioFormat)
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: encodingInfo.SampleRate, NumChannels: encodingInfo.Channels},
		SourceBitDepth: encodingInfo.BitDepth(),
	}); err != nil {
		return nil, fmt.Errorf("failed to write wav header: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize wav header: %w", err)
	}

	return out.buf, nil
}

// writeSeeker is an in-memory io.WriteSeeker for the wav encoder.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = w.pos
	case io.SeekEnd:
		base = len(w.buf)
	default:
		return 0, errors.New("invalid whence")
	}

	pos := base + int(offset)
	if pos < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = pos
	return int64(pos), nil
}
