package recording

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/koscakluka/ema-listen/core/audio"
)

func TestWAVHeaderDescribesEncoding(t *testing.T) {
	header, err := WAVHeader(audio.EncodingInfo{SampleRate: 16000, Channels: 1, Encoding: audio.EncodingLinear16})
	if err != nil {
		t.Fatalf("expected header, got %v", err)
	}

	if len(header) < 44 {
		t.Fatalf("expected at least 44 header bytes, got %d", len(header))
	}
	if !bytes.Equal(header[0:4], []byte("RIFF")) || !bytes.Equal(header[8:12], []byte("WAVE")) {
		t.Fatalf("expected RIFF/WAVE markers, got %q %q", header[0:4], header[8:12])
	}
	if !bytes.Contains(header, []byte("fmt ")) || !bytes.Contains(header, []byte("data")) {
		t.Fatalf("expected fmt and data chunks in header")
	}

	if got := binary.LittleEndian.Uint32(header[24:28]); got != 16000 {
		t.Fatalf("expected sample rate 16000, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(header[22:24]); got != 1 {
		t.Fatalf("expected one channel, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(header[34:36]); got != 16 {
		t.Fatalf("expected 16 bits per sample, got %d", got)
	}
}

func TestWAVHeaderRejectsUnknownEncoding(t *testing.T) {
	if _, err := WAVHeader(audio.EncodingInfo{SampleRate: 16000, Channels: 1, Encoding: "opus"}); err == nil {
		t.Fatalf("expected unknown encoding to be rejected")
	}
}

func TestWriteSeekerOverwritesInPlace(t *testing.T) {
	w := &writeSeeker{}
	_, _ = w.Write([]byte{1, 2, 3, 4})
	if _, err := w.Seek(1, 0); err != nil {
		t.Fatalf("expected seek to succeed, got %v", err)
	}
	_, _ = w.Write([]byte{9})
	if _, err := w.Seek(0, 2); err != nil {
		t.Fatalf("expected seek to end to succeed, got %v", err)
	}
	_, _ = w.Write([]byte{5})

	if !bytes.Equal(w.buf, []byte{1, 9, 3, 4, 5}) {
		t.Fatalf("expected [1 9 3 4 5], got %v", w.buf)
	}
}
