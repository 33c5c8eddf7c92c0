package recording

// Format tells how a recording frames its audio bytes.
type Format int

const (
	// FormatNone marks a recognizer or recording without streaming support.
	FormatNone Format = iota
	// FormatRaw is headerless PCM.
	FormatRaw
	// FormatWAV is PCM preceded by a RIFF/WAVE header.
	FormatWAV
)

func (f Format) String() string {
	switch f {
	case FormatNone:
		return "none"
	case FormatRaw:
		return "raw"
	case FormatWAV:
		return "wav"
	}
	return "unknown"
}

// HasHeader reports whether recordings in this format carry a header that has
// to precede the data.
func (f Format) HasHeader() bool { return f != FormatNone && f != FormatRaw }
