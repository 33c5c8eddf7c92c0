package audio

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultEncoding   = EncodingLinear16
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Channels: DefaultChannels, Encoding: DefaultEncoding}
}

// EncodingInfo describes raw PCM audio as produced by a capture backend.
type EncodingInfo struct {
	SampleRate int
	Channels   int
	Encoding   Encoding
}

// WithDefaults fills unset fields from the default encoding.
func (e EncodingInfo) WithDefaults() EncodingInfo {
	if e.SampleRate == 0 {
		e.SampleRate = DefaultSampleRate
	}
	if e.Channels == 0 {
		e.Channels = DefaultChannels
	}
	if e.Encoding == "" {
		e.Encoding = DefaultEncoding
	}
	return e
}

func (e EncodingInfo) BitDepth() int { return e.Encoding.ByteSize() * 8 }

// BytesPerSecond is the data rate of the stream, or 0 when the encoding is
// unknown.
func (e EncodingInfo) BytesPerSecond() int {
	if size := e.Encoding.ByteSize(); size > 0 {
		return e.SampleRate * e.Channels * size
	}
	return 0
}

type Encoding string

func (e Encoding) Name() string {
	return string(e)
}

func (e Encoding) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    Encoding = "mulaw"
	EncodingALaw     Encoding = "alaw"
	EncodingLinear16 Encoding = "linear16"
)
