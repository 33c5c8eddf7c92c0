package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-listen/core/audio"
	"github.com/koscakluka/ema-listen/core/recording"
	"github.com/koscakluka/ema-listen/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultEndpoint          = "wss://api.deepgram.com/v1/listen"
	defaultModel             = "nova-3"
	defaultLanguage          = "en-US"
	defaultKeepAliveInterval = 5 * time.Second
)

var ErrMissingAPIKey = errors.New("deepgram api key not found")

// Recognizer streams raw PCM audio to Deepgram's live transcription API.
type Recognizer struct {
	apiKey            string
	endpoint          string
	model             string
	language          string
	encodingInfo      audio.EncodingInfo
	interimResults    bool
	keepAliveInterval time.Duration
	dialer            *websocket.Dialer
}

type Option func(*Recognizer)

func WithAPIKey(apiKey string) Option {
	return func(r *Recognizer) {
		r.apiKey = apiKey
	}
}

func WithEndpoint(endpoint string) Option {
	return func(r *Recognizer) {
		r.endpoint = endpoint
	}
}

func WithModel(model string) Option {
	return func(r *Recognizer) {
		r.model = model
	}
}

func WithLanguage(language string) Option {
	return func(r *Recognizer) {
		r.language = language
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) Option {
	return func(r *Recognizer) {
		r.encodingInfo = encodingInfo
	}
}

// WithInterimResults makes the stream publish partial results.
func WithInterimResults(enabled bool) Option {
	return func(r *Recognizer) {
		r.interimResults = enabled
	}
}

// WithKeepAliveInterval sets how long the stream may go without audio before
// a KeepAlive message is sent. Zero disables keep-alives.
func WithKeepAliveInterval(interval time.Duration) Option {
	return func(r *Recognizer) {
		r.keepAliveInterval = interval
	}
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(r *Recognizer) {
		r.dialer = dialer
	}
}

// NewRecognizer creates a recognizer. Without WithAPIKey the key is read
// from DEEPGRAM_API_KEY.
func NewRecognizer(opts ...Option) *Recognizer {
	r := &Recognizer{
		apiKey:            os.Getenv("DEEPGRAM_API_KEY"),
		endpoint:          defaultEndpoint,
		model:             defaultModel,
		language:          defaultLanguage,
		encodingInfo:      audio.GetDefaultEncodingInfo(),
		keepAliveInterval: defaultKeepAliveInterval,
		dialer:            websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recognizer) StreamingFormat() recording.Format { return recording.FormatRaw }

func (r *Recognizer) StartStreaming(ctx context.Context) (speechtotext.StreamingRecognition, error) {
	ctx, span := tracer.Start(ctx, "open deepgram stream")
	defer span.End()

	s, err := r.connect(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("streaming_session.id", s.id))

	stream := speechtotext.NewStream(s)
	s.start(stream, r.interimResults, r.keepAliveInterval)
	return stream, nil
}

func (r *Recognizer) connect(ctx context.Context) (*session, error) {
	if r.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	encoding, err := convertEncoding(r.encodingInfo)
	if err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	listenURL, err := url.Parse(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	queryParams := listenURL.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", strconv.Itoa(encoding.Channels))
	queryParams.Set("model", r.model)
	queryParams.Set("language", r.language)
	queryParams.Set("smart_format", "true")
	// utterance end detection only works with interim results on
	queryParams.Set("interim_results", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("endpointing", "300")
	queryParams.Set("vad_events", "true")
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := r.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + r.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return newSession(uuid.NewString(), conn), nil
}
