package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-listen/core/speechtotext"
)

// session is the websocket transport behind one speechtotext.Stream.
type session struct {
	id string

	conn      *websocket.Conn
	connMu    sync.Mutex
	lastMsgTs time.Time

	stream         *speechtotext.Stream
	interimResults bool

	// accessed only from the read loop
	accumulatedTranscript string
	unendedSegment        bool

	readDone      chan struct{}
	keepAliveDone chan struct{}
	closing       chan struct{}
	closeOnce     sync.Once
}

func newSession(id string, conn *websocket.Conn) *session {
	return &session{
		id:            id,
		conn:          conn,
		lastMsgTs:     time.Now(),
		readDone:      make(chan struct{}),
		keepAliveDone: make(chan struct{}),
		closing:       make(chan struct{}),
	}
}

func (s *session) start(stream *speechtotext.Stream, interimResults bool, keepAliveInterval time.Duration) {
	s.stream = stream
	s.interimResults = interimResults

	go s.readAndProcessMessages()
	if keepAliveInterval > 0 {
		go s.keepAlive(keepAliveInterval)
	} else {
		close(s.keepAliveDone)
	}
}

func (s *session) Send(_ context.Context, audio []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.lastMsgTs = time.Now()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

// Finish asks Deepgram to flush and waits until it closes the socket, by
// which time every final result has been published.
func (s *session) Finish(ctx context.Context) error {
	if err := s.writeControlMessage(string(api.TypeCloseStreamResponse)); err != nil {
		return err
	}

	select {
	case <-s.readDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		err = s.conn.Close()
		<-s.readDone
		<-s.keepAliveDone
	})
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("failed to close deepgram connection: %w", err)
	}
	return nil
}

func (s *session) writeControlMessage(messageType string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if err := s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: messageType}); err != nil {
		return fmt.Errorf("failed to send %s to deepgram: %w", messageType, err)
	}
	return nil
}

func (s *session) keepAlive(interval time.Duration) {
	defer close(s.keepAliveDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closing:
			return
		case <-s.readDone:
			return
		case <-ticker.C:
			s.connMu.Lock()
			idle := time.Since(s.lastMsgTs)
			s.connMu.Unlock()
			if idle < interval {
				continue
			}

			if err := s.writeControlMessage("KeepAlive"); err != nil {
				logger.Warn("Failed to send keep alive", "session", s.id, "error", err)
			}
		}
	}
}

func (s *session) readAndProcessMessages() {
	defer close(s.readDone)
	defer s.flushTranscript()

	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closing:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					logger.Warn("Failed to read deepgram websocket message", "session", s.id, "error", err)
				}
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			s.processMessage(msg)
		}
	}
}

func (s *session) processMessage(msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("Failed to unmarshal deepgram message", "session", s.id, "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("Failed to unmarshal deepgram message", "session", s.id, "error", err)
			return
		}

		transcript := ""
		if len(msgResp.Channel.Alternatives) > 0 {
			transcript = strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		}

		if msgResp.IsFinal {
			if len(transcript) > 0 {
				s.accumulatedTranscript += " " + transcript
				s.unendedSegment = true
			}
			if msgResp.SpeechFinal {
				s.flushTranscript()
			}
		} else if s.interimResults && len(transcript) > 0 {
			s.stream.PublishPartial(strings.TrimSpace(s.accumulatedTranscript + " " + transcript))
		}

	case api.TypeUtteranceEndResponse:
		if s.unendedSegment {
			s.flushTranscript()
		}

	case api.TypeSpeechStartedResponse:
		s.unendedSegment = true
	}
}

func (s *session) flushTranscript() {
	s.unendedSegment = false

	fullTranscript := strings.TrimSpace(s.accumulatedTranscript)
	s.accumulatedTranscript = ""
	if len(fullTranscript) > 0 {
		s.stream.PublishFinal(fullTranscript)
	}
}
