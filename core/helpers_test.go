package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-listen/core/recording"
	"github.com/koscakluka/ema-listen/core/speechtotext"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPanicSafeNamed(t *testing.T) {
	err := panicSafeNamed("teardown", func() error { panic("boom") })
	if err == nil || err.Error() != "teardown panicked: boom" {
		t.Fatalf("expected panic converted to error, got %v", err)
	}

	failure := errors.New("failure")
	if err := panicSafeNamed("teardown", func() error { return failure }); !errors.Is(err, failure) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}

	if err := panicSafeNamed("teardown", func() error { return nil }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestWithContextCancelHook(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fired := make(chan struct{})
	withContextCancelHook(ctx, make(chan struct{}), func() { close(fired) })

	cancel()
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("expected hook to fire on cancellation")
	}

	done := make(chan struct{})
	withContextCancelHook(context.Background(), done, func() {
		t.Errorf("expected hook not to fire")
	})
	close(done)
}

// backendStub records what reaches the recognition backend, in order.
type backendStub struct {
	mu     sync.Mutex
	events []string

	stream *speechtotext.Stream
	failOn map[byte]error
	finals []string
	closed int
	sends  int

	// when set, Send blocks until its context is done
	sendStarted chan struct{}
}

func (b *backendStub) Send(ctx context.Context, data []byte) error {
	b.mu.Lock()
	b.sends++
	b.mu.Unlock()

	if b.sendStarted != nil {
		b.sendStarted <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failOn[data[0]]; err != nil {
		return err
	}
	b.events = append(b.events, fmt.Sprint(data))
	return nil
}

func (b *backendStub) Finish(context.Context) error {
	b.mu.Lock()
	b.events = append(b.events, "finish")
	finals := b.finals
	b.mu.Unlock()

	for _, text := range finals {
		b.stream.PublishFinal(text)
	}
	return nil
}

func (b *backendStub) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

func (b *backendStub) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

func (b *backendStub) sendCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sends
}

func (b *backendStub) closeCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func newStubRecognition() (*speechtotext.Stream, *backendStub) {
	backend := &backendStub{failOn: map[byte]error{}}
	backend.stream = speechtotext.NewStream(backend)
	return backend.stream, backend
}

type recognizerStub struct {
	format   recording.Format
	startErr error
	finals   []string
	failOn   map[byte]error
	blocking bool

	mu       sync.Mutex
	backends []*backendStub
}

func (r *recognizerStub) StreamingFormat() recording.Format { return r.format }

func (r *recognizerStub) StartStreaming(context.Context) (speechtotext.StreamingRecognition, error) {
	if r.startErr != nil {
		return nil, r.startErr
	}

	stream, backend := newStubRecognition()
	backend.finals = r.finals
	for chunk, err := range r.failOn {
		backend.failOn[chunk] = err
	}
	if r.blocking {
		backend.sendStarted = make(chan struct{}, 1)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = append(r.backends, backend)
	return stream, nil
}

func (r *recognizerStub) lastBackend() *backendStub {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.backends) == 0 {
		return nil
	}
	return r.backends[len(r.backends)-1]
}

// plainRecording hides the Follower capability of the wrapped recording.
type plainRecording struct {
	recording.Recording
}

// fixedHeaderRecording replaces the header of a framed recording.
type fixedHeaderRecording struct {
	*recording.Buffered
	header []byte
}

func (r fixedHeaderRecording) Header() []byte { return r.header }

func waitClosed(t *testing.T, done <-chan struct{}, what string) {
	t.Helper()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected %s before timeout", what)
	}
}

func expectEvents(t *testing.T, got []string, want ...string) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}
