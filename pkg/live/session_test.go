package live

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/parlo-app/parlo/pkg/audio"
	"github.com/parlo-app/parlo/pkg/config"
	"github.com/parlo-app/parlo/pkg/errorsx"
	"github.com/parlo-app/parlo/pkg/frames"
	"github.com/parlo-app/parlo/pkg/transcript"
	mocktransport "github.com/parlo-app/parlo/pkg/transports/mock"
)

type fakeDevice struct {
	startErr error

	mu      sync.Mutex
	frames  chan []float32
	started bool
	closed  bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{frames: make(chan []float32, 16)}
}

func (d *fakeDevice) Name() string { return "fake_mic" }

func (d *fakeDevice) Start(ctx context.Context) error {
	if d.startErr != nil {
		return d.startErr
	}
	d.mu.Lock()
	d.started = true
	d.closed = false
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) Frames() <-chan []float32 { return d.frames }

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type fakeHandle struct {
	once    sync.Once
	done    chan struct{}
	stopped bool
}

func (h *fakeHandle) Stop() {
	h.stopped = true
	h.once.Do(func() { close(h.done) })
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

type fakeSink struct {
	mu      sync.Mutex
	starts  []float64
	handles []*fakeHandle
}

func (s *fakeSink) Name() string { return "fake_out" }
func (s *fakeSink) Now() float64 { return 0 }
func (s *fakeSink) Close() error { return nil }

func (s *fakeSink) Play(buf *audio.Buffer, when float64) (audio.PlaybackHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &fakeHandle{done: make(chan struct{})}
	s.starts = append(s.starts, when)
	s.handles = append(s.handles, h)
	return h, nil
}

func (s *fakeSink) Starts() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.starts...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConv() config.Conversation {
	return config.Conversation{Provider: "gemini", Model: "test-model", Credential: "key"}
}

func pcm(frameCount int) []byte { return make([]byte, frameCount*2) }

func newTestSession(tr *mocktransport.Transport) (*Session, *fakeDevice, *fakeSink, *audio.OutputManager, *transcript.Tracker) {
	device := newFakeDevice()
	sink := &fakeSink{}
	output := audio.NewOutputManager(sink, nil)
	tracker := transcript.NewTracker()
	return NewSession(tr, device, output, tracker, nil), device, sink, output, tracker
}

func TestSessionLifecycle(t *testing.T) {
	tr := mocktransport.New()
	sess, device, sink, output, tracker := newTestSession(tr)

	if err := sess.Start(context.Background(), testConv()); err != nil {
		t.Fatal(err)
	}
	if got := sess.Status().State; got != StateActive {
		t.Fatalf("state = %q", got)
	}
	conn := tr.Conns()[0]

	// Capture blocks flow out in order.
	blocks := [][]float32{{0.1}, {0.2}, {0.3}}
	for _, b := range blocks {
		device.frames <- b
	}
	waitFor(t, "three chunks sent", func() bool { return len(conn.Sent()) == 3 })
	for i, b := range blocks {
		if want := audio.EncodeFrame(b).Data; conn.Sent()[i].Data != want {
			t.Fatalf("chunk %d out of order", i)
		}
	}

	// Provider audio schedules back to back on the shared sink.
	conn.Push(frames.NewAudioFrame("s", 1, pcm(2400), audio.OutputSampleRate, 1, nil))
	conn.Push(frames.NewAudioFrame("s", 2, pcm(2400), audio.OutputSampleRate, 1, nil))
	waitFor(t, "two buffers scheduled", func() bool { return len(sink.Starts()) == 2 })
	starts := sink.Starts()
	if starts[0] != 0 || starts[1] != 0.1 {
		t.Fatalf("starts = %v", starts)
	}
	waitFor(t, "assistant speaking", func() bool { return sess.Status().AssistantSpeaking })

	// Interim user transcript drives the subtitle line.
	conn.Push(frames.NewTextFrame("s", 3, "I want", map[string]string{
		frames.MetaSpeaker: frames.SpeakerUser,
	}))
	waitFor(t, "interim transcript", func() bool {
		st := sess.Status()
		return st.UserSpeaking && st.CurrentTranscript == "I want" && st.TranscriptSource == frames.SpeakerUser
	})

	// Barge-in cancels the queued assistant audio.
	conn.Push(frames.NewControlFrame("s", 4, frames.ControlStartInterruption, nil))
	waitFor(t, "playback flushed", func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.handles[0].stopped && sink.handles[1].stopped
	})
	if sess.Status().AssistantSpeaking {
		t.Fatal("assistant still speaking after barge-in")
	}

	sess.Stop()
	if got := sess.Status().State; got != StateIdle {
		t.Fatalf("state after stop = %q", got)
	}
	if !conn.Closed() {
		t.Fatal("transport session not closed")
	}
	if !device.Closed() {
		t.Fatal("capture device not closed")
	}
	if got := output.Holder(); got != "" {
		t.Fatalf("output still held by %q", got)
	}
	if err := output.AcquireMic(); err != nil {
		t.Fatalf("mic not released: %v", err)
	}
	output.ReleaseMic()
	// The open transcript line was sealed on teardown.
	turns := tracker.Turns()
	if len(turns) != 1 || turns[0].Text != "I want" {
		t.Fatalf("turns = %+v", turns)
	}
}

func TestSessionMissingCredential(t *testing.T) {
	tr := mocktransport.New()
	sess, _, _, _, _ := newTestSession(tr)

	err := sess.Start(context.Background(), config.Conversation{Provider: "gemini"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonMissingCredential) {
		t.Fatalf("reason = %v", errorsx.Reason(err))
	}
	if got := sess.Status().State; got != StateIdle {
		t.Fatalf("state = %q", got)
	}
	if len(tr.Conns()) != 0 {
		t.Fatal("connect attempted without a credential")
	}
}

func TestSessionConnectFailure(t *testing.T) {
	tr := mocktransport.New()
	tr.ConnectErr = errorsx.New(errorsx.ReasonAuth, "invalid api key")
	sess, _, _, output, _ := newTestSession(tr)

	err := sess.Start(context.Background(), testConv())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonAuth) {
		t.Fatalf("reason = %v", errorsx.Reason(err))
	}
	st := sess.Status()
	if st.State != StateIdle || st.LastError == "" {
		t.Fatalf("status = %+v", st)
	}
	// Resources are returned on the failure path.
	if got := output.Holder(); got != "" {
		t.Fatalf("output still held by %q", got)
	}
	if err := output.AcquireMic(); err != nil {
		t.Fatalf("mic not released: %v", err)
	}
}

func TestSessionMicBusy(t *testing.T) {
	tr := mocktransport.New()
	sess, _, _, output, _ := newTestSession(tr)
	if err := output.AcquireMic(); err != nil {
		t.Fatal(err)
	}

	err := sess.Start(context.Background(), testConv())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonMicBusy) {
		t.Fatalf("reason = %v", errorsx.Reason(err))
	}
}

func TestSessionRemoteClose(t *testing.T) {
	tr := mocktransport.New()
	sess, _, _, _, _ := newTestSession(tr)
	if err := sess.Start(context.Background(), testConv()); err != nil {
		t.Fatal(err)
	}
	conn := tr.Conns()[0]

	conn.Push(frames.NewSystemFrame("s", 1, frames.SystemSessionClosed, nil))
	waitFor(t, "session idle", func() bool { return sess.Status().State == StateIdle })
	if !conn.Closed() {
		t.Fatal("conn left open")
	}
}

func TestSessionRemoteError(t *testing.T) {
	tr := mocktransport.New()
	sess, _, _, _, _ := newTestSession(tr)
	if err := sess.Start(context.Background(), testConv()); err != nil {
		t.Fatal(err)
	}
	conn := tr.Conns()[0]

	conn.Push(frames.NewSystemFrame("s", 1, frames.SystemSessionError, map[string]string{
		frames.MetaError: "stream reset",
	}))
	waitFor(t, "session idle", func() bool { return sess.Status().State == StateIdle })
	if got := sess.Status().LastError; got != "stream reset" {
		t.Fatalf("last error = %q", got)
	}
}

func TestSessionStopIdempotentAndRestartable(t *testing.T) {
	tr := mocktransport.New()
	sess, _, _, _, _ := newTestSession(tr)
	if err := sess.Start(context.Background(), testConv()); err != nil {
		t.Fatal(err)
	}
	sess.Stop()
	sess.Stop()
	if got := sess.Status().State; got != StateIdle {
		t.Fatalf("state = %q", got)
	}

	if err := sess.Start(context.Background(), testConv()); err != nil {
		t.Fatal(err)
	}
	if len(tr.Conns()) != 2 {
		t.Fatalf("conns = %d", len(tr.Conns()))
	}
	sess.Stop()
}

func TestSessionDoubleStart(t *testing.T) {
	tr := mocktransport.New()
	sess, _, _, _, _ := newTestSession(tr)
	if err := sess.Start(context.Background(), testConv()); err != nil {
		t.Fatal(err)
	}
	defer sess.Stop()

	err := sess.Start(context.Background(), testConv())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonLiveConnect) {
		t.Fatalf("reason = %v", errorsx.Reason(err))
	}
}
