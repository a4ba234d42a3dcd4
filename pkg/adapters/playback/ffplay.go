package playback

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/parlo-app/parlo/pkg/audio"
)

// FFPlaySink plays PCM through an ffplay child process reading s16le from
// stdin. One process per sink, reused for every buffer; the sink is the
// process-wide output resource the OutputManager hands around.
type FFPlaySink struct {
	path       string
	sampleRate int
	channels   int
	volume     int
	logger     *slog.Logger

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	epoch time.Time
}

type Option func(*FFPlaySink)

func WithPath(path string) Option { return func(s *FFPlaySink) { s.path = path } }
func WithVolume(volume int) Option { return func(s *FFPlaySink) { s.volume = volume } }
func WithLogger(l *slog.Logger) Option { return func(s *FFPlaySink) { s.logger = l } }

func NewFFPlaySink(sampleRate, channels int, opts ...Option) *FFPlaySink {
	s := &FFPlaySink{
		path:       "ffplay",
		sampleRate: sampleRate,
		channels:   channels,
		volume:     80,
		logger:     slog.Default(),
		epoch:      time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With(slog.String("component", "ffplay_sink"))
	return s
}

func (s *FFPlaySink) Name() string { return "ffplay" }

// Now returns seconds on the sink's monotonic clock.
func (s *FFPlaySink) Now() float64 {
	return time.Since(s.epoch).Seconds()
}

func (s *FFPlaySink) ensureRunning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil && s.cmd.Process != nil {
		return nil
	}
	chLayout := "mono"
	if s.channels == 2 {
		chLayout = "stereo"
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-volume", fmt.Sprintf("%d", s.volume),
		"-nodisp",
		"-f", "s16le",
		"-ch_layout", chLayout,
		"-ar", fmt.Sprintf("%d", s.sampleRate),
		"-i", "-",
	}
	cmd := exec.Command(s.path, args...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		// SDL can pick a silent dummy backend on macOS; prefer CoreAudio.
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return err
	}
	s.cmd = cmd
	s.stdin = stdin
	go func(c *exec.Cmd) {
		_ = c.Wait()
		s.mu.Lock()
		if s.cmd == c {
			s.cmd = nil
			s.stdin = nil
		}
		s.mu.Unlock()
	}(cmd)
	return nil
}

// Play schedules buf at the given clock time. The handle's Done fires once
// the buffer has been streamed (or Stop cuts it short).
func (s *FFPlaySink) Play(buf *audio.Buffer, when float64) (audio.PlaybackHandle, error) {
	if err := s.ensureRunning(); err != nil {
		return nil, err
	}
	h := &ffplayHandle{done: make(chan struct{}), stop: make(chan struct{})}
	go s.stream(buf, when, h)
	return h, nil
}

func (s *FFPlaySink) stream(buf *audio.Buffer, when float64, h *ffplayHandle) {
	defer h.finish()

	if delay := when - s.Now(); delay > 0 {
		select {
		case <-time.After(time.Duration(delay * float64(time.Second))):
		case <-h.stop:
			return
		}
	}

	pcm := interleaveS16LE(buf)
	// Feed in realtime-ish ticks so Stop can cut playback quickly.
	bytesPerSecond := buf.SampleRate * len(buf.Channels) * 2
	tick := 20 * time.Millisecond
	bytesPerTick := bytesPerSecond * int(tick) / int(time.Second)
	if bytesPerTick <= 0 {
		bytesPerTick = 960
	}
	for off := 0; off < len(pcm); off += bytesPerTick {
		select {
		case <-h.stop:
			return
		default:
		}
		end := off + bytesPerTick
		if end > len(pcm) {
			end = len(pcm)
		}
		s.mu.Lock()
		stdin := s.stdin
		s.mu.Unlock()
		if stdin == nil {
			return
		}
		if _, err := stdin.Write(pcm[off:end]); err != nil {
			s.logger.Warn("playback write failed", slog.String("error", err.Error()))
			return
		}
		select {
		case <-time.After(tick):
		case <-h.stop:
			return
		}
	}
}

func (s *FFPlaySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.cmd = nil
	s.stdin = nil
	return nil
}

type ffplayHandle struct {
	once sync.Once
	done chan struct{}
	stop chan struct{}

	stopOnce sync.Once
}

func (h *ffplayHandle) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *ffplayHandle) Done() <-chan struct{} { return h.done }

func (h *ffplayHandle) finish() {
	h.once.Do(func() { close(h.done) })
}

func interleaveS16LE(buf *audio.Buffer) []byte {
	frames := buf.FrameCount()
	channels := len(buf.Channels)
	out := make([]byte, frames*channels*2)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			v := buf.Channels[ch][i]
			s := int32(v * 32768)
			if s > 32767 {
				s = 32767
			} else if s < -32768 {
				s = -32768
			}
			off := (i*channels + ch) * 2
			out[off] = byte(s)
			out[off+1] = byte(s >> 8)
		}
	}
	return out
}
