package capture

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/parlo-app/parlo/pkg/errorsx"
)

// FFmpegDevice captures the default microphone through an ffmpeg child
// process emitting f32le mono on stdout. Blocks are fixed size; when the
// consumer lags, blocks are dropped rather than backing up the reader.
type FFmpegDevice struct {
	cfg    Config
	path   string
	input  string
	logger *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	cancel context.CancelFunc
	frames chan []float32
	ran    bool
}

type Option func(*FFmpegDevice)

func WithPath(path string) Option   { return func(d *FFmpegDevice) { d.path = path } }
func WithInput(input string) Option { return func(d *FFmpegDevice) { d.input = input } }

func NewFFmpegDevice(cfg Config, logger *slog.Logger, opts ...Option) *FFmpegDevice {
	if logger == nil {
		logger = slog.Default()
	}
	d := &FFmpegDevice{
		cfg:    cfg.WithDefaults(),
		path:   "ffmpeg",
		logger: logger.With(slog.String("component", "ffmpeg_capture")),
		frames: make(chan []float32, 8),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *FFmpegDevice) Name() string { return "ffmpeg" }

func (d *FFmpegDevice) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd != nil {
		return errorsx.New(errorsx.ReasonMicBusy, "capture already started")
	}
	format, input := defaultInput()
	if d.input != "" {
		input = d.input
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", format,
		"-i", input,
		"-ac", "1",
		"-ar", strconv.Itoa(d.cfg.SampleRate),
		"-f", "f32le",
		"-",
	}
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, d.path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return errorsx.Wrap(err, errorsx.ReasonMicUnavailable)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return errorsx.Wrap(err, errorsx.ReasonMicUnavailable)
	}
	if d.ran {
		// The previous run's loop owns the old channel and closes it on
		// EOF; restarts hand consumers a fresh channel instead.
		d.frames = make(chan []float32, 8)
	}
	d.ran = true
	d.cmd = cmd
	d.cancel = cancel
	go d.readLoop(stdout, d.frames)
	go func() { _ = cmd.Wait() }()
	return nil
}

// readLoop owns frames: it is the only sender and closes it on reader
// EOF. The channel is passed in so a loop from a finished run never
// touches the channel of a later Start.
func (d *FFmpegDevice) readLoop(r io.Reader, frames chan []float32) {
	block := make([]byte, d.cfg.BlockSize*4)
	for {
		if _, err := io.ReadFull(r, block); err != nil {
			close(frames)
			return
		}
		samples := make([]float32, d.cfg.BlockSize)
		for i := range samples {
			bits := binary.LittleEndian.Uint32(block[i*4:])
			samples[i] = math.Float32frombits(bits)
		}
		select {
		case frames <- samples:
		default:
			// Consumer is behind; stale audio is worse than a dropped block.
			d.logger.Debug("capture block dropped")
		}
	}
}

func (d *FFmpegDevice) Frames() <-chan []float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

func (d *FFmpegDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.cmd = nil
	return nil
}

func defaultInput() (format, input string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":default"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "alsa", "default"
	}
}
