package render

import (
	"context"
	stderrors "errors"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"reelrender/internal/pkg/logger"
)

// Codec holds the encoder and container options of a render.
type Codec struct {
	VideoCodec   string
	Preset       string
	CRF          int
	AudioCodec   string
	AudioBitrate string
	FrameRate    int
	PixFmt       string
	FastStart    bool
}

// DefaultCodec is H.264/AAC at 30fps with the moov atom up front.
func DefaultCodec() Codec {
	return Codec{
		VideoCodec:   "libx264",
		Preset:       "veryfast",
		CRF:          22,
		AudioCodec:   "aac",
		AudioBitrate: "128k",
		FrameRate:    30,
		PixFmt:       "yuv420p",
		FastStart:    true,
	}
}

func (c Codec) kwargs() ffmpeg.KwArgs {
	kw := ffmpeg.KwArgs{
		"c:v":     c.VideoCodec,
		"preset":  c.Preset,
		"crf":     strconv.Itoa(c.CRF),
		"c:a":     c.AudioCodec,
		"b:a":     c.AudioBitrate,
		"r":       strconv.Itoa(c.FrameRate),
		"pix_fmt": c.PixFmt,
	}
	if c.FastStart {
		kw["movflags"] = "+faststart"
	}
	return kw
}

// Invocation is everything a Runner needs for one renderer process.
type Invocation struct {
	JobID       string
	Input       string
	Output      string
	VideoFilter string
	AudioFilter string
	Codec       Codec
}

// Runner executes a render. Implementations must honour ctx cancellation
// by terminating the child process.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// ProcessError is returned when the renderer exits unsuccessfully.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	return "ffmpeg exited with code " + strconv.Itoa(e.ExitCode) + ": " + e.Err.Error()
}

func (e *ProcessError) Unwrap() error { return e.Err }

// FFmpegRunner runs the ffmpeg binary with an argv built by ffmpeg-go.
type FFmpegRunner struct {
	Path string
	// TailBytes bounds how much stderr is kept for diagnostics.
	TailBytes int
	// WaitDelay is how long to wait for pipes after the process is killed.
	WaitDelay time.Duration
	Log       *logger.Logger
}

// NewFFmpegRunner returns a runner for the binary at path ("ffmpeg" if empty).
func NewFFmpegRunner(path string, log *logger.Logger) *FFmpegRunner {
	if path == "" {
		path = "ffmpeg"
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &FFmpegRunner{
		Path:      path,
		TailBytes: 8 << 10,
		WaitDelay: 5 * time.Second,
		Log:       log.WithComponent("ffmpeg"),
	}
}

// Args builds the argv (without the binary) for inv. Filter strings are
// passed through untouched; they are escaped when the stages are flattened.
func (r *FFmpegRunner) Args(inv Invocation) []string {
	kw := inv.Codec.kwargs()
	if inv.VideoFilter != "" {
		kw["vf"] = inv.VideoFilter
	}
	if inv.AudioFilter != "" {
		kw["af"] = inv.AudioFilter
	}
	args := ffmpeg.Input(inv.Input).
		Output(inv.Output, kw).
		OverWriteOutput().
		GetArgs()
	return append([]string{"-hide_banner", "-nostdin", "-loglevel", "error"}, args...)
}

func (r *FFmpegRunner) Run(ctx context.Context, inv Invocation) error {
	log := r.Log.FromContext(ctx).WithJobID(inv.JobID)
	args := r.Args(inv)

	cmd := exec.CommandContext(ctx, r.Path, args...)
	cmd.WaitDelay = r.WaitDelay
	tail := newTailBuffer(r.TailBytes)
	cmd.Stderr = tail

	log.Info("ffmpeg start", "cmd", r.Path+" "+strings.Join(args, " "))
	start := time.Now()

	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()
	if err == nil {
		log.Info("ffmpeg finished", "output", inv.Output, "duration_ms", elapsed)
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Warn("ffmpeg interrupted", "reason", ctxErr.Error(), "duration_ms", elapsed)
		return pkgerrors.Wrap(ctxErr, "ffmpeg interrupted")
	}

	perr := &ProcessError{ExitCode: -1, Stderr: tail.String(), Err: err}
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		perr.ExitCode = exitErr.ExitCode()
	}
	log.Error("ffmpeg failed", "exit_code", perr.ExitCode, "duration_ms", elapsed)
	log.Debug("ffmpeg stderr", "stderr", perr.Stderr)
	return pkgerrors.WithStack(perr)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 8 << 10
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
