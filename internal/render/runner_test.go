package render

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"reelrender/internal/models"
	"reelrender/internal/pkg/errors"
	"reelrender/internal/pkg/logger"
)

func indexOf(args []string, v string) int {
	for i, a := range args {
		if a == v {
			return i
		}
	}
	return -1
}

func TestFFmpegRunnerArgs(t *testing.T) {
	r := NewFFmpegRunner("", logger.NewDiscard())
	if r.Path != "ffmpeg" {
		t.Errorf("default path = %s", r.Path)
	}

	chain := `scale=1080:1920:force_original_aspect_ratio=decrease,drawtext=text=it\\\'s`
	args := r.Args(Invocation{
		Input:       "/up/in_1.mp4",
		Output:      "/work/out_1.mp4",
		VideoFilter: chain,
		AudioFilter: "atempo=1.25",
		Codec:       DefaultCodec(),
	})

	pairs := map[string]string{
		"-i":        "/up/in_1.mp4",
		"-vf":       chain,
		"-af":       "atempo=1.25",
		"-c:v":      "libx264",
		"-preset":   "veryfast",
		"-crf":      "22",
		"-c:a":      "aac",
		"-b:a":      "128k",
		"-r":        "30",
		"-movflags": "+faststart",
		"-pix_fmt":  "yuv420p",
	}
	for flag, want := range pairs {
		i := indexOf(args, flag)
		if i < 0 || i+1 >= len(args) || args[i+1] != want {
			t.Errorf("expected %s %q in %v", flag, want, args)
		}
	}
	if indexOf(args, "/work/out_1.mp4") < 0 || indexOf(args, "-y") < 0 {
		t.Errorf("expected output and -y in %v", args)
	}
	if args[0] != "-hide_banner" {
		t.Errorf("args should start with -hide_banner: %v", args)
	}
}

func TestFFmpegRunnerOmitsEmptyAudioFilter(t *testing.T) {
	args := NewFFmpegRunner("ffmpeg", logger.NewDiscard()).Args(Invocation{Input: "a", Output: "b", VideoFilter: "null", Codec: DefaultCodec()})
	if indexOf(args, "-af") >= 0 {
		t.Errorf("unexpected -af in %v", args)
	}
}

func TestFFmpegRunnerMissingBinary(t *testing.T) {
	r := NewFFmpegRunner(filepath.Join(t.TempDir(), "no-ffmpeg"), logger.NewDiscard())
	err := r.Run(context.Background(), Invocation{Input: "a", Output: "b", Codec: DefaultCodec()})
	if err == nil {
		t.Fatal("expected error")
	}
	var perr *ProcessError
	if !errors.As(err, &perr) || perr.ExitCode != -1 {
		t.Errorf("expected ProcessError with exit -1, got %v", err)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(8)
	_, _ = tb.Write([]byte("0123456789"))
	_, _ = tb.Write([]byte("ab"))
	if got := tb.String(); got != "456789ab" {
		t.Errorf("tail = %q", got)
	}
}

func TestParseProbe(t *testing.T) {
	raw := `{"streams":[{"codec_type":"audio"},{"codec_type":"video","width":1080,"height":1920}],"format":{"duration":"5.000000"}}`
	info, err := parseProbe(raw)
	if err != nil {
		t.Fatal(err)
	}
	if info.Width != 1080 || info.Height != 1920 || info.Duration != 5 || !info.HasAudio {
		t.Errorf("unexpected %+v", info)
	}

	if _, err := parseProbe(`{"streams":[{"codec_type":"audio"}]}`); err == nil {
		t.Error("expected error without a video stream")
	}
	if _, err := parseProbe(`not json`); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestProbePath(t *testing.T) {
	tests := map[string]string{
		"":                       "ffprobe",
		"ffmpeg":                 "ffprobe",
		"/opt/ffmpeg/bin/ffmpeg": "/opt/ffmpeg/bin/ffprobe",
		"./tools/ffmpeg":         "tools/ffprobe",
	}
	for in, want := range tests {
		if got := ProbePath(in); got != want {
			t.Errorf("ProbePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProbeUsesConfiguredBinary(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\necho '{\"streams\":[{\"codec_type\":\"video\",\"width\":640,\"height\":360}],\"format\":{\"duration\":\"2.5\"}}'\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	info, err := Probe(context.Background(), ProbePath(filepath.Join(dir, "ffmpeg")), "clip.mp4")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Width != 640 || info.Height != 360 || info.Duration != 2.5 {
		t.Errorf("unexpected %+v", info)
	}

	if _, err := Probe(context.Background(), filepath.Join(dir, "missing"), "clip.mp4"); err == nil {
		t.Error("expected error for a missing binary")
	}
}

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping ffmpeg integration test in short mode")
	}
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH", bin)
		}
	}
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

func TestIntegrationLetterbox(t *testing.T) {
	requireFFmpeg(t)
	f := newFixture(t)

	src := filepath.Join(t.TempDir(), "src.mp4")
	gen := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=640x480:rate=30:duration=5",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=5",
		"-shortest", "-c:v", "libx264", "-pix_fmt", "yuv420p", "-c:a", "aac", "-y", src)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("cannot generate test input: %v %s", err, out)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}

	font := firstExisting(
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	)
	for _, mode := range []models.OverlayMode{models.OverlayCaption, models.OverlayDrawText} {
		t.Run(string(mode), func(t *testing.T) {
			svc := NewService(Deps{
				Config: Config{WorkDir: f.work, UploadDir: f.upload, FontFile: font},
				Runner: NewFFmpegRunner("ffmpeg", logger.NewDiscard()),
				Log:    logger.NewDiscard(),
			})
			set := testSettings()
			set.OverlayMode = mode
			set.Jitter = true
			set.FadeInSeconds = 0.5

			res, err := svc.Render(context.Background(), Request{
				Source:   bytesSource{data: data},
				Text:     "Hello",
				Settings: set,
			})
			if err != nil {
				t.Fatalf("render: %v (%v)", err, errors.GetFields(err))
			}
			defer os.Remove(res.OutputPath)

			info, err := Probe(context.Background(), "ffprobe", res.OutputPath)
			if err != nil {
				t.Fatal(err)
			}
			if info.Width != 1080 || info.Height != 1920 {
				t.Errorf("output is %dx%d, want 1080x1920", info.Width, info.Height)
			}
		})
	}
}

func TestIntegrationCorruptInput(t *testing.T) {
	requireFFmpeg(t)
	f := newFixture(t)
	svc := NewService(Deps{
		Config: Config{WorkDir: f.work, UploadDir: f.upload, FontFile: f.font},
		Runner: NewFFmpegRunner("ffmpeg", logger.NewDiscard()),
		Log:    logger.NewDiscard(),
	})

	for i := 0; i < 10; i++ {
		_, err := svc.Render(context.Background(), Request{
			Source:   bytesSource{data: []byte("definitely not a video")},
			Settings: testSettings(),
		})
		if !errors.IsRender(err) {
			t.Fatalf("expected render error, got %v", err)
		}
		if stderr, _ := errors.GetFields(err)["stderr"].(string); strings.TrimSpace(stderr) == "" {
			t.Error("expected ffmpeg diagnostics in error details")
		}
	}
	if left := listFiles(t, f.work, f.upload); len(left) != 0 {
		t.Errorf("leaked files: %v", left)
	}
}
