package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reelrender/internal/models"
	"reelrender/internal/pkg/errors"
	"reelrender/internal/pkg/logger"
)

type bytesSource struct {
	data []byte
	fail error
}

func (b bytesSource) Materialize(_ context.Context, dir, jobID string) (string, error) {
	if b.fail != nil {
		return "", b.fail
	}
	path := filepath.Join(dir, "in_"+jobID+".mp4")
	return path, os.WriteFile(path, b.data, 0o644)
}

func (b bytesSource) Describe() string { return "test" }

// funcRunner adapts a function to Runner.
type funcRunner func(ctx context.Context, inv Invocation) error

func (f funcRunner) Run(ctx context.Context, inv Invocation) error { return f(ctx, inv) }

// copyRunner "renders" by writing the input bytes and job id to the output.
var copyRunner = funcRunner(func(_ context.Context, inv Invocation) error {
	data, err := os.ReadFile(inv.Input)
	if err != nil {
		return err
	}
	return os.WriteFile(inv.Output, append(data, []byte(":"+inv.JobID)...), 0o644)
})

func testSettings() models.Settings {
	return models.Settings{
		Width:        1080,
		Height:       1920,
		FontName:     "DejaVu Sans",
		FontSize:     48,
		FontSizeMode: models.FontSizeFixed,
		FontColor:    "#FFFFFF",
		OffsetY:      40,
		DefaultText:  "Link in Bio",
		OverlayMode:  models.OverlayCaption,
		Anchor:       models.AnchorCenter,
		MaxLineChars: 28,
		ResponseMode: models.ResponseURL,
	}
}

type fixture struct {
	work   string
	upload string
	font   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{
		work:   filepath.Join(root, "work"),
		upload: filepath.Join(root, "upload"),
		font:   filepath.Join(root, "fonts", "DejaVuSans.ttf"),
	}
	for _, d := range []string{f.work, f.upload, filepath.Dir(f.font)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(f.font, []byte("font"), 0o644); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f fixture) service(r Runner, ids func() string) *Service {
	return NewService(Deps{
		Config: Config{WorkDir: f.work, UploadDir: f.upload, FontFile: f.font},
		Runner: r,
		Log:    logger.NewDiscard(),
		NewID:  ids,
	})
}

func listFiles(t *testing.T, dirs ...string) []string {
	t.Helper()
	var out []string
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			out = append(out, filepath.Join(d, e.Name()))
		}
	}
	return out
}

func TestRenderSuccess(t *testing.T) {
	f := newFixture(t)

	var caption string
	var inv Invocation
	runner := funcRunner(func(ctx context.Context, i Invocation) error {
		inv = i
		data, err := os.ReadFile(filepath.Join(f.work, "ov_job-1.ass"))
		if err != nil {
			return err
		}
		caption = string(data)
		return copyRunner(ctx, i)
	})

	svc := f.service(runner, func() string { return "job-1" })
	res, err := svc.Render(context.Background(), Request{
		Source:   bytesSource{data: []byte("video")},
		Text:     "Hello {there}",
		Settings: testSettings(),
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if res.OutputPath != filepath.Join(f.work, "out_job-1.mp4") || res.Width != 1080 || res.Height != 1920 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Overlay != models.OverlayCaption {
		t.Errorf("overlay = %s", res.Overlay)
	}
	if !strings.Contains(caption, `{\an5\bord3\shad0}Hello \{there\}`) {
		t.Errorf("caption document:\n%s", caption)
	}
	if !strings.Contains(inv.VideoFilter, "subtitles=filename="+filepath.Join(f.work, "ov_job-1.ass")) {
		t.Errorf("video filter: %s", inv.VideoFilter)
	}
	if inv.Input != filepath.Join(f.upload, "in_job-1.mp4") {
		t.Errorf("input = %s", inv.Input)
	}

	left := listFiles(t, f.work, f.upload)
	if len(left) != 1 || left[0] != res.OutputPath {
		t.Errorf("expected only the output to remain, got %v", left)
	}

	want := []State{StateCreated, StateInputAcquired, StatePipelineComposed, StateRenderRunning, StateRenderSucceeded, StateCleanedUp}
	if fmt.Sprint(res.States) != fmt.Sprint(want) {
		t.Errorf("states = %v, want %v", res.States, want)
	}
}

func TestRenderDefaultText(t *testing.T) {
	f := newFixture(t)
	var caption string
	runner := funcRunner(func(ctx context.Context, i Invocation) error {
		data, _ := os.ReadFile(filepath.Join(f.work, "ov_job-d.ass"))
		caption = string(data)
		return copyRunner(ctx, i)
	})
	set := testSettings()
	set.DefaultText = ""

	_, err := f.service(runner, func() string { return "job-d" }).Render(context.Background(), Request{
		Source:   bytesSource{data: []byte("v")},
		Text:     "   ",
		Settings: set,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(caption, `\shad0}Link in Bio`+"\n") {
		t.Errorf("expected default text, got\n%s", caption)
	}
}

func TestRenderForcedFailuresLeaveNoFiles(t *testing.T) {
	f := newFixture(t)
	failing := funcRunner(func(_ context.Context, inv Invocation) error {
		_ = os.WriteFile(inv.Output, []byte("partial"), 0o644)
		return &ProcessError{ExitCode: 1, Stderr: "Invalid data found when processing input", Err: fmt.Errorf("exit status 1")}
	})
	svc := f.service(failing, nil)

	for i := 0; i < 100; i++ {
		_, err := svc.Render(context.Background(), Request{
			Source:   bytesSource{data: []byte("corrupt")},
			Settings: testSettings(),
		})
		if err == nil {
			t.Fatalf("iteration %d: expected error", i)
		}
		if errors.GetHTTPStatus(err) != 500 || !errors.IsRender(err) {
			t.Fatalf("iteration %d: expected 500 render error, got %v", i, err)
		}
		if got := errors.GetFields(err)["stderr"]; got != "Invalid data found when processing input" {
			t.Fatalf("stderr detail = %v", got)
		}
	}

	if left := listFiles(t, f.work, f.upload); len(left) != 0 {
		t.Errorf("leaked files: %v", left)
	}
}

func TestRenderAcquisitionFailure(t *testing.T) {
	f := newFixture(t)
	var ran atomic.Bool
	svc := f.service(funcRunner(func(context.Context, Invocation) error {
		ran.Store(true)
		return nil
	}), nil)

	_, err := svc.Render(context.Background(), Request{
		Source:   bytesSource{fail: errors.Acquisition(fmt.Errorf("connection refused"), "acquire.remote", "failed to fetch video")},
		Settings: testSettings(),
	})
	if !errors.IsCode(err, errors.CodeAcquisition) {
		t.Fatalf("expected acquisition error, got %v", err)
	}
	if ran.Load() {
		t.Error("renderer must not run without input")
	}
}

func TestRenderTimeout(t *testing.T) {
	f := newFixture(t)
	blocking := funcRunner(func(ctx context.Context, _ Invocation) error {
		<-ctx.Done()
		return ctx.Err()
	})
	svc := NewService(Deps{
		Config: Config{WorkDir: f.work, UploadDir: f.upload, FontFile: f.font, Timeout: 50 * time.Millisecond},
		Runner: blocking,
		Log:    logger.NewDiscard(),
	})

	_, err := svc.Render(context.Background(), Request{Source: bytesSource{data: []byte("v")}, Settings: testSettings()})
	if !errors.IsCode(err, errors.CodeTimeout) || errors.GetHTTPStatus(err) != 504 {
		t.Fatalf("expected timeout, got %v", err)
	}
	if left := listFiles(t, f.work, f.upload); len(left) != 0 {
		t.Errorf("leaked files: %v", left)
	}
}

func TestRenderClientCanceled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	runner := funcRunner(func(ctx context.Context, _ Invocation) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})

	_, err := f.service(runner, nil).Render(ctx, Request{Source: bytesSource{data: []byte("v")}, Settings: testSettings()})
	if !errors.IsCode(err, errors.CodeCanceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if left := listFiles(t, f.work, f.upload); len(left) != 0 {
		t.Errorf("leaked files: %v", left)
	}
}

func TestRenderReadback(t *testing.T) {
	f := newFixture(t)
	noop := funcRunner(func(context.Context, Invocation) error { return nil })

	_, err := f.service(noop, nil).Render(context.Background(), Request{Source: bytesSource{data: []byte("v")}, Settings: testSettings()})
	if !errors.IsCode(err, errors.CodeReadback) {
		t.Fatalf("expected readback error, got %v", err)
	}
}

func TestRenderMissingFontSkipsOverlay(t *testing.T) {
	f := newFixture(t)
	var inv Invocation
	runner := funcRunner(func(ctx context.Context, i Invocation) error {
		inv = i
		return copyRunner(ctx, i)
	})
	svc := NewService(Deps{
		Config: Config{WorkDir: f.work, UploadDir: f.upload, FontFile: "/nonexistent/a.ttf", FontFallback: "/nonexistent/b.ttf"},
		Runner: runner,
		Log:    logger.NewDiscard(),
	})

	res, err := svc.Render(context.Background(), Request{Source: bytesSource{data: []byte("v")}, Text: "Hello", Settings: testSettings()})
	if err != nil {
		t.Fatalf("missing font must not be fatal: %v", err)
	}
	if res.Overlay != models.OverlayNone {
		t.Errorf("overlay = %s", res.Overlay)
	}
	if strings.Contains(inv.VideoFilter, "subtitles") || strings.Contains(inv.VideoFilter, "drawtext") {
		t.Errorf("overlay stage present: %s", inv.VideoFilter)
	}
}

func TestRenderDrawTextAutoSize(t *testing.T) {
	f := newFixture(t)
	var inv Invocation
	runner := funcRunner(func(ctx context.Context, i Invocation) error {
		inv = i
		return copyRunner(ctx, i)
	})
	set := testSettings()
	set.OverlayMode = models.OverlayDrawText
	set.FontSizeMode = models.FontSizeAuto
	set.Anchor = models.AnchorBottom
	set.OffsetY = 120

	_, err := f.service(runner, nil).Render(context.Background(), Request{
		Source:   bytesSource{data: []byte("v")},
		Text:     "Sale: 50% off",
		Speed:    1.5,
		Settings: set,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`text=Sale\\: 50% off`, "fontsize=72", "y=h-text_h-120", "expansion=none"} {
		if !strings.Contains(inv.VideoFilter, want) {
			t.Errorf("expected %q in %s", want, inv.VideoFilter)
		}
	}
	if inv.AudioFilter != "atempo=1.5" {
		t.Errorf("audio filter = %q", inv.AudioFilter)
	}
	if left := listFiles(t, f.work); len(left) != 1 {
		t.Errorf("drawtext mode must not write a caption file: %v", left)
	}
}

func TestRenderConcurrentJobsDistinct(t *testing.T) {
	f := newFixture(t)
	svc := f.service(copyRunner, nil)

	const n = 50
	results := make([]*Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Render(context.Background(), Request{
				Source:   bytesSource{data: []byte(fmt.Sprintf("input-%d", i))},
				Text:     fmt.Sprintf("caption %d", i),
				Settings: testSettings(),
			})
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i, res := range results {
		if errs[i] != nil {
			t.Fatalf("job %d: %v", i, errs[i])
		}
		if seen[res.OutputPath] {
			t.Fatalf("duplicate output path %s", res.OutputPath)
		}
		seen[res.OutputPath] = true

		data, err := os.ReadFile(res.OutputPath)
		if err != nil {
			t.Fatal(err)
		}
		if want := fmt.Sprintf("input-%d:%s", i, res.JobID); string(data) != want {
			t.Errorf("job %d output = %q, want %q", i, data, want)
		}
	}
	if left := listFiles(t, f.upload); len(left) != 0 {
		t.Errorf("inputs leaked: %v", left)
	}
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	svc := f.service(copyRunner, func() string { return "prev" })

	plan, err := svc.Preview(context.Background(), "/videos/in.mov", Request{Text: "Hi", Settings: testSettings()})
	if err != nil {
		t.Fatal(err)
	}
	if plan.Caption == nil || plan.Invocation.Input != "/videos/in.mov" {
		t.Errorf("unexpected plan %+v", plan)
	}
	if left := listFiles(t, f.work, f.upload); len(left) != 0 {
		t.Errorf("preview wrote files: %v", left)
	}
}

func TestJobTransitions(t *testing.T) {
	j := newJob("x")
	if err := j.Advance(StateRenderRunning); err == nil || !errors.IsCode(err, errors.CodeInternal) {
		t.Errorf("expected internal error for created -> render_running, got %v", err)
	}
	for _, s := range []State{StateInputAcquired, StatePipelineComposed, StateRenderRunning, StateRenderFailed, StateCleanedUp} {
		if err := j.Advance(s); err != nil {
			t.Fatalf("advance to %s: %v", s, err)
		}
	}
	if err := j.Advance(StateCleanedUp); err == nil {
		t.Error("cleaned_up is terminal")
	}
	if got := len(j.History()); got != 6 {
		t.Errorf("history length = %d", got)
	}
	if State(99).String() != "unknown" || StateCleanedUp.String() != "cleaned_up" {
		t.Error("state names")
	}
}
