// Package render turns an acquired video into a letterboxed render with an
// optional burned-in caption, one ffmpeg process per job.
package render

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reelrender/internal/filterchain"
	"reelrender/internal/models"
	"reelrender/internal/overlay"
	"reelrender/internal/pkg/errors"
	"reelrender/internal/pkg/logger"
	"reelrender/internal/util"
)

// Source writes the job's input video into dir and returns its path. On
// failure it must not leave a partial file behind.
type Source interface {
	Materialize(ctx context.Context, dir, jobID string) (string, error)
	Describe() string
}

type Config struct {
	WorkDir      string
	UploadDir    string
	FontFile     string
	FontFallback string
	// Timeout bounds the renderer process; zero disables the bound.
	Timeout    time.Duration
	ProbeInput bool
	// FFprobePath is used when ProbeInput is set; see ProbePath.
	FFprobePath string
	Codec       Codec
}

type Deps struct {
	Config  Config
	Runner  Runner
	Builder *filterchain.Builder
	Log     *logger.Logger
	// NewID overrides job id generation in tests.
	NewID func() string
}

type Service struct {
	cfg     Config
	runner  Runner
	builder *filterchain.Builder
	log     *logger.Logger
	newID   func() string
}

func NewService(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	cfg := d.Config
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = cfg.WorkDir
	}
	if cfg.Codec.VideoCodec == "" {
		cfg.Codec = DefaultCodec()
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	builder := d.Builder
	if builder == nil {
		builder = filterchain.NewBuilder(nil, filterchain.DefaultJitter)
	}
	newID := d.NewID
	if newID == nil {
		newID = util.NewJobID
	}
	return &Service{
		cfg:     cfg,
		runner:  d.Runner,
		builder: builder,
		log:     log.WithComponent("render"),
		newID:   newID,
	}
}

// Request is one render. Settings is the snapshot taken at request start.
type Request struct {
	Source   Source
	Text     string
	Speed    float64
	Settings models.Settings
}

// Plan is a composed but not yet executed render.
type Plan struct {
	Pipeline   filterchain.Pipeline
	Caption    *overlay.CaptionDocument
	Font       overlay.FontChoice
	Invocation Invocation
	// Overlay is the overlay mode actually used, "none" when skipped.
	Overlay models.OverlayMode
}

// Result describes a successful render. OutputPath belongs to the caller.
type Result struct {
	JobID      string
	OutputPath string
	Size       int64
	Width      int
	Height     int
	Overlay    models.OverlayMode
	Jitter     *filterchain.Jitter
	Elapsed    time.Duration
	States     []State
}

// Render runs a job through acquire, compose, run and cleanup. Input and
// caption files are removed on every path; the output is removed on failure.
func (s *Service) Render(ctx context.Context, req Request) (res *Result, err error) {
	job := newJob(s.newID())
	ctx = logger.ContextWithJobID(ctx, job.ID)
	log := s.log.FromContext(ctx)
	start := time.Now()

	defer func() {
		if err != nil {
			job.fail()
			removeQuietly(log, job.OutputPath)
		}
		s.cleanup(log, job)
		if res != nil {
			res.States = job.History()
		}
		log.Debug("job finished", "states", job.History(), "duration_ms", time.Since(start).Milliseconds())
	}()

	log.Info("render job created", "source", req.Source.Describe())

	input, err := req.Source.Materialize(ctx, s.cfg.UploadDir, job.ID)
	if err != nil {
		return nil, err
	}
	job.InputPath = input
	if err := job.Advance(StateInputAcquired); err != nil {
		return nil, err
	}
	if s.cfg.ProbeInput {
		s.logProbe(ctx, log, input)
	}

	plan, err := s.plan(ctx, job, req)
	if err != nil {
		return nil, err
	}
	if plan.Caption != nil {
		if err := plan.Caption.WriteFile(job.CaptionPath); err != nil {
			return nil, errors.Wrap(err, "render.caption", "failed to write caption document")
		}
	}
	if err := job.Advance(StatePipelineComposed); err != nil {
		return nil, err
	}

	runCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	if err := job.Advance(StateRenderRunning); err != nil {
		return nil, err
	}
	if err := s.runner.Run(runCtx, plan.Invocation); err != nil {
		return nil, s.classify(ctx, runCtx, err)
	}
	if err := job.Advance(StateRenderSucceeded); err != nil {
		return nil, err
	}

	st, err := os.Stat(job.OutputPath)
	if err != nil {
		return nil, errors.Readback(err, "render.stat")
	}
	if st.Size() == 0 {
		return nil, errors.Readback(stderrors.New("output is empty"), "render.stat")
	}

	log.Info("render succeeded",
		"output", job.OutputPath,
		"size", st.Size(),
		"overlay", string(plan.Overlay),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Result{
		JobID:      job.ID,
		OutputPath: job.OutputPath,
		Size:       st.Size(),
		Width:      req.Settings.Width,
		Height:     req.Settings.Height,
		Overlay:    plan.Overlay,
		Jitter:     plan.Pipeline.Jitter,
		Elapsed:    time.Since(start),
	}, nil
}

// Preview composes a plan for input without touching the filesystem.
func (s *Service) Preview(ctx context.Context, input string, req Request) (*Plan, error) {
	job := newJob(s.newID())
	job.InputPath = input
	return s.plan(logger.ContextWithJobID(ctx, job.ID), job, req)
}

func (s *Service) plan(ctx context.Context, job *Job, req Request) (*Plan, error) {
	log := s.log.FromContext(ctx)
	set := req.Settings

	job.OutputPath = filepath.Join(s.cfg.WorkDir, "out_"+job.ID+".mp4")

	plan := &Plan{Overlay: set.OverlayMode}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		text = set.DefaultText
	}

	var stage *filterchain.Stage
	if set.OverlayMode != models.OverlayNone {
		plan.Font = overlay.ResolveFont(s.cfg.FontFile, s.cfg.FontFallback)
		log.Debug("font resolved", "source", plan.Font.Source.String(), "path", plan.Font.Path)
		if !plan.Font.Usable() {
			log.Warn("no overlay font available, rendering without text",
				"font_file", s.cfg.FontFile, "fallback", s.cfg.FontFallback)
			plan.Overlay = models.OverlayNone
		}
	}

	fontSize := set.FontSize
	if set.FontSizeMode == models.FontSizeAuto {
		fontSize = overlay.ChooseFontSize(text)
	}

	switch plan.Overlay {
	case models.OverlayCaption:
		job.CaptionPath = filepath.Join(s.cfg.WorkDir, "ov_"+job.ID+".ass")
		plan.Caption = &overlay.CaptionDocument{
			Width:    set.Width,
			Height:   set.Height,
			FontName: set.FontName,
			FontSize: fontSize,
			Colour:   overlay.ASSColour(set.FontColor),
			Anchor:   set.Anchor,
			MarginV:  set.OffsetY,
			Text:     overlay.PrepareForCaption(text, set.MaxLineChars),
		}
		st := filterchain.CaptionStage(job.CaptionPath, plan.Font.Dir())
		stage = &st
	case models.OverlayDrawText:
		st := filterchain.DrawTextStage(filterchain.DrawText{
			FontFile: plan.Font.Path,
			Text:     overlay.PrepareForDirectDraw(text),
			FontSize: fontSize,
			Colour:   overlay.DrawTextColour(set.FontColor),
			Anchor:   string(set.Anchor),
			OffsetY:  set.OffsetY,
		})
		stage = &st
	}

	pipeline, err := s.builder.Build(filterchain.Params{
		Width:   set.Width,
		Height:  set.Height,
		Jitter:  set.Jitter,
		FadeIn:  set.FadeInSeconds,
		Tempo:   req.Speed,
		Overlay: stage,
		FPS:     s.cfg.Codec.FrameRate,
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeInternal, "render.compose", "failed to compose filter chain")
	}
	plan.Pipeline = pipeline
	plan.Invocation = Invocation{
		JobID:       job.ID,
		Input:       job.InputPath,
		Output:      job.OutputPath,
		VideoFilter: pipeline.VideoFilter(),
		AudioFilter: pipeline.AudioFilter(),
		Codec:       s.cfg.Codec,
	}

	log.Debug("pipeline composed",
		"video", plan.Invocation.VideoFilter,
		"audio", plan.Invocation.AudioFilter,
		"overlay", string(plan.Overlay),
	)
	return plan, nil
}

// classify maps a runner error to the error taxonomy. A deadline on runCtx
// is a timeout, a canceled parent means the client went away.
func (s *Service) classify(parent, runCtx context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		return errors.WrapWithCode(err, errors.CodeCanceled, "render.run", "render canceled")
	case stderrors.Is(runCtx.Err(), context.DeadlineExceeded):
		return errors.Timeout("render").WithField("limit", s.cfg.Timeout.String())
	}
	var perr *ProcessError
	if errors.As(err, &perr) {
		return errors.Render(err, "render.run", perr.Stderr).WithField("exit_code", perr.ExitCode)
	}
	return errors.Render(err, "render.run", "")
}

func (s *Service) cleanup(log *logger.Logger, job *Job) {
	removeQuietly(log, job.InputPath)
	removeQuietly(log, job.CaptionPath)
	if err := job.Advance(StateCleanedUp); err != nil {
		log.Error("cleanup transition failed", "error", err.Error())
	}
}

func (s *Service) logProbe(ctx context.Context, log *logger.Logger, path string) {
	info, err := Probe(ctx, s.cfg.FFprobePath, path)
	if err != nil {
		log.Warn("input probe failed", "ffprobe", s.cfg.FFprobePath, "error", err.Error())
		return
	}
	log.Info("input probed", "width", info.Width, "height", info.Height,
		"duration", info.Duration, "audio", info.HasAudio)
}

// removeQuietly deletes path, logging anything but "does not exist".
func removeQuietly(log *logger.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("temp file cleanup failed", "path", path, "error", err.Error())
	}
}
