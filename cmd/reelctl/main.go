// Command reelctl renders local files offline and previews the filter
// chain a render would run.
package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/spf13/cobra"

	"reelrender/internal/filterchain"
	"reelrender/internal/models"
	"reelrender/internal/pkg/logger"
	"reelrender/internal/render"
	"reelrender/internal/settings"
)

var rootCmd = &cobra.Command{
	Use:   "reelctl",
	Short: "Render videos to a letterboxed vertical canvas with a burned-in caption",
	Long: `reelctl runs the same render pipeline as the HTTP API against local files.

Examples:
  # Render with the stock settings
  reelctl render -i clip.mov -o reel.mp4 --text "Link in Bio"

  # Show the ffmpeg arguments and caption document without rendering
  reelctl preview -i clip.mov --text "Two lines\nof text" --overlay drawtext`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("input", "i", "", "input video file (required)")
	pf.String("text", "", "caption text; empty uses the default text")
	pf.Float64("speed", 1, "playback speed, clamped to [0.5, 2]")
	pf.String("settings", "", "settings JSON file (the API's SETTINGS_FILE format)")
	pf.String("overlay", "", "overlay mode: caption, drawtext or none")
	pf.String("anchor", "", "caption anchor: bottom, center or top")
	pf.Bool("jitter", false, "apply randomized cosmetic jitter")
	pf.Uint64("seed", 0, "jitter seed; 0 picks a random one")
	pf.String("font", "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf", "font file")
	pf.String("font-fallback", "", "font used when --font is missing")
	pf.String("ffmpeg", "ffmpeg", "ffmpeg binary")
	pf.Duration("timeout", 10*time.Minute, "render timeout")
	pf.BoolP("verbose", "v", false, "debug logging")
	_ = rootCmd.MarkPersistentFlagRequired("input")

	rootCmd.AddCommand(renderCmd, previewCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// options collects what both subcommands need.
type options struct {
	input    string
	request  render.Request
	log      *logger.Logger
	service  *render.Service
	ffmpeg   string
	workDir  string
	cleanups []func()
}

func (o *options) close() {
	for i := len(o.cleanups) - 1; i >= 0; i-- {
		o.cleanups[i]()
	}
}

func loadOptions(cmd *cobra.Command) (*options, error) {
	f := cmd.Flags()
	input, _ := f.GetString("input")
	text, _ := f.GetString("text")
	speed, _ := f.GetFloat64("speed")
	settingsFile, _ := f.GetString("settings")
	overlayMode, _ := f.GetString("overlay")
	anchor, _ := f.GetString("anchor")
	jitter, _ := f.GetBool("jitter")
	seed, _ := f.GetUint64("seed")
	font, _ := f.GetString("font")
	fontFallback, _ := f.GetString("font-fallback")
	ffmpegPath, _ := f.GetString("ffmpeg")
	timeout, _ := f.GetDuration("timeout")
	verbose, _ := f.GetBool("verbose")

	level := "warn"
	if verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: level, Format: "text", ServiceName: "reelctl", Output: os.Stderr})

	if _, err := os.Stat(input); err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	if speed <= 0 {
		return nil, fmt.Errorf("speed must be positive")
	}

	set, err := loadSettings(cmd.Context(), settingsFile, log)
	if err != nil {
		return nil, err
	}
	patch := map[string]any{}
	if overlayMode != "" {
		patch["overlay_mode"] = overlayMode
	}
	if anchor != "" {
		patch["anchor"] = anchor
	}
	if f.Changed("jitter") {
		patch["jitter"] = jitter
	}
	if set, _, err = settings.FromMap(patch, set); err != nil {
		return nil, err
	}
	if set, err = settings.Validate(set); err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "reelctl-*")
	if err != nil {
		return nil, err
	}

	var rng *rand.Rand
	if seed != 0 {
		rng = rand.New(rand.NewPCG(seed, seed))
	}

	o := &options{
		input:   input,
		log:     log,
		ffmpeg:  ffmpegPath,
		workDir: workDir,
		request: render.Request{Text: text, Speed: speed, Settings: set},
	}
	o.cleanups = append(o.cleanups, func() { _ = os.RemoveAll(workDir) })
	o.service = render.NewService(render.Deps{
		Config: render.Config{
			WorkDir:      workDir,
			UploadDir:    workDir,
			FontFile:     font,
			FontFallback: fontFallback,
			Timeout:      timeout,
			ProbeInput:   verbose,
			FFprobePath:  render.ProbePath(ffmpegPath),
		},
		Runner:  render.NewFFmpegRunner(ffmpegPath, log),
		Builder: filterchain.NewBuilder(rng, filterchain.DefaultJitter),
		Log:     log,
	})
	return o, nil
}

// loadSettings reads a settings document, or returns the defaults.
func loadSettings(ctx context.Context, path string, log *logger.Logger) (models.Settings, error) {
	if path == "" {
		return settings.Defaults(), nil
	}
	mgr := settings.NewManager(settings.NewFileStore(path), log)
	if err := mgr.Reload(ctx); err != nil {
		return models.Settings{}, err
	}
	return mgr.Snapshot(), nil
}
