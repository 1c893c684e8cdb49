package filterchain

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
)

const (
	MinTempo = 0.5
	MaxTempo = 2.0
)

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min float64
	Max float64
}

func (r Range) clamp(v float64) float64 {
	return math.Min(math.Max(v, r.Min), r.Max)
}

// JitterRanges are the intervals per-job cosmetic values are drawn from.
type JitterRanges struct {
	Zoom       Range
	Rotation   Range // degrees
	Brightness Range
	Contrast   Range
	Saturation Range
	Sharpen    Range
}

// DefaultJitter keeps renders visually identical to a casual viewer.
var DefaultJitter = JitterRanges{
	Zoom:       Range{1.00, 1.05},
	Rotation:   Range{-1.0, 1.0},
	Brightness: Range{-0.03, 0.03},
	Contrast:   Range{0.97, 1.04},
	Saturation: Range{0.95, 1.06},
	Sharpen:    Range{0.2, 0.8},
}

// SafeJitter bounds every drawn value regardless of the configured ranges.
var SafeJitter = JitterRanges{
	Zoom:       Range{1.0, 1.25},
	Rotation:   Range{-5, 5},
	Brightness: Range{-0.2, 0.2},
	Contrast:   Range{0.8, 1.25},
	Saturation: Range{0.7, 1.3},
	Sharpen:    Range{0, 1.5},
}

// Jitter holds the cosmetic values drawn for one job.
type Jitter struct {
	Zoom        float64
	RotationDeg float64
	Brightness  float64
	Contrast    float64
	Saturation  float64
	Sharpen     float64
}

// Params describes one render's pipeline.
type Params struct {
	Width  int
	Height int
	Jitter bool
	// BlurRadius > 0 adds a boxblur stage.
	BlurRadius int
	FadeIn     float64
	// Tempo is the playback speed; 0 means 1.
	Tempo float64
	// Overlay is the caption or drawtext stage, if any.
	Overlay *Stage
	FPS     int
}

// Pipeline is the composed result.
type Pipeline struct {
	Video  []Stage
	Audio  []Stage
	Jitter *Jitter
	Tempo  float64
}

// VideoFilter is the -vf argument.
func (p Pipeline) VideoFilter() string { return Join(p.Video) }

// AudioFilter is the -af argument, empty when there is no audio stage.
func (p Pipeline) AudioFilter() string { return Join(p.Audio) }

// Builder composes pipelines. It is safe for concurrent use; draws from
// the injected source are serialized.
type Builder struct {
	mu     sync.Mutex
	rng    *rand.Rand
	ranges JitterRanges
}

// NewBuilder returns a builder drawing jitter from rng. A nil rng is seeded
// from the runtime's random source.
func NewBuilder(rng *rand.Rand, ranges JitterRanges) *Builder {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Builder{rng: rng, ranges: ranges}
}

// Build returns the stages for p in the fixed order
// scale, pad, setpts, cosmetics, overlay, fade.
func (b *Builder) Build(p Params) (Pipeline, error) {
	if p.Width <= 0 || p.Height <= 0 || p.Width%2 != 0 || p.Height%2 != 0 {
		return Pipeline{}, fmt.Errorf("invalid target size %dx%d", p.Width, p.Height)
	}
	fps := p.FPS
	if fps <= 0 {
		fps = 30
	}
	w, h := strconv.Itoa(p.Width), strconv.Itoa(p.Height)

	out := Pipeline{Tempo: ClampTempo(p.Tempo)}
	out.Video = append(out.Video,
		NewStage("scale", w, h).With("force_original_aspect_ratio", "decrease"),
		NewStage("pad", w, h, "(ow-iw)/2", "(oh-ih)/2", "black"),
	)

	if out.Tempo != 1 {
		out.Video = append(out.Video, NewStage("setpts", "PTS/"+ftoa(out.Tempo)))
		out.Audio = append(out.Audio, NewStage("atempo", ftoa(out.Tempo)))
	}

	if p.Jitter {
		j := b.draw()
		out.Jitter = &j
		out.Video = append(out.Video,
			NewStage("eq").
				With("brightness", ftoa(j.Brightness)).
				With("contrast", ftoa(j.Contrast)).
				With("saturation", ftoa(j.Saturation)),
			NewStage("unsharp", "5", "5", ftoa(j.Sharpen), "5", "5", "0"),
		)
	}
	if p.BlurRadius > 0 {
		out.Video = append(out.Video, NewStage("boxblur").
			With("luma_radius", strconv.Itoa(min(p.BlurRadius, 10))).
			With("luma_power", "1"))
	}
	if out.Jitter != nil {
		j := out.Jitter
		if j.RotationDeg != 0 {
			out.Video = append(out.Video, NewStage("rotate").
				With("a", ftoa(j.RotationDeg*math.Pi/180)).
				With("c", "black"))
		}
		if j.Zoom > 1 {
			out.Video = append(out.Video, NewStage("zoompan").
				With("z", ftoa(j.Zoom)).
				With("d", "1").
				With("x", "iw/2-(iw/zoom/2)").
				With("y", "ih/2-(ih/zoom/2)").
				With("s", w+"x"+h).
				With("fps", strconv.Itoa(fps)))
		}
	}

	if p.Overlay != nil {
		out.Video = append(out.Video, *p.Overlay)
	}

	if p.FadeIn > 0 {
		out.Video = append(out.Video, NewStage("fade").
			With("t", "in").
			With("st", "0").
			With("d", ftoa(math.Min(p.FadeIn, 10))))
	}

	return out, nil
}

func (b *Builder) draw() Jitter {
	b.mu.Lock()
	defer b.mu.Unlock()

	pick := func(r, safe Range) float64 {
		v := r.Min
		if r.Max > r.Min {
			v = r.Min + b.rng.Float64()*(r.Max-r.Min)
		}
		return safe.clamp(v)
	}
	return Jitter{
		Zoom:        pick(b.ranges.Zoom, SafeJitter.Zoom),
		RotationDeg: pick(b.ranges.Rotation, SafeJitter.Rotation),
		Brightness:  pick(b.ranges.Brightness, SafeJitter.Brightness),
		Contrast:    pick(b.ranges.Contrast, SafeJitter.Contrast),
		Saturation:  pick(b.ranges.Saturation, SafeJitter.Saturation),
		Sharpen:     pick(b.ranges.Sharpen, SafeJitter.Sharpen),
	}
}

// ClampTempo maps 0 and NaN to 1 and clamps everything else to [0.5, 2.0].
func ClampTempo(t float64) float64 {
	if t == 0 || math.IsNaN(t) {
		return 1
	}
	return math.Min(math.Max(t, MinTempo), MaxTempo)
}

// CaptionStage burns in the ASS document at path.
func CaptionStage(path, fontsDir string) Stage {
	s := NewStage("subtitles").With("filename", EscapeOption(path))
	if fontsDir != "" {
		s = s.With("fontsdir", EscapeOption(fontsDir))
	}
	return s
}

// DrawText describes a drawtext stage. Text must already be escaped for
// the option parser.
type DrawText struct {
	FontFile string
	Text     string
	FontSize int
	Colour   string
	// Anchor is top, center or bottom.
	Anchor  string
	OffsetY int
}

// YExpr returns the symbolic y position for anchor.
func YExpr(anchor string, offset int) string {
	switch anchor {
	case "top":
		return strconv.Itoa(offset)
	case "center":
		return "(h-text_h)/2"
	default:
		return "h-text_h-" + strconv.Itoa(offset)
	}
}

// DrawTextStage renders d as a drawtext stage with expansion disabled.
func DrawTextStage(d DrawText) Stage {
	colour := d.Colour
	if colour == "" {
		colour = "white"
	}
	return NewStage("drawtext").
		With("fontfile", EscapeOption(d.FontFile)).
		With("text", d.Text).
		With("expansion", "none").
		With("fontsize", strconv.Itoa(d.FontSize)).
		With("fontcolor", colour).
		With("borderw", "3").
		With("bordercolor", "black@0.5").
		With("x", "(w-text_w)/2").
		With("y", YExpr(d.Anchor, d.OffsetY))
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
