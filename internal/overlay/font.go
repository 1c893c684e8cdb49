package overlay

import (
	"os"
	"path/filepath"
)

// FontSource tags which configured font file a job ended up with.
type FontSource int

const (
	FontMissing FontSource = iota
	FontPrimary
	FontFallback
)

func (s FontSource) String() string {
	switch s {
	case FontPrimary:
		return "primary"
	case FontFallback:
		return "fallback"
	default:
		return "missing"
	}
}

// FontChoice is the result of resolving the overlay font once per job.
type FontChoice struct {
	Source FontSource
	Path   string
}

// Usable reports whether an overlay can be drawn with this choice.
func (c FontChoice) Usable() bool {
	return c.Source != FontMissing
}

// Dir is the directory handed to the subtitles filter as fontsdir.
func (c FontChoice) Dir() string {
	if c.Path == "" {
		return ""
	}
	return filepath.Dir(c.Path)
}

// ResolveFont returns the first of primary, fallback that exists as a
// regular file, or a FontMissing choice.
func ResolveFont(primary, fallback string) FontChoice {
	if isFile(primary) {
		return FontChoice{Source: FontPrimary, Path: primary}
	}
	if isFile(fallback) {
		return FontChoice{Source: FontFallback, Path: fallback}
	}
	return FontChoice{Source: FontMissing}
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
