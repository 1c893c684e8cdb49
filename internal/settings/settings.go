// Package settings owns the persisted render configuration: defaults,
// validation, the flat key/value document format and the stores behind it.
package settings

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/go-viper/mapstructure/v2"

	"reelrender/internal/models"
	"reelrender/internal/overlay"
	"reelrender/internal/pkg/errors"
)

// Limits accepted by Validate.
const (
	MinFontSize     = 8
	MaxFontSize     = 400
	MaxLineChars    = 200
	MaxFadeIn       = 10.0
	MaxCanvasLength = 4096
)

// Defaults mirrors the stock 1080x1920 caption look.
func Defaults() models.Settings {
	return models.Settings{
		Width:         1080,
		Height:        1920,
		FontName:      "DejaVu Sans",
		FontSize:      48,
		FontSizeMode:  models.FontSizeFixed,
		FontColor:     "#FFFFFF",
		OffsetY:       40,
		DefaultText:   overlay.DefaultText,
		OverlayMode:   models.OverlayCaption,
		Anchor:        models.AnchorCenter,
		MaxLineChars:  28,
		FadeInSeconds: 0,
		Jitter:        false,
		ResponseMode:  models.ResponseURL,
	}
}

// Keys lists the document keys in a stable order.
func Keys() []string {
	m := ToMap(Defaults())
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromMap decodes a flat document on top of base. Values may be strings
// (redis, postgres, html forms) or typed JSON values. Unknown keys are
// returned so callers can log them.
func FromMap(doc map[string]any, base models.Settings) (models.Settings, []string, error) {
	out := base
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		Metadata:         &md,
	})
	if err != nil {
		return base, nil, errors.Wrap(err, "settings.decode", "failed to build decoder")
	}
	if err := dec.Decode(doc); err != nil {
		return base, nil, errors.Validation("invalid settings document").WithField("cause", err.Error())
	}
	sort.Strings(md.Unused)
	return out, md.Unused, nil
}

// FromStrings is FromMap for string valued documents.
func FromStrings(doc map[string]string, base models.Settings) (models.Settings, []string, error) {
	m := make(map[string]any, len(doc))
	for k, v := range doc {
		m[k] = v
	}
	return FromMap(m, base)
}

// ToMap flattens s into its string document form.
func ToMap(s models.Settings) map[string]string {
	var raw map[string]any
	// struct to map decoding cannot fail for models.Settings
	_ = mapstructure.Decode(s, &raw)

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// Validate normalizes blank enum values to their defaults and rejects
// anything the render pipeline cannot honour.
func Validate(s models.Settings) (models.Settings, error) {
	def := Defaults()

	s.FontName = strings.TrimSpace(s.FontName)
	if s.FontName == "" {
		s.FontName = def.FontName
	}
	s.DefaultText = strings.TrimSpace(s.DefaultText)
	if s.DefaultText == "" {
		s.DefaultText = def.DefaultText
	}
	s.FontColor = strings.TrimSpace(s.FontColor)
	if s.FontColor == "" {
		s.FontColor = def.FontColor
	}
	if s.FontSizeMode == "" {
		s.FontSizeMode = def.FontSizeMode
	}
	if s.OverlayMode == "" {
		s.OverlayMode = def.OverlayMode
	}
	if s.Anchor == "" {
		s.Anchor = def.Anchor
	}
	if s.ResponseMode == "" {
		s.ResponseMode = def.ResponseMode
	}

	switch {
	case !validFontName(s.FontName):
		return s, errors.ValidationField("font_name", "font_name must not contain commas or control characters")
	case s.Width <= 0 || s.Width > MaxCanvasLength || s.Width%2 != 0:
		return s, errors.ValidationField("width", "width must be an even number between 2 and 4096")
	case s.Height <= 0 || s.Height > MaxCanvasLength || s.Height%2 != 0:
		return s, errors.ValidationField("height", "height must be an even number between 2 and 4096")
	case s.FontSize < MinFontSize || s.FontSize > MaxFontSize:
		return s, errors.ValidationField("font_size", fmt.Sprintf("font_size must be between %d and %d", MinFontSize, MaxFontSize))
	case !overlay.ValidColour(s.FontColor):
		return s, errors.ValidationField("font_color", "font_color must be #RRGGBB")
	case s.OffsetY < 0 || s.OffsetY > s.Height:
		return s, errors.ValidationField("offset_y", "offset_y must be between 0 and height")
	case s.MaxLineChars < 0 || s.MaxLineChars > MaxLineChars:
		return s, errors.ValidationField("max_line_chars", fmt.Sprintf("max_line_chars must be between 0 and %d", MaxLineChars))
	case s.FadeInSeconds < 0 || s.FadeInSeconds > MaxFadeIn:
		return s, errors.ValidationField("fade_in_seconds", "fade_in_seconds must be between 0 and 10")
	}

	switch s.FontSizeMode {
	case models.FontSizeFixed, models.FontSizeAuto:
	default:
		return s, errors.ValidationField("font_size_mode", "font_size_mode must be fixed or auto")
	}
	switch s.OverlayMode {
	case models.OverlayCaption, models.OverlayDrawText, models.OverlayNone:
	default:
		return s, errors.ValidationField("overlay_mode", "overlay_mode must be caption, drawtext or none")
	}
	switch s.Anchor {
	case models.AnchorBottom, models.AnchorCenter, models.AnchorTop:
	default:
		return s, errors.ValidationField("anchor", "anchor must be bottom, center or top")
	}
	if _, err := ParseResponseMode(string(s.ResponseMode)); err != nil {
		return s, err
	}
	return s, nil
}

// validFontName reports whether name fits in a single ASS style field.
func validFontName(name string) bool {
	return !strings.ContainsFunc(name, func(r rune) bool {
		return r == ',' || unicode.IsControl(r)
	})
}

// ParseResponseMode accepts url, stream or base64, case insensitive.
func ParseResponseMode(v string) (models.ResponseMode, error) {
	switch m := models.ResponseMode(strings.ToLower(strings.TrimSpace(v))); m {
	case models.ResponseURL, models.ResponseStream, models.ResponseBase64:
		return m, nil
	}
	return "", errors.ValidationField("response", "response must be url, stream or base64")
}
