package overlay

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"reelrender/internal/models"
)

// Sentinel end time of the single dialogue event; long enough for any clip.
const captionEnd = "9:59:59.00"

// AlignmentCode maps an anchor to its ASS numpad alignment code.
func AlignmentCode(a models.Anchor) int {
	switch a {
	case models.AnchorTop:
		return 8
	case models.AnchorCenter:
		return 5
	default:
		return 2
	}
}

// CaptionDocument is an ASS document with exactly one style and one event.
type CaptionDocument struct {
	Width    int
	Height   int
	FontName string
	FontSize int
	// Colour is an ASS &HAABBGGRR value.
	Colour  string
	Anchor  models.Anchor
	MarginV int
	// Text must already be prepared with PrepareForCaption.
	Text string
}

// String renders the document.
func (d CaptionDocument) String() string {
	var b strings.Builder
	_, _ = d.WriteTo(&b)
	return b.String()
}

// WriteTo writes the document to w.
func (d CaptionDocument) WriteTo(w io.Writer) (int64, error) {
	width, height := d.Width, d.Height
	if width <= 0 || height <= 0 {
		width, height = 1080, 1920
	}
	font := d.FontName
	if font == "" {
		font = "DejaVu Sans"
	}
	size := d.FontSize
	if size <= 0 {
		size = 48
	}
	colour := d.Colour
	if colour == "" {
		colour = "&H00FFFFFF"
	}
	align := AlignmentCode(d.Anchor)
	margin := d.MarginV
	if margin < 0 {
		margin = 0
	}

	lines := []string{
		"[Script Info]",
		"ScriptType: v4.00+",
		"PlayResX: " + strconv.Itoa(width),
		"PlayResY: " + strconv.Itoa(height),
		"WrapStyle: 2",
		"ScaledBorderAndShadow: yes",
		"YCbCr Matrix: TV.709",
		"",
		"[V4+ Styles]",
		"Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, " +
			"Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, " +
			"BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding",
		fmt.Sprintf("Style: Caption,%s,%d,%s,&H000000FF,&H7F000000,&H7F000000,-1,0,0,0,100,100,0,0,1,3,0,%d,40,40,%d,1",
			font, size, colour, align, margin),
		"",
		"[Events]",
		"Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text",
		fmt.Sprintf(`Dialogue: 0,0:00:00.00,%s,Caption,,0000,0000,%04d,,{\an%d\bord3\shad0}%s`,
			captionEnd, margin, align, d.Text),
	}

	n, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return int64(n), err
}

// WriteFile writes the document to path with 0644 permissions.
func (d CaptionDocument) WriteFile(path string) error {
	return os.WriteFile(path, []byte(d.String()), 0o644)
}

// ASSColour converts #RRGGBB (or RRGGBB) to the ASS &H00BBGGRR form.
// Invalid input yields opaque white.
func ASSColour(hex string) string {
	r, g, b, ok := parseHexColour(hex)
	if !ok {
		return "&H00FFFFFF"
	}
	return fmt.Sprintf("&H00%02X%02X%02X", b, g, r)
}

// DrawTextColour converts #RRGGBB to drawtext's 0xRRGGBB form.
func DrawTextColour(hex string) string {
	r, g, b, ok := parseHexColour(hex)
	if !ok {
		return "0xFFFFFF"
	}
	return fmt.Sprintf("0x%02X%02X%02X", r, g, b)
}

// ValidColour reports whether hex is a #RRGGBB colour.
func ValidColour(hex string) bool {
	_, _, _, ok := parseHexColour(hex)
	return ok
}

func parseHexColour(hex string) (r, g, b uint8, ok bool) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), true
}
