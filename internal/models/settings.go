package models

// OverlayMode selects how the caption text reaches the frame.
type OverlayMode string

const (
	// OverlayCaption writes an ASS document and burns it in with the subtitles filter.
	OverlayCaption OverlayMode = "caption"
	// OverlayDrawText uses a single drawtext stage.
	OverlayDrawText OverlayMode = "drawtext"
	// OverlayNone renders without text.
	OverlayNone OverlayMode = "none"
)

// Anchor is the vertical placement of the caption block.
type Anchor string

const (
	AnchorBottom Anchor = "bottom"
	AnchorCenter Anchor = "center"
	AnchorTop    Anchor = "top"
)

// FontSizeMode decides whether FontSize is used as is or derived from the text length.
type FontSizeMode string

const (
	FontSizeFixed FontSizeMode = "fixed"
	FontSizeAuto  FontSizeMode = "auto"
)

// ResponseMode is how a finished render is handed back to the caller.
type ResponseMode string

const (
	ResponseURL    ResponseMode = "url"
	ResponseStream ResponseMode = "stream"
	ResponseBase64 ResponseMode = "base64"
)

// Settings is the persisted render configuration. It is stored as a flat
// key/value document; the mapstructure tags are the document keys.
type Settings struct {
	Width         int          `mapstructure:"width" json:"width"`
	Height        int          `mapstructure:"height" json:"height"`
	FontName      string       `mapstructure:"font_name" json:"font_name"`
	FontSize      int          `mapstructure:"font_size" json:"font_size"`
	FontSizeMode  FontSizeMode `mapstructure:"font_size_mode" json:"font_size_mode"`
	FontColor     string       `mapstructure:"font_color" json:"font_color"`
	OffsetY       int          `mapstructure:"offset_y" json:"offset_y"`
	DefaultText   string       `mapstructure:"default_text" json:"default_text"`
	OverlayMode   OverlayMode  `mapstructure:"overlay_mode" json:"overlay_mode"`
	Anchor        Anchor       `mapstructure:"anchor" json:"anchor"`
	MaxLineChars  int          `mapstructure:"max_line_chars" json:"max_line_chars"`
	FadeInSeconds float64      `mapstructure:"fade_in_seconds" json:"fade_in_seconds"`
	Jitter        bool         `mapstructure:"jitter" json:"jitter"`
	ResponseMode  ResponseMode `mapstructure:"response_mode" json:"response_mode"`
}
