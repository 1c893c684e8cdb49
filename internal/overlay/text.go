// Package overlay prepares user supplied caption text for the two ways it
// is burned into a render: an ASS caption document or a drawtext stage.
package overlay

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultText replaces empty or whitespace-only input.
const DefaultText = "Link in Bio"

// LineBreak is the explicit line break of the ASS grammar.
const LineBreak = `\N`

var newlineRe = regexp.MustCompile(`\r?\n`)

var captionEscaper = strings.NewReplacer(`\`, `\\`, `{`, `\{`, `}`, `\}`)

var drawTextEscaper = strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`, `"`, `\"`)

// PrepareForCaption returns text ready to be placed after the override
// block of a Dialogue line. Lines are wrapped on the raw text when
// maxLineChars > 0, each line is escaped, and the lines are joined with \N.
// Embedded newlines become \N as well.
func PrepareForCaption(text string, maxLineChars int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		text = DefaultText
	}

	var lines []string
	for _, paragraph := range newlineRe.Split(text, -1) {
		if maxLineChars > 0 {
			lines = append(lines, WrapLines(paragraph, maxLineChars)...)
			continue
		}
		lines = append(lines, paragraph)
	}

	for i, line := range lines {
		lines[i] = captionEscaper.Replace(line)
	}
	return strings.Join(lines, LineBreak)
}

// PrepareForDirectDraw escapes text for the drawtext "text" option. The
// result is always a single line.
func PrepareForDirectDraw(text string) string {
	text = strings.TrimSpace(newlineRe.ReplaceAllString(text, " "))
	if text == "" {
		text = DefaultText
	}
	return drawTextEscaper.Replace(text)
}

// Wrap greedily wraps text at max runes per line and joins the lines with \N.
func Wrap(text string, max int) string {
	return strings.Join(WrapLines(text, max), LineBreak)
}

// WrapLines greedily packs words into lines of at most max runes. A word
// longer than max is placed alone on its own line and never split. A
// non-positive max disables wrapping.
func WrapLines(text string, max int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}
	if max <= 0 {
		return []string{strings.Join(words, " ")}
	}

	var (
		lines   []string
		current strings.Builder
		width   int
	)
	for _, word := range words {
		n := utf8.RuneCountInString(word)
		if width > 0 && width+1+n > max {
			lines = append(lines, current.String())
			current.Reset()
			width = 0
		}
		if width > 0 {
			current.WriteByte(' ')
			width++
		}
		current.WriteString(word)
		width += n
	}
	return append(lines, current.String())
}

// ChooseFontSize picks a font size from the rune length of text. Longer
// text never gets a larger size.
func ChooseFontSize(text string) int {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	switch {
	case n <= 35:
		return 72
	case n <= 60:
		return 64
	case n <= 90:
		return 56
	case n <= 120:
		return 48
	default:
		return 42
	}
}
