// Package filterchain builds the ordered ffmpeg filter stages of a render
// and flattens them into filtergraph strings.
package filterchain

import (
	"strings"
)

// Option is one key=value pair of a stage. Order is preserved when flattened.
type Option struct {
	Key   string
	Value string
}

// Stage is a single filter.
type Stage struct {
	Name string
	Args []string
	Opts []Option
}

// NewStage returns a stage with positional arguments.
func NewStage(name string, args ...string) Stage {
	return Stage{Name: name, Args: args}
}

// With appends an option and returns the stage.
func (s Stage) With(key, value string) Stage {
	s.Opts = append(s.Opts, Option{Key: key, Value: value})
	return s
}

// Option returns the value of key and whether it is set.
func (s Stage) Option(key string) (string, bool) {
	for _, o := range s.Opts {
		if o.Key == key {
			return o.Value, true
		}
	}
	return "", false
}

// String formats the stage for a filtergraph. Values are expected to be
// escaped at option level already; graph level escaping is applied here.
func (s Stage) String() string {
	parts := make([]string, 0, len(s.Args)+len(s.Opts))
	for _, a := range s.Args {
		parts = append(parts, EscapeGraph(a))
	}
	for _, o := range s.Opts {
		parts = append(parts, o.Key+"="+EscapeGraph(o.Value))
	}
	if len(parts) == 0 {
		return s.Name
	}
	return s.Name + "=" + strings.Join(parts, ":")
}

// Join flattens stages into a single comma separated chain.
func Join(stages []Stage) string {
	out := make([]string, 0, len(stages))
	for _, s := range stages {
		if f := s.String(); f != "" {
			out = append(out, f)
		}
	}
	return strings.Join(out, ",")
}

// Names lists the stage names in order.
func Names(stages []Stage) []string {
	out := make([]string, 0, len(stages))
	for _, s := range stages {
		out = append(out, s.Name)
	}
	return out
}

var graphEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)

var optionEscaper = strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`, `"`, `\"`)

// EscapeGraph escapes the characters the filtergraph parser treats specially.
func EscapeGraph(v string) string {
	return graphEscaper.Replace(v)
}

// EscapeOption escapes a value for a filter's option parser. Use it for
// file paths; overlay text has its own preparers.
func EscapeOption(v string) string {
	return optionEscaper.Replace(v)
}
