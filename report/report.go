// Package report accumulates the findings of a freshness check as ordered
// text lines.
package report

import (
	"fmt"
	"io"
	"strings"
)

// LabelWidth is the width of the field name column, colon included.
const LabelWidth = 16

// Report is an append-only list of lines. When created with an echo writer
// every line is also written there as soon as it is added.
type Report struct {
	echo  io.Writer
	lines []string
}

// New returns an empty Report. Pass nil to disable echoing.
func New(echo io.Writer) *Report {
	return &Report{echo: echo}
}

// AddLine appends a line of text to the report.
func (r *Report) AddLine(s string) {
	if r.echo != nil {
		_, _ = fmt.Fprintln(r.echo, s)
	}
	r.lines = append(r.lines, s)
}

// AddField appends a "name: value" line with the name left-justified in a
// LabelWidth column. Longer names are not truncated.
func (r *Report) AddField(name string, value interface{}) {
	r.AddLine(fmt.Sprintf("%-*s", LabelWidth, name+":") + fmt.Sprint(value))
}

// Lines returns a copy of the lines added so far.
func (r *Report) Lines() []string {
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

func (r *Report) Len() int {
	return len(r.lines)
}

// String renders the report, one line per row with a trailing newline.
func (r *Report) String() string {
	return strings.Join(r.lines, "\n") + "\n"
}
