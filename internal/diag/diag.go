package diag

// Diagnostics are modeled after clang's error format: each message
// optionally carries the file, a 1-based line, a 0-based column, and
// the text of the offending line.

import (
	"fmt"
	"sort"
	"strings"
)

type Kind uint8

const (
	Error Kind = iota
	Warning
	Info
)

func (k Kind) String() string {
	switch k {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return "info"
	}
}

type Location struct {
	File     string
	Line     int // 1-based
	Column   int // 0-based, in bytes
	Length   int // in bytes
	LineText string
}

type Msg struct {
	Kind     Kind
	Text     string
	Location *Location
}

func (m Msg) String() string {
	if m.Location == nil {
		return fmt.Sprintf("%s: %s", m.Kind, m.Text)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s",
		m.Location.File, m.Location.Line, m.Location.Column, m.Kind, m.Text)
}

func HasErrors(msgs []Msg) bool {
	for _, m := range msgs {
		if m.Kind == Error {
			return true
		}
	}
	return false
}

// Sort orders messages by file, then line, then column, so output is
// stable regardless of discovery order.
func Sort(msgs []Msg) {
	sort.SliceStable(msgs, func(i int, j int) bool {
		li, lj := msgs[i].Location, msgs[j].Location
		switch {
		case li == nil && lj == nil:
			return msgs[i].Text < msgs[j].Text
		case li == nil:
			return true
		case lj == nil:
			return false
		case li.File != lj.File:
			return li.File < lj.File
		case li.Line != lj.Line:
			return li.Line < lj.Line
		default:
			return li.Column < lj.Column
		}
	})
}

// Render joins messages one per line, the shape the CLI prints.
func Render(msgs []Msg) string {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = m.String()
	}
	return strings.Join(lines, "\n")
}
