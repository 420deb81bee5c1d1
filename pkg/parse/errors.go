package parse

import (
	"errors"
	"fmt"
	"strings"
)

// ParseError reports malformed input. Position is a byte offset; Line and
// Column are 1-based.
type ParseError struct {
	Position int
	Line     int
	Column   int
	Message  string

	// Incomplete is set when the error was raised at end of input, meaning
	// more text could still turn the input into a valid expression.
	Incomplete bool
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Column, e.Message)
}

// IsIncomplete reports whether err is a ParseError raised at end of input.
func IsIncomplete(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe) && pe.Incomplete
}

// Snippet renders a ParseError against its source with one line of context
// on each side and a caret under the offending column:
//
//	parse error at 1:5: unexpected character '$'
//
//	  1 | 1 + $
//	    |     ^
//
// Any other error is returned as its plain message.
func Snippet(err error, src string) string {
	var pe *ParseError
	if !errors.As(err, &pe) {
		return err.Error()
	}

	lines := strings.Split(src, "\n")
	line := pe.Line
	if line < 1 {
		line = 1
	}
	if line > len(lines) {
		line = len(lines)
	}

	var b strings.Builder
	b.WriteString(pe.Error())
	b.WriteString("\n\n")

	first := max(line-1, 1)
	last := min(line+1, len(lines))
	width := len(fmt.Sprint(last))
	for n := first; n <= last; n++ {
		fmt.Fprintf(&b, "  %*d | %s\n", width, n, lines[n-1])
		if n == line {
			col := min(max(pe.Column, 1), len(lines[n-1])+1)
			fmt.Fprintf(&b, "  %s | %s^\n", strings.Repeat(" ", width), strings.Repeat(" ", col-1))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
