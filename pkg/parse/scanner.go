package parse

import "fmt"

// Scanner is a byte cursor over fully buffered input. Peeking never moves
// the cursor; only Advance and Consume do.
type Scanner struct {
	input string
	pos   int
}

func NewScanner(input string) *Scanner {
	return &Scanner{input: input}
}

func (s *Scanner) Pos() int {
	return s.pos
}

func (s *Scanner) AtEnd() bool {
	return s.pos >= len(s.input)
}

// Peek returns the next byte, or 0 at end of input.
func (s *Scanner) Peek() byte {
	if s.AtEnd() {
		return 0
	}
	return s.input[s.pos]
}

func (s *Scanner) PeekNext() byte {
	if s.pos+1 >= len(s.input) {
		return 0
	}
	return s.input[s.pos+1]
}

func (s *Scanner) Advance() byte {
	if s.AtEnd() {
		return 0
	}
	c := s.input[s.pos]
	s.pos++
	return c
}

func (s *Scanner) SkipWhitespace() {
	for !s.AtEnd() && isSpace(s.Peek()) {
		s.pos++
	}
}

// Consume reads one byte and fails unless it is expect.
func (s *Scanner) Consume(expect byte) error {
	if s.AtEnd() {
		return s.errorAt(s.pos, fmt.Sprintf("expected '%c', found end of input", expect))
	}
	if c := s.input[s.pos]; c != expect {
		return s.errorAt(s.pos, fmt.Sprintf("expected '%c', found '%c'", expect, c))
	}
	s.pos++
	return nil
}

// errorAt builds a ParseError for the byte offset pos, filling in the line and
// column and marking errors raised at end of input as incomplete.
func (s *Scanner) errorAt(pos int, msg string) *ParseError {
	if pos > len(s.input) {
		pos = len(s.input)
	}
	line, col := 1, 1
	for i := 0; i < pos; i++ {
		if s.input[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return &ParseError{
		Position:   pos,
		Line:       line,
		Column:     col,
		Message:    msg,
		Incomplete: pos >= len(s.input),
	}
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
