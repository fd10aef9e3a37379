package gcode

import (
	"bufio"
	"io"
	"strings"
)

// LineReader reads G-code source one command at a time.
//
// Everything after a `;` is a comment. Blank and comment-only lines are skipped.
type LineReader struct{ br *bufio.Reader }

func NewLineReader(r io.Reader) *LineReader {
	if br, ok := r.(*bufio.Reader); ok {
		return &LineReader{br: br}
	}

	return &LineReader{br: bufio.NewReader(r)}
}

// StripComment removes a trailing `;` comment and surrounding whitespace.
func StripComment(s string) string {
	return strings.TrimSpace(strings.SplitN(s, ";", 2)[0])
}

// Read returns the next non-empty command, or io.EOF.
func (p *LineReader) Read() (string, error) {
	for {
		s, err := p.br.ReadString('\n')
		if err == io.EOF && s != "" {
			err = nil
		}
		if err != nil {
			return "", err
		}

		s = StripComment(s)
		if s == "" {
			continue
		}

		return s, nil
	}
}
