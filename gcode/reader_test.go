package gcode

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineReader(t *testing.T) {
	src := "; header comment\nG21 ; mm\n\n   \nG0 X10 F100\n$H"

	r := NewLineReader(strings.NewReader(src))

	ln, err := r.Read()
	assert.NoError(t, err)
	assert.Equal(t, "G21", ln)

	ln, err = r.Read()
	assert.NoError(t, err)
	assert.Equal(t, "G0 X10 F100", ln)

	ln, err = r.Read()
	assert.NoError(t, err)
	assert.Equal(t, "$H", ln)

	ln, err = r.Read()
	assert.Equal(t, io.EOF, err)
	assert.Empty(t, ln)
}

func TestLines(t *testing.T) {
	lines, err := Lines("G90\n;only a comment\nG0 Z5\n")
	assert.NoError(t, err)
	assert.Equal(t, []string{"G90", "G0 Z5"}, lines)

	lines, err = Lines("")
	assert.NoError(t, err)
	assert.Empty(t, lines)
}
