package gcode

import (
	"strconv"
	"strings"
)

// Word is a single letter address followed by its numeric argument, e.g. `X30`.
type Word struct {
	W   byte
	Arg float64
}

// FormatFloat renders f with at most prec decimals, trimming trailing zeros.
// A negative prec keeps every significant digit.
func FormatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	s = strings.TrimRight(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

// String formats the argument exactly; positions must round-trip through G92.
func (w Word) String() string {
	return string(w.W) + FormatFloat(w.Arg, -1)
}
