package gcode

import "strings"

// Block is one line of G-code.
type Block []Word

// String formats the block the way Grbl echoes it, words separated by a space.
func (b Block) String() string {
	parts := make([]string, len(b))
	for i, w := range b {
		parts[i] = w.String()
	}
	return strings.Join(parts, " ")
}
