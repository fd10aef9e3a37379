package gcode

import (
	"io"
	"strings"
)

// Lines returns every command in data, in order.
func Lines(data string) ([]string, error) {
	r := NewLineReader(strings.NewReader(data))
	var res []string
	for {
		ln, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		res = append(res, ln)
	}
	return res, nil
}
