package coord

import (
	"errors"
	"strconv"
	"strings"
)

// Point is a position on the X, Y and Z axes.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FromSlice builds a Point from exactly three values.
func FromSlice(v []float64) (Point, error) {
	if len(v) != 3 {
		return Point{}, errors.New("invalid number of elements")
	}
	return Point{X: v[0], Y: v[1], Z: v[2]}, nil
}

// Parse reads a comma separated `x,y,z` triple.
func Parse(data string) (p Point, err error) {
	parts := strings.Split(data, ",")
	if len(parts) != 3 {
		return p, errors.New("invalid number of elements")
	}
	p.X, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return p, err
	}
	p.Y, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return p, err
	}
	p.Z, err = strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return p, err
	}
	return p, nil
}

// Slice returns the coordinates in X, Y, Z order.
func (p Point) Slice() []float64 { return []float64{p.X, p.Y, p.Z} }

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}

func (p Point) String() string {
	return "[" + strconv.FormatFloat(p.X, 'f', -1, 64) + ", " +
		strconv.FormatFloat(p.Y, 'f', -1, 64) + ", " +
		strconv.FormatFloat(p.Z, 'f', -1, 64) + "]"
}
