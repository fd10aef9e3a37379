package grbl

import (
	"fmt"

	"github.com/mastercactapus/motorctl/coord"
	"github.com/mastercactapus/motorctl/gcode"
)

// Command is a line sent verbatim to the controller.
type Command string

const (
	// CommandHome runs the homing cycle.
	CommandHome Command = "$H"
	// CommandUnlock clears an alarm lock.
	CommandUnlock Command = "$X"
	// CommandSettings prints the Grbl settings.
	CommandSettings Command = "$$"
)

// DefaultFeedRate is used by a zero-value Builder.
const DefaultFeedRate = 100

// IsSentinel reports whether cmd causes no motion, and so does not need
// to wait for the controller to go idle.
func (cmd Command) IsSentinel() bool {
	return cmd == CommandUnlock || cmd == CommandSettings
}

// Builder formats commands. It never talks to the controller.
type Builder struct {
	// FeedRate is used by Move when no feed rate is given.
	FeedRate float64
}

// ParseAxis normalizes 1, 2, 3, x, y, z to X, Y, Z.
func ParseAxis(axis string) (byte, error) {
	switch axis {
	case "1", "x", "X":
		return 'X', nil
	case "2", "y", "Y":
		return 'Y', nil
	case "3", "z", "Z":
		return 'Z', nil
	}
	return 0, fmt.Errorf("%w: '%s'", ErrInvalidAxis, axis)
}

// Move returns a rapid move of one axis. If feedRate is omitted, b.FeedRate
// (or DefaultFeedRate) is used.
func (b Builder) Move(axis string, pos float64, feedRate ...float64) (Command, error) {
	a, err := ParseAxis(axis)
	if err != nil {
		return "", err
	}
	feed := b.FeedRate
	if len(feedRate) > 0 {
		feed = feedRate[0]
	}
	if feed == 0 {
		feed = DefaultFeedRate
	}
	return Command(gcode.Block{
		{W: 'G', Arg: 0},
		{W: a, Arg: pos},
		{W: 'F', Arg: feed},
	}.String()), nil
}

// SpindleSpeed returns `S<speed>`.
func (Builder) SpindleSpeed(speed float64) Command {
	return Command(gcode.Word{W: 'S', Arg: speed}.String())
}

func (Builder) Home() Command   { return CommandHome }
func (Builder) Unlock() Command { return CommandUnlock }

// SetWorkOffset returns a G92 that makes the current position read as p.
func (Builder) SetWorkOffset(p coord.Point) Command {
	return Command(gcode.Block{
		{W: 'G', Arg: 92},
		{W: 'X', Arg: p.X},
		{W: 'Y', Arg: p.Y},
		{W: 'Z', Arg: p.Z},
	}.String())
}
