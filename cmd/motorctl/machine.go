package main

import (
	"context"
	"io"

	"github.com/mastercactapus/motorctl/machine/grbl"
)

// Motor is the part of a controller session the HTTP API drives.
type Motor interface {
	Move(ctx context.Context, axis string, pos float64, feedRate ...float64) (string, error)
	Home(ctx context.Context) (string, error)
	Unlock(ctx context.Context) (string, error)
	SetSpindleSpeed(ctx context.Context, speed float64) (string, error)
	Send(ctx context.Context, cmd grbl.Command) (string, error)
	Status(ctx context.Context, report bool) (grbl.Status, error)
	StreamGCode(ctx context.Context, r io.Reader) (int, error)
}

var _ Motor = &grbl.Controller{}
