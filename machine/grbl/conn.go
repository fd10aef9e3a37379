package grbl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mastercactapus/motorctl/machine/serial"
)

var (
	wakeUp      = []byte("\r\n\r\n")
	statusQuery = []byte("?\n")
)

// conn does line oriented I/O over a serial port.
type conn struct {
	port serial.Port

	readBuf []byte
	pending []byte
}

func newConn(port serial.Port) *conn {
	return &conn{
		port:    port,
		readBuf: make([]byte, 256),
	}
}

func transportErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

func (c *conn) write(p []byte) error {
	_, err := c.port.Write(p)
	if err != nil {
		return transportErr("write", err)
	}
	return nil
}

func (c *conn) writeLine(line string) error {
	return c.write([]byte(line + "\n"))
}

// resetInput drops everything received so far, buffered here or in the driver.
func (c *conn) resetInput() error {
	c.pending = c.pending[:0]
	err := c.port.ResetInputBuffer()
	if err != nil {
		return transportErr("reset input", err)
	}
	return nil
}

// readLine blocks until a full line is available or ctx is done.
//
// Drivers with a read timeout report an expired read as (0, io.EOF) or (0, nil);
// both just mean "no data yet".
func (c *conn) readLine(ctx context.Context) (string, error) {
	for {
		if i := bytes.IndexByte(c.pending, '\n'); i >= 0 {
			line := string(c.pending[:i])
			c.pending = c.pending[i+1:]
			return strings.TrimSpace(line), nil
		}
		err := ctx.Err()
		if err != nil {
			return "", err
		}

		n, err := c.port.Read(c.readBuf)
		c.pending = append(c.pending, c.readBuf[:n]...)
		if err != nil && err != io.EOF {
			return "", transportErr("read", err)
		}
	}
}

func (c *conn) close() error {
	err := c.port.Close()
	if err != nil {
		return transportErr("close", err)
	}
	return nil
}
