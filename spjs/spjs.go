// Package spjs reaches a serial port through a Serial Port JSON Server
// websocket bridge, for controllers attached to another host.
package spjs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var lastID int64

func nextID() string {
	id := atomic.AddInt64(&lastID, 1)
	return "cmd_" + strconv.FormatInt(id, 36)
}

// DataFrame is data read from a serial port.
type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}

// ErrorMessage is reported by the server for a failed request.
type ErrorMessage struct {
	Error string
}

// JSON is the payload of a `sendjson` request.
type JSON struct {
	Port string `json:"P"`
	Data []Data
}
type Data struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

// Port is one serial port opened through the bridge.
type Port struct {
	ws   *websocket.Conn
	name string

	readTimeout time.Duration

	wMx     sync.Mutex
	data    chan []byte
	readBuf []byte

	closeOnce sync.Once
	done      chan struct{}

	errMx sync.Mutex
	err   error
}

// Dial connects to the bridge at url and opens port at baud.
func Dial(url, port string, baud int, readTimeout time.Duration) (*Port, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", url, err)
	}
	p := &Port{
		ws:          ws,
		name:        port,
		readTimeout: readTimeout,
		data:        make(chan []byte, 1000),
		done:        make(chan struct{}),
	}
	go p.readLoop()

	err = p.writeString("open " + port + " " + strconv.Itoa(baud) + " default")
	if err != nil {
		ws.Close()
		return nil, err
	}
	return p, nil
}

func (p *Port) readLoop() {
	defer p.closeOnce.Do(func() { close(p.done) })
	for {
		_, data, err := p.ws.ReadMessage()
		if err != nil {
			p.setErr(err)
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// ignore echo messages
			continue
		}

		var msg map[string]json.RawMessage
		err = json.Unmarshal(data, &msg)
		if err != nil {
			continue
		}
		if msg["Error"] != nil {
			var e ErrorMessage
			if json.Unmarshal(data, &e) == nil && e.Error != "" {
				p.setErr(errors.New("spjs: " + e.Error))
				return
			}
		}
		if msg["D"] == nil || msg["P"] == nil {
			continue
		}
		var frame DataFrame
		err = json.Unmarshal(data, &frame)
		if err != nil || frame.Port != p.name {
			continue
		}
		select {
		case p.data <- []byte(frame.Data):
		case <-p.done:
			return
		}
	}
}

func (p *Port) writeString(data string) error {
	p.wMx.Lock()
	defer p.wMx.Unlock()
	return p.ws.WriteMessage(websocket.TextMessage, []byte(data))
}

// Write sends b to the serial port as one `sendjson` request.
func (p *Port) Write(b []byte) (int, error) {
	select {
	case <-p.done:
		return 0, p.closedErr()
	default:
	}
	data, err := json.Marshal(JSON{
		Port: p.name,
		Data: []Data{{Data: string(b), ID: nextID()}},
	})
	if err != nil {
		return 0, err
	}
	err = p.writeString("sendjson " + string(data))
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Read returns received data. With a read timeout set, it returns (0, nil)
// when nothing arrives in time.
func (p *Port) Read(b []byte) (int, error) {
	if len(p.readBuf) == 0 {
		var timeout <-chan time.Time
		if p.readTimeout > 0 {
			t := time.NewTimer(p.readTimeout)
			defer t.Stop()
			timeout = t.C
		}
		select {
		case p.readBuf = <-p.data:
		case <-p.done:
			return 0, p.closedErr()
		case <-timeout:
			return 0, nil
		}
	}

	n := copy(b, p.readBuf)
	p.readBuf = p.readBuf[n:]
	return n, nil
}

// ResetInputBuffer drops data received but not yet read.
func (p *Port) ResetInputBuffer() error {
	p.readBuf = nil
	for {
		select {
		case <-p.data:
		default:
			return nil
		}
	}
}

// setErr keeps the first error that ended the read loop.
func (p *Port) setErr(err error) {
	p.errMx.Lock()
	defer p.errMx.Unlock()
	if p.err == nil {
		p.err = err
	}
}

func (p *Port) closedErr() error {
	p.errMx.Lock()
	defer p.errMx.Unlock()
	if p.err != nil {
		return p.err
	}
	return errors.New("spjs: connection closed")
}

// Close closes the serial port on the bridge and disconnects.
func (p *Port) Close() error {
	err := p.writeString("close " + p.name)
	p.closeOnce.Do(func() { close(p.done) })
	cerr := p.ws.Close()
	if err != nil {
		return err
	}
	return cerr
}
