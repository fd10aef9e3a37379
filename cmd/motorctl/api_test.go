package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mastercactapus/motorctl/coord"
	"github.com/mastercactapus/motorctl/gcode"
	"github.com/mastercactapus/motorctl/machine/grbl"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMotor struct {
	sent   []string
	status grbl.Status
	err    error
}

func (m *fakeMotor) Send(ctx context.Context, cmd grbl.Command) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, string(cmd))
	return "ok", nil
}

func (m *fakeMotor) Move(ctx context.Context, axis string, pos float64, feedRate ...float64) (string, error) {
	cmd, err := grbl.Builder{}.Move(axis, pos, feedRate...)
	if err != nil {
		return "", err
	}
	return m.Send(ctx, cmd)
}

func (m *fakeMotor) Home(ctx context.Context) (string, error) {
	return m.Send(ctx, grbl.CommandHome)
}

func (m *fakeMotor) Unlock(ctx context.Context) (string, error) {
	return m.Send(ctx, grbl.CommandUnlock)
}

func (m *fakeMotor) SetSpindleSpeed(ctx context.Context, speed float64) (string, error) {
	return m.Send(ctx, grbl.Builder{}.SpindleSpeed(speed))
}

func (m *fakeMotor) Status(ctx context.Context, report bool) (grbl.Status, error) {
	return m.status, m.err
}

func (m *fakeMotor) StreamGCode(ctx context.Context, r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	lines, err := gcode.Lines(string(data))
	if err != nil {
		return 0, err
	}
	for i, ln := range lines {
		_, err = m.Send(ctx, grbl.Command(ln))
		if err != nil {
			return i, err
		}
	}
	return len(lines), nil
}

func testAPI(m Motor) *api {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return newAPI(m, nil, log)
}

func postForm(h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPI_Move(t *testing.T) {
	m := &fakeMotor{}
	a := testAPI(m)

	rec := postForm(a, "/api/move", url.Values{"axis": {"x"}, "position": {"30"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":"ok"}`, rec.Body.String())

	rec = postForm(a, "/api/move", url.Values{"axis": {"3"}, "position": {"-2"}, "feedRate": {"500"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postForm(a, "/api/move", url.Values{"axis": {"w"}, "position": {"1"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postForm(a, "/api/move", url.Values{"axis": {"x"}, "position": {"far"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []string{"G0 X30 F100", "G0 Z-2 F500"}, m.sent)
}

func TestAPI_Commands(t *testing.T) {
	m := &fakeMotor{}
	a := testAPI(m)

	assert.Equal(t, http.StatusOK, postForm(a, "/api/home", nil).Code)
	assert.Equal(t, http.StatusOK, postForm(a, "/api/unlock", nil).Code)
	assert.Equal(t, http.StatusOK, postForm(a, "/api/spindle", url.Values{"speed": {"1000"}}).Code)
	assert.Equal(t, http.StatusBadRequest, postForm(a, "/api/spindle", nil).Code)
	assert.Equal(t, http.StatusOK, postForm(a, "/api/command", url.Values{"command": {"$$"}}).Code)
	assert.Equal(t, http.StatusBadRequest, postForm(a, "/api/command", nil).Code)

	assert.Equal(t, []string{"$H", "$X", "S1000", "$$"}, m.sent)
}

func TestAPI_Run(t *testing.T) {
	m := &fakeMotor{}
	a := testAPI(m)

	req := httptest.NewRequest("POST", "/api/run", strings.NewReader("G21 ; mm\n\nG0 X1 F100\n"))
	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":"ok","sent":2}`, rec.Body.String())
	assert.Equal(t, []string{"G21", "G0 X1 F100"}, m.sent)
}

func TestAPI_Status(t *testing.T) {
	m := &fakeMotor{status: grbl.Status{State: "Idle", Idle: true, WPos: coord.Point{X: 1}}}
	a := testAPI(m)

	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, httptest.NewRequest("GET", "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stat grbl.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stat))
	assert.Equal(t, m.status, stat)

	rec = httptest.NewRecorder()
	a.ServeHTTP(rec, httptest.NewRequest("POST", "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAPI_Errors(t *testing.T) {
	cases := map[error]int{
		grbl.ErrNotConnected:                           http.StatusServiceUnavailable,
		fmt.Errorf("G0: %w", grbl.ErrTransport):        http.StatusServiceUnavailable,
		fmt.Errorf("x: %w", grbl.ErrStatusUnavailable): http.StatusGatewayTimeout,
		context.DeadlineExceeded:                       http.StatusInternalServerError,
	}
	for err, code := range cases {
		a := testAPI(&fakeMotor{err: err})
		rec := httptest.NewRecorder()
		a.ServeHTTP(rec, httptest.NewRequest("GET", "/api/status", nil))
		assert.Equal(t, code, rec.Code, err.Error())
	}
}
