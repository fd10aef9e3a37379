package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/mastercactapus/motorctl/machine/grbl"
	"github.com/sirupsen/logrus"
)

const statusChannel = "/events/status"

// statusEvents fans status reports out to server-sent event clients.
type statusEvents struct {
	sse *sse.Server
	log logrus.FieldLogger
}

func newStatusEvents(logger *logrus.Logger) *statusEvents {
	return &statusEvents{
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(logger.WriterLevel(logrus.DebugLevel), "sse: ", 0),
		}),
		log: logger,
	}
}

func (e *statusEvents) publish(stat grbl.Status) {
	data, err := json.Marshal(stat)
	if err != nil {
		e.log.WithError(err).Error("marshal status")
		return
	}
	e.sse.SendMessage(statusChannel, sse.SimpleMessage(string(data)))
}

func (e *statusEvents) Shutdown() { e.sse.Shutdown() }

type api struct {
	http.Handler
	m   Motor
	log logrus.FieldLogger
}

func newAPI(m Motor, events *statusEvents, logger logrus.FieldLogger) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		m:       m,
		log:     logger,
	}

	r.HandleFunc("/api/status", a.status).Methods("GET")
	r.HandleFunc("/api/move", a.move).Methods("POST")
	r.HandleFunc("/api/home", a.home).Methods("POST")
	r.HandleFunc("/api/unlock", a.unlock).Methods("POST")
	r.HandleFunc("/api/spindle", a.spindle).Methods("POST")
	r.HandleFunc("/api/command", a.command).Methods("POST")
	r.HandleFunc("/api/run", a.run).Methods("POST")
	if events != nil {
		r.PathPrefix("/events/").Handler(events.sse)
	}

	return a
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, grbl.ErrInvalidAxis):
		return http.StatusBadRequest
	case errors.Is(err, grbl.ErrNotConnected), errors.Is(err, grbl.ErrTransport):
		return http.StatusServiceUnavailable
	case errors.Is(err, grbl.ErrStatusUnavailable):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (a *api) fail(w http.ResponseWriter, req *http.Request, err error) {
	a.log.WithError(err).Errorf("%s %s", req.Method, req.URL.Path)
	http.Error(w, err.Error(), errorStatus(err))
}

type commandResponse struct {
	Response string `json:"response"`
	Sent     int    `json:"sent,omitempty"`
}

func (a *api) respond(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		a.log.WithError(err).Error("encode response")
	}
}

func (a *api) status(w http.ResponseWriter, req *http.Request) {
	stat, err := a.m.Status(req.Context(), false)
	if err != nil {
		a.fail(w, req, err)
		return
	}
	a.respond(w, stat)
}

func (a *api) move(w http.ResponseWriter, req *http.Request) {
	pos, err := strconv.ParseFloat(req.FormValue("position"), 64)
	if err != nil {
		http.Error(w, "position: "+err.Error(), http.StatusBadRequest)
		return
	}
	var feed []float64
	if s := req.FormValue("feedRate"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			http.Error(w, "feedRate: "+err.Error(), http.StatusBadRequest)
			return
		}
		feed = append(feed, f)
	}

	resp, err := a.m.Move(req.Context(), req.FormValue("axis"), pos, feed...)
	if err != nil {
		a.fail(w, req, err)
		return
	}
	a.respond(w, commandResponse{Response: resp})
}

func (a *api) home(w http.ResponseWriter, req *http.Request) {
	resp, err := a.m.Home(req.Context())
	if err != nil {
		a.fail(w, req, err)
		return
	}
	a.respond(w, commandResponse{Response: resp})
}

func (a *api) unlock(w http.ResponseWriter, req *http.Request) {
	resp, err := a.m.Unlock(req.Context())
	if err != nil {
		a.fail(w, req, err)
		return
	}
	a.respond(w, commandResponse{Response: resp})
}

func (a *api) spindle(w http.ResponseWriter, req *http.Request) {
	speed, err := strconv.ParseFloat(req.FormValue("speed"), 64)
	if err != nil {
		http.Error(w, "speed: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := a.m.SetSpindleSpeed(req.Context(), speed)
	if err != nil {
		a.fail(w, req, err)
		return
	}
	a.respond(w, commandResponse{Response: resp})
}

func (a *api) command(w http.ResponseWriter, req *http.Request) {
	cmd := strings.TrimSpace(req.FormValue("command"))
	if cmd == "" {
		http.Error(w, "command is required", http.StatusBadRequest)
		return
	}
	resp, err := a.m.Send(req.Context(), grbl.Command(cmd))
	if err != nil {
		a.fail(w, req, err)
		return
	}
	a.respond(w, commandResponse{Response: resp})
}

// run streams the request body as G-code, one command per line.
func (a *api) run(w http.ResponseWriter, req *http.Request) {
	n, err := a.m.StreamGCode(req.Context(), req.Body)
	if err != nil {
		a.fail(w, req, err)
		return
	}
	a.respond(w, commandResponse{Response: "ok", Sent: n})
}
