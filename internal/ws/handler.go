// Package ws streams bus messages (logs, run state, claims) to websocket clients.
package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"freebies_claimer/internal/logbus"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type Handler struct {
	bus          *logbus.Bus
	allowOrigins []string
	upgrader     websocket.Upgrader
}

func NewHandler(bus *logbus.Bus, allowOrigins []string) *Handler {
	h := &Handler{
		bus:          bus,
		allowOrigins: allowOrigins,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: h.checkOrigin,
	}
	return h
}

// ServeHTTP replays the bus backlog, then forwards live messages. The optional
// "types" query parameter (comma separated) restricts which message types are sent.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		http.Error(w, "log stream unavailable", http.StatusServiceUnavailable)
		return
	}
	types := parseTypes(r.URL.Query().Get("types"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, cancel := h.bus.Subscribe(256, types...)
	defer cancel()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	for _, msg := range h.bus.Snapshot(types...) {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case msg, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func parseTypes(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
