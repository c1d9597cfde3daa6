package server

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"jiradialog/internal/engine"
	"jiradialog/internal/host"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

// Credentials are read from headers only, and browsers cannot set those on a
// websocket handshake, so any origin is accepted.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// StreamMessage is one frame of the dialog stream.
type StreamMessage struct {
	Type   string         `json:"type"`
	Dialog DialogResponse `json:"dialog"`
}

// registerStream serves GET {base}/dialogs/stream: the caller's shown dialogs as
// "shown" frames, then every later change until either side hangs up.
func registerStream(r chi.Router, basePath string, e engine.Engine, logger *slog.Logger) {
	r.Get(path.Join(basePath, "dialogs/stream"), func(w http.ResponseWriter, req *http.Request) {
		principal, ok := principalFromContext(req.Context())
		if !ok || principal.ActorID == "" {
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
			return
		}
		if e.Hub == nil {
			respondStatusError(w, newAPIError(http.StatusServiceUnavailable, "", "dialog stream unavailable", nil))
			return
		}
		// subscribe before the snapshot so nothing falls in between
		changes, cancel := e.Hub.Subscribe(principal.ActorID)
		defer cancel()

		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			logger.Debug("websocket upgrade failed", "actor", principal.ActorID, "err", err)
			return
		}
		defer conn.Close()

		items, err := e.Repo.ListDialogs(req.Context(), principal.ActorID)
		if err != nil {
			logger.Error("dialog stream snapshot", "actor", principal.ActorID, "err", err)
			return
		}
		for _, d := range items {
			if err := writeFrame(conn, StreamMessage{Type: host.ChangeShown, Dialog: dialogResponse(d)}); err != nil {
				return
			}
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(streamPingPeriod)
		defer ping.Stop()
		for {
			select {
			case <-done:
				return
			case c, ok := <-changes:
				if !ok {
					deadline := time.Now().Add(streamWriteWait)
					msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber lagging")
					_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
					return
				}
				if err := writeFrame(conn, StreamMessage{Type: c.Type, Dialog: streamDialog(c)}); err != nil {
					logger.Debug("dialog stream write", "actor", principal.ActorID, "err", err)
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
					return
				}
			}
		}
	})
}

func streamDialog(c host.Change) DialogResponse {
	if c.Type == host.ChangeClosed {
		return DialogResponse{DialogID: c.Dialog.DialogID, Data: map[string]any{}, Options: map[string]any{}}
	}
	return dialogResponse(c.Dialog)
}

func writeFrame(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(msg)
}

// Hijack lets the websocket upgrade through the request logger.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
