package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/chaz8081/mixerctl/internal/link"
	"github.com/chaz8081/mixerctl/internal/link/protocol"
)

const (
	requestTimeout = 30 * time.Second
	wsWriteWait    = 5 * time.Second
)

// Server is the HTTP control API for a Session.
type Server struct {
	session  *Session
	router   chi.Router
	upgrader websocket.Upgrader
}

// NewServer builds the router for s.
func NewServer(s *Session) *Server {
	srv := &Server{
		session: s,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok", "service": "mixerctl"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/ws", srv.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/status", srv.handleStatus)
			r.Get("/devices", srv.handleDevices)
			r.Post("/connect", srv.handleConnect)
			r.Post("/disconnect", srv.handleDisconnect)

			r.Route("/manual", func(r chi.Router) {
				r.Post("/start", srv.handleManualStart)
				r.Post("/stop", srv.handleManualStop)
			})
			r.Route("/auto", func(r chi.Router) {
				r.Post("/start", srv.handleAutoStart)
				r.Post("/stop", srv.handleAutoStop)
			})

			if s.Telemetry() != nil {
				r.Get("/telemetry", srv.handleTelemetry)
			}
		})
	})

	srv.router = r
	return srv
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	srv.router.ServeHTTP(w, r)
}

// Response helpers
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("[API] write response", "error", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]any{
		"error": message,
		"code":  status,
	})
}

// errorStatus maps session errors onto HTTP status codes.
func errorStatus(err error) int {
	var fe *protocol.FieldError
	switch {
	case errors.As(err, &fe), errors.Is(err, ErrIncomplete):
		return http.StatusBadRequest
	case errors.Is(err, link.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, link.ErrAdapterDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, link.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, link.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, link.ErrTransport):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (srv *Server) fail(w http.ResponseWriter, err error) {
	errorResponse(w, errorStatus(err), err.Error())
}

func (srv *Server) ok(w http.ResponseWriter) {
	jsonResponse(w, http.StatusOK, srv.session.Snapshot())
}

func (srv *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	srv.ok(w)
}

func (srv *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := srv.session.Devices()
	if err != nil {
		srv.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"devices": devices})
}

func (srv *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := srv.session.Connect(r.Context()); err != nil {
		srv.fail(w, err)
		return
	}
	srv.ok(w)
}

func (srv *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	srv.session.Disconnect()
	srv.ok(w)
}

func (srv *Server) handleManualStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed *int `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Speed == nil {
		errorResponse(w, http.StatusBadRequest, "speed is required")
		return
	}
	if err := srv.session.Modes().StartManual(*req.Speed); err != nil {
		srv.fail(w, err)
		return
	}
	srv.ok(w)
}

func (srv *Server) handleManualStop(w http.ResponseWriter, r *http.Request) {
	if err := srv.session.Modes().StopManual(); err != nil {
		srv.fail(w, err)
		return
	}
	srv.ok(w)
}

func (srv *Server) handleAutoStart(w http.ResponseWriter, r *http.Request) {
	var form AutoForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := srv.session.Modes().StartAuto(form); err != nil {
		srv.fail(w, err)
		return
	}
	srv.ok(w)
}

func (srv *Server) handleAutoStop(w http.ResponseWriter, r *http.Request) {
	if err := srv.session.Modes().StopAuto(); err != nil {
		srv.fail(w, err)
		return
	}
	srv.ok(w)
}

func (srv *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	h := srv.session.Telemetry()
	resp := map[string]any{"samples": h.Samples()}
	if latest, ok := h.Latest(); ok {
		resp["latest"] = latest
	}
	jsonResponse(w, http.StatusOK, resp)
}

// handleWebSocket streams every published Display until the client goes away
// or the session closes.
func (srv *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("[API] websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := srv.session.Poller().Watch()
	defer cancel()

	// Reads only detect the peer closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-srv.session.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case d, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(d); err != nil {
				slog.Debug("[API] websocket write failed", "error", err)
				return
			}
		}
	}
}
