package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/adwski/drawing-board/backend/service"
	"github.com/adwski/drawing-board/backend/storage/memory"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline  = 10 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type RoomService interface {
	Rooms() []memory.RoomInfo
	Stats() service.Stats
}

type GenericResponse struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type Server struct {
	logger zerolog.Logger
	svc    RoomService
	*http.Server
}

type Config struct {
	Logger      *zerolog.Logger
	RoomService RoomService
	// WebSocket serves the realtime endpoint at /ws.
	WebSocket  http.Handler
	ListenAddr string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "api-server").Logger(),
		svc:    cfg.RoomService,
	}

	r := mux.NewRouter()
	r.Use(srv.logRequests)

	if cfg.WebSocket != nil {
		r.Path("/ws").Handler(cfg.WebSocket)
	}
	api := r.PathPrefix("/api").Subrouter()
	api.Use(allowOrigin)
	api.Methods(http.MethodGet).Path("/rooms").HandlerFunc(srv.listRooms)
	api.Methods(http.MethodGet).Path("/stats").HandlerFunc(srv.stats)
	api.Methods(http.MethodGet).Path("/health").HandlerFunc(health)
	r.Methods(http.MethodOptions).PathPrefix("/").HandlerFunc(corsHandler)

	srv.Server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	return srv
}

func (srv *Server) logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(handler, w, r)
		srv.logger.Debug().
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Int("status", m.Code).
			Dur("duration", m.Duration).
			Int64("written", m.Written).
			Msg("handled")
	})
}

func allowOrigin(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		handler.ServeHTTP(w, r)
	})
}

func corsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) listRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := srv.svc.Rooms()
	if rooms == nil {
		rooms = []memory.RoomInfo{}
	}
	srv.writeJSON(w, http.StatusOK, &GenericResponse{Data: rooms})
}

func (srv *Server) stats(w http.ResponseWriter, _ *http.Request) {
	srv.writeJSON(w, http.StatusOK, &GenericResponse{Data: srv.svc.Stats()})
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeBytes(w, http.StatusOK, []byte(`{"message":"OK"}`))
}

func (srv *Server) writeJSON(w http.ResponseWriter, code int, resp *GenericResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, code, b)
}

func writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

// Run serves until ctx is done, then shuts down gracefully.
// A listen or serve failure is reported on errc.
func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer wg.Done()

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		errc <- errors.Join(ErrUnexpected, err)
		return
	}
	srv.logger.Info().Str("addr", ln.Addr().String()).Msg("server started")

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(ln)
	}()

	select {
	case err = <-served:
		// Serve only returns ErrServerClosed after Shutdown, which has not happened yet
		errc <- errors.Join(ErrUnexpected, err)
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err = srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
		<-served
	}
	srv.logger.Debug().Msg("server stopped")
}
