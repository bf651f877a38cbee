// Package server exposes the edit engine over a minimal JSON HTTP API on
// the loopback interface. One request at a time is enough for correctness;
// concurrent requests serialize on the engine's lock.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oliwoli/edlgen/internal/config"
	"github.com/oliwoli/edlgen/internal/engine"
)

// Server wraps the HTTP listener for one engine.
type Server struct {
	eng  *engine.Engine
	srv  *http.Server
	ln   net.Listener
	addr string
}

func New(eng *engine.Engine, port uint16) *Server {
	s := &Server{
		eng:  eng,
		addr: fmt.Sprintf("127.0.0.1:%d", port),
	}
	s.srv = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Handler builds the route table. Exposed so tests can mount the mux on
// their own test server instead of calling Listen.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", s.jsonEndpoint(s.handleStart))
	mux.HandleFunc("/log", s.jsonEndpoint(s.handleLog))
	mux.HandleFunc("/end", s.jsonEndpoint(s.handleEnd))
	mux.HandleFunc("/select-src", s.jsonEndpoint(s.handleSelectSrc))
	mux.HandleFunc("/edl-recording-state", s.handleState)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NotFound", "command not found")
	})
	return mux
}

// Listen binds the loopback socket. Split from Serve so the supervisor can
// report bind errors synchronously.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("could not start HTTP listener on %s: %w", s.addr, err)
	}
	s.ln = ln
	log.Printf("server listening at http://%s", s.addr)
	return nil
}

// Serve blocks until the listener closes.
func (s *Server) Serve() error {
	if err := s.srv.Serve(s.ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close stops accepting requests; in-flight requests finish first.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// Addr returns the bound address, valid after Listen.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// jsonEndpoint gates method and content type for the POST routes.
func (s *Server) jsonEndpoint(next func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "ProtocolError", "only POST is allowed")
			return
		}
		ct := r.Header.Get("Content-Type")
		if ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
			writeError(w, http.StatusBadRequest, "ProtocolError", "Content-Type must be application/json")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var cfg config.Config
	if !decodeBody(w, r, &cfg) {
		return
	}
	st, err := s.eng.Start(cfg)
	respond(w, st, err)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	var ev engine.Event
	if !decodeBody(w, r, &ev) {
		return
	}
	st, err := s.eng.Log(ev)
	respond(w, st, err)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var ev engine.Event
	if !decodeBody(w, r, &ev) {
		return
	}
	st, err := s.eng.End(ev)
	respond(w, st, err)
}

func (s *Server) handleSelectSrc(w http.ResponseWriter, r *http.Request) {
	var ev engine.Event
	if !decodeBody(w, r, &ev) {
		return
	}
	writeJSON(w, http.StatusOK, s.eng.SelectSource(ev))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "ProtocolError", "only GET is allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.eng.State())
}

// decodeBody reads a JSON request body; a false return means the error
// response has already been written.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ProtocolError", "could not read request body")
		return false
	}
	defer r.Body.Close()
	if err := json.Unmarshal(body, v); err != nil {
		log.Printf("bad request body: %v", err)
		writeError(w, http.StatusBadRequest, "ProtocolError", "request body is not valid JSON")
		return false
	}
	return true
}

// respond maps engine error kinds to HTTP status codes.
func respond(w http.ResponseWriter, st engine.Status, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, st)
		return
	}
	kind, ok := engine.KindOf(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Error", err.Error())
		return
	}
	var code int
	switch kind {
	case engine.KindState, engine.KindStale:
		code = http.StatusConflict
	case engine.KindMissingField, engine.KindInvalidDuration, engine.KindBadConfig, engine.KindData:
		code = http.StatusUnprocessableEntity
	default:
		code = http.StatusInternalServerError
	}
	log.Printf("request failed: %v", err)
	writeError(w, code, kind.String(), err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("could not write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, kind, message string) {
	writeJSON(w, code, map[string]string{"error": kind, "message": message})
}
