package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/caffeineduck/kiprun/controller"
	"github.com/caffeineduck/kiprun/executor"
	"github.com/caffeineduck/kiprun/resource"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an HTTP playground",
	Long: `Start an HTTP server driving a single playground session.

Endpoints:
  POST /run       Run a program          {"source":"...","lang":"tr"}
  POST /codegen   Translate a program    {"source":"...","target":"js"}
  POST /input     Answer a stdin request {"line":"5"} or {"eof":true}
  POST /stop      Stop the running program
  GET  /events    Stream session events as NDJSON
  GET  /health    Health check and current session

Starting a program replaces the one running.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Address to listen on")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "Code generation timeout")
	serveCmd.Flags().Bool("interactive", true, "Offer interactive stdin to clients")
	rootCmd.AddCommand(serveCmd)
}

// serverEvent is one line of the /events stream.
type serverEvent struct {
	Type string `json:"type"`
	Line string `json:"line,omitempty"`
	Mode string `json:"mode,omitempty"`
	Busy *bool  `json:"busy,omitempty"`
}

// hub is the server's Presenter: it fans every presentation call out to
// the connected /events streams.
type hub struct {
	mu   sync.Mutex
	subs map[string]chan serverEvent
	log  *logrus.Entry
}

func newHub(log *logrus.Entry) *hub {
	return &hub{subs: make(map[string]chan serverEvent), log: log}
}

func (h *hub) subscribe() (string, <-chan serverEvent) {
	id := uuid.NewString()
	ch := make(chan serverEvent, 256)
	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
	}
}

func (h *hub) broadcast(ev serverEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// A stalled client must not stall the controller.
			h.log.WithField("subscriber", id).Warn("dropping slow event stream")
			close(ch)
			delete(h.subs, id)
		}
	}
}

func (h *hub) Terminal(line string) { h.broadcast(serverEvent{Type: "terminal", Line: line}) }
func (h *hub) Codegen(line string)  { h.broadcast(serverEvent{Type: "codegen", Line: line}) }

func (h *hub) Reset(mode executor.Mode) {
	h.broadcast(serverEvent{Type: "reset", Mode: mode.String()})
}

func (h *hub) Busy(busy bool) { h.broadcast(serverEvent{Type: "busy", Busy: &busy}) }

func (h *hub) PromptInput()  { h.broadcast(serverEvent{Type: "prompt"}) }
func (h *hub) DismissInput() { h.broadcast(serverEvent{Type: "dismiss"}) }

type runRequest struct {
	Source string `json:"source"`
	Lang   string `json:"lang,omitempty"`
	Target string `json:"target,omitempty"`
}

type sessionResponse struct {
	Session string `json:"session"`
	Mode    string `json:"mode"`
}

type inputRequest struct {
	Line string `json:"line"`
	EOF  bool   `json:"eof,omitempty"`
}

type healthResponse struct {
	Status  string            `json:"status"`
	Session controller.Status `json:"session"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type server struct {
	ctrl   *controller.Controller
	hub    *hub
	lang   string
	target string
	log    *logrus.Entry
}

func newServer(exec *executor.Executor, lang, target string, log *logrus.Entry, opts ...controller.Option) *server {
	h := newHub(log)
	opts = append([]controller.Option{controller.WithLogger(log)}, opts...)
	return &server{
		ctrl:   controller.New(exec, h, opts...),
		hub:    h,
		lang:   lang,
		target: target,
		log:    log,
	}
}

func (s *server) Close() error {
	return s.ctrl.Close()
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /run", s.handleRun)
	mux.HandleFunc("POST /codegen", s.handleCodegen)
	mux.HandleFunc("POST /input", s.handleInput)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func startStatus(err error) int {
	var loadErr *resource.LoadError
	switch {
	case errors.As(err, &loadErr):
		return http.StatusBadGateway
	case errors.Is(err, controller.ErrControllerClosed), errors.Is(err, executor.ErrExecutorClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	lang := req.Lang
	if lang == "" {
		lang = s.lang
	}

	sess, err := s.ctrl.Execute(r.Context(), req.Source, lang)
	if err != nil {
		writeJSON(w, startStatus(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, sessionResponse{Session: sess.ID(), Mode: sess.Mode().String()})
}

func (s *server) handleCodegen(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	lang, target := req.Lang, req.Target
	if lang == "" {
		lang = s.lang
	}
	if target == "" {
		target = s.target
	}

	sess, err := s.ctrl.Codegen(r.Context(), req.Source, target, lang)
	if err != nil {
		writeJSON(w, startStatus(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, sessionResponse{Session: sess.ID(), Mode: sess.Mode().String()})
}

func (s *server) handleInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var ok bool
	if req.EOF {
		ok = s.ctrl.SubmitEOF()
	} else {
		ok = s.ctrl.Submit(req.Line)
	}
	if !ok {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "no input requested"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": true})
}

func (s *server) handleStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": s.ctrl.Stop()})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Session: s.ctrl.Status()})
}

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	id, events := s.hub.subscribe()
	defer s.hub.unsubscribe(id)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := enc.Encode(ev); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	exec, err := newExecutor(cfg)
	if err != nil {
		return err
	}
	defer executor.CloseShared()

	log := logger.WithField("component", "serve")
	srv := newServer(exec, cfg.Guest.Lang, cfg.Guest.Target, log,
		controller.WithInteractive(cfg.Stdin.Interactive),
		controller.WithCodegenTimeout(cfg.Runtime.CodegenTimeout),
	)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           srv.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- httpServer.ListenAndServe()
	}()
	fmt.Fprintf(cmd.ErrOrStderr(), "kiprun playground listening on %s\n", cfg.Serve.Addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
