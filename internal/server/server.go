package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/audiolibrelab/rmxr/internal/asset"
	"github.com/audiolibrelab/rmxr/internal/audio"
	"github.com/audiolibrelab/rmxr/internal/deck"
	"github.com/audiolibrelab/rmxr/internal/publish"
	"github.com/audiolibrelab/rmxr/internal/service"
)

// Server exposes the studio as a JSON control API
type Server struct {
	service service.Service
	monitor http.Handler
	host    string
	port    string
	mux     *http.ServeMux
}

// GenericResponse represents a generic API response
type GenericResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Status  *service.Status `json:"status,omitempty"`
}

// LoadRequest names a file path or URL to load into a deck
type LoadRequest struct {
	Source string `json:"source"`
}

type SeekRequest struct {
	Seconds *float64 `json:"seconds"`
}

type StopRequest struct {
	Reset bool `json:"reset"`
}

type EQRequest struct {
	LowDB  float64 `json:"low_db"`
	MidDB  float64 `json:"mid_db"`
	HighDB float64 `json:"high_db"`
}

type FilterRequest struct {
	CutoffHz *float64 `json:"cutoff_hz"`
}

// RateRequest carries the pitch fader deflection, e.g. 0.04 for +4%
type RateRequest struct {
	Deflection *float64 `json:"deflection"`
}

type ValueRequest struct {
	Value *float64 `json:"value"`
}

type PublishRequest struct {
	Caption string `json:"caption"`
}

// LoadResponse describes a freshly loaded deck
type LoadResponse struct {
	Success bool        `json:"success"`
	Deck    deck.ID     `json:"deck"`
	Asset   *asset.Info `json:"asset"`
}

type RecordingResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message,omitempty"`
	Asset   *audio.CapturedAsset `json:"asset,omitempty"`
}

type PublishResponse struct {
	Success bool          `json:"success"`
	Post    *publish.Post `json:"post"`
}

// errBadRequest marks client input errors
var errBadRequest = errors.New("bad request")

// New creates a server for svc. monitor may be nil to disable the WebRTC
// endpoint.
func New(svc service.Service, monitor http.Handler, host, port string) *Server {
	s := &Server{
		service: svc,
		monitor: monitor,
		host:    host,
		port:    port,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /config", s.handleConfig)

	s.mux.HandleFunc("POST /decks/{deck}/load", s.handleLoad)
	s.mux.HandleFunc("POST /decks/{deck}/{op}", s.handleDeckOp)

	s.mux.HandleFunc("POST /mixer/{op}", s.handleMixerOp)

	s.mux.HandleFunc("POST /record/start", s.handleStartRecording)
	s.mux.HandleFunc("POST /record/stop", s.handleStopRecording)
	s.mux.HandleFunc("GET /record/asset", s.handleGetRecording)
	s.mux.HandleFunc("DELETE /record/asset", s.handleDiscardRecording)
	s.mux.HandleFunc("POST /record/publish", s.handlePublish)

	if s.monitor != nil {
		s.mux.Handle("/monitor/webrtc", s.monitor)
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(s.host, s.port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting rmxr control server",
		"addr", srv.Addr,
		"local_url", fmt.Sprintf("http://%s:%s", getLocalIP(), s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("Shutting down control server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.service.Status()
	sendJSON(w, http.StatusOK, st)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.service.GetConfig())
}

// handleLoad accepts either a JSON body naming a source or a multipart
// upload in the "file" field.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	id, ok := s.deckID(w, r)
	if !ok {
		return
	}

	var (
		info *asset.Info
		err  error
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, asset.MaxFetchBytes)
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			s.sendError(w, fmt.Errorf("%w: file upload required: %v", errBadRequest, ferr), "operation", "load", "deck", id)
			return
		}
		defer file.Close()
		data, rerr := io.ReadAll(file)
		if rerr != nil {
			s.sendError(w, fmt.Errorf("%w: failed to read upload: %v", errBadRequest, rerr), "operation", "load", "deck", id)
			return
		}
		info, err = s.service.LoadDeckBytes(r.Context(), id, header.Filename, data)
	} else {
		var req LoadRequest
		if derr := decodeBody(r, &req); derr != nil {
			s.sendError(w, derr, "operation", "load", "deck", id)
			return
		}
		if strings.TrimSpace(req.Source) == "" {
			s.sendError(w, fmt.Errorf("%w: source is required", errBadRequest), "operation", "load", "deck", id)
			return
		}
		info, err = s.service.LoadDeck(r.Context(), id, req.Source)
	}

	if err != nil {
		s.sendError(w, err, "operation", "load", "deck", id)
		return
	}
	sendJSON(w, http.StatusOK, LoadResponse{Success: true, Deck: id, Asset: info})
}

func (s *Server) handleDeckOp(w http.ResponseWriter, r *http.Request) {
	id, ok := s.deckID(w, r)
	if !ok {
		return
	}
	op := r.PathValue("op")

	var err error
	switch op {
	case "play":
		err = s.service.Play(id)
	case "pause":
		err = s.service.Pause(id)
	case "seek":
		var req SeekRequest
		if err = decodeBody(r, &req); err == nil {
			if req.Seconds == nil {
				err = fmt.Errorf("%w: seconds is required", errBadRequest)
			} else {
				err = s.service.Seek(id, *req.Seconds)
			}
		}
	case "stop":
		var req StopRequest
		if err = decodeBody(r, &req); err == nil {
			err = s.service.Stop(id, !req.Reset)
		}
	case "eq":
		var req EQRequest
		if err = decodeBody(r, &req); err == nil {
			err = s.service.SetEQ(id, req.LowDB, req.MidDB, req.HighDB)
		}
	case "filter":
		var req FilterRequest
		if err = decodeBody(r, &req); err == nil {
			if req.CutoffHz == nil {
				err = fmt.Errorf("%w: cutoff_hz is required", errBadRequest)
			} else {
				err = s.service.SetFilter(id, *req.CutoffHz)
			}
		}
	case "rate":
		var req RateRequest
		if err = decodeBody(r, &req); err == nil {
			if req.Deflection == nil {
				err = fmt.Errorf("%w: deflection is required", errBadRequest)
			} else {
				err = s.service.SetRate(id, *req.Deflection)
			}
		}
	case "gain":
		var v float64
		if v, err = decodeValue(r); err == nil {
			err = s.service.SetGain(id, v)
		}
	case "bpm":
		var v float64
		if v, err = decodeValue(r); err == nil {
			err = s.service.SetBPM(id, v)
		}
	default:
		s.sendErrorResponse(w, http.StatusNotFound, fmt.Sprintf("unknown deck operation: %s", op))
		return
	}

	if err != nil {
		s.sendError(w, err, "operation", op, "deck", id)
		return
	}
	s.sendOK(w, fmt.Sprintf("deck %s: %s", id, op))
}

func (s *Server) handleMixerOp(w http.ResponseWriter, r *http.Request) {
	op := r.PathValue("op")

	switch op {
	case "crossfade":
		v, err := decodeValue(r)
		if err != nil {
			s.sendError(w, err, "operation", "crossfade")
			return
		}
		s.service.SetCrossfade(v)
	case "master":
		v, err := decodeValue(r)
		if err != nil {
			s.sendError(w, err, "operation", "master")
			return
		}
		s.service.SetMasterGain(v)
	case "sync":
		if !s.service.SyncDecks() {
			s.sendErrorResponse(w, http.StatusConflict, "both decks must be loaded and deck B playing to sync")
			return
		}
	case "reset":
		s.service.ResetMixer()
	default:
		s.sendErrorResponse(w, http.StatusNotFound, fmt.Sprintf("unknown mixer operation: %s", op))
		return
	}
	s.sendOK(w, "mixer: "+op)
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.service.StartRecording(); err != nil {
		s.sendError(w, err, "operation", "start_recording")
		return
	}
	sendJSON(w, http.StatusOK, RecordingResponse{Success: true, Message: "Recording started"})
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	captured, err := s.service.StopRecording()
	if err != nil {
		s.sendError(w, err, "operation", "stop_recording")
		return
	}
	sendJSON(w, http.StatusOK, RecordingResponse{Success: true, Message: "Recording stopped", Asset: captured})
}

// handleGetRecording serves the kept recording bytes
func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	captured := s.service.RecordedAsset()
	if captured == nil {
		s.sendErrorResponse(w, http.StatusNotFound, "no recording available")
		return
	}

	w.Header().Set("Content-Type", captured.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"mix_%s.%s\"", captured.ID, captured.Extension()))
	w.Header().Set("Content-Length", strconv.Itoa(captured.Size()))
	if _, err := w.Write(captured.Data); err != nil {
		slog.Error("Error serving recording", "id", captured.ID, "error", err)
	}
}

func (s *Server) handleDiscardRecording(w http.ResponseWriter, r *http.Request) {
	s.service.DiscardRecording()
	sendJSON(w, http.StatusOK, RecordingResponse{Success: true, Message: "Recording discarded"})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, err, "operation", "publish")
		return
	}

	post, err := s.service.Publish(r.Context(), req.Caption)
	if err != nil {
		s.sendError(w, err, "operation", "publish")
		return
	}
	sendJSON(w, http.StatusOK, PublishResponse{Success: true, Post: post})
}

func (s *Server) deckID(w http.ResponseWriter, r *http.Request) (deck.ID, bool) {
	raw := r.PathValue("deck")
	id, ok := deck.ParseID(raw)
	if !ok {
		s.sendErrorResponse(w, http.StatusNotFound, fmt.Sprintf("unknown deck: %s", raw))
		return "", false
	}
	return id, true
}

func (s *Server) sendOK(w http.ResponseWriter, message string) {
	st := s.service.Status()
	sendJSON(w, http.StatusOK, GenericResponse{Success: true, Message: message, Status: &st})
}

// decodeBody decodes an optional JSON body. An empty body leaves v zero.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
}

func decodeValue(r *http.Request) (float64, error) {
	var req ValueRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, err
	}
	if req.Value == nil {
		return 0, fmt.Errorf("%w: value is required", errBadRequest)
	}
	return *req.Value, nil
}

// statusCode maps service errors to HTTP status codes
func statusCode(err error) int {
	var stateErr *audio.InvalidStateError
	var decodeErr *asset.DecodeError
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnknownDeck):
		return http.StatusNotFound
	case errors.As(err, &stateErr),
		errors.Is(err, service.ErrNothingToPublish),
		errors.Is(err, service.ErrSuperseded):
		return http.StatusConflict
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, publish.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendError(w http.ResponseWriter, err error, logContext ...interface{}) {
	s.sendErrorResponse(w, statusCode(err), err.Error(), logContext...)
}

// sendErrorResponse sends a standardized JSON error response
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func sendJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func getLocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
