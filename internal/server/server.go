package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/diascribe/diascribe/internal/audioprobe"
	"github.com/diascribe/diascribe/internal/bus"
	"github.com/diascribe/diascribe/internal/config"
	"github.com/diascribe/diascribe/internal/store"
	"github.com/diascribe/diascribe/internal/transcript"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Processor runs the transcription pipeline for one materialized audio file.
type Processor interface {
	Process(ctx context.Context, audioPath string) ([]transcript.Utterance, error)
}

type transcribeRequest struct {
	FileName string `json:"fileName"`
	FileData string `json:"fileData"`
}

type transcribeResponse struct {
	TranscriptID  string                 `json:"transcript_id"`
	Transcription []transcript.Utterance `json:"transcription"`
}

type archivedResponse struct {
	TranscriptID  string                 `json:"transcript_id"`
	FileName      string                 `json:"file_name"`
	CreatedAt     time.Time              `json:"created_at"`
	Transcription []transcript.Utterance `json:"transcription"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Server is the HTTP request boundary. It materializes uploads into
// per-request temp files, owns their cleanup, and maps pipeline results
// and failures onto the wire.
type Server struct {
	cfg       config.PipelineConfig
	pipeline  Processor
	archive   *store.Store
	publisher *bus.Publisher
	logger    *slog.Logger
	metrics   http.Handler
	ready     atomic.Bool

	// removeFile is swapped in tests to observe cleanup.
	removeFile func(string) error
}

func New(cfg config.PipelineConfig, pipeline Processor, archive *store.Store, publisher *bus.Publisher, metrics http.Handler, logger *slog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		pipeline:   pipeline,
		archive:    archive,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger.With(slog.String("component", "server")),
		removeFile: os.Remove,
	}
}

// SetReady flips the readiness probe once the runtime finishes wiring.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/transcribe/", s.handleTranscribe).Methods(http.MethodPost)
	router.HandleFunc("/transcripts/{transcriptID}", s.handleGetTranscript).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	return router
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.FileName == "" {
		s.writeError(w, http.StatusBadRequest, "fileName must not be empty")
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.FileData)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("fileData is not valid base64: %v", err))
		return
	}

	requestID := uuid.NewString()
	logger := s.logger.With(slog.String("request_id", requestID))

	// Materialize the upload under a name no concurrent request can
	// collide with; release it on every exit path.
	audioPath := filepath.Join(s.workDir(), fmt.Sprintf("upload_%s_%s", requestID, filepath.Base(req.FileName)))
	if err := os.WriteFile(audioPath, audio, 0o600); err != nil {
		logger.Error("failed to write upload", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "failed to store uploaded audio")
		return
	}
	defer func() {
		if err := s.removeFile(audioPath); err != nil {
			logger.Warn("failed to remove upload", slog.String("error", err.Error()))
		}
	}()

	info, err := audioprobe.Probe(audioPath)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("uploaded audio is not usable: %v", err))
		return
	}
	logger.Info("processing upload",
		slog.String("file", req.FileName),
		slog.Duration("audio_duration", info.Duration),
		slog.Int("sample_rate", info.SampleRate))

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(s.cfg.RequestTimeoutMS)*time.Millisecond)
	defer cancel()

	utterances, err := s.pipeline.Process(ctx, audioPath)
	if err != nil {
		logger.Error("pipeline failed", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if utterances == nil {
		utterances = []transcript.Utterance{}
	}

	record := store.Record{
		ID:         requestID,
		FileName:   req.FileName,
		Utterances: utterances,
	}
	if err := s.archive.Save(r.Context(), record); err != nil {
		// Archive loss must not fail a request the pipeline completed.
		logger.Warn("failed to archive transcript", slog.String("error", err.Error()))
	}
	s.publisher.PublishCompleted(bus.CompletedEvent{
		TranscriptID: requestID,
		FileName:     req.FileName,
		Utterances:   utterances,
		CompletedAt:  time.Now().UTC(),
	})

	s.writeJSON(w, http.StatusOK, transcribeResponse{
		TranscriptID:  requestID,
		Transcription: utterances,
	})
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	transcriptID := mux.Vars(r)["transcriptID"]

	rec, err := s.archive.Get(r.Context(), transcriptID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "transcript not found")
			return
		}
		s.logger.Error("failed to load transcript", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}

	s.writeJSON(w, http.StatusOK, archivedResponse{
		TranscriptID:  rec.ID,
		FileName:      rec.FileName,
		CreatedAt:     rec.CreatedAt,
		Transcription: rec.Utterances,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready.Load() && s.publisher.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (s *Server) workDir() string {
	if s.cfg.WorkDir != "" {
		return s.cfg.WorkDir
	}
	return os.TempDir()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, errorResponse{Detail: detail})
}
