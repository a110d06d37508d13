package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/eventstore"
	"github.com/loqalabs/loqa-narrator/internal/job"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
	"github.com/loqalabs/loqa-narrator/internal/tts"
)

const maxRequestBytes = 1 << 20

type jobStarter interface {
	Start(req job.Request) (job.Request, error)
	Status() job.Status
}

type journalReader interface {
	ListJobs(ctx context.Context, limit int) ([]eventstore.Job, error)
	ListJobEvents(ctx context.Context, jobID string, limit int) ([]eventstore.Event, error)
}

type api struct {
	controller jobStarter
	synth      tts.Synthesizer
	journal    journalReader
	ready      func() bool
	logger     *slog.Logger
}

func (a *api) routes(metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/readyz", a.handleReady)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	mux.HandleFunc("GET /voices", a.handleVoices)
	mux.HandleFunc("POST /jobs", a.handleCreateJob)
	mux.HandleFunc("GET /jobs", a.handleListJobs)
	mux.HandleFunc("GET /jobs/current", a.handleCurrentJob)
	mux.HandleFunc("GET /jobs/{id}/events", a.handleJobEvents)
	return mux
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *api) handleReady(w http.ResponseWriter, _ *http.Request) {
	if a.ready != nil && a.ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (a *api) handleVoices(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 30*time.Second)
	defer cancel()
	voices, err := a.synth.Voices(ctx)
	if err != nil {
		a.logger.Warn("failed to list voices", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, tts.SortVoices(voices))
}

func (a *api) handleCreateJob(w http.ResponseWriter, req *http.Request) {
	var body protocol.SynthesisRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	prepared, err := a.controller.Start(job.Request{
		ID:        body.JobID,
		Text:      body.Text,
		Voice:     body.Voice,
		AudioPath: body.AudioPath,
		TraceID:   body.TraceID,
	})
	switch {
	case errors.Is(err, job.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, job.ErrBusy):
		writeError(w, http.StatusConflict, err)
		return
	case errors.Is(err, job.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, protocol.JobStatus{
		JobID:        prepared.ID,
		State:        protocol.JobAccepted,
		AudioPath:    prepared.AudioPath,
		SubtitlePath: job.SubtitlePath(prepared.AudioPath),
		TraceID:      prepared.TraceID,
		Timestamp:    time.Now().UTC(),
	})
}

func (a *api) handleCurrentJob(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.controller.Status())
}

type jobSummary struct {
	ID        string    `json:"id"`
	Voice     string    `json:"voice"`
	AudioPath string    `json:"audio_path"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *api) handleListJobs(w http.ResponseWriter, req *http.Request) {
	jobs, err := a.journal.ListJobs(req.Context(), queryLimit(req))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]jobSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobSummary{ID: j.ID, Voice: j.Voice, AudioPath: j.AudioPath, CreatedAt: j.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

type jobEvent struct {
	Type      string          `json:"type"`
	TraceID   string          `json:"trace_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (a *api) handleJobEvents(w http.ResponseWriter, req *http.Request) {
	events, err := a.journal.ListJobEvents(req.Context(), req.PathValue("id"), queryLimit(req))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]jobEvent, 0, len(events))
	for _, evt := range events {
		item := jobEvent{Type: evt.Type, TraceID: evt.TraceID, CreatedAt: evt.CreatedAt}
		if json.Valid(evt.Payload) {
			item.Payload = evt.Payload
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

func queryLimit(req *http.Request) int {
	limit, err := strconv.Atoi(req.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return 50
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
