package job

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-narrator/internal/bus"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
)

// Service accepts synthesis requests from the bus and publishes job status.
type Service struct {
	bus         *bus.Client
	controller  *Controller
	sub         *nats.Subscription
	unsubscribe func()
	logger      *slog.Logger
}

func NewService(busClient *bus.Client, controller *Controller, log *slog.Logger) *Service {
	return &Service{
		bus:        busClient,
		controller: controller,
		logger:     log.With(slog.String("component", "job-service")),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectJobRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	s.unsubscribe = s.controller.Subscribe(s.publishFinished)
	return nil
}

func (s *Service) Close() {
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Service) Healthy() bool { return s.sub != nil && s.sub.IsValid() }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SynthesisRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode synthesis request", slogError(err))
		s.reply(msg, protocol.JobStatus{State: protocol.JobRejected, Error: err.Error(), Timestamp: time.Now().UTC()})
		return
	}

	prepared, err := s.controller.Start(Request{
		ID:        req.JobID,
		Text:      req.Text,
		Voice:     req.Voice,
		AudioPath: req.AudioPath,
		TraceID:   req.TraceID,
	})
	status := protocol.JobStatus{
		JobID:     prepared.ID,
		State:     protocol.JobAccepted,
		AudioPath: prepared.AudioPath,
		TraceID:   prepared.TraceID,
		Timestamp: time.Now().UTC(),
	}
	if err == nil && prepared.AudioPath != "" {
		status.SubtitlePath = SubtitlePath(prepared.AudioPath)
	}
	if err != nil {
		status.State = protocol.JobRejected
		status.Error = err.Error()
		if errors.Is(err, ErrBusy) {
			s.logger.Info("synthesis request rejected while busy", slog.String("job_id", prepared.ID))
		} else {
			s.logger.Warn("synthesis request rejected", slog.String("job_id", prepared.ID), slogError(err))
		}
	}
	s.publish(status)
	s.reply(msg, status)
}

func (s *Service) publishFinished(st Status) {
	status := protocol.JobStatus{
		JobID:     st.JobID,
		State:     protocol.JobSucceeded,
		Error:     st.Error,
		TraceID:   st.TraceID,
		Timestamp: st.UpdatedAt,
	}
	if st.State == StateFailed {
		status.State = protocol.JobFailed
	}
	if st.Result != nil {
		status.AudioPath = st.Result.AudioPath
		status.SubtitlePath = st.Result.SubtitlePath
		status.AudioBytes = st.Result.AudioBytes
		status.CueCount = st.Result.CueCount
	}
	s.publish(status)
}

func (s *Service) publish(status protocol.JobStatus) {
	data, err := json.Marshal(status)
	if err != nil {
		s.logger.Warn("failed to marshal job status", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectJobStatus, data); err != nil {
		s.logger.Warn("failed to publish job status", slogError(err))
	}
}

func (s *Service) reply(msg *nats.Msg, status protocol.JobStatus) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to reply to synthesis request", slogError(err))
	}
}
