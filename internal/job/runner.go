package job

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-narrator/internal/eventstore"
	"github.com/loqalabs/loqa-narrator/internal/ingest"
	"github.com/loqalabs/loqa-narrator/internal/subtitle"
	"github.com/loqalabs/loqa-narrator/internal/textprep"
	"github.com/loqalabs/loqa-narrator/internal/tts"
)

const instrumentationName = "github.com/loqalabs/loqa-narrator/job"

var (
	// ErrInvalidRequest is returned when a request has no text, voice or output path.
	ErrInvalidRequest = errors.New("invalid synthesis request")
	// ErrOutputBusy is returned when another job holds the output path.
	ErrOutputBusy = errors.New("output path in use by another job")
)

// Request describes one synthesis job.
type Request struct {
	ID        string
	Text      string
	Voice     string
	AudioPath string
	TraceID   string
}

// Result summarizes a completed job.
type Result struct {
	ID           string        `json:"id"`
	AudioPath    string        `json:"audio_path"`
	SubtitlePath string        `json:"subtitle_path"`
	AudioBytes   int64         `json:"audio_bytes"`
	WordCount    int           `json:"word_count"`
	CueCount     int           `json:"cue_count"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Journal records job lifecycle events. *eventstore.Store satisfies it.
type Journal interface {
	AppendJob(ctx context.Context, job eventstore.Job) error
	Record(ctx context.Context, jobID, traceID, eventType string, payload any) error
}

// Options tune how requests are completed and subtitles are shaped.
type Options struct {
	MaxWordsPerCue int
	DefaultVoice   string
	OutputDir      string
	AudioExtension string
}

// Runner executes synthesis jobs synchronously.
type Runner struct {
	synth   tts.Synthesizer
	journal Journal
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer

	jobs       metric.Int64Counter
	audioBytes metric.Int64Counter
	cues       metric.Int64Histogram
	duration   metric.Float64Histogram
}

// NewRunner builds a Runner. journal may be nil.
func NewRunner(synth tts.Synthesizer, journal Journal, opts Options, logger *slog.Logger) *Runner {
	if opts.MaxWordsPerCue < 1 {
		opts.MaxWordsPerCue = subtitle.DefaultMaxWordsPerCue
	}
	if opts.AudioExtension == "" {
		opts.AudioExtension = ".mp3"
	}
	r := &Runner{
		synth:   synth,
		journal: journal,
		opts:    opts,
		logger:  logger.With(slog.String("component", "job-runner")),
		tracer:  otel.Tracer(instrumentationName),
	}
	if err := r.initMetrics(otel.Meter(instrumentationName)); err != nil {
		r.logger.Warn("failed to initialize metrics", slogError(err))
		_ = r.initMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	}
	return r
}

func (r *Runner) initMetrics(meter metric.Meter) error {
	var err error
	if r.jobs, err = meter.Int64Counter("narrator.jobs", metric.WithDescription("Synthesis jobs by outcome")); err != nil {
		return err
	}
	if r.audioBytes, err = meter.Int64Counter("narrator.audio.bytes", metric.WithUnit("By"), metric.WithDescription("Audio bytes written")); err != nil {
		return err
	}
	if r.cues, err = meter.Int64Histogram("narrator.job.cues", metric.WithDescription("Subtitle cues per job")); err != nil {
		return err
	}
	r.duration, err = meter.Float64Histogram("narrator.job.duration", metric.WithUnit("s"), metric.WithDescription("Wall clock job duration"))
	return err
}

// Prepare normalizes and validates a request, assigning an ID and default
// voice and output path where missing.
func (r *Runner) Prepare(req Request) (Request, error) {
	if strings.TrimSpace(req.ID) == "" {
		req.ID = uuid.NewString()
	}
	req.Text = textprep.Normalize(req.Text)
	if req.Text == "" {
		return req, fmt.Errorf("%w: text is empty", ErrInvalidRequest)
	}
	req.Voice = strings.TrimSpace(req.Voice)
	if req.Voice == "" {
		req.Voice = r.opts.DefaultVoice
	}
	if req.Voice == "" {
		return req, fmt.Errorf("%w: no voice selected", ErrInvalidRequest)
	}
	req.AudioPath = strings.TrimSpace(req.AudioPath)
	if req.AudioPath == "" {
		if r.opts.OutputDir == "" {
			return req, fmt.Errorf("%w: no output path", ErrInvalidRequest)
		}
		req.AudioPath = filepath.Join(r.opts.OutputDir, req.ID+r.opts.AudioExtension)
	}
	return req, nil
}

// SubtitlePath returns the SRT path written next to audioPath.
func SubtitlePath(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".srt"
}

// Run executes one job to completion. On failure any audio already written
// stays on disk and no subtitle file is written.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	req, err := r.Prepare(req)
	if err != nil {
		r.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "rejected")))
		return Result{ID: req.ID}, err
	}

	ctx, span := r.tracer.Start(ctx, "narrator.job", trace.WithAttributes(
		attribute.String("job.id", req.ID),
		attribute.String("job.voice", req.Voice),
	))
	defer span.End()

	log := r.logger.With(slog.String("job_id", req.ID))
	r.journalJob(ctx, req)
	r.record(ctx, req, eventstore.TypeJobStarted, map[string]any{
		"voice":      req.Voice,
		"audio_path": req.AudioPath,
		"characters": len([]rune(req.Text)),
	})
	log.Info("synthesis job started", slog.String("voice", req.Voice), slog.String("audio_path", req.AudioPath))

	result, err := r.execute(ctx, req)
	result.Elapsed = time.Since(started)
	r.duration.Record(ctx, result.Elapsed.Seconds())
	r.audioBytes.Add(ctx, result.AudioBytes)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		r.record(ctx, req, eventstore.TypeJobFailed, map[string]any{
			"error":       err.Error(),
			"audio_bytes": result.AudioBytes,
		})
		log.Warn("synthesis job failed", slogError(err), slog.Int64("audio_bytes", result.AudioBytes))
		return result, err
	}

	r.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "succeeded")))
	r.cues.Record(ctx, int64(result.CueCount))
	span.SetAttributes(
		attribute.Int64("job.audio_bytes", result.AudioBytes),
		attribute.Int("job.cues", result.CueCount),
	)
	r.record(ctx, req, eventstore.TypeJobCompleted, result)
	log.Info("synthesis job completed",
		slog.String("subtitle_path", result.SubtitlePath),
		slog.Int64("audio_bytes", result.AudioBytes),
		slog.Int("words", result.WordCount),
		slog.Int("cues", result.CueCount),
		slog.Duration("elapsed", result.Elapsed))
	return result, nil
}

func (r *Runner) execute(ctx context.Context, req Request) (Result, error) {
	result := Result{ID: req.ID, AudioPath: req.AudioPath}

	if dir := filepath.Dir(req.AudioPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return result, fmt.Errorf("create output dir: %w", err)
		}
	}

	lock := flock.New(lockPath(req.AudioPath))
	locked, err := lock.TryLock()
	if err != nil {
		return result, fmt.Errorf("lock output: %w", err)
	}
	if !locked {
		return result, fmt.Errorf("%w: %s", ErrOutputBusy, req.AudioPath)
	}
	defer lock.Unlock()

	audio, err := os.Create(req.AudioPath)
	if err != nil {
		return result, fmt.Errorf("create audio file: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	builder := subtitle.NewBuilder(r.opts.MaxWordsPerCue)
	events, errs := r.synth.Synthesize(streamCtx, tts.SynthRequest{JobID: req.ID, Text: req.Text, Voice: req.Voice})
	stats, err := ingest.Run(streamCtx, events, errs, audio, builder)
	result.AudioBytes = stats.AudioBytes
	result.WordCount = stats.WordBoundaries
	closeErr := audio.Close()
	if err != nil {
		return result, err
	}
	if closeErr != nil {
		return result, fmt.Errorf("close audio file: %w", closeErr)
	}

	builder.MergeAdjacent()
	subtitlePath := SubtitlePath(req.AudioPath)
	if err := os.WriteFile(subtitlePath, []byte(builder.Serialize()), 0o644); err != nil {
		return result, fmt.Errorf("write subtitles: %w", err)
	}
	result.SubtitlePath = subtitlePath
	result.CueCount = builder.Len()
	return result, nil
}

// lockPath keys the output lock by absolute path so relative and absolute
// spellings of one file share a lock.
func lockPath(audioPath string) string {
	abs, err := filepath.Abs(audioPath)
	if err != nil {
		abs = audioPath
	}
	sum := sha1.Sum([]byte(abs))
	return filepath.Join(os.TempDir(), "loqa-narrator-"+hex.EncodeToString(sum[:8])+".lock")
}

func (r *Runner) journalJob(ctx context.Context, req Request) {
	if r.journal == nil {
		return
	}
	if err := r.journal.AppendJob(ctx, eventstore.Job{ID: req.ID, Voice: req.Voice, AudioPath: req.AudioPath}); err != nil {
		r.logger.Warn("failed to journal job", slogError(err))
	}
}

func (r *Runner) record(ctx context.Context, req Request, eventType string, payload any) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Record(ctx, req.ID, req.TraceID, eventType, payload); err != nil {
		r.logger.Warn("failed to journal job event", slog.String("type", eventType), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
