package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/bus"
	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/eventstore"
	"github.com/loqalabs/loqa-narrator/internal/job"
	"github.com/loqalabs/loqa-narrator/internal/natsserver"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
	"github.com/loqalabs/loqa-narrator/internal/tts"
)

const statusStreamName = "NARRATOR_JOBS"

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	nats       *natsserver.EmbeddedServer
	bus        *bus.Client
	store      *eventstore.Store
	controller *job.Controller
	service    *job.Service
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry
	defer r.shutdownTelemetry()

	if err := r.startServices(ctx); err != nil {
		r.stopServices()
		return err
	}
	defer r.stopServices()

	synth, err := tts.New(r.cfg.TTS)
	if err != nil {
		return fmt.Errorf("failed to create synthesizer: %w", err)
	}
	runner := job.NewRunner(synth, r.store, job.Options{
		MaxWordsPerCue: r.cfg.Subtitles.MaxWordsPerCue,
		DefaultVoice:   r.cfg.TTS.Voice,
		OutputDir:      r.cfg.Jobs.OutputDir,
		AudioExtension: r.cfg.Jobs.AudioExtension,
	}, r.logger)
	r.controller = job.NewController(ctx, runner, r.logger)
	r.controller.Subscribe(r.pruneJournal)

	if r.bus != nil {
		r.service = job.NewService(r.bus, r.controller, r.logger)
		if err := r.service.Start(); err != nil {
			return fmt.Errorf("failed to start job service: %w", err)
		}
	}

	api := &api{
		controller: r.controller,
		synth:      synth,
		journal:    r.store,
		ready:      r.isReady,
		logger:     r.logger.With(slog.String("component", "http")),
	}
	mux := api.routes(metricsHandler)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if bind := r.cfg.Telemetry.PrometheusBind; bind != "" && metricsHandler != nil {
		metricsServer := &http.Server{Addr: bind, Handler: metricsHandler, ReadHeaderTimeout: 5 * time.Second}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Warn("metrics server failed", slog.String("error", err.Error()))
			}
		}()
		defer metricsServer.Close()
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr), slog.String("tts_mode", r.cfg.TTS.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	return nil
}

func (r *Runtime) startServices(ctx context.Context) error {
	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	if err := store.Ensure(); err != nil {
		_ = store.Close()
		return err
	}
	r.store = store

	if !r.cfg.Bus.Enabled {
		r.logger.Info("bus disabled; jobs accepted over HTTP only")
		return nil
	}

	busCfg := r.cfg.Bus
	r.nats, err = natsserver.Start(busCfg, r.logger.With(slog.String("component", "nats")))
	if err != nil {
		return err
	}
	if r.nats != nil {
		busCfg.Servers = []string{r.nats.ClientURL()}
	}

	r.bus, err = bus.Connect(ctx, busCfg, r.cfg.RuntimeName, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		return err
	}
	if err := r.bus.EnsureStream(statusStreamName, []string{protocol.SubjectJobStatus}, int64(r.cfg.EventStore.MaxJobs)*4); err != nil {
		r.logger.Warn("job status stream unavailable", slog.String("error", err.Error()))
	}
	return nil
}

// stopServices tears down in reverse start order. A running job is allowed
// to finish before the journal closes.
func (r *Runtime) stopServices() {
	if r.service != nil {
		r.service.Close()
	}
	if r.controller != nil {
		r.controller.Close()
	}
	r.wg.Wait()
	if r.bus != nil {
		r.bus.Close()
	}
	r.nats.Shutdown()
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("event store close error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) shutdownTelemetry() {
	if r.tracerClose == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.tracerClose(ctx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}
}

func (r *Runtime) pruneJournal(job.Status) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.store.Prune(ctx); err != nil {
			r.logger.Warn("event store prune failed", slog.String("error", err.Error()))
		}
	}()
}

func (r *Runtime) isReady() bool {
	if !r.ready.Load() {
		return false
	}
	if r.bus != nil && !r.bus.Healthy() {
		return false
	}
	if r.service != nil && !r.service.Healthy() {
		return false
	}
	return true
}
