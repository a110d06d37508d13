package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrBusy is returned by Start while another job is running.
	ErrBusy = errors.New("a synthesis job is already running")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("job controller closed")
)

// State is the controller's view of the current job.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether s ends a job.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Status is a snapshot of the controller's job state.
type Status struct {
	State     State     `json:"state"`
	JobID     string    `json:"job_id,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Result    *Result   `json:"result,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type jobRunner interface {
	Prepare(req Request) (Request, error)
	Run(ctx context.Context, req Request) (Result, error)
}

type completion struct {
	req    Request
	result Result
	err    error
}

// Controller runs at most one job at a time on a dedicated goroutine. The
// worker reports back over a channel; only the controller's loop mutates the
// job state.
type Controller struct {
	runner jobRunner
	ctx    context.Context
	logger *slog.Logger
	done   chan completion
	exited chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	status    Status
	closed    bool
	nextID    int
	listeners map[int]func(Status)
}

// NewController starts the controller loop. Jobs inherit values from parent
// but not its cancellation: a started job always runs to completion.
func NewController(parent context.Context, runner jobRunner, logger *slog.Logger) *Controller {
	c := &Controller{
		runner:    runner,
		ctx:       context.WithoutCancel(parent),
		logger:    logger.With(slog.String("component", "job-controller")),
		done:      make(chan completion),
		exited:    make(chan struct{}),
		status:    Status{State: StateIdle, UpdatedAt: time.Now().UTC()},
		listeners: make(map[int]func(Status)),
	}
	go c.loop()
	return c
}

// Start validates req and launches it. The prepared request, carrying the
// assigned job ID and resolved paths, is returned.
func (c *Controller) Start(req Request) (Request, error) {
	prepared, err := c.runner.Prepare(req)
	if err != nil {
		return prepared, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return prepared, ErrClosed
	}
	if c.status.State == StateRunning {
		c.mu.Unlock()
		return prepared, ErrBusy
	}
	c.status = Status{State: StateRunning, JobID: prepared.ID, TraceID: prepared.TraceID, UpdatedAt: time.Now().UTC()}
	c.wg.Add(1)
	c.mu.Unlock()

	go c.work(prepared)
	return prepared, nil
}

func (c *Controller) work(req Request) {
	defer c.wg.Done()
	result, err := c.runner.Run(c.ctx, req)
	c.done <- completion{req: req, result: result, err: err}
}

func (c *Controller) loop() {
	defer close(c.exited)
	for msg := range c.done {
		next := Status{JobID: msg.req.ID, TraceID: msg.req.TraceID, UpdatedAt: time.Now().UTC()}
		if msg.err != nil {
			next.State = StateFailed
			next.Error = msg.err.Error()
		} else {
			result := msg.result
			next.State = StateSucceeded
			next.Result = &result
		}

		c.mu.Lock()
		c.status = next
		listeners := make([]func(Status), 0, len(c.listeners))
		for _, fn := range c.listeners {
			listeners = append(listeners, fn)
		}
		c.mu.Unlock()

		c.logger.Debug("job finished", slog.String("job_id", next.JobID), slog.String("state", string(next.State)))
		for _, fn := range listeners {
			fn(next)
		}
	}
}

// Status returns the current job state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Subscribe registers fn to be called from the controller loop each time a
// job finishes. fn must not block. The returned func removes it.
func (c *Controller) Subscribe(fn func(Status)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Wait blocks until the job with the given ID has finished or ctx is done.
func (c *Controller) Wait(ctx context.Context, jobID string) (Status, error) {
	ch := make(chan Status, 1)

	c.mu.Lock()
	if c.status.JobID == jobID && c.status.State.Terminal() {
		status := c.status
		c.mu.Unlock()
		return status, nil
	}
	id := c.nextID
	c.nextID++
	c.listeners[id] = func(s Status) {
		if s.JobID != jobID {
			return
		}
		select {
		case ch <- s:
		default:
		}
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}()

	select {
	case status := <-ch:
		return status, nil
	case <-ctx.Done():
		return c.Status(), ctx.Err()
	}
}

// Close rejects new jobs, waits for a running job to finish and stops the loop.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
	close(c.done)
	<-c.exited
}
