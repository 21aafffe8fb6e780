// Package worker runs fire-after background tasks for the serve pipeline.
//
// Record writes return to the caller as soon as the write lands; the
// follow-up work they trigger (notification dispatch, cache resync) runs
// here. Every submission hands back a result channel so callers and tests
// can observe completion without blocking on it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Submission failure sentinels.
var (
	// ErrStopped is delivered when a task is submitted after Stop.
	ErrStopped = errors.New("worker: runner stopped")

	// ErrQueueFull is delivered when the task buffer is at capacity.
	ErrQueueFull = errors.New("worker: task queue full")
)

// Config holds the configuration for the background task runner.
type Config struct {
	// Concurrency is the number of goroutines executing tasks.
	// Default: 2
	Concurrency int

	// QueueSize is the task buffer capacity. Submissions beyond it are
	// rejected rather than blocking the record write that produced them.
	// Default: 32
	QueueSize int

	// TaskTimeout bounds a single task execution.
	// Default: 2 minutes
	TaskTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for in-flight tasks.
	// Default: 30 seconds
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Concurrency:     2,
		QueueSize:       32,
		TaskTimeout:     2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1, got %d", c.QueueSize)
	}
	if c.TaskTimeout < 1*time.Second {
		return fmt.Errorf("task timeout must be at least 1 second, got %v", c.TaskTimeout)
	}
	if c.ShutdownTimeout < 1*time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	return nil
}

// Task is one unit of background work.
type Task struct {
	// Name identifies the task in logs.
	Name string

	// Fn does the work. The context carries the configured task timeout.
	Fn func(ctx context.Context) error
}

type submission struct {
	task Task
	done chan error
}

// Runner executes submitted tasks on a fixed pool of goroutines.
type Runner struct {
	config Config
	logger *slog.Logger

	tasks  chan submission
	wg     sync.WaitGroup
	stopCh chan struct{}
	stop   sync.Once
}

// New creates a Runner. It must be started with Start() and stopped
// with Stop().
func New(config Config, logger *slog.Logger) (*Runner, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Runner{
		config: config,
		logger: logger,
		tasks:  make(chan submission, config.QueueSize),
		stopCh: make(chan struct{}),
	}, nil
}

// Start launches the worker goroutines.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.config.Concurrency; i++ {
		r.wg.Add(1)
		go r.runWorker(ctx, i+1)
	}
	r.logger.Info("Task runner started", "concurrency", r.config.Concurrency)
}

// Submit queues a task and returns a channel that receives the task's
// result exactly once and is then closed. A rejected submission (runner
// stopped or queue full) resolves the channel immediately; it never
// blocks the caller.
func (r *Runner) Submit(task Task) <-chan error {
	done := make(chan error, 1)

	select {
	case <-r.stopCh:
		done <- ErrStopped
		close(done)
		return done
	default:
	}

	select {
	case r.tasks <- submission{task: task, done: done}:
	default:
		r.logger.Warn("Task queue full, rejecting submission", "task", task.Name)
		done <- ErrQueueFull
		close(done)
	}
	return done
}

// Stop signals all workers to stop and waits for in-flight tasks, up to
// the configured ShutdownTimeout. Tasks still queued when the workers
// exit are resolved with ErrStopped.
func (r *Runner) Stop() {
	r.stop.Do(func() {
		r.logger.Info("Stopping task runner...")
		close(r.stopCh)

		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			r.logger.Info("Task runner stopped gracefully")
		case <-time.After(r.config.ShutdownTimeout):
			r.logger.Warn("Task runner shutdown timeout exceeded, some tasks may still be running")
		}

		r.drain()
	})
}

// drain resolves any submissions the workers never picked up.
func (r *Runner) drain() {
	for {
		select {
		case sub := <-r.tasks:
			sub.done <- ErrStopped
			close(sub.done)
		default:
			return
		}
	}
}

// runWorker is the main loop for one worker goroutine.
func (r *Runner) runWorker(ctx context.Context, workerID int) {
	defer r.wg.Done()

	logger := r.logger.With("worker_id", workerID)
	for {
		select {
		case <-r.stopCh:
			return
		case sub := <-r.tasks:
			r.execute(ctx, logger, sub)
		}
	}
}

// execute runs one task under the configured timeout and resolves its
// result channel. A panicking task is contained and reported as an error.
func (r *Runner) execute(ctx context.Context, logger *slog.Logger, sub submission) {
	taskCtx, cancel := context.WithTimeout(ctx, r.config.TaskTimeout)
	defer cancel()

	start := time.Now()
	err := runContained(taskCtx, sub.task)
	elapsed := time.Since(start)

	if err != nil {
		logger.Error("Task failed", "task", sub.task.Name, "duration", elapsed, "error", err)
	} else {
		logger.Debug("Task completed", "task", sub.task.Name, "duration", elapsed)
	}

	sub.done <- err
	close(sub.done)
}

func runContained(ctx context.Context, task Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, p)
		}
	}()
	return task.Fn(ctx)
}
