// Package transfer implements the concurrent upload engine: a bounded pool
// of remote connections draining a priority-ordered task queue, with
// per-task retry and aggregate progress reporting.
package transfer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sitedeploy/internal/remote"
)

// Concurrency and retry bounds enforced at construction.
const (
	MinConcurrency = 1
	MaxConcurrency = 20
	MaxRetryBound  = 10
)

// Config validates the engine's operating bounds and carries the
// connection settings handed to the factory for each pooled connection.
type Config struct {
	MaxConcurrency int
	MaxRetries     int
	Connection     remote.ConnectionConfig
}

// Engine drives concurrent uploads. One Engine serves one UploadAll call
// at a time; connections created during a run are pooled and reused until
// Close.
type Engine struct {
	cfg     Config
	factory remote.Factory
	log     zerolog.Logger

	// pool is a bag of idle connections; permits caps how many
	// connections exist at once.
	pool    chan remote.Client
	permits chan struct{}

	mu       sync.Mutex
	progress Progress

	onProgress func(Progress)
	onResult   func(Result)

	closeOnce sync.Once
}

// NewEngine validates cfg and builds an engine. Concurrency outside
// [1,20] or retries outside [0,10] fail immediately.
func NewEngine(factory remote.Factory, cfg Config, log zerolog.Logger) (*Engine, error) {
	if cfg.MaxConcurrency < MinConcurrency || cfg.MaxConcurrency > MaxConcurrency {
		return nil, fmt.Errorf("max concurrency must be between %d and %d, got %d",
			MinConcurrency, MaxConcurrency, cfg.MaxConcurrency)
	}
	if cfg.MaxRetries < 0 || cfg.MaxRetries > MaxRetryBound {
		return nil, fmt.Errorf("max retries must be between 0 and %d, got %d",
			MaxRetryBound, cfg.MaxRetries)
	}
	return &Engine{
		cfg:     cfg,
		factory: factory,
		log:     log,
		pool:    make(chan remote.Client, cfg.MaxConcurrency),
		permits: make(chan struct{}, cfg.MaxConcurrency),
	}, nil
}

// OnProgress registers the progress subscriber. Called synchronously from
// worker goroutines; the callback must not block.
func (e *Engine) OnProgress(fn func(Progress)) { e.onProgress = fn }

// OnResult registers the per-file result subscriber.
func (e *Engine) OnResult(fn func(Result)) { e.onResult = fn }

// UploadAll transfers every task and returns exactly one Result per task.
// Tasks are queued by priority ascending then size ascending, so cheap
// transfers surface feedback early; completion order across workers is
// unspecified. A context already cancelled before any worker starts fails
// the whole call with no results.
func (e *Engine) UploadAll(ctx context.Context, tasks []Task) ([]Result, error) {
	if len(tasks) == 0 {
		return []Result{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("upload cancelled before start: %w", err)
	}

	var totalBytes int64
	for _, t := range tasks {
		totalBytes += t.Size
	}
	e.mu.Lock()
	e.progress = Progress{
		TotalFiles:   len(tasks),
		PendingFiles: len(tasks),
		TotalBytes:   totalBytes,
		StartedAt:    time.Now(),
	}
	snapshot := e.progress
	e.mu.Unlock()
	e.publish(snapshot)

	ordered := make([]Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].Size < ordered[j].Size
	})

	queue := make(chan Task, len(ordered))
	for _, t := range ordered {
		queue <- t
	}
	close(queue)

	results := make([]Result, 0, len(tasks))
	var resultsMu sync.Mutex
	record := func(r Result) {
		resultsMu.Lock()
		results = append(results, r)
		resultsMu.Unlock()
		e.recordResult(r)
	}

	var wg sync.WaitGroup
	var acquireMu sync.Mutex
	var acquireErr error
	for i := 0; i < e.cfg.MaxConcurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			if err := e.runWorker(ctx, workerID, queue, record); err != nil {
				acquireMu.Lock()
				acquireErr = err
				acquireMu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		// Partial results from before the cancellation are still returned.
		return results, err
	}

	// A worker that cannot connect exits and leaves its share of the queue
	// to the workers that did. Anything still queued here means no worker
	// held a connection; each remaining task gets its failed Result.
	if acquireErr != nil {
		for task := range queue {
			if ctx.Err() != nil {
				break
			}
			e.markActive()
			now := time.Now()
			record(Result{
				Task:        task,
				Status:      StatusFailed,
				Err:         acquireErr,
				Message:     acquireErr.Error(),
				StartedAt:   now,
				CompletedAt: now,
			})
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
	}
	return results, nil
}

// runWorker leases one connection and drains the queue until it is empty
// or the context is cancelled. A worker that cannot connect returns the
// acquisition error and leaves the queue to the remaining workers; the
// run continues with reduced concurrency.
func (e *Engine) runWorker(ctx context.Context, id int, queue <-chan Task, record func(Result)) error {
	client, err := e.acquireClient(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		e.log.Error().Int("worker", id).Err(err).Msg("worker failed to acquire connection")
		return err
	}
	defer e.releaseClient(client)

	for {
		if ctx.Err() != nil {
			return nil
		}
		task, ok := <-queue
		if !ok {
			return nil
		}
		e.markActive()
		record(e.uploadWithRetry(ctx, client, task))
	}
}

// uploadWithRetry attempts one task up to MaxRetries+1 times with a fixed
// exponential backoff of 1s, 2s, 4s, ... Every error is retried here;
// classification is deliberately not consulted for per-file transfers.
func (e *Engine) uploadWithRetry(ctx context.Context, client remote.Client, task Task) Result {
	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * time.Second
			e.log.Warn().
				Str("file", task.RemotePath).
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(lastErr).
				Msg("transfer failed, retrying")
			select {
			case <-ctx.Done():
				return Result{
					Task:          task,
					Status:        StatusCancelled,
					Err:           ctx.Err(),
					Message:       ctx.Err().Error(),
					RetryAttempts: attempt - 1,
					StartedAt:     start,
					CompletedAt:   time.Now(),
				}
			case <-time.After(delay):
			}
		}

		uploaded, err := client.UploadFile(ctx, task.LocalPath, task.RemotePath, task.Overwrite, task.CreateDirs)
		if err == nil {
			status := StatusCompleted
			if !uploaded {
				status = StatusSkipped
			}
			return Result{
				Task:          task,
				Success:       true,
				Status:        status,
				RetryAttempts: attempt,
				StartedAt:     start,
				CompletedAt:   time.Now(),
			}
		}
		lastErr = err
	}

	return Result{
		Task:          task,
		Status:        StatusFailed,
		Err:           lastErr,
		Message:       lastErr.Error(),
		RetryAttempts: e.cfg.MaxRetries,
		StartedAt:     start,
		CompletedAt:   time.Now(),
	}
}

// acquireClient reuses a live pooled connection or creates a new one under
// the permit bound. Dead pooled connections are disposed and their permit
// returned before another acquisition attempt.
func (e *Engine) acquireClient(ctx context.Context) (remote.Client, error) {
	for {
		select {
		case c := <-e.pool:
			if c.IsConnected() {
				return c, nil
			}
			c.Close()
			<-e.permits
			continue
		default:
		}

		select {
		case c := <-e.pool:
			if c.IsConnected() {
				return c, nil
			}
			c.Close()
			<-e.permits
		case e.permits <- struct{}{}:
			c, err := e.factory.NewClient(e.cfg.Connection)
			if err != nil {
				<-e.permits
				return nil, err
			}
			if err := c.Connect(ctx); err != nil {
				c.Close()
				<-e.permits
				return nil, err
			}
			return c, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// releaseClient returns a live connection to the pool, or disposes it and
// frees its permit.
func (e *Engine) releaseClient(c remote.Client) {
	if c == nil {
		return
	}
	if c.IsConnected() {
		select {
		case e.pool <- c:
			return
		default:
		}
	}
	c.Close()
	<-e.permits
}

// markActive moves one task from pending to active and republishes.
func (e *Engine) markActive() {
	e.mu.Lock()
	e.progress.ActiveFiles++
	e.progress.PendingFiles--
	snapshot := e.progress
	e.mu.Unlock()
	e.publish(snapshot)
}

// recordResult folds one Result into the aggregate counters under the
// single progress lock, then republishes. Counter updates are atomic
// relative to each other: no observer sees completed files and uploaded
// bytes out of sync.
func (e *Engine) recordResult(r Result) {
	e.mu.Lock()
	p := &e.progress
	p.ActiveFiles--
	p.CompletedFiles++
	if r.Success {
		p.Succeeded++
		// A skipped task moved no bytes; counting it would inflate the
		// throughput and the time estimate.
		if r.Status != StatusSkipped {
			p.UploadedBytes += r.Task.Size
		}
	} else {
		p.Failed++
	}

	elapsed := time.Since(p.StartedAt).Seconds()
	if elapsed > 0 {
		p.AverageBytesPerSecond = float64(p.UploadedBytes) / elapsed
	}
	p.BytesPerSecond = p.AverageBytesPerSecond
	if p.AverageBytesPerSecond > 0 {
		remaining := time.Duration(float64(p.TotalBytes-p.UploadedBytes) / p.AverageBytesPerSecond * float64(time.Second))
		p.EstimatedRemaining = &remaining
	} else {
		p.EstimatedRemaining = nil
	}
	snapshot := e.progress
	e.mu.Unlock()

	if e.onResult != nil {
		e.onResult(r)
	}
	e.publish(snapshot)
}

func (e *Engine) publish(p Progress) {
	if e.onProgress != nil {
		e.onProgress(p)
	}
}

// Close disposes every pooled connection. Idempotent.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		for {
			select {
			case c := <-e.pool:
				c.Close()
				<-e.permits
			default:
				return
			}
		}
	})
	return nil
}
