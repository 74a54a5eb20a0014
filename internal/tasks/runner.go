// Package tasks runs catalog writes and enrichment as background work
// with a synchronous fallback when the queue is unavailable.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"course-catalog/internal/catalog"
	"course-catalog/internal/metrics"
)

// Config controls Runner behavior.
type Config struct {
	// Workers is the size of the consumer pool started by Run.
	Workers int
	// EnqueueTimeout bounds how long Submit waits for queue space
	// before executing the task inline.
	EnqueueTimeout time.Duration
	// ExportPath, when set, receives a catalog snapshot after every
	// successful write.
	ExportPath string
	// Topic names the course event stream.
	Topic string
}

// Event is published after every successful catalog write.
type Event struct {
	Type   string         `json:"type"`
	TaskID string         `json:"task_id"`
	Course catalog.Course `json:"course"`
}

// Runner owns the task lifecycle: it persists task records, fans work
// out to a worker pool, and executes inline when the queue is full or
// closed so accepted work is never dropped.
type Runner struct {
	store     catalog.Store
	taskStore catalog.TaskStore
	queue     catalog.Queue
	enricher  catalog.Enricher
	publisher catalog.Publisher
	clock     catalog.Clock
	ids       catalog.IDGenerator
	logger    *zap.Logger
	cfg       Config

	waitMu  sync.Mutex
	waiters map[string]chan struct{}
}

// New constructs a Runner.
func New(
	store catalog.Store,
	taskStore catalog.TaskStore,
	queue catalog.Queue,
	enricher catalog.Enricher,
	publisher catalog.Publisher,
	clock catalog.Clock,
	ids catalog.IDGenerator,
	logger *zap.Logger,
	cfg Config,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = time.Second
	}
	return &Runner{
		store:     store,
		taskStore: taskStore,
		queue:     queue,
		enricher:  enricher,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		logger:    logger,
		cfg:       cfg,
		waiters:   make(map[string]chan struct{}),
	}
}

// Run starts the worker pool and blocks until the context finishes.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.consume(ctx)
		}()
	}
	wg.Wait()
}

func (r *Runner) consume(ctx context.Context) {
	for {
		item, err := r.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("queue dequeue failed", zap.Error(err))
			return
		}
		r.logger.Debug("dequeued task",
			zap.String("task_id", item.TaskID),
			zap.String("kind", string(item.Kind)))
		r.execute(ctx, item)
	}
}

// Submit records a task and hands it to the worker pool. When the queue
// cannot accept the item within the enqueue budget, the task executes
// inline on the caller's goroutine instead of being rejected.
func (r *Runner) Submit(ctx context.Context, kind catalog.TaskKind, payload catalog.TaskPayload) (catalog.Task, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return catalog.Task{}, err
	}
	task := catalog.Task{
		ID:        id,
		Kind:      kind,
		Status:    catalog.TaskStatusQueued,
		Submitted: r.clock.Now(),
		Payload:   payload,
	}
	if err := r.taskStore.CreateTask(ctx, task); err != nil {
		return catalog.Task{}, err
	}
	r.registerWaiter(id)

	item := catalog.TaskItem{TaskID: id, Kind: kind, Payload: payload}
	enqueueCtx, cancel := context.WithTimeout(ctx, r.cfg.EnqueueTimeout)
	err = r.queue.Enqueue(enqueueCtx, item)
	cancel()
	if err != nil {
		r.logger.Warn("queue unavailable, executing task inline",
			zap.String("task_id", id),
			zap.Error(err))
		r.execute(ctx, item)
	}
	return r.taskStore.GetTask(ctx, id)
}

// Await blocks until the task reaches a terminal status or the timeout
// elapses. The boolean reports whether the task finished in time.
func (r *Runner) Await(ctx context.Context, taskID string, timeout time.Duration) (catalog.Task, bool, error) {
	done := r.waiterFor(taskID)
	if done == nil {
		// Unknown waiter: the task may already be terminal.
		task, err := r.taskStore.GetTask(ctx, taskID)
		if err != nil {
			return catalog.Task{}, false, err
		}
		return task, taskTerminal(task.Status), nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	finished := false
	select {
	case <-done:
		finished = true
	case <-timer.C:
	case <-ctx.Done():
	}

	task, err := r.taskStore.GetTask(ctx, taskID)
	if err != nil {
		return catalog.Task{}, false, err
	}
	return task, finished && taskTerminal(task.Status), nil
}

// GetTask exposes task metadata for polling clients.
func (r *Runner) GetTask(ctx context.Context, taskID string) (catalog.Task, error) {
	return r.taskStore.GetTask(ctx, taskID)
}

func (r *Runner) execute(ctx context.Context, item catalog.TaskItem) {
	if err := r.taskStore.UpdateTaskStatus(ctx, item.TaskID, catalog.TaskStatusRunning, nil, nil); err != nil {
		r.logger.Error("task status update failed",
			zap.String("task_id", item.TaskID),
			zap.Error(err))
	}

	course, err := r.run(ctx, item)
	if err != nil {
		r.logger.Warn("task failed",
			zap.String("task_id", item.TaskID),
			zap.String("kind", string(item.Kind)),
			zap.Error(err))
		if uerr := r.taskStore.UpdateTaskStatus(ctx, item.TaskID, catalog.TaskStatusFailed, err, nil); uerr != nil {
			r.logger.Error("task status update failed",
				zap.String("task_id", item.TaskID),
				zap.Error(uerr))
		}
		metrics.ObserveTask(string(item.Kind), string(catalog.TaskStatusFailed))
		r.finish(item.TaskID)
		return
	}

	if uerr := r.taskStore.UpdateTaskStatus(ctx, item.TaskID, catalog.TaskStatusSucceeded, nil, &course); uerr != nil {
		r.logger.Error("task status update failed",
			zap.String("task_id", item.TaskID),
			zap.Error(uerr))
	}
	metrics.ObserveTask(string(item.Kind), string(catalog.TaskStatusSucceeded))
	r.afterWrite(ctx, item, course)
	r.finish(item.TaskID)
}

func (r *Runner) run(ctx context.Context, item catalog.TaskItem) (catalog.Course, error) {
	switch item.Kind {
	case catalog.TaskCreateCourse:
		course, err := r.store.Create(ctx, item.Payload.Course)
		if err != nil {
			return catalog.Course{}, err
		}
		metrics.ObserveWrite("create")
		return course, nil
	case catalog.TaskUpdateCourse:
		course, err := r.store.Update(ctx, item.Payload.Link, item.Payload.Patch, item.Payload.ExpectedVersion)
		if err != nil {
			return catalog.Course{}, err
		}
		metrics.ObserveWrite("update")
		return course, nil
	case catalog.TaskEnrichCourse:
		enriched, err := r.enricher.Enrich(ctx, item.Payload.Enrich)
		if err != nil {
			return catalog.Course{}, err
		}
		course, err := r.store.UpsertFromEnrichment(ctx, enriched.Link, enriched)
		if err != nil {
			return catalog.Course{}, err
		}
		metrics.ObserveWrite("enrich")
		return course, nil
	default:
		return catalog.Course{}, fmt.Errorf("unknown task kind %q", item.Kind)
	}
}

func (r *Runner) afterWrite(ctx context.Context, item catalog.TaskItem, course catalog.Course) {
	if r.publisher != nil {
		event := Event{Type: string(item.Kind), TaskID: item.TaskID, Course: course}
		if _, err := r.publisher.Publish(ctx, r.cfg.Topic, event); err != nil {
			r.logger.Warn("course event publish failed",
				zap.String("task_id", item.TaskID),
				zap.Error(err))
		}
	}
	if r.cfg.ExportPath != "" {
		if err := r.store.Export(ctx, r.cfg.ExportPath); err != nil {
			r.logger.Warn("catalog export failed",
				zap.String("path", r.cfg.ExportPath),
				zap.Error(err))
		}
	}
}

func (r *Runner) registerWaiter(taskID string) {
	r.waitMu.Lock()
	defer r.waitMu.Unlock()
	r.waiters[taskID] = make(chan struct{})
}

func (r *Runner) waiterFor(taskID string) chan struct{} {
	r.waitMu.Lock()
	defer r.waitMu.Unlock()
	return r.waiters[taskID]
}

func (r *Runner) finish(taskID string) {
	r.waitMu.Lock()
	defer r.waitMu.Unlock()
	if done, ok := r.waiters[taskID]; ok {
		close(done)
		delete(r.waiters, taskID)
	}
}

func taskTerminal(status catalog.TaskStatus) bool {
	return status == catalog.TaskStatusSucceeded || status == catalog.TaskStatusFailed
}
