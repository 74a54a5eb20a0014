package catalog

import (
	"context"
	"time"
)

// Store persists course records. All mutation goes through its serialized
// write path; no component writes the backing file directly.
type Store interface {
	List(ctx context.Context, q Query) (CoursePage, error)
	Get(ctx context.Context, link string) (Course, error)
	Create(ctx context.Context, course Course) (Course, error)
	Update(ctx context.Context, link string, patch CoursePatch, expectedVersion int) (Course, error)
	UpsertFromEnrichment(ctx context.Context, link string, fields Course) (Course, error)
	Export(ctx context.Context, path string) error
}

// Enricher turns a URL plus optional hints into a best-effort complete
// course record. It has no side effects; the caller persists the result.
type Enricher interface {
	Enrich(ctx context.Context, req EnrichRequest) (Course, error)
}

// PageFetcher retrieves the visible text of a course page.
type PageFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// ModelClient submits a prompt to the generative model and returns the raw
// response body.
type ModelClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Queue provides enqueue/dequeue semantics for background tasks.
type Queue interface {
	Enqueue(ctx context.Context, item TaskItem) error
	Dequeue(ctx context.Context) (TaskItem, error)
}

// TaskStore tracks submitted tasks for polling and awaiting.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, taskErr error, course *Course) error
	GetTask(ctx context.Context, taskID string) (Task, error)
}

// Publisher pushes course-change events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task and request IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
