package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"
)

// TaskType names the reconciliation direction of a queued task.
type TaskType string

const (
	// TaskCanvasToSession pushes a local version to the durable store.
	TaskCanvasToSession TaskType = "canvas_to_session"

	// TaskSessionToCanvas pulls the durable session into the local graph.
	TaskSessionToCanvas TaskType = "session_to_canvas"

	// TaskVersionSelect pushes a selection change to the durable store.
	TaskVersionSelect TaskType = "version_select"
)

// Task is one queued reconciliation unit.
type Task struct {
	ID             string
	ConversationID string
	Type           TaskType
	Payload        any
	Timestamp      time.Time
}

// Queue serializes background reconciliation through a bounded channel
// drained by a single dedicated consumer goroutine. FIFO order holds
// across the whole queue, which implies FIFO per conversation.
type Queue struct {
	ch     chan Task
	logger *slog.Logger

	mu     gosync.Mutex
	closed bool
	done   chan struct{}
}

// NewQueue starts the consumer goroutine. handler is invoked for each
// task in order; it must not panic. size bounds the backlog: when full,
// new tasks are dropped with a warning rather than blocking producers.
func NewQueue(size int, handler func(context.Context, Task), logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		ch:     make(chan Task, size),
		logger: logger,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(q.done)
		ctx := context.Background()
		for task := range q.ch {
			handler(ctx, task)
		}
	}()

	return q
}

// Enqueue submits a task. Returns false if the queue is closed or full;
// a dropped task is recovered by a later full-session resync.
func (q *Queue) Enqueue(task Task) bool {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Timestamp.IsZero() {
		task.Timestamp = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	select {
	case q.ch <- task:
		return true
	default:
		q.logger.Warn("sync queue full, dropping task",
			"task_id", task.ID,
			"conversation_id", task.ConversationID,
			"type", string(task.Type))
		return false
	}
}

// Close stops accepting tasks, drains the backlog and waits for the
// consumer to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	<-q.done
}
