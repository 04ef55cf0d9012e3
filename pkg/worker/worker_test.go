package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kobold-io/kobold/pkg/logging"
	"github.com/kobold-io/kobold/pkg/model"
	"github.com/kobold-io/kobold/pkg/pipeline"
	"github.com/kobold-io/kobold/pkg/queue"
	"github.com/kobold-io/kobold/pkg/store"
)

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("unable to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return queue.New(s, logging.NewLogger(io.Discard, logging.LevelDisabled))
}

// countingProcessor records every invocation and returns a scripted result,
// optionally failing a fixed number of times before succeeding.
type countingProcessor struct {
	mu        sync.Mutex
	calls     int
	failUntil int
	err       error
}

func (p *countingProcessor) Process(ctx context.Context, payload json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failUntil {
		return p.err
	}
	return nil
}

func (p *countingProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func runUntil(t *testing.T, w *Worker, deadline time.Duration, condition func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if condition() {
				cancel()
				<-done
				return
			}
		case <-ctx.Done():
			<-done
			return
		}
	}
}

func TestWorkerCompletesSucceedingTask(t *testing.T) {
	q := newTestQueue(t)
	registry := pipeline.NewRegistry()
	proc := &countingProcessor{}
	registry.Register(model.TaskTypeIngest, proc)

	if _, err := q.Enqueue(model.TaskTypeIngest, model.IngestPayload{Event: model.IngestEventAdd, Path: "/x.epub"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	w := New(q, registry, 20*time.Millisecond, logging.NewLogger(io.Discard, logging.LevelDisabled))
	runUntil(t, w, 2*time.Second, func() bool { return proc.callCount() >= 1 })

	stats, err := q.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[model.TaskStatusCompleted] != 1 {
		t.Errorf("expected 1 completed task, got stats=%v", stats)
	}
}

// TestWorkerRetriesFailingTask drives process() directly (rather than
// through Run's poll loop) so the test doesn't need to wait out a real
// backoff: a single failing attempt should reschedule the task as PENDING,
// not dead-letter it, since its retry budget isn't yet exhausted.
func TestWorkerRetriesFailingTask(t *testing.T) {
	q := newTestQueue(t)
	registry := pipeline.NewRegistry()
	proc := &countingProcessor{failUntil: 999, err: errors.New("always fails")}
	registry.Register(model.TaskTypeIngest, proc)

	w := New(q, registry, time.Second, logging.NewLogger(io.Discard, logging.LevelDisabled))
	ctx := context.Background()

	if _, err := q.Enqueue(model.TaskTypeIngest, model.IngestPayload{Event: model.IngestEventAdd, Path: "/x.epub"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := q.Claim()
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	w.process(ctx, claimed)

	stats, err := q.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[model.TaskStatusPending] != 1 {
		t.Errorf("expected task rescheduled pending, got stats=%v", stats)
	}
	if stats[model.TaskStatusDeadLetter] != 0 {
		t.Errorf("task should not be dead-lettered before its retry budget is exhausted, got stats=%v", stats)
	}
}

// TestWorkerDeadLettersExhaustedTask prepares a task whose retry_count
// already equals its max_retries (via the queue's own, separately tested
// Retry call with an explicit zero delay, so no real backoff elapses) and
// verifies a further failure dead-letters it instead of retrying again.
func TestWorkerDeadLettersExhaustedTask(t *testing.T) {
	q := newTestQueue(t)
	registry := pipeline.NewRegistry()
	proc := &countingProcessor{failUntil: 999, err: errors.New("always fails")}
	registry.Register(model.TaskTypeIngest, proc)

	w := New(q, registry, time.Second, logging.NewLogger(io.Discard, logging.LevelDisabled))
	ctx := context.Background()

	task, err := q.Enqueue(model.TaskTypeIngest, model.IngestPayload{Event: model.IngestEventAdd, Path: "/x.epub"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	zero := time.Duration(0)
	for i := 0; i < task.MaxRetries; i++ {
		q.Retry(task.ID, "priming retry budget", &zero)
	}

	claimed, err := q.Claim()
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected primed task to be immediately claimable")
	}
	if claimed.RetryCount != task.MaxRetries {
		t.Fatalf("expected retry_count primed to %d, got %d", task.MaxRetries, claimed.RetryCount)
	}

	w.process(ctx, claimed)

	stats, err := q.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[model.TaskStatusDeadLetter] != 1 {
		t.Errorf("expected task to be dead-lettered after exhausting retries, got stats=%v", stats)
	}
}

func TestWorkerUnknownTaskTypeIsFailed(t *testing.T) {
	q := newTestQueue(t)
	registry := pipeline.NewRegistry() // nothing registered

	if _, err := q.Enqueue(model.TaskTypeConvert, model.BookPayload{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	w := New(q, registry, 10*time.Millisecond, logging.NewLogger(io.Discard, logging.LevelDisabled))
	runUntil(t, w, 2*time.Second, func() bool {
		stats, err := q.Stats()
		if err != nil {
			return false
		}
		return stats[model.TaskStatusFailed] == 1
	})

	stats, err := q.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[model.TaskStatusFailed] != 1 {
		t.Errorf("expected unknown task type to be FAILED, got stats=%v", stats)
	}
}

func TestWorkerRunStopsOnCancelWithEmptyQueue(t *testing.T) {
	q := newTestQueue(t)
	registry := pipeline.NewRegistry()
	proc := &countingProcessor{}
	registry.Register(model.TaskTypeIngest, proc)

	w := New(q, registry, 10*time.Millisecond, logging.NewLogger(io.Discard, logging.LevelDisabled))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	w.Run(ctx) // should not panic even with an empty queue
}
