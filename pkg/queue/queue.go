// Package queue implements kobold's durable, single-process task queue:
// FIFO dispatch with retry scheduling, a dead-letter terminal state, and
// stale-task recovery after a crash or hang.
package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kobold-io/kobold/pkg/logging"
	"github.com/kobold-io/kobold/pkg/model"
	"github.com/kobold-io/kobold/pkg/store"
)

// Queue is the single-process task queue backing the pipeline worker. All
// persistence goes through the underlying *store.Store; Queue itself only
// adds the wake-up signal and retry/dead-letter policy on top.
type Queue struct {
	store  *store.Store
	signal *wakeupSignal
	logger *logging.Logger
}

// New constructs a Queue over an already-open store.
func New(s *store.Store, logger *logging.Logger) *Queue {
	return &Queue{
		store:  s,
		signal: newWakeupSignal(),
		logger: logger,
	}
}

// Enqueue inserts a new PENDING task and wakes any worker waiting for work.
func (q *Queue) Enqueue(taskType model.TaskType, payload any) (*model.Task, error) {
	encoded, err := model.EncodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("unable to encode task payload: %w", err)
	}

	task, err := q.store.CreateTask(taskType, encoded)
	if err != nil {
		return nil, err
	}

	q.logger.Sublogger("queue").Infof("Task %s (%s) added to queue", task.ID, task.Type)
	q.signal.Signal()
	return task, nil
}

// Claim atomically selects and marks PROCESSING the oldest eligible task, or
// returns nil if none are ready.
func (q *Queue) Claim() (*model.Task, error) {
	task, err := q.store.ClaimTask()
	if err != nil {
		return nil, err
	}
	if task != nil {
		q.logger.Sublogger("queue").Debugf("Task %s (%s) claimed for processing, retry %d", task.ID, task.Type, task.RetryCount)
	}
	return task, nil
}

// Complete transitions a task to a terminal status: the supplied status if
// given, else FAILED if error is non-empty, else COMPLETED. Completing an
// unknown id is logged and otherwise ignored.
func (q *Queue) Complete(taskID uuid.UUID, errMessage string, status model.TaskStatus) {
	log := q.logger.Sublogger("queue")
	if err := q.store.CompleteTask(taskID, errMessage, status); err != nil {
		log.Warnf("Attempted to complete unknown task %s", taskID)
		return
	}
	log.Infof("Task %s completed", taskID)
}

// Retry increments a task's retry count and reschedules it as PENDING after
// an exponential backoff delay (10 * 2^(retry_count-1) seconds), unless an
// explicit delay is supplied. Retrying an unknown id is logged and ignored.
func (q *Queue) Retry(taskID uuid.UUID, errMessage string, delay *time.Duration) {
	log := q.logger.Sublogger("queue")
	if err := q.store.RetryTask(taskID, errMessage, delay); err != nil {
		log.Warnf("Attempted to retry unknown task %s", taskID)
		return
	}
	log.Warnf("Task %s scheduled for retry: %s", taskID, errMessage)
}

// RecoverStale resets PROCESSING tasks stuck since before the last worker
// crash or hang back to PENDING. It is called once at worker startup.
func (q *Queue) RecoverStale() (int, error) {
	return q.store.RecoverStale()
}

// Stats returns the count of tasks in each status.
func (q *Queue) Stats() (map[model.TaskStatus]int, error) {
	return q.store.Stats()
}

// Wait blocks until a task is enqueued or timeout elapses, then clears the
// signal. The worker calls this only when Claim found no eligible task.
func (q *Queue) Wait(timeout time.Duration) {
	q.signal.Wait(timeout)
}
