// Package worker runs the cooperative single-worker dispatch loop that
// drains kobold's task queue: claim, dispatch to the registered processor,
// and apply the retry/dead-letter policy on failure.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/kobold-io/kobold/pkg/contextutil"
	"github.com/kobold-io/kobold/pkg/logging"
	"github.com/kobold-io/kobold/pkg/model"
	"github.com/kobold-io/kobold/pkg/pipeline"
	"github.com/kobold-io/kobold/pkg/queue"
	"github.com/kobold-io/kobold/pkg/timeutil"
)

// errorBackoff is how long the loop pauses after an unexpected (non-task)
// error before trying again, so a persistent failure (e.g. a lost database
// connection) doesn't spin the CPU.
const errorBackoff = 5 * time.Second

// Worker claims and dispatches tasks from a Queue to the Processor
// registered for each task's type, until its context is canceled.
type Worker struct {
	queue        *queue.Queue
	registry     *pipeline.Registry
	pollInterval time.Duration
	logger       *logging.Logger
}

// New constructs a Worker. pollInterval bounds how long Run blocks waiting
// for a wake-up signal before re-checking the queue on its own.
func New(q *queue.Queue, registry *pipeline.Registry, pollInterval time.Duration, logger *logging.Logger) *Worker {
	return &Worker{
		queue:        q,
		registry:     registry,
		pollInterval: pollInterval,
		logger:       logger.Sublogger("worker"),
	}
}

// Run recovers stale tasks left PROCESSING by a prior crash, then loops
// claiming and processing tasks until ctx is canceled. A recovery failure is
// logged but does not prevent the loop from starting.
func (w *Worker) Run(ctx context.Context) {
	if recovered, err := w.queue.RecoverStale(); err != nil {
		w.logger.Errorf("Failed to recover stale tasks: %s", err)
	} else if recovered > 0 {
		w.logger.Infof("Recovered %d stale task(s)", recovered)
	}

	w.logger.Info("Worker ready")
	defer w.logger.Info("Worker stopped")

	timer := time.NewTimer(0)
	timeutil.StopAndDrainTimer(timer)

	for {
		if contextutil.IsCancelled(ctx) {
			return
		}

		task, err := w.queue.Claim()
		if err != nil {
			w.logger.Errorf("Worker loop error: %s", err)
			timer.Reset(errorBackoff)
			if !w.sleep(ctx, timer) {
				return
			}
			continue
		}

		if task == nil {
			w.queue.Wait(w.pollInterval)
			continue
		}

		w.process(ctx, task)
	}
}

// sleep blocks until timer fires or ctx is canceled, returning false in the
// latter case.
func (w *Worker) sleep(ctx context.Context, timer *time.Timer) bool {
	select {
	case <-ctx.Done():
		timeutil.StopAndDrainTimer(timer)
		return false
	case <-timer.C:
		return true
	}
}

// process dispatches a single claimed task to its registered processor and
// applies the completion/retry/dead-letter outcome.
func (w *Worker) process(ctx context.Context, task *model.Task) {
	log := w.logger.Sublogger(fmt.Sprintf("task-%s", task.ID))
	log.Infof("Processing %s task (retry %d)", task.Type, task.RetryCount)

	processor := w.registry.Lookup(task.Type)
	if processor == nil {
		errMsg := fmt.Sprintf("Unknown task type: %s", task.Type)
		log.Error(errMsg)
		w.queue.Complete(task.ID, errMsg, model.TaskStatusFailed)
		return
	}

	if err := processor.Process(ctx, task.Payload); err != nil {
		log.Errorf("Task failed: %s", err)
		w.handleFailure(task, fmt.Sprintf("%T: %s", err, err))
		return
	}

	w.queue.Complete(task.ID, "", model.TaskStatusCompleted)
	log.Info("Task completed successfully")
}

// handleFailure retries the task if its budget allows, otherwise moves it to
// the dead-letter state permanently.
func (w *Worker) handleFailure(task *model.Task, errMsg string) {
	if task.RetryCount < task.MaxRetries {
		w.queue.Retry(task.ID, errMsg, nil)
		return
	}

	w.logger.Sublogger(fmt.Sprintf("task-%s", task.ID)).Errorf("Task permanently failed, moving to dead letter")
	w.queue.Complete(task.ID, errMsg, model.TaskStatusDeadLetter)
}
