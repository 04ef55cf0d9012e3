package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kobold-io/kobold/pkg/model"
)

// CreateTask inserts a new PENDING task with the given type and already-
// encoded payload.
func (s *Store) CreateTask(taskType model.TaskType, payload []byte) (*model.Task, error) {
	task := &model.Task{
		ID:         uuid.New(),
		Type:       taskType,
		Payload:    payload,
		Status:     model.TaskStatusPending,
		MaxRetries: model.DefaultMaxRetries,
		CreatedAt:  time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO tasks (id, type, payload, status, retry_count, max_retries, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		task.ID.String(), string(task.Type), string(task.Payload), string(task.Status),
		task.MaxRetries, task.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to insert task: %w", err)
	}
	return task, nil
}

// ClaimTask atomically selects the oldest eligible PENDING task and marks it
// PROCESSING, within a single transaction so that concurrent claimants never
// both succeed on the same row.
func (s *Store) ClaimTask() (*model.Task, error) {
	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(taskSelect+`
		WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY (next_retry_at IS NOT NULL), next_retry_at ASC, created_at ASC
		LIMIT 1`,
		string(model.TaskStatusPending), now.Format(timeLayout),
	)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrTaskNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`UPDATE tasks SET status = ?, started_at = ? WHERE id = ?`,
		string(model.TaskStatusProcessing), now.Format(timeLayout), task.ID.String(),
	); err != nil {
		return nil, fmt.Errorf("unable to claim task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("unable to commit claim: %w", err)
	}

	task.Status = model.TaskStatusProcessing
	task.StartedAt = &now
	return task, nil
}

// CompleteTask transitions a task to a terminal status: the supplied status
// if given, else FAILED if error is non-empty, else COMPLETED. Completing an
// unknown id is reported via ErrTaskNotFound so the caller can warn and
// continue rather than treat it as fatal.
func (s *Store) CompleteTask(id uuid.UUID, errMessage string, status model.TaskStatus) error {
	if status == "" {
		if errMessage != "" {
			status = model.TaskStatusFailed
		} else {
			status = model.TaskStatusCompleted
		}
	}

	now := time.Now().UTC()
	var errArg any
	if errMessage != "" {
		errArg = errMessage
	}

	result, err := s.db.Exec(
		`UPDATE tasks SET status = ?, error_message = COALESCE(?, error_message), completed_at = ? WHERE id = ?`,
		string(status), errArg, now.Format(timeLayout), id.String(),
	)
	if err != nil {
		return fmt.Errorf("unable to complete task: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// RetryTask increments retry_count, records the error, and reschedules the
// task as PENDING after delay (exponential backoff by default: 10*2^(n-1)
// seconds, computed from the post-increment retry count).
func (s *Store) RetryTask(id uuid.UUID, errMessage string, delay *time.Duration) error {
	task, err := s.GetTask(id)
	if errors.Is(err, ErrTaskNotFound) {
		return ErrTaskNotFound
	} else if err != nil {
		return err
	}

	retryCount := task.RetryCount + 1

	var wait time.Duration
	if delay != nil {
		wait = *delay
	} else {
		wait = time.Duration(10*(1<<uint(retryCount-1))) * time.Second
	}
	nextRetryAt := time.Now().UTC().Add(wait)

	result, err := s.db.Exec(
		`UPDATE tasks SET retry_count = ?, error_message = ?, status = ?, next_retry_at = ? WHERE id = ?`,
		retryCount, errMessage, string(model.TaskStatusPending), nextRetryAt.Format(timeLayout), id.String(),
	)
	if err != nil {
		return fmt.Errorf("unable to retry task: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// RecoverStale resets every PROCESSING task whose started_at is older than
// 15 minutes back to PENDING, incrementing its retry count. It returns the
// number of tasks recovered.
func (s *Store) RecoverStale() (int, error) {
	cutoff := time.Now().UTC().Add(-15 * time.Minute)

	result, err := s.db.Exec(`
		UPDATE tasks SET
			status = ?, started_at = NULL, retry_count = retry_count + 1,
			error_message = ?
		WHERE status = ? AND started_at < ?`,
		string(model.TaskStatusPending), "recovered from stale state",
		string(model.TaskStatusProcessing), cutoff.Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("unable to recover stale tasks: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("unable to count recovered tasks: %w", err)
	}
	return int(affected), nil
}

// Stats returns the count of tasks in each status.
func (s *Store) Stats() (map[model.TaskStatus]int, error) {
	stats := make(map[model.TaskStatus]int, len(model.AllTaskStatuses))
	for _, status := range model.AllTaskStatuses {
		stats[status] = 0
	}

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("unable to query task stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("unable to scan task stats: %w", err)
		}
		stats[model.TaskStatus(status)] = count
	}
	return stats, rows.Err()
}

// ErrTaskNotFound is returned by task lookups that find no matching row.
var ErrTaskNotFound = errors.New("store: task not found")

// GetTask loads a task by id.
func (s *Store) GetTask(id uuid.UUID) (*model.Task, error) {
	return scanTask(s.db.QueryRow(taskSelect+`WHERE id = ?`, id.String()))
}

const taskSelect = `
	SELECT id, type, payload, status, retry_count, max_retries, error_message,
		created_at, started_at, completed_at, next_retry_at
	FROM tasks `

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		task                                              model.Task
		idText, taskType, payload, status, createdAt       string
		errMessage, startedAt, completedAt, nextRetryAt    sql.NullString
	)

	err := row.Scan(
		&idText, &taskType, &payload, &status, &task.RetryCount, &task.MaxRetries,
		&errMessage, &createdAt, &startedAt, &completedAt, &nextRetryAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	} else if err != nil {
		return nil, fmt.Errorf("unable to scan task: %w", err)
	}

	task.ID, err = uuid.Parse(idText)
	if err != nil {
		return nil, fmt.Errorf("unable to parse task id: %w", err)
	}
	task.Type = model.TaskType(taskType)
	task.Payload = []byte(payload)
	task.Status = model.TaskStatus(status)
	if errMessage.Valid {
		msg := errMessage.String
		task.ErrorMessage = &msg
	}
	task.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("unable to parse created_at: %w", err)
	}
	task.StartedAt = parseTimePtr(startedAt)
	task.CompletedAt = parseTimePtr(completedAt)
	task.NextRetryAt = parseTimePtr(nextRetryAt)

	return &task, nil
}
