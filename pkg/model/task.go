package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusDeadLetter TaskStatus = "DEAD_LETTER"
)

// AllTaskStatuses enumerates every status, in the order reported by Stats.
var AllTaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusProcessing,
	TaskStatusCompleted,
	TaskStatusFailed,
	TaskStatusDeadLetter,
}

// Terminal reports whether status is one from which a task never transitions
// again.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusDeadLetter:
		return true
	default:
		return false
	}
}

// TaskType is the discriminator identifying which processor handles a task
// and how its payload should be interpreted.
type TaskType string

const (
	TaskTypeIngest   TaskType = "INGEST"
	TaskTypeMetadata TaskType = "METADATA"
	TaskTypeConvert  TaskType = "CONVERT"
	TaskTypeOrganize TaskType = "ORGANIZE"
)

// DefaultMaxRetries is the retry budget assigned to every newly enqueued
// task.
const DefaultMaxRetries = 3

// Task is a durable unit of work tracked by the task queue.
type Task struct {
	ID   uuid.UUID
	Type TaskType

	// Payload is the task's wire payload, stored as raw JSON so that the
	// queue itself never needs to understand per-type shapes; processors
	// decode it into the concrete *Payload type for their TaskType.
	Payload json.RawMessage

	Status      TaskStatus
	RetryCount  int
	MaxRetries  int
	ErrorMessage *string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	NextRetryAt *time.Time
}

// IngestPayload is the payload carried by INGEST tasks.
type IngestPayload struct {
	Event string `json:"event"`
	Path  string `json:"path"`
}

const (
	IngestEventAdd    = "ADD"
	IngestEventDelete = "DELETE"
)

// BookPayload is the payload carried by METADATA, CONVERT, and ORGANIZE
// tasks, all of which operate on a single already-ingested book.
type BookPayload struct {
	BookID uuid.UUID `json:"book_id"`
}

// EncodePayload marshals a typed payload (IngestPayload or BookPayload) to
// the raw JSON form stored alongside a task.
func EncodePayload(payload any) (json.RawMessage, error) {
	return json.Marshal(payload)
}
