package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kobold-io/kobold/pkg/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("unable to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestRecoverStaleResetsOldProcessingTasks tests that a PROCESSING task
// backdated past the 15-minute stale cutoff is reset to PENDING with its
// retry count incremented and started_at cleared.
func TestRecoverStaleResetsOldProcessingTasks(t *testing.T) {
	s := newTestStore(t)

	task, err := s.CreateTask(model.TaskTypeIngest, []byte(`{}`))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := s.ClaimTask(); err != nil {
		t.Fatalf("claim task: %v", err)
	}

	staleStart := time.Now().UTC().Add(-20 * time.Minute)
	if _, err := s.db.Exec(`UPDATE tasks SET started_at = ? WHERE id = ?`, staleStart.Format(timeLayout), task.ID.String()); err != nil {
		t.Fatalf("backdate started_at: %v", err)
	}

	recovered, err := s.RecoverStale()
	if err != nil {
		t.Fatalf("recover stale: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("expected 1 recovered task, got %d", recovered)
	}

	reloaded, err := s.GetTask(task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if reloaded.Status != model.TaskStatusPending {
		t.Errorf("expected PENDING, got %s", reloaded.Status)
	}
	if reloaded.StartedAt != nil {
		t.Errorf("expected started_at cleared, got %v", reloaded.StartedAt)
	}
	if reloaded.RetryCount != 1 {
		t.Errorf("expected retry_count 1, got %d", reloaded.RetryCount)
	}
	if reloaded.ErrorMessage == nil || *reloaded.ErrorMessage != "recovered from stale state" {
		t.Errorf("expected recovery error message, got %v", reloaded.ErrorMessage)
	}
}

// TestRecoverStaleIgnoresRecentProcessing tests that a task claimed moments
// ago is left untouched.
func TestRecoverStaleIgnoresRecentProcessing(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.CreateTask(model.TaskTypeIngest, []byte(`{}`)); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := s.ClaimTask(); err != nil {
		t.Fatalf("claim task: %v", err)
	}

	recovered, err := s.RecoverStale()
	if err != nil {
		t.Fatalf("recover stale: %v", err)
	}
	if recovered != 0 {
		t.Errorf("expected 0 recovered tasks, got %d", recovered)
	}
}

// TestCompleteUnknownTaskReturnsNotFound tests that completing a
// non-existent task id is reported distinctly so callers can warn without
// treating it as fatal.
func TestCompleteUnknownTaskReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	if err := s.CompleteTask(uuid.New(), "", model.TaskStatusCompleted); err != ErrTaskNotFound {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}
