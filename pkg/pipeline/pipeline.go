// Package pipeline implements kobold's four task processors — INGEST,
// METADATA, CONVERT, and ORGANIZE — and the registry that dispatches a
// claimed task to its processor by type.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kobold-io/kobold/pkg/model"
)

// Processor handles every task of one model.TaskType. Implementations must
// be idempotent: processing the same book twice converges to the same
// state rather than duplicating work.
type Processor interface {
	Process(ctx context.Context, payload json.RawMessage) error
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc func(ctx context.Context, payload json.RawMessage) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, payload json.RawMessage) error {
	return f(ctx, payload)
}

// Registry maps task types to the processor that handles them.
type Registry struct {
	processors map[model.TaskType]Processor
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{processors: make(map[model.TaskType]Processor)}
}

// Register associates a processor with a task type, overwriting any prior
// registration for that type.
func (r *Registry) Register(taskType model.TaskType, processor Processor) {
	r.processors[taskType] = processor
}

// Lookup returns the processor registered for taskType, or nil if none is
// registered.
func (r *Registry) Lookup(taskType model.TaskType) Processor {
	return r.processors[taskType]
}

// decodePayload is a small helper shared by every processor to unmarshal
// its typed payload from the task's raw JSON.
func decodePayload(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unable to decode task payload: %w", err)
	}
	return nil
}
