// Package model defines the persistent entities of the library pipeline:
// books and the tasks that mutate them.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Book is a single ebook file currently or formerly present in the library.
// It is mutated by the pipeline stages in pkg/pipeline as a book moves
// through ingest, metadata enrichment, conversion, and organization.
type Book struct {
	ID   uuid.UUID
	Title string

	Author          *string
	Series          *string
	SeriesIndex     *int
	Language        *string
	Genre           *string
	PublicationDate *time.Time
	ISBN            *string

	FilePath   string
	FileHash   string
	FileSize   int64
	FileFormat string

	// KepubPath is the path of the derived artifact produced by the CONVERT
	// stage, if any.
	KepubPath *string

	IsDeleted bool
	DeletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MarkDeleted soft-deletes the book. It is a no-op if the book is already
// deleted, matching the idempotence required of INGEST's DELETE handling.
func (b *Book) MarkDeleted(now time.Time) {
	if b.IsDeleted {
		return
	}
	b.IsDeleted = true
	b.DeletedAt = &now
	b.UpdatedAt = now
}

// MarkRestored clears a prior soft-delete, used when a file reappears at a
// soft-deleted book's recorded path.
func (b *Book) MarkRestored(now time.Time) {
	b.IsDeleted = false
	b.DeletedAt = nil
	b.UpdatedAt = now
}

// MarkUpdated stamps UpdatedAt with now. Callers invoke this any time they
// mutate a book outside of the constructors above.
func (b *Book) MarkUpdated(now time.Time) {
	b.UpdatedAt = now
}
