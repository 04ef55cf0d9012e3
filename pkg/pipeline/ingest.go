package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kobold-io/kobold/pkg/hashutil"
	"github.com/kobold-io/kobold/pkg/logging"
	"github.com/kobold-io/kobold/pkg/model"
	"github.com/kobold-io/kobold/pkg/queue"
	"github.com/kobold-io/kobold/pkg/store"
)

// supportedExtensions are the file extensions INGEST will create or update
// books for; anything else is silently ignored.
var supportedExtensions = map[string]bool{
	".epub":  true,
	".kepub": true,
	".pdf":   true,
	".cbz":   true,
	".cbr":   true,
	".mobi":  true,
	".azw3":  true,
	".fb2":   true,
}

// IngestProcessor handles ADD and DELETE filesystem events, deduplicating by
// content hash and size and self-healing books whose file moved underneath
// them.
type IngestProcessor struct {
	store  *store.Store
	queue  *queue.Queue
	logger *logging.Logger
}

// NewIngestProcessor constructs an IngestProcessor.
func NewIngestProcessor(s *store.Store, q *queue.Queue, logger *logging.Logger) *IngestProcessor {
	return &IngestProcessor{store: s, queue: q, logger: logger.Sublogger("ingest")}
}

// Process implements Processor.
func (p *IngestProcessor) Process(ctx context.Context, raw json.RawMessage) error {
	var payload model.IngestPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}

	switch payload.Event {
	case model.IngestEventAdd:
		return p.handleAdd(payload.Path)
	case model.IngestEventDelete:
		return p.handleDelete(payload.Path)
	default:
		p.logger.Warnf("Unrecognized ingest event %q, ignoring", payload.Event)
		return nil
	}
}

// handleDelete marks the book at path deleted, if one exists and isn't
// already. A missing book is a no-op.
func (p *IngestProcessor) handleDelete(path string) error {
	book, err := p.store.GetBookByPath(path)
	if errors.Is(err, store.ErrBookNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if book.IsDeleted {
		return nil
	}

	book.MarkDeleted(time.Now().UTC())
	if err := p.store.UpdateBook(book); err != nil {
		return err
	}
	p.logger.Infof("Marked book %s deleted", book.ID)
	return nil
}

// handleAdd validates and hashes the file at path, then reconciles it
// against the book catalog: a brand-new book, a reappearing soft-deleted
// book, an idempotent re-ingest, a content duplicate, or a self-healing
// path update.
func (p *IngestProcessor) handleAdd(path string) error {
	if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	hash, err := hashutil.FileHash(path)
	if err != nil {
		return err
	}
	size := info.Size()

	existing, err := p.store.GetBookByHashAndSize(hash, size)
	if errors.Is(err, store.ErrBookNotFound) {
		return p.handleNewOrRestoredContent(path, hash, size)
	} else if err != nil {
		return err
	}

	if existing.FilePath == path {
		return nil
	}

	if _, statErr := os.Stat(existing.FilePath); statErr == nil {
		p.logger.Infof("Duplicate of existing book %s, removing %s", existing.ID, path)
		return os.Remove(path)
	}

	p.logger.Infof("Self-healing: book %s moved from %s to %s", existing.ID, existing.FilePath, path)
	existing.FilePath = path
	existing.MarkUpdated(time.Now().UTC())
	if err := p.store.UpdateBook(existing); err != nil {
		return err
	}

	_, err = p.queue.Enqueue(model.TaskTypeOrganize, model.BookPayload{BookID: existing.ID})
	return err
}

// handleNewOrRestoredContent is reached when no book shares (hash, size):
// either a soft-deleted book is reappearing at this exact path, or this is
// genuinely new content.
func (p *IngestProcessor) handleNewOrRestoredContent(path, hash string, size int64) error {
	byPath, err := p.store.GetBookByPath(path)
	if err != nil && !errors.Is(err, store.ErrBookNotFound) {
		return err
	}

	if byPath != nil && byPath.IsDeleted {
		byPath.MarkRestored(time.Now().UTC())
		if err := p.store.UpdateBook(byPath); err != nil {
			return err
		}
		p.logger.Infof("Restored soft-deleted book %s at %s", byPath.ID, path)
		_, err := p.queue.Enqueue(model.TaskTypeMetadata, model.BookPayload{BookID: byPath.ID})
		return err
	}

	book := &model.Book{
		Title:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FilePath:   path,
		FileHash:   hash,
		FileSize:   size,
		FileFormat: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	}
	if err := p.store.CreateBook(book); err != nil {
		return err
	}
	p.logger.Infof("Ingested new book %s (%s)", book.ID, book.Title)

	_, err = p.queue.Enqueue(model.TaskTypeMetadata, model.BookPayload{BookID: book.ID})
	return err
}
