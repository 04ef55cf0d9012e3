package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kobold-io/kobold/pkg/hashutil"
	"github.com/kobold-io/kobold/pkg/logging"
	"github.com/kobold-io/kobold/pkg/model"
	"github.com/kobold-io/kobold/pkg/organizer"
	"github.com/kobold-io/kobold/pkg/store"
)

// OrganizeProcessor relocates a book's file to its canonical library
// location, recovering from "zombie" state where a prior move succeeded but
// the book's recorded path was never updated.
type OrganizeProcessor struct {
	store     *store.Store
	organizer *organizer.Organizer
	enabled   bool
	logger    *logging.Logger
}

// NewOrganizeProcessor constructs an OrganizeProcessor.
func NewOrganizeProcessor(s *store.Store, o *organizer.Organizer, enabled bool, logger *logging.Logger) *OrganizeProcessor {
	return &OrganizeProcessor{store: s, organizer: o, enabled: enabled, logger: logger.Sublogger("organize")}
}

// Process implements Processor.
func (p *OrganizeProcessor) Process(ctx context.Context, raw json.RawMessage) error {
	if !p.enabled {
		return nil
	}

	var payload model.BookPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}

	book, err := p.store.GetBookByID(payload.BookID)
	if errors.Is(err, store.ErrBookNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	currentPath, expectedPath := p.organizer.TargetPath(book)

	if _, err := os.Stat(currentPath); os.IsNotExist(err) {
		return p.recoverZombie(book, expectedPath)
	} else if err != nil {
		return err
	}

	newPath, err := p.organizer.Organize(book)
	if err != nil {
		return err
	}
	if newPath == "" {
		p.logger.Debugf("Book %s already organized", book.ID)
		return nil
	}

	book.FilePath = newPath
	book.MarkUpdated(time.Now().UTC())
	if err := p.store.UpdateBook(book); err != nil {
		return err
	}
	p.logger.Infof("Organized book %s to %s", book.ID, newPath)
	return nil
}

// recoverZombie handles the case where a book's source file is missing: if
// the expected target already exists with matching content, a prior move
// succeeded but the book record was never updated, so we just fix the
// record. Otherwise the source is genuinely gone and we fail for retry.
func (p *OrganizeProcessor) recoverZombie(book *model.Book, expectedPath string) error {
	if _, err := os.Stat(expectedPath); err == nil {
		targetHash, hashErr := hashutil.FileHash(expectedPath)
		if hashErr == nil && targetHash == book.FileHash {
			p.logger.Infof("Recovered zombie state for book %s: found at %s", book.ID, expectedPath)
			book.FilePath = expectedPath
			book.MarkUpdated(time.Now().UTC())
			return p.store.UpdateBook(book)
		}
		p.logger.Errorf("Zombie recovery failed for book %s: hash mismatch at %s", book.ID, expectedPath)
	}

	return fmt.Errorf("source file not found for book %s: %w", book.ID, os.ErrNotExist)
}
