package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kobold-io/kobold/pkg/logging"
	"github.com/kobold-io/kobold/pkg/model"
	"github.com/kobold-io/kobold/pkg/store"
)

// ConvertProcessor produces a derived, reader-specific artifact for formats
// that need it, recording its path on the book.
type ConvertProcessor struct {
	store     *store.Store
	converter Converter
	enabled   bool
	logger    *logging.Logger
}

// NewConvertProcessor constructs a ConvertProcessor.
func NewConvertProcessor(s *store.Store, converter Converter, enabled bool, logger *logging.Logger) *ConvertProcessor {
	return &ConvertProcessor{store: s, converter: converter, enabled: enabled, logger: logger.Sublogger("convert")}
}

// Process implements Processor. Conversion failures are returned rather than
// swallowed, so the worker's retry/dead-letter policy applies to them.
func (p *ConvertProcessor) Process(ctx context.Context, raw json.RawMessage) error {
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

	if !p.converter.NeedsConversion(book.FileFormat) {
		return nil
	}

	derivedPath, err := p.converter.Convert(ctx, book.FilePath)
	if err != nil {
		return err
	}

	book.KepubPath = &derivedPath
	book.MarkUpdated(time.Now().UTC())
	if err := p.store.UpdateBook(book); err != nil {
		return err
	}
	p.logger.Infof("Converted book %s to %s", book.ID, derivedPath)
	return nil
}
