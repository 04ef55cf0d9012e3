package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/kobold-io/kobold/pkg/logging"
	"github.com/kobold-io/kobold/pkg/model"
	"github.com/kobold-io/kobold/pkg/queue"
	"github.com/kobold-io/kobold/pkg/store"
)

// recognizedMetadataFields are the only keys a MetadataProvider response can
// affect; anything else is ignored silently.
var recognizedMetadataFields = map[string]bool{
	"title": true, "author": true, "series": true, "series_index": true,
	"language": true, "genre": true, "isbn": true, "publication_date": true,
}

// MetadataProcessor enriches a book from an external MetadataProvider and,
// if enabled, embeds the result (plus a fetched cover) into the file.
type MetadataProcessor struct {
	store           *store.Store
	queue           *queue.Queue
	provider        MetadataProvider
	coverFetcher    CoverFetcher
	embedMetadata   bool
	organizeLibrary bool
	convertEPUB     bool
	logger          *logging.Logger
}

// NewMetadataProcessor constructs a MetadataProcessor. organizeLibrary and
// convertEPUB are independent: a book that needs no organizing may still
// need converting, and vice versa, so both successor tasks are enqueued
// whenever their respective flag is set.
func NewMetadataProcessor(s *store.Store, q *queue.Queue, provider MetadataProvider, coverFetcher CoverFetcher, embedMetadata, organizeLibrary, convertEPUB bool, logger *logging.Logger) *MetadataProcessor {
	return &MetadataProcessor{
		store:           s,
		queue:           q,
		provider:        provider,
		coverFetcher:    coverFetcher,
		embedMetadata:   embedMetadata,
		organizeLibrary: organizeLibrary,
		convertEPUB:     convertEPUB,
		logger:          logger.Sublogger("metadata"),
	}
}

// Process implements Processor.
func (p *MetadataProcessor) Process(ctx context.Context, raw json.RawMessage) error {
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

	fields, err := p.provider.GetMetadata(ctx, viewOf(book))
	if err != nil {
		return err
	}
	changed := false
	if fields != nil {
		changed = applyRecognizedFields(book, fields)

		if p.embedMetadata {
			p.embed(ctx, book, fields)
		}
	}

	if changed {
		book.MarkUpdated(time.Now().UTC())
		if err := p.store.UpdateBook(book); err != nil {
			return err
		}
		p.logger.Infof("Updated metadata for book %s", book.ID)
	}

	if p.organizeLibrary {
		if _, err := p.queue.Enqueue(model.TaskTypeOrganize, model.BookPayload{BookID: book.ID}); err != nil {
			return err
		}
	}
	if p.convertEPUB {
		if _, err := p.queue.Enqueue(model.TaskTypeConvert, model.BookPayload{BookID: book.ID}); err != nil {
			return err
		}
	}
	return nil
}

// embed assembles the field map (fetching cover bytes if a cover_path URL is
// present) and calls the provider's embed routine. Cover fetch failures are
// recovered locally: embedding proceeds without cover_data.
func (p *MetadataProcessor) embed(ctx context.Context, book *model.Book, fields map[string]any) {
	embedFields := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		embedFields[k] = v
	}

	if coverPath, ok := fields["cover_path"].(string); ok && coverPath != "" && p.coverFetcher != nil {
		data, ok, err := p.coverFetcher.Fetch(ctx, coverPath)
		if err != nil {
			p.logger.Warnf("Failed to fetch cover for book %s: %s", book.ID, err)
		} else if ok {
			embedFields["cover_data"] = data
		}
	}

	if err := p.provider.EmbedMetadata(ctx, book.FilePath, embedFields); err != nil {
		p.logger.Warnf("Failed to embed metadata for book %s: %s", book.ID, err)
	}
}

// applyRecognizedFields merges recognized, changed fields from source into
// book, returning whether anything changed.
func applyRecognizedFields(book *model.Book, source map[string]any) bool {
	changed := false

	setString := func(dst **string, value any) {
		s, ok := value.(string)
		if !ok {
			return
		}
		if *dst == nil || **dst != s {
			*dst = &s
			changed = true
		}
	}

	for field, value := range source {
		if !recognizedMetadataFields[field] {
			continue
		}
		switch field {
		case "title":
			if s, ok := value.(string); ok && s != "" && book.Title != s {
				book.Title = s
				changed = true
			}
		case "author":
			setString(&book.Author, value)
		case "series":
			setString(&book.Series, value)
		case "language":
			setString(&book.Language, value)
		case "genre":
			setString(&book.Genre, value)
		case "isbn":
			setString(&book.ISBN, value)
		case "series_index":
			if n, ok := seriesIndexFrom(value); ok && (book.SeriesIndex == nil || *book.SeriesIndex != n) {
				book.SeriesIndex = &n
				changed = true
			}
		case "publication_date":
			if t, ok := publicationDateFrom(value); ok && (book.PublicationDate == nil || !book.PublicationDate.Equal(t)) {
				book.PublicationDate = &t
				changed = true
			}
		}
	}

	return changed
}

func seriesIndexFrom(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

func publicationDateFrom(value any) (time.Time, bool) {
	s, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	return t, err == nil
}

func viewOf(book *model.Book) BookView {
	view := BookView{ID: book.ID.String(), Title: book.Title, FilePath: book.FilePath}
	if book.ISBN != nil {
		view.ISBN = *book.ISBN
	}
	return view
}
