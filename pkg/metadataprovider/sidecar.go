// Package metadataprovider implements pipeline.MetadataProvider by reading a
// JSON sidecar file placed next to each book, rather than calling out to a
// real bibliographic lookup service (out of scope here). A book at
// "/library/book.epub" is enriched from "/library/book.epub.meta.json" if
// that file exists.
package metadataprovider

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/kobold-io/kobold/pkg/logging"
	"github.com/kobold-io/kobold/pkg/pipeline"
)

// SidecarProvider reads book metadata from "<path>.meta.json" files and
// treats embedding as a validation no-op, since writing fields into the
// binary ebook container formats themselves is out of scope.
type SidecarProvider struct {
	logger *logging.Logger
}

// New constructs a SidecarProvider.
func New(logger *logging.Logger) *SidecarProvider {
	return &SidecarProvider{logger: logger.Sublogger("metadata-provider")}
}

// GetMetadata implements pipeline.MetadataProvider. A missing sidecar file
// is not an error: it simply means nothing is known about the book.
func (p *SidecarProvider) GetMetadata(ctx context.Context, book pipeline.BookView) (map[string]any, error) {
	data, err := os.ReadFile(sidecarPath(book.FilePath))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "unable to read metadata sidecar")
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		p.logger.Warnf("Malformed metadata sidecar for %s: %s", book.FilePath, err)
		return nil, nil
	}
	return fields, nil
}

// EmbedMetadata implements pipeline.MetadataProvider. Embedding fields into
// the binary ebook container is out of scope; this only confirms the target
// file still exists so a failure surfaces instead of being silently dropped.
func (p *SidecarProvider) EmbedMetadata(ctx context.Context, path string, fields map[string]any) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Wrap(err, "unable to embed metadata")
	}
	p.logger.Debugf("Would embed %d metadata field(s) into %s", len(fields), path)
	return nil
}

func sidecarPath(bookPath string) string {
	return bookPath + ".meta.json"
}
