package pipeline

import "context"

// MetadataProvider supplies enrichment fields for a book and can embed them
// (plus an optional cover image) into the book's file. Its concrete
// implementation (a metadata lookup service, a local sidecar-file reader,
// whatever a deployment chooses) lives outside this package.
type MetadataProvider interface {
	// GetMetadata returns a field map for book, or nil if nothing is known.
	// Recognized field keys: title, author, series, series_index, language,
	// genre, isbn, publication_date, cover_path.
	GetMetadata(ctx context.Context, book BookView) (map[string]any, error)

	// EmbedMetadata writes fields (optionally including "cover_data" bytes)
	// into the file at path.
	EmbedMetadata(ctx context.Context, path string, fields map[string]any) error
}

// BookView is the minimal read-only projection of a book passed to
// collaborators that must not mutate persisted state directly.
type BookView struct {
	ID       string
	Title    string
	FilePath string
	ISBN     string
}

// Converter produces a derived, reader-specific artifact from a source
// ebook file.
type Converter interface {
	// Convert produces a derived file from path and returns its location.
	Convert(ctx context.Context, path string) (derivedPath string, err error)

	// NeedsConversion reports whether format requires running Convert.
	NeedsConversion(format string) bool
}

// CoverFetcher retrieves cover image bytes over HTTP.
type CoverFetcher interface {
	// Fetch returns the response body and true if the request succeeded
	// with a 200 status. A non-200 status or a failed round trip returns
	// false with no error, since a failed cover fetch is recovered locally
	// (metadata embedding proceeds without cover_data); an error is returned
	// only when no request could be built for url.
	Fetch(ctx context.Context, url string) (data []byte, ok bool, err error)
}
