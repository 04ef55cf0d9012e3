package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/kobold-io/kobold/pkg/logging"
	"github.com/kobold-io/kobold/pkg/organizer"
	"github.com/kobold-io/kobold/pkg/queue"
	"github.com/kobold-io/kobold/pkg/store"
)

func newTestHarness(t *testing.T) (*store.Store, *queue.Queue) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("unable to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := logging.NewLogger(io.Discard, logging.LevelDisabled)
	return s, queue.New(s, logger)
}

func testLogger() *logging.Logger {
	return logging.NewLogger(io.Discard, logging.LevelDisabled)
}

func writeTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

// fakeMetadataProvider is a scripted MetadataProvider stub.
type fakeMetadataProvider struct {
	fields    map[string]any
	err       error
	embedCall int
	embedErr  error
}

func (f *fakeMetadataProvider) GetMetadata(ctx context.Context, book BookView) (map[string]any, error) {
	return f.fields, f.err
}

func (f *fakeMetadataProvider) EmbedMetadata(ctx context.Context, path string, fields map[string]any) error {
	f.embedCall++
	return f.embedErr
}

// fakeConverter is a scripted Converter stub.
type fakeConverter struct {
	needs       bool
	derivedPath string
	err         error
	calls       int
}

func (f *fakeConverter) NeedsConversion(format string) bool { return f.needs }

func (f *fakeConverter) Convert(ctx context.Context, path string) (string, error) {
	f.calls++
	return f.derivedPath, f.err
}

// fakeCoverFetcher is a scripted CoverFetcher stub.
type fakeCoverFetcher struct {
	data []byte
	ok   bool
	err  error
}

func (f *fakeCoverFetcher) Fetch(ctx context.Context, url string) ([]byte, bool, error) {
	return f.data, f.ok, f.err
}

var errBoom = errors.New("boom")

func newTestOrganizer(t *testing.T, root string, enabled bool) *organizer.Organizer {
	t.Helper()
	return organizer.New("{author}/{title}", root, enabled, testLogger())
}
