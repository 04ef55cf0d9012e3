package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestConvertProducesKepub(t *testing.T) {
	s, _ := newTestHarness(t)
	book := createTestBook(t, s, "/library/book.epub")

	converter := &fakeConverter{needs: true, derivedPath: "/library/book.kepub.epub"}
	p := NewConvertProcessor(s, converter, true, testLogger())

	if err := p.Process(context.Background(), encodeBookPayload(t, book.ID)); err != nil {
		t.Fatalf("process: %v", err)
	}

	loaded, err := s.GetBookByID(book.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if loaded.KepubPath == nil || *loaded.KepubPath != converter.derivedPath {
		t.Errorf("kepub path: got %v, want %q", loaded.KepubPath, converter.derivedPath)
	}
	if converter.calls != 1 {
		t.Errorf("expected Convert to be called once, got %d", converter.calls)
	}
}

func TestConvertSkipsWhenNotNeeded(t *testing.T) {
	s, _ := newTestHarness(t)
	book := createTestBook(t, s, "/library/book.pdf")

	converter := &fakeConverter{needs: false}
	p := NewConvertProcessor(s, converter, true, testLogger())

	if err := p.Process(context.Background(), encodeBookPayload(t, book.ID)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if converter.calls != 0 {
		t.Errorf("expected Convert not to be called, got %d calls", converter.calls)
	}
}

func TestConvertDisabledIsNoOp(t *testing.T) {
	s, _ := newTestHarness(t)
	book := createTestBook(t, s, "/library/book.epub")

	converter := &fakeConverter{needs: true, derivedPath: "/library/book.kepub.epub"}
	p := NewConvertProcessor(s, converter, false, testLogger())

	if err := p.Process(context.Background(), encodeBookPayload(t, book.ID)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if converter.calls != 0 {
		t.Errorf("expected Convert not to be called when disabled, got %d calls", converter.calls)
	}
}

func TestConvertPropagatesConverterError(t *testing.T) {
	s, _ := newTestHarness(t)
	book := createTestBook(t, s, "/library/book.epub")

	converter := &fakeConverter{needs: true, err: errBoom}
	p := NewConvertProcessor(s, converter, true, testLogger())

	if err := p.Process(context.Background(), encodeBookPayload(t, book.ID)); err != errBoom {
		t.Errorf("expected converter error to propagate, got %v", err)
	}
}

func TestConvertUnknownBookIsNoOp(t *testing.T) {
	s, _ := newTestHarness(t)
	converter := &fakeConverter{needs: true}
	p := NewConvertProcessor(s, converter, true, testLogger())

	if err := p.Process(context.Background(), encodeBookPayload(t, uuid.New())); err != nil {
		t.Fatalf("expected no error for unknown book, got %v", err)
	}
}
