package store

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kobold-io/kobold/pkg/model"
)

// TestCreateAndGetBookRoundTrips tests that a book's optional pointer fields
// survive a write/read cycle intact.
func TestCreateAndGetBookRoundTrips(t *testing.T) {
	s := newTestStore(t)

	author := "Ada Lovelace"
	series := "Analytical Engines"
	seriesIndex := 1
	language := "en"
	pubDate := time.Date(1843, time.January, 1, 0, 0, 0, 0, time.UTC)

	book := &model.Book{
		Title:           "Notes on the Analytical Engine",
		Author:          &author,
		Series:          &series,
		SeriesIndex:     &seriesIndex,
		Language:        &language,
		PublicationDate: &pubDate,
		FilePath:        "/books/incoming/notes.epub",
		FileHash:        "deadbeef",
		FileSize:        1024,
		FileFormat:      "epub",
	}

	if err := s.CreateBook(book); err != nil {
		t.Fatalf("create book: %v", err)
	}

	loaded, err := s.GetBookByID(book.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}

	if loaded.Title != book.Title {
		t.Errorf("title: got %q, want %q", loaded.Title, book.Title)
	}
	if loaded.Author == nil || *loaded.Author != author {
		t.Errorf("author: got %v, want %q", loaded.Author, author)
	}
	if loaded.SeriesIndex == nil || *loaded.SeriesIndex != seriesIndex {
		t.Errorf("series index: got %v, want %d", loaded.SeriesIndex, seriesIndex)
	}
	if loaded.PublicationDate == nil || !loaded.PublicationDate.Equal(pubDate) {
		t.Errorf("publication date: got %v, want %v", loaded.PublicationDate, pubDate)
	}
	if loaded.Genre != nil {
		t.Errorf("expected nil genre, got %v", loaded.Genre)
	}
}

// TestGetBookByHashAndSize tests that lookup by content digest finds a book
// regardless of its current path.
func TestGetBookByHashAndSize(t *testing.T) {
	s := newTestStore(t)

	book := &model.Book{
		Title:      "Title",
		FilePath:   "/books/incoming/a.epub",
		FileHash:   "hash123",
		FileSize:   42,
		FileFormat: "epub",
	}
	if err := s.CreateBook(book); err != nil {
		t.Fatalf("create book: %v", err)
	}

	found, err := s.GetBookByHashAndSize("hash123", 42)
	if err != nil {
		t.Fatalf("get by hash/size: %v", err)
	}
	if found.ID != book.ID {
		t.Errorf("expected to find %s, got %s", book.ID, found.ID)
	}

	if _, err := s.GetBookByHashAndSize("hash123", 99); err != ErrBookNotFound {
		t.Errorf("expected ErrBookNotFound for mismatched size, got %v", err)
	}
}

// TestUpdateBookPersistsSoftDelete tests that marking a book deleted and
// updating it round-trips through the store.
func TestUpdateBookPersistsSoftDelete(t *testing.T) {
	s := newTestStore(t)

	book := &model.Book{
		Title:      "Title",
		FilePath:   "/books/incoming/a.epub",
		FileHash:   "hash",
		FileSize:   1,
		FileFormat: "epub",
	}
	if err := s.CreateBook(book); err != nil {
		t.Fatalf("create book: %v", err)
	}

	book.MarkDeleted(time.Now().UTC())
	if err := s.UpdateBook(book); err != nil {
		t.Fatalf("update book: %v", err)
	}

	loaded, err := s.GetBookByID(book.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if !loaded.IsDeleted {
		t.Error("expected book to be marked deleted")
	}
	if loaded.DeletedAt == nil {
		t.Error("expected deleted_at to be set")
	}
}

// TestUpdateUnknownBookReturnsNotFound tests that updating a book with no
// matching row is reported distinctly.
func TestUpdateUnknownBookReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	book := &model.Book{Title: "Ghost", FilePath: "/x", FileHash: "x", FileFormat: "epub"}
	book.ID = uuid.New()

	if err := s.UpdateBook(book); err != ErrBookNotFound {
		t.Errorf("expected ErrBookNotFound, got %v", err)
	}
}
