package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kobold-io/kobold/pkg/model"
)

// ErrBookNotFound is returned by book lookups that find no matching row.
var ErrBookNotFound = errors.New("store: book not found")

// timeLayout is a fixed-width UTC layout, so that comparing and ordering the
// stored timestamps as strings in SQL agrees with their chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// CreateBook inserts a new book, assigning an ID if it has none and setting
// its CreatedAt/UpdatedAt.
func (s *Store) CreateBook(book *model.Book) error {
	now := time.Now().UTC()
	if book.ID == uuid.Nil {
		book.ID = uuid.New()
	}
	book.CreatedAt = now
	book.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO books (
			id, title, author, series, series_index, language, genre,
			publication_date, isbn, file_path, file_hash, file_size,
			file_format, kepub_path, is_deleted, deleted_at, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		book.ID.String(), book.Title, book.Author, book.Series, book.SeriesIndex,
		book.Language, book.Genre, formatTimePtr(book.PublicationDate), book.ISBN,
		book.FilePath, book.FileHash, book.FileSize, book.FileFormat, book.KepubPath,
		boolToInt(book.IsDeleted), formatTimePtr(book.DeletedAt),
		book.CreatedAt.Format(timeLayout), book.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("unable to insert book: %w", err)
	}
	return nil
}

// UpdateBook persists every column of book, bumping UpdatedAt to now.
func (s *Store) UpdateBook(book *model.Book) error {
	book.UpdatedAt = time.Now().UTC()

	result, err := s.db.Exec(`
		UPDATE books SET
			title = ?, author = ?, series = ?, series_index = ?, language = ?,
			genre = ?, publication_date = ?, isbn = ?, file_path = ?, file_hash = ?,
			file_size = ?, file_format = ?, kepub_path = ?, is_deleted = ?,
			deleted_at = ?, updated_at = ?
		WHERE id = ?`,
		book.Title, book.Author, book.Series, book.SeriesIndex, book.Language,
		book.Genre, formatTimePtr(book.PublicationDate), book.ISBN, book.FilePath,
		book.FileHash, book.FileSize, book.FileFormat, book.KepubPath,
		boolToInt(book.IsDeleted), formatTimePtr(book.DeletedAt),
		book.UpdatedAt.Format(timeLayout), book.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("unable to update book: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrBookNotFound
	}
	return nil
}

// GetBookByID loads a book by its identifier.
func (s *Store) GetBookByID(id uuid.UUID) (*model.Book, error) {
	return s.scanBook(s.db.QueryRow(bookSelect+`WHERE id = ?`, id.String()))
}

// GetBookByHashAndSize loads a non-deleted book matching the given content
// digest and size, used to detect re-ingested or moved files regardless of
// path. Soft-deleted books are not matched.
func (s *Store) GetBookByHashAndSize(hash string, size int64) (*model.Book, error) {
	return s.scanBook(s.db.QueryRow(bookSelect+`WHERE file_hash = ? AND file_size = ? AND is_deleted = 0`, hash, size))
}

// GetBookByPath loads a book by its current recorded file path, including
// soft-deleted books (callers decide how to treat IsDeleted).
func (s *Store) GetBookByPath(path string) (*model.Book, error) {
	return s.scanBook(s.db.QueryRow(bookSelect+`WHERE file_path = ?`, path))
}

const bookSelect = `
	SELECT id, title, author, series, series_index, language, genre,
		publication_date, isbn, file_path, file_hash, file_size, file_format,
		kepub_path, is_deleted, deleted_at, created_at, updated_at
	FROM books `

func (s *Store) scanBook(row *sql.Row) (*model.Book, error) {
	var (
		book                                             model.Book
		idText, createdAt, updatedAt                      string
		isDeleted                                         int
		author, series, language, genre, isbn, kepubPath  sql.NullString
		publicationDate, deletedAt                        sql.NullString
		seriesIndex                                       sql.NullInt64
	)

	err := row.Scan(
		&idText, &book.Title, &author, &series, &seriesIndex,
		&language, &genre, &publicationDate, &isbn, &book.FilePath,
		&book.FileHash, &book.FileSize, &book.FileFormat, &kepubPath,
		&isDeleted, &deletedAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	} else if err != nil {
		return nil, fmt.Errorf("unable to scan book: %w", err)
	}

	book.ID, err = uuid.Parse(idText)
	if err != nil {
		return nil, fmt.Errorf("unable to parse book id: %w", err)
	}
	book.Author = nullStringPtr(author)
	book.Series = nullStringPtr(series)
	book.Language = nullStringPtr(language)
	book.Genre = nullStringPtr(genre)
	book.ISBN = nullStringPtr(isbn)
	book.KepubPath = nullStringPtr(kepubPath)
	if seriesIndex.Valid {
		n := int(seriesIndex.Int64)
		book.SeriesIndex = &n
	}
	book.IsDeleted = isDeleted != 0
	book.PublicationDate = parseTimePtr(publicationDate)
	book.DeletedAt = parseTimePtr(deletedAt)
	book.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("unable to parse created_at: %w", err)
	}
	book.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("unable to parse updated_at: %w", err)
	}

	return &book, nil
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(timeLayout), Valid: true}
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	parsed, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
