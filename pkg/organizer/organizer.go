// Package organizer computes a book's canonical library location and
// relocates its files there, deduplicating on content-identical collisions.
package organizer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/kobold-io/kobold/pkg/hashutil"
	"github.com/kobold-io/kobold/pkg/logging"
	"github.com/kobold-io/kobold/pkg/model"
	"github.com/kobold-io/kobold/pkg/pathtemplate"
)

// ErrExhaustedUniqueNames is returned when no unique sibling path could be
// found after 1000 attempts.
var ErrExhaustedUniqueNames = errors.New("organizer: could not generate a unique path")

// maxUniqueAttempts bounds the _N suffix search for colliding filenames.
const maxUniqueAttempts = 1000

// Organizer computes and performs library-relocation moves.
type Organizer struct {
	template  *pathtemplate.Template
	watchRoot string
	enabled   bool
	logger    *logging.Logger
}

// New constructs an Organizer. watchRoot is the first configured watch
// directory (or a caller-supplied default); enabled mirrors
// ORGANIZE_LIBRARY.
func New(templatePattern, watchRoot string, enabled bool, logger *logging.Logger) *Organizer {
	return &Organizer{
		template:  pathtemplate.New(templatePattern),
		watchRoot: watchRoot,
		enabled:   enabled,
		logger:    logger,
	}
}

// fieldsFor projects a book's metadata onto the template's variable set.
func fieldsFor(book *model.Book) pathtemplate.Fields {
	fields := pathtemplate.Fields{Title: book.Title}

	if book.Author != nil && *book.Author != "" {
		fields.Author = *book.Author
	} else {
		fields.Author = "Unknown Author"
	}
	if book.Series != nil {
		fields.Series = *book.Series
	}
	if book.SeriesIndex != nil {
		fields.SeriesIndex = fmt.Sprintf("%02d", *book.SeriesIndex)
	}
	if book.Language != nil {
		fields.Language = *book.Language
	}
	if book.Genre != nil {
		fields.Genre = *book.Genre
	}
	if book.PublicationDate != nil {
		fields.Year = strconv.Itoa(book.PublicationDate.Year())
	}

	return fields
}

// TargetPath computes the book's current path and the path it should occupy
// once organized, without touching the filesystem.
func (o *Organizer) TargetPath(book *model.Book) (currentPath, targetPath string) {
	currentPath = book.FilePath

	dir := o.template.Render(fieldsFor(book))
	filename := pathtemplate.Sanitize(filepath.Base(currentPath))

	targetPath = filepath.Join(o.watchRoot, dir, filename)
	return
}

// Organize moves book's primary file (and any derived kepub artifact) to
// its computed target location. It returns the new path if a move (or
// content-identical dedup) occurred, or "" if organization is disabled, the
// book is already in place, or the config disables it.
func (o *Organizer) Organize(book *model.Book) (string, error) {
	if !o.enabled {
		return "", nil
	}

	log := o.logger.Sublogger("organizer")

	currentPath, targetPath := o.TargetPath(book)
	if targetPath == currentPath {
		log.Debugf("Book %s already in correct location", book.ID)
		return "", nil
	}

	if _, err := os.Stat(targetPath); err == nil {
		if targetHash, hashErr := hashutil.FileHash(targetPath); hashErr == nil && targetHash == book.FileHash {
			log.Infof("Target has identical content to %s, deduplicating", currentPath)
			if err := os.Remove(currentPath); err == nil {
				return targetPath, nil
			} else {
				log.Errorf("Failed to delete redundant source file %s: %s", currentPath, err)
				// Fall through to the unique-sibling rename below.
			}
		} else if hashErr != nil {
			log.Warnf("Failed to verify target hash at %s, falling back to rename: %s", targetPath, hashErr)
		}

		unique, err := generateUniquePath(targetPath)
		if err != nil {
			return "", err
		}
		targetPath = unique
		log.Infof("Duplicate filename, using unique path %s", targetPath)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return "", fmt.Errorf("unable to create target directory: %w", err)
	}

	if err := moveFile(currentPath, targetPath); err != nil {
		return "", fmt.Errorf("unable to move book: %w", err)
	}
	log.Infof("Moved book to %s", targetPath)

	if book.KepubPath != nil {
		o.moveKepub(book, filepath.Dir(targetPath), log)
	}

	return targetPath, nil
}

// moveKepub relocates the derived kepub artifact alongside the primary
// file. Failures here are logged but never propagated: the primary move has
// already succeeded.
func (o *Organizer) moveKepub(book *model.Book, targetDir string, log *logging.Logger) {
	kepubPath := *book.KepubPath
	if _, err := os.Stat(kepubPath); err != nil {
		return
	}

	kepubTarget := filepath.Join(targetDir, pathtemplate.Sanitize(filepath.Base(kepubPath)))
	if _, err := os.Stat(kepubTarget); err == nil {
		unique, err := generateUniquePath(kepubTarget)
		if err != nil {
			log.Warnf("Failed to move kepub for %s: %s", book.ID, err)
			return
		}
		kepubTarget = unique
	}

	if err := moveFile(kepubPath, kepubTarget); err != nil {
		log.Warnf("Failed to move kepub for %s: %s", book.ID, err)
		return
	}
	book.KepubPath = &kepubTarget
	log.Debugf("Moved kepub to %s", kepubTarget)
}

// generateUniquePath appends "_N" (for ascending N) to path's stem until a
// non-existent sibling is found.
func generateUniquePath(path string) (string, error) {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)

	for n := 1; n <= maxUniqueAttempts; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", ErrExhaustedUniqueNames
}

// moveFile renames src to dst, falling back to a copy-then-delete when the
// rename fails because the paths cross filesystem boundaries.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	if copyErr := copyFile(src, dst); copyErr != nil {
		return copyErr
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
