// Package pathtemplate renders the organize-library directory layout from a
// book's metadata and sanitizes the resulting path segments for safe use on
// disk.
package pathtemplate

import (
	"path"
	"regexp"
	"strings"
)

// invalidCharsPattern matches characters that are illegal (or awkward) in
// file and directory names across the platforms kobold targets.
var invalidCharsPattern = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// variablePattern matches a {var} placeholder within a template string.
var variablePattern = regexp.MustCompile(`\{(\w+)\}`)

// maxSegmentLength is the maximum length, in bytes, of a single rendered
// path segment.
const maxSegmentLength = 200

// Fields holds the variables available to a template, matching the
// enumerated set from the organize-library template grammar. An empty field
// renders as the empty string and is dropped from the final path.
type Fields struct {
	Author      string
	Title       string
	Series      string
	SeriesIndex string
	Language    string
	Genre       string
	Year        string
}

// get returns the raw (unsanitized) value bound to a template variable name.
func (f Fields) get(name string) (string, bool) {
	switch name {
	case "author":
		return f.Author, f.Author != ""
	case "title":
		return f.Title, f.Title != ""
	case "series":
		return f.Series, f.Series != ""
	case "series_index":
		return f.SeriesIndex, f.SeriesIndex != ""
	case "language":
		return f.Language, f.Language != ""
	case "genre":
		return f.Genre, f.Genre != ""
	case "year":
		return f.Year, f.Year != ""
	default:
		return "", false
	}
}

// Template is a compiled `{var}/{var}` path pattern.
type Template struct {
	pattern string
}

// New compiles a template pattern. Rendering never fails, so compilation
// does no validation beyond storing the pattern.
func New(pattern string) *Template {
	return &Template{pattern: pattern}
}

// Render substitutes each placeholder in the template with its sanitized
// field value (or the empty string, if the field is unset), then collapses
// the result to a clean relative path. If every segment renders empty, it
// returns ".", a sentinel meaning "the watch root itself".
func (t *Template) Render(fields Fields) string {
	result := t.pattern
	for _, match := range variablePattern.FindAllStringSubmatch(t.pattern, -1) {
		placeholder, name := match[0], match[1]
		value, _ := fields.get(name)
		sanitized := ""
		if value != "" {
			sanitized = Sanitize(value)
		}
		result = strings.ReplaceAll(result, placeholder, sanitized)
	}

	var segments []string
	for _, segment := range strings.Split(result, "/") {
		segment = strings.TrimSpace(segment)
		if segment != "" {
			segments = append(segments, segment)
		}
	}

	if len(segments) == 0 {
		return "."
	}
	return path.Join(segments...)
}

// Sanitize replaces characters invalid in file and directory names with "_",
// trims leading/trailing whitespace and dots, and truncates overlong
// segments while preserving their extension. It is idempotent: sanitizing
// an already-sanitized string returns it unchanged.
func Sanitize(name string) string {
	sanitized := invalidCharsPattern.ReplaceAllString(name, "_")
	sanitized = strings.Trim(sanitized, " \t\n\r.")

	if len(sanitized) > maxSegmentLength {
		ext := path.Ext(sanitized)
		stem := sanitized[:len(sanitized)-len(ext)]
		keep := maxSegmentLength - len(ext)
		if keep < 0 {
			keep = 0
		}
		if keep > len(stem) {
			keep = len(stem)
		}
		sanitized = stem[:keep] + ext
	}

	return sanitized
}
