// Package storage reads URL lists and writes extraction exports.
package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"ytextract/youtube"
)

// ErrNoURLs is returned when a URL list holds no usable rows.
var ErrNoURLs = errors.New("storage: no valid URLs found")

const watchPrefix = "https://www.youtube.com/watch?v="

// ReadURLs reads a CSV URL list. The first row is a header and only the
// first column is read. A value is kept when it mentions youtube.com or
// youtu.be or is a well-formed video ID with at least one digit or capital
// letter; bare IDs become watch URLs.
func ReadURLs(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var urls []string
	for row := 0; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row+1, err)
		}
		if row == 0 || len(record) == 0 {
			continue
		}

		url := strings.TrimSpace(record[0])
		if !acceptURL(url) {
			continue
		}
		if !strings.HasPrefix(url, "http") {
			url = watchPrefix + url
		}
		urls = append(urls, url)
	}

	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	return urls, nil
}

func acceptURL(s string) bool {
	if s == "" {
		return false
	}
	if strings.Contains(s, "youtube.com") || strings.Contains(s, "youtu.be") {
		return true
	}
	if _, err := youtube.ParseVideoID(s); err != nil {
		return false
	}
	// All-lowercase slugs like "not-a-video" are notes, not IDs.
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsUpper(r) || unicode.IsDigit(r)
	}) >= 0
}
