package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"ytextract/extract"
)

// Format is an export file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts json or csv, case-insensitively. Empty means json.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

// Filename names an export produced at t.
func (f Format) Filename(t time.Time) string {
	return fmt.Sprintf("youtube_extract_%s.%s", t.Format("20060102_150405"), f)
}

// Write renders results in the format.
func (f Format) Write(w io.Writer, results []*extract.Result) error {
	if f == FormatCSV {
		return WriteCSV(w, results)
	}
	return WriteJSON(w, results)
}

// WriteJSON writes results as an indented JSON array of flat views.
func WriteJSON(w io.Writer, results []*extract.Result) error {
	views := make([]extract.VideoView, 0, len(results))
	for _, r := range results {
		views = append(views, r.View())
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(views)
}

const bom = "\ufeff"

// previewRunes bounds the transcript_preview column.
const previewRunes = 500

var csvHeader = []string{
	"video_id", "title", "url", "view_count", "like_count", "comment_count",
	"channel", "channel_follower_count", "upload_date", "duration_string",
	"transcript_preview", "transcript_language", "transcript_snippet_count",
	"transcript_full", "error",
}

// WriteCSV writes results as CSV prefixed with a UTF-8 byte order mark so
// spreadsheet tools detect the encoding.
func WriteCSV(w io.Writer, results []*extract.Result) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write(csvRow(r.View())); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(v extract.VideoView) []string {
	transcript := deref(v.Transcript)
	errText := ""
	if v.ErrorDetail != nil {
		errText = v.ErrorDetail.Error()
	}
	return []string{
		v.VideoID,
		deref(v.Title),
		v.URL,
		count(v.ViewCount),
		count(v.LikeCount),
		count(v.CommentCount),
		deref(v.Channel),
		count(v.ChannelFollowerCount),
		deref(v.UploadDate),
		deref(v.DurationString),
		preview(transcript),
		deref(v.TranscriptLanguage),
		intValue(v.SnippetCount),
		transcript,
		errText,
	}
}

func preview(s string) string {
	n := 0
	for i := range s {
		if n == previewRunes {
			return s[:i]
		}
		n++
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func count(n *int64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatInt(*n, 10)
}

func intValue(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
