package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytextract/extract"
	"ytextract/youtube"
)

func TestReadURLs(t *testing.T) {
	input := strings.Join([]string{
		"url,note",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ,first",
		"9bZkp7q19f0",
		"https://youtu.be/kJQP7kiw5Fk",
		"",
		"https://example.com/video",
		"short",
		"  https://m.youtube.com/watch?v=abcdefghijk  ,padded",
	}, "\n")

	urls, err := ReadURLs(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=9bZkp7q19f0",
		"https://youtu.be/kJQP7kiw5Fk",
		"https://m.youtube.com/watch?v=abcdefghijk",
	}, urls)
}

func TestReadURLsSkipsHeader(t *testing.T) {
	// A header that looks like a video ID is still skipped.
	urls, err := ReadURLs(strings.NewReader("dQw4w9WgXcQ\n9bZkp7q19f0\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.youtube.com/watch?v=9bZkp7q19f0"}, urls)
}

func TestReadURLsEmpty(t *testing.T) {
	for _, input := range []string{"", "url\n", "url\nnot-a-video\n"} {
		_, err := ReadURLs(strings.NewReader(input))
		assert.ErrorIs(t, err, ErrNoURLs, "input %q", input)
	}
}

func TestReadURLsBareIDs(t *testing.T) {
	tests := []struct {
		row  string
		want bool
	}{
		{"dQw4w9WgXcQ", true},
		{"9bZkp7q19f0", true},
		{"_-AbCdEfGh0", true},
		{"not-a-video", false},
		{"abc def ghi", false},
		{"한국어자막테스트입니다만", false},
		{"dQw4w9WgXc", false},
	}
	for _, tt := range tests {
		t.Run(tt.row, func(t *testing.T) {
			urls, err := ReadURLs(strings.NewReader("url\n" + tt.row + "\n"))
			if !tt.want {
				assert.ErrorIs(t, err, ErrNoURLs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"https://www.youtube.com/watch?v=" + tt.row}, urls)
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"": FormatJSON, "json": FormatJSON, "CSV": FormatCSV, " csv ": FormatCSV}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestFilename(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "youtube_extract_20260304_050607.csv", FormatCSV.Filename(ts))
	assert.Equal(t, "youtube_extract_20260304_050607.json", FormatJSON.Filename(ts))
}

func sampleResults() []*extract.Result {
	long := strings.Repeat("가", 600)
	return []*extract.Result{
		{
			Input:   "dQw4w9WgXcQ",
			VideoID: "dQw4w9WgXcQ",
			Metadata: &youtube.Metadata{
				Title:     "Never <Gonna> Give You Up",
				ViewCount: youtube.Int64(1500000000),
				Channel:   "Rick Astley",
				Duration:  youtube.Int64(212),
			},
			Transcript: &youtube.Transcript{
				Language: "ko",
				Snippets: []youtube.Snippet{{Text: long, Start: 0, Duration: 3}},
			},
		},
		{
			Input: "not a video",
			Error: &extract.Failure{Code: extract.CodeInvalidInput, Message: "bad input"},
		},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleResults()))

	assert.Contains(t, buf.String(), "Never <Gonna> Give You Up", "HTML is not escaped")
	assert.Contains(t, buf.String(), "\n  {", "output is indented")

	var views []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "dQw4w9WgXcQ", views[0]["video_id"])
	assert.Nil(t, views[0]["error"])
	assert.Equal(t, extract.CodeInvalidInput, views[1]["error"])
	assert.Nil(t, views[1]["transcript"])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResults()))
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte{0xEF, 0xBB, 0xBF}), "missing BOM")

	rows, err := csv.NewReader(bytes.NewReader(buf.Bytes()[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])

	ok := rows[1]
	assert.Equal(t, "dQw4w9WgXcQ", ok[0])
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", ok[2])
	assert.Equal(t, "1500000000", ok[3])
	assert.Equal(t, "", ok[4], "unknown like count is empty")
	assert.Equal(t, "3:32", ok[9])
	assert.Equal(t, 500, len([]rune(ok[10])))
	assert.Equal(t, "ko", ok[11])
	assert.Equal(t, "1", ok[12])
	assert.Equal(t, 600, len([]rune(ok[13])))
	assert.Equal(t, "", ok[14])

	failed := rows[2]
	assert.Equal(t, "not a video", failed[2])
	assert.Equal(t, "invalid_input: bad input", failed[14])
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "export.json")

	require.NoError(t, WriteFileAtomic(path, func(w io.Writer) error {
		return FormatJSON.Write(w, sampleResults())
	}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dQw4w9WgXcQ")

	boom := errors.New("boom")
	err = WriteFileAtomic(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, after, "failed write leaves the target untouched")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestAtomicWriterAbortAfterCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.csv")
	w, err := NewAtomicWriter(path)
	require.NoError(t, err)
	_, err = w.Write([]byte("a,b\n"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())
	require.NoError(t, w.Abort())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
