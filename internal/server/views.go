package server

import (
	"ytextract/comments"
	"ytextract/extract"
)

// ExtractRequest is the body of POST /extract.
type ExtractRequest struct {
	VideoURL          string   `json:"video_url"`
	Languages         []string `json:"languages"`
	IncludeTranscript *bool    `json:"include_transcript"`
	MaxComments       int      `json:"max_comments"`
}

// BatchRequest is the body of POST /transcript.
type BatchRequest struct {
	VideoURLs []string `json:"video_urls"`
	Languages []string `json:"languages"`
}

// CommentsRequest is the body of POST /comments.
type CommentsRequest struct {
	VideoURL    string `json:"video_url"`
	MaxComments *int   `json:"max_comments"`
}

// SubtitlesRequest is the body of POST /subtitles.
type SubtitlesRequest struct {
	VideoURL string `json:"video_url"`
}

// CommentsResponse echoes the video fields next to the classified comments.
type CommentsResponse struct {
	VideoID        string                               `json:"video_id"`
	VideoTitle     *string                              `json:"video_title"`
	CommentCount   *int64                               `json:"comment_count"`
	Comments       []comments.Record                    `json:"comments"`
	ByLanguage     map[comments.Group][]comments.Record `json:"by_language"`
	LanguageCounts map[comments.Group]int               `json:"language_counts"`
	FetchedCount   int                                  `json:"fetched_count"`
	Error          *extract.Failure                     `json:"error"`
}

func newCommentsResponse(r *extract.CommentsResult) *CommentsResponse {
	resp := &CommentsResponse{
		VideoID:        string(r.VideoID),
		CommentCount:   r.CommentCount,
		Comments:       r.Classified.All,
		ByLanguage:     r.Classified.ByGroup,
		LanguageCounts: r.Classified.Counts,
		FetchedCount:   len(r.Classified.All),
		Error:          r.Error,
	}
	if r.Title != "" {
		title := r.Title
		resp.VideoTitle = &title
	}
	if resp.Comments == nil {
		resp.Comments = []comments.Record{}
	}
	return resp
}

// InfoResponse describes the service at GET /.
type InfoResponse struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Features  []string          `json:"features"`
	Endpoints map[string]string `json:"endpoints"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

var features = []string{
	"video metadata (views, likes, comment count, subscribers)",
	"timed transcript extraction",
	"subtitle URL listing (vtt preferred)",
	"comment extraction with language grouping",
	"batch extraction (up to 50 per request, 200 per CSV upload)",
	"CSV upload and JSON/CSV download",
}

var endpoints = map[string]string{
	"POST /extract":                 "single video: metadata, transcript, optional comments",
	"POST /transcript":              "ordered batch extraction",
	"POST /transcript/csv":          "batch extraction from an uploaded CSV URL list",
	"POST /transcript/csv-save":     "batch extraction from CSV, downloaded as JSON or CSV",
	"POST /comments":                "classified comments for one video",
	"POST /subtitles":               "deduplicated subtitle URLs for one video",
	"GET /test/{video_id}":          "single extraction by video ID",
	"GET /test-comments/{video_id}": "comments by video ID",
	"GET /health":                   "health check",
	"GET /metrics":                  "in-process metric snapshot",
}
