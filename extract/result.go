package extract

import (
	"errors"
	"fmt"

	"ytextract/comments"
	"ytextract/youtube"
)

var (
	// ErrInvalidInput is returned for input that is not a YouTube video URL or ID.
	ErrInvalidInput = errors.New("extract: invalid input")
	// ErrBatchTooLarge is returned before any work when a batch exceeds its ceiling.
	ErrBatchTooLarge = errors.New("extract: batch too large")
)

// Failure codes carried in results.
const (
	CodeInvalidInput        = "invalid_input"
	CodeMetadataUnavailable = "metadata_unavailable"
	CodeCommentsUnavailable = "comments_unavailable"
	CodeCanceled            = "canceled"
)

// Warnings attached to otherwise successful results.
const (
	WarnTranscriptUnavailable = "transcript_unavailable"
	WarnCommentsUnavailable   = "comments_unavailable"
)

// Failure is the error object carried inside a result payload.
type Failure struct {
	Code string `json:"code"`
	// Kind is the provider failure category when one applies.
	Kind    youtube.FailureKind `json:"kind,omitempty"`
	Message string              `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Options are the per-request knobs shared by every item of a batch.
type Options struct {
	// Languages is the transcript language preference, most wanted first.
	Languages []string
	// IncludeTranscript enables the transcript stage.
	IncludeTranscript bool
	// MaxComments enables the comments stage when positive.
	MaxComments int
}

// DefaultOptions returns Korean transcripts and no comments.
func DefaultOptions() Options {
	return Options{Languages: []string{"ko"}, IncludeTranscript: true}
}

// Request is one extraction.
type Request struct {
	// Input is a video URL or bare ID.
	Input string
	Options
}

// Stage is a step of the per-request state machine.
type Stage string

const (
	StageStarted            Stage = "started"
	StageMetadataResolved   Stage = "metadata_resolved"
	StageMetadataFailed     Stage = "metadata_failed"
	StageTranscriptResolved Stage = "transcript_resolved"
	StageTranscriptSkipped  Stage = "transcript_skipped"
	StageCommentsResolved   Stage = "comments_resolved"
	StageCommentsSkipped    Stage = "comments_skipped"
	StageDone               Stage = "done"
)

// rank orders stages; alternatives of the same step share a rank.
func (s Stage) rank() int {
	switch s {
	case StageStarted:
		return 0
	case StageMetadataResolved, StageMetadataFailed:
		return 1
	case StageTranscriptResolved, StageTranscriptSkipped:
		return 2
	case StageCommentsResolved, StageCommentsSkipped:
		return 3
	case StageDone:
		return 4
	}
	return -1
}

// Result is the bundle produced for one request. Nested records belong to
// the result alone.
type Result struct {
	// Input is the raw request input.
	Input   string
	VideoID youtube.VideoID

	Metadata     *youtube.Metadata
	Transcript   *youtube.Transcript
	SubtitleURLs []youtube.SubtitleURL
	Comments     *comments.Result

	// MetadataSource and TranscriptSource name the answering providers.
	MetadataSource   string
	TranscriptSource string
	Warnings         []string
	// Stages traces the state machine in order.
	Stages []Stage

	Error *Failure
}

// URL returns the canonical watch URL, or the raw input when the ID is unknown.
func (r *Result) URL() string {
	if r.VideoID != "" {
		return r.VideoID.WatchURL()
	}
	return r.Input
}

// advance moves the state machine forward. Backward or repeated steps are ignored.
func (r *Result) advance(s Stage) bool {
	if n := len(r.Stages); n > 0 && s.rank() <= r.Stages[n-1].rank() {
		return false
	}
	r.Stages = append(r.Stages, s)
	return true
}

// Stage returns the last stage reached.
func (r *Result) Stage() Stage {
	if len(r.Stages) == 0 {
		return ""
	}
	return r.Stages[len(r.Stages)-1]
}

func (r *Result) warn(w string) {
	r.Warnings = append(r.Warnings, w)
}

// SubtitleResult is the subtitle-listing-only bundle.
type SubtitleResult struct {
	VideoID      youtube.VideoID       `json:"video_id"`
	SubtitleURLs []youtube.SubtitleURL `json:"subtitle_urls"`
	Error        *Failure              `json:"error"`
}

// CommentsResult is the classified comment bundle for one video.
type CommentsResult struct {
	VideoID      youtube.VideoID
	Title        string
	CommentCount *int64
	Classified   comments.Result
	Error        *Failure
}

func canceled(err error) *Failure {
	return &Failure{Code: CodeCanceled, Message: err.Error()}
}
