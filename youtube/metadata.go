package youtube

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// VideoID is a normalized 11-character YouTube video ID.
type VideoID string

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ParseVideoID extracts the video ID from a bare ID or a YouTube URL.
// Accepted forms: watch?v=, youtu.be/, /shorts/, /embed/, /live/, /v/ on
// www., m. and music. hosts.
func ParseVideoID(raw string) (VideoID, error) {
	s := strings.TrimSpace(raw)
	if videoIDPattern.MatchString(s) {
		return VideoID(s), nil
	}

	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidVideoID, raw)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	var candidate string
	switch host {
	case "youtu.be":
		candidate = firstSegment(u.Path)
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			candidate = v
			break
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 {
			switch parts[0] {
			case "shorts", "embed", "live", "v":
				candidate = parts[1]
			}
		}
	}

	if !videoIDPattern.MatchString(candidate) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVideoID, raw)
	}
	return VideoID(candidate), nil
}

func firstSegment(p string) string {
	p = strings.Trim(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}

// WatchURL returns the canonical watch page URL.
func (id VideoID) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + string(id)
}

// Metadata is the provider-independent video record. Every field may be
// absent: strings are empty and pointers nil when a provider does not report them.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	ViewCount    *int64 `json:"view_count,omitempty"`
	LikeCount    *int64 `json:"like_count,omitempty"`
	CommentCount *int64 `json:"comment_count,omitempty"`

	Channel              string `json:"channel,omitempty"`
	ChannelID            string `json:"channel_id,omitempty"`
	ChannelURL           string `json:"channel_url,omitempty"`
	ChannelFollowerCount *int64 `json:"channel_follower_count,omitempty"`

	// UploadDate is YYYYMMDD.
	UploadDate string `json:"upload_date,omitempty"`
	// Duration is in seconds and never negative.
	Duration *int64 `json:"duration,omitempty"`
	Language string `json:"language,omitempty"`

	Thumbnail  string   `json:"thumbnail,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// DurationString renders Duration as M:SS, empty when unknown.
func (m *Metadata) DurationString() string {
	if m == nil || m.Duration == nil {
		return ""
	}
	d := *m.Duration
	return fmt.Sprintf("%d:%02d", d/60, d%60)
}

// SetDuration stores seconds, ignoring negative values.
func (m *Metadata) SetDuration(seconds int64) {
	if seconds < 0 {
		return
	}
	m.Duration = &seconds
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// VideoInfo is the metadata payload together with the caption tracks the
// answering provider listed for the video.
type VideoInfo struct {
	ID        VideoID
	Metadata  Metadata
	Subtitles []SubtitleTrack
	FetchedAt time.Time
}

// SubtitleTrack is one downloadable caption rendition.
type SubtitleTrack struct {
	Language string
	Name     string
	// Ext is the caption format ("vtt", "json3", "srv3", ...).
	Ext       string
	URL       string
	Automatic bool
}

// SubtitleURL is one entry of the deduplicated subtitle listing.
type SubtitleURL struct {
	Language string `json:"language"`
	Ext      string `json:"ext"`
	URL      string `json:"url"`
}

// Snippet is one timed caption segment.
type Snippet struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Transcript is a downloaded caption track.
type Transcript struct {
	Language     string    `json:"language"`
	LanguageName string    `json:"language_name"`
	IsGenerated  bool      `json:"is_generated"`
	Snippets     []Snippet `json:"snippets"`
}

// Text joins all snippets with single spaces.
func (t *Transcript) Text() string {
	if t == nil {
		return ""
	}
	parts := make([]string, 0, len(t.Snippets))
	for _, s := range t.Snippets {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, " ")
}

// Comment is one top-level comment as returned by a provider.
type Comment struct {
	Author          string `json:"author"`
	Text            string `json:"text"`
	LikeCount       int64  `json:"like_count"`
	TimeText        string `json:"time_text"`
	AuthorID        string `json:"author_id"`
	AuthorThumbnail string `json:"author_thumbnail"`
	IsPinned        bool   `json:"is_favorited"`
	IsOwner         bool   `json:"author_is_uploader"`
	ReplyCount      int64  `json:"reply_count"`
}

// CommentThread is a provider comment listing, most popular first.
type CommentThread struct {
	VideoID      VideoID
	Title        string
	CommentCount *int64
	Comments     []Comment
}

// Capability is a bit set of operations a provider supports.
type Capability uint8

const (
	CapMetadata Capability = 1 << iota
	CapTranscript
	CapComments
)

// Has reports whether all bits of c2 are set.
func (c Capability) Has(c2 Capability) bool { return c&c2 == c2 }

func (c Capability) String() string {
	var parts []string
	if c.Has(CapMetadata) {
		parts = append(parts, "metadata")
	}
	if c.Has(CapTranscript) {
		parts = append(parts, "transcript")
	}
	if c.Has(CapComments) {
		parts = append(parts, "comments")
	}
	return strings.Join(parts, "|")
}

// Provider is a source of video data. Implementations return ErrUnsupported
// for operations outside Capabilities and a nil value with nil error when the
// video legitimately has no data of the requested kind.
type Provider interface {
	Name() string
	Capabilities() Capability
	FetchMetadata(ctx context.Context, id VideoID) (*VideoInfo, error)
	FetchTranscript(ctx context.Context, id VideoID, languages []string) (*Transcript, error)
	FetchComments(ctx context.Context, id VideoID, max int) (*CommentThread, error)
}
