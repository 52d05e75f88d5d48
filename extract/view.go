package extract

import (
	"encoding/json"

	"ytextract/comments"
	"ytextract/youtube"
)

// VideoView is the flat JSON rendering of a Result. Fields a provider did not
// report are null rather than omitted.
type VideoView struct {
	VideoID     string  `json:"video_id"`
	Title       *string `json:"title"`
	URL         string  `json:"url"`
	Description *string `json:"description"`

	ViewCount    *int64 `json:"view_count"`
	LikeCount    *int64 `json:"like_count"`
	CommentCount *int64 `json:"comment_count"`

	Channel              *string `json:"channel"`
	ChannelID            *string `json:"channel_id"`
	ChannelURL           *string `json:"channel_url"`
	ChannelFollowerCount *int64  `json:"channel_follower_count"`

	UploadDate     *string `json:"upload_date"`
	Duration       *int64  `json:"duration"`
	DurationString *string `json:"duration_string"`
	Language       *string `json:"language"`

	Thumbnail  *string  `json:"thumbnail"`
	Tags       []string `json:"tags"`
	Categories []string `json:"categories"`

	Transcript             *string           `json:"transcript"`
	TranscriptLanguage     *string           `json:"transcript_language"`
	TranscriptLanguageName *string           `json:"transcript_language_name"`
	IsGenerated            *bool             `json:"is_generated"`
	SnippetCount           *int              `json:"snippet_count"`
	TranscriptList         []youtube.Snippet `json:"transcript_list"`

	SubtitleURLs []youtube.SubtitleURL `json:"subtitle_urls"`
	Comments     *comments.Result      `json:"comments,omitempty"`

	MetadataSource   string   `json:"metadata_source,omitempty"`
	TranscriptSource string   `json:"transcript_source,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`

	Error       *string  `json:"error"`
	ErrorDetail *Failure `json:"error_detail,omitempty"`
}

// View flattens the result.
func (r *Result) View() VideoView {
	v := VideoView{
		VideoID:          string(r.VideoID),
		URL:              r.URL(),
		SubtitleURLs:     r.SubtitleURLs,
		Comments:         r.Comments,
		MetadataSource:   r.MetadataSource,
		TranscriptSource: r.TranscriptSource,
		Warnings:         r.Warnings,
		ErrorDetail:      r.Error,
	}
	if v.SubtitleURLs == nil {
		v.SubtitleURLs = []youtube.SubtitleURL{}
	}

	if m := r.Metadata; m != nil {
		v.Title = str(m.Title)
		v.Description = str(m.Description)
		v.ViewCount = m.ViewCount
		v.LikeCount = m.LikeCount
		v.CommentCount = m.CommentCount
		v.Channel = str(m.Channel)
		v.ChannelID = str(m.ChannelID)
		v.ChannelURL = str(m.ChannelURL)
		v.ChannelFollowerCount = m.ChannelFollowerCount
		v.UploadDate = str(m.UploadDate)
		v.Duration = m.Duration
		v.DurationString = str(m.DurationString())
		v.Language = str(m.Language)
		v.Thumbnail = str(m.Thumbnail)
		v.Tags = m.Tags
		v.Categories = m.Categories
	}

	if t := r.Transcript; t != nil {
		text := t.Text()
		generated := t.IsGenerated
		count := len(t.Snippets)
		v.Transcript = &text
		v.TranscriptLanguage = str(t.Language)
		v.TranscriptLanguageName = str(t.LanguageName)
		v.IsGenerated = &generated
		v.SnippetCount = &count
		v.TranscriptList = t.Snippets
	}

	if r.Error != nil {
		v.Error = &r.Error.Code
	}
	return v
}

// MarshalJSON renders the flat view.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.View())
}

func str(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
