package youtube

import (
	"context"
	"fmt"
	"strings"

	ythttp "ytextract/http"
)

// captionHeaders mimic a browser player fetching its own captions.
var captionHeaders = map[string]string{
	"Accept":  "text/vtt, application/json, text/xml, */*",
	"Referer": "https://www.youtube.com/",
	"Origin":  "https://www.youtube.com",
}

// CaptionFetcher downloads caption tracks through the egress client and
// parses them into transcripts.
type CaptionFetcher struct {
	httpClient *ythttp.Client
}

// NewCaptionFetcher creates a fetcher bound to client.
func NewCaptionFetcher(client *ythttp.Client) *CaptionFetcher {
	return &CaptionFetcher{httpClient: client}
}

// Fetch downloads track and decodes it according to track.Ext.
// Tracks that require a proof-of-origin token fail with ErrBlocked, and a
// document without any cue fails with ErrNoData.
func (f *CaptionFetcher) Fetch(ctx context.Context, track SubtitleTrack) (*Transcript, error) {
	if strings.Contains(track.URL, "&exp=xpe") {
		return nil, fmt.Errorf("%w: caption track requires a po token", ErrBlocked)
	}

	resp, err := f.httpClient.Do(ctx, "GET", track.URL, nil, captionHeaders)
	if err != nil {
		return nil, fmt.Errorf("download %s captions: %w", track.Language, err)
	}
	if len(resp.Body) == 0 {
		return nil, fmt.Errorf("%w: empty caption document", ErrNoData)
	}

	snippets, err := ParseCaptions(resp.Body, track.Ext)
	if err != nil {
		return nil, err
	}
	if len(snippets) == 0 {
		return nil, fmt.Errorf("%w: caption document has no cues", ErrNoData)
	}

	name := track.Name
	if name == "" {
		name = track.Language
	}
	return &Transcript{
		Language:     track.Language,
		LanguageName: name,
		IsGenerated:  track.Automatic,
		Snippets:     snippets,
	}, nil
}
