package innertube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ythttp "ytextract/http"
	"ytextract/youtube"
)

const watchHTML = `<!DOCTYPE html><html><head>
<meta property="og:image" content="https://i.ytimg.com/vi/dQw4w9WgXcQ/og.jpg">
</head><body>
<div itemscope itemtype="http://schema.org/VideoObject">
<meta itemprop="uploadDate" content="2009-10-24T23:57:33-07:00">
<meta itemprop="genre" content="Music">
<span itemprop="author" itemscope><link itemprop="url" href="http://www.youtube.com/@RickAstleyYT"><link itemprop="name" content="Rick Astley"></span>
</div>
<script>ytcfg.set({"INNERTUBE_API_KEY":"AIzaTestKey_123","INNERTUBE_CLIENT_NAME":"WEB"});</script>
</body></html>`

const playerJSON = `{
  "playabilityStatus": {"status": "OK"},
  "videoDetails": {
    "videoId": "dQw4w9WgXcQ",
    "title": "Never Gonna Give You Up",
    "lengthSeconds": "212",
    "keywords": ["rick astley", "80s"],
    "channelId": "UCuAXFkgsw1L7xaCfnd5JJOw",
    "shortDescription": "The official video",
    "viewCount": "1500000000",
    "author": "Rick Astley",
    "thumbnail": {"thumbnails": [
      {"url": "https://i.ytimg.com/vi/dQw4w9WgXcQ/default.jpg", "width": 120},
      {"url": "https://i.ytimg.com/vi/dQw4w9WgXcQ/hq.jpg", "width": 480}
    ]}
  },
  "captions": {"playerCaptionsTracklistRenderer": {"captionTracks": [
    {"baseUrl": "%[1]s/api/timedtext?v=dQw4w9WgXcQ&lang=en", "name": {"runs": [{"text": "English"}]}, "languageCode": "en"},
    {"baseUrl": "%[1]s/api/timedtext?v=dQw4w9WgXcQ&lang=ko&kind=asr", "name": {"simpleText": "Korean (auto-generated)"}, "languageCode": "ko", "kind": "asr"}
  ]}}
}`

const json3Doc = `{"events":[{"tStartMs":0,"dDurationMs":1000,"segs":[{"utf8":"안녕"}]},{"tStartMs":1000,"dDurationMs":1500,"segs":[{"utf8":"하세요"}]}]}`

type fixture struct {
	server      *httptest.Server
	watch       string
	player      string
	playerCode  int
	playerCalls int
	lastPlayer  playerRequest
	apiKey      string
	formats     []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{watch: watchHTML, playerCode: http.StatusOK}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/watch":
			fmt.Fprint(w, f.watch)
		case "/youtubei/v1/player":
			f.playerCalls++
			f.apiKey = r.URL.Query().Get("key")
			_ = json.NewDecoder(r.Body).Decode(&f.lastPlayer)
			if f.playerCode != http.StatusOK {
				w.WriteHeader(f.playerCode)
				return
			}
			body := f.player
			if body == "" {
				body = fmt.Sprintf(playerJSON, f.server.URL)
			}
			fmt.Fprint(w, body)
		case "/api/timedtext":
			f.formats = append(f.formats, r.URL.Query().Get("fmt"))
			fmt.Fprint(w, json3Doc)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) provider(opts ...Option) *Provider {
	cfg := ythttp.DefaultConfig()
	cfg.RateLimiter.DefaultRPS = 0
	client := ythttp.New(cfg, nil)
	opts = append([]Option{WithBaseURL(f.server.URL), WithLogger(log.NewStdLogger(io.Discard))}, opts...)
	return New(client, youtube.NewCaptionFetcher(client), opts...)
}

type fakeEnricher struct {
	calls int
	err   error
}

func (e *fakeEnricher) Enrich(ctx context.Context, id youtube.VideoID, m *youtube.Metadata) error {
	e.calls++
	if e.err != nil {
		return e.err
	}
	m.LikeCount = youtube.Int64(17000000)
	return nil
}

func TestFetchMetadata(t *testing.T) {
	f := newFixture(t)
	enricher := &fakeEnricher{}
	p := f.provider(WithEnricher(enricher))

	info, err := p.FetchMetadata(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)

	m := info.Metadata
	assert.Equal(t, "Never Gonna Give You Up", m.Title)
	assert.Equal(t, "The official video", m.Description)
	assert.Equal(t, "Rick Astley", m.Channel)
	assert.Equal(t, "http://www.youtube.com/@RickAstleyYT", m.ChannelURL)
	assert.Equal(t, "20091024", m.UploadDate)
	assert.Equal(t, []string{"Music"}, m.Categories)
	assert.Equal(t, []string{"rick astley", "80s"}, m.Tags)
	assert.Equal(t, "https://i.ytimg.com/vi/dQw4w9WgXcQ/hq.jpg", m.Thumbnail)
	assert.Equal(t, "3:32", m.DurationString())
	require.NotNil(t, m.ViewCount)
	assert.Equal(t, int64(1500000000), *m.ViewCount)
	require.NotNil(t, m.LikeCount)
	assert.Equal(t, 1, enricher.calls)

	assert.Equal(t, "AIzaTestKey_123", f.apiKey)
	assert.Equal(t, "ANDROID", f.lastPlayer.Context.Client.ClientName)
	assert.Equal(t, "dQw4w9WgXcQ", f.lastPlayer.VideoID)

	subs := youtube.DedupSubtitles(info.Subtitles)
	require.Len(t, subs, 2)
	assert.Equal(t, "en", subs[0].Language)
	assert.Equal(t, "vtt", subs[0].Ext)
	assert.Contains(t, subs[0].URL, "fmt=vtt")
	assert.Equal(t, "ko", subs[1].Language)
}

func TestFetchMetadataEnricherFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	p := f.provider(WithEnricher(&fakeEnricher{err: errors.New("quota exceeded")}))

	info, err := p.FetchMetadata(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Nil(t, info.Metadata.LikeCount)
}

func TestFetchMetadataChannelURLFromID(t *testing.T) {
	f := newFixture(t)
	f.watch = `<html><script>{"INNERTUBE_API_KEY": "k"}</script></html>`
	p := f.provider()

	info, err := p.FetchMetadata(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw", info.Metadata.ChannelURL)
	assert.Empty(t, info.Metadata.Categories)
}

func TestFetchMetadataFailures(t *testing.T) {
	tests := []struct {
		name       string
		watch      string
		player     string
		playerCode int
		want       youtube.FailureKind
	}{
		{
			name:  "captcha",
			watch: `<html><body><form action="/das_captcha"><div class="g-recaptcha"></div></form></body></html>`,
			want:  youtube.KindBlocked,
		},
		{
			name:  "consent interstitial",
			watch: `<html><body>Before you continue to YouTube</body></html>`,
			want:  youtube.KindBlocked,
		},
		{
			name:   "bot check",
			player: `{"playabilityStatus":{"status":"LOGIN_REQUIRED","reason":"Sign in to confirm you're not a bot"}}`,
			want:   youtube.KindBlocked,
		},
		{
			name:   "private",
			player: `{"playabilityStatus":{"status":"LOGIN_REQUIRED","reason":"This video is private"}}`,
			want:   youtube.KindNotFound,
		},
		{
			name:   "unavailable",
			player: `{"playabilityStatus":{"status":"ERROR","reason":"Video unavailable"}}`,
			want:   youtube.KindNotFound,
		},
		{
			name:       "rate limited",
			playerCode: http.StatusTooManyRequests,
			want:       youtube.KindRateLimited,
		},
		{
			name:   "garbage",
			player: `not json`,
			want:   youtube.KindUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.watch != "" {
				f.watch = tt.watch
			}
			f.player = tt.player
			if tt.playerCode != 0 {
				f.playerCode = tt.playerCode
			}

			_, err := f.provider().FetchMetadata(context.Background(), "dQw4w9WgXcQ")
			require.Error(t, err)
			assert.Equal(t, tt.want, youtube.KindOf(err))

			var pe *youtube.ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, "innertube", pe.Provider)
			assert.Equal(t, "metadata", pe.Op)
		})
	}
}

func TestFetchTranscript(t *testing.T) {
	f := newFixture(t)
	p := f.provider()

	tr, err := p.FetchTranscript(context.Background(), "dQw4w9WgXcQ", []string{"ko", "en"})
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "ko", tr.Language)
	assert.Equal(t, "Korean (auto-generated)", tr.LanguageName)
	assert.True(t, tr.IsGenerated)
	assert.Len(t, tr.Snippets, 2)
	assert.Equal(t, []string{"json3"}, f.formats)
}

func TestFetchTranscriptRegionalFallback(t *testing.T) {
	f := newFixture(t)
	tr, err := f.provider().FetchTranscript(context.Background(), "dQw4w9WgXcQ", []string{"ko-KR"})
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "ko", tr.Language)
}

func TestFetchTranscriptNoTrack(t *testing.T) {
	f := newFixture(t)
	tr, err := f.provider().FetchTranscript(context.Background(), "dQw4w9WgXcQ", []string{"de"})
	require.NoError(t, err)
	assert.Nil(t, tr)
	assert.Empty(t, f.formats)
}

func TestFetchCommentsUnsupported(t *testing.T) {
	f := newFixture(t)
	p := f.provider()
	assert.False(t, p.Capabilities().Has(youtube.CapComments))

	_, err := p.FetchComments(context.Background(), "dQw4w9WgXcQ", 10)
	assert.ErrorIs(t, err, youtube.ErrUnsupported)
	assert.Zero(t, f.playerCalls)
}

func TestCompactDate(t *testing.T) {
	tests := map[string]string{
		"2009-10-24":                "20091024",
		"2009-10-24T23:57:33-07:00": "20091024",
		"":                          "",
		"yesterday":                 "",
		"2009-1x-24":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, compactDate(in), "compactDate(%q)", in)
	}
}
