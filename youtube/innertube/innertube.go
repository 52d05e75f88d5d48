// Package innertube implements the primary video provider on top of the
// watch page and YouTube's internal Innertube player endpoint.
package innertube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-kratos/kratos/v2/log"

	ythttp "ytextract/http"
	"ytextract/youtube"
)

const (
	// DefaultBaseURL is the origin serving the watch page and the Innertube API.
	DefaultBaseURL = "https://www.youtube.com"

	// The ANDROID client returns caption tracks without a proof-of-origin token.
	clientName      = "ANDROID"
	clientNameID    = "3"
	clientVersion   = "20.10.38"
	androidSDK      = 30
	androidUA       = "com.google.android.youtube/" + clientVersion + " (Linux; U; Android 11) gzip"
	providerName    = "innertube"
	channelURLStart = "https://www.youtube.com/channel/"
)

var apiKeyPattern = regexp.MustCompile(`"INNERTUBE_API_KEY"\s*:\s*"([A-Za-z0-9_-]+)"`)

// Enricher fills metadata fields the player response does not carry.
type Enricher interface {
	Enrich(ctx context.Context, id youtube.VideoID, m *youtube.Metadata) error
}

// Provider fetches metadata and transcripts without spawning subprocesses.
// It does not list comments.
type Provider struct {
	httpClient *ythttp.Client
	captions   *youtube.CaptionFetcher
	baseURL    string
	enricher   Enricher
	log        *log.Helper
	now        func() time.Time
}

// Option configures the Provider.
type Option func(*Provider)

// WithBaseURL points the provider at another origin.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithEnricher sets a statistics enricher run after every metadata fetch.
func WithEnricher(e Enricher) Option {
	return func(p *Provider) {
		p.enricher = e
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(p *Provider) {
		p.log = log.NewHelper(log.With(logger, "provider", providerName))
	}
}

// New creates the primary provider.
func New(httpClient *ythttp.Client, captions *youtube.CaptionFetcher, opts ...Option) *Provider {
	p := &Provider{
		httpClient: httpClient,
		captions:   captions,
		baseURL:    DefaultBaseURL,
		log:        log.NewHelper(log.With(log.DefaultLogger, "provider", providerName)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements youtube.Provider.
func (p *Provider) Name() string { return providerName }

// Capabilities implements youtube.Provider.
func (p *Provider) Capabilities() youtube.Capability {
	return youtube.CapMetadata | youtube.CapTranscript
}

// FetchMetadata implements youtube.Provider.
func (p *Provider) FetchMetadata(ctx context.Context, id youtube.VideoID) (*youtube.VideoInfo, error) {
	page, player, err := p.load(ctx, id)
	if err != nil {
		return nil, p.wrap("metadata", id, err)
	}

	info := &youtube.VideoInfo{
		ID:        id,
		Metadata:  buildMetadata(page, player),
		Subtitles: player.tracks(),
		FetchedAt: p.now(),
	}

	if p.enricher != nil {
		if err := p.enricher.Enrich(ctx, id, &info.Metadata); err != nil {
			p.log.Warnf("enrich %s: %v", id, err)
		}
	}
	return info, nil
}

// FetchTranscript implements youtube.Provider. The selected track is
// downloaded as json3.
func (p *Provider) FetchTranscript(ctx context.Context, id youtube.VideoID, languages []string) (*youtube.Transcript, error) {
	_, player, err := p.load(ctx, id)
	if err != nil {
		return nil, p.wrap("transcript", id, err)
	}

	track, ok := youtube.SelectTrack(player.tracks(), languages, func(t youtube.SubtitleTrack) bool {
		return t.Ext == youtube.FormatJSON3
	})
	if !ok {
		p.log.Debugf("no caption track for %s in %v", id, languages)
		return nil, nil
	}

	tr, err := p.captions.Fetch(ctx, track)
	if err != nil {
		if youtube.KindOf(err) == youtube.KindNoData {
			return nil, nil
		}
		return nil, p.wrap("transcript", id, err)
	}
	return tr, nil
}

// FetchComments implements youtube.Provider.
func (p *Provider) FetchComments(ctx context.Context, id youtube.VideoID, max int) (*youtube.CommentThread, error) {
	return nil, p.wrap("comments", id, youtube.ErrUnsupported)
}

func (p *Provider) wrap(op string, id youtube.VideoID, err error) error {
	return &youtube.ProviderError{Provider: providerName, Op: op, VideoID: id, Err: err}
}

// load fetches the watch page and then the player response it unlocks.
func (p *Provider) load(ctx context.Context, id youtube.VideoID) (*watchPage, *playerResponse, error) {
	page, err := p.fetchWatchPage(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	player, err := p.fetchPlayer(ctx, id, page.apiKey)
	if err != nil {
		return nil, nil, err
	}
	if err := player.PlayabilityStatus.err(); err != nil {
		return nil, nil, err
	}
	return page, player, nil
}

// watchPage holds what is scraped from the HTML watch page.
type watchPage struct {
	apiKey     string
	uploadDate string
	genre      string
	channel    string
	channelURL string
	thumbnail  string
}

func (p *Provider) fetchWatchPage(ctx context.Context, id youtube.VideoID) (*watchPage, error) {
	u := fmt.Sprintf("%s/watch?v=%s&hl=en&bpctb=9999&has_verified=1", p.baseURL, url.QueryEscape(string(id)))
	resp, err := p.httpClient.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch watch page: %w", err)
	}
	return parseWatchPage(resp.Body)
}

func parseWatchPage(body []byte) (*watchPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse watch page: %w", err)
	}

	if doc.Find(".g-recaptcha").Length() > 0 || doc.Find(`form[action*="das_captcha"]`).Length() > 0 {
		return nil, fmt.Errorf("%w: captcha on watch page", youtube.ErrBlocked)
	}

	m := apiKeyPattern.FindSubmatch(body)
	if m == nil {
		// Consent and sign-in interstitials render without the player config.
		return nil, fmt.Errorf("%w: watch page has no innertube api key", youtube.ErrBlocked)
	}

	page := &watchPage{apiKey: string(m[1])}
	page.uploadDate = compactDate(attr(doc, `meta[itemprop="uploadDate"]`, "content"))
	page.genre = attr(doc, `meta[itemprop="genre"]`, "content")
	page.channel = attr(doc, `span[itemprop="author"] link[itemprop="name"]`, "content")
	page.channelURL = attr(doc, `span[itemprop="author"] link[itemprop="url"]`, "href")
	page.thumbnail = attr(doc, `meta[property="og:image"]`, "content")
	return page, nil
}

func attr(doc *goquery.Document, selector, name string) string {
	v, _ := doc.Find(selector).First().Attr(name)
	return strings.TrimSpace(v)
}

// compactDate turns 2009-10-24 or an RFC 3339 timestamp into YYYYMMDD.
func compactDate(s string) string {
	if len(s) < 10 {
		return ""
	}
	d := strings.ReplaceAll(s[:10], "-", "")
	if len(d) != 8 {
		return ""
	}
	if _, err := strconv.Atoi(d); err != nil {
		return ""
	}
	return d
}

type playerRequest struct {
	Context        requestContext `json:"context"`
	VideoID        string         `json:"videoId"`
	ContentCheckOK bool           `json:"contentCheckOk"`
	RacyCheckOK    bool           `json:"racyCheckOk"`
}

type requestContext struct {
	Client clientInfo `json:"client"`
}

type clientInfo struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSDKVersion int    `json:"androidSdkVersion"`
	HL                string `json:"hl"`
	GL                string `json:"gl"`
}

func (p *Provider) fetchPlayer(ctx context.Context, id youtube.VideoID, apiKey string) (*playerResponse, error) {
	body, err := json.Marshal(playerRequest{
		Context: requestContext{Client: clientInfo{
			ClientName:        clientName,
			ClientVersion:     clientVersion,
			AndroidSDKVersion: androidSDK,
			HL:                "en",
			GL:                "US",
		}},
		VideoID:        string(id),
		ContentCheckOK: true,
		RacyCheckOK:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal player request: %w", err)
	}

	u := fmt.Sprintf("%s/youtubei/v1/player?key=%s&prettyPrint=false", p.baseURL, url.QueryEscape(apiKey))
	resp, err := p.httpClient.PostJSON(ctx, u, body, map[string]string{
		"User-Agent":               androidUA,
		"X-YouTube-Client-Name":    clientNameID,
		"X-YouTube-Client-Version": clientVersion,
		"Origin":                   DefaultBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("player request: %w", err)
	}

	var player playerResponse
	if err := json.Unmarshal(resp.Body, &player); err != nil {
		return nil, fmt.Errorf("unmarshal player response: %w", err)
	}
	return &player, nil
}

// playerResponse is the subset of /youtubei/v1/player that is consumed.
type playerResponse struct {
	PlayabilityStatus playability `json:"playabilityStatus"`
	VideoDetails      struct {
		VideoID          string   `json:"videoId"`
		Title            string   `json:"title"`
		LengthSeconds    string   `json:"lengthSeconds"`
		Keywords         []string `json:"keywords"`
		ChannelID        string   `json:"channelId"`
		ShortDescription string   `json:"shortDescription"`
		ViewCount        string   `json:"viewCount"`
		Author           string   `json:"author"`
		Thumbnail        struct {
			Thumbnails []thumbnail `json:"thumbnails"`
		} `json:"thumbnail"`
	} `json:"videoDetails"`
	Microformat struct {
		Renderer struct {
			UploadDate      string `json:"uploadDate"`
			PublishDate     string `json:"publishDate"`
			Category        string `json:"category"`
			OwnerProfileURL string `json:"ownerProfileUrl"`
		} `json:"playerMicroformatRenderer"`
	} `json:"microformat"`
	Captions struct {
		Renderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

type thumbnail struct {
	URL   string `json:"url"`
	Width int    `json:"width"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
	Name         struct {
		SimpleText string `json:"simpleText"`
		Runs       []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"name"`
}

func (c captionTrack) name() string {
	if c.Name.SimpleText != "" {
		return c.Name.SimpleText
	}
	var sb strings.Builder
	for _, r := range c.Name.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

type playability struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// err maps a non-OK playability status to the provider failure taxonomy.
func (s playability) err() error {
	reason := strings.ToLower(s.Reason)
	switch s.Status {
	case "OK", "LIVE_STREAM_OFFLINE":
		return nil
	case "LOGIN_REQUIRED":
		if strings.Contains(reason, "private") {
			return fmt.Errorf("%w: %s", youtube.ErrNotFound, s.Reason)
		}
		return fmt.Errorf("%w: %s", youtube.ErrBlocked, s.Reason)
	case "AGE_CHECK_REQUIRED", "CONTENT_CHECK_REQUIRED":
		return fmt.Errorf("%w: %s", youtube.ErrBlocked, s.Reason)
	case "ERROR", "UNPLAYABLE":
		return fmt.Errorf("%w: %s", youtube.ErrNotFound, s.Reason)
	case "":
		return fmt.Errorf("player response without playability status")
	default:
		return fmt.Errorf("playability %s: %s", s.Status, s.Reason)
	}
}

// tracks lists every caption track twice, as vtt for the subtitle listing
// and as json3 for transcript download.
func (r *playerResponse) tracks() []youtube.SubtitleTrack {
	var out []youtube.SubtitleTrack
	for _, ext := range []string{youtube.FormatVTT, youtube.FormatJSON3} {
		for _, c := range r.Captions.Renderer.CaptionTracks {
			u, ok := withFormat(c.BaseURL, ext)
			if !ok || c.LanguageCode == "" {
				continue
			}
			out = append(out, youtube.SubtitleTrack{
				Language:  c.LanguageCode,
				Name:      c.name(),
				Ext:       ext,
				URL:       u,
				Automatic: c.Kind == "asr",
			})
		}
	}
	return out
}

func withFormat(raw, ext string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	q := u.Query()
	q.Set("fmt", ext)
	u.RawQuery = q.Encode()
	return u.String(), true
}

func buildMetadata(page *watchPage, player *playerResponse) youtube.Metadata {
	vd := player.VideoDetails
	mf := player.Microformat.Renderer

	m := youtube.Metadata{
		Title:       vd.Title,
		Description: vd.ShortDescription,
		Channel:     firstNonEmpty(vd.Author, page.channel),
		ChannelID:   vd.ChannelID,
		ChannelURL:  page.channelURL,
		UploadDate:  firstNonEmpty(page.uploadDate, compactDate(mf.UploadDate), compactDate(mf.PublishDate)),
		Thumbnail:   firstNonEmpty(largestThumbnail(vd.Thumbnail.Thumbnails), page.thumbnail),
		Tags:        vd.Keywords,
	}
	if m.ChannelURL == "" && m.ChannelID != "" {
		m.ChannelURL = channelURLStart + m.ChannelID
	}
	if genre := firstNonEmpty(page.genre, mf.Category); genre != "" {
		m.Categories = []string{genre}
	}
	if n, err := strconv.ParseInt(vd.ViewCount, 10, 64); err == nil {
		m.ViewCount = &n
	}
	if n, err := strconv.ParseInt(vd.LengthSeconds, 10, 64); err == nil {
		m.SetDuration(n)
	}
	return m
}

func largestThumbnail(thumbs []thumbnail) string {
	best := -1
	var u string
	for _, t := range thumbs {
		if t.Width > best && t.URL != "" {
			best, u = t.Width, t.URL
		}
	}
	return u
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
