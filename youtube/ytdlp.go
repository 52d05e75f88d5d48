package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"
)

const (
	defaultYtdlpPath    = "yt-dlp"
	defaultYtdlpTimeout = 3 * time.Minute
)

// CommandRunner executes name with args and returns its output streams.
type CommandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// ExecRunner runs the command as a subprocess.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// YtdlpConfig configures the yt-dlp provider.
type YtdlpConfig struct {
	// Path is the yt-dlp executable. Defaults to "yt-dlp".
	Path string
	// Timeout bounds one invocation. Defaults to 3 minutes.
	Timeout time.Duration
	// CookieFile is passed through as --cookies.
	CookieFile string
	// ProxyURL is passed through as --proxy.
	ProxyURL string
	// PlayerClients selects yt-dlp's youtube player_client list.
	PlayerClients []string
}

// Ytdlp is the fallback provider. It shells out to yt-dlp for metadata,
// caption listings and comments, and downloads caption tracks itself.
type Ytdlp struct {
	cfg      YtdlpConfig
	run      CommandRunner
	captions *CaptionFetcher
}

// YtdlpOption configures a Ytdlp provider.
type YtdlpOption func(*Ytdlp)

// WithRunner replaces the subprocess runner.
func WithRunner(r CommandRunner) YtdlpOption {
	return func(y *Ytdlp) { y.run = r }
}

// NewYtdlp creates the fallback provider. captions downloads the selected track.
func NewYtdlp(cfg YtdlpConfig, captions *CaptionFetcher, opts ...YtdlpOption) *Ytdlp {
	if cfg.Path == "" {
		cfg.Path = defaultYtdlpPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultYtdlpTimeout
	}
	y := &Ytdlp{cfg: cfg, run: ExecRunner, captions: captions}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// Name implements Provider.
func (y *Ytdlp) Name() string { return "ytdlp" }

// Capabilities implements Provider.
func (y *Ytdlp) Capabilities() Capability { return CapMetadata | CapTranscript | CapComments }

// FetchMetadata implements Provider.
func (y *Ytdlp) FetchMetadata(ctx context.Context, id VideoID) (*VideoInfo, error) {
	info, err := y.dump(ctx, id, "metadata")
	if err != nil {
		return nil, err
	}
	return info.toVideoInfo(id), nil
}

// FetchTranscript implements Provider. Only vtt renditions are downloaded.
func (y *Ytdlp) FetchTranscript(ctx context.Context, id VideoID, languages []string) (*Transcript, error) {
	info, err := y.dump(ctx, id, "transcript")
	if err != nil {
		return nil, err
	}

	track, ok := SelectTrack(info.tracks(), languages, func(t SubtitleTrack) bool { return t.Ext == FormatVTT })
	if !ok {
		return nil, nil
	}
	tr, err := y.captions.Fetch(ctx, track)
	if errors.Is(err, ErrNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, &ProviderError{Provider: y.Name(), Op: "transcript", VideoID: id, Err: err}
	}
	return tr, nil
}

// FetchComments implements Provider. Up to max top-level comments are
// requested with all of their replies; replies are not returned, their count
// is attached to the parent.
func (y *Ytdlp) FetchComments(ctx context.Context, id VideoID, max int) (*CommentThread, error) {
	if max <= 0 {
		return &CommentThread{VideoID: id}, nil
	}
	extractor := fmt.Sprintf("youtube:max_comments=all,%d,all;comment_sort=top", max)
	info, err := y.dump(ctx, id, "comments", "--write-comments", "--extractor-args", extractor)
	if err != nil {
		return nil, err
	}

	replies := make(map[string]int64)
	for _, c := range info.Comments {
		if c.Parent != "" && c.Parent != "root" {
			replies[c.Parent]++
		}
	}

	thread := &CommentThread{
		VideoID:      id,
		Title:        info.Title,
		CommentCount: info.CommentCount,
	}
	for _, c := range info.Comments {
		if c.Parent != "" && c.Parent != "root" {
			continue
		}
		thread.Comments = append(thread.Comments, Comment{
			Author:          c.Author,
			Text:            c.Text,
			LikeCount:       c.LikeCount,
			TimeText:        c.TimeText,
			AuthorID:        c.AuthorID,
			AuthorThumbnail: c.AuthorThumbnail,
			IsPinned:        c.IsPinned || c.IsFavorited,
			IsOwner:         c.AuthorIsUploader,
			ReplyCount:      replies[c.ID],
		})
		if len(thread.Comments) >= max {
			break
		}
	}
	return thread, nil
}

// dump runs yt-dlp -J for id with the common flags plus extra.
func (y *Ytdlp) dump(ctx context.Context, id VideoID, op string, extra ...string) (*ytdlpInfo, error) {
	args := []string{"-J", "--skip-download", "--no-warnings", "--no-playlist"}
	if y.cfg.CookieFile != "" {
		args = append(args, "--cookies", y.cfg.CookieFile)
	}
	if y.cfg.ProxyURL != "" {
		args = append(args, "--proxy", y.cfg.ProxyURL)
	}
	if len(y.cfg.PlayerClients) > 0 && op != "comments" {
		args = append(args, "--extractor-args", "youtube:player_client="+strings.Join(y.cfg.PlayerClients, ","))
	}
	args = append(args, extra...)
	args = append(args, id.WatchURL())

	cmdCtx, cancel := context.WithTimeout(ctx, y.cfg.Timeout)
	defer cancel()

	stdout, stderr, err := y.run(cmdCtx, y.cfg.Path, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, &ProviderError{Provider: y.Name(), Op: op, VideoID: id, Err: ErrYtdlpNotFound}
		}
		if cmdCtx.Err() == context.DeadlineExceeded {
			return nil, &ProviderError{Provider: y.Name(), Op: op, VideoID: id,
				Err: fmt.Errorf("yt-dlp timed out after %v", y.cfg.Timeout)}
		}
		return nil, &ProviderError{Provider: y.Name(), Op: op, VideoID: id, Err: classifyYtdlpStderr(string(stderr), err)}
	}

	var info ytdlpInfo
	if err := json.Unmarshal(stdout, &info); err != nil {
		return nil, &ProviderError{Provider: y.Name(), Op: op, VideoID: id, Err: fmt.Errorf("parse yt-dlp output: %w", err)}
	}
	return &info, nil
}

// classifyYtdlpStderr maps yt-dlp's error text onto the provider taxonomy.
func classifyYtdlpStderr(stderr string, runErr error) error {
	msg := strings.ToLower(stderr)
	last := strings.TrimSpace(stderr)
	if i := strings.LastIndex(last, "ERROR:"); i >= 0 {
		last = strings.TrimSpace(last[i+len("ERROR:"):])
	}

	switch {
	case containsAny(msg, "429", "too many requests", "rate limit", "rate-limit"):
		return fmt.Errorf("%w: %s", ErrRateLimited, last)
	// Private videos also mention signing in, so not-found wins over the bot wall.
	case containsAny(msg, "private video", "video is private", "video unavailable", "is unavailable", "does not exist", "has been removed", "http error 404"):
		return fmt.Errorf("%w: %s", ErrNotFound, last)
	case containsAny(msg, "not a bot", "sign in", "cookies", "failed to extract", "player response", "precondition", "http error 403"):
		return fmt.Errorf("%w: %s", ErrBlocked, last)
	}
	if last == "" {
		return fmt.Errorf("yt-dlp failed: %w", runErr)
	}
	return fmt.Errorf("yt-dlp failed: %s", last)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ytdlpInfo is the subset of yt-dlp's -J output this package consumes.
type ytdlpInfo struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	ViewCount            *int64   `json:"view_count"`
	LikeCount            *int64   `json:"like_count"`
	CommentCount         *int64   `json:"comment_count"`
	Uploader             string   `json:"uploader"`
	Channel              string   `json:"channel"`
	ChannelID            string   `json:"channel_id"`
	UploaderID           string   `json:"uploader_id"`
	ChannelURL           string   `json:"channel_url"`
	UploaderURL          string   `json:"uploader_url"`
	ChannelFollowerCount *int64   `json:"channel_follower_count"`
	UploadDate           string   `json:"upload_date"`
	Duration             *float64 `json:"duration"`
	Language             string   `json:"language"`
	Thumbnail            string   `json:"thumbnail"`
	Tags                 []string `json:"tags"`
	Categories           []string `json:"categories"`

	Subtitles         map[string][]ytdlpSubtitle `json:"subtitles"`
	AutomaticCaptions map[string][]ytdlpSubtitle `json:"automatic_captions"`

	Comments []ytdlpComment `json:"comments"`
}

type ytdlpSubtitle struct {
	Ext  string `json:"ext"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

type ytdlpComment struct {
	ID               string `json:"id"`
	Parent           string `json:"parent"`
	Author           string `json:"author"`
	AuthorID         string `json:"author_id"`
	AuthorThumbnail  string `json:"author_thumbnail"`
	Text             string `json:"text"`
	LikeCount        int64  `json:"like_count"`
	TimeText         string `json:"_time_text"`
	IsFavorited      bool   `json:"is_favorited"`
	IsPinned         bool   `json:"is_pinned"`
	AuthorIsUploader bool   `json:"author_is_uploader"`
}

func (i *ytdlpInfo) toVideoInfo(id VideoID) *VideoInfo {
	m := Metadata{
		Title:                i.Title,
		Description:          i.Description,
		ViewCount:            i.ViewCount,
		LikeCount:            i.LikeCount,
		CommentCount:         i.CommentCount,
		Channel:              coalesce(i.Uploader, i.Channel),
		ChannelID:            coalesce(i.ChannelID, i.UploaderID),
		ChannelURL:           coalesce(i.ChannelURL, i.UploaderURL),
		ChannelFollowerCount: i.ChannelFollowerCount,
		UploadDate:           i.UploadDate,
		Language:             i.Language,
		Thumbnail:            i.Thumbnail,
		Tags:                 i.Tags,
		Categories:           i.Categories,
	}
	if i.Duration != nil {
		m.SetDuration(int64(*i.Duration))
	}
	if i.ID != "" {
		id = VideoID(i.ID)
	}
	return &VideoInfo{
		ID:        id,
		Metadata:  m,
		Subtitles: i.tracks(),
		FetchedAt: time.Now().UTC(),
	}
}

// tracks flattens yt-dlp's per-language maps. Languages are sorted so the
// listing is stable across runs, since JSON object order is not preserved.
func (i *ytdlpInfo) tracks() []SubtitleTrack {
	var out []SubtitleTrack
	add := func(m map[string][]ytdlpSubtitle, automatic bool) {
		for _, lang := range sortedKeys(m) {
			for _, s := range m[lang] {
				if lang == "live_chat" {
					continue
				}
				out = append(out, SubtitleTrack{
					Language:  lang,
					Name:      s.Name,
					Ext:       s.Ext,
					URL:       s.URL,
					Automatic: automatic,
				})
			}
		}
	}
	add(i.Subtitles, false)
	add(i.AutomaticCaptions, true)
	return out
}

func sortedKeys(m map[string][]ytdlpSubtitle) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
