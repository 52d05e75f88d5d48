package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"
)

// StatsEnricher fills counts the watch page does not expose (likes, comment
// count, subscribers) from the YouTube Data API v3. Each Enrich call costs two
// quota units.
type StatsEnricher struct {
	service *ytapi.Service
}

// NewStatsEnricher creates an enricher authenticated with apiKey.
// Extra client options are appended, which lets tests point it at a local server.
func NewStatsEnricher(ctx context.Context, apiKey string, opts ...option.ClientOption) (*StatsEnricher, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	service, err := ytapi.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &StatsEnricher{service: service}, nil
}

// Enrich sets every statistics field of m that is still nil.
// Fields already reported by the provider are left untouched.
func (e *StatsEnricher) Enrich(ctx context.Context, id VideoID, m *Metadata) error {
	resp, err := e.service.Videos.List([]string{"snippet", "statistics"}).Id(string(id)).Context(ctx).Do()
	if err != nil {
		return mapAPIError(err)
	}
	if len(resp.Items) == 0 {
		return ErrNotFound
	}

	v := resp.Items[0]
	if st := v.Statistics; st != nil {
		setIfNil(&m.ViewCount, st.ViewCount, true)
		// Hidden likes and disabled comments are omitted, not zero.
		setIfNil(&m.LikeCount, st.LikeCount, st.LikeCount > 0)
		setIfNil(&m.CommentCount, st.CommentCount, st.CommentCount > 0)
	}
	if sn := v.Snippet; sn != nil {
		if m.ChannelID == "" {
			m.ChannelID = sn.ChannelId
		}
		if m.Channel == "" {
			m.Channel = sn.ChannelTitle
		}
		if len(m.Tags) == 0 {
			m.Tags = sn.Tags
		}
		if m.Language == "" {
			m.Language = coalesce(sn.DefaultAudioLanguage, sn.DefaultLanguage)
		}
	}

	if m.ChannelFollowerCount != nil || m.ChannelID == "" {
		return nil
	}
	ch, err := e.service.Channels.List([]string{"statistics"}).Id(m.ChannelID).Context(ctx).Do()
	if err != nil {
		return mapAPIError(err)
	}
	if len(ch.Items) > 0 && ch.Items[0].Statistics != nil {
		st := ch.Items[0].Statistics
		setIfNil(&m.ChannelFollowerCount, st.SubscriberCount, !st.HiddenSubscriberCount)
	}
	return nil
}

func setIfNil(dst **int64, v uint64, ok bool) {
	if *dst != nil || !ok {
		return
	}
	n := int64(v)
	*dst = &n
}

// mapAPIError folds Data API errors into the provider taxonomy.
func mapAPIError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch gerr.Code {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case http.StatusForbidden:
		for _, item := range gerr.Errors {
			if strings.Contains(item.Reason, "quota") || strings.Contains(item.Reason, "rateLimit") {
				return fmt.Errorf("%w: %v", ErrRateLimited, err)
			}
		}
	}
	return err
}
