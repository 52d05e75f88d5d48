package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestEnricher(t *testing.T, handler http.HandlerFunc) *StatsEnricher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	e, err := NewStatsEnricher(context.Background(), "test-key",
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return e
}

func TestStatsEnricherFillsMissingFields(t *testing.T) {
	var paths []string
	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/youtube/v3/videos":
			assert.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("id"))
			_, _ = w.Write([]byte(`{"items":[{"id":"dQw4w9WgXcQ",
				"snippet":{"channelId":"UCuAXFkgsw1L7xaCfnd5JJOw","channelTitle":"Rick Astley","tags":["rick"],"defaultAudioLanguage":"en"},
				"statistics":{"viewCount":"999","likeCount":"18000000","commentCount":"2300000"}}]}`))
		case "/youtube/v3/channels":
			assert.Equal(t, "UCuAXFkgsw1L7xaCfnd5JJOw", r.URL.Query().Get("id"))
			_, _ = w.Write([]byte(`{"items":[{"statistics":{"subscriberCount":"4100000","hiddenSubscriberCount":false}}]}`))
		default:
			http.NotFound(w, r)
		}
	})

	m := &Metadata{ViewCount: Int64(1500000000)}
	require.NoError(t, e.Enrich(context.Background(), "dQw4w9WgXcQ", m))

	assert.Equal(t, int64(1500000000), *m.ViewCount, "reported values are kept")
	require.NotNil(t, m.LikeCount)
	assert.Equal(t, int64(18000000), *m.LikeCount)
	require.NotNil(t, m.CommentCount)
	assert.Equal(t, int64(2300000), *m.CommentCount)
	require.NotNil(t, m.ChannelFollowerCount)
	assert.Equal(t, int64(4100000), *m.ChannelFollowerCount)
	assert.Equal(t, "Rick Astley", m.Channel)
	assert.Equal(t, []string{"rick"}, m.Tags)
	assert.Equal(t, "en", m.Language)
	assert.Equal(t, []string{"/youtube/v3/videos", "/youtube/v3/channels"}, paths)
}

func TestStatsEnricherHiddenCounts(t *testing.T) {
	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/youtube/v3/videos" {
			_, _ = w.Write([]byte(`{"items":[{"snippet":{"channelId":"UCx"},"statistics":{"viewCount":"10"}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"statistics":{"subscriberCount":"0","hiddenSubscriberCount":true}}]}`))
	})

	m := &Metadata{}
	require.NoError(t, e.Enrich(context.Background(), "dQw4w9WgXcQ", m))
	assert.Nil(t, m.LikeCount)
	assert.Nil(t, m.CommentCount)
	assert.Nil(t, m.ChannelFollowerCount)
	require.NotNil(t, m.ViewCount)
	assert.Equal(t, int64(10), *m.ViewCount)
}

func TestStatsEnricherErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   FailureKind
	}{
		{"no items", http.StatusOK, `{"items":[]}`, KindNotFound},
		{"too many requests", http.StatusTooManyRequests, `{"error":{"code":429,"message":"slow down"}}`, KindRateLimited},
		{"quota exceeded", http.StatusForbidden,
			`{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded","message":"quota"}]}}`, KindRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			err := e.Enrich(context.Background(), "dQw4w9WgXcQ", &Metadata{})
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))
		})
	}
}

func TestNewStatsEnricherRequiresKey(t *testing.T) {
	_, err := NewStatsEnricher(context.Background(), "")
	assert.Error(t, err)
}
