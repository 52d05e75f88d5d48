package extract

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"ytextract/comments"
	"ytextract/internal/retry"
	"ytextract/youtube"
)

// fakeProvider is a scripted youtube.Provider. Each call pops the next queued
// error and the last one repeats; a nil error returns the configured value.
type fakeProvider struct {
	name string
	caps youtube.Capability

	mu sync.Mutex

	info    *youtube.VideoInfo
	metaErr []error

	transcript *youtube.Transcript
	trErr      []error

	thread *youtube.CommentThread
	comErr []error

	calls map[string]int
}

func newFakeProvider(name string, caps youtube.Capability) *fakeProvider {
	return &fakeProvider{name: name, caps: caps, calls: map[string]int{}}
}

func (f *fakeProvider) Name() string                      { return f.name }
func (f *fakeProvider) Capabilities() youtube.Capability { return f.caps }

func (f *fakeProvider) next(op string, queue *[]error) error {
	f.calls[op]++
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	if len(*queue) > 1 {
		*queue = (*queue)[1:]
	}
	return err
}

func (f *fakeProvider) FetchMetadata(ctx context.Context, id youtube.VideoID) (*youtube.VideoInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.next("metadata", &f.metaErr); err != nil {
		return nil, &youtube.ProviderError{Provider: f.name, Op: "metadata", VideoID: id, Err: err}
	}
	info := *f.info
	info.ID = id
	return &info, nil
}

func (f *fakeProvider) FetchTranscript(ctx context.Context, id youtube.VideoID, languages []string) (*youtube.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.next("transcript", &f.trErr); err != nil {
		return nil, &youtube.ProviderError{Provider: f.name, Op: "transcript", VideoID: id, Err: err}
	}
	return f.transcript, nil
}

func (f *fakeProvider) FetchComments(ctx context.Context, id youtube.VideoID, max int) (*youtube.CommentThread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next("comments", &f.comErr); err != nil {
		return nil, &youtube.ProviderError{Provider: f.name, Op: "comments", VideoID: id, Err: err}
	}
	return f.thread, nil
}

func (f *fakeProvider) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func sampleInfo(title string) *youtube.VideoInfo {
	return &youtube.VideoInfo{
		Metadata: youtube.Metadata{
			Title:     title,
			ViewCount: youtube.Int64(1000),
			Channel:   "Rick Astley",
			Duration:  youtube.Int64(212),
		},
		Subtitles: []youtube.SubtitleTrack{
			{Language: "ko", Ext: "json3", URL: "https://x/ko.json3"},
			{Language: "ko", Ext: "vtt", URL: "https://x/ko.vtt"},
			{Language: "en", Ext: "vtt", URL: "https://x/en.vtt", Automatic: true},
		},
	}
}

func sampleTranscript(lang string) *youtube.Transcript {
	return &youtube.Transcript{
		Language:     lang,
		LanguageName: lang,
		Snippets: []youtube.Snippet{
			{Text: "hello", Start: 0, Duration: 1},
			{Text: "world", Start: 1, Duration: 1},
		},
	}
}

// koDetector tags every text as Korean.
type koDetector struct{}

func (koDetector) Detect(string) (string, error) { return "ko", nil }

// sleepRecorder captures requested waits without sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type harness struct {
	primary  *fakeProvider
	fallback *fakeProvider
	sleeps   *sleepRecorder
	reader   *sdkmetric.ManualReader
	orch     *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		primary:  newFakeProvider("innertube", youtube.CapMetadata|youtube.CapTranscript),
		fallback: newFakeProvider("ytdlp", youtube.CapMetadata|youtube.CapTranscript|youtube.CapComments),
		sleeps:   &sleepRecorder{},
		reader:   sdkmetric.NewManualReader(),
	}
	h.primary.info = sampleInfo("from primary")
	h.primary.transcript = sampleTranscript("ko")
	h.fallback.info = sampleInfo("from fallback")
	h.fallback.transcript = sampleTranscript("en")
	h.fallback.thread = &youtube.CommentThread{Title: "from fallback", CommentCount: youtube.Int64(3), Comments: []youtube.Comment{
		{Author: "@a", Text: "첫 번째", LikeCount: 30},
		{Author: "@b", Text: "두 번째", LikeCount: 20},
		{Author: "@c", Text: "세 번째", LikeCount: 10},
	}}

	cfg := retry.DefaultConfig()
	cfg.Sleep = h.sleeps.sleep
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(h.reader))
	h.orch = NewOrchestrator(h.primary, h.fallback, comments.NewClassifier(koDetector{}),
		WithRetryConfig(cfg),
		WithLogger(log.NewStdLogger(io.Discard)),
		WithMeterProvider(mp),
	)
	return h
}

// counter sums the data points of an int64 counter matching attrs.
func counter(t *testing.T, reader *sdkmetric.ManualReader, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
		points:
			for _, dp := range sum.DataPoints {
				for _, a := range attrs {
					v, ok := dp.Attributes.Value(a.Key)
					if !ok || v.Emit() != a.Value.Emit() {
						continue points
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}
