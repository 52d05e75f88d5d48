// Package bootstrap assembles the extraction pipeline from configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"

	"ytextract/comments"
	"ytextract/extract"
	ythttp "ytextract/http"
	"ytextract/internal/config"
	"ytextract/internal/retry"
	"ytextract/youtube"
	"ytextract/youtube/innertube"
)

// App is the assembled pipeline shared by the server and the CLI.
type App struct {
	Config       *config.Config
	HTTPClient   *ythttp.Client
	Primary      youtube.Provider
	Fallback     youtube.Provider
	Orchestrator *extract.Orchestrator
	Batcher      *extract.Batcher
}

type options struct {
	meter      metric.MeterProvider
	tracer     trace.TracerProvider
	apiOptions []option.ClientOption
	runner     youtube.CommandRunner
	baseURL    string
}

// Option customizes assembly.
type Option func(*options)

// WithMeterProvider routes pipeline metrics to mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meter = mp }
}

// WithTracerProvider routes pipeline spans to tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithAPIOptions appends client options to the Data API enricher.
func WithAPIOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.apiOptions = append(o.apiOptions, opts...) }
}

// WithCommandRunner replaces the yt-dlp process runner.
func WithCommandRunner(r youtube.CommandRunner) Option {
	return func(o *options) { o.runner = r }
}

// WithBaseURL points the primary provider at another origin.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// New builds the pipeline. The returned cleanup releases idle connections.
func New(ctx context.Context, cfg *config.Config, logger log.Logger, opts ...Option) (*App, func(), error) {
	o := options{
		meter:  otel.GetMeterProvider(),
		tracer: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	helper := log.NewHelper(log.With(logger, "module", "bootstrap"))

	session, err := ythttp.NewSession(ythttp.SessionConfig{
		CookieFile: cfg.CookieFile,
		ProxyURL:   cfg.ProxyURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}
	if n := session.CookieCount(); n > 0 {
		helper.Infof("loaded %d cookies from %s", n, cfg.CookieFile)
	}

	httpCfg := ythttp.DefaultConfig()
	httpCfg.Timeout = cfg.HTTPTimeout
	httpCfg.RateLimiter.DefaultRPS = cfg.RequestsPerSecond
	client := ythttp.New(httpCfg, session)
	cleanup := func() { _ = client.Close() }

	captions := youtube.NewCaptionFetcher(client)

	primaryOpts := []innertube.Option{innertube.WithLogger(logger)}
	if o.baseURL != "" {
		primaryOpts = append(primaryOpts, innertube.WithBaseURL(o.baseURL))
	}
	if cfg.APIKey != "" {
		enricher, err := youtube.NewStatsEnricher(ctx, cfg.APIKey, o.apiOptions...)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("create stats enricher: %w", err)
		}
		primaryOpts = append(primaryOpts, innertube.WithEnricher(enricher))
		helper.Info("data api enrichment enabled")
	}
	primary := innertube.New(client, captions, primaryOpts...)

	var ytdlpOpts []youtube.YtdlpOption
	if o.runner != nil {
		ytdlpOpts = append(ytdlpOpts, youtube.WithRunner(o.runner))
	}
	fallback := youtube.NewYtdlp(youtube.YtdlpConfig{
		Path:          cfg.YtdlpPath,
		Timeout:       cfg.YtdlpTimeout,
		CookieFile:    cfg.CookieFile,
		ProxyURL:      cfg.ProxyURL,
		PlayerClients: cfg.PlayerClients,
	}, captions, ytdlpOpts...)

	common := []extract.Option{
		extract.WithLogger(logger),
		extract.WithMeterProvider(o.meter),
		extract.WithTracerProvider(o.tracer),
	}
	orch := extract.NewOrchestrator(primary, fallback,
		comments.NewClassifier(comments.NewWhatlangDetector()),
		append(common, extract.WithRetryConfig(RetryConfig(cfg)))...)
	batcher := extract.NewBatcher(orch, BatchConfig(cfg), common...)

	return &App{
		Config:       cfg,
		HTTPClient:   client,
		Primary:      primary,
		Fallback:     fallback,
		Orchestrator: orch,
		Batcher:      batcher,
	}, cleanup, nil
}

// RetryConfig maps the configured backoff onto the retry package.
func RetryConfig(cfg *config.Config) retry.Config {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.MaxAttempts
	rc.InitialBackoff = cfg.InitialBackoff
	rc.MaxBackoff = cfg.MaxBackoff
	rc.Multiplier = cfg.BackoffMultiplier
	return rc
}

// BatchConfig maps the configured pacing onto the batch processor.
func BatchConfig(cfg *config.Config) extract.BatchConfig {
	bc := extract.DefaultBatchConfig()
	bc.BaseDelay = cfg.BatchDelay
	bc.SlowDelay = cfg.BatchSlowDelay
	bc.SlowAfter = cfg.BatchSlowAfter
	bc.MaxItems = cfg.MaxBatch
	bc.Workers = cfg.BatchWorkers
	return bc
}
