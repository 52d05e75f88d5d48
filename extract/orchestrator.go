// Package extract resolves video bundles over a primary and a fallback
// provider and drives batches of them.
package extract

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"ytextract/comments"
	"ytextract/internal/retry"
	"ytextract/youtube"
)

const instrumentationName = "ytextract/extract"

type options struct {
	retry  retry.Config
	logger log.Logger
	meter  metric.MeterProvider
	tracer trace.TracerProvider
}

func newOptions(opts []Option) options {
	o := options{
		retry:  retry.DefaultConfig(),
		logger: log.DefaultLogger,
		meter:  otel.GetMeterProvider(),
		tracer: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures an Orchestrator or a Batcher.
type Option func(*options)

// WithRetryConfig sets the backoff applied around every provider call.
func WithRetryConfig(cfg retry.Config) Option {
	return func(o *options) { o.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meter = mp }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// Orchestrator resolves one video at a time. Metadata and transcripts are
// asked from the primary provider first and from the fallback when the
// primary fails; comments come from whichever provider can list them,
// fallback first.
type Orchestrator struct {
	primary    youtube.Provider
	fallback   youtube.Provider
	classifier *comments.Classifier
	retry      retry.Config
	log        *log.Helper
	metrics    *extractMetrics
	tracer     trace.Tracer
}

// NewOrchestrator creates an orchestrator. Either provider may be nil.
func NewOrchestrator(primary, fallback youtube.Provider, classifier *comments.Classifier, opts ...Option) *Orchestrator {
	o := newOptions(opts)
	helper := log.NewHelper(log.With(o.logger, "module", "extract"))
	return &Orchestrator{
		primary:    primary,
		fallback:   fallback,
		classifier: classifier,
		retry:      o.retry,
		log:        helper,
		metrics:    newExtractMetrics(o.meter.Meter(instrumentationName), helper),
		tracer:     o.tracer.Tracer(instrumentationName),
	}
}

// Extract resolves one request. Malformed input is reported both in the
// result and as an error wrapping ErrInvalidInput. Provider failures never
// produce an error: they end up in Result.Error or Result.Warnings.
// Cancellation returns the partial result together with ctx.Err().
func (o *Orchestrator) Extract(ctx context.Context, req Request) (*Result, error) {
	res := &Result{Input: req.Input, SubtitleURLs: []youtube.SubtitleURL{}}
	res.advance(StageStarted)

	id, err := youtube.ParseVideoID(req.Input)
	if err != nil {
		res.Error = &Failure{Code: CodeInvalidInput, Message: err.Error()}
		o.metrics.recordExtraction(ctx, outcomeInvalid)
		return res, fmt.Errorf("%w: %q", ErrInvalidInput, req.Input)
	}
	res.VideoID = id

	ctx, span := o.tracer.Start(ctx, "extract.Extract", trace.WithAttributes(
		attribute.String("video.id", string(id)),
		attribute.Bool("transcript", req.IncludeTranscript),
		attribute.Int("max_comments", req.MaxComments),
	))
	defer span.End()

	info, source, err := o.resolveMetadata(ctx, id)
	if ctx.Err() != nil {
		return o.abort(ctx, span, res)
	}
	if err != nil {
		res.Error = &Failure{Code: CodeMetadataUnavailable, Kind: youtube.KindOf(err), Message: err.Error()}
		o.transition(ctx, res, StageMetadataFailed)
	} else {
		md := info.Metadata
		res.Metadata = &md
		res.MetadataSource = source
		res.SubtitleURLs = youtube.DedupSubtitles(info.Subtitles)
		o.transition(ctx, res, StageMetadataResolved)
	}

	if req.IncludeTranscript {
		languages := req.Languages
		if len(languages) == 0 {
			languages = DefaultOptions().Languages
		}
		tr, source, err := o.resolveTranscript(ctx, id, languages)
		if ctx.Err() != nil {
			return o.abort(ctx, span, res)
		}
		if tr != nil {
			res.Transcript = tr
			res.TranscriptSource = source
			o.transition(ctx, res, StageTranscriptResolved)
		} else {
			if err != nil {
				res.warn(WarnTranscriptUnavailable)
			}
			o.transition(ctx, res, StageTranscriptSkipped)
		}
	} else {
		o.transition(ctx, res, StageTranscriptSkipped)
	}

	if req.MaxComments > 0 {
		thread, err := o.fetchComments(ctx, id, req.MaxComments)
		if ctx.Err() != nil {
			return o.abort(ctx, span, res)
		}
		if err != nil {
			res.warn(WarnCommentsUnavailable)
			o.transition(ctx, res, StageCommentsSkipped)
		} else {
			classified := o.classifier.Classify(thread.Comments, req.MaxComments)
			res.Comments = &classified
			o.transition(ctx, res, StageCommentsResolved)
		}
	} else {
		o.transition(ctx, res, StageCommentsSkipped)
	}
	o.transition(ctx, res, StageDone)

	outcome := outcomeOK
	switch {
	case res.Error != nil:
		outcome = outcomeFailed
		span.SetStatus(codes.Error, res.Error.Code)
	case len(res.Warnings) > 0:
		outcome = outcomePartial
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	o.metrics.recordExtraction(ctx, outcome)
	return res, nil
}

// Subtitles resolves only the deduplicated subtitle listing.
func (o *Orchestrator) Subtitles(ctx context.Context, input string) (*SubtitleResult, error) {
	res := &SubtitleResult{SubtitleURLs: []youtube.SubtitleURL{}}
	id, err := youtube.ParseVideoID(input)
	if err != nil {
		res.Error = &Failure{Code: CodeInvalidInput, Message: err.Error()}
		return res, fmt.Errorf("%w: %q", ErrInvalidInput, input)
	}
	res.VideoID = id

	ctx, span := o.tracer.Start(ctx, "extract.Subtitles", trace.WithAttributes(attribute.String("video.id", string(id))))
	defer span.End()

	info, _, err := o.resolveMetadata(ctx, id)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			res.Error = canceled(cerr)
			return res, cerr
		}
		res.Error = &Failure{Code: CodeMetadataUnavailable, Kind: youtube.KindOf(err), Message: err.Error()}
		span.SetStatus(codes.Error, res.Error.Code)
		return res, nil
	}
	res.SubtitleURLs = youtube.DedupSubtitles(info.Subtitles)
	return res, nil
}

// Comments lists and classifies up to max comments.
func (o *Orchestrator) Comments(ctx context.Context, input string, max int) (*CommentsResult, error) {
	res := &CommentsResult{Classified: o.classifier.Classify(nil, 0)}
	id, err := youtube.ParseVideoID(input)
	if err != nil {
		res.Error = &Failure{Code: CodeInvalidInput, Message: err.Error()}
		return res, fmt.Errorf("%w: %q", ErrInvalidInput, input)
	}
	res.VideoID = id

	ctx, span := o.tracer.Start(ctx, "extract.Comments", trace.WithAttributes(
		attribute.String("video.id", string(id)),
		attribute.Int("max_comments", max),
	))
	defer span.End()

	thread, err := o.fetchComments(ctx, id, max)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			res.Error = canceled(cerr)
			return res, cerr
		}
		res.Error = &Failure{Code: CodeCommentsUnavailable, Kind: youtube.KindOf(err), Message: err.Error()}
		span.SetStatus(codes.Error, res.Error.Code)
		return res, nil
	}
	res.Title = thread.Title
	res.CommentCount = thread.CommentCount
	res.Classified = o.classifier.Classify(thread.Comments, max)
	return res, nil
}

func (o *Orchestrator) transition(ctx context.Context, res *Result, s Stage) {
	if res.advance(s) {
		o.log.WithContext(ctx).Debugf("video %s: %s", res.VideoID, s)
	}
}

func (o *Orchestrator) abort(ctx context.Context, span trace.Span, res *Result) (*Result, error) {
	err := ctx.Err()
	res.Error = canceled(err)
	span.SetStatus(codes.Error, CodeCanceled)
	o.metrics.recordExtraction(context.WithoutCancel(ctx), outcomeCanceled)
	return res, err
}

func (o *Orchestrator) resolveMetadata(ctx context.Context, id youtube.VideoID) (*youtube.VideoInfo, string, error) {
	var primaryErr error
	if supports(o.primary, youtube.CapMetadata) {
		info, err := call(ctx, o, "metadata", o.primary, func(ctx context.Context) (*youtube.VideoInfo, error) {
			return o.primary.FetchMetadata(ctx, id)
		})
		if err == nil {
			return info, o.primary.Name(), nil
		}
		if ctx.Err() != nil {
			return nil, "", err
		}
		primaryErr = err
	}

	if !supports(o.fallback, youtube.CapMetadata) {
		if primaryErr != nil {
			return nil, "", primaryErr
		}
		return nil, "", fmt.Errorf("%w: no metadata provider", youtube.ErrUnsupported)
	}
	if primaryErr != nil {
		o.fellBack(ctx, "metadata", id, primaryErr)
	}

	info, err := call(ctx, o, "metadata", o.fallback, func(ctx context.Context) (*youtube.VideoInfo, error) {
		return o.fallback.FetchMetadata(ctx, id)
	})
	if err != nil {
		if primaryErr != nil {
			return nil, "", fmt.Errorf("primary: %v; fallback: %w", primaryErr, err)
		}
		return nil, "", err
	}
	return info, o.fallback.Name(), nil
}

// resolveTranscript returns a nil transcript and nil error when neither
// provider has a track in the wanted languages.
func (o *Orchestrator) resolveTranscript(ctx context.Context, id youtube.VideoID, languages []string) (*youtube.Transcript, string, error) {
	var primaryErr error
	if supports(o.primary, youtube.CapTranscript) {
		tr, err := call(ctx, o, "transcript", o.primary, func(ctx context.Context) (*youtube.Transcript, error) {
			return o.primary.FetchTranscript(ctx, id, languages)
		})
		if err == nil && tr != nil {
			return tr, o.primary.Name(), nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		primaryErr = err
	}

	if !supports(o.fallback, youtube.CapTranscript) {
		return nil, "", primaryErr
	}
	if primaryErr != nil {
		o.fellBack(ctx, "transcript", id, primaryErr)
	}

	tr, err := call(ctx, o, "transcript", o.fallback, func(ctx context.Context) (*youtube.Transcript, error) {
		return o.fallback.FetchTranscript(ctx, id, languages)
	})
	if err != nil {
		return nil, "", err
	}
	if tr == nil {
		return nil, "", nil
	}
	return tr, o.fallback.Name(), nil
}

func (o *Orchestrator) fetchComments(ctx context.Context, id youtube.VideoID, max int) (*youtube.CommentThread, error) {
	p := o.fallback
	if !supports(p, youtube.CapComments) {
		p = o.primary
	}
	if !supports(p, youtube.CapComments) {
		return nil, fmt.Errorf("%w: no comments provider", youtube.ErrUnsupported)
	}

	thread, err := call(ctx, o, "comments", p, func(ctx context.Context) (*youtube.CommentThread, error) {
		return p.FetchComments(ctx, id, max)
	})
	if err != nil {
		o.log.WithContext(ctx).Warnf("video %s: comments from %s: %v", id, p.Name(), err)
		return nil, err
	}
	if thread == nil {
		thread = &youtube.CommentThread{VideoID: id}
	}
	return thread, nil
}

func (o *Orchestrator) fellBack(ctx context.Context, op string, id youtube.VideoID, cause error) {
	o.metrics.recordFallback(ctx, op)
	o.log.WithContext(ctx).Warnf("video %s: %s from %s failed (%s), trying %s: %v",
		id, op, o.primary.Name(), youtube.KindOf(cause), o.fallback.Name(), cause)
}

// call runs fn under the backoff controller, counting and logging retries.
func call[T any](ctx context.Context, o *Orchestrator, op string, p youtube.Provider, fn func(context.Context) (T, error)) (T, error) {
	cfg := o.retry
	onRetry := cfg.OnRetry
	cfg.OnRetry = func(a retry.Attempt) {
		o.metrics.recordRetry(ctx, op, p.Name())
		o.log.WithContext(ctx).Debugf("%s %s attempt %d failed (%s), retrying in %s",
			p.Name(), op, a.Number, youtube.KindOf(a.Err), a.Delay)
		if onRetry != nil {
			onRetry(a)
		}
	}

	v, err := retry.DoValue(ctx, cfg, youtube.IsTransient, fn)
	if err != nil && retry.Exhausted(err) {
		o.log.WithContext(ctx).Warnf("%s %s: %v", p.Name(), op, err)
	}
	return v, err
}

func supports(p youtube.Provider, c youtube.Capability) bool {
	return p != nil && p.Capabilities().Has(c)
}
