package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ytextract/internal/retry"
)

// Extractor is the single-item operation a Batcher drives.
type Extractor interface {
	Extract(ctx context.Context, req Request) (*Result, error)
}

// BatchConfig configures pacing and limits.
type BatchConfig struct {
	// BaseDelay separates consecutive items.
	BaseDelay time.Duration
	// SlowDelay replaces BaseDelay after SlowAfter items in batches larger than SlowAfter.
	SlowDelay time.Duration
	SlowAfter int
	// MaxItems is the default ceiling used by ExtractBatch.
	MaxItems int
	// Workers processes items concurrently when above 1. Each worker waits
	// the pacing delay multiplied by Workers between its own items.
	Workers int
	// Sleep waits between items. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultBatchConfig returns 0.5s pacing, 3s past the 100th item, 50 items max.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BaseDelay: 500 * time.Millisecond,
		SlowDelay: 3 * time.Second,
		SlowAfter: 100,
		MaxItems:  50,
		Workers:   1,
	}
}

// Batcher runs extractions over ordered inputs with pacing.
type Batcher struct {
	extractor Extractor
	cfg       BatchConfig
	logger    log.Logger
	metrics   *extractMetrics
	newID     func() string
}

// NewBatcher creates a Batcher. Only the logger and meter options apply.
func NewBatcher(extractor Extractor, cfg BatchConfig, opts ...Option) *Batcher {
	o := newOptions(opts)
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.SleepContext
	}
	logger := log.With(o.logger, "module", "extract/batch")
	helper := log.NewHelper(logger)
	return &Batcher{
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
		metrics:   newExtractMetrics(o.meter.Meter(instrumentationName), helper),
		newID:     uuid.NewString,
	}
}

// ExtractBatch is ExtractBatchLimit with the configured ceiling.
func (b *Batcher) ExtractBatch(ctx context.Context, inputs []string, opts Options) ([]*Result, error) {
	return b.ExtractBatchLimit(ctx, inputs, opts, b.cfg.MaxItems)
}

// ExtractBatchLimit extracts every input and returns one result per input in
// input order. A batch above limit (when limit > 0) is rejected with
// ErrBatchTooLarge before any item runs. Item failures stay in their result.
// On cancellation the remaining items get a canceled failure and ctx.Err()
// is returned along with the full-length results.
func (b *Batcher) ExtractBatchLimit(ctx context.Context, inputs []string, opts Options, limit int) ([]*Result, error) {
	if limit > 0 && len(inputs) > limit {
		return nil, fmt.Errorf("%w: %d items, limit %d", ErrBatchTooLarge, len(inputs), limit)
	}

	batchID := b.newID()
	logger := log.NewHelper(log.With(b.logger, "batch_id", batchID))
	results := make([]*Result, len(inputs))
	start := time.Now()
	logger.WithContext(ctx).Infof("batch started: %d items, %d workers", len(inputs), b.cfg.Workers)

	workers := b.cfg.Workers
	if workers > len(inputs) {
		workers = len(inputs)
	}
	if workers <= 1 {
		b.runWorker(ctx, logger, inputs, opts, results, 0, 1)
	} else {
		var g errgroup.Group
		for w := 0; w < workers; w++ {
			g.Go(func() error {
				b.runWorker(ctx, logger, inputs, opts, results, w, workers)
				return nil
			})
		}
		_ = g.Wait()
	}

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	logger.WithContext(ctx).Infof("batch finished: %d/%d succeeded in %s",
		len(results)-failed, len(results), time.Since(start).Round(time.Millisecond))
	return results, ctx.Err()
}

// runWorker processes indexes w, w+stride, ... writing only its own slots.
func (b *Batcher) runWorker(ctx context.Context, logger *log.Helper, inputs []string, opts Options, results []*Result, w, stride int) {
	n := len(inputs)
	for i := w; i < n; i += stride {
		if i > w {
			delay := b.delayAfter(i-stride, n) * time.Duration(stride)
			if err := b.cfg.Sleep(ctx, delay); err != nil {
				b.cancelFrom(results, inputs, i, stride, err)
				return
			}
		}
		if err := ctx.Err(); err != nil {
			b.cancelFrom(results, inputs, i, stride, err)
			return
		}

		res, err := b.extractor.Extract(ctx, Request{Input: inputs[i], Options: opts})
		if res == nil {
			res = &Result{Input: inputs[i], Error: &Failure{Code: CodeMetadataUnavailable, Message: fmt.Sprint(err)}}
		}
		results[i] = res

		outcome := outcomeOK
		if res.Error != nil {
			outcome = res.Error.Code
			logger.WithContext(ctx).Infof("item %d/%d %s: %s", i+1, n, inputs[i], res.Error.Code)
		} else {
			logger.WithContext(ctx).Infof("item %d/%d %s: ok", i+1, n, res.VideoID)
		}
		b.metrics.recordBatchItem(context.WithoutCancel(ctx), outcome)
	}
}

// delayAfter is the pause following the item at zero-based index i.
func (b *Batcher) delayAfter(i, n int) time.Duration {
	if b.cfg.SlowAfter > 0 && n > b.cfg.SlowAfter && i+1 >= b.cfg.SlowAfter {
		return b.cfg.SlowDelay
	}
	return b.cfg.BaseDelay
}

func (b *Batcher) cancelFrom(results []*Result, inputs []string, from, stride int, err error) {
	for i := from; i < len(inputs); i += stride {
		if results[i] == nil {
			results[i] = &Result{Input: inputs[i], Error: canceled(err)}
		}
	}
}
