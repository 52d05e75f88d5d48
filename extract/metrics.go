package extract

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricExtractions = "ytextract_extractions_total"
	metricFallbacks   = "ytextract_provider_fallbacks_total"
	metricRetries     = "ytextract_retry_attempts_total"
	metricBatchItems  = "ytextract_batch_items_total"
)

// Extraction outcomes.
const (
	outcomeOK       = "ok"
	outcomePartial  = "partial"
	outcomeFailed   = "failed"
	outcomeInvalid  = "invalid"
	outcomeCanceled = "canceled"
)

// extractMetrics holds the orchestrator instruments. Instruments that fail
// to register stay nil and are skipped.
type extractMetrics struct {
	extractions metric.Int64Counter
	fallbacks   metric.Int64Counter
	retries     metric.Int64Counter
	batchItems  metric.Int64Counter
}

func newExtractMetrics(meter metric.Meter, helper *log.Helper) *extractMetrics {
	m := &extractMetrics{}
	var err error
	if m.extractions, err = meter.Int64Counter(metricExtractions,
		metric.WithDescription("Extractions by outcome")); err != nil {
		helper.Warnf("extract metrics: register extractions counter: %v", err)
	}
	if m.fallbacks, err = meter.Int64Counter(metricFallbacks,
		metric.WithDescription("Calls handed to the fallback provider after a primary failure")); err != nil {
		helper.Warnf("extract metrics: register fallbacks counter: %v", err)
	}
	if m.retries, err = meter.Int64Counter(metricRetries,
		metric.WithDescription("Provider calls retried after a transient failure")); err != nil {
		helper.Warnf("extract metrics: register retries counter: %v", err)
	}
	if m.batchItems, err = meter.Int64Counter(metricBatchItems,
		metric.WithDescription("Batch items processed by outcome")); err != nil {
		helper.Warnf("extract metrics: register batch counter: %v", err)
	}
	return m
}

func (m *extractMetrics) recordExtraction(ctx context.Context, outcome string) {
	if m == nil || m.extractions == nil {
		return
	}
	m.extractions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *extractMetrics) recordFallback(ctx context.Context, op string) {
	if m == nil || m.fallbacks == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *extractMetrics) recordRetry(ctx context.Context, op, provider string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("provider", provider),
	))
}

func (m *extractMetrics) recordBatchItem(ctx context.Context, outcome string) {
	if m == nil || m.batchItems == nil {
		return
	}
	m.batchItems.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
