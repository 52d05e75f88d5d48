package server

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"sort"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	kmetrics "github.com/go-kratos/kratos/v2/middleware/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Telemetry bundles the meter and tracer providers with the server instruments.
type Telemetry struct {
	MeterProvider    *sdkmetric.MeterProvider
	TracerProvider   *sdktrace.TracerProvider
	Reader           *sdkmetric.ManualReader
	RequestCounter   metric.Int64Counter
	SecondsHistogram metric.Float64Histogram
}

// NewTelemetry prepares in-process metrics read on demand by /metrics and a
// tracer provider that stamps trace and span IDs onto logs. Both become the
// otel globals.
func NewTelemetry(name string, logger log.Logger) (*Telemetry, func(), error) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithView(kmetrics.DefaultSecondsHistogramView(kmetrics.DefaultServerSecondsHistogramName)),
	)
	tp := sdktrace.NewTracerProvider()
	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	meter := mp.Meter(name)
	requestCounter, err := kmetrics.DefaultRequestsCounter(meter, kmetrics.DefaultServerRequestsCounterName)
	if err != nil {
		return nil, nil, err
	}
	secondsHistogram, err := kmetrics.DefaultSecondsHistogram(meter, kmetrics.DefaultServerSecondsHistogramName)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(ctx); err != nil {
			log.NewHelper(logger).Warnf("shutdown meter provider: %v", err)
		}
		if err := tp.Shutdown(ctx); err != nil {
			log.NewHelper(logger).Warnf("shutdown tracer provider: %v", err)
		}
	}

	return &Telemetry{
		MeterProvider:    mp,
		TracerProvider:   tp,
		Reader:           reader,
		RequestCounter:   requestCounter,
		SecondsHistogram: secondsHistogram,
	}, cleanup, nil
}

// MetricPoint is one data point of a collected series.
type MetricPoint struct {
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      float64           `json:"value"`
	// Count is set for histograms, whose Value is the sum of observations.
	Count uint64 `json:"count,omitempty"`
}

// MetricSeries is one collected instrument.
type MetricSeries struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Points      []MetricPoint `json:"points"`
}

// Snapshot collects every instrument, sorted by name.
func (t *Telemetry) Snapshot(ctx context.Context) ([]MetricSeries, error) {
	var rm metricdata.ResourceMetrics
	if err := t.Reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}

	var series []MetricSeries
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			s := MetricSeries{Name: m.Name, Description: m.Description}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					s.Points = append(s.Points, MetricPoint{Attributes: attrs(dp.Attributes), Value: float64(dp.Value)})
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					s.Points = append(s.Points, MetricPoint{Attributes: attrs(dp.Attributes), Value: dp.Value})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					s.Points = append(s.Points, MetricPoint{Attributes: attrs(dp.Attributes), Value: dp.Sum, Count: dp.Count})
				}
			default:
				continue
			}
			series = append(series, s)
		}
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Name < series[j].Name })
	return series, nil
}

// Handler serves the snapshot as JSON.
func (t *Telemetry) Handler() stdhttp.Handler {
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		series, err := t.Snapshot(r.Context())
		if err != nil {
			stdhttp.Error(w, err.Error(), stdhttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"metrics": series})
	})
}

func attrs(set attribute.Set) map[string]string {
	if set.Len() == 0 {
		return nil
	}
	out := make(map[string]string, set.Len())
	for it := set.Iter(); it.Next(); {
		kv := it.Attribute()
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}
