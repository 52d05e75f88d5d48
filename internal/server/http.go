// Package server exposes the extraction pipeline over HTTP.
package server

import (
	stdhttp "net/http"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	kmetrics "github.com/go-kratos/kratos/v2/middleware/metrics"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/uuid"

	"ytextract/internal/config"
)

const headerRequestID = "X-Request-Id"

// NewHTTPServer creates the HTTP server with every route registered.
func NewHTTPServer(cfg *config.Config, svc *Service, tel *Telemetry, logger log.Logger) *http.Server {
	chain := []middleware.Middleware{
		recovery.Recovery(),
		tracing.Server(),
		logging.Server(logger),
	}
	if tel != nil {
		chain = append(chain, kmetrics.Server(
			kmetrics.WithRequests(tel.RequestCounter),
			kmetrics.WithSeconds(tel.SecondsHistogram),
		))
	}

	opts := []http.ServerOption{
		http.Middleware(chain...),
		http.Filter(requestID),
	}
	if cfg.Addr != "" {
		opts = append(opts, http.Address(cfg.Addr))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, http.Timeout(cfg.RequestTimeout))
	}

	srv := http.NewServer(opts...)

	r := srv.Route("/")
	r.GET("/", svc.Info)
	r.GET("/health", svc.Health)
	r.POST("/extract", svc.Extract)
	r.POST("/transcript", svc.Transcript)
	r.POST("/transcript/csv", svc.TranscriptCSV)
	r.POST("/transcript/csv-save", svc.TranscriptCSVSave)
	r.POST("/comments", svc.Comments)
	r.POST("/subtitles", svc.Subtitles)
	r.GET("/test/{video_id}", svc.TestVideo)
	r.GET("/test-comments/{video_id}", svc.TestComments)

	if tel != nil {
		srv.Handle("/metrics", tel.Handler())
	}
	return srv
}

// requestID tags every request and response with an X-Request-Id, keeping
// one supplied by the caller.
func requestID(next stdhttp.Handler) stdhttp.Handler {
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(headerRequestID, id)
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r)
	})
}
