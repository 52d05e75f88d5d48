package server

import (
	"bytes"
	"context"
	"fmt"
	stdhttp "net/http"
	"strconv"
	"time"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	"ytextract/extract"
	"ytextract/internal/config"
	"ytextract/internal/storage"
	"ytextract/youtube"
)

// maxUploadSize bounds multipart CSV uploads.
const maxUploadSize = 8 << 20

const defaultMaxComments = 100

// Pipeline is the single-video surface of the orchestrator.
type Pipeline interface {
	Extract(ctx context.Context, req extract.Request) (*extract.Result, error)
	Subtitles(ctx context.Context, input string) (*extract.SubtitleResult, error)
	Comments(ctx context.Context, input string, max int) (*extract.CommentsResult, error)
}

// BatchRunner runs ordered, paced batches.
type BatchRunner interface {
	ExtractBatch(ctx context.Context, inputs []string, opts extract.Options) ([]*extract.Result, error)
	ExtractBatchLimit(ctx context.Context, inputs []string, opts extract.Options, limit int) ([]*extract.Result, error)
}

// Service implements the HTTP handlers.
type Service struct {
	pipeline Pipeline
	batches  BatchRunner
	cfg      *config.Config
	log      *log.Helper
	now      func() time.Time
}

// NewService creates the handler set.
func NewService(pipeline Pipeline, batches BatchRunner, cfg *config.Config, logger log.Logger) *Service {
	return &Service{
		pipeline: pipeline,
		batches:  batches,
		cfg:      cfg,
		log:      log.NewHelper(log.With(logger, "module", "server")),
		now:      time.Now,
	}
}

// Info serves GET /.
func (s *Service) Info(ctx http.Context) error {
	return ctx.Result(stdhttp.StatusOK, &InfoResponse{
		Service:   "YouTube Video Extractor API",
		Version:   s.cfg.ServiceVersion,
		Status:    "running",
		Features:  features,
		Endpoints: endpoints,
	})
}

// Health serves GET /health.
func (s *Service) Health(ctx http.Context) error {
	return ctx.Result(stdhttp.StatusOK, &HealthResponse{
		Status:    "healthy",
		Timestamp: s.now().Format(time.RFC3339),
		Version:   s.cfg.ServiceVersion,
	})
}

// Extract serves POST /extract.
func (s *Service) Extract(ctx http.Context) error {
	var in ExtractRequest
	if err := ctx.Bind(&in); err != nil {
		return err
	}
	http.SetOperation(ctx, "/extract")
	h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
		return s.extract(c, req.(*ExtractRequest))
	})
	out, err := h(ctx, &in)
	if err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, out)
}

func (s *Service) extract(ctx context.Context, in *ExtractRequest) (*extract.Result, error) {
	opts := s.options(in.Languages, s.cfg.Languages)
	if in.IncludeTranscript != nil {
		opts.IncludeTranscript = *in.IncludeTranscript
	}
	opts.MaxComments = in.MaxComments

	res, err := s.pipeline.Extract(ctx, extract.Request{Input: in.VideoURL, Options: opts})
	if err != nil {
		return nil, toHTTPError(err)
	}
	return res, nil
}

// Transcript serves POST /transcript.
func (s *Service) Transcript(ctx http.Context) error {
	var in BatchRequest
	if err := ctx.Bind(&in); err != nil {
		return err
	}
	http.SetOperation(ctx, "/transcript")
	h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
		in := req.(*BatchRequest)
		s.log.WithContext(c).Infof("batch request %s: %d urls", requestIDOf(ctx), len(in.VideoURLs))
		results, err := s.batches.ExtractBatch(c, in.VideoURLs, s.options(in.Languages, s.cfg.Languages))
		if err != nil {
			return nil, toHTTPError(err)
		}
		return results, nil
	})
	out, err := h(ctx, &in)
	if err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, out)
}

// TranscriptCSV serves POST /transcript/csv.
func (s *Service) TranscriptCSV(ctx http.Context) error {
	http.SetOperation(ctx, "/transcript/csv")
	results, err := s.runCSV(ctx)
	if err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, results)
}

// TranscriptCSVSave serves POST /transcript/csv-save as a file download.
func (s *Service) TranscriptCSVSave(ctx http.Context) error {
	http.SetOperation(ctx, "/transcript/csv-save")
	format, err := storage.ParseFormat(ctx.Query().Get("format"))
	if err != nil {
		return kerrors.BadRequest(ReasonInvalidInput, err.Error())
	}
	results, err := s.runCSV(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := format.Write(&buf, results); err != nil {
		return kerrors.InternalServer("export", err.Error())
	}
	ctx.Response().Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s", format.Filename(s.now())))
	return ctx.Blob(stdhttp.StatusOK, format.ContentType(), buf.Bytes())
}

// runCSV reads the uploaded URL list and extracts it under the CSV ceiling.
func (s *Service) runCSV(ctx http.Context) ([]*extract.Result, error) {
	req := ctx.Request()
	if err := req.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, kerrors.BadRequest(ReasonInvalidFile, fmt.Sprintf("parse upload: %v", err))
	}
	file, _, err := req.FormFile("file")
	if err != nil {
		return nil, kerrors.BadRequest(ReasonInvalidFile, fmt.Sprintf("missing file: %v", err))
	}
	defer file.Close()

	urls, err := storage.ReadURLs(file)
	if err != nil {
		return nil, toHTTPError(err)
	}
	if len(urls) > s.cfg.MaxBatchCSV {
		return nil, kerrors.BadRequest(ReasonBatchTooLarge,
			fmt.Sprintf("at most %d urls per file, got %d", s.cfg.MaxBatchCSV, len(urls)))
	}

	languages := config.SplitList(ctx.Query().Get("languages"))
	opts := s.options(languages, s.cfg.CSVLanguages)

	h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
		urls := req.([]string)
		s.log.WithContext(c).Infof("csv batch %s: %d urls", requestIDOf(ctx), len(urls))
		results, err := s.batches.ExtractBatchLimit(c, urls, opts, s.cfg.MaxBatchCSV)
		if err != nil {
			return nil, toHTTPError(err)
		}
		return results, nil
	})
	out, err := h(ctx, urls)
	if err != nil {
		return nil, err
	}
	return out.([]*extract.Result), nil
}

// Comments serves POST /comments.
func (s *Service) Comments(ctx http.Context) error {
	var in CommentsRequest
	if err := ctx.Bind(&in); err != nil {
		return err
	}
	max := defaultMaxComments
	if in.MaxComments != nil {
		max = *in.MaxComments
	}
	return s.comments(ctx, "/comments", in.VideoURL, max)
}

// Subtitles serves POST /subtitles.
func (s *Service) Subtitles(ctx http.Context) error {
	var in SubtitlesRequest
	if err := ctx.Bind(&in); err != nil {
		return err
	}
	http.SetOperation(ctx, "/subtitles")
	h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
		res, err := s.pipeline.Subtitles(c, req.(*SubtitlesRequest).VideoURL)
		if err != nil {
			return nil, toHTTPError(err)
		}
		return res, nil
	})
	out, err := h(ctx, &in)
	if err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, out)
}

// TestVideo serves GET /test/{video_id}.
func (s *Service) TestVideo(ctx http.Context) error {
	in := ExtractRequest{
		VideoURL:  watchURL(ctx.Vars().Get("video_id")),
		Languages: config.SplitList(ctx.Query().Get("languages")),
	}
	if len(in.Languages) == 0 {
		in.Languages = s.cfg.CSVLanguages
	}
	http.SetOperation(ctx, "/test")
	h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
		return s.extract(c, req.(*ExtractRequest))
	})
	out, err := h(ctx, &in)
	if err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, out)
}

// TestComments serves GET /test-comments/{video_id}.
func (s *Service) TestComments(ctx http.Context) error {
	max := defaultMaxComments
	if v := ctx.Query().Get("max_comments"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return kerrors.BadRequest(ReasonInvalidInput, fmt.Sprintf("max_comments: %v", err))
		}
		max = n
	}
	return s.comments(ctx, "/test-comments", watchURL(ctx.Vars().Get("video_id")), max)
}

func (s *Service) comments(ctx http.Context, op, input string, max int) error {
	http.SetOperation(ctx, op)
	h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
		res, err := s.pipeline.Comments(c, req.(string), max)
		if err != nil {
			return nil, toHTTPError(err)
		}
		return newCommentsResponse(res), nil
	})
	out, err := h(ctx, input)
	if err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, out)
}

func (s *Service) options(languages, fallback []string) extract.Options {
	opts := extract.DefaultOptions()
	switch {
	case len(languages) > 0:
		opts.Languages = languages
	case len(fallback) > 0:
		opts.Languages = fallback
	}
	return opts
}

func watchURL(id string) string {
	return youtube.VideoID(id).WatchURL()
}

func requestIDOf(ctx http.Context) string {
	return ctx.Request().Header.Get(headerRequestID)
}
