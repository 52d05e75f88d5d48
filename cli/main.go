package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"ytextract/comments"
	"ytextract/extract"
	"ytextract/internal/bootstrap"
	"ytextract/internal/config"
	"ytextract/internal/logger"
	"ytextract/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "extract":
		cmdExtract(args)
	case "batch":
		cmdBatch(args)
	case "comments":
		cmdComments(args)
	case "subtitles":
		cmdSubtitles(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		// A bare URL or ID is an extract
		cmdExtract(os.Args[1:])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `ytextract - YouTube metadata, transcript and comment extractor

Usage:
  ytextract extract [flags] <url-or-id>     Metadata and transcript for one video
  ytextract batch [flags] <file.csv>        Extract every URL of a CSV list to a file
  ytextract comments [flags] <url-or-id>    Comments grouped by language
  ytextract subtitles [flags] <url-or-id>   Subtitle download URLs
  ytextract help                            Show this help message

Examples:
  ytextract dQw4w9WgXcQ                                  # Extract (default)
  ytextract extract -lang ko,en https://youtu.be/dQw4w9WgXcQ
  ytextract extract -comments 50 -json dQw4w9WgXcQ
  ytextract batch -format csv -out result.csv urls.csv
  ytextract comments -max 200 dQw4w9WgXcQ

The CSV list has a header row; the first column holds a URL or an 11-character video ID.
Press Ctrl-C to stop a batch: finished items are still written.

For help on specific command: ytextract <command> -h
`)
}

// env is the per-command pipeline.
type env struct {
	cfg     *config.Config
	app     *bootstrap.App
	ctx     context.Context
	cleanup func()
}

func setup() *env {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	loggr := logger.NewLogger(logger.Config{
		Service: cfg.ServiceName,
		Version: cfg.ServiceVersion,
		Level:   cfg.LogLevel,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app, cleanup, err := bootstrap.New(ctx, cfg, loggr)
	if err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return &env{cfg: cfg, app: app, ctx: ctx, cleanup: func() { cleanup(); stop() }}
}

func parseLanguages(s string, fallback []string) []string {
	if langs := config.SplitList(s); len(langs) > 0 {
		return langs
	}
	return fallback
}

func cmdExtract(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	langStr := fs.String("lang", "", "Comma-separated transcript languages in preference order (default from config)")
	noTranscript := fs.Bool("no-transcript", false, "Skip the transcript")
	maxComments := fs.Int("comments", 0, "Also fetch and classify up to N comments")
	asJSON := fs.Bool("json", false, "Print the full result as JSON")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytextract extract [flags] <url-or-id>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing url-or-id\n")
		fs.Usage()
		os.Exit(1)
	}

	e := setup()
	defer e.cleanup()

	opts := extract.Options{
		Languages:         parseLanguages(*langStr, e.cfg.Languages),
		IncludeTranscript: !*noTranscript,
		MaxComments:       *maxComments,
	}

	fmt.Fprintf(os.Stderr, "Extracting %s...\n", argv[0])
	res, err := e.app.Orchestrator.Extract(e.ctx, extract.Request{Input: argv[0], Options: opts})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		printJSON(res)
	} else {
		printResult(os.Stdout, res)
	}
	if res.Error != nil {
		os.Exit(1)
	}
}

func printResult(w io.Writer, res *extract.Result) {
	v := res.View()
	fmt.Fprintf(w, "Video ID:      %s\n", v.VideoID)
	fmt.Fprintf(w, "Title:         %s\n", deref(v.Title))
	fmt.Fprintf(w, "Channel:       %s\n", deref(v.Channel))
	fmt.Fprintf(w, "Duration:      %s\n", deref(v.DurationString))
	fmt.Fprintf(w, "Views:         %s\n", count(v.ViewCount))
	fmt.Fprintf(w, "Likes:         %s\n", count(v.LikeCount))
	fmt.Fprintf(w, "Uploaded:      %s\n", deref(v.UploadDate))
	if res.MetadataSource != "" {
		fmt.Fprintf(w, "Source:        %s\n", res.MetadataSource)
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "Warning:       %s\n", warning)
	}
	if res.Error != nil {
		fmt.Fprintf(w, "Error:         %s\n", res.Error.Error())
		return
	}

	if t := res.Transcript; t != nil {
		fmt.Fprintf(w, "\nTranscript %s (%s), auto-generated: %v, %d entries:\n\n",
			t.Language, t.LanguageName, t.IsGenerated, len(t.Snippets))
		for _, s := range t.Snippets {
			fmt.Fprintf(w, "[%s +%s] %s\n", formatTimestamp(s.Start), formatTimestamp(s.Duration), s.Text)
		}
	} else {
		fmt.Fprintln(w, "\nNo transcript available for this video")
	}

	if res.Comments != nil {
		fmt.Fprintln(w)
		printGroups(w, *res.Comments)
	}
}

func cmdBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	langStr := fs.String("lang", "", "Comma-separated transcript languages (default from config)")
	formatStr := fs.String("format", "json", "Output format: json or csv")
	out := fs.String("out", "", "Output file (default youtube_extract_<timestamp>.<format>)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytextract batch [flags] <file.csv>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing file.csv\n")
		fs.Usage()
		os.Exit(1)
	}

	format, err := storage.ParseFormat(*formatStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(argv[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening CSV: %v\n", err)
		os.Exit(1)
	}
	urls, err := storage.ReadURLs(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading CSV: %v\n", err)
		os.Exit(1)
	}

	e := setup()
	defer e.cleanup()

	urls, dropped := capURLs(urls, e.cfg.MaxBatchCSV)
	if dropped > 0 {
		fmt.Fprintf(os.Stderr, "Warning: only the first %d URLs are processed, %d skipped\n", len(urls), dropped)
	}

	path := *out
	if path == "" {
		path = format.Filename(time.Now())
	}

	opts := extract.DefaultOptions()
	opts.Languages = parseLanguages(*langStr, e.cfg.Languages)

	fmt.Fprintf(os.Stderr, "Extracting %d videos...\n", len(urls))
	start := time.Now()
	results, err := e.app.Batcher.ExtractBatchLimit(e.ctx, urls, opts, e.cfg.MaxBatchCSV)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Interrupted: writing finished items\n")
	}

	if err := storage.WriteFileAtomic(path, func(w io.Writer) error {
		return format.Write(w, results)
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
		os.Exit(1)
	}

	ok := printBatchSummary(os.Stdout, results)
	fmt.Fprintf(os.Stderr, "\nSucceeded: %d/%d in %s\nSaved to: %s\n",
		ok, len(results), time.Since(start).Round(time.Second), path)
}

// capURLs keeps at most limit URLs and reports how many were dropped.
func capURLs(urls []string, limit int) ([]string, int) {
	if limit <= 0 || len(urls) <= limit {
		return urls, 0
	}
	return urls[:limit], len(urls) - limit
}

func printBatchSummary(out io.Writer, results []*extract.Result) int {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VIDEO ID\tTITLE\tTRANSCRIPT\tSTATUS")

	ok := 0
	for _, r := range results {
		v := r.View()
		transcript := "-"
		if v.TranscriptLanguage != nil {
			transcript = fmt.Sprintf("%s (%d)", *v.TranscriptLanguage, *v.SnippetCount)
		}
		status := "ok"
		if r.Error != nil {
			status = r.Error.Code
		} else {
			ok++
			if len(r.Warnings) > 0 {
				status = strings.Join(r.Warnings, ",")
			}
		}
		id := v.VideoID
		if id == "" {
			id = truncate(r.Input, 20)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, truncate(deref(v.Title), 50), transcript, status)
	}
	w.Flush()
	return ok
}

func cmdComments(args []string) {
	fs := flag.NewFlagSet("comments", flag.ExitOnError)
	max := fs.Int("max", 100, "Maximum comments to fetch")
	asJSON := fs.Bool("json", false, "Print the full result as JSON")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytextract comments [flags] <url-or-id>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing url-or-id\n")
		fs.Usage()
		os.Exit(1)
	}

	e := setup()
	defer e.cleanup()

	fmt.Fprintf(os.Stderr, "Fetching up to %d comments for %s...\n", *max, argv[0])
	res, err := e.app.Orchestrator.Comments(e.ctx, argv[0], *max)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if res.Error != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", res.Error.Error())
		os.Exit(1)
	}

	if *asJSON {
		printJSON(res)
		return
	}
	fmt.Printf("Video ID:      %s\n", res.VideoID)
	fmt.Printf("Title:         %s\n", res.Title)
	fmt.Printf("Comments:      %s (fetched %d)\n\n", count(res.CommentCount), len(res.Classified.All))
	printGroups(os.Stdout, res.Classified)
}

func printGroups(out io.Writer, r comments.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tCOUNT\tTOP COMMENT")
	for _, g := range comments.Groups {
		top := ""
		if recs := r.ByGroup[g]; len(recs) > 0 {
			top = truncate(strings.ReplaceAll(recs[0].Text, "\n", " "), 60)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", g, r.Counts[g], top)
	}
	w.Flush()
}

func cmdSubtitles(args []string) {
	fs := flag.NewFlagSet("subtitles", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytextract subtitles [flags] <url-or-id>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing url-or-id\n")
		fs.Usage()
		os.Exit(1)
	}

	e := setup()
	defer e.cleanup()

	res, err := e.app.Orchestrator.Subtitles(e.ctx, argv[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *asJSON {
		printJSON(res)
		return
	}
	if res.Error != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", res.Error.Error())
		os.Exit(1)
	}
	if len(res.SubtitleURLs) == 0 {
		fmt.Println("No subtitles found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LANGUAGE\tFORMAT\tURL")
	for _, s := range res.SubtitleURLs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Language, s.Ext, s.URL)
	}
	w.Flush()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
		os.Exit(1)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func count(n *int64) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *n)
}

// truncate shortens s to maxLen runes, marking the cut with "...".
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen-3]) + "..."
}

func formatTimestamp(seconds float64) string {
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}
