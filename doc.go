// Package ytextract extracts YouTube video metadata, transcripts, subtitle
// listings and language-classified comments.
//
// Overview
//
// The work is split across a few packages:
//
//   - youtube: video ID parsing, the innertube and yt-dlp providers, caption parsing
//   - extract: the per-video orchestrator with provider fallback and the batch runner
//   - comments: language detection and grouping of comments
//   - http: the rate-limited egress client shared by all providers
//
// Binaries live under cmd/ytextract (HTTP service) and cli (command line).
//
// Quick Start
//
// Extract one video with the built-in providers:
//
//	client := ythttp.New(ythttp.DefaultConfig(), nil)
//	defer client.Close()
//	captions := youtube.NewCaptionFetcher(client)
//
//	primary := innertube.New(client, captions)
//	fallback := youtube.NewYtdlp(youtube.YtdlpConfig{Path: "yt-dlp"}, captions)
//	o := extract.NewOrchestrator(primary, fallback,
//		comments.NewClassifier(comments.NewWhatlangDetector()))
//
//	res, err := o.Extract(ctx, extract.Request{
//		Input:   "https://youtu.be/dQw4w9WgXcQ",
//		Options: extract.DefaultOptions(),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if res.Error != nil {
//		fmt.Println("failed:", res.Error)
//	}
//	fmt.Println(res.Transcript.Text())
//
// Provider failures do not surface as Go errors: they are reported in
// Result.Error and Result.Warnings so a batch always yields one result per
// input.
package ytextract
