package ytextract

import (
	"ytextract/extract"
	ythttp "ytextract/http"
	"ytextract/internal/retry"
	"ytextract/youtube"
)

// Error handling types exported for library users.
//
// Sentinels work with errors.Is():
//
//	if errors.Is(err, ytextract.ErrInvalidInput) {
//		fmt.Println("not a YouTube video")
//	}
//
// Wrapped errors work with errors.As():
//
//	var pe *ytextract.ProviderError
//	if errors.As(err, &pe) {
//		fmt.Printf("%s %s failed: %v\n", pe.Provider, pe.Op, pe.Err)
//	}
//
// Failures inside a result are categorized with FailureKindOf.

// Type aliases for convenient error handling.
type (
	// ProviderError wraps a failed provider call.
	ProviderError = youtube.ProviderError
	// FailureKind is a provider failure category.
	FailureKind = youtube.FailureKind
	// Failure is the error object carried inside a result.
	Failure = extract.Failure
	// RetryableError wraps an error that survived every retry attempt.
	RetryableError = retry.RetryableError
	// RateLimitError is an HTTP 429 or bot-wall response.
	RateLimitError = ythttp.RateLimitError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrInvalidInput indicates input that is not a YouTube video URL or ID.
	ErrInvalidInput = extract.ErrInvalidInput
	// ErrBatchTooLarge indicates a batch above its ceiling.
	ErrBatchTooLarge = extract.ErrBatchTooLarge
	// ErrInvalidVideoID indicates an unparseable video ID or URL.
	ErrInvalidVideoID = youtube.ErrInvalidVideoID
	// ErrRateLimited indicates YouTube throttled the request.
	ErrRateLimited = youtube.ErrRateLimited
	// ErrBlocked indicates bot protection refused the request.
	ErrBlocked = youtube.ErrBlocked
	// ErrNotFound indicates the video does not exist or is private.
	ErrNotFound = youtube.ErrNotFound
	// ErrNoData indicates the video has no data for the requested capability.
	ErrNoData = youtube.ErrNoData
	// ErrYtdlpNotFound indicates the yt-dlp binary is missing.
	ErrYtdlpNotFound = youtube.ErrYtdlpNotFound
	// ErrCircuitOpen indicates the egress circuit breaker is open for a host.
	ErrCircuitOpen = ythttp.ErrCircuitOpen
)

// FailureKindOf maps an error to its failure category.
func FailureKindOf(err error) FailureKind {
	return youtube.KindOf(err)
}

// IsRetryable reports whether a provider call failing with err is worth
// another attempt.
func IsRetryable(err error) bool {
	return youtube.IsTransient(err)
}
