package youtube

import (
	"errors"
	"fmt"

	ythttp "ytextract/http"
	"ytextract/internal/retry"
)

// Sentinel errors shared by every provider.
var (
	ErrInvalidVideoID = errors.New("youtube: invalid video id or url")
	ErrRateLimited    = errors.New("youtube: rate limited")
	ErrBlocked        = errors.New("youtube: blocked by bot protection")
	ErrNotFound       = errors.New("youtube: video not found")
	ErrNoData         = errors.New("youtube: no data for video")
	ErrUnsupported    = errors.New("youtube: operation not supported by provider")
	ErrYtdlpNotFound  = errors.New("youtube: yt-dlp binary not found")
)

// ProviderError wraps a provider failure with the call that produced it.
// Use errors.As() to extract it:
//
//	var pe *youtube.ProviderError
//	if errors.As(err, &pe) {
//		fmt.Printf("%s %s failed: %v\n", pe.Provider, pe.Op, pe.Err)
//	}
type ProviderError struct {
	// Provider is the provider name ("innertube", "ytdlp").
	Provider string
	// Op is the capability being exercised ("metadata", "transcript", "comments").
	Op string
	// VideoID is the video being fetched.
	VideoID VideoID
	// Err is the underlying error, usually one of the sentinels above.
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("youtube: %s %s %s: %v", e.Provider, e.Op, e.VideoID, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// FailureKind is the closed set of provider failure categories.
type FailureKind string

const (
	KindRateLimited FailureKind = "rate_limited"
	KindNotFound    FailureKind = "not_found"
	KindNoData      FailureKind = "no_data"
	KindBlocked     FailureKind = "blocked"
	KindUnknown     FailureKind = "unknown"
)

// KindOf maps any error returned by a provider to its FailureKind.
// HTTP-level errors from the egress client are folded into the same taxonomy.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrBlocked), errors.Is(err, ythttp.ErrCircuitOpen):
		return KindBlocked
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNoData):
		return KindNoData
	}

	var rl *ythttp.RateLimitError
	if errors.As(err, &rl) {
		if rl.IsBotDetection {
			return KindBlocked
		}
		return KindRateLimited
	}
	var he *ythttp.HTTPError
	if errors.As(err, &he) && he.NotFound() {
		return KindNotFound
	}
	return KindUnknown
}

// IsTransient is the retry classifier for provider calls: rate limits and
// bot walls are worth another attempt, everything else is fatal.
func IsTransient(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	switch KindOf(err) {
	case KindRateLimited, KindBlocked:
		return true
	default:
		return false
	}
}
