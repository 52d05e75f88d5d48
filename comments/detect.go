package comments

import (
	"errors"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// ErrDetectionFailed is returned when a text's language cannot be determined.
var ErrDetectionFailed = errors.New("comments: language detection failed")

// Detector identifies the language of a text. Implementations return an
// ISO 639-1 code where one exists, or ErrDetectionFailed.
type Detector interface {
	Detect(text string) (string, error)
}

// WhatlangDetector detects languages with whatlanggo.
//
// Texts written in a script used by a single language (Hangul, kana, Thai)
// are accepted at any length. Other texts need MinRunes letters and a
// detection confidence of at least MinConfidence.
type WhatlangDetector struct {
	MinRunes      int
	MinConfidence float64
}

// NewWhatlangDetector returns a detector with the default thresholds.
func NewWhatlangDetector() *WhatlangDetector {
	return &WhatlangDetector{MinRunes: 3, MinConfidence: 0.1}
}

// Detect implements Detector.
func (d *WhatlangDetector) Detect(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrDetectionFailed
	}

	info := whatlanggo.Detect(text)
	if info.Script == nil || info.Lang < 0 {
		return "", ErrDetectionFailed
	}

	if info.Confidence < 1 {
		if countLetters(text) < d.MinRunes || info.Confidence < d.MinConfidence {
			return "", ErrDetectionFailed
		}
	}

	code := info.Lang.Iso6391()
	if code == "" {
		code = info.Lang.Iso6393()
	}
	if code == "" {
		return "", ErrDetectionFailed
	}
	return code, nil
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
