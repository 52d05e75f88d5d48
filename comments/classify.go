// Package comments annotates provider comments with their detected language
// and buckets them into a fixed set of language groups.
package comments

import (
	"ytextract/youtube"
)

// Group is a language bucket.
type Group string

const (
	Korean         Group = "korean"
	Japanese       Group = "japanese"
	Chinese        Group = "chinese"
	SoutheastAsian Group = "southeast_asian"
	Western        Group = "western"
	Latin          Group = "latin"
	Others         Group = "others"
)

// Undetermined is the language code recorded when detection fails.
const Undetermined = "und"

// Groups lists every group in reporting order.
var Groups = []Group{Korean, Japanese, Chinese, SoutheastAsian, Western, Latin, Others}

var groupByCode = map[string]Group{
	"ko": Korean,
	"ja": Japanese,
	"zh": Chinese,
	"th": SoutheastAsian,
	"id": SoutheastAsian,
	"vi": SoutheastAsian,
	"en": Western,
	"fr": Western,
	"de": Western,
	"es": Latin,
	"pt": Latin,
}

// GroupOf maps a language code to its group by primary subtag, so zh-Hant
// and zh-Hans are both chinese. Unknown codes and "und" map to Others.
func GroupOf(code string) Group {
	if g, ok := groupByCode[youtube.PrimarySubtag(code)]; ok {
		return g
	}
	return Others
}

// Record is a comment annotated with its detected language.
type Record struct {
	youtube.Comment
	Language string `json:"language"`
	Group    Group  `json:"language_group"`
}

// Result is a classified comment listing.
type Result struct {
	// All holds every accepted comment in provider order.
	All []Record `json:"comments"`
	// ByGroup holds a list for every group, empty ones included.
	ByGroup map[Group][]Record `json:"by_language"`
	// Counts holds the size of every group list.
	Counts map[Group]int `json:"language_counts"`
}

// Classifier assigns comments to language groups.
type Classifier struct {
	detector Detector
}

// NewClassifier creates a classifier backed by detector.
func NewClassifier(detector Detector) *Classifier {
	return &Classifier{detector: detector}
}

// Classify keeps the first max comments (all of them when max <= 0) in the
// order the provider returned them and annotates each with its language.
// Detection failures are recorded as "und" in the others group.
func (c *Classifier) Classify(raw []youtube.Comment, max int) Result {
	if max > 0 && len(raw) > max {
		raw = raw[:max]
	}

	res := Result{
		All:     make([]Record, 0, len(raw)),
		ByGroup: make(map[Group][]Record, len(Groups)),
		Counts:  make(map[Group]int, len(Groups)),
	}
	for _, g := range Groups {
		res.ByGroup[g] = []Record{}
		res.Counts[g] = 0
	}

	for _, comment := range raw {
		code, err := c.detector.Detect(comment.Text)
		if err != nil || code == "" {
			code = Undetermined
		}
		rec := Record{Comment: comment, Language: code, Group: GroupOf(code)}
		res.All = append(res.All, rec)
		res.ByGroup[rec.Group] = append(res.ByGroup[rec.Group], rec)
		res.Counts[rec.Group]++
	}
	return res
}
