package youtube

import "strings"

// subtitleFormatRank orders caption formats for the subtitle listing; formats
// not listed are never offered.
var subtitleFormatRank = map[string]int{
	"vtt":   0,
	"json3": 1,
	"srv3":  2,
}

// DedupSubtitles keeps one entry per language at the best-ranked format.
// Manual tracks claim a language before automatic ones; languages keep
// first-seen order.
func DedupSubtitles(tracks []SubtitleTrack) []SubtitleURL {
	var order []string
	best := make(map[string]SubtitleTrack)

	for _, automatic := range []bool{false, true} {
		claimed := make(map[string]bool, len(best))
		for lang := range best {
			claimed[lang] = true
		}
		for _, t := range tracks {
			if t.Automatic != automatic || t.URL == "" || claimed[t.Language] {
				continue
			}
			rank, ok := subtitleFormatRank[t.Ext]
			if !ok {
				continue
			}
			cur, seen := best[t.Language]
			if !seen {
				order = append(order, t.Language)
				best[t.Language] = t
			} else if rank < subtitleFormatRank[cur.Ext] {
				best[t.Language] = t
			}
		}
	}

	out := make([]SubtitleURL, 0, len(order))
	for _, lang := range order {
		t := best[lang]
		out = append(out, SubtitleURL{Language: t.Language, Ext: t.Ext, URL: t.URL})
	}
	return out
}

// SelectTrack picks the caption track for the preferred languages. For each
// language in order it takes a manual track with the exact code, then an
// automatic one. Failing that, it accepts an automatic track whose primary
// subtag matches a preferred language (ko-KR for ko). Tracks whose Ext is not
// accepted by the caller are ignored when accept is non-nil.
func SelectTrack(tracks []SubtitleTrack, languages []string, accept func(SubtitleTrack) bool) (SubtitleTrack, bool) {
	usable := func(t SubtitleTrack) bool {
		return t.URL != "" && (accept == nil || accept(t))
	}

	for _, lang := range languages {
		for _, automatic := range []bool{false, true} {
			for _, t := range tracks {
				if t.Automatic == automatic && strings.EqualFold(t.Language, lang) && usable(t) {
					return t, true
				}
			}
		}
	}

	for _, lang := range languages {
		family := PrimarySubtag(lang)
		for _, t := range tracks {
			if t.Automatic && PrimarySubtag(t.Language) == family && usable(t) {
				return t, true
			}
		}
	}
	return SubtitleTrack{}, false
}

// PrimarySubtag returns the lower-cased language part of a BCP 47 tag ("pt" for "pt-BR").
func PrimarySubtag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		return tag[:i]
	}
	return tag
}
