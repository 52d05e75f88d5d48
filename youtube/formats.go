package youtube

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Caption formats understood by ParseCaptions.
const (
	FormatVTT   = "vtt"
	FormatJSON3 = "json3"
	FormatSRV3  = "srv3"
)

// ParseCaptions decodes a caption document into snippets ordered by start
// time; cues starting together keep their document order. Cues without text
// or without a positive duration are dropped.
func ParseCaptions(data []byte, format string) ([]Snippet, error) {
	var (
		snippets []Snippet
		err      error
	)
	switch format {
	case FormatVTT:
		snippets, err = parseVTT(string(data))
	case FormatJSON3:
		snippets, err = parseJSON3(data)
	case FormatSRV3:
		snippets, err = parseSRV3(data)
	default:
		return nil, fmt.Errorf("unknown caption format: %s", format)
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(snippets, func(i, j int) bool { return snippets[i].Start < snippets[j].Start })
	return snippets, nil
}

var (
	vttInlineTime = regexp.MustCompile(`<\d+:\d+:\d+\.\d+>`)
	vttClassTag   = regexp.MustCompile(`</?c[^>]*>`)
	vttAnyTag     = regexp.MustCompile(`<[^>]+>`)
)

// stripVTTTags removes karaoke timestamps, class spans and any other markup.
func stripVTTTags(s string) string {
	s = vttInlineTime.ReplaceAllString(s, "")
	s = vttClassTag.ReplaceAllString(s, "")
	s = vttAnyTag.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}

// parseVTT parses WebVTT. Cue settings after the end timestamp are ignored.
func parseVTT(content string) ([]Snippet, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(strings.TrimPrefix(content, "\uFEFF"), "WEBVTT") {
		return nil, fmt.Errorf("parse vtt: missing WEBVTT header")
	}
	lines := strings.Split(content, "\n")

	var snippets []Snippet
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.Contains(line, "-->") {
			continue
		}

		parts := strings.SplitN(line, "-->", 2)
		start, err := parseVTTTimestamp(firstField(parts[0]))
		if err != nil {
			continue
		}
		end, err := parseVTTTimestamp(firstField(parts[1]))
		if err != nil {
			continue
		}

		var text []string
		for i+1 < len(lines) {
			next := strings.TrimSpace(lines[i+1])
			if next == "" || strings.Contains(next, "-->") {
				break
			}
			i++
			if t := stripVTTTags(next); t != "" {
				text = append(text, t)
			}
		}

		if len(text) == 0 || end <= start {
			continue
		}
		snippets = append(snippets, Snippet{
			Text:     strings.Join(text, " "),
			Start:    start,
			Duration: round3(end - start),
		})
	}
	return snippets, nil
}

func firstField(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

// parseVTTTimestamp parses HH:MM:SS.mmm or MM:SS.mmm into seconds.
func parseVTTTimestamp(ts string) (float64, error) {
	parts := strings.Split(ts, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp format: %s", ts)
	}

	var total float64
	for _, p := range parts[:len(parts)-1] {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp format: %s", ts)
		}
		total = total*60 + float64(n)
	}
	secs, err := strconv.ParseFloat(strings.Replace(parts[len(parts)-1], ",", ".", 1), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp format: %s", ts)
	}
	return round3(total*60 + secs), nil
}

// json3Document is YouTube's timedtext fmt=json3 payload.
type json3Document struct {
	Events []struct {
		TStartMs    int64 `json:"tStartMs"`
		DDurationMs int64 `json:"dDurationMs"`
		Segs        []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

func parseJSON3(data []byte) ([]Snippet, error) {
	var doc json3Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse json3: %w", err)
	}

	var snippets []Snippet
	for _, ev := range doc.Events {
		if len(ev.Segs) == 0 || ev.DDurationMs <= 0 {
			continue
		}
		var sb strings.Builder
		for _, seg := range ev.Segs {
			sb.WriteString(seg.UTF8)
		}
		text := strings.Join(strings.Fields(sb.String()), " ")
		if text == "" {
			continue
		}
		snippets = append(snippets, Snippet{
			Text:     text,
			Start:    float64(ev.TStartMs) / 1000,
			Duration: float64(ev.DDurationMs) / 1000,
		})
	}
	return snippets, nil
}

// srv3Document is the timedtext format 3 XML payload.
type srv3Document struct {
	Paragraphs []struct {
		T    int64  `xml:"t,attr"`
		D    int64  `xml:"d,attr"`
		Text string `xml:",chardata"`
		Segs []struct {
			Text string `xml:",chardata"`
		} `xml:"s"`
	} `xml:"body>p"`
}

func parseSRV3(data []byte) ([]Snippet, error) {
	var doc srv3Document
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse srv3: %w", err)
	}

	var snippets []Snippet
	for _, p := range doc.Paragraphs {
		raw := p.Text
		for _, s := range p.Segs {
			raw += s.Text
		}
		text := strings.Join(strings.Fields(raw), " ")
		if text == "" || p.D <= 0 {
			continue
		}
		snippets = append(snippets, Snippet{
			Text:     text,
			Start:    float64(p.T) / 1000,
			Duration: float64(p.D) / 1000,
		})
	}
	return snippets, nil
}

func round3(f float64) float64 {
	return float64(int64(f*1000+0.5)) / 1000
}
