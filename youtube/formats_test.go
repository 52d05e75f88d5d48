package youtube

import (
	"strings"
	"testing"
)

func TestParseVTT(t *testing.T) {
	content := `WEBVTT
Kind: captions
Language: ko

00:00:00.000 --> 00:00:02.500 align:start position:0%
안녕하세요<00:00:00.500><c> 여러분</c>

00:00:02.500 --> 00:00:05.000
second line
continues here

00:00:05.000 --> 00:00:05.000
zero length

00:01:05.250 --> 00:01:07.000
Tom &amp; Jerry <b>bold</b>
`
	snippets, err := ParseCaptions([]byte(content), FormatVTT)
	if err != nil {
		t.Fatalf("ParseCaptions() error = %v", err)
	}
	if len(snippets) != 3 {
		t.Fatalf("got %d snippets, want 3: %+v", len(snippets), snippets)
	}

	want := []Snippet{
		{Text: "안녕하세요 여러분", Start: 0, Duration: 2.5},
		{Text: "second line continues here", Start: 2.5, Duration: 2.5},
		{Text: "Tom & Jerry bold", Start: 65.25, Duration: 1.75},
	}
	for i, w := range want {
		if snippets[i] != w {
			t.Errorf("snippet[%d] = %+v, want %+v", i, snippets[i], w)
		}
	}
}

func TestParseVTTMissingHeader(t *testing.T) {
	if _, err := ParseCaptions([]byte("00:00.000 --> 00:01.000\nhi\n"), FormatVTT); err == nil {
		t.Error("expected error for missing WEBVTT header")
	}
}

func TestParseVTTShortTimestamps(t *testing.T) {
	content := "WEBVTT\n\n01:02.000 --> 01:04.500\nshort form\n"
	snippets, err := ParseCaptions([]byte(content), FormatVTT)
	if err != nil {
		t.Fatalf("ParseCaptions() error = %v", err)
	}
	if len(snippets) != 1 || snippets[0].Start != 62 || snippets[0].Duration != 2.5 {
		t.Errorf("unexpected snippets %+v", snippets)
	}
}

func TestParseJSON3(t *testing.T) {
	content := `{"events":[
		{"tStartMs":0,"dDurationMs":1500,"segs":[{"utf8":"Hello"},{"utf8":" world"}]},
		{"tStartMs":1500,"dDurationMs":1000,"segs":[{"utf8":"\n"}]},
		{"tStartMs":1600},
		{"tStartMs":2500,"dDurationMs":2000,"segs":[{"utf8":"line\nbreak"}]}
	]}`
	snippets, err := ParseCaptions([]byte(content), FormatJSON3)
	if err != nil {
		t.Fatalf("ParseCaptions() error = %v", err)
	}
	if len(snippets) != 2 {
		t.Fatalf("got %d snippets, want 2: %+v", len(snippets), snippets)
	}
	if snippets[0].Text != "Hello world" || snippets[0].Duration != 1.5 {
		t.Errorf("snippet[0] = %+v", snippets[0])
	}
	if snippets[1].Text != "line break" || snippets[1].Start != 2.5 {
		t.Errorf("snippet[1] = %+v", snippets[1])
	}
}

func TestParseJSON3Invalid(t *testing.T) {
	if _, err := ParseCaptions([]byte("not json"), FormatJSON3); err == nil {
		t.Error("expected error for invalid json3")
	}
}

func TestParseSRV3(t *testing.T) {
	content := `<?xml version="1.0" encoding="utf-8" ?><timedtext format="3"><body>
<p t="0" d="1200">plain &amp; simple</p>
<p t="1200" d="800"><s>seg</s><s t="300"> mented</s></p>
<p t="2000" d="0">dropped</p>
</body></timedtext>`
	snippets, err := ParseCaptions([]byte(content), FormatSRV3)
	if err != nil {
		t.Fatalf("ParseCaptions() error = %v", err)
	}
	if len(snippets) != 2 {
		t.Fatalf("got %d snippets, want 2: %+v", len(snippets), snippets)
	}
	if snippets[0].Text != "plain & simple" {
		t.Errorf("snippet[0].Text = %q", snippets[0].Text)
	}
	if snippets[1].Text != "seg mented" || snippets[1].Start != 1.2 {
		t.Errorf("snippet[1] = %+v", snippets[1])
	}
}

func TestParseCaptionsOrdersByStart(t *testing.T) {
	tests := []struct {
		format  string
		content string
	}{
		{FormatJSON3, `{"events":[
			{"tStartMs":3000,"dDurationMs":1000,"segs":[{"utf8":"third"}]},
			{"tStartMs":0,"dDurationMs":1000,"segs":[{"utf8":"first"}]},
			{"tStartMs":1000,"dDurationMs":1000,"segs":[{"utf8":"second"}]},
			{"tStartMs":3000,"dDurationMs":500,"segs":[{"utf8":"fourth"}]}
		]}`},
		{FormatSRV3, `<timedtext format="3"><body>
<p t="3000" d="1000">third</p>
<p t="0" d="1000">first</p>
<p t="1000" d="1000">second</p>
<p t="3000" d="500">fourth</p>
</body></timedtext>`},
		{FormatVTT, `WEBVTT

00:00:03.000 --> 00:00:04.000
third

00:00:00.000 --> 00:00:01.000
first

00:00:01.000 --> 00:00:02.000
second

00:00:03.000 --> 00:00:03.500
fourth
`},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			snippets, err := ParseCaptions([]byte(tt.content), tt.format)
			if err != nil {
				t.Fatalf("ParseCaptions() error = %v", err)
			}
			var got []string
			for _, s := range snippets {
				got = append(got, s.Text)
			}
			want := "first second third fourth"
			if strings.Join(got, " ") != want {
				t.Errorf("order = %v, want %s", got, want)
			}
		})
	}
}

func TestParseCaptionsUnknownFormat(t *testing.T) {
	if _, err := ParseCaptions(nil, "ttml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseVTTTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"00:00:01.500", 1.5, false},
		{"01:00:00.000", 3600, false},
		{"02:03.250", 123.25, false},
		{"00:00:01,500", 1.5, false},
		{"abc", 0, true},
		{"aa:00:01.000", 0, true},
	}
	for _, tt := range tests {
		got, err := parseVTTTimestamp(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseVTTTimestamp(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseVTTTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
