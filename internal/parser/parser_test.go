package parser

import (
	"reflect"
	"strings"
	"testing"

	"github.com/cheervox-labs/cheervox/internal/voices"
)

var testAliases = voices.NewTable(map[string]string{
	"dwight":         "voice-a",
	"morgan_freeman": "voice-b",
	"rachel":         "voice-c",
})

func TestParseTwoVoices(t *testing.T) {
	got := Parse("11io dwight: hello there morgan_freeman: and goodbye", "11io", testAliases)
	want := []Prompt{
		{Voice: "dwight", Text: "hello there"},
		{Voice: "morgan_freeman", Text: "and goodbye"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseUnknownAliasIsPlainText(t *testing.T) {
	got := Parse("cheer100 11io nobody: test", "11io", testAliases)
	if len(got) != 0 {
		t.Fatalf("expected no prompts, got %v", got)
	}
}

func TestParseNoIndicatorTokens(t *testing.T) {
	cases := []string{
		"",
		"just some ordinary text",
		"cheer500",
		"dwight hello",    // no trailing colon
		"DWIGHT hello to", // ditto
	}
	for _, msg := range cases {
		if got := Parse(msg, "11io", testAliases); len(got) != 0 {
			t.Fatalf("Parse(%q) = %v, expected empty", msg, got)
		}
	}
}

func TestParseLeadingTextDiscarded(t *testing.T) {
	got := Parse("thanks for the stream dwight: bears beets", "11io", testAliases)
	want := []Prompt{{Voice: "dwight", Text: "bears beets"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseConsecutiveIndicatorsSkipEmptyFlush(t *testing.T) {
	got := Parse("dwight: rachel: hello", "11io", testAliases)
	want := []Prompt{{Voice: "rachel", Text: "hello"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseTrailingIndicatorProducesNoPrompt(t *testing.T) {
	got := Parse("dwight: hello rachel:", "11io", testAliases)
	want := []Prompt{{Voice: "dwight", Text: "hello"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseCaseInsensitiveIndicatorAndAlias(t *testing.T) {
	got := Parse("Cheer1000 11IO DWIGHT: Hello World", "11io", testAliases)
	want := []Prompt{{Voice: "dwight", Text: "Hello World"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseBitMarkerEdgeCases(t *testing.T) {
	// "cheer" with no digits and "cheerx1" are user content, not markers
	got := Parse("dwight: cheer cheerx1 cheer12", "11io", testAliases)
	want := []Prompt{{Voice: "dwight", Text: "cheer cheerx1"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseWhitespaceNormalized(t *testing.T) {
	got := Parse("dwight:\thello\n\n  there   friend", "11io", testAliases)
	want := []Prompt{{Voice: "dwight", Text: "hello there friend"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseOutputNeverLongerThanInput(t *testing.T) {
	msgs := []string{
		"11io dwight: hello there morgan_freeman: and goodbye",
		"cheer100 dwight: a b c rachel: d e",
		"dwight: one dwight: two dwight: three",
	}
	for _, msg := range msgs {
		total := 0
		for _, p := range Parse(msg, "11io", testAliases) {
			total += len(p.Text)
		}
		normalized := strings.Join(strings.Fields(msg), " ")
		if total > len(normalized) {
			t.Fatalf("Parse(%q) prompt text %d exceeds normalized input %d", msg, total, len(normalized))
		}
	}
}
