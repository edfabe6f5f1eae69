package parser

import (
	"strings"
	"unicode"
)

// Prompt is one (voice, text) unit extracted from a message. Prompts are
// synthesized independently and concatenated in order for playback.
type Prompt struct {
	Voice string
	Text  string
}

// AliasSet answers whether a lowercase token body names a configured voice.
type AliasSet interface {
	Known(alias string) bool
}

// Parse extracts the ordered voice prompts from a raw cheer message.
//
// Platform bit markers ("cheerNNN") and the configured indicator token are
// stripped first. A token activates a voice when it ends with ':' and its
// lowercase body is a known alias; text before the first active voice is
// discarded. Switching voices flushes the accumulated text for the previous
// voice, but only when at least one text token accumulated. An empty run
// between two indicators produces no prompt, and the buffer resets either
// way.
func Parse(text, indicator string, aliases AliasSet) []Prompt {
	tokens := strings.Fields(text)

	kept := tokens[:0]
	for _, tok := range tokens {
		if isBitMarker(tok) || strings.EqualFold(tok, indicator) {
			continue
		}
		kept = append(kept, tok)
	}

	var (
		prompts []Prompt
		voice   string
		buffer  []string
	)
	for _, tok := range kept {
		if body, ok := voiceIndicator(tok, aliases); ok {
			if voice != "" && len(buffer) > 0 {
				prompts = append(prompts, Prompt{Voice: voice, Text: strings.Join(buffer, " ")})
			}
			voice = body
			buffer = buffer[:0]
			continue
		}
		buffer = append(buffer, tok)
	}
	if voice != "" && len(buffer) > 0 {
		prompts = append(prompts, Prompt{Voice: voice, Text: strings.Join(buffer, " ")})
	}
	return prompts
}

// voiceIndicator reports whether tok switches the active voice, returning
// the lowercase alias body. Unknown aliases are plain text.
func voiceIndicator(tok string, aliases AliasSet) (string, bool) {
	if !strings.HasSuffix(tok, ":") || len(tok) < 2 {
		return "", false
	}
	body := strings.ToLower(tok[:len(tok)-1])
	if aliases == nil || !aliases.Known(body) {
		return "", false
	}
	return body, true
}

// isBitMarker matches platform-injected markers of the form "cheerNNN":
// case-insensitive "cheer" prefix followed only by digits, longer than the
// prefix itself.
func isBitMarker(tok string) bool {
	if len(tok) <= 5 {
		return false
	}
	if !strings.EqualFold(tok[:5], "cheer") {
		return false
	}
	for _, r := range tok[5:] {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
