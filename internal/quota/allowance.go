package quota

// Allow applies the per-donation character budget to one prompt's text.
//
// The budget for a whole donation is baseCap plus extraPerBit characters for
// every bit above threshold. priorChars is the running total of characters
// already granted to earlier prompts of the same donation, so later prompts
// see a shrinking budget. A non-positive remaining budget yields an empty
// string. Bypass skips the quota entirely.
func Allow(text string, bits, priorChars int, bypass bool, baseCap, threshold, extraPerBit int) string {
	if bypass {
		return text
	}
	budget := baseCap + (bits-threshold)*extraPerBit - priorChars
	if budget <= 0 {
		return ""
	}
	runes := []rune(text)
	if budget >= len(runes) {
		return text
	}
	return string(runes[:budget])
}
