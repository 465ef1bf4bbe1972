package orchestrator

import (
	"regexp"
	"strings"
)

// ErrorMarker prefixes backend responses that are error reports rather than
// personality speech. Marked responses bypass the webhook pipeline and go
// out as a plain direct reply so they read as the bot, not the persona.
const ErrorMarker = "[ERROR]"

// markdownURLPair matches a markdown link whose label is itself a URL,
// e.g. [https://x/a.png](https://x/a.png).
var markdownURLPair = regexp.MustCompile(`\[(https?://[^\s\]]+)\]\((https?://[^\s)]+)\)`)

// isErrorResponse reports whether text carries the error marker and returns
// the message with the marker stripped.
func isErrorResponse(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, ErrorMarker) {
		return text, false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, ErrorMarker)), true
}

// rewriteTrailingImageLink rewrites a trailing [url](url) markdown pair
// whose label and target match into the bare URL, which the platform
// renders as an inline image. Only the last such pair is rewritten; earlier
// pairs and pairs with mismatched URLs are left alone.
func rewriteTrailingImageLink(text string) string {
	matches := markdownURLPair.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	last := matches[len(matches)-1]
	label := text[last[2]:last[3]]
	target := text[last[4]:last[5]]
	if label != target {
		return text
	}

	// Only a pair at the tail of the text counts as a trailing image.
	if strings.TrimSpace(text[last[1]:]) != "" {
		return text
	}

	return text[:last[0]] + label + text[last[1]:]
}
