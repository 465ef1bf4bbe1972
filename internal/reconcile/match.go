package reconcile

import "strings"

// minLengthRatio guards against short accidental substrings: "hi" inside an
// unrelated long message must not count as a repost of it.
const minLengthRatio = 0.5

// contentMatches reports whether proxied content plausibly is a repost of
// the original: the original must contain it verbatim and it must retain
// more than half of the original's length. This is a documented heuristic,
// not a proof of identity.
func contentMatches(original, proxied string) bool {
	if proxied == "" || original == "" {
		return false
	}
	if !strings.Contains(original, proxied) {
		return false
	}
	return float64(len(proxied))/float64(len(original)) > minLengthRatio
}
