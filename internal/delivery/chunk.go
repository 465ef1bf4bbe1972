package delivery

import "unicode/utf8"

// splitContent breaks content into ordered chunks no longer than maxLen,
// preferring to break at a newline past the midpoint so sentences stay
// together. Cuts never land inside a multi-byte rune.
func splitContent(content string, maxLen int) []string {
	if content == "" {
		return []string{""}
	}

	var chunks []string
	for len(content) > 0 {
		if len(content) <= maxLen {
			chunks = append(chunks, content)
			break
		}
		cutAt := maxLen
		if idx := lastIndexByte(content[:maxLen], '\n'); idx > maxLen/2 {
			cutAt = idx + 1
		} else {
			for cutAt > 0 && !utf8.RuneStart(content[cutAt]) {
				cutAt--
			}
			// Invalid UTF-8 all the way down: take the byte cut.
			if cutAt == 0 {
				cutAt = maxLen
			}
		}
		chunks = append(chunks, content[:cutAt])
		content = content[cutAt:]
	}
	return chunks
}

// lastIndexByte returns the last index of byte c in s, or -1.
func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}
