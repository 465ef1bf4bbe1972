package coordinator

import (
	"fmt"
	"hash/fnv"
)

// Fingerprint derives a dedup key for a logical request that may surface as
// two distinct in-memory events (e.g. a mention trigger and a reference
// trigger carrying the same content). The key combines the routing triple,
// the message id when present, and a cheap hash of the text/media payload.
//
// Hash collisions across different payloads are accepted as a known
// limitation: a collision merely suppresses one extra response.
func Fingerprint(personalityID, userID, channelID, messageID, content string, mediaURLs []string) Key {
	h := fnv.New64a()
	h.Write([]byte(content))
	for _, u := range mediaURLs {
		h.Write([]byte{0})
		h.Write([]byte(u))
	}
	return Key(fmt.Sprintf("fp:%s:%s:%s:%s:%x", personalityID, userID, channelID, messageID, h.Sum64()))
}
