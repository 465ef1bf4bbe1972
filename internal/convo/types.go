package convo

import (
	"fmt"
	"time"
)

// maxTrackedMessageIDs caps per-conversation message ids; the oldest ids
// (and their index entries) are pruned past the cap to bound memory.
const maxTrackedMessageIDs = 50

// Conversation is the per-(user, channel) record of an ongoing exchange
// with one personality.
type Conversation struct {
	UserID        string    `json:"userId"`
	ChannelID     string    `json:"channelId"`
	PersonalityID string    `json:"personalityId"`
	MessageIDs    []string  `json:"messageIds"`
	IsDM          bool      `json:"isDM"`
	IsMentionOnly bool      `json:"isMentionOnly"`
	LastActivity  time.Time `json:"lastActivity"`
}

// Activation is an explicit channel-wide personality override.
type Activation struct {
	PersonalityID string    `json:"personalityId"`
	ActivatedBy   string    `json:"activatedBy"`
	Timestamp     time.Time `json:"timestamp"`
}

func conversationKey(userID, channelID string) string {
	return fmt.Sprintf("%s:%s", userID, channelID)
}
