package bus

// InboundMessage represents a message event received from the platform,
// normalized away from the raw gateway payload.
type InboundMessage struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Content   string `json:"content"`
	IsBot     bool   `json:"is_bot"`

	// WebhookID is non-empty when the message was posted through a webhook
	// identity (which includes proxy-system reposts).
	WebhookID string `json:"webhook_id,omitempty"`

	// WebhookUsername is the display name a webhook message was posted under.
	WebhookUsername string `json:"webhook_username,omitempty"`

	// Username and DisplayName describe the real author, when present.
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`

	// ReferencedMessageID is set when the message is a reply.
	ReferencedMessageID string `json:"referenced_message_id,omitempty"`

	// ReferencedWebhookUsername is the display name of the webhook message a
	// reply points at, when that message was webhook-posted. It lets
	// conversation continuation survive an index miss after a restart.
	ReferencedWebhookUsername string `json:"referenced_webhook_username,omitempty"`

	// MediaURLs carries attachment URLs for multimodal prompts.
	MediaURLs []string `json:"media_urls,omitempty"`

	// ThreadParentID is the parent channel when ChannelID is a thread.
	ThreadParentID string `json:"thread_parent_id,omitempty"`
}

// IsDM reports whether the message arrived outside any guild.
func (m InboundMessage) IsDM() bool { return m.GuildID == "" }

// IsProxied reports whether the message came through a webhook identity
// rather than a real account.
func (m InboundMessage) IsProxied() bool { return m.WebhookID != "" }

// IsThread reports whether the message channel is a thread.
func (m InboundMessage) IsThread() bool { return m.ThreadParentID != "" }

// DeletedMessage represents a message-deletion event. Partial deletions
// (no author available) are not processed downstream.
type DeletedMessage struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id,omitempty"`
	ChannelID string `json:"channel_id"`
	IsBot     bool   `json:"is_bot"`
	Partial   bool   `json:"partial"`
}

// MessageHandler consumes a normalized inbound message.
type MessageHandler func(InboundMessage)

// DeleteHandler consumes a message-deletion event.
type DeleteHandler func(DeletedMessage)
