// Package ai defines the generation backend collaborator and its OpenAI
// implementation.
package ai

import "context"

// RequestContext carries per-request metadata alongside the prompt.
type RequestContext struct {
	UserID    string
	ChannelID string
	MessageID string

	// UserName is the pre-formatted author label: proxied users get display
	// name only, regular users "Name (username)".
	UserName string

	IsProxyMessage bool

	// DisableContextMetadata suppresses the author/channel preamble.
	DisableContextMetadata bool

	// MediaURLs carries image attachments for multimodal prompts.
	MediaURLs []string
}

// Response is a generated reply.
type Response struct {
	Text     string
	Metadata map[string]string
}

// Backend generates a personality-voiced response. Implementations are
// opaque to the orchestrator; any failure surfaces as an error.
type Backend interface {
	Generate(ctx context.Context, personalityID, content string, rc RequestContext) (Response, error)
}
