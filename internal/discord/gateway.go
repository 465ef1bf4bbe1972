// Package discord connects the bot to the Discord gateway and implements
// the delivery platform over per-channel webhooks.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/kindredbots/kindred/internal/bus"
	"github.com/kindredbots/kindred/internal/config"
)

// messageCacheSize keeps recent messages in gateway state so deletion
// events still carry their author.
const messageCacheSize = 1000

// Gateway owns the Discord session and translates gateway events into bus
// messages for the orchestrator.
type Gateway struct {
	session   *discordgo.Session
	cfg       config.DiscordConfig
	botUserID string

	onMessage bus.MessageHandler
	onDelete  bus.DeleteHandler
}

// New creates a gateway from config. Handlers are attached with Route
// before Start.
func New(cfg config.DiscordConfig) (*Gateway, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	session.State.MaxMessageCount = messageCacheSize

	return &Gateway{session: session, cfg: cfg}, nil
}

// Route sets the inbound event handlers.
func (g *Gateway) Route(onMessage bus.MessageHandler, onDelete bus.DeleteHandler) {
	g.onMessage = onMessage
	g.onDelete = onDelete
}

// Start opens the gateway connection and begins receiving events.
func (g *Gateway) Start(_ context.Context) error {
	slog.Info("starting discord gateway")

	g.session.AddHandler(g.handleMessageCreate)
	g.session.AddHandler(g.handleMessageDelete)

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := g.session.User("@me")
	if err != nil {
		g.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	g.botUserID = user.ID

	slog.Info("discord gateway connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the gateway connection.
func (g *Gateway) Stop(_ context.Context) error {
	slog.Info("stopping discord gateway")
	return g.session.Close()
}

// Session exposes the underlying session for the webhook platform and
// replier.
func (g *Gateway) Session() *discordgo.Session { return g.session }

func (g *Gateway) handleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == g.botUserID {
		return
	}
	if g.onMessage == nil {
		return
	}

	msg := bus.InboundMessage{
		ID:        m.ID,
		AuthorID:  m.Author.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		IsBot:     m.Author.Bot,
		WebhookID: m.WebhookID,
		Username:  m.Author.Username,
	}
	if m.WebhookID != "" {
		// Webhook authors have no real account; the username field carries
		// the posted display name.
		msg.WebhookUsername = m.Author.Username
	}
	msg.DisplayName = resolveDisplayName(m)
	if m.MessageReference != nil {
		msg.ReferencedMessageID = m.MessageReference.MessageID
		msg.ReferencedWebhookUsername = g.referencedWebhookUsername(m)
	}
	for _, att := range m.Attachments {
		msg.MediaURLs = append(msg.MediaURLs, att.URL)
	}
	msg.ThreadParentID = g.threadParent(m.ChannelID)

	slog.Debug("discord message received",
		"message_id", m.ID,
		"sender_id", m.Author.ID,
		"channel_id", m.ChannelID,
		"webhook", m.WebhookID != "",
	)

	g.onMessage(msg)
}

func (g *Gateway) handleMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	if g.onDelete == nil {
		return
	}

	ev := bus.DeletedMessage{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Partial:   true,
	}
	// Deletion payloads carry no author; recover it from the state cache.
	if m.BeforeDelete != nil && m.BeforeDelete.Author != nil {
		ev.AuthorID = m.BeforeDelete.Author.ID
		ev.IsBot = m.BeforeDelete.Author.Bot
		ev.Partial = false
	}
	g.onDelete(ev)
}

// referencedWebhookUsername returns the display name of the webhook message
// a reply points at, or "" when the referenced message was not webhook
// posted. The gateway payload usually embeds the referenced message; the
// state cache and a REST fetch cover the rest.
func (g *Gateway) referencedWebhookUsername(m *discordgo.MessageCreate) string {
	ref := m.ReferencedMessage
	if ref == nil {
		chID := m.MessageReference.ChannelID
		if chID == "" {
			chID = m.ChannelID
		}
		var err error
		ref, err = g.session.State.Message(chID, m.MessageReference.MessageID)
		if err != nil {
			ref, err = g.session.ChannelMessage(chID, m.MessageReference.MessageID)
			if err != nil {
				return ""
			}
		}
	}
	if ref.WebhookID == "" || ref.Author == nil {
		return ""
	}
	return ref.Author.Username
}

// threadParent returns the parent channel id when channelID is a thread,
// else "".
func (g *Gateway) threadParent(channelID string) string {
	ch, err := g.session.State.Channel(channelID)
	if err != nil {
		ch, err = g.session.Channel(channelID)
		if err != nil {
			return ""
		}
	}
	if ch.IsThread() {
		return ch.ParentID
	}
	return ""
}

// resolveDisplayName returns the best available display name for a message
// author: server nickname, then global display name, then username.
func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// Replier sends plain bot-account replies and typing indicators.
type Replier struct {
	session *discordgo.Session
}

// NewReplier wraps a session as an orchestrator replier.
func NewReplier(session *discordgo.Session) *Replier {
	return &Replier{session: session}
}

// Reply sends a plain reply referencing the triggering message.
func (r *Replier) Reply(ctx context.Context, channelID, referenceMessageID, content string) (string, error) {
	ref := &discordgo.MessageReference{
		MessageID: referenceMessageID,
		ChannelID: channelID,
	}
	msg, err := r.session.ChannelMessageSendReply(channelID, content, ref, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send reply: %w", err)
	}
	return msg.ID, nil
}

// TriggerTyping fires the channel's typing indicator once.
func (r *Replier) TriggerTyping(ctx context.Context, channelID string) error {
	return r.session.ChannelTyping(channelID, discordgo.WithContext(ctx))
}
