package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/kindredbots/kindred/internal/delivery"
)

// Platform implements delivery.Platform over Discord webhooks.
type Platform struct {
	session     *discordgo.Session
	webhookName string
}

// NewPlatform creates the webhook platform. webhookName identifies the
// webhook this bot owns in each channel.
func NewPlatform(session *discordgo.Session, webhookName string) *Platform {
	if webhookName == "" {
		webhookName = "kindred"
	}
	return &Platform{session: session, webhookName: webhookName}
}

// Webhook finds or creates this bot's webhook in the channel.
func (p *Platform) Webhook(ctx context.Context, channelID string) (delivery.Handle, error) {
	hooks, err := p.session.ChannelWebhooks(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	for _, wh := range hooks {
		if wh.Name == p.webhookName && wh.Token != "" {
			return &webhookHandle{session: p.session, webhook: wh}, nil
		}
	}

	wh, err := p.session.WebhookCreate(channelID, p.webhookName, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	return &webhookHandle{session: p.session, webhook: wh}, nil
}

// ChannelSend posts plain bot-account content, the cascade's last resort.
func (p *Platform) ChannelSend(ctx context.Context, channelID, content string) (string, error) {
	msg, err := p.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("channel send: %w", err)
	}
	return msg.ID, nil
}

// webhookHandle is one channel's cached webhook.
type webhookHandle struct {
	session *discordgo.Session
	webhook *discordgo.Webhook
}

func (h *webhookHandle) Send(ctx context.Context, p delivery.Params) (string, error) {
	msg, err := h.session.WebhookExecute(h.webhook.ID, h.webhook.Token, true, webhookParams(p), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("webhook execute: %w", err)
	}
	return msg.ID, nil
}

func (h *webhookHandle) SendToThread(ctx context.Context, threadID string, p delivery.Params) (string, error) {
	msg, err := h.session.WebhookThreadExecute(h.webhook.ID, h.webhook.Token, true, threadID, webhookParams(p), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("webhook thread execute: %w", err)
	}
	return msg.ID, nil
}

// ThreadSend re-resolves the webhook from the API before executing into the
// thread, bypassing a cached handle whose token has gone stale.
func (h *webhookHandle) ThreadSend(ctx context.Context, threadID string, p delivery.Params) (string, error) {
	fresh, err := h.session.Webhook(h.webhook.ID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("refresh webhook: %w", err)
	}
	msg, err := h.session.WebhookThreadExecute(fresh.ID, fresh.Token, true, threadID, webhookParams(p), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("webhook thread execute (fresh): %w", err)
	}
	return msg.ID, nil
}

func webhookParams(p delivery.Params) *discordgo.WebhookParams {
	params := &discordgo.WebhookParams{
		Content:   p.Content,
		Username:  p.Username,
		AvatarURL: p.AvatarURL,
	}
	for _, e := range p.Embeds {
		embed := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			URL:         e.URL,
			Color:       e.Color,
		}
		if e.ImageURL != "" {
			embed.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
		}
		params.Embeds = append(params.Embeds, embed)
	}
	for _, f := range p.Files {
		params.Files = append(params.Files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      f.Reader,
		})
	}
	return params
}
