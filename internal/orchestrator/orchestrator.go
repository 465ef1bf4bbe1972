// Package orchestrator drives one response per triggering event: identity
// reconciliation, request-slot claim, authorization, generation, delivery,
// and conversation recording.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kindredbots/kindred/internal/ai"
	"github.com/kindredbots/kindred/internal/authz"
	"github.com/kindredbots/kindred/internal/bus"
	"github.com/kindredbots/kindred/internal/convo"
	"github.com/kindredbots/kindred/internal/coordinator"
	"github.com/kindredbots/kindred/internal/delivery"
	"github.com/kindredbots/kindred/internal/personality"
	"github.com/kindredbots/kindred/internal/reconcile"
)

const (
	// blackoutDuration suppresses responses to a triple after an error
	// reply, while a duplicate trigger may still be resolving elsewhere.
	blackoutDuration = time.Minute

	// genericFailureReply is the best-effort apology for uncaught failures.
	genericFailureReply = "Sorry, something went wrong while generating a response. Please try again."
)

// Replier is the plain bot-account surface: direct (non-personality-voiced)
// replies and the typing indicator.
type Replier interface {
	Reply(ctx context.Context, channelID, referenceMessageID, content string) (string, error)
	TriggerTyping(ctx context.Context, channelID string) error
}

// Orchestrator composes the reconciliation, coordination, state, and
// delivery services around the two external collaborators.
type Orchestrator struct {
	registry   *personality.Registry
	coord      *coordinator.Coordinator
	state      *convo.State
	reconciler *reconcile.Reconciler
	pipeline   *delivery.Pipeline
	backend    ai.Backend
	gate       authz.Gate
	blocklist  authz.Blocklist
	replier    Replier
}

// Config wires an Orchestrator.
type Config struct {
	Registry   *personality.Registry
	Coord      *coordinator.Coordinator
	State      *convo.State
	Reconciler *reconcile.Reconciler
	Pipeline   *delivery.Pipeline
	Backend    ai.Backend
	Gate       authz.Gate
	Blocklist  authz.Blocklist
	Replier    Replier
}

// New builds the orchestrator from explicitly injected services.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		registry:   cfg.Registry,
		coord:      cfg.Coord,
		state:      cfg.State,
		reconciler: cfg.Reconciler,
		pipeline:   cfg.Pipeline,
		backend:    cfg.Backend,
		gate:       cfg.Gate,
		blocklist:  cfg.Blocklist,
		replier:    cfg.Replier,
	}
}

// HandleDelete feeds qualifying deletion events to the reconciler. Only
// non-partial, author-present, non-bot deletions are processed.
func (o *Orchestrator) HandleDelete(ev bus.DeletedMessage) {
	if ev.Partial || ev.IsBot || ev.AuthorID == "" {
		return
	}
	o.reconciler.ObserveDelete(ev.ID)
}

// HandleMessage processes one inbound message event end to end.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg bus.InboundMessage) {
	// Bot messages that are not webhook reposts carry nothing for us.
	if msg.IsBot && !msg.IsProxied() {
		return
	}

	realUserID := msg.AuthorID
	isProxy := msg.IsProxied()
	referencedID := msg.ReferencedMessageID
	restoredPersonality := ""

	if isProxy {
		// Our own webhook posts come back as events too; never respond to
		// ourselves.
		if o.registry.MatchName(msg.WebhookUsername) != "" {
			return
		}
		if orig, ok := o.reconciler.ResolveAuthor(msg.ChannelID, msg.Content); ok {
			realUserID = orig.UserID
			slog.Debug("proxied message re-attributed",
				"message_id", msg.ID,
				"channel_id", msg.ChannelID,
				"real_user_id", realUserID,
			)
		}
		if rc, ok := o.reconciler.ResolveReply(msg.ChannelID, msg.Content); ok {
			referencedID = rc.ReferencedMessageID
			restoredPersonality = rc.PersonalityID
		}
	} else {
		o.reconciler.ObserveMessage(msg.ID, msg.AuthorID, msg.ChannelID, msg.Content)
	}

	if o.blocklist != nil && o.blocklist.Blocked(realUserID) {
		return
	}

	personalityID, isMentionOnly := o.resolveTarget(msg, realUserID, referencedID, restoredPersonality)
	if personalityID == "" {
		return
	}
	persona, ok := o.registry.Get(personalityID)
	if !ok {
		return
	}

	if o.coord.InBlackout(personalityID, realUserID, msg.ChannelID) {
		slog.Debug("response suppressed by blackout",
			"personality_id", personalityID,
			"user_id", realUserID,
			"channel_id", msg.ChannelID,
		)
		return
	}

	// Claim both the triple slot and the content fingerprint: the triple
	// serializes per-conversation generation, the fingerprint catches the
	// same logical request arriving through two trigger paths.
	tripleKey, ok := o.coord.Track(realUserID, msg.ChannelID, personalityID)
	if !ok {
		return
	}
	defer o.coord.Release(tripleKey)

	fpKey, ok := o.coord.TrackKey(coordinator.Fingerprint(
		personalityID, realUserID, msg.ChannelID, msg.ID, msg.Content, msg.MediaURLs))
	if !ok {
		return
	}
	defer o.coord.Release(fpKey)

	runID := uuid.NewString()
	slog.Debug("response run started",
		"run_id", runID,
		"personality_id", personalityID,
		"user_id", realUserID,
		"channel_id", msg.ChannelID,
		"message_id", msg.ID,
		"is_proxy", isProxy,
	)

	decision, err := o.gate.CheckAccess(ctx, personalityID, msg)
	if err != nil {
		// Fail closed: an authorization failure never defaults to allow.
		slog.Error("authorization check failed",
			"run_id", runID,
			"personality_id", personalityID,
			"user_id", realUserID,
			"error", err,
		)
		o.bestEffortReply(ctx, msg, genericFailureReply)
		return
	}
	if !decision.Allowed {
		if decision.UserFacingMessage != "" {
			o.bestEffortReply(ctx, msg, decision.UserFacingMessage)
		}
		return
	}

	ind := startIndicator(msg.ChannelID, func() error {
		return o.replier.TriggerTyping(ctx, msg.ChannelID)
	})
	defer ind.Stop()

	resp, err := o.backend.Generate(ctx, personalityID, msg.Content, ai.RequestContext{
		UserID:                 realUserID,
		ChannelID:              msg.ChannelID,
		MessageID:              msg.ID,
		UserName:               authorLabel(msg, isProxy),
		IsProxyMessage:         isProxy,
		DisableContextMetadata: persona.RawPrompt,
		MediaURLs:              msg.MediaURLs,
	})
	if err != nil {
		o.handleFailure(ctx, runID, msg, realUserID, personalityID, fmt.Errorf("generate: %w", err))
		return
	}

	text, isErr := isErrorResponse(resp.Text)
	if isErr {
		// Error reports go out as the bot itself so they are visually
		// distinct from personality speech.
		if _, err := o.replier.Reply(ctx, msg.ChannelID, msg.ID, text); err != nil {
			slog.Warn("error-marker reply failed", "run_id", runID, "error", err)
		}
		o.coord.EnterBlackout(personalityID, realUserID, msg.ChannelID, blackoutDuration)
		return
	}
	text = rewriteTrailingImageLink(text)

	req := delivery.Request{
		ChannelID: msg.ChannelID,
		Content:   text,
		Username:  persona.Name,
		AvatarURL: persona.AvatarURL,
	}
	if msg.IsThread() {
		req.ChannelID = msg.ThreadParentID
		req.ThreadID = msg.ChannelID
	}

	res, err := o.pipeline.Send(ctx, req)
	if err != nil {
		o.handleFailure(ctx, runID, msg, realUserID, personalityID, fmt.Errorf("deliver: %w", err))
		return
	}

	for _, id := range res.MessageIDs {
		o.state.RecordConversation(realUserID, msg.ChannelID, []string{id}, personalityID, msg.IsDM(), isMentionOnly)
	}

	slog.Info("response delivered",
		"run_id", runID,
		"personality_id", personalityID,
		"channel_id", msg.ChannelID,
		"messages", len(res.MessageIDs),
		"fallback", res.Fallback,
		"duplicate", res.Duplicate,
	)
}

// resolveTarget decides which personality, if any, a message addresses, and
// whether the trigger was an explicit mention.
func (o *Orchestrator) resolveTarget(msg bus.InboundMessage, realUserID, referencedID, restoredPersonality string) (string, bool) {
	if restoredPersonality != "" {
		return restoredPersonality, false
	}

	if referencedID != "" {
		if pid := o.state.PersonalityFromMessage(referencedID, msg.ReferencedWebhookUsername); pid != "" {
			if !msg.IsProxied() {
				// Remember the reply so a proxy repost that loses the
				// reference metadata can still find its target.
				o.reconciler.ObserveReply(realUserID, msg.ChannelID, msg.Content, pid, referencedID)
			}
			return pid, false
		}
	}

	if pid := o.registry.MentionedIn(msg.Content); pid != "" {
		return pid, true
	}

	isCommand := strings.HasPrefix(msg.Content, "!") || strings.HasPrefix(msg.Content, "/")
	pid := o.state.ActivePersonality(realUserID, msg.ChannelID, msg.IsDM(), o.state.AutoResponseEnabled(realUserID), isCommand)
	return pid, false
}

// handleFailure logs full diagnostic context, opens a blackout window, and
// sends the best-effort generic apology. The request slots are released by
// the caller's defers so an immediate retry is not blocked.
func (o *Orchestrator) handleFailure(ctx context.Context, runID string, msg bus.InboundMessage, realUserID, personalityID string, err error) {
	attrs := []any{
		"run_id", runID,
		"personality_id", personalityID,
		"user_id", realUserID,
		"channel_id", msg.ChannelID,
		"message_id", msg.ID,
		"content_preview", truncate(msg.Content, 80),
		"error", err,
	}
	if status, ok := ai.HTTPStatus(err); ok {
		attrs = append(attrs, "http_status", status)
	}
	slog.Error("response run failed", attrs...)
	o.coord.EnterBlackout(personalityID, realUserID, msg.ChannelID, blackoutDuration)
	o.bestEffortReply(ctx, msg, genericFailureReply)
}

// bestEffortReply sends a plain reply and swallows its failure: a broken
// apology must not cascade.
func (o *Orchestrator) bestEffortReply(ctx context.Context, msg bus.InboundMessage, content string) {
	if _, err := o.replier.Reply(ctx, msg.ChannelID, msg.ID, content); err != nil {
		slog.Warn("best-effort reply failed",
			"channel_id", msg.ChannelID,
			"message_id", msg.ID,
			"error", err,
		)
	}
}

// authorLabel formats the author for prompt context: proxied users get the
// display name only, regular users "Name (username)".
func authorLabel(msg bus.InboundMessage, isProxy bool) string {
	if isProxy {
		return msg.WebhookUsername
	}
	name := msg.DisplayName
	if name == "" {
		name = msg.Username
	}
	if msg.Username != "" && name != msg.Username {
		return fmt.Sprintf("%s (%s)", name, msg.Username)
	}
	return name
}

// truncate shortens s for log previews.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
