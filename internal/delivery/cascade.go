package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// strategy is one rung of the delivery ladder. All rungs share the same
// result shape so they can be tried in sequence.
type strategy struct {
	name     string
	fallback bool // marks the emergency no-identity path
	run      func(ctx context.Context, p Params) (string, error)
}

// buildCascade orders the delivery strategies for a request. Thread targets
// get the full four-step ladder; channel targets skip the thread rungs.
func (p *Pipeline) buildCascade(h Handle, req Request) []strategy {
	var ladder []strategy

	if req.ThreadID != "" {
		ladder = append(ladder,
			strategy{
				name: "webhook thread param",
				run: func(ctx context.Context, params Params) (string, error) {
					return h.SendToThread(ctx, req.ThreadID, params)
				},
			},
			strategy{
				name: "webhook channel send",
				run: func(ctx context.Context, params Params) (string, error) {
					return h.Send(ctx, params)
				},
			},
			strategy{
				name: "webhook native thread",
				run: func(ctx context.Context, params Params) (string, error) {
					return h.ThreadSend(ctx, req.ThreadID, params)
				},
			},
		)
	} else {
		ladder = append(ladder, strategy{
			name: "webhook channel send",
			run: func(ctx context.Context, params Params) (string, error) {
				return h.Send(ctx, params)
			},
		})
	}

	// Last resort: plain bot post with the display name inlined. No
	// delivery-identity spoofing.
	target := req.ChannelID
	if req.ThreadID != "" {
		target = req.ThreadID
	}
	ladder = append(ladder, strategy{
		name:     "plain channel fallback",
		fallback: true,
		run: func(ctx context.Context, params Params) (string, error) {
			return p.platform.ChannelSend(ctx, target, fmt.Sprintf("**%s:** %s", params.Username, params.Content))
		},
	})

	return ladder
}

// runCascade tries each strategy in order until one succeeds. The returned
// error joins every rung's failure when the whole ladder is exhausted.
func runCascade(ctx context.Context, ladder []strategy, params Params) (messageID string, usedFallback bool, err error) {
	var failures []error
	for i, s := range ladder {
		msgID, sendErr := s.run(ctx, params)
		if sendErr == nil {
			if i > 0 {
				slog.Debug("delivery succeeded after fallback",
					"strategy", s.name,
					"attempts", i+1,
				)
			}
			return msgID, s.fallback, nil
		}
		failures = append(failures, fmt.Errorf("%s: %w", s.name, sendErr))
	}
	return "", false, errors.Join(failures...)
}
