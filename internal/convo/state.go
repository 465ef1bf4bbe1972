// Package convo tracks active conversations, auto-response flags, channel
// activations, and the message→personality index, with debounced and
// periodic snapshots to disk.
package convo

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/kindredbots/kindred/internal/personality"
	"github.com/kindredbots/kindred/internal/sched"
	"github.com/kindredbots/kindred/internal/store"
)

// saveDebounce coalesces rapid RecordConversation bursts into one snapshot,
// fired this long after the last call.
const saveDebounce = time.Second

// State is the conversation-state façade. Safe for concurrent use.
type State struct {
	mu            sync.Mutex
	conversations map[string]*Conversation // user:channel → conversation
	activations   map[string]Activation    // channelID → activation
	autoRespond   map[string]bool          // userID set
	index         map[string]string        // messageID → personalityID

	registry  *personality.Registry
	scheduler sched.Scheduler
	dataDir   string

	saveHandle sched.Handle // live debounce timer, nil when none pending
}

// New loads state from dataDir snapshots (absent files start empty) and
// returns the façade. A nil registry disables display-name fallback lookups.
func New(dataDir string, scheduler sched.Scheduler, registry *personality.Registry) *State {
	s := &State{
		conversations: make(map[string]*Conversation),
		activations:   make(map[string]Activation),
		autoRespond:   make(map[string]bool),
		index:         make(map[string]string),
		registry:      registry,
		scheduler:     scheduler,
		dataDir:       dataDir,
	}
	s.load()
	return s
}

// RecordConversation appends message ids to the (user, channel)
// conversation, indexes each id to the personality, and schedules a
// debounced snapshot. A DM always force-enables auto-response for the user.
// An empty id list performs zero writes and logs a warning.
func (s *State) RecordConversation(userID, channelID string, messageIDs []string, personalityID string, isDM, isMentionOnly bool) {
	if len(messageIDs) == 0 {
		slog.Warn("recordConversation called with no message ids",
			"user_id", userID,
			"channel_id", channelID,
			"personality_id", personalityID,
		)
		return
	}

	s.mu.Lock()
	key := conversationKey(userID, channelID)
	c, ok := s.conversations[key]
	if !ok || c.PersonalityID != personalityID {
		c = &Conversation{
			UserID:        userID,
			ChannelID:     channelID,
			PersonalityID: personalityID,
		}
		s.conversations[key] = c
	}

	c.MessageIDs = append(c.MessageIDs, messageIDs...)
	c.IsDM = isDM
	c.IsMentionOnly = isMentionOnly
	c.LastActivity = s.scheduler.Now()

	for _, id := range messageIDs {
		s.index[id] = personalityID
	}
	if over := len(c.MessageIDs) - maxTrackedMessageIDs; over > 0 {
		for _, id := range c.MessageIDs[:over] {
			delete(s.index, id)
		}
		c.MessageIDs = append([]string(nil), c.MessageIDs[over:]...)
	}

	if isDM {
		s.autoRespond[userID] = true
	}
	s.mu.Unlock()

	s.scheduleSave()
}

// ActivePersonality resolves which personality, if any, should respond to a
// non-mention message. Resolution order: channel-wide activation (unless the
// message is a command), then in DMs any recorded conversation, then in
// guild channels a recorded conversation gated on auto-response.
func (s *State) ActivePersonality(userID, channelID string, isDM, autoResponse, isCommand bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !isCommand {
		if a, ok := s.activations[channelID]; ok {
			return a.PersonalityID
		}
	}

	c, ok := s.conversations[conversationKey(userID, channelID)]
	if !ok {
		return ""
	}
	if isDM {
		return c.PersonalityID
	}
	if autoResponse {
		return c.PersonalityID
	}
	return ""
}

// ClearConversation drops the (user, channel) conversation and its index
// entries.
func (s *State) ClearConversation(userID, channelID string) {
	s.mu.Lock()
	key := conversationKey(userID, channelID)
	if c, ok := s.conversations[key]; ok {
		for _, id := range c.MessageIDs {
			delete(s.index, id)
		}
		delete(s.conversations, key)
	}
	s.mu.Unlock()
	s.scheduleSave()
}

// AutoResponseEnabled reports whether the user has auto-response on.
func (s *State) AutoResponseEnabled(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoRespond[userID]
}

// SetAutoResponse toggles auto-response for a user.
func (s *State) SetAutoResponse(userID string, enabled bool) {
	s.mu.Lock()
	if enabled {
		s.autoRespond[userID] = true
	} else {
		delete(s.autoRespond, userID)
	}
	s.mu.Unlock()
	s.scheduleSave()
}

// Activate sets the channel-wide personality override.
func (s *State) Activate(channelID, personalityID, activatedBy string) {
	s.mu.Lock()
	s.activations[channelID] = Activation{
		PersonalityID: personalityID,
		ActivatedBy:   activatedBy,
		Timestamp:     s.scheduler.Now(),
	}
	s.mu.Unlock()
	s.scheduleSave()
}

// Deactivate clears the channel-wide override.
func (s *State) Deactivate(channelID string) {
	s.mu.Lock()
	delete(s.activations, channelID)
	s.mu.Unlock()
	s.scheduleSave()
}

// ActivatedPersonality returns the channel override, if any.
func (s *State) ActivatedPersonality(channelID string) (Activation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activations[channelID]
	return a, ok
}

// PersonalityFromMessage resolves the personality that produced a message.
// The index is the primary source; on a miss (expired entry or process
// restart) the webhook display name, when supplied, is matched against
// registry names and aliases.
func (s *State) PersonalityFromMessage(messageID, webhookUsername string) string {
	s.mu.Lock()
	id, ok := s.index[messageID]
	s.mu.Unlock()
	if ok {
		return id
	}

	if webhookUsername != "" && s.registry != nil {
		if id := s.registry.MatchName(webhookUsername); id != "" {
			slog.Debug("personality resolved by display name fallback",
				"message_id", messageID,
				"webhook_username", webhookUsername,
				"personality_id", id,
			)
			return id
		}
	}
	return ""
}

// Reset drops all in-memory state. Snapshots are rewritten on the next save.
func (s *State) Reset() {
	s.mu.Lock()
	s.conversations = make(map[string]*Conversation)
	s.activations = make(map[string]Activation)
	s.autoRespond = make(map[string]bool)
	s.index = make(map[string]string)
	s.mu.Unlock()
	s.scheduleSave()
}

// scheduleSave arms (or re-arms) the debounced snapshot so it fires one
// debounce window after the most recent mutation.
func (s *State) scheduleSave() {
	if s.dataDir == "" {
		return
	}
	s.mu.Lock()
	if s.saveHandle != nil {
		s.saveHandle.Stop()
	}
	s.saveHandle = s.scheduler.Schedule(saveDebounce, func() {
		s.mu.Lock()
		s.saveHandle = nil
		s.mu.Unlock()
		s.SaveNow()
	})
	s.mu.Unlock()
}

// SaveNow snapshots all four stores. Failures are logged, never fatal.
func (s *State) SaveNow() {
	if s.dataDir == "" {
		return
	}

	s.mu.Lock()
	conversations := make(map[string]*Conversation, len(s.conversations))
	for k, c := range s.conversations {
		cp := *c
		cp.MessageIDs = append([]string(nil), c.MessageIDs...)
		conversations[k] = &cp
	}
	activations := make(map[string]Activation, len(s.activations))
	for k, a := range s.activations {
		activations[k] = a
	}
	autoRespond := make(map[string]bool, len(s.autoRespond))
	for k, v := range s.autoRespond {
		autoRespond[k] = v
	}
	index := make(map[string]string, len(s.index))
	for k, v := range s.index {
		index[k] = v
	}
	s.mu.Unlock()

	saves := []struct {
		file string
		v    any
	}{
		{"conversations.json", conversations},
		{"activations.json", activations},
		{"autorespond.json", autoRespond},
		{"message_index.json", index},
	}
	for _, sv := range saves {
		if err := store.Save(filepath.Join(s.dataDir, sv.file), sv.v); err != nil {
			slog.Warn("state snapshot failed", "file", sv.file, "error", err)
		}
	}
}

func (s *State) load() {
	if s.dataDir == "" {
		return
	}
	store.Load(filepath.Join(s.dataDir, "conversations.json"), &s.conversations)
	store.Load(filepath.Join(s.dataDir, "activations.json"), &s.activations)
	store.Load(filepath.Join(s.dataDir, "autorespond.json"), &s.autoRespond)
	store.Load(filepath.Join(s.dataDir, "message_index.json"), &s.index)
}
