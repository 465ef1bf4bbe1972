// Package personality holds the configured AI personas and resolves display
// names back to persona ids.
package personality

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

// nameSeparator splits a webhook display name from proxy-appended suffixes,
// e.g. "Lila | she/her" resolves as "Lila".
const nameSeparator = "|"

// Personality is one configured AI persona with its own delivery identity.
type Personality struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	AvatarURL    string   `json:"avatarUrl,omitempty"`
	Aliases      []string `json:"aliases,omitempty"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	Model        string   `json:"model,omitempty"`
	NSFW         bool     `json:"nsfw,omitempty"`

	// RawPrompt sends user content to the backend verbatim, without the
	// author-label preamble.
	RawPrompt bool `json:"rawPrompt,omitempty"`
}

// Registry is the set of configured personalities, reloadable from file.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]Personality
	ordered []string
	path    string
	watcher *fsnotify.Watcher
}

// NewRegistry builds a registry from a slice of personalities.
func NewRegistry(personas []Personality) *Registry {
	r := &Registry{byID: make(map[string]Personality)}
	r.replace(personas)
	return r
}

// LoadRegistry reads a personality file (json5) and returns a registry bound
// to that path for later reloads.
func LoadRegistry(path string) (*Registry, error) {
	personas, err := readFile(path)
	if err != nil {
		return nil, err
	}
	r := NewRegistry(personas)
	r.path = path
	return r, nil
}

func readFile(path string) ([]Personality, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personality file: %w", err)
	}
	var personas []Personality
	if err := json5.Unmarshal(data, &personas); err != nil {
		return nil, fmt.Errorf("parse personality file: %w", err)
	}
	for _, p := range personas {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("personality entry missing id or name")
		}
	}
	return personas, nil
}

func (r *Registry) replace(personas []Personality) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]Personality, len(personas))
	r.ordered = r.ordered[:0]
	for _, p := range personas {
		r.byID[p.ID] = p
		r.ordered = append(r.ordered, p.ID)
	}
}

// Get returns a personality by id.
func (r *Registry) Get(id string) (Personality, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// All returns the personalities in file order.
func (r *Registry) All() []Personality {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Personality, 0, len(r.ordered))
	for _, id := range r.ordered {
		out = append(out, r.byID[id])
	}
	return out
}

// MatchName resolves a webhook display name to a personality id. Any suffix
// after the separator token is stripped first ("Lila | tag" → "Lila"). Match
// order: exact name/alias, case-insensitive, then prefix. Returns "" when
// nothing matches.
func (r *Registry) MatchName(displayName string) string {
	name := displayName
	if idx := strings.Index(name, nameSeparator); idx >= 0 {
		name = name[:idx]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Exact
	for _, id := range r.ordered {
		p := r.byID[id]
		if p.Name == name {
			return id
		}
		for _, a := range p.Aliases {
			if a == name {
				return id
			}
		}
	}

	// Case-insensitive
	lower := strings.ToLower(name)
	for _, id := range r.ordered {
		p := r.byID[id]
		if strings.ToLower(p.Name) == lower {
			return id
		}
		for _, a := range p.Aliases {
			if strings.ToLower(a) == lower {
				return id
			}
		}
	}

	// Prefix: the webhook name may carry extra decoration beyond the
	// separator convention.
	for _, id := range r.ordered {
		p := r.byID[id]
		if strings.HasPrefix(lower, strings.ToLower(p.Name)) {
			return id
		}
		for _, a := range p.Aliases {
			if strings.HasPrefix(lower, strings.ToLower(a)) {
				return id
			}
		}
	}

	return ""
}

// MentionedIn returns the id of the first personality whose name or alias
// appears as a standalone word in content, case-insensitively. Used for
// name-mention triggers.
func (r *Registry) MentionedIn(content string) string {
	lower := strings.ToLower(content)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.ordered {
		p := r.byID[id]
		if containsWord(lower, strings.ToLower(p.Name)) {
			return id
		}
		for _, a := range p.Aliases {
			if containsWord(lower, strings.ToLower(a)) {
				return id
			}
		}
	}
	return ""
}

// containsWord reports whether word occurs in s bounded by non-letter,
// non-digit runes.
func containsWord(s, word string) bool {
	if word == "" {
		return false
	}
	for start := 0; ; {
		idx := strings.Index(s[start:], word)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(word)
		beforeOK := idx == 0 || !isWordRune(rune(s[idx-1]))
		afterOK := end == len(s) || !isWordRune(rune(s[end]))
		if beforeOK && afterOK {
			return true
		}
		start = idx + 1
	}
}

func isWordRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// Watch starts reloading the registry whenever its file changes. No-op when
// the registry was not loaded from a file.
func (r *Registry) Watch() error {
	if r.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create personality watcher: %w", err)
	}
	if err := w.Add(r.path); err != nil {
		w.Close()
		return fmt.Errorf("watch personality file: %w", err)
	}
	r.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				personas, err := readFile(r.path)
				if err != nil {
					slog.Warn("personality reload failed, keeping previous set", "error", err)
					continue
				}
				r.replace(personas)
				slog.Info("personalities reloaded", "count", len(personas))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("personality watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Close stops the file watcher.
func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
