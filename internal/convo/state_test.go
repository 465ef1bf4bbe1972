package convo

import (
	"fmt"
	"testing"
	"time"

	"github.com/kindredbots/kindred/internal/personality"
	"github.com/kindredbots/kindred/internal/sched"
)

func testRegistry() *personality.Registry {
	return personality.NewRegistry([]personality.Personality{
		{ID: "lila", Name: "Lila", Aliases: []string{"Li"}},
		{ID: "marcus", Name: "Marcus"},
	})
}

func TestRecordConversationEmptyIDList(t *testing.T) {
	s := New("", sched.NewManual(), testRegistry())

	s.RecordConversation("u1", "ch1", nil, "lila", false, false)

	if got := s.PersonalityFromMessage("anything", ""); got != "" {
		t.Fatalf("no index writes expected, got %q", got)
	}
	if got := s.ActivePersonality("u1", "ch1", true, false, false); got != "" {
		t.Fatalf("no conversation should be recorded, got %q", got)
	}
}

func TestRecordConversationIndexesEachID(t *testing.T) {
	s := New("", sched.NewManual(), testRegistry())

	s.RecordConversation("u1", "ch1", []string{"m1", "m2"}, "lila", false, false)

	for _, id := range []string{"m1", "m2"} {
		if got := s.PersonalityFromMessage(id, ""); got != "lila" {
			t.Errorf("PersonalityFromMessage(%q) = %q, want lila", id, got)
		}
	}
}

func TestRecordConversationDMForcesAutoResponse(t *testing.T) {
	s := New("", sched.NewManual(), testRegistry())

	s.SetAutoResponse("u1", false)
	s.RecordConversation("u1", "dm1", []string{"m1"}, "lila", true, false)

	if !s.AutoResponseEnabled("u1") {
		t.Fatal("a DM reply must force-enable auto-response")
	}
}

func TestActivePersonalityResolutionOrder(t *testing.T) {
	tests := []struct {
		name         string
		activate     string
		conversation string
		isDM         bool
		autoResponse bool
		isCommand    bool
		want         string
	}{
		{
			name:     "channel activation wins",
			activate: "marcus", conversation: "lila",
			isDM: false, autoResponse: true,
			want: "marcus",
		},
		{
			name:     "command bypasses activation",
			activate: "marcus", conversation: "lila",
			isDM: false, autoResponse: true, isCommand: true,
			want: "lila",
		},
		{
			name:         "DM conversation qualifies without auto-response",
			conversation: "lila",
			isDM:         true,
			want:         "lila",
		},
		{
			name:         "guild conversation requires auto-response",
			conversation: "lila",
			isDM:         false, autoResponse: false,
			want: "",
		},
		{
			name:         "guild conversation with auto-response",
			conversation: "lila",
			isDM:         false, autoResponse: true,
			want: "lila",
		},
		{
			name: "nothing recorded",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("", sched.NewManual(), testRegistry())
			if tt.activate != "" {
				s.Activate("ch1", tt.activate, "mod-1")
			}
			if tt.conversation != "" {
				s.RecordConversation("u1", "ch1", []string{"m1"}, tt.conversation, tt.isDM, false)
			}
			got := s.ActivePersonality("u1", "ch1", tt.isDM, tt.autoResponse, tt.isCommand)
			if got != tt.want {
				t.Errorf("ActivePersonality = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPersonalityFromMessageNameFallback(t *testing.T) {
	s := New("", sched.NewManual(), testRegistry())

	tests := []struct {
		name            string
		webhookUsername string
		want            string
	}{
		{"exact", "Lila", "lila"},
		{"alias", "Li", "lila"},
		{"case insensitive", "lila", "lila"},
		{"separator suffix stripped", "Lila | she/her", "lila"},
		{"prefix", "Marcus the Wise", "marcus"},
		{"unknown", "Stranger", ""},
		{"no username supplied", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.PersonalityFromMessage("missing-id", tt.webhookUsername); got != tt.want {
				t.Errorf("PersonalityFromMessage(missing, %q) = %q, want %q", tt.webhookUsername, got, tt.want)
			}
		})
	}
}

func TestDebouncedSaveCoalesced(t *testing.T) {
	clock := sched.NewManual()
	s := New(t.TempDir(), clock, testRegistry())

	s.RecordConversation("u1", "ch1", []string{"m1"}, "lila", false, false)
	s.RecordConversation("u1", "ch1", []string{"m2"}, "lila", false, false)
	s.RecordConversation("u1", "ch1", []string{"m3"}, "lila", false, false)

	// Repeated calls within the window leave exactly one pending save.
	if got := clock.PendingCount(); got != 1 {
		t.Fatalf("expected 1 pending debounced save, got %d", got)
	}

	clock.Advance(time.Second)
	if got := clock.PendingCount(); got != 0 {
		t.Fatalf("debounced save should have fired, %d still pending", got)
	}
}

func TestActivationRoundTrip(t *testing.T) {
	dir := t.TempDir()
	clock := sched.NewManual()

	s := New(dir, clock, testRegistry())
	s.Activate("ch1", "lila", "mod-9")
	want, ok := s.ActivatedPersonality("ch1")
	if !ok {
		t.Fatal("activation should be recorded")
	}
	s.SaveNow()

	reloaded := New(dir, sched.NewManual(), testRegistry())
	got, ok := reloaded.ActivatedPersonality("ch1")
	if !ok {
		t.Fatal("activation should survive save→load")
	}
	if got.PersonalityID != want.PersonalityID ||
		got.ActivatedBy != want.ActivatedBy ||
		!got.Timestamp.Equal(want.Timestamp) {
		t.Fatalf("round-tripped activation %+v differs from original %+v", got, want)
	}
}

func TestConversationSurvivesReload(t *testing.T) {
	dir := t.TempDir()

	s := New(dir, sched.NewManual(), testRegistry())
	s.RecordConversation("u1", "ch1", []string{"m1"}, "lila", true, false)
	s.SaveNow()

	reloaded := New(dir, sched.NewManual(), testRegistry())
	if got := reloaded.ActivePersonality("u1", "ch1", true, false, false); got != "lila" {
		t.Fatalf("conversation after reload = %q, want lila", got)
	}
	if got := reloaded.PersonalityFromMessage("m1", ""); got != "lila" {
		t.Fatalf("index after reload = %q, want lila", got)
	}
	if !reloaded.AutoResponseEnabled("u1") {
		t.Fatal("auto-response set should survive reload")
	}
}

func TestClearConversationDropsIndex(t *testing.T) {
	s := New("", sched.NewManual(), testRegistry())

	s.RecordConversation("u1", "ch1", []string{"m1"}, "lila", false, false)
	s.ClearConversation("u1", "ch1")

	if got := s.PersonalityFromMessage("m1", ""); got != "" {
		t.Fatalf("cleared conversation should drop index entries, got %q", got)
	}
	if got := s.ActivePersonality("u1", "ch1", true, false, false); got != "" {
		t.Fatalf("cleared conversation should not resolve, got %q", got)
	}
}

func TestMessageIDCapPrunesIndex(t *testing.T) {
	s := New("", sched.NewManual(), testRegistry())

	ids := make([]string, 0, maxTrackedMessageIDs+5)
	for i := 0; i < maxTrackedMessageIDs+5; i++ {
		ids = append(ids, fmt.Sprintf("m%d", i))
	}
	s.RecordConversation("u1", "ch1", ids, "lila", false, false)

	if got := s.PersonalityFromMessage(ids[0], ""); got != "" {
		t.Fatalf("oldest id past the cap should be pruned, got %q", got)
	}
	if got := s.PersonalityFromMessage(ids[len(ids)-1], ""); got != "lila" {
		t.Fatalf("newest id should remain indexed, got %q", got)
	}
}
