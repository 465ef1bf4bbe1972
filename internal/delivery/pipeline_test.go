package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"
)

// fakeHandle scripts per-strategy failures and records sends in order.
type fakeHandle struct {
	failThreadParam bool
	failPlain       bool
	failNative      bool

	// failPlainAfter fails plain sends once sent count exceeds it (-1 = off).
	failPlainAfter int

	sent []Params // successful sends in order
	via  []string // which method delivered each send
}

func newFakeHandle() *fakeHandle { return &fakeHandle{failPlainAfter: -1} }

func (h *fakeHandle) Send(_ context.Context, p Params) (string, error) {
	if h.failPlain {
		return "", errors.New("plain send failed")
	}
	if h.failPlainAfter >= 0 && len(h.sent) >= h.failPlainAfter {
		return "", errors.New("plain send failed mid-sequence")
	}
	h.sent = append(h.sent, p)
	h.via = append(h.via, "plain")
	return fmt.Sprintf("msg-%d", len(h.sent)), nil
}

func (h *fakeHandle) SendToThread(_ context.Context, threadID string, p Params) (string, error) {
	if h.failThreadParam {
		return "", errors.New("thread param send failed")
	}
	h.sent = append(h.sent, p)
	h.via = append(h.via, "thread-param")
	return fmt.Sprintf("msg-%d", len(h.sent)), nil
}

func (h *fakeHandle) ThreadSend(_ context.Context, threadID string, p Params) (string, error) {
	if h.failNative {
		return "", errors.New("native thread send failed")
	}
	h.sent = append(h.sent, p)
	h.via = append(h.via, "native-thread")
	return fmt.Sprintf("msg-%d", len(h.sent)), nil
}

type fakePlatform struct {
	handle       *fakeHandle
	webhookCalls atomic.Int32
	webhookErr   error

	channelSends []string
	channelErr   error
}

func (f *fakePlatform) Webhook(_ context.Context, channelID string) (Handle, error) {
	f.webhookCalls.Add(1)
	if f.webhookErr != nil {
		return nil, f.webhookErr
	}
	return f.handle, nil
}

func (f *fakePlatform) ChannelSend(_ context.Context, channelID, content string) (string, error) {
	if f.channelErr != nil {
		return "", f.channelErr
	}
	f.channelSends = append(f.channelSends, content)
	return fmt.Sprintf("fallback-%d", len(f.channelSends)), nil
}

func newTestPipeline(platform Platform) (*Pipeline, *atomic.Int32) {
	p := NewPipeline(platform, 0)
	var pauses atomic.Int32
	p.SetPause(func(context.Context, time.Duration) { pauses.Add(1) })
	return p, &pauses
}

func TestLongResponseChunked(t *testing.T) {
	platform := &fakePlatform{handle: newFakeHandle()}
	p, pauses := newTestPipeline(platform)

	content := strings.Repeat("a", 2100)
	res, err := p.Send(context.Background(), Request{
		ChannelID: "ch1",
		Content:   content,
		Username:  "Lila",
		Embeds:    []Embed{{Title: "pic"}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(platform.handle.sent) < 2 {
		t.Fatalf("2100 chars should split into >=2 chunks, got %d", len(platform.handle.sent))
	}
	if got := len(res.MessageIDs); got != len(platform.handle.sent) {
		t.Fatalf("result carries %d ids for %d sends", got, len(platform.handle.sent))
	}

	// Reassembled content preserves order.
	var rebuilt strings.Builder
	for _, s := range platform.handle.sent {
		rebuilt.WriteString(s.Content)
	}
	if rebuilt.String() != content {
		t.Fatal("chunks must reassemble to the original content in order")
	}

	// Embeds only on the final chunk.
	for i, s := range platform.handle.sent {
		last := i == len(platform.handle.sent)-1
		if last && len(s.Embeds) == 0 {
			t.Error("final chunk should carry the embeds")
		}
		if !last && len(s.Embeds) != 0 {
			t.Errorf("chunk %d should not carry embeds", i)
		}
	}

	if got := pauses.Load(); got != int32(len(platform.handle.sent)-1) {
		t.Fatalf("expected %d inter-chunk pauses, got %d", len(platform.handle.sent)-1, got)
	}
}

func TestSplitContentPrefersNewline(t *testing.T) {
	content := strings.Repeat("x", 1500) + "\n" + strings.Repeat("y", 1000)
	chunks := splitContent(content, 2000)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "\n") {
		t.Error("first chunk should break at the newline")
	}
	if chunks[0]+chunks[1] != content {
		t.Error("chunks must reassemble exactly")
	}
}

func TestSplitContentKeepsRunesIntact(t *testing.T) {
	// 2-byte runes with no newlines: a byte cut at 7 would land mid-rune.
	content := strings.Repeat("é", 30)
	chunks := splitContent(content, 7)

	var rebuilt strings.Builder
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8: %q", i, c)
		}
		if len(c) > 7 {
			t.Errorf("chunk %d exceeds limit: %d bytes", i, len(c))
		}
		rebuilt.WriteString(c)
	}
	if rebuilt.String() != content {
		t.Error("chunks must reassemble exactly")
	}
}

func TestThreadCascadeFallsThrough(t *testing.T) {
	tests := []struct {
		name            string
		failThreadParam bool
		failPlain       bool
		failNative      bool
		wantVia         string
		wantFallback    bool
	}{
		{"thread param first", false, false, false, "thread-param", false},
		{"plain second", true, false, false, "plain", false},
		{"native thread third", true, true, false, "native-thread", false},
		{"emergency last", true, true, true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handle := newFakeHandle()
			handle.failThreadParam = tt.failThreadParam
			handle.failPlain = tt.failPlain
			handle.failNative = tt.failNative
			platform := &fakePlatform{handle: handle}
			p, _ := newTestPipeline(platform)

			res, err := p.Send(context.Background(), Request{
				ChannelID: "ch1",
				ThreadID:  "th1",
				Content:   "hello",
				Username:  "Lila",
			})
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if res.Fallback != tt.wantFallback {
				t.Errorf("Fallback = %v, want %v", res.Fallback, tt.wantFallback)
			}
			if tt.wantFallback {
				if len(platform.channelSends) != 1 {
					t.Fatalf("emergency path should use channel send, got %d", len(platform.channelSends))
				}
				if want := "**Lila:** hello"; platform.channelSends[0] != want {
					t.Errorf("emergency content = %q, want %q", platform.channelSends[0], want)
				}
			} else if handle.via[0] != tt.wantVia {
				t.Errorf("delivered via %q, want %q", handle.via[0], tt.wantVia)
			}
		})
	}
}

func TestFirstChunkExhaustionIsError(t *testing.T) {
	handle := newFakeHandle()
	handle.failThreadParam = true
	handle.failPlain = true
	handle.failNative = true
	platform := &fakePlatform{handle: handle, channelErr: errors.New("channel send down")}
	p, _ := newTestPipeline(platform)

	_, err := p.Send(context.Background(), Request{
		ChannelID: "ch1",
		ThreadID:  "th1",
		Content:   "hello",
		Username:  "Lila",
	})
	if err == nil {
		t.Fatal("full cascade exhaustion on the first chunk must be an error")
	}
}

func TestLaterChunkFailureSkippedNotFatal(t *testing.T) {
	handle := newFakeHandle()
	handle.failPlainAfter = 1 // first chunk delivers, later ones fail
	platform := &fakePlatform{handle: handle, channelErr: errors.New("channel send down")}
	p, _ := newTestPipeline(platform)

	content := strings.Repeat("a", 2100)
	res, err := p.Send(context.Background(), Request{
		ChannelID: "ch1",
		Content:   content,
		Username:  "Lila",
	})
	if err != nil {
		t.Fatalf("later-chunk exhaustion must not be fatal: %v", err)
	}
	if len(res.MessageIDs) != 1 {
		t.Fatalf("only the first chunk should have delivered, got %d ids", len(res.MessageIDs))
	}
}

func TestDuplicateSuppressed(t *testing.T) {
	platform := &fakePlatform{handle: newFakeHandle()}
	p, _ := newTestPipeline(platform)

	req := Request{ChannelID: "ch1", Content: "same thing", Username: "Lila"}

	first, err := p.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("first send: %v", err)
	}
	if first.Virtual || first.Duplicate {
		t.Fatal("first send must be real")
	}

	second, err := p.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if !second.Virtual || !second.Duplicate {
		t.Fatalf("identical send in the window should be suppressed, got %+v", second)
	}
	if len(platform.handle.sent) != 1 {
		t.Fatalf("suppressed send must not reach the network, got %d sends", len(platform.handle.sent))
	}

	// Different content in the same channel is not a duplicate.
	third, err := p.Send(context.Background(), Request{ChannelID: "ch1", Content: "different", Username: "Lila"})
	if err != nil {
		t.Fatalf("third send: %v", err)
	}
	if third.Duplicate {
		t.Fatal("different content must not be suppressed")
	}
}

func TestHandleCachedPerChannel(t *testing.T) {
	platform := &fakePlatform{handle: newFakeHandle()}
	p, _ := newTestPipeline(platform)

	for i := 0; i < 3; i++ {
		if _, err := p.Send(context.Background(), Request{ChannelID: "ch1", Content: fmt.Sprintf("message %d", i), Username: "Lila"}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if got := platform.webhookCalls.Load(); got != 1 {
		t.Fatalf("webhook handle should be created once, got %d creations", got)
	}

	p.InvalidateHandle("ch1")
	if _, err := p.Send(context.Background(), Request{ChannelID: "ch1", Content: "after invalidate", Username: "Lila"}); err != nil {
		t.Fatalf("send after invalidate: %v", err)
	}
	if got := platform.webhookCalls.Load(); got != 2 {
		t.Fatalf("invalidated handle should be recreated, got %d creations", got)
	}
}

func TestThrottleSpacing(t *testing.T) {
	th := NewThrottle(50 * time.Millisecond)

	if !th.Allow("ch1") {
		t.Fatal("first send should pass immediately")
	}
	if th.Allow("ch1") {
		t.Fatal("second immediate send to the same channel should be paced")
	}
	// Other channels are independent.
	if !th.Allow("ch2") {
		t.Fatal("throttle must be per channel")
	}

	time.Sleep(60 * time.Millisecond)
	if !th.Allow("ch1") {
		t.Fatal("send should pass after the interval elapses")
	}
}
