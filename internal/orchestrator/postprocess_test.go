package orchestrator

import "testing"

func TestIsErrorResponse(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantText string
		wantErr  bool
	}{
		{
			name:     "marker stripped",
			in:       "[ERROR] backend unavailable",
			wantText: "backend unavailable",
			wantErr:  true,
		},
		{
			name:     "marker with leading whitespace",
			in:       "  [ERROR] rate limited",
			wantText: "rate limited",
			wantErr:  true,
		},
		{
			name:     "normal response untouched",
			in:       "hello there",
			wantText: "hello there",
			wantErr:  false,
		},
		{
			name:     "marker mid-text is not an error",
			in:       "the string [ERROR] appears here",
			wantText: "the string [ERROR] appears here",
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, isErr := isErrorResponse(tt.in)
			if isErr != tt.wantErr {
				t.Fatalf("isErrorResponse(%q) err = %v, want %v", tt.in, isErr, tt.wantErr)
			}
			if got != tt.wantText {
				t.Errorf("isErrorResponse(%q) text = %q, want %q", tt.in, got, tt.wantText)
			}
		})
	}
}

func TestRewriteTrailingImageLink(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "matching trailing pair rewritten",
			in:   "here you go [https://x/a.png](https://x/a.png)",
			want: "here you go https://x/a.png",
		},
		{
			name: "mismatched urls untouched",
			in:   "see [https://x/a.png](https://x/b.png)",
			want: "see [https://x/a.png](https://x/b.png)",
		},
		{
			name: "only last pair rewritten",
			in:   "[https://x/1.png](https://x/1.png) and [https://x/2.png](https://x/2.png)",
			want: "[https://x/1.png](https://x/1.png) and https://x/2.png",
		},
		{
			name: "pair not at tail untouched",
			in:   "[https://x/a.png](https://x/a.png) trailing words",
			want: "[https://x/a.png](https://x/a.png) trailing words",
		},
		{
			name: "ordinary link untouched",
			in:   "read [the docs](https://x/docs)",
			want: "read [the docs](https://x/docs)",
		},
		{
			name: "no links",
			in:   "plain text",
			want: "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rewriteTrailingImageLink(tt.in); got != tt.want {
				t.Errorf("rewriteTrailingImageLink(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
