package extract

import (
	"strings"
	"testing"
)

// feedChunks pushes text through the filter in fixed-size chunks and returns
// the concatenated visible output.
func feedChunks(f *StreamFilter, text string, size int) string {
	var out strings.Builder
	for i := 0; i < len(text); i += size {
		end := i + size
		if end > len(text) {
			end = len(text)
		}
		out.WriteString(f.Feed(text[i:end]))
	}
	out.WriteString(f.Flush())
	return out.String()
}

func TestStreamFilter(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVisible string
		wantHidden  string
	}{
		{
			name:        "plain text passes through",
			input:       "hello there, no structure here",
			wantVisible: "hello there, no structure here",
		},
		{
			name:        "fenced block hidden",
			input:       "before\n```json\n{\"a\": 1}\n```\nafter",
			wantVisible: "before\n\nafter",
			wantHidden:  "```json\n{\"a\": 1}\n```",
		},
		{
			name:        "bare object hidden",
			input:       `visible {"cmd": "go", "params": {"n": 2}} also visible`,
			wantVisible: "visible  also visible",
			wantHidden:  `{"cmd": "go", "params": {"n": 2}}`,
		},
		{
			name:        "braces inside strings do not close the object",
			input:       `x {"msg": "a } b"} y`,
			wantVisible: "x  y",
			wantHidden:  `{"msg": "a } b"}`,
		},
		{
			name:        "escaped quote inside string",
			input:       `x {"msg": "say \" }"} y`,
			wantVisible: "x  y",
			wantHidden:  `{"msg": "say \" }"}`,
		},
		{
			name:        "lone backtick is visible after flush",
			input:       "inline ` code marker",
			wantVisible: "inline ` code marker",
		},
		{
			name:        "unclosed object returned at flush",
			input:       `please hold {"cmd": "be`,
			wantVisible: `please hold {"cmd": "be`,
		},
	}
	for _, tt := range tests {
		for _, size := range []int{1, 2, 7, 1024} {
			t.Run(tt.name, func(t *testing.T) {
				f := NewStreamFilter()
				got := feedChunks(f, tt.input, size)
				if got != tt.wantVisible {
					t.Errorf("chunk size %d: visible = %q, want %q", size, got, tt.wantVisible)
				}
				if tt.wantHidden != "" && f.Hidden() != tt.wantHidden {
					t.Errorf("chunk size %d: hidden = %q, want %q", size, f.Hidden(), tt.wantHidden)
				}
			})
		}
	}
}

func TestStreamFilterSplitFenceAcrossChunks(t *testing.T) {
	f := NewStreamFilter()
	var visible strings.Builder
	visible.WriteString(f.Feed("result: `"))
	visible.WriteString(f.Feed("``json\n{\"k\":"))
	visible.WriteString(f.Feed(" 1}\n``"))
	visible.WriteString(f.Feed("`done"))
	visible.WriteString(f.Flush())

	if got := visible.String(); got != "result: done" {
		t.Errorf("visible = %q, want %q", got, "result: done")
	}
}

func TestStreamFilterTruncatedObjectNotLost(t *testing.T) {
	f := NewStreamFilter()
	var visible strings.Builder
	visible.WriteString(f.Feed("checking {\"cmd\": \"lo"))
	visible.WriteString(f.Feed("okup\", \"params\": {"))
	visible.WriteString(f.Flush())

	// The stream ended mid-object, so it was prose after all; none of it may
	// vanish from the transcript.
	want := "checking {\"cmd\": \"lookup\", \"params\": {"
	if got := visible.String(); got != want {
		t.Errorf("visible = %q, want %q", got, want)
	}
}

func TestStreamFilterTrailingPendingFlushes(t *testing.T) {
	f := NewStreamFilter()
	out := f.Feed("ends with ``")
	if out != "ends with " {
		t.Errorf("Feed() = %q", out)
	}
	if got := f.Flush(); got != "``" {
		t.Errorf("Flush() = %q, want buffered backticks back", got)
	}
}
