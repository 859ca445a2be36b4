package llmkit

import (
	"errors"
	"testing"
)

func TestParseEmbeddedToolCalls(t *testing.T) {
	t.Run("no calls", func(t *testing.T) {
		if calls := parseEmbeddedToolCalls("just prose"); calls != nil {
			t.Errorf("calls = %+v, want nil", calls)
		}
	})

	t.Run("single call after text", func(t *testing.T) {
		text := `I'll look that up.
[{"name": "search", "arguments": {"query": "weather"}}]`
		calls := parseEmbeddedToolCalls(text)
		if len(calls) != 1 {
			t.Fatalf("calls = %+v", calls)
		}
		if calls[0].Name != "search" {
			t.Errorf("Name = %q", calls[0].Name)
		}
		if string(calls[0].Arguments) != `{"query": "weather"}` {
			t.Errorf("Arguments = %s", calls[0].Arguments)
		}
		if calls[0].ID == "" {
			t.Error("each call needs a generated ID")
		}
	})

	t.Run("multiple calls", func(t *testing.T) {
		text := `[{"name": "a", "arguments": {}}, {"name": "b", "arguments": {"n": 1}}]`
		calls := parseEmbeddedToolCalls(text)
		if len(calls) != 2 || calls[0].Name != "a" || calls[1].Name != "b" {
			t.Errorf("calls = %+v", calls)
		}
	})

	t.Run("malformed json ignored", func(t *testing.T) {
		if calls := parseEmbeddedToolCalls(`[{"name": broken`); calls != nil {
			t.Errorf("calls = %+v, want nil", calls)
		}
	})
}

func TestStripToolCallJSON(t *testing.T) {
	text := `Working on it.
[{"name": "search", "arguments": {}}]`
	if got := stripToolCallJSON(text, true); got != "Working on it." {
		t.Errorf("stripToolCallJSON() = %q", got)
	}
	if got := stripToolCallJSON(text, false); got != text {
		t.Errorf("text without parsed calls must be untouched, got %q", got)
	}
}

func TestTranslateError(t *testing.T) {
	a := &GollmAdapter{provider: "openai"}
	tests := []struct {
		msg      string
		wantType string
	}{
		{"API error: 401 Unauthorized", "*llmkit.AuthenticationError"},
		{"invalid api key", "*llmkit.AuthenticationError"},
		{"rate limit exceeded", "*llmkit.RateLimitError"},
		{"model not found", "*llmkit.InvalidRequestError"},
		{"context length exceeded", "*llmkit.ContextLengthError"},
		{"500 internal server error", "*llmkit.ServerError"},
		{"request timeout", "*llmkit.TimeoutError"},
		{"something else entirely", "*llmkit.ProviderError"},
	}
	for _, tt := range tests {
		err := a.translateError(errors.New(tt.msg))
		if got := typeName(err); got != tt.wantType {
			t.Errorf("translateError(%q) = %s, want %s", tt.msg, got, tt.wantType)
		}
	}
	if a.translateError(nil) != nil {
		t.Error("nil must stay nil")
	}
}

func TestEstimateTokens(t *testing.T) {
	req := Request{Messages: []Message{
		UserMessage("this prompt is about forty characters long"),
	}}
	if got := estimateTokens(req); got == 0 {
		t.Error("non-empty request must estimate non-zero tokens")
	}
	if got := estimateTokens(Request{}); got != 10 {
		t.Errorf("empty request floor = %d, want 10", got)
	}
}
