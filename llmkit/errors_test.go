package llmkit

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status    int
		wantType  string
		retryable bool
	}{
		{400, "*llmkit.InvalidRequestError", false},
		{404, "*llmkit.InvalidRequestError", false},
		{422, "*llmkit.InvalidRequestError", false},
		{401, "*llmkit.AuthenticationError", false},
		{403, "*llmkit.AuthenticationError", false},
		{408, "*llmkit.TimeoutError", true},
		{413, "*llmkit.ContextLengthError", false},
		{429, "*llmkit.RateLimitError", true},
		{500, "*llmkit.ServerError", true},
		{502, "*llmkit.ServerError", true},
		{503, "*llmkit.ServerError", true},
		{504, "*llmkit.ServerError", true},
		{418, "*llmkit.ProviderError", true},
	}
	for _, tt := range tests {
		err := classify(tt.status, "boom", "testprov", nil, nil)
		if got := typeName(err); got != tt.wantType {
			t.Errorf("classify(%d) = %s, want %s", tt.status, got, tt.wantType)
		}
		if got := IsRetryable(err); got != tt.retryable {
			t.Errorf("IsRetryable(classify(%d)) = %v, want %v", tt.status, got, tt.retryable)
		}
	}
}

func typeName(err error) string {
	switch err.(type) {
	case *InvalidRequestError:
		return "*llmkit.InvalidRequestError"
	case *AuthenticationError:
		return "*llmkit.AuthenticationError"
	case *TimeoutError:
		return "*llmkit.TimeoutError"
	case *ContextLengthError:
		return "*llmkit.ContextLengthError"
	case *RateLimitError:
		return "*llmkit.RateLimitError"
	case *ServerError:
		return "*llmkit.ServerError"
	case *ProviderError:
		return "*llmkit.ProviderError"
	default:
		return "unknown"
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil must not be retryable")
	}
	if IsRetryable(&AbortError{}) {
		t.Error("abort must not be retryable")
	}
	if IsRetryable(&ConfigurationError{}) {
		t.Error("configuration errors must not be retryable")
	}
	if !IsRetryable(errors.New("mystery")) {
		t.Error("unknown errors default to retryable")
	}
	if !IsRetryable(&ProviderError{Retryable: true}) {
		t.Error("provider error honors its flag")
	}
	if IsRetryable(&ProviderError{Retryable: false}) {
		t.Error("provider error honors its flag")
	}
}

func TestErrorMessages(t *testing.T) {
	base := &BaseError{Message: "outer", Cause: errors.New("inner")}
	if base.Error() != "outer: inner" {
		t.Errorf("Error() = %q", base.Error())
	}
	if !errors.Is(base, base.Cause) && errors.Unwrap(base) == nil {
		t.Error("Unwrap() lost the cause")
	}

	pe := &ProviderError{
		BaseError:  BaseError{Message: "rate limited"},
		Provider:   "openai",
		StatusCode: 429,
		Retryable:  true,
	}
	want := "[openai] rate limited (status=429, retryable=true)"
	if pe.Error() != want {
		t.Errorf("Error() = %q, want %q", pe.Error(), want)
	}
}
