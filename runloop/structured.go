package runloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/halverde/agentbridge/extract"
	"github.com/halverde/agentbridge/llmkit"
)

// SchemaError reports a model response that could not be decoded into the
// requested type. Raw carries the response text for logging and fallback
// decisions.
type SchemaError struct {
	Raw   string
	Cause error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("response did not match schema: %v", e.Cause)
}

func (e *SchemaError) Unwrap() error { return e.Cause }

// schemaFor derives an inline JSON schema for T. Definitions are expanded in
// place so providers that only accept self-contained schemas still work.
func schemaFor[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	var zero T
	schema := reflector.Reflect(&zero)
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	out := make(map[string]interface{})
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// generateObject performs one schema-constrained model call and decodes the
// response into T. Responses wrapped in prose or code fences are recovered
// via tolerant JSON extraction before decoding; decode failures return a
// *SchemaError so each caller can apply its own fallback.
func generateObject[T any](ctx context.Context, s *runState, prompt string) (*T, string, error) {
	if s.stopped(ctx) {
		return nil, "", errStopped
	}
	req := s.baseRequest()
	req.Messages = append(req.Messages, llmkit.UserMessage(prompt))
	req.ResponseFormat = &llmkit.ResponseFormat{
		Type:       "json_schema",
		JSONSchema: schemaFor[T](),
	}

	resp, err := llmkit.Retry(ctx, s.retry, func(ctx context.Context) (*llmkit.Response, error) {
		return s.env.Client.Complete(ctx, req)
	})
	if err != nil {
		return nil, "", err
	}
	s.rc.ResponseID = resp.ID
	s.lastResponseID = resp.ID
	text := resp.Text()

	payload := text
	if obj, jerr := extract.FirstJSONObject(text); jerr == nil {
		payload = obj
	}
	var out T
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, resp.ID, &SchemaError{Raw: text, Cause: err}
	}
	return &out, resp.ID, nil
}
