package runloop

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/halverde/agentbridge/extract"
	"github.com/halverde/agentbridge/llmkit"
)

// maxToolRounds bounds the tool-call follow-up loop within a single
// callModel invocation so a model that keeps requesting tools cannot spin
// forever.
const maxToolRounds = 8

// errStopped is the internal sentinel for a cooperative stop. It never
// escapes a strategy's Run; terminal handling converts it to a stop result.
var errStopped = fmt.Errorf("run stopped")

// runState carries the per-run plumbing shared by every strategy: the
// normalized environment, the resolved options, the run context, and the
// bridge. All model traffic and all bridge traffic flows through it.
type runState struct {
	env    Environment
	req    RunRequest
	rc     *RunContext
	bridge Bridge
	opts   map[string]interface{}
	retry  llmkit.RetryPolicy
	logger *zap.Logger

	// filter, when set, screens structured payloads out of the
	// user-visible stream. The full text still reaches the caller.
	filter *extract.StreamFilter

	lastResponseID string
}

// newRunState validates the request, resolves the strategy options, and
// prepares the run context and bridge.
func newRunState(agentName string, env Environment, req RunRequest, schema OptionSchema) (*runState, error) {
	env = env.normalized()
	if env.Client == nil {
		return nil, fmt.Errorf("environment has no model client")
	}
	opts, err := schema.Resolve(req.Params.Options)
	if err != nil {
		return nil, err
	}
	rc := req.Run
	if rc == nil {
		rc = NewRunContext(agentName)
	}
	bridge := req.Bridge
	if bridge == nil {
		bridge = NopBridge{}
	}
	return &runState{
		env:            env,
		req:            req,
		rc:             rc,
		bridge:         bridge,
		opts:           opts,
		retry:          llmkit.DefaultRetryPolicy(),
		logger:         env.Logger,
		lastResponseID: req.PriorResponseID,
	}, nil
}

// stopped reports whether the run should halt at this suspension point.
func (s *runState) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if s.bridge.Stopped() {
		return true
	}
	return s.req.StopWhen != nil && s.req.StopWhen()
}

// stepBegin and stepEnd bracket a run phase on the bridge.
func (s *runState) stepBegin(step StepEvent) { s.bridge.OnStep(s.rc, true, step) }
func (s *runState) stepEnd(step StepEvent)   { s.bridge.OnStep(s.rc, false, step) }

func (s *runState) label(key string, args ...interface{}) string {
	return s.env.Labels.Label(key, args...)
}

// streamDelta accumulates streamed text into the open segment and notifies
// the bridge.
func (s *runState) streamDelta(text string) {
	if text == "" {
		return
	}
	s.rc.StreamText += text
	s.bridge.OnNext(s.rc)
}

// checkpoint finalizes the open segment. The bridge may hand back a
// replacement run context; otherwise the current one continues with its
// stream buffer cleared.
func (s *runState) checkpoint(input string, finished, streamed bool) {
	seg := Segment{
		Input:      input,
		Output:     s.rc.StreamText,
		ResponseID: s.rc.ResponseID,
		Finished:   finished,
		Streamed:   streamed,
	}
	next := s.bridge.OnNextContext(s.rc, seg)
	if next != nil && next != s.rc {
		s.rc = next
	}
	s.rc.StreamText = ""
}

// ackStop finalizes the open segment and acknowledges the stop through the
// bridge.
func (s *runState) ackStop(input string) {
	s.checkpoint(input, false, s.req.Stream)
	s.bridge.OnStop(s.rc)
}

// finish finalizes the run with terminal output text. Every terminal path
// goes through here or stopResult so the last segment is always checkpointed
// with Finished set.
func (s *runState) finish(input, output string) RunResult {
	s.rc.StreamText = output
	s.checkpoint(input, true, false)
	return RunResult{Run: s.rc, Output: output, ResponseID: s.lastResponseID}
}

// stopResult is the terminal result for a cooperatively stopped run. The
// last non-empty answer accumulated before the stop becomes the final
// output; a run stopped before producing anything reports the stop itself.
func (s *runState) stopResult(last string) RunResult {
	output := last
	if output == "" {
		output = s.label("run.stopped")
	}
	return RunResult{
		Run:        s.rc,
		Output:     output,
		ResponseID: s.lastResponseID,
	}
}

// failureText renders a provider or tool failure as inline output text.
// Model-facing failures never abort a run; they become readable results.
func (s *runState) failureText(what string, err error) string {
	s.logger.Warn("model interaction failed", zap.String("phase", what), zap.Error(err))
	return s.label("run.failed", what, err)
}

// baseRequest seeds a model request with routing and resumption state. When
// no provider was given, the model catalog resolves one; off-catalog models
// fall through to the client's default provider.
func (s *runState) baseRequest() llmkit.Request {
	model := s.req.Params.Model
	provider := s.req.Params.Provider
	if provider == "" {
		if info := llmkit.LookupModel(model); info != nil {
			model = info.ID
			provider = info.Provider
		}
	}
	return llmkit.Request{
		Model:           model,
		Provider:        provider,
		PriorResponseID: s.lastResponseID,
	}
}

// chatSession is a persistent conversation owned by one agent role. It
// carries the accumulated messages, including tool-call turns, and the
// provider response ID used to resume the session on the next call.
type chatSession struct {
	messages   []llmkit.Message
	responseID string
}

// callModel performs one logical model exchange against the run's primary
// session: the initial call plus a bounded number of tool-call follow-ups.
// Streamed text is forwarded to the bridge as it arrives. The returned text
// is the final assistant message.
func (s *runState) callModel(ctx context.Context, messages []llmkit.Message, useTools bool) (string, error) {
	sess := chatSession{messages: messages, responseID: s.lastResponseID}
	text, err := s.callSession(ctx, &sess, useTools)
	if sess.responseID != "" {
		s.lastResponseID = sess.responseID
	}
	return text, err
}

// callSession is callModel against a caller-owned session. The session's
// messages grow with every assistant and tool-result turn, and its response
// ID tracks the provider conversation independently of the run's primary
// session.
func (s *runState) callSession(ctx context.Context, sess *chatSession, useTools bool) (string, error) {
	req := s.baseRequest()
	req.PriorResponseID = sess.responseID
	req.Messages = sess.messages
	if useTools && s.env.Tools != nil {
		req.Tools = toolDefinitions(s.env.Tools.Catalog())
	}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := s.completeOnce(ctx, req)
		if err != nil {
			return "", err
		}
		s.rc.ResponseID = resp.ID
		sess.responseID = resp.ID

		calls := resp.ToolCalls()
		if len(calls) == 0 || !useTools || s.env.Tools == nil {
			sess.messages = append(req.Messages, resp.Message)
			return resp.Text(), nil
		}

		req.Messages = append(req.Messages, resp.Message)
		for _, call := range calls {
			if s.stopped(ctx) {
				return "", errStopped
			}
			result, invokeErr := s.invokeTool(ctx, call)
			req.Messages = append(req.Messages, llmkit.ToolResultMessage(call.ID, result, invokeErr != nil))
		}
		req.PriorResponseID = resp.ID
		sess.messages = req.Messages
	}
	return "", fmt.Errorf("exceeded %d tool rounds without a final answer", maxToolRounds)
}

// completeOnce performs a single provider exchange, streaming when the run
// requested it.
func (s *runState) completeOnce(ctx context.Context, req llmkit.Request) (*llmkit.Response, error) {
	if s.stopped(ctx) {
		return nil, errStopped
	}
	if !s.req.Stream {
		resp, err := llmkit.Retry(ctx, s.retry, func(ctx context.Context) (*llmkit.Response, error) {
			return s.env.Client.Complete(ctx, req)
		})
		if err != nil {
			return nil, err
		}
		// Keep the open segment's output current even without streaming.
		s.rc.StreamText += resp.Text()
		return resp, nil
	}

	events, err := s.env.Client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	var acc llmkit.Accumulator
	for event := range events {
		if event.Type == llmkit.StreamError {
			return nil, event.Error
		}
		acc.Process(event)
		if event.Type == llmkit.TextDelta {
			delta := event.Delta
			if s.filter != nil {
				delta = s.filter.Feed(delta)
			}
			s.streamDelta(delta)
		}
		if s.stopped(ctx) {
			return nil, errStopped
		}
	}
	if s.filter != nil {
		s.streamDelta(s.filter.Flush())
	}
	return acc.Response(), nil
}

func (s *runState) invokeTool(ctx context.Context, call llmkit.ToolCall) (string, error) {
	params := map[string]interface{}{}
	if len(call.Arguments) > 0 {
		if err := decodeParams(call.Arguments, &params); err != nil {
			return fmt.Sprintf("invalid arguments for %s: %v", call.Name, err), err
		}
	}
	result, err := s.env.Tools.Invoke(ctx, call.Name, params)
	if err != nil {
		s.logger.Debug("tool invocation failed", zap.String("tool", call.Name), zap.Error(err))
		return fmt.Sprintf("error: %v", err), err
	}
	return result, nil
}

func decodeParams(raw []byte, out *map[string]interface{}) error {
	return json.Unmarshal(raw, out)
}

func toolDefinitions(descs []ToolDescriptor) []llmkit.ToolDefinition {
	defs := make([]llmkit.ToolDefinition, len(descs))
	for i, d := range descs {
		defs[i] = llmkit.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		}
	}
	return defs
}
