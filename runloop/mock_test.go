package runloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/halverde/agentbridge/llmkit"
)

// scripted is one canned model response. Structured calls consume them the
// same way plain calls do, so scripts read in call order.
type scripted struct {
	text      string
	toolCalls []llmkit.ToolCall
	err       error
}

func jsonOf(t interface{}) string {
	raw, err := json.Marshal(t)
	if err != nil {
		panic(err)
	}
	return string(raw)
}

// scriptedClient replays canned responses in order and records every
// request it sees.
type scriptedClient struct {
	mu       sync.Mutex
	script   []scripted
	requests []llmkit.Request
}

func (c *scriptedClient) next(req llmkit.Request) (scripted, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.script) == 0 {
		return scripted{}, fmt.Errorf("scripted client exhausted after %d calls", len(c.requests)-1)
	}
	s := c.script[0]
	c.script = c.script[1:]
	return s, nil
}

func (c *scriptedClient) response(id string, s scripted) *llmkit.Response {
	msg := llmkit.AssistantMessage(s.text)
	for _, tc := range s.toolCalls {
		msg.Content = append(msg.Content, llmkit.ToolCallPart(tc.ID, tc.Name, tc.Arguments))
	}
	return &llmkit.Response{
		ID:           id,
		Model:        "scripted",
		Provider:     "scripted",
		Message:      msg,
		FinishReason: llmkit.FinishReason{Reason: "stop"},
	}
}

func (c *scriptedClient) Complete(_ context.Context, req llmkit.Request) (*llmkit.Response, error) {
	s, err := c.next(req)
	if err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return c.response(fmt.Sprintf("resp-%d", len(c.requests)), s), nil
}

func (c *scriptedClient) Stream(_ context.Context, req llmkit.Request) (<-chan llmkit.StreamEvent, error) {
	s, err := c.next(req)
	if err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	resp := c.response(fmt.Sprintf("resp-%d", len(c.requests)), s)
	ch := make(chan llmkit.StreamEvent, len(s.text)+4)
	ch <- llmkit.StreamEvent{Type: llmkit.StreamStart}
	// Two-byte chunks exercise the boundary handling in stream consumers.
	for i := 0; i < len(s.text); i += 2 {
		end := i + 2
		if end > len(s.text) {
			end = len(s.text)
		}
		ch <- llmkit.StreamEvent{Type: llmkit.TextDelta, Delta: s.text[i:end]}
	}
	for i := range s.toolCalls {
		ch <- llmkit.StreamEvent{Type: llmkit.ToolCallEnd, ToolCall: &s.toolCalls[i]}
	}
	ch <- llmkit.StreamEvent{Type: llmkit.StreamFinish, Response: resp}
	close(ch)
	return ch, nil
}

// recordBridge records every bridge interaction. stopAfterSteps, when
// positive, requests a stop once that many step-begin events have fired.
type recordBridge struct {
	mu             sync.Mutex
	steps          []StepEvent
	begins         int
	deltas         []string
	segments       []Segment
	stopAcked      bool
	stopped        bool
	stopAfterSteps int
}

func (b *recordBridge) Stopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

func (b *recordBridge) OnStep(_ *RunContext, begin bool, step StepEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if begin {
		b.begins++
		b.steps = append(b.steps, step)
		if b.stopAfterSteps > 0 && b.begins >= b.stopAfterSteps {
			b.stopped = true
		}
	}
}

func (b *recordBridge) OnNext(rc *RunContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deltas = append(b.deltas, rc.StreamText)
}

func (b *recordBridge) OnNextContext(rc *RunContext, seg Segment) *RunContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.segments = append(b.segments, seg)
	return rc
}

func (b *recordBridge) OnStop(*RunContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopAcked = true
}

func (b *recordBridge) stepNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.steps))
	for i, s := range b.steps {
		names[i] = s.Name
	}
	return names
}
