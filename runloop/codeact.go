package runloop

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/halverde/agentbridge/extract"
	"github.com/halverde/agentbridge/llmkit"
)

const codeActInstructions = `Solve the task below. You can act in two ways inside your replies:

- Run code by wrapping it in execute tags:
  <execute lang="python">print(1 + 1)</execute>
- Invoke a command by wrapping a JSON object in command tags:
  <command>{"cmd": "command_name", "params": {"key": "value"}}</command>

After each reply containing actions you receive their observations and may
act again. When the task is solved, reply with the final answer as plain
text containing no execute or command tags.`

const loopSteeringNote = `You are repeating the same actions without making progress. Take a
different approach, or reply with your final answer as plain text.`

// CodeAct is a single-loop strategy where the model acts by emitting inline
// code blocks and command calls instead of native tool calls. Each turn's
// actions run in order and their observations feed the next turn; a reply
// with no actions is the final answer.
type CodeAct struct{}

func (*CodeAct) Name() string { return "codeact" }

func (*CodeAct) Options() OptionSchema {
	return OptionSchema{
		{Name: "max_turns", Kind: OptionInt, Default: 15,
			Description: "model turns before the run gives up"},
		{Name: "loop_window", Kind: OptionInt, Default: 6,
			Description: "trailing actions inspected for repetition"},
	}
}

func (c *CodeAct) Run(ctx context.Context, env Environment, req RunRequest) (RunResult, error) {
	s, err := newRunState(c.Name(), env, req, c.Options())
	if err != nil {
		return RunResult{}, err
	}
	maxTurns := optInt(s.opts, "max_turns")
	loopWindow := optInt(s.opts, "loop_window")

	messages := make([]llmkit.Message, 0, len(req.Messages)+2)
	system := codeActInstructions
	if req.Memory != "" {
		system += "\n\nContext:\n" + req.Memory
	}
	if s.env.Tools != nil {
		if catalog := CatalogText(s.env.Tools.Catalog()); catalog != "" {
			system += "\n\nAvailable commands:\n" + catalog
		}
	}
	messages = append(messages, llmkit.SystemMessage(system))
	messages = append(messages, req.Messages...)
	messages = append(messages, llmkit.UserMessage(req.Task))

	var actionLog []string
	lastText := ""
	for turn := 1; turn <= maxTurns; turn++ {
		if s.stopped(ctx) {
			s.ackStop(req.Task)
			return s.stopResult(lastText), nil
		}

		step := StepEvent{Name: StepTurn, Index: turn, Total: maxTurns,
			Label: s.label("codeact.turn", turn)}
		s.stepBegin(step)

		s.filter = extract.NewStreamFilter()
		text, err := s.callModel(ctx, messages, false)
		s.filter = nil
		if err != nil {
			if errors.Is(err, errStopped) {
				s.ackStop(req.Task)
				return s.stopResult(lastText), nil
			}
			return s.finish(req.Task, s.failureText(StepTurn, err)), nil
		}
		s.stepEnd(step)
		s.checkpoint(req.Task, false, s.req.Stream)
		lastText = text

		segments := extract.Tokenize(text)
		actions := actionSegments(segments)
		if len(actions) == 0 {
			final := strings.TrimSpace(text)
			if final == "" {
				final = s.failureText(StepTurn, errors.New("model produced no output"))
			}
			return s.finish(req.Task, final), nil
		}

		for _, seg := range actions {
			actionLog = append(actionLog, actionSignature(seg))
		}
		if detectRepetition(actionLog, loopWindow) {
			// Steer instead of running the repeated actions again.
			s.logger.Warn("repeated actions detected, steering")
			messages = append(messages, llmkit.AssistantMessage(text))
			messages = append(messages, llmkit.UserMessage(loopSteeringNote))
			actionLog = actionLog[:0]
			continue
		}

		messages = append(messages, llmkit.AssistantMessage(text))
		observations, err := c.runActions(ctx, s, actions)
		if err != nil {
			s.ackStop(req.Task)
			return s.stopResult(lastText), nil
		}
		messages = append(messages, llmkit.UserMessage(observations))
	}

	output := s.label("run.maxrounds", maxTurns)
	if lastText != "" {
		output += "\n\n" + lastText
	}
	return s.finish(req.Task, output), nil
}

// runActions executes a turn's code blocks and command calls in order and
// renders their observations. Execution failures become observation text.
func (c *CodeAct) runActions(ctx context.Context, s *runState, actions []extract.Segment) (string, error) {
	var b strings.Builder
	for i, seg := range actions {
		if s.stopped(ctx) {
			return "", errStopped
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch seg.Kind {
		case extract.SegmentCodeBlock:
			fmt.Fprintf(&b, "Observation for code block %d:\n%s", i+1, c.runCode(ctx, s, seg.Code))
		case extract.SegmentCommandCall:
			if seg.Command == nil {
				fmt.Fprintf(&b, "Observation for command %d:\ncould not parse command payload: %s", i+1, seg.Raw)
				continue
			}
			fmt.Fprintf(&b, "Observation for command %d:\n%s", i+1, c.runCommand(ctx, s, *seg.Command))
		}
	}
	return b.String(), nil
}

func (c *CodeAct) runCode(ctx context.Context, s *runState, block *extract.CodeBlock) string {
	if s.env.Runner == nil {
		return "code execution is not available"
	}
	out, err := s.env.Runner.RunCode(ctx, block.Lang, block.Source)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	if out == "" {
		return "(no output)"
	}
	return out
}

func (c *CodeAct) runCommand(ctx context.Context, s *runState, call extract.CommandCall) string {
	if s.env.Tools == nil {
		return "commands are not available"
	}
	out, err := s.env.Tools.Invoke(ctx, call.Cmd, call.Params)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	if out == "" {
		return "(no output)"
	}
	return out
}

func actionSegments(segments []extract.Segment) []extract.Segment {
	var actions []extract.Segment
	for _, seg := range segments {
		if seg.Kind == extract.SegmentCodeBlock || seg.Kind == extract.SegmentCommandCall {
			actions = append(actions, seg)
		}
	}
	return actions
}

// actionSignature produces a deterministic identity for one action: the
// command or language plus a hash of its payload.
func actionSignature(seg extract.Segment) string {
	switch seg.Kind {
	case extract.SegmentCodeBlock:
		h := sha256.Sum256([]byte(seg.Code.Source))
		return fmt.Sprintf("code:%s:%x", seg.Code.Lang, h[:8])
	case extract.SegmentCommandCall:
		if seg.Command == nil {
			return "command:unparsed"
		}
		raw, _ := json.Marshal(seg.Command.Params)
		h := sha256.Sum256(raw)
		return fmt.Sprintf("command:%s:%x", seg.Command.Cmd, h[:8])
	}
	return ""
}

// detectRepetition reports whether the trailing window of action signatures
// follows a repeating pattern of length 1, 2, or 3.
func detectRepetition(log []string, window int) bool {
	if window <= 0 || len(log) < window {
		return false
	}
	sigs := log[len(log)-window:]
	for patternLen := 1; patternLen <= 3; patternLen++ {
		if window%patternLen != 0 {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < window && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}
