package runloop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/halverde/agentbridge/llmkit"
)

// Supervisor directive actions.
const (
	DirectiveTask    = "task"
	DirectiveFinal   = "final"
	DirectiveAskUser = "ask_user"
)

// SupervisorDirective is the supervisor's decision for one round: delegate
// another assignment, emit the final answer, or hand a question back to the
// user.
type SupervisorDirective struct {
	Action      string `json:"action"` // "task", "final", "ask_user"
	Reasoning   string `json:"reasoning,omitempty"`
	Instruction string `json:"instruction,omitempty"`
	FinalAnswer string `json:"final_answer,omitempty"`
	Question    string `json:"question,omitempty"`
}

const supervisorInstructions = `You are supervising a worker agent toward completing the task below.
Each round, either: delegate one concrete assignment to the worker (action
"task" with the assignment in instruction), finish with the complete answer
(action "final" with the answer in final_answer), or ask the user a
clarifying question (action "ask_user" with the question in question).
Delegate the smallest useful assignment; finish as soon as the collected
worker results answer the task.

Respond with a JSON object matching the requested schema.`

// SupervisorWorker alternates a deciding supervisor with an executing
// worker. The two roles share no memory: the supervisor is schema-
// constrained, tool-free, and sees only the task, each worker result, and a
// per-round control block; the worker keeps its own persistent session,
// accumulating instructions, answers, and tool-call context across rounds.
type SupervisorWorker struct{}

func (*SupervisorWorker) Name() string { return "supervisor-worker" }

func (*SupervisorWorker) Options() OptionSchema {
	return OptionSchema{
		{Name: "max_rounds", Kind: OptionInt, Default: 10,
			Description: "supervisor rounds before the run gives up"},
	}
}

func (sw *SupervisorWorker) Run(ctx context.Context, env Environment, req RunRequest) (RunResult, error) {
	s, err := newRunState("supervisor", env, req, sw.Options())
	if err != nil {
		return RunResult{}, err
	}
	maxRounds := optInt(s.opts, "max_rounds")

	// The worker's session starts fresh: it must never resume the
	// supervisor's provider conversation.
	worker := &chatSession{}
	if req.Memory != "" {
		worker.messages = append(worker.messages, llmkit.SystemMessage(req.Memory))
	}
	worker.messages = append(worker.messages, req.Messages...)

	lastWorkerOutput := ""

	for round := 1; round <= maxRounds; round++ {
		if s.stopped(ctx) {
			s.ackStop(req.Task)
			return s.stopResult(lastWorkerOutput), nil
		}

		s.rc.AgentName = "supervisor"
		step := StepEvent{
			Name:  StepSupervisor,
			Index: round,
			Total: maxRounds,
			Label: s.label("supervisor.round", round, maxRounds),
		}
		s.stepBegin(step)

		prompt := supervisorPrompt(s, req.Task, round, maxRounds, lastWorkerOutput)
		directive, _, err := generateObject[SupervisorDirective](ctx, s, prompt)
		if err != nil {
			if errors.Is(err, errStopped) {
				s.ackStop(req.Task)
				return s.stopResult(lastWorkerOutput), nil
			}
			var schemaErr *SchemaError
			if errors.As(err, &schemaErr) {
				s.logger.Warn("supervisor directive did not decode, ending run",
					zap.Error(schemaErr.Cause))
				err = schemaErr
			}
			return s.finish(req.Task, s.failureText(StepSupervisor, err)), nil
		}
		s.stepEnd(step)
		s.rc.StreamText = directiveSummary(*directive)
		s.checkpoint(req.Task, false, false)

		switch directive.Action {
		case DirectiveFinal:
			output := directive.FinalAnswer
			if output == "" {
				output = lastWorkerOutput
			}
			if output == "" {
				output = s.failureText(StepSupervisor, errors.New("final directive carried no answer"))
			}
			return s.finish(req.Task, output), nil

		case DirectiveAskUser:
			question := directive.Question
			if question == "" {
				question = s.failureText(StepSupervisor, errors.New("ask_user directive carried no question"))
			}
			return s.finish(req.Task, question), nil

		case DirectiveTask:
			s.rc.AgentName = "worker"
			workerStep := StepEvent{Name: StepWorker, Label: s.label("worker.dispatch")}
			s.stepBegin(workerStep)
			output, err := sw.runWorker(ctx, s, worker, directive.Instruction)
			if err != nil {
				s.ackStop(directive.Instruction)
				return s.stopResult(lastWorkerOutput), nil
			}
			s.stepEnd(workerStep)
			s.checkpoint(directive.Instruction, false, s.req.Stream)
			lastWorkerOutput = output

		default:
			return s.finish(req.Task, s.failureText(StepSupervisor,
				fmt.Errorf("unknown directive action %q", directive.Action))), nil
		}
	}

	output := s.label("run.maxrounds", maxRounds)
	if lastWorkerOutput != "" {
		output += "\n\n" + lastWorkerOutput
	}
	return s.finish(req.Task, output), nil
}

// runWorker executes one delegated assignment with tools enabled, inside the
// worker's own session so later rounds see the full exchange. Worker
// failures are reported back to the supervisor as the assignment's result.
func (sw *SupervisorWorker) runWorker(ctx context.Context, s *runState, worker *chatSession, instruction string) (string, error) {
	worker.messages = append(worker.messages, llmkit.UserMessage(instruction))
	output, err := s.callSession(ctx, worker, true)
	if err != nil {
		if errors.Is(err, errStopped) {
			return "", err
		}
		output = s.failureText(StepWorker, err)
		worker.messages = append(worker.messages, llmkit.AssistantMessage(output))
	}
	return output, nil
}

// supervisorPrompt is the delta the supervisor sees each round: the task on
// the first round only, the prior worker result, and a control block with
// the round position. The supervisor's own session carries everything else.
func supervisorPrompt(s *runState, task string, round, maxRounds int, priorOutput string) string {
	var b strings.Builder
	b.WriteString(supervisorInstructions)
	if round == 1 {
		if s.req.Memory != "" {
			fmt.Fprintf(&b, "\n\nContext:\n%s", s.req.Memory)
		}
		fmt.Fprintf(&b, "\n\nTask:\n%s", task)
	}
	if priorOutput != "" {
		fmt.Fprintf(&b, "\n\nWorker result:\n%s", priorOutput)
	}
	fmt.Fprintf(&b, "\n\nRound %d of %d.", round, maxRounds)
	return b.String()
}

func directiveSummary(d SupervisorDirective) string {
	switch d.Action {
	case DirectiveTask:
		return d.Instruction
	case DirectiveFinal:
		return d.FinalAnswer
	case DirectiveAskUser:
		return d.Question
	}
	return d.Action
}
