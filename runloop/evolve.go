package runloop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/halverde/agentbridge/llmkit"
)

// Evaluation scores.
const (
	ScorePass             = "pass"
	ScoreNeedsImprovement = "needs_improvement"
	ScoreFail             = "fail"
)

// EvaluationFeedback is the evaluator's verdict on a generation's winning
// candidate.
type EvaluationFeedback struct {
	Score    string `json:"score"` // "pass", "needs_improvement", "fail"
	Feedback string `json:"feedback,omitempty"`
}

// ChooserChoice selects the best candidate of a generation (1-based).
type ChooserChoice struct {
	Choice int    `json:"choice"`
	Reason string `json:"reason,omitempty"`
}

const chooserInstructions = `Several candidate answers to the same task follow. Choose the single best
one. Respond with a JSON object matching the requested schema, with choice
set to the 1-based number of the winning candidate.`

const evaluatorInstructions = `Evaluate the answer below against the task. Score "pass" when the answer
fully solves the task, "needs_improvement" when it is on the right track but
incomplete or flawed, and "fail" when it misses the task. Always explain the
shortcomings in feedback when not passing.

Respond with a JSON object matching the requested schema.`

// Evolve runs an evolutionary loop: each generation samples several
// candidate answers, a chooser picks the winner, and an evaluator either
// accepts it or feeds its critique into the next generation.
type Evolve struct{}

func (*Evolve) Name() string { return "evolve" }

func (*Evolve) Options() OptionSchema {
	return OptionSchema{
		{Name: "max_generations", Kind: OptionInt, Default: 3,
			Description: "generations before the best answer so far is returned; 0 means no bound"},
		{Name: "parents", Kind: OptionInt, Default: 2,
			Description: "candidate answers sampled per generation"},
	}
}

func (e *Evolve) Run(ctx context.Context, env Environment, req RunRequest) (RunResult, error) {
	s, err := newRunState(e.Name(), env, req, e.Options())
	if err != nil {
		return RunResult{}, err
	}
	maxGenerations := optInt(s.opts, "max_generations")
	parents := optInt(s.opts, "parents")
	if parents < 1 {
		parents = 1
	}

	base := make([]llmkit.Message, 0, len(req.Messages)+2)
	if req.Memory != "" {
		base = append(base, llmkit.SystemMessage(req.Memory))
	}
	base = append(base, req.Messages...)
	base = append(base, llmkit.UserMessage(req.Task))

	bestOutput := ""
	// maxGenerations of zero means the loop is bounded only by the stop
	// checks and the evaluator passing.
	for gen := 1; maxGenerations == 0 || gen <= maxGenerations; gen++ {
		if s.stopped(ctx) {
			s.ackStop(req.Task)
			return s.stopResult(bestOutput), nil
		}
		genStep := StepEvent{Name: StepGeneration, Index: gen, Total: maxGenerations,
			Label: s.label("evolve.generation", gen)}
		s.stepBegin(genStep)

		candidates, err := e.sampleCandidates(ctx, s, base, parents)
		if err != nil {
			if errors.Is(err, errStopped) {
				s.ackStop(req.Task)
				return s.stopResult(bestOutput), nil
			}
			return s.finish(req.Task, s.failureText(StepGeneration, err)), nil
		}

		winner, err := e.choose(ctx, s, req.Task, candidates)
		if err != nil {
			s.ackStop(req.Task)
			return s.stopResult(bestOutput), nil
		}
		bestOutput = winner
		s.stepEnd(genStep)

		verdict, err := e.evaluate(ctx, s, req.Task, winner)
		if err != nil {
			if errors.Is(err, errStopped) {
				s.ackStop(req.Task)
				return s.stopResult(bestOutput), nil
			}
			s.logger.Warn("evaluation did not decode, returning current winner", zap.Error(err))
			return s.finish(req.Task, winner), nil
		}
		if verdict.Score == ScorePass {
			return s.finish(req.Task, winner), nil
		}

		// Carry the winner and its critique into the next generation.
		base = append(base, llmkit.AssistantMessage(winner))
		feedback := verdict.Feedback
		if feedback == "" {
			feedback = "The answer above is not good enough. Produce a better one."
		}
		base = append(base, llmkit.UserMessage(
			fmt.Sprintf("Reviewer feedback (%s):\n%s\n\nProduce an improved answer.", verdict.Score, feedback)))
	}

	output := s.label("run.maxgenerations", maxGenerations)
	if bestOutput != "" {
		output += "\n\n" + bestOutput
	}
	return s.finish(req.Task, output), nil
}

// sampleCandidates produces one generation of candidate answers. A failed
// candidate call becomes failure text so the chooser still sees a full
// slate.
func (e *Evolve) sampleCandidates(ctx context.Context, s *runState, base []llmkit.Message, parents int) ([]string, error) {
	candidates := make([]string, 0, parents)
	for i := 0; i < parents; i++ {
		if s.stopped(ctx) {
			return nil, errStopped
		}
		step := StepEvent{Name: StepSubtask, Index: i + 1, Total: parents,
			Label: s.label("evolve.parent", i+1, parents)}
		s.stepBegin(step)
		output, err := s.callModel(ctx, base, true)
		if err != nil {
			if errors.Is(err, errStopped) {
				return nil, err
			}
			output = s.failureText(StepGeneration, err)
		}
		s.stepEnd(step)
		s.checkpoint(s.req.Task, false, s.req.Stream)
		candidates = append(candidates, output)
	}
	return candidates, nil
}

// choose picks the winning candidate. A single candidate wins by default;
// an undecodable or out-of-range choice falls back to the first candidate.
func (e *Evolve) choose(ctx context.Context, s *runState, task string, candidates []string) (string, error) {
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	step := StepEvent{Name: StepChoose, Label: s.label("evolve.choosing")}
	s.stepBegin(step)
	defer s.stepEnd(step)

	var b strings.Builder
	b.WriteString(chooserInstructions)
	fmt.Fprintf(&b, "\n\nTask:\n%s", task)
	for i, cand := range candidates {
		fmt.Fprintf(&b, "\n\nCandidate %d:\n%s", i+1, cand)
	}

	choice, _, err := generateObject[ChooserChoice](ctx, s, b.String())
	if err != nil {
		if errors.Is(err, errStopped) {
			return "", err
		}
		s.logger.Warn("choice did not decode, keeping first candidate", zap.Error(err))
		return candidates[0], nil
	}
	if choice.Choice < 1 || choice.Choice > len(candidates) {
		s.logger.Warn("choice out of range, keeping first candidate", zap.Int("choice", choice.Choice))
		return candidates[0], nil
	}
	return candidates[choice.Choice-1], nil
}

func (e *Evolve) evaluate(ctx context.Context, s *runState, task, answer string) (*EvaluationFeedback, error) {
	step := StepEvent{Name: StepEvaluate, Label: s.label("evolve.evaluating")}
	s.stepBegin(step)
	defer s.stepEnd(step)

	prompt := fmt.Sprintf("%s\n\nTask:\n%s\n\nAnswer:\n%s", evaluatorInstructions, task, answer)
	verdict, _, err := generateObject[EvaluationFeedback](ctx, s, prompt)
	if err != nil {
		return nil, err
	}
	switch verdict.Score {
	case ScorePass, ScoreNeedsImprovement, ScoreFail:
	default:
		return nil, &SchemaError{Raw: verdict.Score, Cause: fmt.Errorf("unknown score %q", verdict.Score)}
	}
	return verdict, nil
}
