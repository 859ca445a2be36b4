package runloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvolveChoosesWinnerAndPasses(t *testing.T) {
	client := &scriptedClient{script: []scripted{
		{text: "answer A"},
		{text: "answer B"},
		{text: jsonOf(ChooserChoice{Choice: 2, Reason: "more complete"})},
		{text: jsonOf(EvaluationFeedback{Score: ScorePass})},
	}}
	bridge := &recordBridge{}

	strategy := &Evolve{}
	result, err := strategy.Run(context.Background(), Environment{Client: client},
		RunRequest{Task: "write a haiku", Bridge: bridge})
	require.NoError(t, err)
	require.Equal(t, "answer B", result.Output)

	names := bridge.stepNames()
	require.Contains(t, names, StepGeneration)
	require.Contains(t, names, StepChoose)
	require.Contains(t, names, StepEvaluate)
}

func TestEvolveChoiceOutOfRangeKeepsFirst(t *testing.T) {
	client := &scriptedClient{script: []scripted{
		{text: "answer A"},
		{text: "answer B"},
		{text: jsonOf(ChooserChoice{Choice: 5})},
		{text: jsonOf(EvaluationFeedback{Score: ScorePass})},
	}}

	strategy := &Evolve{}
	result, err := strategy.Run(context.Background(), Environment{Client: client},
		RunRequest{Task: "write a haiku"})
	require.NoError(t, err)
	require.Equal(t, "answer A", result.Output)
}

func TestEvolveUndecodableChoiceKeepsFirst(t *testing.T) {
	client := &scriptedClient{script: []scripted{
		{text: "answer A"},
		{text: "answer B"},
		{text: "I like the second one better."},
		{text: jsonOf(EvaluationFeedback{Score: ScorePass})},
	}}

	strategy := &Evolve{}
	result, err := strategy.Run(context.Background(), Environment{Client: client},
		RunRequest{Task: "write a haiku"})
	require.NoError(t, err)
	require.Equal(t, "answer A", result.Output)
}

func TestEvolveUndecodableEvaluationReturnsWinner(t *testing.T) {
	client := &scriptedClient{script: []scripted{
		{text: "only answer"},
		{text: "looks good to me!"},
	}}

	strategy := &Evolve{}
	result, err := strategy.Run(context.Background(), Environment{Client: client},
		RunRequest{Task: "task", Params: Params{Options: map[string]interface{}{"parents": 1}}})
	require.NoError(t, err)
	require.Equal(t, "only answer", result.Output)
}

func TestEvolveFeedbackCarriesIntoNextGeneration(t *testing.T) {
	client := &scriptedClient{script: []scripted{
		{text: "a draft"},
		{text: jsonOf(EvaluationFeedback{Score: ScoreNeedsImprovement, Feedback: "cite your sources"})},
		{text: "a draft with sources"},
		{text: jsonOf(EvaluationFeedback{Score: ScorePass})},
	}}

	strategy := &Evolve{}
	result, err := strategy.Run(context.Background(), Environment{Client: client},
		RunRequest{Task: "task", Params: Params{Options: map[string]interface{}{"parents": 1}}})
	require.NoError(t, err)
	require.Equal(t, "a draft with sources", result.Output)

	// The second generation's prompt carries the winner and the critique.
	var texts string
	for _, m := range client.requests[2].Messages {
		texts += m.TextContent() + "\n"
	}
	require.Contains(t, texts, "a draft")
	require.Contains(t, texts, "cite your sources")
}

func TestEvolveGenerationsExhausted(t *testing.T) {
	client := &scriptedClient{script: []scripted{
		{text: "a draft"},
		{text: jsonOf(EvaluationFeedback{Score: ScoreFail, Feedback: "wrong entirely"})},
	}}

	strategy := &Evolve{}
	result, err := strategy.Run(context.Background(), Environment{Client: client},
		RunRequest{Task: "task", Params: Params{Options: map[string]interface{}{
			"parents":         1,
			"max_generations": 1,
		}}})
	require.NoError(t, err)
	require.Contains(t, result.Output, "generations")
	require.Contains(t, result.Output, "a draft")
}

func TestEvolveZeroMaxGenerationsMeansUnbounded(t *testing.T) {
	client := &scriptedClient{script: []scripted{
		{text: "first draft"},
		{text: jsonOf(EvaluationFeedback{Score: ScoreNeedsImprovement, Feedback: "too vague"})},
		{text: "second draft"},
		{text: jsonOf(EvaluationFeedback{Score: ScoreNeedsImprovement, Feedback: "still vague"})},
		{text: "third draft"},
		{text: jsonOf(EvaluationFeedback{Score: ScoreNeedsImprovement, Feedback: "closer"})},
		{text: "fourth draft"},
		{text: jsonOf(EvaluationFeedback{Score: ScorePass})},
	}}

	strategy := &Evolve{}
	result, err := strategy.Run(context.Background(), Environment{Client: client},
		RunRequest{Task: "task", Params: Params{Options: map[string]interface{}{
			"parents":         1,
			"max_generations": 0,
		}}})
	require.NoError(t, err)
	// Zero is no bound, not zero generations: the loop keeps sampling past
	// the default bound until the evaluator passes.
	require.Equal(t, "fourth draft", result.Output)
	require.Len(t, client.requests, 8)
}
