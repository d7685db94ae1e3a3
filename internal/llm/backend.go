package llm

import (
	"context"
	"fmt"

	"llmq/internal/engine"
)

// Backend is the contract every model adapter satisfies. Prompt grammar,
// role markers and scoring-window conventions are adapter-specific; the
// ranking and dispatch layers above stay model-agnostic on this surface.
type Backend interface {
	// Name is the model family identifier used in queue names and logs.
	Name() string
	// Warmup forces tokenizer and engine construction. Idempotent and safe
	// for concurrent callers; only the first call does work. Construction
	// failure is fatal to the process, not retried per request.
	Warmup(ctx context.Context) error
	// AssemblePrompt renders the system preamble, the most recent
	// ContextDepth turns of history and the new message using the model's
	// role markers. Returns an invalid-role error for unknown turn roles.
	AssemblePrompt(message string, history History) (string, error)
	// Tokenize splits text with the model's tokenizer.
	Tokenize(ctx context.Context, text string) ([]string, error)
	// Generate runs one greedy decode of prompt and returns the
	// post-processed output text. The prompt is never echoed back.
	Generate(ctx context.Context, prompt string) (string, error)
	// Score returns one log-probability sequence per target, in target
	// order, for targets continuing prompt. All targets go to the engine
	// in a single batched call.
	Score(ctx context.Context, prompt string, targets []string) ([][]float64, error)
	// Ask composes AssemblePrompt and Generate.
	Ask(ctx context.Context, message string, history History) (string, error)
	// RankAnswers orders answer indices from best (lowest perplexity) to
	// worst. An empty answers slice short-circuits to an empty ranking
	// without touching the engine.
	RankAnswers(ctx context.Context, question string, answers []string) ([]int, error)
}

// Params are the immutable per-model tunables shared by both adapters.
// They are read-only after construction; no worker mutates them.
type Params struct {
	// ContextDepth bounds how many of the most recent history turns are
	// rendered into a prompt.
	ContextDepth int
	// MaxTokens bounds the generated output length.
	MaxTokens int
	// NumParallelProcesses sizes the ask worker pool and the engine's
	// inter-op thread pool.
	NumParallelProcesses int
	// NumThreadsPerProcess sizes the engine's intra-op thread pool.
	NumThreadsPerProcess int
	// Tokenizer and Weights override the per-family default model
	// identities when non-empty.
	Tokenizer string
	Weights   string
}

// repetitionPenalty is shared by both families' greedy decode.
const repetitionPenalty = 1.2

// New selects a backend implementation by model family name.
func New(name string, params Params, provider engine.Provider) (Backend, error) {
	switch name {
	case "fastchat":
		return NewFastChat(params, provider), nil
	case "llama":
		return NewLlama(params, provider), nil
	}
	return nil, fmt.Errorf("unknown model family: %s", name)
}

// askBackend is the shared assemble-then-generate path behind Ask.
func askBackend(ctx context.Context, b Backend, message string, history History) (string, error) {
	prompt, err := b.AssemblePrompt(message, history)
	if err != nil {
		return "", err
	}
	return b.Generate(ctx, prompt)
}

// rankAnswers scores all answers against a zero-history prompt for the
// question in one batched engine call and ranks them by perplexity.
func rankAnswers(ctx context.Context, b Backend, question string, answers []string) ([]int, error) {
	if len(answers) == 0 {
		return []int{}, nil
	}
	prompt, err := b.AssemblePrompt(question, nil)
	if err != nil {
		return nil, err
	}
	seqs, err := b.Score(ctx, prompt, answers)
	if err != nil {
		return nil, err
	}
	if len(seqs) != len(answers) {
		return nil, fmt.Errorf("engine returned %d score sequences for %d targets", len(seqs), len(answers))
	}
	ppls := make([]float64, len(seqs))
	for i, logProbs := range seqs {
		ppls[i] = Perplexity(logProbs)
	}
	return rankByPerplexity(ppls), nil
}
