package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"llmq/internal/engine"
)

// Default model identities for the fastchat family.
const (
	fastchatTokenizer = "google/flan-t5-xl"
	fastchatWeights   = "neongeckocom/fastchat-t5-3b-v1.0"
)

// fastchatPreamble seeds every prompt with one worked example exchange to
// bias answer style. Never empty, even for zero-history requests.
const fastchatPreamble = "A chat between a curious human and an artificial intelligence assistant. " +
	"The assistant gives helpful, detailed, and polite answers to the human's questions.\n" +
	"### Human: What are the key differences between renewable and non-renewable energy sources?\n" +
	"### Assistant: Renewable energy sources are those that can be " +
	"replenished naturally in a relatively short amount of time, such as solar, wind, hydro, " +
	"geothermal, and biomass. Non-renewable energy sources, on the other hand, " +
	"are finite and will eventually be depleted, such as coal, oil, and natural gas.\n"

// fastchatRole maps a wire role to the family's textual marker.
func fastchatRole(r Role) (string, error) {
	switch r {
	case RoleUser:
		return "Human", nil
	case RoleLLM:
		return "Assistant", nil
	}
	return "", ErrInvalidRole(string(r))
}

// FastChat adapts the encoder-decoder chat family: plain Human/Assistant
// markers and pairwise (source, target) scoring where the whole returned
// log-probability sequence is target-attributable.
type FastChat struct {
	params   Params
	provider engine.Provider

	warmOnce sync.Once
	warmErr  error
	tok      engine.Tokenizer
	eng      engine.Seq2Seq
}

// NewFastChat constructs the adapter. The tokenizer and engine are not
// touched until Warmup or the first operation.
func NewFastChat(params Params, provider engine.Provider) *FastChat {
	if params.Tokenizer == "" {
		params.Tokenizer = fastchatTokenizer
	}
	if params.Weights == "" {
		params.Weights = fastchatWeights
	}
	return &FastChat{params: params, provider: provider}
}

func (f *FastChat) Name() string { return "fastchat" }

// Warmup loads the tokenizer and engine exactly once.
func (f *FastChat) Warmup(ctx context.Context) error {
	f.warmOnce.Do(func() {
		tok, eng, err := f.provider.LoadSeq2Seq(ctx, engine.LoadSpec{
			Model:        f.params.Weights,
			Tokenizer:    f.params.Tokenizer,
			IntraThreads: f.params.NumThreadsPerProcess,
			InterThreads: f.params.NumParallelProcesses,
		})
		if err != nil {
			f.warmErr = err
			return
		}
		f.tok, f.eng = tok, eng
	})
	return f.warmErr
}

func (f *FastChat) AssemblePrompt(message string, history History) (string, error) {
	var b strings.Builder
	b.WriteString(fastchatPreamble)
	for _, turn := range history.Tail(f.params.ContextDepth) {
		marker, err := fastchatRole(turn.Role)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "### %s: %s\n", marker, turn.Content)
	}
	fmt.Fprintf(&b, "### Human: %s\n### Assistant:", message)
	return b.String(), nil
}

func (f *FastChat) Tokenize(ctx context.Context, text string) ([]string, error) {
	if err := f.Warmup(ctx); err != nil {
		return nil, err
	}
	return f.tok.Encode(ctx, text)
}

// Generate runs one greedy decode. The engine output is decoded verbatim;
// this family does no whitespace post-processing.
func (f *FastChat) Generate(ctx context.Context, prompt string) (string, error) {
	if err := f.Warmup(ctx); err != nil {
		return "", err
	}
	tokens, err := f.tok.Encode(ctx, prompt)
	if err != nil {
		return "", err
	}
	out, err := f.eng.Translate(ctx, tokens, engine.GenerateParams{
		BeamSize:          1,
		MaxLength:         f.params.MaxTokens,
		RepetitionPenalty: repetitionPenalty,
	})
	if err != nil {
		return "", err
	}
	return f.tok.Decode(ctx, out)
}

// Score batches all targets against one shared source prompt.
func (f *FastChat) Score(ctx context.Context, prompt string, targets []string) ([][]float64, error) {
	if err := f.Warmup(ctx); err != nil {
		return nil, err
	}
	promptTokens, err := f.tok.Encode(ctx, prompt)
	if err != nil {
		return nil, err
	}
	sources := make([][]string, len(targets))
	targetTokens := make([][]string, len(targets))
	for i, target := range targets {
		sources[i] = promptTokens
		tt, err := f.tok.Encode(ctx, target)
		if err != nil {
			return nil, err
		}
		targetTokens[i] = tt
	}
	return f.eng.ScoreTargets(ctx, sources, targetTokens)
}

func (f *FastChat) Ask(ctx context.Context, message string, history History) (string, error) {
	return askBackend(ctx, f, message, history)
}

func (f *FastChat) RankAnswers(ctx context.Context, question string, answers []string) ([]int, error) {
	return rankAnswers(ctx, f, question, answers)
}
