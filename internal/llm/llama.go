package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"llmq/internal/engine"
)

// Default model identities for the llama family. Tokenizer and weights
// ship together for this family.
const llamaModel = "neongeckocom/Llama-2-7b-chat-hf"

// Instruction-bracket markers. A user turn closes with [/INST]; an llm
// turn closes the model's reply and opens the next instruction block.
const (
	llamaUserMarker = "[/INST]"
	llamaLLMMarker  = "</s><s>[INST]"
)

const llamaPreamble = "[INST] <<SYS>>\nYou are a helpful, respectful and honest assistant. Always answer as helpfully as possible, while being safe. " +
	"Your answers should not include any harmful, unethical, racist, sexist, toxic, dangerous, or illegal content. " +
	"Please ensure that your responses are socially unbiased and positive in nature.\n\n" +
	"If a question does not make any sense, or is not factually coherent, explain why instead of answering something not correct. " +
	"If you don't know the answer to a question, please don't share false information.\n<</SYS>>\n\n"

// llamaRole maps a wire role to the family's instruction-bracket marker.
func llamaRole(r Role) (string, error) {
	switch r {
	case RoleUser:
		return llamaUserMarker, nil
	case RoleLLM:
		return llamaLLMMarker, nil
	}
	return "", ErrInvalidRole(string(r))
}

// Llama adapts the decoder-only chat family. Scoring runs over the joint
// prompt+target sequence, so the prompt-attributable prefix of each
// log-probability sequence must be discarded; the slice starts one token
// before the target boundary so the first target token's probability is
// still charged. That offset is a contract parameter of this family's
// runtime and must not drift.
type Llama struct {
	params   Params
	provider engine.Provider

	warmOnce sync.Once
	warmErr  error
	tok      engine.Tokenizer
	eng      engine.Causal
}

// NewLlama constructs the adapter. Like FastChat, engine construction is
// deferred to Warmup or first use.
func NewLlama(params Params, provider engine.Provider) *Llama {
	if params.Tokenizer == "" {
		params.Tokenizer = llamaModel
	}
	if params.Weights == "" {
		params.Weights = llamaModel
	}
	return &Llama{params: params, provider: provider}
}

func (l *Llama) Name() string { return "llama" }

// Warmup loads the tokenizer and engine exactly once.
func (l *Llama) Warmup(ctx context.Context) error {
	l.warmOnce.Do(func() {
		tok, eng, err := l.provider.LoadCausal(ctx, engine.LoadSpec{
			Model:        l.params.Weights,
			Tokenizer:    l.params.Tokenizer,
			IntraThreads: l.params.NumThreadsPerProcess,
			InterThreads: l.params.NumParallelProcesses,
		})
		if err != nil {
			l.warmErr = err
			return
		}
		l.tok, l.eng = tok, eng
	})
	return l.warmErr
}

func (l *Llama) AssemblePrompt(message string, history History) (string, error) {
	var b strings.Builder
	b.WriteString(llamaPreamble)
	for _, turn := range history.Tail(l.params.ContextDepth) {
		marker, err := llamaRole(turn.Role)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%s %s ", turn.Content, marker)
	}
	fmt.Fprintf(&b, "%s %s", message, llamaUserMarker)
	return b.String(), nil
}

func (l *Llama) Tokenize(ctx context.Context, text string) ([]string, error) {
	if err := l.Warmup(ctx); err != nil {
		return nil, err
	}
	return l.tok.Encode(ctx, text)
}

// Generate runs one greedy decode and trims surrounding whitespace from
// the decoded text.
func (l *Llama) Generate(ctx context.Context, prompt string) (string, error) {
	if err := l.Warmup(ctx); err != nil {
		return "", err
	}
	tokens, err := l.tok.Encode(ctx, prompt)
	if err != nil {
		return "", err
	}
	out, err := l.eng.Generate(ctx, tokens, engine.GenerateParams{
		BeamSize:          1,
		MaxLength:         l.params.MaxTokens,
		RepetitionPenalty: repetitionPenalty,
	})
	if err != nil {
		return "", err
	}
	text, err := l.tok.Decode(ctx, out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Score batches the joint prompt+target sequences and keeps, per target,
// only the log-probability suffix starting at promptLen-1.
func (l *Llama) Score(ctx context.Context, prompt string, targets []string) ([][]float64, error) {
	if err := l.Warmup(ctx); err != nil {
		return nil, err
	}
	promptTokens, err := l.tok.Encode(ctx, prompt)
	if err != nil {
		return nil, err
	}
	promptLen := len(promptTokens)
	joint := make([][]string, len(targets))
	for i, target := range targets {
		jt, err := l.tok.Encode(ctx, fmt.Sprintf("%s %s</s>", prompt, target))
		if err != nil {
			return nil, err
		}
		joint[i] = jt
	}
	seqs, err := l.eng.Score(ctx, joint)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(seqs))
	for i, logProbs := range seqs {
		start := promptLen - 1
		if start < 0 {
			start = 0
		}
		if start > len(logProbs) {
			start = len(logProbs)
		}
		out[i] = logProbs[start:]
	}
	return out, nil
}

func (l *Llama) Ask(ctx context.Context, message string, history History) (string, error) {
	return askBackend(ctx, l, message, history)
}

func (l *Llama) RankAnswers(ctx context.Context, question string, answers []string) ([]int, error) {
	return rankAnswers(ctx, l, question, answers)
}
