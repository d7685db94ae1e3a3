// Package engine holds the seams to the external model runtime: the
// tokenizer and the batched generation/scoring service. The neural engine
// itself is an opaque collaborator; adapters in internal/llm only see the
// interfaces below.
package engine

import "context"

// GenerateParams are the decoding parameters for one generation call.
// Both families decode greedily: beam size 1, fixed repetition penalty,
// bounded output length.
type GenerateParams struct {
	BeamSize          int
	MaxLength         int
	RepetitionPenalty float64
}

// Tokenizer converts between text and the model's token strings.
// Deterministic and side-effect-free once loaded.
type Tokenizer interface {
	Encode(ctx context.Context, text string) ([]string, error)
	Decode(ctx context.Context, tokens []string) (string, error)
}

// Seq2Seq is an encoder-decoder runtime. Generation consumes the source
// sequence; scoring is per (source, target) pair and the whole returned
// log-probability sequence belongs to the target.
type Seq2Seq interface {
	Translate(ctx context.Context, source []string, p GenerateParams) ([]string, error)
	// ScoreTargets scores targets[i] as a continuation of sources[i] and
	// returns one log-probability sequence per pair, in input order.
	ScoreTargets(ctx context.Context, sources, targets [][]string) ([][]float64, error)
}

// Causal is a decoder-only runtime. Scoring runs over joint prompt+target
// token sequences; the caller slices off the prompt-attributable prefix.
type Causal interface {
	// Generate decodes a continuation of prompt. The prompt is not
	// included in the result.
	Generate(ctx context.Context, prompt []string, p GenerateParams) ([]string, error)
	// Score returns one log-probability sequence per token sequence, in
	// input order.
	Score(ctx context.Context, tokens [][]string) ([][]float64, error)
}

// LoadSpec names the model assets and thread-pool sizing for one runtime
// load. Thread counts are fixed for the process lifetime.
type LoadSpec struct {
	Model        string
	Tokenizer    string
	IntraThreads int
	InterThreads int
}

// Provider constructs tokenizer and engine handles for a backend. Handles
// live for the process lifetime; a load failure (weights or vocabulary
// unavailable) is fatal to the caller and never retried per request.
type Provider interface {
	LoadSeq2Seq(ctx context.Context, spec LoadSpec) (Tokenizer, Seq2Seq, error)
	LoadCausal(ctx context.Context, spec LoadSpec) (Tokenizer, Causal, error)
}
