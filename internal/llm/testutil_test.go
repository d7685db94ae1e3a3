package llm

import (
	"context"
	"strings"

	"llmq/internal/engine"
)

// fieldTokenizer splits on whitespace. Deterministic and cheap, enough to
// exercise the token-count-sensitive paths.
type fieldTokenizer struct{}

func (fieldTokenizer) Encode(ctx context.Context, text string) ([]string, error) {
	return strings.Fields(text), nil
}

func (fieldTokenizer) Decode(ctx context.Context, tokens []string) (string, error) {
	return strings.Join(tokens, " "), nil
}

// scriptedSeq2Seq counts calls and replays scripted outputs.
type scriptedSeq2Seq struct {
	translateCalls int
	scoreCalls     int

	translateOut []string
	scores       [][]float64

	lastParams  engine.GenerateParams
	lastSource  []string
	lastSources [][]string
	lastTargets [][]string
}

func (e *scriptedSeq2Seq) Translate(ctx context.Context, source []string, p engine.GenerateParams) ([]string, error) {
	e.translateCalls++
	e.lastSource = source
	e.lastParams = p
	return e.translateOut, nil
}

func (e *scriptedSeq2Seq) ScoreTargets(ctx context.Context, sources, targets [][]string) ([][]float64, error) {
	e.scoreCalls++
	e.lastSources = sources
	e.lastTargets = targets
	return e.scores, nil
}

// scriptedCausal mirrors scriptedSeq2Seq for the decoder-only runtime.
type scriptedCausal struct {
	generateCalls int
	scoreCalls    int

	generateOut []string
	scores      [][]float64

	lastParams engine.GenerateParams
	lastPrompt []string
	lastTokens [][]string
}

func (e *scriptedCausal) Generate(ctx context.Context, prompt []string, p engine.GenerateParams) ([]string, error) {
	e.generateCalls++
	e.lastPrompt = prompt
	e.lastParams = p
	return e.generateOut, nil
}

func (e *scriptedCausal) Score(ctx context.Context, tokens [][]string) ([][]float64, error) {
	e.scoreCalls++
	e.lastTokens = tokens
	return e.scores, nil
}

// fixedProvider hands out pre-built handles and counts loads.
type fixedProvider struct {
	tok    engine.Tokenizer
	s2s    engine.Seq2Seq
	causal engine.Causal
	err    error

	seq2seqLoads int
	causalLoads  int
	lastSpec     engine.LoadSpec
}

func (p *fixedProvider) LoadSeq2Seq(ctx context.Context, spec engine.LoadSpec) (engine.Tokenizer, engine.Seq2Seq, error) {
	p.seq2seqLoads++
	p.lastSpec = spec
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.tok, p.s2s, nil
}

func (p *fixedProvider) LoadCausal(ctx context.Context, spec engine.LoadSpec) (engine.Tokenizer, engine.Causal, error) {
	p.causalLoads++
	p.lastSpec = spec
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.tok, p.causal, nil
}
