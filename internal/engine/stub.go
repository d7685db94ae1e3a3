package engine

import "context"

// Stub is a fail-fast Provider used when no model runtime is configured.
// It refuses to load rather than mock behavior, so misconfiguration
// surfaces at warmup instead of mid-request.
type Stub struct{}

// NewStub constructs the fail-fast provider.
func NewStub() Stub { return Stub{} }

func (Stub) LoadSeq2Seq(ctx context.Context, spec LoadSpec) (Tokenizer, Seq2Seq, error) {
	return nil, nil, ErrUnavailable("model runtime not configured (set runtime_url)")
}

func (Stub) LoadCausal(ctx context.Context, spec LoadSpec) (Tokenizer, Causal, error) {
	return nil, nil, ErrUnavailable("model runtime not configured (set runtime_url)")
}
