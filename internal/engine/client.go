package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Client talks to a batched model-runtime sidecar over HTTP. The sidecar
// owns the weights, the vocabulary and the compute thread pools; the
// client only moves token sequences and log-probabilities. One Client
// serves one loaded model and is safe for concurrent use.
type Client struct {
	baseURL        string
	reqTimeout     time.Duration
	connectTimeout time.Duration
	httpClient     *http.Client
}

// NewClient constructs a runtime client. All requests carry context-based
// deadlines; the http.Client itself has no global timeout.
func NewClient(baseURL string, reqTimeout, connectTimeout time.Duration) *Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		reqTimeout:     reqTimeout,
		connectTimeout: connectTimeout,
		httpClient:     &http.Client{Transport: tr, Timeout: 0},
	}
}

type loadRequest struct {
	Model        string `json:"model"`
	Tokenizer    string `json:"tokenizer"`
	IntraThreads int    `json:"intra_threads"`
	InterThreads int    `json:"inter_threads"`
}

type tokenizeRequest struct {
	Text string `json:"text"`
}

type tokenizeResponse struct {
	Tokens []string `json:"tokens"`
}

type detokenizeRequest struct {
	Tokens []string `json:"tokens"`
}

type detokenizeResponse struct {
	Text string `json:"text"`
}

type translateRequest struct {
	Source            []string `json:"source"`
	BeamSize          int      `json:"beam_size"`
	MaxDecodingLength int      `json:"max_decoding_length"`
	RepetitionPenalty float64  `json:"repetition_penalty"`
}

type generateRequest struct {
	Prompt                []string `json:"prompt"`
	MaxLength             int      `json:"max_length"`
	RepetitionPenalty     float64  `json:"repetition_penalty"`
	IncludePromptInResult bool     `json:"include_prompt_in_result"`
}

type tokensResponse struct {
	Tokens []string `json:"tokens"`
}

type scoreTargetsRequest struct {
	Sources [][]string `json:"sources"`
	Targets [][]string `json:"targets"`
}

type scoreRequest struct {
	Tokens [][]string `json:"tokens"`
}

type scoreResponse struct {
	LogProbs [][]float64 `json:"log_probs"`
}

// Load asks the runtime to materialize the named model and tokenizer with
// the given thread-pool sizing. Failure here means the process cannot
// serve and is reported as an unavailable error.
func (c *Client) Load(ctx context.Context, spec LoadSpec) error {
	err := c.post(ctx, "/v1/load", loadRequest{
		Model:        spec.Model,
		Tokenizer:    spec.Tokenizer,
		IntraThreads: spec.IntraThreads,
		InterThreads: spec.InterThreads,
	}, nil)
	if err != nil {
		return ErrUnavailable(fmt.Sprintf("runtime load %s: %v", spec.Model, err))
	}
	return nil
}

// Health probes the runtime liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ErrUnavailable(fmt.Sprintf("runtime unreachable: %v", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ErrUnavailable("runtime unhealthy: " + resp.Status)
	}
	return nil
}

// LoadSeq2Seq implements Provider for an encoder-decoder model.
func (c *Client) LoadSeq2Seq(ctx context.Context, spec LoadSpec) (Tokenizer, Seq2Seq, error) {
	if err := c.Load(ctx, spec); err != nil {
		return nil, nil, err
	}
	return c, c, nil
}

// LoadCausal implements Provider for a decoder-only model.
func (c *Client) LoadCausal(ctx context.Context, spec LoadSpec) (Tokenizer, Causal, error) {
	if err := c.Load(ctx, spec); err != nil {
		return nil, nil, err
	}
	return c, c, nil
}

func (c *Client) Encode(ctx context.Context, text string) ([]string, error) {
	var out tokenizeResponse
	if err := c.post(ctx, "/v1/tokenize", tokenizeRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

func (c *Client) Decode(ctx context.Context, tokens []string) (string, error) {
	var out detokenizeResponse
	if err := c.post(ctx, "/v1/detokenize", detokenizeRequest{Tokens: tokens}, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (c *Client) Translate(ctx context.Context, source []string, p GenerateParams) ([]string, error) {
	var out tokensResponse
	err := c.post(ctx, "/v1/translate", translateRequest{
		Source:            source,
		BeamSize:          p.BeamSize,
		MaxDecodingLength: p.MaxLength,
		RepetitionPenalty: p.RepetitionPenalty,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

func (c *Client) ScoreTargets(ctx context.Context, sources, targets [][]string) ([][]float64, error) {
	var out scoreResponse
	err := c.post(ctx, "/v1/score_targets", scoreTargetsRequest{Sources: sources, Targets: targets}, &out)
	if err != nil {
		return nil, err
	}
	return out.LogProbs, nil
}

func (c *Client) Generate(ctx context.Context, prompt []string, p GenerateParams) ([]string, error) {
	var out tokensResponse
	err := c.post(ctx, "/v1/generate", generateRequest{
		Prompt:                prompt,
		MaxLength:             p.MaxLength,
		RepetitionPenalty:     p.RepetitionPenalty,
		IncludePromptInResult: false,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

func (c *Client) Score(ctx context.Context, tokens [][]string) ([][]float64, error) {
	var out scoreResponse
	if err := c.post(ctx, "/v1/score", scoreRequest{Tokens: tokens}, &out); err != nil {
		return nil, err
	}
	return out.LogProbs, nil
}

// post sends one JSON request and decodes the JSON response into out when
// out is non-nil. The configured request timeout is applied via context.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	engineCalls.WithLabelValues(strings.TrimPrefix(path, "/v1/")).Inc()
	if c.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.reqTimeout)
		defer cancel()
	}
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.New("runtime http error: " + resp.Status + ": " + string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
