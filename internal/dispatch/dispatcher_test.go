package dispatch

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"llmq/internal/bus"
	"llmq/internal/llm"
	"llmq/pkg/types"
)

// fakeBackend counts operations and replays scripted results.
type fakeBackend struct {
	mu        sync.Mutex
	askCalls  int
	rankCalls int

	askReply    string
	rank        []int
	lastAsk     string
	lastHistory llm.History
	lastAnswers []string
}

func (f *fakeBackend) Name() string                          { return "fake" }
func (f *fakeBackend) Warmup(ctx context.Context) error      { return nil }
func (f *fakeBackend) AssemblePrompt(message string, history llm.History) (string, error) {
	return message, nil
}
func (f *fakeBackend) Tokenize(ctx context.Context, text string) ([]string, error) {
	return strings.Fields(text), nil
}
func (f *fakeBackend) Generate(ctx context.Context, prompt string) (string, error) {
	return f.askReply, nil
}
func (f *fakeBackend) Score(ctx context.Context, prompt string, targets []string) ([][]float64, error) {
	return make([][]float64, len(targets)), nil
}

func (f *fakeBackend) Ask(ctx context.Context, message string, history llm.History) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.askCalls++
	f.lastAsk = message
	f.lastHistory = history
	return f.askReply, nil
}

func (f *fakeBackend) RankAnswers(ctx context.Context, question string, answers []string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rankCalls++
	f.lastAnswers = answers
	return f.rank, nil
}

func (f *fakeBackend) calls() (ask, rank int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.askCalls, f.rankCalls
}

// startDispatcher runs a dispatcher over a fresh memory bus and returns a
// stop func.
func startDispatcher(t *testing.T, backend llm.Backend, askWorkers int) (*bus.Memory, func()) {
	t.Helper()
	transport := bus.NewMemory()
	d := New(backend, transport, askWorkers, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	return transport, func() {
		cancel()
		<-done
		transport.Close()
	}
}

func publish(t *testing.T, transport *bus.Memory, queue string, payload any) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := transport.Publish(context.Background(), queue, body); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func receive(t *testing.T, transport *bus.Memory, queue string) []byte {
	t.Helper()
	msgs, err := transport.Consume(queue)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	select {
	case dlv := <-msgs:
		return dlv.Body
	case <-time.After(2 * time.Second):
		t.Fatalf("no reply on %s", queue)
		return nil
	}
}

func TestAskRoundTrip(t *testing.T) {
	backend := &fakeBackend{askReply: "doing well"}
	transport, stop := startDispatcher(t, backend, 2)
	defer stop()

	publish(t, transport, "fake_input", types.AskRequest{
		MessageID:  "m1",
		RoutingKey: "reply.ask",
		Query:      "how are you?",
		History:    []types.HistoryTurn{{Role: "user", Content: "hi"}, {Role: "llm", Content: "hello"}},
	})

	var resp types.AskResponse
	if err := json.Unmarshal(receive(t, transport, "reply.ask"), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.MessageID != "m1" || resp.Response != "doing well" {
		t.Fatalf("response = %+v", resp)
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.lastAsk != "how are you?" {
		t.Fatalf("backend got query %q", backend.lastAsk)
	}
	if len(backend.lastHistory) != 2 || backend.lastHistory[1].Role != llm.RoleLLM || backend.lastHistory[1].Content != "hello" {
		t.Fatalf("backend got history %+v", backend.lastHistory)
	}
}

func TestScoreRoundTrip(t *testing.T) {
	backend := &fakeBackend{rank: []int{1, 2, 0}}
	transport, stop := startDispatcher(t, backend, 1)
	defer stop()

	publish(t, transport, "fake_score_input", types.ScoreRequest{
		MessageID:  "m2",
		RoutingKey: "reply.score",
		Query:      "q",
		Responses:  []string{"a0", "a1", "a2"},
	})

	var resp types.ScoreResponse
	if err := json.Unmarshal(receive(t, transport, "reply.score"), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.MessageID != "m2" {
		t.Fatalf("response = %+v", resp)
	}
	want := []int{1, 2, 0}
	for i := range want {
		if resp.SortedAnswerIndexes[i] != want[i] {
			t.Fatalf("indexes = %v, want %v", resp.SortedAnswerIndexes, want)
		}
	}
}

func TestScoreEmptyResponsesSkipsEngine(t *testing.T) {
	backend := &fakeBackend{}
	transport, stop := startDispatcher(t, backend, 1)
	defer stop()

	publish(t, transport, "fake_score_input", types.ScoreRequest{
		MessageID:  "m3",
		RoutingKey: "reply.score-empty",
		Query:      "q",
	})

	var resp types.ScoreResponse
	if err := json.Unmarshal(receive(t, transport, "reply.score-empty"), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.SortedAnswerIndexes == nil || len(resp.SortedAnswerIndexes) != 0 {
		t.Fatalf("indexes = %v, want []", resp.SortedAnswerIndexes)
	}
	if _, rank := backend.calls(); rank != 0 {
		t.Fatalf("rank calls = %d, want 0", rank)
	}
}

func TestOpinionEmptyOptionsFallback(t *testing.T) {
	backend := &fakeBackend{}
	transport, stop := startDispatcher(t, backend, 1)
	defer stop()

	publish(t, transport, "fake_discussion_input", types.OpinionRequest{
		MessageID:  "m4",
		RoutingKey: "reply.opinion-empty",
		Query:      "q",
	})

	var resp types.OpinionResponse
	if err := json.Unmarshal(receive(t, transport, "reply.opinion-empty"), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Opinion != noOptionsOpinion {
		t.Fatalf("opinion = %q, want fallback", resp.Opinion)
	}
	if ask, rank := backend.calls(); ask != 0 || rank != 0 {
		t.Fatalf("engine touched: ask=%d rank=%d", ask, rank)
	}
}

func TestOpinionSingleOption(t *testing.T) {
	backend := &fakeBackend{askReply: "because it is right", rank: []int{0}}
	transport, stop := startDispatcher(t, backend, 1)
	defer stop()

	publish(t, transport, "fake_discussion_input", types.OpinionRequest{
		MessageID:  "m5",
		RoutingKey: "reply.opinion",
		Query:      "what is the answer?",
		Options:    types.Options{{Nick: "nick1", Answer: "good answer"}},
	})

	var resp types.OpinionResponse
	if err := json.Unmarshal(receive(t, transport, "reply.opinion"), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Opinion != "because it is right" {
		t.Fatalf("opinion = %q", resp.Opinion)
	}
	if ask, rank := backend.calls(); ask != 1 || rank != 1 {
		t.Fatalf("want exactly one rank and one ask call, got ask=%d rank=%d", ask, rank)
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	for _, part := range []string{"good answer", "what is the answer?", "nick1"} {
		if !strings.Contains(backend.lastAsk, part) {
			t.Fatalf("justification prompt %q missing %q", backend.lastAsk, part)
		}
	}
	if len(backend.lastHistory) != 0 {
		t.Fatalf("justification ask must use empty history, got %+v", backend.lastHistory)
	}
}

func TestOpinionPicksBestRankedOption(t *testing.T) {
	backend := &fakeBackend{askReply: "ok", rank: []int{2, 0, 1}}
	transport, stop := startDispatcher(t, backend, 1)
	defer stop()

	publish(t, transport, "fake_discussion_input", types.OpinionRequest{
		MessageID:  "m6",
		RoutingKey: "reply.opinion-best",
		Query:      "q",
		Options: types.Options{
			{Nick: "a", Answer: "first"},
			{Nick: "b", Answer: "second"},
			{Nick: "c", Answer: "third"},
		},
	})
	receive(t, transport, "reply.opinion-best")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if !strings.Contains(backend.lastAsk, `"third"`) || !strings.Contains(backend.lastAsk, `"c"`) {
		t.Fatalf("prompt should reference option c/third: %q", backend.lastAsk)
	}
}

func TestMalformedMessageDoesNotKillWorker(t *testing.T) {
	backend := &fakeBackend{askReply: "still alive"}
	transport, stop := startDispatcher(t, backend, 1)
	defer stop()

	if err := transport.Publish(context.Background(), "fake_input", []byte("{not json")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// A request without routing_key is dropped too.
	publish(t, transport, "fake_input", map[string]string{"message_id": "x"})

	publish(t, transport, "fake_input", types.AskRequest{
		MessageID:  "m7",
		RoutingKey: "reply.after-garbage",
		Query:      "ping",
	})
	var resp types.AskResponse
	if err := json.Unmarshal(receive(t, transport, "reply.after-garbage"), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Response != "still alive" {
		t.Fatalf("response = %+v", resp)
	}
}
