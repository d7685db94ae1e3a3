// Package dispatch routes bus messages to backend operations: a pool of
// workers on the ask queue, one worker each on the score and discussion
// queues. Workers hold no cross-request state; each request carries its
// own correlation id and reply destination.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"llmq/internal/bus"
	"llmq/internal/llm"
	"llmq/pkg/types"
)

// noOptionsOpinion is the fixed fallback for discussion requests that
// carry no options. Not an error: defined output for defined empty input.
const noOptionsOpinion = "Sorry, but I got no options to choose from."

// Dispatcher owns one backend and fans queue consumption out across
// workers. The backend's engine handles concurrent batched calls; the
// dispatcher performs no locking around them.
type Dispatcher struct {
	backend    llm.Backend
	transport  bus.Bus
	askWorkers int
	log        zerolog.Logger
}

// New constructs a dispatcher. askWorkers sizes the ask pool; values below
// one are raised to one.
func New(backend llm.Backend, transport bus.Bus, askWorkers int, log zerolog.Logger) *Dispatcher {
	if askWorkers < 1 {
		askWorkers = 1
	}
	return &Dispatcher{
		backend:    backend,
		transport:  transport,
		askWorkers: askWorkers,
		log:        log.With().Str("model", backend.Name()).Logger(),
	}
}

// Queue names follow the bus protocol: {model}_input and friends.
func (d *Dispatcher) AskQueue() string        { return d.backend.Name() + "_input" }
func (d *Dispatcher) ScoreQueue() string      { return d.backend.Name() + "_score_input" }
func (d *Dispatcher) DiscussionQueue() string { return d.backend.Name() + "_discussion_input" }

// AskWorkers reports the configured ask pool size.
func (d *Dispatcher) AskWorkers() int { return d.askWorkers }

// Run serves all three queues until ctx is canceled or the bus closes.
// Each worker blocks on receipt and processes one message to completion
// before the next; ordering across workers is not guaranteed.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.askWorkers; i++ {
		msgs, err := d.transport.Consume(d.AskQueue())
		if err != nil {
			return fmt.Errorf("consume %s: %w", d.AskQueue(), err)
		}
		worker := i
		g.Go(func() error {
			return d.serve(ctx, msgs, d.AskQueue(), worker, d.handleAsk)
		})
	}
	scoreMsgs, err := d.transport.Consume(d.ScoreQueue())
	if err != nil {
		return fmt.Errorf("consume %s: %w", d.ScoreQueue(), err)
	}
	g.Go(func() error {
		return d.serve(ctx, scoreMsgs, d.ScoreQueue(), 0, d.handleScore)
	})
	discussionMsgs, err := d.transport.Consume(d.DiscussionQueue())
	if err != nil {
		return fmt.Errorf("consume %s: %w", d.DiscussionQueue(), err)
	}
	g.Go(func() error {
		return d.serve(ctx, discussionMsgs, d.DiscussionQueue(), 0, d.handleOpinion)
	})
	return g.Wait()
}

// serve is the per-worker receive loop. Handler failures are logged and
// counted; the worker keeps serving subsequent messages.
func (d *Dispatcher) serve(ctx context.Context, msgs <-chan bus.Delivery, queue string, worker int, handle func(context.Context, []byte) error) error {
	workersGauge.WithLabelValues(queue).Inc()
	defer workersGauge.WithLabelValues(queue).Dec()
	log := d.log.With().Str("queue", queue).Int("worker", worker).Logger()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case dlv, ok := <-msgs:
			if !ok {
				return nil
			}
			start := time.Now()
			err := handle(ctx, dlv.Body)
			requestDuration.WithLabelValues(queue).Observe(time.Since(start).Seconds())
			switch {
			case err == nil:
				requestsTotal.WithLabelValues(queue, "ok").Inc()
			case errors.Is(err, context.Canceled):
				return err
			default:
				requestsTotal.WithLabelValues(queue, "error").Inc()
				log.Error().Err(err).Msg("request failed")
			}
		}
	}
}

func (d *Dispatcher) reply(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return d.transport.Publish(ctx, routingKey, body)
}

func (d *Dispatcher) handleAsk(ctx context.Context, body []byte) error {
	var req types.AskRequest
	if err := decodeRequest(body, &req); err != nil {
		return err
	}
	history := make(llm.History, len(req.History))
	for i, turn := range req.History {
		// Role validity is checked during prompt assembly, not here.
		history[i] = llm.ChatTurn{Role: llm.Role(turn.Role), Content: turn.Content}
	}
	response, err := d.backend.Ask(ctx, req.Query, history)
	if err != nil {
		return fmt.Errorf("ask %s: %w", req.MessageID, err)
	}
	if err := d.reply(ctx, req.RoutingKey, types.AskResponse{MessageID: req.MessageID, Response: response}); err != nil {
		return err
	}
	d.log.Info().Str("message_id", req.MessageID).Msg("handled ask request")
	return nil
}

func (d *Dispatcher) handleScore(ctx context.Context, body []byte) error {
	var req types.ScoreRequest
	if err := decodeRequest(body, &req); err != nil {
		return err
	}
	// Empty candidate lists are valid input: empty ranking, no engine call.
	sorted := []int{}
	if len(req.Responses) > 0 {
		var err error
		sorted, err = d.backend.RankAnswers(ctx, req.Query, req.Responses)
		if err != nil {
			return fmt.Errorf("score %s: %w", req.MessageID, err)
		}
	}
	if err := d.reply(ctx, req.RoutingKey, types.ScoreResponse{MessageID: req.MessageID, SortedAnswerIndexes: sorted}); err != nil {
		return err
	}
	d.log.Info().Str("message_id", req.MessageID).Msg("handled score request")
	return nil
}

func (d *Dispatcher) handleOpinion(ctx context.Context, body []byte) error {
	var req types.OpinionRequest
	if err := decodeRequest(body, &req); err != nil {
		return err
	}
	opinion := noOptionsOpinion
	if len(req.Options) > 0 {
		answers := make([]string, len(req.Options))
		for i, opt := range req.Options {
			answers[i] = opt.Answer
		}
		sorted, err := d.backend.RankAnswers(ctx, req.Query, answers)
		if err != nil {
			return fmt.Errorf("opinion %s: %w", req.MessageID, err)
		}
		best := req.Options[sorted[0]]
		opinion, err = d.askForOpinion(ctx, best.Nick, req.Query, best.Answer)
		if err != nil {
			return fmt.Errorf("opinion %s: %w", req.MessageID, err)
		}
	}
	if err := d.reply(ctx, req.RoutingKey, types.OpinionResponse{MessageID: req.MessageID, Opinion: opinion}); err != nil {
		return err
	}
	d.log.Info().Str("message_id", req.MessageID).Msg("handled opinion request")
	return nil
}

// askForOpinion asks the model to justify the best-ranked answer with a
// fixed-template, zero-history prompt.
func (d *Dispatcher) askForOpinion(ctx context.Context, nick, question, answer string) (string, error) {
	prompt := fmt.Sprintf("Why Answer %q to the Question %q generated by Bot named %q is good?", answer, question, nick)
	opinion, err := d.backend.Ask(ctx, prompt, nil)
	if err != nil {
		return "", err
	}
	d.log.Info().Str("prompt", prompt).Msg("received opinion")
	return opinion, nil
}
