package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Wire schemas for the bus protocol. Every request names its own
// correlation id (message_id) and reply destination (routing_key); the
// dispatcher copies the id into the response and publishes to the named
// destination, never to a hard-coded queue.

// HistoryTurn is one ["role", "content"] pair on the wire.
type HistoryTurn struct {
	Role    string
	Content string
}

// UnmarshalJSON accepts exactly a two-element string array.
func (t *HistoryTurn) UnmarshalJSON(b []byte) error {
	var pair []string
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("history turn must be a [role, content] pair, got %d elements", len(pair))
	}
	t.Role, t.Content = pair[0], pair[1]
	return nil
}

// MarshalJSON renders the [role, content] array form.
func (t HistoryTurn) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{t.Role, t.Content})
}

// AskRequest asks for a free-form chat completion.
type AskRequest struct {
	MessageID  string        `json:"message_id"`
	RoutingKey string        `json:"routing_key"`
	Query      string        `json:"query"`
	History    []HistoryTurn `json:"history"`
}

// Envelope returns the correlation id and reply destination.
func (r AskRequest) Envelope() (string, string) { return r.MessageID, r.RoutingKey }

// ScoreRequest asks for a perplexity ranking of candidate answers.
type ScoreRequest struct {
	MessageID  string   `json:"message_id"`
	RoutingKey string   `json:"routing_key"`
	Query      string   `json:"query"`
	Responses  []string `json:"responses"`
}

// Envelope returns the correlation id and reply destination.
func (r ScoreRequest) Envelope() (string, string) { return r.MessageID, r.RoutingKey }

// Option is one nickname/answer pair of a discussion request.
type Option struct {
	Nick   string
	Answer string
}

// Options is the nickname→answer mapping of a discussion request. JSON
// objects carry no order in encoding/json, so decoding preserves the wire
// key order explicitly; best-answer selection stays deterministic.
type Options []Option

// UnmarshalJSON walks the object tokens to keep key order.
func (o *Options) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*o = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("options must be an object")
	}
	var out Options
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("options key must be a string")
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return err
		}
		out = append(out, Option{Nick: key, Answer: val})
	}
	*o = out
	return nil
}

// MarshalJSON renders the object form in stored order.
func (o Options) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, opt := range o {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(opt.Nick)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(opt.Answer)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// OpinionRequest asks for an opinion on the best of the offered answers.
type OpinionRequest struct {
	MessageID  string  `json:"message_id"`
	RoutingKey string  `json:"routing_key"`
	Query      string  `json:"query"`
	Options    Options `json:"options"`
}

// Envelope returns the correlation id and reply destination.
func (r OpinionRequest) Envelope() (string, string) { return r.MessageID, r.RoutingKey }

// AskResponse carries the generated chat reply.
type AskResponse struct {
	MessageID string `json:"message_id"`
	Response  string `json:"response"`
}

// ScoreResponse carries answer indices ordered best first.
type ScoreResponse struct {
	MessageID           string `json:"message_id"`
	SortedAnswerIndexes []int  `json:"sorted_answer_indexes"`
}

// OpinionResponse carries the synthesized opinion text.
type OpinionResponse struct {
	MessageID string `json:"message_id"`
	Opinion   string `json:"opinion"`
}
