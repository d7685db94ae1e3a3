package types

import (
	"encoding/json"
	"testing"
)

func TestHistoryTurnDecode(t *testing.T) {
	var req AskRequest
	body := `{"message_id":"m","routing_key":"r","query":"q","history":[["user","hi"],["llm","hello"]]}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(req.History) != 2 || req.History[0].Role != "user" || req.History[1].Content != "hello" {
		t.Fatalf("history = %+v", req.History)
	}
}

func TestHistoryTurnRejectsWrongArity(t *testing.T) {
	var turn HistoryTurn
	for _, body := range []string{`["user"]`, `["user","hi","extra"]`, `"user"`} {
		if err := json.Unmarshal([]byte(body), &turn); err == nil {
			t.Fatalf("expected error for %s", body)
		}
	}
}

func TestHistoryTurnRoundTrip(t *testing.T) {
	b, err := json.Marshal(HistoryTurn{Role: "llm", Content: "hello"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `["llm","hello"]` {
		t.Fatalf("marshal = %s", b)
	}
}

func TestOptionsPreserveWireOrder(t *testing.T) {
	var opts Options
	// Key order here differs from Go map iteration on purpose.
	body := `{"zeta":"z answer","alpha":"a answer","mid":"m answer"}`
	if err := json.Unmarshal([]byte(body), &opts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	wantNicks := []string{"zeta", "alpha", "mid"}
	if len(opts) != len(wantNicks) {
		t.Fatalf("options = %+v", opts)
	}
	for i, nick := range wantNicks {
		if opts[i].Nick != nick {
			t.Fatalf("options order = %+v, want %v", opts, wantNicks)
		}
	}
}

func TestOptionsRejectNonObject(t *testing.T) {
	var opts Options
	if err := json.Unmarshal([]byte(`["a","b"]`), &opts); err == nil {
		t.Fatal("expected error for array options")
	}
}

func TestOptionsNull(t *testing.T) {
	var req OpinionRequest
	if err := json.Unmarshal([]byte(`{"message_id":"m","routing_key":"r","query":"q","options":null}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(req.Options) != 0 {
		t.Fatalf("options = %+v, want empty", req.Options)
	}
}

func TestOptionsMarshalKeepsOrder(t *testing.T) {
	opts := Options{{Nick: "b", Answer: "1"}, {Nick: "a", Answer: "2"}}
	b, err := json.Marshal(opts)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"b":"1","a":"2"}` {
		t.Fatalf("marshal = %s", b)
	}
}
