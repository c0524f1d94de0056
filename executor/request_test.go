package executor

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/caffeineduck/kiprun/stdin"
)

func TestNewExecRequest(t *testing.T) {
	ch := stdin.New()
	req, err := NewExecRequest("yazdır 5.", "en", ch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Mode() != ModeExecute {
		t.Errorf("expected execute mode, got %v", req.Mode())
	}
	if req.Stdin() != ch {
		t.Error("expected request to carry the channel")
	}

	if _, err := NewExecRequest("", "TR!", nil); !errors.Is(err, ErrInvalidLang) {
		t.Errorf("expected ErrInvalidLang, got %v", err)
	}
}

func TestNewCodegenRequest(t *testing.T) {
	req, err := NewCodegenRequest("yazdır 5.", "js", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Mode() != ModeCodegen || req.Target() != "js" {
		t.Errorf("unexpected request %+v", req)
	}

	for _, target := range []string{"", "JS", "../js", "a b"} {
		if _, err := NewCodegenRequest("", target, ""); !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("target %q: expected ErrInvalidTarget, got %v", target, err)
		}
	}
}

func TestEventKindTerminal(t *testing.T) {
	tests := []struct {
		kind     EventKind
		terminal bool
	}{
		{EventStdout, false},
		{EventStderr, false},
		{EventStdin, false},
		{EventExit, true},
		{EventError, true},
	}
	for _, tt := range tests {
		if got := tt.kind.Terminal(); got != tt.terminal {
			t.Errorf("%v.Terminal() = %v, want %v", tt.kind, got, tt.terminal)
		}
	}
}

func TestEventJSON(t *testing.T) {
	data, err := json.Marshal(Event{Kind: EventExit, ExitCode: 2})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"type":"exit","code":2}` {
		t.Errorf("unexpected encoding %s", data)
	}

	var ev Event
	if err := json.Unmarshal([]byte(`{"type":"stderr","line":"uyarı"}`), &ev); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if ev.Kind != EventStderr || ev.Line != "uyarı" {
		t.Errorf("unexpected event %+v", ev)
	}

	if err := json.Unmarshal([]byte(`{"type":"bogus"}`), &ev); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestSuggest(t *testing.T) {
	if got := suggest("jss", []string{"js"}); got != "js" {
		t.Errorf("expected js, got %q", got)
	}
	if got := suggest("python", []string{"js"}); got != "" {
		t.Errorf("expected no suggestion, got %q", got)
	}
}
