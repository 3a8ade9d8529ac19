package state

import (
	"strings"
	"testing"

	"github.com/user/agentlink/internal/types"
	"github.com/user/agentlink/internal/wire"
)

func TestStreamingAccumulates(t *testing.T) {
	a := NewApplier(NewStore(), nil)
	id := a.StartStreaming("s1")
	if !strings.HasPrefix(id, "stream-") {
		t.Errorf("expected placeholder id, got %q", id)
	}

	out := "ok"
	events := []wire.StreamEvent{
		wire.Content{Text: "Hel"},
		wire.Reasoning{Text: "think"},
		wire.ToolCallStart{Call: types.ToolCall{ID: "t1", Name: "bash", Input: []byte(`{"cmd":"ls"}`)}},
		wire.Content{Text: "lo"},
		wire.ToolCallEnd{Result: types.ToolCallResult{ID: "t1", Output: &out}},
		wire.ToolCallEnd{Result: types.ToolCallResult{ID: "t2", IsError: true}},
	}
	for _, ev := range events {
		a.ApplyStream(ev)
	}

	sm, ok := a.Store().Streaming()
	if !ok {
		t.Fatal("expected streaming record")
	}
	if sm.Content != "Hello" || sm.Reasoning != "think" {
		t.Errorf("unexpected deltas %q / %q", sm.Content, sm.Reasoning)
	}
	if len(sm.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(sm.ToolCalls))
	}
	if tc := sm.ToolCalls[0]; tc.Status != types.ToolCallSuccess || tc.Output == nil || *tc.Output != "ok" || tc.Input != `{"cmd":"ls"}` {
		t.Errorf("unexpected tool call %#v", tc)
	}
	if tc := sm.ToolCalls[1]; tc.Status != types.ToolCallError {
		t.Errorf("expected orphan result to be upserted as error, got %#v", tc)
	}
	if sm.Complete {
		t.Error("expected record to be incomplete")
	}
}

func TestStreamingDoneAndCommit(t *testing.T) {
	a := NewApplier(NewStore(), nil)
	a.StartStreaming("s1")
	a.ApplyStream(wire.Content{Text: "hi"})
	final := types.Message{ID: "m9", SessionID: "s1", Role: types.RoleAssistant}
	a.ApplyStream(wire.Done{Message: final})

	sm, _ := a.Store().Streaming()
	if !sm.Complete || sm.MessageID != "m9" {
		t.Errorf("expected completed record for m9, got %#v", sm)
	}

	a.ApplyStream(wire.Content{Text: "late"})
	if sm, _ := a.Store().Streaming(); sm.Content != "hi" {
		t.Errorf("expected deltas after completion to be ignored, got %q", sm.Content)
	}

	a.CommitStreaming(final)
	if _, ok := a.Store().Streaming(); ok {
		t.Error("expected streaming record cleared")
	}
	if msgs := a.Store().Messages("s1"); len(msgs) != 1 || msgs[0].ID != "m9" {
		t.Errorf("expected committed message, got %#v", msgs)
	}
}

func TestStreamingError(t *testing.T) {
	a := NewApplier(NewStore(), nil)
	a.StartStreaming("s1")
	a.ApplyStream(wire.StreamError{Message: "rate limited"})

	sm, _ := a.Store().Streaming()
	if !sm.Complete || sm.Err != "rate limited" {
		t.Errorf("expected error record, got %#v", sm)
	}
}

func TestStreamEventWithoutReplyIgnored(t *testing.T) {
	a := NewApplier(NewStore(), nil)
	a.ApplyStream(wire.Content{Text: "orphan"})
	if _, ok := a.Store().Streaming(); ok {
		t.Error("expected no streaming record")
	}
}

func TestCommitAfterSessionDeletedIsDropped(t *testing.T) {
	a := NewApplier(NewStore(), nil)
	feed(t, a, wire.LabelSessionCreated, `{"info":{"id":"s1"}}`)
	a.StartStreaming("s1")
	a.ApplyStream(wire.Content{Text: "partial"})

	feed(t, a, wire.LabelSessionDeleted, `{"info":{"id":"s1"}}`)
	a.CommitStreaming(types.Message{ID: "m1", SessionID: "s1", Role: types.RoleAssistant})

	if msgs := a.Store().Messages("s1"); len(msgs) != 0 {
		t.Errorf("expected no messages for deleted session, got %#v", msgs)
	}
	if _, ok := a.Store().Streaming(); ok {
		t.Error("expected no streaming record")
	}
}

func TestCommitFillsSessionFromRecord(t *testing.T) {
	a := NewApplier(NewStore(), nil)
	a.StartStreaming("s1")
	a.CommitStreaming(types.Message{ID: "m1", Role: types.RoleAssistant})

	if msgs := a.Store().Messages("s1"); len(msgs) != 1 || msgs[0].SessionID != "s1" {
		t.Errorf("expected m1 stored under s1, got %#v", msgs)
	}
}
