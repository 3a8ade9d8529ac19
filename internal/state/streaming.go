package state

import (
	"github.com/user/agentlink/internal/types"
	"github.com/user/agentlink/internal/wire"
)

// StartStreaming begins a new in-progress reply for a session, replacing
// any previous one. It returns the placeholder id of the record.
func (a *Applier) StartStreaming(sessionID types.SessionID) types.MessageID {
	id := types.NewStreamID()
	s := a.store
	s.mu.Lock()
	s.streaming = &types.StreamingMessage{SessionID: sessionID, MessageID: id}
	s.mu.Unlock()
	s.notify()
	return id
}

// ApplyStream folds one message-generation event into the in-progress
// reply. Content and reasoning deltas are concatenated, tool calls are
// upserted by id, and Done or StreamError mark the record complete.
// Events arriving without an in-progress reply are ignored.
func (a *Applier) ApplyStream(ev wire.StreamEvent) {
	s := a.store
	s.mu.Lock()
	sm := s.streaming
	if sm == nil || sm.Complete {
		s.mu.Unlock()
		a.logger.Debug("stream event without active reply", "event", ev)
		return
	}

	switch e := ev.(type) {
	case wire.Content:
		sm.Content += e.Text
	case wire.Reasoning:
		sm.Reasoning += e.Text
	case wire.ToolCallStart:
		call := types.StreamingToolCall{
			ID:     e.Call.ID,
			Name:   e.Call.Name,
			Input:  string(e.Call.Input),
			Status: types.ToolCallRunning,
		}
		if i := sm.ToolIndex(call.ID); i >= 0 {
			sm.ToolCalls[i] = call
		} else {
			sm.ToolCalls = append(sm.ToolCalls, call)
		}
	case wire.ToolCallEnd:
		status := types.ToolCallSuccess
		if e.Result.IsError {
			status = types.ToolCallError
		}
		var output *string
		if e.Result.Output != nil {
			out := *e.Result.Output
			output = &out
		}
		if i := sm.ToolIndex(e.Result.ID); i >= 0 {
			sm.ToolCalls[i].Output = output
			sm.ToolCalls[i].Status = status
		} else {
			sm.ToolCalls = append(sm.ToolCalls, types.StreamingToolCall{
				ID:     e.Result.ID,
				Output: output,
				Status: status,
			})
		}
	case wire.Done:
		sm.Complete = true
		if e.Message.ID != "" {
			sm.MessageID = e.Message.ID
		}
	case wire.StreamError:
		sm.Complete = true
		sm.Err = e.Message
	default:
		s.mu.Unlock()
		a.logger.Warn("unhandled stream event", "event", ev)
		return
	}
	s.mu.Unlock()
	s.notify()
}

// CommitStreaming stores the finalized message and discards the
// in-progress reply it replaces. Nothing is stored when the reply is no
// longer tracked, for example because its session was deleted meanwhile.
func (a *Applier) CommitStreaming(msg types.Message) {
	s := a.store
	s.mu.Lock()
	if sm := s.streaming; sm != nil && msg.ID != "" {
		if msg.SessionID == "" {
			msg.SessionID = sm.SessionID
		}
		if msg.SessionID == sm.SessionID {
			s.rev++
			s.upsertMessage(msg)
		}
	}
	s.streaming = nil
	s.mu.Unlock()
	s.notify()
}

// ClearStreaming discards the in-progress reply without committing it.
func (a *Applier) ClearStreaming() {
	s := a.store
	s.mu.Lock()
	s.streaming = nil
	s.mu.Unlock()
	s.notify()
}
