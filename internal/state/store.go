// Package state holds the client's synchronized view of daemon state.
//
// Store is the snapshot read by presentation code. Applier is its only
// writer: every daemon event, streaming delta and resync snapshot flows
// through an Applier so that mutations stay serialized.
package state

import (
	"slices"
	"strings"
	"sync"

	"github.com/user/agentlink/internal/types"
)

// Store is the in-memory snapshot of sessions, messages, parts and pending
// prompts. It is safe for concurrent use. All read methods return copies
// that share no memory with the Store.
type Store struct {
	mu sync.RWMutex

	sessions    []types.Session
	statuses    map[types.SessionID]types.SessionStatus
	messages    map[types.SessionID][]types.Message
	parts       map[types.MessageID][]types.Part
	permissions map[types.SessionID][]types.PermissionRequest
	questions   map[types.SessionID][]types.QuestionRequest
	connected   bool
	active      types.SessionID
	streaming   *types.StreamingMessage

	rev     Revision
	touched map[entityKey]Revision

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		statuses:    make(map[types.SessionID]types.SessionStatus),
		messages:    make(map[types.SessionID][]types.Message),
		parts:       make(map[types.MessageID][]types.Part),
		permissions: make(map[types.SessionID][]types.PermissionRequest),
		questions:   make(map[types.SessionID][]types.QuestionRequest),
		touched:     make(map[entityKey]Revision),
		subs:        make(map[chan struct{}]struct{}),
	}
}

// Subscribe returns a channel that receives a signal after every mutation.
// Signals coalesce: a slow reader sees one pending signal, not a backlog.
// The returned function unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, ch)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Connected reports whether the daemon event stream is currently live.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Sessions returns all sessions, most recently created first.
func (s *Store) Sessions() []types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSessions(s.sessions)
}

// Session returns the session with the given id.
func (s *Store) Session(id types.SessionID) (types.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.sessionIndex(id)
	if i < 0 {
		return types.Session{}, false
	}
	return s.sessions[i].Clone(), true
}

// FilteredSessions returns the sessions whose title or id contains query,
// compared case-insensitively. An empty query matches everything.
func (s *Store) FilteredSessions(query string) []types.Session {
	query = strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Session
	for _, sess := range s.sessions {
		if query == "" ||
			strings.Contains(strings.ToLower(sess.Title), query) ||
			strings.Contains(strings.ToLower(sess.ID), query) {
			out = append(out, sess.Clone())
		}
	}
	return out
}

// ActiveSession returns the selected session id, or "" when none is selected.
func (s *Store) ActiveSession() types.SessionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Status returns the last reported status of a session.
func (s *Store) Status(id types.SessionID) (types.SessionStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[id]
	return st, ok
}

// IsSessionBusy reports whether the daemon marked the session as busy.
func (s *Store) IsSessionBusy(id types.SessionID) bool {
	st, _ := s.Status(id)
	return st.Busy
}

// Messages returns the messages of a session in arrival order.
func (s *Store) Messages(id types.SessionID) []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[id]
	if msgs == nil {
		return nil
	}
	out := make([]types.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Parts returns the streamed parts of a message sorted by part id.
func (s *Store) Parts(id types.MessageID) []types.Part {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneParts(s.parts[id])
}

// Permissions returns the pending permission requests of a session sorted
// by request id.
func (s *Store) Permissions(id types.SessionID) []types.PermissionRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePermissions(s.permissions[id])
}

// Questions returns the pending questions of a session sorted by request id.
func (s *Store) Questions(id types.SessionID) []types.QuestionRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneQuestions(s.questions[id])
}

// NextPermission returns the first pending permission request of a session.
func (s *Store) NextPermission(id types.SessionID) (types.PermissionRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q := s.permissions[id]; len(q) > 0 {
		return q[0].Clone(), true
	}
	return types.PermissionRequest{}, false
}

// NextQuestion returns the first pending question of a session.
func (s *Store) NextQuestion(id types.SessionID) (types.QuestionRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q := s.questions[id]; len(q) > 0 {
		return q[0].Clone(), true
	}
	return types.QuestionRequest{}, false
}

// HasPendingPrompts reports whether a session waits on a permission or a
// question.
func (s *Store) HasPendingPrompts(id types.SessionID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.permissions[id]) > 0 || len(s.questions[id]) > 0
}

// Streaming returns the in-progress assistant reply, if any.
func (s *Store) Streaming() (types.StreamingMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.streaming == nil {
		return types.StreamingMessage{}, false
	}
	return s.streaming.Clone(), true
}

// Snapshot is a consistent copy of the whole Store taken under one lock.
// Permission and question maps only contain sessions with pending requests.
type Snapshot struct {
	Connected     bool
	ActiveSession types.SessionID
	Sessions      []types.Session
	Statuses      map[types.SessionID]types.SessionStatus
	Messages      map[types.SessionID][]types.Message
	Parts         map[types.MessageID][]types.Part
	Permissions   map[types.SessionID][]types.PermissionRequest
	Questions     map[types.SessionID][]types.QuestionRequest
	Streaming     *types.StreamingMessage
}

// Snapshot copies the entire Store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Connected:     s.connected,
		ActiveSession: s.active,
		Sessions:      cloneSessions(s.sessions),
		Statuses:      make(map[types.SessionID]types.SessionStatus, len(s.statuses)),
		Messages:      make(map[types.SessionID][]types.Message, len(s.messages)),
		Parts:         make(map[types.MessageID][]types.Part, len(s.parts)),
		Permissions:   make(map[types.SessionID][]types.PermissionRequest, len(s.permissions)),
		Questions:     make(map[types.SessionID][]types.QuestionRequest, len(s.questions)),
	}
	for id, st := range s.statuses {
		snap.Statuses[id] = st
	}
	for id, msgs := range s.messages {
		out := make([]types.Message, len(msgs))
		for i, m := range msgs {
			out[i] = m.Clone()
		}
		snap.Messages[id] = out
	}
	for id, parts := range s.parts {
		snap.Parts[id] = cloneParts(parts)
	}
	for id, q := range s.permissions {
		if len(q) > 0 {
			snap.Permissions[id] = clonePermissions(q)
		}
	}
	for id, q := range s.questions {
		if len(q) > 0 {
			snap.Questions[id] = cloneQuestions(q)
		}
	}
	if s.streaming != nil {
		sm := s.streaming.Clone()
		snap.Streaming = &sm
	}
	return snap
}

func (s *Store) sessionIndex(id types.SessionID) int {
	return slices.IndexFunc(s.sessions, func(sess types.Session) bool { return sess.ID == id })
}

func cloneSessions(in []types.Session) []types.Session {
	if in == nil {
		return nil
	}
	out := make([]types.Session, len(in))
	for i, sess := range in {
		out[i] = sess.Clone()
	}
	return out
}

func cloneParts(in []types.Part) []types.Part {
	if in == nil {
		return nil
	}
	out := make([]types.Part, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

func clonePermissions(in []types.PermissionRequest) []types.PermissionRequest {
	if in == nil {
		return nil
	}
	out := make([]types.PermissionRequest, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

func cloneQuestions(in []types.QuestionRequest) []types.QuestionRequest {
	if in == nil {
		return nil
	}
	out := make([]types.QuestionRequest, len(in))
	for i, q := range in {
		out[i] = q.Clone()
	}
	return out
}
