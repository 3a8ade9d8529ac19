package state

import (
	"log/slog"
	"slices"

	"github.com/user/agentlink/internal/types"
	"github.com/user/agentlink/internal/wire"
)

func partKey(p types.Part) string                    { return p.ID }
func permissionKey(p types.PermissionRequest) string { return p.ID }
func questionKey(q types.QuestionRequest) string     { return q.ID }

// Applier applies daemon events, streaming deltas and resync snapshots to a
// Store. It is the Store's only writer; each call holds the Store's write
// lock for the whole mutation so cascades are atomic to readers.
type Applier struct {
	store  *Store
	logger *slog.Logger
}

// NewApplier creates an Applier writing to store.
func NewApplier(store *Store, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{store: store, logger: logger}
}

// Store returns the Store this Applier writes to.
func (a *Applier) Store() *Store {
	return a.store
}

// Apply performs the mutation for one daemon event. Events referring to
// entities that are not present are upserts, except removals, which are
// no-ops.
func (a *Applier) Apply(ev wire.DaemonEvent) {
	if _, ok := ev.(wire.Keepalive); ok {
		return
	}

	s := a.store
	s.mu.Lock()
	s.rev++
	switch e := ev.(type) {
	case wire.SessionCreated:
		s.upsertSession(e.Session)
	case wire.SessionUpdated:
		s.upsertSession(e.Session)
	case wire.SessionDeleted:
		s.deleteSession(e.SessionID)
	case wire.SessionStatusChanged:
		s.statuses[e.SessionID] = e.Status
	case wire.MessageCreated:
		s.upsertMessage(e.Message)
	case wire.MessageUpdated:
		s.upsertMessage(e.Message)
	case wire.MessageRemoved:
		s.removeMessage(e.SessionID, e.MessageID)
	case wire.PartUpdated:
		s.parts[e.Part.MessageID] = upsertSorted(s.parts[e.Part.MessageID], e.Part.Clone(), partKey)
	case wire.PartRemoved:
		s.removePart(e.MessageID, e.PartID)
	case wire.PermissionAsked:
		id := e.Request.SessionID
		s.permissions[id] = upsertSorted(s.permissions[id], e.Request.Clone(), permissionKey)
		s.touch(kindPermission, e.Request.ID)
	case wire.PermissionReplied:
		s.removePermission(e.SessionID, e.RequestID)
	case wire.QuestionAsked:
		id := e.Request.SessionID
		s.questions[id] = upsertSorted(s.questions[id], e.Request.Clone(), questionKey)
		s.touch(kindQuestion, e.Request.ID)
	case wire.QuestionReplied:
		s.removeQuestion(e.SessionID, e.RequestID)
	case wire.ConnectionStatus:
		s.connected = e.Connected
	default:
		s.mu.Unlock()
		a.logger.Warn("unhandled daemon event", "event", ev.Label())
		return
	}
	s.mu.Unlock()
	s.notify()
}

// SetConnected records whether the daemon event stream is live.
func (a *Applier) SetConnected(connected bool) {
	s := a.store
	s.mu.Lock()
	changed := s.connected != connected
	s.connected = connected
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// SetActiveSession selects the session whose messages are kept in sync by
// resync. The selection is cleared automatically when that session is
// deleted.
func (a *Applier) SetActiveSession(id types.SessionID) {
	s := a.store
	s.mu.Lock()
	s.active = id
	s.mu.Unlock()
	s.notify()
}

// SeedSessions merges a session list fetched at since. Sessions created,
// updated or deleted by Apply after since keep their local state; all
// others follow the snapshot.
func (a *Applier) SeedSessions(since Revision, sessions []types.Session) {
	s := a.store
	s.mu.Lock()
	inSnapshot := make(map[types.SessionID]bool, len(sessions))
	for _, sess := range sessions {
		inSnapshot[sess.ID] = true
	}

	out := []types.Session{}
	for _, sess := range s.sessions {
		if !inSnapshot[sess.ID] && s.changedSince(kindSession, sess.ID, since) {
			out = append(out, sess)
		}
	}
	for _, sess := range sessions {
		if !s.changedSince(kindSession, sess.ID, since) {
			out = append(out, sess.Clone())
		} else if i := s.sessionIndex(sess.ID); i >= 0 {
			out = append(out, s.sessions[i])
		}
	}
	s.sessions = out

	if s.active != "" && s.sessionIndex(s.active) < 0 {
		s.active = ""
	}
	s.forget(since)
	s.mu.Unlock()
	s.notify()
}

// SeedMessages merges the messages of one session fetched at since. Parts
// of messages that end up dropped are purged.
func (a *Applier) SeedMessages(since Revision, sessionID types.SessionID, msgs []types.Message) {
	s := a.store
	s.mu.Lock()
	local := s.messages[sessionID]
	localIndex := func(id types.MessageID) int {
		for i, m := range local {
			if m.ID == id {
				return i
			}
		}
		return -1
	}

	var out []types.Message
	if !s.sessionDeletedSince(sessionID, since) {
		inSnapshot := make(map[types.MessageID]bool, len(msgs))
		for _, m := range msgs {
			inSnapshot[m.ID] = true
			if !s.changedSince(kindMessage, m.ID, since) {
				out = append(out, m.Clone())
			} else if i := localIndex(m.ID); i >= 0 {
				out = append(out, local[i])
			}
		}
		for _, m := range local {
			if !inSnapshot[m.ID] && s.changedSince(kindMessage, m.ID, since) {
				out = append(out, m)
			}
		}
	}

	keep := make(map[types.MessageID]bool, len(out))
	for _, m := range out {
		keep[m.ID] = true
	}
	for _, old := range local {
		if !keep[old.ID] {
			delete(s.parts, old.ID)
		}
	}
	if len(out) == 0 {
		delete(s.messages, sessionID)
	} else {
		s.messages[sessionID] = out
	}
	s.forget(since)
	s.mu.Unlock()
	s.notify()
}

// SeedPermissions merges the pending permission requests fetched at since
// into the per-session queues.
func (a *Applier) SeedPermissions(since Revision, reqs []types.PermissionRequest) {
	s := a.store
	s.mu.Lock()
	s.permissions = mergeQueues(s, s.permissions, reqs, kindPermission, since, permissionKey,
		func(r types.PermissionRequest) types.SessionID { return r.SessionID },
		types.PermissionRequest.Clone)
	s.forget(since)
	s.mu.Unlock()
	s.notify()
}

// SeedQuestions merges the pending questions fetched at since into the
// per-session queues.
func (a *Applier) SeedQuestions(since Revision, reqs []types.QuestionRequest) {
	s := a.store
	s.mu.Lock()
	s.questions = mergeQueues(s, s.questions, reqs, kindQuestion, since, questionKey,
		func(q types.QuestionRequest) types.SessionID { return q.SessionID },
		types.QuestionRequest.Clone)
	s.forget(since)
	s.mu.Unlock()
	s.notify()
}

// The helpers below expect s.mu to be held for writing.

func (s *Store) upsertSession(sess types.Session) {
	s.touch(kindSession, sess.ID)
	sess = sess.Clone()
	if i := s.sessionIndex(sess.ID); i >= 0 {
		s.sessions[i] = sess
		return
	}
	s.sessions = slices.Insert(s.sessions, 0, sess)
}

func (s *Store) deleteSession(id types.SessionID) {
	s.touch(kindSession, id)
	for _, m := range s.messages[id] {
		s.touch(kindMessage, m.ID)
	}
	for _, r := range s.permissions[id] {
		s.touch(kindPermission, r.ID)
	}
	for _, q := range s.questions[id] {
		s.touch(kindQuestion, q.ID)
	}
	if i := s.sessionIndex(id); i >= 0 {
		s.sessions = slices.Delete(s.sessions, i, i+1)
	}
	for _, m := range s.messages[id] {
		delete(s.parts, m.ID)
	}
	delete(s.messages, id)
	delete(s.statuses, id)
	delete(s.permissions, id)
	delete(s.questions, id)
	if s.active == id {
		s.active = ""
	}
	if s.streaming != nil && s.streaming.SessionID == id {
		s.streaming = nil
	}
}

func (s *Store) upsertMessage(m types.Message) {
	s.touch(kindMessage, m.ID)
	m = m.Clone()
	msgs := s.messages[m.SessionID]
	if i := slices.IndexFunc(msgs, func(x types.Message) bool { return x.ID == m.ID }); i >= 0 {
		msgs[i] = m
		return
	}
	s.messages[m.SessionID] = append(msgs, m)
}

func (s *Store) removeMessage(sessionID types.SessionID, messageID types.MessageID) {
	s.touch(kindMessage, messageID)
	s.messages[sessionID] = slices.DeleteFunc(s.messages[sessionID], func(m types.Message) bool {
		return m.ID == messageID
	})
	if len(s.messages[sessionID]) == 0 {
		delete(s.messages, sessionID)
	}
	delete(s.parts, messageID)
}

func (s *Store) removePart(messageID types.MessageID, partID types.PartID) {
	parts, ok := removeSorted(s.parts[messageID], partID, partKey)
	if !ok {
		return
	}
	if len(parts) == 0 {
		delete(s.parts, messageID)
		return
	}
	s.parts[messageID] = parts
}

func (s *Store) removePermission(sessionID types.SessionID, id types.RequestID) {
	s.touch(kindPermission, id)
	q, ok := removeSorted(s.permissions[sessionID], id, permissionKey)
	if !ok {
		return
	}
	if len(q) == 0 {
		delete(s.permissions, sessionID)
		return
	}
	s.permissions[sessionID] = q
}

func (s *Store) removeQuestion(sessionID types.SessionID, id types.RequestID) {
	s.touch(kindQuestion, id)
	q, ok := removeSorted(s.questions[sessionID], id, questionKey)
	if !ok {
		return
	}
	if len(q) == 0 {
		delete(s.questions, sessionID)
		return
	}
	s.questions[sessionID] = q
}
