package state

import "github.com/user/agentlink/internal/types"

// Revision counts Store mutations made by Apply and the streaming commit.
// A resync captures it before fetching so that snapshot seeding can tell
// which entities the event stream changed while the fetch was in flight.
type Revision uint64

type entityKind uint8

const (
	kindSession entityKind = iota
	kindMessage
	kindPermission
	kindQuestion
)

type entityKey struct {
	kind entityKind
	id   string
}

// Revision returns the current mutation counter. Pass it to the Seed
// methods as the point the snapshot was fetched from.
func (a *Applier) Revision() Revision {
	s := a.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// The helpers below expect s.mu to be held for writing.

func (s *Store) touch(kind entityKind, id string) {
	s.touched[entityKey{kind, id}] = s.rev
}

// changedSince reports whether the event stream upserted or removed the
// entity after since.
func (s *Store) changedSince(kind entityKind, id string, since Revision) bool {
	return s.touched[entityKey{kind, id}] > since
}

// sessionDeletedSince reports whether a session was removed by the event
// stream after since. Snapshot entries belonging to it are stale.
func (s *Store) sessionDeletedSince(id types.SessionID, since Revision) bool {
	return s.changedSince(kindSession, id, since) && s.sessionIndex(id) < 0
}

// forget drops change records no later than since. Resyncs are serialized
// by the caller, so no later seed compares against an older revision.
func (s *Store) forget(since Revision) {
	for k, rev := range s.touched {
		if rev <= since {
			delete(s.touched, k)
		}
	}
}

// mergeQueues rebuilds per-session prompt queues from a snapshot fetched
// at since. Prompts asked or answered on the stream after since keep their
// local state; everything else follows the snapshot.
func mergeQueues[T any](
	s *Store,
	local map[types.SessionID][]T,
	snapshot []T,
	kind entityKind,
	since Revision,
	key func(T) string,
	session func(T) types.SessionID,
	clone func(T) T,
) map[types.SessionID][]T {
	next := make(map[types.SessionID][]T)
	for _, item := range snapshot {
		sid := session(item)
		if s.changedSince(kind, key(item), since) || s.sessionDeletedSince(sid, since) {
			continue
		}
		next[sid] = upsertSorted(next[sid], clone(item), key)
	}
	for sid, queue := range local {
		for _, item := range queue {
			if s.changedSince(kind, key(item), since) {
				next[sid] = upsertSorted(next[sid], item, key)
			}
		}
	}
	return next
}
