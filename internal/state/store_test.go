package state

import (
	"sync"
	"testing"
	"time"

	"github.com/user/agentlink/internal/types"
	"github.com/user/agentlink/internal/wire"
)

func TestStoreReadsAreCopies(t *testing.T) {
	a := NewApplier(NewStore(), nil)
	a.Apply(wire.SessionCreated{Session: types.Session{ID: "s1", Title: "one", Model: &types.ModelInfo{ModelID: "m"}}})
	a.Apply(wire.PermissionAsked{Request: types.PermissionRequest{ID: "r1", SessionID: "s1", Patterns: []string{"a"}}})

	sessions := a.Store().Sessions()
	sessions[0].Title = "changed"
	sessions[0].Model.ModelID = "changed"

	perms := a.Store().Permissions("s1")
	perms[0].Patterns[0] = "changed"

	sess, _ := a.Store().Session("s1")
	if sess.Title != "one" || sess.Model.ModelID != "m" {
		t.Errorf("expected store session untouched, got %#v", sess)
	}
	if p, _ := a.Store().NextPermission("s1"); p.Patterns[0] != "a" {
		t.Errorf("expected store permission untouched, got %#v", p)
	}
}

func TestFilteredSessions(t *testing.T) {
	a := NewApplier(NewStore(), nil)
	a.SeedSessions(a.Revision(), []types.Session{
		{ID: "ses_alpha", Title: "Refactor parser"},
		{ID: "ses_beta", Title: "Fix login"},
	})

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"PARSER", 1},
		{"beta", 1},
		{"ses_", 2},
		{"nothing", 0},
	}
	for _, tt := range tests {
		if got := len(a.Store().FilteredSessions(tt.query)); got != tt.want {
			t.Errorf("query %q: expected %d sessions, got %d", tt.query, tt.want, got)
		}
	}
}

func TestIsSessionBusy(t *testing.T) {
	a := NewApplier(NewStore(), nil)
	if a.Store().IsSessionBusy("s1") {
		t.Error("expected unknown session to be idle")
	}
	a.Apply(wire.SessionStatusChanged{SessionID: "s1", Status: types.SessionStatus{Busy: true}})
	if !a.Store().IsSessionBusy("s1") {
		t.Error("expected session to be busy")
	}
}

func TestSubscribeCoalesces(t *testing.T) {
	a := NewApplier(NewStore(), nil)
	ch, cancel := a.Store().Subscribe()
	defer cancel()

	a.SetConnected(true)
	a.Apply(wire.SessionCreated{Session: types.Session{ID: "s1"}})
	a.Apply(wire.SessionCreated{Session: types.Session{ID: "s2"}})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected change signal")
	}
	select {
	case <-ch:
		t.Error("expected signals to coalesce")
	default:
	}

	a.Apply(wire.Keepalive{})
	select {
	case <-ch:
		t.Error("expected keepalive not to signal")
	default:
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after cancel")
	}
	a.SetConnected(false)
}

func TestConcurrentApplyAndRead(t *testing.T) {
	a := NewApplier(NewStore(), nil)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			a.Apply(wire.PartUpdated{Part: types.Part{
				ID:        types.PartID(string(rune('a' + i%26))),
				MessageID: "m1",
				Content:   types.TextContent{Text: "x"},
			}})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			parts := a.Store().Parts("m1")
			for j := 1; j < len(parts); j++ {
				if parts[j-1].ID >= parts[j].ID {
					t.Errorf("parts out of order: %s before %s", parts[j-1].ID, parts[j].ID)
					return
				}
			}
		}
	}()
	wg.Wait()

	if n := len(a.Store().Parts("m1")); n != 26 {
		t.Errorf("expected 26 distinct parts, got %d", n)
	}
}
