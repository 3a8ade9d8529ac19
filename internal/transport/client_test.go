package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/user/agentlink/internal/types"
)

func TestClientHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(DirectoryHeader) != "/work/repo" {
			t.Errorf("expected directory header, got %q", r.Header.Get(DirectoryHeader))
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/session" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "s1", "title": "first", "createdAt": 1, "updatedAt": 2, "messageCount": 3},
		})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL + "/", Directory: "/work/repo", Token: "secret"})
	sessions, err := client.ListSessions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s1" || sessions[0].MessageCount != 3 {
		t.Errorf("unexpected sessions %#v", sessions)
	}
}

func TestClientOmitsOptionalHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header[http.CanonicalHeaderKey(DirectoryHeader)]; ok {
			t.Error("expected no directory header")
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("expected no authorization header")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := New(Config{BaseURL: server.URL}).DeleteSession(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
}

func TestClientStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such session", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(Config{BaseURL: server.URL}).GetMessages(context.Background(), "missing")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound || statusErr.Body != "no such session" {
		t.Errorf("unexpected error %#v", statusErr)
	}
	if statusErr.Path != "/session/missing/messages" {
		t.Errorf("unexpected path %q", statusErr.Path)
	}
}

func TestReplyPermissionBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/permission/reply" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Error(err)
			return
		}
		if body["requestId"] != "r1" || body["decision"] != "always" {
			t.Errorf("unexpected body %v", body)
		}
		w.Write([]byte("true"))
	}))
	defer server.Close()

	err := New(Config{BaseURL: server.URL}).ReplyPermission(context.Background(), PermissionReplyRequest{RequestID: "r1", Decision: DecisionAlways})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCreateAndUpdateSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/session":
			json.NewEncoder(w).Encode(types.Session{ID: "s1", Title: body["title"]})
		case r.Method == http.MethodPatch && r.URL.Path == "/session/s1":
			json.NewEncoder(w).Encode(types.Session{ID: "s1", Title: body["title"]})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	ctx := context.Background()
	sess, err := client.CreateSession(ctx, CreateSessionRequest{Title: "draft"})
	if err != nil {
		t.Fatal(err)
	}
	if sess.Title != "draft" {
		t.Errorf("expected draft, got %q", sess.Title)
	}
	sess, err = client.UpdateSession(ctx, "s1", UpdateSessionRequest{Title: "final"})
	if err != nil {
		t.Fatal(err)
	}
	if sess.Title != "final" {
		t.Errorf("expected final, got %q", sess.Title)
	}
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/global/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"healthy":true}`))
	}))
	client := New(Config{BaseURL: server.URL})
	if !client.Health(context.Background()) {
		t.Error("expected healthy daemon")
	}
	server.Close()
	if client.Health(context.Background()) {
		t.Error("expected closed server to be unhealthy")
	}
}

func TestSubscribeStreamsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/event" || r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("unexpected request %s accept=%q", r.URL.Path, r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: keepalive\ndata: {}\n\n"))
	}))
	defer server.Close()

	body, err := New(Config{BaseURL: server.URL}).Subscribe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "event: keepalive\ndata: {}\n\n" {
		t.Errorf("unexpected body %q", data)
	}
}

func TestSubscribeHandshakeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := New(Config{BaseURL: server.URL}).Subscribe(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 StatusError, got %v", err)
	}
}

func TestSubscribeHeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	body, err := New(Config{BaseURL: server.URL, HandshakeTimeout: 50 * time.Millisecond}).Subscribe(context.Background())
	if err == nil {
		body.Close()
		t.Fatal("expected handshake to time out")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("expected timeout near 50ms, took %v", elapsed)
	}
}

func TestSendMessageStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/session/s1/message" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
			return
		}
		if req.Content != "hello" || req.Agent != "build" {
			t.Errorf("unexpected request body %#v", req)
		}
		w.Write([]byte("event: content\ndata: hi\n\n"))
	}))
	defer server.Close()

	body, err := New(Config{BaseURL: server.URL}).SendMessageStream(context.Background(), "s1", SendMessageRequest{Content: "hello", Agent: "build"})
	if err != nil {
		t.Fatal(err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "event: content\ndata: hi\n\n" {
		t.Errorf("unexpected body %q", data)
	}
}
