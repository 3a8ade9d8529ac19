package transport

import (
	"context"
	"net/http"

	"github.com/user/agentlink/internal/types"
)

type CreateSessionRequest struct {
	Title string `json:"title,omitempty"`
	Agent string `json:"agent,omitempty"`
	Model string `json:"model,omitempty"`
}

type UpdateSessionRequest struct {
	Title string `json:"title,omitempty"`
}

type FileContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type SendMessageRequest struct {
	Content string        `json:"content"`
	Agent   string        `json:"agent,omitempty"`
	Model   string        `json:"model,omitempty"`
	Files   []FileContent `json:"files,omitempty"`
}

// PermissionDecision is the answer to a permission request.
type PermissionDecision string

const (
	DecisionAllow  PermissionDecision = "allow"
	DecisionReject PermissionDecision = "reject"
	DecisionAlways PermissionDecision = "always"
)

type PermissionReplyRequest struct {
	RequestID types.RequestID    `json:"requestId"`
	Decision  PermissionDecision `json:"decision"`
}

// QuestionReplyRequest carries one answer list per question of the request.
type QuestionReplyRequest struct {
	RequestID types.RequestID `json:"requestId"`
	Answers   [][]string      `json:"answers"`
}

// Health reports whether the daemon answers its health endpoint. Network
// errors count as unhealthy, not as failures.
func (c *Client) Health(ctx context.Context) bool {
	req, err := c.newRequest(ctx, http.MethodGet, "/global/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

func (c *Client) ListSessions(ctx context.Context) ([]types.Session, error) {
	var out []types.Session
	err := c.do(ctx, http.MethodGet, "/session", nil, &out)
	return out, err
}

func (c *Client) GetSession(ctx context.Context, id types.SessionID) (types.Session, error) {
	var out types.Session
	err := c.do(ctx, http.MethodGet, "/session/"+id, nil, &out)
	return out, err
}

func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (types.Session, error) {
	var out types.Session
	err := c.do(ctx, http.MethodPost, "/session", req, &out)
	return out, err
}

func (c *Client) UpdateSession(ctx context.Context, id types.SessionID, req UpdateSessionRequest) (types.Session, error) {
	var out types.Session
	err := c.do(ctx, http.MethodPatch, "/session/"+id, req, &out)
	return out, err
}

func (c *Client) DeleteSession(ctx context.Context, id types.SessionID) error {
	return c.do(ctx, http.MethodDelete, "/session/"+id, nil, nil)
}

func (c *Client) GetMessages(ctx context.Context, id types.SessionID) ([]types.Message, error) {
	var out []types.Message
	err := c.do(ctx, http.MethodGet, "/session/"+id+"/messages", nil, &out)
	return out, err
}

// AbortMessage stops the generation running in a session.
func (c *Client) AbortMessage(ctx context.Context, id types.SessionID) error {
	return c.do(ctx, http.MethodPost, "/session/"+id+"/abort", struct{}{}, nil)
}

// ReplyPermission answers a permission request. The queue entry is removed
// when the daemon echoes permission.replied on the event stream; the reply
// itself does not touch local state.
func (c *Client) ReplyPermission(ctx context.Context, req PermissionReplyRequest) error {
	return c.do(ctx, http.MethodPost, "/permission/reply", req, nil)
}

func (c *Client) ListPermissions(ctx context.Context) ([]types.PermissionRequest, error) {
	var out []types.PermissionRequest
	err := c.do(ctx, http.MethodGet, "/permission", nil, &out)
	return out, err
}

// ReplyQuestion answers a question request. Like ReplyPermission it relies
// on the event stream to update local state.
func (c *Client) ReplyQuestion(ctx context.Context, req QuestionReplyRequest) error {
	return c.do(ctx, http.MethodPost, "/question/reply", req, nil)
}

func (c *Client) ListQuestions(ctx context.Context) ([]types.QuestionRequest, error) {
	var out []types.QuestionRequest
	err := c.do(ctx, http.MethodGet, "/question", nil, &out)
	return out, err
}

func (c *Client) ListProviders(ctx context.Context) ([]types.Provider, error) {
	var out []types.Provider
	err := c.do(ctx, http.MethodGet, "/config/providers", nil, &out)
	return out, err
}

func (c *Client) ListModels(ctx context.Context) ([]types.Model, error) {
	var out []types.Model
	err := c.do(ctx, http.MethodGet, "/model", nil, &out)
	return out, err
}
