// Package client talks to the coachd REST API. Every call takes a context; canceling
// it aborts the request. Nothing is retried.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/soaringjerry/coachdesk/internal/models"
)

// GenericNotice is shown when a failure carries no server message.
const GenericNotice = "Something went wrong. Please try again."

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("coachd: status %d", e.Status)
	}
	return fmt.Sprintf("coachd: status %d: %s", e.Status, e.Message)
}

// ValidationError is a problem caught before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("coachd: invalid %s: %s", e.Field, e.Message)
}

// Notice turns any error into text for the person at the screen: the local or server
// message when there is one, the generic notice otherwise.
func Notice(err error) string {
	if err == nil {
		return ""
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) && vErr.Message != "" {
		return vErr.Message
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message
	}
	return GenericNotice
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithToken(token string) Option { return func(c *Client) { c.token = token } }

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// New returns a client for the API rooted at baseURL, e.g. http://localhost:8080/api.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var env struct {
			Error struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &env) == nil {
			apiErr.Message = env.Error.Message
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func checkClientID(clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return &ValidationError{Field: "clientId", Message: "Choose a client before opening a form."}
	}
	return nil
}

func formPath(clientID, formType string) string {
	return "/clients/" + url.PathEscape(clientID) + "/forms/" + url.PathEscape(formType)
}

// GetResponse returns the client's submission for formType, or nil when there is none.
func (c *Client) GetResponse(ctx context.Context, clientID, formType string) (*models.IntakeResponse, error) {
	if err := checkClientID(clientID); err != nil {
		return nil, err
	}
	var out *models.IntakeResponse
	if err := c.do(ctx, http.MethodGet, formPath(clientID, formType), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListResponses(ctx context.Context, clientID string) ([]*models.IntakeResponse, error) {
	if err := checkClientID(clientID); err != nil {
		return nil, err
	}
	var out struct {
		Responses []*models.IntakeResponse `json:"responses"`
	}
	if err := c.do(ctx, http.MethodGet, "/clients/"+url.PathEscape(clientID)+"/forms", nil, &out); err != nil {
		return nil, err
	}
	return out.Responses, nil
}

// SubmitResponse upserts the full answer set and returns the stored record.
func (c *Client) SubmitResponse(ctx context.Context, clientID, formType string, responses map[string]json.RawMessage) (*models.IntakeResponse, error) {
	if err := checkClientID(clientID); err != nil {
		return nil, err
	}
	in := map[string]any{"formType": formType, "responses": responses}
	var out models.IntakeResponse
	if err := c.do(ctx, http.MethodPost, "/clients/"+url.PathEscape(clientID)+"/forms", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetCourse(ctx context.Context, courseID string) (*models.Course, error) {
	var out models.Course
	if err := c.do(ctx, http.MethodGet, "/courses/"+url.PathEscape(courseID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListExpiredMembers(ctx context.Context) ([]*models.Member, error) {
	var out struct {
		Members []*models.Member `json:"members"`
	}
	if err := c.do(ctx, http.MethodGet, "/members/expired", nil, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}
