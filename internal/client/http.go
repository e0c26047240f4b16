package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/groblegark/ksilo/internal/model"
)

// HTTPClient implements SiloClient using the silod HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	adminToken string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request; adminToken unlocks the log read surface.
func NewHTTPClient(baseURL, token, adminToken string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		adminToken: adminToken,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) SetObject(ctx context.Context, req *SetObjectRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/objects", req, nil)
}

func (c *HTTPClient) GetObject(ctx context.Context, ref model.ObjectRef) (*model.Object, error) {
	path := "/v1/objects/" + url.PathEscape(ref.Silo) +
		"/" + url.PathEscape(ref.Structure) +
		"/" + url.PathEscape(ref.Instance) +
		"/" + url.PathEscape(ref.Type) +
		"/" + url.PathEscape(ref.Key)
	var obj model.Object
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

func (c *HTTPClient) ListObjects(ctx context.Context, silo, structure, instance, objectType string) ([]*model.Object, error) {
	path := "/v1/objects/" + url.PathEscape(silo) +
		"/" + url.PathEscape(structure) +
		"/" + url.PathEscape(instance) +
		"/" + url.PathEscape(objectType)
	var resp struct {
		Objects []*model.Object `json:"objects"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Objects, nil
}

func (c *HTTPClient) AppendEvent(ctx context.Context, e *model.Event) (string, error) {
	var resp struct {
		Key string `json:"key"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/events", e, &resp); err != nil {
		return "", err
	}
	return resp.Key, nil
}

func (c *HTTPClient) GetLogEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error) {
	q := url.Values{}
	if filter.SessionKey != "" {
		q.Set("sessionKey", filter.SessionKey)
	}
	if filter.Silo != "" {
		q.Set("silo", filter.Silo)
	}
	if filter.EventType != "" {
		q.Set("eventType", filter.EventType)
	}

	path := "/v1/log/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *HTTPClient) GetSessions(ctx context.Context) ([]*model.Session, error) {
	var resp struct {
		Sessions []*model.Session `json:"sessions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/log/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *HTTPClient) CloseSession(ctx context.Context, key string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(key)+"/close", nil, nil)
}

func (c *HTTPClient) NotifyReply(ctx context.Context, req *NotifyReplyRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/notify/reply", req, nil)
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for 204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.adminToken != "" {
		req.Header.Set("X-Admin-Token", c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content — success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
