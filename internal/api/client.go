package api

// Package api is the gateway to the KYC verification service. Every call goes
// through Client, which turns success bodies into typed results and failures
// into *Error (service answered) or *TransportError (service unreachable).

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"swiftkyc-client/internal/artifact"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	kycPrefix   = "kyc"
	adminPrefix = "admin/kyc"

	// maxErrorBody bounds how much of a failed response is read for its message.
	maxErrorBody = 64 << 10
)

// Client is the HTTP client wrapper for the verification service.
type Client struct {
	BaseURL    string       // versioned API root, e.g. http://host/api/v1
	HTTPClient *http.Client // underlying http.Client with timeouts configured
	Header     http.Header  // sent with every request (device and client identification)
}

// NewClient creates a client with the given request timeout ("30s" style);
// an unparsable timeout falls back to 30 seconds.
func NewClient(baseURL string, timeoutStr string) *Client {
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		Header: make(http.Header),
	}
}

// CreateSession opens a new verification session for mobile.
func (c *Client) CreateSession(ctx context.Context, mobile string) (*Session, error) {
	var s Session
	if err := c.doJSON(ctx, http.MethodPost, c.path(kycPrefix, "session"), CreateSessionRequest{Mobile: mobile}, &s); err != nil {
		return nil, err
	}
	if s.Status == "" {
		s.Status = StatusInProgress
	}
	return &s, nil
}

// SelectDocument records which document type the session will be verified with.
func (c *Client) SelectDocument(ctx context.Context, sessionID string, docType DocType) error {
	return c.doJSON(ctx, http.MethodPost, c.path(kycPrefix, "session", sessionID, "select-document"), SelectDocumentRequest{DocType: docType}, nil)
}

// EnterDocNumber records the document number typed by the user.
func (c *Client) EnterDocNumber(ctx context.Context, sessionID, number string) error {
	return c.doJSON(ctx, http.MethodPost, c.path(kycPrefix, "session", sessionID, "enter-doc-number"), DocNumberRequest{DocNumber: number}, nil)
}

// ValidateDocument uploads the document image and queues its validation.
func (c *Client) ValidateDocument(ctx context.Context, sessionID string, a *artifact.Artifact) error {
	return c.upload(ctx, c.path(kycPrefix, "session", sessionID, "validate-document"), a)
}

// UploadSelfie uploads the selfie and queues the face match.
func (c *Client) UploadSelfie(ctx context.Context, sessionID string, a *artifact.Artifact) error {
	return c.upload(ctx, c.path(kycPrefix, "session", sessionID, "selfie"), a)
}

// GetSession fetches the current session projection.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := c.doJSON(ctx, http.MethodGet, c.path(kycPrefix, "session", sessionID), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns the admin session list narrowed by f.
func (c *Client) ListSessions(ctx context.Context, f SessionFilter) ([]SessionSummary, error) {
	u := c.path(adminPrefix, "sessions")
	if q := f.Query().Encode(); q != "" {
		u += "?" + q
	}
	var out []SessionSummary
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSessionDetail fetches one session with its documents.
func (c *Client) GetSessionDetail(ctx context.Context, sessionID string) (*SessionDetail, error) {
	var d SessionDetail
	if err := c.doJSON(ctx, http.MethodGet, c.path(adminPrefix, "sessions", sessionID), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Approve marks the session approved.
func (c *Client) Approve(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodPost, c.path(adminPrefix, "sessions", sessionID, "approve"), struct{}{}, nil)
}

// Reject marks the session rejected.
func (c *Client) Reject(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodPost, c.path(adminPrefix, "sessions", sessionID, "reject"), struct{}{}, nil)
}

// Query encodes the non-empty filter fields as list query parameters.
func (f SessionFilter) Query() url.Values {
	q := url.Values{}
	add := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	add("status", string(f.Status))
	add("doc_type", string(f.DocType))
	add("created_from", f.CreatedFrom)
	add("created_to", f.CreatedTo)
	return q
}

func (c *Client) path(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		if strings.Contains(p, "/") {
			escaped[i] = p
			continue
		}
		escaped[i] = url.PathEscape(p)
	}
	return c.BaseURL + "/" + strings.Join(escaped, "/")
}

func (c *Client) doJSON(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.send(req, out)
}

// upload sends a as the single "file" part. The filename is always set so
// the service treats camera captures exactly like picked files.
func (c *Client) upload(ctx context.Context, u string, a *artifact.Artifact) error {
	if a == nil {
		return fmt.Errorf("failed to upload: no image")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, a.Filename))
	h.Set("Content-Type", a.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(a.Data); err != nil {
		return fmt.Errorf("failed to write multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return c.send(req, nil)
}

func (c *Client) send(req *http.Request, out any) error {
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Op: req.Method + " " + req.URL.Path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{StatusCode: resp.StatusCode, Message: ExtractMessage(body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
