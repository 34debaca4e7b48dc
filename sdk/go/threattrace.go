// Package threattrace is a small typed client for the ThreatTrace
// security API. It covers the read-only audit trail endpoints and the
// admin containment operations.
package threattrace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for the ThreatTrace client.
type Config struct {
	// BaseURL is the root URL of the ThreatTrace server.
	// Examples: "https://trace.example.com" or "https://trace.example.com/api/v1"
	// The "/api/v1" suffix is appended automatically if missing.
	BaseURL string

	// Token is the bearer token sent with every request. The security
	// API requires an admin token.
	Token string

	// HTTPClient is an optional custom HTTP client.
	// If nil, a default client with 10s timeout is used.
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if !strings.HasSuffix(c.BaseURL, "/api/v1") {
		c.BaseURL = c.BaseURL + "/api/v1"
	}
}

// Client is the ThreatTrace SDK client.
type Client struct {
	cfg Config
}

// NewClient creates a new ThreatTrace client with the given configuration.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{cfg: cfg}
}

// AuditTrailQuery filters and paginates ListAuditTrail. Zero values are
// omitted from the request.
type AuditTrailQuery struct {
	Action  string
	Status  string
	UserID  string
	IP      string
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}

func (q AuditTrailQuery) values() url.Values {
	v := url.Values{}
	if q.Action != "" {
		v.Set("action", q.Action)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.UserID != "" {
		v.Set("user_id", q.UserID)
	}
	if q.IP != "" {
		v.Set("ip", q.IP)
	}
	if !q.From.IsZero() {
		v.Set("from", q.From.Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		v.Set("to", q.To.Format(time.RFC3339))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	return v
}

// ListAuditTrail returns a page of the audit trail, newest first.
func (c *Client) ListAuditTrail(ctx context.Context, q AuditTrailQuery) (*AuditTrailPage, error) {
	path := "/security/audit-trail"
	if enc := q.values().Encode(); enc != "" {
		path += "?" + enc
	}

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var page AuditTrailPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("threattrace: failed to parse audit trail: %w", err)
	}
	return &page, nil
}

// VerifyAuditTrail asks the server to recompute the full hash chain.
// A non-nil result with OK=false pinpoints the first bad entry.
func (c *Client) VerifyAuditTrail(ctx context.Context) (*VerifyResult, error) {
	body, err := c.get(ctx, "/security/audit-trail/verify")
	if err != nil {
		return nil, err
	}

	var result VerifyResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("threattrace: failed to parse verify result: %w", err)
	}
	return &result, nil
}

// ListBlockedIPs returns containment blocks. When activeOnly is true only
// blocks that have not yet expired are returned.
func (c *Client) ListBlockedIPs(ctx context.Context, activeOnly bool) ([]BlockedIP, error) {
	path := "/security/blocked-ips"
	if !activeOnly {
		path += "?active=false"
	}

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var resp struct {
		BlockedIPs []BlockedIP `json:"blockedIps"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("threattrace: failed to parse blocked IPs: %w", err)
	}
	return resp.BlockedIPs, nil
}

// UnblockIP removes a containment block for the given IP.
func (c *Client) UnblockIP(ctx context.Context, ip string) error {
	_, err := c.post(ctx, "/security/blocked-ips/"+url.PathEscape(ip)+"/unblock", nil)
	return err
}

// ListQuarantinedUsers returns users whose containment lock is still active.
func (c *Client) ListQuarantinedUsers(ctx context.Context) ([]QuarantinedUser, error) {
	body, err := c.get(ctx, "/security/quarantined-users")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Users []QuarantinedUser `json:"users"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("threattrace: failed to parse quarantined users: %w", err)
	}
	return resp.Users, nil
}

// ReleaseQuarantinedUser clears a user's containment lock.
func (c *Client) ReleaseQuarantinedUser(ctx context.Context, userID string) error {
	_, err := c.post(ctx, "/security/quarantined-users/"+url.PathEscape(userID)+"/release", nil)
	return err
}

// ListAlerts returns recent system alerts, newest first. limit <= 0 uses
// the server default.
func (c *Client) ListAlerts(ctx context.Context, limit int) ([]Alert, error) {
	path := "/security/alerts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Alerts []Alert `json:"alerts"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("threattrace: failed to parse alerts: %w", err)
	}
	return resp.Alerts, nil
}

// get sends a GET request to the ThreatTrace API.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("threattrace: failed to create request: %w", err)
	}
	return c.do(req)
}

// post sends a POST request to the ThreatTrace API.
func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("threattrace: failed to marshal request: %w", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("threattrace: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("threattrace: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("threattrace: failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	return body, nil
}
