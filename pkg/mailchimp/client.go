// Package mailchimp provides a minimal Mailchimp Marketing API client for
// audience member upserts and tagging.
package mailchimp

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // Mailchimp subscriber ids are MD5 of the lowercase email
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// MaxBatchSize is the largest member list the batch endpoint accepts.
const MaxBatchSize = 500

// Client defines the audience operations used by contact sync.
type Client interface {
	// BatchSubscribe adds or updates up to MaxBatchSize members.
	BatchSubscribe(ctx context.Context, listID string, members []Member) (*BatchResult, error)
	// UpdateTags activates or deactivates tags on one member.
	UpdateTags(ctx context.Context, listID, email string, tags []TagUpdate) error
	// Ping checks credentials.
	Ping(ctx context.Context) error
}

// Member is an audience member in a batch subscribe request.
type Member struct {
	EmailAddress string         `json:"email_address"`
	StatusIfNew  string         `json:"status_if_new,omitempty"`
	MergeFields  map[string]any `json:"merge_fields,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
}

// TagUpdate sets a tag's status on a member: "active" or "inactive".
type TagUpdate struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// BatchResult is the batch subscribe response.
type BatchResult struct {
	NewMembers     []MemberRef   `json:"new_members"`
	UpdatedMembers []MemberRef   `json:"updated_members"`
	Errors         []MemberError `json:"errors"`
	TotalCreated   int           `json:"total_created"`
	TotalUpdated   int           `json:"total_updated"`
	ErrorCount     int           `json:"error_count"`
}

// MemberRef identifies a member in a batch response.
type MemberRef struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// MemberError is a per-member failure in a batch response.
type MemberError struct {
	EmailAddress string `json:"email_address"`
	Error        string `json:"error"`
	ErrorCode    string `json:"error_code"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Title      string `json:"title"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mailchimp: status %d: %s: %s", e.StatusCode, e.Title, e.Detail)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// SubscriberHash returns the member id Mailchimp derives from an email.
func SubscriberHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email)))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// DataCenter returns the data center suffix of an API key ("us21" for
// "abc-us21"), or "" when the key has none.
func DataCenter(apiKey string) string {
	i := strings.LastIndex(apiKey, "-")
	if i < 0 || i == len(apiKey)-1 {
		return ""
	}
	return apiKey[i+1:]
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the data-center URL derived from the key.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps requests per second. Zero disables the limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client. The key must carry a data-center suffix unless
// WithBaseURL is given.
func NewClient(apiKey string, opts ...Option) (Client, error) {
	c := &httpClient{
		apiKey: apiKey,
		http:   &http.Client{Timeout: 60 * time.Second},
	}
	if dc := DataCenter(apiKey); dc != "" {
		c.baseURL = fmt.Sprintf("https://%s.api.mailchimp.com/3.0", dc)
	}
	for _, o := range opts {
		o(c)
	}
	if c.baseURL == "" {
		return nil, eris.New("mailchimp: api key has no data center suffix")
	}
	return c, nil
}

func (c *httpClient) BatchSubscribe(ctx context.Context, listID string, members []Member) (*BatchResult, error) {
	if len(members) > MaxBatchSize {
		return nil, eris.Errorf("mailchimp: batch of %d exceeds %d members", len(members), MaxBatchSize)
	}
	payload := struct {
		Members        []Member `json:"members"`
		UpdateExisting bool     `json:"update_existing"`
	}{Members: members, UpdateExisting: true}

	var out BatchResult
	if err := c.do(ctx, http.MethodPost, "/lists/"+listID, payload, &out); err != nil {
		return nil, eris.Wrapf(err, "mailchimp: batch subscribe to %s", listID)
	}
	return &out, nil
}

func (c *httpClient) UpdateTags(ctx context.Context, listID, email string, tags []TagUpdate) error {
	path := fmt.Sprintf("/lists/%s/members/%s/tags", listID, SubscriberHash(email))
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"tags": tags}, nil); err != nil {
		return eris.Wrapf(err, "mailchimp: update tags for %s", email)
	}
	return nil
}

func (c *httpClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/ping", nil, nil)
}

func (c *httpClient) do(ctx context.Context, method, path string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "rate limiter")
		}
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.SetBasicAuth("leads", c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	return eris.Wrap(json.Unmarshal(respBody, out), "unmarshal response")
}
