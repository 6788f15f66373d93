// Package salesforce pushes lead stages into Salesforce Lead records over the
// REST API, authenticating with the JWT bearer flow.
package salesforce

import (
	"context"
	"strings"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client is the subset of the Salesforce API used for lead upserts.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
	InsertCollection(ctx context.Context, object string, records []map[string]any) ([]CollectionResult, error)
	UpdateCollection(ctx context.Context, object string, records []CollectionRecord) ([]CollectionResult, error)
}

// CollectionRecord is an existing record to patch.
type CollectionRecord struct {
	ID     string         `json:"Id"`
	Fields map[string]any `json:"fields"`
}

// values flattens the record into the shape the collections API expects.
func (r CollectionRecord) values() map[string]any {
	m := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		m[k] = v
	}
	m["Id"] = r.ID
	return m
}

// CollectionResult reports one record of a collection call.
type CollectionResult struct {
	ID      string   `json:"id"`
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

// Message joins the record's error messages.
func (r CollectionResult) Message() string {
	if len(r.Errors) == 0 && !r.Success {
		return "unknown error"
	}
	return strings.Join(r.Errors, "; ")
}

// Option configures a Client.
type Option func(*restClient)

// WithRateLimit throttles API calls to rps requests per second.
// A non-positive rate leaves calls unthrottled.
func WithRateLimit(rps float64) Option {
	return func(c *restClient) {
		if rps <= 0 {
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// restClient adapts go-salesforce, which takes no context. The context only
// bounds the limiter wait.
type restClient struct {
	sf      *gosf.Salesforce
	limiter *rate.Limiter
}

// NewClient wraps an initialized go-salesforce session.
func NewClient(sf *gosf.Salesforce, opts ...Option) Client {
	c := &restClient{sf: sf}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect logs in with the JWT bearer flow and returns a Client.
func Connect(loginURL, username, clientID, pemKey string, opts ...Option) (Client, error) {
	sf, err := gosf.Init(gosf.Creds{
		Domain:         loginURL,
		Username:       username,
		ConsumerKey:    clientID,
		ConsumerRSAPem: pemKey,
	})
	if err != nil {
		return nil, eris.Wrap(err, "sf: jwt login")
	}
	return NewClient(sf, opts...), nil
}

// throttle blocks until the limiter admits one call.
func (c *restClient) throttle(ctx context.Context) error {
	if c.limiter == nil {
		return ctx.Err()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "sf: rate limit")
	}
	return nil
}

func (c *restClient) Query(ctx context.Context, soql string, out any) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}
	return eris.Wrap(c.sf.Query(soql, out), "sf: query")
}

func (c *restClient) InsertCollection(ctx context.Context, object string, records []map[string]any) ([]CollectionResult, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	res, err := c.sf.InsertCollection(object, records, maxBatchSize)
	if err != nil {
		return nil, eris.Wrapf(err, "sf: insert collection %s", object)
	}
	return collectionResults(res.Results), nil
}

func (c *restClient) UpdateCollection(ctx context.Context, object string, records []CollectionRecord) ([]CollectionResult, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, r.values())
	}
	res, err := c.sf.UpdateCollection(object, rows, maxBatchSize)
	if err != nil {
		return nil, eris.Wrapf(err, "sf: update collection %s", object)
	}
	return collectionResults(res.Results), nil
}

func collectionResults(in []gosf.SalesforceResult) []CollectionResult {
	out := make([]CollectionResult, 0, len(in))
	for _, r := range in {
		res := CollectionResult{ID: r.Id, Success: r.Success}
		for _, e := range r.Errors {
			res.Errors = append(res.Errors, e.Message)
		}
		out = append(out, res)
	}
	return out
}
