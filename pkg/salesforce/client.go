// Package salesforce provides JWT-authenticated REST API access to the CRM
// used as the system of record for properties and outreach contacts.
package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Salesforce operations used by the workflow. All writes
// are small, idempotent upserts keyed by business identifiers.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
	InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error)
	UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error
	// UpsertOne creates or updates a record keyed by an external id field,
	// returning the record id (empty when an existing record was updated).
	UpsertOne(ctx context.Context, sObjectName, externalIDField, externalID string, fields map[string]any) (string, error)
}

// ClientOption configures the Salesforce client.
type ClientOption func(*sfClient)

// WithRateLimit sets a per-second rate limit for SF API calls.
// A burst equal to the integer portion of rps is allowed.
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// sfClient wraps the go-salesforce/v3 Salesforce struct.
//
// NOTE: The underlying go-salesforce/v3 library does not accept context.Context,
// so all methods discard the ctx parameter for the SF call itself. However, the
// ctx is used for rate limiter waiting, so callers can still cancel that wait.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient creates a new Salesforce Client wrapping the given go-salesforce instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *sfClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "sf: rate limit")
	}
	if err := c.sf.Query(soql, out); err != nil {
		return eris.Wrap(err, "sf: query")
	}
	return nil
}

func (c *sfClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", eris.Wrap(err, "sf: rate limit")
	}
	result, err := c.sf.InsertOne(sObjectName, record)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("sf: insert %s", sObjectName))
	}
	if !result.Success {
		return "", eris.New(fmt.Sprintf("sf: insert %s failed: %v", sObjectName, result.Errors))
	}
	return result.Id, nil
}

func (c *sfClient) UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "sf: rate limit")
	}
	fields["Id"] = id
	if err := c.sf.UpdateOne(sObjectName, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update %s %s", sObjectName, id))
	}
	return nil
}

// upsertResult is the REST response body for an external-id PATCH.
type upsertResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Created bool   `json:"created"`
}

func (c *sfClient) UpsertOne(ctx context.Context, sObjectName, externalIDField, externalID string, fields map[string]any) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", eris.Wrap(err, "sf: rate limit")
	}

	body, err := json.Marshal(fields)
	if err != nil {
		return "", eris.Wrap(err, "sf: marshal upsert fields")
	}

	path := fmt.Sprintf("/sobjects/%s/%s/%s", sObjectName, externalIDField, externalID)
	resp, err := c.sf.DoRequest(http.MethodPatch, path, body)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("sf: upsert %s by %s", sObjectName, externalIDField))
	}
	defer resp.Body.Close() //nolint:errcheck

	// 204 No Content means an existing record was updated in place.
	if resp.StatusCode == http.StatusNoContent {
		return "", nil
	}

	var result upsertResult
	if err := decodeJSON(resp.Body, &result); err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("sf: decode upsert %s", sObjectName))
	}
	return result.ID, nil
}
