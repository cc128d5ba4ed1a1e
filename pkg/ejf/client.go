// Package ejf provides a client for the ownership register (Ejerfortegnelsen)
// served through Datafordeleren, keyed by BFE number.
package ejf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/adnord/ownership-cli/internal/resilience"
)

const defaultBaseURL = "https://services.datafordeler.dk/EJERFORTEGNELSE/Ejerfortegnelsen/1.0.0/rest"

// Client defines the ownership register operations used by the resolver.
type Client interface {
	// GetOwnership fetches the ownership record for a BFE number. Returns
	// (nil, nil) when the register has no record for the property.
	GetOwnership(ctx context.Context, bfeNumber int64) (*OwnershipRecord, error)
}

// Party is an owner or administrator named on an ownership record.
type Party struct {
	Name      string `json:"navn"`
	IsPrimary bool   `json:"primaerKontakt"`
}

// OwnershipRecord is the register's view of who holds a property.
type OwnershipRecord struct {
	BFENumber      int64   `json:"bfeNummer"`
	Owners         []Party `json:"ejere"`
	Administrators []Party `json:"administratorer"`
	OwnershipCode  int     `json:"ejerforholdskode"`
	OwnershipText  string  `json:"ejerforholdstekst"`
	Municipality   string  `json:"kommunenavn"`
}

// APIError is returned on a non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ejf: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetryConfig overrides the retry policy for transient failures.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	username string
	password string
	baseURL  string
	http     *http.Client
	retry    resilience.RetryConfig
}

// NewClient creates a new Ejerfortegnelsen client with Datafordeler service
// user credentials.
func NewClient(username, password string, opts ...Option) Client {
	c := &httpClient{
		username: username,
		password: password,
		baseURL:  defaultBaseURL,
		http:     &http.Client{Timeout: 20 * time.Second},
		retry:    resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	body       []byte
	statusCode int
}

func (c *httpClient) GetOwnership(ctx context.Context, bfeNumber int64) (*OwnershipRecord, error) {
	params := url.Values{}
	params.Set("BFEnr", fmt.Sprintf("%d", bfeNumber))
	params.Set("username", c.username)
	params.Set("password", c.password)
	params.Set("format", "json")
	reqURL := c.baseURL + "/ejendomsejere?" + params.Encode()

	retryCfg := c.retry
	retryCfg.OnRetry = resilience.RetryLogger("ejf", "ejendomsejere")
	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (response, error) {
		return c.get(ctx, reqURL)
	})
	if err != nil {
		return nil, err
	}

	if resp.statusCode == http.StatusNotFound {
		return nil, nil
	}

	var records []OwnershipRecord
	if err := json.Unmarshal(resp.body, &records); err != nil {
		return nil, eris.Wrap(err, "ejf: decode response")
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (c *httpClient) get(ctx context.Context, reqURL string) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return response{}, eris.Wrap(err, "ejf: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return response{}, eris.Wrap(err, "ejf: read body")
	}

	if resp.StatusCode == http.StatusNotFound {
		return response{body: body, statusCode: resp.StatusCode}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return response{}, resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return response{}, apiErr
	}
	return response{body: body, statusCode: resp.StatusCode}, nil
}
