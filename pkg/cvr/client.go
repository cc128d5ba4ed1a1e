// Package cvr provides a client for the Danish central business register.
package cvr

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

const defaultBaseURL = "https://cvrapi.dk/api"

// Client defines the business register lookups used by the matcher. Both
// return raw, unscored candidates; scoring is the matcher's job.
type Client interface {
	// SearchByName looks up companies by legal name. Returns an empty slice
	// when nothing matches.
	SearchByName(ctx context.Context, name string) ([]Company, error)
	// GetByNumber looks up a company by CVR number. Returns (nil, nil) when
	// the number is unknown.
	GetByNumber(ctx context.Context, cvrNumber int) (*Company, error)
}

// CompanyOwner is an owner listed on a register entry.
type CompanyOwner struct {
	Name string `json:"name"`
}

// Company is a single register entry.
type Company struct {
	CVRNumber  int            `json:"vat"`
	Name       string         `json:"name"`
	Address    string         `json:"address"`
	PostalCode string         `json:"zipcode"`
	City       string         `json:"city"`
	Protected  bool           `json:"protected"`
	Phone      string         `json:"phone"`
	Email      string         `json:"email"`
	Industry   string         `json:"industrydesc"`
	EndDate    string         `json:"enddate"`
	Owners     []CompanyOwner `json:"owners"`
}

// Active reports whether the entry is still registered as operating.
func (c *Company) Active() bool {
	return c.EndDate == ""
}

// APIError is returned on a non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cvr: HTTP %d: %s", e.StatusCode, e.Body)
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
	userAgent string
	baseURL   string
	http      *http.Client
	retry     resilience.RetryConfig
}

// NewClient creates a new CVR client. The register requires an identifying
// user agent.
func NewClient(userAgent string, opts ...Option) Client {
	c := &httpClient{
		userAgent: userAgent,
		baseURL:   defaultBaseURL,
		http:      &http.Client{Timeout: 15 * time.Second},
		retry:     resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchByName(ctx context.Context, name string) ([]Company, error) {
	params := url.Values{}
	params.Set("search", name)
	params.Set("country", "dk")
	params.Set("version", "6")

	body, status, err := c.get(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "cvr: search by name")
	}
	if status == http.StatusNotFound {
		return nil, nil
	}

	// The search endpoint returns either a single object or an array
	// depending on how many entries matched.
	var companies []Company
	if err := json.Unmarshal(body, &companies); err != nil {
		var single Company
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, eris.Wrap(err, "cvr: decode search response")
		}
		companies = []Company{single}
	}
	return companies, nil
}

func (c *httpClient) GetByNumber(ctx context.Context, cvrNumber int) (*Company, error) {
	params := url.Values{}
	params.Set("vat", fmt.Sprintf("%d", cvrNumber))
	params.Set("country", "dk")
	params.Set("version", "6")

	body, status, err := c.get(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("cvr: get %d", cvrNumber))
	}
	if status == http.StatusNotFound {
		return nil, nil
	}

	var company Company
	if err := json.Unmarshal(body, &company); err != nil {
		return nil, eris.Wrap(err, "cvr: decode response")
	}
	if company.CVRNumber == 0 {
		return nil, nil
	}
	return &company, nil
}

type response struct {
	body       []byte
	statusCode int
}

// get performs the request with retries on transient failures and returns the
// body and status. 404 is handed back to the caller as an expected miss, not
// an error.
func (c *httpClient) get(ctx context.Context, params url.Values) ([]byte, int, error) {
	retryCfg := c.retry
	retryCfg.OnRetry = resilience.RetryLogger("cvr", params.Get("search")+params.Get("vat"))
	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (response, error) {
		return c.getOnce(ctx, params)
	})
	if err != nil {
		return nil, 0, err
	}
	return resp.body, resp.statusCode, nil
}

func (c *httpClient) getOnce(ctx context.Context, params url.Values) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return response{}, eris.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return response{}, eris.Wrap(err, "read body")
	}

	if resp.StatusCode == http.StatusNotFound {
		return response{statusCode: resp.StatusCode}, nil
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
