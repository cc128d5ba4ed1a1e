// Package dawa provides a client for the Danish address API (DAWA /
// Dataforsyningen), with a mirror endpoint fallback behind a circuit breaker.
package dawa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adnord/ownership-cli/internal/resilience"
)

// Default endpoints. The mirror carries the same API surface.
const (
	defaultBaseURL   = "https://api.dataforsyningen.dk"
	defaultMirrorURL = "https://dawa.aws.dk"
)

// Client defines the DAWA operations used by the resolver.
type Client interface {
	// StructuredSearch queries /adresser with explicit street, house number
	// and optional postal code parameters.
	StructuredSearch(ctx context.Context, street, houseNumber, postalCode string) ([]Address, error)
	// FuzzySearch queries /adresser with a free-text query and fuzzy matching.
	FuzzySearch(ctx context.Context, q string) ([]Address, error)
	// Parcel looks up a cadastral parcel by its ejerlav code and parcel number.
	Parcel(ctx context.Context, ejerlavCode int, parcelNumber string) (*Parcel, error)
}

// Municipality identifies the kommune an address belongs to.
type Municipality struct {
	Code string `json:"kode"`
	Name string `json:"navn"`
}

// Jordstykke is the cadastral parcel reference embedded in an address.
type Jordstykke struct {
	EjerlavCode  int    `json:"ejerlavkode"`
	ParcelNumber string `json:"matrikelnr"`
	BFENumber    int64  `json:"bfenummer"`
}

// Address is a single result from /adresser.
type Address struct {
	ID           string       `json:"id"`
	StreetName   string       `json:"vejnavn"`
	HouseNumber  string       `json:"husnr"`
	PostalCode   string       `json:"postnr"`
	PostalName   string       `json:"postnrnavn"`
	Municipality Municipality `json:"kommune"`
	Jordstykke   *Jordstykke  `json:"jordstykke,omitempty"`
}

// Parcel is a single result from /jordstykker.
type Parcel struct {
	EjerlavCode  int    `json:"ejerlavkode"`
	ParcelNumber string `json:"matrikelnr"`
	BFENumber    int64  `json:"bfenummer"`
}

// APIError is returned when DAWA responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dawa: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the primary base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithMirrorURL overrides the mirror base URL. An empty string disables the
// mirror fallback.
func WithMirrorURL(u string) Option {
	return func(c *httpClient) {
		c.mirrorURL = u
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

// httpClient implements Client using net/http. The primary endpoint sits
// behind a circuit breaker; once it opens, calls go straight to the mirror
// until the breaker resets.
type httpClient struct {
	baseURL   string
	mirrorURL string
	http      *http.Client
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
}

// NewClient creates a new DAWA client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		mirrorURL: defaultMirrorURL,
		http:      &http.Client{Timeout: 15 * time.Second},
		retry:     resilience.DefaultRetryConfig(),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     60 * time.Second,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("dawa: primary endpoint circuit state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) StructuredSearch(ctx context.Context, street, houseNumber, postalCode string) ([]Address, error) {
	params := url.Values{}
	params.Set("vejnavn", street)
	params.Set("husnr", houseNumber)
	if postalCode != "" {
		params.Set("postnr", postalCode)
	}
	params.Set("struktur", "mini")

	var addrs []Address
	if err := c.getJSON(ctx, "/adresser", params, &addrs); err != nil {
		return nil, eris.Wrap(err, "dawa: structured search")
	}
	return addrs, nil
}

func (c *httpClient) FuzzySearch(ctx context.Context, q string) ([]Address, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("fuzzy", "")
	params.Set("per_side", "10")

	var addrs []Address
	if err := c.getJSON(ctx, "/adresser", params, &addrs); err != nil {
		return nil, eris.Wrap(err, "dawa: fuzzy search")
	}
	return addrs, nil
}

func (c *httpClient) Parcel(ctx context.Context, ejerlavCode int, parcelNumber string) (*Parcel, error) {
	params := url.Values{}
	params.Set("ejerlavkode", fmt.Sprintf("%d", ejerlavCode))
	params.Set("matrikelnr", parcelNumber)

	var parcels []Parcel
	if err := c.getJSON(ctx, "/jordstykker", params, &parcels); err != nil {
		return nil, eris.Wrap(err, "dawa: parcel lookup")
	}
	if len(parcels) == 0 {
		return nil, nil
	}
	return &parcels[0], nil
}

// getJSON tries the primary endpoint through the circuit breaker, then the
// mirror. Both endpoints failing surfaces the mirror's error.
func (c *httpClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	primaryErr := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.doGet(ctx, c.baseURL, path, params, out)
	})
	if primaryErr == nil {
		return nil
	}

	if c.mirrorURL == "" {
		return primaryErr
	}

	zap.L().Debug("dawa: primary endpoint failed, trying mirror",
		zap.String("path", path),
		zap.Error(primaryErr),
	)
	if mirrorErr := c.doGet(ctx, c.mirrorURL, path, params, out); mirrorErr != nil {
		return eris.Wrap(mirrorErr, "dawa: mirror fallback")
	}
	return nil
}

// doGet performs a single GET with retries on transient failures. Each
// endpoint (primary, mirror) gets its own retry budget.
func (c *httpClient) doGet(ctx context.Context, base, path string, params url.Values, out any) error {
	retryCfg := c.retry
	retryCfg.OnRetry = resilience.RetryLogger("dawa", path)
	return resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		return c.getOnce(ctx, base, path, params, out)
	})
}

func (c *httpClient) getOnce(ctx context.Context, base, path string, params url.Values, out any) error {
	reqURL := base + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "dawa: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return eris.Wrap(err, "dawa: read body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "dawa: decode response")
	}
	return nil
}
