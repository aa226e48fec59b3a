// Package metadata retrieves dataset metadata from a Socrata-style open data
// portal. The portal serves dataset pages at https://{site}/dataset/{id} and
// the JSON metadata API at https://{site}/api/views/{id}.
package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/opendata-tools/freshness/utils/log"
)

const (
	// DefaultSite is the portal hostname used when none is configured.
	DefaultSite = "data.austintexas.gov"
	// DefaultTimeout bounds a single metadata request.
	DefaultTimeout = 30 * time.Second

	userAgent = "freshness/1.0"
)

// Dataset is the subset of the portal metadata needed for a freshness check.
type Dataset struct {
	ID            string
	Name          string
	LastUpdatedAt time.Time
}

// Client fetches the metadata of a dataset.
type Client interface {
	Fetch(ctx context.Context, id string) (Dataset, error)
}

// DatasetURL returns the human-facing page of a dataset.
func DatasetURL(site, id string) string {
	return fmt.Sprintf("https://%s/dataset/%s", site, url.PathEscape(id))
}

// EndpointURL returns the metadata API endpoint of a dataset.
func EndpointURL(site, id string) string {
	return fmt.Sprintf("https://%s/api/views/%s", site, url.PathEscape(id))
}

// NewDefaultClient initializes a portal client for site with the given HTTP timeout.
func NewDefaultClient(site string, timeout time.Duration) *DefaultClient {
	return NewClientWithHTTPClient(site, &http.Client{Timeout: timeout})
}

// NewClientWithHTTPClient initializes a portal client that sends requests through hc.
func NewClientWithHTTPClient(site string, hc *http.Client) *DefaultClient {
	return &DefaultClient{httpClient: hc, site: site}
}

// DefaultClient is the portal client with a default http client.
type DefaultClient struct {
	httpClient *http.Client
	site       string
}

// Fetch calls the metadata endpoint for id and parses the response.
func (c *DefaultClient) Fetch(ctx context.Context, id string) (Dataset, error) {
	endpoint := EndpointURL(c.site, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return Dataset{}, errors.Wrap(err, "failed to create an http request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	body, err := c.execute(req)
	if err != nil {
		return Dataset{}, err
	}
	log.Debug("[metadata] fetched %d bytes from %s in %s", len(body), endpoint, time.Since(start))

	return Parse(id, body)
}

func (c *DefaultClient) execute(req *http.Request) (b []byte, err error) {
	log.Debug("[metadata] request url=%v", req.URL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RetrievalError{Err: errors.Wrap(err, "failed to execute HTTP request")}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "failed to close HTTP response")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RetrievalError{Err: errors.Errorf("unexpected HTTP status %s", resp.Status)}
	}

	b, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RetrievalError{Err: errors.Wrap(err, "failed to read the response body")}
	}
	return b, nil
}
