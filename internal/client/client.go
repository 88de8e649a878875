// Package client is a thin HTTP client for the masq management API,
// used by the CLI subcommands.
package client

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/getmasq/masq/internal/api"
)

// Client talks to a running masq daemon.
type Client struct {
	BaseURL string
	APIKey  string
}

// NewClient returns a Client for the API at baseURL. An empty apiKey is
// fine against a daemon with no keys provisioned.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// Redact exchanges values for aliases, creating them as needed.
func (c *Client) Redact(entries []api.RedactEntry) (*api.RedactResponse, error) {
	var result api.RedactResponse
	if err := c.do("POST", "/aliases", api.RedactRequest{Data: entries}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Reveal resolves a batch of public aliases back to their values.
// Unknown aliases are omitted from the response.
func (c *Client) Reveal(publicAliases []string) (*api.RevealResponse, error) {
	q := url.Values{}
	q.Set("q", strings.Join(publicAliases, ","))

	var result api.RevealResponse
	if err := c.do("GET", "/aliases?"+q.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RevealOne resolves a single public alias.
func (c *Client) RevealOne(publicAlias string) (*api.AliasRecord, error) {
	var result api.AliasRecord
	if err := c.do("GET", "/aliases/"+url.PathEscape(publicAlias), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Cleanup removes expired aliases and reports how many went away.
func (c *Client) Cleanup() (*api.CleanupResponse, error) {
	var result api.CleanupResponse
	if err := c.do("POST", "/aliases/cleanup", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRoutes returns all routes in match order.
func (c *Client) ListRoutes() (*api.ListRoutesResponse, error) {
	var result api.ListRoutesResponse
	if err := c.do("GET", "/route", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateRoute persists a new route.
func (c *Client) CreateRoute(spec api.RouteSpec) (*api.RouteInfo, error) {
	var result api.RouteInfo
	if err := c.do("POST", "/route", spec, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRoute fetches one route by ID.
func (c *Client) GetRoute(id string) (*api.RouteInfo, error) {
	var result api.RouteInfo
	if err := c.do("GET", "/route/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteRoute removes a route by ID.
func (c *Client) DeleteRoute(id string) (*api.DeleteRouteResponse, error) {
	var result api.DeleteRouteResponse
	if err := c.do("DELETE", "/route/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Rewrite previews a route's rewrite rules against a body.
func (c *Client) Rewrite(req api.RewriteRequest) (*api.RewriteResponse, error) {
	var result api.RewriteResponse
	if err := c.do("POST", "/rewrite", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(method, path string, reqBody, result any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}
	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

func parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Newf("request failed with status %d", resp.StatusCode)
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return errors.Newf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return errors.New(errResp.Error)
}
