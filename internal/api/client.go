package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/banshee-data/trackeff.report/internal/db"
	"github.com/banshee-data/trackeff.report/internal/efficiency"
	"github.com/banshee-data/trackeff.report/internal/httputil"
)

// Client queries a running API server.
type Client struct {
	BaseURL string
	HTTP    httputil.HTTPClient
}

// NewClient returns a client for the server at baseURL. A nil c uses
// http.DefaultClient.
func NewClient(baseURL string, c httputil.HTTPClient) *Client {
	if c == nil {
		c = http.DefaultClient
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: c}
}

// ListRuns returns the stored runs, most recent first.
func (c *Client) ListRuns(ctx context.Context) ([]db.Run, error) {
	var runs []db.Run
	err := httputil.GetJSON(ctx, c.HTTP, c.BaseURL+"/api/runs", &runs)
	return runs, err
}

// Run returns one run with its histogram list.
func (c *Client) Run(ctx context.Context, id string) (*RunDetail, error) {
	var d RunDetail
	if err := httputil.GetJSON(ctx, c.HTTP, c.BaseURL+"/api/runs/"+url.PathEscape(id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Efficiency fetches one efficiency curve computed with the server defaults.
func (c *Client) Efficiency(ctx context.Context, id string, status efficiency.Status, v efficiency.Variable) (*efficiency.Curve, error) {
	q := url.Values{}
	q.Set("status", string(status))
	q.Set("axis", string(v))
	var curve efficiency.Curve
	u := c.BaseURL + "/api/runs/" + url.PathEscape(id) + "/efficiency?" + q.Encode()
	if err := httputil.GetJSON(ctx, c.HTTP, u, &curve); err != nil {
		return nil, err
	}
	return &curve, nil
}
