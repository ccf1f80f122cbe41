package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/mri-lab/mri-console/internal/model/dashboard"
	"github.com/mri-lab/mri-console/internal/model/reconstruction"
)

func (c *Client) Stats(ctx context.Context) (dashboard.Stats, error) {
	var out dashboard.Stats
	err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/dashboard/stats", nil, &out)
	return out, err
}

func (c *Client) RecentReconstructions(ctx context.Context) ([]dashboard.RecentReconstruction, error) {
	var out []dashboard.RecentReconstruction
	if err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/dashboard/recent-reconstructions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RecentQA(ctx context.Context) ([]dashboard.RecentQA, error) {
	var out []dashboard.RecentQA
	if err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/dashboard/recent-qa", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DashboardReconstruction loads the detail view of a recent reconstruction.
func (c *Client) DashboardReconstruction(ctx context.Context, id string) (reconstruction.Result, error) {
	var out reconstruction.Result
	err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/dashboard/reconstruction/"+url.PathEscape(id), nil, &out)
	return out, err
}
