package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/mri-lab/mri-console/internal/model/analysis"
)

// Analyze runs analysis on a finished reconstruction task.
func (c *Client) Analyze(ctx context.Context, taskID string) (analysis.Envelope, error) {
	var out analysis.Envelope
	if err := c.doJSON(ctx, c.authed, http.MethodPost, "/api/medical-analysis/analyze/"+url.PathEscape(taskID), nil, &out); err != nil {
		return out, err
	}
	return out, envelopeErr(out, "analysis request failed")
}

// AnalyzeUpload uploads an image and analyzes it directly.
func (c *Client) AnalyzeUpload(ctx context.Context, filename string, image io.Reader) (analysis.Envelope, error) {
	if err := ValidateUpload(filename); err != nil {
		return analysis.Envelope{}, err
	}
	body, contentType, err := multipartBody(filename, image, nil)
	if err != nil {
		return analysis.Envelope{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/medical-analysis/analyze-upload", body, contentType)
	if err != nil {
		return analysis.Envelope{}, err
	}

	var out analysis.Envelope
	if err := c.send(c.authed, req, &out); err != nil {
		return out, err
	}
	return out, envelopeErr(out, "analysis request failed")
}

// Analysis loads stored analysis results.
func (c *Client) Analysis(ctx context.Context, taskID string) (analysis.Envelope, error) {
	var out analysis.Envelope
	if err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/medical-analysis/analysis/"+url.PathEscape(taskID), nil, &out); err != nil {
		return out, err
	}
	return out, envelopeErr(out, "failed to load analysis results")
}

// Report exports an analysis report in the given format (e.g. "markdown").
func (c *Client) Report(ctx context.Context, taskID, format string) (analysis.Report, error) {
	path := "/api/medical-analysis/report/" + url.PathEscape(taskID) + "?report_format=" + url.QueryEscape(format)
	var out analysis.Report
	if err := c.doJSON(ctx, c.authed, http.MethodGet, path, nil, &out); err != nil {
		return out, err
	}
	if !out.Success {
		return out, fmt.Errorf("report export failed: %s", out.Message)
	}
	return out, nil
}

func envelopeErr(env analysis.Envelope, fallback string) error {
	if env.Success {
		return nil
	}
	if env.Message != "" {
		return errors.New(env.Message)
	}
	return errors.New(fallback)
}
