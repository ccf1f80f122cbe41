package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mri-lab/mri-console/internal/model/reconstruction"
)

// SupportedImageExt lists the upload formats the backend accepts.
var SupportedImageExt = []string{".png", ".jpg", ".jpeg", ".dcm", ".nii", ".gz", ".mat", ".npy"}

// ValidateUpload rejects unsupported files before any request is sent.
func ValidateUpload(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, ok := range SupportedImageExt {
		if ext == ok {
			return nil
		}
	}
	return fmt.Errorf("unsupported file type %q", ext)
}

// Models lists available reconstruction models.
func (c *Client) Models(ctx context.Context) ([]reconstruction.Model, error) {
	var out []reconstruction.Model
	if err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/reconstruction/models", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Model fetches one model's details.
func (c *Client) Model(ctx context.Context, id string) (reconstruction.Model, error) {
	var out reconstruction.Model
	err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/models/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Reconstruct uploads an image with the chosen model.
func (c *Client) Reconstruct(ctx context.Context, filename string, image io.Reader, modelID string) (reconstruction.Result, error) {
	if err := ValidateUpload(filename); err != nil {
		return reconstruction.Result{}, err
	}
	if strings.TrimSpace(modelID) == "" {
		return reconstruction.Result{}, fmt.Errorf("model id is required")
	}

	body, contentType, err := multipartBody(filename, image, map[string]string{"model_id": modelID})
	if err != nil {
		return reconstruction.Result{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/reconstruction/", body, contentType)
	if err != nil {
		return reconstruction.Result{}, err
	}

	var out reconstruction.Result
	if err := c.send(c.authed, req, &out); err != nil {
		return reconstruction.Result{}, err
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "unknown error"
		}
		return out, fmt.Errorf("reconstruction failed: %s", msg)
	}
	return out, nil
}

// Result fetches a finished reconstruction by id.
func (c *Client) Result(ctx context.Context, resultID string) (reconstruction.Result, error) {
	var out reconstruction.Result
	err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/reconstruction/results/"+url.PathEscape(resultID), nil, &out)
	return out, err
}

// History returns one page of reconstruction history.
func (c *Client) History(ctx context.Context, page, pageSize int) (reconstruction.HistoryPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var out reconstruction.HistoryPage
	err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/reconstruction-history?"+q.Encode(), nil, &out)
	return out, err
}

func multipartBody(filename string, r io.Reader, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("copy upload: %w", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
