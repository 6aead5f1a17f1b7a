package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/infracollect/imgbundle/internal/engine"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type listResponse struct {
	Success bool       `json:"success"`
	Errors  []apiError `json:"errors"`
	Result  *struct {
		Images            []image `json:"images"`
		ContinuationToken *string `json:"continuation_token"`
	} `json:"result"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type image struct {
	ID                string         `json:"id"`
	Filename          string         `json:"filename"`
	Uploaded          time.Time      `json:"uploaded"`
	RequireSignedURLs bool           `json:"requireSignedURLs"`
	Variants          []string       `json:"variants"`
	Meta              map[string]any `json:"meta"`
}

// List issues a single listing request. A continuation token in the response
// is reported but not followed.
func (c *Client) List(ctx context.Context) ([]engine.ObjectDescriptor, error) {
	u := c.apiURL.JoinPath("accounts", c.accountID, "images", "v2")
	if c.perPage > 0 {
		u.RawQuery = "per_page=" + strconv.Itoa(c.perPage)
	}

	req, err := c.newRequest(ctx, u)
	if err != nil {
		return nil, err
	}

	resp, err := c.apiClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrCatalogUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d: %s", engine.ErrCatalogAuth, resp.StatusCode, readSnippet(resp.Body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: status %d: %s", engine.ErrCatalogUnavailable, resp.StatusCode, readSnippet(resp.Body))
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %w", engine.ErrCatalogMalformedResponse, err)
	}
	if !body.Success {
		msgs := lo.Map(body.Errors, func(e apiError, _ int) string {
			return fmt.Sprintf("%d %s", e.Code, e.Message)
		})
		return nil, fmt.Errorf("%w: request unsuccessful: %s", engine.ErrCatalogMalformedResponse, strings.Join(msgs, "; "))
	}
	if body.Result == nil {
		return nil, fmt.Errorf("%w: missing result", engine.ErrCatalogMalformedResponse)
	}

	if token := body.Result.ContinuationToken; token != nil && *token != "" {
		c.logger.Warn("listing is truncated, continuation token not followed",
			zap.String("account_id", c.accountID),
			zap.Int("listed", len(body.Result.Images)),
		)
	}

	descs := make([]engine.ObjectDescriptor, 0, len(body.Result.Images))
	for i, img := range body.Result.Images {
		if img.ID == "" {
			return nil, fmt.Errorf("%w: image %d has no id", engine.ErrCatalogMalformedResponse, i)
		}
		descs = append(descs, engine.ObjectDescriptor{
			ID:                img.ID,
			Name:              img.Filename,
			Uploaded:          img.Uploaded,
			RequireSignedURLs: img.RequireSignedURLs,
			Variants:          img.Variants,
			Meta:              img.Meta,
		})
	}

	c.logger.Debug("listed images", zap.Int("count", len(descs)))
	return descs, nil
}

func readSnippet(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 1024))
	return strings.TrimSpace(string(body))
}
