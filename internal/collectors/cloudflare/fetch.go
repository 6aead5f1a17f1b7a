package cloudflare

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/infracollect/imgbundle/internal/engine"
)

// Fetch downloads the original bytes of one image. The body is returned
// unbuffered and must be closed by the caller.
func (c *Client) Fetch(ctx context.Context, desc engine.ObjectDescriptor) (io.ReadCloser, error) {
	u := c.deliveryURL.JoinPath(c.accountHash, desc.ID, "raw")

	req, err := c.newRequest(ctx, u)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.deliveryClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrFetchUnavailable, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, nil
	}

	defer func() { _ = resp.Body.Close() }()
	snippet := readSnippet(resp.Body)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d: %s", engine.ErrFetchAuth, resp.StatusCode, snippet)
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: status %d", engine.ErrFetchNotFound, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d: %s", engine.ErrFetchUnavailable, resp.StatusCode, snippet)
	}
}
