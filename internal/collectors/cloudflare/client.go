package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/infracollect/imgbundle/internal/engine"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	CollectorKind = "cloudflare"

	DefaultAPIBaseURL      = "https://api.cloudflare.com/client/v4"
	DefaultDeliveryBaseURL = "https://imagedelivery.net"
	DefaultTimeout         = 30 * time.Second
)

var defaultHeaders = map[string]string{
	"User-Agent": "imgbundle/0.1.0",
	"Accept":     "application/json",
}

type Config struct {
	Token       string
	AccountID   string
	AccountHash string
	// APIBaseURL serves the image listing.
	APIBaseURL string
	// DeliveryBaseURL serves the raw image bytes.
	DeliveryBaseURL string
	PerPage         int
	// Timeout bounds the listing request. Image downloads are not bounded by it.
	Timeout time.Duration
	Headers map[string]string
	// MaxIdleConnsPerHost sizes the connection pool; set it to the batch size.
	MaxIdleConnsPerHost int
}

// Client lists images of one Cloudflare Images account and downloads their
// originals.
type Client struct {
	logger      *zap.Logger
	apiURL      *url.URL
	deliveryURL *url.URL
	accountID   string
	accountHash string
	perPage     int
	headers     map[string]string

	apiClient      *http.Client
	deliveryClient *http.Client
}

type ClientOption func(*Client)

// WithHttpClient uses httpClient for both the listing and the downloads.
func WithHttpClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.apiClient = httpClient
		c.deliveryClient = httpClient
	}
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	var errs []error
	if cfg.Token == "" {
		errs = append(errs, errors.New("token is required"))
	}
	if cfg.AccountID == "" {
		errs = append(errs, errors.New("account_id is required"))
	}
	if cfg.AccountHash == "" {
		errs = append(errs, errors.New("account_hash is required"))
	}
	if cfg.PerPage < 0 {
		errs = append(errs, fmt.Errorf("per_page must not be negative, got %d", cfg.PerPage))
	}

	apiURL, err := parseBaseURL("api_base_url", lo.CoalesceOrEmpty(cfg.APIBaseURL, DefaultAPIBaseURL))
	errs = append(errs, err)
	deliveryURL, err := parseBaseURL("delivery_base_url", lo.CoalesceOrEmpty(cfg.DeliveryBaseURL, DefaultDeliveryBaseURL))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	headers := lo.Assign(defaultHeaders, cfg.Headers)
	headers["Authorization"] = "Bearer " + cfg.Token

	client := &Client{
		logger:      zap.NewNop(),
		apiURL:      apiURL,
		deliveryURL: deliveryURL,
		accountID:   cfg.AccountID,
		accountHash: cfg.AccountHash,
		perPage:     cfg.PerPage,
		headers:     headers,
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.apiClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}

		transport := cleanhttp.DefaultPooledTransport()
		transport.ResponseHeaderTimeout = timeout
		if cfg.MaxIdleConnsPerHost > 0 {
			transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
		}

		client.apiClient = &http.Client{Transport: transport, Timeout: timeout}
		// Client.Timeout would cut off large downloads mid-body
		client.deliveryClient = &http.Client{Transport: transport}
	}

	return client, nil
}

func parseBaseURL(field, raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s '%s': %w", field, raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%s must use http or https scheme, got: %s", field, parsed.Scheme)
	}
	return parsed, nil
}

var _ engine.Collector = (*Client)(nil)

func (c *Client) Name() string {
	return fmt.Sprintf("%s(%s)", CollectorKind, c.accountID)
}

func (c *Client) Kind() string {
	return CollectorKind
}

func (c *Client) Close(context.Context) error {
	c.deliveryClient.CloseIdleConnections()
	c.apiClient.CloseIdleConnections()
	return nil
}

func (c *Client) newRequest(ctx context.Context, u *url.URL) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}
