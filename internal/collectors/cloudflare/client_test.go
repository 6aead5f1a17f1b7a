package cloudflare

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/infracollect/imgbundle/internal/engine"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestClient(t *testing.T, server *httptest.Server, opts ...ClientOption) *Client {
	t.Helper()

	client, err := NewClient(Config{
		Token:           "secret",
		AccountID:       "acct",
		AccountHash:     "hash",
		APIBaseURL:      server.URL + "/client/v4",
		DeliveryBaseURL: server.URL,
	}, append([]ClientOption{WithHttpClient(server.Client())}, opts...)...)
	require.NoError(t, err)
	return client
}

func TestNewClient(t *testing.T) {
	valid := Config{Token: "t", AccountID: "a", AccountHash: "h"}

	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Token = "" }, expectErr: "token is required"},
		{name: "missing account", mutate: func(c *Config) { c.AccountID = "" }, expectErr: "account_id is required"},
		{name: "missing hash", mutate: func(c *Config) { c.AccountHash = "" }, expectErr: "account_hash is required"},
		{name: "bad api scheme", mutate: func(c *Config) { c.APIBaseURL = "ftp://example.com" }, expectErr: "api_base_url must use http or https"},
		{name: "bad delivery url", mutate: func(c *Config) { c.DeliveryBaseURL = "://nope" }, expectErr: "delivery_base_url"},
		{name: "negative per page", mutate: func(c *Config) { c.PerPage = -1 }, expectErr: "per_page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			client, err := NewClient(cfg)
			if tt.expectErr != "" {
				require.Error(t, err)
				assert.ErrorContains(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "cloudflare(a)", client.Name())
			assert.Equal(t, CollectorKind, client.Kind())
			assert.Equal(t, DefaultAPIBaseURL, client.apiURL.String())
			assert.Equal(t, DefaultDeliveryBaseURL, client.deliveryURL.String())
			assert.Equal(t, DefaultTimeout, client.apiClient.Timeout)
			assert.Zero(t, client.deliveryClient.Timeout)
			require.NoError(t, client.Close(t.Context()))
		})
	}
}

func TestClient_List(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		response   string
		expected   []engine.ObjectDescriptor
		expectErr  error
		errContain string
	}{
		{
			name:   "images are mapped in order",
			status: http.StatusOK,
			response: `{"success": true, "errors": [], "result": {"images": [
				{"id": "img-1", "filename": "cat.png", "uploaded": "2024-03-05T10:20:30Z", "requireSignedURLs": false, "variants": ["https://imagedelivery.net/hash/img-1/public"], "meta": {"album": "pets"}},
				{"id": "img-2", "filename": "dog.jpg", "uploaded": "2024-03-06T00:00:00Z", "requireSignedURLs": true, "variants": []}
			], "continuation_token": null}}`,
			expected: []engine.ObjectDescriptor{
				{
					ID:       "img-1",
					Name:     "cat.png",
					Uploaded: time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC),
					Variants: []string{"https://imagedelivery.net/hash/img-1/public"},
					Meta:     map[string]any{"album": "pets"},
				},
				{
					ID:                "img-2",
					Name:              "dog.jpg",
					Uploaded:          time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
					RequireSignedURLs: true,
					Variants:          []string{},
				},
			},
		},
		{
			name:     "empty catalog",
			status:   http.StatusOK,
			response: `{"success": true, "result": {"images": []}}`,
			expected: []engine.ObjectDescriptor{},
		},
		{
			name:       "unauthorized",
			status:     http.StatusUnauthorized,
			response:   `{"success": false, "errors": [{"code": 10000, "message": "Authentication error"}]}`,
			expectErr:  engine.ErrCatalogAuth,
			errContain: "Authentication error",
		},
		{
			name:      "forbidden",
			status:    http.StatusForbidden,
			expectErr: engine.ErrCatalogAuth,
		},
		{
			name:       "server error",
			status:     http.StatusServiceUnavailable,
			response:   "upstream down",
			expectErr:  engine.ErrCatalogUnavailable,
			errContain: "status 503",
		},
		{
			name:      "invalid json",
			status:    http.StatusOK,
			response:  `{"success": tru`,
			expectErr: engine.ErrCatalogMalformedResponse,
		},
		{
			name:       "unsuccessful body",
			status:     http.StatusOK,
			response:   `{"success": false, "errors": [{"code": 5400, "message": "bad request"}]}`,
			expectErr:  engine.ErrCatalogMalformedResponse,
			errContain: "5400 bad request",
		},
		{
			name:       "image without id",
			status:     http.StatusOK,
			response:   `{"success": true, "result": {"images": [{"id": "a"}, {"filename": "x.png"}]}}`,
			expectErr:  engine.ErrCatalogMalformedResponse,
			errContain: "image 1 has no id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var capturedReq *http.Request
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				capturedReq = r
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			descs, err := newTestClient(t, server).List(t.Context())

			require.NotNil(t, capturedReq)
			assert.Equal(t, "/client/v4/accounts/acct/images/v2", capturedReq.URL.Path)
			assert.Equal(t, "Bearer secret", capturedReq.Header.Get("Authorization"))
			assert.Equal(t, "imgbundle/0.1.0", capturedReq.Header.Get("User-Agent"))

			if tt.expectErr != nil {
				require.ErrorIs(t, err, tt.expectErr)
				if tt.errContain != "" {
					assert.ErrorContains(t, err, tt.errContain)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, descs)
		})
	}
}

func TestClient_List_RequestOptions(t *testing.T) {
	var capturedReq *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedReq = r
		_, _ = w.Write([]byte(`{"success": true, "result": {"images": [{"id": "a"}], "continuation_token": "next-page"}}`))
	}))
	defer server.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	client, err := NewClient(Config{
		Token:       "secret",
		AccountID:   "acct",
		AccountHash: "hash",
		APIBaseURL:  server.URL,
		PerPage:     500,
		Headers:     map[string]string{"X-Trace": "abc"},
	}, WithHttpClient(server.Client()), WithLogger(zap.New(core)))
	require.NoError(t, err)

	descs, err := client.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, descs, 1)

	assert.Equal(t, "500", capturedReq.URL.Query().Get("per_page"))
	assert.Equal(t, "abc", capturedReq.Header.Get("X-Trace"))
	assert.Equal(t, 1, logs.FilterMessageSnippet("continuation token").Len())
}

func TestClient_Fetch(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		expectErr error
	}{
		{name: "streams the original", status: http.StatusOK, body: "\x89PNG raw bytes"},
		{name: "not found", status: http.StatusNotFound, expectErr: engine.ErrFetchNotFound},
		{name: "unauthorized", status: http.StatusUnauthorized, expectErr: engine.ErrFetchAuth},
		{name: "forbidden", status: http.StatusForbidden, expectErr: engine.ErrFetchAuth},
		{name: "bad gateway", status: http.StatusBadGateway, expectErr: engine.ErrFetchUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var capturedReq *http.Request
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				capturedReq = r
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			stream, err := newTestClient(t, server).Fetch(t.Context(), engine.ObjectDescriptor{ID: "img-1", Name: "cat.png"})

			require.NotNil(t, capturedReq)
			assert.Equal(t, "/hash/img-1/raw", capturedReq.URL.Path)
			assert.Equal(t, "Bearer secret", capturedReq.Header.Get("Authorization"))

			if tt.expectErr != nil {
				require.ErrorIs(t, err, tt.expectErr)
				assert.Nil(t, stream)
				return
			}
			require.NoError(t, err)
			defer func() { _ = stream.Close() }()

			content, err := io.ReadAll(stream)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(content))
		})
	}
}

func TestClient_Fetch_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	client := newTestClient(t, server)
	server.Close()

	_, err := client.Fetch(t.Context(), engine.ObjectDescriptor{ID: "img-1"})
	require.ErrorIs(t, err, engine.ErrFetchUnavailable)

	_, err = client.List(t.Context())
	require.ErrorIs(t, err, engine.ErrCatalogUnavailable)
}

func TestRegister(t *testing.T) {
	registry := engine.NewRegistry(zap.NewNop())
	Register(registry)

	assert.Equal(t, []string{CollectorKind}, registry.AvailableCollectors())

	_, err := registry.CreateCollector(t.Context(), CollectorKind, lo.ToPtr("wrong"))
	require.Error(t, err)
}
