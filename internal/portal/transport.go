package portal

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Response is the subset of an HTTP response the detail client needs.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs a single GET request.
type Transport interface {
	Get(ctx context.Context, url string, header http.Header) (*Response, error)
}

// HTTPTransport is the production Transport backed by net/http.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport with the given per-request timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		client: &http.Client{
			Timeout: timeout,
			// The detail endpoint answers a logged-out request with a redirect
			// to the SSO page; surface that instead of following it.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Get performs the request and reads the whole body.
func (t *HTTPTransport) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
