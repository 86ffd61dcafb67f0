package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// TransportFactory builds a fresh MCP transport for each handshake attempt.
type TransportFactory func(ctx context.Context) (mcp.Transport, error)

// StreamableHTTPFactory returns a factory for an MCP Streamable HTTP endpoint.
func StreamableHTTPFactory(endpoint string, headers map[string]string, base *http.Client) (TransportFactory, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("streamable http endpoint is required")
	}
	client, err := buildHTTPClient(headers, base)
	if err != nil {
		return nil, err
	}
	return func(context.Context) (mcp.Transport, error) {
		return &mcp.StreamableClientTransport{
			Endpoint:   endpoint,
			HTTPClient: client,
		}, nil
	}, nil
}

func buildHTTPClient(headers map[string]string, base *http.Client) (*http.Client, error) {
	h := http.Header{}
	for key, value := range headers {
		name := http.CanonicalHeaderKey(strings.TrimSpace(key))
		if name == "" {
			return nil, errors.New("http headers contain empty key")
		}
		h.Set(name, value)
	}

	client := &http.Client{}
	if base != nil {
		copied := *base
		client = &copied
	}
	rt := client.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	if len(h) > 0 {
		rt = &headerRoundTripper{base: rt, headers: h}
	}
	client.Transport = rt
	return client, nil
}

type headerRoundTripper struct {
	base    http.RoundTripper
	headers http.Header
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for key, values := range h.headers {
		req.Header.Del(key)
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return h.base.RoundTrip(req)
}
