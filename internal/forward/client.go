package forward

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/devrev/litefs-sidecar/internal/model"
	"github.com/devrev/litefs-sidecar/internal/port"
	"go.uber.org/zap"
)

// ForwardedHeader marks a request that was already forwarded once. A node
// receiving it serves the request locally instead of forwarding again.
const ForwardedHeader = "X-Litefs-Sidecar-Forwarded"

// maxResponseBytes bounds what is read back from the primary
const maxResponseBytes = 32 << 20

// hop-by-hop headers are dropped in both directions
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

var _ port.Forwarder = (*HTTPForwarder)(nil)

// HTTPForwarder replays requests on the primary over HTTP
type HTTPForwarder struct {
	client *http.Client
	nodeID string
	logger *zap.Logger
}

// NewHTTPForwarder creates a forwarder whose attempts are bounded by timeout
func NewHTTPForwarder(timeout time.Duration, nodeID string, logger *zap.Logger) *HTTPForwarder {
	return &HTTPForwarder{
		client: &http.Client{
			Timeout: timeout,
			// Redirects are the client's business.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		nodeID: nodeID,
		logger: logger,
	}
}

// Forward implements port.Forwarder. Transport errors are returned
// unwrapped so they can be classified by the retry policy.
func (f *HTTPForwarder) Forward(ctx context.Context, primaryURL string, req model.ForwardRequest) (*model.ForwardResponse, error) {
	target := primaryURL + req.Path
	if req.Query != "" {
		target += "?" + req.Query
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to build forward request: %w", err)
	}
	httpReq.Header = req.Headers.Clone()
	if httpReq.Header == nil {
		httpReq.Header = make(http.Header)
	}
	removeHopHeaders(httpReq.Header)
	httpReq.Header.Set(ForwardedHeader, f.nodeID)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	headers := resp.Header.Clone()
	removeHopHeaders(headers)

	f.logger.Debug("Forwarded request to primary",
		zap.String("primary_url", primaryURL),
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode))

	return &model.ForwardResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       body,
	}, nil
}

func removeHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
