package server

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// NewUpstreamProxy proxies locally served requests to addr. addr may be a
// bare ":port", a host:port or a full URL.
func NewUpstreamProxy(addr string, logger *zap.Logger) (http.Handler, error) {
	raw := addr
	if strings.HasPrefix(raw, ":") {
		raw = "localhost" + raw
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	target, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream address %q: %w", addr, err)
	}
	if target.Host == "" {
		return nil, fmt.Errorf("invalid upstream address %q: missing host", addr)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("Upstream request failed",
			zap.String("upstream", target.Host),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"status":"error","error_code":2000,"message":"upstream unavailable"}`))
	}
	return proxy, nil
}
