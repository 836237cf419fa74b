package forward

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	sidecarerrors "github.com/devrev/litefs-sidecar/internal/errors"
	"github.com/devrev/litefs-sidecar/internal/model"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxRequestBytes bounds a buffered client body
const maxRequestBytes = 32 << 20

// Middleware sends writes arriving on a replica to the primary and lets
// everything else through to the next handler.
type Middleware struct {
	service *Service
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewMiddleware creates the forwarding middleware. Forwarded requests are
// limited to requestsPerSecond with the given burst; zero disables limiting.
func NewMiddleware(service *Service, requestsPerSecond float64, burstSize int, logger *zap.Logger) *Middleware {
	m := &Middleware{
		service: service,
		logger:  logger,
	}
	if requestsPerSecond > 0 {
		if burstSize < 1 {
			burstSize = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burstSize)
	}
	return m
}

// Handler wraps next; it satisfies mux.MiddlewareFunc.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, sidecarerrors.ErrCodeInternal, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, sidecarerrors.ErrCodeInternal, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		req := model.ForwardRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Query:   r.URL.RawQuery,
			Headers: r.Header.Clone(),
			Body:    body,
		}

		decision := m.service.Decide(req)
		if !decision.Forward {
			next.ServeHTTP(w, r)
			return
		}

		if m.limiter != nil && !m.limiter.Allow() {
			m.logger.Warn("rate limit exceeded",
				zap.String("request_id", r.Header.Get("X-Request-ID")),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr))
			w.Header().Set("Retry-After", "1")
			respondError(w, sidecarerrors.RateLimited())
			return
		}

		resp, err := m.service.Forward(r.Context(), decision.PrimaryURL, req)
		if err != nil {
			respondError(w, err)
			return
		}

		for name, values := range resp.Headers {
			for _, v := range values {
				w.Header().Add(name, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := w.Write(resp.Body); err != nil {
			m.logger.Debug("Failed to write forwarded response", zap.Error(err))
		}
	})
}

type errorResponse struct {
	Status    string `json:"status"`
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

func respondError(w http.ResponseWriter, err error) {
	var se *sidecarerrors.SidecarError
	if errors.As(err, &se) {
		writeError(w, se.HTTPStatus(), se.Code, se.Error())
		return
	}
	writeError(w, http.StatusBadGateway, sidecarerrors.ErrCodeForwardFailed, err.Error())
}

func writeError(w http.ResponseWriter, status int, code sidecarerrors.ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Status:    "error",
		ErrorCode: int(code),
		Message:   message,
	})
}
