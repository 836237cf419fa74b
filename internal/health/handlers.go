package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	sidecarerrors "github.com/devrev/litefs-sidecar/internal/errors"
	"github.com/devrev/litefs-sidecar/internal/model"
	"go.uber.org/zap"
)

// Handlers exposes the checkers as HTTP probe endpoints
type Handlers struct {
	health    *HealthChecker
	liveness  *LivenessChecker
	readiness *ReadinessChecker
	logger    *zap.Logger
	timeout   time.Duration
}

// StatusResponse is the body of the /health endpoint
type StatusResponse struct {
	Status    model.HealthStatus `json:"status"`
	Timestamp int64              `json:"timestamp"`
	Checks    []CheckResult      `json:"checks,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// NewHandlers creates probe handlers
func NewHandlers(
	health *HealthChecker,
	liveness *LivenessChecker,
	readiness *ReadinessChecker,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		health:    health,
		liveness:  liveness,
		readiness: readiness,
		logger:    logger,
		timeout:   5 * time.Second,
	}
}

// LivenessHandler handles liveness probe requests
func (h *Handlers) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.liveness.CheckLiveness()
	if err != nil {
		h.logger.Error("Liveness check failed", zap.Error(err))
		result = model.LivenessResult{IsLive: false, Error: err.Error()}
	}

	code := http.StatusOK
	if !result.IsLive {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, result)
}

// ReadinessHandler handles readiness probe requests
func (h *Handlers) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result := h.readiness.CheckReadiness(ctx)

	code := http.StatusOK
	if !result.IsReady {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, result)
}

// HealthHandler reports the health tier
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status, err := h.health.CheckHealth()
	resp := StatusResponse{Status: status, Timestamp: time.Now().Unix(), Checks: h.health.Checks()}
	if err != nil {
		resp.Error = err.Error()
		code := http.StatusInternalServerError
		var se *sidecarerrors.SidecarError
		if errors.As(err, &se) {
			code = se.HTTPStatus()
		}
		writeJSON(w, code, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
