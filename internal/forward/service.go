// Package forward decides whether a client request is served by the local
// node or replayed on the primary, and performs the replay with breaker,
// retry and idempotency protection.
package forward

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/devrev/litefs-sidecar/internal/config"
	sidecarerrors "github.com/devrev/litefs-sidecar/internal/errors"
	"github.com/devrev/litefs-sidecar/internal/model"
	"github.com/devrev/litefs-sidecar/internal/pathmatch"
	"github.com/devrev/litefs-sidecar/internal/port"
	"github.com/devrev/litefs-sidecar/internal/resilience"
	"github.com/devrev/litefs-sidecar/internal/sqlclass"
	"github.com/devrev/litefs-sidecar/internal/store"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader carries the client's replay key
const IdempotencyKeyHeader = "Idempotency-Key"

// Outcomes reported to Recorder.RecordForward
const (
	OutcomeLocal       = "local"
	OutcomeForwarded   = "forwarded"
	OutcomeReplayed    = "replayed"
	OutcomeCircuitOpen = "circuit_open"
	OutcomeNoPrimary   = "no_primary"
	OutcomeFailed      = "failed"
)

// Resolver returns the primary's base URL; ok is false when there is
// nothing to forward to.
type Resolver interface {
	Resolve() (url string, ok bool, err error)
}

// Recorder receives forwarding metrics
type Recorder interface {
	RecordForward(outcome string, duration time.Duration)
	RecordForwardRetry()
	SetCircuitState(state string)
}

type noopRecorder struct{}

func (noopRecorder) RecordForward(string, time.Duration) {}
func (noopRecorder) RecordForwardRetry()                 {}
func (noopRecorder) SetCircuitState(string)              {}

// Decision is the outcome of Decide
type Decision struct {
	Forward    bool
	PrimaryURL string
	Reason     string
}

// Service is the write-forwarding use case
type Service struct {
	settings    *config.ForwardingSettings
	matcher     *pathmatch.Matcher
	classifier  *sqlclass.Detector
	primary     port.PrimaryDetector
	resolver    Resolver
	forwarder   port.Forwarder
	idempotency store.IdempotencyStore
	retry       resilience.RetryPolicy
	recorder    Recorder
	clock       port.Clock
	logger      *zap.Logger

	mu      sync.Mutex
	breaker resilience.CircuitBreaker
}

// NewService builds the service from validated settings. idempotency and
// recorder may be nil.
func NewService(
	settings *config.ForwardingSettings,
	primary port.PrimaryDetector,
	resolver Resolver,
	forwarder port.Forwarder,
	idempotency store.IdempotencyStore,
	recorder Recorder,
	clock port.Clock,
	logger *zap.Logger,
) (*Service, error) {
	matcher, err := pathmatch.NewMatcher(settings.ExcludedPaths)
	if err != nil {
		return nil, err
	}
	retry, err := resilience.NewRetryPolicy(settings.MaxRetries, settings.BackoffBase, settings.MaxBackoff)
	if err != nil {
		return nil, sidecarerrors.ConfigErrorf("invalid retry policy: %v", err)
	}
	breaker, err := resilience.NewCircuitBreaker(
		settings.CircuitBreakerThreshold,
		settings.CircuitBreakerResetTimeout,
		!settings.CircuitBreakerEnabled,
	)
	if err != nil {
		return nil, sidecarerrors.ConfigErrorf("invalid circuit breaker: %v", err)
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	recorder.SetCircuitState(string(breaker.State()))

	return &Service{
		settings:    settings,
		matcher:     matcher,
		classifier:  sqlclass.NewDetector(),
		primary:     primary,
		resolver:    resolver,
		forwarder:   forwarder,
		idempotency: idempotency,
		retry:       retry,
		recorder:    recorder,
		clock:       clock,
		logger:      logger,
		breaker:     breaker,
	}, nil
}

// Breaker returns the current breaker value
func (s *Service) Breaker() resilience.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.breaker
}

// IsExcluded reports whether path is always served locally
func (s *Service) IsExcluded(path string) bool {
	return s.matcher.IsExcluded(path)
}

// IsWrite classifies a request. Safe methods are reads. A body carrying SQL
// (application/sql, or JSON with a "sql" or "query" field) is classified by
// statement; any other unsafe request is a write.
func (s *Service) IsWrite(req model.ForwardRequest) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}

	if stmt, ok := extractSQL(req); ok {
		return s.classifier.IsWriteOperation(stmt)
	}
	return true
}

func extractSQL(req model.ForwardRequest) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(req.Headers.Get("Content-Type"))
	if err != nil {
		return "", false
	}

	switch mediaType {
	case "application/sql":
		return string(req.Body), true
	case "application/json":
		var payload struct {
			SQL   *string `json:"sql"`
			Query *string `json:"query"`
		}
		if err := json.Unmarshal(req.Body, &payload); err != nil {
			return "", false
		}
		if payload.SQL != nil {
			return *payload.SQL, true
		}
		if payload.Query != nil {
			return *payload.Query, true
		}
	}
	return "", false
}

// Decide chooses between local service and forwarding. Excluded paths,
// reads, already-forwarded requests and requests on the primary stay
// local. An unknown primary status is never treated as primary. When no
// forwarding target can be resolved the request is served locally.
func (s *Service) Decide(req model.ForwardRequest) Decision {
	d := s.decide(req)
	switch {
	case d.Forward:
	case d.Reason == "no primary":
		s.recorder.RecordForward(OutcomeNoPrimary, 0)
	default:
		s.recorder.RecordForward(OutcomeLocal, 0)
	}
	return d
}

func (s *Service) decide(req model.ForwardRequest) Decision {
	if s.matcher.IsExcluded(req.Path) {
		return Decision{Reason: "excluded path"}
	}
	if !s.IsWrite(req) {
		return Decision{Reason: "read"}
	}
	if req.Headers.Get(ForwardedHeader) != "" {
		return Decision{Reason: "already forwarded"}
	}

	isPrimary, err := s.primary.IsPrimary()
	if err != nil {
		s.logger.Warn("Primary check failed, treating node as replica", zap.Error(err))
	} else if isPrimary {
		return Decision{Reason: "primary"}
	}

	url, ok, err := s.resolver.Resolve()
	if err != nil {
		s.logger.Warn("Failed to resolve primary URL, serving locally", zap.Error(err))
		return Decision{Reason: "resolve failed"}
	}
	if !ok {
		return Decision{Reason: "no primary"}
	}
	return Decision{Forward: true, PrimaryURL: url, Reason: "write on replica"}
}

// Forward replays req on primaryURL. A stored response for the request's
// idempotency key is returned without contacting the primary.
func (s *Service) Forward(ctx context.Context, primaryURL string, req model.ForwardRequest) (*model.ForwardResponse, error) {
	start := s.clock.Now()

	key := ""
	if k := req.Headers.Get(IdempotencyKeyHeader); k != "" && s.idempotency != nil {
		key = store.Key(req.Method, req.Path, k)
		if cached := s.lookup(ctx, key); cached != nil {
			s.recorder.RecordForward(OutcomeReplayed, 0)
			return cached, nil
		}
	}

	if !s.allow() {
		s.recorder.RecordForward(OutcomeCircuitOpen, 0)
		return nil, sidecarerrors.CircuitOpen(primaryURL)
	}

	var resp *model.ForwardResponse
	err := s.retry.Do(ctx, func(attempt int) error {
		if attempt > 0 {
			s.recorder.RecordForwardRetry()
			s.logger.Debug("Retrying forward",
				zap.String("primary_url", primaryURL),
				zap.Int("attempt", attempt))
		}
		var ferr error
		resp, ferr = s.forwarder.Forward(ctx, primaryURL, req)
		return ferr
	})
	elapsed := s.clock.Now().Sub(start)

	if err != nil {
		s.recordResult(false)
		s.recorder.RecordForward(OutcomeFailed, elapsed)
		s.logger.Warn("Failed to forward request to primary",
			zap.String("primary_url", primaryURL),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Error(err))
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, sidecarerrors.ForwardFailed(primaryURL, err)
	}

	s.recordResult(true)
	s.recorder.RecordForward(OutcomeForwarded, elapsed)

	if key != "" && resp.StatusCode < http.StatusInternalServerError {
		if err := s.idempotency.Set(ctx, key, resp, s.settings.IdempotencyTTL); err != nil {
			s.logger.Warn("Failed to store idempotent response", zap.String("key", key), zap.Error(err))
		}
	}
	return resp, nil
}

// lookup fails open: store errors mean "not found"
func (s *Service) lookup(ctx context.Context, key string) *model.ForwardResponse {
	resp, err := s.idempotency.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("Idempotency lookup failed", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
	return resp
}

// allow consults the breaker. An open breaker past its reset timeout lets
// the request through as a half-open probe.
func (s *Service) allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.breaker.ShouldAllowRequest(s.clock.Now()) {
		return false
	}
	if s.breaker.State() == resilience.CircuitOpen {
		s.publishLocked(s.breaker.TransitionToHalfOpen())
	}
	return true
}

func (s *Service) recordResult(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if success {
		s.publishLocked(s.breaker.RecordSuccess(now))
	} else {
		s.publishLocked(s.breaker.RecordFailure(now))
	}
}

func (s *Service) publishLocked(next resilience.CircuitBreaker) {
	if next.State() != s.breaker.State() {
		s.logger.Info("Circuit breaker state changed",
			zap.String("from", string(s.breaker.State())),
			zap.String("to", string(next.State())),
			zap.Int("failure_count", next.FailureCount()))
		s.recorder.SetCircuitState(string(next.State()))
	}
	s.breaker = next
}
