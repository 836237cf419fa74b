package forward

import (
	"context"
	"errors"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/devrev/litefs-sidecar/internal/config"
	sidecarerrors "github.com/devrev/litefs-sidecar/internal/errors"
	"github.com/devrev/litefs-sidecar/internal/model"
	"github.com/devrev/litefs-sidecar/internal/resilience"
	"github.com/devrev/litefs-sidecar/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePrimary struct {
	primary bool
	err     error
}

func (f fakePrimary) IsPrimary() (bool, error) { return f.primary, f.err }

type fakeResolver struct {
	url string
	ok  bool
	err error
}

func (f fakeResolver) Resolve() (string, bool, error) { return f.url, f.ok, f.err }

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// MockForwarder is a mock implementation of port.Forwarder
type MockForwarder struct {
	mock.Mock
}

func (m *MockForwarder) Forward(ctx context.Context, primaryURL string, req model.ForwardRequest) (*model.ForwardResponse, error) {
	args := m.Called(ctx, primaryURL, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*model.ForwardResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

type countingRecorder struct {
	outcomes map[string]int
	retries  int
	states   []string
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{outcomes: make(map[string]int)}
}

func (r *countingRecorder) RecordForward(outcome string, _ time.Duration) { r.outcomes[outcome]++ }
func (r *countingRecorder) RecordForwardRetry()                           { r.retries++ }
func (r *countingRecorder) SetCircuitState(state string)                  { r.states = append(r.states, state) }

func testSettings(t *testing.T, mutate func(*config.ForwardingSettings)) *config.ForwardingSettings {
	t.Helper()
	f := config.ForwardingSettings{
		Scheme:                     "http",
		Timeout:                    time.Second,
		MaxRetries:                 2,
		BackoffBase:                time.Millisecond,
		MaxBackoff:                 2 * time.Millisecond,
		CircuitBreakerEnabled:      true,
		CircuitBreakerThreshold:    2,
		CircuitBreakerResetTimeout: 10 * time.Second,
		ExcludedPaths:              []string{"/internal/*", "re:^/admin"},
		IdempotencyTTL:             time.Hour,
	}
	if mutate != nil {
		mutate(&f)
	}
	settings, err := config.NewForwardingSettings(f)
	require.NoError(t, err)
	return settings
}

type serviceFixture struct {
	svc       *Service
	forwarder *MockForwarder
	recorder  *countingRecorder
	clock     *fakeClock
	store     *store.MemoryIdempotencyStore
}

func newFixture(t *testing.T, primary fakePrimary, resolver fakeResolver) *serviceFixture {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	f := &serviceFixture{
		forwarder: &MockForwarder{},
		recorder:  newCountingRecorder(),
		clock:     clock,
		store:     store.NewMemoryIdempotencyStore(100, clock),
	}
	svc, err := NewService(testSettings(t, nil), primary, resolver, f.forwarder, f.store, f.recorder, clock, zap.NewNop())
	require.NoError(t, err)
	f.svc = svc
	return f
}

func writeRequest(path string) model.ForwardRequest {
	return model.ForwardRequest{
		Method:  http.MethodPost,
		Path:    path,
		Headers: http.Header{},
		Body:    []byte(`{"name":"x"}`),
	}
}

func TestService_Decide(t *testing.T) {
	replica := fakePrimary{}
	target := fakeResolver{url: "http://primary:8080", ok: true}

	sqlRequest := func(stmt string) model.ForwardRequest {
		return model.ForwardRequest{
			Method:  http.MethodPost,
			Path:    "/query",
			Headers: http.Header{"Content-Type": []string{"application/sql"}},
			Body:    []byte(stmt),
		}
	}
	jsonQuery := model.ForwardRequest{
		Method:  http.MethodPost,
		Path:    "/query",
		Headers: http.Header{"Content-Type": []string{"application/json; charset=utf-8"}},
		Body:    []byte(`{"sql":"SELECT delete_flag FROM t"}`),
	}
	forwarded := writeRequest("/orders")
	forwarded.Headers.Set(ForwardedHeader, "node-2")

	tests := []struct {
		name     string
		primary  fakePrimary
		resolver fakeResolver
		req      model.ForwardRequest
		forward  bool
		reason   string
	}{
		{"excluded glob", replica, target, writeRequest("/internal/jobs"), false, "excluded path"},
		{"excluded regex", replica, target, writeRequest("/admin/users"), false, "excluded path"},
		{"read method", replica, target, model.ForwardRequest{Method: http.MethodGet, Path: "/orders", Headers: http.Header{}}, false, "read"},
		{"sql read", replica, target, sqlRequest("/* c */ SELECT 1"), false, "read"},
		{"json sql read", replica, target, jsonQuery, false, "read"},
		{"sql write", replica, target, sqlRequest("INSERT INTO t VALUES (1)"), true, "write on replica"},
		{"plain write", replica, target, writeRequest("/orders"), true, "write on replica"},
		{"already forwarded", replica, target, forwarded, false, "already forwarded"},
		{"on primary", fakePrimary{primary: true}, target, writeRequest("/orders"), false, "primary"},
		{"primary check fails closed", fakePrimary{err: errors.New("boom")}, target, writeRequest("/orders"), true, "write on replica"},
		{"no primary", replica, fakeResolver{}, writeRequest("/orders"), false, "no primary"},
		{"resolve error", replica, fakeResolver{err: errors.New("boom")}, writeRequest("/orders"), false, "resolve failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.primary, tt.resolver)
			d := f.svc.Decide(tt.req)
			assert.Equal(t, tt.forward, d.Forward)
			assert.Equal(t, tt.reason, d.Reason)
			if tt.forward {
				assert.Equal(t, "http://primary:8080", d.PrimaryURL)
			}
		})
	}
}

func TestService_DecideRecordsOutcome(t *testing.T) {
	f := newFixture(t, fakePrimary{}, fakeResolver{})
	f.svc.Decide(writeRequest("/orders"))
	f.svc.Decide(model.ForwardRequest{Method: http.MethodGet, Path: "/", Headers: http.Header{}})

	assert.Equal(t, 1, f.recorder.outcomes[OutcomeNoPrimary])
	assert.Equal(t, 1, f.recorder.outcomes[OutcomeLocal])
}

func TestService_ForwardSuccess(t *testing.T) {
	f := newFixture(t, fakePrimary{}, fakeResolver{})
	req := writeRequest("/orders")
	want := &model.ForwardResponse{StatusCode: http.StatusCreated, Body: []byte("ok")}
	f.forwarder.On("Forward", mock.Anything, "http://primary", req).Return(want, nil).Once()

	resp, err := f.svc.Forward(context.Background(), "http://primary", req)
	require.NoError(t, err)
	assert.Equal(t, want, resp)
	assert.Equal(t, 1, f.recorder.outcomes[OutcomeForwarded])
	assert.Equal(t, resilience.CircuitClosed, f.svc.Breaker().State())
	f.forwarder.AssertExpectations(t)
}

func TestService_RetriesTransientErrors(t *testing.T) {
	f := newFixture(t, fakePrimary{}, fakeResolver{})
	req := writeRequest("/orders")
	ok := &model.ForwardResponse{StatusCode: http.StatusOK}
	f.forwarder.On("Forward", mock.Anything, "http://primary", req).Return(nil, syscall.ECONNREFUSED).Twice()
	f.forwarder.On("Forward", mock.Anything, "http://primary", req).Return(ok, nil).Once()

	resp, err := f.svc.Forward(context.Background(), "http://primary", req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, f.recorder.retries)
	f.forwarder.AssertNumberOfCalls(t, "Forward", 3)
}

func TestService_PermanentErrorIsNotRetried(t *testing.T) {
	f := newFixture(t, fakePrimary{}, fakeResolver{})
	req := writeRequest("/orders")
	f.forwarder.On("Forward", mock.Anything, "http://primary", req).Return(nil, errors.New("bad request")).Once()

	_, err := f.svc.Forward(context.Background(), "http://primary", req)
	require.Error(t, err)
	assert.Equal(t, sidecarerrors.ErrCodeForwardFailed, sidecarerrors.GetCode(err))
	assert.Equal(t, 0, f.recorder.retries)
	f.forwarder.AssertNumberOfCalls(t, "Forward", 1)
}

func TestService_BreakerOpensAndProbes(t *testing.T) {
	f := newFixture(t, fakePrimary{}, fakeResolver{})
	req := writeRequest("/orders")
	f.forwarder.On("Forward", mock.Anything, "http://primary", req).Return(nil, errors.New("refused")).Times(2)

	for i := 0; i < 2; i++ {
		_, err := f.svc.Forward(context.Background(), "http://primary", req)
		require.Error(t, err)
	}
	assert.Equal(t, resilience.CircuitOpen, f.svc.Breaker().State())

	_, err := f.svc.Forward(context.Background(), "http://primary", req)
	assert.Equal(t, sidecarerrors.ErrCodeCircuitOpen, sidecarerrors.GetCode(err))
	assert.Equal(t, 1, f.recorder.outcomes[OutcomeCircuitOpen])
	f.forwarder.AssertNumberOfCalls(t, "Forward", 2)

	f.clock.now = f.clock.now.Add(11 * time.Second)
	f.forwarder.On("Forward", mock.Anything, "http://primary", req).Return(&model.ForwardResponse{StatusCode: http.StatusOK}, nil).Once()

	_, err = f.svc.Forward(context.Background(), "http://primary", req)
	require.NoError(t, err)
	assert.Equal(t, resilience.CircuitClosed, f.svc.Breaker().State())
	assert.Equal(t, []string{"CLOSED", "OPEN", "HALF_OPEN", "CLOSED"}, f.recorder.states)
}

func TestService_IdempotentReplay(t *testing.T) {
	f := newFixture(t, fakePrimary{}, fakeResolver{})
	req := writeRequest("/orders")
	req.Headers.Set(IdempotencyKeyHeader, "abc")
	created := &model.ForwardResponse{StatusCode: http.StatusCreated, Headers: http.Header{}, Body: []byte(`{"id":7}`)}
	f.forwarder.On("Forward", mock.Anything, "http://primary", req).Return(created, nil).Once()

	first, err := f.svc.Forward(context.Background(), "http://primary", req)
	require.NoError(t, err)
	second, err := f.svc.Forward(context.Background(), "http://primary", req)
	require.NoError(t, err)

	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, 1, f.recorder.outcomes[OutcomeReplayed])
	f.forwarder.AssertNumberOfCalls(t, "Forward", 1)
}

func TestService_ServerErrorsAreNotStored(t *testing.T) {
	f := newFixture(t, fakePrimary{}, fakeResolver{})
	req := writeRequest("/orders")
	req.Headers.Set(IdempotencyKeyHeader, "abc")
	failed := &model.ForwardResponse{StatusCode: http.StatusServiceUnavailable}
	f.forwarder.On("Forward", mock.Anything, "http://primary", req).Return(failed, nil).Twice()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Forward(context.Background(), "http://primary", req)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, f.store.Size())
	f.forwarder.AssertNumberOfCalls(t, "Forward", 2)
}

func TestNewService_RejectsBadPattern(t *testing.T) {
	settings := testSettings(t, func(f *config.ForwardingSettings) {
		f.ExcludedPaths = []string{"/a/[b"}
	})
	_, err := NewService(settings, fakePrimary{}, fakeResolver{}, &MockForwarder{}, nil, nil, &fakeClock{}, zap.NewNop())
	assert.Error(t, err)
}
