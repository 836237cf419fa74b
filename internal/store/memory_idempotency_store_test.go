package store

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/devrev/litefs-sidecar/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newResponse(body string) *model.ForwardResponse {
	return &model.ForwardResponse{
		StatusCode: http.StatusCreated,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(body),
	}
}

func TestMemoryIdempotencyStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIdempotencyStore(10, &fakeClock{now: time.Unix(0, 0)})

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", newResponse(`{"id":1}`), time.Minute))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, got.StatusCode)
	assert.Equal(t, `{"id":1}`, string(got.Body))
	assert.Equal(t, "application/json", got.Headers.Get("Content-Type"))
}

func TestMemoryIdempotencyStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIdempotencyStore(10, &fakeClock{now: time.Unix(0, 0)})

	resp := newResponse("abc")
	require.NoError(t, s.Set(ctx, "k", resp, time.Minute))
	resp.Body[0] = 'x'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	got.Headers.Set("Content-Type", "text/plain")

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again.Body))
	assert.Equal(t, "application/json", again.Headers.Get("Content-Type"))
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := NewMemoryIdempotencyStore(10, clock)

	require.NoError(t, s.Set(ctx, "k", newResponse("a"), time.Second))

	clock.now = clock.now.Add(999 * time.Millisecond)
	_, err := s.Get(ctx, "k")
	assert.NoError(t, err)

	clock.now = clock.now.Add(time.Millisecond)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Size())
}

func TestMemoryIdempotencyStore_EvictsWhenFull(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := NewMemoryIdempotencyStore(2, clock)

	require.NoError(t, s.Set(ctx, "short", newResponse("1"), time.Second))
	require.NoError(t, s.Set(ctx, "long", newResponse("2"), time.Hour))
	require.NoError(t, s.Set(ctx, "new", newResponse("3"), time.Hour))

	assert.Equal(t, 2, s.Size())
	_, err := s.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "long")
	assert.NoError(t, err)

	// overwriting an existing key never evicts
	require.NoError(t, s.Set(ctx, "long", newResponse("4"), time.Hour))
	assert.Equal(t, 2, s.Size())
}

func TestMemoryIdempotencyStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIdempotencyStore(10, &fakeClock{now: time.Unix(0, 0)})

	require.NoError(t, s.Set(ctx, "k", newResponse("a"), time.Minute))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Ping(ctx))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "litefs-sidecar:idempotency:POST:/orders:abc", Key("POST", "/orders", "abc"))
}
