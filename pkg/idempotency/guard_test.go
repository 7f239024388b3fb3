package idempotency_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/devflow/pkg/idempotency"
	"github.com/dukex/devflow/pkg/mocks"
	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/persistence"
	"github.com/dukex/devflow/pkg/persistence/file"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var payload = json.RawMessage(`{"id":"evt_1","type":"task.created","created":1700000000,"livemode":false}`)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGuard_DetectsDuplicates(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	store := file.NewPersistence(t.TempDir())
	guard := idempotency.NewGuard(store, discardLogger())

	result, err := guard.Check(ctx, payload, "evt_1")
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate())

	require.NoError(t, store.SaveEvent(ctx, &models.Event{
		ID:            "exec-1",
		SourceEventID: "evt_1",
		Fingerprint:   result.Fingerprint,
		Data:          payload,
	}))

	result, err = guard.Check(ctx, payload, "evt_1")
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate())
	assert.Equal(t, idempotency.MatchEventID, result.MatchedBy)
	assert.Equal(t, "exec-1", result.ExecutionID)
}

func TestGuard_MatchesByFingerprint(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	store := &mocks.MockPersistence{}
	fingerprint, err := idempotency.Fingerprint(payload)
	require.NoError(t, err)

	store.On("ExecutionBySourceEventID", mock.Anything, "evt_other").
		Return("", persistence.NewEventError("ExecutionBySourceEventID", "evt_other", persistence.ErrEventNotFound))
	store.On("ExecutionByFingerprint", mock.Anything, fingerprint).Return("exec-9", nil)

	guard := idempotency.NewGuard(store, discardLogger())

	result, err := guard.Check(ctx, payload, "evt_other")
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate())
	assert.Equal(t, idempotency.MatchFingerprint, result.MatchedBy)
	store.AssertExpectations(t)
}

func TestGuard_FailsOpen(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	store := &mocks.MockPersistence{}
	store.On("ExecutionBySourceEventID", mock.Anything, "evt_1").Return("", errors.New("connection refused"))

	guard := idempotency.NewGuard(store, discardLogger())

	result, err := guard.Check(ctx, payload, "evt_1")
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate())
	require.Error(t, result.LookupErr)
	assert.Contains(t, result.LookupErr.Error(), "connection refused")
	store.AssertNotCalled(t, "ExecutionByFingerprint", mock.Anything, mock.Anything)
}

func TestGuard_ValidationErrors(t *testing.T) {
	t.Parallel()

	guard := idempotency.NewGuard(&mocks.MockPersistence{}, discardLogger())

	_, err := guard.Check(t.Context(), payload, "")
	require.ErrorIs(t, err, idempotency.ErrEmptyEventID)

	_, err = guard.Check(t.Context(), json.RawMessage(`[]`), "evt_1")
	require.ErrorIs(t, err, idempotency.ErrInvalidPayload)
}

func TestGuard_RedisCache(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &mocks.MockPersistence{}
	cache := idempotency.NewRedisCache(client, time.Hour)
	guard := idempotency.NewGuard(store, discardLogger(), idempotency.WithCache(cache))

	fingerprint, err := idempotency.Fingerprint(payload)
	require.NoError(t, err)

	guard.Remember(ctx, "evt_1", fingerprint, "exec-1")
	assert.True(t, server.Exists("devflow:idem:id:evt_1"))
	assert.True(t, server.Exists("devflow:idem:fp:"+fingerprint))

	result, err := guard.Check(ctx, payload, "evt_1")
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate())
	assert.Equal(t, "exec-1", result.ExecutionID)

	result, err = guard.Check(ctx, payload, "evt_replayed")
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate())
	assert.Equal(t, idempotency.MatchFingerprint, result.MatchedBy)

	server.FastForward(2 * time.Hour)

	store.On("ExecutionBySourceEventID", mock.Anything, "evt_1").
		Return("", persistence.ErrEventNotFound)
	store.On("ExecutionByFingerprint", mock.Anything, fingerprint).
		Return("", persistence.ErrEventNotFound)

	result, err = guard.Check(ctx, payload, "evt_1")
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate())
}

func TestGuard_RedisCacheFailureFallsBackToStore(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	server.Close()

	store := &mocks.MockPersistence{}
	store.On("ExecutionBySourceEventID", mock.Anything, "evt_1").Return("exec-1", nil)

	guard := idempotency.NewGuard(store, discardLogger(), idempotency.WithCache(idempotency.NewRedisCache(client, 0)))

	result, err := guard.Check(ctx, payload, "evt_1")
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate())
	store.AssertExpectations(t)
}
