package redisstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall.app/internal/auth"
)

func newTestStore(t *testing.T) (*Revocations, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) })), mr
}

func TestInsertIfAbsentOnce(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	rec := auth.RevocationRecord{
		TokenID:   "jti-1",
		FamilyID:  "fam-1",
		Reason:    auth.ReasonRotated,
		RevokedAt: time.Unix(1_700_000_000, 0),
		ExpiresAt: time.Unix(1_700_000_000, 0).Add(time.Hour),
	}

	created, err := store.InsertIfAbsent(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.InsertIfAbsent(ctx, rec)
	require.NoError(t, err)
	assert.False(t, created)

	exists, err := store.Exists(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, time.Hour, mr.TTL(defaultKeyPrefix+"jti-1"))

	mr.FastForward(time.Hour)
	exists, err = store.Exists(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInsertIfAbsentConcurrent(t *testing.T) {
	store, _ := newTestStore(t)
	rec := auth.RevocationRecord{TokenID: auth.FamilyKey("fam"), FamilyID: "fam", Reason: auth.ReasonRevoked, ExpiresAt: time.Unix(1_700_000_000, 0).Add(time.Minute)}

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := store.InsertIfAbsent(context.Background(), rec)
			if err == nil && created {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestPastExpiryStillRecorded(t *testing.T) {
	store, mr := newTestStore(t)
	created, err := store.InsertIfAbsent(context.Background(), auth.RevocationRecord{TokenID: "old", ExpiresAt: time.Unix(0, 0)})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, minTTL, mr.TTL(defaultKeyPrefix+"old"))
}

func TestUnavailableRedisIsTransient(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()
	_, err := store.Exists(context.Background(), "jti")
	require.ErrorIs(t, err, auth.ErrTransientStorage)
	require.Error(t, store.Ping(context.Background()))
}

func TestKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := New(client, WithKeyPrefix("tenantA:"))
	_, err := store.InsertIfAbsent(context.Background(), auth.RevocationRecord{TokenID: "x", ExpiresAt: time.Now().Add(time.Minute)})
	require.NoError(t, err)
	assert.True(t, mr.Exists("tenantA:x"))
}
