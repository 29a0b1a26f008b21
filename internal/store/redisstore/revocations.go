// Package redisstore keeps the refresh-token revocation set in Redis so every
// service instance sees the same rotations.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"rollcall.app/internal/auth"
)

const (
	defaultKeyPrefix = "rollcall:revoked:"
	minTTL           = time.Second
)

var _ auth.RevocationStore = (*Revocations)(nil)

// Revocations implements auth.RevocationStore with SET NX. Keys expire with
// the token they revoke.
type Revocations struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// Option configures Revocations.
type Option func(*Revocations)

// WithKeyPrefix namespaces keys when several deployments share a Redis.
func WithKeyPrefix(prefix string) Option {
	return func(r *Revocations) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithClock overrides the time source used to compute key TTLs.
func WithClock(now func() time.Time) Option {
	return func(r *Revocations) {
		if now != nil {
			r.now = now
		}
	}
}

func New(client redis.UniversalClient, opts ...Option) *Revocations {
	r := &Revocations{client: client, prefix: defaultKeyPrefix, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type record struct {
	FamilyID  string    `json:"fid"`
	Reason    string    `json:"reason"`
	RevokedAt time.Time `json:"revoked_at"`
}

func (r *Revocations) InsertIfAbsent(ctx context.Context, rec auth.RevocationRecord) (bool, error) {
	payload, err := json.Marshal(record{FamilyID: rec.FamilyID, Reason: rec.Reason, RevokedAt: rec.RevokedAt.UTC()})
	if err != nil {
		return false, err
	}
	ttl := rec.ExpiresAt.Sub(r.now())
	if ttl < minTTL {
		ttl = minTTL
	}
	created, err := r.client.SetNX(ctx, r.prefix+rec.TokenID, payload, ttl).Result()
	if err != nil {
		return false, classify("revocations.insert", err)
	}
	return created, nil
}

func (r *Revocations) Exists(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+tokenID).Result()
	if err != nil {
		return false, classify("revocations.exists", err)
	}
	return n > 0, nil
}

// Ping reports whether Redis answers; used by readiness checks.
func (r *Revocations) Ping(ctx context.Context) error {
	return classify("ping", r.client.Ping(ctx).Err())
}

// classify treats every Redis failure as transient except caller cancellation.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return auth.Transient(op, err)
}
