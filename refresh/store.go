package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when Redis cannot be reached or a
// command fails for infrastructure reasons.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when no record exists for the given token ID.
// Expired records report the same error since their keys have lapsed.
var ErrNotFound = errors.New("refresh token not found")

// ErrAlreadyRevoked is returned by Revoke when the record exists but the
// revoked flag was already set. Exactly one concurrent revoker wins; the
// rest see this error.
var ErrAlreadyRevoked = errors.New("refresh token already revoked")

const (
	revokeStatusNotFound       int64 = 0
	revokeStatusRevoked        int64 = 1
	revokeStatusAlreadyRevoked int64 = 2
	revokeStatusExpired        int64 = 3
)

const revokeScript = `
local token_key = KEYS[1]
local now_unix = tonumber(ARGV[1])
local revoked_ip = ARGV[2]

local fields = redis.call("HMGET", token_key, "revoked", "expires_at")
local revoked = fields[1]
local expires_at = tonumber(fields[2])

if not revoked or not expires_at then
  return 0
end

if expires_at <= now_unix then
  return 3
end

if revoked == "1" then
  return 2
end

redis.call("HSET", token_key, "revoked", "1", "revoked_at", tostring(now_unix), "revoked_ip", revoked_ip)
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// Record is one stored refresh token. The raw token string handed to the
// client encodes only the ID; everything else lives server-side.
type Record struct {
	ID        string
	AccountID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt time.Time
	IssuedIP  string
	RevokedIP string
}

// Store is a Redis-backed refresh token store. All methods are safe for
// concurrent use.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a refresh token [Store] backed by the given Redis
// client. prefix sets the Redis key namespace.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  redis,
		prefix: prefix,
	}
}

func (s *Store) tokenKey(id string) string {
	return s.prefix + ":rt:" + id
}

func (s *Store) accountKey(accountID string) string {
	return s.prefix + ":acct:" + accountID
}

// Save persists a record. The key expires at the record's ExpiresAt, so
// an expired token is indistinguishable from one that never existed. now
// anchors the TTL so callers with an injected clock stay consistent.
//
//	Performance: 3 Redis commands in one transaction.
func (s *Store) Save(ctx context.Context, rec *Record, now time.Time) error {
	ttl := rec.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return errors.New("record already expired")
	}

	tokenKey := s.tokenKey(rec.ID)
	accountKey := s.accountKey(rec.AccountID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, tokenKey,
			"account_id", rec.AccountID,
			"issued_at", strconv.FormatInt(rec.IssuedAt.Unix(), 10),
			"expires_at", strconv.FormatInt(rec.ExpiresAt.Unix(), 10),
			"revoked", boolField(rec.Revoked),
			"issued_ip", rec.IssuedIP,
		)
		pipe.Expire(ctx, tokenKey, ttl)
		pipe.SAdd(ctx, accountKey, rec.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get retrieves a record by token ID. Revoked records are returned as-is;
// missing or naturally-expired records report [ErrNotFound].
//
//	Performance: 1 Redis HGETALL.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.tokenKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	rec, err := parseRecord(id, fields)
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// Revoke atomically flips the record's revoked flag. Returns nil exactly
// once per record; concurrent or repeated calls report
// [ErrAlreadyRevoked], and missing or expired records report
// [ErrNotFound]. now drives the expiry comparison inside the script so
// callers with an injected clock stay consistent.
//
//	Performance: 1 Lua script (HMGET + conditional HSET).
func (s *Store) Revoke(ctx context.Context, id string, now time.Time, revokedIP string) error {
	status, err := revokeLua.Run(ctx, s.redis,
		[]string{s.tokenKey(id)},
		now.Unix(), revokedIP,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch status {
	case revokeStatusRevoked:
		return nil
	case revokeStatusAlreadyRevoked:
		return ErrAlreadyRevoked
	case revokeStatusNotFound, revokeStatusExpired:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: unexpected revoke status %d", ErrRedisUnavailable, status)
	}
}

// RevokeAllForAccount revokes every live token issued to an account and
// prunes IDs whose records have already expired from the index. Tokens
// issued concurrently with the sweep may be missed; callers that need a
// hard fence should block issuance first.
func (s *Store) RevokeAllForAccount(ctx context.Context, accountID string, now time.Time, revokedIP string) error {
	accountKey := s.accountKey(accountID)

	ids, err := s.redis.SMembers(ctx, accountKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var stale []interface{}
	for _, id := range ids {
		err := s.Revoke(ctx, id, now, revokedIP)
		switch {
		case err == nil, errors.Is(err, ErrAlreadyRevoked):
		case errors.Is(err, ErrNotFound):
			stale = append(stale, id)
		default:
			return err
		}
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, accountKey, stale...).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return nil
}

// ActiveTokenIDs returns the indexed token IDs for an account, including
// revoked ones whose records have not yet expired.
func (s *Store) ActiveTokenIDs(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Ping verifies Redis connectivity and reports round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func parseRecord(id string, fields map[string]string) (*Record, error) {
	issuedAt, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt refresh record %q: %v", id, err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt refresh record %q: %v", id, err)
	}

	rec := &Record{
		ID:        id,
		AccountID: fields["account_id"],
		IssuedAt:  time.Unix(issuedAt, 0).UTC(),
		ExpiresAt: time.Unix(expiresAt, 0).UTC(),
		Revoked:   fields["revoked"] == "1",
		IssuedIP:  fields["issued_ip"],
		RevokedIP: fields["revoked_ip"],
	}
	if raw := fields["revoked_at"]; raw != "" {
		revokedAt, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt refresh record %q: %v", id, err)
		}
		rec.RevokedAt = time.Unix(revokedAt, 0).UTC()
	}

	return rec, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
