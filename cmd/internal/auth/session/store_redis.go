package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"sessiond/cmd/security/token"
)

// Key layout (P = prefix):
//
//	P session:<id>           HASH  session row
//	P token:<hash>           STRING session id
//	P user:<uid>             HASH  user row
//	P user:<uid>:sessions    SET   session ids
//
// Session and token keys expire at the session's expires_at. Scripts only
// touch the keys passed in KEYS, one key each, so every script runs within a
// single cluster slot. The session hash is the source of truth: a token key
// or set member whose session hash is gone reads as not found and is pruned
// lazily.

// updateExpiryScript: KEYS[1] session; ARGV expires_at ms, updated_at ms.
const updateExpiryScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {}
end
redis.call("HSET", KEYS[1], "expires_at", ARGV[1], "updated_at", ARGV[2])
redis.call("PEXPIREAT", KEYS[1], ARGV[1])
return redis.call("HGETALL", KEYS[1])
`

var updateExpiryLua = redis.NewScript(updateExpiryScript)

// deleteSessionScript: KEYS[1] session. Returns {user_id, token_hash} of the
// deleted row, or an empty array when it was already gone.
const deleteSessionScript = `
local fields = redis.call("HMGET", KEYS[1], "user_id", "token_hash")
if not fields[1] then
  return {}
end
redis.call("DEL", KEYS[1])
return {fields[1], fields[2] or ""}
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// RedisStore implements Store on Redis.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	hasher token.Hasher
}

// NewRedisStore creates a Redis-backed session store. prefix namespaces every key.
func NewRedisStore(rdb redis.UniversalClient, prefix string, hasher token.Hasher) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, hasher: hasher}
}

func (s *RedisStore) sessionKey(id string) string  { return s.prefix + "session:" + id }
func (s *RedisStore) tokenKey(hash string) string  { return s.prefix + "token:" + hash }
func (s *RedisStore) userKey(uid string) string    { return s.prefix + "user:" + uid }
func (s *RedisStore) userSetKey(uid string) string { return s.prefix + "user:" + uid + ":sessions" }

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// PutUser inserts or replaces a user.
func (s *RedisStore) PutUser(ctx context.Context, u User) error {
	return s.rdb.HSet(ctx, s.userKey(u.ID),
		"id", u.ID,
		"name", u.Name,
		"email", u.Email,
		"created_at", toMillis(nowOr(u.CreatedAt)),
	).Err()
}

// Create inserts a new session row.
func (s *RedisStore) Create(ctx context.Context, in CreateInput) (Session, error) {
	if err := in.validate(); err != nil {
		return Session{}, err
	}
	now := nowOr(in.Now)

	row := Session{
		ID:        newSessionID(),
		UserID:    in.UserID,
		TokenHash: s.hasher.HashHex(in.Token),
		ExpiresAt: in.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	}

	sk := s.sessionKey(row.ID)
	tk := s.tokenKey(row.TokenHash)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sk,
			"id", row.ID,
			"user_id", row.UserID,
			"token_hash", row.TokenHash,
			"expires_at", toMillis(row.ExpiresAt),
			"created_at", toMillis(row.CreatedAt),
			"updated_at", toMillis(row.UpdatedAt),
			"ip_address", row.IPAddress,
			"user_agent", row.UserAgent,
		)
		pipe.PExpireAt(ctx, sk, row.ExpiresAt)
		pipe.Set(ctx, tk, row.ID, 0)
		pipe.PExpireAt(ctx, tk, row.ExpiresAt)
		pipe.SAdd(ctx, s.userSetKey(row.UserID), row.ID)
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return row, nil
}

// FindByToken loads the session and owner matching rawToken.
func (s *RedisStore) FindByToken(ctx context.Context, rawToken string) (View, error) {
	id, err := s.rdb.Get(ctx, s.tokenKey(s.hasher.HashHex(rawToken))).Result()
	if errors.Is(err, redis.Nil) {
		return View{}, ErrSessionNotFound
	}
	if err != nil {
		return View{}, err
	}

	row, err := s.GetByID(ctx, id)
	if err != nil {
		return View{}, err
	}

	u, err := s.getUser(ctx, row.UserID)
	if err != nil {
		return View{}, err
	}
	return View{Session: row, User: u}, nil
}

// GetByID loads a session row by ID.
func (s *RedisStore) GetByID(ctx context.Context, sessionID string) (Session, error) {
	m, err := s.rdb.HGetAll(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return Session{}, err
	}
	if len(m) == 0 {
		return Session{}, ErrSessionNotFound
	}
	return sessionFromHash(m)
}

// UpdateExpiry extends a session if it still exists, then re-arms the TTL
// of its token key.
func (s *RedisStore) UpdateExpiry(ctx context.Context, sessionID string, expiresAt, now time.Time) (UpdateResult, error) {
	res, err := updateExpiryLua.Run(ctx, s.rdb,
		[]string{s.sessionKey(sessionID)},
		toMillis(expiresAt), toMillis(nowOr(now)),
	).Slice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return UpdateResult{}, err
	}
	if len(res) == 0 {
		return UpdateResult{Gone: true}, nil
	}

	m, err := pairsToMap(res)
	if err != nil {
		return UpdateResult{}, err
	}
	row, err := sessionFromHash(m)
	if err != nil {
		return UpdateResult{}, err
	}

	if row.TokenHash != "" {
		if err := s.rdb.PExpireAt(ctx, s.tokenKey(row.TokenHash), row.ExpiresAt).Err(); err != nil {
			return UpdateResult{}, err
		}
	}
	return UpdateResult{Session: row}, nil
}

// DeleteByID removes a session and its index entries (idempotent).
func (s *RedisStore) DeleteByID(ctx context.Context, sessionID string) error {
	fields, err := deleteSessionLua.Run(ctx, s.rdb, []string{s.sessionKey(sessionID)}).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if len(fields) < 2 {
		return nil
	}
	userID, tokenHash := fields[0], fields[1]

	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if tokenHash != "" {
			pipe.Del(ctx, s.tokenKey(tokenHash))
		}
		pipe.SRem(ctx, s.userSetKey(userID), sessionID)
		return nil
	})
	return err
}

// DeleteAllForUser removes every session of userID.
//
// Sessions created between the SMEMBERS read and the delete survive this call.
func (s *RedisStore) DeleteAllForUser(ctx context.Context, userID string) error {
	ids, err := s.rdb.SMembers(ctx, s.userSetKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	pipe := s.rdb.Pipeline()
	hashCmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		hashCmds[i] = pipe.HGet(ctx, s.sessionKey(id), "token_hash")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	// One DEL per key keeps each command inside a single slot.
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			pipe.Del(ctx, s.sessionKey(id))
			if h, err := hashCmds[i].Result(); err == nil && h != "" {
				pipe.Del(ctx, s.tokenKey(h))
			}
		}
		pipe.Del(ctx, s.userSetKey(userID))
		return nil
	})
	return err
}

// ListForUser returns every stored session of userID in creation order.
// Ids whose rows have already expired out of Redis are skipped and removed
// from the user's set.
func (s *RedisStore) ListForUser(ctx context.Context, userID string) ([]View, error) {
	u, err := s.getUser(ctx, userID)
	if errors.Is(err, ErrSessionNotFound) {
		return []View{}, nil
	}
	if err != nil {
		return nil, err
	}

	ids, err := s.rdb.SMembers(ctx, s.userSetKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]View, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	var stale []any
	for i, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		row, err := sessionFromHash(m)
		if err != nil {
			return nil, err
		}
		out = append(out, View{Session: row, User: u})
	}
	if len(stale) > 0 {
		if err := s.rdb.SRem(ctx, s.userSetKey(userID), stale...).Err(); err != nil {
			return nil, err
		}
	}
	sortViews(out)
	return out, nil
}

func (s *RedisStore) getUser(ctx context.Context, userID string) (User, error) {
	m, err := s.rdb.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return User{}, err
	}
	if len(m) == 0 {
		return User{}, ErrSessionNotFound
	}
	created, err := fromMillis(m["created_at"])
	if err != nil {
		return User{}, err
	}
	return User{ID: m["id"], Name: m["name"], Email: m["email"], CreatedAt: created}, nil
}

func sessionFromHash(m map[string]string) (Session, error) {
	expires, err := fromMillis(m["expires_at"])
	if err != nil {
		return Session{}, err
	}
	created, err := fromMillis(m["created_at"])
	if err != nil {
		return Session{}, err
	}
	updated, err := fromMillis(m["updated_at"])
	if err != nil {
		return Session{}, err
	}
	return Session{
		ID:        m["id"],
		UserID:    m["user_id"],
		TokenHash: m["token_hash"],
		ExpiresAt: expires,
		CreatedAt: created,
		UpdatedAt: updated,
		IPAddress: m["ip_address"],
		UserAgent: m["user_agent"],
	}, nil
}

func pairsToMap(vals []any) (map[string]string, error) {
	if len(vals)%2 != 0 {
		return nil, fmt.Errorf("redis: odd HGETALL reply length %d", len(vals))
	}
	m := make(map[string]string, len(vals)/2)
	for i := 0; i < len(vals); i += 2 {
		k, ok1 := vals[i].(string)
		v, ok2 := vals[i+1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("redis: unexpected HGETALL reply type")
		}
		m[k] = v
	}
	return m, nil
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis: bad timestamp %q: %w", s, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
