package refreshtokens

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix = "refresh:token:"
	idKeyPrefix    = "refresh:id:"
	userKeyPrefix  = "refresh:user:"
)

// addScript writes a record only when the token value was never seen before.
// Returns 0 when the token key already exists.
var addScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "id", ARGV[1],
  "user_id", ARGV[2],
  "expires_at", ARGV[3],
  "revoked_at", "0",
  "created_at", ARGV[4])
redis.call("SET", KEYS[2], ARGV[5])
redis.call("SADD", KEYS[3], ARGV[5])
return 1
`)

// markRevokedScript is the check-and-set revoke transition.
// Returns -1 when the record is missing, 0 when it was already revoked,
// 1 when this call performed the transition.
var markRevokedScript = redis.NewScript(`
local token = redis.call("GET", KEYS[1])
if not token then
  return -1
end
local key = ARGV[2] .. token
local revoked = redis.call("HGET", key, "revoked_at")
if not revoked then
  return -1
end
if revoked ~= "0" then
  return 0
end
redis.call("HSET", key, "revoked_at", ARGV[1])
return 1
`)

// revokeAndAddScript performs a whole rotation in one atomic step: the
// check-and-set revoke of the old record plus the write of its replacement.
// Returns -1 when the old record is missing, 0 when it was already revoked,
// -2 when the new token value collides; nothing is written in those cases.
var revokeAndAddScript = redis.NewScript(`
local token = redis.call("GET", KEYS[1])
if not token then
  return -1
end
local key = ARGV[1] .. token
local revoked = redis.call("HGET", key, "revoked_at")
if not revoked then
  return -1
end
if revoked ~= "0" then
  return 0
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return -2
end
redis.call("HSET", key, "revoked_at", ARGV[2])
redis.call("HSET", KEYS[2],
  "id", ARGV[3],
  "user_id", ARGV[4],
  "expires_at", ARGV[5],
  "revoked_at", "0",
  "created_at", ARGV[6])
redis.call("SET", KEYS[3], ARGV[7])
redis.call("SADD", KEYS[4], ARGV[7])
return 1
`)

// revokeAllScript revokes every active record of one user atomically.
var revokeAllScript = redis.NewScript(`
local n = 0
for _, token in ipairs(redis.call("SMEMBERS", KEYS[1])) do
  local key = ARGV[2] .. token
  if redis.call("HGET", key, "revoked_at") == "0" then
    redis.call("HSET", key, "revoked_at", ARGV[1])
    n = n + 1
  end
end
return n
`)

// RedisRepository stores refresh-token records in redis hashes. Uniqueness
// and the revoke check-and-set are enforced by server-side scripts, which
// redis executes atomically.
type RedisRepository struct {
	client redis.UniversalClient
}

func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) Add(ctx context.Context, token *models.RefreshToken) error {
	res, err := addScript.Run(ctx, r.client,
		[]string{tokenKeyPrefix + token.Token, idKeyPrefix + token.ID, userKeyPrefix + token.UserID},
		token.ID, token.UserID,
		strconv.FormatInt(token.ExpiresAt.UnixNano(), 10),
		strconv.FormatInt(token.CreatedAt.UnixNano(), 10),
		token.Token,
	).Int64()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if res == 0 {
		return common.ErrDuplicateToken
	}
	return nil
}

func (r *RedisRepository) FindByUserAndToken(ctx context.Context, userID, token string) (*models.RefreshToken, error) {
	fields, err := r.client.HGetAll(ctx, tokenKeyPrefix+token).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(fields) == 0 || fields["user_id"] != userID {
		return nil, common.ErrorNotFound
	}

	record := &models.RefreshToken{
		ID:     fields["id"],
		UserID: fields["user_id"],
		Token:  token,
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt record for token id %s: %w", record.ID, err)
	}
	record.ExpiresAt = time.Unix(0, expires).UTC()

	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt record for token id %s: %w", record.ID, err)
	}
	record.CreatedAt = time.Unix(0, created).UTC()

	if revoked := fields["revoked_at"]; revoked != "" && revoked != "0" {
		n, err := strconv.ParseInt(revoked, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt record for token id %s: %w", record.ID, err)
		}
		at := time.Unix(0, n).UTC()
		record.RevokedAt = &at
	}
	return record, nil
}

func (r *RedisRepository) MarkRevoked(ctx context.Context, id string, at time.Time) error {
	res, err := markRevokedScript.Run(ctx, r.client,
		[]string{idKeyPrefix + id},
		strconv.FormatInt(at.UnixNano(), 10),
		tokenKeyPrefix,
	).Int64()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	switch res {
	case -1:
		return common.ErrorNotFound
	case 0:
		return common.ErrAlreadyRevoked
	default:
		return nil
	}
}

// RevokeAndAdd rotates in one script call, so a crash or cancellation can
// never leave the old record revoked without its replacement persisted.
func (r *RedisRepository) RevokeAndAdd(ctx context.Context, id string, at time.Time, next *models.RefreshToken) error {
	res, err := revokeAndAddScript.Run(ctx, r.client,
		[]string{
			idKeyPrefix + id,
			tokenKeyPrefix + next.Token,
			idKeyPrefix + next.ID,
			userKeyPrefix + next.UserID,
		},
		tokenKeyPrefix,
		strconv.FormatInt(at.UnixNano(), 10),
		next.ID, next.UserID,
		strconv.FormatInt(next.ExpiresAt.UnixNano(), 10),
		strconv.FormatInt(next.CreatedAt.UnixNano(), 10),
		next.Token,
	).Int64()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	switch res {
	case -1:
		return common.ErrorNotFound
	case 0:
		return common.ErrAlreadyRevoked
	case -2:
		return common.ErrDuplicateToken
	default:
		return nil
	}
}

func (r *RedisRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	_, err := revokeAllScript.Run(ctx, r.client,
		[]string{userKeyPrefix + userID},
		strconv.FormatInt(at.UnixNano(), 10),
		tokenKeyPrefix,
	).Int64()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}
