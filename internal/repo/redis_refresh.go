package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/authsession/internal/autherr"
	"github.com/Skotchmaster/authsession/internal/models"
)

var (
	errAccountHasToken = errors.New("account already has a refresh token")
	errTokenConsumed   = errors.New("refresh token consumed")
)

// RedisRefreshStore keeps refresh tokens in redis. Each token lives under
// <prefix>:token:<value> and the account pointer under <prefix>:account:<id>.
// Writes go through WATCH/MULTI so the account pointer behaves as a
// compare-and-set. Keys expire together with the token.
type RedisRefreshStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisRefreshStore(rdb redis.UniversalClient, prefix string) *RedisRefreshStore {
	if prefix == "" {
		prefix = "authsession"
	}
	return &RedisRefreshStore{rdb: rdb, prefix: prefix}
}

func (s *RedisRefreshStore) tokenKey(value string) string {
	return s.prefix + ":token:" + value
}

func (s *RedisRefreshStore) accountKey(id uuid.UUID) string {
	return s.prefix + ":account:" + id.String()
}

func ttlUntil(t time.Time) time.Duration {
	ttl := time.Until(t)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

func (s *RedisRefreshStore) FindByValue(ctx context.Context, value string) (*models.RefreshToken, error) {
	raw, err := s.rdb.Get(ctx, s.tokenKey(value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, autherr.RefreshTokenNotFound()
		}
		return nil, autherr.StoreUnavailable(err, "redis.refresh.find_by_value")
	}
	var token models.RefreshToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, autherr.StoreUnavailable(err, "redis.refresh.decode")
	}
	return &token, nil
}

func (s *RedisRefreshStore) FindByAccount(ctx context.Context, accountID uuid.UUID) (*models.RefreshToken, error) {
	value, err := s.rdb.Get(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, autherr.RefreshTokenNotFound()
		}
		return nil, autherr.StoreUnavailable(err, "redis.refresh.find_by_account")
	}
	return s.FindByValue(ctx, value)
}

func (s *RedisRefreshStore) Create(ctx context.Context, token *models.RefreshToken) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return autherr.StoreUnavailable(err, "redis.refresh.encode")
	}
	accKey := s.accountKey(token.AccountID)
	ttl := ttlUntil(token.ExpiresAt)

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, accKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return errAccountHasToken
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.tokenKey(token.Token), payload, ttl)
			pipe.Set(ctx, accKey, token.Token, ttl)
			return nil
		})
		return err
	}, accKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errAccountHasToken), errors.Is(err, redis.TxFailedErr):
		return autherr.Conflict("refresh token already issued", "account_id", token.AccountID.String())
	default:
		return autherr.StoreUnavailable(err, "redis.refresh.create")
	}
}

// Rotate swaps the account pointer from old to next and drops old in the
// same MULTI block. A concurrent rotation of the same token aborts the
// transaction and the loser sees RefreshTokenNotFound.
func (s *RedisRefreshStore) Rotate(ctx context.Context, old, next *models.RefreshToken) error {
	if old.AccountID != next.AccountID {
		return autherr.Validation("rotation must keep the owning account")
	}
	payload, err := json.Marshal(next)
	if err != nil {
		return autherr.StoreUnavailable(err, "redis.refresh.encode")
	}
	accKey := s.accountKey(old.AccountID)
	oldKey := s.tokenKey(old.Token)
	ttl := ttlUntil(next.ExpiresAt)

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, accKey).Result()
		if errors.Is(err, redis.Nil) {
			return errTokenConsumed
		}
		if err != nil {
			return err
		}
		if current != old.Token {
			return errTokenConsumed
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, oldKey)
			pipe.Set(ctx, s.tokenKey(next.Token), payload, ttl)
			pipe.Set(ctx, accKey, next.Token, ttl)
			return nil
		})
		return err
	}, accKey, oldKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errTokenConsumed), errors.Is(err, redis.TxFailedErr):
		return autherr.RefreshTokenNotFound()
	default:
		return autherr.StoreUnavailable(err, "redis.refresh.rotate")
	}
}

func (s *RedisRefreshStore) Delete(ctx context.Context, token *models.RefreshToken) error {
	accKey := s.accountKey(token.AccountID)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, accKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.tokenKey(token.Token))
			if current == token.Token {
				pipe.Del(ctx, accKey)
			}
			return nil
		})
		return err
	}, accKey)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return autherr.Conflict("refresh token changed during delete", "account_id", token.AccountID.String())
		}
		return autherr.StoreUnavailable(err, "redis.refresh.delete")
	}
	return nil
}

func (s *RedisRefreshStore) DeleteByAccount(ctx context.Context, accountID uuid.UUID) error {
	accKey := s.accountKey(accountID)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, accKey).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.tokenKey(current), accKey)
			return nil
		})
		return err
	}, accKey)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return autherr.Conflict("refresh token changed during delete", "account_id", accountID.String())
		}
		return autherr.StoreUnavailable(err, "redis.refresh.delete_by_account")
	}
	return nil
}

func (s *RedisRefreshStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
