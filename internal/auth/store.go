package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const redisCacheTTL = 5 * time.Minute
const redisKeyPrefix = "tiergate:key:"

// KeyStore looks up sender key metadata by hash.
type KeyStore interface {
	Lookup(ctx context.Context, keyHash string) (*SenderKey, error)
}

// CachedKeyStore implements KeyStore with PostgreSQL + an optional Redis
// cache. The cache only ever holds key metadata; spend and rate state stay
// in-process.
type CachedKeyStore struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewCachedKeyStore(db *pgxpool.Pool, rdb *redis.Client) *CachedKeyStore {
	return &CachedKeyStore{db: db, redis: rdb}
}

func (s *CachedKeyStore) Lookup(ctx context.Context, keyHash string) (*SenderKey, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, redisKeyPrefix+keyHash).Bytes()
		if err == nil {
			var key SenderKey
			if err := json.Unmarshal(cached, &key); err == nil {
				return &key, nil
			}
		}
	}

	key, err := s.lookupDB(ctx, keyHash)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, nil
	}

	if s.redis != nil {
		data, err := json.Marshal(key)
		if err == nil {
			s.redis.Set(ctx, redisKeyPrefix+keyHash, data, redisCacheTTL)
		}
	}

	return key, nil
}

func (s *CachedKeyStore) lookupDB(ctx context.Context, keyHash string) (*SenderKey, error) {
	var key SenderKey

	err := s.db.QueryRow(ctx, `
		SELECT id, sender_id, name, expires_at
		FROM sender_keys
		WHERE key_hash = $1
		  AND status = 'active'
		  AND expires_at > NOW()
	`, keyHash).Scan(
		&key.ID,
		&key.SenderID,
		&key.Name,
		&key.ExpiresAt,
	)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, fmt.Errorf("query sender_keys: %w", err)
	}

	// Update last_used_at asynchronously (fire-and-forget)
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.db.Exec(bgCtx, `UPDATE sender_keys SET last_used_at = NOW() WHERE id = $1`, key.ID)
	}()

	return &key, nil
}
