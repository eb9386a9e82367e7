package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// Redisキーのプレフィックス。キーは doc:{collection}:{key} の形式。
	documentKeyPrefix = "doc:"

	// WATCH競合時の再試行回数
	maxUpdateAttempts = 5
)

// RedisStore は文書をJSON文字列として1キーに保持するStore。
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore はRedisStoreを生成する。clientのライフサイクルは呼び出し側が管理する。
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient はURLからRedisクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func documentKey(collection, key string) string {
	return documentKeyPrefix + collection + ":" + key
}

// Get は文書を取得する。
func (s *RedisStore) Get(ctx context.Context, collection, key string) (Document, error) {
	data, err := s.client.Get(ctx, documentKey(collection, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", collection, key, err)
	}
	return doc, nil
}

// Set は文書全体を書き込む。
func (s *RedisStore) Set(ctx context.Context, collection, key string, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := s.client.Set(ctx, documentKey(collection, key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set document: %w", err)
	}
	return nil
}

// Update はWATCHによる楽観ロックで読み込み、マージ、書き戻しを行う。
// 競合した場合はmaxUpdateAttempts回まで再試行する。
func (s *RedisStore) Update(ctx context.Context, collection, key string, partial Document) error {
	redisKey := documentKey(collection, key)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		current, err := decode(data)
		if err != nil {
			return fmt.Errorf("failed to decode document %s/%s: %w", collection, key, err)
		}
		merged, err := json.Marshal(merge(current, partial))
		if err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, merged, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, redisKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		return nil
	}
	return fmt.Errorf("failed to update document %s/%s: %w", collection, key, redis.TxFailedErr)
}

// Delete は文書を削除する。
func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	if err := s.client.Del(ctx, documentKey(collection, key)).Err(); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// compile-time interface check
var (
	_ Store   = (*RedisStore)(nil)
	_ Deleter = (*RedisStore)(nil)
)
