package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBlobStore keeps blobs as plain Redis string values without expiry
type RedisBlobStore struct {
	client *redis.Client
}

// NewRedisBlobStore connects to Redis and verifies the connection
func NewRedisBlobStore(addr, password string, db int) (*RedisBlobStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisBlobStoreFromClient(client), nil
}

// NewRedisBlobStoreFromClient wraps an existing client
func NewRedisBlobStoreFromClient(client *redis.Client) *RedisBlobStore {
	return &RedisBlobStore{client: client}
}

func (s *RedisBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *RedisBlobStore) Put(ctx context.Context, key string, blob []byte) error {
	return s.client.Set(ctx, key, blob, 0).Err()
}

func (s *RedisBlobStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisBlobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisBlobStore) Close() error {
	return s.client.Close()
}

var _ BlobStore = (*RedisBlobStore)(nil)
