// Package redis provides the Redis-backed visited-URL set.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection and expiry settings.
type Config struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// Store tracks the normalized URLs already claimed for each scan.
// Keys expire after an inactivity window so abandoned scans self-clean.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

const connectTimeout = 5 * time.Second

// New creates a Store and verifies the connection.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Store{client: client, ttl: cfg.TTL}, nil
}

func key(scanID string) string {
	return fmt.Sprintf("scan:%s:visited", scanID)
}

// IsVisited reports whether the URL has already been claimed for the scan.
func (s *Store) IsVisited(ctx context.Context, scanID, url string) (bool, error) {
	visited, err := s.client.SIsMember(ctx, key(scanID), url).Result()
	if err != nil {
		return false, fmt.Errorf("sismember: %w", err)
	}
	return visited, nil
}

// MarkVisited claims the URL for the scan and refreshes the set's expiry.
// SADD is atomic per key, so exactly one concurrent caller observes true.
func (s *Store) MarkVisited(ctx context.Context, scanID, url string) (bool, error) {
	k := key(scanID)
	added, err := s.client.SAdd(ctx, k, url).Result()
	if err != nil {
		return false, fmt.Errorf("sadd: %w", err)
	}
	if err := s.client.Expire(ctx, k, s.ttl).Err(); err != nil {
		return added == 1, fmt.Errorf("expire: %w", err)
	}
	return added == 1, nil
}

// Visited returns every claimed URL for the scan.
func (s *Store) Visited(ctx context.Context, scanID string) ([]string, error) {
	urls, err := s.client.SMembers(ctx, key(scanID)).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers: %w", err)
	}
	return urls, nil
}

// Clear removes the scan's visited set.
func (s *Store) Clear(ctx context.Context, scanID string) error {
	if err := s.client.Del(ctx, key(scanID)).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
