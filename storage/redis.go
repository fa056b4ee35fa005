package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupStore is the fast path of the (tenant, checksum) import dedup window.
// It is best-effort: callers always double-check against import_jobs, so a
// missing or unreachable redis only costs a table scan, never correctness.
type DedupStore struct {
	client *redis.Client
	prefix string
}

// NewDedupStore connects to redis at redisURL. Returns an error when the URL
// is unparsable or the server is unreachable.
func NewDedupStore(redisURL string) (*DedupStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &DedupStore{client: client, prefix: "import_dedup:"}, nil
}

// NewDedupStoreWithClient wraps an existing client (used by tests).
func NewDedupStoreWithClient(client *redis.Client) *DedupStore {
	return &DedupStore{client: client, prefix: "import_dedup:"}
}

func (s *DedupStore) key(tenantID int, checksum string) string {
	return fmt.Sprintf("%s%d:%s", s.prefix, tenantID, checksum)
}

// Claim tries to claim the (tenant, checksum) pair for the given window.
// Returns true when this caller is first; false when the pair was claimed
// within the window already.
func (s *DedupStore) Claim(ctx context.Context, tenantID int, checksum string, window time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(tenantID, checksum), time.Now().UTC().Format(time.RFC3339), window).Result()
	if err != nil {
		return false, fmt.Errorf("claim dedup key: %w", err)
	}
	return ok, nil
}

// Release drops a claim, letting a retry re-upload after a failed job.
func (s *DedupStore) Release(ctx context.Context, tenantID int, checksum string) error {
	if err := s.client.Del(ctx, s.key(tenantID, checksum)).Err(); err != nil {
		return fmt.Errorf("release dedup key: %w", err)
	}
	return nil
}

// Close closes the redis connection.
func (s *DedupStore) Close() error {
	return s.client.Close()
}
