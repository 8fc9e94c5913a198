package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only while it still holds our token, so an
// expired lease taken over by another worker is left alone.
var releaseScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DocumentLease is a per-document mutual exclusion lock with a TTL.
type DocumentLease struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewDocumentLease(client *redisv9.Client, ttl time.Duration) *DocumentLease {
	if ttl <= 0 {
		ttl = 11 * time.Minute
	}
	return &DocumentLease{
		client: client,
		ttl:    ttl,
	}
}

// Acquire takes the lease for documentID. ok is false when another holder
// owns it; release must be called once the work is done.
func (l *DocumentLease) Acquire(ctx context.Context, documentID uint) (release func(context.Context) error, ok bool, err error) {
	key := l.leaseKey(documentID)
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis acquire document lease failed: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("redis release document lease failed: %w", err)
		}
		return nil
	}
	return release, true, nil
}

func (l *DocumentLease) leaseKey(documentID uint) string {
	return fmt.Sprintf("ingest:lease:document:%d", documentID)
}
