package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDuplicateScan: the same public key was scanned again within the dedup
// window, on this or another terminal.
var ErrDuplicateScan = errors.New("this code was scanned moments ago")

// DedupService debounces double scans across terminals with a short-lived
// Redis reservation per public key. It is a UX guard only: the ledger's
// transactional decrement is what actually prevents over-redemption, so a
// Redis outage fails open rather than blocking the bar.
type DedupService struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDedupService(rdb *redis.Client, ttl time.Duration) *DedupService {
	return &DedupService{rdb: rdb, ttl: ttl}
}

func dedupKey(publicKey string) string {
	return fmt.Sprintf("scan:dedup:%s", publicKey)
}

// Reserve claims the public key for the dedup window. Returns
// ErrDuplicateScan when another scan already holds it.
func (s *DedupService) Reserve(ctx context.Context, publicKey string) error {
	ok, err := s.rdb.SetNX(ctx, dedupKey(publicKey), 1, s.ttl).Result()
	if err != nil {
		log.Printf("Dedup: redis unavailable, allowing scan for pk %s: %v", publicKey, err)
		return nil
	}
	if !ok {
		return ErrDuplicateScan
	}
	return nil
}

// Release frees the reservation early. Called when a scan fails after
// reserving, so the guest can be re-scanned immediately.
func (s *DedupService) Release(ctx context.Context, publicKey string) {
	if err := s.rdb.Del(ctx, dedupKey(publicKey)).Err(); err != nil {
		log.Printf("Dedup: failed to release reservation for pk %s: %v", publicKey, err)
	}
}
