// Package leader elects a single replica to run periodic jobs using a Redis
// lock.
package leader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTTL      = 45 * time.Second
	retryDelay      = time.Second
	renewalTimeout  = 5 * time.Second
	minRenewal      = time.Second
	renewalFraction = 3
)

var (
	counter atomic.Uint64

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
)

// Run acquires the lock at key and invokes run while it is held. run gets a
// context that is cancelled when leadership is lost or ctx is done. When
// client is nil there is nothing to coordinate with and run is called
// directly.
func Run(ctx context.Context, client *redis.Client, key string, ttl time.Duration, run func(context.Context)) error {
	if run == nil {
		return errors.New("leader: run function cannot be nil")
	}
	if client == nil {
		run(ctx)
		return ctx.Err()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s, err := acquire(ctx, client, key, ttl)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			log.Warn().Err(err).Str("key", key).Msg("leader lock: failed to acquire")
			if !sleep(ctx, retryDelay) {
				return ctx.Err()
			}
			continue
		}

		log.Debug().Str("key", key).Msg("leader lock: acquired")
		run(s.ctx)
		s.Close()
		log.Debug().Str("key", key).Msg("leader lock: released")

		if !sleep(ctx, retryDelay) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

type session struct {
	client    *redis.Client
	key       string
	value     string
	ttl       time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	stopRenew chan struct{}
	closeOnce sync.Once
}

func acquire(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*session, error) {
	value := newID()
	for {
		ok, err := client.SetNX(ctx, key, value, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("key", key).Msg("leader lock: setnx failed")
		} else if ok {
			sctx, cancel := context.WithCancel(ctx)
			s := &session{
				client:    client,
				key:       key,
				value:     value,
				ttl:       ttl,
				ctx:       sctx,
				cancel:    cancel,
				stopRenew: make(chan struct{}),
			}
			go s.renewLoop()
			return s, nil
		}
		if !sleep(ctx, retryDelay) {
			return nil, ctx.Err()
		}
	}
}

func (s *session) Close() {
	s.closeOnce.Do(func() {
		close(s.stopRenew)
		s.cancel()
		if err := s.release(); err != nil {
			log.Warn().Err(err).Str("key", s.key).Msg("leader lock: release failed")
		}
	})
}

func (s *session) renewLoop() {
	interval := s.ttl / renewalFraction
	if interval < minRenewal {
		interval = minRenewal
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopRenew:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.renew(); err != nil {
				log.Warn().Err(err).Str("key", s.key).Msg("leader lock: renewal failed")
				s.cancel()
				return
			}
		}
	}
}

func (s *session) renew() error {
	ctx, cancel := context.WithTimeout(context.Background(), renewalTimeout)
	defer cancel()

	res, err := renewScript.Run(ctx, s.client, []string{s.key}, s.value, s.ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if updated, ok := res.(int64); ok && updated == 0 {
		return errors.New("lock lost")
	}
	return nil
}

func (s *session) release() error {
	ctx, cancel := context.WithTimeout(context.Background(), renewalTimeout)
	defer cancel()

	_, err := releaseScript.Run(ctx, s.client, []string{s.key}, s.value).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func newID() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%d-%d", host, os.Getpid(), time.Now().UnixNano(), counter.Add(1))
}
