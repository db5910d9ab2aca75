// Copyright 2025 SQLWard
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// rateLimiter enforces per-client request limits. With Redis configured it
// uses a sliding window shared across gateway instances; otherwise it falls
// back to a per-process fixed window.
type rateLimiter struct {
	redis *redis.Client

	mu      sync.Mutex
	windows map[string]*rateWindow
}

type rateWindow struct {
	count     int
	resetTime time.Time
}

// newRateLimiter creates a rate limiter. redisURL may be empty.
func newRateLimiter(redisURL string) (*rateLimiter, error) {
	limiter := &rateLimiter{
		windows: make(map[string]*rateWindow),
	}

	if redisURL == "" {
		return limiter, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	limiter.redis = client
	return limiter, nil
}

// check returns an error when the client exceeded its per-minute limit.
func (l *rateLimiter) check(ctx context.Context, clientID string, limitPerMinute int) error {
	if limitPerMinute <= 0 {
		return nil
	}
	if l.redis != nil {
		return l.checkRedis(ctx, clientID, limitPerMinute)
	}
	return l.checkMemory(clientID, limitPerMinute)
}

// checkRedis implements a sliding window over a sorted set of request
// timestamps. Redis failures fail open: blocking all traffic on a Redis
// outage would be worse than briefly losing rate limiting.
func (l *rateLimiter) checkRedis(ctx context.Context, clientID string, limitPerMinute int) error {
	now := time.Now()
	key := fmt.Sprintf("ratelimit:%s", clientID)

	pipe := l.redis.Pipeline()

	minScore := now.Add(-time.Minute).Unix()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", minScore))
	pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, 2*time.Minute)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("Warning: Redis rate limit check failed for %s: %v (failing open)", clientID, err)
		return nil
	}

	count := cmds[1].(*redis.IntCmd).Val()
	if count >= int64(limitPerMinute) {
		return fmt.Errorf("rate limit exceeded: %d requests/minute (limit: %d)", count+1, limitPerMinute)
	}

	return nil
}

// checkMemory implements a per-process fixed window.
func (l *rateLimiter) checkMemory(clientID string, limitPerMinute int) error {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	window, exists := l.windows[clientID]
	if !exists || now.After(window.resetTime) {
		l.windows[clientID] = &rateWindow{
			count:     1,
			resetTime: now.Add(time.Minute),
		}
		return nil
	}

	window.count++
	if window.count > limitPerMinute {
		return fmt.Errorf("rate limit exceeded: %d requests/minute (limit: %d)", window.count, limitPerMinute)
	}

	return nil
}

// status reports the current usage for a client: count within the window
// and when the window resets.
func (l *rateLimiter) status(ctx context.Context, clientID string) (int, time.Time, error) {
	now := time.Now()

	if l.redis != nil {
		key := fmt.Sprintf("ratelimit:%s", clientID)
		minScore := now.Add(-time.Minute).Unix()
		count, err := l.redis.ZCount(ctx, key, fmt.Sprintf("%d", minScore), "+inf").Result()
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("failed to get rate limit status: %w", err)
		}
		resetTime := now.Truncate(time.Minute).Add(time.Minute)
		return int(count), resetTime, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	window, exists := l.windows[clientID]
	if !exists {
		return 0, time.Time{}, nil
	}
	return window.count, window.resetTime, nil
}

// close releases the Redis connection if one is open.
func (l *rateLimiter) close() error {
	if l.redis != nil {
		return l.redis.Close()
	}
	return nil
}
