// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package throttle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter keeps one token bucket per key in process memory.
type LocalLimiter struct {
	limiters sync.Map // key -> *entry
	limit    rate.Limit
	burst    int

	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
}

type entry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // Unix timestamp
}

func NewLocalLimiter(config Config) *LocalLimiter {
	l := &LocalLimiter{
		limit:           rate.Limit(config.RPS),
		burst:           config.Burst,
		cleanupInterval: config.CleanupInterval,
		stop:            make(chan struct{}),
	}
	if l.cleanupInterval > 0 {
		l.wg.Add(1)
		go l.cleanupLoop()
	}
	return l
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	allowed := l.get(key).Allow()
	record(backendLocal, allowed)
	return allowed, nil
}

func (l *LocalLimiter) get(key string) *rate.Limiter {
	now := time.Now().Unix()
	if v, ok := l.limiters.Load(key); ok {
		e := v.(*entry)
		e.lastUsed.Store(now)
		return e.limiter
	}
	e := &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
	e.lastUsed.Store(now)
	actual, _ := l.limiters.LoadOrStore(key, e)
	return actual.(*entry).limiter
}

// Stop ends the cleanup goroutine.
func (l *LocalLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	l.wg.Wait()
}

func (l *LocalLimiter) cleanupLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.cleanup(time.Now().Add(-2 * l.cleanupInterval))
		}
	}
}

func (l *LocalLimiter) cleanup(cutoff time.Time) {
	l.limiters.Range(func(key, value any) bool {
		if value.(*entry).lastUsed.Load() < cutoff.Unix() {
			l.limiters.Delete(key)
		}
		return true
	})
}
