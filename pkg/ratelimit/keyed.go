package ratelimit

import (
	"sync"
	"time"
)

// KeyedLimiter 按客户端标识（IP、API key）分别限流
type KeyedLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*TokenBucket
	perMinute int
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewKeyedLimiter 创建按键限流器，空闲超过 idleTTL 的桶会被回收
func NewKeyedLimiter(perMinute, burst int, idleTTL time.Duration) *KeyedLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &KeyedLimiter{
		buckets:   make(map[string]*TokenBucket),
		perMinute: perMinute,
		burst:     burst,
		idleTTL:   idleTTL,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Allow 为 key 消耗一个令牌；被拒绝时返回建议的重试等待时间
func (k *KeyedLimiter) Allow(key string) (bool, time.Duration) {
	return k.bucket(key).Reserve()
}

// Len 当前跟踪的客户端数量
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

func (k *KeyedLimiter) bucket(key string) *TokenBucket {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if now.Sub(k.lastSweep) >= k.idleTTL {
		k.sweepLocked(now)
	}
	b, ok := k.buckets[key]
	if !ok {
		capacity := k.burst
		if capacity <= 0 {
			capacity = 1
		}
		perMinute := k.perMinute
		if perMinute <= 0 {
			perMinute = 1
		}
		b = newTokenBucket(perMinute, capacity, k.now)
		k.buckets[key] = b
	}
	return b
}

// sweepLocked 回收空闲的桶，调用方需持有锁
func (k *KeyedLimiter) sweepLocked(now time.Time) {
	for key, b := range k.buckets {
		if now.Sub(b.lastActivity()) >= k.idleTTL {
			delete(k.buckets, key)
		}
	}
	k.lastSweep = now
}
