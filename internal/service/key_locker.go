package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrLockTimeout = errors.New("timed out waiting for session lock")

// KeyLocker 同一 key 的生成/作答串行执行
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

const lockStripes = 256

// LocalKeyLocker 单实例部署时使用的分段互斥锁
type LocalKeyLocker struct {
	stripes [lockStripes]chan struct{}
}

func NewLocalKeyLocker() *LocalKeyLocker {
	l := &LocalKeyLocker{}
	for i := range l.stripes {
		l.stripes[i] = make(chan struct{}, 1)
	}
	return l
}

func (l *LocalKeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	h := fnv.New32a()
	h.Write([]byte(key))
	slot := l.stripes[h.Sum32()%lockStripes]

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-slot })
	}, nil
}

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisKeyLocker 多实例部署时基于 SETNX 的分布式锁
type RedisKeyLocker struct {
	Client *redis.Client
	TTL    time.Duration
	Retry  time.Duration
	Wait   time.Duration
}

func NewRedisKeyLocker(client *redis.Client, ttl time.Duration) *RedisKeyLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisKeyLocker{
		Client: client,
		TTL:    ttl,
		Retry:  50 * time.Millisecond,
		Wait:   ttl,
	}
}

func (l *RedisKeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := "assessment:lock:" + key
	token := uuid.New().String()
	deadline := time.Now().Add(l.Wait)

	for {
		ok, err := l.Client.SetNX(ctx, lockKey, token, l.TTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-time.After(l.Retry):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 请求 ctx 可能已取消，释放锁使用独立 ctx
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			releaseScript.Run(releaseCtx, l.Client, []string{lockKey}, token)
		})
	}, nil
}
