package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 账户级互斥锁
// ============================================================================
//
// 【为什么按账本账户加锁？】
//
// 场景：两笔转账同时动账户 A_USD
//
// 没有互斥时：
//   goroutine1: 读 A.balance=100 -> 扣 100 -> 写回 balance=0
//   goroutine2: 读 A.balance=100 -> 扣 100 -> 写回 balance=0   丢失一次扣款！
//
// 数据库事务只保证"写"的原子性，不能串行化对同一账户的
// 并发"计算"。锁在读取账户之前获取，在整个原子提交/回滚
// 结束之后才释放；不同账户互不阻塞。
//
// 【加锁顺序】
//
// 一次转账要同时锁 from 和 to 两个账户，所有调用方统一按
// 账户ID字典序加锁，避免 AB-BA 死锁。
//
// 【Redis 锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: key 不存在时才设置（互斥）
//   - EX: 过期时间（持有者崩溃时自动释放）
//   - value: 持有者令牌（释放时验证，防止误删别人的锁）
//
// 释放：Lua 脚本保证"检查+删除"原子执行
//
// ============================================================================

var (
	ErrLockFailed  = errors.New("获取账户锁失败")
	ErrLockExpired = errors.New("锁已过期")
)

// AccountLocker 按账本账户ID加互斥锁
// 返回的 release 必须在原子提交/回滚完成之后调用
type AccountLocker interface {
	LockAccounts(ctx context.Context, ids ...string) (release func(), err error)
}

// DistributedLock 单个 Redis 锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // 持有者令牌
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
// Lua 脚本先验证 value 是自己的再删除，避免处理超时后
// 误删其他持有者的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// RedisAccountLocker 基于 Redis 的账户锁实现
type RedisAccountLocker struct {
	client        *redis.Client
	expiration    time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisAccountLocker(client *redis.Client) *RedisAccountLocker {
	return &RedisAccountLocker{
		client:        client,
		expiration:    30 * time.Second,
		retryInterval: 100 * time.Millisecond,
		maxRetries:    30,
	}
}

// LockAccounts 按字典序依次锁住所有账户
// 中途任何一把锁失败，已持有的锁全部回退
func (r *RedisAccountLocker) LockAccounts(ctx context.Context, ids ...string) (func(), error) {
	sorted := sortUnique(ids)

	token := uuid.NewString()
	held := make([]*DistributedLock, 0, len(sorted))

	releaseHeld := func() {
		// 逆序释放
		for i := len(held) - 1; i >= 0; i-- {
			_ = held[i].Unlock(context.Background())
		}
	}

	for _, id := range sorted {
		l := NewDistributedLock(r.client, fmt.Sprintf("ledger:lock:account:%s", id), token, r.expiration)
		if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
			releaseHeld()
			return nil, err
		}
		held = append(held, l)
	}

	return releaseHeld, nil
}

// LocalAccountLocker 进程内账户锁，单实例部署和单元测试使用
type LocalAccountLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalAccountLocker() *LocalAccountLocker {
	return &LocalAccountLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalAccountLocker) LockAccounts(_ context.Context, ids ...string) (func(), error) {
	sorted := sortUnique(ids)

	held := make([]*sync.Mutex, 0, len(sorted))
	for _, id := range sorted {
		l.mu.Lock()
		m, ok := l.locks[id]
		if !ok {
			m = &sync.Mutex{}
			l.locks[id] = m
		}
		l.mu.Unlock()
		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}, nil
}

// sortUnique 排序并去重，同一账户在一次调用里只锁一次
func sortUnique(ids []string) []string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	out := sorted[:0]
	for i, id := range sorted {
		if i == 0 || id != sorted[i-1] {
			out = append(out, id)
		}
	}
	return out
}
