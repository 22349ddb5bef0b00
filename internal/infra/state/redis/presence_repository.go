package redisstate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"collabboard/internal/repository"
)

// presenceTTL 用户在线记录的过期时间，防止进程崩溃后残留的在线标记永久存在
const presenceTTL = 7 * 24 * time.Hour

// KEYS[1] 用户记录 KEYS[2] 在线集合
// ARGV[1] 在线标记 ARGV[2] 定长纳秒时间戳 ARGV[3] last_seen 毫秒 ARGV[4] TTL 毫秒 ARGV[5] 用户 ID
// 已记录的时间戳更新时拒绝写入，返回 0
const luaSetPresence = `
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and cur > ARGV[2] then
  return 0
end
redis.call('HSET', KEYS[1], 'online', ARGV[1], 'last_seen', ARGV[3], 'ts', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
if ARGV[1] == '1' then
  redis.call('SADD', KEYS[2], ARGV[5])
else
  redis.call('SREM', KEYS[2], ARGV[5])
end
return 1
`

// RedisPresenceRepository 是 PresenceRepository 接口的 Redis 实现
type RedisPresenceRepository struct {
	client    *redis.Client
	keyPrefix string
	setScript *redis.Script
}

// NewRedisPresenceRepository 创建 RedisPresenceRepository 实例
func NewRedisPresenceRepository(client *redis.Client, keyPrefix string) *RedisPresenceRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisPresenceRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "cb:"
	}
	return &RedisPresenceRepository{client: client, keyPrefix: keyPrefix, setScript: redis.NewScript(luaSetPresence)}
}

// --- Key Generation Helpers ---
func (r *RedisPresenceRepository) userKey(userID string) string {
	return fmt.Sprintf("%spresence:user:%s", r.keyPrefix, userID)
}

func (r *RedisPresenceRepository) onlineSetKey() string {
	return r.keyPrefix + "presence:online"
}

// SetOnline 写入在线标记与最后在线时间，并维护在线用户集合。
// 写入按 at 比较：比已记录时间更早的转换被丢弃，乱序到达的下线不会覆盖之后的上线。
func (r *RedisPresenceRepository) SetOnline(ctx context.Context, userID string, online bool, at time.Time) error {
	flag := "0"
	if online {
		flag = "1"
	}
	applied, err := r.setScript.Run(ctx, r.client,
		[]string{r.userKey(userID), r.onlineSetKey()},
		flag,
		fmt.Sprintf("%020d", at.UnixNano()),
		strconv.FormatInt(at.UnixMilli(), 10),
		presenceTTL.Milliseconds(),
		userID,
	).Int64()
	if err != nil {
		return fmt.Errorf("redis: failed to set presence for user %s (online=%t): %w", userID, online, err)
	}
	if applied == 0 {
		logrus.WithFields(logrus.Fields{"user_id": userID, "online": online}).Debug("Stale presence write skipped")
	}
	return nil
}

// LastSeen 没有记录时返回 repository.ErrNotFound
func (r *RedisPresenceRepository) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	val, err := r.client.HGet(ctx, r.userKey(userID), "last_seen").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, repository.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("redis: failed to get last seen for user %s: %w", userID, err)
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis: corrupt last_seen %q for user %s: %w", val, userID, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// OnlineUsers 返回当前标记为在线的用户 (有序)
func (r *RedisPresenceRepository) OnlineUsers(ctx context.Context) ([]string, error) {
	users, err := r.client.SMembers(ctx, r.onlineSetKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to list online users: %w", err)
	}
	sort.Strings(users)
	return users, nil
}

// Reset 清空在线集合。进程启动时调用：内存注册表从零开始，残留的在线标记不再可信。
func (r *RedisPresenceRepository) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.onlineSetKey()).Err(); err != nil {
		return fmt.Errorf("redis: failed to reset online set: %w", err)
	}
	return nil
}
