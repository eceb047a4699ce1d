package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/bharatinvest/config"
)

var (
	redisClient *redis.Client
	redisOnce   sync.Once
)

// GetRedis returns a singleton Redis client based on loaded config. It returns nil after
// SetRedis(nil), and callers fall back to in-process state.
func GetRedis() *redis.Client {
	redisOnce.Do(func() {
		cfg := config.Get()
		redisClient = redis.NewClient(&redis.Options{
			Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		})
		// Optional: ping to validate; ignore error to allow fallback paths
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = redisClient.Ping(ctx).Err()
	})
	return redisClient
}

// SetRedis replaces the shared client. Passing nil disables Redis-backed helpers.
func SetRedis(c *redis.Client) {
	redisOnce.Do(func() {})
	redisClient = c
}

// getDel reads and removes key atomically, returning "" when it is absent. GETDEL needs
// Redis 6.2; older servers go through an equivalent script.
func getDel(ctx context.Context, rc *redis.Client, key string) string {
	if v, err := rc.GetDel(ctx, key).Result(); err == nil {
		return v
	}
	script := `local v=redis.call('GET', KEYS[1]); if v then redis.call('DEL', KEYS[1]); end; return v`
	res, err := rc.Eval(ctx, script, []string{key}).Result()
	if err != nil || res == nil {
		return ""
	}
	s, _ := res.(string)
	return s
}
