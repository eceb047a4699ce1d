package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notifier fans account writes out over Redis pub/sub so every instance can push them to its
// connected clients.
type Notifier struct {
	rc     *redis.Client
	logger *zap.Logger
}

func NewNotifier(rc *redis.Client, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{rc: rc, logger: logger}
}

// Channel is the pub/sub channel of a user's account.
func Channel(userID uint) string {
	return fmt.Sprintf("account:%d", userID)
}

// ViewCacheKey is the cache key of a user's rendered account view.
func ViewCacheKey(userID uint) string {
	return fmt.Sprintf("account:view:%d", userID)
}

// Publish drops the cached view and announces the write. Failures are logged, not returned:
// subscribers fall back to polling.
func (n *Notifier) Publish(ctx context.Context, userID uint) {
	if n == nil || n.rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := n.rc.Del(ctx, ViewCacheKey(userID)).Err(); err != nil {
		n.logger.Warn("invalidate account view failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	if err := n.rc.Publish(ctx, Channel(userID), time.Now().UnixMilli()).Err(); err != nil {
		n.logger.Warn("publish account change failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// Subscribe calls fn for every change announced on the user's channel until ctx ends or the
// returned function is called.
func (n *Notifier) Subscribe(ctx context.Context, userID uint, fn func()) (func(), error) {
	if n == nil || n.rc == nil {
		return func() {}, nil
	}
	sub := n.rc.Subscribe(ctx, Channel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w: %w", Channel(userID), ErrUnavailable, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				fn()
			}
		}
	}()
	return func() {
		cancel()
		_ = sub.Close()
	}, nil
}
