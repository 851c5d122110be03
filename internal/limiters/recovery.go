package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRecoveryRateLimited      = errors.New("recovery rate limited")
	ErrRecoveryRedisUnavailable = errors.New("recovery redis unavailable")
)

type RecoveryThrottleConfig struct {
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	Window                   time.Duration
	MaxRequests              int
}

// RecoveryThrottle bounds how often recoveries can be requested or resent
// per identifier, record and client IP.
type RecoveryThrottle struct {
	redis  redis.UniversalClient
	config RecoveryThrottleConfig
	prefix string
}

func NewRecoveryThrottle(redisClient redis.UniversalClient, prefix string, cfg RecoveryThrottleConfig) *RecoveryThrottle {
	if prefix == "" {
		prefix = "rcv"
	}
	return &RecoveryThrottle{
		redis:  redisClient,
		config: cfg,
		prefix: prefix,
	}
}

func (l *RecoveryThrottle) CheckCreate(ctx context.Context, identifier, ip string) error {
	if l == nil {
		return nil
	}
	if l.config.EnableIdentifierThrottle && identifier != "" {
		key := l.prefix + ":thr:id:" + strings.ToLower(strings.TrimSpace(identifier))
		if err := l.enforceFixedWindow(ctx, key); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, l.prefix+":thr:ip:"+ip); err != nil {
			return err
		}
	}
	return nil
}

func (l *RecoveryThrottle) CheckResend(ctx context.Context, uid, ip string) error {
	if l == nil {
		return nil
	}
	if l.config.EnableIdentifierThrottle && uid != "" {
		if err := l.enforceFixedWindow(ctx, l.prefix+":thr:rec:"+uid); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, l.prefix+":thr:ip:"+ip); err != nil {
			return err
		}
	}
	return nil
}

func (l *RecoveryThrottle) Window() time.Duration {
	if l == nil {
		return 0
	}
	return l.config.Window
}

func (l *RecoveryThrottle) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
		}
	}

	if count > int64(l.config.MaxRequests) {
		return ErrRecoveryRateLimited
	}

	return nil
}
