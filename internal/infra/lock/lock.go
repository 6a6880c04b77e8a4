// Package lock keeps evaluation runs from overlapping.
package lock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Local guards runs inside a single process.
type Local struct {
	held atomic.Bool
}

func NewLocal() *Local {
	return &Local{}
}

// TryAcquire returns a release func when the guard was free. Release is safe
// to call more than once.
func (l *Local) TryAcquire(context.Context) (func(context.Context) error, bool, error) {
	if !l.held.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	var released atomic.Bool
	return func(context.Context) error {
		if released.CompareAndSwap(false, true) {
			l.held.Store(false)
		}
		return nil
	}, true, nil
}

// releaseScript deletes the key only while it still carries our token, so an
// expired lease taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis guards runs across instances with a SET NX PX lease. The lease value
// is "<instance>/<uuid>".
type Redis struct {
	client   redis.UniversalClient
	key      string
	instance string
	ttl      time.Duration
}

func NewRedis(client redis.UniversalClient, key, instance string, ttl time.Duration) *Redis {
	return &Redis{client: client, key: key, instance: instance, ttl: ttl}
}

func (r *Redis) TryAcquire(ctx context.Context) (func(context.Context) error, bool, error) {
	token := r.instance + "/" + uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire run lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	var released atomic.Bool
	return func(ctx context.Context) error {
		if !released.CompareAndSwap(false, true) {
			return nil
		}
		if err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Err(); err != nil {
			return fmt.Errorf("release run lease: %w", err)
		}
		return nil
	}, true, nil
}

// Holder returns the lease value of the current holder, empty when free.
func (r *Redis) Holder(ctx context.Context) (string, error) {
	token, err := r.client.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return token, err
}
