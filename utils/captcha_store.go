package utils

import (
	"context"
	"time"

	"github.com/mojocn/base64Captcha"
)

// captchaRedisStore keeps captcha answers in Redis so verification works
// when registration requests land on a different instance than the one
// that generated the challenge.
type captchaRedisStore struct {
	ttl time.Duration
}

// NewCaptchaRedisStore returns a base64Captcha.Store backed by Redis.
func NewCaptchaRedisStore(ttl time.Duration) base64Captcha.Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &captchaRedisStore{ttl: ttl}
}

func (s *captchaRedisStore) key(id string) string {
	return "captcha:" + id
}

func (s *captchaRedisStore) Set(id string, value string) error {
	rc := GetRedis()
	if rc == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return rc.Set(ctx, s.key(id), value, s.ttl).Err()
}

// Get returns the stored answer. With clear set, the answer is consumed
// atomically so a challenge can never be replayed.
func (s *captchaRedisStore) Get(id string, clear bool) string {
	rc := GetRedis()
	if rc == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := s.key(id)
	if !clear {
		v, err := rc.Get(ctx, key).Result()
		if err != nil {
			return ""
		}
		return v
	}

	if v, err := rc.GetDel(ctx, key).Result(); err == nil {
		return v
	}
	// Servers older than 6.2 lack GETDEL; GET+DEL atomically via Lua.
	script := `local v=redis.call('GET', KEYS[1]) if v then redis.call('DEL', KEYS[1]) end return v`
	res, err := rc.Eval(ctx, script, []string{key}).Result()
	if err != nil {
		return ""
	}
	if v, ok := res.(string); ok {
		return v
	}
	return ""
}

func (s *captchaRedisStore) Verify(id, answer string, clear bool) bool {
	v := s.Get(id, clear)
	return v != "" && v == answer
}
