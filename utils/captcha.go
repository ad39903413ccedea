package utils

import (
	"context"
	"sync"
	"time"

	"github.com/mojocn/base64Captcha"
)

var (
	captchaStoreOnce sync.Once
	captchaStore     base64Captcha.Store
)

// getCaptchaStore picks the Redis-backed store when Redis is reachable so
// challenges survive restarts and load balancing; otherwise it degrades to
// the in-memory store of the library.
func getCaptchaStore() base64Captcha.Store {
	captchaStoreOnce.Do(func() {
		rc := GetRedis()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if rc != nil && rc.Ping(ctx).Err() == nil {
			captchaStore = NewCaptchaRedisStore(10 * time.Minute)
			return
		}
		captchaStore = base64Captcha.DefaultMemStore
	})
	return captchaStore
}

// GenerateCaptcha creates a captcha and returns (id, dataURI) for the frontend to display.
func GenerateCaptcha() (string, string, error) {
	// Simple digit captcha: height 40, width 120, length 5
	driver := base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80)
	c := base64Captcha.NewCaptcha(driver, getCaptchaStore())
	id, b64, _, err := c.Generate()
	return id, b64, err
}

// VerifyCaptcha verifies the provided answer; it consumes the captcha on success.
func VerifyCaptcha(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return getCaptchaStore().Verify(id, answer, true)
}
