package utils

import (
	"sync"
	"time"

	"github.com/mojocn/base64Captcha"
)

const captchaTTL = 10 * time.Minute

var (
	captchaStore     base64Captcha.Store
	captchaStoreOnce sync.Once
)

// activeCaptchaStore prefers Redis so answers survive across instances behind a load balancer.
func activeCaptchaStore() base64Captcha.Store {
	captchaStoreOnce.Do(func() {
		if GetRedis() != nil {
			captchaStore = NewRedisCaptchaStore(captchaTTL)
			return
		}
		captchaStore = base64Captcha.NewMemoryStore(base64Captcha.GCLimitNumber, captchaTTL)
	})
	return captchaStore
}

// GenerateCaptcha creates a digit captcha and returns (id, dataURI) for the signup form.
func GenerateCaptcha() (string, string, error) {
	driver := base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80)
	c := base64Captcha.NewCaptcha(driver, activeCaptchaStore())
	id, b64, _, err := c.Generate()
	return id, b64, err
}

// VerifyCaptcha verifies the provided answer; it consumes the captcha on success.
func VerifyCaptcha(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return activeCaptchaStore().Verify(id, answer, true)
}
