package utils

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"
	"time"
)

type codeEntry struct {
	code      string
	expiresAt time.Time
}

var (
	verifyCodes   = map[string]codeEntry{}
	verifyCodesMu sync.Mutex
)

// GenerateVerificationCode creates a numeric verification code of n digits.
func GenerateVerificationCode(n int) string {
	if n <= 0 {
		n = 6
	}
	digits := make([]byte, n)
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			v = big.NewInt(time.Now().UnixNano() % 10)
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits)
}

func verifyCodeKey(email string) string {
	return "verify:email:" + email
}

// SaveCode stores a verification code for an email with a TTL. Prefers Redis
// and falls back to process memory.
func SaveCode(email, code string, ttl time.Duration) {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, verifyCodeKey(email), code, ttl).Err(); err == nil {
			return
		}
	}
	verifyCodesMu.Lock()
	verifyCodes[email] = codeEntry{code: code, expiresAt: time.Now().Add(ttl)}
	verifyCodesMu.Unlock()
}

// VerifyAndConsumeCode checks a code and consumes it if present, so each code
// can only be used once.
func VerifyAndConsumeCode(email, code string) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		key := verifyCodeKey(email)
		if val, err := rc.GetDel(ctx, key).Result(); err == nil {
			return val == code
		}
		// GETDEL requires Redis >= 6.2; fall back to Lua get+del.
		script := `local v=redis.call('GET', KEYS[1]); if v then redis.call('DEL', KEYS[1]); end; return v`
		if res, err := rc.Eval(ctx, script, []string{key}).Result(); err == nil {
			s, ok := res.(string)
			return ok && s == code
		}
		// Redis unreachable, try the memory store.
	}
	verifyCodesMu.Lock()
	defer verifyCodesMu.Unlock()
	entry, ok := verifyCodes[email]
	if !ok {
		return false
	}
	if time.Now().After(entry.expiresAt) {
		delete(verifyCodes, email)
		return false
	}
	if entry.code != code {
		return false
	}
	delete(verifyCodes, email)
	return true
}

// EmailCooldownTrySet arms a per-address send cooldown. Returns false while a
// previous cooldown is still active.
func EmailCooldownTrySet(email string, cooldown time.Duration) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ok, _ := rc.SetNX(ctx, "cooldown:email:"+email, "1", cooldown).Result()
		return ok
	}
	key := "cooldown:email:mem:" + email
	verifyCodesMu.Lock()
	defer verifyCodesMu.Unlock()
	if entry, ok := verifyCodes[key]; ok && time.Now().Before(entry.expiresAt) {
		return false
	}
	verifyCodes[key] = codeEntry{code: "1", expiresAt: time.Now().Add(cooldown)}
	return true
}
