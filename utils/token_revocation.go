package utils

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Revocation works at two levels: one token by its id (logout), and every token a user holds
// that was issued before a cut-off (password change, ban). Redis holds both when available;
// otherwise they live in process memory.
var (
	revokedTokens  = map[string]time.Time{}
	sessionCutoffs = map[uint]int64{}
	revokeMu       sync.RWMutex
)

func revokedTokenKey(id string) string    { return "jwt:revoked:" + id }
func sessionCutoffKey(userID uint) string { return fmt.Sprintf("jwt:cutoff:%d", userID) }

// RevokeToken blacklists one token until it would have expired anyway.
func RevokeToken(claims *Claims) {
	exp := claims.expiresAt()
	ttl := time.Until(exp)
	if ttl <= 0 {
		return
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rc.Set(ctx, revokedTokenKey(claims.ID), "1", ttl).Err()
		return
	}
	revokeMu.Lock()
	revokedTokens[claims.ID] = exp
	revokeMu.Unlock()
}

// RevokeSessions invalidates every token issued to userID before now. Tokens issued afterwards
// are unaffected.
func RevokeSessions(userID uint) {
	cutoff := time.Now().UnixMicro()
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Older tokens have expired by the time the key does.
		_ = rc.Set(ctx, sessionCutoffKey(userID), cutoff, TokenTTL).Err()
		return
	}
	revokeMu.Lock()
	sessionCutoffs[userID] = cutoff
	revokeMu.Unlock()
}

// IsRevoked reports whether claims were revoked individually or by a session cut-off.
// Redis errors fail open to avoid locking every user out.
func IsRevoked(claims *Claims) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if n, err := rc.Exists(ctx, revokedTokenKey(claims.ID)).Result(); err == nil && n > 0 {
			return true
		}
		raw, err := rc.Get(ctx, sessionCutoffKey(claims.UserID)).Result()
		if err != nil {
			return false
		}
		cutoff, err := strconv.ParseInt(raw, 10, 64)
		return err == nil && claims.IssuedMicros < cutoff
	}

	revokeMu.RLock()
	exp, tokenRevoked := revokedTokens[claims.ID]
	cutoff, hasCutoff := sessionCutoffs[claims.UserID]
	revokeMu.RUnlock()

	if tokenRevoked {
		if time.Now().Before(exp) {
			return true
		}
		revokeMu.Lock()
		delete(revokedTokens, claims.ID)
		revokeMu.Unlock()
	}
	return hasCutoff && claims.IssuedMicros < cutoff
}
