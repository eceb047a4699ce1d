package utils

import (
	"context"
	"sync"
	"time"
)

// stateEntry remembers which provider an OAuth state was issued for.
type stateEntry struct {
	provider  string
	expiresAt time.Time
}

var (
	stateStore   = map[string]stateEntry{}
	stateStoreMu sync.Mutex
)

func stateKey(state string) string { return "oauth:state:" + state }

// SaveState stores an OAuth state token for provider with TTL to mitigate CSRF.
func SaveState(state, provider string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rc.Set(ctx, stateKey(state), provider, ttl).Err()
		return
	}
	// single instance only
	stateStoreMu.Lock()
	stateStore[state] = stateEntry{provider: provider, expiresAt: time.Now().Add(ttl)}
	stateStoreMu.Unlock()
}

// ConsumeState removes state and reports whether it was issued for provider and has not
// expired. A state presented to the wrong provider is still spent.
func ConsumeState(state, provider string) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		issued := getDel(ctx, rc, stateKey(state))
		return issued != "" && issued == provider
	}
	stateStoreMu.Lock()
	entry, ok := stateStore[state]
	if ok {
		delete(stateStore, state)
	}
	stateStoreMu.Unlock()
	if !ok {
		return false
	}
	return entry.provider == provider && time.Now().Before(entry.expiresAt)
}
