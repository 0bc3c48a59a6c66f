package reg

import (
	"sync"

	"github.com/iamwavecut/phishguard/internal/db"
)

// PolicyCache is an in-process cache of chat policies keyed by chat ID. The
// storage layer is the single writer, so entries only go stale through its own
// Set and Remove calls.
type PolicyCache struct {
	mu    sync.RWMutex
	cache map[int64]db.ChatPolicy
}

func NewPolicyCache() *PolicyCache {
	return &PolicyCache{
		cache: map[int64]db.ChatPolicy{},
	}
}

func (r *PolicyCache) Get(chatID int64) *db.ChatPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if policy, ok := r.cache[chatID]; ok {
		cp := policy
		return &cp
	}
	return nil
}

func (r *PolicyCache) Set(policy *db.ChatPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[policy.ChatID] = *policy
}

func (r *PolicyCache) Remove(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, chatID)
}
