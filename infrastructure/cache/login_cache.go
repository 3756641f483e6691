package cache

import (
	"sync"
	"time"
)

// Login is a resolved operator identity held against a token.
type Login struct {
	Token        string
	OperatorID   int64
	OperatorName string
	ExpiresAt    time.Time
}

// Expired returns true when the login expiry time has passed.
func (l Login) Expired() bool {
	return time.Now().After(l.ExpiresAt)
}

// LoginCache stores operator logins by token.
type LoginCache struct {
	mu     sync.RWMutex
	logins map[string]Login
}

func NewLoginCache() *LoginCache {
	return &LoginCache{logins: make(map[string]Login)}
}

func (c *LoginCache) Add(l Login) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logins[l.Token] = l
}

func (c *LoginCache) Find(token string) (Login, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.logins[token]
	return l, ok
}

func (c *LoginCache) Delete(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.logins, token)
}
