// Package tokens holds OAuth2 access tokens keyed by resolution scope:
// a request id, "file:<fileId>", or "global". The in-memory map is
// authoritative; persistence through the storage collaborator is
// best-effort and never blocks a caller.
package tokens

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/reqstage/internal/storage"
)

// refreshSlack is how close to expiry a token may get before the flow
// engine should fetch a fresh one instead of risking a 401 mid-flight.
const refreshSlack = 60 * time.Second

const (
	GlobalKey     = "global"
	storagePrefix = "token:"
)

func FileKey(fileID string) string {
	return "file:" + fileID
}

type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	// ExpiresAt zero means the token never expires on its own.
	ExpiresAt time.Time
}

func (t Token) expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// tokenDTO is the persisted shape; expiry travels as epoch millis.
type tokenDTO struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	TokenType    string `json:"tokenType,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]Token

	store    storage.Store
	logf     func(format string, args ...any)
	now      func() time.Time
	dispatch func(fn func())
}

func NewCache(store storage.Store) *Cache {
	return &Cache{
		entries:  make(map[string]Token),
		store:    store,
		logf:     log.Printf,
		now:      time.Now,
		dispatch: func(fn func()) { go fn() },
	}
}

// Hydrate loads previously persisted tokens. Expired entries are
// dropped on first lookup, not here.
func (c *Cache) Hydrate(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		name, ok := strings.CutPrefix(key, storagePrefix)
		if !ok {
			continue
		}
		data, err := c.store.Get(ctx, key)
		if err != nil || data == nil {
			continue
		}
		var dto tokenDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			c.logf("tokens: discard unreadable entry %s: %v", key, err)
			continue
		}
		c.entries[name] = fromDTO(dto)
	}
	return nil
}

// Get returns the token for key. Expiry is evaluated lazily: an expired
// entry is removed as a side effect and reported as a miss.
func (c *Cache) Get(key string) (Token, bool) {
	c.mu.Lock()
	token, ok := c.entries[key]
	if ok && token.expired(c.now()) {
		delete(c.entries, key)
		c.mu.Unlock()
		c.persistRemove(key)
		return Token{}, false
	}
	c.mu.Unlock()
	if !ok {
		return Token{}, false
	}
	return token, true
}

// GetWithFallback walks the resolution scopes: the request's own key,
// then its file, then global, expiry-checked at each step.
func (c *Cache) GetWithFallback(requestID, fileID string) (Token, string, bool) {
	if requestID != "" {
		if token, ok := c.Get(requestID); ok {
			return token, requestID, true
		}
	}
	if fileID != "" {
		key := FileKey(fileID)
		if token, ok := c.Get(key); ok {
			return token, key, true
		}
	}
	if token, ok := c.Get(GlobalKey); ok {
		return token, GlobalKey, true
	}
	return Token{}, "", false
}

func (c *Cache) Set(key string, token Token) {
	c.mu.Lock()
	c.entries[key] = token
	c.mu.Unlock()
	c.persistSet(key, token)
}

func (c *Cache) Remove(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.persistRemove(key)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.entries = make(map[string]Token)
	c.mu.Unlock()
	for _, key := range keys {
		c.persistRemove(key)
	}
}

// NeedsRefresh reports whether the token exists, carries an expiry, and
// is inside the refresh window - even if not technically expired yet.
func (c *Cache) NeedsRefresh(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	token, ok := c.entries[key]
	if !ok || token.ExpiresAt.IsZero() {
		return false
	}
	return !c.now().Before(token.ExpiresAt.Add(-refreshSlack))
}

// persistSet and persistRemove run detached: storage latency or failure
// must never stall an execution, so errors only get logged.
func (c *Cache) persistSet(key string, token Token) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(toDTO(token))
	if err != nil {
		c.logf("tokens: encode %s: %v", key, err)
		return
	}
	c.dispatch(func() {
		if err := c.store.Set(context.Background(), storagePrefix+key, data); err != nil {
			c.logf("tokens: persist %s: %v", key, err)
		}
	})
}

func (c *Cache) persistRemove(key string) {
	if c.store == nil {
		return
	}
	c.dispatch(func() {
		if err := c.store.Remove(context.Background(), storagePrefix+key); err != nil {
			c.logf("tokens: remove %s: %v", key, err)
		}
	})
}

func toDTO(token Token) tokenDTO {
	dto := tokenDTO{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Scope:        token.Scope,
	}
	if !token.ExpiresAt.IsZero() {
		dto.ExpiresAt = token.ExpiresAt.UnixMilli()
	}
	return dto
}

func fromDTO(dto tokenDTO) Token {
	token := Token{
		AccessToken:  dto.AccessToken,
		RefreshToken: dto.RefreshToken,
		TokenType:    dto.TokenType,
		Scope:        dto.Scope,
	}
	if dto.ExpiresAt != 0 {
		token.ExpiresAt = time.UnixMilli(dto.ExpiresAt)
	}
	return token
}
