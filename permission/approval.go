package permission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// approvalEntry records when a cached "always allow" decision was granted.
type approvalEntry struct {
	grantedAt time.Time
}

// ApprovalCache remembers "always allow" decisions keyed by (tool,
// argument-hash) for a bounded TTL, so repeated identical calls don't
// re-prompt the operator.
type ApprovalCache struct {
	ttl   time.Duration
	cache *lru.Cache[string, approvalEntry]
	now   func() time.Time
}

// NewApprovalCache builds a cache bounded by maxEntries with the given TTL
// (30 minutes when ttl <= 0).
func NewApprovalCache(maxEntries int, ttl time.Duration) (*ApprovalCache, error) {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	c, err := lru.New[string, approvalEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &ApprovalCache{ttl: ttl, cache: c, now: time.Now}, nil
}

// Key derives the (tool, argument-hash) cache key via sha256 over the
// canonical JSON encoding of args.
func Key(tool string, args any) (string, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return tool + ":" + hex.EncodeToString(sum[:]), nil
}

// Grant records an "always allow" approval for key.
func (c *ApprovalCache) Grant(key string) {
	c.cache.Add(key, approvalEntry{grantedAt: c.now()})
}

// Check reports whether key has a live (non-expired) approval.
func (c *ApprovalCache) Check(key string) bool {
	entry, ok := c.cache.Get(key)
	if !ok {
		return false
	}
	if c.now().Sub(entry.grantedAt) > c.ttl {
		c.cache.Remove(key)
		return false
	}
	return true
}
