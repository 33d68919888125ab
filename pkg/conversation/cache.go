package conversation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"hotelplan/pkg/domain"
)

type cachedResult struct {
	outcome Outcome
	err     error
}

// CachedEngine memoises Run by history digest. Run is pure, so a resubmitted
// history always maps to the same outcome.
type CachedEngine struct {
	engine *Engine
	cache  *lru.Cache[string, cachedResult]
}

func NewCachedEngine(engine *Engine, size int) (*CachedEngine, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, cachedResult](size)
	if err != nil {
		return nil, fmt.Errorf("create conversation cache: %w", err)
	}
	return &CachedEngine{engine: engine, cache: cache}, nil
}

func (c *CachedEngine) Run(history []domain.ChatMessage) (Outcome, error) {
	key, err := historyDigest(history)
	if err != nil {
		return c.engine.Run(history)
	}
	if hit, ok := c.cache.Get(key); ok {
		return hit.outcome, hit.err
	}
	outcome, runErr := c.engine.Run(history)
	c.cache.Add(key, cachedResult{outcome: outcome, err: runErr})
	return outcome, runErr
}

// Len is the number of cached histories.
func (c *CachedEngine) Len() int {
	return c.cache.Len()
}

func historyDigest(history []domain.ChatMessage) (string, error) {
	raw, err := json.Marshal(history)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
