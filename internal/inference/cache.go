package inference

import (
	"strings"
	"sync"
)

// ruleCache is the process-local prompt-to-rules cache: bounded at 256
// entries, full clear on overflow rather than true LRU eviction. The cost
// of a clear is one extra normalization per distinct prompt.
type ruleCache struct {
	mu    sync.Mutex
	limit int
	data  map[string]RuleSet
}

func newRuleCache() *ruleCache {
	return &ruleCache{limit: 256, data: make(map[string]RuleSet)}
}

func cacheKey(prompt string) string {
	return strings.ToLower(strings.TrimSpace(prompt))
}

func (c *ruleCache) get(prompt string) (RuleSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs, ok := c.data[cacheKey(prompt)]
	return rs, ok
}

func (c *ruleCache) set(prompt string, rs RuleSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.data) >= c.limit {
		c.data = make(map[string]RuleSet)
	}
	c.data[cacheKey(prompt)] = rs
}
