package auth

import (
	"sync"
	"time"
)

type decision struct {
	err       error
	expiresAt time.Time
}

// decisionCache memoizes ACL evaluations per (fingerprint, section,
// permission). Entries hold the full decision, so denials are cached as
// hard as grants and a revoked permission takes at most one TTL to bite.
type decisionCache struct {
	decisions sync.Map
	ttl       time.Duration
}

func newDecisionCache(ttl time.Duration) *decisionCache {
	return &decisionCache{ttl: ttl}
}

func (c *decisionCache) get(key string) (error, bool) {
	val, ok := c.decisions.Load(key)
	if !ok {
		return nil, false
	}
	d := val.(*decision)
	if time.Now().After(d.expiresAt) {
		c.decisions.Delete(key)
		return nil, false
	}
	return d.err, true
}

func (c *decisionCache) put(key string, err error) {
	c.decisions.Store(key, &decision{
		err:       err,
		expiresAt: time.Now().Add(c.ttl),
	})
}

func (c *decisionCache) sweep() {
	now := time.Now()
	c.decisions.Range(func(key, value interface{}) bool {
		d := value.(*decision)
		if now.After(d.expiresAt) {
			c.decisions.Delete(key)
		}
		return true
	})
}

func (c *decisionCache) purge() {
	c.decisions.Range(func(key, value interface{}) bool {
		c.decisions.Delete(key)
		return true
	})
}

// StartCacheSweep starts a background goroutine that drops expired ACL
// decisions every 5 minutes. Call done() from your WaitGroup, listen on
// cancel for shutdown.
func (e *Evaluator) StartCacheSweep(done func(), cancel <-chan struct{}) {
	go func() {
		defer done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.cache.sweep()
			case <-cancel:
				return
			}
		}
	}()
}
