package drug

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// infoCache 药品说明的内存缓存，进程重启即失效
type infoCache struct {
	lru *expirable.LRU[string, string]
}

// newInfoCache size<=0 时返回nil，表示不缓存
func newInfoCache(size int, ttl time.Duration) *infoCache {
	if size <= 0 {
		return nil
	}
	return &infoCache{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (c *infoCache) Get(drugName string) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.lru.Get(drugName)
}

func (c *infoCache) Set(drugName, details string) {
	if c == nil {
		return
	}
	c.lru.Add(drugName, details)
}

func (c *infoCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
