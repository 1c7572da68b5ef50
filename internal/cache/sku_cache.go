package cache

import (
	"strings"
	"sync"

	"github.com/syncbridge/internal/repository"
)

// SKUCache 单次同步运行内的 SKU→商品主键缓存
//
// 一次运行开始时整体预热，运行中可增量写入（新建的商品），
// 避免关联行项目时逐条点查。跨运行不复用，由调用方显式失效。
type SKUCache struct {
	mu       sync.RWMutex
	clientID uint
	ids      map[string]uint
	loaded   bool
}

// NewSKUCache 创建指定租户的 SKU 缓存
func NewSKUCache(clientID uint) *SKUCache {
	return &SKUCache{
		clientID: clientID,
		ids:      make(map[string]uint),
	}
}

// ClientID 返回缓存所属租户
func (c *SKUCache) ClientID() uint {
	return c.clientID
}

// Warm 预热：一次性加载租户全部 SKU 映射
func (c *SKUCache) Warm(repo repository.ProductRepository) error {
	refs, err := repo.ListSKURefs(c.clientID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = make(map[string]uint, len(refs))
	for _, ref := range refs {
		c.ids[normalizeSKU(ref.SKU)] = ref.ID
	}
	c.loaded = true
	return nil
}

// Loaded 判断缓存是否已预热
func (c *SKUCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Lookup 按 SKU 查商品主键
func (c *SKUCache) Lookup(sku string) (uint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[normalizeSKU(sku)]
	return id, ok
}

// Put 增量写入运行中新建的商品
func (c *SKUCache) Put(sku string, id uint) {
	if id == 0 || strings.TrimSpace(sku) == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[normalizeSKU(sku)] = id
}

// Invalidate 显式失效整个缓存
func (c *SKUCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = make(map[string]uint)
	c.loaded = false
}

// Len 返回缓存条目数
func (c *SKUCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

func normalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}
