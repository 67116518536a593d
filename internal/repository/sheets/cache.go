package sheets

import "sync"

// lookupCache — ограниченный кэш соответствий Telegram_ID -> номер строки.
// Вытеснение FIFO: при переполнении уходит самый старый ключ.
// Источником правды кэш не является — содержимое строки всегда
// перечитывается из таблицы.
type lookupCache struct {
	mu    sync.Mutex
	max   int
	rows  map[string]int
	order []string
}

func newLookupCache(max int) *lookupCache {
	if max <= 0 {
		max = 1
	}
	return &lookupCache{
		max:  max,
		rows: make(map[string]int, max),
	}
}

func (c *lookupCache) Get(key string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[key]
	return row, ok
}

func (c *lookupCache) Put(key string, row int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.rows[key]; !exists {
		if len(c.rows) >= c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.rows, oldest)
		}
		c.order = append(c.order, key)
	}
	c.rows[key] = row
}

func (c *lookupCache) Drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.rows[key]; !exists {
		return
	}
	delete(c.rows, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
