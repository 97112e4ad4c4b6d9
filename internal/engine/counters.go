package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mesh-intelligence/shelf/pkg/types"
)

// countersKey is the KV key holding every table's last allocated id.
const countersKey = "counters"

// Counters allocates monotonic per-table ids. The whole map is persisted
// under one KV record after every increment, before the id is returned.
//
// Persisting is not part of the atomic unit of the insert that uses the id:
// an insert that fails afterwards leaves a gap, never a reused id.
type Counters struct {
	kv types.KV

	mu   sync.Mutex
	last map[string]int64
}

// NewCounters creates an empty counter store over kv. Call Load before use.
func NewCounters(kv types.KV) *Counters {
	return &Counters{kv: kv, last: make(map[string]int64)}
}

// Load reads the persisted counters. A missing record means every table
// starts at zero.
func (c *Counters) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok, err := c.kv.Get(ctx, countersKey)
	if err != nil {
		return fmt.Errorf("load counters: %w", err)
	}
	last := make(map[string]int64)
	if ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &last); err != nil {
			return fmt.Errorf("decode counters: %w", err)
		}
	}
	c.last = last
	return nil
}

// Next increments the table's counter, persists the map and returns the new
// value. When persisting fails the increment is undone.
func (c *Counters) Next(ctx context.Context, table string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.last[table]
	c.last[table] = prev + 1
	if err := c.persist(ctx); err != nil {
		c.last[table] = prev
		return 0, err
	}
	return prev + 1, nil
}

// Current returns the last id allocated for table, or 0.
func (c *Counters) Current(table string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last[table]
}

func (c *Counters) persist(ctx context.Context) error {
	raw, err := json.Marshal(c.last)
	if err != nil {
		return fmt.Errorf("encode counters: %w", err)
	}
	if err := c.kv.Put(ctx, countersKey, raw); err != nil {
		return fmt.Errorf("persist counters: %w", err)
	}
	return nil
}
