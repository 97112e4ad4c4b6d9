package engine

import (
	"fmt"

	"github.com/mesh-intelligence/shelf/pkg/types"
)

// Notifier receives post-write events, e.g. "orders.inserted" or
// "batch.committed". It runs on its own goroutine; the engine never waits
// for it and ignores what it does.
type Notifier func(event string, payload any)

// Event name suffixes.
const (
	EventInserted       = "inserted"
	EventUpdated        = "updated"
	EventUpserted       = "upserted"
	EventDeleted        = "deleted"
	EventBatchCommitted = "batch.committed"
)

// TableEvent names a per-table event.
func TableEvent(table, suffix string) string {
	return table + "." + suffix
}

// emit dispatches an event. The notifier gets its own copy of payload, so
// callers may modify the rows a write returned. A panicking notifier is
// logged and recovered.
func (e *Engine) emit(event string, payload any) {
	if e.notify == nil {
		return
	}
	payload = clonePayload(payload)
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				e.log.Warn("notifier panicked", "event", event, "panic", fmt.Sprint(r))
			}
		}()
		e.notify(event, payload)
	}()
}

// clonePayload deep-copies rows and the containers inside them.
func clonePayload(v any) any {
	switch x := v.(type) {
	case types.Row:
		return cloneRow(x)
	case []types.Row:
		out := make([]types.Row, len(x))
		for i, r := range x {
			out[i] = cloneRow(r)
		}
		return out
	case *BatchResult:
		if x == nil {
			return x
		}
		res := &BatchResult{BatchID: x.BatchID, Entries: make([]BatchEntry, len(x.Entries))}
		for i, entry := range x.Entries {
			entry.Row = cloneRow(entry.Row)
			res.Entries[i] = entry
		}
		return res
	case map[string]any:
		return map[string]any(cloneRow(x))
	case types.Assoc:
		out := make(types.Assoc, len(x))
		for k, val := range x {
			out[k] = clonePayload(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = clonePayload(val)
		}
		return out
	case []byte:
		return append([]byte(nil), x...)
	}
	return v
}

func cloneRow(r types.Row) types.Row {
	if r == nil {
		return nil
	}
	out := make(types.Row, len(r))
	for k, val := range r {
		out[k] = clonePayload(val)
	}
	return out
}
