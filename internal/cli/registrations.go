package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/shelf/pkg/shelf"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

// registrationsKey is the partition KV key holding the CLI's table
// registrations.
const registrationsKey = "tables"

// registration records how a table was registered so later invocations
// can register it again. Records are stored as JSON: CUE source is
// tab-indented, which YAML block scalars cannot always carry.
type registration struct {
	Table   string             `json:"table"`
	Def     string             `json:"def,omitempty"`
	File    string             `json:"file"`
	Source  string             `json:"source"`
	Options types.TableOptions `json:"options"`
}

func loadRegistrations(ctx context.Context, kv types.KV) ([]registration, error) {
	raw, ok, err := kv.Get(ctx, registrationsKey)
	if err != nil {
		return nil, fmt.Errorf("load registrations: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var regs []registration
	if err := json.Unmarshal(raw, &regs); err != nil {
		return nil, fmt.Errorf("decode registrations: %w", err)
	}
	return regs, nil
}

func saveRegistrations(ctx context.Context, kv types.KV, regs []registration) error {
	raw, err := json.Marshal(regs)
	if err != nil {
		return fmt.Errorf("encode registrations: %w", err)
	}
	if err := kv.Put(ctx, registrationsKey, raw); err != nil {
		return fmt.Errorf("save registrations: %w", err)
	}
	return nil
}

// apply registers the table on s.
func (r registration) apply(ctx context.Context, s *shelf.Shelf) (*shelf.Table, error) {
	node, err := shelf.SchemaFromCUE([]byte(r.Source), r.File, r.Def)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", r.Table, err)
	}
	return s.RegisterTable(ctx, r.Table, node, r.Options)
}

// openShelf opens the configured partition and re-registers every table
// recorded in it.
func openShelf(ctx context.Context) (*shelf.Shelf, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, err
	}
	s, err := shelf.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	regs, err := loadRegistrations(ctx, s.KV())
	if err != nil {
		s.Close()
		return nil, err
	}
	for _, r := range regs {
		if _, err := r.apply(ctx, s); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// withShelf opens the partition, runs fn and closes it.
func withShelf(ctx context.Context, fn func(*shelf.Shelf) error) error {
	s, err := openShelf(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
