package shelf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/shelf/internal/sqlite"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

// ExportJSONL writes the rows of table visible to the engine's user to
// path, one JSON object per line. It returns the number of rows written.
func (s *Shelf) ExportJSONL(ctx context.Context, table, path string) (int, error) {
	t, err := s.Table(table)
	if err != nil {
		return 0, err
	}
	q := t.Query()
	if t.Config().Options.AutoFields.ID {
		q = q.OrderBy(types.ColID, types.Asc)
	}
	rows, err := q.Get(ctx)
	if err != nil {
		return 0, err
	}
	records := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		rec, err := json.Marshal(row)
		if err != nil {
			return 0, fmt.Errorf("export %s: %w", table, err)
		}
		records = append(records, rec)
	}
	if err := sqlite.WriteJSONL(path, records); err != nil {
		return 0, fmt.Errorf("export %s: %w", table, err)
	}
	return len(records), nil
}

// ImportJSONL inserts every record of a JSONL file into table in one
// transaction. Auto fields in the records are regenerated. Malformed lines
// are skipped and logged.
func (s *Shelf) ImportJSONL(ctx context.Context, table, path string) (int, error) {
	records, skipped, err := sqlite.ReadJSONL(path)
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", table, err)
	}
	if skipped > 0 {
		s.Logger().Warn("skipped malformed records", "table", table, "path", path, "skipped", skipped)
	}
	if len(records) == 0 {
		return 0, nil
	}
	rows := make([]types.Row, 0, len(records))
	for i, rec := range records {
		dec := json.NewDecoder(bytes.NewReader(rec))
		dec.UseNumber()
		var row types.Row
		if err := dec.Decode(&row); err != nil {
			return 0, fmt.Errorf("import %s: record %d: %w", table, i, err)
		}
		rows = append(rows, row)
	}
	stored, err := s.BatchInsert(ctx, table, rows)
	if err != nil {
		return 0, err
	}
	return len(stored), nil
}
