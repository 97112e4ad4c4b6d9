package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/shelf/pkg/types"
)

// Output formats.
const (
	outputJSON = "json"
	outputYAML = "yaml"
)

// render writes v in the selected output format.
func render(w io.Writer, v any) error {
	switch strings.ToLower(flags.output) {
	case "", outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return usageErrorf("unknown output format %q", flags.output)
}

// readPayload returns the argument, or stdin when it is "-".
func readPayload(arg string) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}

// parseRows decodes a JSON object or an array of objects. Numbers stay
// json.Number so the schema decides their type.
func parseRows(data []byte) ([]types.Row, bool, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false, usageErrorf("row data is not JSON: %v", err)
	}
	switch x := v.(type) {
	case map[string]any:
		return []types.Row{x}, false, nil
	case []any:
		rows := make([]types.Row, 0, len(x))
		for i, item := range x {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, true, usageErrorf("row %d is not an object", i)
			}
			rows = append(rows, m)
		}
		return rows, true, nil
	}
	return nil, false, usageErrorf("row data must be an object or an array of objects")
}

// parseRow decodes exactly one JSON object.
func parseRow(data []byte) (types.Row, error) {
	rows, many, err := parseRows(data)
	if err != nil {
		return nil, err
	}
	if many {
		return nil, usageErrorf("expected one object, got an array")
	}
	return rows[0], nil
}

// parseWhere parses "field=value" or "field:op:value". A value for IN is
// split on commas.
func parseWhere(s string) (types.Condition, error) {
	if parts := strings.SplitN(s, ":", 3); len(parts) == 3 && parts[0] != "" && !strings.Contains(parts[0], "=") {
		c := types.Condition{Field: parts[0], Op: strings.TrimSpace(parts[1]), Value: parts[2]}
		if strings.EqualFold(c.Op, types.OpIn) {
			var values []any
			for _, v := range strings.Split(parts[2], ",") {
				values = append(values, v)
			}
			c.Value = values
		}
		return c, nil
	}
	field, value, ok := strings.Cut(s, "=")
	if !ok || field == "" {
		return types.Condition{}, usageErrorf("bad condition %q: want field=value or field:op:value", s)
	}
	return types.Eq(field, value), nil
}

func parseWheres(list []string) ([]types.Condition, error) {
	conds := make([]types.Condition, 0, len(list))
	for _, s := range list {
		c, err := parseWhere(s)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

// parseOrder parses "field" or "field:asc|desc".
func parseOrder(s string) (string, types.Direction) {
	field, dir, _ := strings.Cut(s, ":")
	return field, types.Direction(strings.ToUpper(dir))
}
