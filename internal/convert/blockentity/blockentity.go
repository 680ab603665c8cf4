// Package blockentity indexes per-position auxiliary payloads by coordinate.
package blockentity

import (
	"fmt"

	"schemconv/internal/convert/grid"
)

const (
	PosField      = "Pos"
	SourceIDField = "Id"
	OutputIDField = "id"
)

// Field is one named payload value. Values are opaque to the converter and
// are handed back to the writer as they were read.
type Field struct {
	Key   string
	Value any
}

// Record is a payload with its fields in source order.
type Record []Field

// Get returns the value of the last field called key.
func (r Record) Get(key string) (any, bool) {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i].Key == key {
			return r[i].Value, true
		}
	}
	return nil, false
}

// Index holds one payload per coordinate. Payloads no longer carry a
// position and use OutputIDField as their identifier, in the slot the source
// identifier occupied.
type Index struct {
	byPos map[grid.Pos]Record

	// Duplicates lists coordinates that appeared more than once in the
	// source, in source order. The later record replaced the earlier one.
	Duplicates []grid.Pos
}

// Build indexes records in source order. Input records are not modified.
func Build(records []Record) (*Index, error) {
	idx := &Index{byPos: make(map[grid.Pos]Record, len(records))}
	for i, rec := range records {
		raw, _ := rec.Get(PosField)
		pos, err := position(raw)
		if err != nil {
			return nil, fmt.Errorf("block entity %d: %w", i, err)
		}
		id, ok := rec.Get(SourceIDField)
		if !ok {
			return nil, fmt.Errorf("block entity %d at %s: missing %s", i, pos, SourceIDField)
		}

		payload := make(Record, 0, len(rec))
		renamed := false
		for _, f := range rec {
			switch f.Key {
			case PosField, OutputIDField:
				continue
			case SourceIDField:
				if renamed {
					continue
				}
				renamed = true
				payload = append(payload, Field{Key: OutputIDField, Value: id})
			default:
				payload = append(payload, f)
			}
		}

		if _, dup := idx.byPos[pos]; dup {
			idx.Duplicates = append(idx.Duplicates, pos)
		}
		idx.byPos[pos] = payload
	}
	return idx, nil
}

func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.byPos)
}

// At returns the payload stored at p. A nil index has no payloads.
func (idx *Index) At(p grid.Pos) (Record, bool) {
	if idx == nil {
		return nil, false
	}
	v, ok := idx.byPos[p]
	return v, ok
}

func position(v any) (grid.Pos, error) {
	var xs []int
	switch t := v.(type) {
	case nil:
		return grid.Pos{}, fmt.Errorf("missing %s", PosField)
	case []int32:
		for _, n := range t {
			xs = append(xs, int(n))
		}
	case []int64:
		for _, n := range t {
			xs = append(xs, int(n))
		}
	case []int:
		xs = append(xs, t...)
	case [3]int:
		xs = t[:]
	case []any:
		for _, e := range t {
			n, ok := toInt(e)
			if !ok {
				return grid.Pos{}, fmt.Errorf("%s element %v (%T) is not an integer", PosField, e, e)
			}
			xs = append(xs, n)
		}
	default:
		return grid.Pos{}, fmt.Errorf("%s has type %T, want 3 integers", PosField, v)
	}
	if len(xs) != 3 {
		return grid.Pos{}, fmt.Errorf("%s has %d elements, want 3", PosField, len(xs))
	}
	return grid.Pos{X: xs[0], Y: xs[1], Z: xs[2]}, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}
