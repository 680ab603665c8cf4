package structure

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Tnze/go-mc/nbt"

	"schemconv/internal/convert"
	"schemconv/internal/persistence/tag"
)

// JSONV1 is the codec-independent shape of a converted structure.
type JSONV1 struct {
	SchemaVersion int            `json:"schemaVersion"`
	Attribution   string         `json:"attribution"`
	Extent        [3]int         `json:"extent"`
	Palette       []JSONState    `json:"palette"`
	Blocks        []JSONBlockRef `json:"blocks"`
}

type JSONState struct {
	Name       string `json:"name"`
	Attributes Object `json:"attributes,omitempty"`
}

type JSONBlockRef struct {
	PaletteIndex int    `json:"paletteIndex"`
	Position     [3]int `json:"position"`
	Auxiliary    Object `json:"auxiliary,omitempty"`
}

// Member is one key of an Object.
type Member struct {
	Key   string
	Value any
}

// Object is a JSON object written with its keys in slice order.
type Object []Member

func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(m.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value of the first member called key.
func (o Object) Get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

func ToJSON(res *convert.Result) (JSONV1, error) {
	out := JSONV1{
		SchemaVersion: res.DataVersion,
		Attribution:   res.Author,
		Extent:        res.Extent.Array(),
		Palette:       make([]JSONState, 0, len(res.Palette)),
		Blocks:        make([]JSONBlockRef, 0, len(res.Blocks)),
	}
	for _, id := range res.Palette {
		st := JSONState{Name: id.Name}
		for _, p := range id.Properties {
			st.Attributes = append(st.Attributes, Member{Key: p.Key, Value: p.Value})
		}
		out.Palette = append(out.Palette, st)
	}
	for _, b := range res.Blocks {
		ref := JSONBlockRef{
			PaletteIndex: b.State,
			Position:     b.Pos.Array(),
		}
		for _, f := range b.NBT {
			v := f.Value
			if m, ok := v.(nbt.RawMessage); ok {
				var err error
				if v, err = tag.Value(m); err != nil {
					return out, fmt.Errorf("block at %s: nbt %s: %w", b.Pos, f.Key, err)
				}
			}
			ref.Auxiliary = append(ref.Auxiliary, Member{Key: f.Key, Value: v})
		}
		out.Blocks = append(out.Blocks, ref)
	}
	return out, nil
}

// WriteJSON stores the JSON form of res at path.
func WriteJSON(path string, res *convert.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	doc, err := ToJSON(res)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
