// Package schem reads schematic captures (gzip-compressed or raw NBT) and
// exposes them through convert.Container.
package schem

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Tnze/go-mc/nbt"
	"github.com/klauspost/compress/gzip"

	"schemconv/internal/convert"
	"schemconv/internal/convert/blockentity"
	"schemconv/internal/convert/palette"
	"schemconv/internal/encoding"
	"schemconv/internal/persistence/tag"
)

// FieldError reports a field whose tag type does not match what the
// converter expects.
type FieldError struct {
	Field string
	Want  string
	Got   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: want %s, got %s", e.Field, e.Want, e.Got)
}

func fieldError(field, want string, got byte) *FieldError {
	return &FieldError{Field: field, Want: want, Got: tag.TypeName(got)}
}

// Container is a decoded schematic root compound. Entry order and tag
// types are kept as read.
type Container struct {
	root tag.Compound
}

var _ convert.Container = (*Container)(nil)

// Read opens and decodes the schematic at path.
func Read(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return c, nil
}

// Decode reads one NBT root compound from r. gzip input is detected by its
// magic bytes.
func Decode(r io.Reader) (*Container, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	magic, err := br.Peek(2)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var src io.Reader = br
	if magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	var root tag.Compound
	if _, err := nbt.NewDecoder(src).Decode(&root); err != nil {
		return nil, fmt.Errorf("nbt decode: %w", err)
	}
	return &Container{root: root}, nil
}

func (c *Container) get(name string) (nbt.RawMessage, error) {
	v, ok := c.root.Get(name)
	if !ok {
		return v, fmt.Errorf("%s: %w", name, convert.ErrNoField)
	}
	return v, nil
}

// Int reads an integer field. Shorts are unsigned in schematic files.
func (c *Container) Int(name string) (int, error) {
	v, err := c.get(name)
	if err != nil {
		return 0, err
	}
	return intValue(name, v)
}

func intValue(name string, v nbt.RawMessage) (int, error) {
	switch v.Type {
	case nbt.TagByte:
		var n int8
		err := v.Unmarshal(&n)
		return int(n), err
	case nbt.TagShort:
		var n int16
		err := v.Unmarshal(&n)
		return int(uint16(n)), err
	case nbt.TagInt:
		var n int32
		err := v.Unmarshal(&n)
		return int(n), err
	case nbt.TagLong:
		var n int64
		err := v.Unmarshal(&n)
		return int(n), err
	}
	return 0, fieldError(name, "integer", v.Type)
}

// Mapping reads a compound of name -> int entries in file order.
func (c *Container) Mapping(name string) ([]palette.Entry, error) {
	v, err := c.get(name)
	if err != nil {
		return nil, err
	}
	if v.Type != nbt.TagCompound {
		return nil, fieldError(name, "compound", v.Type)
	}
	var m tag.Compound
	if err := v.Unmarshal(&m); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	out := make([]palette.Entry, 0, len(m))
	for _, f := range m {
		if f.Value.Type != nbt.TagInt {
			return nil, fieldError(name+"."+f.Name, "int", f.Value.Type)
		}
		var n int32
		if err := f.Value.Unmarshal(&n); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, f.Name, err)
		}
		out = append(out, palette.Entry{ID: int(n), Block: f.Name})
	}
	return out, nil
}

// Records reads a list of compounds. Pos is decoded to integers; every
// other value stays encoded so it is written back with its original type.
func (c *Container) Records(name string) ([]blockentity.Record, error) {
	v, err := c.get(name)
	if err != nil {
		return nil, err
	}
	if v.Type != nbt.TagList {
		return nil, fieldError(name, "list of compounds", v.Type)
	}
	if len(v.Data) > 0 && v.Data[0] != nbt.TagCompound && v.Data[0] != nbt.TagEnd {
		return nil, fieldError(name, "list of compounds", v.Data[0])
	}
	var list []tag.Compound
	if err := v.Unmarshal(&list); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	out := make([]blockentity.Record, 0, len(list))
	for i, comp := range list {
		rec := make(blockentity.Record, 0, len(comp))
		for _, f := range comp {
			var val any = f.Value
			if f.Name == blockentity.PosField {
				pos, err := intList(fmt.Sprintf("%s[%d].%s", name, i, f.Name), f.Value)
				if err != nil {
					return nil, err
				}
				val = pos
			}
			rec = append(rec, blockentity.Field{Key: f.Name, Value: val})
		}
		out = append(out, rec)
	}
	return out, nil
}

func intList(name string, v nbt.RawMessage) ([]int32, error) {
	switch v.Type {
	case nbt.TagIntArray:
	case nbt.TagList:
		if len(v.Data) > 0 && v.Data[0] != nbt.TagInt {
			return nil, fieldError(name, "int array", v.Data[0])
		}
	default:
		return nil, fieldError(name, "int array", v.Type)
	}
	var out []int32
	if err := v.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// IntArray reads a flat id array. Byte arrays hold one unsigned varint per
// entry; int arrays are returned as is.
func (c *Container) IntArray(name string) ([]int, error) {
	v, err := c.get(name)
	if err != nil {
		return nil, err
	}
	switch v.Type {
	case nbt.TagByteArray:
		var raw []byte
		if err := v.Unmarshal(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return decodeVarints(name, raw)
	case nbt.TagIntArray:
		var a []int32
		if err := v.Unmarshal(&a); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out := make([]int, len(a))
		for i, n := range a {
			out[i] = int(n)
		}
		return out, nil
	}
	return nil, fieldError(name, "byte or int array", v.Type)
}

func decodeVarints(name string, raw []byte) ([]int, error) {
	out, err := encoding.DecodeUvarints(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// BlockCount returns the number of entries in the block id array of the
// schematic at path.
func BlockCount(path string) (int, error) {
	c, err := Read(path)
	if err != nil {
		return 0, err
	}
	ids, err := c.IntArray(convert.FieldBlockData)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
