// Package tag holds NBT values that must survive a decode/encode cycle
// unchanged: compound entry order and the exact tag type of every value.
package tag

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/Tnze/go-mc/nbt"
)

// Field is one named entry of a compound, kept as encoded NBT.
type Field struct {
	Name  string
	Value nbt.RawMessage
}

// Compound is an NBT compound whose entries stay in stream order.
type Compound []Field

var (
	_ nbt.Marshaler   = Compound(nil)
	_ nbt.Unmarshaler = (*Compound)(nil)
)

func (c Compound) TagType() byte { return nbt.TagCompound }

func (c Compound) MarshalNBT(w io.Writer) error {
	for _, f := range c {
		if err := writeHeader(w, f.Value.Type, f.Name); err != nil {
			return err
		}
		if _, err := w.Write(f.Value.Data); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte{nbt.TagEnd})
	return err
}

func (c *Compound) UnmarshalNBT(tagType byte, r nbt.DecoderReader) error {
	if tagType != nbt.TagCompound {
		return fmt.Errorf("want compound, got %s", TypeName(tagType))
	}
	var out Compound
	for {
		tt, err := r.ReadByte()
		if err != nil {
			return err
		}
		if tt == nbt.TagEnd {
			break
		}
		var n [2]byte
		if _, err := io.ReadFull(r, n[:]); err != nil {
			return err
		}
		name := make([]byte, binary.BigEndian.Uint16(n[:]))
		if _, err := io.ReadFull(r, name); err != nil {
			return err
		}
		var v nbt.RawMessage
		if err := v.UnmarshalNBT(tt, r); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, Field{Name: string(name), Value: v})
	}
	*c = out
	return nil
}

// Get returns the last entry called name.
func (c Compound) Get(name string) (nbt.RawMessage, bool) {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Name == name {
			return c[i].Value, true
		}
	}
	return nbt.RawMessage{}, false
}

func writeHeader(w io.Writer, tagType byte, name string) error {
	if len(name) > math.MaxUint16 {
		return fmt.Errorf("tag name too long: %d bytes", len(name))
	}
	var hdr [3]byte
	hdr[0] = tagType
	binary.BigEndian.PutUint16(hdr[1:], uint16(len(name)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, name)
	return err
}

// String encodes s as a TAG_String payload.
func String(s string) nbt.RawMessage {
	data := make([]byte, 2, 2+len(s))
	binary.BigEndian.PutUint16(data, uint16(len(s)))
	return nbt.RawMessage{Type: nbt.TagString, Data: append(data, s...)}
}

// Raw encodes v with the nbt encoder. RawMessage and Compound values are
// returned without re-encoding their payload.
func Raw(v any) (nbt.RawMessage, error) {
	switch t := v.(type) {
	case nbt.RawMessage:
		return t, nil
	case *nbt.RawMessage:
		return *t, nil
	case string:
		return String(t), nil
	}
	var buf bytes.Buffer
	if err := nbt.NewEncoder(&buf).Encode(v, ""); err != nil {
		return nbt.RawMessage{}, err
	}
	b := buf.Bytes()
	// type byte + empty name
	if len(b) < 3 {
		return nbt.RawMessage{}, fmt.Errorf("encode %T: short output", v)
	}
	return nbt.RawMessage{Type: b[0], Data: append([]byte(nil), b[3:]...)}, nil
}

// Value decodes m into a plain Go value for display and JSON export.
// Nested compounds become maps.
func Value(m nbt.RawMessage) (any, error) {
	var v any
	if err := m.Unmarshal(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func TypeName(t byte) string {
	switch t {
	case nbt.TagEnd:
		return "end"
	case nbt.TagByte:
		return "byte"
	case nbt.TagShort:
		return "short"
	case nbt.TagInt:
		return "int"
	case nbt.TagLong:
		return "long"
	case nbt.TagFloat:
		return "float"
	case nbt.TagDouble:
		return "double"
	case nbt.TagByteArray:
		return "byte array"
	case nbt.TagString:
		return "string"
	case nbt.TagList:
		return "list"
	case nbt.TagCompound:
		return "compound"
	case nbt.TagIntArray:
		return "int array"
	case nbt.TagLongArray:
		return "long array"
	}
	return fmt.Sprintf("tag %#02x", t)
}
