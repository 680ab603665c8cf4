package schem

import (
	"bytes"
	"errors"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/Tnze/go-mc/nbt"

	"schemconv/internal/convert"
	"schemconv/internal/convert/blockentity"
	"schemconv/internal/convert/palette"
	"schemconv/internal/persistence/tag"
)

type signEntity struct {
	Pos   []int32 `nbt:"Pos"`
	ID    string  `nbt:"Id"`
	Text1 string  `nbt:"Text1"`
	Vals  []int32 `nbt:"Vals" nbt_type:"list"`
}

func raw(t *testing.T, v any) nbt.RawMessage {
	t.Helper()
	m, err := tag.Raw(v)
	if err != nil {
		t.Fatalf("Raw(%v): %v", v, err)
	}
	return m
}

func writeSample(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "sample.schem")
	err := Write(path, Schematic{
		Width:     2,
		Height:    1,
		Length:    2,
		Palette:   map[string]int32{"ns:air": 0, "ns:stone": 1},
		BlockData: EncodeBlockData([]int{0, 1, 1, 0}),
		BlockEntities: []any{
			signEntity{Pos: []int32{1, 0, 0}, ID: "ns:sign", Text1: "hello", Vals: []int32{1, 2}},
		},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	return path
}

func TestRead_GzipRoundTrip(t *testing.T) {
	path := writeSample(t, t.TempDir())

	c, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	for name, want := range map[string]int{"Width": 2, "Height": 1, "Length": 2} {
		got, err := c.Int(name)
		if err != nil || got != want {
			t.Fatalf("Int(%s)=%d,%v want %d", name, got, err, want)
		}
	}
	pal, err := c.Mapping("Palette")
	if err != nil {
		t.Fatalf("Mapping: %v", err)
	}
	sort.Slice(pal, func(i, j int) bool { return pal[i].ID < pal[j].ID })
	if !reflect.DeepEqual(pal, []palette.Entry{{ID: 0, Block: "ns:air"}, {ID: 1, Block: "ns:stone"}}) {
		t.Fatalf("palette=%v", pal)
	}
	ids, err := c.IntArray("BlockData")
	if err != nil {
		t.Fatalf("IntArray: %v", err)
	}
	if !reflect.DeepEqual(ids, []int{0, 1, 1, 0}) {
		t.Fatalf("ids=%v", ids)
	}
	recs, err := c.Records("BlockEntities")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 1 || len(recs[0]) != 4 {
		t.Fatalf("records=%v", recs)
	}
	var keys []string
	for _, f := range recs[0] {
		keys = append(keys, f.Key)
	}
	if !reflect.DeepEqual(keys, []string{"Pos", "Id", "Text1", "Vals"}) {
		t.Fatalf("keys=%v want file order", keys)
	}
	if pos, _ := recs[0].Get("Pos"); !reflect.DeepEqual(pos, []int32{1, 0, 0}) {
		t.Fatalf("Pos=%v", pos)
	}

	n, err := BlockCount(path)
	if err != nil || n != 4 {
		t.Fatalf("BlockCount=%d,%v want 4", n, err)
	}
}

func TestRead_PayloadKeepsTagTypes(t *testing.T) {
	c, err := Read(writeSample(t, t.TempDir()))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	res, err := convert.Convert(c, convert.Options{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	payload := res.Blocks[1].NBT
	if len(res.Blocks) != 4 || payload == nil {
		t.Fatalf("blocks=%v", res.Blocks)
	}
	id, _ := payload.Get(blockentity.OutputIDField)
	if m, ok := id.(nbt.RawMessage); !ok || m.Type != nbt.TagString {
		t.Fatalf("id=%#v want raw string tag", id)
	}
	vals, _ := payload.Get("Vals")
	m, ok := vals.(nbt.RawMessage)
	if !ok || m.Type != nbt.TagList {
		t.Fatalf("Vals=%#v want raw list tag", vals)
	}
	var got []int32
	if err := m.Unmarshal(&got); err != nil || !reflect.DeepEqual(got, []int32{1, 2}) {
		t.Fatalf("Vals=%v,%v", got, err)
	}
}

func TestMapping_KeepsFileOrder(t *testing.T) {
	c := &Container{root: tag.Compound{{
		Name: "Palette",
		Value: raw(t, tag.Compound{
			{Name: "ns:a", Value: raw(t, int32(0))},
			{Name: "ns:c", Value: raw(t, int32(1))},
			{Name: "ns:b", Value: raw(t, int32(0))},
		}),
	}}}
	for run := 0; run < 20; run++ {
		got, err := c.Mapping("Palette")
		if err != nil {
			t.Fatalf("Mapping: %v", err)
		}
		want := []palette.Entry{{ID: 0, Block: "ns:a"}, {ID: 1, Block: "ns:c"}, {ID: 0, Block: "ns:b"}}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("run %d: entries=%v want %v", run, got, want)
		}
		if b, _ := palette.FromEntries(got).Lookup(0); b != "ns:b" {
			t.Fatalf("run %d: id 0 -> %q want ns:b", run, b)
		}
	}
}

func TestDecode_RawNBT(t *testing.T) {
	var buf bytes.Buffer
	s := Schematic{
		Version: 2, Width: 1, Height: 1, Length: 1,
		Palette:   map[string]int32{"ns:air": 0},
		BlockData: []byte{0},
	}
	if err := nbt.NewEncoder(&buf).Encode(s, "Schematic"); err != nil {
		t.Fatalf("encode: %v", err)
	}
	c, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if w, _ := c.Int("Width"); w != 1 {
		t.Fatalf("Width=%d want 1", w)
	}
	if _, err := c.Records("BlockEntities"); !errors.Is(err, convert.ErrNoField) {
		t.Fatalf("Records err=%v want ErrNoField", err)
	}
}

func TestIntArray_MultiByteVarints(t *testing.T) {
	ids := []int{0, 127, 128, 300, 16384, 5}
	c := &Container{root: tag.Compound{{Name: "BlockData", Value: raw(t, EncodeBlockData(ids))}}}
	got, err := c.IntArray("BlockData")
	if err != nil {
		t.Fatalf("IntArray: %v", err)
	}
	if !reflect.DeepEqual(got, ids) {
		t.Fatalf("ids=%v want %v", got, ids)
	}

	c.root[0].Value = raw(t, []byte{0x80})
	if _, err := c.IntArray("BlockData"); err == nil {
		t.Fatalf("expected truncated varint error")
	}
}

func TestContainer_FieldErrors(t *testing.T) {
	c := &Container{root: tag.Compound{
		{Name: "Width", Value: tag.String("wide")},
		{Name: "Palette", Value: raw(t, tag.Compound{{Name: "ns:air", Value: tag.String("zero")}})},
		{Name: "Entities", Value: raw(t, []int32{1, 2})},
		{Name: "Big", Value: raw(t, int16(-1))},
	}}
	var fe *FieldError
	if _, err := c.Int("Width"); !errors.As(err, &fe) || fe.Got != "string" {
		t.Fatalf("Int err=%v want *FieldError got string", err)
	}
	if _, err := c.Mapping("Palette"); !errors.As(err, &fe) || fe.Field != "Palette.ns:air" {
		t.Fatalf("Mapping err=%v want *FieldError", err)
	}
	if _, err := c.Records("Entities"); !errors.As(err, &fe) {
		t.Fatalf("Records err=%v want *FieldError", err)
	}
	if _, err := c.Int("Missing"); !errors.Is(err, convert.ErrNoField) {
		t.Fatalf("Int(Missing) err=%v want ErrNoField", err)
	}
	if n, _ := c.Int("Big"); n != 65535 {
		t.Fatalf("short should read unsigned, got %d", n)
	}
}
