package tag

import (
	"bytes"
	"testing"

	"github.com/Tnze/go-mc/nbt"
)

type ordered struct {
	Zeta  int32   `nbt:"zeta"`
	Alpha []int32 `nbt:"alpha" nbt_type:"list"`
	Mid   string  `nbt:"mid"`
	Arr   []int32 `nbt:"arr"`
}

func TestCompound_KeepsOrderAndTypes(t *testing.T) {
	src, err := nbt.Marshal(ordered{Zeta: 9, Alpha: []int32{1, 2}, Mid: "m", Arr: []int32{3}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var c Compound
	if err := nbt.Unmarshal(src, &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	var names []string
	for _, f := range c {
		names = append(names, f.Name)
	}
	if got, want := names, []string{"zeta", "alpha", "mid", "arr"}; len(got) != len(want) || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] || got[3] != want[3] {
		t.Fatalf("names=%v want %v", got, want)
	}
	if v, _ := c.Get("alpha"); v.Type != nbt.TagList {
		t.Fatalf("alpha type=%s want list", TypeName(v.Type))
	}
	if v, _ := c.Get("arr"); v.Type != nbt.TagIntArray {
		t.Fatalf("arr type=%s want int array", TypeName(v.Type))
	}

	out, err := nbt.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal compound: %v", err)
	}
	if !bytes.Equal(out, src) {
		t.Fatalf("re-encoded bytes differ:\n got %x\nwant %x", out, src)
	}
}

func TestCompound_GetLastWins(t *testing.T) {
	c := Compound{
		{Name: "k", Value: String("first")},
		{Name: "other", Value: String("x")},
		{Name: "k", Value: String("second")},
	}
	v, ok := c.Get("k")
	if !ok {
		t.Fatalf("k missing")
	}
	var s string
	if err := v.Unmarshal(&s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if s != "second" {
		t.Fatalf("k=%q want second", s)
	}
	if _, ok := c.Get("nope"); ok {
		t.Fatalf("unexpected nope")
	}
}

func TestString_MatchesEncoder(t *testing.T) {
	b, err := nbt.Marshal("héllo")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got := String("héllo")
	if got.Type != nbt.TagString || !bytes.Equal(got.Data, b[3:]) {
		t.Fatalf("String=%x want %x", got.Data, b[3:])
	}
}

func TestRaw(t *testing.T) {
	m, err := Raw(int32(7))
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}
	if m.Type != nbt.TagInt || !bytes.Equal(m.Data, []byte{0, 0, 0, 7}) {
		t.Fatalf("Raw(int32)=%d %x", m.Type, m.Data)
	}
	keep := nbt.RawMessage{Type: nbt.TagList, Data: []byte{nbt.TagInt, 0, 0, 0, 0}}
	if m, _ := Raw(keep); m.Type != nbt.TagList || !bytes.Equal(m.Data, keep.Data) {
		t.Fatalf("Raw(RawMessage) changed value: %d %x", m.Type, m.Data)
	}
	v, err := Value(String("sign"))
	if err != nil || v != "sign" {
		t.Fatalf("Value=%v err=%v", v, err)
	}
}
