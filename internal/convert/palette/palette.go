package palette

import (
	"fmt"
	"sort"

	"schemconv/internal/convert/blockid"
)

// Entry is one source palette slot.
type Entry struct {
	ID    int
	Block string
}

// Source maps numeric block ids to encoded identifiers. Iteration order is
// ascending id.
type Source struct {
	entries []Entry
	byID    map[int]string

	// Shadowed lists entries replaced by a later entry with the same id, in
	// input order.
	Shadowed []Entry
}

// NewSource builds a source palette from an id -> identifier mapping.
func NewSource(m map[int]string) Source {
	s := Source{
		entries: make([]Entry, 0, len(m)),
		byID:    make(map[int]string, len(m)),
	}
	for id, block := range m {
		s.entries = append(s.entries, Entry{ID: id, Block: block})
		s.byID[id] = block
	}
	s.sort()
	return s
}

// FromEntries builds a source palette from entries in file order. When an
// id repeats, the later identifier wins and the earlier one is recorded in
// Shadowed.
func FromEntries(list []Entry) Source {
	s := Source{byID: make(map[int]string, len(list))}
	pos := make(map[int]int, len(list))
	for _, e := range list {
		if i, ok := pos[e.ID]; ok {
			s.Shadowed = append(s.Shadowed, s.entries[i])
			s.entries[i] = e
			s.byID[e.ID] = e.Block
			continue
		}
		pos[e.ID] = len(s.entries)
		s.entries = append(s.entries, e)
		s.byID[e.ID] = e.Block
	}
	s.sort()
	return s
}

func (s *Source) sort() {
	sort.Slice(s.entries, func(i, j int) bool { return s.entries[i].ID < s.entries[j].ID })
}

func (s Source) Len() int         { return len(s.entries) }
func (s Source) Entries() []Entry { return s.entries }

func (s Source) Lookup(id int) (string, bool) {
	b, ok := s.byID[id]
	return b, ok
}

// Palette is the deduplicated output palette together with the remap table
// from encoded source identifiers to output indices.
type Palette struct {
	Entries []blockid.ID

	index map[string]int
	remap map[string]int
}

// Compact parses every source entry and folds structurally equal identifiers
// onto a single output entry. Entries keep first-seen order.
func Compact(src Source) (*Palette, error) {
	p := &Palette{
		index: make(map[string]int, src.Len()),
		remap: make(map[string]int, src.Len()),
	}
	for _, e := range src.Entries() {
		id, err := blockid.Parse(e.Block)
		if err != nil {
			return nil, fmt.Errorf("palette id %d: %w", e.ID, err)
		}
		key := id.Key()
		idx, ok := p.index[key]
		if !ok {
			idx = len(p.Entries)
			p.Entries = append(p.Entries, id)
			p.index[key] = idx
		}
		p.remap[e.Block] = idx
	}
	return p, nil
}

func (p *Palette) Len() int { return len(p.Entries) }

// Index resolves an encoded source identifier to its output index.
func (p *Palette) Index(block string) (int, bool) {
	idx, ok := p.remap[block]
	return idx, ok
}
