// Package convert turns a schematic capture into a structure: explicit block
// positions referencing a compacted palette, with block entity payloads
// attached by coordinate.
package convert

import (
	"errors"
	"fmt"

	"schemconv/internal/convert/blockentity"
	"schemconv/internal/convert/blockid"
	"schemconv/internal/convert/grid"
	"schemconv/internal/convert/palette"
)

const (
	DefaultDataVersion = 2586
	DefaultAuthor      = "Folfy_Blue"
)

// ErrNoFallback means a block id was unknown and the palette has no id 0
// to fall back to.
var ErrNoFallback = errors.New("unknown block id and no palette id 0")

// ProgressSink receives one unit per processed block. It must not block.
type ProgressSink interface {
	Add(n int)
}

type WarnKind int

const (
	WarnUnknownID WarnKind = iota + 1
	WarnDuplicateEntity
	WarnPaletteIDReused
)

// Warning is a recoverable problem found while converting one source.
// Fallback is the identifier used in place of the missing or dropped one;
// Block is the dropped identifier of a reused palette id.
type Warning struct {
	Kind     WarnKind
	Pos      grid.Pos
	ID       int
	Block    string
	Fallback string
}

func (w Warning) String() string {
	switch w.Kind {
	case WarnUnknownID:
		return fmt.Sprintf("block at %s: id %d not in palette, using id 0 (%s)", w.Pos, w.ID, w.Fallback)
	case WarnDuplicateEntity:
		return fmt.Sprintf("block entity at %s defined more than once, keeping the last", w.Pos)
	case WarnPaletteIDReused:
		return fmt.Sprintf("palette id %d names both %s and %s, keeping %s", w.ID, w.Block, w.Fallback, w.Fallback)
	default:
		return fmt.Sprintf("warning kind %d at %s", w.Kind, w.Pos)
	}
}

type Options struct {
	DataVersion int
	Author      string
	Progress    ProgressSink
	Warn        func(Warning)
}

// Block is one output record.
type Block struct {
	State int
	Pos   grid.Pos
	NBT   blockentity.Record
}

// Result is a converted structure ready for serialization.
type Result struct {
	DataVersion int
	Author      string
	Extent      grid.Extent
	Palette     []blockid.ID
	Blocks      []Block

	Entities int
	Warnings int
}

// Convert reads a Source from c and builds its Result.
func Convert(c Container, opts Options) (*Result, error) {
	src, err := ReadSource(c)
	if err != nil {
		return nil, err
	}
	return Build(src, opts)
}

// Build runs the conversion. Blocks are emitted in increasing linear index
// order.
func Build(src Source, opts Options) (*Result, error) {
	if err := src.Extent.Validate(len(src.Blocks)); err != nil {
		return nil, err
	}
	if opts.DataVersion == 0 {
		opts.DataVersion = DefaultDataVersion
	}
	if opts.Author == "" {
		opts.Author = DefaultAuthor
	}

	res := &Result{
		DataVersion: opts.DataVersion,
		Author:      opts.Author,
		Extent:      src.Extent,
	}
	warn := func(w Warning) {
		res.Warnings++
		if opts.Warn != nil {
			opts.Warn(w)
		}
	}

	entities, err := blockentity.Build(src.Entities)
	if err != nil {
		return nil, err
	}
	for _, p := range entities.Duplicates {
		warn(Warning{Kind: WarnDuplicateEntity, Pos: p})
	}

	for _, e := range src.Palette.Shadowed {
		kept, _ := src.Palette.Lookup(e.ID)
		warn(Warning{Kind: WarnPaletteIDReused, ID: e.ID, Block: e.Block, Fallback: kept})
	}

	pal, err := palette.Compact(src.Palette)
	if err != nil {
		return nil, err
	}
	res.Palette = pal.Entries

	fallback, hasFallback := src.Palette.Lookup(0)

	res.Blocks = make([]Block, 0, len(src.Blocks))
	for i, id := range src.Blocks {
		pos := grid.Decompose(i, src.Extent)

		block, ok := src.Palette.Lookup(id)
		if !ok {
			if !hasFallback {
				return nil, fmt.Errorf("block at %s id %d: %w", pos, id, ErrNoFallback)
			}
			block = fallback
			warn(Warning{Kind: WarnUnknownID, Pos: pos, ID: id, Fallback: fallback})
		}

		state, ok := pal.Index(block)
		if !ok {
			return nil, fmt.Errorf("block at %s: %q missing from remap table", pos, block)
		}

		out := Block{State: state, Pos: pos}
		if nbt, ok := entities.At(pos); ok {
			out.NBT = nbt
			res.Entities++
		}
		res.Blocks = append(res.Blocks, out)

		if opts.Progress != nil {
			opts.Progress.Add(1)
		}
	}
	return res, nil
}
