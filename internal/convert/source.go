package convert

import (
	"errors"
	"fmt"

	"schemconv/internal/convert/blockentity"
	"schemconv/internal/convert/grid"
	"schemconv/internal/convert/palette"
)

// ErrNoField is returned (wrapped) by a Container when a field is absent.
var ErrNoField = errors.New("field not present")

// Container is the typed view of a parsed source file that the converter
// needs. Implementations wrap whatever the codec produces.
type Container interface {
	Int(name string) (int, error)
	// Mapping returns name -> id pairs in file order.
	Mapping(name string) ([]palette.Entry, error)
	Records(name string) ([]blockentity.Record, error)
	IntArray(name string) ([]int, error)
}

// Field names of a schematic source.
const (
	FieldWidth         = "Width"
	FieldHeight        = "Height"
	FieldLength        = "Length"
	FieldPalette       = "Palette"
	FieldBlockData     = "BlockData"
	FieldBlockEntities = "BlockEntities"
)

// Source is everything one conversion reads from its input.
type Source struct {
	Extent   grid.Extent
	Palette  palette.Source
	Blocks   []int
	Entities []blockentity.Record
}

// ReadSource extracts a Source from c. Length maps to X, Height to Y and
// Width to Z. A missing block entity list is treated as empty.
func ReadSource(c Container) (Source, error) {
	var src Source
	var err error

	if src.Extent.X, err = c.Int(FieldLength); err != nil {
		return src, err
	}
	if src.Extent.Y, err = c.Int(FieldHeight); err != nil {
		return src, err
	}
	if src.Extent.Z, err = c.Int(FieldWidth); err != nil {
		return src, err
	}

	entries, err := c.Mapping(FieldPalette)
	if err != nil {
		return src, err
	}
	src.Palette = palette.FromEntries(entries)

	if src.Blocks, err = c.IntArray(FieldBlockData); err != nil {
		return src, err
	}

	src.Entities, err = c.Records(FieldBlockEntities)
	if err != nil {
		if !errors.Is(err, ErrNoField) {
			return src, err
		}
		src.Entities = nil
	}

	if err := src.Extent.Validate(len(src.Blocks)); err != nil {
		return src, fmt.Errorf("%s: %w", FieldBlockData, err)
	}
	return src, nil
}
