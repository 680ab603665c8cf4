package schem

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Tnze/go-mc/nbt"
	"github.com/klauspost/compress/gzip"

	"schemconv/internal/encoding"
)

// Schematic is the on-disk layout of a version 2 schematic.
type Schematic struct {
	Version       int32            `nbt:"Version"`
	DataVersion   int32            `nbt:"DataVersion"`
	Width         int16            `nbt:"Width"`
	Height        int16            `nbt:"Height"`
	Length        int16            `nbt:"Length"`
	PaletteMax    int32            `nbt:"PaletteMax"`
	Palette       map[string]int32 `nbt:"Palette"`
	BlockData     []byte           `nbt:"BlockData"`
	BlockEntities []any              `nbt:"BlockEntities,omitempty"`
}

// EncodeBlockData packs ids as unsigned varints.
func EncodeBlockData(ids []int) []byte {
	return encoding.AppendUvarints(make([]byte, 0, len(ids)), ids)
}

// Write stores s gzip-compressed at path.
func Write(path string, s Schematic) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if s.Version == 0 {
		s.Version = 2
	}
	if s.PaletteMax == 0 {
		s.PaletteMax = int32(len(s.Palette))
	}

	zw := gzip.NewWriter(f)
	if err := nbt.NewEncoder(zw).Encode(s, "Schematic"); err != nil {
		_ = zw.Close()
		return fmt.Errorf("nbt encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}
