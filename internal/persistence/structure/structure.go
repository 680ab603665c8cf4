// Package structure serializes converted captures as gzip-compressed
// structure NBT files, and optionally as JSON.
package structure

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Tnze/go-mc/nbt"
	"github.com/klauspost/compress/gzip"
	"github.com/zeebo/blake3"

	"schemconv/internal/convert"
	"schemconv/internal/persistence/tag"
)

const Extension = ".nbt"

type FileV1 struct {
	DataVersion int32     `nbt:"DataVersion"`
	Author      string    `nbt:"author"`
	Size        []int32   `nbt:"size" nbt_type:"list"`
	Palette     []StateV1 `nbt:"palette"`
	Blocks      []BlockV1 `nbt:"blocks"`
}

// StateV1 keeps Properties in identifier order so identical results encode
// to identical bytes.
type StateV1 struct {
	Name       string       `nbt:"Name"`
	Properties tag.Compound `nbt:"Properties,omitempty"`
}

type BlockV1 struct {
	State int32        `nbt:"state"`
	Pos   []int32      `nbt:"pos" nbt_type:"list"`
	NBT   tag.Compound `nbt:"nbt,omitempty"`
}

// Written describes a file produced by Write.
type Written struct {
	Path   string
	Bytes  int64
	Digest string // blake3 of the compressed bytes
}

// FromResult maps a conversion result onto the file layout. Payload values
// read from a schematic are written back unchanged; other values go through
// the nbt encoder.
func FromResult(res *convert.Result) (FileV1, error) {
	f := FileV1{
		DataVersion: int32(res.DataVersion),
		Author:      res.Author,
		Size:        []int32{int32(res.Extent.X), int32(res.Extent.Y), int32(res.Extent.Z)},
		Palette:     make([]StateV1, 0, len(res.Palette)),
		Blocks:      make([]BlockV1, 0, len(res.Blocks)),
	}
	for _, id := range res.Palette {
		st := StateV1{Name: id.Name}
		for _, p := range id.Properties {
			st.Properties = append(st.Properties, tag.Field{Name: p.Key, Value: tag.String(p.Value)})
		}
		f.Palette = append(f.Palette, st)
	}
	for _, b := range res.Blocks {
		out := BlockV1{
			State: int32(b.State),
			Pos:   []int32{int32(b.Pos.X), int32(b.Pos.Y), int32(b.Pos.Z)},
		}
		for _, field := range b.NBT {
			v, err := tag.Raw(field.Value)
			if err != nil {
				return f, fmt.Errorf("block at %s: nbt %s: %w", b.Pos, field.Key, err)
			}
			out.NBT = append(out.NBT, tag.Field{Name: field.Key, Value: v})
		}
		f.Blocks = append(f.Blocks, out)
	}
	return f, nil
}

type countWriter struct{ n int64 }

func (c *countWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// Write encodes res at path, creating parent directories.
func Write(path string, res *convert.Result) (Written, error) {
	out := Written{Path: path}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return out, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return out, err
	}
	defer f.Close()

	h := blake3.New()
	cw := &countWriter{}
	bw := bufio.NewWriterSize(io.MultiWriter(f, h, cw), 256*1024)

	if err := Encode(bw, res); err != nil {
		return out, err
	}
	if err := bw.Flush(); err != nil {
		return out, err
	}
	if err := f.Close(); err != nil {
		return out, err
	}
	out.Bytes = cw.n
	out.Digest = hex.EncodeToString(h.Sum(nil))
	return out, nil
}

// Encode writes the gzip-compressed NBT form of res to w.
func Encode(w io.Writer, res *convert.Result) error {
	file, err := FromResult(res)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(w)
	if err := nbt.NewEncoder(zw).Encode(file, ""); err != nil {
		_ = zw.Close()
		return fmt.Errorf("nbt encode: %w", err)
	}
	return zw.Close()
}

// Read decodes a structure file written by Write.
func Read(path string) (FileV1, error) {
	var out FileV1
	f, err := os.Open(path)
	if err != nil {
		return out, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(bufio.NewReaderSize(f, 64*1024))
	if err != nil {
		return out, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()

	if _, err := nbt.NewDecoder(zr).Decode(&out); err != nil {
		return out, fmt.Errorf("nbt decode: %w", err)
	}
	return out, nil
}
