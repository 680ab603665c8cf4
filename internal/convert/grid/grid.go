package grid

import "fmt"

// Extent is the size of a capture along each axis. X and Z are the
// transverse axes, Y is height.
type Extent struct {
	X int
	Y int
	Z int
}

func (e Extent) Volume() int { return e.X * e.Y * e.Z }

// Plane is the number of blocks in one horizontal layer.
func (e Extent) Plane() int { return e.X * e.Z }

func (e Extent) Array() [3]int { return [3]int{e.X, e.Y, e.Z} }

func (e Extent) String() string { return fmt.Sprintf("%dx%dx%d", e.X, e.Y, e.Z) }

// Validate checks the extent against the number of blocks it must describe.
func (e Extent) Validate(blocks int) error {
	if e.X < 0 || e.Y < 0 || e.Z < 0 {
		return fmt.Errorf("negative extent %s", e)
	}
	if blocks > 0 && (e.X == 0 || e.Y == 0 || e.Z == 0) {
		return fmt.Errorf("zero-sized axis in extent %s for %d blocks", e, blocks)
	}
	if e.Volume() != blocks {
		return fmt.Errorf("extent %s holds %d blocks, have %d", e, e.Volume(), blocks)
	}
	return nil
}

// Pos is a block position inside an extent.
type Pos struct {
	X int
	Y int
	Z int
}

func (p Pos) Array() [3]int { return [3]int{p.X, p.Y, p.Z} }

func (p Pos) String() string { return fmt.Sprintf("%d %d %d", p.X, p.Y, p.Z) }

// Decompose maps linear index i to a position. x varies fastest, then z, and
// y advances once per full layer. i must lie in [0, e.Volume()) and every
// axis must be non-zero.
func Decompose(i int, e Extent) Pos {
	plane := e.Plane()
	r := i % plane
	return Pos{
		X: r % e.Z,
		Y: i / plane,
		Z: r / e.Z,
	}
}

// Compose is the inverse of Decompose.
func Compose(p Pos, e Extent) int {
	return p.Y*e.Plane() + p.Z*e.Z + p.X
}
