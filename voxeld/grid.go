/*
	This file holds the VoxelGrid value type, a dense 3d scalar field sampled
	on a regular lattice.  Grids are constructed once by a parser and are
	immutable afterwards, so they can be shared across goroutines without
	locking.
*/

package voxeld

import "fmt"

// Shape gives the extent of a voxel grid along the x, y, and z axes.
type Shape [3]int

// NumElements returns the total number of voxels for this shape.  It errors
// on non-positive extents and on products that overflow int.
func (s Shape) NumElements() (int, error) {
	n := 1
	for dim, extent := range s {
		if extent <= 0 {
			return 0, fmt.Errorf("shape %v has non-positive extent along axis %d", s, dim)
		}
		prev := n
		n *= extent
		if n/extent != prev {
			return 0, fmt.Errorf("shape %v overflows element count", s)
		}
	}
	return n, nil
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s[0], s[1], s[2])
}

// VoxelGrid is a dense three-dimensional scalar field.  Values are stored as
// a flat float64 slice with the x axis varying fastest, so element (i, j, k)
// is at offset i + nx*(j + ny*k).
type VoxelGrid struct {
	shape Shape
	data  []float64
}

// NewVoxelGrid returns a grid after checking that the data length matches
// the shape's element count.
func NewVoxelGrid(shape Shape, data []float64) (*VoxelGrid, error) {
	n, err := shape.NumElements()
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("shape %s requires %d elements but %d were given", shape, n, len(data))
	}
	return &VoxelGrid{shape: shape, data: data}, nil
}

// Shape returns the grid extents.
func (g *VoxelGrid) Shape() Shape {
	return g.shape
}

// Len returns the number of voxels in the grid.
func (g *VoxelGrid) Len() int {
	return len(g.data)
}

// Value returns the scalar at voxel coordinate (i, j, k).
func (g *VoxelGrid) Value(i, j, k int) float64 {
	nx, ny := g.shape[0], g.shape[1]
	return g.data[i+nx*(j+ny*k)]
}

// Range returns a read-only view over elements [start, end) of the flat
// data.  Callers must not mutate the returned slice.
func (g *VoxelGrid) Range(start, end int) ([]float64, error) {
	if start < 0 || end < start || end > len(g.data) {
		return nil, fmt.Errorf("bad range [%d, %d) for grid of %d elements", start, end, len(g.data))
	}
	return g.data[start:end], nil
}
