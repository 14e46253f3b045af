package voxeld

import "testing"

func TestShapeNumElements(t *testing.T) {
	n, err := Shape{2, 3, 4}.NumElements()
	if err != nil {
		t.Fatalf("unexpected error on good shape: %v\n", err)
	}
	if n != 24 {
		t.Errorf("expected 24 elements, got %d\n", n)
	}

	if _, err := (Shape{0, 3, 4}).NumElements(); err == nil {
		t.Errorf("expected error on zero extent\n")
	}
	if _, err := (Shape{-1, 3, 4}).NumElements(); err == nil {
		t.Errorf("expected error on negative extent\n")
	}

	huge := 1 << 31
	if _, err := (Shape{huge, huge, huge}).NumElements(); err == nil {
		t.Errorf("expected overflow error on huge shape\n")
	}
}

func TestNewVoxelGrid(t *testing.T) {
	data := make([]float64, 8)
	for i := range data {
		data[i] = float64(i + 1)
	}
	grid, err := NewVoxelGrid(Shape{2, 2, 2}, data)
	if err != nil {
		t.Fatalf("couldn't create grid: %v\n", err)
	}
	if grid.Len() != 8 {
		t.Errorf("expected 8 elements, got %d\n", grid.Len())
	}
	if grid.Shape() != (Shape{2, 2, 2}) {
		t.Errorf("bad shape returned: %s\n", grid.Shape())
	}

	// x varies fastest: (1,0,0) -> offset 1, (0,1,0) -> offset 2, (0,0,1) -> offset 4
	if v := grid.Value(1, 0, 0); v != 2.0 {
		t.Errorf("expected value 2.0 at (1,0,0), got %f\n", v)
	}
	if v := grid.Value(0, 1, 0); v != 3.0 {
		t.Errorf("expected value 3.0 at (0,1,0), got %f\n", v)
	}
	if v := grid.Value(0, 0, 1); v != 5.0 {
		t.Errorf("expected value 5.0 at (0,0,1), got %f\n", v)
	}

	if _, err := NewVoxelGrid(Shape{2, 2, 2}, data[:7]); err == nil {
		t.Errorf("expected error on short data\n")
	}
}

func TestVoxelGridRange(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	grid, err := NewVoxelGrid(Shape{2, 2, 2}, data)
	if err != nil {
		t.Fatalf("couldn't create grid: %v\n", err)
	}

	view, err := grid.Range(2, 5)
	if err != nil {
		t.Fatalf("unexpected error on good range: %v\n", err)
	}
	if len(view) != 3 || view[0] != 3 || view[2] != 5 {
		t.Errorf("bad range view: %v\n", view)
	}

	if _, err := grid.Range(-1, 2); err == nil {
		t.Errorf("expected error on negative start\n")
	}
	if _, err := grid.Range(5, 2); err == nil {
		t.Errorf("expected error on end < start\n")
	}
	if _, err := grid.Range(0, 9); err == nil {
		t.Errorf("expected error on end past data\n")
	}
}
