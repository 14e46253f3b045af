package vasp

import (
	"strings"
	"testing"

	"github.com/janelia-flyem/voxeld/parsers"
	"github.com/janelia-flyem/voxeld/voxeld"
)

const tinyGrid = `comment line

2 2 2
1.0 2.0 3.0 4.0 5.0 6.0 7.0 8.0
`

func TestParseTinyGrid(t *testing.T) {
	p := NewParser()
	grid, err := p.Parse("tiny.vasp", []byte(tinyGrid))
	if err != nil {
		t.Fatalf("couldn't parse tiny grid: %v\n", err)
	}
	if grid.Shape() != (voxeld.Shape{2, 2, 2}) {
		t.Errorf("bad shape: %s\n", grid.Shape())
	}
	values, err := grid.Range(0, grid.Len())
	if err != nil {
		t.Fatalf("couldn't get grid values: %v\n", err)
	}
	for i, v := range values {
		if v != float64(i+1) {
			t.Errorf("element %d: expected %d, got %f\n", i, i+1, v)
		}
	}
}

func TestParseMultilineHeader(t *testing.T) {
	// Real CHGCAR files carry many header lines and scientific notation
	// values spread over multiple lines with ragged widths.
	input := "Cu fcc\n" +
		"   1.0\n" +
		"     3.61 0.00 0.00\n" +
		"     0.00 3.61 0.00\n" +
		"     0.00 0.00 3.61\n" +
		"\n" +
		"  2   3  1\n" +
		"  0.14631837E+00 -0.2E+01\n" +
		"  3.5 \t 4.25\n" +
		"  5e-1 6\n"
	grid, err := NewParser().Parse("cu.vasp", []byte(input))
	if err != nil {
		t.Fatalf("couldn't parse grid with multiline header: %v\n", err)
	}
	if grid.Shape() != (voxeld.Shape{2, 3, 1}) {
		t.Errorf("bad shape: %s\n", grid.Shape())
	}
	values, _ := grid.Range(0, 6)
	if values[0] != 0.14631837 || values[1] != -2.0 || values[4] != 0.5 || values[5] != 6.0 {
		t.Errorf("bad values parsed: %v\n", values)
	}
}

func TestParseIgnoresTrailingData(t *testing.T) {
	// Augmentation occupancies following the grid must not be read.
	input := tinyGrid + "augmentation occupancies 1 4\n0.1 0.2 0.3 0.4\n"
	grid, err := NewParser().Parse("aug.vasp", []byte(input))
	if err != nil {
		t.Fatalf("couldn't parse grid with trailing data: %v\n", err)
	}
	if grid.Len() != 8 {
		t.Errorf("expected 8 elements, got %d\n", grid.Len())
	}
}

func TestProbeReadsOnlyHeader(t *testing.T) {
	// Probe must succeed even when the value region is absent or garbage.
	input := "comment\n\n4 5 6\nthis is not a number\n"
	shape, err := NewParser().Probe([]byte(input))
	if err != nil {
		t.Fatalf("probe failed: %v\n", err)
	}
	if shape != (voxeld.Shape{4, 5, 6}) {
		t.Errorf("bad probed shape: %s\n", shape)
	}
}

func TestParseErrors(t *testing.T) {
	p := NewParser()
	testCases := []struct {
		name    string
		input   string
		snippet string
	}{
		{"no header terminator", "line one\nline two\n", "no blank line"},
		{"missing dimensions", "header\n\n", "before grid dimensions"},
		{"two dimensions", "header\n\n2 2\n1 2 3 4\n", "expected 3 grid dimensions"},
		{"negative dimension", "header\n\n2 -2 2\n1 2 3 4\n", "bad grid dimension"},
		{"non-numeric dimension", "header\n\n2 x 2\n1 2 3 4\n", "bad grid dimension"},
		{"bad value token", "header\n\n2 2 2\n1 2 three 4 5 6 7 8\n", "bad value token"},
		{"short data", "header\n\n2 2 2\n1 2 3\n", "data ended after 3 of 8"},
	}
	for _, tc := range testCases {
		_, err := p.Parse(tc.name, []byte(tc.input))
		if err == nil {
			t.Errorf("%s: expected parse error\n", tc.name)
			continue
		}
		perr, ok := err.(*parsers.ParseError)
		if !ok {
			t.Errorf("%s: expected *parsers.ParseError, got %T\n", tc.name, err)
			continue
		}
		if !strings.Contains(perr.Reason, tc.snippet) {
			t.Errorf("%s: expected reason containing %q, got %q\n", tc.name, tc.snippet, perr.Reason)
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	if parsers.ForFile("CHGDIFF.vasp") == nil {
		t.Errorf("expected registered parser for .vasp files\n")
	}
	if parsers.ForFile("CHGDIFF.VASP") == nil {
		t.Errorf("extension matching should be case-insensitive\n")
	}
	if parsers.ForFile("data.xyz") != nil {
		t.Errorf("expected no parser for unsupported extension\n")
	}
	if parsers.ForFile("noextension") != nil {
		t.Errorf("expected no parser for filename without extension\n")
	}
	if parsers.ForFile("trailingdot.") != nil {
		t.Errorf("expected no parser for filename ending in dot\n")
	}

	found := false
	for _, ext := range parsers.SupportedExtensions() {
		if ext == "vasp" {
			found = true
		}
	}
	if !found {
		t.Errorf("supported extensions %v missing \"vasp\"\n", parsers.SupportedExtensions())
	}
}
