/*
Package vasp implements voxeld support for VASP-style charge density grids
(CHGCAR and friends): an ASCII header terminated by a blank line, a line of
three grid dimensions, then whitespace-separated scalar values with x
varying fastest.  Files frequently append augmentation data after
the grid; anything past the expected element count is ignored.
*/
package vasp

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/janelia-flyem/voxeld/parsers"
	"github.com/janelia-flyem/voxeld/voxeld"
)

const (
	Version  = "0.1"
	TypeName = "vasp"
)

func init() {
	parsers.Register(NewParser())
}

// Parser reads VASP-style volumetric text files.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Name() string {
	return "VASP charge density"
}

func (p *Parser) Extensions() []string {
	return []string{TypeName}
}

// Probe reads only through the dimension line and returns the grid shape.
func (p *Parser) Probe(data []byte) (voxeld.Shape, error) {
	shape, _, err := readHeader(data)
	return shape, err
}

// Parse interprets all of data into a grid.
func (p *Parser) Parse(filename string, data []byte) (*voxeld.VoxelGrid, error) {
	shape, body, err := readHeader(data)
	if err != nil {
		if perr, ok := err.(*parsers.ParseError); ok {
			perr.File = filename
		}
		return nil, err
	}
	numElements, err := shape.NumElements()
	if err != nil {
		return nil, &parsers.ParseError{File: filename, Reason: err.Error()}
	}

	values := make([]float64, 0, numElements)
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*voxeld.Kilo), 64*voxeld.Kilo)
	scanner.Split(bufio.ScanWords)
	for len(values) < numElements && scanner.Scan() {
		token := scanner.Text()
		value, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, &parsers.ParseError{
				File:   filename,
				Reason: fmt.Sprintf("bad value token %q at element %d", token, len(values)),
			}
		}
		values = append(values, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, &parsers.ParseError{File: filename, Reason: err.Error()}
	}
	if len(values) < numElements {
		return nil, &parsers.ParseError{
			File:   filename,
			Reason: fmt.Sprintf("data ended after %d of %d values", len(values), numElements),
		}
	}

	grid, err := voxeld.NewVoxelGrid(shape, values)
	if err != nil {
		return nil, &parsers.ParseError{File: filename, Reason: err.Error()}
	}
	return grid, nil
}

// readHeader advances past the header (all lines before the first blank
// line), reads the dimension line, and returns the shape plus the remaining
// bytes holding the value tokens.
func readHeader(data []byte) (shape voxeld.Shape, body []byte, err error) {
	pos := 0
	foundBlank := false
	for pos < len(data) {
		line, next := nextLine(data, pos)
		pos = next
		if len(bytes.TrimSpace(line)) == 0 {
			foundBlank = true
			break
		}
	}
	if !foundBlank {
		return shape, nil, &parsers.ParseError{Reason: "no blank line terminating the header"}
	}

	// The dimension line is the next line with any non-whitespace content.
	var dimLine string
	for pos < len(data) {
		line, next := nextLine(data, pos)
		pos = next
		if len(bytes.TrimSpace(line)) != 0 {
			dimLine = string(line)
			break
		}
	}
	if dimLine == "" {
		return shape, nil, &parsers.ParseError{Reason: "file ends before grid dimensions"}
	}

	fields := strings.Fields(dimLine)
	if len(fields) != 3 {
		return shape, nil, &parsers.ParseError{
			Reason: fmt.Sprintf("expected 3 grid dimensions, got %d in line %q", len(fields), dimLine),
		}
	}
	for i, field := range fields {
		extent, err := strconv.Atoi(field)
		if err != nil || extent <= 0 {
			return shape, nil, &parsers.ParseError{
				Reason: fmt.Sprintf("bad grid dimension %q in line %q", field, dimLine),
			}
		}
		shape[i] = extent
	}
	if _, err := shape.NumElements(); err != nil {
		return shape, nil, &parsers.ParseError{Reason: err.Error()}
	}
	return shape, data[pos:], nil
}

// nextLine returns the line starting at pos (without newline) and the
// position just past it.
func nextLine(data []byte, pos int) (line []byte, next int) {
	eol := bytes.IndexByte(data[pos:], '\n')
	if eol < 0 {
		return data[pos:], len(data)
	}
	return data[pos : pos+eol], pos + eol + 1
}
