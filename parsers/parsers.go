/*
Package parsers defines the capability for reading scientific voxel grid
file formats plus a registry keyed by file extension.  Format packages
register themselves on init() and are compiled into the voxeld executable
through blank imports, the same way data types are compiled into a server
build.
*/
package parsers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/janelia-flyem/voxeld/voxeld"
)

// ParseError describes a failure to interpret a grid file.  The reason is
// human-readable and is surfaced to clients through task failures.
type ParseError struct {
	File   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}

// Parser is the capability to turn the raw bytes of a grid file into a
// VoxelGrid.  Parse may be expensive; Probe must only inspect the header.
type Parser interface {
	// Name returns a human-readable name for this format.
	Name() string

	// Extensions returns the lowercase file extensions (without dot)
	// this parser handles.
	Extensions() []string

	// Probe reads just enough of data to determine the grid shape.
	Probe(data []byte) (voxeld.Shape, error)

	// Parse interprets all of data into a grid.
	Parse(filename string, data []byte) (*voxeld.VoxelGrid, error)
}

// Compiled parsers for this voxeld, keyed by lowercase extension.
var compiled map[string]Parser

// Register makes a parser available under each of its extensions.
// Called from format package init() functions.
func Register(p Parser) {
	if compiled == nil {
		compiled = make(map[string]Parser)
	}
	for _, ext := range p.Extensions() {
		compiled[strings.ToLower(ext)] = p
	}
}

// SupportedExtensions returns a sorted list of the registered extensions.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(compiled))
	for ext := range compiled {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// ByExtension returns the parser registered for a lowercase extension or
// nil if the extension is unsupported.
func ByExtension(ext string) Parser {
	return compiled[strings.ToLower(ext)]
}

// ForFile returns the parser matching the filename's extension, taken as
// the lowercased text after the last dot.  Filenames without an extension
// have no parser.
func ForFile(filename string) Parser {
	dot := strings.LastIndex(filename, ".")
	if dot < 0 || dot == len(filename)-1 {
		return nil
	}
	return ByExtension(filename[dot+1:])
}
