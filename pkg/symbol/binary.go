// Package symbol builds the source map of a relocated executable: which
// source line produced an address, and which address a source line or a
// symbol was loaded at.
package symbol

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	dwarfdata "github.com/hitzhangjie/dwarfmap/pkg/dwarf"
	"github.com/hitzhangjie/dwarfmap/pkg/elf"
)

// ErrNotFound is returned by lookups without a result.
var ErrNotFound = errors.New("not found")

// Location is a source position resolved to its final address.
type Location struct {
	Path   string
	Line   int
	Column uint64
	IsStmt bool

	// Address is the final address, 0 when the row is outside every
	// segment. StaticAddress is the address the line program produced.
	Address       uint64
	StaticAddress uint64
	SegmentIndex  int // index into Segments(), -1 if none
	SegmentOffset uint64
}

// SourceMap maps final addresses to source locations and symbols. It is
// immutable once built.
type SourceMap struct {
	Sources      map[string]map[int][]*Location // key=path, val=map[lineno]locations
	Functions    []*Function
	CompileUnits []*CompileUnit

	segments  []Segment
	deltas    []uint64 // relocation delta per section index
	locations []*Location
	byAddr    []*Location // located rows sorted by final address
	files     []string

	symbols map[string]uint64
	sorted  []symbolAddr
	lengths map[string]uint64
}

// AnalyzeFile reads the executable at path and builds its source map.
func AnalyzeFile(path string, offsets []uint64, baseDir string) (*SourceMap, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	return analyze(f, offsets, baseDir)
}

// Analyze decodes the executable image data and builds its source map.
// offsets holds the final load address of every section, index aligned
// with the section header table. Structural errors abort the build;
// anomalies the map can live with only narrow the result.
func Analyze(data []byte, offsets []uint64, baseDir string) (*SourceMap, error) {
	f, err := elf.Parse(data)
	if err != nil {
		return nil, err
	}
	return analyze(f, offsets, baseDir)
}

func analyze(f *elf.File, offsets []uint64, baseDir string) (*SourceMap, error) {
	d, err := dwarfdata.New(f)
	if err != nil {
		return nil, err
	}
	return Build(f, d, offsets, baseDir), nil
}

// Build combines decoded sections, debug information and load offsets into
// a source map.
func Build(f *elf.File, d *dwarfdata.Data, offsets []uint64, baseDir string) *SourceMap {
	sm := &SourceMap{
		Sources: make(map[string]map[int][]*Location),
	}
	sm.segments, sm.deltas = buildSegments(f, offsets)

	for _, t := range d.LineTables() {
		sm.parseLineTable(t, baseDir)
	}
	sm.indexLocations()

	sm.parseSymbols(f)
	sm.parseCompileUnits(d)
	return sm
}

func (sm *SourceMap) indexLocations() {
	for path := range sm.Sources {
		sm.files = append(sm.files, path)
	}
	sort.Strings(sm.files)

	for _, loc := range sm.locations {
		if loc.SegmentIndex >= 0 {
			sm.byAddr = append(sm.byAddr, loc)
		}
	}
	// rows at the same address keep program order, the last one wins
	sort.SliceStable(sm.byAddr, func(i, j int) bool {
		return sm.byAddr[i].Address < sm.byAddr[j].Address
	})
}

// SourceFiles returns every resolved source path, sorted.
func (sm *SourceMap) SourceFiles() []string {
	return append([]string(nil), sm.files...)
}

// Segments returns the segments in section order.
func (sm *SourceMap) Segments() []Segment {
	return append([]Segment(nil), sm.segments...)
}

// Locations returns every location in line program order, including rows
// outside every segment.
func (sm *SourceMap) Locations() []*Location {
	return append([]*Location(nil), sm.locations...)
}

// SegmentAt returns the first segment, in section order, containing the
// final address pc.
func (sm *SourceMap) SegmentAt(pc uint64) (int, *Segment, bool) {
	for i := range sm.segments {
		if sm.segments[i].Contains(pc) {
			return i, &sm.segments[i], true
		}
	}
	return -1, nil, false
}

// rowSegmentAt returns the first segment, in section order, whose relocated
// rows may contain pc.
func (sm *SourceMap) rowSegmentAt(pc uint64) (int, *Segment, bool) {
	for i := range sm.segments {
		if sm.segments[i].containsRow(pc) {
			return i, &sm.segments[i], true
		}
	}
	return -1, nil, false
}

// PCToLocation returns the location of the nearest row at or before pc
// within the segment containing pc.
func (sm *SourceMap) PCToLocation(pc uint64) (*Location, error) {
	si, seg, ok := sm.rowSegmentAt(pc)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "address %#x is outside every segment", pc)
	}

	low := seg.StaticAddress + seg.LoadOffset
	i := sort.Search(len(sm.byAddr), func(i int) bool { return sm.byAddr[i].Address > pc }) - 1
	for ; i >= 0 && sm.byAddr[i].Address >= low; i-- {
		if sm.byAddr[i].SegmentIndex == si {
			return sm.byAddr[i], nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "no line information for %#x", pc)
}

// PCToFileLine returns the source path and line of pc.
func (sm *SourceMap) PCToFileLine(pc uint64) (string, int, error) {
	loc, err := sm.PCToLocation(pc)
	if err != nil {
		return "", 0, err
	}
	return loc.Path, loc.Line, nil
}

// FileLineToPC returns the lowest final address of a statement on line lineno
// of filename, or of any row on that line when none is a statement.
// filename is either a resolved path or a unique suffix of one.
func (sm *SourceMap) FileLineToPC(filename string, lineno int) (uint64, error) {
	path, err := sm.ResolveFile(filename)
	if err != nil {
		return 0, err
	}

	var stmt, first *Location
	for _, loc := range sm.Sources[path][lineno] {
		if loc.SegmentIndex < 0 {
			continue
		}
		if loc.IsStmt && (stmt == nil || loc.Address < stmt.Address) {
			stmt = loc
		}
		if first == nil || loc.Address < first.Address {
			first = loc
		}
	}
	switch {
	case stmt != nil:
		return stmt.Address, nil
	case first != nil:
		return first.Address, nil
	}
	return 0, errors.Wrapf(ErrNotFound, "%s:%d", path, lineno)
}

// ResolveFile returns the source path filename names, either the path itself
// or the one path it is a suffix of.
func (sm *SourceMap) ResolveFile(filename string) (string, error) {
	if _, ok := sm.Sources[filename]; ok {
		return filename, nil
	}

	var matches []string
	for _, path := range sm.files {
		if strings.HasSuffix(path, "/"+filename) {
			matches = append(matches, path)
		}
	}
	switch len(matches) {
	case 0:
		return "", errors.Wrapf(ErrNotFound, "source file %s", filename)
	case 1:
		return matches[0], nil
	}
	return "", errors.Errorf("source file %s is ambiguous: %s", filename, strings.Join(matches, ", "))
}

// ParseLoc parse location `loc` to file:lineno
func ParseLoc(loc string) (string, int, error) {
	idx := strings.LastIndex(loc, ":")
	if idx <= 0 {
		return "", 0, errors.New("wrong loc should be like filename:lineno")
	}
	filename, linenostr := loc[:idx], loc[idx+1:]
	lineno, err := strconv.Atoi(linenostr)
	if err != nil {
		return "", 0, errors.New("wrong loc should be like filename:lineno")
	}
	return filename, lineno, nil
}

// LocToPC convert location `loc` to PC
func (sm *SourceMap) LocToPC(loc string) (uint64, error) {
	filename, lineno, err := ParseLoc(loc)
	if err != nil {
		return 0, err
	}
	return sm.FileLineToPC(filename, lineno)
}

// Dump writes the segments, symbols, source lines and compilation units.
func (sm *SourceMap) Dump(w io.Writer) {
	for i, seg := range sm.segments {
		fmt.Fprintf(w, "segment %d: %-10s %-4s %#x-%#x (static %#x, load offset %#x, section %d)\n",
			i, seg.Name, seg.MemoryClass, seg.Address, seg.Address+seg.Size, seg.StaticAddress, seg.LoadOffset, seg.SectionIndex)
	}

	for _, sym := range sm.sorted {
		fmt.Fprintf(w, "symbol: %#x %s, length: %d\n", sym.addr, sym.name, sm.lengths[sym.name])
	}

	for _, file := range sm.files {
		lines := make([]int, 0, len(sm.Sources[file]))
		for ln := range sm.Sources[file] {
			lines = append(lines, ln)
		}
		sort.Ints(lines)
		for _, ln := range lines {
			for _, loc := range sm.Sources[file][ln] {
				fmt.Fprintf(w, "source: %s:%d, addr: %#x\n", file, ln, loc.Address)
			}
		}
	}

	for _, cu := range sm.CompileUnits {
		fmt.Fprintf(w, "compile unit: %s (%s)\n", cu.Name, cu.Producer)
		for _, fn := range cu.Functions {
			fmt.Fprintf(w, "  function: %s [%#x, %#x) vars: %s\n",
				fn.Name, fn.LowPC, fn.HighPC, strings.Join(fn.Variables, ", "))
		}
	}
}
