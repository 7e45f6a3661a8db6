package symbol

import (
	"debug/dwarf"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	dwarfdata "github.com/hitzhangjie/dwarfmap/pkg/dwarf"
	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/die"
	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/line"
)

// CompileUnit compilation unit
//
// see DWARFv4 3.1.1 normal and partial compilation unit entries
type CompileUnit struct {
	Name     string
	Producer string
	CompDir  string
	Language uint64
	LowPC    uint64
	HighPC   uint64

	Functions []*Function
}

// parseLineTable turns the rows of one executed line program into locations.
//
// note: one compile unit may contains more than one source files.
func (sm *SourceMap) parseLineTable(t *line.Table, baseDir string) {
	for _, row := range t.Rows {
		file, ok := t.File(row.File)
		if !ok {
			continue
		}

		loc := &Location{
			Path:          resolvePath(baseDir, t.Program.IncludeDirs, file),
			Line:          row.Line,
			Column:        row.Column,
			StaticAddress: row.Address,
			SegmentIndex:  -1,
			IsStmt:        row.IsStmt,
		}
		for si := range sm.segments {
			seg := &sm.segments[si]
			if seg.containsStatic(row.Address) {
				loc.SegmentIndex = si
				loc.SegmentOffset = row.Address - seg.StaticAddress
				loc.Address = row.Address + seg.LoadOffset
				break
			}
		}
		if loc.SegmentIndex < 0 {
			log.Debugf("%s:%d at %#x is outside every segment", loc.Path, loc.Line, row.Address)
		}

		sm.locations = append(sm.locations, loc)
		lines, ok := sm.Sources[loc.Path]
		if !ok {
			lines = make(map[int][]*Location)
			sm.Sources[loc.Path] = lines
		}
		lines[loc.Line] = append(lines[loc.Line], loc)
	}
}

// resolvePath joins a file entry onto its include directory and baseDir.
// Directory index 0 is the compilation directory, which is baseDir itself.
func resolvePath(baseDir string, includeDirs []string, file line.FileEntry) string {
	dir := ""
	switch {
	case file.DirIndex == 0:
	case file.DirIndex <= uint64(len(includeDirs)):
		dir = includeDirs[file.DirIndex-1]
	default:
		log.Debugf("file %s: directory index %d out of %d", file.Name, file.DirIndex, len(includeDirs))
	}
	return filepath.Join(baseDir, dir, file.Name)
}

// parseCompileUnits collects the compilation units and their functions from
// the DIE tree. They are informational, lookups never consult them.
func (sm *SourceMap) parseCompileUnits(d *dwarfdata.Data) {
	if d.Info == nil {
		return
	}

	// entries are stored in pre-order, parents come before their children
	units := map[int]*CompileUnit{}
	functions := map[int]*Function{}
	for i := range d.Info.Entries {
		e := d.Info.Entry(i)
		switch e.Tag {
		case dwarf.TagCompileUnit:
			cu := newCompileUnit(d, e)
			units[e.Unit] = cu
			sm.CompileUnits = append(sm.CompileUnits, cu)
		case dwarf.TagSubprogram:
			fn := &Function{cu: units[e.Unit]}
			fn.parseFrom(d, e)
			functions[i] = fn
			sm.Functions = append(sm.Functions, fn)
			if fn.cu != nil {
				fn.cu.Functions = append(fn.cu.Functions, fn)
			}
		case dwarf.TagVariable, dwarf.TagFormalParameter:
			if fn, ok := functions[e.Parent]; ok {
				name, _ := d.AttrString(e, dwarf.AttrName)
				fn.Variables = append(fn.Variables, name)
			}
		}
	}
}

func newCompileUnit(d *dwarfdata.Data, e *die.Entry) *CompileUnit {
	cu := &CompileUnit{}
	cu.Name, _ = d.AttrString(e, dwarf.AttrName)
	cu.Producer, _ = d.AttrString(e, dwarf.AttrProducer)
	cu.CompDir, _ = d.AttrString(e, dwarf.AttrCompDir)
	if v, ok := e.Val(dwarf.AttrLanguage); ok {
		cu.Language = v.U
	}
	cu.LowPC, cu.HighPC = pcRange(e)
	return cu
}

// pcRange returns [low_pc, high_pc). A constant class high_pc is an offset
// from low_pc.
func pcRange(e *die.Entry) (low, high uint64) {
	if v, ok := e.Val(dwarf.AttrLowpc); ok {
		low = v.U
	}
	if v, ok := e.Val(dwarf.AttrHighpc); ok {
		high = v.U
		if v.Kind != die.KindAddress {
			high += low
		}
	}
	return
}
