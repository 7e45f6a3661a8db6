package symbol

import (
	"debug/dwarf"

	dwarfdata "github.com/hitzhangjie/dwarfmap/pkg/dwarf"
	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/die"
)

// Function function
//
// see DWARFv4 3.3 subroutine and entry point entries
type Function struct {
	Name      string
	LowPC     uint64 // static, as linked
	HighPC    uint64
	FrameBase []byte
	DeclFile  uint64
	DeclLine  uint64
	External  bool

	// Variables are the names of the variables and parameters declared
	// directly in the function.
	Variables []string

	cu *CompileUnit
}

// CompileUnit returns the unit the function is declared in, nil if the
// entry is outside any unit.
func (f *Function) CompileUnit() *CompileUnit {
	return f.cu
}

func (f *Function) parseFrom(d *dwarfdata.Data, e *die.Entry) {
	for _, field := range e.Fields {
		switch field.Attr {
		case dwarf.AttrName:
			f.Name, _ = d.AttrString(e, dwarf.AttrName)
		case dwarf.AttrFrameBase:
			f.FrameBase = field.Val.B
		case dwarf.AttrDeclFile:
			f.DeclFile = field.Val.U
		case dwarf.AttrDeclLine:
			f.DeclLine = field.Val.U
		case dwarf.AttrExternal:
			f.External = field.Val.F
		}
	}
	f.LowPC, f.HighPC = pcRange(e)
}
