package line

import (
	log "github.com/sirupsen/logrus"
)

// Row is one row of the line table, a snapshot of the state machine
// registers taken when a row is emitted.
type Row struct {
	Address       uint64
	File          uint64 // 1-based index into Table.Files
	Line          int
	Column        uint64
	IsStmt        bool
	BasicBlock    bool
	EndSequence   bool
	PrologueEnd   bool
	EpilogueBegin bool
	ISA           uint64
}

// Table is the result of executing one program.
type Table struct {
	Program *Program

	// Files is the header file table plus the files added by define_file.
	Files []FileEntry
	Rows  []Row
}

// File returns the file entry a row refers to.
func (t *Table) File(idx uint64) (FileEntry, bool) {
	if idx < 1 || idx > uint64(len(t.Files)) {
		return FileEntry{}, false
	}
	return t.Files[idx-1], true
}

// InitialState returns the register values at the start of every sequence.
func (p *Program) InitialState() Row {
	return Row{
		File:   1,
		Line:   1,
		IsStmt: p.DefaultIsStmt,
	}
}

// Execute runs the program. A row is emitted by copy and by every special
// opcode, as long as the file register indexes the file table; all
// registers reset to InitialState right after end_sequence.
func (p *Program) Execute() *Table {
	t := &Table{
		Program: p,
		Files:   append([]FileEntry(nil), p.FileNames...),
	}

	st := p.InitialState()
	emit := func() {
		if st.File >= 1 && st.File <= uint64(len(t.Files)) {
			t.Rows = append(t.Rows, st)
		} else {
			log.Debugf("line program at %#x: dropping row at %#x with file index %d of %d",
				p.Offset, st.Address, st.File, len(t.Files))
		}
		st.BasicBlock = false
		st.PrologueEnd = false
		st.EpilogueBegin = false
	}

	for _, ins := range p.Instructions {
		switch ins.Kind {
		case OpSpecial:
			st.Address += ins.AddrAdvance
			st.Line += int(ins.LineAdvance)
			emit()

		case OpExtended:
			switch ins.Opcode {
			case DW_LNE_end_sequence:
				st = p.InitialState()
			case DW_LNE_set_address:
				st.Address = ins.Operand
			case DW_LNE_define_file:
				t.Files = append(t.Files, ins.File)
			}

		case OpStandard:
			switch ins.Opcode {
			case DW_LNS_copy:
				emit()
			case DW_LNS_advance_pc, DW_LNS_const_add_pc, DW_LNS_fixed_advance_pc:
				st.Address += ins.AddrAdvance
			case DW_LNS_advance_line:
				st.Line += int(ins.LineAdvance)
			case DW_LNS_set_file:
				st.File = ins.Operand
			case DW_LNS_set_column:
				st.Column = ins.Operand
			case DW_LNS_negate_stmt:
				st.IsStmt = !st.IsStmt
			case DW_LNS_set_basic_block:
				st.BasicBlock = true
			case DW_LNS_set_prologue_end:
				st.PrologueEnd = true
			case DW_LNS_set_epilogue_begin:
				st.EpilogueBegin = true
			case DW_LNS_set_isa:
				st.ISA = ins.Operand
			}
		}
	}
	return t
}
