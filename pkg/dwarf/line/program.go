package line

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/util"
)

// Standard opcodes.
const (
	DW_LNS_copy               = 1
	DW_LNS_advance_pc         = 2
	DW_LNS_advance_line       = 3
	DW_LNS_set_file           = 4
	DW_LNS_set_column         = 5
	DW_LNS_negate_stmt        = 6
	DW_LNS_set_basic_block    = 7
	DW_LNS_const_add_pc       = 8
	DW_LNS_fixed_advance_pc   = 9
	DW_LNS_set_prologue_end   = 10
	DW_LNS_set_epilogue_begin = 11
	DW_LNS_set_isa            = 12
)

// Extended opcodes.
const (
	DW_LNE_end_sequence      = 1
	DW_LNE_set_address       = 2
	DW_LNE_define_file       = 3
	DW_LNE_set_discriminator = 4
)

// OpKind classifies an instruction.
type OpKind uint8

const (
	OpSpecial OpKind = iota
	OpStandard
	OpExtended
)

func (k OpKind) String() string {
	switch k {
	case OpSpecial:
		return "special"
	case OpStandard:
		return "standard"
	case OpExtended:
		return "extended"
	}
	return fmt.Sprintf("OpKind(%d)", uint8(k))
}

// Instruction is one decoded line number instruction. Opcode is the opcode
// byte, or the sub-opcode of an extended instruction. Advances are already
// scaled by the minimum instruction length.
type Instruction struct {
	Offset int
	Kind   OpKind
	Opcode uint8

	Operand     uint64 // set_address, set_file, set_column, set_isa, raw advance_pc
	AddrAdvance uint64
	LineAdvance int64
	File        FileEntry // define_file
}

func (ins Instruction) String() string {
	switch ins.Kind {
	case OpSpecial:
		return fmt.Sprintf("special %d: address += %d, line += %d", ins.Opcode, ins.AddrAdvance, ins.LineAdvance)
	case OpExtended:
		switch ins.Opcode {
		case DW_LNE_end_sequence:
			return "end_sequence"
		case DW_LNE_set_address:
			return fmt.Sprintf("set_address %#x", ins.Operand)
		case DW_LNE_define_file:
			return fmt.Sprintf("define_file %s", ins.File.Name)
		}
		return fmt.Sprintf("extended %d", ins.Opcode)
	}
	switch ins.Opcode {
	case DW_LNS_copy:
		return "copy"
	case DW_LNS_advance_pc, DW_LNS_const_add_pc, DW_LNS_fixed_advance_pc:
		return fmt.Sprintf("advance_pc %d", ins.AddrAdvance)
	case DW_LNS_advance_line:
		return fmt.Sprintf("advance_line %d", ins.LineAdvance)
	case DW_LNS_set_file:
		return fmt.Sprintf("set_file %d", ins.Operand)
	case DW_LNS_set_column:
		return fmt.Sprintf("set_column %d", ins.Operand)
	case DW_LNS_negate_stmt:
		return "negate_stmt"
	case DW_LNS_set_basic_block:
		return "set_basic_block"
	}
	return fmt.Sprintf("standard %d", ins.Opcode)
}

// Program is a decoded line number program.
type Program struct {
	Header
	Instructions []Instruction

	// AddrSize is used by set_address instructions whose operand width
	// cannot be derived from their length.
	AddrSize int
}

// Parse decodes every line number program in a .debug_line section.
func Parse(data []byte, order binary.ByteOrder, addrSize int) ([]*Program, error) {
	var programs []*Program
	off := 0
	for off < len(data) {
		p, next, err := Decode(data, order, off, addrSize)
		if err != nil {
			return nil, errors.WithMessagef(err, "line program at %#x", off)
		}
		if p != nil {
			programs = append(programs, p)
		}
		off = next
	}
	return programs, nil
}

// Decode decodes the line number program at off and returns the offset of
// the next one. A zero unit length is padding and yields a nil Program.
func Decode(data []byte, order binary.ByteOrder, off int, addrSize int) (*Program, int, error) {
	length, err := util.ReadU32(data, off, order)
	if err != nil {
		return nil, 0, err
	}
	if length == 0 {
		return nil, off + 4, nil
	}

	h, err := parseHeader(data, order, off)
	if err != nil {
		return nil, 0, err
	}

	p := &Program{Header: *h, AddrSize: addrSize}
	r := util.NewReader(data[:h.unitEnd], order, h.programStart)
	for r.Len() > 0 {
		ins, err := p.decodeInstruction(r)
		if err != nil {
			return nil, 0, errors.WithMessagef(err, "instruction at %#x", r.Pos())
		}
		p.Instructions = append(p.Instructions, ins)
	}
	return p, h.unitEnd, nil
}

func (p *Program) decodeInstruction(r *util.Reader) (Instruction, error) {
	ins := Instruction{Offset: r.Pos()}
	op, err := r.U8()
	if err != nil {
		return ins, err
	}
	ins.Opcode = op

	switch {
	case op == 0:
		ins.Kind = OpExtended
		return ins, p.decodeExtended(r, &ins)
	case op < p.OpcodeBase:
		ins.Kind = OpStandard
		return ins, p.decodeStandard(r, &ins)
	default:
		ins.Kind = OpSpecial
		ins.AddrAdvance, ins.LineAdvance = p.SpecialAdvance(op)
		return ins, nil
	}
}

func (p *Program) decodeStandard(r *util.Reader, ins *Instruction) (err error) {
	switch ins.Opcode {
	case DW_LNS_copy, DW_LNS_negate_stmt, DW_LNS_set_basic_block,
		DW_LNS_set_prologue_end, DW_LNS_set_epilogue_begin:
	case DW_LNS_advance_pc:
		if ins.Operand, err = r.ULEB128(); err == nil {
			ins.AddrAdvance = ins.Operand * uint64(p.MinInstLength)
		}
	case DW_LNS_advance_line:
		ins.LineAdvance, err = r.SLEB128()
	case DW_LNS_set_file, DW_LNS_set_column, DW_LNS_set_isa:
		ins.Operand, err = r.ULEB128()
	case DW_LNS_const_add_pc:
		ins.AddrAdvance = p.ConstAddPCAdvance()
	case DW_LNS_fixed_advance_pc:
		var v uint16
		v, err = r.U16()
		ins.AddrAdvance = uint64(v)
	default:
		// opcode unknown to us, the header says how many operands to skip
		n := p.StdOpcodeLengths[ins.Opcode-1]
		for i := uint8(0); i < n && err == nil; i++ {
			_, err = r.ULEB128()
		}
	}
	return
}

func (p *Program) decodeExtended(r *util.Reader, ins *Instruction) error {
	length, err := r.ULEB128()
	if err != nil {
		return err
	}
	start := r.Pos()
	end := start + int(length)
	if length == 0 {
		return nil
	}
	if end < start || end > start+r.Len() {
		return errors.Wrapf(util.ErrOutOfBounds, "extended opcode length %d", length)
	}

	sub, err := r.U8()
	if err != nil {
		return err
	}
	ins.Opcode = sub

	switch sub {
	case DW_LNE_end_sequence:
	case DW_LNE_set_address:
		size := int(length) - 1
		switch {
		case size == 1, size == 2, size == 4, size == 8:
		case size >= p.AddrSize:
			size = p.AddrSize
		default:
			// too short to hold an address, decoded as a no-op
			log.Debugf("line program at %#x: set_address with %d operand bytes, skipping", p.Offset, size)
			ins.Opcode = 0
			r.Seek(end)
			return nil
		}
		if ins.Operand, err = r.Uint(size); err != nil {
			return err
		}
	case DW_LNE_define_file:
		if ins.File.Name, err = r.String(); err != nil {
			return err
		}
		// directory, mtime and length follow when the producer wrote them
		fields := []*uint64{&ins.File.DirIndex, &ins.File.Mtime, &ins.File.Length}
		for _, field := range fields {
			if r.Pos() >= end {
				break
			}
			if *field, err = r.ULEB128(); err != nil {
				return err
			}
		}
	default:
		log.Debugf("line program at %#x: skipping extended opcode %d", p.Offset, sub)
	}

	r.Seek(end)
	return nil
}
