// Package line decodes .debug_line: the line number program headers, their
// instruction streams, and the state machine that turns the instructions into
// (address, file, line) rows.
//
// see DWARFv4 6.2 line number information
package line

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/util"
)

// ErrInvalidHeader reports a line program header that cannot be executed.
var ErrInvalidHeader = errors.New("invalid line program header")

// FileEntry is one entry of a line program file table.
type FileEntry struct {
	Name     string
	DirIndex uint64 // 0 is the compilation directory, n is IncludeDirs[n-1]
	Mtime    uint64
	Length   uint64
}

// Header is a line program header.
type Header struct {
	Offset        uint64 // offset of the unit in .debug_line
	UnitLength    uint32
	Version       uint16
	HeaderLength  uint32
	MinInstLength uint8
	MaxOpsPerInst uint8 // version 4 and later
	DefaultIsStmt bool
	LineBase      int8
	LineRange     uint8
	OpcodeBase    uint8

	// StdOpcodeLengths[i] is the number of ULEB128 operands of opcode i+1.
	StdOpcodeLengths []uint8
	IncludeDirs      []string
	FileNames        []FileEntry

	programStart int
	unitEnd      int
}

// SpecialAdvance returns the address and line increments of special opcode op.
func (h *Header) SpecialAdvance(op uint8) (addr uint64, line int64) {
	adjusted := int(op) - int(h.OpcodeBase)
	addr = uint64(adjusted/int(h.LineRange)) * uint64(h.MinInstLength)
	line = int64(h.LineBase) + int64(adjusted%int(h.LineRange))
	return
}

// ConstAddPCAdvance is the address increment of DW_LNS_const_add_pc, that of
// special opcode 255.
func (h *Header) ConstAddPCAdvance() uint64 {
	addr, _ := h.SpecialAdvance(255)
	return addr
}

func parseHeader(data []byte, order binary.ByteOrder, off int) (*Header, error) {
	r := util.NewReader(data, order, off)
	h := &Header{Offset: uint64(off)}

	var err error
	if h.UnitLength, err = r.U32(); err != nil {
		return nil, err
	}
	if h.UnitLength >= 0xfffffff0 {
		return nil, errors.Wrapf(ErrInvalidHeader, "unsupported unit length %#x (64-bit DWARF)", h.UnitLength)
	}
	h.unitEnd = r.Pos() + int(h.UnitLength)
	if h.unitEnd > len(data) {
		return nil, errors.Wrapf(util.ErrOutOfBounds, "line program ends at %#x beyond section size %#x", h.unitEnd, len(data))
	}
	r = util.NewReader(data[:h.unitEnd], order, r.Pos())

	if h.Version, err = r.U16(); err != nil {
		return nil, err
	}
	if h.Version < 2 || h.Version > 4 {
		return nil, errors.Wrapf(ErrInvalidHeader, "unsupported version %d", h.Version)
	}
	if h.HeaderLength, err = r.U32(); err != nil {
		return nil, err
	}
	h.programStart = r.Pos() + int(h.HeaderLength)
	if h.programStart > h.unitEnd {
		return nil, errors.Wrapf(ErrInvalidHeader, "header length %#x exceeds unit", h.HeaderLength)
	}

	if h.MinInstLength, err = r.U8(); err != nil {
		return nil, err
	}
	h.MaxOpsPerInst = 1
	if h.Version >= 4 {
		if h.MaxOpsPerInst, err = r.U8(); err != nil {
			return nil, err
		}
	}
	isStmt, err := r.U8()
	if err != nil {
		return nil, err
	}
	h.DefaultIsStmt = isStmt != 0
	if h.LineBase, err = r.I8(); err != nil {
		return nil, err
	}
	if h.LineRange, err = r.U8(); err != nil {
		return nil, err
	}
	if h.OpcodeBase, err = r.U8(); err != nil {
		return nil, err
	}
	if h.LineRange == 0 {
		return nil, errors.Wrap(ErrInvalidHeader, "line_range is 0")
	}
	if h.OpcodeBase == 0 {
		return nil, errors.Wrap(ErrInvalidHeader, "opcode_base is 0, no standard opcode lengths")
	}

	lengths, err := r.Bytes(int(h.OpcodeBase) - 1)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidHeader, "standard opcode lengths: %v", err)
	}
	h.StdOpcodeLengths = append([]uint8(nil), lengths...)

	for {
		dir, err := r.String()
		if err != nil {
			return nil, errors.WithMessage(err, "include directories")
		}
		if dir == "" {
			break
		}
		h.IncludeDirs = append(h.IncludeDirs, dir)
	}

	for {
		entry, ok, err := readFileEntry(r)
		if err != nil {
			return nil, errors.WithMessage(err, "file names")
		}
		if !ok {
			break
		}
		h.FileNames = append(h.FileNames, entry)
	}
	return h, nil
}

// readFileEntry reads one file table entry; ok is false at the terminating
// empty name.
func readFileEntry(r *util.Reader) (entry FileEntry, ok bool, err error) {
	if entry.Name, err = r.String(); err != nil || entry.Name == "" {
		return
	}
	if entry.DirIndex, err = r.ULEB128(); err != nil {
		return
	}
	if entry.Mtime, err = r.ULEB128(); err != nil {
		return
	}
	if entry.Length, err = r.ULEB128(); err != nil {
		return
	}
	return entry, true, nil
}
