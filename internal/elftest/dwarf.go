package elftest

import (
	"bytes"
	"encoding/binary"
)

// Abbrev is one abbreviation declaration; Attrs holds (attribute, form) pairs.
type Abbrev struct {
	Code     uint64
	Tag      uint64
	Children bool
	Attrs    [][2]uint64
}

// AbbrevTable encodes a code-0 terminated abbreviation table.
func AbbrevTable(entries ...Abbrev) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.Write(ULEB(e.Code))
		buf.Write(ULEB(e.Tag))
		if e.Children {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		for _, a := range e.Attrs {
			buf.Write(ULEB(a[0]))
			buf.Write(ULEB(a[1]))
		}
		buf.Write([]byte{0, 0})
	}
	buf.WriteByte(0)
	return buf.Bytes()
}

// CompileUnit encodes a DWARF 2-4 compilation unit header followed by body.
func CompileUnit(order binary.ByteOrder, version uint16, abbrevOffset uint32, addrSize uint8, body []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, order, uint32(2+4+1+len(body)))
	binary.Write(&buf, order, version)
	binary.Write(&buf, order, abbrevOffset)
	buf.WriteByte(addrSize)
	buf.Write(body)
	return buf.Bytes()
}

// File is a line program file table entry.
type File struct {
	Name  string
	Dir   uint64
	Mtime uint64
	Size  uint64
}

// StandardOpcodeLengths are the operand counts of opcodes 1..12.
var StandardOpcodeLengths = []uint8{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1}

// LineProgram describes one .debug_line unit.
type LineProgram struct {
	Version          uint16
	MinInstLength    uint8
	DefaultIsStmt    bool
	LineBase         int8
	LineRange        uint8
	OpcodeBase       uint8
	StdOpcodeLengths []uint8
	IncludeDirs      []string
	Files            []File
	Program          []byte
}

// DefaultLineProgram returns the header configuration gcc uses for DWARF 2.
func DefaultLineProgram() LineProgram {
	return LineProgram{
		Version:          2,
		MinInstLength:    1,
		DefaultIsStmt:    true,
		LineBase:         -5,
		LineRange:        14,
		OpcodeBase:       13,
		StdOpcodeLengths: StandardOpcodeLengths,
	}
}

// Bytes encodes the program header and instructions.
func (p LineProgram) Bytes(order binary.ByteOrder) []byte {
	var hdr bytes.Buffer
	hdr.WriteByte(p.MinInstLength)
	if p.Version >= 4 {
		hdr.WriteByte(1)
	}
	if p.DefaultIsStmt {
		hdr.WriteByte(1)
	} else {
		hdr.WriteByte(0)
	}
	hdr.WriteByte(byte(p.LineBase))
	hdr.WriteByte(p.LineRange)
	hdr.WriteByte(p.OpcodeBase)
	for i := 0; i < int(p.OpcodeBase)-1; i++ {
		if i < len(p.StdOpcodeLengths) {
			hdr.WriteByte(p.StdOpcodeLengths[i])
		} else {
			hdr.WriteByte(0)
		}
	}
	for _, d := range p.IncludeDirs {
		hdr.WriteString(d)
		hdr.WriteByte(0)
	}
	hdr.WriteByte(0)
	for _, f := range p.Files {
		hdr.WriteString(f.Name)
		hdr.WriteByte(0)
		hdr.Write(ULEB(f.Dir))
		hdr.Write(ULEB(f.Mtime))
		hdr.Write(ULEB(f.Size))
	}
	hdr.WriteByte(0)

	var buf bytes.Buffer
	binary.Write(&buf, order, uint32(2+4+hdr.Len()+len(p.Program)))
	binary.Write(&buf, order, p.Version)
	binary.Write(&buf, order, uint32(hdr.Len()))
	buf.Write(hdr.Bytes())
	buf.Write(p.Program)
	return buf.Bytes()
}

// Ops assembles a line number instruction stream.
type Ops struct {
	buf      bytes.Buffer
	order    binary.ByteOrder
	addrSize int
}

// NewOps returns an assembler emitting addresses of addrSize bytes.
func NewOps(order binary.ByteOrder, addrSize int) *Ops {
	return &Ops{order: order, addrSize: addrSize}
}

func (o *Ops) Bytes() []byte { return o.buf.Bytes() }

func (o *Ops) extended(sub byte, operand []byte) *Ops {
	o.buf.WriteByte(0)
	o.buf.Write(ULEB(uint64(1 + len(operand))))
	o.buf.WriteByte(sub)
	o.buf.Write(operand)
	return o
}

func (o *Ops) EndSequence() *Ops { return o.extended(1, nil) }

func (o *Ops) SetAddress(addr uint64) *Ops {
	b := make([]byte, o.addrSize)
	if o.addrSize == 8 {
		o.order.PutUint64(b, addr)
	} else {
		o.order.PutUint32(b, uint32(addr))
	}
	return o.extended(2, b)
}

func (o *Ops) DefineFile(f File) *Ops {
	var b bytes.Buffer
	b.WriteString(f.Name)
	b.WriteByte(0)
	b.Write(ULEB(f.Dir))
	b.Write(ULEB(f.Mtime))
	b.Write(ULEB(f.Size))
	return o.extended(3, b.Bytes())
}

// Extended emits an arbitrary extended opcode.
func (o *Ops) Extended(sub byte, operand []byte) *Ops { return o.extended(sub, operand) }

func (o *Ops) Copy() *Ops { o.buf.WriteByte(1); return o }

func (o *Ops) AdvancePC(n uint64) *Ops {
	o.buf.WriteByte(2)
	o.buf.Write(ULEB(n))
	return o
}

func (o *Ops) AdvanceLine(n int64) *Ops {
	o.buf.WriteByte(3)
	o.buf.Write(SLEB(n))
	return o
}

func (o *Ops) SetFile(n uint64) *Ops {
	o.buf.WriteByte(4)
	o.buf.Write(ULEB(n))
	return o
}

func (o *Ops) SetColumn(n uint64) *Ops {
	o.buf.WriteByte(5)
	o.buf.Write(ULEB(n))
	return o
}

func (o *Ops) NegateStmt() *Ops    { o.buf.WriteByte(6); return o }
func (o *Ops) SetBasicBlock() *Ops { o.buf.WriteByte(7); return o }
func (o *Ops) ConstAddPC() *Ops    { o.buf.WriteByte(8); return o }

func (o *Ops) FixedAdvancePC(n uint16) *Ops {
	o.buf.WriteByte(9)
	b := make([]byte, 2)
	o.order.PutUint16(b, n)
	o.buf.Write(b)
	return o
}

func (o *Ops) PrologueEnd() *Ops { o.buf.WriteByte(10); return o }

// Raw emits bytes verbatim, e.g. a special opcode.
func (o *Ops) Raw(b ...byte) *Ops { o.buf.Write(b); return o }
