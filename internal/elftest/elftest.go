// Package elftest assembles small ELF images with DWARF sections in memory,
// so that decoders can be tested against exact, known byte layouts.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	dutil "github.com/go-delve/delve/pkg/dwarf/util"
)

// Section is a section to place in the image. Size is only used for
// SHT_NOBITS sections; other sections take their size from Data.
type Section struct {
	Name    string
	Type    elf.SectionType
	Flags   elf.SectionFlag
	Addr    uint64
	Data    []byte
	Size    uint64
	Link    uint32
	Info    uint32
	Entsize uint64
}

// Symbol is a symbol table entry. Info carries type and binding, see elf.ST_INFO.
type Symbol struct {
	Name  string
	Value uint64
	Size  uint64
	Info  uint8
	Other uint8
	Shndx uint16
}

// Builder collects sections and symbols and lays them out as an ELF file.
type Builder struct {
	Class   elf.Class
	Order   binary.ByteOrder
	Machine elf.Machine

	sections []Section
	symbols  []Symbol
}

// New returns a Builder for the given class and byte order.
func New(class elf.Class, order binary.ByteOrder) *Builder {
	return &Builder{Class: class, Order: order, Machine: elf.EM_68K}
}

// AddSection appends s and returns its section header index. Index 0 is the
// null section.
func (b *Builder) AddSection(s Section) int {
	if s.Type == elf.SHT_NULL {
		s.Type = elf.SHT_PROGBITS
	}
	b.sections = append(b.sections, s)
	return len(b.sections)
}

// AddSymbol appends a symbol; .symtab and .strtab are emitted when at least
// one symbol was added.
func (b *Builder) AddSymbol(sym Symbol) {
	b.symbols = append(b.symbols, sym)
}

func (b *Builder) is64() bool { return b.Class == elf.ELFCLASS64 }

func (b *Builder) putAddr(buf *bytes.Buffer, v uint64) {
	if b.is64() {
		binary.Write(buf, b.Order, v)
		return
	}
	binary.Write(buf, b.Order, uint32(v))
}

func (b *Builder) symtab() (symtab, strtab []byte) {
	var syms, strs bytes.Buffer
	strs.WriteByte(0)
	if b.is64() {
		syms.Write(make([]byte, 24))
	} else {
		syms.Write(make([]byte, 16))
	}
	for _, sym := range b.symbols {
		name := uint32(0)
		if sym.Name != "" {
			name = uint32(strs.Len())
			strs.WriteString(sym.Name)
			strs.WriteByte(0)
		}
		binary.Write(&syms, b.Order, name)
		if b.is64() {
			syms.WriteByte(sym.Info)
			syms.WriteByte(sym.Other)
			binary.Write(&syms, b.Order, sym.Shndx)
			binary.Write(&syms, b.Order, sym.Value)
			binary.Write(&syms, b.Order, sym.Size)
		} else {
			binary.Write(&syms, b.Order, uint32(sym.Value))
			binary.Write(&syms, b.Order, uint32(sym.Size))
			syms.WriteByte(sym.Info)
			syms.WriteByte(sym.Other)
			binary.Write(&syms, b.Order, sym.Shndx)
		}
	}
	return syms.Bytes(), strs.Bytes()
}

// Bytes returns the encoded image: ELF header, section contents, then the
// section header table. .shstrtab is always the last section.
func (b *Builder) Bytes() []byte {
	sections := append([]Section{{}}, b.sections...)
	if len(b.symbols) != 0 {
		symtab, strtab := b.symtab()
		entsize := uint64(16)
		if b.is64() {
			entsize = 24
		}
		sections = append(sections,
			Section{Name: ".symtab", Type: elf.SHT_SYMTAB, Data: symtab, Entsize: entsize, Link: uint32(len(sections) + 1)},
			Section{Name: ".strtab", Type: elf.SHT_STRTAB, Data: strtab})
	}

	var shstrtab bytes.Buffer
	shstrtab.WriteByte(0)
	nameOffsets := make([]uint32, len(sections)+1)
	for i, s := range sections {
		if i == 0 {
			continue
		}
		nameOffsets[i] = uint32(shstrtab.Len())
		shstrtab.WriteString(s.Name)
		shstrtab.WriteByte(0)
	}
	nameOffsets[len(sections)] = uint32(shstrtab.Len())
	shstrtab.WriteString(".shstrtab")
	shstrtab.WriteByte(0)
	sections = append(sections, Section{Name: ".shstrtab", Type: elf.SHT_STRTAB, Data: shstrtab.Bytes()})

	ehsize := 52
	shentsize := 40
	if b.is64() {
		ehsize, shentsize = 64, 64
	}

	var body bytes.Buffer
	body.Write(make([]byte, ehsize))
	offsets := make([]uint64, len(sections))
	for i, s := range sections {
		if i == 0 || s.Type == elf.SHT_NOBITS {
			continue
		}
		for body.Len()%4 != 0 {
			body.WriteByte(0)
		}
		offsets[i] = uint64(body.Len())
		body.Write(s.Data)
	}
	for body.Len()%4 != 0 {
		body.WriteByte(0)
	}
	shoff := uint64(body.Len())

	for i, s := range sections {
		if i == 0 {
			body.Write(make([]byte, shentsize))
			continue
		}
		size := uint64(len(s.Data))
		if s.Type == elf.SHT_NOBITS {
			size = s.Size
		}
		binary.Write(&body, b.Order, nameOffsets[i])
		binary.Write(&body, b.Order, uint32(s.Type))
		b.putAddr(&body, uint64(s.Flags))
		b.putAddr(&body, s.Addr)
		b.putAddr(&body, offsets[i])
		b.putAddr(&body, size)
		binary.Write(&body, b.Order, s.Link)
		binary.Write(&body, b.Order, s.Info)
		b.putAddr(&body, 1)
		b.putAddr(&body, s.Entsize)
	}

	out := body.Bytes()
	hdr := out[:ehsize]
	copy(hdr, elf.ELFMAG)
	hdr[elf.EI_CLASS] = byte(b.Class)
	if b.Order == binary.ByteOrder(binary.BigEndian) {
		hdr[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	} else {
		hdr[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	}
	hdr[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	b.Order.PutUint16(hdr[16:], uint16(elf.ET_EXEC))
	b.Order.PutUint16(hdr[18:], uint16(b.Machine))
	b.Order.PutUint32(hdr[20:], uint32(elf.EV_CURRENT))
	shnum := uint16(len(sections))
	shstrndx := uint16(len(sections) - 1)
	if b.is64() {
		b.Order.PutUint64(hdr[40:], shoff)
		b.Order.PutUint16(hdr[52:], uint16(ehsize))
		b.Order.PutUint16(hdr[58:], uint16(shentsize))
		b.Order.PutUint16(hdr[60:], shnum)
		b.Order.PutUint16(hdr[62:], shstrndx)
	} else {
		b.Order.PutUint32(hdr[32:], uint32(shoff))
		b.Order.PutUint16(hdr[40:], uint16(ehsize))
		b.Order.PutUint16(hdr[46:], uint16(shentsize))
		b.Order.PutUint16(hdr[48:], shnum)
		b.Order.PutUint16(hdr[50:], shstrndx)
	}
	return out
}

// ULEB encodes v as unsigned LEB128.
func ULEB(v uint64) []byte {
	var buf bytes.Buffer
	dutil.EncodeULEB128(&buf, v)
	return buf.Bytes()
}

// SLEB encodes v as signed LEB128.
func SLEB(v int64) []byte {
	var buf bytes.Buffer
	dutil.EncodeSLEB128(&buf, v)
	return buf.Bytes()
}
