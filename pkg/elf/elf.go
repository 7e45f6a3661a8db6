// Package elf reads the parts of an ELF image needed to build a source map:
// the file header, the section header table and the symbol table.
//
// Enumerations are borrowed from debug/elf so that values print with their
// usual names; the decoding itself works directly on an in-memory image and
// tolerates the minimal headers produced by cross toolchains.
package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io/ioutil"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/util"
)

var (
	ErrBadMagic      = errors.New("bad ELF magic")
	ErrInvalidHeader = errors.New("invalid ELF header")
)

const (
	SectionText   = ".text"
	SectionData   = ".data"
	SectionBss    = ".bss"
	SectionRodata = ".rodata"
	SectionSymtab = ".symtab"
	SectionStrtab = ".strtab"
)

// SectionHeader describes one entry of the section header table.
type SectionHeader struct {
	Index      int
	Name       string
	NameOffset uint32
	Type       elf.SectionType
	Flags      elf.SectionFlag
	Addr       uint64
	Offset     uint64
	Size       uint64
	Link       uint32
	Info       uint32
	Addralign  uint64
	Entsize    uint64
}

// Symbol is a named symbol table entry.
type Symbol struct {
	Name         string
	Value        uint64
	Size         uint64
	Type         elf.SymType
	Bind         elf.SymBind
	Visibility   elf.SymVis
	SectionIndex uint16
}

// File is a decoded ELF image.
type File struct {
	Class     elf.Class
	Data      elf.Data
	ByteOrder binary.ByteOrder
	Type      elf.Type
	Machine   elf.Machine
	Entry     uint64

	// Sections in section header table order, index aligned with the
	// per-section load offsets supplied by the loader.
	Sections []*SectionHeader
	Symbols  []Symbol

	sections map[string]*SectionHeader
	raw      []byte
}

// header field layout, which differs between ELF32 and ELF64
type layout struct {
	ehsize    int
	shoff     int
	shentsize int
	shnum     int
	shstrndx  int
	addrSize  int
	secSize   int
	symSize   int
}

var (
	layout32 = layout{ehsize: 52, shoff: 32, shentsize: 46, shnum: 48, shstrndx: 50, addrSize: 4, secSize: 40, symSize: 16}
	layout64 = layout{ehsize: 64, shoff: 40, shentsize: 58, shnum: 60, shstrndx: 62, addrSize: 8, secSize: 64, symSize: 24}
)

// Open reads the executable at path and parses it.
func Open(path string) (*File, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return Parse(data)
}

// Parse decodes the ELF header, section headers and symbol table of data.
func Parse(data []byte) (*File, error) {
	if len(data) < elf.EI_NIDENT || !bytes.Equal(data[:4], []byte(elf.ELFMAG)) {
		return nil, ErrBadMagic
	}

	f := &File{
		Class:    elf.Class(data[elf.EI_CLASS]),
		Data:     elf.Data(data[elf.EI_DATA]),
		sections: map[string]*SectionHeader{},
		raw:      data,
	}

	var lay layout
	switch f.Class {
	case elf.ELFCLASS32:
		lay = layout32
	case elf.ELFCLASS64:
		lay = layout64
	default:
		return nil, errors.Wrapf(ErrInvalidHeader, "unknown class %v", f.Class)
	}
	switch f.Data {
	case elf.ELFDATA2LSB:
		f.ByteOrder = binary.LittleEndian
	case elf.ELFDATA2MSB:
		f.ByteOrder = binary.BigEndian
	default:
		return nil, errors.Wrapf(ErrInvalidHeader, "unknown data encoding %v", f.Data)
	}

	if len(data) < lay.ehsize {
		return nil, errors.Wrapf(ErrInvalidHeader, "header truncated to %d bytes", len(data))
	}
	if err := f.parseHeader(lay); err != nil {
		return nil, err
	}
	if err := f.parseSymbols(lay); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) parseHeader(lay layout) error {
	order := f.ByteOrder
	typ, err := util.ReadU16(f.raw, 16, order)
	if err != nil {
		return errors.WithMessage(err, "elf header")
	}
	machine, err := util.ReadU16(f.raw, 18, order)
	if err != nil {
		return errors.WithMessage(err, "elf header")
	}
	f.Type = elf.Type(typ)
	f.Machine = elf.Machine(machine)

	if f.Entry, err = util.ReadUint(f.raw, 24, lay.addrSize, order); err != nil {
		return errors.WithMessage(err, "elf header")
	}
	shoff, err := util.ReadUint(f.raw, lay.shoff, lay.addrSize, order)
	if err != nil {
		return errors.WithMessage(err, "elf header")
	}
	shentsize, err := util.ReadU16(f.raw, lay.shentsize, order)
	if err != nil {
		return errors.WithMessage(err, "elf header")
	}
	shnum, err := util.ReadU16(f.raw, lay.shnum, order)
	if err != nil {
		return errors.WithMessage(err, "elf header")
	}
	shstrndx, err := util.ReadU16(f.raw, lay.shstrndx, order)
	if err != nil {
		return errors.WithMessage(err, "elf header")
	}

	if shnum == 0 {
		return nil
	}
	if int(shentsize) < lay.secSize {
		return errors.Wrapf(ErrInvalidHeader, "section header entry size %d", shentsize)
	}
	if shstrndx >= shnum {
		return errors.Wrapf(ErrInvalidHeader, "section name table index %d out of %d", shstrndx, shnum)
	}

	// the name string table comes first so that names resolve as we go
	strhdr, err := f.parseSectionHeader(int(shoff)+int(shstrndx)*int(shentsize), lay)
	if err != nil {
		return errors.WithMessage(err, "section name table")
	}
	names, err := f.sectionBytes(strhdr)
	if err != nil {
		return errors.WithMessage(err, "section name table")
	}

	f.Sections = make([]*SectionHeader, 0, shnum)
	for i := 0; i < int(shnum); i++ {
		sh, err := f.parseSectionHeader(int(shoff)+i*int(shentsize), lay)
		if err != nil {
			return errors.WithMessagef(err, "section header %d", i)
		}
		sh.Index = i
		sh.Name, _, err = util.ParseString(names, int(sh.NameOffset))
		if err != nil {
			return errors.WithMessagef(err, "section header %d name", i)
		}
		f.Sections = append(f.Sections, sh)
		f.sections[sh.Name] = sh
	}
	return nil
}

func (f *File) parseSectionHeader(off int, lay layout) (*SectionHeader, error) {
	r := util.NewReader(f.raw, f.ByteOrder, off)
	sh := &SectionHeader{}

	var (
		typ   uint32
		flags uint64
		err   error
	)
	if sh.NameOffset, err = r.U32(); err != nil {
		return nil, err
	}
	if typ, err = r.U32(); err != nil {
		return nil, err
	}
	sh.Type = elf.SectionType(typ)
	if flags, err = r.Uint(lay.addrSize); err != nil {
		return nil, err
	}
	sh.Flags = elf.SectionFlag(flags)
	if sh.Addr, err = r.Uint(lay.addrSize); err != nil {
		return nil, err
	}
	if sh.Offset, err = r.Uint(lay.addrSize); err != nil {
		return nil, err
	}
	if sh.Size, err = r.Uint(lay.addrSize); err != nil {
		return nil, err
	}
	if sh.Link, err = r.U32(); err != nil {
		return nil, err
	}
	if sh.Info, err = r.U32(); err != nil {
		return nil, err
	}
	if sh.Addralign, err = r.Uint(lay.addrSize); err != nil {
		return nil, err
	}
	if sh.Entsize, err = r.Uint(lay.addrSize); err != nil {
		return nil, err
	}
	return sh, nil
}

func (f *File) sectionBytes(sh *SectionHeader) ([]byte, error) {
	if sh.Type == elf.SHT_NOBITS || sh.Size == 0 {
		return nil, nil
	}
	end := sh.Offset + sh.Size
	if end < sh.Offset || end > uint64(len(f.raw)) {
		return nil, errors.Wrapf(util.ErrOutOfBounds, "section %q [%#x, %#x) beyond file size %#x",
			sh.Name, sh.Offset, end, len(f.raw))
	}
	return f.raw[sh.Offset:end], nil
}

func (f *File) parseSymbols(lay layout) error {
	symtab := f.Section(SectionSymtab)
	strtab := f.Section(SectionStrtab)
	if symtab == nil || strtab == nil {
		log.Debugf("no %s/%s section, symbol table is empty", SectionSymtab, SectionStrtab)
		return nil
	}

	syms, err := f.sectionBytes(symtab)
	if err != nil {
		return err
	}
	strs, err := f.sectionBytes(strtab)
	if err != nil {
		return err
	}

	// entry 0 is the reserved null symbol
	for off := lay.symSize; off+lay.symSize <= len(syms); off += lay.symSize {
		sym, nameOff, err := f.parseSymbol(util.NewReader(syms, f.ByteOrder, off))
		if err != nil {
			return errors.WithMessagef(err, "symbol at %#x", off)
		}

		name, _, err := util.ParseString(strs, int(nameOff))
		if err != nil {
			return errors.WithMessagef(err, "symbol at %#x name", off)
		}
		if name == "" {
			continue
		}

		sym.Name = name
		f.Symbols = append(f.Symbols, sym)
	}
	return nil
}

// parseSymbol decodes one Elf32_Sym or Elf64_Sym. The two layouts store the
// same fields in a different order.
func (f *File) parseSymbol(r *util.Reader) (sym Symbol, nameOff uint32, err error) {
	var (
		info, other uint8
		addrSize    = f.AddrSize()
	)
	if nameOff, err = r.U32(); err != nil {
		return
	}
	if f.Class == elf.ELFCLASS32 {
		if sym.Value, err = r.Uint(addrSize); err != nil {
			return
		}
		if sym.Size, err = r.Uint(addrSize); err != nil {
			return
		}
	}
	if info, err = r.U8(); err != nil {
		return
	}
	if other, err = r.U8(); err != nil {
		return
	}
	if sym.SectionIndex, err = r.U16(); err != nil {
		return
	}
	if f.Class == elf.ELFCLASS64 {
		if sym.Value, err = r.Uint(addrSize); err != nil {
			return
		}
		if sym.Size, err = r.Uint(addrSize); err != nil {
			return
		}
	}
	sym.Type = elf.ST_TYPE(info)
	sym.Bind = elf.ST_BIND(info)
	sym.Visibility = elf.ST_VISIBILITY(other)
	return
}

// Section returns the header named name, or nil. When several sections share
// a name the last one in the table wins.
func (f *File) Section(name string) *SectionHeader {
	return f.sections[name]
}

// SectionData returns the contents of the named section. A missing or
// SHT_NOBITS section yields nil without error.
func (f *File) SectionData(name string) ([]byte, error) {
	sh := f.Section(name)
	if sh == nil {
		return nil, nil
	}
	return f.sectionBytes(sh)
}

// AddrSize is the natural address width of the image.
func (f *File) AddrSize() int {
	if f.Class == elf.ELFCLASS64 {
		return 8
	}
	return 4
}
