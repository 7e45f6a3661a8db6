// Package die decodes the debug info entry trees of .debug_info.
//
// Entries of all compilation units live in one arena and refer to each other
// by index, parents through Parent and children through Children, so no entry
// owns another.
//
// see DWARFv4 7.5 format of debugging information
package die

import (
	"debug/dwarf"
	"encoding/binary"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/abbrev"
	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/util"
)

// ErrInvalidUnit reports a compilation unit header that cannot be decoded.
var ErrInvalidUnit = errors.New("invalid compilation unit")

// DWARF 5 unit types carrying extra header fields
const (
	utType         = 0x02
	utSkeleton     = 0x04
	utSplitCompile = 0x05
	utSplitType    = 0x06
)

// Field is one decoded attribute of an entry.
type Field struct {
	Attr dwarf.Attr
	Form abbrev.Form
	Val  Value
}

// Entry is a debug info entry.
type Entry struct {
	Offset      uint64 // offset in .debug_info
	Code        uint64
	Tag         dwarf.Tag // zero when Code has no abbreviation
	HasChildren bool
	Fields      []Field
	Size        int // encoded size in bytes

	Unit     int
	Parent   int // -1 at the root level of a unit
	Children []int
}

// Val returns the value of attr.
func (e *Entry) Val(attr dwarf.Attr) (Value, bool) {
	for _, f := range e.Fields {
		if f.Attr == attr {
			return f.Val, true
		}
	}
	return Value{}, false
}

// CompileUnit is the header of one unit in .debug_info.
type CompileUnit struct {
	Offset       uint64
	Length       uint32
	Version      uint16
	UnitType     uint8
	AbbrevOffset uint32
	AddrSize     uint8

	// Entries at the root level of the unit, usually one DW_TAG_compile_unit.
	Entries []int
}

// Tree holds every unit and entry of a .debug_info section.
type Tree struct {
	Units   []CompileUnit
	Entries []Entry
}

// Entry returns the entry at index i.
func (t *Tree) Entry(i int) *Entry {
	return &t.Entries[i]
}

// Children returns the child entries of entry i.
func (t *Tree) Children(i int) []*Entry {
	children := make([]*Entry, 0, len(t.Entries[i].Children))
	for _, c := range t.Entries[i].Children {
		children = append(children, &t.Entries[c])
	}
	return children
}

// Walk visits the entries of unit u in pre-order. Returning false from fn
// skips the children of the visited entry.
func (t *Tree) Walk(u int, fn func(depth int, e *Entry) bool) {
	var visit func(depth, i int)
	visit = func(depth, i int) {
		if !fn(depth, &t.Entries[i]) {
			return
		}
		for _, c := range t.Entries[i].Children {
			visit(depth+1, c)
		}
	}
	for _, root := range t.Units[u].Entries {
		visit(0, root)
	}
}

// Parse decodes all compilation units in info. Abbreviation tables come from
// cache, which the caller scopes to a single decode.
func Parse(info []byte, order binary.ByteOrder, cache *abbrev.Cache) (*Tree, error) {
	t := &Tree{}
	off := 0
	for off < len(info) {
		next, err := t.parseUnit(info, order, off, cache)
		if err != nil {
			return nil, errors.WithMessagef(err, "compilation unit at %#x", off)
		}
		off = next
	}
	return t, nil
}

func (t *Tree) parseUnit(info []byte, order binary.ByteOrder, off int, cache *abbrev.Cache) (int, error) {
	r := util.NewReader(info, order, off)

	length, err := r.U32()
	if err != nil {
		return 0, err
	}
	if length >= 0xfffffff0 {
		return 0, errors.Wrapf(ErrInvalidUnit, "unsupported unit length %#x (64-bit DWARF)", length)
	}
	end := r.Pos() + int(length)
	if end > len(info) {
		return 0, errors.Wrapf(util.ErrOutOfBounds, "unit ends at %#x beyond section size %#x", end, len(info))
	}
	// reads never cross into the next unit
	r = util.NewReader(info[:end], order, r.Pos())

	cu := CompileUnit{Offset: uint64(off), Length: length}
	if cu.Version, err = r.U16(); err != nil {
		return 0, err
	}
	switch {
	case cu.Version >= 2 && cu.Version <= 4:
		if cu.AbbrevOffset, err = r.U32(); err != nil {
			return 0, err
		}
		if cu.AddrSize, err = r.U8(); err != nil {
			return 0, err
		}
	case cu.Version == 5:
		if cu.UnitType, err = r.U8(); err != nil {
			return 0, err
		}
		if cu.AddrSize, err = r.U8(); err != nil {
			return 0, err
		}
		if cu.AbbrevOffset, err = r.U32(); err != nil {
			return 0, err
		}
		switch cu.UnitType {
		case utType, utSplitType:
			err = r.Skip(8 + 4) // type signature, type offset
		case utSkeleton, utSplitCompile:
			err = r.Skip(8) // dwo id
		}
		if err != nil {
			return 0, err
		}
	default:
		return 0, errors.Wrapf(ErrInvalidUnit, "unsupported version %d", cu.Version)
	}
	if cu.AddrSize != 4 && cu.AddrSize != 8 {
		return 0, errors.Wrapf(ErrInvalidUnit, "unsupported address size %d", cu.AddrSize)
	}

	table, err := cache.Table(uint64(cu.AbbrevOffset))
	if err != nil {
		return 0, errors.WithMessagef(err, "abbreviation table at %#x", cu.AbbrevOffset)
	}

	unit := len(t.Units)
	t.Units = append(t.Units, cu)

	var parents []int
	for r.Len() > 0 {
		idx, err := t.parseEntry(r, &cu, unit, table, parents)
		if err != nil {
			return 0, err
		}
		if idx < 0 {
			// null entry closes the innermost parent
			if len(parents) > 0 {
				parents = parents[:len(parents)-1]
			}
			continue
		}
		if t.Entries[idx].HasChildren {
			parents = append(parents, idx)
		}
	}
	t.Units[unit].Entries = cu.Entries
	return end, nil
}

// parseEntry decodes one entry and links it into the tree. It returns -1 for
// a null entry.
func (t *Tree) parseEntry(r *util.Reader, cu *CompileUnit, unit int, table abbrev.Table, parents []int) (int, error) {
	start := r.Pos()
	code, err := r.ULEB128()
	if err != nil {
		return 0, err
	}
	if code == 0 {
		return -1, nil
	}

	e := Entry{
		Offset: uint64(start),
		Code:   code,
		Unit:   unit,
		Parent: -1,
	}
	if len(parents) > 0 {
		e.Parent = parents[len(parents)-1]
	}

	ab, ok := table.Lookup(code)
	if !ok {
		log.Debugf("no abbreviation for code %d at %#x, keeping an empty entry", code, start)
	} else {
		e.Tag = ab.Tag
		e.HasChildren = ab.HasChildren
		for _, spec := range ab.Attrs {
			val, known, err := readValue(r, spec.Form, cu)
			if err != nil {
				return 0, errors.WithMessagef(err, "entry at %#x attribute %v (%v)", start, spec.Attr, spec.Form)
			}
			if !known {
				log.Debugf("entry at %#x: skipped attribute %v with unknown form %v", start, spec.Attr, spec.Form)
				continue
			}
			e.Fields = append(e.Fields, Field{Attr: spec.Attr, Form: spec.Form, Val: val})
		}
	}
	e.Size = r.Pos() - start

	idx := len(t.Entries)
	t.Entries = append(t.Entries, e)
	if e.Parent >= 0 {
		t.Entries[e.Parent].Children = append(t.Entries[e.Parent].Children, idx)
	} else {
		cu.Entries = append(cu.Entries, idx)
	}
	return idx, nil
}

// readValue decodes one attribute value of the given form. known is false
// for forms outside the supported set, which are skipped as 4 bytes.
func readValue(r *util.Reader, form abbrev.Form, cu *CompileUnit) (val Value, known bool, err error) {
	val.Kind = KindOf(form)
	known = true

	switch form {
	case abbrev.FormAddr:
		val.U, err = r.Uint(int(cu.AddrSize))
	case abbrev.FormData1, abbrev.FormRef1:
		val.U, err = r.Uint(1)
	case abbrev.FormData2, abbrev.FormRef2:
		val.U, err = r.Uint(2)
	case abbrev.FormData4, abbrev.FormRef4, abbrev.FormStrp, abbrev.FormSecOffset:
		val.U, err = r.Uint(4)
	case abbrev.FormData8, abbrev.FormRef8:
		val.U, err = r.Uint(8)
	case abbrev.FormRefAddr:
		// address sized in DWARF 2, offset sized afterwards
		size := 4
		if cu.Version == 2 {
			size = int(cu.AddrSize)
		}
		val.U, err = r.Uint(size)
	case abbrev.FormString:
		val.S, err = r.String()
	case abbrev.FormFlag:
		var b uint8
		b, err = r.U8()
		val.F = b != 0
	case abbrev.FormFlagPresent:
		val.F = true
	case abbrev.FormUdata, abbrev.FormRefUdata:
		val.U, err = r.ULEB128()
	case abbrev.FormSdata:
		val.I, err = r.SLEB128()
	case abbrev.FormBlock1, abbrev.FormBlock2, abbrev.FormBlock4:
		var n uint64
		switch form {
		case abbrev.FormBlock1:
			n, err = r.Uint(1)
		case abbrev.FormBlock2:
			n, err = r.Uint(2)
		default:
			n, err = r.Uint(4)
		}
		if err == nil {
			val.B, err = r.Bytes(int(n))
		}
	case abbrev.FormBlock, abbrev.FormExprloc:
		var n uint64
		if n, err = r.ULEB128(); err == nil {
			val.B, err = r.Bytes(int(n))
		}
	case abbrev.FormIndirect:
		var actual uint64
		if actual, err = r.ULEB128(); err == nil {
			return readValue(r, abbrev.Form(actual), cu)
		}
	default:
		known = false
		err = r.Skip(4)
	}
	return
}
