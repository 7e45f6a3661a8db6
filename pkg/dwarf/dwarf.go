package dwarf

import (
	"debug/dwarf"
	"encoding/binary"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/abbrev"
	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/die"
	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/line"
	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/util"
	"github.com/hitzhangjie/dwarfmap/pkg/elf"
)

// Section names.
const (
	SectionAbbrev = ".debug_abbrev"
	SectionInfo   = ".debug_info"
	SectionLine   = ".debug_line"
	SectionStr    = ".debug_str"
)

// Data is the decoded debug information of one image.
type Data struct {
	Order    binary.ByteOrder
	AddrSize int

	Abbrevs *abbrev.Cache
	Info    *die.Tree
	Lines   []*line.Program

	// Str is kept raw, strp values are offsets into it.
	Str []byte
}

// New decodes the DWARF sections of f. Missing sections produce empty
// results; malformed ones fail the whole decode.
func New(f *elf.File) (*Data, error) {
	d := &Data{
		Order:    f.ByteOrder,
		AddrSize: f.AddrSize(),
	}

	sections := map[string][]byte{}
	for _, name := range []string{SectionAbbrev, SectionInfo, SectionLine, SectionStr} {
		b, err := f.SectionData(name)
		if err != nil {
			return nil, errors.WithMessagef(err, "load %s", name)
		}
		if b == nil {
			log.Debugf("no %s section", name)
		}
		sections[name] = b
	}
	d.Str = sections[SectionStr]

	// one cache per decode, units sharing a table parse it once
	d.Abbrevs = abbrev.NewCache(sections[SectionAbbrev])

	var err error
	if d.Info, err = die.Parse(sections[SectionInfo], d.Order, d.Abbrevs); err != nil {
		return nil, errors.WithMessage(err, "decode "+SectionInfo)
	}
	if d.Lines, err = line.Parse(sections[SectionLine], d.Order, d.AddrSize); err != nil {
		return nil, errors.WithMessage(err, "decode "+SectionLine)
	}
	return d, nil
}

// LineTables executes every line number program.
func (d *Data) LineTables() []*line.Table {
	tables := make([]*line.Table, 0, len(d.Lines))
	for _, p := range d.Lines {
		tables = append(tables, p.Execute())
	}
	return tables
}

// String returns the string at off in .debug_str.
func (d *Data) String(off uint64) (string, error) {
	if off >= uint64(len(d.Str)) {
		return "", errors.Wrapf(util.ErrOutOfBounds, "string offset %#x, %s size %#x", off, SectionStr, len(d.Str))
	}
	s, _, err := util.ParseString(d.Str, int(off))
	return s, err
}

// AttrString returns a string attribute of e, resolving DW_FORM_strp through
// .debug_str.
func (d *Data) AttrString(e *die.Entry, attr dwarf.Attr) (string, bool) {
	for _, field := range e.Fields {
		if field.Attr != attr {
			continue
		}
		switch field.Form {
		case abbrev.FormString:
			return field.Val.S, true
		case abbrev.FormStrp:
			s, err := d.String(field.Val.U)
			if err != nil {
				log.Debugf("entry at %#x: %v", e.Offset, err)
				return "", false
			}
			return s, true
		}
		return "", false
	}
	return "", false
}
