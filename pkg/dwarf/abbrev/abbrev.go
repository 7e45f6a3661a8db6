// Package abbrev decodes .debug_abbrev, the schemas that describe the shape
// of every debug info entry.
//
// see DWARFv4 7.5.3 abbreviations tables
package abbrev

import (
	"debug/dwarf"
	"encoding/binary"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/util"
)

// AttrSpec is one (attribute, form) pair of an abbreviation.
type AttrSpec struct {
	Attr dwarf.Attr
	Form Form
}

// Entry is one abbreviation declaration.
type Entry struct {
	Code        uint64
	Tag         dwarf.Tag
	HasChildren bool
	Attrs       []AttrSpec
}

// Table is the list of abbreviations starting at one .debug_abbrev offset.
type Table []Entry

// Lookup returns the entry declared with code.
func (t Table) Lookup(code uint64) (*Entry, bool) {
	// producers usually number codes 1..n in declaration order
	if code > 0 && code <= uint64(len(t)) && t[code-1].Code == code {
		return &t[code-1], true
	}
	for i := range t {
		if t[i].Code == code {
			return &t[i], true
		}
	}
	return nil, false
}

// Parse decodes the abbreviation table at offset. The byte order is
// irrelevant since the table only holds LEB128 values and single bytes.
func Parse(data []byte, offset uint64) (Table, error) {
	r := util.NewReader(data, binary.LittleEndian, int(offset))

	var table Table
	for {
		code, err := r.ULEB128()
		if err != nil {
			return nil, errors.WithMessagef(err, "abbreviation code at %#x", r.Pos())
		}
		if code == 0 {
			return table, nil
		}

		tag, err := r.ULEB128()
		if err != nil {
			return nil, errors.WithMessagef(err, "abbreviation %d tag", code)
		}
		children, err := r.U8()
		if err != nil {
			return nil, errors.WithMessagef(err, "abbreviation %d children flag", code)
		}

		entry := Entry{
			Code:        code,
			Tag:         dwarf.Tag(tag),
			HasChildren: children != 0,
		}
		for {
			attr, err := r.ULEB128()
			if err != nil {
				return nil, errors.WithMessagef(err, "abbreviation %d attribute", code)
			}
			form, err := r.ULEB128()
			if err != nil {
				return nil, errors.WithMessagef(err, "abbreviation %d form", code)
			}
			if attr == 0 && form == 0 {
				break
			}
			entry.Attrs = append(entry.Attrs, AttrSpec{Attr: dwarf.Attr(attr), Form: Form(form)})
		}
		table = append(table, entry)
	}
}

// Cache holds the tables decoded from one .debug_abbrev section, keyed by
// offset, so that compilation units sharing a table decode it once. A Cache
// belongs to a single decode and is not safe for concurrent use.
type Cache struct {
	data   []byte
	tables map[uint64]Table
}

// NewCache returns an empty cache over the .debug_abbrev contents. data may
// be nil when the section is missing.
func NewCache(data []byte) *Cache {
	return &Cache{data: data, tables: map[uint64]Table{}}
}

// Table returns the table at offset, decoding it on first use. Without a
// .debug_abbrev section every offset maps to an empty table.
func (c *Cache) Table(offset uint64) (Table, error) {
	if t, ok := c.tables[offset]; ok {
		return t, nil
	}
	if len(c.data) == 0 {
		log.Debugf("no .debug_abbrev section, using empty abbreviation table for offset %#x", offset)
		c.tables[offset] = Table{}
		return c.tables[offset], nil
	}

	t, err := Parse(c.data, offset)
	if err != nil {
		return nil, err
	}
	c.tables[offset] = t
	return t, nil
}

// Len returns the number of decoded tables.
func (c *Cache) Len() int {
	return len(c.tables)
}
