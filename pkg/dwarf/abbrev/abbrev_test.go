package abbrev

import (
	"debug/dwarf"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/dwarfmap/internal/elftest"
	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/util"
)

func compileUnitAbbrevs() []byte {
	return elftest.AbbrevTable(
		elftest.Abbrev{Code: 1, Tag: uint64(dwarf.TagCompileUnit), Children: true, Attrs: [][2]uint64{
			{uint64(dwarf.AttrName), uint64(FormString)},
			{uint64(dwarf.AttrLowpc), uint64(FormAddr)},
			{uint64(dwarf.AttrStmtList), uint64(FormData4)},
		}},
		elftest.Abbrev{Code: 2, Tag: uint64(dwarf.TagSubprogram), Attrs: [][2]uint64{
			{uint64(dwarf.AttrName), uint64(FormStrp)},
			{uint64(dwarf.AttrExternal), uint64(FormFlag)},
		}},
	)
}

func TestParse(t *testing.T) {
	table, err := Parse(compileUnitAbbrevs(), 0)
	require.NoError(t, err)
	require.Len(t, table, 2)

	cu, ok := table.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, dwarf.TagCompileUnit, cu.Tag)
	assert.True(t, cu.HasChildren)
	assert.Equal(t, []AttrSpec{
		{Attr: dwarf.AttrName, Form: FormString},
		{Attr: dwarf.AttrLowpc, Form: FormAddr},
		{Attr: dwarf.AttrStmtList, Form: FormData4},
	}, cu.Attrs)

	sub, ok := table.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, dwarf.TagSubprogram, sub.Tag)
	assert.False(t, sub.HasChildren)
	assert.Len(t, sub.Attrs, 2)

	_, ok = table.Lookup(3)
	assert.False(t, ok)
}

func TestParseAtOffset(t *testing.T) {
	first := elftest.AbbrevTable(elftest.Abbrev{Code: 1, Tag: uint64(dwarf.TagCompileUnit)})
	second := elftest.AbbrevTable(elftest.Abbrev{Code: 7, Tag: uint64(dwarf.TagVariable)})
	data := append(append([]byte{}, first...), second...)

	table, err := Parse(data, uint64(len(first)))
	require.NoError(t, err)
	require.Len(t, table, 1)
	e, ok := table.Lookup(7)
	require.True(t, ok)
	assert.Equal(t, dwarf.TagVariable, e.Tag)
}

func TestParseTruncated(t *testing.T) {
	data := compileUnitAbbrevs()
	_, err := Parse(data[:5], 0)
	assert.True(t, errors.Is(err, util.ErrOutOfBounds))
}

func TestCache(t *testing.T) {
	first := compileUnitAbbrevs()
	second := elftest.AbbrevTable(elftest.Abbrev{Code: 1, Tag: uint64(dwarf.TagVariable)})
	cache := NewCache(append(append([]byte{}, first...), second...))

	a, err := cache.Table(0)
	require.NoError(t, err)
	b, err := cache.Table(0)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len(), "units sharing an offset share one table")
	assert.Same(t, &a[0], &b[0])

	c, err := cache.Table(uint64(len(first)))
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, dwarf.TagVariable, c[0].Tag)
}

func TestCacheWithoutSection(t *testing.T) {
	cache := NewCache(nil)
	table, err := cache.Table(0x40)
	require.NoError(t, err)
	assert.Empty(t, table)
	_, ok := table.Lookup(1)
	assert.False(t, ok)
}

func TestFormString(t *testing.T) {
	assert.Equal(t, "DW_FORM_data4", FormData4.String())
	assert.Equal(t, "DW_FORM_0x7f", Form(0x7f).String())
}
