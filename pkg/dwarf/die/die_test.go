package die

import (
	"bytes"
	"debug/dwarf"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/dwarfmap/internal/elftest"
	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/abbrev"
	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/util"
)

var order = binary.BigEndian

func attr(a dwarf.Attr, f abbrev.Form) [2]uint64 {
	return [2]uint64{uint64(a), uint64(f)}
}

func programAbbrevs() []byte {
	return elftest.AbbrevTable(
		elftest.Abbrev{Code: 1, Tag: uint64(dwarf.TagCompileUnit), Children: true, Attrs: [][2]uint64{
			attr(dwarf.AttrName, abbrev.FormString),
			attr(dwarf.AttrProducer, abbrev.FormStrp),
			attr(dwarf.AttrLowpc, abbrev.FormAddr),
			attr(dwarf.AttrHighpc, abbrev.FormData4),
			attr(dwarf.AttrLanguage, abbrev.FormData1),
			attr(dwarf.AttrStmtList, abbrev.FormData4),
		}},
		elftest.Abbrev{Code: 2, Tag: uint64(dwarf.TagSubprogram), Attrs: [][2]uint64{
			attr(dwarf.AttrName, abbrev.FormString),
			attr(dwarf.AttrExternal, abbrev.FormFlag),
			attr(dwarf.AttrDeclLine, abbrev.FormUdata),
			attr(dwarf.AttrFrameBase, abbrev.FormBlock1),
			attr(dwarf.AttrLowpc, abbrev.FormAddr),
		}},
		elftest.Abbrev{Code: 3, Tag: uint64(dwarf.TagVariable), Attrs: [][2]uint64{
			attr(dwarf.AttrName, abbrev.FormString),
			attr(dwarf.AttrConstValue, abbrev.FormSdata),
			attr(dwarf.AttrLocation, abbrev.FormBlock),
		}},
	)
}

func programBody() []byte {
	var b bytes.Buffer
	b.WriteByte(1)
	b.WriteString("main.c\x00")
	// producer, low_pc, high_pc, language, stmt_list
	b.Write([]byte{0, 0, 0, 0x20})
	b.Write([]byte{0, 0, 0, 0})
	b.Write([]byte{0, 0, 0, 0x10})
	b.WriteByte(0x01)
	b.Write([]byte{0, 0, 0, 0})

	b.WriteByte(2)
	b.WriteString("main\x00")
	b.WriteByte(1)
	b.Write(elftest.ULEB(10))
	b.Write([]byte{1, 0x5d})
	b.Write([]byte{0, 0, 0, 4})

	b.WriteByte(3)
	b.WriteString("x\x00")
	b.Write(elftest.SLEB(-3))
	b.Write(elftest.ULEB(2))
	b.Write([]byte{0x91, 0x7c})

	b.WriteByte(0)
	return b.Bytes()
}

func TestParseTree(t *testing.T) {
	info := elftest.CompileUnit(order, 2, 0, 4, programBody())
	tree, err := Parse(info, order, abbrev.NewCache(programAbbrevs()))
	require.NoError(t, err)

	require.Len(t, tree.Units, 1)
	cu := tree.Units[0]
	assert.Equal(t, uint16(2), cu.Version)
	assert.Equal(t, uint8(4), cu.AddrSize)
	assert.Equal(t, uint64(0), cu.Offset)
	assert.Equal(t, []int{0}, cu.Entries)

	require.Len(t, tree.Entries, 3)
	root := tree.Entry(0)
	assert.Equal(t, dwarf.TagCompileUnit, root.Tag)
	assert.Equal(t, uint64(11), root.Offset)
	assert.Equal(t, 25, root.Size)
	assert.Equal(t, -1, root.Parent)
	assert.Equal(t, []int{1, 2}, root.Children)

	name, ok := root.Val(dwarf.AttrName)
	require.True(t, ok)
	assert.Equal(t, Value{Kind: KindString, S: "main.c"}, name)
	producer, _ := root.Val(dwarf.AttrProducer)
	assert.Equal(t, uint64(0x20), producer.U)
	highpc, _ := root.Val(dwarf.AttrHighpc)
	assert.Equal(t, uint64(0x10), highpc.U)

	children := tree.Children(0)
	require.Len(t, children, 2)
	sub := children[0]
	assert.Equal(t, dwarf.TagSubprogram, sub.Tag)
	assert.Equal(t, 0, sub.Parent)
	ext, _ := sub.Val(dwarf.AttrExternal)
	assert.True(t, ext.F)
	line, _ := sub.Val(dwarf.AttrDeclLine)
	assert.Equal(t, uint64(10), line.U)
	fb, _ := sub.Val(dwarf.AttrFrameBase)
	assert.Equal(t, []byte{0x5d}, fb.B)
	low, _ := sub.Val(dwarf.AttrLowpc)
	assert.Equal(t, KindAddress, low.Kind)
	assert.Equal(t, uint64(4), low.U)

	v := children[1]
	assert.Equal(t, dwarf.TagVariable, v.Tag)
	cv, _ := v.Val(dwarf.AttrConstValue)
	assert.Equal(t, int64(-3), cv.I)
	loc, _ := v.Val(dwarf.AttrLocation)
	assert.Equal(t, []byte{0x91, 0x7c}, loc.B)
	_, ok = v.Val(dwarf.AttrType)
	assert.False(t, ok)
}

func TestWalk(t *testing.T) {
	info := elftest.CompileUnit(order, 2, 0, 4, programBody())
	tree, err := Parse(info, order, abbrev.NewCache(programAbbrevs()))
	require.NoError(t, err)

	var visited []string
	tree.Walk(0, func(depth int, e *Entry) bool {
		visited = append(visited, e.Tag.String())
		assert.Equal(t, e.Parent >= 0, depth > 0)
		return true
	})
	assert.Equal(t, []string{"CompileUnit", "Subprogram", "Variable"}, visited)

	visited = visited[:0]
	tree.Walk(0, func(depth int, e *Entry) bool {
		visited = append(visited, e.Tag.String())
		return false
	})
	assert.Equal(t, []string{"CompileUnit"}, visited)
}

func TestUnknownAbbreviationCode(t *testing.T) {
	abbrevs := elftest.AbbrevTable(elftest.Abbrev{Code: 1, Tag: uint64(dwarf.TagCompileUnit), Children: true})
	info := elftest.CompileUnit(order, 2, 0, 4, []byte{1, 9, 0})

	tree, err := Parse(info, order, abbrev.NewCache(abbrevs))
	require.NoError(t, err)
	require.Len(t, tree.Entries, 2)

	e := tree.Entry(1)
	assert.Equal(t, uint64(9), e.Code)
	assert.Equal(t, dwarf.Tag(0), e.Tag)
	assert.Empty(t, e.Fields)
	assert.Empty(t, e.Children)
	assert.Equal(t, 1, e.Size)
	assert.Equal(t, 0, e.Parent)
}

func TestUnknownFormSkipsFourBytes(t *testing.T) {
	abbrevs := elftest.AbbrevTable(elftest.Abbrev{Code: 1, Tag: uint64(dwarf.TagCompileUnit), Attrs: [][2]uint64{
		attr(dwarf.AttrName, abbrev.FormString),
		attr(dwarf.AttrProducer, abbrev.Form(0x7f)),
		attr(dwarf.AttrLowpc, abbrev.FormData2),
	}})
	info := elftest.CompileUnit(order, 3, 0, 4, []byte{1, 'a', 0, 0xde, 0xad, 0xbe, 0xef, 0x12, 0x34})

	tree, err := Parse(info, order, abbrev.NewCache(abbrevs))
	require.NoError(t, err)
	require.Len(t, tree.Entries, 1)

	e := tree.Entry(0)
	assert.Equal(t, 9, e.Size)
	require.Len(t, e.Fields, 2)
	low, ok := e.Val(dwarf.AttrLowpc)
	require.True(t, ok)
	assert.Equal(t, uint64(0x1234), low.U)
}

func TestUnitsShareAbbreviationTable(t *testing.T) {
	body := programBody()
	info := append(elftest.CompileUnit(order, 2, 0, 4, body), elftest.CompileUnit(order, 2, 0, 4, body)...)
	cache := abbrev.NewCache(programAbbrevs())

	tree, err := Parse(info, order, cache)
	require.NoError(t, err)
	require.Len(t, tree.Units, 2)
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, uint64(len(info)/2), tree.Units[1].Offset)
	assert.Equal(t, []int{3}, tree.Units[1].Entries)
	assert.Equal(t, 1, tree.Entry(4).Unit)
	assert.Equal(t, 3, tree.Entry(4).Parent)
}

func TestVersion5Header(t *testing.T) {
	abbrevs := elftest.AbbrevTable(elftest.Abbrev{Code: 1, Tag: uint64(dwarf.TagCompileUnit), Attrs: [][2]uint64{
		attr(dwarf.AttrLowpc, abbrev.FormAddr),
		attr(dwarf.AttrExternal, abbrev.FormFlagPresent),
	}})
	var b bytes.Buffer
	binary.Write(&b, order, uint32(2+1+1+4+1+8))
	binary.Write(&b, order, uint16(5))
	b.WriteByte(0x01) // DW_UT_compile
	b.WriteByte(8)
	binary.Write(&b, order, uint32(0))
	b.WriteByte(1)
	binary.Write(&b, order, uint64(0x400000))

	tree, err := Parse(b.Bytes(), order, abbrev.NewCache(abbrevs))
	require.NoError(t, err)
	require.Len(t, tree.Entries, 1)
	low, _ := tree.Entry(0).Val(dwarf.AttrLowpc)
	assert.Equal(t, uint64(0x400000), low.U)
	ext, _ := tree.Entry(0).Val(dwarf.AttrExternal)
	assert.True(t, ext.F)
}

func TestParseErrors(t *testing.T) {
	cache := func() *abbrev.Cache { return abbrev.NewCache(programAbbrevs()) }
	info := elftest.CompileUnit(order, 2, 0, 4, programBody())

	// unit length beyond the section
	_, err := Parse(info[:len(info)-1], order, cache())
	assert.True(t, errors.Is(err, util.ErrOutOfBounds))

	// attribute running past the unit end
	short := elftest.CompileUnit(order, 2, 0, 4, programBody()[:10])
	_, err = Parse(short, order, cache())
	assert.True(t, errors.Is(err, util.ErrOutOfBounds))

	_, err = Parse(elftest.CompileUnit(order, 1, 0, 4, nil), order, cache())
	assert.True(t, errors.Is(err, ErrInvalidUnit))

	_, err = Parse(elftest.CompileUnit(order, 2, 0, 2, nil), order, cache())
	assert.True(t, errors.Is(err, ErrInvalidUnit))

	_, err = Parse([]byte{0xff, 0xff, 0xff, 0xff, 0, 0}, order, cache())
	assert.True(t, errors.Is(err, ErrInvalidUnit))
}

func TestEmptyAbbrevSection(t *testing.T) {
	info := elftest.CompileUnit(order, 2, 0, 4, []byte{1, 0})
	tree, err := Parse(info, order, abbrev.NewCache(nil))
	require.NoError(t, err)
	require.Len(t, tree.Entries, 1)
	assert.Equal(t, dwarf.Tag(0), tree.Entry(0).Tag)
}
