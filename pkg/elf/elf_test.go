package elf

import (
	"debug/elf"
	"encoding/binary"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/dwarfmap/internal/elftest"
	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/util"
)

func sampleImage(class elf.Class, order binary.ByteOrder) []byte {
	b := elftest.New(class, order)
	text := b.AddSection(elftest.Section{
		Name:  ".text",
		Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR,
		Data:  []byte{0x4e, 0x75, 0x4e, 0x71},
	})
	data := b.AddSection(elftest.Section{
		Name:  ".data",
		Flags: elf.SHF_ALLOC | elf.SHF_WRITE,
		Addr:  0x1000,
		Data:  []byte{1, 2, 3, 4, 5, 6, 7, 8},
	})
	b.AddSection(elftest.Section{Name: ".bss", Type: elf.SHT_NOBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Addr: 0x2000, Size: 0x40})

	b.AddSymbol(elftest.Symbol{Name: "_start", Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC), Shndx: uint16(text)})
	b.AddSymbol(elftest.Symbol{Name: "counter", Value: 0x1004, Size: 4, Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_OBJECT), Other: byte(elf.STV_HIDDEN), Shndx: uint16(data)})
	b.AddSymbol(elftest.Symbol{Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION), Shndx: uint16(text)})
	return b.Bytes()
}

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		name  string
		class elf.Class
		order binary.ByteOrder
	}{
		{"elf32 big endian", elf.ELFCLASS32, binary.BigEndian},
		{"elf64 little endian", elf.ELFCLASS64, binary.LittleEndian},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Parse(sampleImage(tc.class, tc.order))
			require.NoError(t, err)

			assert.Equal(t, tc.class, f.Class)
			assert.Equal(t, tc.order, f.ByteOrder)
			assert.Equal(t, elf.ET_EXEC, f.Type)
			assert.Equal(t, elf.EM_68K, f.Machine)

			// null, .text, .data, .bss, .symtab, .strtab, .shstrtab
			require.Len(t, f.Sections, 7)
			for i, sh := range f.Sections {
				assert.Equal(t, i, sh.Index)
			}
			assert.Equal(t, "", f.Sections[0].Name)

			text := f.Section(SectionText)
			require.NotNil(t, text)
			assert.Equal(t, 1, text.Index)
			assert.Equal(t, elf.SHT_PROGBITS, text.Type)
			assert.Equal(t, elf.SHF_ALLOC|elf.SHF_EXECINSTR, text.Flags)
			assert.Equal(t, uint64(4), text.Size)

			b, err := f.SectionData(SectionData)
			require.NoError(t, err)
			assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, b)
			assert.Equal(t, uint64(0x1000), f.Section(SectionData).Addr)

			bss := f.Section(SectionBss)
			require.NotNil(t, bss)
			assert.Equal(t, uint64(0x40), bss.Size)
			b, err = f.SectionData(SectionBss)
			require.NoError(t, err)
			assert.Nil(t, b)

			b, err = f.SectionData(".debug_info")
			require.NoError(t, err)
			assert.Nil(t, b)
			assert.Nil(t, f.Section(".debug_info"))

			require.Len(t, f.Symbols, 2, "unnamed symbols are skipped")
			assert.Equal(t, Symbol{
				Name:         "_start",
				Type:         elf.STT_FUNC,
				Bind:         elf.STB_GLOBAL,
				Visibility:   elf.STV_DEFAULT,
				SectionIndex: 1,
			}, f.Symbols[0])
			assert.Equal(t, Symbol{
				Name:         "counter",
				Value:        0x1004,
				Size:         4,
				Type:         elf.STT_OBJECT,
				Bind:         elf.STB_LOCAL,
				Visibility:   elf.STV_HIDDEN,
				SectionIndex: 2,
			}, f.Symbols[1])
		})
	}
}

func TestAddrSize(t *testing.T) {
	f32, err := Parse(sampleImage(elf.ELFCLASS32, binary.BigEndian))
	require.NoError(t, err)
	assert.Equal(t, 4, f32.AddrSize())

	f64, err := Parse(sampleImage(elf.ELFCLASS64, binary.BigEndian))
	require.NoError(t, err)
	assert.Equal(t, 8, f64.AddrSize())
}

func TestDuplicateSectionNames(t *testing.T) {
	b := elftest.New(elf.ELFCLASS32, binary.BigEndian)
	b.AddSection(elftest.Section{Name: ".text", Data: []byte{1}})
	second := b.AddSection(elftest.Section{Name: ".text", Addr: 0x400, Data: []byte{2, 2}})

	f, err := Parse(b.Bytes())
	require.NoError(t, err)
	assert.Len(t, f.Sections, 4)
	assert.Equal(t, second, f.Section(SectionText).Index)
	assert.Equal(t, uint64(0x400), f.Section(SectionText).Addr)
}

func TestNoSymbolTable(t *testing.T) {
	b := elftest.New(elf.ELFCLASS32, binary.BigEndian)
	b.AddSection(elftest.Section{Name: ".text", Data: []byte{0x4e, 0x75}})

	f, err := Parse(b.Bytes())
	require.NoError(t, err)
	assert.Empty(t, f.Symbols)
	assert.Nil(t, f.Section(SectionSymtab))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("\x7fELG"))
	assert.Equal(t, ErrBadMagic, err)

	_, err = Parse([]byte("MZ\x90\x00\x03\x00\x00\x00\x04\x00\x00\x00\xff\xff\x00\x00"))
	assert.Equal(t, ErrBadMagic, err)

	img := sampleImage(elf.ELFCLASS32, binary.BigEndian)

	bad := append([]byte(nil), img...)
	bad[elf.EI_CLASS] = 7
	_, err = Parse(bad)
	assert.True(t, errors.Is(err, ErrInvalidHeader))

	bad = append([]byte(nil), img...)
	bad[elf.EI_DATA] = 0
	_, err = Parse(bad)
	assert.True(t, errors.Is(err, ErrInvalidHeader))

	_, err = Parse(img[:40])
	assert.True(t, errors.Is(err, ErrInvalidHeader))

	// section header table cut off
	_, err = Parse(img[:len(img)-8])
	assert.True(t, errors.Is(err, util.ErrOutOfBounds))
}

func TestOpen(t *testing.T) {
	dir, err := ioutil.TempDir("", "dwarfmap-elf")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "a.out")
	require.NoError(t, ioutil.WriteFile(path, sampleImage(elf.ELFCLASS32, binary.BigEndian), 0644))

	f, err := Open(path)
	require.NoError(t, err)
	assert.NotNil(t, f.Section(SectionText))

	_, err = Open(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
