package cmd

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/dwarfmap/internal/elftest"
)

func TestParseOffsets(t *testing.T) {
	tests := []struct {
		name    string
		vals    []string
		want    []uint64
		wantErr bool
	}{
		{"empty", nil, nil, false},
		{"separate", []string{"0", "0x1000", "4096"}, []uint64{0, 0x1000, 4096}, false},
		{"comma separated", []string{"0, 0x1000,,0x2000"}, []uint64{0, 0x1000, 0x2000}, false},
		{"invalid", []string{"0x10", "zz"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOffsets(tt.vals)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookup(t *testing.T) {
	order := binary.LittleEndian
	b := elftest.New(elf.ELFCLASS64, order)
	text := b.AddSection(elftest.Section{Name: ".text", Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Data: make([]byte, 16)})
	lp := elftest.DefaultLineProgram()
	lp.Files = []elftest.File{{Name: "main.c"}}
	lp.Program = elftest.NewOps(order, 8).AdvancePC(4).AdvanceLine(9).Copy().EndSequence().Bytes()
	b.AddSection(elftest.Section{Name: ".debug_line", Data: lp.Bytes(order)})
	b.AddSymbol(elftest.Symbol{Name: "_start", Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC), Shndx: uint16(text)})

	dir, err := ioutil.TempDir("", "dwarfmap-cmd")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	prog := filepath.Join(dir, "a.out")
	require.NoError(t, ioutil.WriteFile(prog, b.Bytes(), 0644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"lookup", "--config", filepath.Join(dir, "none.yaml"),
		"--offsets", "0,0x1000", "--basedir", "/work", prog, "0x1004", "0x5000"})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, "0x1004: _start+0x4 /work/main.c:10\n0x5000: _start+0x4000 ??:0\n", out.String())
}
