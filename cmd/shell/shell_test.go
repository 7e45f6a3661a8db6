package shell

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/dwarfmap/internal/elftest"
	"github.com/hitzhangjie/dwarfmap/pkg/symbol"
)

func newTestSession(t *testing.T) (*Session, *bytes.Buffer, string) {
	dir, err := ioutil.TempDir("", "dwarfmap-shell")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	var src strings.Builder
	for i := 1; i <= 12; i++ {
		fmt.Fprintf(&src, "line %d\n", i)
	}
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "main.c"), []byte(src.String()), 0644))

	order := binary.BigEndian
	b := elftest.New(elf.ELFCLASS32, order)
	text := b.AddSection(elftest.Section{Name: ".text", Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Data: make([]byte, 16)})
	lp := elftest.DefaultLineProgram()
	lp.Files = []elftest.File{{Name: "main.c"}}
	lp.Program = elftest.NewOps(order, 4).AdvancePC(4).AdvanceLine(9).Copy().EndSequence().Bytes()
	b.AddSection(elftest.Section{Name: ".debug_line", Data: lp.Bytes(order)})
	b.AddSymbol(elftest.Symbol{Name: "_start", Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC), Shndx: uint16(text)})
	b.AddSymbol(elftest.Symbol{Name: "100", Value: 8, Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_FUNC), Shndx: uint16(text)})

	sm, err := symbol.Analyze(b.Bytes(), []uint64{0, 0x1000}, dir)
	require.NoError(t, err)

	var out bytes.Buffer
	s := NewSession(sm)
	s.SetOutput(&out)
	return s, &out, dir
}

func TestQueries(t *testing.T) {
	s, out, dir := newTestSession(t)
	path := filepath.Join(dir, "main.c")

	for _, tc := range []struct {
		cmd  string
		want string
	}{
		{"addr 0x1004", fmt.Sprintf("$1 = %s:10 <_start+0x4>, .text+0x4\n", path)},
		{"line main.c:10", "$2 = 0x1004\n"},
		{"sym _start", "$3 = 0x1000, length 8\n"},
		{"sym 0x1006", "$4 = _start+0x6\n"},
		{"sym 100", "$5 = 0x1008, length 8\n"},
		{"sym 0x100a", "$6 = 100+0x2\n"},
	} {
		out.Reset()
		require.NoError(t, s.Exec(tc.cmd), tc.cmd)
		assert.Equal(t, tc.want, out.String(), tc.cmd)
	}

	// failed queries do not consume a result number
	out.Reset()
	assert.Error(t, s.Exec("addr 0x9999"))
	assert.Error(t, s.Exec("sym nosuch"))
	require.NoError(t, s.Exec("a 0x1008"))
	assert.Contains(t, out.String(), "$7 = ")
}

func TestInfo(t *testing.T) {
	s, out, dir := newTestSession(t)

	require.NoError(t, s.Exec("info sources"))
	assert.Equal(t, filepath.Join(dir, "main.c")+"\n", out.String())

	out.Reset()
	require.NoError(t, s.Exec("info segments"))
	assert.Contains(t, out.String(), ".text")
	assert.Contains(t, out.String(), "0x00001000-0x00001010")

	out.Reset()
	require.NoError(t, s.Exec("info symbols"))
	assert.Equal(t, "0x00001008 100\n0x00001000 _start\n", out.String())

	assert.Error(t, s.Exec("info registers"))
}

func TestList(t *testing.T) {
	s, out, _ := newTestSession(t)

	require.NoError(t, s.Exec("list main.c:10"))
	assert.Contains(t, out.String(), "=>  \t10\tline 10\n")
	assert.Contains(t, out.String(), "    \t6\tline 6\n")

	out.Reset()
	require.NoError(t, s.Exec("l 0x1004"))
	assert.Contains(t, out.String(), "=>  \t10\tline 10\n")

	assert.Error(t, s.Exec("list other.c:1"))
}

func TestExit(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.Exec("exit"))
	select {
	case <-s.done:
	default:
		t.Fatal("session not stopped")
	}
	// a second stop must not panic
	s.Stop()
}

func TestCompleter(t *testing.T) {
	newTestSession(t)

	assert.Subset(t, completer("li"), []string{"list", "line"})
	assert.Equal(t, []string{"list main.c:"}, completer("list ma"))
	assert.Contains(t, completer("q"), "quit")
}

func TestHelpMessageByGroups(t *testing.T) {
	msg := helpMessageByGroups(shellRootCmd)
	assert.Contains(t, msg, "- [source]")
	assert.Contains(t, msg, "- [symbols]")
	assert.Contains(t, msg, "- [info]")
	assert.Contains(t, msg, "- [other]")
	assert.True(t, strings.Index(msg, "- [source]") < strings.Index(msg, "- [other]"))
}
