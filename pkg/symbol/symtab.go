package symbol

import (
	"debug/elf"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	elffile "github.com/hitzhangjie/dwarfmap/pkg/elf"
)

type symbolAddr struct {
	name    string
	addr    uint64
	section int
}

// SymbolOffset is the result of a nearest symbol lookup.
type SymbolOffset struct {
	Symbol  string
	Address uint64 // final address of the symbol
	Offset  uint64 // distance from the symbol to the looked up address
}

// parseSymbols relocates the ELF symbols. A symbol is kept only when its
// section moved, that is, has a nonzero relocation delta.
func (sm *SourceMap) parseSymbols(f *elffile.File) {
	sm.symbols = map[string]uint64{}
	sm.lengths = map[string]uint64{}

	type candidate struct {
		symbolAddr
		size   uint64
		global bool
	}
	byName := map[string]candidate{}
	var names []string

	for _, sym := range f.Symbols {
		idx := int(sym.SectionIndex)
		if idx >= len(sm.deltas) || sm.deltas[idx] == 0 {
			log.Debugf("symbol %s: section %d is not relocated, dropping", sym.Name, sym.SectionIndex)
			continue
		}

		c := candidate{
			symbolAddr: symbolAddr{name: sym.Name, addr: sym.Value + sm.deltas[idx], section: idx},
			size:       sym.Size,
			global:     sym.Bind == elf.STB_GLOBAL,
		}
		// a global definition takes over a local one of the same name
		if prev, ok := byName[sym.Name]; ok {
			if prev.global || !c.global {
				continue
			}
		} else {
			names = append(names, sym.Name)
		}
		byName[sym.Name] = c
	}

	for _, name := range names {
		c := byName[name]
		sm.symbols[name] = c.addr
		sm.sorted = append(sm.sorted, c.symbolAddr)
	}
	sort.SliceStable(sm.sorted, func(i, j int) bool { return sm.sorted[i].addr < sm.sorted[j].addr })

	for i, sym := range sm.sorted {
		if size := byName[sym.name].size; size != 0 {
			sm.lengths[sym.name] = size
			continue
		}
		sm.lengths[sym.name] = sm.inferLength(i)
	}
}

// inferLength measures a symbol without st_size up to the next symbol of its
// section, or to the end of its segment.
func (sm *SourceMap) inferLength(i int) uint64 {
	sym := sm.sorted[i]
	for _, next := range sm.sorted[i+1:] {
		if next.section == sym.section && next.addr > sym.addr {
			return next.addr - sym.addr
		}
	}
	for _, seg := range sm.segments {
		if seg.SectionIndex == sym.section && seg.Contains(sym.addr) {
			return seg.Address + seg.Size - sym.addr
		}
	}
	return 0
}

// Symbols returns the final address of every relocated symbol.
func (sm *SourceMap) Symbols() map[string]uint64 {
	symbols := make(map[string]uint64, len(sm.symbols))
	for name, addr := range sm.symbols {
		symbols[name] = addr
	}
	return symbols
}

// SymbolLengths returns the size in bytes of every relocated symbol.
func (sm *SourceMap) SymbolLengths() map[string]uint64 {
	lengths := make(map[string]uint64, len(sm.lengths))
	for name, n := range sm.lengths {
		lengths[name] = n
	}
	return lengths
}

// SymbolToPC returns the final address of the symbol name.
func (sm *SourceMap) SymbolToPC(name string) (uint64, error) {
	addr, ok := sm.symbols[name]
	if !ok {
		return 0, errors.Wrapf(ErrNotFound, "symbol %s", name)
	}
	return addr, nil
}

// PCToSymbol returns the nearest symbol at or before pc.
func (sm *SourceMap) PCToSymbol(pc uint64) (SymbolOffset, error) {
	i := sort.Search(len(sm.sorted), func(i int) bool { return sm.sorted[i].addr > pc }) - 1
	if i < 0 {
		return SymbolOffset{}, errors.Wrapf(ErrNotFound, "no symbol before %#x", pc)
	}
	sym := sm.sorted[i]
	return SymbolOffset{Symbol: sym.name, Address: sym.addr, Offset: pc - sym.addr}, nil
}
