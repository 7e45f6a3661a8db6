package symbol

import (
	"debug/elf"
	"strings"

	log "github.com/sirupsen/logrus"

	elffile "github.com/hitzhangjie/dwarfmap/pkg/elf"
)

// MemoryClass is the kind of target memory a segment asks for, encoded by
// linkers for the Amiga as a section name suffix.
type MemoryClass string

const (
	MemoryAny  MemoryClass = "ANY"
	MemoryChip MemoryClass = "CHIP"
	MemoryFast MemoryClass = "FAST"
)

var memorySuffixes = []struct {
	suffix string
	class  MemoryClass
}{
	{".MEMF_CHIP", MemoryChip},
	{".MEMF_FAST", MemoryFast},
	{".MEMF_ANY", MemoryAny},
}

// sections kept even when linked at address 0
var canonicalSections = map[string]bool{
	elffile.SectionText:   true,
	elffile.SectionData:   true,
	elffile.SectionBss:    true,
	elffile.SectionRodata: true,
}

// Segment is a section placed in target memory.
type Segment struct {
	Name          string // section name without the memory class suffix
	SectionName   string
	SectionIndex  int
	MemoryClass   MemoryClass
	Address       uint64 // final load address
	StaticAddress uint64 // address in the section header
	LoadOffset    uint64 // added to line program addresses, 0 when not relocated
	Size          uint64
	Exec          bool
}

// Contains reports whether the final address addr lies in the segment.
func (s *Segment) Contains(addr uint64) bool {
	return addr >= s.Address && addr-s.Address < s.Size
}

func (s *Segment) containsStatic(addr uint64) bool {
	return addr >= s.StaticAddress && addr-s.StaticAddress < s.Size
}

// containsRow reports whether pc is the final address of a line program row
// owned by the segment.
func (s *Segment) containsRow(pc uint64) bool {
	return pc >= s.LoadOffset && s.containsStatic(pc-s.LoadOffset)
}

// stripMemoryClass splits a section name into its base name and memory class.
func stripMemoryClass(name string) (string, MemoryClass) {
	for _, m := range memorySuffixes {
		if strings.HasSuffix(name, m.suffix) {
			return strings.TrimSuffix(name, m.suffix), m.class
		}
	}
	return name, MemoryAny
}

// isSegment reports whether a section occupies target memory: it must be
// non-empty and either placed at a nonzero address or be one of the
// canonical code and data sections. The canonical names match the section
// name as written, memory class suffix included.
func isSegment(sh *elffile.SectionHeader) bool {
	if sh.Size == 0 {
		return false
	}
	return sh.Addr != 0 || canonicalSections[sh.Name]
}

// buildSegments derives the segments of f and the relocation delta of every
// section. offsets is index aligned with the section header table; sections
// without an offset stay at their static address.
func buildSegments(f *elffile.File, offsets []uint64) (segments []Segment, deltas []uint64) {
	if len(offsets) > len(f.Sections) {
		log.Debugf("%d load offsets for %d sections, ignoring the rest", len(offsets), len(f.Sections))
	}

	deltas = make([]uint64, len(f.Sections))
	for i, sh := range f.Sections {
		if !isSegment(sh) {
			continue
		}

		offset, loadOffset := sh.Addr, uint64(0)
		if i < len(offsets) {
			offset, loadOffset = offsets[i], offsets[i]
		} else {
			log.Debugf("no load offset for section %d %s, using static address %#x", i, sh.Name, sh.Addr)
		}

		name, class := stripMemoryClass(sh.Name)
		segments = append(segments, Segment{
			Name:          name,
			SectionName:   sh.Name,
			SectionIndex:  i,
			MemoryClass:   class,
			Address:       offset,
			StaticAddress: sh.Addr,
			LoadOffset:    loadOffset,
			Size:          sh.Size,
			Exec:          sh.Flags&elf.SHF_EXECINSTR != 0,
		})
		deltas[i] = offset - sh.Addr
	}
	return segments, deltas
}
