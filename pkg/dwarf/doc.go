// Package dwarf loads the DWARF sections of an ELF image and decodes them.
// With the help of this package, we can load the DIE tree of every
// compilation unit and the line number programs that map addresses to
// source lines.
//
// The decoders live in the sub packages:
//   - util: fixed width, LEB128 and string reads
//   - abbrev: .debug_abbrev tables
//   - die: .debug_info entries
//   - line: .debug_line programs and their state machine
package dwarf
