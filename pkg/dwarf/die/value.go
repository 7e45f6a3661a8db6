package die

import (
	"fmt"

	"github.com/hitzhangjie/dwarfmap/pkg/dwarf/abbrev"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindAddress Kind = iota + 1
	KindUInt
	KindInt
	KindString
	KindFlag
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindAddress:
		return "address"
	case KindUInt:
		return "uint"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindFlag:
		return "flag"
	case KindBytes:
		return "bytes"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is a decoded attribute value. Only the field selected by Kind is
// meaningful: U for KindAddress and KindUInt, I for KindInt, S for
// KindString, F for KindFlag and B for KindBytes.
type Value struct {
	Kind Kind
	U    uint64
	I    int64
	S    string
	F    bool
	B    []byte
}

func (v Value) String() string {
	switch v.Kind {
	case KindAddress:
		return fmt.Sprintf("%#x", v.U)
	case KindUInt:
		return fmt.Sprintf("%d", v.U)
	case KindInt:
		return fmt.Sprintf("%d", v.I)
	case KindString:
		return fmt.Sprintf("%q", v.S)
	case KindFlag:
		return fmt.Sprintf("%v", v.F)
	case KindBytes:
		return fmt.Sprintf("% x", v.B)
	}
	return "<none>"
}

// KindOf returns the value variant a form decodes to. Forms this package
// does not know are skipped and decode to KindUInt with value 0.
func KindOf(form abbrev.Form) Kind {
	switch form {
	case abbrev.FormAddr:
		return KindAddress
	case abbrev.FormString:
		return KindString
	case abbrev.FormFlag, abbrev.FormFlagPresent:
		return KindFlag
	case abbrev.FormSdata:
		return KindInt
	case abbrev.FormBlock1, abbrev.FormBlock2, abbrev.FormBlock4, abbrev.FormBlock, abbrev.FormExprloc:
		return KindBytes
	}
	return KindUInt
}
