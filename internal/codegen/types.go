package codegen

import "github.com/nimblebasic/nbc/internal/symtab"

// TypeManager is a pure mapping from semantic base types and type
// descriptors to IL type letters, memory-op suffixes, sizes, and
// alignments (spec.md §4.2). Grounded on the teacher's ir.go TypeInfo
// (Kind/Size/Align/Elem/Fields), repurposed from Go's type kinds to this
// language's numeric-width/descriptor kinds.
type TypeManager struct {
	Table *symtab.Table
}

// NewTypeManager returns a TypeManager bound to the given symbol table (for
// UDT size resolution).
func NewTypeManager(t *symtab.Table) *TypeManager {
	return &TypeManager{Table: t}
}

// ILLetter returns the QBE type letter for a base type ("w","l","s","d";
// pointers and composite handles map to "l").
func (tm *TypeManager) ILLetter(bt symtab.BaseType) string {
	switch bt {
	case symtab.Single:
		return "s"
	case symtab.Double:
		return "d"
	case symtab.Long, symtab.ULong:
		return "l"
	case symtab.String, symtab.Unicode, symtab.Pointer, symtab.Object,
		symtab.ClassInstance, symtab.ArrayDescriptor, symtab.StringDescriptor,
		symtab.UserDefined:
		return "l"
	default:
		return "w"
	}
}

// Size returns the storage size in bytes of a base type. UDT/class names
// recurse through SizeOfUDT.
func (tm *TypeManager) Size(bt symtab.BaseType, udtName string) int {
	switch bt {
	case symtab.Byte, symtab.UByte:
		return 1
	case symtab.Short, symtab.UShort:
		return 2
	case symtab.Integer, symtab.UInteger, symtab.Single, symtab.LoopIndex:
		return 4
	case symtab.Long, symtab.ULong, symtab.Double, symtab.String, symtab.Unicode,
		symtab.Pointer, symtab.Object, symtab.ClassInstance, symtab.ArrayDescriptor,
		symtab.StringDescriptor, symtab.Marshalled:
		return 8
	case symtab.UserDefined:
		return tm.SizeOfUDT(udtName)
	default:
		return 8
	}
}

// Align returns the required alignment for a storage size: 4 for values up
// to 4 bytes, else 8.
func Align(size int) int {
	if size <= 4 {
		return 4
	}
	return 8
}

// LoadMnemonic returns the full QBE load mnemonic for a base type,
// choosing sign/zero extension for sub-word signed/unsigned types.
func (tm *TypeManager) LoadMnemonic(bt symtab.BaseType) string {
	switch bt {
	case symtab.Byte:
		return "loadsb"
	case symtab.UByte:
		return "loadub"
	case symtab.Short:
		return "loadsh"
	case symtab.UShort:
		return "loaduh"
	case symtab.Integer, symtab.UInteger, symtab.LoopIndex:
		return "loadw"
	case symtab.Long, symtab.ULong:
		return "loadl"
	case symtab.Single:
		return "loads"
	case symtab.Double:
		return "loadd"
	default:
		return "loadl"
	}
}

// StoreSuffix returns the QBE store-type letter for a base type.
func (tm *TypeManager) StoreSuffix(bt symtab.BaseType) string {
	switch bt {
	case symtab.Byte, symtab.UByte:
		return "b"
	case symtab.Short, symtab.UShort:
		return "h"
	case symtab.Integer, symtab.UInteger, symtab.LoopIndex:
		return "w"
	case symtab.Long, symtab.ULong:
		return "l"
	case symtab.Single:
		return "s"
	case symtab.Double:
		return "d"
	default:
		return "l"
	}
}

// ParamType widens small integer base types to "w" (QBE has no sub-word
// parameter types); everything else maps through ILLetter.
func (tm *TypeManager) ParamType(bt symtab.BaseType) string {
	switch bt {
	case symtab.Byte, symtab.UByte, symtab.Short, symtab.UShort:
		return "w"
	default:
		return tm.ILLetter(bt)
	}
}

// SizeOfUDT recursively computes a UDT's size, with a floor of 8 bytes for
// unknown/empty fields (spec.md §4.2).
func (tm *TypeManager) SizeOfUDT(name string) int {
	if tm.Table == nil {
		return 8
	}
	ud, ok := tm.Table.Types[name]
	if !ok || len(ud.Fields) == 0 {
		return 8
	}
	last := ud.Fields[len(ud.Fields)-1]
	size := last.Offset + tm.fieldSize(last.Type)
	if size < 8 {
		size = 8
	}
	return size
}

func (tm *TypeManager) fieldSize(td symtab.TypeDescriptor) int {
	if td.Base == symtab.UserDefined {
		return tm.SizeOfUDT(td.TypeName)
	}
	return tm.Size(td.Base, td.TypeName)
}

// IsUDTSIMDEligible reports whether a UDT qualifies for NEON-accelerated
// whole-value arithmetic, per DESIGN.md Open Question Decision #2. The
// classification is computed by the semantic pass (symtab.SIMDInfo) and
// trusted verbatim.
func (tm *TypeManager) IsUDTSIMDEligible(name string) (symtab.SIMDInfo, bool) {
	if tm.Table == nil {
		return symtab.SIMDInfo{}, false
	}
	ud, ok := tm.Table.Types[name]
	if !ok {
		return symtab.SIMDInfo{}, false
	}
	return ud.SIMD, ud.SIMD.Eligible
}
