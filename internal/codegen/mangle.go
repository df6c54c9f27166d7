package codegen

import (
	"strings"

	"github.com/nimblebasic/nbc/internal/symtab"
)

// SymbolMapper performs deterministic name mangling (spec.md §4.3).
// Grounded on the teacher's frontend.go `Package.QualName`/`QualPtrName`
// (memoized map from source name to mangled name, built lazily on first
// lookup).
type SymbolMapper struct {
	shared map[string]bool
}

// NewSymbolMapper returns a ready-to-use SymbolMapper.
func NewSymbolMapper() *SymbolMapper {
	return &SymbolMapper{shared: make(map[string]bool)}
}

func typeTag(suffix byte) string {
	switch suffix {
	case '%':
		return "_int"
	case '!':
		return "_sng"
	case '#':
		return "_dbl"
	case '$':
		return "_str"
	case '^':
		return "_byt"
	case '@':
		return "_sht"
	case '&':
		return "_lng"
	default:
		return ""
	}
}

func stripTypeSuffixChars(name string) string {
	var sb strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch c {
		case '$', '%', '#', '!', '&', '^', '@':
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// GlobalVar mangles a global variable name: var_BASE[_TYPETAG].
func (m *SymbolMapper) GlobalVar(name string, suffix byte) string {
	base := stripTypeSuffixChars(name)
	return "var_" + strings.ToUpper(base) + typeTag(suffix)
}

// LocalVar mangles a local variable name: %BASE[_TYPETAG].
func (m *SymbolMapper) LocalVar(name string, suffix byte) string {
	base := stripTypeSuffixChars(name)
	return "%" + strings.ToUpper(base) + typeTag(suffix)
}

// Function mangles a FUNCTION name: func_UPPERNAME.
func (m *SymbolMapper) Function(name string) string {
	return "func_" + strings.ToUpper(symtab.StripSuffix(name))
}

// Sub mangles a SUB name: sub_UPPERNAME.
func (m *SymbolMapper) Sub(name string) string {
	return "sub_" + strings.ToUpper(name)
}

// ArrayDescriptor mangles an array descriptor name:
// arr_UPPERBASE[_TYPETAG]_desc, with TYPETAG derived from the last
// character of the original name.
func (m *SymbolMapper) ArrayDescriptor(name string) string {
	suffix := symtab.SuffixOf(name)
	base := stripTypeSuffixChars(name)
	return "arr_" + strings.ToUpper(base) + typeTag(suffix) + "_desc"
}

// ClassMethod mangles CLASSNAME__METHODNAME.
func (m *SymbolMapper) ClassMethod(class, method string) string {
	return strings.ToUpper(class) + "__" + strings.ToUpper(method)
}

// ClassCtor mangles CLASSNAME__CONSTRUCTOR.
func (m *SymbolMapper) ClassCtor(class string) string {
	return strings.ToUpper(class) + "__CONSTRUCTOR"
}

// ClassDtor mangles CLASSNAME__DESTRUCTOR.
func (m *SymbolMapper) ClassDtor(class string) string {
	return strings.ToUpper(class) + "__DESTRUCTOR"
}

// Vtable mangles vtable_CLASSNAME.
func (m *SymbolMapper) Vtable(class string) string {
	return "vtable_" + strings.ToUpper(class)
}

// ClassNameLabel mangles classname_CLASSNAME, the label of the class-name
// string constant stored at vtable offset 16.
func (m *SymbolMapper) ClassNameLabel(class string) string {
	return "classname_" + strings.ToUpper(class)
}

// StrOffsetsLabel mangles str_offsets_TYPE for a UDT/class's MARSHALL
// string-offset table.
func (m *SymbolMapper) StrOffsetsLabel(typeName string) string {
	return "str_offsets_" + strings.ToUpper(typeName)
}

// RegisterShared marks name SHARED in the current function.
func (m *SymbolMapper) RegisterShared(name string) {
	m.shared[strings.ToUpper(symtab.StripSuffix(name))] = true
}

// IsShared reports whether name was declared SHARED in the current
// function.
func (m *SymbolMapper) IsShared(name string) bool {
	return m.shared[strings.ToUpper(symtab.StripSuffix(name))]
}

// ClearShared resets the SHARED set between functions.
func (m *SymbolMapper) ClearShared() {
	m.shared = make(map[string]bool)
}
