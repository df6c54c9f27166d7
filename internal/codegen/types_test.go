package codegen_test

import (
	"testing"

	"github.com/nimblebasic/nbc/internal/codegen"
	"github.com/nimblebasic/nbc/internal/symtab"
)

func TestTypeManager_ILLetterMapping(t *testing.T) {
	tm := codegen.NewTypeManager(symtab.NewTable())
	cases := []struct {
		bt   symtab.BaseType
		want string
	}{
		{symtab.Integer, "w"},
		{symtab.UInteger, "w"},
		{symtab.Byte, "w"},
		{symtab.Long, "l"},
		{symtab.ULong, "l"},
		{symtab.Single, "s"},
		{symtab.Double, "d"},
		{symtab.String, "l"},
		{symtab.Pointer, "l"},
		{symtab.ClassInstance, "l"},
		{symtab.UserDefined, "l"},
	}
	for _, c := range cases {
		if got := tm.ILLetter(c.bt); got != c.want {
			t.Errorf("ILLetter(%v) = %q, want %q", c.bt, got, c.want)
		}
	}
}

func TestTypeManager_LoadMnemonicSignExtension(t *testing.T) {
	tm := codegen.NewTypeManager(symtab.NewTable())
	if got := tm.LoadMnemonic(symtab.Byte); got != "loadsb" {
		t.Errorf("BYTE load = %q, want loadsb", got)
	}
	if got := tm.LoadMnemonic(symtab.UByte); got != "loadub" {
		t.Errorf("UBYTE load = %q, want loadub", got)
	}
	if got := tm.LoadMnemonic(symtab.Short); got != "loadsh" {
		t.Errorf("SHORT load = %q, want loadsh", got)
	}
	if got := tm.LoadMnemonic(symtab.UShort); got != "loaduh" {
		t.Errorf("USHORT load = %q, want loaduh", got)
	}
}

func TestTypeManager_ParamTypeWidensSmallInts(t *testing.T) {
	tm := codegen.NewTypeManager(symtab.NewTable())
	for _, bt := range []symtab.BaseType{symtab.Byte, symtab.UByte, symtab.Short, symtab.UShort} {
		if got := tm.ParamType(bt); got != "w" {
			t.Errorf("ParamType(%v) = %q, want w (widened)", bt, got)
		}
	}
	if got := tm.ParamType(symtab.Double); got != "d" {
		t.Errorf("ParamType(DOUBLE) = %q, want d", got)
	}
}

func TestTypeManager_SizeOfUDT_Basic(t *testing.T) {
	tab := symtab.NewTable()
	tab.Types["POINT"] = &symtab.UDTSymbol{
		Name: "POINT",
		Fields: []symtab.UDTField{
			{Name: "X", Type: symtab.TypeDescriptor{Base: symtab.Integer}, Offset: 0},
			{Name: "Y", Type: symtab.TypeDescriptor{Base: symtab.Integer}, Offset: 4},
		},
	}
	tm := codegen.NewTypeManager(tab)
	// last field offset 4 + size 4 = 8, already at the floor.
	if got := tm.SizeOfUDT("POINT"); got != 8 {
		t.Errorf("SizeOfUDT(POINT) = %d, want 8", got)
	}
}

func TestTypeManager_SizeOfUDT_RecursesIntoNestedUDT(t *testing.T) {
	tab := symtab.NewTable()
	tab.Types["VEC3"] = &symtab.UDTSymbol{
		Name: "VEC3",
		Fields: []symtab.UDTField{
			{Name: "X", Type: symtab.TypeDescriptor{Base: symtab.Double}, Offset: 0},
			{Name: "Y", Type: symtab.TypeDescriptor{Base: symtab.Double}, Offset: 8},
			{Name: "Z", Type: symtab.TypeDescriptor{Base: symtab.Double}, Offset: 16},
		},
	}
	tab.Types["LINE"] = &symtab.UDTSymbol{
		Name: "LINE",
		Fields: []symtab.UDTField{
			{Name: "START", Type: symtab.TypeDescriptor{Base: symtab.UserDefined, TypeName: "VEC3"}, Offset: 0},
			{Name: "END", Type: symtab.TypeDescriptor{Base: symtab.UserDefined, TypeName: "VEC3"}, Offset: 24},
		},
	}
	tm := codegen.NewTypeManager(tab)
	if got := tm.SizeOfUDT("VEC3"); got != 24 {
		t.Errorf("SizeOfUDT(VEC3) = %d, want 24", got)
	}
	if got := tm.SizeOfUDT("LINE"); got != 48 {
		t.Errorf("SizeOfUDT(LINE) = %d, want 48", got)
	}
}

func TestTypeManager_SizeOfUDT_UnknownTypeFloorsAtEight(t *testing.T) {
	tm := codegen.NewTypeManager(symtab.NewTable())
	if got := tm.SizeOfUDT("NOPE"); got != 8 {
		t.Errorf("SizeOfUDT(unknown) = %d, want floor of 8", got)
	}
}

func TestTypeManager_NeonEligibility(t *testing.T) {
	tab := symtab.NewTable()
	tab.Types["VEC2D"] = &symtab.UDTSymbol{
		Name: "VEC2D",
		SIMD: symtab.SIMDInfo{Eligible: true, Lanes: 2, LaneWidth: 8},
	}
	tab.Types["PLAIN"] = &symtab.UDTSymbol{Name: "PLAIN"}
	tm := codegen.NewTypeManager(tab)

	info, ok := tm.IsUDTSIMDEligible("VEC2D")
	if !ok || info.Lanes != 2 {
		t.Fatalf("expected VEC2D to be NEON-eligible with 2 lanes, got %+v ok=%v", info, ok)
	}
	if _, ok := tm.IsUDTSIMDEligible("PLAIN"); ok {
		t.Fatalf("expected PLAIN to not be NEON-eligible")
	}
	if _, ok := tm.IsUDTSIMDEligible("MISSING"); ok {
		t.Fatalf("expected unknown type to not be NEON-eligible")
	}
}

func TestAlign(t *testing.T) {
	cases := []struct {
		size int
		want int
	}{{1, 4}, {4, 4}, {5, 8}, {8, 8}, {64, 8}}
	for _, c := range cases {
		if got := codegen.Align(c.size); got != c.want {
			t.Errorf("Align(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestAsTypeNameToBase(t *testing.T) {
	if got := symtab.AsTypeNameToBase("INTEGER", nil, nil); got != symtab.Integer {
		t.Errorf("INTEGER -> %v, want Integer", got)
	}
	if got := symtab.AsTypeNameToBase("LIST", nil, nil); got != symtab.Pointer {
		t.Errorf("LIST -> %v, want Pointer", got)
	}
	classes := map[string]bool{"SHAPE": true}
	if got := symtab.AsTypeNameToBase("Shape", nil, classes); got != symtab.UserDefined {
		t.Errorf("case-sensitive class lookup miss should fall back to UserDefined, got %v", got)
	}
	if got := symtab.AsTypeNameToBase("SHAPE", nil, classes); got != symtab.ClassInstance {
		t.Errorf("SHAPE -> %v, want ClassInstance", got)
	}
	if got := symtab.AsTypeNameToBase("POINT", nil, nil); got != symtab.UserDefined {
		t.Errorf("unknown UDT name -> %v, want UserDefined", got)
	}
}
