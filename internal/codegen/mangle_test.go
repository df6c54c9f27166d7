package codegen_test

import (
	"testing"

	"github.com/nimblebasic/nbc/internal/codegen"
	"github.com/nimblebasic/nbc/internal/symtab"
)

func TestSymbolMapper_GlobalVar(t *testing.T) {
	m := codegen.NewSymbolMapper()
	if got := m.GlobalVar("X", 0); got != "var_X" {
		t.Errorf("GlobalVar(X, 0) = %q, want var_X", got)
	}
	if got := m.GlobalVar("X%", '%'); got != "var_X_int" {
		t.Errorf("GlobalVar(X%%, '%%') = %q, want var_X_int", got)
	}
	if got := m.GlobalVar("NAME$", '$'); got != "var_NAME_str" {
		t.Errorf("GlobalVar(NAME$, '$') = %q, want var_NAME_str", got)
	}
	if got := m.GlobalVar("total", 0); got != "var_TOTAL" {
		t.Errorf("GlobalVar(total, 0) = %q, want var_TOTAL (uppercased)", got)
	}
}

func TestSymbolMapper_GlobalVarAndSuffixOfAgreeOnUnsuffixedName(t *testing.T) {
	// Regression test for the mangling bug: a variable declared with an AS
	// clause and no trailing suffix character (DIM X AS INTEGER) must mangle
	// identically whether the caller derives the suffix from the variable's
	// own spelling (the correct, universal convention) or passes 0 directly.
	// Passing suffixForBase's old Integer-derived '%' would have produced
	// var_X_int here, disagreeing with every load/store site.
	m := codegen.NewSymbolMapper()
	declared := m.GlobalVar("X", 0)
	referenced := m.GlobalVar("X", symtab.SuffixOf("X"))
	if declared != referenced {
		t.Fatalf("declaration %q and reference %q must match", declared, referenced)
	}
	if declared != "var_X" {
		t.Fatalf("expected var_X for a suffixless AS-typed global, got %q", declared)
	}
}

func TestSymbolMapper_LocalVar(t *testing.T) {
	m := codegen.NewSymbolMapper()
	if got := m.LocalVar("count", 0); got != "%COUNT" {
		t.Errorf("LocalVar(count, 0) = %q, want %%COUNT", got)
	}
	if got := m.LocalVar("count#", '#'); got != "%COUNT_dbl" {
		t.Errorf("LocalVar(count#, '#') = %q, want %%COUNT_dbl", got)
	}
}

func TestSymbolMapper_FunctionAndSub(t *testing.T) {
	m := codegen.NewSymbolMapper()
	if got := m.Function("Area#"); got != "func_AREA" {
		t.Errorf("Function(Area#) = %q, want func_AREA (suffix stripped)", got)
	}
	if got := m.Sub("DrawBox"); got != "sub_DRAWBOX" {
		t.Errorf("Sub(DrawBox) = %q, want sub_DRAWBOX", got)
	}
}

func TestSymbolMapper_ArrayDescriptor(t *testing.T) {
	m := codegen.NewSymbolMapper()
	if got := m.ArrayDescriptor("scores%"); got != "arr_SCORES_int_desc" {
		t.Errorf("ArrayDescriptor(scores%%) = %q, want arr_SCORES_int_desc", got)
	}
	if got := m.ArrayDescriptor("names$"); got != "arr_NAMES_str_desc" {
		t.Errorf("ArrayDescriptor(names$) = %q, want arr_NAMES_str_desc", got)
	}
}

func TestSymbolMapper_ClassMangling(t *testing.T) {
	m := codegen.NewSymbolMapper()
	if got := m.ClassMethod("shape", "area"); got != "SHAPE__AREA" {
		t.Errorf("ClassMethod = %q, want SHAPE__AREA", got)
	}
	if got := m.ClassCtor("Shape"); got != "SHAPE__CONSTRUCTOR" {
		t.Errorf("ClassCtor = %q, want SHAPE__CONSTRUCTOR", got)
	}
	if got := m.ClassDtor("Shape"); got != "SHAPE__DESTRUCTOR" {
		t.Errorf("ClassDtor = %q, want SHAPE__DESTRUCTOR", got)
	}
	if got := m.Vtable("Shape"); got != "vtable_SHAPE" {
		t.Errorf("Vtable = %q, want vtable_SHAPE", got)
	}
	if got := m.ClassNameLabel("Shape"); got != "classname_SHAPE" {
		t.Errorf("ClassNameLabel = %q, want classname_SHAPE", got)
	}
	if got := m.StrOffsetsLabel("Shape"); got != "str_offsets_SHAPE" {
		t.Errorf("StrOffsetsLabel = %q, want str_offsets_SHAPE", got)
	}
}

func TestSymbolMapper_SharedSetTracking(t *testing.T) {
	m := codegen.NewSymbolMapper()
	if m.IsShared("counter") {
		t.Fatalf("expected counter to not be shared before registration")
	}
	m.RegisterShared("Counter%")
	if !m.IsShared("counter") {
		t.Fatalf("expected counter to be shared regardless of case/suffix")
	}
	if !m.IsShared("COUNTER&") {
		t.Fatalf("expected shared lookup to ignore suffix char too")
	}
	m.ClearShared()
	if m.IsShared("counter") {
		t.Fatalf("expected ClearShared to reset the shared set")
	}
}
