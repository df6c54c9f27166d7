package symtab_test

import (
	"testing"

	"github.com/nimblebasic/nbc/internal/symtab"
)

func TestTable_LookupVariable_ScopedBeforeGlobal(t *testing.T) {
	tab := symtab.NewTable()
	tab.Variables["COUNT"] = &symtab.VariableSymbol{Name: "COUNT", Base: symtab.Integer, IsGlobal: true}
	tab.Variables["MAIN.COUNT"] = &symtab.VariableSymbol{Name: "COUNT", Base: symtab.Double, Scope: "MAIN"}

	v, ok := tab.LookupVariable("MAIN", "COUNT")
	if !ok {
		t.Fatalf("expected lookup to succeed")
	}
	if v.Base != symtab.Double {
		t.Fatalf("expected the function-scoped variable to shadow the global, got Base=%v", v.Base)
	}

	v2, ok := tab.LookupVariable("OTHERFUNC", "COUNT")
	if !ok || v2.Base != symtab.Integer {
		t.Fatalf("expected the global to resolve from an unrelated function scope, got %+v ok=%v", v2, ok)
	}
}

func TestTable_LookupVariable_StripsSuffixBeforeSuffixedKey(t *testing.T) {
	tab := symtab.NewTable()
	tab.Variables["NAME"] = &symtab.VariableSymbol{Name: "NAME", Base: symtab.String, IsGlobal: true}

	// NAME$ must resolve via stripSuffix to the "NAME" entry.
	v, ok := tab.LookupVariable("", "NAME$")
	if !ok || v.Base != symtab.String {
		t.Fatalf("expected suffix-stripped lookup to find NAME, got %+v ok=%v", v, ok)
	}
}

func TestTable_LookupVariable_Miss(t *testing.T) {
	tab := symtab.NewTable()
	if _, ok := tab.LookupVariable("MAIN", "NOPE"); ok {
		t.Fatalf("expected lookup miss for an undeclared variable")
	}
}

func TestSuffixOf(t *testing.T) {
	cases := map[string]byte{
		"X":     0,
		"X%":    '%',
		"NAME$": '$',
		"V#":    '#',
		"":      0,
	}
	for name, want := range cases {
		if got := symtab.SuffixOf(name); got != want {
			t.Errorf("SuffixOf(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestStripSuffix(t *testing.T) {
	if got := symtab.StripSuffix("NAME$"); got != "NAME" {
		t.Errorf("StripSuffix(NAME$) = %q, want NAME", got)
	}
	if got := symtab.StripSuffix("X"); got != "X" {
		t.Errorf("StripSuffix(X) = %q, want X (unchanged)", got)
	}
}
