package codegen_test

import (
	"strings"
	"testing"

	"github.com/nimblebasic/nbc/internal/codegen"
)

func TestRuntimeLibrary_EmitDeclarationsGroupedAndSorted(t *testing.T) {
	rl := codegen.NewRuntimeLibrary()
	b := codegen.NewBuilder()
	rl.EmitDeclarations(b)
	out := b.String()

	if !strings.Contains(out, "--- io runtime ---") {
		t.Fatalf("expected an io category banner, got:\n%s", out)
	}
	if !strings.Contains(out, "runtime: sqrt(d) -> d") {
		t.Fatalf("expected sqrt's signature comment, got:\n%s", out)
	}
	if !strings.Contains(out, "runtime: basic_print_lock() -> void") {
		t.Fatalf("expected a no-arg/no-return function to print void, got:\n%s", out)
	}

	// io category (appears first in categoryOrder) must be banner-ordered
	// ahead of string, which in turn precedes math.
	ioPos := strings.Index(out, "--- io runtime ---")
	stringPos := strings.Index(out, "--- string runtime ---")
	mathPos := strings.Index(out, "--- math runtime ---")
	if ioPos == -1 || stringPos == -1 || mathPos == -1 {
		t.Fatalf("expected io/string/math banners all present, got:\n%s", out)
	}
	if !(ioPos < stringPos && stringPos < mathPos) {
		t.Fatalf("expected category banners in declared categoryOrder, got io=%d string=%d math=%d", ioPos, stringPos, mathPos)
	}
}

func TestRuntimeLibrary_CallUsesDeclaredReturnType(t *testing.T) {
	rl := codegen.NewRuntimeLibrary()
	b := codegen.NewBuilder()
	b.Label("entry")
	result := rl.Call(b, "sqrt", []codegen.CallArg{{Type: "d", Val: "d_4"}})
	if result == "" {
		t.Fatalf("expected sqrt (non-void) to hand back a usable result temp")
	}
	if !strings.Contains(b.String(), "call $sqrt(d d_4)") {
		t.Fatalf("expected a call to $sqrt with the double arg, got:\n%s", b.String())
	}
}

func TestRuntimeLibrary_CallOnUnknownNameStillEmits(t *testing.T) {
	rl := codegen.NewRuntimeLibrary()
	b := codegen.NewBuilder()
	b.Label("entry")
	// Call must not panic on a name outside the declared table — it simply
	// emits a void call, since codegen only ever passes literal table names.
	rl.Call(b, "totally_unknown_fn", nil)
	if !strings.Contains(b.String(), "totally_unknown_fn") {
		t.Fatalf("expected the call to still be emitted, got:\n%s", b.String())
	}
}

func TestRuntimeLibrary_TypedHelpersDelegateToCall(t *testing.T) {
	rl := codegen.NewRuntimeLibrary()
	b := codegen.NewBuilder()
	b.Label("entry")
	rl.StringConcat(b, "l_a", "l_b")
	if !strings.Contains(b.String(), "$string_concat") {
		t.Fatalf("expected StringConcat to call $string_concat, got:\n%s", b.String())
	}

	b2 := codegen.NewBuilder()
	b2.Label("entry")
	rl.PrintInt(b2, "5")
	if !strings.Contains(b2.String(), "$basic_print_int") {
		t.Fatalf("expected PrintInt to call $basic_print_int, got:\n%s", b2.String())
	}
}
