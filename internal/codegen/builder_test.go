package codegen_test

import (
	"strings"
	"testing"

	"github.com/nimblebasic/nbc/internal/codegen"
)

func TestBuilder_TempAndLabelCountersAreMonotonic(t *testing.T) {
	b := codegen.NewBuilder()
	t0 := b.NewTemp()
	t1 := b.NewTemp()
	if t0 == t1 {
		t.Fatalf("expected distinct temps, got %q twice", t0)
	}
	if t0 != "%t.0" || t1 != "%t.1" {
		t.Fatalf("unexpected temp names: %q, %q", t0, t1)
	}
	if got := b.NewLabelName(); got != "id_0" {
		t.Fatalf("expected id_0, got %q", got)
	}
	if got := b.NewLabelName(); got != "id_1" {
		t.Fatalf("expected id_1, got %q", got)
	}
}

func TestBuilder_TerminationGateDropsSubsequentInstructions(t *testing.T) {
	b := codegen.NewBuilder()
	b.Label("entry")
	if b.Terminated() {
		t.Fatalf("fresh label must not be terminated")
	}
	b.Jump("exit")
	if !b.Terminated() {
		t.Fatalf("expected block to be terminated after Jump")
	}
	before := b.String()
	// A second terminator after the block already closed must be dropped.
	b.Jump("somewhere_else")
	b.Ret("0")
	if b.String() != before {
		t.Fatalf("instructions after a terminator must be silently dropped:\nbefore=%q\nafter=%q", before, b.String())
	}
	// A fresh label reopens the block.
	b.Label("exit")
	if b.Terminated() {
		t.Fatalf("a fresh label must reopen the block")
	}
	b.Ret("0")
	if !b.Terminated() {
		t.Fatalf("expected Ret to terminate the reopened block")
	}
}

func TestBuilder_CallDirectDuringTerminatedBlockIsNoOp(t *testing.T) {
	b := codegen.NewBuilder()
	b.Label("entry")
	b.Jump("exit")
	before := b.String()
	result := b.CallDirect("w", "some_func", nil)
	if b.String() != before {
		t.Fatalf("CallDirect must not append instructions once terminated")
	}
	if result == "" {
		t.Fatalf("CallDirect with a non-empty result type must still hand back a usable temp")
	}
}

func TestBuilder_StringPoolIsIdempotentAndOrdered(t *testing.T) {
	b := codegen.NewBuilder()
	l1 := b.RegisterString("hello")
	l2 := b.RegisterString("world")
	l3 := b.RegisterString("hello") // duplicate
	if l1 != l3 {
		t.Fatalf("expected identical label for duplicate string, got %q vs %q", l1, l3)
	}
	if l1 == l2 {
		t.Fatalf("expected distinct labels for distinct strings")
	}
	if !b.HasString("hello") || !b.HasString("world") {
		t.Fatalf("expected both strings registered")
	}
	if _, ok := b.GetStringLabel("missing"); ok {
		t.Fatalf("expected GetStringLabel to report false for unregistered value")
	}

	b.EmitStringPool()
	out := b.String()
	if strings.Count(out, "data $"+l1+" =") != 1 {
		t.Fatalf("expected string %q emitted exactly once, got:\n%s", l1, out)
	}
	if strings.Count(out, "data $"+l2+" =") != 1 {
		t.Fatalf("expected string %q emitted exactly once, got:\n%s", l2, out)
	}

	// A second pool flush (late pool) must not re-emit already-flushed labels.
	before := b.String()
	b.EmitLateStringPool()
	if b.String() != before {
		t.Fatalf("EmitLateStringPool must not re-emit already-flushed strings")
	}

	// A string interned after the first flush is only picked up by the late pool.
	l4 := b.RegisterString("late")
	b.EmitLateStringPool()
	out = b.String()
	if strings.Count(out, "data $"+l4+" =") != 1 {
		t.Fatalf("expected late-interned string emitted exactly once by the late pool, got:\n%s", out)
	}
}

func TestBuilder_StringEscaping(t *testing.T) {
	b := codegen.NewBuilder()
	b.GlobalString("s", "a\nb\tc\\d\"e\x01")
	out := b.String()
	want := `data $s = { b "a\nb\tc\\d\"e\x01", b 0 }` + "\n"
	if out != want {
		t.Fatalf("escaping mismatch:\n got: %q\nwant: %q", out, want)
	}
}

func TestBuilder_CompareOrderedUsesSignedPrefix(t *testing.T) {
	b := codegen.NewBuilder()
	b.Label("entry")
	cmp := b.Compare("lt", "w", false)
	cmp("a", "b")
	if !strings.Contains(b.String(), "csltw") {
		t.Fatalf("ordered integer comparison must use the cs-prefixed mnemonic, got:\n%s", b.String())
	}
}

func TestBuilder_CompareEqualityHasNoSignedPrefix(t *testing.T) {
	b := codegen.NewBuilder()
	b.Label("entry")
	cmp := b.Compare("eq", "w", false)
	cmp("a", "b")
	if strings.Contains(b.String(), "cseq") {
		t.Fatalf("equality comparison must not get a signed prefix, got:\n%s", b.String())
	}
	if !strings.Contains(b.String(), "ceqw") {
		t.Fatalf("expected ceqw, got:\n%s", b.String())
	}
}

func TestBuilder_CompareFloatNeverGetsSignedPrefix(t *testing.T) {
	b := codegen.NewBuilder()
	b.Label("entry")
	cmp := b.Compare("lt", "d", true)
	cmp("a", "b")
	if !strings.Contains(b.String(), "cltd") {
		t.Fatalf("float ordered comparison must use plain c-prefix, got:\n%s", b.String())
	}
	if strings.Contains(b.String(), "csltd") {
		t.Fatalf("float comparison must never get the signed-integer cs prefix, got:\n%s", b.String())
	}
}

func TestBuilder_AllocChoosesAlignmentFromSize(t *testing.T) {
	b := codegen.NewBuilder()
	b.Label("entry")
	b.Alloc(4, 0)
	b.Alloc(8, 0)
	b.Alloc(64, 0)
	out := b.String()
	if !strings.Contains(out, "alloc4") {
		t.Fatalf("expected alloc4 for a 4-byte slot, got:\n%s", out)
	}
	if !strings.Contains(out, "alloc8") {
		t.Fatalf("expected alloc8 for an 8-byte slot, got:\n%s", out)
	}
}

func TestBuilder_ResetClearsAllState(t *testing.T) {
	b := codegen.NewBuilder()
	b.Label("entry")
	b.RegisterString("x")
	b.NewTemp()
	b.Jump("done")
	b.Reset()
	if b.String() != "" {
		t.Fatalf("expected empty buffer after Reset, got %q", b.String())
	}
	if b.Terminated() {
		t.Fatalf("expected fresh (non-terminated) state after Reset")
	}
	if got := b.NewTemp(); got != "%t.0" {
		t.Fatalf("expected counters to restart from 0 after Reset, got %q", got)
	}
	if b.HasString("x") {
		t.Fatalf("expected string pool cleared after Reset")
	}
}

func TestBuilder_DoubleEmitIsByteIdentical(t *testing.T) {
	run := func() string {
		b := codegen.NewBuilder()
		b.RegisterString("hi")
		b.FuncHeader(true, "w", "main", nil)
		b.Label("start")
		t0 := b.Binary("w", "add", "1", "2")
		b.Ret(t0)
		b.FuncClose()
		b.EmitStringPool()
		return b.String()
	}
	a, c := run(), run()
	if a != c {
		t.Fatalf("expected byte-identical output across independent Builder instances:\n%q\n%q", a, c)
	}
}
