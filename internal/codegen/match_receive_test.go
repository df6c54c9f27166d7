package codegen_test

import (
	"strings"
	"testing"

	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/codegen"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// matchReceiveCFG builds a MATCH RECEIVE whose single arm is armBody's
// statement, shaped: a BlockCaseTest holding the MatchReceiveStmt, an
// EdgeCaseMatch body block running armBody, an EdgeCaseNext merge block,
// and a final exit block.
func matchReceiveCFG(st *ast.MatchReceiveStmt, armBody []ast.Stmt) *symtab.CFG {
	return &symtab.CFG{
		Blocks: []*symtab.Block{
			{
				Index: 0,
				Kind:  symtab.BlockCaseTest,
				Stmts: []ast.Stmt{st},
				Succs: []symtab.Edge{
					{Kind: symtab.EdgeCaseMatch, To: 1},
					{Kind: symtab.EdgeCaseNext, To: 2},
				},
			},
			{
				Index: 1,
				Kind:  symtab.BlockNormal,
				Stmts: armBody,
				Succs: []symtab.Edge{{Kind: symtab.EdgeFallthrough, To: 2}},
			},
			{
				Index: 2,
				Kind:  symtab.BlockMerge,
				Succs: []symtab.Edge{{Kind: symtab.EdgeFallthrough, To: 3}},
			},
			{Index: 3, Kind: symtab.BlockExit},
		},
	}
}

func handleTable() *symtab.Table {
	tab := symtab.NewTable()
	tab.Variables["H"] = &symtab.VariableSymbol{Name: "H", Base: symtab.Double, IsGlobal: true}
	return tab
}

// TestGenerate_MatchReceiveForwardArmSendsForwardCall is a regression test
// for the dead e.activeForward bug: a SEND of a forward arm's bound
// variable back out on the handle it arrived on must take the zero-copy
// msg_blob_forward path, not the generic marshal-and-push path, and must
// null the tracked blob slot so the merge block's cleanup becomes a no-op.
func TestGenerate_MatchReceiveForwardArmSendsForwardCall(t *testing.T) {
	st := &ast.MatchReceiveStmt{
		Handle: &ast.VarRef{Name: "H"},
		Arms:   []ast.MatchArm{{TypeTag: "MSG", BindVar: "M", IsForward: true}},
	}
	armBody := []ast.Stmt{
		&ast.SendStmt{Handle: &ast.VarRef{Name: "H"}, Value: &ast.VarRef{Name: "M"}},
	}
	prog := symtab.NewProgram(handleTable())
	prog.EntryCFG = matchReceiveCFG(st, armBody)

	result := codegen.Generate(prog, codegen.Options{})
	il := result.IL

	if !strings.Contains(il, "call $msg_blob_forward(") {
		t.Fatalf("expected a forward arm's SEND of its bound variable to call msg_blob_forward, got:\n%s", il)
	}
	if strings.Contains(il, "call $msg_send_udt(") || strings.Contains(il, "call $msg_send_class(") {
		t.Fatalf("did not expect the generic marshal-and-send path for a zero-copy forward, got:\n%s", il)
	}
	if strings.Count(il, "call $msg_blob_free(") != 1 {
		t.Fatalf("expected exactly one msg_blob_free at the merge block, got:\n%s", il)
	}
}

// TestGenerate_MatchReceiveScalarArmReadsInlineSlot is a regression test
// for the generic-bind bug: a scalar-typed arm must read the blob's inline
// value slot at offset 16, not bit-punn the offset-8 payload pointer.
func TestGenerate_MatchReceiveScalarArmReadsInlineSlot(t *testing.T) {
	tab := handleTable()
	tab.Variables["N"] = &symtab.VariableSymbol{Name: "N", Base: symtab.Integer, IsGlobal: true}
	st := &ast.MatchReceiveStmt{
		Handle: &ast.VarRef{Name: "H"},
		Arms:   []ast.MatchArm{{TypeTag: "INTEGER", BindVar: "N"}},
	}
	prog := symtab.NewProgram(tab)
	prog.EntryCFG = matchReceiveCFG(st, nil)

	result := codegen.Generate(prog, codegen.Options{})
	il := result.IL

	if !strings.Contains(il, "add") || !strings.Contains(il, "loadw") {
		t.Fatalf("expected an inline-slot add+loadw sequence for a scalar bind, got:\n%s", il)
	}
	if strings.Contains(il, "call $msg_blob_payload_ptr(") {
		t.Fatalf("did not expect a scalar bind to dereference the payload pointer, got:\n%s", il)
	}
	if strings.Count(il, "call $msg_blob_free(") != 1 {
		t.Fatalf("expected exactly one msg_blob_free at the merge block, got:\n%s", il)
	}
}

// TestGenerate_MatchReceiveStringArmNullsSlot is a regression test for the
// generic-bind bug applied to STRING: the descriptor pointer lives in the
// inline slot and ownership transfers to the bound variable, so the slot
// must be nulled after the load.
func TestGenerate_MatchReceiveStringArmNullsSlot(t *testing.T) {
	tab := handleTable()
	tab.Variables["S$"] = &symtab.VariableSymbol{Name: "S$", Base: symtab.String, IsGlobal: true}
	st := &ast.MatchReceiveStmt{
		Handle: &ast.VarRef{Name: "H"},
		Arms:   []ast.MatchArm{{TypeTag: "STRING", BindVar: "S$"}},
	}
	prog := symtab.NewProgram(tab)
	prog.EntryCFG = matchReceiveCFG(st, nil)

	result := codegen.Generate(prog, codegen.Options{})
	il := result.IL

	if !strings.Contains(il, "loadl") {
		t.Fatalf("expected a STRING bind to load the inline slot as a pointer, got:\n%s", il)
	}
	if strings.Count(il, "storel 0, ") < 1 {
		t.Fatalf("expected the STRING bind to null its inline slot after transferring ownership, got:\n%s", il)
	}
}

// TestGenerate_MatchReceiveUDTArmCopiesBeforeFree is a regression test for
// the use-after-free half of the generic-bind bug: a UDT-typed arm must
// malloc+unmarshal a fresh copy of the payload rather than alias the live
// payload pointer, and must null that pointer so the merge block's later
// msg_blob_free cannot free memory the copy still points into.
func TestGenerate_MatchReceiveUDTArmCopiesBeforeFree(t *testing.T) {
	tab := handleTable()
	tab.Types["POINT"] = &symtab.UDTSymbol{
		Name: "POINT",
		Fields: []symtab.UDTField{
			{Name: "X", Type: symtab.TypeDescriptor{Base: symtab.Integer}, Offset: 0},
			{Name: "Y", Type: symtab.TypeDescriptor{Base: symtab.Integer}, Offset: 4},
		},
	}
	tab.Variables["P"] = &symtab.VariableSymbol{Name: "P", Base: symtab.UserDefined, UDTName: "POINT", IsGlobal: true}
	st := &ast.MatchReceiveStmt{
		Handle: &ast.VarRef{Name: "H"},
		Arms:   []ast.MatchArm{{TypeTag: "POINT", BindVar: "P"}},
	}
	prog := symtab.NewProgram(tab)
	prog.EntryCFG = matchReceiveCFG(st, nil)

	result := codegen.Generate(prog, codegen.Options{})
	il := result.IL

	if !strings.Contains(il, "call $unmarshall_udt(") {
		t.Fatalf("expected a UDT bind to malloc+unmarshal a fresh copy, got:\n%s", il)
	}
	if !strings.Contains(il, "call $msg_blob_payload_ptr(") {
		t.Fatalf("expected the UDT bind to read the blob's payload pointer as unmarshal input, got:\n%s", il)
	}
	if !strings.Contains(il, "blit ") {
		t.Fatalf("expected the UDT bind to blit the unmarshaled copy into the global's backing struct, got:\n%s", il)
	}
	if strings.Count(il, "storel 0, ") < 1 {
		t.Fatalf("expected the UDT bind to null the blob's payload pointer after copying, got:\n%s", il)
	}
	if strings.Count(il, "call $msg_blob_free(") != 1 {
		t.Fatalf("expected exactly one msg_blob_free at the merge block, got:\n%s", il)
	}
}

// TestGenerate_MatchReceiveNonMatchingArmStillFreesBlob is a regression
// test for the dead MergeCleanup bug: a MATCH RECEIVE whose arm does not
// match must still free the popped blob exactly once at the merge block.
func TestGenerate_MatchReceiveNonMatchingArmStillFreesBlob(t *testing.T) {
	tab := handleTable()
	tab.Variables["N"] = &symtab.VariableSymbol{Name: "N", Base: symtab.Integer, IsGlobal: true}
	st := &ast.MatchReceiveStmt{
		Handle: &ast.VarRef{Name: "H"},
		Arms:   []ast.MatchArm{{TypeTag: "INTEGER", BindVar: "N"}},
	}
	prog := symtab.NewProgram(tab)
	prog.EntryCFG = matchReceiveCFG(st, nil)

	result := codegen.Generate(prog, codegen.Options{})
	il := result.IL

	if strings.Count(il, "call $msg_blob_free(") != 1 {
		t.Fatalf("expected the merge block to free the popped blob exactly once regardless of match outcome, got:\n%s", il)
	}
}

// TestGenerate_GosubStackSizedByWordStride is a regression test for the
// gosub_stack size bug: push/pop addresses each slot at a 4-byte stride
// (one w-word per return point), so a 16-deep stack is 64 bytes, not 128.
func TestGenerate_GosubStackSizedByWordStride(t *testing.T) {
	cfg := &symtab.CFG{
		Blocks: []*symtab.Block{
			{Index: 0, Kind: symtab.BlockNormal, Succs: []symtab.Edge{{Kind: symtab.EdgeGosubCall, To: 2}}},
			{Index: 1, Kind: symtab.BlockExit},
			{Index: 2, Kind: symtab.BlockNormal, Stmts: []ast.Stmt{&ast.ReturnStmt{}}},
		},
		GosubReturnPoints: []int{1},
	}
	prog := symtab.NewProgram(symtab.NewTable())
	prog.EntryCFG = cfg

	result := codegen.Generate(prog, codegen.Options{})
	il := result.IL

	if !strings.Contains(il, "data $gosub_stack = { z 64 }") {
		t.Fatalf("expected a 16-deep gosub_stack to be sized 64 bytes (4-byte stride), got:\n%s", il)
	}
	if strings.Contains(il, "data $gosub_stack = { z 128 }") {
		t.Fatalf("did not expect the stale 8-byte-stride sizing to reappear, got:\n%s", il)
	}
}
