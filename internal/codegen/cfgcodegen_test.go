package codegen_test

import (
	"strings"
	"testing"

	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/codegen"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// entryExit builds the two-block shape every minimal entry CFG in this file
// shares: a normal block holding the program's statements, fallen through
// into an unconditional exit block.
func entryExit(stmts []ast.Stmt) *symtab.CFG {
	return &symtab.CFG{
		Blocks: []*symtab.Block{
			{Index: 0, Kind: symtab.BlockNormal, Stmts: stmts, Succs: []symtab.Edge{{Kind: symtab.EdgeFallthrough, To: 1}}},
			{Index: 1, Kind: symtab.BlockExit},
		},
	}
}

func TestGenerate_GlobalIntegerAssignment(t *testing.T) {
	// DIM X AS INTEGER : LET X = 2 + 3 * 4
	tab := symtab.NewTable()
	tab.Variables["X"] = &symtab.VariableSymbol{Name: "X", Base: symtab.Integer, IsGlobal: true}

	stmts := []ast.Stmt{
		&ast.DimStmt{Specs: []ast.DimSpec{{Name: "X", AsType: "INTEGER", IsGlobal: true}}},
		&ast.LetStmt{
			Target: ast.MemberChain{Root: "X"},
			Value: &ast.BinOp{
				Op:   "+",
				Left: &ast.NumberLit{Text: "2", Value: 2, IsInt: true, IntVal: 2},
				Right: &ast.BinOp{
					Op:   "*",
					Left: &ast.NumberLit{Text: "3", Value: 3, IsInt: true, IntVal: 3},
					Right: &ast.NumberLit{Text: "4", Value: 4, IsInt: true, IntVal: 4},
				},
			},
		},
	}

	prog := symtab.NewProgram(tab)
	prog.EntryCFG = entryExit(stmts)

	result := codegen.Generate(prog, codegen.Options{})

	if len(result.Diagnostics) != 0 {
		t.Fatalf("expected no diagnostics, got %+v", result.Diagnostics)
	}

	il := result.IL
	if !strings.Contains(il, "data $var_X = { z 4 }") {
		t.Fatalf("expected a plain (suffixless) AS-typed global to mangle to var_X, got:\n%s", il)
	}
	// Regression test for the mangling bug: the declaration's symbol name
	// (var_X) must be exactly what the store instruction targets — before
	// the fix, the declaration used suffixForBase(Integer) ("var_X_int")
	// while the store used symtab.SuffixOf("X") ("var_X"), an unresolved
	// symbol at QBE's link stage.
	if !strings.Contains(il, ", $var_X\n") {
		t.Fatalf("expected the LET to store into $var_X (matching the declaration), got:\n%s", il)
	}
	if strings.Contains(il, "var_X_int") {
		t.Fatalf("did not expect the stale var_X_int mangling to reappear, got:\n%s", il)
	}
	if !strings.Contains(il, "export function w $main() {") {
		t.Fatalf("expected an exported main function header, got:\n%s", il)
	}
	if !strings.Contains(il, "call $runtime_cleanup()") {
		t.Fatalf("expected main's exit to call runtime_cleanup, got:\n%s", il)
	}
	if !strings.Contains(il, "ret 0") {
		t.Fatalf("expected main to return 0, got:\n%s", il)
	}
}

func TestGenerate_PrintStringLiteralInternsAndEmitsOnce(t *testing.T) {
	// PRINT "hi"
	stmts := []ast.Stmt{
		&ast.PrintStmt{Items: []ast.Expr{&ast.StringLit{Value: "hi"}}, Newline: true},
	}
	prog := symtab.NewProgram(symtab.NewTable())
	prog.EntryCFG = entryExit(stmts)

	result := codegen.Generate(prog, codegen.Options{})
	il := result.IL

	if strings.Count(il, `data $str_0 = { b "hi", b 0 }`) != 1 {
		t.Fatalf("expected the string literal pool entry exactly once, got:\n%s", il)
	}
	if !strings.Contains(il, "call $basic_print_string_desc(l $str_0)") {
		t.Fatalf("expected PRINT to call basic_print_string_desc with the interned label, got:\n%s", il)
	}
	if !strings.Contains(il, "call $basic_print_lock()") || !strings.Contains(il, "call $basic_print_unlock()") {
		t.Fatalf("expected PRINT to bracket output with print lock/unlock, got:\n%s", il)
	}
	if !strings.Contains(il, "call $basic_print_newline()") {
		t.Fatalf("expected a trailing newline call for PRINT with Newline=true, got:\n%s", il)
	}
}

func TestGenerate_UnresolvedAssignmentTargetProducesDiagnostic(t *testing.T) {
	// LET UNDECLARED = 1, with no DIM and no symbol table entry: a
	// recoverable error (spec.md §7), not a panic.
	stmts := []ast.Stmt{
		&ast.LetStmt{
			Target: ast.MemberChain{Root: "UNDECLARED"},
			Value:  &ast.NumberLit{Text: "1", Value: 1, IsInt: true, IntVal: 1},
		},
	}
	prog := symtab.NewProgram(symtab.NewTable())
	prog.EntryCFG = entryExit(stmts)

	result := codegen.Generate(prog, codegen.Options{})
	if len(result.Diagnostics) == 0 {
		t.Fatalf("expected an unresolved-symbol diagnostic, got none; IL:\n%s", result.IL)
	}
	found := false
	for _, d := range result.Diagnostics {
		if d.Kind == codegen.DiagUnresolvedSymbol {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a DiagUnresolvedSymbol diagnostic, got %+v", result.Diagnostics)
	}
}

func TestGenerate_UserFunctionEmittedWithMangledName(t *testing.T) {
	// FUNCTION Area#(r AS DOUBLE) : RETURN r * r : END FUNCTION
	tab := symtab.NewTable()
	tab.Functions["AREA"] = &symtab.FunctionSymbol{
		Name:       "AREA",
		IsFunction: true,
		ReturnType: symtab.TypeDescriptor{Base: symtab.Double},
		Params:     []symtab.ParamSymbol{{Name: "R", Type: symtab.TypeDescriptor{Base: symtab.Double}}},
	}
	tab.Variables["R"] = &symtab.VariableSymbol{Name: "R", Base: symtab.Double, Scope: "AREA"}

	prog := symtab.NewProgram(tab)
	prog.EntryCFG = entryExit(nil)
	prog.FuncCFGs["AREA"] = entryExit([]ast.Stmt{
		&ast.ReturnStmt{Value: &ast.BinOp{Op: "*", Left: &ast.VarRef{Name: "R"}, Right: &ast.VarRef{Name: "R"}}},
	})
	prog.FuncOrder = []string{"AREA"}

	result := codegen.Generate(prog, codegen.Options{})
	il := result.IL

	if !strings.Contains(il, "function d $func_AREA(d %p0) {") {
		t.Fatalf("expected a mangled func_AREA header taking a double param, got:\n%s", il)
	}
}
