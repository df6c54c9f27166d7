package codegen

import (
	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// FunctionScopeAnalyzer walks a function's CFG and decides whether its
// body requires scope-managed memory tracking (spec.md §4.7):
//
//	needs_scope = has_dim OR (has_loops AND has_allocations)
type FunctionScopeAnalyzer struct{}

// NeedsScope implements the decision above.
func (FunctionScopeAnalyzer) NeedsScope(cfg *symtab.CFG) bool {
	hasDim := false
	hasLoop := false
	hasAlloc := false

	for _, blk := range cfg.Blocks {
		switch blk.Kind {
		case symtab.BlockLoopHeader, symtab.BlockLoopBody, symtab.BlockLoopIncrement:
			hasLoop = true
		}
		for _, s := range blk.Stmts {
			switch st := s.(type) {
			case *ast.DimStmt:
				hasDim = true
			case *ast.LocalStmt:
				hasDim = true
			case *ast.LetStmt:
				if exprAllocates(st.Value) {
					hasAlloc = true
				}
			}
		}
	}
	return hasDim || (hasLoop && hasAlloc)
}

// exprAllocates reports whether evaluating e can allocate heap memory: a
// NEW expression, or a string literal (string descriptors are heap
// objects), anywhere in the subtree.
func exprAllocates(e ast.Expr) bool {
	switch n := e.(type) {
	case nil:
		return false
	case *ast.NewExpr:
		return true
	case *ast.StringLit:
		return true
	case *ast.BinOp:
		return exprAllocates(n.Left) || exprAllocates(n.Right)
	case *ast.UnaryOp:
		return exprAllocates(n.Operand)
	case *ast.IIFExpr:
		return exprAllocates(n.Cond) || exprAllocates(n.Then) || exprAllocates(n.Else)
	case *ast.CallExpr:
		for _, a := range n.Args {
			if exprAllocates(a) {
				return true
			}
		}
		return false
	case *ast.MethodCallExpr:
		if exprAllocates(n.Target) {
			return true
		}
		for _, a := range n.Args {
			if exprAllocates(a) {
				return true
			}
		}
		return false
	case *ast.MemberExpr:
		return exprAllocates(n.Target)
	case *ast.ArrayAccessExpr:
		for _, idx := range n.Indices {
			if exprAllocates(idx) {
				return true
			}
		}
		return false
	case *ast.CreateExpr:
		for _, v := range n.Positional {
			if exprAllocates(v) {
				return true
			}
		}
		for _, v := range n.Named {
			if exprAllocates(v) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
