package symtab_test

import (
	"testing"

	"github.com/nimblebasic/nbc/internal/symtab"
)

func block(idx int, succs ...symtab.Edge) *symtab.Block {
	return &symtab.Block{Index: idx, Succs: succs}
}

func TestCFG_ComputeRPO_LinearChain(t *testing.T) {
	cfg := &symtab.CFG{Blocks: []*symtab.Block{
		block(0, symtab.Edge{Kind: symtab.EdgeFallthrough, To: 1}),
		block(1, symtab.Edge{Kind: symtab.EdgeFallthrough, To: 2}),
		block(2),
	}}
	cfg.ComputeRPO()
	want := []int{0, 1, 2}
	if !equalInts(cfg.RPO, want) {
		t.Fatalf("RPO = %v, want %v", cfg.RPO, want)
	}
}

func TestCFG_ComputeRPO_DiamondPutsMergeBlockLast(t *testing.T) {
	// 0 branches to 1 and 2, both of which fall through to 3.
	cfg := &symtab.CFG{Blocks: []*symtab.Block{
		block(0, symtab.Edge{Kind: symtab.EdgeBranchTrue, To: 1}, symtab.Edge{Kind: symtab.EdgeBranchFalse, To: 2}),
		block(1, symtab.Edge{Kind: symtab.EdgeFallthrough, To: 3}),
		block(2, symtab.Edge{Kind: symtab.EdgeFallthrough, To: 3}),
		block(3),
	}}
	cfg.ComputeRPO()
	if cfg.RPO[0] != 0 {
		t.Fatalf("expected block 0 to head the RPO, got %v", cfg.RPO)
	}
	if cfg.RPO[len(cfg.RPO)-1] != 3 {
		t.Fatalf("expected merge block 3 to come last in RPO, got %v", cfg.RPO)
	}
	if len(cfg.RPO) != 4 {
		t.Fatalf("expected every block visited exactly once, got %v", cfg.RPO)
	}
}

func TestCFG_ComputeRPO_UnreachableBlockStillAppended(t *testing.T) {
	// Block 2 has no path from block 0 at all (malformed-CFG tolerance).
	cfg := &symtab.CFG{Blocks: []*symtab.Block{
		block(0, symtab.Edge{Kind: symtab.EdgeFallthrough, To: 1}),
		block(1),
		block(2),
	}}
	cfg.ComputeRPO()
	if len(cfg.RPO) != 3 {
		t.Fatalf("expected all 3 blocks present despite unreachability, got %v", cfg.RPO)
	}
	found := false
	for _, i := range cfg.RPO {
		if i == 2 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected unreachable block 2 still appended to RPO, got %v", cfg.RPO)
	}
}

func TestCFG_ComputeRPO_EmptyCFG(t *testing.T) {
	cfg := &symtab.CFG{}
	cfg.ComputeRPO()
	if cfg.RPO != nil {
		t.Fatalf("expected nil RPO for an empty CFG, got %v", cfg.RPO)
	}
}

func TestCFG_ComputeRPO_BackEdgeDoesNotInfiniteLoop(t *testing.T) {
	// A loop: 0 -> 1 -> 2 -> back to 1 (loop header), 2 also exits to 3.
	cfg := &symtab.CFG{Blocks: []*symtab.Block{
		block(0, symtab.Edge{Kind: symtab.EdgeFallthrough, To: 1}),
		block(1, symtab.Edge{Kind: symtab.EdgeFallthrough, To: 2}),
		block(2, symtab.Edge{Kind: symtab.EdgeBackEdge, To: 1}, symtab.Edge{Kind: symtab.EdgeLoopExit, To: 3}),
		block(3),
	}}
	cfg.ComputeRPO()
	if !equalInts(cfg.RPO, []int{0, 1, 2, 3}) {
		t.Fatalf("RPO = %v, want [0 1 2 3]", cfg.RPO)
	}
}

func TestBlock_SuccessorFindsFirstMatchingKind(t *testing.T) {
	b := &symtab.Block{Succs: []symtab.Edge{
		{Kind: symtab.EdgeBranchTrue, To: 5},
		{Kind: symtab.EdgeBranchFalse, To: 9},
	}}
	if to, ok := b.Successor(symtab.EdgeBranchFalse); !ok || to != 9 {
		t.Fatalf("Successor(EdgeBranchFalse) = (%d, %v), want (9, true)", to, ok)
	}
	if _, ok := b.Successor(symtab.EdgeBackEdge); ok {
		t.Fatalf("expected no EdgeBackEdge successor")
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
