package codegen

import (
	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// ForContext is per-loop emission state for a FOR statement, indexed by
// loop-header block index. A mirror entry is also registered on the
// increment block (spec.md §3, "For-Loop Context").
type ForContext struct {
	Var       string
	Step      ast.Expr // nil means step 1
	LimitAddr string
	StepAddr  string
	Direction symtab.StepDirection
}

// ForEachArrayContext is per-loop state for `FOR EACH x IN array`.
type ForEachArrayContext struct {
	IterVar    string
	IndexVar   string
	IndexAddr  string
	DescAddr   string
	ElemLoad   string // QBE load mnemonic
	ElemBase   symtab.BaseType
}

// ForEachListContext is per-loop state for `FOR EACH x IN list`.
type ForEachListContext struct {
	IterVar   string
	IndexVar  string
	CursorAddr string
	IndexAddr  string
	ElemBase   symtab.BaseType
}

// ForEachHashmapContext is per-loop state for `FOR EACH k[, v] IN map`.
type ForEachHashmapContext struct {
	KeyVar    string
	ValueVar  string
	IndexAddr string
	SizeAddr  string
	KeysAddr  string
	MapAddr   string
}

// CaseContext is per-SELECT-CASE state, keyed by the entry block index.
type CaseContext struct {
	SelectorTemp string
	SelectorBase symtab.BaseType
}

// MatchTypeContext is per-MATCH-TYPE state.
type MatchTypeContext struct {
	TagTemp   string
	CursorTemp string
	Arms      []MatchArmState
	ArmIndex  int
}

// MatchArmState mirrors ast.MatchArm plus any temps bound while testing it.
type MatchArmState struct {
	TypeTag   string
	ClassID   int
	BindVar   string
	IsForward bool
}

// MatchReceiveContext is per-MATCH-RECEIVE state.
type MatchReceiveContext struct {
	BlobTemp      string
	TagTemp       string
	TypeIDTemp    string
	Arms          []MatchArmState
	ArmIndex      int
	MergeBlock    int
	HasMergeBlock bool
	BlobSlotAddr  string // set when any arm is a forward arm
	HandleIsParent bool
	QueueTemp     string
}

// MergeCleanup records how to free the blob at a MATCH RECEIVE's merge
// block (spec.md §3, "Merge Cleanup Map").
type MergeCleanup struct {
	BlobRef   string
	NeedsLoad bool
}

// ActiveForwardContext is non-nil only while emitting statements inside a
// forward-arm body (spec.md §3).
type ActiveForwardContext struct {
	BindVarUpper   string
	BlobTemp       string
	BlobSlotAddr   string
	QueueTemp      string
	HandleIsParent bool
}

// MatchBindAction records a non-forward MATCH RECEIVE arm's payload bind,
// run once at entry to that arm's body block (spec.md §4.6 "MATCH
// RECEIVE"). TypeTag carries the arm's declared type so the bind can
// dispatch to the matching trampoline (scalar inline-slot read, STRING
// slot-and-null, or UDT/CLASS malloc+unmarshall).
type MatchBindAction struct {
	Var      string
	BlobTemp string
	TypeTag  string
}
