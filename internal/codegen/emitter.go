package codegen

import (
	"fmt"

	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// DiagKind classifies a recoverable emission problem (spec.md §7).
type DiagKind int

const (
	DiagUnresolvedSymbol DiagKind = iota
	DiagMalformedCFG
)

// Diagnostic is a recoverable problem encountered during emission, mirrored
// both as a `WARN:` IL comment and as a structured value a driver can
// inspect without re-scanning text (SPEC_FULL.md §4.7 expansion).
type Diagnostic struct {
	Kind    DiagKind
	Message string
	Func    string
	Block   int
}

// Options configures one Generate call (SPEC_FULL.md §2 expansion).
type Options struct {
	NeonEnabled bool
}

// Emitter bundles every lower layer plus the mutable per-function emission
// state described in spec.md §3. It is passed by reference through every
// method instead of being split across package-level globals — the
// rewrite direction spec.md §9 calls for ("Context propagation without
// globals"), applied here rather than deferred.
type Emitter struct {
	B     *Builder
	TM    *TypeManager
	SM    *SymbolMapper
	RL    *RuntimeLibrary
	Table *symtab.Table
	Prog  *symtab.Program

	Func *FunctionContext
	CFG  *symtab.CFG

	forCtx            map[int]*ForContext
	forEachArrayCtx   map[int]*ForEachArrayContext
	forEachListCtx    map[int]*ForEachListContext
	forEachHashmapCtx map[int]*ForEachHashmapContext
	caseCtx           map[int]*CaseContext
	matchTypeCtx      map[int]*MatchTypeContext
	matchRecvCtx      map[int]*MatchReceiveContext
	mergeCleanup      map[int]*MergeCleanup
	activeForward     *ActiveForwardContext

	// activeForwardByBlock and matchBindByBlock hold per-arm-body entry
	// actions for MATCH RECEIVE, keyed by the arm body's own block index.
	// RPO emits every test block in a chain before any arm body runs (the
	// DFS visits each test's CaseNext successor before backtracking into
	// its CaseMatch subtree), so a forward/bind decision made while a test
	// block's terminator runs would be overwritten by the time a different
	// arm's body is reached; binding at block entry instead ties the
	// decision to the body block itself (spec.md §4.5 "Zero-copy
	// forwarding").
	activeForwardByBlock map[int]*ActiveForwardContext
	matchBindByBlock      map[int]*MatchBindAction

	// forAllocAddrs holds limit/step stack slots pre-allocated in a
	// function's entry block by hoistForAllocs, keyed by the FOR
	// statement's own block index (spec.md §8, entry-block alloc
	// invariant). emitForInit consults this before falling back to an
	// inline Alloc so a FOR nested deep in a function body still reports
	// its slots as living in the entry block.
	forAllocAddrs map[int][2]string

	neonEnabled bool

	Diagnostics []Diagnostic
}

// NewEmitter constructs an Emitter bound to prog/opts, with a fresh
// Builder and lower layers.
func NewEmitter(prog *symtab.Program, opts Options) *Emitter {
	return &Emitter{
		B:     NewBuilder(),
		TM:    NewTypeManager(prog.Table),
		SM:    NewSymbolMapper(),
		RL:    NewRuntimeLibrary(),
		Table: prog.Table,
		Prog:  prog,

		neonEnabled: opts.NeonEnabled,
	}
}

// resetLoopState clears all per-function loop/case/match bookkeeping;
// called once per function before its blocks are walked.
func (e *Emitter) resetLoopState() {
	e.forCtx = make(map[int]*ForContext)
	e.forEachArrayCtx = make(map[int]*ForEachArrayContext)
	e.forEachListCtx = make(map[int]*ForEachListContext)
	e.forEachHashmapCtx = make(map[int]*ForEachHashmapContext)
	e.caseCtx = make(map[int]*CaseContext)
	e.matchTypeCtx = make(map[int]*MatchTypeContext)
	e.matchRecvCtx = make(map[int]*MatchReceiveContext)
	e.mergeCleanup = make(map[int]*MergeCleanup)
	e.activeForward = nil
	e.activeForwardByBlock = make(map[int]*ActiveForwardContext)
	e.matchBindByBlock = make(map[int]*MatchBindAction)
	e.forAllocAddrs = make(map[int][2]string)
	e.SM.ClearShared()
}

// warn records a recoverable semantic gap (spec.md §7 kind 2): it writes a
// `WARN:` comment into the IL and appends a structured Diagnostic.
func (e *Emitter) warn(blockIdx int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.B.Comment("WARN: %s", msg)
	funcName := ""
	if e.Func != nil {
		funcName = e.Func.FuncName
	}
	e.Diagnostics = append(e.Diagnostics, Diagnostic{
		Kind:    DiagUnresolvedSymbol,
		Message: msg,
		Func:    funcName,
		Block:   blockIdx,
	})
}

// warnCFG records a malformed-CFG recovery (spec.md §7 kind 3).
func (e *Emitter) warnCFG(blockIdx int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.B.Comment("WARN: %s", msg)
	funcName := ""
	if e.Func != nil {
		funcName = e.Func.FuncName
	}
	e.Diagnostics = append(e.Diagnostics, Diagnostic{
		Kind:    DiagMalformedCFG,
		Message: msg,
		Func:    funcName,
		Block:   blockIdx,
	})
}

// ---- Shared small classification/type helpers used by several layers ----

// ResultKind is the Expression Emitter's three result categories (spec.md
// §4.5).
type ResultKind int

const (
	KindInteger ResultKind = iota
	KindDouble
	KindString
)

func (e *Emitter) resultILType(k ResultKind) string {
	switch k {
	case KindDouble:
		return "d"
	case KindString:
		return "l"
	default:
		return "w"
	}
}

// lookupVarBase resolves a bare variable name's base type using the order
// spec.md §4.5 "Variable" specifies: explicit suffix, then function-context
// params/locals, then global symbol table, defaulting to double.
func (e *Emitter) lookupVarBase(name string, suffix byte) symtab.BaseType {
	if suffix != 0 {
		return suffixBase(suffix)
	}
	if e.Func != nil {
		if s, ok := e.Func.Lookup(name); ok {
			return s.Base
		}
	}
	funcUpper := ""
	if e.Func != nil {
		funcUpper = e.Func.UpperName
	}
	if v, ok := e.Table.LookupVariable(funcUpper, name); ok {
		return v.Base
	}
	return symtab.Double
}

func suffixBase(suffix byte) symtab.BaseType {
	switch suffix {
	case '%':
		return symtab.Integer
	case '&':
		return symtab.Long
	case '!':
		return symtab.Single
	case '#':
		return symtab.Double
	case '$':
		return symtab.String
	case '^':
		return symtab.Byte
	case '@':
		return symtab.Short
	default:
		return symtab.Unknown
	}
}

// isLongExpr recognizes a LONG (64-bit integer) expression so binary ops
// can promote w to l with extsw (spec.md §4.5).
func (e *Emitter) isLongExpr(expr ast.Expr) bool {
	return e.classify(expr) == KindInteger && e.exprBase(expr) == symtab.Long
}

// isPointerExpr recognizes pointer-typed expressions so comparisons use
// ceql/cnel instead of ceqd/cned (spec.md §4.5).
func (e *Emitter) isPointerExpr(expr ast.Expr) bool {
	switch n := expr.(type) {
	case *ast.NewExpr, *ast.CreateExpr, *ast.NothingExpr, *ast.ListExpr, *ast.MeExpr:
		return true
	case *ast.VarRef:
		b := e.lookupVarBase(n.Name, n.Suffix)
		return b == symtab.ClassInstance || b == symtab.Object || b == symtab.UserDefined || b == symtab.Pointer
	case *ast.MemberExpr:
		b := e.exprBase(expr)
		return b == symtab.ClassInstance || b == symtab.Object || b == symtab.UserDefined || b == symtab.Pointer
	default:
		return false
	}
}
