package codegen

import (
	"fmt"
	"strings"

	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// Runtime type-tag encoding shared between list_iter_type and MATCH TYPE's
// static fallback path (spec.md §4.6 "MATCH TYPE"). The values are the
// runtime's own tags, as list_iter_type reports them for a list element, so
// each CASE arm here compares against the same numbers the runtime returns.
const (
	typeTagInteger = 1
	typeTagDouble  = 2
	typeTagString  = 3
	typeTagList    = 4
	typeTagClass   = 5
)

// emitSelectCaseInit evaluates the SELECT CASE selector once and registers
// it under the current block and every CASE-test block reachable through
// the EdgeCaseNext chain, so each test's terminator compares against the
// same value instead of re-evaluating (and re-running side effects of) the
// selector expression (spec.md §4.6 "SELECT CASE").
func (e *Emitter) emitSelectCaseInit(blk *symtab.Block, st *ast.SelectCaseStmt) {
	v, _ := e.EmitExpr(st.Selector)
	base := e.exprBase(st.Selector)
	kind := e.classify(st.Selector)
	iltype := e.resultILType(kind)
	addr := e.B.Alloc(8, 8)
	e.B.Store(e.TM.StoreSuffix(base), v, addr)

	fc := &CaseContext{SelectorTemp: addr, SelectorBase: base}
	_ = iltype
	e.caseCtx[blk.Index] = fc

	next, ok := blk.Successor(symtab.EdgeCaseNext)
	for ok {
		e.caseCtx[next] = fc
		nb := e.CFG.Block(next)
		next, ok = nb.Successor(symtab.EdgeCaseNext)
	}
}

// emitMatchTypeInit resolves MATCH TYPE's subject to a runtime type tag: if
// the subject is the iterator variable of an active FOR-EACH-list loop, the
// tag comes from that loop's per-element list_iter_type call (heterogeneous
// collections carry their element's dynamic type this way); otherwise the
// subject's statically known type supplies a constant tag (spec.md §4.6
// "MATCH TYPE").
func (e *Emitter) emitMatchTypeInit(blk *symtab.Block, st *ast.MatchTypeStmt) {
	subjectName := ""
	if vr, ok := st.Subject.(*ast.VarRef); ok {
		subjectName = strings.ToUpper(vr.Name)
	}
	var cursorAddr string
	for _, lc := range e.forEachListCtx {
		if strings.ToUpper(lc.IterVar) == subjectName {
			cursorAddr = lc.CursorAddr
			break
		}
	}

	var tagTemp, cursorTemp string
	if cursorAddr != "" {
		cursor := e.B.Load("l", "loadl", cursorAddr)
		tagTemp = e.RL.Call(e.B, "list_iter_type", []CallArg{{"l", cursor}})
		cursorTemp = cursor
	} else {
		v, _ := e.EmitExpr(st.Subject)
		cursorTemp = v
		tagTemp = fmt.Sprintf("%d", staticTypeTag(e, st.Subject))
		e.warnCFG(blk.Index, "MATCH TYPE subject is not a FOR-EACH-list iterator; resolved statically")
	}

	fc := &MatchTypeContext{TagTemp: tagTemp, CursorTemp: cursorTemp}
	e.matchTypeCtx[blk.Index] = fc

	next, ok := blk.Successor(symtab.EdgeCaseNext)
	for ok {
		e.matchTypeCtx[next] = fc
		nb := e.CFG.Block(next)
		next, ok = nb.Successor(symtab.EdgeCaseNext)
	}
}

func staticTypeTag(e *Emitter, expr ast.Expr) int {
	base := e.exprBase(expr)
	switch {
	case base == symtab.ClassInstance || base == symtab.Object:
		return typeTagClass
	default:
		switch e.classify(expr) {
		case KindString:
			return typeTagString
		case KindDouble:
			return typeTagDouble
		default:
			return typeTagInteger
		}
	}
}

// matchArmTagCode maps a CASE arm's literal type-name token, reused from
// CaseTestStmt.Value, to the runtime tag it tests against; a name matching
// neither a primitive keyword nor a known class (UDT names included) falls
// back to -1 so the terminator can flag it instead of silently matching
// nothing.
func matchArmTagCode(t *symtab.Table, val ast.Expr) (tag int, className string) {
	name := ""
	switch v := val.(type) {
	case *ast.StringLit:
		name = v.Value
	case *ast.VarRef:
		name = v.Name
	default:
		return -1, ""
	}
	switch strings.ToUpper(name) {
	case "INTEGER", "LONG", "SHORT", "BYTE":
		return typeTagInteger, ""
	case "DOUBLE", "SINGLE":
		return typeTagDouble, ""
	case "STRING", "UNICODE":
		return typeTagString, ""
	case "LIST":
		return typeTagList, ""
	default:
		if _, ok := t.Classes[strings.ToUpper(name)]; ok {
			return typeTagClass, strings.ToUpper(name)
		}
		return -1, ""
	}
}

// emitMatchReceiveInit evaluates the RECEIVE handle's queue once, pops the
// next message blob, and registers the per-arm forward/bounce bookkeeping
// the terminator and emitStmt (while inside a forward arm's body) need
// (spec.md §4.5 "Zero-copy forwarding", §4.6 "MATCH RECEIVE").
func (e *Emitter) emitMatchReceiveInit(blk *symtab.Block, st *ast.MatchReceiveStmt) {
	q, isParent := e.resolveQueue(st.Handle)
	qAddr := e.B.Alloc(8, 8)
	e.B.Store("l", q, qAddr)

	blob := e.RL.MsgQueuePop(e.B, q)
	tag := e.RL.MsgBlobTag(e.B, blob)
	typeID := e.RL.MsgBlobTypeID(e.B, blob)

	arms := make([]MatchArmState, len(st.Arms))
	needsSlot := false
	for i, a := range st.Arms {
		arms[i] = MatchArmState{TypeTag: a.TypeTag, ClassID: a.ClassID, BindVar: a.BindVar, IsForward: a.IsForward}
		if a.IsForward {
			needsSlot = true
		}
	}

	fc := &MatchReceiveContext{
		BlobTemp:       blob,
		TagTemp:        tag,
		TypeIDTemp:     typeID,
		Arms:           arms,
		QueueTemp:      qAddr,
		HandleIsParent: isParent,
	}
	if needsSlot {
		fc.BlobSlotAddr = e.B.Alloc(8, 8)
		e.B.Store("l", blob, fc.BlobSlotAddr)
	}

	e.matchRecvCtx[blk.Index] = fc

	armIdx := 0
	cur := blk
	for {
		if bodyIdx, hasBody := cur.Successor(symtab.EdgeCaseMatch); hasBody && armIdx < len(arms) {
			e.registerMatchArmEntry(bodyIdx, arms[armIdx], fc)
		}
		armIdx++
		next, ok := cur.Successor(symtab.EdgeCaseNext)
		if !ok {
			break
		}
		cur = e.CFG.Block(next)
		if cur.Kind != symtab.BlockMerge {
			e.matchRecvCtx[next] = fc
		}
	}

	// The chain of EdgeCaseNext edges walked above ends either at the last
	// arm's test block (no further CASE to test) or, per the CFG's own
	// convention, at the construct's merge block — the block every arm body
	// and every "no arm matched" fallthrough ultimately reaches. Only the
	// latter shape carries a cleanup obligation: the merge block frees the
	// popped blob exactly once regardless of which arm (if any) matched
	// (spec.md §3 "Merge Cleanup Map", §4.6 "MATCH RECEIVE").
	if cur.Kind == symtab.BlockMerge {
		fc.MergeBlock = cur.Index
		fc.HasMergeBlock = true
		cleanup := &MergeCleanup{BlobRef: fc.BlobTemp}
		if fc.BlobSlotAddr != "" {
			cleanup.BlobRef = fc.BlobSlotAddr
			cleanup.NeedsLoad = true
		}
		e.mergeCleanup[cur.Index] = cleanup
	} else {
		e.warnCFG(blk.Index, "MATCH RECEIVE: no merge block found for blob cleanup")
	}
}

// registerMatchArmEntry attaches arm's forward/bind bookkeeping to its body
// block, so it fires once at that block's entry regardless of dispatch
// order (spec.md §4.5 "Zero-copy forwarding").
func (e *Emitter) registerMatchArmEntry(bodyIdx int, arm MatchArmState, fc *MatchReceiveContext) {
	if arm.IsForward {
		e.activeForwardByBlock[bodyIdx] = &ActiveForwardContext{
			BindVarUpper:   strings.ToUpper(arm.BindVar),
			BlobTemp:       fc.BlobTemp,
			BlobSlotAddr:   fc.BlobSlotAddr,
			QueueTemp:      fc.QueueTemp,
			HandleIsParent: fc.HandleIsParent,
		}
		return
	}
	if arm.BindVar != "" {
		e.matchBindByBlock[bodyIdx] = &MatchBindAction{Var: arm.BindVar, BlobTemp: fc.BlobTemp, TypeTag: arm.TypeTag}
	}
}
