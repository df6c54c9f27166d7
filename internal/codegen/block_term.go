package codegen

import (
	"fmt"
	"sort"

	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// blockLabelAt is blockLabel for a block reached only by index (most
// terminator logic works with successor indices, not *symtab.Block).
func (e *Emitter) blockLabelAt(idx int) string {
	return blockLabel(e.CFG.Block(idx))
}

// hasBareReturn reports whether blk contains a value-less RETURN, which in
// this language only ever means a GOSUB return — FUNCTION/SUB exit falls
// off the end of the block graph into a BlockExit instead (spec.md §4.6
// "GOSUB/RETURN").
func hasBareReturn(blk *symtab.Block) bool {
	for _, s := range blk.Stmts {
		if r, ok := s.(*ast.ReturnStmt); ok && r.Value == nil {
			return true
		}
	}
	return false
}

// emitTerminator emits the single control-flow instruction (or short
// sequence ending in one) that closes out blk, driven entirely by blk.Kind
// and its outgoing CFG edges (spec.md §4.6, §4.7 step 10).
func (e *Emitter) emitTerminator(blk *symtab.Block) {
	if hasBareReturn(blk) && e.CFG != nil && len(e.CFG.GosubReturnPoints) > 0 {
		e.emitGosubReturnDispatch(blk)
		return
	}

	switch blk.Kind {
	case symtab.BlockExit:
		e.emitExitTerminator(blk)
		return
	case symtab.BlockLoopHeader:
		if fc, ok := e.forCtx[blk.Index]; ok {
			e.emitForHeaderTerminator(blk, fc)
			return
		}
		if fc, ok := e.forEachArrayCtx[blk.Index]; ok {
			e.emitForEachArrayHeaderTerminator(blk, fc)
			return
		}
		if fc, ok := e.forEachListCtx[blk.Index]; ok {
			e.emitForEachListHeaderTerminator(blk, fc)
			return
		}
		if fc, ok := e.forEachHashmapCtx[blk.Index]; ok {
			e.emitForEachHashmapHeaderTerminator(blk, fc)
			return
		}
	case symtab.BlockLoopIncrement:
		if fc, ok := e.forCtx[blk.Index]; ok {
			e.emitForIncrementTerminator(blk, fc)
			return
		}
		if fc, ok := e.forEachArrayCtx[blk.Index]; ok {
			e.emitForEachArrayIncTerminator(blk, fc)
			return
		}
		if fc, ok := e.forEachListCtx[blk.Index]; ok {
			e.emitForEachListIncTerminator(blk, fc)
			return
		}
		if fc, ok := e.forEachHashmapCtx[blk.Index]; ok {
			e.emitForEachHashmapIncTerminator(blk, fc)
			return
		}
	case symtab.BlockCaseTest, symtab.BlockCaseOtherwise:
		if fc, ok := e.caseCtx[blk.Index]; ok {
			e.emitCaseTerminator(blk, fc)
			return
		}
		if fc, ok := e.matchTypeCtx[blk.Index]; ok {
			e.emitMatchTypeTerminator(blk, fc)
			return
		}
		if fc, ok := e.matchRecvCtx[blk.Index]; ok {
			e.emitMatchReceiveTerminator(blk, fc)
			return
		}
	}

	if _, ok := blk.Successor(symtab.EdgeGosubCall); ok {
		e.emitGosubCallTerminator(blk)
		return
	}
	if _, ok := blk.Successor(symtab.EdgeComputedBranch); ok {
		e.emitComputedBranchTerminator(blk)
		return
	}
	if t, tok := blk.Successor(symtab.EdgeBranchTrue); tok {
		if f, fok := blk.Successor(symtab.EdgeBranchFalse); fok {
			e.emitCondBranch(blk, t, f)
			return
		}
		e.B.Jump(e.blockLabelAt(t))
		return
	}
	if len(blk.Succs) > 0 {
		e.B.Jump(e.blockLabelAt(blk.Succs[0].To))
		return
	}
	e.emitExitTerminator(blk)
}

// emitExitTerminator closes a FUNCTION by loading its accumulator slot, a
// method by loading its return slot, or emits a bare `ret` for a SUB/worker;
// the program entry instead calls runtime_cleanup and returns 0 (spec.md
// §4.6 "RETURN", §4.2 "FUNCTION").
func (e *Emitter) emitExitTerminator(blk *symtab.Block) {
	if e.Func == nil {
		e.B.Ret("")
		return
	}

	var retVal, retType string
	haveRet := false
	if e.Func.IsFunction && e.Func.ReturnAddr != "" {
		retType = e.TM.ParamType(e.Func.ReturnBase)
		retVal = e.B.Load(retType, e.TM.LoadMnemonic(e.Func.ReturnBase), e.Func.ReturnAddr)
		haveRet = true
	} else if e.Func.MethodRetSlot != "" {
		retType = e.Func.MethodRetType
		retVal = e.B.Load(retType, "load"+retType, e.Func.MethodRetSlot)
		haveRet = true
	}

	if haveRet && (retType == "l") {
		e.RL.SammRetain(e.B, retVal)
	}
	if e.Func.NeedsScope {
		e.RL.SammExitScope(e.B)
	}

	if e.Func.IsMain {
		e.RL.Call(e.B, "runtime_cleanup", nil)
		e.B.Ret("0")
		return
	}

	if haveRet {
		e.B.Ret(retVal)
		return
	}
	e.B.Ret("")
}

// emitCondBranch lowers a plain two-way branch (IF/WHILE/DO), reusing the
// block's own Cond expression rather than re-deriving it from Stmts (spec.md
// §3, Block.Cond).
func (e *Emitter) emitCondBranch(blk *symtab.Block, trueIdx, falseIdx int) {
	if blk.Cond == nil {
		e.warnCFG(blk.Index, "conditional branch with no condition expression")
		e.B.Jump(e.blockLabelAt(trueIdx))
		return
	}
	v, _ := e.toInt(blk.Cond)
	e.B.Branch(v, e.blockLabelAt(trueIdx), e.blockLabelAt(falseIdx))
}

// --- GOSUB / ON...GOSUB ---

// pushGosubReturn pushes one continuation block index onto the process-wide
// GOSUB stack (spec.md §3 "Gosub Stack Model").
func (e *Emitter) pushGosubReturn(contIdx int) {
	sp := e.B.Load("w", "loadw", "$gosub_sp")
	offset := e.B.Binary("l", "mul", e.B.Extend("extsw", sp), "4")
	addr := e.B.Binary("l", "add", "$gosub_stack", offset)
	e.B.Store("w", fmt.Sprintf("%d", contIdx), addr)
	e.B.Store("w", e.B.Binary("w", "add", sp, "1"), "$gosub_sp")
}

// emitGosubCallTerminator pushes this call site's return point and jumps
// into the subroutine (spec.md §4.6 "GOSUB").
func (e *Emitter) emitGosubCallTerminator(blk *symtab.Block) {
	subIdx, _ := blk.Successor(symtab.EdgeGosubCall)
	contIdx, ok := blk.Successor(symtab.EdgeGosubReturn)
	if !ok {
		e.warnCFG(blk.Index, "GOSUB call block missing return-point edge")
		e.B.Jump(e.blockLabelAt(subIdx))
		return
	}
	e.pushGosubReturn(contIdx)
	e.B.Jump(e.blockLabelAt(subIdx))
}

// emitGosubReturnDispatch pops the GOSUB stack and jumps to the popped
// return point via a sparse equality cascade over every statically known
// return point in this function, in ascending block-index order; a popped
// value matching none of them falls through to the function's exit
// (spec.md §3 "Gosub Stack Model").
func (e *Emitter) emitGosubReturnDispatch(blk *symtab.Block) {
	sp := e.B.Load("w", "loadw", "$gosub_sp")
	newSp := e.B.Binary("w", "sub", sp, "1")
	e.B.Store("w", newSp, "$gosub_sp")
	offset := e.B.Binary("l", "mul", e.B.Extend("extsw", newSp), "4")
	addr := e.B.Binary("l", "add", "$gosub_stack", offset)
	cont := e.B.Load("w", "loadw", addr)

	points := append([]int(nil), e.CFG.GosubReturnPoints...)
	sort.Ints(points)
	if len(points) == 0 {
		e.warnCFG(blk.Index, "GOSUB RETURN with no known return points")
		e.emitExitTerminator(blk)
		return
	}
	cmp := e.B.Compare("eq", "w", false)
	for _, idx := range points {
		cond := cmp(cont, fmt.Sprintf("%d", idx))
		matchLbl := e.B.NewLabelName()
		nextLbl := e.B.NewLabelName()
		e.B.Branch(cond, matchLbl, nextLbl)
		e.B.Label(matchLbl)
		e.B.Jump(e.blockLabelAt(idx))
		e.B.Label(nextLbl)
	}
	e.emitExitTerminator(blk)
}

// emitComputedBranchTerminator lowers ON expr GOTO/GOSUB: the 1-indexed
// selector picks among the EdgeComputedBranch targets in encounter order
// (spec.md §4.6 "ON...GOTO/GOSUB"). ON...GOSUB additionally pushes a return
// point shared by every chosen target, since only one target executes.
func (e *Emitter) emitComputedBranchTerminator(blk *symtab.Block) {
	var on *ast.OnGotoStmt
	for _, s := range blk.Stmts {
		if o, ok := s.(*ast.OnGotoStmt); ok {
			on = o
			break
		}
	}
	var targets []int
	for _, s := range blk.Succs {
		if s.Kind == symtab.EdgeComputedBranch {
			targets = append(targets, s.To)
		}
	}
	if len(targets) == 0 {
		e.warnCFG(blk.Index, "ON GOTO/GOSUB with no computed-branch edges")
		e.emitExitTerminator(blk)
		return
	}
	if on == nil {
		e.warnCFG(blk.Index, "ON GOTO/GOSUB: missing selector statement")
	}

	var sel string
	if on != nil {
		sel, _ = e.toInt(on.Selector)
	} else {
		sel = "1"
	}

	if on != nil && on.IsGosub {
		contIdx, ok := blk.Successor(symtab.EdgeGosubReturn)
		if ok {
			e.pushGosubReturn(contIdx)
		}
	}

	cmp := e.B.Compare("eq", "w", false)
	for i, idx := range targets {
		n := i + 1
		if i == len(targets)-1 {
			e.B.Jump(e.blockLabelAt(idx))
			return
		}
		cond := cmp(sel, fmt.Sprintf("%d", n))
		matchLbl := e.B.NewLabelName()
		nextLbl := e.B.NewLabelName()
		e.B.Branch(cond, matchLbl, nextLbl)
		e.B.Label(matchLbl)
		e.B.Jump(e.blockLabelAt(idx))
		e.B.Label(nextLbl)
	}
}

// --- FOR ---

// emitForHeaderTerminator tests the loop variable against its limit,
// direction-agnostically: a compile-time-known step direction (spec.md §3
// "Optional" StepDirections) picks ascend/descend statically, an unknown
// one selects at runtime from the STEP expression's own sign (spec.md §4.6
// "FOR").
func (e *Emitter) emitForHeaderTerminator(blk *symtab.Block, fc *ForContext) {
	bodyIdx, exitIdx, ok := loopHeaderExitEdges(blk)
	if !ok {
		e.warnCFG(blk.Index, "FOR %s: malformed loop header edges", fc.Var)
		return
	}
	varVal, varT := e.EmitExpr(&ast.VarRef{Name: fc.Var})
	varD := e.promoteTo(varVal, varT, "d")
	limit := e.B.Load("d", "loadd", fc.LimitAddr)

	var cond string
	switch fc.Direction {
	case symtab.StepPositive:
		cond = e.B.Compare("le", "d", true)(varD, limit)
	case symtab.StepNegative:
		cond = e.B.Compare("ge", "d", true)(varD, limit)
	default:
		step := e.B.Load("d", "loadd", fc.StepAddr)
		stepNonNeg := e.B.Compare("ge", "d", true)(step, "d_0")
		ascend := e.B.Compare("le", "d", true)(varD, limit)
		descend := e.B.Compare("ge", "d", true)(varD, limit)
		cond = e.emitCondSelect("w", stepNonNeg, ascend, descend)
	}
	e.B.Branch(cond, e.blockLabelAt(bodyIdx), e.blockLabelAt(exitIdx))
}

// emitForIncrementTerminator adds STEP to the loop variable and jumps back
// to the header (spec.md §4.6 "FOR").
func (e *Emitter) emitForIncrementTerminator(blk *symtab.Block, fc *ForContext) {
	headerIdx, ok := blk.Successor(symtab.EdgeBackEdge)
	if !ok {
		e.warnCFG(blk.Index, "FOR %s: missing back-edge to header", fc.Var)
		if len(blk.Succs) > 0 {
			e.B.Jump(e.blockLabelAt(blk.Succs[0].To))
		}
		return
	}
	varVal, varT := e.EmitExpr(&ast.VarRef{Name: fc.Var})
	varD := e.promoteTo(varVal, varT, "d")
	step := e.B.Load("d", "loadd", fc.StepAddr)
	next := e.B.Binary("d", "add", varD, step)
	e.storeVarByName(fc.Var, next, "d")
	e.B.Jump(e.blockLabelAt(headerIdx))
}

func loopHeaderExitEdges(blk *symtab.Block) (bodyIdx, exitIdx int, ok bool) {
	exitIdx, exitOk := blk.Successor(symtab.EdgeLoopExit)
	bodyIdx, bodyOk := blk.Successor(symtab.EdgeBranchTrue)
	if !bodyOk {
		bodyIdx, bodyOk = blk.Successor(symtab.EdgeFallthrough)
	}
	return bodyIdx, exitIdx, exitOk && bodyOk
}

// --- FOR EACH array ---

func (e *Emitter) emitForEachArrayHeaderTerminator(blk *symtab.Block, fc *ForEachArrayContext) {
	bodyIdx, exitIdx, ok := loopHeaderExitEdges(blk)
	if !ok {
		e.warnCFG(blk.Index, "FOR EACH %s: malformed loop header edges", fc.IterVar)
		return
	}
	idx := e.B.Load("w", "loadw", fc.IndexAddr)
	upperAddr := e.B.Binary("l", "add", fc.DescAddr, "16")
	upperBound64 := e.B.Load("l", "loadl", upperAddr)
	upperBound := e.B.Truncate(upperBound64)
	count := e.B.Binary("w", "add", upperBound, "1")
	cond := e.B.Compare("lt", "w", false)(idx, count)

	matchLbl := e.B.NewLabelName()
	e.B.Branch(cond, matchLbl, e.blockLabelAt(exitIdx))
	e.B.Label(matchLbl)

	ptr := e.RL.ArrayElementAddr(e.B, fc.DescAddr, idx)
	v, vt := e.loadArrayElem(ptr, symtab.TypeDescriptor{Base: fc.ElemBase})
	e.storeVarByName(fc.IterVar, v, vt)
	if fc.IndexVar != "" {
		e.storeVarByName(fc.IndexVar, idx, "w")
	}
	e.B.Jump(e.blockLabelAt(bodyIdx))
}

func (e *Emitter) emitForEachArrayIncTerminator(blk *symtab.Block, fc *ForEachArrayContext) {
	headerIdx, ok := blk.Successor(symtab.EdgeBackEdge)
	if !ok {
		e.warnCFG(blk.Index, "FOR EACH %s: missing back-edge to header", fc.IterVar)
		return
	}
	idx := e.B.Load("w", "loadw", fc.IndexAddr)
	e.B.Store("w", e.B.Binary("w", "add", idx, "1"), fc.IndexAddr)
	e.B.Jump(e.blockLabelAt(headerIdx))
}

// --- FOR EACH list ---

func (e *Emitter) emitForEachListHeaderTerminator(blk *symtab.Block, fc *ForEachListContext) {
	bodyIdx, exitIdx, ok := loopHeaderExitEdges(blk)
	if !ok {
		e.warnCFG(blk.Index, "FOR EACH %s: malformed loop header edges", fc.IterVar)
		return
	}
	cursor := e.B.Load("l", "loadl", fc.CursorAddr)
	isNull := e.B.Compare("eq", "l", false)(cursor, "0")

	contLbl := e.B.NewLabelName()
	e.B.Branch(isNull, e.blockLabelAt(exitIdx), contLbl)
	e.B.Label(contLbl)

	switch baseToKind(fc.ElemBase) {
	case KindInteger:
		v := e.RL.Call(e.B, "list_iter_value_int", []CallArg{{"l", cursor}})
		e.storeVarByName(fc.IterVar, v, "w")
	case KindString:
		v := e.RL.Call(e.B, "list_iter_value_ptr", []CallArg{{"l", cursor}})
		e.storeVarByName(fc.IterVar, v, "l")
	default:
		v := e.RL.Call(e.B, "list_iter_value_float", []CallArg{{"l", cursor}})
		e.storeVarByName(fc.IterVar, v, "d")
	}
	if fc.IndexVar != "" {
		idx := e.B.Load("w", "loadw", fc.IndexAddr)
		e.storeVarByName(fc.IndexVar, idx, "w")
	}
	e.B.Jump(e.blockLabelAt(bodyIdx))
}

func (e *Emitter) emitForEachListIncTerminator(blk *symtab.Block, fc *ForEachListContext) {
	headerIdx, ok := blk.Successor(symtab.EdgeBackEdge)
	if !ok {
		e.warnCFG(blk.Index, "FOR EACH %s: missing back-edge to header", fc.IterVar)
		return
	}
	cursor := e.B.Load("l", "loadl", fc.CursorAddr)
	next := e.RL.Call(e.B, "list_iter_next", []CallArg{{"l", cursor}})
	e.B.Store("l", next, fc.CursorAddr)
	idx := e.B.Load("w", "loadw", fc.IndexAddr)
	e.B.Store("w", e.B.Binary("w", "add", idx, "1"), fc.IndexAddr)
	e.B.Jump(e.blockLabelAt(headerIdx))
}

// --- FOR EACH hashmap ---

func (e *Emitter) emitForEachHashmapHeaderTerminator(blk *symtab.Block, fc *ForEachHashmapContext) {
	bodyIdx, exitIdx, ok := loopHeaderExitEdges(blk)
	if !ok {
		e.warnCFG(blk.Index, "FOR EACH %s: malformed loop header edges", fc.KeyVar)
		return
	}
	idx := e.B.Load("w", "loadw", fc.IndexAddr)
	size := e.B.Load("w", "loadw", fc.SizeAddr)
	cond := e.B.Compare("lt", "w", false)(idx, size)

	contLbl := e.B.NewLabelName()
	e.B.Branch(cond, contLbl, e.blockLabelAt(exitIdx))
	e.B.Label(contLbl)

	keysPtr := e.B.Load("l", "loadl", fc.KeysAddr)
	key := e.RL.Call(e.B, "list_get_ptr", []CallArg{{"l", keysPtr}, {"w", idx}})
	e.storeVarByName(fc.KeyVar, key, "l")
	if fc.ValueVar != "" {
		mapVal := e.B.Load("l", "loadl", fc.MapAddr)
		val := e.RL.HashmapLookup(e.B, mapVal, key)
		e.storeVarByName(fc.ValueVar, val, "l")
	}
	e.B.Jump(e.blockLabelAt(bodyIdx))
}

func (e *Emitter) emitForEachHashmapIncTerminator(blk *symtab.Block, fc *ForEachHashmapContext) {
	headerIdx, ok := blk.Successor(symtab.EdgeBackEdge)
	if !ok {
		e.warnCFG(blk.Index, "FOR EACH %s: missing back-edge to header", fc.KeyVar)
		return
	}
	idx := e.B.Load("w", "loadw", fc.IndexAddr)
	e.B.Store("w", e.B.Binary("w", "add", idx, "1"), fc.IndexAddr)
	e.B.Jump(e.blockLabelAt(headerIdx))
}

// --- SELECT CASE ---

// emitCaseTerminator compares the selector temp against this block's
// CaseTestStmt value (absent on a CASE OTHERWISE, which matches
// unconditionally), using string_compare for string selectors and a direct
// typed comparison otherwise (spec.md §4.6 "SELECT CASE").
func (e *Emitter) emitCaseTerminator(blk *symtab.Block, fc *CaseContext) {
	matchIdx, hasMatch := blk.Successor(symtab.EdgeCaseMatch)
	nextIdx, hasNext := blk.Successor(symtab.EdgeCaseNext)

	var testStmt *ast.CaseTestStmt
	for _, s := range blk.Stmts {
		if ct, ok := s.(*ast.CaseTestStmt); ok {
			testStmt = ct
			break
		}
	}
	if testStmt == nil {
		if hasMatch {
			e.B.Jump(e.blockLabelAt(matchIdx))
			return
		}
		e.emitExitTerminator(blk)
		return
	}
	if !hasMatch {
		e.warnCFG(blk.Index, "CASE test missing match edge")
		return
	}

	want := e.TM.ParamType(fc.SelectorBase)
	selVal := e.B.Load(want, e.TM.LoadMnemonic(fc.SelectorBase), fc.SelectorTemp)
	testVal, testT := e.EmitExpr(testStmt.Value)

	var cond string
	if fc.SelectorBase == symtab.String {
		cmp := e.RL.StringCompare(e.B, selVal, testVal)
		cond = e.B.Compare("eq", "w", false)(cmp, "0")
	} else {
		testVal = e.promoteTo(testVal, testT, want)
		isFloat := fc.SelectorBase == symtab.Double || fc.SelectorBase == symtab.Single
		cond = e.B.Compare("eq", want, isFloat)(selVal, testVal)
	}

	if hasNext {
		e.B.Branch(cond, e.blockLabelAt(matchIdx), e.blockLabelAt(nextIdx))
	} else {
		e.B.Jump(e.blockLabelAt(matchIdx))
	}
}

// --- MATCH TYPE ---

func (e *Emitter) emitMatchTypeTerminator(blk *symtab.Block, fc *MatchTypeContext) {
	matchIdx, hasMatch := blk.Successor(symtab.EdgeCaseMatch)
	nextIdx, hasNext := blk.Successor(symtab.EdgeCaseNext)

	var testStmt *ast.CaseTestStmt
	for _, s := range blk.Stmts {
		if ct, ok := s.(*ast.CaseTestStmt); ok {
			testStmt = ct
			break
		}
	}
	if testStmt == nil {
		if hasMatch {
			e.B.Jump(e.blockLabelAt(matchIdx))
			return
		}
		e.emitExitTerminator(blk)
		return
	}
	if !hasMatch {
		e.warnCFG(blk.Index, "MATCH TYPE test missing match edge")
		return
	}

	tag, className := matchArmTagCode(e.Table, testStmt.Value)
	var cond string
	switch {
	case tag == typeTagClass:
		cls := e.Table.Classes[className]
		cond = e.RL.Call(e.B, "class_is_instance", []CallArg{{"l", fc.CursorTemp}, {"w", fmt.Sprintf("%d", cls.ClassID)}})
	case tag < 0:
		e.warnCFG(blk.Index, "MATCH TYPE: unresolved arm type")
		cond = "0"
	default:
		cond = e.B.Compare("eq", "w", false)(fc.TagTemp, fmt.Sprintf("%d", tag))
	}

	if hasNext {
		e.B.Branch(cond, e.blockLabelAt(matchIdx), e.blockLabelAt(nextIdx))
	} else {
		e.B.Jump(e.blockLabelAt(matchIdx))
	}
}

// --- MATCH RECEIVE ---

// emitMatchReceiveTerminator dispatches one arm in declaration order
// (fc.ArmIndex tracks progress across the chained test blocks). The
// matched arm's forward/bind bookkeeping is applied at its body block's
// entry instead of here (see enterMatchArm): RPO emits every test block in
// this chain before any arm body runs, so setting e.activeForward at
// dispatch time would leave the last-dispatched arm's setting in place for
// every earlier arm's body (spec.md §4.5 "Zero-copy forwarding").
func (e *Emitter) emitMatchReceiveTerminator(blk *symtab.Block, fc *MatchReceiveContext) {
	matchIdx, hasMatch := blk.Successor(symtab.EdgeCaseMatch)
	nextIdx, hasNext := blk.Successor(symtab.EdgeCaseNext)

	if fc.ArmIndex >= len(fc.Arms) {
		e.warnCFG(blk.Index, "MATCH RECEIVE: more test blocks than arms")
		if hasMatch {
			e.B.Jump(e.blockLabelAt(matchIdx))
			return
		}
		e.emitExitTerminator(blk)
		return
	}
	arm := fc.Arms[fc.ArmIndex]
	fc.ArmIndex++

	tag, className := matchArmTagCode(e.Table, &ast.StringLit{Value: arm.TypeTag})
	var cond string
	switch {
	case tag == typeTagClass || className != "":
		payload := e.RL.MsgBlobPayloadPtr(e.B, fc.BlobTemp)
		cond = e.RL.Call(e.B, "class_is_instance", []CallArg{{"l", payload}, {"w", fmt.Sprintf("%d", arm.ClassID)}})
	case tag < 0:
		e.warnCFG(blk.Index, "MATCH RECEIVE: unresolved arm type %s", arm.TypeTag)
		cond = "0"
	default:
		cond = e.B.Compare("eq", "w", false)(fc.TagTemp, fmt.Sprintf("%d", tag))
	}

	if !hasMatch {
		e.warnCFG(blk.Index, "MATCH RECEIVE test missing match edge")
		return
	}
	if hasNext {
		e.B.Branch(cond, e.blockLabelAt(matchIdx), e.blockLabelAt(nextIdx))
	} else {
		e.B.Jump(e.blockLabelAt(matchIdx))
	}
}
