package codegen

import (
	"fmt"
	"strings"

	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// EmitBlock emits one basic block's label, its statements, and its
// terminator, in that order (spec.md §4.6). Grounded on the teacher's
// backend_ir.go per-Inst.Op label/jump formatting, generalized from a flat
// instruction stream to a CFG block's statement list plus edge-driven
// terminator.
func (e *Emitter) EmitBlock(blk *symtab.Block) {
	e.B.Label(blockLabel(blk))
	e.EmitBlockBody(blk)
}

// EmitBlockBody emits a block's statements and terminator without its
// leading label, so a function's entry block can have prologue
// instructions (local hoisting, SAMM scope-enter) interleaved between the
// label and the first user statement (spec.md §4.7, function prologue).
func (e *Emitter) EmitBlockBody(blk *symtab.Block) {
	e.enterMatchArm(blk)
	e.emitMergeCleanup(blk)
	for _, s := range blk.Stmts {
		e.emitStmt(blk, s)
	}
	e.emitTerminator(blk)
}

// enterMatchArm applies a MATCH RECEIVE arm's entry action, if this block is
// registered as that arm's body: a forward arm arms e.activeForward for the
// duration of the block; a non-forward bound arm extracts its payload once,
// via the trampoline matching its declared type (spec.md §4.5 "Zero-copy
// forwarding", §4.6 "MATCH RECEIVE"). Neither path frees the blob itself —
// that happens exactly once, at the construct's merge block, regardless of
// which arm (if any) matched.
func (e *Emitter) enterMatchArm(blk *symtab.Block) {
	e.activeForward = e.activeForwardByBlock[blk.Index]
	if b, ok := e.matchBindByBlock[blk.Index]; ok {
		e.emitMatchBind(b)
	}
}

// emitMergeCleanup frees a MATCH RECEIVE's blob reference once control
// reaches its merge block: loaded from the forward-tracking slot (possibly
// null, making the free a no-op) when any arm of the construct could
// forward, or the plain popped-blob temp otherwise (spec.md §3 "Merge
// Cleanup Map", §4.6 "MATCH RECEIVE").
func (e *Emitter) emitMergeCleanup(blk *symtab.Block) {
	mc, ok := e.mergeCleanup[blk.Index]
	if !ok {
		return
	}
	blob := mc.BlobRef
	if mc.NeedsLoad {
		blob = e.B.Load("l", "loadl", mc.BlobRef)
	}
	e.RL.MsgBlobFree(e.B, blob)
}

// isScalarIntTag, isScalarDoubleTag, isStringTag classify a MATCH RECEIVE
// arm's declared TypeTag the same way matchArmTagCode's keyword sets do
// (block_case.go), so emitMatchBind can pick the matching trampoline.
func isScalarIntTag(tag string) bool {
	switch strings.ToUpper(tag) {
	case "INTEGER", "LONG", "SHORT", "BYTE":
		return true
	}
	return false
}

func isScalarDoubleTag(tag string) bool {
	switch strings.ToUpper(tag) {
	case "DOUBLE", "SINGLE":
		return true
	}
	return false
}

func isStringTag(tag string) bool {
	switch strings.ToUpper(tag) {
	case "STRING", "UNICODE":
		return true
	}
	return false
}

// emitMatchBind extracts a MATCH RECEIVE arm's bound value from the popped
// blob via the trampoline its declared type requires (spec.md §4.6): a
// scalar arm reads the blob's inline value slot (offset 16) as a value —
// treating the offset-8 payload pointer as a bit pattern would convert a
// heap address into a bogus number; a STRING arm loads the descriptor
// pointer from that same inline slot and nulls it (ownership transfer); a
// UDT/CLASS arm allocates and unmarshals a fresh copy before the envelope
// can be freed, since aliasing the live payload pointer and then freeing
// the blob out from under it would be a use-after-free.
func (e *Emitter) emitMatchBind(b *MatchBindAction) {
	inlineAddr := e.B.Binary("l", "add", b.BlobTemp, "16")
	switch {
	case isScalarIntTag(b.TypeTag):
		v := e.B.Load("w", "loadw", inlineAddr)
		e.storeVarByName(b.Var, v, "w")
	case isScalarDoubleTag(b.TypeTag):
		v := e.B.Load("d", "loadd", inlineAddr)
		e.storeVarByName(b.Var, v, "d")
	case isStringTag(b.TypeTag):
		v := e.B.Load("l", "loadl", inlineAddr)
		e.storeVarByName(b.Var, v, "l")
		e.B.Store("l", "0", inlineAddr)
	default:
		e.emitMatchUDTBind(b)
	}
}

// emitMatchUDTBind is emitMatchBind's UDT/CLASS trampoline: malloc+unmarshal
// a fresh copy from the blob's payload (mirroring emitUnmarshallStmt's own
// unmarshall_udt/unmarshall_udt_deep choice), then null the blob's payload
// pointer (offset 8) so the merge block's later msg_blob_free cannot also
// free the copy's source bytes out from under it.
func (e *Emitter) emitMatchUDTBind(b *MatchBindAction) {
	typeName := strings.ToUpper(b.TypeTag)
	payload := e.RL.MsgBlobPayloadPtr(e.B, b.BlobTemp)
	size := e.TM.SizeOfUDT(typeName)
	var ptr string
	if hasStringField(e.Table, typeName) {
		offsets := "$" + e.SM.StrOffsetsLabel(typeName)
		ptr = e.RL.Call(e.B, "unmarshall_udt_deep", []CallArg{{"l", payload}, {"w", fmt.Sprintf("%d", size)}, {"l", offsets}})
	} else {
		ptr = e.RL.Call(e.B, "unmarshall_udt", []CallArg{{"l", payload}, {"w", fmt.Sprintf("%d", size)}})
	}
	base := e.lookupVarBase(b.Var, symtab.SuffixOf(b.Var))
	addr, _, _, ok := e.resolveVarTarget(b.Var)
	if !ok {
		return
	}
	if base == symtab.UserDefined {
		e.B.Blit(ptr, addr, size)
	} else {
		e.B.Store("l", ptr, addr)
	}
	payloadAddr := e.B.Binary("l", "add", b.BlobTemp, "8")
	e.B.Store("l", "0", payloadAddr)
}

// blockLabel names a block's IL label: its declared Name (GOTO/GOSUB
// target) if any, else a generic id_N form scoped by block index so labels
// stay stable across re-emission (spec.md §8 "Round-trip and idempotence").
func blockLabel(blk *symtab.Block) string {
	if blk.Name != "" {
		return blk.Name
	}
	return genericBlockLabel(blk.Index)
}

func genericBlockLabel(idx int) string {
	return "bb_" + itoa(idx)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// emitStmt dispatches one statement. Leaf statements emit code directly;
// control-flow statements (IF/WHILE/DO/FOR/...) only perform the setup
// their own block needs — branching is CFG-edge-driven and handled by
// emitTerminator. REM/OPTION/labels/type-class-data declarations and
// function/sub/worker definitions are no-ops here (spec.md §4.6).
func (e *Emitter) emitStmt(blk *symtab.Block, s ast.Stmt) {
	switch st := s.(type) {
	case *ast.PrintStmt:
		e.emitPrintStmt(st)
	case *ast.ConsoleStmt:
		e.emitConsoleStmt(st)
	case *ast.LetStmt:
		e.emitLetStmt(st)
	case *ast.DimStmt:
		e.emitDimStmt(st)
	case *ast.LocalStmt:
		e.emitLocalStmt(st)
	case *ast.SharedStmt:
		for _, n := range st.Names {
			e.SM.RegisterShared(n)
		}
	case *ast.CallStmt:
		e.emitCallStmt(st)
	case *ast.ReturnStmt:
		e.emitReturnStmt(blk, st)
	case *ast.IncDecStmt:
		e.emitIncDecStmt(st)
	case *ast.SwapStmt:
		e.emitSwapStmt(st)
	case *ast.EraseStmt:
		e.emitEraseStmt(st)
	case *ast.InputStmt:
		e.emitInputStmt(st)
	case *ast.TerminalStmt:
		e.emitTerminalStmt(st)
	case *ast.KeyboardStmt:
		e.emitKeyboardStmt(st)
	case *ast.SendStmt:
		e.emitSendStmt(st)
	case *ast.CancelStmt:
		h := e.handleAsPtr(st.Handle)
		e.RL.Call(e.B, "msg_cancel", []CallArg{{"l", h}})
	case *ast.TimerStmt:
		e.emitTimerStmt(st)
	case *ast.UnmarshallStmt:
		e.emitUnmarshallStmt(st)
	case *ast.ForStmt:
		e.emitForInit(blk, st)
	case *ast.ForEachStmt:
		e.emitForEachInit(blk, st)
	case *ast.SelectCaseStmt:
		e.emitSelectCaseInit(blk, st)
	case *ast.MatchTypeStmt:
		e.emitMatchTypeInit(blk, st)
	case *ast.MatchReceiveStmt:
		e.emitMatchReceiveInit(blk, st)
	case *ast.OnErrorStmt:
		e.emitOnErrorStmt(st)
	case *ast.CaseTestStmt, *ast.IfStmt, *ast.WhileStmt, *ast.DoStmt,
		*ast.TryCatchStmt, *ast.GotoStmt, *ast.GosubStmt, *ast.ExitStmt,
		*ast.EndStmt, *ast.OnGotoStmt, *ast.ResumeStmt:
		// Setup-free control-flow statements: branching lives entirely in
		// emitTerminator, driven by the block's outgoing CFG edges.
	case *ast.RemStmt, *ast.OptionStmt:
		// no-ops at block-statement level
	default:
		e.warn(blk.Index, "unsupported statement node %T", s)
	}
}

func (e *Emitter) emitCallStmt(st *ast.CallStmt) {
	e.EmitExpr(&ast.CallExpr{Name: st.Name, Args: st.Args})
}

func (e *Emitter) emitIncDecStmt(st *ast.IncDecStmt) {
	amount := st.Amount
	if amount == nil {
		amount = &ast.NumberLit{IsInt: true, IntVal: 1, Value: 1}
	}
	target := ast.MemberChain{Root: st.Name}
	op := "+"
	if st.Dec {
		op = "-"
	}
	e.emitLetStmt(&ast.LetStmt{
		Target: target,
		Value:  &ast.BinOp{Op: op, Left: &ast.VarRef{Name: st.Name}, Right: amount},
	})
}

func (e *Emitter) emitSwapStmt(st *ast.SwapStmt) {
	a, at := e.EmitExpr(&ast.VarRef{Name: st.A})
	b, _ := e.EmitExpr(&ast.VarRef{Name: st.B})
	e.storeVarByName(st.A, b, at)
	e.storeVarByName(st.B, a, at)
}

func (e *Emitter) emitEraseStmt(st *ast.EraseStmt) {
	descAddr := "$" + e.SM.ArrayDescriptor(st.Name)
	if e.Func != nil {
		if s, ok := e.Func.Lookup(st.Name); ok {
			descAddr = s.Addr
		}
	}
	e.RL.Call(e.B, "array_erase", []CallArg{{"l", descAddr}})
}

func (e *Emitter) emitInputStmt(st *ast.InputStmt) {
	if st.Prompt != "" {
		lbl := e.B.RegisterString(st.Prompt)
		e.RL.PrintStringDesc(e.B, "$"+lbl)
	}
	line := e.RL.Call(e.B, "basic_read_line", nil)
	e.storeVarByName(st.Target, line, "l")
}

func (e *Emitter) emitOnErrorStmt(st *ast.OnErrorStmt) {
	if st.Label == "0" {
		e.RL.Call(e.B, "error_trap_clear", nil)
		return
	}
	e.RL.Call(e.B, "error_trap_set", []CallArg{{"w", "0"}})
	e.B.Comment("ON ERROR GOTO %s: trap target resolved via CFG error_resume edge", st.Label)
}

// storeVarByName stores val (already in IL type ilType) into the slot for
// name, resolving local-vs-global exactly as emitVarLoad reads it.
func (e *Emitter) storeVarByName(name, val, ilType string) {
	if e.Func != nil {
		if s, ok := e.Func.Lookup(name); ok {
			e.storeSlot(s, val, ilType)
			return
		}
	}
	v, ok := e.Table.LookupVariable(e.funcUpper(), name)
	base := symtab.Double
	if ok {
		base = v.Base
	}
	mangled := e.SM.GlobalVar(name, symtab.SuffixOf(name))
	e.storeGlobal(base, "$"+mangled, val, ilType)
}

func (e *Emitter) storeSlot(s SlotInfo, val, ilType string) {
	if (s.Base == symtab.UserDefined || s.Base == symtab.ClassInstance) && s.Inline {
		e.B.Blit(val, s.Addr, e.TM.Size(s.Base, s.AsType))
		return
	}
	e.storeGlobal(s.Base, s.Addr, val, ilType)
}

func (e *Emitter) storeGlobal(base symtab.BaseType, addr, val, ilType string) {
	want := e.TM.ParamType(base)
	if base == symtab.Single {
		want = "s"
	}
	val = e.promoteTo(val, ilType, want)
	if base == symtab.Single && ilType == "d" {
		val = e.B.Convert("s", "truncd", val)
	}
	e.B.Store(e.TM.StoreSuffix(base), val, addr)
}
