package codegen

import (
	"fmt"
	"strings"

	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// terminalOpTable maps a TerminalStmt.Op to its runtime call and the IL
// type of each argument, in order (spec.md §4.6 "Terminal control").
var terminalOpTable = map[string]struct {
	name string
	args []string
}{
	"CLS":          {"term_cls", nil},
	"GCLS":         {"term_gcls", nil},
	"CURSOR_HIDE":  {"term_cursor_hide", nil},
	"CURSOR_SHOW":  {"term_cursor_show", nil},
	"ALT_SCREEN":   {"term_alt_screen", nil},
	"MAIN_SCREEN":  {"term_main_screen", nil},
	"BEGIN_DRAW":   {"term_begin_draw", nil},
	"END_DRAW":     {"term_end_draw", nil},
	"FLUSH":        {"term_flush", nil},
	"COLOR":        {"term_color", []string{"w"}},
	"STYLE":        {"term_style", []string{"w"}},
	"LOCATE":       {"term_locate", []string{"w", "w"}},
	"WRCH":         {"term_wrch", []string{"w"}},
	"WRSTR":        {"term_wrstr", []string{"l"}},
	"MOUSE_ENABLE": {"mouse_enable", nil},
	"MOUSE_DISABLE": {"mouse_disable", nil},
}

func (e *Emitter) emitTerminalStmt(st *ast.TerminalStmt) {
	op, ok := terminalOpTable[strings.ToUpper(st.Op)]
	if !ok {
		e.warn(-1, "unsupported terminal op %s", st.Op)
		return
	}
	args := e.coerceOpArgs(op.args, st.Args)
	e.RL.Call(e.B, op.name, args)
}

var keyboardOpTable = map[string]struct {
	name string
	args []string
}{
	"RAW_MODE":  {"kbd_raw_mode", []string{"w"}},
	"ECHO_MODE": {"kbd_echo_mode", []string{"w"}},
	"FLUSH":     {"kbd_flush", nil},
}

func (e *Emitter) emitKeyboardStmt(st *ast.KeyboardStmt) {
	op, ok := keyboardOpTable[strings.ToUpper(st.Op)]
	if !ok {
		e.warn(-1, "unsupported keyboard op %s", st.Op)
		return
	}
	args := e.coerceOpArgs(op.args, st.Args)
	e.RL.Call(e.B, op.name, args)
}

func (e *Emitter) coerceOpArgs(types []string, exprs []ast.Expr) []CallArg {
	args := make([]CallArg, 0, len(types))
	for i, t := range types {
		if i >= len(exprs) {
			args = append(args, CallArg{t, "0"})
			continue
		}
		var v string
		switch t {
		case "w":
			v, _ = e.toInt(exprs[i])
		case "d":
			v, _ = e.toDouble(exprs[i])
		default:
			v, _ = e.EmitExpr(exprs[i])
		}
		args = append(args, CallArg{t, v})
	}
	return args
}

// emitSendStmt lowers SEND <value> TO <handle>: structured values marshal
// through msg_send_udt/msg_send_class; scalars and strings use the typed
// msg_send_* helpers (spec.md §4.5 "Concurrency primitives"). Inside a
// forward-arm body, sending the bound variable back to the same-direction
// handle takes the zero-copy path instead (spec.md §4.6 "Inside a
// forward-arm body...", §5 ownership-transfer guarantee).
func (e *Emitter) emitSendStmt(st *ast.SendStmt) {
	if e.emitForwardSend(st) {
		return
	}
	q, _ := e.resolveQueue(st.Handle)
	if typeName := e.exprTypeName(st.Value); typeName != "" {
		v, _ := e.EmitExpr(st.Value)
		size := e.TM.SizeOfUDT(typeName)
		if e.exprBase(st.Value) == symtab.ClassInstance {
			e.RL.Call(e.B, "msg_send_class", []CallArg{{"l", q}, {"l", v}, {"w", fmt.Sprintf("%d", size)}})
		} else {
			e.RL.Call(e.B, "msg_send_udt", []CallArg{{"l", q}, {"l", v}, {"w", fmt.Sprintf("%d", size)}})
		}
		return
	}
	switch e.classify(st.Value) {
	case KindString:
		v, _ := e.EmitExpr(st.Value)
		e.RL.Call(e.B, "msg_send_string", []CallArg{{"l", q}, {"l", v}})
	case KindInteger:
		v, _ := e.toInt(st.Value)
		e.RL.Call(e.B, "msg_send_int", []CallArg{{"l", q}, {"w", v}})
	default:
		v, _ := e.toDouble(st.Value)
		e.RL.Call(e.B, "msg_send_double", []CallArg{{"l", q}, {"d", v}})
	}
}

// emitForwardSend recognizes the one SEND shape that qualifies as a
// zero-copy forward: inside a forward-arm body, sending the arm's own
// bound variable back out on the same-direction handle it was received
// from. When it matches, it emits msg_blob_forward and nulls the tracked
// blob slot (so the merge block's later msg_blob_free becomes a no-op) and
// skips the normal marshal+push path entirely (spec.md §4.6 "Inside a
// forward-arm body...").
func (e *Emitter) emitForwardSend(st *ast.SendStmt) bool {
	fc := e.activeForward
	if fc == nil {
		return false
	}
	vr, ok := st.Value.(*ast.VarRef)
	if !ok || strings.ToUpper(vr.Name) != fc.BindVarUpper {
		return false
	}
	_, stHandleIsParent := st.Handle.(*ast.ParentExpr)
	if stHandleIsParent != fc.HandleIsParent {
		return false
	}
	q := e.B.Load("l", "loadl", fc.QueueTemp)
	e.RL.MsgBlobForward(e.B, fc.BlobTemp, q)
	if fc.BlobSlotAddr != "" {
		e.B.Store("l", "0", fc.BlobSlotAddr)
	}
	return true
}

// emitTimerStmt lowers AFTER/EVERY ... SEND, TIMER STOP[ ALL], and the
// legacy TIMER STOP <handler> form, which DESIGN.md's Open Question
// Decision #4 documents as a no-op (the handler argument named a
// pre-messaging callback style this language no longer supports).
func (e *Emitter) emitTimerStmt(st *ast.TimerStmt) {
	switch st.Kind {
	case "after_send", "every_send":
		delayMs, _ := e.toDouble(st.Delay)
		if strings.EqualFold(st.Unit, "SECONDS") {
			delayMs = e.B.Binary("d", "mul", delayMs, "1000.0")
		} else if strings.EqualFold(st.Unit, "MINUTES") {
			delayMs = e.B.Binary("d", "mul", delayMs, "60000.0")
		}
		delayMsI := e.B.Convert("l", "dtosi", delayMs)
		q, _ := e.resolveQueue(st.Handle)
		v, _ := e.toDouble(st.Value)
		vBits := e.B.Convert("l", "cast", v)
		name := "timer_after_send"
		if st.Kind == "every_send" {
			name = "timer_every_send"
		}
		e.RL.Call(e.B, name, []CallArg{{"l", delayMsI}, {"l", q}, {"l", vBits}})
	case "stop":
		id, _ := e.toInt(st.TimerID)
		e.RL.Call(e.B, "timer_stop", []CallArg{{"w", id}})
	case "stop_all":
		e.RL.Call(e.B, "timer_stop_all", nil)
	case "stop_handler":
		e.B.Comment("TIMER STOP %s: legacy handler form, no-op", st.Handler)
	}
}

// emitUnmarshallStmt lowers UNMARSHALL <target> FROM <value>: the deep
// variant is chosen when the target type has a string field, mirroring
// emitMarshall's symmetric choice.
func (e *Emitter) emitUnmarshallStmt(st *ast.UnmarshallStmt) {
	base := e.lookupVarBase(st.Target, symtab.SuffixOf(st.Target))
	typeName := ""
	if e.Func != nil {
		if s, ok := e.Func.Lookup(st.Target); ok {
			typeName = s.AsType
		}
	}
	if typeName == "" {
		if v, ok := e.Table.LookupVariable(e.funcUpper(), st.Target); ok {
			typeName = v.UDTName
		}
	}
	blob, _ := e.toInt64Bits(st.Value)
	size := e.TM.SizeOfUDT(typeName)
	var ptr string
	if hasStringField(e.Table, typeName) {
		offsets := "$" + e.SM.StrOffsetsLabel(typeName)
		ptr = e.RL.Call(e.B, "unmarshall_udt_deep", []CallArg{{"l", blob}, {"w", fmt.Sprintf("%d", size)}, {"l", offsets}})
	} else {
		ptr = e.RL.Call(e.B, "unmarshall_udt", []CallArg{{"l", blob}, {"w", fmt.Sprintf("%d", size)}})
	}
	addr, _, _, ok := e.resolveVarTarget(st.Target)
	if !ok {
		return
	}
	if base == symtab.UserDefined {
		e.B.Blit(ptr, addr, size)
	} else {
		e.B.Store("l", ptr, addr)
	}
}

func (e *Emitter) toInt64Bits(expr ast.Expr) (string, string) {
	v, t := e.EmitExpr(expr)
	if t == "d" {
		return e.B.Convert("l", "cast", v), "l"
	}
	return e.promoteTo(v, t, "l"), "l"
}
