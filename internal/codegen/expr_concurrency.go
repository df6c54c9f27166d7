package codegen

import (
	"fmt"
	"strings"

	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// emitSpawn packages arguments into a worker_args block and calls
// worker_spawn / worker_spawn_messaging, bit-casting the returned l handle
// to d for storage in a double variable (spec.md §4.5 "Concurrency
// primitives").
func (e *Emitter) emitSpawn(n *ast.SpawnExpr) (string, string) {
	upper := strings.ToUpper(n.Target)
	fn, ok := e.Table.Functions[upper]
	if !ok {
		e.warn(-1, "unresolved worker/function %s", n.Target)
		return "d_0", "d"
	}
	nSlots := len(fn.Params)
	if fn.UsesMessaging {
		nSlots++
	}
	args := e.RL.Call(e.B, "worker_args_alloc", []CallArg{{"w", fmt.Sprintf("%d", nSlots)}})
	for i, a := range n.Args {
		e.storeWorkerArg(args, i, a, fn.Params[i].Type)
	}
	fnPtr := "$" + e.workerFuncName(n.Target, fn)
	handle := e.RL.WorkerSpawn(e.B, fnPtr, args, n.Messaging || fn.UsesMessaging)
	return e.B.Convert("d", "cast", handle), "d"
}

func (e *Emitter) workerFuncName(name string, fn *symtab.FunctionSymbol) string {
	if fn.IsFunction {
		return e.SM.Function(name)
	}
	return e.SM.Sub(name)
}

func (e *Emitter) storeWorkerArg(args string, slot int, val ast.Expr, target symtab.TypeDescriptor) {
	idx := fmt.Sprintf("%d", slot)
	switch baseToKind(target.Base) {
	case KindInteger:
		v, _ := e.toInt(val)
		e.RL.Call(e.B, "worker_args_set_int", []CallArg{{"l", args}, {"w", idx}, {"w", v}})
	case KindString:
		v, _ := e.EmitExpr(val)
		e.RL.Call(e.B, "worker_args_set_ptr", []CallArg{{"l", args}, {"w", idx}, {"l", v}})
	default:
		v, _ := e.toDouble(val)
		e.RL.Call(e.B, "worker_args_set_double", []CallArg{{"l", args}, {"w", idx}, {"d", v}})
	}
}

func (e *Emitter) handleAsPtr(h ast.Expr) string {
	v, t := e.EmitExpr(h)
	if t == "d" {
		return e.B.Convert("l", "cast", v)
	}
	return v
}

// emitAwait casts the d-stored handle back to l and calls worker_await.
func (e *Emitter) emitAwait(n *ast.AwaitExpr) (string, string) {
	h := e.handleAsPtr(n.Handle)
	r := e.RL.WorkerAwait(e.B, h)
	return e.B.Convert("d", "cast", r), "d"
}

func (e *Emitter) emitReady(n *ast.ReadyExpr) (string, string) {
	h := e.handleAsPtr(n.Handle)
	return e.RL.WorkerReady(e.B, h), "w"
}

// resolveQueue resolves the target queue for RECEIVE/HASMESSAGE/SEND: the
// outbox when the handle is PARENT inside a messaging worker, the inbox
// otherwise (spec.md §4.5 "Concurrency primitives", §4.6 "MATCH RECEIVE").
func (e *Emitter) resolveQueue(h ast.Expr) (queue string, isParent bool) {
	if _, ok := h.(*ast.ParentExpr); ok {
		if e.Func != nil {
			if s, ok := e.Func.Lookup("__PARENT_HANDLE"); ok {
				handle := e.B.Load("l", "loadl", s.Addr)
				outbox := e.B.Binary("l", "add", handle, "8")
				return e.B.Load("l", "loadl", outbox), true
			}
		}
		e.warn(-1, "PARENT used outside a messaging worker")
		return "0", true
	}
	handle := e.handleAsPtr(h)
	inbox := handle
	return e.B.Load("l", "loadl", inbox), false
}

func (e *Emitter) emitReceive(n *ast.ReceiveExpr) (string, string) {
	q, _ := e.resolveQueue(n.Handle)
	blob := e.RL.MsgQueuePop(e.B, q)
	return e.B.Convert("d", "cast", blob), "d"
}

func (e *Emitter) emitHasMessage(n *ast.HasMessageExpr) (string, string) {
	q, _ := e.resolveQueue(n.Handle)
	return e.RL.MsgQueueHasMessage(e.B, q), "w"
}

// emitParent resolves to the hidden __parent_handle parameter of the
// enclosing messaging-worker function.
func (e *Emitter) emitParent(n *ast.ParentExpr) (string, string) {
	if e.Func != nil {
		if s, ok := e.Func.Lookup("__PARENT_HANDLE"); ok {
			h := e.B.Load("l", "loadl", s.Addr)
			return e.B.Convert("d", "cast", h), "d"
		}
	}
	e.warn(-1, "PARENT used outside a messaging worker")
	return "d_0", "d"
}

// emitCancelled reads the cancel flag on the handle's outbox queue.
func (e *Emitter) emitCancelled(n *ast.CancelledExpr) (string, string) {
	h := e.handleAsPtr(n.Handle)
	outboxAddr := e.B.Binary("l", "add", h, "8")
	outbox := e.B.Load("l", "loadl", outboxAddr)
	flagAddr := e.B.Binary("l", "add", outbox, "16")
	return e.B.Load("w", "loadw", flagAddr), "w"
}

// emitMarshall lowers MARSHALL(expr): arrays call marshall_array, UDT/class
// values call marshall_udt / marshall_udt_deep (the deep variant when the
// type has a string field, passing the compile-time string-offset table).
func (e *Emitter) emitMarshall(n *ast.MarshallExpr) (string, string) {
	typeName := e.exprTypeName(n.Value)
	if typeName == "" {
		if v, ok := n.Value.(*ast.VarRef); ok {
			if _, ok := e.Table.Arrays[symtab.StripSuffix(strings.ToUpper(v.Name))]; ok {
				descAddr := "$" + e.SM.ArrayDescriptor(v.Name)
				if e.Func != nil {
					if s, ok := e.Func.Lookup(v.Name); ok {
						descAddr = s.Addr
					}
				}
				r := e.RL.Call(e.B, "marshall_array", []CallArg{{"l", descAddr}})
				return e.B.Convert("d", "cast", r), "d"
			}
		}
		e.warn(-1, "unresolved MARSHALL target")
		return "d_0", "d"
	}
	ptr, _ := e.EmitExpr(n.Value)
	size := e.TM.SizeOfUDT(typeName)
	if hasStringField(e.Table, typeName) {
		offsets := "$" + e.SM.StrOffsetsLabel(typeName)
		r := e.RL.Call(e.B, "marshall_udt_deep", []CallArg{{"l", ptr}, {"w", fmt.Sprintf("%d", size)}, {"l", offsets}})
		return e.B.Convert("d", "cast", r), "d"
	}
	r := e.RL.Call(e.B, "marshall_udt", []CallArg{{"l", ptr}, {"w", fmt.Sprintf("%d", size)}})
	return e.B.Convert("d", "cast", r), "d"
}

// hasStringField reports whether typeName has any string field, recursing
// into nested UDT fields (used to choose marshall_udt vs marshall_udt_deep
// and to decide whether str_offsets_TYPE needs emitting).
func hasStringField(t *symtab.Table, typeName string) bool {
	udt, ok := t.Types[typeName]
	if !ok {
		return false
	}
	for _, f := range udt.Fields {
		if f.Type.Base == symtab.String || f.Type.Base == symtab.Unicode || f.Type.Base == symtab.StringDescriptor {
			return true
		}
		if f.Type.Base == symtab.UserDefined && hasStringField(t, f.Type.TypeName) {
			return true
		}
	}
	return false
}
