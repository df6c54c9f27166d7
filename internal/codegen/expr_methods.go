package codegen

import (
	"fmt"
	"strings"

	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// classHeaderSize is the fixed vtable-independent prefix (the object's
// own vtable pointer) every heap-allocated class instance carries at
// offset 0, matching the vtable layout spec.md §4.7 step 6 describes.
const classHeaderSize = 8

// vtableHeaderSize is class_id + parent_vtable + class_name_ptr +
// destructor_ptr, before the method-pointer array begins (spec.md §6).
const vtableHeaderSize = 32

// emitMethodCall lowers target.Method(args...) (spec.md §4.5 "Method
// call"): HASHMAP/LIST methods dispatch to the matching runtime function;
// a CLASS instance loads its vtable, computes the slot offset, loads the
// function pointer, and emits an indirect call with ME prepended.
func (e *Emitter) emitMethodCall(n *ast.MethodCallExpr) (string, string) {
	if v, ok := n.Target.(*ast.VarRef); ok {
		if sym, ok := e.Table.LookupVariable(e.funcUpper(), v.Name); ok {
			if sym.ObjectType == "HASHMAP" {
				return e.emitHashmapMethod(v, n)
			}
			if sym.ObjectType == "LIST" {
				return e.emitListMethod(v, n, sym)
			}
		}
	}
	return e.emitClassMethodCall(n)
}

func (e *Emitter) emitHashmapMethod(v *ast.VarRef, n *ast.MethodCallExpr) (string, string) {
	m, _ := e.lookupHandleOperand(v.Name)
	switch strings.ToUpper(n.Method) {
	case "HASKEY":
		key := e.toStringOperand(n.Args[0])
		return e.RL.Call(e.B, "hashmap_has_key", []CallArg{{"l", m}, {"l", key}}), "w"
	case "REMOVE":
		key := e.toStringOperand(n.Args[0])
		return e.RL.Call(e.B, "hashmap_remove", []CallArg{{"l", m}, {"l", key}}), ""
	case "SIZE", "COUNT":
		return e.RL.Call(e.B, "hashmap_size", []CallArg{{"l", m}}), "w"
	case "CLEAR":
		return e.RL.Call(e.B, "hashmap_clear", []CallArg{{"l", m}}), ""
	case "KEYS":
		return e.RL.Call(e.B, "hashmap_keys", []CallArg{{"l", m}}), "l"
	default:
		e.warn(-1, "unresolved HASHMAP method %s", n.Method)
		return "d_0", "d"
	}
}

func (e *Emitter) emitListMethod(v *ast.VarRef, n *ast.MethodCallExpr, sym *symtab.VariableSymbol) (string, string) {
	l, _ := e.lookupHandleOperand(v.Name)
	elemBase := symtab.Double
	if sym.ElemType != nil {
		elemBase = sym.ElemType.Base
	}
	switch strings.ToUpper(n.Method) {
	case "LENGTH", "SIZE", "COUNT":
		return e.RL.Call(e.B, "list_length", []CallArg{{"l", l}}), "w"
	case "EMPTY":
		return e.RL.Call(e.B, "list_empty", []CallArg{{"l", l}}), "w"
	case "APPEND", "ADD":
		return e.emitListValueCall("list_append", l, n.Args[0], elemBase), ""
	case "PREPEND":
		return e.emitListValueCall("list_prepend", l, n.Args[0], elemBase), ""
	case "INSERT":
		idx, _ := e.toInt(n.Args[0])
		val := e.coerceListValue(n.Args[1], elemBase)
		return e.RL.Call(e.B, "list_insert_"+listSuffix(elemBase), []CallArg{{"l", l}, {"w", idx}, val}), ""
	case "GET":
		idx, _ := e.toInt(n.Args[0])
		return e.RL.Call(e.B, "list_get_"+listSuffix(elemBase), []CallArg{{"l", l}, {"w", idx}}), listILType(elemBase)
	case "HEAD":
		return e.RL.Call(e.B, "list_head_"+listSuffix(elemBase), []CallArg{{"l", l}}), listILType(elemBase)
	case "SHIFT":
		return e.RL.Call(e.B, "list_shift_"+listSuffix(elemBase), []CallArg{{"l", l}}), listILType(elemBase)
	case "POP":
		return e.RL.Call(e.B, "list_pop_"+listSuffix(elemBase), []CallArg{{"l", l}}), listILType(elemBase)
	case "REMOVE":
		idx, _ := e.toInt(n.Args[0])
		return e.RL.Call(e.B, "list_remove", []CallArg{{"l", l}, {"w", idx}}), ""
	case "CLEAR":
		return e.RL.Call(e.B, "list_clear", []CallArg{{"l", l}}), ""
	case "ERASE":
		return e.RL.Call(e.B, "list_clear", []CallArg{{"l", l}}), ""
	case "CONTAINS":
		val := e.coerceListValue(n.Args[0], elemBase)
		return e.RL.Call(e.B, "list_contains_"+listSuffix(elemBase), []CallArg{{"l", l}, val}), "w"
	case "INDEXOF":
		val := e.coerceListValue(n.Args[0], elemBase)
		return e.RL.Call(e.B, "list_index_of_"+listSuffix(elemBase), []CallArg{{"l", l}, val}), "w"
	case "JOIN":
		sep, _ := e.EmitExpr(n.Args[0])
		return e.RL.Call(e.B, "list_join", []CallArg{{"l", l}, {"l", sep}}), "l"
	case "COPY":
		return e.RL.Call(e.B, "list_copy", []CallArg{{"l", l}}), "l"
	case "REVERSE":
		return e.RL.Call(e.B, "list_reverse", []CallArg{{"l", l}}), ""
	default:
		e.warn(-1, "unresolved LIST method %s", n.Method)
		return "d_0", "d"
	}
}

func (e *Emitter) emitListValueCall(prefix, l string, arg ast.Expr, elemBase symtab.BaseType) string {
	val := e.coerceListValue(arg, elemBase)
	return e.RL.Call(e.B, prefix+"_"+listSuffix(elemBase), []CallArg{{"l", l}, val})
}

func (e *Emitter) coerceListValue(arg ast.Expr, elemBase symtab.BaseType) CallArg {
	switch baseToKind(elemBase) {
	case KindInteger:
		v, _ := e.toInt(arg)
		return CallArg{"w", v}
	case KindString:
		v, _ := e.EmitExpr(arg)
		return CallArg{"l", v}
	default:
		v, _ := e.toDouble(arg)
		return CallArg{"d", v}
	}
}

func listSuffix(b symtab.BaseType) string {
	switch baseToKind(b) {
	case KindInteger:
		return "int"
	case KindString:
		return "ptr"
	default:
		return "double"
	}
}

func listILType(b symtab.BaseType) string {
	switch baseToKind(b) {
	case KindInteger:
		return "w"
	case KindString:
		return "l"
	default:
		return "d"
	}
}

// emitClassMethodCall lowers dispatch through a loaded vtable pointer
// (spec.md §4.5 "Method call", class branch).
func (e *Emitter) emitClassMethodCall(n *ast.MethodCallExpr) (string, string) {
	typeName := e.exprTypeName(n.Target)
	cls := e.Table.Classes[typeName]
	if cls == nil {
		e.warn(-1, "unresolved class method %s on unknown target", n.Method)
		return "d_0", "d"
	}
	m := findMethod(cls, n.Method)
	if m == nil {
		e.warn(-1, "unresolved method %s.%s", typeName, n.Method)
		return "d_0", "d"
	}
	objAddr, _ := e.emitTargetAddr(n.Target, typeName)
	vtable := e.B.Load("l", "loadl", objAddr)
	slotOffset := vtableHeaderSize + m.Slot*8
	slotAddr := e.B.Binary("l", "add", vtable, fmt.Sprintf("%d", slotOffset))
	fnPtr := e.B.Load("l", "loadl", slotAddr)

	args := []CallArg{{"l", objAddr}}
	args = append(args, e.emitCoercedArgs(n.Args, m.Params)...)
	retType := e.TM.ILLetter(m.ReturnType.Base)
	return e.B.CallIndirect(retType, fnPtr, args), retType
}

// emitSuperCall lowers SUPER.Method(args...): same dispatch as a class
// method call but through the parent class's mangled function name
// directly (bypassing the vtable, since SUPER always means "my parent's
// implementation", never a further override).
func (e *Emitter) emitSuperCall(n *ast.SuperExpr) (string, string) {
	if e.Func == nil || e.Func.ClassCtx == nil || e.Func.ClassCtx.Parent == "" {
		e.warn(-1, "SUPER used outside a subclass method")
		return "d_0", "d"
	}
	parent := e.Table.Classes[e.Func.ClassCtx.Parent]
	if parent == nil {
		e.warn(-1, "unresolved parent class %s", e.Func.ClassCtx.Parent)
		return "d_0", "d"
	}
	m := findMethod(parent, n.Method)
	if m == nil {
		e.warn(-1, "unresolved method %s.%s", parent.Name, n.Method)
		return "d_0", "d"
	}
	meSlot, _ := e.Func.Lookup("ME")
	meVal := e.B.Load("l", "loadl", meSlot.Addr)
	args := []CallArg{{"l", meVal}}
	args = append(args, e.emitCoercedArgs(n.Args, m.Params)...)
	retType := e.TM.ILLetter(m.ReturnType.Base)
	return e.RL.Call(e.B, e.SM.ClassMethod(parent.Name, n.Method), args), retType
}

// emitCreate stack-allocates a UDT and stores each field, either from the
// supplied positional/named argument or a zero default (spec.md §4.5
// "CREATE").
func (e *Emitter) emitCreate(n *ast.CreateExpr) (string, string) {
	udt, ok := e.Table.Types[n.TypeName]
	if !ok {
		e.warn(-1, "unresolved type %s", n.TypeName)
		return "d_0", "d"
	}
	size := e.TM.SizeOfUDT(n.TypeName)
	if size < 16 {
		size = 16
	}
	addr := e.B.Alloc(size, 8)

	for i, f := range udt.Fields {
		fieldAddr := addr
		if f.Offset != 0 {
			fieldAddr = e.B.Binary("l", "add", addr, fmt.Sprintf("%d", f.Offset))
		}
		var val ast.Expr
		if i < len(n.Positional) {
			val = n.Positional[i]
		} else {
			for name, v := range n.Named {
				if strings.EqualFold(name, f.Name) {
					val = v
					break
				}
			}
		}
		if val == nil {
			e.zeroInitField(fieldAddr, f.Type)
			continue
		}
		e.storeCoercedField(fieldAddr, val, f.Type)
	}
	return addr, "l"
}

func (e *Emitter) zeroInitField(addr string, td symtab.TypeDescriptor) {
	if td.Base == symtab.UserDefined {
		// Nested UDT fields with no initializer keep whatever the stack slot
		// holds; CREATE never recurses into default-constructing them.
		return
	}
	suffix := e.TM.StoreSuffix(td.Base)
	zero := "0"
	if suffix == "d" || suffix == "s" {
		zero = "d_0"
	}
	e.B.Store(suffix, zero, addr)
}

func (e *Emitter) storeCoercedField(addr string, val ast.Expr, target symtab.TypeDescriptor) {
	if target.Base == symtab.UserDefined {
		v, _ := e.EmitExpr(val)
		e.B.Blit(v, addr, e.TM.SizeOfUDT(target.TypeName))
		return
	}
	if target.Base == symtab.String {
		v, _ := e.EmitExpr(val)
		e.RL.Call(e.B, "string_retain", []CallArg{{"l", v}})
		e.B.Store("l", v, addr)
		return
	}
	v, t := e.EmitExpr(val)
	want := e.TM.ParamType(target.Base)
	v = e.promoteTo(v, t, want)
	e.B.Store(e.TM.StoreSuffix(target.Base), v, addr)
}

// emitNew lowers NEW ClassName(args): loads the vtable, calls
// object_alloc, and — if the class declares a constructor — calls it with
// ME plus coerced arguments (spec.md §4.5 "NEW").
func (e *Emitter) emitNew(n *ast.NewExpr) (string, string) {
	cls, ok := e.Table.Classes[n.ClassName]
	if !ok {
		e.warn(-1, "unresolved class %s", n.ClassName)
		return "d_0", "d"
	}
	vtable := "$" + e.SM.Vtable(n.ClassName)
	obj := e.RL.ObjectAlloc(e.B, fmt.Sprintf("%d", cls.ObjectSize), vtable, fmt.Sprintf("%d", cls.ClassID))
	if cls.HasCtor {
		ctor := findMethod(cls, "CONSTRUCTOR")
		var params []symtab.ParamSymbol
		if ctor != nil {
			params = ctor.Params
		}
		args := []CallArg{{"l", obj}}
		args = append(args, e.emitCoercedArgs(n.Args, params)...)
		e.RL.Call(e.B, e.SM.ClassCtor(n.ClassName), args)
	}
	return e.B.Convert("d", "cast", obj), "d"
}

// emitListExpr lowers a LIST(items...) literal constructor.
func (e *Emitter) emitListExpr(n *ast.ListExpr) (string, string) {
	l := e.RL.ListCreate(e.B)
	elemBase := symtab.AsTypeNameToBase(n.ElemType, nil, nil)
	for _, item := range n.Items {
		e.emitListValueCall("list_append", l, item, elemBase)
	}
	return l, "l"
}
