package codegen

import (
	"fmt"
	"strings"

	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// emitVarLoad lowers a variable reference. A user_defined/class/object
// local loads a pointer unless the slot holds the value inline (DESIGN.md
// Open Question #1), in which case the "value" is the slot's own address.
// SINGLE is promoted s->d on load; small signed integers use
// loadsb/loadsh (spec.md §4.5 "Variable load").
func (e *Emitter) emitVarLoad(n *ast.VarRef) (string, string) {
	if e.Func != nil {
		if s, ok := e.Func.Lookup(n.Name); ok {
			return e.loadSlot(s)
		}
	}
	if v, ok := e.Table.LookupVariable(e.funcUpper(), n.Name); ok {
		mangled := e.SM.GlobalVar(n.Name, symtab.SuffixOf(n.Name))
		if v.Base == symtab.UserDefined || v.Base == symtab.ClassInstance || v.Base == symtab.Object {
			return e.B.Load("l", "loadl", "$"+mangled), "l"
		}
		return e.loadGlobal(v.Base, "$"+mangled)
	}
	e.warn(-1, "unresolved variable %s", n.Name)
	return "d_0", "d"
}

func (e *Emitter) loadSlot(s SlotInfo) (string, string) {
	if (s.Base == symtab.UserDefined || s.Base == symtab.ClassInstance) && s.Inline {
		return s.Addr, "l"
	}
	if s.Base == symtab.UserDefined || s.Base == symtab.ClassInstance || s.Base == symtab.Object {
		t := e.B.Load("l", "loadl", s.Addr)
		return t, "l"
	}
	return e.loadGlobal(s.Base, s.Addr)
}

func (e *Emitter) loadGlobal(base symtab.BaseType, addr string) (string, string) {
	mnemonic := e.TM.LoadMnemonic(base)
	ilType := e.TM.ILLetter(base)
	if base == symtab.Byte || base == symtab.UByte || base == symtab.Short || base == symtab.UShort {
		ilType = "w"
	}
	t := e.B.Load(ilType, mnemonic, addr)
	if base == symtab.Single {
		return e.B.Convert("d", "exts", t), "d"
	}
	return t, ilType
}

// emitMemberAccess lowers `.field` access, recursively resolving nested UDT
// (address) vs nested class-instance (pointer load) fields (spec.md §4.5
// "Member access").
func (e *Emitter) emitMemberAccess(n *ast.MemberExpr) (string, string) {
	addr, ok := e.emitFieldAddr(n)
	if !ok {
		return "d_0", "d"
	}
	fieldBase := e.memberFieldBase(n)
	if fieldBase == symtab.UserDefined {
		return addr, "l" // struct address, returned directly (no load)
	}
	if fieldBase == symtab.ClassInstance || fieldBase == symtab.Object {
		t := e.B.Load("l", "loadl", addr)
		return t, "l"
	}
	return e.loadGlobal(fieldBase, addr)
}

// emitFieldAddr computes the address of the field n refers to, walking
// Target to find the base struct/object address and adding the field's
// byte offset.
func (e *Emitter) emitFieldAddr(n *ast.MemberExpr) (string, bool) {
	typeName := e.exprTypeName(n.Target)
	if typeName == "" {
		e.warn(-1, "unresolved member access .%s: target type unknown", n.Field)
		return "", false
	}
	baseAddr, ok := e.emitTargetAddr(n.Target, typeName)
	if !ok {
		return "", false
	}
	offset, found := e.fieldOffset(typeName, n.Field)
	if !found {
		e.warn(-1, "unresolved field %s.%s", typeName, n.Field)
		return "", false
	}
	if offset == 0 {
		return baseAddr, true
	}
	return e.B.Binary("l", "add", baseAddr, fmt.Sprintf("%d", offset)), true
}

func (e *Emitter) fieldOffset(typeName, field string) (int, bool) {
	if udt, ok := e.Table.Types[typeName]; ok {
		for _, f := range udt.Fields {
			if strings.EqualFold(f.Name, field) {
				return f.Offset, true
			}
		}
	}
	if cls, ok := e.Table.Classes[typeName]; ok {
		for _, f := range cls.Fields {
			if strings.EqualFold(f.Name, field) {
				return f.Offset, true
			}
		}
	}
	return 0, false
}

// emitTargetAddr resolves the base address for a member-access target:
// ME loads the current method's object pointer; a UDT-local Target
// (not inline) loads its pointer; a class-instance VarRef loads its
// pointer; a chained MemberExpr recurses.
func (e *Emitter) emitTargetAddr(target ast.Expr, _ string) (string, bool) {
	switch t := target.(type) {
	case *ast.MeExpr:
		if e.Func != nil {
			if s, ok := e.Func.Lookup("ME"); ok {
				return e.B.Load("l", "loadl", s.Addr), true
			}
		}
		return "", false
	case *ast.VarRef:
		v, _ := e.EmitExpr(t)
		return v, true
	case *ast.MemberExpr:
		fieldBase := e.memberFieldBase(t)
		addr, ok := e.emitFieldAddr(t)
		if !ok {
			return "", false
		}
		if fieldBase == symtab.ClassInstance || fieldBase == symtab.Object {
			return e.B.Load("l", "loadl", addr), true
		}
		return addr, true // inline UDT field: address IS the struct address
	default:
		v, _ := e.EmitExpr(target)
		return v, true
	}
}

// emitArrayAccess lowers `name(idx[, idx2])`: bounds-checks then computes
// the element address; HASHMAP subscripts call hashmap_lookup, LIST
// subscripts call the type-specific list_get_*. UDT elements return the
// element address directly without a load (spec.md §4.5 "Array access").
func (e *Emitter) emitArrayAccess(n *ast.ArrayAccessExpr) (string, string) {
	upper := strings.ToUpper(n.Name)
	if v, ok := e.Table.LookupVariable(e.funcUpper(), n.Name); ok {
		if v.ObjectType == "HASHMAP" {
			return e.emitHashmapSubscript(n, v)
		}
		if v.ObjectType == "LIST" {
			return e.emitListSubscript(n, v)
		}
	}

	arr, ok := e.Table.Arrays[symtab.StripSuffix(upper)]
	if !ok {
		e.warn(-1, "unresolved array %s", n.Name)
		return "d_0", "d"
	}
	descName := e.SM.ArrayDescriptor(n.Name)
	descAddr := "$" + descName
	if e.Func != nil {
		if s, ok := e.Func.Lookup(n.Name); ok {
			descAddr = s.Addr
		}
	}

	if len(n.Indices) == 2 {
		i, _ := e.toInt(n.Indices[0])
		j, _ := e.toInt(n.Indices[1])
		e.RL.ArrayBoundsCheck2D(e.B, descAddr, i, j)
		addr := e.RL.ArrayElementAddr2D(e.B, descAddr, i, j)
		return e.loadArrayElem(addr, arr.ElemType)
	}
	idx, _ := e.toInt(n.Indices[0])
	e.RL.ArrayBoundsCheck(e.B, descAddr, idx)
	addr := e.RL.ArrayElementAddr(e.B, descAddr, idx)
	return e.loadArrayElem(addr, arr.ElemType)
}

func (e *Emitter) loadArrayElem(addr string, elem symtab.TypeDescriptor) (string, string) {
	if elem.Base == symtab.UserDefined {
		return addr, "l"
	}
	return e.loadGlobal(elem.Base, addr)
}

func (e *Emitter) emitHashmapSubscript(n *ast.ArrayAccessExpr, v *symtab.VariableSymbol) (string, string) {
	m, _ := e.lookupHandleOperand(n.Name)
	key := e.toStringOperand(n.Indices[0])
	utf8key := e.RL.Call(e.B, "string_from_cstr", []CallArg{{"l", key}})
	return e.RL.HashmapLookup(e.B, m, utf8key), "l"
}

func (e *Emitter) emitListSubscript(n *ast.ArrayAccessExpr, v *symtab.VariableSymbol) (string, string) {
	l, _ := e.lookupHandleOperand(n.Name)
	idx, _ := e.toInt(n.Indices[0])
	elemBase := symtab.Double
	if v.ElemType != nil {
		elemBase = v.ElemType.Base
	}
	switch baseToKind(elemBase) {
	case KindInteger:
		return e.RL.Call(e.B, "list_get_int", []CallArg{{"l", l}, {"w", idx}}), "w"
	case KindString:
		return e.RL.Call(e.B, "list_get_ptr", []CallArg{{"l", l}, {"w", idx}}), "l"
	default:
		return e.RL.Call(e.B, "list_get_double", []CallArg{{"l", l}, {"w", idx}}), "d"
	}
}

// lookupHandleOperand loads the runtime pointer (LIST cursor / HASHMAP map
// pointer) a variable's slot holds.
func (e *Emitter) lookupHandleOperand(name string) (string, string) {
	if e.Func != nil {
		if s, ok := e.Func.Lookup(name); ok {
			return e.B.Load("l", "loadl", s.Addr), "l"
		}
	}
	mangled := e.SM.GlobalVar(name, 0)
	return e.B.Load("l", "loadl", "$"+mangled), "l"
}

// emitArrayBinOp lowers a whole-array reduction used outside LET context
// (e.g. inline in an expression); the common case is SUM/MIN/MAX/AVG/DOT
// handled in emitCallExpr. A bare ArrayBinOpExpr node (A + B as a value)
// is not independently addressable in this language's grammar outside a
// LET target, so this only needs to support the reduction helpers'
// element-type resolution; real array arithmetic is a statement-level LET
// form (spec.md §4.6 LET specialisation 2).
func (e *Emitter) emitArrayBinOp(n *ast.ArrayBinOpExpr) (string, string) {
	e.warn(-1, "array binary expression used outside LET context")
	return "d_0", e.resultILType(e.classify(n))
}
