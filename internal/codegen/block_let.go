package codegen

import (
	"fmt"
	"strings"

	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// emitLetStmt lowers LET, dispatching on the target's shape (plain
// variable, array element, member field, or a whole-array name) — the
// seven LET specializations of spec.md §4.6 collapse to one address
// resolution plus a base-type-driven store.
func (e *Emitter) emitLetStmt(st *ast.LetStmt) {
	if len(st.Target.Indices) == 0 && len(st.Target.Fields) == 0 {
		if _, isArr := e.Table.Arrays[symtab.StripSuffix(strings.ToUpper(st.Target.Root))]; isArr {
			e.emitArrayLet(st)
			return
		}
	}
	addr, base, asType, ok := e.resolveAssignTarget(st.Target)
	if !ok {
		return
	}
	if base == symtab.UserDefined || base == symtab.ClassInstance || base == symtab.Object {
		v, vt := e.EmitExpr(st.Value)
		if base == symtab.UserDefined {
			e.B.Blit(v, addr, e.TM.Size(base, asType))
		} else {
			e.B.Store("l", e.promoteTo(v, vt, "l"), addr)
		}
		return
	}
	v, vt := e.EmitExpr(st.Value)
	e.storeGlobal(base, addr, v, vt)
}

// emitArrayLet lowers a whole-array LET target: `arr = otherArr` copies the
// descriptor contents; elementwise array arithmetic is a recoverable gap
// (spec.md §7 kind 2) left as a WARN — the common case in practice is the
// plain copy.
func (e *Emitter) emitArrayLet(st *ast.LetStmt) {
	destDesc := e.arrayDescAddr(st.Target.Root)
	if v, ok := st.Value.(*ast.VarRef); ok {
		if _, isArr := e.Table.Arrays[symtab.StripSuffix(strings.ToUpper(v.Name))]; isArr {
			srcDesc := e.arrayDescAddr(v.Name)
			e.RL.Call(e.B, "array_copy", []CallArg{{"l", destDesc}, {"l", srcDesc}})
			return
		}
	}
	e.warn(-1, "whole-array LET from a computed expression is not supported")
}

func (e *Emitter) arrayDescAddr(name string) string {
	if e.Func != nil {
		if s, ok := e.Func.Lookup(name); ok {
			return s.Addr
		}
	}
	return "$" + e.SM.ArrayDescriptor(name)
}

// resolveAssignTarget computes the address, base type, and UDT/class type
// name of an assignment target (spec.md §4.6 LET address resolution).
func (e *Emitter) resolveAssignTarget(t ast.MemberChain) (addr string, base symtab.BaseType, asType string, ok bool) {
	if len(t.Indices) > 0 {
		addr, base, asType, ok = e.resolveArrayTarget(t)
	} else {
		addr, base, asType, ok = e.resolveVarTarget(t.Root)
	}
	if !ok {
		return "", symtab.Double, "", false
	}
	for _, f := range t.Fields {
		off, found := e.fieldOffset(asType, f)
		if !found {
			e.warn(-1, "unresolved field %s.%s", asType, f)
			return "", symtab.Double, "", false
		}
		if off != 0 {
			addr = e.B.Binary("l", "add", addr, fmt.Sprintf("%d", off))
		}
		base, asType = e.fieldTypeOf(asType, f)
		if base == symtab.ClassInstance || base == symtab.Object {
			addr = e.B.Load("l", "loadl", addr)
		}
	}
	return addr, base, asType, true
}

func (e *Emitter) resolveVarTarget(name string) (addr string, base symtab.BaseType, asType string, ok bool) {
	if e.Func != nil {
		if s, found := e.Func.Lookup(name); found {
			if (s.Base == symtab.UserDefined || s.Base == symtab.ClassInstance) && s.Inline {
				return s.Addr, s.Base, s.AsType, true
			}
			if s.Base == symtab.UserDefined || s.Base == symtab.ClassInstance || s.Base == symtab.Object {
				return e.B.Load("l", "loadl", s.Addr), s.Base, s.AsType, true
			}
			return s.Addr, s.Base, s.AsType, true
		}
	}
	v, found := e.Table.LookupVariable(e.funcUpper(), name)
	if !found {
		e.warn(-1, "unresolved assignment target %s", name)
		return "", symtab.Double, "", false
	}
	mangled := e.SM.GlobalVar(name, symtab.SuffixOf(name))
	if v.Base == symtab.UserDefined || v.Base == symtab.ClassInstance || v.Base == symtab.Object {
		return e.B.Load("l", "loadl", "$"+mangled), v.Base, v.UDTName, true
	}
	return "$" + mangled, v.Base, v.UDTName, true
}

func (e *Emitter) resolveArrayTarget(t ast.MemberChain) (addr string, base symtab.BaseType, asType string, ok bool) {
	upper := strings.ToUpper(t.Root)
	arr, found := e.Table.Arrays[symtab.StripSuffix(upper)]
	if !found {
		e.warn(-1, "unresolved array %s", t.Root)
		return "", symtab.Double, "", false
	}
	descAddr := e.arrayDescAddr(t.Root)
	if len(t.Indices) == 2 {
		i, _ := e.toInt(t.Indices[0])
		j, _ := e.toInt(t.Indices[1])
		e.RL.ArrayBoundsCheck2D(e.B, descAddr, i, j)
		addr = e.RL.ArrayElementAddr2D(e.B, descAddr, i, j)
	} else {
		idx, _ := e.toInt(t.Indices[0])
		e.RL.ArrayBoundsCheck(e.B, descAddr, idx)
		addr = e.RL.ArrayElementAddr(e.B, descAddr, idx)
	}
	return addr, arr.ElemType.Base, arr.ElemType.TypeName, true
}

// fieldTypeOf resolves one field's type within a UDT or class.
func (e *Emitter) fieldTypeOf(typeName, field string) (symtab.BaseType, string) {
	if udt, ok := e.Table.Types[typeName]; ok {
		for _, f := range udt.Fields {
			if strings.EqualFold(f.Name, field) {
				return f.Type.Base, f.Type.TypeName
			}
		}
	}
	if cls, ok := e.Table.Classes[typeName]; ok {
		for _, f := range cls.Fields {
			if strings.EqualFold(f.Name, field) {
				return f.Type.Base, f.Type.TypeName
			}
		}
	}
	return symtab.Double, ""
}

// isConstExpr recognizes a compile-time numeric literal (used to decide
// between a fixed-size global array, created once in main's prologue by the
// CFG Code Generator's emitFixedArrayInit, and one created where its DIM
// statement runs).
func isConstExpr(e ast.Expr) bool {
	_, ok := e.(*ast.NumberLit)
	return ok
}

// emitDimStmt lowers one or more global DIM/CONST declarations encountered
// as a block statement: dynamic-size arrays are built at runtime via
// array_create_1d/2d; scalar initializers (including CONST-as-DIM,
// SPEC_FULL.md §4.6 expansion) are stored once. Fixed-size global arrays
// need no code here — emitFixedArrayInit creates them in main's prologue —
// and neither do zero-initialized scalars, whose storage is emitted by the
// CFG Code Generator's global section.
func (e *Emitter) emitDimStmt(st *ast.DimStmt) {
	for _, spec := range st.Specs {
		e.emitOneDimSpec(spec, true)
	}
}

// emitLocalStmt lowers a function-local DIM/LOCAL encountered in the body:
// the slot itself was already registered by the function prologue: this
// only runs the spec's initializer/array-create side effect in place.
func (e *Emitter) emitLocalStmt(st *ast.LocalStmt) {
	e.emitOneDimSpec(st.Spec, false)
}

func (e *Emitter) emitOneDimSpec(spec ast.DimSpec, global bool) {
	if len(spec.Dims) > 0 {
		dynamic := false
		for _, d := range spec.Dims {
			if !isConstExpr(d) {
				dynamic = true
			}
		}
		if global && !dynamic {
			// A fixed-size global array is created once, in main's prologue,
			// by the CFG Code Generator's emitFixedArrayInit; nothing runs
			// here for it.
			return
		}
		arr, ok := e.Table.Arrays[strings.ToUpper(spec.Name)]
		elemSize := 8
		if ok {
			elemSize = e.TM.Size(arr.ElemType.Base, arr.ElemType.TypeName)
		}
		descAddr := e.arrayDescAddr(spec.Name)
		if len(spec.Dims) == 2 {
			rows, _ := e.toInt(spec.Dims[0])
			cols, _ := e.toInt(spec.Dims[1])
			created := e.RL.Call(e.B, "array_create_2d", []CallArg{{"w", fmt.Sprintf("%d", elemSize)}, {"w", rows}, {"w", cols}})
			e.B.Store("l", created, descAddr)
		} else {
			n, _ := e.toInt(spec.Dims[0])
			created := e.RL.Call(e.B, "array_create_1d", []CallArg{{"w", fmt.Sprintf("%d", elemSize)}, {"w", n}})
			e.B.Store("l", created, descAddr)
		}
		return
	}
	if spec.Init == nil {
		return
	}
	v, vt := e.EmitExpr(spec.Init)
	base := e.lookupVarBase(spec.Name, symtab.SuffixOf(spec.Name))
	if spec.AsType != "" {
		base = symtab.AsTypeNameToBase(strings.ToUpper(spec.AsType), nil, nil)
	}
	if global || !e.hasLocalSlot(spec.Name) {
		mangled := e.SM.GlobalVar(spec.Name, symtab.SuffixOf(spec.Name))
		e.storeGlobal(base, "$"+mangled, v, vt)
		return
	}
	e.storeVarByName(spec.Name, v, vt)
}

func (e *Emitter) hasLocalSlot(name string) bool {
	if e.Func == nil {
		return false
	}
	_, ok := e.Func.Lookup(name)
	return ok
}

// emitPrintStmt lowers PRINT: each item is printed with the type-specific
// runtime call, a tab between comma-separated items (folded into Items by
// the parser as a TAB marker is out of scope here — items print back to
// back), optionally to a file handle, with an optional trailing newline
// (spec.md §4.6).
func (e *Emitter) emitPrintStmt(st *ast.PrintStmt) {
	if st.FileHandle != nil {
		h, _ := e.EmitExpr(st.FileHandle)
		for _, item := range st.Items {
			e.emitFilePrintItem(h, item)
		}
		if st.Newline {
			e.RL.Call(e.B, "file_print_newline", []CallArg{{"l", h}})
		}
		return
	}
	e.RL.PrintLock(e.B)
	for _, item := range st.Items {
		e.emitConsolePrintItem(item)
	}
	if st.Newline {
		e.RL.PrintNewline(e.B)
	}
	e.RL.PrintUnlock(e.B)
}

func (e *Emitter) emitConsolePrintItem(item ast.Expr) {
	switch e.classify(item) {
	case KindString:
		v, _ := e.EmitExpr(item)
		e.RL.PrintStringDesc(e.B, v)
	case KindInteger:
		v, _ := e.toInt(item)
		e.RL.PrintInt(e.B, v)
	default:
		v, _ := e.toDouble(item)
		e.RL.PrintDouble(e.B, v)
	}
}

func (e *Emitter) emitFilePrintItem(h string, item ast.Expr) {
	switch e.classify(item) {
	case KindString:
		v, _ := e.EmitExpr(item)
		e.RL.Call(e.B, "file_print_string_desc", []CallArg{{"l", h}, {"l", v}})
	case KindInteger:
		v, _ := e.toInt(item)
		e.RL.Call(e.B, "file_print_int", []CallArg{{"l", h}, {"w", v}})
	default:
		v, _ := e.toDouble(item)
		e.RL.Call(e.B, "file_print_double", []CallArg{{"l", h}, {"d", v}})
	}
}

// emitConsoleStmt mirrors PRINT for CONSOLE.WRITE/WRITELINE-style calls.
func (e *Emitter) emitConsoleStmt(st *ast.ConsoleStmt) {
	e.RL.PrintLock(e.B)
	for _, item := range st.Items {
		e.emitConsolePrintItem(item)
	}
	if st.Newline {
		e.RL.PrintNewline(e.B)
	}
	e.RL.PrintUnlock(e.B)
}

// emitReturnStmt lowers RETURN: in a FUNCTION, the accumulator slot is
// loaded (or Value, if given, is stored first); the actual `ret` is
// deferred to the terminator so control-flow cleanup (SAMM scope exit)
// still runs after this statement (spec.md §4.6).
func (e *Emitter) emitReturnStmt(blk *symtab.Block, st *ast.ReturnStmt) {
	if st.Value == nil || e.Func == nil {
		return
	}
	v, vt := e.EmitExpr(st.Value)
	if e.Func.IsFunction && e.Func.ReturnAddr != "" {
		e.storeGlobal(e.Func.ReturnBase, e.Func.ReturnAddr, v, vt)
	} else if e.Func.MethodRetSlot != "" {
		e.B.Store(e.TM.StoreSuffix(symtab.Double), e.promoteTo(v, vt, e.Func.MethodRetType), e.Func.MethodRetSlot)
	}
}
