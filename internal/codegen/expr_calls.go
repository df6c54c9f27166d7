package codegen

import (
	"strings"

	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// emitCallExpr lowers a bare function call. Builtins (SGN, ABS, array
// reductions, string/math builtins) are special-cased ahead of the
// user-defined-function fallback; a self-method short-circuit lowers a
// bare `foo(x)` inside a class method to `ME.foo(x)` when foo names a
// method of the current class (spec.md §4.5 "Array access" self-method
// note).
func (e *Emitter) emitCallExpr(n *ast.CallExpr) (string, string) {
	upper := strings.ToUpper(n.Name)
	switch upper {
	case "SGN":
		return e.emitSgn(n.Args[0])
	case "ABS":
		return e.emitAbs(n.Args[0])
	case "SUM", "MIN", "MAX", "AVG", "DOT":
		return e.emitArrayReduction(upper, n.Args)
	case "LEN":
		return e.emitLen(n.Args[0])
	case "ASC":
		v, _ := e.EmitExpr(n.Args[0])
		return e.RL.Call(e.B, "string_to_int", []CallArg{{"l", v}}), "w"
	case "INSTR":
		a, _ := e.EmitExpr(n.Args[0])
		b, _ := e.EmitExpr(n.Args[1])
		return e.RL.Call(e.B, "string_search", []CallArg{{"l", a}, {"l", b}}), "w"
	case "CHR":
		v, _ := e.toInt(n.Args[0])
		return e.RL.Call(e.B, "string_from_int", []CallArg{{"w", v}}), "l"
	case "STR":
		v, t := e.EmitExpr(n.Args[0])
		if t == "d" || t == "s" {
			return e.RL.StringFromDouble(e.B, v), "l"
		}
		return e.RL.StringFromInt(e.B, v), "l"
	case "LEFT", "RIGHT", "MID":
		return e.emitSubstring(upper, n.Args)
	case "UCASE":
		v, _ := e.EmitExpr(n.Args[0])
		return e.RL.Call(e.B, "string_upper", []CallArg{{"l", v}}), "l"
	case "LCASE":
		v, _ := e.EmitExpr(n.Args[0])
		return e.RL.Call(e.B, "string_lower", []CallArg{{"l", v}}), "l"
	case "TRIM", "LTRIM", "RTRIM":
		v, _ := e.EmitExpr(n.Args[0])
		return e.RL.Call(e.B, "string_trim", []CallArg{{"l", v}}), "l"
	case "STRING":
		s, _ := e.toInt(n.Args[1])
		str, _ := e.EmitExpr(n.Args[0])
		return e.RL.Call(e.B, "string_repeat", []CallArg{{"l", str}, {"w", s}}), "l"
	case "INT", "FIX", "CINT":
		return e.toInt(n.Args[0])
	case "CLNG":
		v, t := e.toInt(n.Args[0])
		if t == "w" {
			return e.B.Extend("extsw", v), "l"
		}
		return v, "l"
	case "CBYTE", "CSHORT":
		return e.toInt(n.Args[0])
	case "CDBL", "CSNG":
		return e.toDouble(n.Args[0])
	case "SQR":
		v, _ := e.toDouble(n.Args[0])
		return e.RL.Call(e.B, "sqrt", []CallArg{{"d", v}}), "d"
	case "SIN", "COS", "TAN", "ATN", "LOG", "EXP":
		v, _ := e.toDouble(n.Args[0])
		return e.RL.Call(e.B, strings.ToLower(mapMathName(upper)), []CallArg{{"d", v}}), "d"
	}

	if e.Func != nil && e.Func.ClassCtx != nil {
		if m := findMethod(e.Func.ClassCtx, n.Name); m != nil {
			return e.emitMethodCall(&ast.MethodCallExpr{Target: &ast.MeExpr{}, Method: n.Name, Args: n.Args})
		}
	}
	return e.emitUserFuncCall(n)
}

func mapMathName(upper string) string {
	switch upper {
	case "ATN":
		return "ATAN"
	default:
		return upper
	}
}

func findMethod(cls *symtab.ClassSymbol, name string) *symtab.ClassMethod {
	for i := range cls.Methods {
		if strings.EqualFold(cls.Methods[i].Name, name) {
			return &cls.Methods[i]
		}
	}
	return nil
}

// emitSgn is the branchless SGN: (x>0) - (x<0).
func (e *Emitter) emitSgn(arg ast.Expr) (string, string) {
	v, t := e.EmitExpr(arg)
	if t == "d" || t == "s" {
		zero := "d_0"
		gt := e.B.assign("w", "cgtd", v, zero)
		lt := e.B.assign("w", "cltd", v, zero)
		return e.B.Binary("w", "sub", gt, lt), "w"
	}
	if t == "l" {
		zero := "0"
		gt := e.B.assign("w", "csgtl", v, zero)
		lt := e.B.assign("w", "csltl", v, zero)
		return e.B.Binary("w", "sub", gt, lt), "w"
	}
	gt := e.B.assign("w", "csgtw", v, "0")
	lt := e.B.assign("w", "csltw", v, "0")
	return e.B.Binary("w", "sub", gt, lt), "w"
}

// emitAbs is the branchless integer ABS: (x ^ (x>>31)) - (x>>31). Doubles
// go through a libm-free mask-free path: fabs via sub-from-negated-compare
// is unavailable in plain QBE arithmetic, so doubles round-trip through a
// conditional negate.
func (e *Emitter) emitAbs(arg ast.Expr) (string, string) {
	v, t := e.EmitExpr(arg)
	switch t {
	case "w":
		shifted := e.B.Binary("w", "sar", v, "31")
		xored := e.B.Binary("w", "xor", v, shifted)
		return e.B.Binary("w", "sub", xored, shifted), "w"
	case "l":
		shifted := e.B.Binary("l", "sar", v, "63")
		xored := e.B.Binary("l", "xor", v, shifted)
		return e.B.Binary("l", "sub", xored, shifted), "l"
	default:
		neg := e.B.Neg(t, v)
		isNeg := e.B.assign("w", condFloatLt(t), v, "d_0")
		return e.emitCondSelect(t, isNeg, neg, v), t
	}
}

func condFloatLt(t string) string {
	if t == "s" {
		return "clts"
	}
	return "cltd"
}

// emitCondSelect builds a tiny true/false/done micro-CFG selecting between
// two already-computed values, mirroring IIF's phi-merge shape (spec.md
// §4.5 "IIF").
func (e *Emitter) emitCondSelect(iltype, cond, whenTrue, whenFalse string) string {
	trueLbl := e.B.NewLabelName()
	falseLbl := e.B.NewLabelName()
	doneLbl := e.B.NewLabelName()
	e.B.Branch(cond, trueLbl, falseLbl)
	e.B.Label(trueLbl)
	predTrue := e.B.CurrentLabel()
	e.B.Jump(doneLbl)
	e.B.Label(falseLbl)
	predFalse := e.B.CurrentLabel()
	e.B.Jump(doneLbl)
	e.B.Label(doneLbl)
	return e.B.Phi(iltype, predTrue, whenTrue, predFalse, whenFalse)
}

// emitLen lowers LEN. On a string descriptor it is a NULL-safe inline
// field load at offset 8, merged with phi, truncated to w (spec.md §4.5).
// [EXPANSION] On LIST/HASHMAP handles it dispatches to list_length /
// hashmap_size instead (SPEC_FULL.md §4.5 expansion).
func (e *Emitter) emitLen(arg ast.Expr) (string, string) {
	if v, ok := arg.(*ast.VarRef); ok {
		if sym, ok := e.Table.LookupVariable(e.funcUpper(), v.Name); ok {
			if sym.ObjectType == "LIST" {
				h, _ := e.lookupHandleOperand(v.Name)
				return e.RL.Call(e.B, "list_length", []CallArg{{"l", h}}), "w"
			}
			if sym.ObjectType == "HASHMAP" {
				h, _ := e.lookupHandleOperand(v.Name)
				return e.RL.Call(e.B, "hashmap_size", []CallArg{{"l", h}}), "w"
			}
		}
	}
	ptr, _ := e.EmitExpr(arg)
	isNull := e.B.assign("w", "ceql", ptr, "0")
	nullLbl := e.B.NewLabelName()
	nonNullLbl := e.B.NewLabelName()
	doneLbl := e.B.NewLabelName()
	e.B.Branch(isNull, nullLbl, nonNullLbl)
	e.B.Label(nullLbl)
	predNull := e.B.CurrentLabel()
	e.B.Jump(doneLbl)
	e.B.Label(nonNullLbl)
	lenAddr := e.B.Binary("l", "add", ptr, "8")
	lenVal := e.B.Load("l", "loadl", lenAddr)
	predLen := e.B.CurrentLabel()
	e.B.Jump(doneLbl)
	e.B.Label(doneLbl)
	merged := e.B.Phi("l", predNull, "0", predLen, lenVal)
	return e.B.Truncate(merged), "w"
}

func (e *Emitter) emitSubstring(upper string, args []ast.Expr) (string, string) {
	s, _ := e.EmitExpr(args[0])
	switch upper {
	case "LEFT":
		n, _ := e.toInt(args[1])
		return e.RL.Call(e.B, "string_slice", []CallArg{{"l", s}, {"w", "0"}, {"w", n}}), "l"
	case "RIGHT":
		n, _ := e.toInt(args[1])
		length := e.RL.Call(e.B, "string_length", []CallArg{{"l", s}})
		length32 := e.B.Truncate(length)
		start := e.B.Binary("w", "sub", length32, n)
		return e.RL.Call(e.B, "string_slice", []CallArg{{"l", s}, {"w", start}, {"w", n}}), "l"
	default: // MID
		start, _ := e.toInt(args[1])
		start0 := e.B.Binary("w", "sub", start, "1")
		n := "-1"
		if len(args) > 2 {
			n, _ = e.toInt(args[2])
		}
		return e.RL.Call(e.B, "string_slice", []CallArg{{"l", s}, {"w", start0}, {"w", n}}), "l"
	}
}

// emitArrayReduction generates an inline loop over the element buffer for
// SUM/MIN/MAX/AVG/DOT (spec.md §4.5 "Array reductions"). The accumulator
// and cursor live in stack slots so the loop can branch back to its own
// header; the slots are allocated where the reduction is emitted, not
// hoisted into the function's entry block.
func (e *Emitter) emitArrayReduction(op string, args []ast.Expr) (string, string) {
	left, ok := args[0].(*ast.VarRef)
	if !ok {
		e.warn(-1, "%s: argument is not an array variable", op)
		return "d_0", "d"
	}
	arr, ok := e.Table.Arrays[symtab.StripSuffix(strings.ToUpper(left.Name))]
	if !ok {
		e.warn(-1, "unresolved array %s", left.Name)
		return "d_0", "d"
	}
	elemBase := arr.ElemType.Base
	arithType := "d"
	if baseToKind(elemBase) == KindInteger {
		arithType = "w"
	}

	descAddr := "$" + e.SM.ArrayDescriptor(left.Name)
	if e.Func != nil {
		if s, ok := e.Func.Lookup(left.Name); ok {
			descAddr = s.Addr
		}
	}
	upperAddr := e.B.Binary("l", "add", descAddr, "16")
	upperBound64 := e.B.Load("l", "loadl", upperAddr)
	upperBound := e.B.Truncate(upperBound64)
	count := e.B.Binary("w", "add", upperBound, "1")

	cursorAddr := e.B.Alloc(4, 4)
	e.B.Store("w", "0", cursorAddr)
	accAddr := e.B.Alloc(e.TM.Size(elemBase, ""), 8)

	var rightDesc string
	if op == "DOT" {
		rightVar := args[1].(*ast.VarRef)
		rightDesc = "$" + e.SM.ArrayDescriptor(rightVar.Name)
		if e.Func != nil {
			if s, ok := e.Func.Lookup(rightVar.Name); ok {
				rightDesc = s.Addr
			}
		}
	}

	if op == "SUM" || op == "AVG" || op == "DOT" {
		e.storeAcc(accAddr, arithType, zeroLit(arithType))
	} else {
		ptr0 := e.RL.ArrayElementAddr(e.B, descAddr, "0")
		seed := e.loadElemForAcc(ptr0, elemBase, arithType)
		e.storeAcc(accAddr, arithType, seed)
		e.B.Store("w", "1", cursorAddr)
	}

	headerLbl := e.B.NewLabelName()
	bodyLbl := e.B.NewLabelName()
	doneLbl := e.B.NewLabelName()
	e.B.Jump(headerLbl)
	e.B.Label(headerLbl)
	cursor := e.B.Load("w", "loadw", cursorAddr)
	cont := e.B.assign("w", "csltw", cursor, count)
	e.B.Branch(cont, bodyLbl, doneLbl)
	e.B.Label(bodyLbl)
	idx := cursor
	ptr := e.RL.ArrayElementAddr(e.B, descAddr, idx)
	elemVal := e.loadElemForAcc(ptr, elemBase, arithType)
	acc := e.B.Load(arithType, accLoadMnemonic(arithType), accAddr)
	switch op {
	case "SUM", "AVG":
		e.storeAcc(accAddr, arithType, e.B.Binary(arithType, "add", acc, elemVal))
	case "MAX":
		gt := e.B.assign("w", condMnemonic(arithType, "gt"), elemVal, acc)
		e.storeAcc(accAddr, arithType, e.emitCondSelect(arithType, gt, elemVal, acc))
	case "MIN":
		lt := e.B.assign("w", condMnemonic(arithType, "lt"), elemVal, acc)
		e.storeAcc(accAddr, arithType, e.emitCondSelect(arithType, lt, elemVal, acc))
	case "DOT":
		rptr := e.RL.ArrayElementAddr(e.B, rightDesc, idx)
		rval := e.loadElemForAcc(rptr, elemBase, arithType)
		prod := e.B.Binary(arithType, "mul", elemVal, rval)
		e.storeAcc(accAddr, arithType, e.B.Binary(arithType, "add", acc, prod))
	}
	next := e.B.Binary("w", "add", cursor, "1")
	e.B.Store("w", next, cursorAddr)
	e.B.Jump(headerLbl)
	e.B.Label(doneLbl)
	final := e.B.Load(arithType, accLoadMnemonic(arithType), accAddr)
	if op == "AVG" {
		cnt := e.promoteTo(count, "w", arithType)
		return e.B.Binary(arithType, "div", final, cnt), arithType
	}
	return final, arithType
}

func (e *Emitter) loadElemForAcc(ptr string, elemBase symtab.BaseType, arithType string) string {
	if elemBase == symtab.Single {
		t := e.B.Load("s", "loads", ptr)
		if arithType == "d" {
			return e.B.Convert("d", "exts", t)
		}
		return t
	}
	return e.B.Load(arithType, e.TM.LoadMnemonic(elemBase), ptr)
}

func (e *Emitter) storeAcc(addr, iltype, val string) {
	e.B.Store(iltype, val, addr)
}

func accLoadMnemonic(iltype string) string {
	if iltype == "d" {
		return "loadd"
	}
	return "loadw"
}

func condMnemonic(iltype, op string) string {
	if iltype == "d" {
		return "c" + op + "d"
	}
	return "cs" + op + "w"
}

func zeroLit(iltype string) string {
	if iltype == "d" {
		return "d_0"
	}
	return "0"
}

// emitUserFuncCall lowers a call to a user-defined FUNCTION, coercing
// arguments to the declared parameter types.
func (e *Emitter) emitUserFuncCall(n *ast.CallExpr) (string, string) {
	upper := strings.ToUpper(n.Name)
	fn, ok := e.Table.Functions[upper]
	if !ok {
		e.warn(-1, "unresolved function %s", n.Name)
		return "d_0", "d"
	}
	args := e.emitCoercedArgs(n.Args, fn.Params)
	retType := e.TM.ILLetter(fn.ReturnType.Base)
	if strings.HasSuffix(n.Name, "$") {
		retType = "l"
	}
	return e.RL.Call(e.B, e.SM.Function(n.Name), args), retType
}

func (e *Emitter) emitCoercedArgs(args []ast.Expr, params []symtab.ParamSymbol) []CallArg {
	out := make([]CallArg, 0, len(args))
	for i, a := range args {
		if i < len(params) {
			out = append(out, e.coerceArg(a, params[i].Type))
		} else {
			v, t := e.EmitExpr(a)
			out = append(out, CallArg{Type: t, Val: v})
		}
	}
	return out
}

// coerceArg evaluates arg and converts it to target's storage type
// (single<->double, int<->long, int->double, ...).
func (e *Emitter) coerceArg(arg ast.Expr, target symtab.TypeDescriptor) CallArg {
	v, t := e.EmitExpr(arg)
	want := e.TM.ParamType(target.Base)
	if target.Base == symtab.UserDefined || target.Base == symtab.ClassInstance || target.Base == symtab.Object {
		return CallArg{"l", v}
	}
	return CallArg{want, e.promoteTo(v, t, want)}
}

// emitIIF creates a micro-CFG with true/false/done labels, evaluates each
// branch, and emits a phi at the merge (spec.md §4.5 "IIF").
func (e *Emitter) emitIIF(n *ast.IIFExpr) (string, string) {
	cond, ct := e.EmitExpr(n.Cond)
	if ct != "w" {
		cond, _ = e.toInt(n.Cond)
	}
	trueLbl := e.B.NewLabelName()
	falseLbl := e.B.NewLabelName()
	doneLbl := e.B.NewLabelName()
	e.B.Branch(cond, trueLbl, falseLbl)

	e.B.Label(trueLbl)
	tv, tt := e.EmitExpr(n.Then)
	predTrue := e.B.CurrentLabel()
	e.B.Jump(doneLbl)

	e.B.Label(falseLbl)
	fv, _ := e.EmitExpr(n.Else)
	predFalse := e.B.CurrentLabel()
	e.B.Jump(doneLbl)

	e.B.Label(doneLbl)
	return e.B.Phi(tt, predTrue, tv, predFalse, fv), tt
}
