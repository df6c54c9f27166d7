package codegen

import (
	"strings"

	"github.com/nimblebasic/nbc/internal/ast"
)

// emitBinOp lowers a binary operator expression (spec.md §4.5 "Core
// algorithms": string concat/compare dispatch, binary arithmetic type
// promotion, integer division, float MOD, POW).
func (e *Emitter) emitBinOp(n *ast.BinOp) (string, string) {
	switch n.Op {
	case "+", "&":
		if e.classify(n.Left) == KindString || e.classify(n.Right) == KindString {
			return e.emitStringConcat(n)
		}
	case "=", "<>", "<", "<=", ">", ">=":
		if e.classify(n.Left) == KindString || e.classify(n.Right) == KindString {
			return e.emitStringCompare(n)
		}
		return e.emitComparison(n)
	case "AND":
		l, _ := e.EmitExpr(n.Left)
		r, _ := e.EmitExpr(n.Right)
		return e.B.Binary("w", "and", l, r), "w"
	case "OR":
		l, _ := e.EmitExpr(n.Left)
		r, _ := e.EmitExpr(n.Right)
		return e.B.Binary("w", "or", l, r), "w"
	case "\\":
		l, _ := e.toInt(n.Left)
		r, _ := e.toInt(n.Right)
		return e.B.Binary("w", "div", l, r), "w"
	case "MOD":
		return e.emitMod(n)
	case "^":
		l, _ := e.toDouble(n.Left)
		r, _ := e.toDouble(n.Right)
		return e.RL.Call(e.B, "pow", []CallArg{{"d", l}, {"d", r}}), "d"
	}
	return e.emitArith(n)
}

// emitStringConcat lowers `+`/`&` when either side is a string, converting
// non-string operands via string_from_int/string_from_double.
func (e *Emitter) emitStringConcat(n *ast.BinOp) (string, string) {
	l := e.toStringOperand(n.Left)
	r := e.toStringOperand(n.Right)
	return e.RL.StringConcat(e.B, l, r), "l"
}

func (e *Emitter) toStringOperand(expr ast.Expr) string {
	switch e.classify(expr) {
	case KindString:
		v, _ := e.EmitExpr(expr)
		return v
	case KindInteger:
		v, _ := e.EmitExpr(expr)
		if e.isLongExpr(expr) {
			return e.RL.StringFromLong(e.B, v)
		}
		return e.RL.StringFromInt(e.B, v)
	default:
		v, _ := e.toDouble(expr)
		return e.RL.StringFromDouble(e.B, v)
	}
}

// emitStringCompare lowers string comparisons via string_compare then
// comparing the integer result against 0.
func (e *Emitter) emitStringCompare(n *ast.BinOp) (string, string) {
	l := e.toStringOperand(n.Left)
	r := e.toStringOperand(n.Right)
	cmp := e.RL.StringCompare(e.B, l, r)
	var mnemonic string
	switch n.Op {
	case "=":
		mnemonic = "ceqw"
	case "<>":
		mnemonic = "cnew"
	case "<":
		mnemonic = "csltw"
	case "<=":
		mnemonic = "cslew"
	case ">":
		mnemonic = "csgtw"
	case ">=":
		mnemonic = "csgew"
	default:
		mnemonic = "ceqw"
	}
	return e.B.assign("w", mnemonic, cmp, "0"), "w"
}

// emitComparison lowers a non-string comparison, choosing ceql/cnel for
// pointer-typed operands and the right IL comparison type otherwise.
func (e *Emitter) emitComparison(n *ast.BinOp) (string, string) {
	ptr := e.isPointerExpr(n.Left) || e.isPointerExpr(n.Right)
	if ptr {
		l, _ := e.EmitExpr(n.Left)
		r, _ := e.EmitExpr(n.Right)
		mnemonic := "ceql"
		if n.Op == "<>" {
			mnemonic = "cnel"
		}
		return e.B.assign("w", mnemonic, l, r), "w"
	}

	arithType, isFloat := e.arithTypeFor(n.Left, n.Right)
	l, r := e.promotePair(n.Left, n.Right, arithType)

	op := map[string]string{"=": "eq", "<>": "ne", "<": "lt", "<=": "le", ">": "gt", ">=": "ge"}[n.Op]
	cmp := e.B.Compare(op, arithType, isFloat)
	return cmp(l, r), "w"
}

// arithTypeFor picks the QBE arithmetic type for a binary op over two
// operands: pointer -> l, LONG -> l, both integer -> w, else -> d (spec.md
// §4.5 "Binary arithmetic").
func (e *Emitter) arithTypeFor(left, right ast.Expr) (iltype string, isFloat bool) {
	if e.isPointerExpr(left) || e.isPointerExpr(right) {
		return "l", false
	}
	if e.isLongExpr(left) || e.isLongExpr(right) {
		return "l", false
	}
	if e.classify(left) == KindInteger && e.classify(right) == KindInteger {
		return "w", false
	}
	return "d", true
}

// promotePair evaluates both operands and widens whichever side needs it to
// match arithType (int->double via swtof, int32->int64 via extsw).
func (e *Emitter) promotePair(left, right ast.Expr, arithType string) (string, string) {
	l, lt := e.EmitExpr(left)
	r, rt := e.EmitExpr(right)
	return e.promoteTo(l, lt, arithType), e.promoteTo(r, rt, arithType)
}

func (e *Emitter) promoteTo(val, from, to string) string {
	if from == to {
		return val
	}
	switch to {
	case "d":
		switch from {
		case "w":
			return e.B.Convert("d", "swtof", val)
		case "l":
			return e.B.Convert("d", "sltof", val)
		case "s":
			return e.B.Convert("d", "exts", val)
		}
	case "l":
		if from == "w" {
			return e.B.Extend("extsw", val)
		}
	case "w":
		if from == "l" {
			return e.B.Truncate(val)
		}
	}
	return val
}

func (e *Emitter) toInt(expr ast.Expr) (string, string) {
	v, t := e.EmitExpr(expr)
	if t == "d" || t == "s" {
		return e.B.Convert("w", "dtosi", v), "w"
	}
	if t == "l" {
		return e.B.Truncate(v), "w"
	}
	return v, "w"
}

func (e *Emitter) toDouble(expr ast.Expr) (string, string) {
	v, t := e.EmitExpr(expr)
	return e.promoteTo(v, t, "d"), "d"
}

// emitMod lowers MOD: integer MOD uses QBE rem; float MOD is computed as
// a - floor(a/b)*b (spec.md §4.5).
func (e *Emitter) emitMod(n *ast.BinOp) (string, string) {
	if e.classify(n.Left) == KindInteger && e.classify(n.Right) == KindInteger &&
		!e.isLongExpr(n.Left) && !e.isLongExpr(n.Right) {
		l, _ := e.EmitExpr(n.Left)
		r, _ := e.EmitExpr(n.Right)
		return e.B.Binary("w", "rem", l, r), "w"
	}
	a, _ := e.toDouble(n.Left)
	b, _ := e.toDouble(n.Right)
	q := e.B.Binary("d", "div", a, b)
	fl := e.RL.Call(e.B, "floor", []CallArg{{"d", q}})
	prod := e.B.Binary("d", "mul", fl, b)
	return e.B.Binary("d", "sub", a, prod), "d"
}

// emitArith lowers +, -, *, /.
func (e *Emitter) emitArith(n *ast.BinOp) (string, string) {
	arithType, _ := e.arithTypeFor(n.Left, n.Right)
	l, r := e.promotePair(n.Left, n.Right, arithType)
	var mnemonic string
	switch n.Op {
	case "+":
		mnemonic = "add"
	case "-":
		mnemonic = "sub"
	case "*":
		mnemonic = "mul"
	case "/":
		mnemonic = "div"
	default:
		mnemonic = "add"
	}
	return e.B.Binary(arithType, mnemonic, l, r), arithType
}

// emitUnaryOp lowers NOT (always integer) and unary negation (preserves
// operand type).
func (e *Emitter) emitUnaryOp(n *ast.UnaryOp) (string, string) {
	if strings.EqualFold(n.Op, "NOT") {
		v, t := e.EmitExpr(n.Operand)
		if t != "w" {
			v, t = e.toInt(n.Operand)
		}
		one := e.B.assign("w", "ceqw", v, "0")
		return one, "w"
	}
	v, t := e.EmitExpr(n.Operand)
	return e.B.Neg(t, v), t
}

// emitIsExpr lowers `a IS b`, a reference-identity test.
func (e *Emitter) emitIsExpr(n *ast.IsExpr) (string, string) {
	l, _ := e.EmitExpr(n.Left)
	r, _ := e.EmitExpr(n.Right)
	return e.B.assign("w", "ceql", l, r), "w"
}
