package codegen

import (
	"fmt"
	"strings"

	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// classify and exprBase together are the Expression Emitter's type
// inference walk (spec.md §4.5). classify answers "which IL type family",
// exprBase answers "which symtab.BaseType", used where a more precise
// answer is needed (UDT/class name, LONG vs INTEGER, etc).
//
// Grounded on backend_x64.go/backend_aarch64.go's per-opcode switch over
// Inst.Op: same switch-per-node-kind shape, operating over ast.Expr
// variants instead of flattened stack-machine opcodes.

func (e *Emitter) classify(expr ast.Expr) ResultKind {
	switch n := expr.(type) {
	case *ast.NumberLit:
		if n.IsInt && n.Suffix != '!' && n.Suffix != '#' {
			return KindInteger
		}
		if n.Suffix == '%' || n.Suffix == '&' || n.Suffix == '^' || n.Suffix == '@' {
			return KindInteger
		}
		return KindDouble
	case *ast.StringLit:
		return KindString
	case *ast.VarRef:
		return baseToKind(e.lookupVarBase(n.Name, n.Suffix))
	case *ast.BinOp:
		return e.classifyBinOp(n)
	case *ast.UnaryOp:
		if strings.EqualFold(n.Op, "NOT") {
			return KindInteger
		}
		return e.classify(n.Operand)
	case *ast.CallExpr:
		return e.classifyCall(n)
	case *ast.MemberExpr:
		return baseToKind(e.exprBase(n))
	case *ast.ArrayAccessExpr:
		return baseToKind(e.exprBase(n))
	case *ast.IIFExpr:
		return e.classify(n.Then)
	case *ast.NewExpr, *ast.CreateExpr:
		return KindDouble
	case *ast.MethodCallExpr:
		return e.classifyMethodCall(n)
	case *ast.SpawnExpr, *ast.AwaitExpr, *ast.ReceiveExpr, *ast.ParentExpr, *ast.MarshallExpr:
		return KindDouble
	case *ast.ReadyExpr, *ast.HasMessageExpr, *ast.CancelledExpr, *ast.IsExpr:
		return KindInteger
	case *ast.ArrayBinOpExpr:
		return baseToKind(e.arrayElemBase(n.Left))
	case *ast.ListExpr, *ast.MeExpr, *ast.NothingExpr:
		return KindDouble
	case *ast.SuperExpr:
		return e.classifySuperCall(n)
	default:
		return KindDouble
	}
}

func baseToKind(b symtab.BaseType) ResultKind {
	switch b {
	case symtab.String, symtab.StringDescriptor:
		return KindString
	case symtab.Single, symtab.Double, symtab.Unknown:
		return KindDouble
	case symtab.Byte, symtab.UByte, symtab.Short, symtab.UShort, symtab.Integer, symtab.UInteger,
		symtab.Long, symtab.ULong, symtab.LoopIndex:
		return KindInteger
	default:
		// Pointer/Object/ClassInstance/UserDefined/ArrayDescriptor: carried
		// bit-punned in a double slot (spec.md §4.5).
		return KindDouble
	}
}

func (e *Emitter) classifyBinOp(n *ast.BinOp) ResultKind {
	switch n.Op {
	case "+", "&":
		if e.classify(n.Left) == KindString || e.classify(n.Right) == KindString {
			return KindString
		}
	case "=", "<>", "<", "<=", ">", ">=", "AND", "OR":
		return KindInteger
	case "\\":
		return KindInteger
	case "^":
		return KindDouble
	}
	l, r := e.classify(n.Left), e.classify(n.Right)
	if l == KindInteger && r == KindInteger {
		return KindInteger
	}
	return KindDouble
}

// exprBase resolves the precise symtab.BaseType of an expression, used
// where classify's three-way split isn't enough (LONG vs INTEGER,
// UDT/class type names, pointer-ness).
func (e *Emitter) exprBase(expr ast.Expr) symtab.BaseType {
	switch n := expr.(type) {
	case *ast.NumberLit:
		if n.Suffix != 0 {
			return suffixBase(n.Suffix)
		}
		if n.IsInt {
			return symtab.Integer
		}
		return symtab.Double
	case *ast.StringLit:
		return symtab.String
	case *ast.VarRef:
		return e.lookupVarBase(n.Name, n.Suffix)
	case *ast.MemberExpr:
		return e.memberFieldBase(n)
	case *ast.ArrayAccessExpr:
		return e.arrayAccessBase(n)
	case *ast.UnaryOp:
		return e.exprBase(n.Operand)
	case *ast.IIFExpr:
		return e.exprBase(n.Then)
	case *ast.BinOp:
		switch e.classifyBinOp(n) {
		case KindString:
			return symtab.String
		case KindInteger:
			return symtab.Integer
		default:
			return symtab.Double
		}
	case *ast.MethodCallExpr:
		return e.methodCallBase(n)
	case *ast.ArrayBinOpExpr:
		return e.arrayElemBase(n.Left)
	default:
		return symtab.Double
	}
}

func (e *Emitter) arrayElemBase(expr ast.Expr) symtab.BaseType {
	if v, ok := expr.(*ast.VarRef); ok {
		if arr, ok := e.Table.Arrays[symtab.StripSuffix(v.Name)]; ok {
			return arr.ElemType.Base
		}
	}
	return symtab.Double
}

// memberFieldBase resolves a (possibly chained) .field access's base type
// by walking UDT/class field descriptors (spec.md §4.5 "Member access").
func (e *Emitter) memberFieldBase(n *ast.MemberExpr) symtab.BaseType {
	typeName := e.exprTypeName(n.Target)
	if typeName == "" {
		return symtab.Double
	}
	if udt, ok := e.Table.Types[typeName]; ok {
		for _, f := range udt.Fields {
			if strings.EqualFold(f.Name, n.Field) {
				return f.Type.Base
			}
		}
	}
	if cls, ok := e.Table.Classes[typeName]; ok {
		for _, f := range cls.Fields {
			if strings.EqualFold(f.Name, n.Field) {
				return f.Type.Base
			}
		}
	}
	return symtab.Double
}

// exprTypeName recovers the UDT/class type name an expression evaluates
// to, used for member-chain resolution.
func (e *Emitter) exprTypeName(expr ast.Expr) string {
	switch n := expr.(type) {
	case *ast.MeExpr:
		if e.Func != nil && e.Func.ClassCtx != nil {
			return e.Func.ClassCtx.Name
		}
	case *ast.VarRef:
		if e.Func != nil {
			if s, ok := e.Func.Lookup(n.Name); ok && s.AsType != "" {
				return s.AsType
			}
		}
		if v, ok := e.Table.LookupVariable(e.funcUpper(), n.Name); ok {
			return v.UDTName
		}
	case *ast.MemberExpr:
		fieldBase := e.memberFieldBase(n)
		typeName := e.exprTypeName(n.Target)
		if typeName != "" {
			if udt, ok := e.Table.Types[typeName]; ok {
				for _, f := range udt.Fields {
					if strings.EqualFold(f.Name, n.Field) {
						if fieldBase == symtab.UserDefined {
							return f.Type.TypeName
						}
					}
				}
			}
			if cls, ok := e.Table.Classes[typeName]; ok {
				for _, f := range cls.Fields {
					if strings.EqualFold(f.Name, n.Field) {
						return f.Type.TypeName
					}
				}
			}
		}
	case *ast.NewExpr:
		return n.ClassName
	case *ast.CreateExpr:
		return n.TypeName
	}
	return ""
}

func (e *Emitter) funcUpper() string {
	if e.Func != nil {
		return e.Func.UpperName
	}
	return ""
}

func (e *Emitter) arrayAccessBase(n *ast.ArrayAccessExpr) symtab.BaseType {
	upper := symtab.StripSuffix(strings.ToUpper(n.Name))
	if v, ok := e.Table.LookupVariable(e.funcUpper(), n.Name); ok {
		if v.ObjectType == "HASHMAP" {
			return symtab.String
		}
		if v.ObjectType == "LIST" && v.ElemType != nil {
			return v.ElemType.Base
		}
	}
	if arr, ok := e.Table.Arrays[upper]; ok {
		return arr.ElemType.Base
	}
	return symtab.Double
}

func (e *Emitter) classifyCall(n *ast.CallExpr) ResultKind {
	upper := strings.ToUpper(n.Name)
	switch upper {
	case "SGN":
		return KindInteger
	case "ABS":
		if len(n.Args) > 0 {
			return e.classify(n.Args[0])
		}
		return KindDouble
	case "SUM", "MIN", "MAX", "AVG", "DOT":
		if len(n.Args) > 0 {
			return baseToKind(e.arrayElemBase(n.Args[0]))
		}
		return KindDouble
	case "LEN", "ASC", "INSTR":
		return KindInteger
	case "CHR", "STR", "LEFT", "RIGHT", "MID", "UCASE", "LCASE", "TRIM", "LTRIM", "RTRIM", "STRING":
		return KindString
	case "INT", "FIX", "CINT", "CLNG", "CBYTE", "CSHORT":
		return KindInteger
	case "CDBL", "CSNG", "SQR", "SIN", "COS", "TAN", "ATN", "LOG", "EXP":
		return KindDouble
	}
	if fn, ok := e.Table.Functions[upper]; ok {
		if strings.HasSuffix(n.Name, "$") {
			return KindString
		}
		return baseToKind(fn.ReturnType.Base)
	}
	return KindDouble
}

func (e *Emitter) methodCallBase(n *ast.MethodCallExpr) symtab.BaseType {
	switch k := e.classifyMethodCall(n); k {
	case KindString:
		return symtab.String
	case KindInteger:
		return symtab.Integer
	default:
		return symtab.Double
	}
}

func (e *Emitter) classifyMethodCall(n *ast.MethodCallExpr) ResultKind {
	upper := strings.ToUpper(n.Method)
	typeName := e.exprTypeName(n.Target)
	if typeName != "" {
		if cls := e.Table.Classes[typeName]; cls != nil {
			for _, m := range cls.Methods {
				if strings.EqualFold(m.Name, n.Method) {
					return baseToKind(m.ReturnType.Base)
				}
			}
		}
	}
	switch upper {
	case "LENGTH", "SIZE", "COUNT", "EMPTY", "CONTAINS", "INDEXOF", "HASKEY":
		return KindInteger
	case "JOIN":
		return KindString
	case "HEAD", "GET", "SHIFT", "POP":
		if v, ok := n.Target.(*ast.VarRef); ok {
			return baseToKind(e.arrayElemBase(v))
		}
	}
	return KindDouble
}

func (e *Emitter) classifySuperCall(n *ast.SuperExpr) ResultKind {
	if e.Func != nil && e.Func.ClassCtx != nil && e.Func.ClassCtx.Parent != "" {
		if parent := e.Table.Classes[e.Func.ClassCtx.Parent]; parent != nil {
			for _, m := range parent.Methods {
				if strings.EqualFold(m.Name, n.Method) {
					return baseToKind(m.ReturnType.Base)
				}
			}
		}
	}
	return KindDouble
}

// EmitExpr is the Expression Emitter's top-level entry point: it lowers
// expr to IL and returns the operand (temp name or literal) holding its
// value, along with the IL type letter that operand is carried in.
func (e *Emitter) EmitExpr(expr ast.Expr) (operand string, iltype string) {
	switch n := expr.(type) {
	case *ast.NumberLit:
		return e.emitNumberLit(n)
	case *ast.StringLit:
		return e.emitStringLit(n)
	case *ast.VarRef:
		return e.emitVarLoad(n)
	case *ast.BinOp:
		return e.emitBinOp(n)
	case *ast.UnaryOp:
		return e.emitUnaryOp(n)
	case *ast.CallExpr:
		return e.emitCallExpr(n)
	case *ast.IIFExpr:
		return e.emitIIF(n)
	case *ast.MemberExpr:
		return e.emitMemberAccess(n)
	case *ast.MethodCallExpr:
		return e.emitMethodCall(n)
	case *ast.ArrayAccessExpr:
		return e.emitArrayAccess(n)
	case *ast.ArrayBinOpExpr:
		return e.emitArrayBinOp(n)
	case *ast.CreateExpr:
		return e.emitCreate(n)
	case *ast.NewExpr:
		return e.emitNew(n)
	case *ast.MeExpr:
		if e.Func != nil {
			if s, ok := e.Func.Lookup("ME"); ok {
				t := e.B.Load("l", "loadl", s.Addr)
				return e.B.Convert("d", "cast", t), "d"
			}
		}
		return "d_0", "d"
	case *ast.NothingExpr:
		return "d_0", "d"
	case *ast.IsExpr:
		return e.emitIsExpr(n)
	case *ast.SuperExpr:
		return e.emitSuperCall(n)
	case *ast.ListExpr:
		return e.emitListExpr(n)
	case *ast.SpawnExpr:
		return e.emitSpawn(n)
	case *ast.AwaitExpr:
		return e.emitAwait(n)
	case *ast.ReadyExpr:
		return e.emitReady(n)
	case *ast.ReceiveExpr:
		return e.emitReceive(n)
	case *ast.HasMessageExpr:
		return e.emitHasMessage(n)
	case *ast.ParentExpr:
		return e.emitParent(n)
	case *ast.CancelledExpr:
		return e.emitCancelled(n)
	case *ast.MarshallExpr:
		return e.emitMarshall(n)
	default:
		e.warn(-1, "unsupported expression node %T", expr)
		return "d_0", "d"
	}
}

func (e *Emitter) emitNumberLit(n *ast.NumberLit) (string, string) {
	switch e.classify(n) {
	case KindInteger:
		return fmt.Sprintf("%d", n.IntVal), "w"
	default:
		return fmt.Sprintf("d_%g", n.Value), "d"
	}
}

func (e *Emitter) emitStringLit(n *ast.StringLit) (string, string) {
	label := e.B.RegisterString(n.Value)
	return "$" + label, "l"
}
