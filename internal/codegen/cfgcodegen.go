package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// Result is the finished output of one Generate call: the IL text plus any
// recoverable diagnostics collected while emitting it (spec.md §7).
type Result struct {
	IL          string
	Diagnostics []Diagnostic
}

var scopeAnalyzer = FunctionScopeAnalyzer{}

// Generate runs the CFG Code Generator's full pipeline over prog and
// returns the assembled QBE IL text (spec.md §4.7). Grounded on the
// teacher's backend_ir.go top-level generateIRText: one pass per IL
// section, in a fixed order, all writing into the same Builder.
func Generate(prog *symtab.Program, opts Options) Result {
	e := NewEmitter(prog, opts)

	e.collectStrings()
	e.B.EmitStringPool()

	e.emitGlobalVariables()
	e.emitArrayDescriptors()
	e.emitGosubStackIfNeeded()
	e.emitClassSystem()
	e.emitStrOffsetTables()
	e.RL.EmitDeclarations(e.B)

	e.emitMainFunction()
	for _, name := range prog.FuncOrder {
		e.emitUserFunction(name)
	}

	e.B.EmitLateStringPool()

	return Result{IL: e.B.String(), Diagnostics: e.Diagnostics}
}

// ---- AST traversal ----
//
// walkCFG is the single exhaustive visitor every whole-program pass in this
// file rides on (string collection, scope analysis): it visits every
// statement in every block, and recursively every expression reachable
// from it, handing each to the supplied callbacks. Neither callback needs
// to recurse itself.

func walkCFG(cfg *symtab.CFG, visitStmt func(ast.Stmt), visitExpr func(ast.Expr)) {
	if cfg == nil {
		return
	}
	for _, blk := range cfg.Blocks {
		for _, s := range blk.Stmts {
			walkStmt(s, visitStmt, visitExpr)
		}
		if blk.Cond != nil {
			walkExpr(blk.Cond, visitExpr)
		}
	}
}

func walkStmt(s ast.Stmt, visitStmt func(ast.Stmt), visitExpr func(ast.Expr)) {
	if visitStmt != nil {
		visitStmt(s)
	}
	switch st := s.(type) {
	case *ast.PrintStmt:
		walkExprs(st.Items, visitExpr)
		if st.FileHandle != nil {
			walkExpr(st.FileHandle, visitExpr)
		}
	case *ast.LetStmt:
		walkExprs(st.Target.Indices, visitExpr)
		walkExpr(st.Value, visitExpr)
	case *ast.DimStmt:
		for _, spec := range st.Specs {
			walkDimSpec(spec, visitExpr)
		}
	case *ast.LocalStmt:
		walkDimSpec(st.Spec, visitExpr)
	case *ast.CallStmt:
		walkExprs(st.Args, visitExpr)
	case *ast.ReturnStmt:
		if st.Value != nil {
			walkExpr(st.Value, visitExpr)
		}
	case *ast.IncDecStmt:
		if st.Amount != nil {
			walkExpr(st.Amount, visitExpr)
		}
	case *ast.ConsoleStmt:
		walkExprs(st.Items, visitExpr)
	case *ast.TerminalStmt:
		walkExprs(st.Args, visitExpr)
	case *ast.KeyboardStmt:
		walkExprs(st.Args, visitExpr)
	case *ast.SendStmt:
		walkExpr(st.Handle, visitExpr)
		walkExpr(st.Value, visitExpr)
	case *ast.CancelStmt:
		walkExpr(st.Handle, visitExpr)
	case *ast.TimerStmt:
		if st.Delay != nil {
			walkExpr(st.Delay, visitExpr)
		}
		if st.Handle != nil {
			walkExpr(st.Handle, visitExpr)
		}
		if st.Value != nil {
			walkExpr(st.Value, visitExpr)
		}
		if st.TimerID != nil {
			walkExpr(st.TimerID, visitExpr)
		}
	case *ast.UnmarshallStmt:
		walkExpr(st.Value, visitExpr)
	case *ast.IfStmt:
		walkExpr(st.Cond, visitExpr)
	case *ast.WhileStmt:
		walkExpr(st.Cond, visitExpr)
	case *ast.DoStmt:
		if st.Cond != nil {
			walkExpr(st.Cond, visitExpr)
		}
	case *ast.ForStmt:
		walkExpr(st.Start, visitExpr)
		walkExpr(st.Limit, visitExpr)
		if st.Step != nil {
			walkExpr(st.Step, visitExpr)
		}
	case *ast.ForEachStmt:
		walkExpr(st.Coll, visitExpr)
	case *ast.SelectCaseStmt:
		walkExpr(st.Selector, visitExpr)
	case *ast.CaseTestStmt:
		walkExpr(st.Value, visitExpr)
	case *ast.MatchTypeStmt:
		walkExpr(st.Subject, visitExpr)
	case *ast.MatchReceiveStmt:
		walkExpr(st.Handle, visitExpr)
	case *ast.OnGotoStmt:
		walkExpr(st.Selector, visitExpr)
	}
}

func walkDimSpec(spec ast.DimSpec, visitExpr func(ast.Expr)) {
	walkExprs(spec.Dims, visitExpr)
	if spec.Init != nil {
		walkExpr(spec.Init, visitExpr)
	}
}

func walkExprs(list []ast.Expr, visitExpr func(ast.Expr)) {
	for _, e := range list {
		walkExpr(e, visitExpr)
	}
}

func walkExpr(expr ast.Expr, visitExpr func(ast.Expr)) {
	if expr == nil {
		return
	}
	if visitExpr != nil {
		visitExpr(expr)
	}
	switch n := expr.(type) {
	case *ast.BinOp:
		walkExpr(n.Left, visitExpr)
		walkExpr(n.Right, visitExpr)
	case *ast.UnaryOp:
		walkExpr(n.Operand, visitExpr)
	case *ast.CallExpr:
		walkExprs(n.Args, visitExpr)
	case *ast.IIFExpr:
		walkExpr(n.Cond, visitExpr)
		walkExpr(n.Then, visitExpr)
		walkExpr(n.Else, visitExpr)
	case *ast.MemberExpr:
		walkExpr(n.Target, visitExpr)
	case *ast.MethodCallExpr:
		walkExpr(n.Target, visitExpr)
		walkExprs(n.Args, visitExpr)
	case *ast.ArrayAccessExpr:
		walkExprs(n.Indices, visitExpr)
	case *ast.ArrayBinOpExpr:
		walkExpr(n.Left, visitExpr)
		walkExpr(n.Right, visitExpr)
	case *ast.CreateExpr:
		walkExprs(n.Positional, visitExpr)
		for _, v := range n.Named {
			walkExpr(v, visitExpr)
		}
	case *ast.NewExpr:
		walkExprs(n.Args, visitExpr)
	case *ast.IsExpr:
		walkExpr(n.Left, visitExpr)
		walkExpr(n.Right, visitExpr)
	case *ast.SuperExpr:
		walkExprs(n.Args, visitExpr)
	case *ast.ListExpr:
		walkExprs(n.Items, visitExpr)
	case *ast.SpawnExpr:
		walkExprs(n.Args, visitExpr)
	case *ast.AwaitExpr:
		walkExpr(n.Handle, visitExpr)
	case *ast.ReadyExpr:
		walkExpr(n.Handle, visitExpr)
	case *ast.ReceiveExpr:
		walkExpr(n.Handle, visitExpr)
	case *ast.HasMessageExpr:
		walkExpr(n.Handle, visitExpr)
	case *ast.CancelledExpr:
		walkExpr(n.Handle, visitExpr)
	case *ast.MarshallExpr:
		walkExpr(n.Value, visitExpr)
	}
}

// classMethodCFGKey names the Program.FuncCFGs entry for one class unit: a
// method, or the literal names "CONSTRUCTOR"/"DESTRUCTOR". This module
// owns the convention (no earlier pass defines one) since class bodies are
// the one CFG source this package's driver consumes without a matching
// front-end in this repository.
func classMethodCFGKey(class, unit string) string {
	return strings.ToUpper(class) + "." + strings.ToUpper(unit)
}

// ---- Step 2: string pool ----

func (e *Emitter) collectStrings() {
	collectExpr := func(expr ast.Expr) {
		if sl, ok := expr.(*ast.StringLit); ok {
			e.B.RegisterString(sl.Value)
		}
	}
	collectStmt := func(s ast.Stmt) {
		if is, ok := s.(*ast.InputStmt); ok && is.Prompt != "" {
			e.B.RegisterString(is.Prompt)
		}
	}
	walkCFG(e.Prog.EntryCFG, collectStmt, collectExpr)
	for _, name := range e.Prog.FuncOrder {
		walkCFG(e.Prog.FuncCFGs[name], collectStmt, collectExpr)
	}
	for _, name := range e.Table.ClassOrder {
		cls := e.Table.Classes[name]
		if cls == nil {
			continue
		}
		if cls.HasCtor {
			walkCFG(e.Prog.FuncCFGs[classMethodCFGKey(cls.Name, "CONSTRUCTOR")], collectStmt, collectExpr)
		}
		if cls.HasDtor {
			walkCFG(e.Prog.FuncCFGs[classMethodCFGKey(cls.Name, "DESTRUCTOR")], collectStmt, collectExpr)
		}
		for _, m := range cls.Methods {
			if strings.EqualFold(m.Name, "CONSTRUCTOR") || strings.EqualFold(m.Name, "DESTRUCTOR") {
				continue
			}
			walkCFG(e.Prog.FuncCFGs[classMethodCFGKey(cls.Name, m.Name)], collectStmt, collectExpr)
		}
	}
}

// ---- Step 3: global variables ----

func sortedVariableNames(t *symtab.Table) []string {
	names := make([]string, 0, len(t.Variables))
	for n := range t.Variables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// emitGlobalVariables emits one data declaration per global scalar
// variable (spec.md §4.7 step 3). A UserDefined global is represented the
// same way emitVarLoad/resolveVarTarget already expect a global UDT to be
// represented: a pointer slot referencing a separately zero-filled backing
// block, never inline storage (unlike a UserDefined local, which is
// inline — DESIGN.md Open Question Decision #1 records both conventions;
// globals follow the pointer-indirection convention the accessors already
// hard-code).
func (e *Emitter) emitGlobalVariables() {
	for _, name := range sortedVariableNames(e.Table) {
		v := e.Table.Variables[name]
		if !v.IsGlobal {
			continue
		}
		mangled := e.SM.GlobalVar(v.Name, symtab.SuffixOf(v.Name))
		if v.Base == symtab.UserDefined {
			dataName := mangled + "_data"
			e.B.GlobalZero(dataName, e.TM.SizeOfUDT(v.UDTName))
			e.B.GlobalWord(mangled, "l", "$"+dataName)
			continue
		}
		e.B.GlobalZero(mangled, e.TM.Size(v.Base, v.UDTName))
	}
}

// ---- Step 4: array descriptors ----

// collectGlobalArrays scans the program entry CFG for every DIM array
// declaration — DIM only ever declares a global (LocalStmt covers function
// bodies), so this is the complete set of global arrays without needing an
// IsGlobal flag on symtab.ArraySymbol itself.
func (e *Emitter) collectGlobalArrays() []ast.DimSpec {
	var out []ast.DimSpec
	if e.Prog.EntryCFG == nil {
		return out
	}
	for _, blk := range e.Prog.EntryCFG.Blocks {
		for _, s := range blk.Stmts {
			if ds, ok := s.(*ast.DimStmt); ok {
				for _, spec := range ds.Specs {
					if len(spec.Dims) > 0 {
						out = append(out, spec)
					}
				}
			}
		}
	}
	return out
}

// emitArrayDescriptors emits the global pointer slot for every global
// array's descriptor. A dynamic-size array's slot is populated in place
// when its DIM statement runs, the same as today; a fixed-size array's
// slot instead stays null here and is populated once by emitFixedArrayInit
// in main's prologue (block_let.go's emitOneDimSpec already skips a fixed
// global array at its own block position for exactly this reason).
func (e *Emitter) emitArrayDescriptors() {
	for _, spec := range e.collectGlobalArrays() {
		e.B.GlobalWord(e.SM.ArrayDescriptor(spec.Name), "l", "0")
	}
}

func dimSpecIsDynamic(spec ast.DimSpec) bool {
	for _, d := range spec.Dims {
		if !isConstExpr(d) {
			return true
		}
	}
	return false
}

// emitFixedArrayInit runs once in main's prologue, creating every
// fixed-size global array via array_create_1d/2d exactly the way a
// dynamic-size one is created at its own DIM statement, just relocated to
// program start since a fixed size needs no runtime value to compute.
func (e *Emitter) emitFixedArrayInit() {
	for _, spec := range e.collectGlobalArrays() {
		if dimSpecIsDynamic(spec) {
			continue
		}
		arr, ok := e.Table.Arrays[strings.ToUpper(spec.Name)]
		elemSize := 8
		if ok {
			elemSize = e.TM.Size(arr.ElemType.Base, arr.ElemType.TypeName)
		}
		descAddr := "$" + e.SM.ArrayDescriptor(spec.Name)
		if len(spec.Dims) == 2 {
			rows, _ := e.toInt(spec.Dims[0])
			cols, _ := e.toInt(spec.Dims[1])
			created := e.RL.Call(e.B, "array_create_2d", []CallArg{{"w", fmt.Sprintf("%d", elemSize)}, {"w", rows}, {"w", cols}})
			e.B.Store("l", created, descAddr)
			continue
		}
		n, _ := e.toInt(spec.Dims[0])
		created := e.RL.Call(e.B, "array_create_1d", []CallArg{{"w", fmt.Sprintf("%d", elemSize)}, {"w", n}})
		e.B.Store("l", created, descAddr)
	}
}

// ---- Step 5: GOSUB stack ----

func (e *Emitter) anyGosubReturnPoints() bool {
	if e.Prog.EntryCFG != nil && len(e.Prog.EntryCFG.GosubReturnPoints) > 0 {
		return true
	}
	for _, name := range e.Prog.FuncOrder {
		if cfg := e.Prog.FuncCFGs[name]; cfg != nil && len(cfg.GosubReturnPoints) > 0 {
			return true
		}
	}
	return false
}

// emitGosubStackIfNeeded emits the process-wide GOSUB stack and its
// pointer, only when some unit actually uses GOSUB (pushGosubReturn and
// emitGosubReturnDispatch in block_term.go address these two globals by
// name).
func (e *Emitter) emitGosubStackIfNeeded() {
	if !e.anyGosubReturnPoints() {
		return
	}
	const gosubDepth = 16
	e.B.GlobalZero("gosub_stack", gosubDepth*4)
	e.B.GlobalWord("gosub_sp", "w", "0")
}

// ---- Step 6: class system ----

// orderedMethods returns cls's vtable-dispatched methods (excluding the
// constructor/destructor, which are never called through the vtable)
// sorted by slot, so the method-pointer array's positions line up with
// emitClassMethodCall's slotOffset arithmetic.
func orderedMethods(cls *symtab.ClassSymbol) []symtab.ClassMethod {
	var out []symtab.ClassMethod
	for _, m := range cls.Methods {
		if strings.EqualFold(m.Name, "CONSTRUCTOR") || strings.EqualFold(m.Name, "DESTRUCTOR") {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// emitVtable emits one class's vtable: class_id, parent_vtable,
// class_name_ptr, destructor_ptr, then one function pointer per method
// slot (spec.md §4.7 step 6, vtableHeaderSize in expr_methods.go).
func (e *Emitter) emitVtable(cls *symtab.ClassSymbol) {
	parentField := "l 0"
	if cls.Parent != "" {
		parentField = "l $" + e.SM.Vtable(cls.Parent)
	}
	dtorField := "l 0"
	if cls.HasDtor {
		dtorField = "l $" + e.SM.ClassDtor(cls.Name)
	}
	fields := []string{
		fmt.Sprintf("l %d", cls.ClassID),
		parentField,
		"l $" + e.SM.ClassNameLabel(cls.Name),
		dtorField,
	}
	for _, m := range orderedMethods(cls) {
		fields = append(fields, "l $"+e.SM.ClassMethod(cls.Name, m.Name))
	}
	e.B.GlobalBytes(e.SM.Vtable(cls.Name), fields)
}

func (e *Emitter) emitClassSystem() {
	for _, name := range e.Table.ClassOrder {
		if cls := e.Table.Classes[name]; cls != nil {
			e.emitVtable(cls)
		}
	}
	for _, name := range e.Table.ClassOrder {
		cls := e.Table.Classes[name]
		if cls == nil {
			continue
		}
		e.B.GlobalString(e.SM.ClassNameLabel(cls.Name), cls.Name)
		if cls.HasCtor {
			e.emitClassUnit(cls, "CONSTRUCTOR", e.SM.ClassCtor(cls.Name))
		}
		if cls.HasDtor {
			e.emitClassUnit(cls, "DESTRUCTOR", e.SM.ClassDtor(cls.Name))
		}
		for _, m := range orderedMethods(cls) {
			e.emitClassUnit(cls, m.Name, e.SM.ClassMethod(cls.Name, m.Name))
		}
	}
}

func (e *Emitter) emitClassUnit(cls *symtab.ClassSymbol, unitName, mangled string) {
	cfg := e.Prog.FuncCFGs[classMethodCFGKey(cls.Name, unitName)]
	if cfg == nil {
		e.warn(-1, "missing CFG for %s.%s", cls.Name, unitName)
		return
	}
	m := findMethod(cls, unitName)
	var params []symtab.ParamSymbol
	retType := ""
	retBase := symtab.Void
	isMethod := unitName != "CONSTRUCTOR" && unitName != "DESTRUCTOR"
	if m != nil {
		params = m.Params
		if isMethod {
			retBase = m.ReturnType.Base
			retType = e.TM.ILLetter(retBase)
		}
	}
	e.emitFunctionUnit(functionUnit{
		cfg:         cfg,
		displayName: cls.Name + "." + unitName,
		upperName:   strings.ToUpper(cls.Name) + "." + strings.ToUpper(unitName),
		mangledName: mangled,
		retType:     retType,
		retBase:     retBase,
		params:      params,
		classCtx:    cls,
		methodName:  unitName,
		isMethod:    isMethod,
		needsScope:  scopeAnalyzer.NeedsScope(cfg),
	})
}

// ---- Step 7: MARSHALL string-offset tables ----

// collectStringOffsets returns every string-field byte offset within
// typeName, relative to base, recursing into nested UDT fields (not class
// fields — a class field is a pointer the marshaller resolves on its own,
// never something this table flattens into).
func collectStringOffsets(t *symtab.Table, typeName string, base int) []int {
	udt, ok := t.Types[typeName]
	if !ok {
		return nil
	}
	var out []int
	for _, f := range udt.Fields {
		off := base + f.Offset
		switch f.Type.Base {
		case symtab.String, symtab.Unicode, symtab.StringDescriptor:
			out = append(out, off)
		case symtab.UserDefined:
			out = append(out, collectStringOffsets(t, f.Type.TypeName, off)...)
		}
	}
	return out
}

// emitStrOffsetTables emits a str_offsets_TYPE table, sentinel-terminated
// with a trailing -1 word, for every UDT MARSHALL could encounter with a
// string field (expr_concurrency.go's emitMarshall/hasStringField only
// cover UDTs; classes are marshalled through object_alloc/vtable instead,
// never through this table).
func (e *Emitter) emitStrOffsetTables() {
	for _, name := range e.Table.TypeOrder {
		if e.Table.Types[name] == nil || !hasStringField(e.Table, name) {
			continue
		}
		offsets := collectStringOffsets(e.Table, name, 0)
		fields := make([]string, 0, len(offsets)+1)
		for _, off := range offsets {
			fields = append(fields, fmt.Sprintf("w %d", off))
		}
		fields = append(fields, "w -1")
		e.B.GlobalBytes(e.SM.StrOffsetsLabel(name), fields)
	}
}

// ---- Function units: prologue + parameter binding ----

// paramBinding is a parameter not yet reflected in emitted code: naming it
// a slot and writing the instructions that give it one are two separate
// steps, because the QBE header line (naming every parameter) has to be
// written before the entry block's first instruction (the alloc that
// reserves the slot).
type paramBinding struct {
	name   string
	base   symtab.BaseType
	asType string
}

func paramTempName(idx int) string { return fmt.Sprintf("%%p%d", idx) }

func (e *Emitter) funcParamFor(pb paramBinding, idx int) FuncParam {
	return FuncParam{Type: e.TM.ParamType(pb.base), Name: paramTempName(idx)}
}

// emitParamBinding allocates pb's stack slot, stores the incoming
// parameter value into it, and registers it on the active FunctionContext.
// Every parameter is pointer-represented when its base is
// UserDefined/ClassInstance/Object (DESIGN.md Open Question Decision #1 —
// only a UserDefined *local* is ever stored inline).
func (e *Emitter) emitParamBinding(pb paramBinding, idx int) {
	size := 8
	if pb.base != symtab.UserDefined && pb.base != symtab.ClassInstance && pb.base != symtab.Object {
		size = e.TM.Size(pb.base, pb.asType)
	}
	addr := e.B.Alloc(size, Align(size))
	e.B.Store(e.TM.StoreSuffix(pb.base), paramTempName(idx), addr)
	e.Func.AddParam(pb.name, SlotInfo{Addr: addr, ILType: e.TM.ParamType(pb.base), Base: pb.base, AsType: pb.asType})
}

// functionUnit is every emittable unit's shared shape: the program entry
// point, a plain FUNCTION/SUB/worker, or one class constructor/destructor/
// method (spec.md §4.7 steps 6, 9, 10).
type functionUnit struct {
	cfg          *symtab.CFG
	displayName  string
	upperName    string
	mangledName  string
	exported     bool
	retType      string // "" for a void unit
	retBase      symtab.BaseType
	params       []symtab.ParamSymbol
	classCtx     *symtab.ClassSymbol
	methodName   string
	isMethod     bool // true only for a named class method, not ctor/dtor
	parentHandle bool // true for a messaging worker's hidden PARENT param
	isMain       bool
	needsScope   bool
}

// emitFunctionUnit lowers one complete function/sub/worker/method body:
// header, parameter bindings, FOR/LOCAL hoisting, the optional SAMM scope
// enter, the RPO-ordered block walk (with the entry block's label and
// prologue instructions interleaved, per block.go's EmitBlockBody split),
// and the closing brace.
func (e *Emitter) emitFunctionUnit(unit functionUnit) {
	if unit.cfg == nil {
		e.warn(-1, "missing CFG for %s", unit.displayName)
		return
	}
	unit.cfg.ComputeRPO()
	e.resetLoopState()

	isPlainFunction := unit.classCtx == nil && !unit.isMain && unit.retType != ""
	fc := NewFunctionContext(unit.displayName, isPlainFunction, unit.upperName)
	fc.IsMain = unit.isMain
	fc.NeedsScope = unit.needsScope
	fc.ClassCtx = unit.classCtx
	fc.MethodName = unit.methodName
	e.Func = fc
	e.CFG = unit.cfg

	var bindings []paramBinding
	if unit.classCtx != nil {
		bindings = append(bindings, paramBinding{"ME", symtab.ClassInstance, unit.classCtx.Name})
	}
	if unit.parentHandle {
		bindings = append(bindings, paramBinding{"__PARENT_HANDLE", symtab.Pointer, ""})
	}
	for _, p := range unit.params {
		bindings = append(bindings, paramBinding{p.Name, p.Type.Base, p.Type.TypeName})
	}

	headerParams := make([]FuncParam, len(bindings))
	for i, pb := range bindings {
		headerParams[i] = e.funcParamFor(pb, i)
	}
	e.B.FuncHeader(unit.exported, unit.retType, unit.mangledName, headerParams)
	if len(unit.cfg.RPO) > 0 {
		e.B.Label(blockLabel(unit.cfg.Block(unit.cfg.RPO[0])))
	}

	for i, pb := range bindings {
		e.emitParamBinding(pb, i)
	}

	if unit.isMethod && unit.retType != "" {
		fc.MethodRetType = unit.retType
		fc.MethodRetSlot = e.B.Alloc(8, 8)
	} else if fc.IsFunction {
		size := e.TM.Size(unit.retBase, "")
		fc.ReturnBase = unit.retBase
		fc.ReturnAddr = e.B.Alloc(size, Align(size))
	}

	e.hoistForAllocs(unit.cfg)
	e.hoistLocals(unit.cfg)
	if unit.isMain {
		e.emitFixedArrayInit()
		e.RL.Call(e.B, "data_init", nil)
	}
	if fc.NeedsScope {
		e.RL.SammEnterScope(e.B)
	}

	for i, idx := range unit.cfg.RPO {
		blk := unit.cfg.Block(idx)
		if i == 0 {
			e.EmitBlockBody(blk)
			continue
		}
		e.EmitBlock(blk)
	}

	e.B.FuncClose()
	e.Func = nil
	e.CFG = nil
}

// ---- Steps 9/10: main, then every function/sub/worker ----

func (e *Emitter) emitMainFunction() {
	e.emitFunctionUnit(functionUnit{
		cfg:         e.Prog.EntryCFG,
		displayName: e.Prog.MainName,
		upperName:   e.Prog.MainName,
		mangledName: "main",
		exported:    true,
		retType:     "w",
		retBase:     symtab.Integer,
		isMain:      true,
		needsScope:  scopeAnalyzer.NeedsScope(e.Prog.EntryCFG),
	})
}

func (e *Emitter) emitUserFunction(name string) {
	cfg := e.Prog.FuncCFGs[name]
	if cfg == nil {
		e.warn(-1, "missing CFG for %s", name)
		return
	}
	fn, ok := e.Table.Functions[strings.ToUpper(symtab.StripSuffix(name))]
	if !ok {
		e.warn(-1, "unresolved function symbol %s", name)
		return
	}
	retType := ""
	if fn.IsFunction {
		retType = e.TM.ILLetter(fn.ReturnType.Base)
	}
	e.emitFunctionUnit(functionUnit{
		cfg:          cfg,
		displayName:  name,
		upperName:    strings.ToUpper(symtab.StripSuffix(name)),
		mangledName:  e.workerFuncName(name, fn),
		retType:      retType,
		retBase:      fn.ReturnType.Base,
		params:       fn.Params,
		parentHandle: fn.UsesMessaging,
		needsScope:   scopeAnalyzer.NeedsScope(cfg),
	})
}

