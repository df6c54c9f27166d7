package codegen

import (
	"strings"

	"github.com/nimblebasic/nbc/internal/ast"
	"github.com/nimblebasic/nbc/internal/symtab"
)

// loopHeaderAndIncrement locates a loop's header block (the init block's
// lone successor) and its increment block (the header's predecessor that
// reaches it via an EdgeBackEdge), so per-loop state created here is still
// reachable when the terminator for those *different* blocks runs later
// (spec.md §3, "For-Loop Context").
func (e *Emitter) loopHeaderAndIncrement(blk *symtab.Block) (headerIdx, incIdx int, ok bool) {
	headerIdx, ok = blk.Successor(symtab.EdgeJump)
	if !ok {
		headerIdx, ok = blk.Successor(symtab.EdgeFallthrough)
	}
	if !ok {
		return 0, 0, false
	}
	header := e.CFG.Block(headerIdx)
	incIdx = -1
	for _, p := range header.Preds {
		pb := e.CFG.Block(p)
		for _, s := range pb.Succs {
			if s.Kind == symtab.EdgeBackEdge && s.To == headerIdx {
				incIdx = p
				break
			}
		}
		if incIdx != -1 {
			break
		}
	}
	return headerIdx, incIdx, incIdx != -1
}

// emitForInit lowers a FOR statement's setup: the start value is stored into
// the loop variable's own slot, the limit and step are evaluated once into
// fresh stack temporaries, and the resulting ForContext is registered on
// this block, the loop header, and the increment block so the terminator
// emitted for each of those can find it (spec.md §4.6 "FOR").
func (e *Emitter) emitForInit(blk *symtab.Block, st *ast.ForStmt) {
	start, startT := e.EmitExpr(st.Start)
	e.storeVarByName(st.Var, start, startT)

	limitAddr, stepAddr, hoisted := "", "", false
	if slots, ok := e.forAllocAddrs[blk.Index]; ok {
		limitAddr, stepAddr, hoisted = slots[0], slots[1], true
	}

	limit, limitT := e.EmitExpr(st.Limit)
	if !hoisted {
		limitAddr = e.B.Alloc(8, 8)
	}
	e.B.Store("d", e.promoteTo(limit, limitT, "d"), limitAddr)

	if !hoisted {
		stepAddr = e.B.Alloc(8, 8)
	}
	if st.Step != nil {
		step, stepT := e.EmitExpr(st.Step)
		e.B.Store("d", e.promoteTo(step, stepT, "d"), stepAddr)
	} else {
		e.B.Store("d", "d_1", stepAddr)
	}

	dir := symtab.StepUnknown
	if e.Prog != nil && e.Prog.StepDirections != nil {
		dir = e.Prog.StepDirections[strings.ToUpper(st.Var)]
	}

	fc := &ForContext{
		Var:       st.Var,
		Step:      st.Step,
		LimitAddr: limitAddr,
		StepAddr:  stepAddr,
		Direction: dir,
	}
	e.forCtx[blk.Index] = fc

	headerIdx, incIdx, ok := e.loopHeaderAndIncrement(blk)
	if !ok {
		e.warnCFG(blk.Index, "FOR %s: loop header not found", st.Var)
		return
	}
	e.forCtx[headerIdx] = fc
	e.forCtx[incIdx] = fc
}

// emitForEachInit lowers FOR EACH's setup for all three collection kinds,
// propagating the resulting context to the header/increment blocks the same
// way emitForInit does.
func (e *Emitter) emitForEachInit(blk *symtab.Block, st *ast.ForEachStmt) {
	headerIdx, incIdx, ok := e.loopHeaderAndIncrement(blk)
	if !ok {
		e.warnCFG(blk.Index, "FOR EACH %s: loop header not found", st.IterVar)
		return
	}

	switch st.Kind {
	case ast.ForEachArray:
		e.emitForEachArrayInit(blk, st, headerIdx, incIdx)
	case ast.ForEachList:
		e.emitForEachListInit(blk, st, headerIdx, incIdx)
	case ast.ForEachHashmap:
		e.emitForEachHashmapInit(blk, st, headerIdx, incIdx)
	default:
		e.warn(blk.Index, "unsupported FOR EACH kind %v", st.Kind)
	}
}

func (e *Emitter) emitForEachArrayInit(blk *symtab.Block, st *ast.ForEachStmt, headerIdx, incIdx int) {
	name := collName(st.Coll)
	arr, found := e.Table.Arrays[symtab.StripSuffix(strings.ToUpper(name))]
	if !found {
		e.warn(blk.Index, "FOR EACH: unresolved array %s", name)
		return
	}
	descAddr := e.arrayDescAddr(name)

	indexAddr := e.B.Alloc(4, 4)
	e.B.Store("w", "0", indexAddr)

	fc := &ForEachArrayContext{
		IterVar:   st.IterVar,
		IndexVar:  st.IndexVar,
		IndexAddr: indexAddr,
		DescAddr:  descAddr,
		ElemLoad:  e.TM.LoadMnemonic(arr.ElemType.Base),
		ElemBase:  arr.ElemType.Base,
	}
	e.forEachArrayCtx[blk.Index] = fc
	e.forEachArrayCtx[headerIdx] = fc
	e.forEachArrayCtx[incIdx] = fc
}

func (e *Emitter) emitForEachListInit(blk *symtab.Block, st *ast.ForEachStmt, headerIdx, incIdx int) {
	listVal, _ := e.EmitExpr(st.Coll)
	cursorAddr := e.B.Alloc(8, 8)
	e.B.Store("l", e.RL.Call(e.B, "list_iter_begin", []CallArg{{"l", listVal}}), cursorAddr)
	indexAddr := e.B.Alloc(4, 4)
	e.B.Store("w", "0", indexAddr)

	elemBase := e.lookupVarBase(st.IterVar, symtab.SuffixOf(st.IterVar))
	fc := &ForEachListContext{
		IterVar:    st.IterVar,
		IndexVar:   st.IndexVar,
		CursorAddr: cursorAddr,
		IndexAddr:  indexAddr,
		ElemBase:   elemBase,
	}
	e.forEachListCtx[blk.Index] = fc
	e.forEachListCtx[headerIdx] = fc
	e.forEachListCtx[incIdx] = fc
}

func (e *Emitter) emitForEachHashmapInit(blk *symtab.Block, st *ast.ForEachStmt, headerIdx, incIdx int) {
	mapVal, _ := e.EmitExpr(st.Coll)
	keysList := e.RL.Call(e.B, "hashmap_keys", []CallArg{{"l", mapVal}})
	keysAddr := e.B.Alloc(8, 8)
	e.B.Store("l", keysList, keysAddr)
	sizeAddr := e.B.Alloc(4, 4)
	e.B.Store("w", e.RL.Call(e.B, "list_length", []CallArg{{"l", keysList}}), sizeAddr)
	indexAddr := e.B.Alloc(4, 4)
	e.B.Store("w", "0", indexAddr)

	mapAddr := e.B.Alloc(8, 8)
	e.B.Store("l", mapVal, mapAddr)

	fc := &ForEachHashmapContext{
		KeyVar:    st.IndexVar,
		ValueVar:  st.ValueVar,
		IndexAddr: indexAddr,
		SizeAddr:  sizeAddr,
		KeysAddr:  keysAddr,
		MapAddr:   mapAddr,
	}
	e.forEachHashmapCtx[blk.Index] = fc
	e.forEachHashmapCtx[headerIdx] = fc
	e.forEachHashmapCtx[incIdx] = fc
}

// hoistForAllocs pre-allocates every FOR statement's limit/step stack slots
// in the function's entry block, ahead of the RPO walk, so the alloc
// instructions live there regardless of how deeply the loop is nested in
// the function body (spec.md §8, "entry block contains the matching alloc
// instructions for the loop's limit and step slots"). emitForInit then
// stores into these pre-allocated slots instead of allocating its own.
func (e *Emitter) hoistForAllocs(cfg *symtab.CFG) {
	for _, blk := range cfg.Blocks {
		for _, s := range blk.Stmts {
			if _, ok := s.(*ast.ForStmt); ok {
				limitAddr := e.B.Alloc(8, 8)
				stepAddr := e.B.Alloc(8, 8)
				e.forAllocAddrs[blk.Index] = [2]string{limitAddr, stepAddr}
			}
		}
	}
}

// hoistLocals pre-allocates every DIM/LOCAL declaration's stack slot in the
// function's entry block, ahead of the RPO walk, mirroring hoistForAllocs
// (spec.md §8 entry-block alloc invariant). emitLocalStmt's own body-position
// code then only runs the declaration's initializer or array-create side
// effect into the slot this reserved.
func (e *Emitter) hoistLocals(cfg *symtab.CFG) {
	for _, blk := range cfg.Blocks {
		for _, s := range blk.Stmts {
			if ls, ok := s.(*ast.LocalStmt); ok {
				e.hoistOneLocal(ls.Spec)
			}
		}
	}
}

func (e *Emitter) hoistOneLocal(spec ast.DimSpec) {
	if e.Func == nil {
		return
	}
	if _, exists := e.Func.Lookup(spec.Name); exists {
		return
	}

	if len(spec.Dims) > 0 {
		// The slot holds a pointer to the array descriptor array_create_1d/2d
		// returns; emitOneDimSpec stores into it from the statement's own
		// block position (spec.md §4.6 "DIM, LOCAL").
		addr := e.B.Alloc(8, 8)
		e.Func.AddLocal(spec.Name, SlotInfo{Addr: addr, ILType: "l", Base: symtab.ArrayDescriptor})
		return
	}

	base := e.lookupVarBase(spec.Name, spec.Suffix)
	asType := ""
	if spec.AsType != "" {
		upperType := strings.ToUpper(spec.AsType)
		classes := map[string]bool{}
		if _, ok := e.Table.Classes[upperType]; ok {
			classes[upperType] = true
		}
		base = symtab.AsTypeNameToBase(upperType, nil, classes)
		if base == symtab.UserDefined || base == symtab.ClassInstance {
			asType = upperType
		}
	}

	// DESIGN.md Open Question Decision #1: a UserDefined (value-type) local
	// is stored inline in its own slot; a ClassInstance local's slot holds a
	// pointer, same as a parameter of either shape.
	inline := base == symtab.UserDefined

	var addr string
	if base == symtab.UserDefined && inline {
		size := e.TM.Size(base, asType)
		addr = e.B.Alloc(size, Align(size))
	} else if base == symtab.UserDefined || base == symtab.ClassInstance || base == symtab.Object {
		addr = e.B.Alloc(8, 8)
	} else {
		size := e.TM.Size(base, asType)
		addr = e.B.Alloc(size, Align(size))
	}

	e.Func.AddLocal(spec.Name, SlotInfo{
		Addr:   addr,
		ILType: e.TM.ParamType(base),
		Base:   base,
		AsType: asType,
		Inline: inline,
	})
}

func collName(e ast.Expr) string {
	if vr, ok := e.(*ast.VarRef); ok {
		return vr.Name
	}
	return ""
}
