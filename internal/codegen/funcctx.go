package codegen

import "github.com/nimblebasic/nbc/internal/symtab"

// SlotInfo records one parameter or local's stack slot (spec.md §3,
// Function Context).
type SlotInfo struct {
	Addr     string
	ILType   string
	Base     symtab.BaseType
	Suffix   string // QBE store-type suffix
	AsType   string // UDT/class type name, for locals declared AS <Type>
	Inline   bool   // true: slot holds the value inline; false: slot holds a pointer (DESIGN.md Open Question #1)
}

// FunctionContext records per-function emission state: parameter/local
// stack slots and the return-value slot (spec.md §3).
type FunctionContext struct {
	FuncName      string
	UpperName     string
	IsFunction    bool
	ReturnType    string // IL letter, "" for SUB/worker
	ReturnBase    symtab.BaseType
	ReturnAddr    string // stack slot accumulating the return value, if any

	ParamAddrs map[string]SlotInfo
	LocalAddrs map[string]SlotInfo

	// Class-method context, set only while emitting a method body (spec.md
	// §4.7 "Class bodies").
	ClassCtx      *symtab.ClassSymbol
	MethodRetSlot string
	MethodRetType string
	MethodName    string

	// NeedsScope mirrors the Function Scope Analyzer's verdict for this
	// function (DIM present, or a loop combined with an allocation):
	// when true, the prologue wraps the body in samm_enter_scope and every
	// exit runs samm_exit_scope first (spec.md §5 "Scope-managed memory").
	NeedsScope bool

	// IsMain marks the program entry point, whose exit additionally runs
	// runtime_cleanup and returns the process status code instead of a
	// plain ret (spec.md §4.7 "Program entry").
	IsMain bool
}

// NewFunctionContext creates emission state for the named function.
func NewFunctionContext(name string, isFunction bool, upperName string) *FunctionContext {
	return &FunctionContext{
		FuncName:   name,
		UpperName:  upperName,
		IsFunction: isFunction,
		ParamAddrs: make(map[string]SlotInfo),
		LocalAddrs: make(map[string]SlotInfo),
	}
}

// AddParam registers a parameter's stack slot.
func (fc *FunctionContext) AddParam(name string, slot SlotInfo) {
	fc.ParamAddrs[name] = slot
}

// AddLocal registers a local's stack slot.
func (fc *FunctionContext) AddLocal(name string, slot SlotInfo) {
	fc.LocalAddrs[name] = slot
}

// Lookup resolves name to a slot, checking locals before params (locals
// shadow parameters of the same name, as in the source language).
func (fc *FunctionContext) Lookup(name string) (SlotInfo, bool) {
	if s, ok := fc.LocalAddrs[name]; ok {
		return s, true
	}
	if s, ok := fc.ParamAddrs[name]; ok {
		return s, true
	}
	return SlotInfo{}, false
}
