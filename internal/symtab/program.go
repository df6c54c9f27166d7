package symtab

// StepDirection is the AST-optimizer-supplied compile-time FOR-loop step
// direction hint (spec.md §3, "Optional").
type StepDirection int

const (
	StepUnknown StepDirection = iota
	StepPositive
	StepNegative
	StepZero
)

// Program is the top-level input to codegen: the program's entry CFG, one
// CFG per function/sub/worker, the symbol table, and the optional
// AST-optimizer artifacts (spec.md §6).
type Program struct {
	Table *Table

	EntryCFG *CFG
	FuncCFGs map[string]*CFG // key: uppercase function/sub/worker name

	// FuncOrder is the deterministic emission order for FuncCFGs (spec.md
	// §4.7 step 10 walks "every function, sub, and worker"); callers
	// should populate it in declaration order.
	FuncOrder []string

	// StepDirections maps an uppercase FOR-loop variable name to the
	// compile-time step direction the AST optimizer inferred, when known.
	StepDirections map[string]StepDirection

	MainName string // uppercase name of the program-entry unit, default "MAIN"
}

// NewProgram returns an empty Program wired to the given table.
func NewProgram(t *Table) *Program {
	return &Program{
		Table:          t,
		FuncCFGs:       make(map[string]*CFG),
		StepDirections: make(map[string]StepDirection),
		MainName:       "MAIN",
	}
}
