// Package codegen implements the CFG-driven QBE IL codegen core: the IL
// Builder, Type Manager, Symbol Mapper, Runtime Library, Expression
// Emitter, Block Emitter, and CFG Code Generator described in SPEC_FULL.md.
package codegen

import (
	"fmt"
	"strconv"
	"strings"
)

// CallArg is one (type, value) pair passed to a call instruction.
type CallArg struct {
	Type string
	Val  string
}

// Builder appends IL text to a growable buffer, allocates SSA temporaries
// and labels, pools string constants, and tracks per-block termination
// (spec.md §4.1). Grounded on the teacher's backend_ir.go `generateIRText`
// (strings.Builder accumulation, section-banner comments) and ir.go's
// monotonic-counter fields on IRFunc.
type Builder struct {
	buf strings.Builder

	tempCounter  uint32
	labelCounter uint32
	strCounter   uint32

	terminated   bool
	currentLabel string

	stringPool    map[string]string // literal value -> label
	stringOrder   []string          // insertion order, for deterministic flush
	stringEmitted map[string]bool   // label -> already flushed
}

// NewBuilder returns a ready-to-use Builder.
func NewBuilder() *Builder {
	b := &Builder{}
	b.reset()
	return b
}

func (b *Builder) reset() {
	b.buf.Reset()
	b.tempCounter = 0
	b.labelCounter = 0
	b.strCounter = 0
	b.terminated = false
	b.currentLabel = ""
	b.stringPool = make(map[string]string)
	b.stringOrder = nil
	b.stringEmitted = make(map[string]bool)
}

// Reset clears all builder state, matching spec.md's "Invariant" that a
// fresh Builder produces byte-identical output for byte-identical input
// (spec.md §8, round-trip property).
func (b *Builder) Reset() { b.reset() }

// String returns the accumulated IL text.
func (b *Builder) String() string { return b.buf.String() }

// Terminated reports whether the current block has already emitted a
// terminator (jmp/jnz/ret).
func (b *Builder) Terminated() bool { return b.terminated }

// CurrentLabel returns the most recently emitted block label, used to form
// phi predecessor tags.
func (b *Builder) CurrentLabel() string { return b.currentLabel }

// NewTemp allocates a fresh SSA temporary name.
func (b *Builder) NewTemp() string {
	t := fmt.Sprintf("%%t.%d", b.tempCounter)
	b.tempCounter++
	return t
}

// NextLabelID allocates a fresh numeric label id (without the "id_"
// prefix); callers that need a named label use NewLabelName.
func (b *Builder) NextLabelID() uint32 {
	id := b.labelCounter
	b.labelCounter++
	return id
}

// NewLabelName allocates and formats a fresh block label name.
func (b *Builder) NewLabelName() string {
	return fmt.Sprintf("id_%d", b.NextLabelID())
}

// Raw appends text verbatim (used for header/section-banner comments),
// bypassing the termination gate.
func (b *Builder) Raw(s string) {
	b.buf.WriteString(s)
}

// Comment appends a single-line IL comment.
func (b *Builder) Comment(format string, args ...any) {
	b.buf.WriteString("# ")
	fmt.Fprintf(&b.buf, format, args...)
	b.buf.WriteByte('\n')
}

// emit appends one instruction line, silently dropping it if the current
// block has already been terminated (spec.md §4.1 contract).
func (b *Builder) emit(format string, args ...any) {
	if b.terminated {
		return
	}
	fmt.Fprintf(&b.buf, format, args...)
	b.buf.WriteByte('\n')
}

func (b *Builder) assign(iltype, instr string, args ...string) string {
	t := b.NewTemp()
	b.emit("%s =%s %s %s", t, iltype, instr, strings.Join(args, ", "))
	return t
}

// Label emits a fresh block label. This is the only operation that reopens
// a terminated block.
func (b *Builder) Label(name string) {
	b.buf.WriteString("@")
	b.buf.WriteString(name)
	b.buf.WriteByte('\n')
	b.terminated = false
	b.currentLabel = name
}

// --- Function framing ---

// FuncParam is one IL-level function parameter.
type FuncParam struct {
	Type string
	Name string
}

// FuncHeader opens a function definition. The caller must Label the entry
// block immediately after (QBE requires the first statement in the body to
// be a label).
func (b *Builder) FuncHeader(exported bool, retType, name string, params []FuncParam) {
	var parts []string
	for _, p := range params {
		parts = append(parts, fmt.Sprintf("%s %s", p.Type, p.Name))
	}
	kw := "function"
	if exported {
		kw = "export function"
	}
	ret := retType
	if ret != "" {
		ret = ret + " "
	}
	b.buf.WriteString(fmt.Sprintf("%s %s$%s(%s) {\n", kw, ret, name, strings.Join(parts, ", ")))
	b.terminated = false
}

// FuncClose closes a function definition.
func (b *Builder) FuncClose() {
	b.buf.WriteString("}\n\n")
}

// --- Arithmetic / comparisons ---

// Binary emits a binary arithmetic instruction (add/sub/mul/div/rem/udiv/
// urem/and/or/xor/shl/shr/sar) and returns the result temp.
func (b *Builder) Binary(iltype, op, a, c string) string {
	return b.assign(iltype, op, a, c)
}

// Neg emits unary negation via `sub 0, x` (spec.md §4.1).
func (b *Builder) Neg(iltype, x string) string {
	zero := "0"
	if iltype == "d" || iltype == "s" {
		zero = "0"
	}
	return b.assign(iltype, "sub", zero, x)
}

// Compare emits a comparison. op is one of "eq","ne","lt","le","gt","ge".
// Ordered integer operators (lt/le/gt/ge) get the signed "cs" prefix;
// equality/inequality and all float comparisons do not (spec.md §4.1).
func (b *Builder) Compare(op, operandType string, isFloat bool) func(a, c string) string {
	var mnemonic string
	switch op {
	case "eq":
		mnemonic = "ceq"
	case "ne":
		mnemonic = "cne"
	case "lt":
		mnemonic = condPrefix(isFloat) + "lt"
	case "le":
		mnemonic = condPrefix(isFloat) + "le"
	case "gt":
		mnemonic = condPrefix(isFloat) + "gt"
	case "ge":
		mnemonic = condPrefix(isFloat) + "ge"
	default:
		mnemonic = "ceq"
	}
	full := mnemonic + operandType
	return func(a, c string) string {
		return b.assign("w", full, a, c)
	}
}

func condPrefix(isFloat bool) string {
	if isFloat {
		return "c"
	}
	return "cs"
}

// --- Memory ---

// Alloc stack-allocates size bytes, choosing alignment from size unless
// align is explicitly given (>0).
func (b *Builder) Alloc(size, align int) string {
	if align <= 0 {
		align = chooseAlign(size)
	}
	mnemonic := "alloc4"
	switch {
	case align >= 16:
		mnemonic = "alloc16"
	case align >= 8:
		mnemonic = "alloc8"
	}
	t := b.NewTemp()
	b.emit("%s =l %s %d", t, mnemonic, size)
	return t
}

func chooseAlign(size int) int {
	if size <= 4 {
		return 4
	}
	return 8
}

// Load emits a typed load. mnemonic is the full QBE load mnemonic (e.g.
// "loadsb", "loaduh", "loadw", "loadl", "loads", "loadd").
func (b *Builder) Load(resultType, mnemonic, addr string) string {
	return b.assign(resultType, mnemonic, addr)
}

// Store emits a typed store. suffix is the QBE store-type letter
// (b/h/w/l/s/d).
func (b *Builder) Store(suffix, val, addr string) {
	b.emit("store%s %s, %s", suffix, val, addr)
}

// Blit emits a memory copy of n bytes from src to dst.
func (b *Builder) Blit(src, dst string, n int) {
	b.emit("blit %s, %s, %d", src, dst, n)
}

// --- Control flow ---

// Jump emits an unconditional jump, terminating the block.
func (b *Builder) Jump(label string) {
	if b.terminated {
		return
	}
	b.emit("jmp @%s", label)
	b.terminated = true
}

// Branch emits a conditional branch (`jnz`), terminating the block.
func (b *Builder) Branch(cond, trueLabel, falseLabel string) {
	if b.terminated {
		return
	}
	b.emit("jnz %s, @%s, @%s", cond, trueLabel, falseLabel)
	b.terminated = true
}

// Ret emits a return, terminating the block. val == "" emits a bare `ret`.
func (b *Builder) Ret(val string) {
	if b.terminated {
		return
	}
	if val == "" {
		b.emit("ret")
	} else {
		b.emit("ret %s", val)
	}
	b.terminated = true
}

// --- Calls ---

func formatArgs(args []CallArg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprintf("%s %s", a.Type, a.Val)
	}
	return strings.Join(parts, ", ")
}

// CallDirect emits a direct call to a named function. resultType == ""
// means void (no result temp is returned).
func (b *Builder) CallDirect(resultType, funcName string, args []CallArg) string {
	if b.terminated {
		if resultType == "" {
			return ""
		}
		return b.NewTemp()
	}
	if resultType == "" {
		b.emit("call $%s(%s)", funcName, formatArgs(args))
		return ""
	}
	t := b.NewTemp()
	b.emit("%s =%s call $%s(%s)", t, resultType, funcName, formatArgs(args))
	return t
}

// CallIndirect emits a call through a computed function pointer.
func (b *Builder) CallIndirect(resultType, funcPtr string, args []CallArg) string {
	if b.terminated {
		if resultType == "" {
			return ""
		}
		return b.NewTemp()
	}
	if resultType == "" {
		b.emit("call %s(%s)", funcPtr, formatArgs(args))
		return ""
	}
	t := b.NewTemp()
	b.emit("%s =%s call %s(%s)", t, resultType, funcPtr, formatArgs(args))
	return t
}

// --- Conversions ---

// Extend emits a sign- or zero-extension (extsw, extuw, extsh, extuh,
// extsb, extub) from src, producing an l-typed result.
func (b *Builder) Extend(mnemonic, src string) string {
	return b.assign("l", mnemonic, src)
}

// Convert emits a numeric conversion (swtof, sltof, dtosi, stosi, exts,
// truncd, ...). resultType is the destination IL type.
func (b *Builder) Convert(resultType, mnemonic, src string) string {
	return b.assign(resultType, mnemonic, src)
}

// Truncate emits a truncation to w (e.g. of a loaded i64 length).
func (b *Builder) Truncate(src string) string {
	return b.assign("w", "copy", src)
}

// Phi emits a two-predecessor phi node.
func (b *Builder) Phi(iltype, labelA, valA, labelB, valB string) string {
	return b.assign(iltype, "phi", fmt.Sprintf("@%s %s,", labelA, valA), fmt.Sprintf("@%s %s", labelB, valB))
}

// --- Globals ---

// GlobalZero emits a zero-initialized data declaration of size bytes.
func (b *Builder) GlobalZero(name string, size int) {
	b.buf.WriteString(fmt.Sprintf("data $%s = { z %d }\n", name, size))
}

// GlobalWord emits a data declaration holding one scalar value.
func (b *Builder) GlobalWord(name, iltype string, value string) {
	b.buf.WriteString(fmt.Sprintf("data $%s = { %s %s }\n", name, iltype, value))
}

// GlobalString emits a `data $label = { b "value", b 0 }` declaration using
// the same bounded escape writer as the string pool — used for class-name
// constants and other one-off string data outside the pool proper (spec.md
// §4.7 "class system").
func (b *Builder) GlobalString(label, value string) {
	writeStringData(&b.buf, label, value)
}

// GlobalBytes emits a data declaration with an explicit byte-field list,
// used for vtables and string-offset tables.
func (b *Builder) GlobalBytes(name string, fields []string) {
	b.buf.WriteString(fmt.Sprintf("data $%s = { %s }\n", name, strings.Join(fields, ", ")))
}

// --- String pool ---

// RegisterString interns value, returning its (possibly newly-allocated)
// pool label. Idempotent: identical values map to a single label.
func (b *Builder) RegisterString(value string) string {
	if lbl, ok := b.stringPool[value]; ok {
		return lbl
	}
	lbl := fmt.Sprintf("str_%d", b.strCounter)
	b.strCounter++
	b.stringPool[value] = lbl
	b.stringOrder = append(b.stringOrder, value)
	return lbl
}

// HasString reports whether value has already been interned.
func (b *Builder) HasString(value string) bool {
	_, ok := b.stringPool[value]
	return ok
}

// GetStringLabel returns the pool label for an already-interned value.
func (b *Builder) GetStringLabel(value string) (string, bool) {
	lbl, ok := b.stringPool[value]
	return lbl, ok
}

// EmitStringPool flushes every interned string not yet emitted.
func (b *Builder) EmitStringPool() {
	b.flushStringPool()
}

// EmitLateStringPool flushes strings interned after the first flush (e.g.
// during expression-level literal folding encountered mid-codegen).
func (b *Builder) EmitLateStringPool() {
	b.flushStringPool()
}

func (b *Builder) flushStringPool() {
	for _, value := range b.stringOrder {
		label := b.stringPool[value]
		if b.stringEmitted[label] {
			continue
		}
		b.stringEmitted[label] = true
		writeStringData(&b.buf, label, value)
	}
}

// writeStringData writes one `data $label = { b "...", b 0 }` declaration
// with the bounded escape writer spec.md §4.1 describes.
func writeStringData(w *strings.Builder, label, value string) {
	w.WriteString("data $")
	w.WriteString(label)
	w.WriteString(" = { b \"")
	escapeStringLiteral(w, value)
	w.WriteString("\", b 0 }\n")
}

func escapeStringLiteral(w *strings.Builder, value string) {
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch c {
		case '\n':
			w.WriteString("\\n")
		case '\r':
			w.WriteString("\\r")
		case '\t':
			w.WriteString("\\t")
		case '\\':
			w.WriteString("\\\\")
		case '"':
			w.WriteString("\\\"")
		case 0:
			w.WriteString("\\0")
		default:
			if c >= 0x20 && c < 0x7f {
				w.WriteByte(c)
			} else {
				w.WriteString("\\x")
				hex := strconv.FormatUint(uint64(c), 16)
				if len(hex) < 2 {
					w.WriteByte('0')
				}
				w.WriteString(hex)
			}
		}
	}
}
