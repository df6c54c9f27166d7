package codegen

import "sort"

// RuntimeFunc describes one C runtime function's signature: argument IL
// types and return IL type (empty string for void). Declarations are
// emitted as informational comments — QBE resolves externs at link time;
// the true contract is the signature the call helpers below assume
// (spec.md §4.4).
type RuntimeFunc struct {
	Name     string
	Args     []string
	Ret      string
	Category string
}

// categoryOrder fixes the banner order the declarations are grouped under,
// grounded on the teacher's backend_ir.go section-banner style
// ("; === Globals ===", "; === Types ===", ...).
var categoryOrder = []string{
	"io",
	"string",
	"math",
	"memory",
	"array",
	"scope",
	"error",
	"object",
	"data",
	"timer",
	"hashmap",
	"list",
	"worker",
	"messaging",
	"terminal",
}

var runtimeFuncTable = buildRuntimeFuncTable()

func buildRuntimeFuncTable() map[string]RuntimeFunc {
	entries := []RuntimeFunc{
		// I/O
		{"basic_print_int", []string{"w"}, "", "io"},
		{"basic_print_double", []string{"d"}, "", "io"},
		{"basic_print_string_desc", []string{"l"}, "", "io"},
		{"basic_print_newline", nil, "", "io"},
		{"basic_print_tab", nil, "", "io"},
		{"basic_print_lock", nil, "", "io"},
		{"basic_print_unlock", nil, "", "io"},
		{"basic_read_line", nil, "l", "io"},
		{"file_print_int", []string{"l", "w"}, "", "io"},
		{"file_print_double", []string{"l", "d"}, "", "io"},
		{"file_print_string_desc", []string{"l", "l"}, "", "io"},
		{"file_print_newline", []string{"l"}, "", "io"},

		// Strings
		{"string_from_cstr", []string{"l"}, "l", "string"},
		{"string_concat", []string{"l", "l"}, "l", "string"},
		{"string_compare", []string{"l", "l"}, "w", "string"},
		{"string_length", []string{"l"}, "l", "string"},
		{"string_retain", []string{"l"}, "", "string"},
		{"string_release", []string{"l"}, "", "string"},
		{"string_slice", []string{"l", "w", "w"}, "l", "string"},
		{"string_upper", []string{"l"}, "l", "string"},
		{"string_lower", []string{"l"}, "l", "string"},
		{"string_search", []string{"l", "l"}, "w", "string"},
		{"string_trim", []string{"l"}, "l", "string"},
		{"string_repeat", []string{"l", "w"}, "l", "string"},
		{"string_from_int", []string{"w"}, "l", "string"},
		{"string_from_long", []string{"l"}, "l", "string"},
		{"string_from_double", []string{"d"}, "l", "string"},
		{"string_to_int", []string{"l"}, "w", "string"},
		{"string_to_double", []string{"l"}, "d", "string"},

		// Math
		{"pow", []string{"d", "d"}, "d", "math"},
		{"sqrt", []string{"d"}, "d", "math"},
		{"sin", []string{"d"}, "d", "math"},
		{"cos", []string{"d"}, "d", "math"},
		{"tan", []string{"d"}, "d", "math"},
		{"atan", []string{"d"}, "d", "math"},
		{"atan2", []string{"d", "d"}, "d", "math"},
		{"log", []string{"d"}, "d", "math"},
		{"exp", []string{"d"}, "d", "math"},
		{"floor", []string{"d"}, "d", "math"},
		{"ceil", []string{"d"}, "d", "math"},

		// Memory
		{"malloc", []string{"l"}, "l", "memory"},
		{"free", []string{"l"}, "", "memory"},

		// Arrays
		{"array_create_1d", []string{"w", "w"}, "l", "array"},
		{"array_create_2d", []string{"w", "w", "w"}, "l", "array"},
		{"array_bounds_check", []string{"l", "w"}, "", "array"},
		{"array_bounds_check_2d", []string{"l", "w", "w"}, "", "array"},
		{"array_element_addr", []string{"l", "w"}, "l", "array"},
		{"array_element_addr_2d", []string{"l", "w", "w"}, "l", "array"},
		{"array_erase", []string{"l"}, "", "array"},
		{"array_copy", []string{"l", "l"}, "", "array"},

		// Scope-managed memory
		{"samm_init", nil, "", "scope"},
		{"samm_shutdown", nil, "", "scope"},
		{"samm_enter_scope", nil, "", "scope"},
		{"samm_exit_scope", nil, "", "scope"},
		{"samm_retain", []string{"l", "w"}, "", "scope"},
		{"samm_register_cleanup", []string{"l"}, "", "scope"},

		// Error handling
		{"runtime_set_line", []string{"w"}, "", "error"},
		{"runtime_set_error_code", []string{"w"}, "", "error"},
		{"runtime_init", nil, "", "error"},
		{"runtime_cleanup", nil, "", "error"},
		{"error_trap_set", []string{"w"}, "", "error"},
		{"error_trap_clear", nil, "", "error"},

		// Object system
		{"object_alloc", []string{"w", "l", "w"}, "l", "object"},
		{"object_delete", []string{"l"}, "", "object"},
		{"class_is_instance", []string{"l", "w"}, "w", "object"},

		// Data statements
		{"data_init", nil, "", "data"},
		{"data_read_int", nil, "w", "data"},
		{"data_read_double", nil, "d", "data"},
		{"data_read_string", nil, "l", "data"},
		{"data_restore", []string{"w"}, "", "data"},

		// Timer
		{"timer_now", nil, "d", "timer"},
		{"timer_ms", nil, "l", "timer"},
		{"timer_sleep", []string{"w"}, "", "timer"},
		{"timer_after_send", []string{"l", "l", "l"}, "w", "timer"},
		{"timer_every_send", []string{"l", "l", "l"}, "w", "timer"},
		{"timer_stop", []string{"w"}, "", "timer"},
		{"timer_stop_all", nil, "", "timer"},

		// Hashmap
		{"hashmap_new", []string{"w"}, "l", "hashmap"},
		{"hashmap_free", []string{"l"}, "", "hashmap"},
		{"hashmap_insert", []string{"l", "l", "l"}, "", "hashmap"},
		{"hashmap_lookup", []string{"l", "l"}, "l", "hashmap"},
		{"hashmap_has_key", []string{"l", "l"}, "w", "hashmap"},
		{"hashmap_remove", []string{"l", "l"}, "", "hashmap"},
		{"hashmap_size", []string{"l"}, "w", "hashmap"},
		{"hashmap_clear", []string{"l"}, "", "hashmap"},
		{"hashmap_keys", []string{"l"}, "l", "hashmap"},

		// List
		{"list_create", nil, "l", "list"},
		{"list_create_typed", []string{"w"}, "l", "list"},
		{"list_free", []string{"l"}, "", "list"},
		{"list_append_int", []string{"l", "w"}, "", "list"},
		{"list_append_double", []string{"l", "d"}, "", "list"},
		{"list_append_ptr", []string{"l", "l"}, "", "list"},
		{"list_prepend_int", []string{"l", "w"}, "", "list"},
		{"list_insert_int", []string{"l", "w", "w"}, "", "list"},
		{"list_length", []string{"l"}, "w", "list"},
		{"list_empty", []string{"l"}, "w", "list"},
		{"list_get_int", []string{"l", "w"}, "w", "list"},
		{"list_get_double", []string{"l", "w"}, "d", "list"},
		{"list_get_ptr", []string{"l", "w"}, "l", "list"},
		{"list_set_int", []string{"l", "w", "w"}, "", "list"},
		{"list_set_double", []string{"l", "w", "d"}, "", "list"},
		{"list_set_ptr", []string{"l", "w", "l"}, "", "list"},
		{"list_head_int", []string{"l"}, "w", "list"},
		{"list_shift_int", []string{"l"}, "w", "list"},
		{"list_pop_int", []string{"l"}, "w", "list"},
		{"list_remove", []string{"l", "w"}, "", "list"},
		{"list_clear", []string{"l"}, "", "list"},
		{"list_contains_int", []string{"l", "w"}, "w", "list"},
		{"list_index_of_int", []string{"l", "w"}, "w", "list"},
		{"list_join", []string{"l", "l"}, "l", "list"},
		{"list_copy", []string{"l"}, "l", "list"},
		{"list_reverse", []string{"l"}, "", "list"},
		{"list_iter_begin", []string{"l"}, "l", "list"},
		{"list_iter_next", []string{"l"}, "l", "list"},
		{"list_iter_type", []string{"l"}, "w", "list"},
		{"list_iter_value_int", []string{"l"}, "w", "list"},
		{"list_iter_value_float", []string{"l"}, "d", "list"},
		{"list_iter_value_ptr", []string{"l"}, "l", "list"},

		// Worker/concurrency
		{"worker_args_alloc", []string{"w"}, "l", "worker"},
		{"worker_args_set_int", []string{"l", "w", "w"}, "", "worker"},
		{"worker_args_set_double", []string{"l", "w", "d"}, "", "worker"},
		{"worker_args_set_ptr", []string{"l", "w", "l"}, "", "worker"},
		{"worker_args_get_int", []string{"l", "w"}, "w", "worker"},
		{"worker_args_get_double", []string{"l", "w"}, "d", "worker"},
		{"worker_args_get_ptr", []string{"l", "w"}, "l", "worker"},
		{"worker_spawn", []string{"l", "l"}, "l", "worker"},
		{"worker_spawn_messaging", []string{"l", "l"}, "l", "worker"},
		{"worker_await", []string{"l"}, "l", "worker"},
		{"worker_ready", []string{"l"}, "w", "worker"},
		{"marshall_array", []string{"l"}, "l", "worker"},
		{"marshall_udt", []string{"l", "w"}, "l", "worker"},
		{"marshall_udt_deep", []string{"l", "w", "l"}, "l", "worker"},
		{"unmarshall_udt", []string{"l", "w"}, "l", "worker"},
		{"unmarshall_udt_deep", []string{"l", "w", "l"}, "l", "worker"},

		// Messaging
		{"msg_queue_create", nil, "l", "messaging"},
		{"msg_queue_destroy", []string{"l"}, "", "messaging"},
		{"msg_queue_push", []string{"l", "l"}, "", "messaging"},
		{"msg_queue_pop", []string{"l"}, "l", "messaging"},
		{"msg_queue_close", []string{"l"}, "", "messaging"},
		{"msg_cancel", []string{"l"}, "", "messaging"},
		{"msg_queue_has_message", []string{"l"}, "w", "messaging"},
		{"msg_send_double", []string{"l", "d"}, "", "messaging"},
		{"msg_send_int", []string{"l", "w"}, "", "messaging"},
		{"msg_send_string", []string{"l", "l"}, "", "messaging"},
		{"msg_send_udt", []string{"l", "l", "w"}, "", "messaging"},
		{"msg_send_class", []string{"l", "l", "w"}, "", "messaging"},
		{"msg_send_marshalled", []string{"l", "l"}, "", "messaging"},
		{"msg_blob_tag", []string{"l"}, "w", "messaging"},
		{"msg_blob_type_id", []string{"l"}, "w", "messaging"},
		{"msg_blob_payload_ptr", []string{"l"}, "l", "messaging"},
		{"msg_blob_forward", []string{"l", "l"}, "", "messaging"},
		{"msg_blob_free", []string{"l"}, "", "messaging"},
		{"msg_blob_bounce", []string{"l", "l"}, "", "messaging"},

		// Terminal I/O
		{"term_init", nil, "", "terminal"},
		{"term_cleanup", nil, "", "terminal"},
		{"term_cursor_hide", nil, "", "terminal"},
		{"term_cursor_show", nil, "", "terminal"},
		{"term_color", []string{"w"}, "", "terminal"},
		{"term_style", []string{"w"}, "", "terminal"},
		{"term_alt_screen", nil, "", "terminal"},
		{"term_main_screen", nil, "", "terminal"},
		{"term_wrch", []string{"w"}, "", "terminal"},
		{"term_wrstr", []string{"l"}, "", "terminal"},
		{"term_cls", nil, "", "terminal"},
		{"term_gcls", nil, "", "terminal"},
		{"term_flush", nil, "", "terminal"},
		{"term_begin_draw", nil, "", "terminal"},
		{"term_end_draw", nil, "", "terminal"},
		{"term_width", nil, "w", "terminal"},
		{"term_height", nil, "w", "terminal"},
		{"term_locate", []string{"w", "w"}, "", "terminal"},
		{"kbd_raw_mode", []string{"w"}, "", "terminal"},
		{"kbd_echo_mode", []string{"w"}, "", "terminal"},
		{"kbd_flush", nil, "", "terminal"},
		{"kbd_hit", nil, "w", "terminal"},
		{"kbd_get", nil, "w", "terminal"},
		{"kbd_peek", nil, "w", "terminal"},
		{"kbd_code", nil, "w", "terminal"},
		{"kbd_special", nil, "w", "terminal"},
		{"kbd_mod", nil, "w", "terminal"},
		{"kbd_count", nil, "w", "terminal"},
		{"kbd_inkey", nil, "l", "terminal"},
		{"term_cursor_pos", []string{"l", "l"}, "", "terminal"},
		{"mouse_enable", nil, "", "terminal"},
		{"mouse_disable", nil, "", "terminal"},
		{"mouse_read", []string{"l", "l"}, "w", "terminal"},
	}
	m := make(map[string]RuntimeFunc, len(entries))
	for _, e := range entries {
		m[e.Name] = e
	}
	return m
}

// RuntimeLibrary declares the known C runtime functions and provides typed
// call helpers (spec.md §4.4). Grounded on the teacher's dce.go
// `intrinsicRuntimeDep` table shape, adapted into a declarative signature
// table rather than a dependency-name lookup since this module has one
// backend (QBE text), not several.
type RuntimeLibrary struct {
	Funcs map[string]RuntimeFunc
}

// NewRuntimeLibrary returns a RuntimeLibrary over the full known set.
func NewRuntimeLibrary() *RuntimeLibrary {
	return &RuntimeLibrary{Funcs: runtimeFuncTable}
}

// EmitDeclarations writes one `# runtime: NAME(args) -> ret` comment per
// known function, grouped under category banners, sorted for determinism
// within each category.
func (rl *RuntimeLibrary) EmitDeclarations(b *Builder) {
	byCategory := make(map[string][]string)
	for name, f := range rl.Funcs {
		byCategory[f.Category] = append(byCategory[f.Category], name)
	}
	for _, cat := range categoryOrder {
		names := byCategory[cat]
		if len(names) == 0 {
			continue
		}
		sort.Strings(names)
		b.Comment("--- %s runtime ---", cat)
		for _, name := range names {
			f := rl.Funcs[name]
			ret := f.Ret
			if ret == "" {
				ret = "void"
			}
			b.Comment("runtime: %s(%s) -> %s", name, joinTypes(f.Args), ret)
		}
	}
}

func joinTypes(args []string) string {
	s := ""
	for i, a := range args {
		if i > 0 {
			s += ", "
		}
		s += a
	}
	return s
}

// Call emits a direct call to a known runtime function, using its declared
// return type. A name outside the table above does not panic: it is
// emitted as a call with no result type (void).
func (rl *RuntimeLibrary) Call(b *Builder, name string, args []CallArg) string {
	f, ok := rl.Funcs[name]
	if !ok {
		return b.CallDirect("", name, args)
	}
	return b.CallDirect(f.Ret, name, args)
}

// --- Typed call helpers exercised directly by the Expression/Block Emitters ---

func (rl *RuntimeLibrary) StringConcat(b *Builder, a, c string) string {
	return rl.Call(b, "string_concat", []CallArg{{"l", a}, {"l", c}})
}

func (rl *RuntimeLibrary) StringCompare(b *Builder, a, c string) string {
	return rl.Call(b, "string_compare", []CallArg{{"l", a}, {"l", c}})
}

func (rl *RuntimeLibrary) StringFromInt(b *Builder, v string) string {
	return rl.Call(b, "string_from_int", []CallArg{{"w", v}})
}

func (rl *RuntimeLibrary) StringFromLong(b *Builder, v string) string {
	return rl.Call(b, "string_from_long", []CallArg{{"l", v}})
}

func (rl *RuntimeLibrary) StringFromDouble(b *Builder, v string) string {
	return rl.Call(b, "string_from_double", []CallArg{{"d", v}})
}

func (rl *RuntimeLibrary) PrintLock(b *Builder)   { rl.Call(b, "basic_print_lock", nil) }
func (rl *RuntimeLibrary) PrintUnlock(b *Builder) { rl.Call(b, "basic_print_unlock", nil) }
func (rl *RuntimeLibrary) PrintNewline(b *Builder) { rl.Call(b, "basic_print_newline", nil) }
func (rl *RuntimeLibrary) PrintTab(b *Builder)      { rl.Call(b, "basic_print_tab", nil) }

func (rl *RuntimeLibrary) PrintInt(b *Builder, v string) {
	rl.Call(b, "basic_print_int", []CallArg{{"w", v}})
}

func (rl *RuntimeLibrary) PrintDouble(b *Builder, v string) {
	rl.Call(b, "basic_print_double", []CallArg{{"d", v}})
}

func (rl *RuntimeLibrary) PrintStringDesc(b *Builder, v string) {
	rl.Call(b, "basic_print_string_desc", []CallArg{{"l", v}})
}

func (rl *RuntimeLibrary) ArrayBoundsCheck(b *Builder, desc, idx string) {
	rl.Call(b, "array_bounds_check", []CallArg{{"l", desc}, {"w", idx}})
}

func (rl *RuntimeLibrary) ArrayBoundsCheck2D(b *Builder, desc, i, j string) {
	rl.Call(b, "array_bounds_check_2d", []CallArg{{"l", desc}, {"w", i}, {"w", j}})
}

func (rl *RuntimeLibrary) ArrayElementAddr(b *Builder, desc, idx string) string {
	return rl.Call(b, "array_element_addr", []CallArg{{"l", desc}, {"w", idx}})
}

func (rl *RuntimeLibrary) ArrayElementAddr2D(b *Builder, desc, i, j string) string {
	return rl.Call(b, "array_element_addr_2d", []CallArg{{"l", desc}, {"w", i}, {"w", j}})
}

func (rl *RuntimeLibrary) HashmapLookup(b *Builder, m, key string) string {
	return rl.Call(b, "hashmap_lookup", []CallArg{{"l", m}, {"l", key}})
}

func (rl *RuntimeLibrary) HashmapInsert(b *Builder, m, key, val string) {
	rl.Call(b, "hashmap_insert", []CallArg{{"l", m}, {"l", key}, {"l", val}})
}

func (rl *RuntimeLibrary) HashmapNew(b *Builder, capacity string) string {
	return rl.Call(b, "hashmap_new", []CallArg{{"w", capacity}})
}

func (rl *RuntimeLibrary) ListCreate(b *Builder) string {
	return rl.Call(b, "list_create", nil)
}

func (rl *RuntimeLibrary) ObjectAlloc(b *Builder, size, vtable, classID string) string {
	return rl.Call(b, "object_alloc", []CallArg{{"w", size}, {"l", vtable}, {"w", classID}})
}

func (rl *RuntimeLibrary) SammRetain(b *Builder, ptr string) {
	rl.Call(b, "samm_retain", []CallArg{{"l", ptr}, {"w", "1"}})
}

func (rl *RuntimeLibrary) SammEnterScope(b *Builder) { rl.Call(b, "samm_enter_scope", nil) }
func (rl *RuntimeLibrary) SammExitScope(b *Builder)  { rl.Call(b, "samm_exit_scope", nil) }

func (rl *RuntimeLibrary) MsgQueuePop(b *Builder, q string) string {
	return rl.Call(b, "msg_queue_pop", []CallArg{{"l", q}})
}

func (rl *RuntimeLibrary) MsgQueueHasMessage(b *Builder, q string) string {
	return rl.Call(b, "msg_queue_has_message", []CallArg{{"l", q}})
}

func (rl *RuntimeLibrary) MsgBlobTag(b *Builder, blob string) string {
	return rl.Call(b, "msg_blob_tag", []CallArg{{"l", blob}})
}

func (rl *RuntimeLibrary) MsgBlobTypeID(b *Builder, blob string) string {
	return rl.Call(b, "msg_blob_type_id", []CallArg{{"l", blob}})
}

func (rl *RuntimeLibrary) MsgBlobPayloadPtr(b *Builder, blob string) string {
	return rl.Call(b, "msg_blob_payload_ptr", []CallArg{{"l", blob}})
}

func (rl *RuntimeLibrary) MsgBlobForward(b *Builder, blob, q string) {
	rl.Call(b, "msg_blob_forward", []CallArg{{"l", blob}, {"l", q}})
}

func (rl *RuntimeLibrary) MsgBlobFree(b *Builder, blob string) {
	rl.Call(b, "msg_blob_free", []CallArg{{"l", blob}})
}

func (rl *RuntimeLibrary) WorkerSpawn(b *Builder, fn, args string, messaging bool) string {
	name := "worker_spawn"
	if messaging {
		name = "worker_spawn_messaging"
	}
	return rl.Call(b, name, []CallArg{{"l", fn}, {"l", args}})
}

func (rl *RuntimeLibrary) WorkerAwait(b *Builder, handle string) string {
	return rl.Call(b, "worker_await", []CallArg{{"l", handle}})
}

func (rl *RuntimeLibrary) WorkerReady(b *Builder, handle string) string {
	return rl.Call(b, "worker_ready", []CallArg{{"l", handle}})
}
