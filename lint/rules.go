// Copyright © 2024 The bpflint authors

package lint

import (
	"strings"

	"github.com/luthersystems/bpflint/astutil"
	"github.com/luthersystems/bpflint/parser/ast"
	"github.com/luthersystems/bpflint/parser/token"
)

// RuleProbeRead flags calls to the deprecated bpf_probe_read helpers.
var RuleProbeRead = &Rule{
	Name:     "probe-read",
	Severity: SeverityWarning,
	Doc:      "Flag uses of the deprecated bpf_probe_read() and bpf_probe_read_str() helpers.\n\nbpf_probe_read() cannot tell kernel and user addresses apart and fails on architectures with overlapping address spaces. It is replaced by bpf_probe_read_kernel() and bpf_probe_read_user() (and their _str variants); refer to bpf-helpers(7).",
	Run: func(pass *Pass) error {
		replacements := map[string][2]string{
			"bpf_probe_read":     {"bpf_probe_read_kernel", "bpf_probe_read_user"},
			"bpf_probe_read_str": {"bpf_probe_read_kernel_str", "bpf_probe_read_user_str"},
		}
		astutil.WalkCalls(pass.Root, func(call *ast.Node, path []*ast.Node) {
			repl, ok := replacements[call.Name]
			if !ok || isPrototype(path) {
				return
			}
			pass.ReportWithFix(callee(call).Span,
				repl[0]+"() for kernel memory or "+repl[1]+"() for user memory",
				"%s() is deprecated and replaced by %s() and %s(); refer to bpf-helpers(7)",
				call.Name, repl[1], repl[0])
		})
		return nil
	},
}

// unstableSections are program types that attach to arbitrary kernel
// functions, whose names and signatures change between kernel versions.
var unstableSections = map[string]bool{
	"kprobe":          true,
	"kretprobe":       true,
	"kprobe.multi":    true,
	"kretprobe.multi": true,
	"kprobe.session":  true,
	"ksyscall":        true,
	"kretsyscall":     true,
	"fentry":          true,
	"fentry.s":        true,
	"fexit":           true,
	"fexit.s":         true,
	"fmod_ret":        true,
	"fmod_ret.s":      true,
}

// RuleUnstableAttachPoint flags programs attached to kernel functions.
var RuleUnstableAttachPoint = &Rule{
	Name:     "unstable-attach-point",
	Severity: SeverityWarning,
	Doc:      "Flag programs attached through kprobe, kretprobe, fentry, fexit or fmod_ret sections.\n\nThese attach points name internal kernel functions, which are not a stable interface: they may be renamed, inlined or change signature between kernel versions. Prefer tracepoints (SEC(\"tp/...\")) or BTF-enabled raw tracepoints (SEC(\"tp_btf/...\")) where one exists.",
	Run: func(pass *Pass) error {
		for _, sec := range sectionCalls(pass.Root) {
			kind, _, _ := strings.Cut(sec.name, "/")
			if !unstableSections[kind] {
				continue
			}
			pass.ReportWithFix(sec.call.Span,
				`attach to a tracepoint (SEC("tp/...")) or raw tracepoint (SEC("tp_btf/...")) instead`,
				"%s attach point %q is unstable; kprobe/kretprobe/fentry/fexit attach to kernel internals", kind, sec.name)
		}
		return nil
	},
}

// btfKeyExempt are map types for which the kernel rejects or ignores BTF
// key and value types, so key_size and value_size are the only option.
var btfKeyExempt = map[string]bool{
	"BPF_MAP_TYPE_PERF_EVENT_ARRAY": true,
	"BPF_MAP_TYPE_PROG_ARRAY":       true,
	"BPF_MAP_TYPE_ARRAY_OF_MAPS":    true,
	"BPF_MAP_TYPE_HASH_OF_MAPS":     true,
	"BPF_MAP_TYPE_CGROUP_ARRAY":     true,
	"BPF_MAP_TYPE_STACK_TRACE":      true,
}

// RuleUntypedMapMember flags BTF map definitions sized without types.
var RuleUntypedMapMember = &Rule{
	Name:     "untyped-map-member",
	Severity: SeverityWarning,
	Doc:      "Flag __uint(key_size, ...) and __uint(value_size, ...) in BTF-defined maps.\n\nSizes carry no type information, so tools such as bpftool cannot pretty-print map contents and the verifier cannot check accesses. Declare the key and value with __type(key, ...) and __type(value, ...) instead. Map types that do not support BTF keys and values are exempt.",
	Run: func(pass *Pass) error {
		astutil.WalkCalls(pass.Root, func(call *ast.Node, path []*ast.Node) {
			if call.Name != "__uint" {
				return
			}
			member, _ := astutil.IdentArg(call.Arg(0))
			var field string
			switch member {
			case "key_size":
				field = "key"
			case "value_size":
				field = "value"
			default:
				return
			}
			if typ := mapType(enclosingBlock(path)); btfKeyExempt[typ] {
				return
			}
			pass.ReportWithFix(call.Span, "__type("+field+", <type>)",
				"map member %s carries no type information; use __type(%s, ...) instead", member, field)
		})
		return nil
	},
}

// RulePerfEventArray flags perf event array maps.
var RulePerfEventArray = &Rule{
	Name:     "perf-event-array",
	Severity: SeverityInfo,
	Doc:      "Suggest BPF_MAP_TYPE_RINGBUF over BPF_MAP_TYPE_PERF_EVENT_ARRAY.\n\nThe BPF ring buffer is shared across CPUs, preserves event ordering, avoids wasted per-CPU memory and supports reserve/commit without extra copies. It requires Linux 5.8 or later.",
	Run: func(pass *Pass) error {
		const perfEventArray = "BPF_MAP_TYPE_PERF_EVENT_ARRAY"
		report := func(n *ast.Node) {
			pass.ReportWithFix(n.Span, "BPF_MAP_TYPE_RINGBUF",
				"%s is superseded by BPF_MAP_TYPE_RINGBUF, which is more efficient and preserves event ordering", perfEventArray)
		}
		astutil.Walk(pass.Root, func(n, _ *ast.Node, _ int) {
			switch n.Kind {
			case ast.Call:
				// __uint(type, BPF_MAP_TYPE_PERF_EVENT_ARRAY)
				if n.Name != "__uint" {
					return
				}
				if member, _ := astutil.IdentArg(n.Arg(0)); member != "type" {
					return
				}
				if id := astutil.SignificantSingle(n.Arg(1)); id != nil && id.Kind == ast.Ident && id.Text == perfEventArray {
					report(id)
				}
			case ast.Group:
				// .type = BPF_MAP_TYPE_PERF_EVENT_ARRAY in a legacy definition
				if n.Text != "{" {
					return
				}
				code := astutil.Significant(n)
				for i := 3; i < len(code); i++ {
					if code[i].Kind == ast.Ident && code[i].Text == perfEventArray &&
						isText(code[i-1], ast.Operator, "=") &&
						isText(code[i-2], ast.Ident, "type") &&
						isText(code[i-3], ast.Operator, ".") {
						report(code[i])
					}
				}
			}
		})
		return nil
	},
}

// RuleLegacyMapDefinition flags struct bpf_map_def maps.
var RuleLegacyMapDefinition = &Rule{
	Name:     "legacy-map-definition",
	Severity: SeverityWarning,
	Doc:      "Flag legacy struct bpf_map_def map definitions in SEC(\"maps\").\n\nlibbpf 1.0 dropped support for legacy map definitions. Use a BTF-defined map in SEC(\".maps\"), declared with the __uint, __type and __array macros from bpf_helpers.h.",
	Run: func(pass *Pass) error {
		for _, decl := range pass.Root.Children {
			if decl.Kind != ast.Declaration {
				continue
			}
			typ := mapDefType(decl)
			if typ.IsEmpty() || !inSection(decl, "maps") {
				continue
			}
			pass.ReportWithFix(typ,
				`struct { __uint(type, ...); __type(key, ...); __type(value, ...); } name SEC(".maps");`,
				`struct bpf_map_def in SEC("maps") is a legacy map definition; use a BTF-defined map in SEC(".maps")`)
		}
		return nil
	},
}

// RuleTracePrintk flags debugging output through the trace pipe.
var RuleTracePrintk = &Rule{
	Name:     "trace-printk",
	Severity: SeverityInfo,
	Doc:      "Flag bpf_printk() and bpf_trace_printk() calls.\n\nThese helpers write to the global trace_pipe, which is shared by every program on the system, slow, and limited to three arguments. They are meant for debugging; production programs should report through a ring buffer or perf buffer.",
	Run: func(pass *Pass) error {
		astutil.WalkCalls(pass.Root, func(call *ast.Node, path []*ast.Node) {
			if call.Name != "bpf_printk" && call.Name != "bpf_trace_printk" {
				return
			}
			if isPrototype(path) {
				return
			}
			pass.Reportf(callee(call).Span,
				"%s() writes to the shared trace_pipe and is intended for debugging only", call.Name)
		})
		return nil
	},
}

// section is a section name given to a program or variable.
type section struct {
	name string
	call *ast.Node
}

// sectionCalls finds SEC("name") and __attribute__((section("name")))
// annotations in source order.
func sectionCalls(root *ast.Node) []section {
	var secs []section
	astutil.WalkCalls(root, func(call *ast.Node, path []*ast.Node) {
		switch call.Name {
		case "SEC":
		case "section":
			if !insideAttribute(path) {
				return
			}
		default:
			return
		}
		if name, ok := astutil.StringArg(call.Arg(0)); ok {
			secs = append(secs, section{name: name, call: call})
		}
	})
	return secs
}

func insideAttribute(path []*ast.Node) bool {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i].Kind == ast.Call {
			return path[i].Name == "__attribute__"
		}
		if path[i].IsUnit() {
			return false
		}
	}
	return false
}

// inSection reports whether decl carries a section annotation named name.
func inSection(decl *ast.Node, name string) bool {
	for _, sec := range sectionCalls(decl) {
		if sec.name == name {
			return true
		}
	}
	return false
}

// mapDefType returns the span of "struct bpf_map_def" in decl's type, or an
// empty span.
func mapDefType(decl *ast.Node) token.Span {
	code := astutil.Significant(decl)
	for i := 1; i < len(code); i++ {
		if isText(code[i-1], ast.Keyword, "struct") && isText(code[i], ast.Ident, "bpf_map_def") {
			return code[i-1].Span.Join(code[i].Span)
		}
	}
	return token.Span{}
}

// mapType returns the map type named by __uint(type, ...) among the members
// of a BTF map definition.
func mapType(members *ast.Node) string {
	if members == nil {
		return ""
	}
	for _, calls := range astutil.CallsNamed(members, "__uint") {
		if member, _ := astutil.IdentArg(calls.Arg(0)); member == "type" {
			typ, _ := astutil.IdentArg(calls.Arg(1))
			return typ
		}
	}
	return ""
}

func enclosingBlock(path []*ast.Node) *ast.Node {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i].Kind == ast.Block {
			return path[i]
		}
	}
	return nil
}

// isPrototype reports whether a call at path is the declarator of a
// function prototype or definition rather than a call expression.
func isPrototype(path []*ast.Node) bool {
	if len(path) == 0 {
		return false
	}
	parent := path[len(path)-1]
	switch parent.Kind {
	case ast.FunctionDef:
		return true
	case ast.Declaration:
		return len(path) >= 2 && path[len(path)-2].Kind == ast.TranslationUnit
	}
	return false
}

func callee(call *ast.Node) *ast.Node {
	return call.Children[0]
}

func isText(n *ast.Node, kind ast.Kind, text string) bool {
	return n.Kind == kind && n.Text == text
}
