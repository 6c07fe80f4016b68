// Copyright © 2024 The bpflint authors

package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthersystems/bpflint/bpflinttest"
	"github.com/luthersystems/bpflint/lint"
)

const kprobeProg = `SEC("kprobe/do_sys_open")
int handle(void *ctx)
{
	return 0;
}
`

const suppressedProg = `/* bpflint: disable=unstable-attach-point */
SEC("kprobe/do_sys_open")
int handle(void *ctx)
{
	return 0;
}
`

const cleanProg = `SEC("tp/syscalls/sys_enter_openat")
int handle(void *ctx)
{
	return 0;
}
`

type result struct {
	code   int
	stdout string
	stderr string
}

// run executes bpflint in isolation from the user's environment.
func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(logEnv, "")
	var stdout, stderr bytes.Buffer
	code := Run(args, WithIO(strings.NewReader(stdin), &stdout, &stderr))
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestRootCommand_Flags(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "bpflint [flags] [@]SRCS...", cmd.Use)
	for _, name := range []string{
		"print-lints", "json", "exclude", "trace-file", "checks", "disable",
		"before", "after", "context", "jobs", "timeout",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing flag: %s", name)
	}
	for _, name := range []string{"config", "color", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing flag: %s", name)
	}
	for short, long := range map[string]string{"A": "after", "B": "before", "C": "context", "v": "verbose"} {
		f := cmd.Flags().ShorthandLookup(short)
		if f == nil {
			f = cmd.PersistentFlags().ShorthandLookup(short)
		}
		require.NotNil(t, f, "missing shorthand -%s", short)
		assert.Equal(t, long, f.Name)
	}
	assert.Contains(t, cmd.Long, "probe-read")
}

func TestLint_Clean(t *testing.T) {
	dir := bpflinttest.WriteTree(t, map[string]string{"clean.bpf.c": cleanProg})
	res := run(t, "", filepath.Join(dir, "clean.bpf.c"))
	assert.Equal(t, exitOK, res.code, res.stderr)
	assert.Empty(t, res.stdout)
}

func TestLint_Finding(t *testing.T) {
	dir := bpflinttest.WriteTree(t, map[string]string{"prog.bpf.c": kprobeProg})
	path := filepath.Join(dir, "prog.bpf.c")
	res := run(t, "", path)
	assert.Equal(t, exitFindings, res.code)
	assert.True(t, strings.HasPrefix(res.stdout,
		`warning: [unstable-attach-point] kprobe attach point "kprobe/do_sys_open" is unstable`), res.stdout)
	assert.Contains(t, res.stdout, "\n  --> "+path+":1:1\n  |\n"+
		"1 | SEC(\"kprobe/do_sys_open\")\n"+
		"  | "+strings.Repeat("^", 25)+"\n  |\n")
	assert.Contains(t, res.stdout, "   = help: suggested fix: attach to a tracepoint")
	assert.Contains(t, res.stdout, `   = note: to suppress: add "/* bpflint: disable=unstable-attach-point */"`)
	assert.Empty(t, res.stderr)
}

func TestLint_Suppressed(t *testing.T) {
	dir := bpflinttest.WriteTree(t, map[string]string{"prog.bpf.c": suppressedProg})
	res := run(t, "", filepath.Join(dir, "prog.bpf.c"))
	assert.Equal(t, exitOK, res.code, res.stdout)
	assert.Empty(t, res.stdout)
}

func TestLint_DirectiveWarning(t *testing.T) {
	dir := bpflinttest.WriteTree(t, map[string]string{
		"prog.bpf.c": "/* bpflint: disable=no-such-lint */\n" + cleanProg,
	})
	res := run(t, "", filepath.Join(dir, "prog.bpf.c"))
	assert.Equal(t, exitFindings, res.code)
	assert.Contains(t, res.stdout, `warning: [unknown-lint] unknown lint "no-such-lint" in disable directive`)
}

func TestLint_BogusExtension(t *testing.T) {
	dir := bpflinttest.WriteTree(t, map[string]string{"no_bytes.c": cleanProg})
	path := filepath.Join(dir, "no_bytes.c")
	res := run(t, "", path)
	assert.Equal(t, exitFindings, res.code)
	assert.Equal(t, ""+
		"warning: [bogus-file-extension] by convention BPF C code should use the file extension '.bpf.c'\n"+
		"  --> "+path+"\n", res.stdout)
}

func TestLint_Context(t *testing.T) {
	src := "#include \"vmlinux.h\"\n\nchar LICENSE[] SEC(\"license\") = \"GPL\";\n\n" + kprobeProg
	dir := bpflinttest.WriteTree(t, map[string]string{"prog.bpf.c": src})
	path := filepath.Join(dir, "prog.bpf.c")

	res := run(t, "", "-B", "2", "-A", "1", path)
	assert.Equal(t, exitFindings, res.code, res.stderr)
	assert.Contains(t, res.stdout, ""+
		"  |\n"+
		"3 | char LICENSE[] SEC(\"license\") = \"GPL\";\n"+
		"4 | \n"+
		"5 | SEC(\"kprobe/do_sys_open\")\n"+
		"  | "+strings.Repeat("^", 25)+"\n"+
		"6 | int handle(void *ctx)\n"+
		"  |\n")

	res = run(t, "", "-C", "1", path)
	assert.Equal(t, exitFindings, res.code, res.stderr)
	assert.Contains(t, res.stdout, "4 | \n5 | SEC(")
	assert.Contains(t, res.stdout, "6 | int handle(void *ctx)\n  |\n")
	assert.NotContains(t, res.stdout, "3 | ")
}

func TestLint_ContextErrors(t *testing.T) {
	dir := bpflinttest.WriteTree(t, map[string]string{"prog.bpf.c": cleanProg})
	path := filepath.Join(dir, "prog.bpf.c")

	res := run(t, "", "-C", "256", path)
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, "invalid context line count: '256' (must be 0-255)")

	res = run(t, "", "-A", "x", path)
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, "invalid context line count: 'x' (must be 0-255)")

	res = run(t, "", "-C", "1", "-A", "1", path)
	assert.Equal(t, exitUsage, res.code)

	res = run(t, "", "-C", "1", "-B", "1", path)
	assert.Equal(t, exitUsage, res.code)

	res = run(t, "", "-A", "1", "-B", "255", path)
	assert.Equal(t, exitOK, res.code, res.stderr)
}

func TestLint_PrintLints(t *testing.T) {
	var names []string
	for _, info := range lint.ListLints() {
		names = append(names, info.Name)
	}

	res := run(t, "", "--print-lints")
	assert.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, strings.Join(names, "\n")+"\n", res.stdout)

	res = run(t, "", "--print-lints", "-v")
	assert.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "probe-read (warning)\n    Flag uses of the deprecated")
	assert.Contains(t, res.stdout, "trace-printk (info)\n")

	res = run(t, "", "--print-lints", "prog.bpf.c")
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, "--print-lints cannot be combined with source files")
}

func TestLint_Usage(t *testing.T) {
	res := run(t, "")
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, "no source files given")

	res = run(t, "", "--no-such-flag", "a.bpf.c")
	assert.Equal(t, exitUsage, res.code)

	res = run(t, "", "--checks=nope", "a.bpf.c")
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, `unknown lint "nope"`)

	res = run(t, "", "--color=sometimes", "a.bpf.c")
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, "invalid color mode")
}

func TestLint_Checks(t *testing.T) {
	src := "SEC(\"kprobe/x\")\nint f(void *ctx)\n{\n\tbpf_printk(\"hi\");\n\treturn 0;\n}\n"
	dir := bpflinttest.WriteTree(t, map[string]string{"prog.bpf.c": src})
	path := filepath.Join(dir, "prog.bpf.c")

	res := run(t, "", "--checks=trace-printk", path)
	assert.Equal(t, exitFindings, res.code)
	assert.Contains(t, res.stdout, "[trace-printk]")
	assert.NotContains(t, res.stdout, "[unstable-attach-point]")

	res = run(t, "", "--disable=trace-printk,unstable-attach-point", path)
	assert.Equal(t, exitOK, res.code, res.stdout)
}

func TestLint_ConfigFile(t *testing.T) {
	dir := bpflinttest.WriteTree(t, map[string]string{
		"prog.bpf.c": kprobeProg,
		"cfg.yaml":   "severity:\n  unstable-attach-point: error\n",
		"off.yaml":   "disable: [unstable-attach-point]\n",
		"bad.yaml":   "disable: [nope]\n",
	})
	path := filepath.Join(dir, "prog.bpf.c")

	res := run(t, "", "--config", filepath.Join(dir, "cfg.yaml"), path)
	assert.Equal(t, exitFindings, res.code)
	assert.True(t, strings.HasPrefix(res.stdout, "error: [unstable-attach-point]"), res.stdout)

	res = run(t, "", "--config", filepath.Join(dir, "off.yaml"), path)
	assert.Equal(t, exitOK, res.code, res.stdout)

	res = run(t, "", "--config", filepath.Join(dir, "bad.yaml"), path)
	assert.Equal(t, exitUsage, res.code)

	res = run(t, "", "--config", filepath.Join(dir, "missing.yaml"), path)
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, "reading config")
}

func TestLint_JSON(t *testing.T) {
	dir := bpflinttest.WriteTree(t, map[string]string{
		"a.bpf.c": kprobeProg,
		"b.bpf.c": cleanProg,
	})
	res := run(t, "", "--json", filepath.Join(dir, "a.bpf.c"), filepath.Join(dir, "b.bpf.c"))
	assert.Equal(t, exitFindings, res.code)

	var results []struct {
		File        string `json:"file"`
		Diagnostics []struct {
			Lint     string `json:"lint"`
			Severity string `json:"severity"`
			Pos      struct {
				Line int `json:"line"`
				Col  int `json:"col"`
			} `json:"pos"`
		} `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &results), res.stdout)
	require.Len(t, results, 2)
	assert.Equal(t, filepath.Join(dir, "a.bpf.c"), results[0].File)
	require.Len(t, results[0].Diagnostics, 1)
	assert.Equal(t, "unstable-attach-point", results[0].Diagnostics[0].Lint)
	assert.Equal(t, "warning", results[0].Diagnostics[0].Severity)
	assert.Equal(t, 1, results[0].Diagnostics[0].Pos.Line)
	assert.Empty(t, results[1].Diagnostics)

	res = run(t, "", "--json", filepath.Join(dir, "b.bpf.c"))
	assert.Equal(t, exitOK, res.code)
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &results))
	require.Len(t, results, 1)
}

func TestLint_FileFailures(t *testing.T) {
	dir := bpflinttest.WriteTree(t, map[string]string{
		"bad.bpf.c":  "int x; /* oops",
		"good.bpf.c": kprobeProg,
	})
	bad := filepath.Join(dir, "bad.bpf.c")
	missing := filepath.Join(dir, "missing.bpf.c")

	res := run(t, "", bad, missing, filepath.Join(dir, "good.bpf.c"))
	assert.Equal(t, exitFindings, res.code)
	assert.Contains(t, res.stderr, "error: unterminated block comment\n  --> "+bad+":1:8\n")
	assert.Contains(t, res.stderr, "error: reading "+missing)
	assert.Contains(t, res.stdout, "[unstable-attach-point]", "other files are still linted")
}

func TestLint_FileList(t *testing.T) {
	dir := bpflinttest.WriteTree(t, map[string]string{
		"a.bpf.c": kprobeProg,
		"b.bpf.c": cleanProg,
	})
	list := filepath.Join(dir, "files")
	require.NoError(t, os.WriteFile(list, []byte("\n"+filepath.Join(dir, "b.bpf.c")+"\n  "+filepath.Join(dir, "a.bpf.c")+"  \n\n"), 0o600))

	res := run(t, "", "@"+list)
	assert.Equal(t, exitFindings, res.code, res.stderr)
	assert.Contains(t, res.stdout, "--> "+filepath.Join(dir, "a.bpf.c")+":1:1")

	res = run(t, "", "@"+filepath.Join(dir, "nope"))
	assert.Equal(t, exitUsage, res.code)
}

func TestLint_Recursive(t *testing.T) {
	dir := bpflinttest.WriteTree(t, map[string]string{
		"a/one.bpf.c":    kprobeProg,
		"b/two.bpf.c":    kprobeProg,
		"b/helper.c":     kprobeProg,
		"vendor/x.bpf.c": kprobeProg,
	})
	res := run(t, "", "--jobs=1", "--exclude=vendor", dir+"/...")
	assert.Equal(t, exitFindings, res.code, res.stderr)
	one := strings.Index(res.stdout, filepath.Join(dir, "a", "one.bpf.c"))
	two := strings.Index(res.stdout, filepath.Join(dir, "b", "two.bpf.c"))
	assert.True(t, one >= 0 && two > one, res.stdout)
	assert.NotContains(t, res.stdout, "helper.c")
	assert.NotContains(t, res.stdout, "vendor")
}

func TestLint_OrderIndependentOfJobs(t *testing.T) {
	files := make(map[string]string)
	var args []string
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		files[name+".bpf.c"] = kprobeProg
	}
	dir := bpflinttest.WriteTree(t, files)
	for _, name := range []string{"f", "a", "d", "b", "e", "c"} {
		args = append(args, filepath.Join(dir, name+".bpf.c"))
	}
	serial := run(t, "", append([]string{"--jobs=1"}, args...)...)
	parallel := run(t, "", append([]string{"--jobs=6"}, args...)...)
	assert.Equal(t, serial.stdout, parallel.stdout)
	assert.Less(t, strings.Index(serial.stdout, "f.bpf.c"), strings.Index(serial.stdout, "a.bpf.c"))
}

func TestLint_Stdin(t *testing.T) {
	res := run(t, kprobeProg, "-")
	assert.Equal(t, exitFindings, res.code, res.stderr)
	assert.Contains(t, res.stdout, "  --> <stdin>:1:1\n")
	assert.Contains(t, res.stdout, "1 | SEC(\"kprobe/do_sys_open\")\n")
	assert.NotContains(t, res.stdout, "bogus-file-extension")
}

func TestLint_TraceFile(t *testing.T) {
	dir := bpflinttest.WriteTree(t, map[string]string{"prog.bpf.c": cleanProg})
	traces := filepath.Join(dir, "traces.json")
	res := run(t, "", "--trace-file", traces, filepath.Join(dir, "prog.bpf.c"))
	assert.Equal(t, exitOK, res.code, res.stderr)
	data, err := os.ReadFile(traces)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"lint.file"`)
	assert.Contains(t, string(data), `"lint.rule"`)
}

func TestLint_Verbose(t *testing.T) {
	dir := bpflinttest.WriteTree(t, map[string]string{"prog.bpf.c": cleanProg})
	path := filepath.Join(dir, "prog.bpf.c")

	res := run(t, "", path)
	assert.Empty(t, res.stderr)

	res = run(t, "", "-v", path)
	assert.Contains(t, res.stderr, "level=INFO msg=linting files=1")

	res = run(t, "", "-vvv", path)
	assert.Contains(t, res.stderr, "level=TRACE msg=\"linted file\"")

	t.Setenv("HOME", t.TempDir())
	t.Setenv(logEnv, "debug")
	var stdout, stderr bytes.Buffer
	code := Run([]string{path}, WithIO(strings.NewReader(""), &stdout, &stderr))
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stderr.String(), "level=INFO")

	t.Setenv(logEnv, "loud")
	stderr.Reset()
	code = Run([]string{path}, WithIO(strings.NewReader(""), &stdout, &stderr))
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), `BPFLINT_LOG: unknown log level "loud"`)
}

func TestWithRegistry(t *testing.T) {
	custom := &lint.Rule{
		Name:     "no-main",
		Doc:      "Flag functions named main.",
		Severity: lint.SeverityError,
		Run: func(pass *lint.Pass) error {
			for _, n := range pass.Root.Children {
				if n.Name == "main" {
					pass.Reportf(n.Span, "main is not a BPF program")
				}
			}
			return nil
		},
	}
	crash := &lint.Rule{
		Name:     "crash",
		Doc:      "Always fails.",
		Severity: lint.SeverityWarning,
		Run:      func(*lint.Pass) error { return errors.New("internal error") },
	}
	reg, err := lint.NewRegistry(custom, crash)
	require.NoError(t, err)

	t.Setenv("HOME", t.TempDir())
	var stdout, stderr bytes.Buffer
	code := Run([]string{"--print-lints"}, WithRegistry(reg), WithIO(strings.NewReader(""), &stdout, &stderr))
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "crash\nno-main\n", stdout.String())

	dir := bpflinttest.WriteTree(t, map[string]string{"prog.bpf.c": "int main(void)\n{\n\treturn 0;\n}\n"})
	stdout.Reset()
	code = Run([]string{filepath.Join(dir, "prog.bpf.c")}, WithRegistry(reg), WithIO(strings.NewReader(""), &stdout, &stderr))
	assert.Equal(t, exitFindings, code)
	assert.Contains(t, stdout.String(), "error: [crash] rule crash failed: internal error\n  --> "+filepath.Join(dir, "prog.bpf.c")+"\n")
	assert.Contains(t, stdout.String(), "error: [no-main] main is not a BPF program")
}
