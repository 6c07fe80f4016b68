// Copyright © 2024 The bpflint authors

package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	stdinArg  = "-"
	stdinName = "<stdin>"
	bpfCExt   = ".bpf.c"
)

// expandArgs expands source arguments into the list of files to lint.  An
// argument "@file" is replaced by the paths listed in file, one per line.
// An argument ending in "/..." is replaced by every *.bpf.c file found
// recursively under the directory.  Other arguments pass through unchanged.
// Paths matching any of the exclude patterns are dropped.
func expandArgs(args []string, excludes []string) ([]string, error) {
	for _, pattern := range excludes {
		if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	var out []string
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, "@"):
			paths, err := readFileList(arg[1:])
			if err != nil {
				return nil, err
			}
			out = append(out, paths...)
		case arg == "..." || strings.HasSuffix(arg, "/..."):
			dir := strings.TrimSuffix(strings.TrimSuffix(arg, "..."), "/")
			if dir == "" {
				dir = "."
			}
			files, err := findBPFFiles(dir)
			if err != nil {
				return nil, fmt.Errorf("expanding %s: %w", arg, err)
			}
			out = append(out, files...)
		default:
			out = append(out, arg)
		}
	}
	return filterExcludes(out, excludes), nil
}

// readFileList reads a newline separated list of paths.  Surrounding white
// space is trimmed and blank lines are skipped.
func readFileList(name string) ([]string, error) {
	data, err := os.ReadFile(name) //nolint:gosec // CLI tool reads user-specified files
	if err != nil {
		return nil, fmt.Errorf("reading file list: %w", err)
	}
	var paths []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			paths = append(paths, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading file list %s: %w", name, err)
	}
	return paths, nil
}

func findBPFFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && hasBPFExt(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// hasBPFExt reports whether the base name of path ends in ".bpf.c".
func hasBPFExt(path string) bool {
	return strings.HasSuffix(filepath.Base(path), bpfCExt)
}

// filterExcludes removes paths that match any of the exclude patterns.
func filterExcludes(paths []string, excludes []string) []string {
	if len(excludes) == 0 {
		return paths
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == stdinArg || !matchesAny(p, excludes) {
			out = append(out, p)
		}
	}
	return out
}

// matchesAny reports whether path matches one of the patterns.  A pattern
// may match the whole path, its base name, or any single directory
// component.
func matchesAny(path string, patterns []string) bool {
	slashed := filepath.ToSlash(filepath.Clean(path))
	components := splitPath(slashed)
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if ok, _ := doublestar.Match(pattern, slashed); ok {
			return true
		}
		for _, c := range components {
			if ok, _ := doublestar.Match(pattern, c); ok {
				return true
			}
		}
	}
	return false
}

// splitPath returns the components of a slash separated path.
func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return parts
}
