// Package workspacefs implements the WorkspaceFS component: a sandboxed
// per-agent filesystem rooted at an isolated directory, with a
// path-traversal guard and a subprocess execution tool.
package workspacefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathEscape is returned when a resolved path would leave the workspace
// root (via absolute paths, "..", or a symlink).
type PathEscape struct{ Path string }

func (e *PathEscape) Error() string {
	return fmt.Sprintf("workspacefs: path %q escapes workspace", e.Path)
}

// resolver resolves and validates workspace-relative paths. Grounded on
// internal/tools/files.Resolver's containment check.
type resolver struct {
	root string
}

func (r resolver) resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("workspacefs: path is required")
	}
	rootAbs, err := filepath.Abs(r.root)
	if err != nil {
		return "", fmt.Errorf("workspacefs: resolve workspace root: %w", err)
	}

	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("workspacefs: resolve path: %w", err)
	}

	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", &PathEscape{Path: path}
	}

	if resolved, err := filepath.EvalSymlinks(targetAbs); err == nil {
		resolvedRel, err := filepath.Rel(rootAbs, resolved)
		if err != nil || resolvedRel == ".." || strings.HasPrefix(resolvedRel, ".."+string(os.PathSeparator)) {
			return "", &PathEscape{Path: path}
		}
	}

	return targetAbs, nil
}
