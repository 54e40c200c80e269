// Package policy evaluates the per-repository sync policies: branch
// protection and path include/exclude filtering.
//
// Path matching follows gitignore-style semantics: a pattern without a
// slash matches the file's base name at any depth, a pattern with a
// slash matches against the whole (slash-normalized) path, and `**`
// crosses directory boundaries.
package policy

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// IsProtectedBranch reports whether branch appears in the protected list.
// Pushes to protected branches on the counterpart remote require the
// rebase-then-push flow rather than any forced update.
func IsProtectedBranch(branch string, protected []string) bool {
	for _, p := range protected {
		if branch == p {
			return true
		}
	}
	return false
}

// Matcher decides whether a path is in scope for mirroring or scanning.
//
// An empty include list means "everything not excluded" (open policy);
// a non-empty include list means "only listed patterns, minus exclusions"
// (closed policy). Exclusions always win, regardless of order.
type Matcher struct {
	include []compiled
	exclude []compiled
}

type compiled struct {
	g        glob.Glob
	baseOnly bool
}

// Compile builds a Matcher from include and exclude glob pattern lists.
func Compile(include, exclude []string) (*Matcher, error) {
	m := &Matcher{}

	var err error
	if m.include, err = compileAll(include); err != nil {
		return nil, err
	}
	if m.exclude, err = compileAll(exclude); err != nil {
		return nil, err
	}
	return m, nil
}

func compileAll(patterns []string) ([]compiled, error) {
	out := make([]compiled, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ReplaceAll(p, `\`, "/")
		baseOnly := !strings.Contains(p, "/")

		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", p, err)
		}
		out = append(out, compiled{g: g, baseOnly: baseOnly})
	}
	return out, nil
}

// Match reports whether p passes the policy. Relative paths are matched
// as given; callers pass paths relative to the repository root when
// filtering trees and absolute paths when guarding writes.
func (m *Matcher) Match(p string) bool {
	p = strings.ReplaceAll(p, `\`, "/")

	for _, c := range m.exclude {
		if c.matches(p) {
			return false
		}
	}

	if len(m.include) == 0 {
		return true
	}
	for _, c := range m.include {
		if c.matches(p) {
			return true
		}
	}
	return false
}

func (c compiled) matches(p string) bool {
	if c.baseOnly {
		return c.g.Match(path.Base(p))
	}
	return c.g.Match(p)
}

// MatchPrefix reports whether the directory dir may still contain
// admitted paths. Tree walks use it to prune excluded directories
// without consulting every file beneath them. Include patterns never
// prune: a closed policy can admit files nested arbitrarily deep.
func (m *Matcher) MatchPrefix(dir string) bool {
	dir = strings.ReplaceAll(dir, `\`, "/")
	for _, c := range m.exclude {
		if c.baseOnly {
			continue
		}
		if c.g.Match(dir) || c.g.Match(dir+"/") {
			return false
		}
	}
	return true
}

// Filter returns the subset of paths that pass the policy, preserving
// input order.
func (m *Matcher) Filter(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if m.Match(p) {
			out = append(out, p)
		}
	}
	return out
}
