// Package gitwrap wraps the system git binary behind a small, typed API.
//
// Every git invocation in sealrepos goes through Runner: commands run
// non-interactively (terminal prompting disabled), in a fixed working
// directory, under a timeout, and failures map onto the errdefs taxonomy.
// Nothing else in the codebase calls git directly.
package gitwrap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sealbridge/sealrepos/internal/errdefs"
)

// DefaultTimeout bounds a single git command. Fetches and pushes over
// slow links still finish comfortably inside this.
const DefaultTimeout = 120 * time.Second

// Runner executes git commands with a scrubbed environment and timeout.
// The zero value is not usable; construct with New.
type Runner struct {
	// Timeout applies per command.
	Timeout time.Duration

	// Env holds extra KEY=VALUE pairs layered over the scrubbed base
	// environment. Used by crypto strategies to inject key material paths.
	Env []string

	logger *log.Logger
}

// New returns a Runner with the default timeout. If logger is nil,
// commands are not logged.
func New(logger *log.Logger) *Runner {
	return &Runner{Timeout: DefaultTimeout, logger: logger}
}

// Run executes `git args...` in dir and returns trimmed stdout.
//
// Failures map to the error taxonomy: a missing binary returns
// ErrGitNotFound, a timeout returns ErrGitTimeout, and a non-zero exit
// returns ErrGit wrapping the command's stderr.
func (r *Runner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: working directory not found: %s", errdefs.ErrGit, dir)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	// Never let git stop to ask for credentials; unattended runs must
	// fail instead of hanging on a prompt.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, r.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if r.logger != nil {
		r.logger.Printf("git %s (dir=%s)", strings.Join(args, " "), dir)
	}

	err := cmd.Run()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", errdefs.ErrGitNotFound
		}
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: git %s after %s",
				errdefs.ErrGitTimeout, strings.Join(args, " "), timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("%w: git %s: %s", errdefs.ErrGit, strings.Join(args, " "), msg)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// FetchAll fetches every remote of the repository at dir, pruning refs
// that no longer exist upstream.
func (r *Runner) FetchAll(ctx context.Context, dir string) error {
	_, err := r.Run(ctx, dir, "fetch", "--all", "--prune")
	return err
}

// CurrentBranch returns the checked-out branch name at dir. Unlike
// rev-parse this also answers on an unborn branch (fresh clone of an
// empty remote).
func (r *Runner) CurrentBranch(ctx context.Context, dir string) (string, error) {
	return r.Run(ctx, dir, "symbolic-ref", "--short", "HEAD")
}

// HeadSHA resolves ref to a commit SHA. Pass "HEAD" for the local tip.
func (r *Runner) HeadSHA(ctx context.Context, dir, ref string) (string, error) {
	return r.Run(ctx, dir, "rev-parse", ref)
}

// MergeBase returns the most recent common ancestor of two commits.
func (r *Runner) MergeBase(ctx context.Context, dir, shaA, shaB string) (string, error) {
	return r.Run(ctx, dir, "merge-base", shaA, shaB)
}

// Rebase rebases the current branch onto upstream. On failure the rebase
// is left in progress; callers decide whether to RebaseAbort.
func (r *Runner) Rebase(ctx context.Context, dir, upstream string) error {
	_, err := r.Run(ctx, dir, "rebase", upstream)
	return err
}

// RebaseAbort abandons an in-progress rebase, restoring the branch to
// its pre-rebase state.
func (r *Runner) RebaseAbort(ctx context.Context, dir string) error {
	_, err := r.Run(ctx, dir, "rebase", "--abort")
	return err
}

// Push pushes branch to remote. With forceWithLease the push overwrites
// the remote branch only if it still points where we last saw it.
//
// A rejection by the remote (it moved since our fetch) returns
// ErrPushRejected so callers can retry next cycle instead of failing hard.
func (r *Runner) Push(ctx context.Context, dir, remote, branch string, forceWithLease bool) error {
	args := []string{"push", remote, branch}
	if forceWithLease {
		args = append(args, "--force-with-lease")
	}
	_, err := r.Run(ctx, dir, args...)
	if err != nil && isRejection(err) {
		return fmt.Errorf("%w: %s/%s", errdefs.ErrPushRejected, remote, branch)
	}
	return err
}

// isRejection recognizes the stderr shapes git emits for non-fast-forward
// and stale-lease pushes.
func isRejection(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "[rejected]") ||
		strings.Contains(msg, "non-fast-forward") ||
		strings.Contains(msg, "stale info") ||
		strings.Contains(msg, "fetch first")
}

// IsClean reports whether the working tree at dir has no uncommitted
// changes (staged, unstaged, or untracked).
func (r *Runner) IsClean(ctx context.Context, dir string) (bool, error) {
	out, err := r.Run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

// Clone clones url into dest. baseDir is the directory the command runs
// in and must exist.
func (r *Runner) Clone(ctx context.Context, baseDir, url, dest string) error {
	_, err := r.Run(ctx, baseDir, "clone", url, dest)
	return err
}

// AddAll stages every change in the working tree at dir.
func (r *Runner) AddAll(ctx context.Context, dir string) error {
	_, err := r.Run(ctx, dir, "add", ".")
	return err
}

// Commit records staged changes with the given message.
func (r *Runner) Commit(ctx context.Context, dir, message string) error {
	_, err := r.Run(ctx, dir, "commit", "-m", message)
	return err
}
