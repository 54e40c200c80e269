// Package errdefs defines the error taxonomy shared by all sealrepos
// components, along with the mapping from errors to process exit codes.
//
// Errors fall into five families:
//
//   - configuration errors: fatal to the whole run, raised before any
//     repository is touched
//   - git errors: scoped to one repository, never abort a cycle
//   - policy violations: dirty tree, protected branch, excluded path
//   - secret findings: a policy violation specialization carrying findings
//   - lock contention: fatal at process start only
//
// Use errors.Is to classify:
//
//	if errors.Is(err, errdefs.ErrPolicyViolation) {
//	    // requires operator attention, do not retry
//	}
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig indicates the configuration could not be loaded or
	// failed validation. Fatal to the whole run.
	ErrConfig = errors.New("configuration error")

	// ErrGit indicates a git invocation failed (binary missing,
	// non-zero exit, or timeout). Scoped to one repository.
	ErrGit = errors.New("git error")

	// ErrGitNotFound indicates the git binary is not installed or
	// not in PATH. Wraps ErrGit.
	ErrGitNotFound = fmt.Errorf("%w: git binary not found", ErrGit)

	// ErrGitTimeout indicates a git command exceeded its timeout.
	// Wraps ErrGit.
	ErrGitTimeout = fmt.Errorf("%w: command timed out", ErrGit)

	// ErrPolicyViolation indicates an operation was blocked by
	// configured policy rather than by a tool failure.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrPushRejected indicates the remote refused a push, typically
	// because it moved since the last fetch. Retryable next cycle.
	ErrPushRejected = errors.New("push rejected by remote")

	// ErrDivergedConflict indicates a diverged repository could not be
	// rebased cleanly and needs manual intervention (or a pull request).
	ErrDivergedConflict = fmt.Errorf("%w: rebase conflict requires manual intervention", ErrPolicyViolation)

	// ErrLockHeld indicates another process of the same family already
	// holds the advisory lock on this host.
	ErrLockHeld = errors.New("another instance is already running")
)

// Exit codes for the reposctl binary. Each error family maps to exactly
// one code.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfig        = 2
	ExitGit           = 3
	ExitPolicy        = 4
	ExitSecretFound   = 5
	ExitLockContended = 6
)

// ExitCode maps an error to the reposctl exit code for its family.
// Secret findings are checked before generic policy violations because
// SecretError wraps ErrPolicyViolation.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var se *SecretError
	switch {
	case errors.As(err, &se):
		return ExitSecretFound
	case errors.Is(err, ErrLockHeld):
		return ExitLockContended
	case errors.Is(err, ErrPolicyViolation):
		return ExitPolicy
	case errors.Is(err, ErrGit):
		return ExitGit
	case errors.Is(err, ErrConfig):
		return ExitConfig
	}
	return ExitFailure
}

// IsRetryable reports whether the error is likely to succeed if the
// same operation runs again next cycle.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrPushRejected) || errors.Is(err, ErrGitTimeout)
}
