package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/sealbridge/sealrepos/internal/config"
	"github.com/sealbridge/sealrepos/internal/cryptmode"
	"github.com/sealbridge/sealrepos/internal/errdefs"
	"github.com/sealbridge/sealrepos/internal/policy"
	"github.com/sealbridge/sealrepos/internal/scan"
)

// GitOps is the slice of gitwrap the engine needs. *gitwrap.Runner
// satisfies it; tests substitute a recording fake.
type GitOps interface {
	FetchAll(ctx context.Context, dir string) error
	CurrentBranch(ctx context.Context, dir string) (string, error)
	HeadSHA(ctx context.Context, dir, ref string) (string, error)
	MergeBase(ctx context.Context, dir, shaA, shaB string) (string, error)
	Rebase(ctx context.Context, dir, upstream string) error
	RebaseAbort(ctx context.Context, dir string) error
	Push(ctx context.Context, dir, remote, branch string, forceWithLease bool) error
	IsClean(ctx context.Context, dir string) (bool, error)
}

// personalRemote is the remote name of the plaintext source-of-truth;
// counterpartRemote is the encryption-gated side, configured on working
// copies that carry a relay URL.
const (
	personalRemote    = "origin"
	counterpartRemote = "relay"
)

// RepoSync synchronizes one repository: pre-checks, fetch, classify,
// act. Construct per repository per cycle; it holds no state across runs.
type RepoSync struct {
	repo     config.Repo
	defaults config.Defaults
	git      GitOps
	scanner  scan.Scanner
	crypt    cryptmode.Mode
	logger   *log.Logger
}

// Result reports what one sync run observed and did.
type Result struct {
	Branch  string
	State   State
	Rebased bool
	Pushed  bool
}

// New builds a RepoSync. scanner must not be nil; pass scan.Noop{} when
// scanning is disabled. crypt may be nil for plain repositories.
func New(repo config.Repo, defaults config.Defaults, git GitOps, scanner scan.Scanner, crypt cryptmode.Mode, logger *log.Logger) *RepoSync {
	return &RepoSync{
		repo:     repo,
		defaults: defaults,
		git:      git,
		scanner:  scanner,
		crypt:    crypt,
		logger:   logger,
	}
}

// Sync runs the full decision procedure for the repository. Any failure
// aborts this repository's sync with a typed error; callers isolate it
// from sibling repositories.
func (s *RepoSync) Sync(ctx context.Context) (Result, error) {
	var res Result
	dir := s.repo.Path

	// A dirty tree always aborts before any fetch. The engine never
	// stashes or commits user changes.
	clean, err := s.git.IsClean(ctx, dir)
	if err != nil {
		return res, err
	}
	if !clean {
		return res, fmt.Errorf("%w: repository %q has uncommitted changes; commit or stash them",
			errdefs.ErrPolicyViolation, s.repo.Name)
	}

	// Sealed content must be readable before any comparison means
	// anything. The unlock itself is the operator's action, not ours.
	if s.repo.Mode == config.ModeSealed && s.crypt != nil && !s.crypt.IsUnlocked(ctx, dir) {
		return res, fmt.Errorf("%w: repository %q is locked (%s); run `reposctl unlock %s` first",
			errdefs.ErrPolicyViolation, s.repo.Name, s.crypt.Name(), s.repo.Name)
	}

	if err := s.git.FetchAll(ctx, dir); err != nil {
		return res, err
	}

	branch, err := s.git.CurrentBranch(ctx, dir)
	if err != nil {
		return res, err
	}
	res.Branch = branch
	upstream := personalRemote + "/" + branch

	state, err := s.classify(ctx, upstream)
	if err != nil {
		return res, err
	}
	res.State = state
	s.logf("repo=%s branch=%s state=%s", s.repo.Name, branch, state)

	for _, action := range Plan(state) {
		switch action {
		case ActionRebase:
			if err := s.rebase(ctx, state, upstream); err != nil {
				return res, err
			}
			res.Rebased = true
		case ActionScan:
			if !s.pushAllowed() {
				continue
			}
			if err := s.scanner.Scan(ctx, dir); err != nil {
				return res, err
			}
		case ActionPush:
			if !s.pushAllowed() {
				s.logf("repo=%s direction=%s suppresses push", s.repo.Name, s.direction())
				continue
			}
			if err := s.push(ctx, branch); err != nil {
				return res, err
			}
			res.Pushed = true
		}
	}
	return res, nil
}

// classify computes the divergence state. It runs strictly after the
// fetch in Sync; a classification from stale refs would be a correctness
// bug, not mere staleness.
func (s *RepoSync) classify(ctx context.Context, upstream string) (State, error) {
	dir := s.repo.Path

	local, err := s.git.HeadSHA(ctx, dir, "HEAD")
	if err != nil {
		return UpToDate, err
	}
	remote, err := s.git.HeadSHA(ctx, dir, upstream)
	if err != nil {
		return UpToDate, err
	}
	base, err := s.git.MergeBase(ctx, dir, local, remote)
	if err != nil {
		return UpToDate, err
	}
	return Classify(local, remote, base), nil
}

// rebase moves local work on top of the upstream. For a diverged
// repository a conflict aborts the rebase, leaves the working copy
// untouched, and escalates to manual intervention; the engine never
// auto-resolves or discards content.
func (s *RepoSync) rebase(ctx context.Context, state State, upstream string) error {
	if err := s.git.Rebase(ctx, s.repo.Path, upstream); err != nil {
		if state == Diverged {
			if abortErr := s.git.RebaseAbort(ctx, s.repo.Path); abortErr != nil {
				s.logf("repo=%s rebase abort also failed: %v", s.repo.Name, abortErr)
			}
			return fmt.Errorf("%s: %w", s.repo.Name, errdefs.ErrDivergedConflict)
		}
		return err
	}
	return nil
}

// push sends the branch to the counterpart remote. A rejection is
// retried with force-with-lease only when policy allows it and the
// branch is not protected; otherwise the rejection surfaces as a
// retryable error for the next cycle.
func (s *RepoSync) push(ctx context.Context, branch string) error {
	remote := personalRemote
	if s.repo.Relay != "" {
		remote = counterpartRemote
	}

	err := s.git.Push(ctx, s.repo.Path, remote, branch, false)
	if err == nil || !errors.Is(err, errdefs.ErrPushRejected) {
		return err
	}

	if !s.defaults.Push.AllowForceWithLease {
		return err
	}
	if policy.IsProtectedBranch(branch, s.repo.EffectiveProtectedBranches(s.defaults)) {
		return fmt.Errorf("%w: refusing force-with-lease push to protected branch %q on %s",
			errdefs.ErrPolicyViolation, branch, remote)
	}

	s.logf("repo=%s push rejected, retrying with --force-with-lease", s.repo.Name)
	return s.git.Push(ctx, s.repo.Path, remote, branch, true)
}

func (s *RepoSync) direction() string {
	return s.repo.EffectiveDirection(s.defaults)
}

// pushAllowed reports whether the effective direction permits outbound
// content. work-to-home repositories only ever receive.
func (s *RepoSync) pushAllowed() bool {
	return s.direction() != config.DirectionWorkToHome
}

func (s *RepoSync) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
