// Package bridge maintains the two-clone mirror for sealed repositories:
// a plaintext personal clone and an encryption-gated relay clone, kept
// consistent by copying policy-filtered trees between them.
//
// Tree mirroring replaces file contents wholesale rather than merging.
// When both sides changed in the same cycle the relay-to-personal step
// runs last and wins; the bridge logs a warning so operators know a
// manual reconciliation may be due. Relay content is encrypted at rest
// by the relay remote's own filter or hook, never by the bridge.
package bridge

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sealbridge/sealrepos/internal/config"
	"github.com/sealbridge/sealrepos/internal/engine"
	"github.com/sealbridge/sealrepos/internal/errdefs"
	"github.com/sealbridge/sealrepos/internal/fsutil"
	"github.com/sealbridge/sealrepos/internal/gitwrap"
	"github.com/sealbridge/sealrepos/internal/policy"
)

// Bridge mirrors one repository between its personal and relay remotes
// through two persistent local clones, created lazily on first use.
type Bridge struct {
	repo      config.Repo
	direction string
	matcher   *policy.Matcher
	git       *gitwrap.Runner
	logger    *log.Logger

	personalDir string
	relayDir    string
}

// New builds a Bridge. baseDir is the directory holding the working
// clones (normally <data dir>/bridge_clones).
func New(repo config.Repo, defaults config.Defaults, baseDir string, git *gitwrap.Runner, logger *log.Logger) (*Bridge, error) {
	pp := repo.EffectivePaths(defaults)
	matcher, err := policy.Compile(pp.Include, pp.Exclude)
	if err != nil {
		return nil, fmt.Errorf("repo %q path policy: %w", repo.Name, err)
	}

	return &Bridge{
		repo:        repo,
		direction:   repo.EffectiveDirection(defaults),
		matcher:     matcher,
		git:         git,
		logger:      logger,
		personalDir: filepath.Join(baseDir, repo.Name+"-personal"),
		relayDir:    filepath.Join(baseDir, repo.Name+"-relay"),
	}, nil
}

// Run executes one bridge cycle: fetch both clones, then mirror in
// whichever directions saw new content, honoring the repository's
// direction policy.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.ensureClones(ctx); err != nil {
		return err
	}

	if err := b.git.FetchAll(ctx, b.personalDir); err != nil {
		return err
	}
	if err := b.git.FetchAll(ctx, b.relayDir); err != nil {
		return err
	}

	personalNew, err := b.refresh(ctx, b.personalDir)
	if err != nil {
		return fmt.Errorf("refreshing personal clone: %w", err)
	}
	relayNew, err := b.refresh(ctx, b.relayDir)
	if err != nil {
		return fmt.Errorf("refreshing relay clone: %w", err)
	}

	// Bootstrap: when one side has history and the other is still
	// empty, the populated side is the mirror source even though its
	// clone is in step with its own remote.
	personalHas := b.hasCommits(ctx, b.personalDir)
	relayHas := b.hasCommits(ctx, b.relayDir)
	personalNew = personalNew || (personalHas && !relayHas)
	relayNew = relayNew || (relayHas && !personalHas)

	if personalNew && relayNew {
		b.logf("repo=%s WARNING: both sides changed this cycle; relay-to-personal mirrors last and wins, check for lost edits",
			b.repo.Name)
	}

	if personalNew && b.direction != config.DirectionWorkToHome {
		if err := b.mirror(ctx, b.personalDir, b.relayDir, "personal"); err != nil {
			return err
		}
	}
	if relayNew && b.direction != config.DirectionHomeToWork {
		if err := b.mirror(ctx, b.relayDir, b.personalDir, "relay"); err != nil {
			return err
		}
	}
	return nil
}

// ensureClones creates the two working clones on first use.
func (b *Bridge) ensureClones(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(b.personalDir), 0o755); err != nil {
		return fmt.Errorf("creating bridge clone dir: %w", err)
	}

	if _, err := os.Stat(b.personalDir); os.IsNotExist(err) {
		b.logf("repo=%s cloning personal side", b.repo.Name)
		if err := b.git.Clone(ctx, filepath.Dir(b.personalDir), b.repo.Personal, b.personalDir); err != nil {
			return err
		}
	}
	if _, err := os.Stat(b.relayDir); os.IsNotExist(err) {
		b.logf("repo=%s cloning relay side", b.repo.Name)
		if err := b.git.Clone(ctx, filepath.Dir(b.relayDir), b.repo.Relay, b.relayDir); err != nil {
			return err
		}
	}
	return nil
}

// refresh fast-forwards a clone onto its fetched upstream and reports
// whether the clone now carries content the other side has not seen:
// either the remote advanced (behind, rebase) or a commit from an
// earlier cycle is still waiting to be pushed (ahead).
func (b *Bridge) refresh(ctx context.Context, dir string) (bool, error) {
	branch, err := b.git.CurrentBranch(ctx, dir)
	if err != nil {
		return false, err
	}

	local, err := b.git.HeadSHA(ctx, dir, "HEAD")
	if err != nil {
		// Unborn branch: a fresh clone of an empty remote has nothing
		// to mirror yet.
		return false, nil
	}
	remote, err := b.git.HeadSHA(ctx, dir, "origin/"+branch)
	if err != nil {
		return false, nil
	}
	base, err := b.git.MergeBase(ctx, dir, local, remote)
	if err != nil {
		return false, err
	}

	switch engine.Classify(local, remote, base) {
	case engine.UpToDate:
		return false, nil
	case engine.Ahead:
		return true, nil
	default:
		// Behind or (abnormally) diverged: put local on top of the
		// remote. The bridge owns these clones, so divergence here
		// means a previous cycle died between commit and push.
		if err := b.git.Rebase(ctx, dir, "origin/"+branch); err != nil {
			return false, err
		}
		return true, nil
	}
}

// mirror copies src's filtered tree onto dst, commits if dst's working
// tree changed, and pushes dst when it is ahead of its remote.
func (b *Bridge) mirror(ctx context.Context, src, dst, from string) error {
	b.logf("repo=%s mirroring from %s side", b.repo.Name, from)

	if err := fsutil.MirrorTree(src, dst, b.matcher); err != nil {
		return err
	}

	clean, err := b.git.IsClean(ctx, dst)
	if err != nil {
		return err
	}
	if !clean {
		if err := b.git.AddAll(ctx, dst); err != nil {
			return err
		}
		msg := fmt.Sprintf("Automated sync from %s", from)
		if err := b.git.Commit(ctx, dst, msg); err != nil {
			return err
		}
	}

	branch, err := b.git.CurrentBranch(ctx, dst)
	if err != nil {
		return err
	}

	// Ahead check by SHA comparison: a first commit onto an empty
	// remote has no upstream ref yet and still needs the push.
	local, err := b.git.HeadSHA(ctx, dst, "HEAD")
	if err != nil {
		return nil // nothing ever committed on this side
	}
	remote, remoteErr := b.git.HeadSHA(ctx, dst, "origin/"+branch)
	if remoteErr == nil && local == remote {
		return nil
	}

	err = gitwrap.WithBackoff(ctx, 2, time.Second, func() error {
		return b.git.Push(ctx, dst, "origin", branch, false)
	})
	if err != nil {
		return fmt.Errorf("pushing %s clone: %w", from, err)
	}
	b.logf("repo=%s pushed %s-side mirror", b.repo.Name, from)
	return nil
}

func (b *Bridge) hasCommits(ctx context.Context, dir string) bool {
	_, err := b.git.HeadSHA(ctx, dir, "HEAD")
	return err == nil
}

func (b *Bridge) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Printf(format, args...)
	}
}

// Validate reports whether the repository is eligible for bridging:
// only sealed repositories with both remotes use the two-clone model.
func Validate(repo config.Repo) error {
	if repo.Mode != config.ModeSealed {
		return fmt.Errorf("%w: bridge only handles sealed repositories, %q is %q",
			errdefs.ErrPolicyViolation, repo.Name, repo.Mode)
	}
	if repo.Relay == "" {
		return fmt.Errorf("%w: repo %q has no relay remote", errdefs.ErrConfig, repo.Name)
	}
	return nil
}
