package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/sealbridge/sealrepos/internal/config"
	"github.com/sealbridge/sealrepos/internal/errdefs"
	"github.com/sealbridge/sealrepos/internal/scan"
)

// fakeGit records git operations and serves canned SHAs.
type fakeGit struct {
	calls []string

	clean     bool
	local     string
	remote    string
	base      string
	rebaseErr error
	pushErr   error // first push only
	pushes    int
}

func (f *fakeGit) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeGit) count(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *fakeGit) FetchAll(ctx context.Context, dir string) error {
	f.record("fetch")
	return nil
}

func (f *fakeGit) CurrentBranch(ctx context.Context, dir string) (string, error) {
	return "main", nil
}

func (f *fakeGit) HeadSHA(ctx context.Context, dir, ref string) (string, error) {
	if ref == "HEAD" {
		return f.local, nil
	}
	return f.remote, nil
}

func (f *fakeGit) MergeBase(ctx context.Context, dir, shaA, shaB string) (string, error) {
	return f.base, nil
}

func (f *fakeGit) Rebase(ctx context.Context, dir, upstream string) error {
	f.record("rebase %s", upstream)
	if f.rebaseErr != nil {
		return f.rebaseErr
	}
	// A clean rebase puts local on top of the remote tip.
	f.local = "rebased-" + f.remote
	return nil
}

func (f *fakeGit) RebaseAbort(ctx context.Context, dir string) error {
	f.record("rebase-abort")
	return nil
}

func (f *fakeGit) Push(ctx context.Context, dir, remote, branch string, forceWithLease bool) error {
	f.record("push remote=%s branch=%s lease=%v", remote, branch, forceWithLease)
	f.pushes++
	if f.pushes == 1 && f.pushErr != nil {
		return f.pushErr
	}
	return nil
}

func (f *fakeGit) IsClean(ctx context.Context, dir string) (bool, error) {
	f.record("status")
	return f.clean, nil
}

// findingScanner always reports one finding.
type findingScanner struct{}

func (findingScanner) Scan(ctx context.Context, repoPath string) error {
	return &errdefs.SecretError{
		Tool:     "gitleaks",
		Findings: []errdefs.Finding{{Description: "Generic API Key", File: "config.yaml", Line: 10}},
	}
}

func testRepo() config.Repo {
	return config.Repo{
		Name:     "notes",
		Path:     "/home/u/notes",
		Personal: "git@personal:u/notes.git",
		Relay:    "git@relay:u/notes.git",
		Mode:     config.ModePlain,
	}
}

func testDefaults() config.Defaults {
	return config.Defaults{
		ProtectedBranches: []string{"main", "master"},
		Direction:         config.DirectionBidirectional,
	}
}

func newSync(git *fakeGit, repo config.Repo) *RepoSync {
	return New(repo, testDefaults(), git, scan.Noop{}, nil, nil)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name                string
		local, remote, base string
		want                State
	}{
		{"identical", "aaa", "aaa", "aaa", UpToDate},
		{"equal tips distinct base", "aaa", "aaa", "bbb", UpToDate},
		{"behind", "base", "tip", "base", Behind},
		{"ahead", "tip", "base", "base", Ahead},
		{"diverged", "left", "right", "base", Diverged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.local, tt.remote, tt.base); got != tt.want {
				t.Errorf("Classify(%s, %s, %s) = %s, want %s",
					tt.local, tt.remote, tt.base, got, tt.want)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	tests := []struct {
		state State
		want  []Action
	}{
		{UpToDate, nil},
		{Behind, []Action{ActionRebase}},
		{Ahead, []Action{ActionScan, ActionPush}},
		{Diverged, []Action{ActionRebase, ActionScan, ActionPush}},
	}

	for _, tt := range tests {
		if got := Plan(tt.state); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Plan(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestSyncUpToDate(t *testing.T) {
	git := &fakeGit{clean: true, local: "aaa", remote: "aaa", base: "aaa"}
	res, err := newSync(git, testRepo()).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if res.State != UpToDate || res.Rebased || res.Pushed {
		t.Errorf("result = %+v, want up-to-date with no actions", res)
	}
}

func TestSyncBehindNeverPushes(t *testing.T) {
	git := &fakeGit{clean: true, local: "base", remote: "tip", base: "base"}
	res, err := newSync(git, testRepo()).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if !res.Rebased {
		t.Error("behind repo should rebase")
	}
	if git.count("push") != 0 {
		t.Errorf("behind repo pushed %d times, want 0", git.count("push"))
	}
}

func TestSyncAheadNeverRebases(t *testing.T) {
	git := &fakeGit{clean: true, local: "tip", remote: "base", base: "base"}
	res, err := newSync(git, testRepo()).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if !res.Pushed {
		t.Error("ahead repo should push")
	}
	if git.count("rebase") != 0 {
		t.Errorf("ahead repo rebased %d times, want 0", git.count("rebase"))
	}
	// Relay-configured repos push to the counterpart remote.
	if git.count("push remote=relay") != 1 {
		t.Errorf("pushes to relay = %d, want 1: %v", git.count("push remote=relay"), git.calls)
	}
}

func TestSyncDivergedRebaseThenPush(t *testing.T) {
	git := &fakeGit{clean: true, local: "left", remote: "right", base: "base"}
	res, err := newSync(git, testRepo()).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if res.State != Diverged || !res.Rebased || !res.Pushed {
		t.Errorf("result = %+v, want diverged with rebase and push", res)
	}

	// Exactly one rebase followed by exactly one push, in that order.
	var ops []string
	for _, c := range git.calls {
		switch {
		case strings.HasPrefix(c, "rebase "):
			ops = append(ops, "rebase")
		case strings.HasPrefix(c, "push"):
			ops = append(ops, "push")
		}
	}
	if !reflect.DeepEqual(ops, []string{"rebase", "push"}) {
		t.Errorf("operation order = %v, want [rebase push] (calls: %v)", ops, git.calls)
	}
}

func TestSyncDivergedConflictAborts(t *testing.T) {
	git := &fakeGit{
		clean: true, local: "left", remote: "right", base: "base",
		rebaseErr: fmt.Errorf("%w: conflict in notes.md", errdefs.ErrGit),
	}

	_, err := newSync(git, testRepo()).Sync(context.Background())
	if !errors.Is(err, errdefs.ErrDivergedConflict) {
		t.Fatalf("Sync() error = %v, want ErrDivergedConflict", err)
	}
	if git.count("rebase-abort") != 1 {
		t.Errorf("rebase aborts = %d, want 1", git.count("rebase-abort"))
	}
	if git.count("push") != 0 {
		t.Errorf("pushes after conflict = %d, want 0", git.count("push"))
	}
	// Conflicted divergence is a policy matter for an operator, not a tool crash.
	if !errors.Is(err, errdefs.ErrPolicyViolation) {
		t.Error("conflict should classify as policy violation")
	}
}

func TestSyncDirtyTreeAbortsBeforeFetch(t *testing.T) {
	git := &fakeGit{clean: false}
	_, err := newSync(git, testRepo()).Sync(context.Background())
	if !errors.Is(err, errdefs.ErrPolicyViolation) {
		t.Fatalf("Sync() error = %v, want policy violation", err)
	}
	if git.count("fetch") != 0 {
		t.Errorf("fetches on dirty tree = %d, want 0", git.count("fetch"))
	}
}

func TestSyncSecretGateBlocksPush(t *testing.T) {
	git := &fakeGit{clean: true, local: "tip", remote: "base", base: "base"}
	s := New(testRepo(), testDefaults(), git, findingScanner{}, nil, nil)

	_, err := s.Sync(context.Background())

	var se *errdefs.SecretError
	if !errors.As(err, &se) {
		t.Fatalf("Sync() error = %v, want SecretError", err)
	}
	if len(se.Findings) != 1 || se.Findings[0].File != "config.yaml" || se.Findings[0].Line != 10 {
		t.Errorf("findings = %+v, want original file/line preserved", se.Findings)
	}
	if git.count("push") != 0 {
		t.Errorf("pushes after findings = %d, want 0", git.count("push"))
	}
}

func TestSyncPushRejectedIsRetryable(t *testing.T) {
	git := &fakeGit{
		clean: true, local: "tip", remote: "base", base: "base",
		pushErr: errdefs.ErrPushRejected,
	}

	_, err := newSync(git, testRepo()).Sync(context.Background())
	if !errors.Is(err, errdefs.ErrPushRejected) {
		t.Fatalf("Sync() error = %v, want ErrPushRejected", err)
	}
	if !errdefs.IsRetryable(err) {
		t.Error("push rejection should be retryable, not a crash")
	}
}

func TestSyncForceWithLeaseProtectedBranch(t *testing.T) {
	git := &fakeGit{
		clean: true, local: "tip", remote: "base", base: "base",
		pushErr: errdefs.ErrPushRejected,
	}
	defaults := testDefaults()
	defaults.Push.AllowForceWithLease = true

	s := New(testRepo(), defaults, git, scan.Noop{}, nil, nil)
	_, err := s.Sync(context.Background())

	// main is protected: the lease retry must be refused.
	if !errors.Is(err, errdefs.ErrPolicyViolation) {
		t.Fatalf("Sync() error = %v, want policy violation", err)
	}
	if git.count("push remote=relay branch=main lease=true") != 0 {
		t.Error("forced push to protected branch must not happen")
	}
}

func TestSyncForceWithLeaseUnprotectedBranch(t *testing.T) {
	git := &fakeGit{
		clean: true, local: "tip", remote: "base", base: "base",
		pushErr: errdefs.ErrPushRejected,
	}
	defaults := testDefaults()
	defaults.Push.AllowForceWithLease = true
	repo := testRepo()
	repo.ProtectedBranches = []string{"release"} // main is not protected here

	s := New(repo, defaults, git, scan.Noop{}, nil, nil)
	_, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if git.count("push remote=relay branch=main lease=true") != 1 {
		t.Errorf("lease pushes = %d, want 1: %v",
			git.count("push remote=relay branch=main lease=true"), git.calls)
	}
}

func TestSyncInboundOnlyDirectionSkipsPush(t *testing.T) {
	git := &fakeGit{clean: true, local: "tip", remote: "base", base: "base"}
	repo := testRepo()
	repo.Direction = config.DirectionWorkToHome

	res, err := newSync(git, repo).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if res.Pushed || git.count("push") != 0 {
		t.Error("work-to-home repo must never push")
	}
}
