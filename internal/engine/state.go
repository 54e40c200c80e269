// Package engine implements the per-repository synchronization decision
// procedure: classify divergence from three SHAs, then execute the
// corrective actions the classification calls for.
package engine

// State classifies a branch against its upstream tracking ref. It is a
// pure function of current repository state, computed fresh after every
// fetch and never persisted.
type State int

const (
	// UpToDate means local and remote point at the same commit.
	UpToDate State = iota

	// Behind means the local branch has contributed nothing new since
	// the merge base; the remote advanced.
	Behind

	// Ahead means the remote is at the merge base; only local advanced.
	Ahead

	// Diverged means both sides hold commits the other lacks.
	Diverged
)

func (s State) String() string {
	switch s {
	case UpToDate:
		return "up-to-date"
	case Behind:
		return "behind"
	case Ahead:
		return "ahead"
	case Diverged:
		return "diverged"
	}
	return "unknown"
}

// Classify applies the standard three-way ahead/behind test to the
// local HEAD, remote tracking, and merge-base SHAs. SHA equality is
// exact-match, so ties are impossible.
func Classify(local, remote, base string) State {
	switch {
	case local == remote:
		return UpToDate
	case local == base:
		return Behind
	case remote == base:
		return Ahead
	default:
		return Diverged
	}
}

// Action is one step of a sync plan.
type Action int

const (
	// ActionRebase rebases the local branch onto its upstream.
	ActionRebase Action = iota

	// ActionScan runs the secret gate before anything leaves the
	// personal side.
	ActionScan

	// ActionPush pushes the local branch to the counterpart remote.
	ActionPush
)

func (a Action) String() string {
	switch a {
	case ActionRebase:
		return "rebase"
	case ActionScan:
		return "scan"
	case ActionPush:
		return "push"
	}
	return "unknown"
}

// Plan returns the ordered actions for a classification. This is the
// whole transition table:
//
//	up-to-date -> nothing
//	behind     -> rebase
//	ahead      -> scan, push
//	diverged   -> rebase, scan, push
//
// A diverged repository that rebases cleanly is ahead from the remote's
// perspective, hence the shared tail. A rebase failure aborts the plan
// before the scan and push run.
func Plan(s State) []Action {
	switch s {
	case Behind:
		return []Action{ActionRebase}
	case Ahead:
		return []Action{ActionScan, ActionPush}
	case Diverged:
		return []Action{ActionRebase, ActionScan, ActionPush}
	default:
		return nil
	}
}
