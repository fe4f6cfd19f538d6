// Package aging implements the staged-rollout gate: a candidate version
// must be observed, unchanged, in the package feed for a configured
// number of days before the upgrade is allowed to fire.
package aging

import (
	"time"

	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/pkgsrc"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/version"
)

// State is the persisted aging record for one target. firstSeenUtc is
// reset exactly when the observed candidate differs from the stored
// one; lastCheckUtc advances on every run.
type State struct {
	CandidateVersion string    `json:"candidateVersion"`
	FirstSeenUTC     time.Time `json:"firstSeenUtc"`
	LastCheckUTC     time.Time `json:"lastCheckUtc"`
}

// Action is what the engine tells the run to do.
type Action int

const (
	ActionSkip Action = iota
	ActionUpgrade
)

// Reason explains a Skip (or annotates an Upgrade).
type Reason string

const (
	ReasonNotInstalled   Reason = "not_installed"
	ReasonNoCandidate    Reason = "no_candidate"
	ReasonAgingReset     Reason = "aging_reset"
	ReasonTooYoung       Reason = "too_young"
	ReasonAlreadyCurrent Reason = "already_current"
	ReasonAged           Reason = "aged"
)

// Decision is the engine's verdict for one run.
type Decision struct {
	Action  Action
	Reason  Reason
	Target  *version.Ordinal // set when Action == ActionUpgrade
	AgeDays int              // whole days the candidate has been aging
}

// Decide maps the previous state and the current version fact to an
// action and the state to persist. It is a pure function: the clock is
// the caller's, and nothing is read or written here.
func Decide(prev *State, fact pkgsrc.VersionFact, now time.Time, delayDays int) (Decision, *State) {
	now = now.UTC()

	if fact.Installed == nil {
		return Decision{Action: ActionSkip, Reason: ReasonNotInstalled}, touched(prev, now)
	}
	if fact.Candidate == nil {
		return Decision{Action: ActionSkip, Reason: ReasonNoCandidate}, touched(prev, now)
	}

	// A malformed stored candidate is state loss: restart the window.
	var prevCandidate *version.Ordinal
	if prev != nil {
		if v, err := version.Parse(prev.CandidateVersion); err == nil {
			prevCandidate = v
		}
	}

	if prevCandidate == nil || !prevCandidate.Equal(fact.Candidate) {
		next := &State{
			CandidateVersion: fact.Candidate.String(),
			FirstSeenUTC:     now,
			LastCheckUTC:     now,
		}
		return Decision{Action: ActionSkip, Reason: ReasonAgingReset}, next
	}

	next := &State{
		CandidateVersion: prev.CandidateVersion,
		FirstSeenUTC:     prev.FirstSeenUTC,
		LastCheckUTC:     now,
	}

	ageDays := wholeDays(prev.FirstSeenUTC, now)

	switch {
	case ageDays < delayDays:
		return Decision{Action: ActionSkip, Reason: ReasonTooYoung, AgeDays: ageDays}, next
	case fact.Installed.AtLeast(fact.Candidate):
		return Decision{Action: ActionSkip, Reason: ReasonAlreadyCurrent, AgeDays: ageDays}, next
	default:
		return Decision{
			Action:  ActionUpgrade,
			Reason:  ReasonAged,
			Target:  fact.Candidate,
			AgeDays: ageDays,
		}, next
	}
}

// wholeDays is floor(hours(now-firstSeen)/24), clamped at zero to
// tolerate backward clock jumps.
func wholeDays(firstSeen, now time.Time) int {
	days := int(now.Sub(firstSeen).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// touched carries the previous state forward with only the check
// timestamp advanced. A nil previous state stays nil: there is nothing
// worth persisting about a target we could not observe.
func touched(prev *State, now time.Time) *State {
	if prev == nil {
		return nil
	}
	next := *prev
	next.LastCheckUTC = now
	return &next
}
