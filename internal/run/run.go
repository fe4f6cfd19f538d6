// Package run sequences one invocation of the agent: self-update,
// aging-gated primary upgrade, then the conditional secondary update.
// The outcome of each phase is threaded through an explicit Report
// value rather than shared flags, and only a failed primary upgrade
// command can make the run exit non-zero.
package run

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/aging"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/logging"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/pkgsrc"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/secondary"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/selfupdate"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/upgrade"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/version"
)

var log = logging.L("run")

// Runner wires the phases of one run together. Collaborators are
// injected; nil SelfUpdater or Secondary disables that phase.
type Runner struct {
	PackageID  string
	DelayDays  int
	Source     pkgsrc.Source
	Executor   *upgrade.Executor
	AgingStore aging.Store

	SelfUpdater *selfupdate.Coordinator
	Secondary   *secondary.Coordinator

	LockPath  string
	JitterMax time.Duration

	Clock func() time.Time
	Sleep func(time.Duration)
}

// Report is the run's explicit outcome value.
type Report struct {
	SelfUpdate      selfupdate.Outcome
	Decision        aging.Decision
	InstalledBefore *version.Ordinal
	InstalledAfter  *version.Ordinal
	PrimaryChanged  bool
	ExitCode        int
}

// Run executes one full invocation and returns its report. The only
// path to a non-zero exit code is a failed primary upgrade command.
func (r *Runner) Run(ctx context.Context) Report {
	report := Report{SelfUpdate: selfupdate.OutcomeUnknown}

	r.jitterSleep()

	if r.LockPath != "" {
		release, err := acquireLock(r.LockPath)
		if err != nil {
			log.Warn("skipping run, could not take run lock", logging.KeyError, err)
			return report
		}
		defer release()
	}

	if r.SelfUpdater != nil {
		report.SelfUpdate = r.SelfUpdater.MaybeSelfUpdate(ctx)
	}

	now := r.clock()

	fact, ok := r.observe(ctx)
	if !ok {
		return report
	}
	report.InstalledBefore = fact.Installed
	report.InstalledAfter = fact.Installed

	prev, err := r.AgingStore.Load()
	if err != nil {
		log.Warn("aging state unavailable, treating as first sight", logging.KeyError, err)
		prev = nil
	}

	decision, next := aging.Decide(prev, fact, now, r.DelayDays)
	report.Decision = decision
	log.Info("aging decision",
		logging.KeyPackage, r.PackageID,
		"action", actionName(decision.Action),
		"reason", string(decision.Reason),
		"ageDays", decision.AgeDays,
		"installed", fact.Installed,
		"candidate", fact.Candidate,
	)

	if decision.Action == aging.ActionUpgrade {
		result := r.Executor.Apply(ctx)
		if result.InstalledAfter != nil {
			report.InstalledAfter = result.InstalledAfter
		}
		if result.Err != nil {
			report.ExitCode = result.ExitCode
			if report.ExitCode == 0 {
				report.ExitCode = 1
			}
		}
	}

	r.saveAging(next)

	report.PrimaryChanged = report.InstalledAfter != nil &&
		!report.InstalledAfter.Equal(report.InstalledBefore)

	r.maybeSecondary(ctx, &report)

	return report
}

// observe takes the run's immutable version snapshot. A failed
// installed-version lookup ends the primary flow for this run; a failed
// candidate lookup flows through as an absent candidate so the decision
// engine can still advance the check timestamp.
func (r *Runner) observe(ctx context.Context) (pkgsrc.VersionFact, bool) {
	installed, err := r.Source.Installed(ctx, r.PackageID)
	if err != nil {
		log.Warn("installed version lookup failed, ending run", logging.KeyPackage, r.PackageID, logging.KeyError, err)
		return pkgsrc.VersionFact{}, false
	}

	candidate, err := r.Source.Candidate(ctx, r.PackageID)
	if err != nil {
		log.Warn("candidate version lookup failed", logging.KeyPackage, r.PackageID, logging.KeyError, err)
		candidate = nil
	}

	return pkgsrc.VersionFact{Installed: installed, Candidate: candidate}, true
}

func (r *Runner) saveAging(next *aging.State) {
	if next == nil {
		return
	}
	if err := r.AgingStore.Save(next); err != nil {
		// Best-effort: a lost write costs at most one extra aging day.
		log.Warn("failed to persist aging state", logging.KeyError, err)
	}
}

func (r *Runner) maybeSecondary(ctx context.Context, report *Report) {
	if r.Secondary == nil {
		return
	}

	prev, err := r.Secondary.Store.Load()
	if err != nil {
		log.Warn("secondary state unavailable, treating as never installed", logging.KeyError, err)
		prev = nil
	}

	// The companion artifact is versioned in lockstep with the primary:
	// the freshly installed primary version is the secondary target.
	if _, err := r.Secondary.MaybeUpdate(ctx, report.InstalledBefore, report.InstalledAfter, report.InstalledAfter, prev); err != nil {
		log.Warn("secondary update skipped for this run", logging.KeyError, err)
	}
}

func (r *Runner) jitterSleep() {
	if r.JitterMax <= 0 {
		return
	}
	d := rand.N(r.JitterMax)
	log.Debug("desynchronization sleep", "duration", d)
	r.sleep(d)
}

func (r *Runner) clock() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

func (r *Runner) sleep(d time.Duration) {
	if r.Sleep != nil {
		r.Sleep(d)
		return
	}
	time.Sleep(d)
}

func actionName(a aging.Action) string {
	if a == aging.ActionUpgrade {
		return "upgrade"
	}
	return "skip"
}
