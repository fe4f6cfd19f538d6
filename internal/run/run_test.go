package run

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/aging"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/secondary"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/selfupdate"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/upgrade"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/version"
)

var testNow = time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)

// fakeSource scripts the package source for a whole run. Installed is
// queried once to observe and, after an upgrade, once more to confirm.
type fakeSource struct {
	installed      *version.Ordinal
	installedErr   error
	candidate      *version.Ordinal
	candidateErr   error
	afterUpgrade   *version.Ordinal
	upgradeExit    int
	upgradeErr     error
	upgradeCalls   int
	installedCalls int
}

func (f *fakeSource) Installed(ctx context.Context, id string) (*version.Ordinal, error) {
	f.installedCalls++
	if f.installedErr != nil {
		return nil, f.installedErr
	}
	if f.upgradeCalls > 0 && f.afterUpgrade != nil {
		return f.afterUpgrade, nil
	}
	return f.installed, nil
}

func (f *fakeSource) Candidate(ctx context.Context, id string) (*version.Ordinal, error) {
	return f.candidate, f.candidateErr
}

func (f *fakeSource) Upgrade(ctx context.Context, id string) (int, error) {
	f.upgradeCalls++
	return f.upgradeExit, f.upgradeErr
}

type memAgingStore struct {
	state *aging.State
	saves int
}

func (m *memAgingStore) Load() (*aging.State, error) { return m.state, nil }

func (m *memAgingStore) Save(st *aging.State) error {
	m.state = st
	m.saves++
	return nil
}

type memSecondaryStore struct {
	state *secondary.State
}

func (m *memSecondaryStore) Load() (*secondary.State, error) { return m.state, nil }

func (m *memSecondaryStore) Save(st *secondary.State) error {
	m.state = st
	return nil
}

// secondaryFixture is a coordinator whose installer download and launch
// both succeed, with the launch count observable.
type secondaryFixture struct {
	coordinator *secondary.Coordinator
	store       *memSecondaryStore
	installs    *int
}

func newSecondaryFixture(t *testing.T) secondaryFixture {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("installer payload"))
	}))
	t.Cleanup(srv.Close)

	installs := 0
	store := &memSecondaryStore{}
	return secondaryFixture{
		coordinator: &secondary.Coordinator{
			Name:          "netbird-ui",
			InstallerURL:  srv.URL + "/installer.exe",
			InstallerArgs: []string{"/S"},

			Client: srv.Client(),
			Exec: func(ctx context.Context, name string, args []string, timeout time.Duration) (string, string, int, error) {
				installs++
				return "", "", 0, nil
			},
			Store:          store,
			Clock:          func() time.Time { return testNow },
			ProcessRunning: func(string) bool { return false },
		},
		store:    store,
		installs: &installs,
	}
}

func newRunner(src *fakeSource, store *memAgingStore) *Runner {
	return &Runner{
		PackageID:  "NetBird.NetBird",
		DelayDays:  7,
		Source:     src,
		Executor:   &upgrade.Executor{Source: src, PackageID: "NetBird.NetBird"},
		AgingStore: store,
		Clock:      func() time.Time { return testNow },
		Sleep:      func(time.Duration) {},
	}
}

func agedState(candidate string, days int) *aging.State {
	return &aging.State{
		CandidateVersion: candidate,
		FirstSeenUTC:     testNow.Add(-time.Duration(days) * 24 * time.Hour),
		LastCheckUTC:     testNow.Add(-24 * time.Hour),
	}
}

func TestRunUpgradesAgedCandidate(t *testing.T) {
	src := &fakeSource{
		installed:    version.MustParse("0.65.1"),
		candidate:    version.MustParse("0.65.2"),
		afterUpgrade: version.MustParse("0.65.2"),
	}
	store := &memAgingStore{state: agedState("0.65.2", 10)}
	sec := newSecondaryFixture(t)

	r := newRunner(src, store)
	r.Secondary = sec.coordinator

	report := r.Run(context.Background())
	if report.ExitCode != 0 {
		t.Fatalf("ExitCode = %d", report.ExitCode)
	}
	if report.Decision.Action != aging.ActionUpgrade {
		t.Fatalf("action = %v, reason = %s", report.Decision.Action, report.Decision.Reason)
	}
	if src.upgradeCalls != 1 {
		t.Errorf("upgradeCalls = %d", src.upgradeCalls)
	}
	if !report.PrimaryChanged {
		t.Error("PrimaryChanged = false after a successful upgrade")
	}
	if report.InstalledAfter.String() != "0.65.2" {
		t.Errorf("InstalledAfter = %v", report.InstalledAfter)
	}
	if *sec.installs != 1 {
		t.Errorf("secondary installs = %d, want 1", *sec.installs)
	}
	if sec.store.state == nil || sec.store.state.LastInstalledVersion != "0.65.2" {
		t.Errorf("secondary state = %+v", sec.store.state)
	}
	if store.saves != 1 {
		t.Errorf("aging saves = %d", store.saves)
	}
}

func TestRunYoungCandidateSkips(t *testing.T) {
	src := &fakeSource{
		installed: version.MustParse("0.65.1"),
		candidate: version.MustParse("0.65.2"),
	}
	store := &memAgingStore{state: agedState("0.65.2", 3)}
	sec := newSecondaryFixture(t)

	r := newRunner(src, store)
	r.Secondary = sec.coordinator

	report := r.Run(context.Background())
	if report.ExitCode != 0 {
		t.Fatalf("ExitCode = %d", report.ExitCode)
	}
	if report.Decision.Reason != aging.ReasonTooYoung {
		t.Fatalf("reason = %s", report.Decision.Reason)
	}
	if src.upgradeCalls != 0 {
		t.Errorf("upgrade ran on a young candidate")
	}
	if report.PrimaryChanged {
		t.Error("PrimaryChanged = true without an upgrade")
	}
	if *sec.installs != 0 {
		t.Errorf("secondary ran without a primary change")
	}
	// The aging state still advances its check timestamp.
	if !store.state.LastCheckUTC.Equal(testNow) {
		t.Errorf("LastCheckUTC = %v", store.state.LastCheckUTC)
	}
}

func TestRunUpgradeFailurePropagatesExitCode(t *testing.T) {
	src := &fakeSource{
		installed:    version.MustParse("0.65.1"),
		candidate:    version.MustParse("0.65.2"),
		afterUpgrade: version.MustParse("0.65.1"),
		upgradeExit:  1603,
		upgradeErr:   errors.New("installer failed"),
	}
	store := &memAgingStore{state: agedState("0.65.2", 10)}
	sec := newSecondaryFixture(t)

	r := newRunner(src, store)
	r.Secondary = sec.coordinator

	report := r.Run(context.Background())
	if report.ExitCode != 1603 {
		t.Fatalf("ExitCode = %d, want 1603", report.ExitCode)
	}
	if report.PrimaryChanged {
		t.Error("PrimaryChanged = true after a failed upgrade")
	}
	if *sec.installs != 0 {
		t.Errorf("secondary ran after a failed upgrade")
	}
}

func TestRunUpgradeFailureZeroExitBecomesOne(t *testing.T) {
	src := &fakeSource{
		installed:   version.MustParse("0.65.1"),
		candidate:   version.MustParse("0.65.2"),
		upgradeErr:  errors.New("winget could not be launched"),
		upgradeExit: 0,
	}
	store := &memAgingStore{state: agedState("0.65.2", 10)}

	report := newRunner(src, store).Run(context.Background())
	if report.ExitCode != 1 {
		t.Fatalf("ExitCode = %d, want 1", report.ExitCode)
	}
}

func TestRunLockContentionSkips(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "run.lock")
	if err := os.WriteFile(lockPath, []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := &fakeSource{
		installed: version.MustParse("0.65.1"),
		candidate: version.MustParse("0.65.2"),
	}
	store := &memAgingStore{state: agedState("0.65.2", 10)}

	r := newRunner(src, store)
	r.LockPath = lockPath

	report := r.Run(context.Background())
	if report.ExitCode != 0 {
		t.Fatalf("ExitCode = %d", report.ExitCode)
	}
	if src.installedCalls != 0 {
		t.Errorf("source queried while the lock was held")
	}
	// The foreign lock survives the skipped run.
	if _, err := os.Stat(lockPath); err != nil {
		t.Errorf("lock file removed: %v", err)
	}
}

func TestRunStaleLockIsStolen(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "run.lock")
	if err := os.WriteFile(lockPath, []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-12 * time.Hour)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatal(err)
	}

	src := &fakeSource{
		installed: version.MustParse("0.65.2"),
		candidate: version.MustParse("0.65.2"),
	}
	store := &memAgingStore{}

	r := newRunner(src, store)
	r.LockPath = lockPath

	report := r.Run(context.Background())
	if src.installedCalls == 0 {
		t.Fatal("run did not proceed past a stale lock")
	}
	if report.Decision.Reason != aging.ReasonAgingReset {
		t.Errorf("reason = %s", report.Decision.Reason)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("lock not released: %v", err)
	}
}

func TestRunInstalledLookupFailureEndsRun(t *testing.T) {
	src := &fakeSource{installedErr: errors.New("winget unavailable")}
	store := &memAgingStore{state: agedState("0.65.2", 10)}

	report := newRunner(src, store).Run(context.Background())
	if report.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0 for an observation failure", report.ExitCode)
	}
	if src.upgradeCalls != 0 {
		t.Errorf("upgrade ran without an observation")
	}
	if store.saves != 0 {
		t.Errorf("aging state written without an observation")
	}
}

func TestRunCandidateLookupFailureStillTouchesState(t *testing.T) {
	src := &fakeSource{
		installed:    version.MustParse("0.65.1"),
		candidateErr: errors.New("feed timeout"),
	}
	store := &memAgingStore{state: agedState("0.65.2", 3)}

	report := newRunner(src, store).Run(context.Background())
	if report.Decision.Reason != aging.ReasonNoCandidate {
		t.Fatalf("reason = %s", report.Decision.Reason)
	}
	if store.state.CandidateVersion != "0.65.2" {
		t.Errorf("tracked candidate lost: %+v", store.state)
	}
	if !store.state.LastCheckUTC.Equal(testNow) {
		t.Errorf("LastCheckUTC = %v", store.state.LastCheckUTC)
	}
}

func TestRunJitterSleepBounded(t *testing.T) {
	src := &fakeSource{
		installed: version.MustParse("0.65.2"),
		candidate: version.MustParse("0.65.2"),
	}
	store := &memAgingStore{}

	var slept time.Duration
	r := newRunner(src, store)
	r.JitterMax = 300 * time.Second
	r.Sleep = func(d time.Duration) { slept = d }

	r.Run(context.Background())
	if slept < 0 || slept >= 300*time.Second {
		t.Errorf("jitter sleep = %v, want [0, 300s)", slept)
	}
}

func TestRunSelfUpdatePhaseReported(t *testing.T) {
	src := &fakeSource{
		installed: version.MustParse("0.65.2"),
		candidate: version.MustParse("0.65.2"),
	}
	store := &memAgingStore{}

	r := newRunner(src, store)
	r.SelfUpdater = &selfupdate.Coordinator{
		LocalVersion: "dev",
		Registry:     failingRegistry{},
	}

	report := r.Run(context.Background())
	if report.SelfUpdate != selfupdate.OutcomeCheckedUpToDate {
		t.Errorf("SelfUpdate = %s", report.SelfUpdate)
	}
}

type failingRegistry struct{}

func (failingRegistry) LatestRelease(ctx context.Context) (string, error) {
	return "", errors.New("not reached for dev builds")
}
