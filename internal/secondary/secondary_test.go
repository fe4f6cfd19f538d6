package secondary

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/version"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	state *State
	saves int
	err   error
}

func (m *memStore) Load() (*State, error) { return m.state, nil }

func (m *memStore) Save(st *State) error {
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.state = st
	return nil
}

// fakeInstaller records installer launches and returns a scripted exit
// code.
type fakeInstaller struct {
	exit  int
	calls int
	args  []string
}

func (f *fakeInstaller) exec(ctx context.Context, name string, args []string, timeout time.Duration) (string, string, int, error) {
	f.calls++
	f.args = args
	return "", "", f.exit, nil
}

func newCoordinator(t *testing.T, url string, store *memStore, inst *fakeInstaller) *Coordinator {
	t.Helper()
	return &Coordinator{
		Name:          "netbird-ui",
		InstallerURL:  url,
		InstallerArgs: []string{"/S"},
		UIProcessName: "netbird-ui.exe",

		Client:         &http.Client{Timeout: 5 * time.Second},
		Exec:           inst.exec,
		Store:          store,
		Clock:          func() time.Time { return testNow },
		ProcessRunning: func(string) bool { return false },
	}
}

func installerServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("MZ fake installer payload"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMaybeUpdateInstalls(t *testing.T) {
	srv := installerServer(t)
	store := &memStore{}
	inst := &fakeInstaller{}
	c := newCoordinator(t, srv.URL+"/installer-%s.exe", store, inst)

	before := version.MustParse("0.65.1")
	after := version.MustParse("0.65.2")

	next, err := c.MaybeUpdate(context.Background(), before, after, after, nil)
	if err != nil {
		t.Fatalf("MaybeUpdate: %v", err)
	}
	if inst.calls != 1 {
		t.Fatalf("installer calls = %d, want 1", inst.calls)
	}
	if len(inst.args) != 1 || inst.args[0] != "/S" {
		t.Errorf("installer args = %v", inst.args)
	}
	if next == nil || next.LastInstalledVersion != "0.65.2" {
		t.Fatalf("next state = %+v", next)
	}
	if !next.InstalledAtUTC.Equal(testNow) {
		t.Errorf("InstalledAtUTC = %v", next.InstalledAtUTC)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
}

func TestMaybeUpdateSkipsWhenPrimaryUnchanged(t *testing.T) {
	store := &memStore{}
	inst := &fakeInstaller{}
	c := newCoordinator(t, "http://unused.invalid/%s", store, inst)

	v := version.MustParse("0.65.2")

	next, err := c.MaybeUpdate(context.Background(), v, v, v, nil)
	if err != nil {
		t.Fatalf("MaybeUpdate: %v", err)
	}
	if next != nil {
		t.Errorf("next = %+v, want nil passthrough", next)
	}
	if inst.calls != 0 {
		t.Errorf("installer ran on an unchanged primary")
	}
}

func TestMaybeUpdateSkipsWhenPrimaryAbsent(t *testing.T) {
	store := &memStore{}
	inst := &fakeInstaller{}
	c := newCoordinator(t, "http://unused.invalid/%s", store, inst)

	before := version.MustParse("0.65.1")

	if _, err := c.MaybeUpdate(context.Background(), before, nil, before, nil); err != nil {
		t.Fatalf("MaybeUpdate: %v", err)
	}
	if inst.calls != 0 {
		t.Errorf("installer ran without a post-upgrade version")
	}
}

func TestMaybeUpdateSkipsWhenAlreadyCurrent(t *testing.T) {
	store := &memStore{}
	inst := &fakeInstaller{}
	c := newCoordinator(t, "http://unused.invalid/%s", store, inst)

	before := version.MustParse("0.65.1")
	after := version.MustParse("0.65.2")
	prev := &State{LastInstalledVersion: "0.65.2", InstalledAtUTC: testNow.Add(-24 * time.Hour)}

	next, err := c.MaybeUpdate(context.Background(), before, after, after, prev)
	if err != nil {
		t.Fatalf("MaybeUpdate: %v", err)
	}
	if next != prev {
		t.Errorf("state advanced without an install")
	}
	if inst.calls != 0 {
		t.Errorf("installer ran while already current")
	}
}

func TestMaybeUpdateFailedInstallKeepsState(t *testing.T) {
	srv := installerServer(t)
	store := &memStore{}
	inst := &fakeInstaller{exit: 2}
	c := newCoordinator(t, srv.URL+"/installer.exe", store, inst)

	before := version.MustParse("0.65.1")
	after := version.MustParse("0.65.2")
	prev := &State{LastInstalledVersion: "0.65.0"}

	next, err := c.MaybeUpdate(context.Background(), before, after, after, prev)
	if err == nil {
		t.Fatal("want install failure")
	}
	if next != prev {
		t.Errorf("state advanced after a failed install: %+v", next)
	}
	if store.saves != 0 {
		t.Errorf("saves = %d, want 0", store.saves)
	}
}

func TestMaybeUpdateDownloadFailureKeepsState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	store := &memStore{}
	inst := &fakeInstaller{}
	c := newCoordinator(t, srv.URL+"/installer.exe", store, inst)

	before := version.MustParse("0.65.1")
	after := version.MustParse("0.65.2")

	if _, err := c.MaybeUpdate(context.Background(), before, after, after, nil); err == nil {
		t.Fatal("want download failure")
	}
	if inst.calls != 0 {
		t.Errorf("installer ran after a failed download")
	}
}

func TestMaybeUpdateFreshInstall(t *testing.T) {
	// Primary going from absent to installed counts as a change.
	srv := installerServer(t)
	store := &memStore{}
	inst := &fakeInstaller{}
	c := newCoordinator(t, srv.URL+"/installer.exe", store, inst)

	after := version.MustParse("0.65.2")

	next, err := c.MaybeUpdate(context.Background(), nil, after, after, nil)
	if err != nil {
		t.Fatalf("MaybeUpdate: %v", err)
	}
	if next == nil || next.LastInstalledVersion != "0.65.2" {
		t.Fatalf("next = %+v", next)
	}
}

func TestMaybeUpdateSaveFailureIsTolerated(t *testing.T) {
	srv := installerServer(t)
	store := &memStore{err: errors.New("disk full")}
	inst := &fakeInstaller{}
	c := newCoordinator(t, srv.URL+"/installer.exe", store, inst)

	before := version.MustParse("0.65.1")
	after := version.MustParse("0.65.2")

	next, err := c.MaybeUpdate(context.Background(), before, after, after, nil)
	if err != nil {
		t.Fatalf("a persist failure must not fail the update: %v", err)
	}
	if next == nil || next.LastInstalledVersion != "0.65.2" {
		t.Fatalf("next = %+v", next)
	}
}
