// Package secondary updates the companion component (reference: the
// NetBird UI installer) as a side effect of a successful primary
// upgrade. There is no aging here — latest wins — but the coordinator
// only acts when the primary's installed version actually changed this
// run, so a no-op run never triggers the heavyweight installer.
package secondary

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/httputil"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/logging"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/pkgsrc"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/statefile"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/version"
)

var log = logging.L("secondary")

const installTimeout = 600 * time.Second

// State records the last successfully installed secondary version.
// Written only after a verified successful install.
type State struct {
	LastInstalledVersion string    `json:"lastInstalledVersion"`
	InstalledAtUTC       time.Time `json:"installedAtUtc"`
}

// Store persists the secondary record between runs.
type Store interface {
	Load() (*State, error)
	Save(*State) error
}

// FileStore keeps the secondary record in a single JSON document.
type FileStore struct {
	Path string
}

// NewFileStore returns a store backed by the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load() (*State, error) {
	return statefile.Load[State](s.Path)
}

func (s *FileStore) Save(st *State) error {
	return statefile.Save(s.Path, st)
}

// Coordinator downloads and silently installs the secondary artifact.
type Coordinator struct {
	Name          string
	InstallerURL  string // optional %s is replaced with the target version
	InstallerArgs []string
	UIProcessName string

	Client *http.Client
	Exec   pkgsrc.ExecFunc
	Store  Store
	Clock  func() time.Time

	// ProcessRunning reports whether a process with the given image
	// name is live. Defaults to a gopsutil snapshot; injected in tests.
	ProcessRunning func(name string) bool
}

// MaybeUpdate applies the secondary update when the primary changed
// this run and a new secondary version is available. The stored state
// is only advanced after the installer reports success, so a failed
// install retries on the next qualifying run.
func (c *Coordinator) MaybeUpdate(ctx context.Context, installedBefore, installedAfter, latest *version.Ordinal, prev *State) (*State, error) {
	if installedAfter == nil || installedAfter.Equal(installedBefore) {
		log.Debug("primary unchanged this run, secondary untouched", "component", c.Name)
		return prev, nil
	}
	if latest == nil {
		log.Debug("no secondary version known, skipping", "component", c.Name)
		return prev, nil
	}

	if prev != nil {
		if last, err := version.Parse(prev.LastInstalledVersion); err == nil && last.Equal(latest) {
			log.Debug("secondary already current", "component", c.Name, logging.KeyVersion, latest)
			return prev, nil
		}
	}

	if c.uiRunning() {
		log.Warn("companion UI process is running; installer will restart it",
			"component", c.Name, "process", c.UIProcessName)
	}

	log.Info("installing secondary component", "component", c.Name, logging.KeyVersion, latest)

	if err := c.install(ctx, latest); err != nil {
		log.Warn("secondary install failed, state unchanged",
			"component", c.Name, logging.KeyError, err)
		return prev, err
	}

	next := &State{
		LastInstalledVersion: latest.String(),
		InstalledAtUTC:       c.Clock().UTC(),
	}
	if err := c.Store.Save(next); err != nil {
		// Best-effort: the install happened; next run may redo it.
		log.Warn("failed to persist secondary state", logging.KeyError, err)
	}
	return next, nil
}

func (c *Coordinator) install(ctx context.Context, target *version.Ordinal) error {
	url := c.InstallerURL
	if strings.Contains(url, "%s") {
		url = fmt.Sprintf(url, target.String())
	}

	pattern := c.Name + "-installer-*.exe"
	path, err := httputil.DownloadToTemp(ctx, c.Client, url, "", pattern, httputil.DefaultRetryConfig())
	if err != nil {
		return fmt.Errorf("fetch installer: %w", err)
	}
	defer os.Remove(path)

	_, stderr, exitCode, err := c.Exec(ctx, path, c.InstallerArgs, installTimeout)
	if err != nil {
		return fmt.Errorf("launch installer: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("installer exited %d: %s", exitCode, strings.TrimSpace(stderr))
	}
	return nil
}

func (c *Coordinator) uiRunning() bool {
	if c.UIProcessName == "" {
		return false
	}
	if c.ProcessRunning != nil {
		return c.ProcessRunning(c.UIProcessName)
	}
	return processRunning(c.UIProcessName)
}
