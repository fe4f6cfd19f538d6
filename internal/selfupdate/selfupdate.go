// Package selfupdate keeps the agent's own artifact current against a
// remote release registry. Two mutually exclusive strategies: if the
// agent runs from a git checkout, fast-forward it; otherwise fetch the
// release artifact and swap it into place. Either way the running
// process keeps executing the old code — the new copy takes effect on
// the next invocation. Self-update failure never aborts the run.
package selfupdate

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/logging"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/pkgsrc"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/version"
)

var log = logging.L("selfupdate")

const gitPullTimeout = 120 * time.Second

// Outcome is the terminal state of one self-update attempt. No retries
// happen within a run.
type Outcome string

const (
	OutcomeUnknown            Outcome = "unknown"
	OutcomeCheckedUpToDate    Outcome = "checked_up_to_date"
	OutcomeCheckedStale       Outcome = "checked_stale"
	OutcomeAppliedViaPull     Outcome = "applied_via_pull"
	OutcomeAppliedViaDownload Outcome = "applied_via_download"
	OutcomeApplyFailed        Outcome = "apply_failed"
)

// Coordinator compares the running agent against the release registry
// and applies one strategy when it is stale.
type Coordinator struct {
	LocalVersion string // build-time constant
	Registry     Registry
	Client       *http.Client
	Exec         pkgsrc.ExecFunc

	SourceDir   string // git checkout holding the agent's own source, if any
	ArtifactURL string // %s replaced with the release tag
	BinaryPath  string // defaults to the running executable
}

// MaybeSelfUpdate runs the whole compare-and-replace protocol. Every
// failure path is logged and terminal; the caller continues the run
// regardless of the outcome.
func (c *Coordinator) MaybeSelfUpdate(ctx context.Context) Outcome {
	local, err := version.ParseReleaseTag(c.LocalVersion)
	if err != nil {
		// Dev builds carry versions like "dev"; nothing to compare.
		log.Debug("local version not comparable, skipping self-update",
			logging.KeyVersion, c.LocalVersion, logging.KeyError, err)
		return OutcomeCheckedUpToDate
	}

	tag, err := c.Registry.LatestRelease(ctx)
	if err != nil {
		log.Warn("release registry unavailable, skipping self-update", logging.KeyError, err)
		return OutcomeApplyFailed
	}

	remote, err := version.ParseReleaseTag(tag)
	if err != nil {
		log.Warn("release tag rejected, skipping self-update", "tag", tag, logging.KeyError, err)
		return OutcomeApplyFailed
	}

	if !remote.GreaterThan(local) {
		log.Debug("agent up to date", logging.KeyVersion, c.LocalVersion, "remote", tag)
		return OutcomeCheckedUpToDate
	}

	log.Info("newer agent release available", logging.KeyVersion, c.LocalVersion, "remote", tag)

	if c.sourceCheckoutPresent() {
		if err := c.pullSource(ctx); err == nil {
			log.Info("self-update applied via source pull; effective next run", "dir", c.SourceDir)
			return OutcomeAppliedViaPull
		} else {
			log.Warn("source pull failed, falling back to artifact download", logging.KeyError, err)
		}
	}

	if err := c.downloadAndReplace(ctx, tag); err != nil {
		log.Warn("self-update failed", logging.KeyError, err)
		return OutcomeApplyFailed
	}
	log.Info("self-update applied via artifact download; effective next run", "tag", tag)
	return OutcomeAppliedViaDownload
}

func (c *Coordinator) sourceCheckoutPresent() bool {
	if c.SourceDir == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(c.SourceDir, ".git"))
	return err == nil && info.IsDir()
}

// pullSource fast-forwards the source checkout. Anything other than a
// clean fast-forward is a failure; the fallback strategy takes over.
func (c *Coordinator) pullSource(ctx context.Context) error {
	stdout, stderr, exitCode, err := c.Exec(ctx, "git", []string{
		"-C", c.SourceDir,
		"pull", "--ff-only",
	}, gitPullTimeout)
	if err != nil {
		return fmt.Errorf("launch git: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("git pull exited %d: %s", exitCode, strings.TrimSpace(stderr+stdout))
	}
	return nil
}

func (c *Coordinator) downloadAndReplace(ctx context.Context, tag string) error {
	binaryPath := c.BinaryPath
	if binaryPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate running executable: %w", err)
		}
		binaryPath = exe
	}

	url := fmt.Sprintf(c.ArtifactURL, tag)
	tempPath, err := fetchArtifact(ctx, c.Client, url, filepath.Dir(binaryPath))
	if err != nil {
		return err
	}
	defer os.Remove(tempPath)

	return replaceArtifact(tempPath, binaryPath)
}
