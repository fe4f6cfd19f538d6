package pkgsrc

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/logging"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/version"
)

var log = logging.L("pkgsrc")

// winget CLI timeouts
const (
	wingetQueryTimeout   = 120 * time.Second
	wingetUpgradeTimeout = 600 * time.Second
)

// validWingetPkgID matches valid winget package identifiers (e.g. "NetBird.NetBird").
var validWingetPkgID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]{0,255}$`)

// WingetSource integrates with Windows Package Manager (winget).
type WingetSource struct {
	exec ExecFunc
}

// NewWingetSource creates a Source that dispatches winget commands via
// the given executor.
func NewWingetSource(exec ExecFunc) *WingetSource {
	return &WingetSource{exec: exec}
}

// Installed looks the package up in the local install database. A "no
// installed package" result is reported as (nil, nil).
func (w *WingetSource) Installed(ctx context.Context, id string) (*version.Ordinal, error) {
	if !validWingetPkgID.MatchString(id) {
		return nil, fmt.Errorf("invalid winget package ID: %q", id)
	}

	stdout, stderr, exitCode, err := w.exec(ctx, "winget", []string{
		"list",
		"--exact",
		"--id", id,
		"--accept-source-agreements",
		"--disable-interactivity",
	}, wingetQueryTimeout)
	if err != nil {
		return nil, fmt.Errorf("winget list failed: %w", err)
	}

	// winget exits non-zero when the package is simply not installed.
	if notInstalledOutput(stdout) || (exitCode != 0 && strings.TrimSpace(stdout) == "") {
		log.Debug("package not installed", logging.KeyPackage, id)
		return nil, nil
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("winget list failed (exit %d): %s", exitCode, strings.TrimSpace(stderr))
	}

	raw := parseListVersion(stdout, id)
	if raw == "" {
		return nil, nil
	}
	v, err := version.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("installed version: %w", err)
	}
	return v, nil
}

// Candidate queries the feed's newest version via `winget show`.
func (w *WingetSource) Candidate(ctx context.Context, id string) (*version.Ordinal, error) {
	if !validWingetPkgID.MatchString(id) {
		return nil, fmt.Errorf("invalid winget package ID: %q", id)
	}

	stdout, stderr, exitCode, err := w.exec(ctx, "winget", []string{
		"show",
		"--exact",
		"--id", id,
		"--accept-source-agreements",
		"--disable-interactivity",
	}, wingetQueryTimeout)
	if err != nil {
		return nil, fmt.Errorf("winget show failed: %w", err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("winget show failed (exit %d): %s", exitCode, strings.TrimSpace(stderr))
	}

	raw := parseShowVersion(stdout)
	if raw == "" {
		return nil, fmt.Errorf("winget show output contains no version for %s", id)
	}
	v, err := version.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("candidate version: %w", err)
	}
	return v, nil
}

// Upgrade applies the pending upgrade silently. The exit code is
// returned even on failure so the run can propagate it.
func (w *WingetSource) Upgrade(ctx context.Context, id string) (int, error) {
	if !validWingetPkgID.MatchString(id) {
		return -1, fmt.Errorf("invalid winget package ID: %q", id)
	}

	stdout, stderr, exitCode, err := w.exec(ctx, "winget", []string{
		"upgrade",
		"--exact",
		"--id", id,
		"--silent",
		"--include-unknown",
		"--accept-package-agreements",
		"--accept-source-agreements",
		"--disable-interactivity",
	}, wingetUpgradeTimeout)
	if err != nil {
		return -1, fmt.Errorf("winget upgrade failed: %w", err)
	}

	if exitCode != 0 {
		combined := strings.TrimSpace(stdout + "\n" + stderr)
		return exitCode, fmt.Errorf("winget upgrade failed (exit %d): %s", exitCode, combined)
	}
	return 0, nil
}

func notInstalledOutput(stdout string) bool {
	return strings.Contains(stdout, "No installed package found")
}

// parseListVersion extracts the Version column for the given package ID
// from `winget list` table output:
//
//	Name    Id              Version  Available Source
//	--------------------------------------------------
//	NetBird NetBird.NetBird 0.65.1   0.65.2    winget
func parseListVersion(output, id string) string {
	cols := findColumnBoundaries(output)
	if cols == nil {
		return ""
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	pastSeparator := false

	for scanner.Scan() {
		line := scanner.Text()

		if !pastSeparator {
			if isSeparatorLine(line) {
				pastSeparator = true
			}
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		rowID, rowVersion := extractListColumns(line, cols)
		if !strings.EqualFold(rowID, id) {
			continue
		}
		return rowVersion
	}
	return ""
}

// parseShowVersion extracts the "Version:" field from `winget show`
// output.
func parseShowVersion(output string) string {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if rest, ok := strings.CutPrefix(line, "Version:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// columnPositions holds the start positions of known columns in winget
// table output.
type columnPositions struct {
	id        int
	version   int
	available int // -1 if not present
}

// findColumnBoundaries finds column start positions from the header line.
func findColumnBoundaries(output string) *columnPositions {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		nameIdx := strings.Index(line, "Name")
		idIdx := strings.Index(line, "Id")
		versionIdx := strings.Index(line, "Version")
		if nameIdx == -1 || idIdx == -1 || versionIdx == -1 {
			continue
		}
		// Verify Id comes after Name and Version comes after Id
		if idIdx <= nameIdx || versionIdx <= idIdx {
			continue
		}

		cols := &columnPositions{
			id:        idIdx,
			version:   versionIdx,
			available: -1,
		}

		availIdx := strings.Index(line, "Available")
		if availIdx > versionIdx {
			cols.available = availIdx
		}

		return cols
	}
	return nil
}

// isSeparatorLine checks if a line is a winget table separator (all
// dashes/spaces).
func isSeparatorLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < 10 {
		return false
	}
	for _, ch := range trimmed {
		if ch != '-' && ch != ' ' {
			return false
		}
	}
	return true
}

// extractListColumns extracts Id and Version from a data row.
func extractListColumns(line string, cols *columnPositions) (id, ver string) {
	if len(line) <= cols.id {
		return
	}
	id = safeSubstring(line, cols.id, cols.version)
	if cols.available > 0 {
		ver = safeSubstring(line, cols.version, cols.available)
		return
	}
	ver = safeSubstring(line, cols.version, len(line))
	// Version column may have Source appended — trim if present
	if spaceIdx := strings.LastIndex(strings.TrimSpace(ver), " "); spaceIdx > 0 {
		candidate := strings.TrimSpace(ver[:spaceIdx])
		tail := strings.TrimSpace(ver[spaceIdx:])
		if !strings.ContainsAny(tail, ".0123456789") {
			ver = candidate
		}
	}
	return
}

// safeSubstring extracts a substring with bounds checking and trims
// whitespace.
func safeSubstring(s string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(s) {
		end = len(s)
	}
	if start >= end {
		return ""
	}
	return strings.TrimSpace(s[start:end])
}
