// Package pkgsrc supplies version facts about the primary package and
// applies its upgrade. The concrete implementation shells out to winget;
// the Source interface is what the decision pipeline consumes.
package pkgsrc

import (
	"context"
	"time"

	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/version"
)

// Source answers version queries for a single package and performs its
// upgrade. An absent installed version is a normal outcome, not an
// error; a failed candidate lookup is an error.
type Source interface {
	// Installed returns the installed version, or nil if the package
	// is not present.
	Installed(ctx context.Context, id string) (*version.Ordinal, error)
	// Candidate returns the newest version observable in the feed.
	Candidate(ctx context.Context, id string) (*version.Ordinal, error)
	// Upgrade applies the pending upgrade and returns the package
	// manager's exit code alongside any launch error.
	Upgrade(ctx context.Context, id string) (int, error)
}

// ExecFunc runs a command and returns stdout, stderr and exit code.
// Injected so the winget source can be exercised without winget.
type ExecFunc func(ctx context.Context, name string, args []string, timeout time.Duration) (stdout, stderr string, exitCode int, err error)

// VersionFact is the immutable per-run snapshot of the primary package.
type VersionFact struct {
	Installed *version.Ordinal // nil = not installed
	Candidate *version.Ordinal // nil = lookup failed
}
