// Package upgrade applies the gated primary upgrade. The dependent
// service is quiesced around the package change, but only the upgrade
// command itself can fail the run; service control trouble is logged
// and tolerated.
package upgrade

import (
	"context"

	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/logging"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/pkgsrc"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/svcctl"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/version"
)

var log = logging.L("upgrade")

// Executor performs the primary package upgrade.
type Executor struct {
	Source      pkgsrc.Source
	Service     svcctl.Controller
	PackageID   string
	ServiceName string // empty = no dependent service to quiesce
}

// Result reports the upgrade attempt. Err is non-nil only when the
// upgrade command itself failed; ExitCode then carries the command's
// exit status for the run to propagate.
type Result struct {
	Err            error
	ExitCode       int
	InstalledAfter *version.Ordinal
}

// Apply stops the dependent service, runs the upgrade, restarts the
// service, and re-queries the installed version. Quiesce and resume
// failures never block the upgrade attempt.
func (e *Executor) Apply(ctx context.Context) Result {
	e.quiesce()

	exitCode, err := e.Source.Upgrade(ctx, e.PackageID)
	if err != nil {
		log.Error("upgrade command failed",
			logging.KeyPackage, e.PackageID,
			"exitCode", exitCode,
			logging.KeyError, err,
		)
	} else {
		log.Info("upgrade command succeeded", logging.KeyPackage, e.PackageID)
	}

	e.resume()

	after, queryErr := e.Source.Installed(ctx, e.PackageID)
	if queryErr != nil {
		log.Warn("post-upgrade version query failed", logging.KeyPackage, e.PackageID, logging.KeyError, queryErr)
	}

	return Result{
		Err:            err,
		ExitCode:       exitCode,
		InstalledAfter: after,
	}
}

func (e *Executor) quiesce() {
	if e.ServiceName == "" || e.Service == nil {
		return
	}
	res := e.Service.Stop(e.ServiceName)
	switch res.Kind {
	case svcctl.OutcomeOK:
		log.Info("stopped dependent service", "service", e.ServiceName)
	case svcctl.OutcomeNotFound:
		log.Warn("dependent service not found, continuing", "service", e.ServiceName)
	case svcctl.OutcomeFailed:
		log.Warn("failed to stop dependent service, continuing", "service", e.ServiceName, logging.KeyError, res.Err)
	}
}

func (e *Executor) resume() {
	if e.ServiceName == "" || e.Service == nil {
		return
	}
	res := e.Service.Start(e.ServiceName)
	switch res.Kind {
	case svcctl.OutcomeOK:
		log.Info("started dependent service", "service", e.ServiceName)
	case svcctl.OutcomeNotFound:
		log.Warn("dependent service not found after upgrade", "service", e.ServiceName)
	case svcctl.OutcomeFailed:
		log.Warn("failed to start dependent service", "service", e.ServiceName, logging.KeyError, res.Err)
	}
}
