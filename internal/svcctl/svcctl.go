// Package svcctl stops and starts the service that depends on the
// primary package, so the package manager is not fighting a live
// process during the upgrade. Every failure here is advisory: callers
// log and continue.
package svcctl

// Outcome classifies a stop/start attempt.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeNotFound Outcome = "not_found"
	OutcomeFailed   Outcome = "failed"
)

// Result is the outcome of a control request plus the underlying error,
// if any. Err is informational; callers branch on Kind.
type Result struct {
	Kind Outcome
	Err  error
}

// Controller stops and starts a named system service.
type Controller interface {
	Stop(name string) Result
	Start(name string) Result
}
