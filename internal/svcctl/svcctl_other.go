//go:build !windows

package svcctl

// NoopController is the non-Windows placeholder: no dependent service
// is managed, so stop/start report the service as absent.
type NoopController struct{}

// New returns the platform service controller.
func New() Controller {
	return &NoopController{}
}

func (c *NoopController) Stop(name string) Result {
	return Result{Kind: OutcomeNotFound}
}

func (c *NoopController) Start(name string) Result {
	return Result{Kind: OutcomeNotFound}
}
