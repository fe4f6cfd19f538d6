//go:build windows

package svcctl

import (
	"fmt"
	"time"

	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

const stateChangeTimeout = 30 * time.Second

// SCMController drives services through the Windows Service Control
// Manager.
type SCMController struct{}

// New returns the platform service controller.
func New() Controller {
	return &SCMController{}
}

// Stop stops the named service and waits for it to reach Stopped.
// A missing service is OutcomeNotFound, not an error condition.
func (c *SCMController) Stop(name string) Result {
	m, err := mgr.Connect()
	if err != nil {
		return Result{Kind: OutcomeFailed, Err: fmt.Errorf("connect to SCM: %w", err)}
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if err != nil {
		return Result{Kind: OutcomeNotFound, Err: fmt.Errorf("open service %s: %w", name, err)}
	}
	defer s.Close()

	status, err := s.Query()
	if err != nil {
		return Result{Kind: OutcomeFailed, Err: fmt.Errorf("query %s: %w", name, err)}
	}
	if status.State == svc.Stopped {
		return Result{Kind: OutcomeOK}
	}

	status, err = s.Control(svc.Stop)
	if err != nil {
		return Result{Kind: OutcomeFailed, Err: fmt.Errorf("stop %s: %w", name, err)}
	}

	deadline := time.Now().Add(stateChangeTimeout)
	for status.State != svc.Stopped {
		if time.Now().After(deadline) {
			return Result{Kind: OutcomeFailed, Err: fmt.Errorf("timeout waiting for %s to stop", name)}
		}
		time.Sleep(300 * time.Millisecond)
		status, err = s.Query()
		if err != nil {
			return Result{Kind: OutcomeFailed, Err: fmt.Errorf("query %s: %w", name, err)}
		}
	}
	return Result{Kind: OutcomeOK}
}

// Start starts the named service and waits for it to reach Running.
func (c *SCMController) Start(name string) Result {
	m, err := mgr.Connect()
	if err != nil {
		return Result{Kind: OutcomeFailed, Err: fmt.Errorf("connect to SCM: %w", err)}
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if err != nil {
		return Result{Kind: OutcomeNotFound, Err: fmt.Errorf("open service %s: %w", name, err)}
	}
	defer s.Close()

	status, err := s.Query()
	if err == nil && status.State == svc.Running {
		return Result{Kind: OutcomeOK}
	}

	if err := s.Start(); err != nil {
		return Result{Kind: OutcomeFailed, Err: fmt.Errorf("start %s: %w", name, err)}
	}

	deadline := time.Now().Add(stateChangeTimeout)
	for {
		status, err = s.Query()
		if err != nil {
			return Result{Kind: OutcomeFailed, Err: fmt.Errorf("query %s: %w", name, err)}
		}
		if status.State == svc.Running {
			return Result{Kind: OutcomeOK}
		}
		if time.Now().After(deadline) {
			return Result{Kind: OutcomeFailed, Err: fmt.Errorf("timeout waiting for %s to start", name)}
		}
		time.Sleep(300 * time.Millisecond)
	}
}
