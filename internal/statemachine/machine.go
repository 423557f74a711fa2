// Package statemachine validates workflow status changes.
package statemachine

import (
	"context"

	"github.com/qmuntal/stateless"

	"github.com/petrijr/flux/pkg/api"
)

// transitions lists the allowed targets per source status. The target
// status doubles as the trigger that moves the machine there.
var transitions = map[api.Status][]api.Status{
	api.StatusPending:    {api.StatusRunning, api.StatusFailed},
	api.StatusRunning:    {api.StatusPaused, api.StatusSuspended, api.StatusCompleted, api.StatusFailed, api.StatusRolledBack},
	api.StatusPaused:     {api.StatusRunning, api.StatusFailed},
	api.StatusSuspended:  {api.StatusRunning, api.StatusFailed},
	api.StatusCompleted:  {},
	api.StatusFailed:     {api.StatusPending},
	api.StatusRolledBack: {},
}

// TransitionFunc observes a status change.
type TransitionFunc func(from, to api.Status)

// Machine holds the current workflow status. It is not safe for concurrent
// use; each engine call owns its own Machine.
type Machine struct {
	status    api.Status
	observers []TransitionFunc
	fsm       *stateless.StateMachine
}

// New returns a Machine starting at initial.
func New(initial api.Status, observers ...TransitionFunc) *Machine {
	if initial == "" {
		initial = api.StatusPending
	}
	m := &Machine{status: initial, observers: observers}

	m.fsm = stateless.NewStateMachineWithExternalStorage(
		func(context.Context) (stateless.State, error) { return m.status, nil },
		func(_ context.Context, s stateless.State) error {
			m.status = s.(api.Status)
			return nil
		},
		stateless.FiringImmediate,
	)
	for from, targets := range transitions {
		cfg := m.fsm.Configure(from)
		for _, to := range targets {
			cfg.Permit(to, to)
		}
	}
	m.fsm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		m.notify(t.Source.(api.Status), t.Destination.(api.Status))
	})
	return m
}

// Status returns the current status.
func (m *Machine) Status() api.Status {
	return m.status
}

// CanTransition reports whether to is reachable from the current status.
func (m *Machine) CanTransition(to api.Status) bool {
	ok, err := m.fsm.CanFire(to)
	return err == nil && ok
}

// Transition moves to the given status, or returns a *api.TransitionError.
func (m *Machine) Transition(to api.Status) error {
	from := m.status
	if !m.CanTransition(to) {
		return &api.TransitionError{From: from, To: to}
	}
	if err := m.fsm.Fire(to); err != nil {
		m.status = from
		return &api.TransitionError{From: from, To: to}
	}
	return nil
}

// ForceStatus sets the status without validation. Only replay and restore
// paths use it.
func (m *Machine) ForceStatus(to api.Status) {
	from := m.status
	m.status = to
	m.notify(from, to)
}

func (m *Machine) notify(from, to api.Status) {
	for _, fn := range m.observers {
		fn(from, to)
	}
}
