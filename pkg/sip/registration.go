package sip

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

// registration drives the Agent's registration state machine of spec
// §4.3: idle -> registering -> {registered, register-failed}, and
// registered -> unregistering -> unregistered on stop(). auth tracks the
// single-retry digest-auth rule for REGISTER; INVITE does not use it, and
// a 401/407 answer to an INVITE is not retried with credentials. timerID
// is the pending re-REGISTER timer scheduled at expires*0.8.
type registration struct {
	mu      sync.Mutex
	fsm     *fsm.FSM
	auth    authState
	timerID TimerID
}

func newRegistration() *registration {
	r := &registration{}
	r.fsm = fsm.NewFSM(
		string(RegStateIdle),
		fsm.Events{
			{Name: "start", Src: []string{string(RegStateIdle), string(RegStateRegisterFailed), string(RegStateUnregistered)}, Dst: string(RegStateRegistering)},
			{Name: "success", Src: []string{string(RegStateRegistering)}, Dst: string(RegStateRegistered)},
			{Name: "failure", Src: []string{string(RegStateRegistering)}, Dst: string(RegStateRegisterFailed)},
			{Name: "renew", Src: []string{string(RegStateRegistered)}, Dst: string(RegStateRegistering)},
			{Name: "stop", Src: []string{string(RegStateRegistered)}, Dst: string(RegStateUnregistering)},
			{Name: "unregistered", Src: []string{string(RegStateUnregistering)}, Dst: string(RegStateUnregistered)},
		},
		fsm.Callbacks{},
	)
	return r
}

// transition fires event on the registration FSM, resetting the
// single-retry auth tracker on every fresh "start"/"renew" so each
// registration attempt gets its own digest-retry budget.
func (r *registration) transition(event string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event == "start" || event == "renew" {
		r.auth = authState{}
	}
	return r.fsm.Event(context.Background(), event)
}

// State returns the current registration state.
func (r *registration) State() RegState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RegState(r.fsm.Current())
}
