package sip

import (
	"context"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/looplab/fsm"

	"github.com/embeddedsip/uacore/pkg/media"
)

// Dialog is the Agent's handle on one SIP dialog, per spec §3's Dialog
// data model and §9's "Agent owns Dialogs exclusively; Dialogs hold a
// non-owning back-reference" strategy. callID is the stable key the
// Agent's dialog table is indexed by.
type Dialog struct {
	mu sync.Mutex

	agent     *Agent
	direction Direction

	callID       string
	remoteTarget sip.Uri
	fromAddr     FromAddress

	// clientSession and serverSession hold exactly one non-nil sipgo
	// dialog handle depending on direction; serverTx/inviteReq are only
	// populated for an incoming INVITE still awaiting answer/reject.
	clientSession *sipgo.DialogClientSession
	serverSession *sipgo.DialogServerSession
	serverTx      sip.ServerTransaction
	inviteReq     *sip.Request

	mediaSession *media.Session

	fsm       *fsm.FSM
	state     DialogState
	createdAt time.Time

	auth authState

	registerTimerID TimerID
}

func newOutgoingDialog(agent *Agent, target sip.Uri) *Dialog {
	d := &Dialog{
		agent:        agent,
		direction:    DirectionOutgoing,
		remoteTarget: target,
		state:        DialogStateNull,
		createdAt:    time.Now(),
	}
	d.initFSM()
	return d
}

func newIncomingDialog(agent *Agent, callID string, from FromAddress) *Dialog {
	d := &Dialog{
		agent:     agent,
		direction: DirectionIncoming,
		callID:    callID,
		fromAddr:  from,
		state:     DialogStateNull,
		createdAt: time.Now(),
	}
	d.initFSM()
	return d
}

// initFSM wires the dialog state diagram from spec §4.3: UAC events
// (invite/ringing/answered/call_failed/cancelled) and UAS events
// (incoming/answer/reject), plus bye and fail_terminate, converging on a
// shared terminated state.
func (d *Dialog) initFSM() {
	d.fsm = fsm.NewFSM(
		string(DialogStateNull),
		fsm.Events{
			{Name: "invite", Src: []string{string(DialogStateNull)}, Dst: string(DialogStateCalling)},
			{Name: "ringing", Src: []string{string(DialogStateCalling)}, Dst: string(DialogStateEarly)},
			{Name: "answered", Src: []string{string(DialogStateCalling), string(DialogStateEarly)}, Dst: string(DialogStateConfirmed)},
			{Name: "call_failed", Src: []string{string(DialogStateCalling), string(DialogStateEarly)}, Dst: string(DialogStateFailed)},
			{Name: "cancelled", Src: []string{string(DialogStateCalling), string(DialogStateEarly)}, Dst: string(DialogStateTerminated)},

			{Name: "incoming", Src: []string{string(DialogStateNull)}, Dst: string(DialogStateIncoming)},
			{Name: "answer", Src: []string{string(DialogStateIncoming)}, Dst: string(DialogStateConfirmed)},
			{Name: "reject", Src: []string{string(DialogStateIncoming)}, Dst: string(DialogStateTerminated)},

			{Name: "bye", Src: []string{string(DialogStateConfirmed)}, Dst: string(DialogStateTerminated)},
			{Name: "fail_terminate", Src: []string{string(DialogStateFailed)}, Dst: string(DialogStateTerminated)},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, _ *fsm.Event) {},
		},
	)
}

// transition fires event on the dialog FSM, updates cached state, and
// (outside of any lock, per spec §5's re-entrancy rule) notifies the
// Agent's dialog-state-changed handler.
func (d *Dialog) transition(event string) error {
	d.mu.Lock()
	err := d.fsm.Event(context.Background(), event)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.state = DialogState(d.fsm.Current())
	newState := d.state
	agent := d.agent
	d.mu.Unlock()

	if agent != nil {
		agent.notifyDialogStateChanged(d, newState)
	}
	return nil
}

// CallID returns the dialog's stable Call-ID key.
func (d *Dialog) CallID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.callID
}

// State returns the dialog's current state.
func (d *Dialog) State() DialogState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// IsOutgoing reports whether this dialog originated locally via make_call.
func (d *Dialog) IsOutgoing() bool {
	return d.direction == DirectionOutgoing
}

// MediaSession returns the dialog's owned Media Session, or nil before
// one has been created.
func (d *Dialog) MediaSession() *media.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mediaSession
}
