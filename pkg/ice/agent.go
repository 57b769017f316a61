// Package ice wraps github.com/pion/ice/v4 behind the narrow surface the
// Media Session needs: gather candidates, learn about them as they
// arrive (trickle), and run connectivity checks against a remote
// description once set. Connectivity checking, STUN crypto and TURN
// relaying are delegated to pion/ice itself, per spec §1.
package ice

import (
	"context"
	"fmt"
	"sync"
	"time"

	pion "github.com/pion/ice/v4"
	"github.com/rs/zerolog"

	"github.com/embeddedsip/uacore/pkg/errcode"
)

// Config configures an Agent, mirroring spec §6's Media Session STUN/TURN
// fields.
type Config struct {
	StunHost string
	StunPort int

	TurnHost string
	TurnPort int
	TurnUser string
	TurnPass string

	TrickleICE bool

	Log zerolog.Logger
}

// State mirrors pion/ice's connection state, renamed to the vocabulary the
// Media Session's own state machine uses.
type State int

const (
	StateNew State = iota
	StateChecking
	StateConnected
	StateFailed
	StateDisconnected
	StateClosed
)

// Agent wraps one pion/ice Agent for one component pairing (RTP, and
// optionally RTCP when not muxed).
type Agent struct {
	cfg   Config
	inner *pion.Agent

	mu         sync.Mutex
	localCreds struct{ ufrag, pwd string }
	candidates []Candidate
	gathered   bool
	conn       *pion.Conn

	onCandidate func(Candidate)
	onState     func(State)
}

// New builds the underlying pion/ice Agent with the configured STUN/TURN
// servers, but does not start gathering yet.
func New(cfg Config) (*Agent, error) {
	urls, err := buildURLs(cfg)
	if err != nil {
		return nil, err
	}

	agentCfg := &pion.AgentConfig{
		Urls:          urls,
		LoggerFactory: NewLoggerFactory(cfg.Log),
	}

	inner, err := pion.NewAgent(agentCfg)
	if err != nil {
		return nil, errcode.New(errcode.ErrAllocFailed, err)
	}

	a := &Agent{cfg: cfg, inner: inner}

	if err := inner.OnCandidate(func(c pion.Candidate) {
		if c == nil {
			return // end-of-candidates marker
		}
		cand := fromPion(c)
		a.mu.Lock()
		a.candidates = append(a.candidates, cand)
		cb := a.onCandidate
		a.mu.Unlock()
		if cb != nil && cfg.TrickleICE {
			cb(cand)
		}
	}); err != nil {
		return nil, errcode.New(errcode.ErrAllocFailed, err)
	}

	if err := inner.OnConnectionStateChange(func(s pion.ConnectionState) {
		a.mu.Lock()
		cb := a.onState
		a.mu.Unlock()
		if cb != nil {
			cb(fromPionState(s))
		}
	}); err != nil {
		return nil, errcode.New(errcode.ErrAllocFailed, err)
	}

	return a, nil
}

func buildURLs(cfg Config) ([]*pion.URL, error) {
	var urls []*pion.URL
	if cfg.StunHost != "" {
		u, err := pion.ParseURL(fmt.Sprintf("stun:%s:%d", cfg.StunHost, cfg.StunPort))
		if err != nil {
			return nil, errcode.New(errcode.ErrInvalidArgument, err)
		}
		urls = append(urls, u)
	}
	if cfg.TurnHost != "" {
		u, err := pion.ParseURL(fmt.Sprintf("turn:%s:%d", cfg.TurnHost, cfg.TurnPort))
		if err != nil {
			return nil, errcode.New(errcode.ErrInvalidArgument, err)
		}
		u.Username = cfg.TurnUser
		u.Password = cfg.TurnPass
		urls = append(urls, u)
	}
	return urls, nil
}

// OnCandidate registers the trickle-ICE callback (spec §9 supplement).
func (a *Agent) OnCandidate(f func(Candidate)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onCandidate = f
}

// OnStateChange registers the connection-state callback.
func (a *Agent) OnStateChange(f func(State)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onState = f
}

// Gather starts host/srflx/relay candidate gathering. It is asynchronous;
// candidates and completion arrive via OnCandidate/GatheringDone.
func (a *Agent) Gather() error {
	if err := a.inner.GatherCandidates(); err != nil {
		return errcode.New(errcode.ErrMediaICEFailed, err)
	}
	return nil
}

// GatheringDone returns a channel that is closed once the agent's local
// ICE credentials are available, or when ctx ends. It does not wait for
// pion/ice's end-of-candidates signal, so candidates may still arrive
// after it closes. The Media Session waits on it from a background
// goroutine, not from its Loop.
func (a *Agent) GatheringDone(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		// pion/ice has no polling primitive for "gathering complete"
		// short of GatherCandidates being synchronous up to the OS-level
		// enumeration; we approximate readiness with local credentials
		// being available, which pion/ice populates once the agent has
		// bound its host candidates.
		for {
			select {
			case <-ctx.Done():
				close(done)
				return
			default:
			}
			ufrag, pwd := a.inner.GetLocalUserCredentials()
			if ufrag != "" && pwd != "" {
				a.mu.Lock()
				a.gathered = true
				a.localCreds.ufrag, a.localCreds.pwd = ufrag, pwd
				a.mu.Unlock()
				close(done)
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()
	return done
}

// LocalCandidates returns the batch of candidates gathered so far.
func (a *Agent) LocalCandidates() []Candidate {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Candidate, len(a.candidates))
	copy(out, a.candidates)
	return out
}

// LocalCredentials returns the local ICE ufrag/pwd pair for SDP.
func (a *Agent) LocalCredentials() (ufrag, pwd string) {
	ufrag, pwd = a.inner.GetLocalUserCredentials()
	return
}

// Role chooses which side drives the connectivity checks. Spec treats the
// UAC (caller) as controlling and the UAS (callee) as controlled, which
// matches ICE's usual offerer/answerer convention.
type Role int

const (
	RoleControlling Role = iota
	RoleControlled
)

// Connect runs connectivity checks against the remote ufrag/pwd and
// blocks (up to ctx) until nomination succeeds or checks fail. The Media
// Session calls this from a background goroutine kicked off by
// start_ice(), and observes completion via OnStateChange rather than by
// blocking its own Loop on this call.
func (a *Agent) Connect(ctx context.Context, role Role, remoteUfrag, remotePwd string) error {
	var conn *pion.Conn
	var err error

	switch role {
	case RoleControlling:
		conn, err = a.inner.Dial(ctx, remoteUfrag, remotePwd)
	case RoleControlled:
		conn, err = a.inner.Accept(ctx, remoteUfrag, remotePwd)
	}
	if err != nil {
		return errcode.New(errcode.ErrMediaICEFailed, err)
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	return nil
}

// Conn returns the established net.Conn-like ICE connection once Connect
// has succeeded, or nil.
func (a *Agent) Conn() *pion.Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

// Close releases the underlying pion/ice Agent and any established
// connection.
func (a *Agent) Close() error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return a.inner.Close()
}

func fromPionState(s pion.ConnectionState) State {
	switch s {
	case pion.ConnectionStateNew:
		return StateNew
	case pion.ConnectionStateChecking:
		return StateChecking
	case pion.ConnectionStateConnected, pion.ConnectionStateCompleted:
		return StateConnected
	case pion.ConnectionStateFailed:
		return StateFailed
	case pion.ConnectionStateDisconnected:
		return StateDisconnected
	case pion.ConnectionStateClosed:
		return StateClosed
	default:
		return StateNew
	}
}
