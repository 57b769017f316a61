package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"github.com/embeddedsip/uacore/pkg/codec"
	"github.com/embeddedsip/uacore/pkg/errcode"
	"github.com/embeddedsip/uacore/pkg/ice"
	"github.com/embeddedsip/uacore/pkg/metrics"
	"github.com/embeddedsip/uacore/pkg/transport"
)

const (
	gatherTimeout  = 5 * time.Second
	connectTimeout = 30 * time.Second
)

// Session is the Media Session coordinator of spec §4.2: it owns one ICE
// agent per media component, 0..2 RTP sessions, the cached local/remote
// SDP, and the sendonly/recvonly/sendrecv/inactive direction.
type Session struct {
	mu  sync.Mutex
	cfg Config
	h   Handler
	log zerolog.Logger

	fsm *fsm.FSM

	sessionIDSeed uint64

	audioAgent *ice.Agent
	videoAgent *ice.Agent

	audioRTP *rtpSession
	videoRTP *rtpSession

	localSDP  string
	remoteSDP string
	remote    *remoteDescription

	gatherCancel  context.CancelFunc
	connectCancel context.CancelFunc

	lastRTCP time.Time

	met  *metrics.Registry
	dtmf *dtmfSender
}

// New creates a Media Session in state idle, per spec §4.2's create().
func New(cfg Config, h Handler) (*Session, error) {
	cfg = defaultConfig(cfg)
	if !cfg.Audio.Enabled && !cfg.Video.Enabled {
		return nil, errcode.New(errcode.ErrInvalidArgument, fmt.Errorf("media session requires at least one of audio or video enabled"))
	}

	s := &Session{
		cfg:           cfg,
		h:             h,
		log:           cfg.Log,
		sessionIDSeed: sessionIDFromClock(),
		met:           metrics.Default(),
	}
	s.initFSM()

	agentCfg := ice.Config{
		StunHost:   cfg.StunHost,
		StunPort:   cfg.StunPort,
		TurnHost:   cfg.TurnHost,
		TurnPort:   cfg.TurnPort,
		TurnUser:   cfg.TurnUser,
		TurnPass:   cfg.TurnPass,
		TrickleICE: cfg.TrickleICE,
		Log:        cfg.Log,
	}

	if cfg.Audio.Enabled {
		agent, err := ice.New(agentCfg)
		if err != nil {
			return nil, err
		}
		s.audioAgent = agent
		s.audioRTP = newRTPSession(cfg.Audio.PayloadType, codec.ClockRate(cfg.Audio.PayloadType, cfg.Audio.SampleRate))
		s.dtmf = newDTMFSender(codec.TelephoneEvent, s.audioRTP.ssrc, s.audioRTP.sequence, s.audioRTP.timestamp)
		s.wireAgentCallbacks(agent)
	}

	if cfg.Video.Enabled {
		agent, err := ice.New(agentCfg)
		if err != nil {
			return nil, err
		}
		s.videoAgent = agent
		s.videoRTP = newRTPSession(cfg.Video.Payload, 90000)
		s.wireAgentCallbacks(agent)
	}

	return s, nil
}

func (s *Session) initFSM() {
	s.fsm = fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: "gather", Src: []string{string(StateIdle)}, Dst: string(StateGathering)},
			{Name: "gathered", Src: []string{string(StateGathering)}, Dst: string(StateGathered)},
			{Name: "start_ice", Src: []string{string(StateGathered)}, Dst: string(StateConnecting)},
			{Name: "connected", Src: []string{string(StateConnecting)}, Dst: string(StateConnected)},
			{Name: "disconnect", Src: []string{string(StateConnecting), string(StateConnected)}, Dst: string(StateDisconnected)},
			{Name: "stop", Src: []string{string(StateGathering), string(StateGathered), string(StateConnecting), string(StateConnected)}, Dst: string(StateDisconnected)},
			{Name: "close", Src: []string{string(StateIdle), string(StateGathering), string(StateGathered), string(StateConnecting), string(StateConnected), string(StateDisconnected)}, Dst: string(StateClosed)},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				s.onTransition(State(e.Dst))
			},
		},
	)
}

func (s *Session) onTransition(newState State) {
	if s.h.OnStateChanged != nil {
		s.h.OnStateChanged(newState)
	}
	if newState == StateConnected && s.h.OnConnected != nil {
		s.h.OnConnected()
	}
}

func (s *Session) wireAgentCallbacks(agent *ice.Agent) {
	agent.OnCandidate(func(c ice.Candidate) {
		if s.h.OnNewCandidate != nil {
			s.h.OnNewCandidate(c)
		}
	})
	agent.OnStateChange(func(state ice.State) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch state {
		case ice.StateConnected:
			if s.fsm.Current() == string(StateConnecting) {
				_ = s.fsm.Event(context.Background(), "connected")
			}
		case ice.StateFailed, ice.StateDisconnected:
			if s.fsm.Current() == string(StateConnecting) || s.fsm.Current() == string(StateConnected) {
				_ = s.fsm.Event(context.Background(), "disconnect")
				if s.h.OnDisconnected != nil {
					s.h.OnDisconnected(errcode.New(errcode.ErrMediaICEFailed, fmt.Errorf("connectivity failure")))
				}
			}
		}
	})
}

// GatherCandidates transitions idle -> gathering and instructs every
// enabled ICE agent to gather host/srflx/relay candidates. Completion
// (or the 5s best-effort timeout) emits sdp-ready and the gathered
// transition.
func (s *Session) GatherCandidates() error {
	s.mu.Lock()
	if s.fsm.Current() != string(StateIdle) {
		s.mu.Unlock()
		return errcode.New(errcode.ErrInvalidState, fmt.Errorf("gather_candidates called in state %s", s.fsm.Current()))
	}
	if err := s.fsm.Event(context.Background(), "gather"); err != nil {
		s.mu.Unlock()
		return errcode.New(errcode.ErrInvalidState, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), gatherTimeout)
	s.gatherCancel = cancel
	s.mu.Unlock()

	agents := s.activeAgents()
	for _, a := range agents {
		if err := a.Gather(); err != nil {
			return err
		}
	}

	go func() {
		for _, a := range agents {
			<-a.GatheringDone(ctx)
		}
		s.mu.Lock()
		if s.fsm.Current() != string(StateGathering) {
			s.mu.Unlock()
			return
		}
		_ = s.fsm.Event(context.Background(), "gathered")
		localSDP, err := s.buildLocalSDP()
		s.localSDP = localSDP
		cb := s.h.OnSDPReady
		errCb := s.h.OnError
		s.mu.Unlock()

		if err != nil {
			if errCb != nil {
				errCb(err)
			}
			return
		}
		if cb != nil {
			cb(localSDP)
		}
	}()

	return nil
}

// SetRemoteSDP parses the remote offer/answer and stores the remote ICE
// credentials/candidates and negotiated payload type. Valid in
// {gathering, gathered}; may race with local gathering completion.
func (s *Session) SetRemoteSDP(sdp string) error {
	s.mu.Lock()
	cur := State(s.fsm.Current())
	if cur != StateGathered && cur != StateGathering {
		s.mu.Unlock()
		return errcode.New(errcode.ErrInvalidState, fmt.Errorf("set_remote_sdp called in state %s", cur))
	}
	s.mu.Unlock()

	remote, err := parseRemoteSDP(sdp)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.remoteSDP = sdp
	s.remote = remote
	if s.audioRTP != nil {
		s.audioRTP.setRemote(remote.ConnectionIP, remote.AudioPort, remote.AudioPayload)
	}
	s.mu.Unlock()
	return nil
}

// StartICE transitions gathered -> connecting and runs connectivity
// checks in the background; completion surfaces via OnConnected /
// OnDisconnected rather than blocking the caller.
func (s *Session) StartICE(role ice.Role) error {
	s.mu.Lock()
	if s.fsm.Current() != string(StateGathered) {
		s.mu.Unlock()
		return errcode.New(errcode.ErrInvalidState, fmt.Errorf("start_ice called in state %s", s.fsm.Current()))
	}
	if s.remote == nil {
		s.mu.Unlock()
		return errcode.New(errcode.ErrInvalidState, fmt.Errorf("start_ice requires remote SDP to be set"))
	}
	if err := s.fsm.Event(context.Background(), "start_ice"); err != nil {
		s.mu.Unlock()
		return errcode.New(errcode.ErrInvalidState, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	s.connectCancel = cancel
	remote := s.remote
	agents := s.activeAgents()
	s.mu.Unlock()

	for _, a := range agents {
		agent := a
		go func() {
			if err := agent.Connect(ctx, role, remote.ICEUfrag, remote.ICEPwd); err != nil {
				s.mu.Lock()
				if s.fsm.Current() == string(StateConnecting) {
					_ = s.fsm.Event(context.Background(), "disconnect")
					cb := s.h.OnDisconnected
					s.mu.Unlock()
					if cb != nil {
						cb(err)
					}
					return
				}
				s.mu.Unlock()
			}
		}()
	}
	return nil
}

// Loop pumps capture->RTP send, RTP receive->playback, and RTCP timer
// checks for up to budget, per spec §4.2's loop() operation.
func (s *Session) Loop(budget time.Duration) error {
	deadline := time.Now().Add(budget)

	s.mu.Lock()
	state := State(s.fsm.Current())
	audioRTP := s.audioRTP
	videoRTP := s.videoRTP
	audioAgent := s.audioAgent
	videoAgent := s.videoAgent
	audioCfg := s.cfg.Audio
	dir := s.cfg.Direction
	enableRTCP := s.cfg.EnableRTCP
	s.mu.Unlock()

	if state != StateConnected {
		return nil
	}

	if audioRTP != nil && audioAgent != nil {
		if dir == DirectionSendRecv || dir == DirectionSendOnly {
			s.pumpCapture(audioRTP, audioAgent, audioCfg)
		}
		if conn := audioAgent.Conn(); conn != nil {
			s.pumpReceive(audioRTP, conn, audioCfg, dir, "audio")
		}
		if enableRTCP {
			s.maybeSendRTCP(audioRTP, audioAgent)
		}
	}

	if videoRTP != nil && videoAgent != nil {
		if conn := videoAgent.Conn(); conn != nil {
			s.pumpReceive(videoRTP, conn, AudioConfig{}, dir, "video")
		}
	}

	if remaining := time.Until(deadline); remaining > 0 {
		time.Sleep(remaining / 4) // cooperative: don't busy-spin the whole budget
	}
	return nil
}

func (s *Session) pumpCapture(rtp *rtpSession, agent *ice.Agent, cfg AudioConfig) {
	if cfg.Capture == nil {
		return
	}
	samplesPerFrame := cfg.SampleRate * s.cfg.FrameMs / 1000
	buf := make([]byte, samplesPerFrame*2) // PCM16LE
	n, err := cfg.Capture.ReadAudio(buf, samplesPerFrame)
	if err != nil || n == 0 {
		return
	}
	pkt, err := rtp.packetize(buf[:n*2])
	if err != nil {
		return
	}
	if conn := agent.Conn(); conn != nil {
		_, _ = conn.Write(pkt)
		rtp.stats.PacketsSent++
		rtp.stats.BytesSent += uint64(len(pkt))
		rtp.stats.LastSentAt = time.Now()
		s.met.RTPPacketsSent.WithLabelValues("audio").Inc()
	}
}

// SendDTMF transmits a single RFC 4733 telephone-event digit on the
// audio RTP session, per spec §9 supplement's restored DTMF path. Valid
// only once the Media Session has an established audio connection;
// durationMs defaults to 100ms (a typical DTMF digit duration) when 0.
func (s *Session) SendDTMF(digit byte, durationMs int) error {
	s.mu.Lock()
	if s.audioRTP == nil || s.dtmf == nil || s.audioAgent == nil {
		s.mu.Unlock()
		return errcode.New(errcode.ErrInvalidState, fmt.Errorf("SendDTMF requires an enabled audio leg"))
	}
	if State(s.fsm.Current()) != StateConnected {
		s.mu.Unlock()
		return errcode.New(errcode.ErrInvalidState, fmt.Errorf("SendDTMF called in state %s", s.fsm.Current()))
	}
	if durationMs <= 0 {
		durationMs = 100
	}
	clockRate := s.audioRTP.clockRate
	durationSamples := uint32(clockRate * durationMs / 1000)
	conn := s.audioAgent.Conn()
	dtmf := s.dtmf
	s.mu.Unlock()

	if conn == nil {
		return errcode.New(errcode.ErrInvalidState, fmt.Errorf("SendDTMF requires an established ICE connection"))
	}

	packets, err := dtmf.BuildDigit(digit, durationSamples, 10)
	if err != nil {
		return err
	}
	for _, pkt := range packets {
		if _, err := conn.Write(pkt); err != nil {
			return errcode.New(errcode.ErrRTPParseFailed, err)
		}
	}
	return nil
}

func (s *Session) pumpReceive(rtp *rtpSession, conn interface{ Read([]byte) (int, error) }, cfg AudioConfig, dir Direction, mediaKind string) {
	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return
	}

	if transport.Classify(buf[:n]) == transport.ProtocolRTCP {
		_ = rtp.parseRTCP(buf[:n])
		return
	}

	pcm, err := rtp.depacketize(buf[:n])
	if err != nil {
		return
	}
	rtp.stats.PacketsReceived++
	rtp.stats.BytesReceived += uint64(n)
	rtp.stats.LastReceivedAt = time.Now()
	s.met.RTPPacketsReceived.WithLabelValues(mediaKind).Inc()

	if (dir == DirectionSendRecv || dir == DirectionRecvOnly) && cfg.Playback != nil {
		_, _ = cfg.Playback.WriteAudio(pcm, len(pcm)/2)
		if cfg.Record != nil {
			_, _ = cfg.Record.WriteAudio(pcm, len(pcm)/2)
		}
	}
}

func (s *Session) maybeSendRTCP(rtp *rtpSession, agent *ice.Agent) {
	now := time.Now()
	s.mu.Lock()
	due := now.Sub(s.lastRTCP) >= 5*time.Second
	if due {
		s.lastRTCP = now
	}
	s.mu.Unlock()
	if !due {
		return
	}
	pkt := rtp.buildRTCPReport()
	if conn := agent.Conn(); conn != nil {
		_, _ = conn.Write(pkt)
		rtp.stats.RTCPSent++
		s.met.RTCPReportsSent.WithLabelValues("audio").Inc()
	}
}

// Stop transitions to disconnected and cancels timers; RTP sessions
// remain queryable for statistics until Destroy. Per spec §9 supplement,
// an RTCP BYE is sent for each active SSRC before tearing down.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.gatherCancel != nil {
		s.gatherCancel()
	}
	if s.connectCancel != nil {
		s.connectCancel()
	}
	s.sendGoodbyes()
	err := s.fsm.Event(context.Background(), "stop")
	s.mu.Unlock()
	if err != nil {
		return errcode.New(errcode.ErrInvalidState, err)
	}
	return nil
}

// sendGoodbyes best-effort sends an RTCP BYE on each media component
// whose ICE connection is established. Called with s.mu held.
func (s *Session) sendGoodbyes() {
	if s.audioRTP != nil && s.audioAgent != nil {
		if conn := s.audioAgent.Conn(); conn != nil {
			_, _ = conn.Write(s.audioRTP.buildGoodbye())
		}
	}
	if s.videoRTP != nil && s.videoAgent != nil {
		if conn := s.videoAgent.Conn(); conn != nil {
			_, _ = conn.Write(s.videoRTP.buildGoodbye())
		}
	}
}

// Destroy releases the ICE agents and RTP sessions. The Media Session is
// unusable afterward.
func (s *Session) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fsm.Current() != string(StateDisconnected) && s.fsm.Current() != string(StateClosed) {
		s.sendGoodbyes()
	}
	if s.fsm.Current() != string(StateClosed) {
		_ = s.fsm.Event(context.Background(), "close")
	}
	if s.audioAgent != nil {
		_ = s.audioAgent.Close()
	}
	if s.videoAgent != nil {
		_ = s.videoAgent.Close()
	}
	return nil
}

// State returns the current Media Session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State(s.fsm.Current())
}

// LocalSDP returns the cached local SDP. Per spec §3's invariant, it is
// only meaningful once State() is one of {gathered, connecting,
// connected, disconnected}.
func (s *Session) LocalSDP() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localSDP
}

// Stats returns a snapshot of the audio RTP session's statistics.
func (s *Session) Stats() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audioRTP == nil {
		return Statistics{}
	}
	return s.audioRTP.stats
}

func (s *Session) activeAgents() []*ice.Agent {
	var out []*ice.Agent
	if s.audioAgent != nil {
		out = append(out, s.audioAgent)
	}
	if s.videoAgent != nil {
		out = append(out, s.videoAgent)
	}
	return out
}

func (s *Session) dtmfEnabled() bool {
	return s.cfg.Audio.Enabled
}

func (s *Session) audioCandidates() []ice.Candidate {
	if s.audioAgent == nil {
		return nil
	}
	return s.audioAgent.LocalCandidates()
}

func (s *Session) videoCandidates() []ice.Candidate {
	if s.videoAgent == nil {
		return nil
	}
	return s.videoAgent.LocalCandidates()
}

// preferredCandidate picks the highest-priority local candidate to use
// as the SDP c= line, per spec §6.
func (s *Session) preferredCandidate() (string, int, error) {
	var best *ice.Candidate
	for _, c := range s.audioCandidates() {
		cc := c
		if best == nil || cc.Priority > best.Priority {
			best = &cc
		}
	}
	if best == nil {
		return "", 0, errcode.New(errcode.ErrMediaICEFailed, fmt.Errorf("no local candidates gathered"))
	}
	return best.IP, best.Port, nil
}
