// Package media implements the media-session coordinator: it drives ICE
// candidate gathering, SDP offer/answer, and pumps audio/video frames
// between attached devices and RTP sessions, per spec §4.2.
package media

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/embeddedsip/uacore/pkg/codec"
	"github.com/embeddedsip/uacore/pkg/device"
	"github.com/embeddedsip/uacore/pkg/ice"
)

// Direction is the media-direction value from spec §3.
type Direction int

const (
	DirectionSendRecv Direction = iota
	DirectionSendOnly
	DirectionRecvOnly
	DirectionInactive
)

func (d Direction) sdpAttribute() string {
	switch d {
	case DirectionSendOnly:
		return "sendonly"
	case DirectionRecvOnly:
		return "recvonly"
	case DirectionInactive:
		return "inactive"
	default:
		return "sendrecv"
	}
}

// State is the Media Session state machine's vocabulary, per spec §4.2.
type State string

const (
	StateIdle        State = "idle"
	StateGathering   State = "gathering"
	StateGathered    State = "gathered"
	StateConnecting  State = "connecting"
	StateConnected   State = "connected"
	StateDisconnected State = "disconnected"
	StateClosed      State = "closed"
)

// Statistics mirrors spec §3's RTP Statistics value.
type Statistics struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	LastSentAt      time.Time
	LastReceivedAt  time.Time
	PacketsLost     int64
	LossRate        float64
	JitterTicks     float64
	RTCPSent        uint64
	RTCPReceived    uint64
}

// AudioConfig configures the audio leg of a Media Session, per spec §6's
// enumerated options.
type AudioConfig struct {
	Enabled     bool
	PayloadType codec.PayloadType
	SampleRate  int // default 8000
	Channels    int // default 1
	Capture     device.AudioCapture
	Playback    device.AudioPlayback
	Record      device.AudioPlayback
}

// VideoConfig configures the video leg.
type VideoConfig struct {
	Enabled  bool
	Payload  codec.PayloadType
	Width    int
	Height   int
	FPS      int
	Capture  device.VideoCapture
	Display  device.VideoDisplay
}

// Config is the Media Session config record of spec §6.
type Config struct {
	StunHost string
	StunPort int // default 3478

	TurnHost string
	TurnPort int // default 3478
	TurnUser string
	TurnPass string

	TrickleICE bool

	Audio AudioConfig
	Video VideoConfig

	Direction Direction // default sendrecv

	EnableRTCP     bool // default true
	JitterBufferMs int  // default 50

	FrameMs int // audio frame duration, default 20ms

	Log zerolog.Logger
}

// Handler is the record of optional callbacks a Media Session invokes, per
// spec §4.2's create() operation.
type Handler struct {
	OnStateChanged  func(State)
	OnSDPReady      func(localSDP string)
	OnNewCandidate  func(ice.Candidate)
	OnConnected     func()
	OnDisconnected  func(err error)
	OnError         func(err error)
}

func defaultConfig(cfg Config) Config {
	if cfg.StunPort == 0 {
		cfg.StunPort = 3478
	}
	if cfg.TurnPort == 0 {
		cfg.TurnPort = 3478
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 8000
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.JitterBufferMs == 0 {
		cfg.JitterBufferMs = 50
	}
	if cfg.FrameMs == 0 {
		cfg.FrameMs = 20
	}
	return cfg
}
