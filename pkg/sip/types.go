// Package sip implements the SIP Agent: registration, dialog lifecycle,
// digest authentication and incoming-call processing on top of sipgo,
// per spec §4.3.
package sip

import (
	"time"

	"github.com/rs/zerolog"
)

// Config is the Agent config enumerated in spec §6.
type Config struct {
	Username        string
	Password        string
	Nickname        string
	Domain          string
	RegistrarHost   string
	RegistrarPort   int // default 5060
	AutoRegister    bool
	RegisterExpires int // seconds, default 3600
	UserAgent       string
	Log             zerolog.Logger
}

func defaultConfig(cfg Config) Config {
	if cfg.RegistrarPort == 0 {
		cfg.RegistrarPort = 5060
	}
	if cfg.RegisterExpires == 0 {
		cfg.RegisterExpires = 3600
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "uacore"
	}
	return cfg
}

// RegState is the registration state machine's vocabulary, per spec
// §4.3's registration diagram.
type RegState string

const (
	RegStateIdle           RegState = "idle"
	RegStateRegistering    RegState = "registering"
	RegStateRegistered     RegState = "registered"
	RegStateRegisterFailed RegState = "register-failed"
	RegStateUnregistering  RegState = "unregistering"
	RegStateUnregistered   RegState = "unregistered"
)

// DialogState is the dialog state machine's vocabulary, per spec §4.3's
// dialog diagram. UAC and UAS share one vocabulary; "calling" and
// "incoming" are each reachable only from the matching role.
type DialogState string

const (
	DialogStateNull       DialogState = "null"
	DialogStateCalling    DialogState = "calling"
	DialogStateEarly      DialogState = "early"
	DialogStateIncoming   DialogState = "incoming"
	DialogStateConfirmed  DialogState = "confirmed"
	DialogStateFailed     DialogState = "failed"
	DialogStateTerminated DialogState = "terminated"
)

// Direction distinguishes a Dialog created by make_call from one created
// by incoming-INVITE processing.
type Direction int

const (
	DirectionOutgoing Direction = iota
	DirectionIncoming
)

// ErrorKind enumerates the Agent's on-error callback kinds, per spec
// §4.3's "Error surfaces" list.
type ErrorKind string

const (
	ErrKindTransportCreateFailed ErrorKind = "transport-create-failed"
	ErrKindSIPCreateFailed       ErrorKind = "sip-create-failed"
	ErrKindSIPSendFailed         ErrorKind = "sip-send-failed"
	ErrKindSIPParseFailed        ErrorKind = "sip-parse-failed"
	ErrKindSIPAuthFailed         ErrorKind = "sip-auth-failed"
	ErrKindSIPTimeout            ErrorKind = "sip-timeout"
	ErrKindSIPRegisterFailed     ErrorKind = "sip-register-failed"
	ErrKindSIPCallFailed         ErrorKind = "sip-call-failed"
	ErrKindMediaSDPFailed        ErrorKind = "media-sdp-failed"
	ErrKindMediaICEFailed        ErrorKind = "media-ice-failed"
	ErrKindMediaTimeout          ErrorKind = "media-timeout"
	ErrKindAllocatorFailed       ErrorKind = "allocator-failed"
	ErrKindTimerFailed           ErrorKind = "timer-failed"
)

// FromAddress is the value record extracted from an incoming INVITE's
// From header, handed to the incoming-call handler.
type FromAddress struct {
	DisplayName string
	User        string
	Host        string
	Port        int
}

// Handler is the set of callbacks the embedder attaches to an Agent.
type Handler struct {
	OnRegisterResult     func(success bool, status int)
	OnIncomingCall       func(d *Dialog, from FromAddress)
	OnDialogStateChanged func(d *Dialog, state DialogState)
	OnError              func(kind ErrorKind, message string)
}

// registerRetryFraction is the spec §4.3 "expires × 0.8" re-registration
// schedule.
const registerRetryFraction = 0.8

func registerRetryDelay(expiresSeconds int) time.Duration {
	return time.Duration(float64(expiresSeconds)*registerRetryFraction) * time.Second
}
