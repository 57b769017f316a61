// Package errcode implements the error-code space shared by every
// component of the core: a 32-bit value with the high bit set, a module
// byte, and a code, plus a lookup table for human-readable descriptions.
package errcode

import "fmt"

// Module identifies which component raised a Code.
type Module byte

const (
	ModuleCommon    Module = 0
	ModuleTransport Module = 1
	ModuleSIP       Module = 2
	ModuleRTP       Module = 3
	ModuleCodec     Module = 4
	ModuleMedia     Module = 5
)

func (m Module) String() string {
	switch m {
	case ModuleCommon:
		return "common"
	case ModuleTransport:
		return "transport"
	case ModuleSIP:
		return "sip"
	case ModuleRTP:
		return "rtp"
	case ModuleCodec:
		return "codec"
	case ModuleMedia:
		return "media"
	default:
		return "unknown"
	}
}

// highBit marks every value produced by Make as an error code rather than
// a plain successful count, matching spec's "32-bit integers with the
// high bit set" requirement.
const highBit uint32 = 1 << 31

// Code is a packed (module, code) pair with the high bit set.
type Code uint32

// Make packs a module and a sub-code into a Code value.
func Make(m Module, sub uint16) Code {
	return Code(highBit | uint32(m)<<16 | uint32(sub))
}

// Module extracts the module byte from a Code.
func (c Code) Module() Module {
	return Module((uint32(c) >> 16) & 0xff)
}

// Sub extracts the sub-code.
func (c Code) Sub() uint16 {
	return uint16(uint32(c) & 0xffff)
}

// IsError reports whether the high bit is set, i.e. this value represents
// a failure rather than a non-negative byte/sample count.
func (c Code) IsError() bool {
	return uint32(c)&highBit != 0
}

func (c Code) String() string {
	if desc, ok := descriptions[c]; ok {
		return desc
	}
	return fmt.Sprintf("%s error 0x%04x", c.Module(), c.Sub())
}

// Error wraps a Code as a Go error, optionally carrying an underlying
// cause for %w-style unwrapping.
type Error struct {
	Code  Code
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Code.String(), e.Cause)
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error from a Code, optionally wrapping a cause.
func New(c Code, cause error) *Error {
	return &Error{Code: c, Cause: cause}
}

// Sub-codes, grouped by module. Only the ones the core actually raises.
const (
	subInvalidArgument uint16 = iota + 1
	subInvalidState
	subNotFound
	subTimeout
	subWouldBlock
	subUnreachable
	subConnRefused
	subConnReset
	subAllocFailed
	subParseFailed
	subAuthFailed
	subExhausted
	subCreateFailed
	subSendFailed
	subRegisterFailed
	subCallFailed
	subICEFailed
)

var (
	// Common
	ErrInvalidArgument = Make(ModuleCommon, subInvalidArgument)
	ErrInvalidState    = Make(ModuleCommon, subInvalidState)
	ErrNotFound        = Make(ModuleCommon, subNotFound)
	ErrAllocFailed     = Make(ModuleCommon, subAllocFailed)

	// Transport
	ErrTransportWouldBlock   = Make(ModuleTransport, subWouldBlock)
	ErrTransportUnreachable  = Make(ModuleTransport, subUnreachable)
	ErrTransportInvalidAddr  = Make(ModuleTransport, subInvalidArgument)
	ErrTransportTimeout      = Make(ModuleTransport, subTimeout)
	ErrTransportConnRefused  = Make(ModuleTransport, subConnRefused)
	ErrTransportConnReset    = Make(ModuleTransport, subConnReset)
	ErrTransportAlreadyOpen  = Make(ModuleTransport, subInvalidState)
	ErrTransportNotOpen      = Make(ModuleTransport, subNotFound)
	ErrTransportCreateFailed = Make(ModuleTransport, subCreateFailed)

	// SIP
	ErrSIPParseFailed    = Make(ModuleSIP, subParseFailed)
	ErrSIPAuthFailed     = Make(ModuleSIP, subAuthFailed)
	ErrSIPTimeout        = Make(ModuleSIP, subTimeout)
	ErrSIPInvalidState   = Make(ModuleSIP, subInvalidState)
	ErrSIPDialogNotFound = Make(ModuleSIP, subNotFound)
	ErrSIPCreateFailed   = Make(ModuleSIP, subCreateFailed)
	ErrSIPSendFailed     = Make(ModuleSIP, subSendFailed)
	ErrSIPRegisterFailed = Make(ModuleSIP, subRegisterFailed)
	ErrSIPCallFailed     = Make(ModuleSIP, subCallFailed)

	// RTP
	ErrRTPParseFailed = Make(ModuleRTP, subParseFailed)

	// Media
	ErrMediaInvalidState = Make(ModuleMedia, subInvalidState)
	ErrMediaSDPFailed    = Make(ModuleMedia, subParseFailed)
	ErrMediaICEFailed    = Make(ModuleMedia, subICEFailed)
	ErrMediaTimeout      = Make(ModuleMedia, subTimeout)

	// Timer wheel (common module, exhausted and create-failed sub-codes)
	ErrTimerExhausted = Make(ModuleCommon, subExhausted)
	ErrTimerFailed    = Make(ModuleCommon, subCreateFailed)
)

var descriptions = map[Code]string{
	ErrInvalidArgument:      "invalid argument",
	ErrInvalidState:         "invalid state for this operation",
	ErrNotFound:             "not found",
	ErrAllocFailed:          "allocation failed",
	ErrTransportWouldBlock:  "operation would block",
	ErrTransportUnreachable: "destination unreachable",
	ErrTransportInvalidAddr: "invalid address",
	ErrTransportTimeout:     "transport timeout",
	ErrTransportConnRefused: "connection refused",
	ErrTransportConnReset:   "connection reset",
	ErrTransportAlreadyOpen:  "transport endpoint already open",
	ErrTransportNotOpen:      "transport endpoint not open",
	ErrTransportCreateFailed: "failed to create transport",
	ErrSIPParseFailed:        "failed to parse SIP message",
	ErrSIPAuthFailed:         "SIP authentication failed",
	ErrSIPTimeout:            "SIP transaction timeout",
	ErrSIPInvalidState:       "invalid dialog state for this operation",
	ErrSIPDialogNotFound:     "dialog not found",
	ErrSIPCreateFailed:       "failed to create SIP agent",
	ErrSIPSendFailed:         "failed to send SIP request",
	ErrSIPRegisterFailed:     "SIP registration failed",
	ErrSIPCallFailed:         "SIP call failed",
	ErrRTPParseFailed:        "failed to parse RTP packet",
	ErrMediaInvalidState:     "invalid media session state for this operation",
	ErrMediaSDPFailed:        "failed to negotiate SDP",
	ErrMediaICEFailed:        "ICE connectivity failure",
	ErrMediaTimeout:          "media session timeout",
	ErrTimerExhausted:        "timer wheel exhausted",
	ErrTimerFailed:           "timer operation failed",
}

// Describe looks up the human-readable description of a Code.
func Describe(c Code) string {
	return c.String()
}
