package transport

import "github.com/pion/stun/v3"

// Protocol identifies which upper-layer family a datagram on a shared UDP
// socket belongs to, per spec §4.1's byte-pattern heuristics. The
// Transport itself never demultiplexes; this is a helper for the
// component that owns the socket (the SIP Agent for the signaling port,
// the Media Session for the media port).
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolSIP
	ProtocolSTUN
	ProtocolRTP
	ProtocolRTCP
)

// Classify inspects the first bytes of a datagram to decide its protocol
// family. The SIP check scans the leading run of uppercase letters; the
// STUN, RTP and RTCP checks read only the first eight bytes.
func Classify(data []byte) Protocol {
	if len(data) == 0 {
		return ProtocolUnknown
	}

	// SIP: begins with an ASCII method token or "SIP/2.0".
	if isSIPLike(data) {
		return ProtocolSIP
	}

	first := data[0]

	// STUN: first two bits 00, magic cookie 0x2112A442 at bytes 4..7.
	// stun.IsMessage carries out the same check pion/ice itself uses to
	// demultiplex STUN off a shared socket.
	if first&0xC0 == 0x00 && stun.IsMessage(data) {
		return ProtocolSTUN
	}

	// RTP/RTCP: first two bits 10 (version 2); RTCP's second byte is a
	// packet type in [200, 204].
	if first&0xC0 == 0x80 {
		if len(data) >= 2 && data[1] >= 200 && data[1] <= 204 {
			return ProtocolRTCP
		}
		return ProtocolRTP
	}

	return ProtocolUnknown
}

func isSIPLike(data []byte) bool {
	if len(data) >= 7 && string(data[:7]) == "SIP/2.0" {
		return true
	}
	// A method token is one or more uppercase ASCII letters followed by a
	// space, e.g. "INVITE sip:...", "REGISTER sip:...".
	i := 0
	for i < len(data) && data[i] >= 'A' && data[i] <= 'Z' {
		i++
	}
	return i > 0 && i < len(data) && data[i] == ' '
}
