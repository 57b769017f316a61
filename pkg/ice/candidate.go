package ice

import (
	"strconv"

	pion "github.com/pion/ice/v4"
)

// CandidateType mirrors spec §3's ICE Candidate type tag.
type CandidateType string

const (
	CandidateHost            CandidateType = "host"
	CandidateServerReflexive CandidateType = "srflx"
	CandidatePeerReflexive   CandidateType = "prflx"
	CandidateRelay           CandidateType = "relay"
)

// TransportKind mirrors spec §3's candidate transport tag.
type TransportKind string

const (
	TransportUDP        TransportKind = "udp"
	TransportTCPActive  TransportKind = "tcp-active"
	TransportTCPPassive TransportKind = "tcp-passive"
	TransportTCPSO      TransportKind = "tcp-so"
)

// Candidate is the value type spec §3 defines: a (transport, IP, port)
// tuple an ICE agent proposes as a possible path, plus the bookkeeping
// SDP needs to describe it.
type Candidate struct {
	Type          CandidateType
	Transport     TransportKind
	Foundation    string
	Component     int // 1 = RTP, 2 = RTCP
	Priority      uint32
	IP            string
	Port          int
	RelatedIP     string
	RelatedPort   int
}

// fromPion converts a pion/ice Candidate into our value type.
func fromPion(c pion.Candidate) Candidate {
	out := Candidate{
		Foundation: c.Foundation(),
		Component:  int(c.Component()),
		Priority:   c.Priority(),
		IP:         c.Address(),
		Port:       c.Port(),
	}

	switch c.Type() {
	case pion.CandidateTypeHost:
		out.Type = CandidateHost
	case pion.CandidateTypeServerReflexive:
		out.Type = CandidateServerReflexive
	case pion.CandidateTypePeerReflexive:
		out.Type = CandidatePeerReflexive
	case pion.CandidateTypeRelay:
		out.Type = CandidateRelay
	}

	switch c.NetworkType().NetworkShort() {
	case "tcp":
		out.Transport = TransportTCPActive
	default:
		out.Transport = TransportUDP
	}

	if related := c.RelatedAddress(); related != nil {
		out.RelatedIP = related.Address
		out.RelatedPort = related.Port
	}

	return out
}

// SDPLine renders the candidate as an `a=candidate` attribute value per
// spec §6's SDP profile (without the leading "a=candidate:" prefix, the
// caller appends that).
func (c Candidate) SDPLine() string {
	line := c.Foundation + " " +
		strconv.Itoa(c.Component) + " " +
		"UDP" + " " +
		strconv.Itoa(int(c.Priority)) + " " +
		c.IP + " " +
		strconv.Itoa(c.Port) + " " +
		"typ " + string(c.Type)
	if c.RelatedIP != "" {
		line += " raddr " + c.RelatedIP + " rport " + strconv.Itoa(c.RelatedPort)
	}
	return line
}
