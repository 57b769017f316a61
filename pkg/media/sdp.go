package media

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	psdp "github.com/pion/sdp/v3"

	"github.com/embeddedsip/uacore/pkg/codec"
	"github.com/embeddedsip/uacore/pkg/errcode"
	"github.com/embeddedsip/uacore/pkg/ice"
)

// buildLocalSDP renders the spec §6 SDP profile: v=0, a process-unique
// origin, a c= line pinned to the preferred candidate, one m= line per
// enabled media, rtpmap/ice-ufrag/ice-pwd/candidate attributes, and the
// negotiated direction attribute.
func (s *Session) buildLocalSDP() (string, error) {
	preferredIP, preferredPort, err := s.preferredCandidate()
	if err != nil {
		return "", err
	}

	sessionID := uint64(s.sessionIDSeed)

	desc := &psdp.SessionDescription{
		Version: 0,
		Origin: psdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: sessionID,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: preferredIP,
		},
		SessionName: psdp.SessionName("-"),
		ConnectionInformation: &psdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &psdp.Address{Address: preferredIP},
		},
		TimeDescriptions: []psdp.TimeDescription{{Timing: psdp.Timing{StartTime: 0, StopTime: 0}}},
	}

	var medias []*psdp.MediaDescription

	if s.cfg.Audio.Enabled {
		ufrag, pwd := s.audioAgent.LocalCredentials()
		md, err := s.buildMediaDescription("audio", preferredIP, preferredPort, s.cfg.Audio.PayloadType, s.cfg.Audio.SampleRate, s.audioCandidates(), ufrag, pwd)
		if err != nil {
			return "", err
		}
		medias = append(medias, md)
	}

	if s.cfg.Video.Enabled {
		ufrag, pwd := s.videoAgent.LocalCredentials()
		md, err := s.buildMediaDescription("video", preferredIP, preferredPort, s.cfg.Video.Payload, 90000, s.videoCandidates(), ufrag, pwd)
		if err != nil {
			return "", err
		}
		medias = append(medias, md)
	}

	desc.MediaDescriptions = medias

	raw, err := desc.Marshal()
	if err != nil {
		return "", errcode.New(errcode.ErrMediaSDPFailed, err)
	}
	return string(raw), nil
}

func (s *Session) buildMediaDescription(kind string, ip string, port int, pt codec.PayloadType, clockRate int, candidates []ice.Candidate, ufrag, pwd string) (*psdp.MediaDescription, error) {
	formats := []string{strconv.Itoa(int(pt))}
	attrs := []psdp.Attribute{
		psdp.NewPropertyAttribute(s.cfg.Direction.sdpAttribute()),
		psdp.NewAttribute("rtpmap", fmt.Sprintf("%d %s/%d", pt, codec.Name(pt), codec.ClockRate(pt, clockRate))),
	}

	if kind == "audio" && s.dtmfEnabled() {
		formats = append(formats, strconv.Itoa(int(codec.TelephoneEvent)))
		attrs = append(attrs,
			psdp.NewAttribute("rtpmap", fmt.Sprintf("%d telephone-event/8000", codec.TelephoneEvent)),
			psdp.NewAttribute("fmtp", fmt.Sprintf("%d 0-15", codec.TelephoneEvent)),
		)
	}

	attrs = append(attrs,
		psdp.NewAttribute("ice-ufrag", ufrag),
		psdp.NewAttribute("ice-pwd", pwd),
	)

	for _, c := range candidates {
		attrs = append(attrs, psdp.NewAttribute("candidate", c.SDPLine()))
	}

	return &psdp.MediaDescription{
		MediaName: psdp.MediaName{
			Media:   kind,
			Port:    psdp.RangedPort{Value: port},
			Protos:  []string{"RTP", "AVP"},
			Formats: formats,
		},
		ConnectionInformation: &psdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &psdp.Address{Address: ip},
		},
		Attributes: attrs,
	}, nil
}

// remoteDescription is the subset of a parsed remote SDP the Media
// Session acts on.
type remoteDescription struct {
	ConnectionIP string
	AudioPort    int
	AudioPayload codec.PayloadType
	ICEUfrag     string
	ICEPwd       string
	Candidates   []ice.Candidate
	Direction    Direction
}

func parseRemoteSDP(raw string) (*remoteDescription, error) {
	desc := &psdp.SessionDescription{}
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return nil, errcode.New(errcode.ErrMediaSDPFailed, err)
	}

	out := &remoteDescription{Direction: DirectionSendRecv}

	if desc.ConnectionInformation != nil && desc.ConnectionInformation.Address != nil {
		out.ConnectionIP = desc.ConnectionInformation.Address.Address
	}

	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}
		out.AudioPort = md.MediaName.Port.Value
		if len(md.MediaName.Formats) > 0 {
			if n, err := strconv.Atoi(md.MediaName.Formats[0]); err == nil {
				out.AudioPayload = codec.PayloadType(n)
			}
		}
		if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
			out.ConnectionIP = md.ConnectionInformation.Address.Address
		}
		for _, a := range md.Attributes {
			switch a.Key {
			case "ice-ufrag":
				out.ICEUfrag = a.Value
			case "ice-pwd":
				out.ICEPwd = a.Value
			case "candidate":
				if c, err := parseCandidateLine(a.Value); err == nil {
					out.Candidates = append(out.Candidates, c)
				}
			case "sendonly":
				out.Direction = DirectionSendOnly
			case "recvonly":
				out.Direction = DirectionRecvOnly
			case "inactive":
				out.Direction = DirectionInactive
			case "sendrecv":
				out.Direction = DirectionSendRecv
			}
		}
	}

	if out.AudioPort == 0 {
		return nil, errcode.New(errcode.ErrMediaSDPFailed, fmt.Errorf("remote SDP has no audio media"))
	}

	return out, nil
}

// parseCandidateLine parses an a=candidate value of the form produced by
// ice.Candidate.SDPLine, ignoring unknown trailing extension attributes
// per spec §6's "unknown attributes must be ignored" rule.
func parseCandidateLine(v string) (ice.Candidate, error) {
	fields := strings.Fields(v)
	if len(fields) < 8 {
		return ice.Candidate{}, fmt.Errorf("malformed candidate line %q", v)
	}

	component, _ := strconv.Atoi(fields[1])
	priority, _ := strconv.ParseUint(fields[3], 10, 32)
	port, _ := strconv.Atoi(fields[5])

	c := ice.Candidate{
		Foundation: fields[0],
		Component:  component,
		Transport:  ice.TransportUDP,
		Priority:   uint32(priority),
		IP:         fields[4],
		Port:       port,
		Type:       ice.CandidateType(fields[7]),
	}

	for i := 8; i+1 < len(fields); i += 2 {
		switch fields[i] {
		case "raddr":
			c.RelatedIP = fields[i+1]
		case "rport":
			c.RelatedPort, _ = strconv.Atoi(fields[i+1])
		}
	}

	return c, nil
}

func sessionIDFromClock() uint64 {
	return uint64(time.Now().UnixNano())
}
