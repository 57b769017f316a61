package media

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/embeddedsip/uacore/pkg/codec"
	"github.com/embeddedsip/uacore/pkg/errcode"
)

// rtpSession packetizes outgoing frames and depacketizes incoming ones
// for one media component, tracking RFC 3550 statistics. Packetization
// and RTCP report construction are delegated to pion/rtp and pion/rtcp
// per spec §1's "out of scope" list; this type only sequences their use.
type rtpSession struct {
	mu sync.Mutex

	payload   codec.PayloadType
	clockRate int
	ssrc      uint32

	sequence  uint16
	timestamp uint32

	remoteIP      string
	remotePort    int
	remotePayload codec.PayloadType

	encoder codec.Encoder
	decoder codec.Decoder

	stats Statistics
}

func newRTPSession(payload codec.PayloadType, clockRate int) *rtpSession {
	return &rtpSession{
		payload:   payload,
		clockRate: clockRate,
		ssrc:      randomUint32(),
		sequence:  uint16(randomUint32()),
		timestamp: randomUint32(),
		encoder:   codec.NewEncoder(payload),
		decoder:   codec.NewDecoder(payload),
	}
}

func (r *rtpSession) setRemote(ip string, port int, remotePayload codec.PayloadType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remoteIP = ip
	r.remotePort = port
	r.remotePayload = remotePayload
}

// packetize builds one RTP packet from a frame of PCM16LE audio, advancing
// the timestamp by the configured samples-per-frame increment.
func (r *rtpSession) packetize(pcm16le []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload := pcm16le
	if r.encoder != nil {
		payload = r.encoder.Encode(pcm16le)
	}

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    uint8(r.payload),
			SequenceNumber: r.sequence,
			Timestamp:      r.timestamp,
			SSRC:           r.ssrc,
		},
		Payload: payload,
	}

	r.sequence++
	r.timestamp += uint32(len(pcm16le) / 2)

	raw, err := pkt.Marshal()
	if err != nil {
		return nil, errcode.New(errcode.ErrRTPParseFailed, err)
	}
	return raw, nil
}

// depacketize parses an incoming RTP packet and decodes its payload back
// to PCM16LE, if the negotiated codec requires decoding.
func (r *rtpSession) depacketize(raw []byte) ([]byte, error) {
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(raw); err != nil {
		return nil, errcode.New(errcode.ErrRTPParseFailed, err)
	}

	r.mu.Lock()
	decoder := r.decoder
	r.mu.Unlock()

	if decoder != nil {
		return decoder.Decode(pkt.Payload), nil
	}
	return pkt.Payload, nil
}

// buildRTCPReport produces a Sender Report for this session's outgoing
// stream, per spec §4.2's RTCP timer step.
func (r *rtpSession) buildRTCPReport() []byte {
	r.mu.Lock()
	sr := &rtcp.SenderReport{
		SSRC:        r.ssrc,
		NTPTime:     ntpNow(),
		RTPTime:     r.timestamp,
		PacketCount: uint32(r.stats.PacketsSent),
		OctetCount:  uint32(r.stats.BytesSent),
	}
	r.mu.Unlock()

	raw, err := sr.Marshal()
	if err != nil {
		return nil
	}
	return raw
}

// buildGoodbye produces an RTCP BYE packet for this session's SSRC, sent
// on teardown per spec §9 supplement's "RTCP BYE on teardown" addition.
func (r *rtpSession) buildGoodbye() []byte {
	r.mu.Lock()
	bye := &rtcp.Goodbye{Sources: []uint32{r.ssrc}}
	r.mu.Unlock()

	raw, err := bye.Marshal()
	if err != nil {
		return nil
	}
	return raw
}

// parseRTCP decodes a received RTCP compound packet and folds any
// reception-report loss/jitter figures into this session's statistics.
func (r *rtpSession) parseRTCP(raw []byte) error {
	pkts, err := rtcp.Unmarshal(raw)
	if err != nil {
		return errcode.New(errcode.ErrRTPParseFailed, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pkts {
		switch v := p.(type) {
		case *rtcp.ReceiverReport:
			for _, block := range v.Reports {
				if block.SSRC == r.ssrc {
					r.stats.PacketsLost = int64(block.TotalLost)
					r.stats.JitterTicks = float64(block.Jitter)
					if block.TotalLost >= 0 {
						r.stats.LossRate = float64(block.FractionLost) / 256.0
					}
				}
			}
		}
		r.stats.RTCPReceived++
	}
	return nil
}

func randomUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// ntpNow is grounded on RFC 3550 §4's 64-bit NTP timestamp format
// (seconds since 1900-01-01 in the high 32 bits, fraction in the low
// 32). pion/rtcp does not compute this for callers.
func ntpNow() uint64 {
	const ntpEpochOffset = 2208988800 // seconds between 1900 and 1970 epochs
	now := time.Now()
	sec := uint64(now.Unix()) + ntpEpochOffset
	frac := uint64(now.Nanosecond()) * (1 << 32) / 1e9
	return sec<<32 | frac
}
