package media

import (
	"github.com/pion/rtp"

	"github.com/embeddedsip/uacore/pkg/codec"
	"github.com/embeddedsip/uacore/pkg/errcode"
)

// dtmfDigitEvents maps DTMF digits to their RFC 4733 event codes
// (section 3.2's named events table, telephony subset).
var dtmfDigitEvents = map[byte]uint8{
	'0': 0, '1': 1, '2': 2, '3': 3, '4': 4,
	'5': 5, '6': 6, '7': 7, '8': 8, '9': 9,
	'*': 10, '#': 11,
	'A': 12, 'B': 13, 'C': 14, 'D': 15,
}

// dtmfSender packetizes one telephone-event digit as the three-to-five
// packet train RFC 4733 §2.5.1.3 describes: a run of packets sharing one
// timestamp, the end packet marked with the end bit, sent with the RTP
// marker bit set only on the first packet of the event.
type dtmfSender struct {
	payloadType codec.PayloadType
	ssrc        uint32
	sequence    uint16
	timestamp   uint32
}

func newDTMFSender(payloadType codec.PayloadType, ssrc uint32, startSeq uint16, startTimestamp uint32) *dtmfSender {
	return &dtmfSender{payloadType: payloadType, ssrc: ssrc, sequence: startSeq, timestamp: startTimestamp}
}

// BuildDigit returns the RTP packets for one DTMF digit held for
// durationSamples RTP clock ticks (8000 Hz), repeating the end packet
// three times per RFC 4733 §2.5.1.3's loss-resilience recommendation.
func (d *dtmfSender) BuildDigit(digit byte, durationSamples uint32, volume uint8) ([][]byte, error) {
	event, ok := dtmfDigitEvents[digit]
	if !ok {
		return nil, errcode.New(errcode.ErrInvalidArgument, errUnknownDTMFDigit(digit))
	}

	// One in-progress packet followed by three redundant end packets, all
	// sharing this event's RTP timestamp, per RFC 4733 §2.5.1.3.
	finalFlags := []bool{false, true, true, true}
	packets := make([][]byte, 0, len(finalFlags))

	for i, final := range finalFlags {
		payload := encodeTelephoneEvent(event, final, volume, uint16(durationSamples))
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == 0,
				PayloadType:    uint8(d.payloadType),
				SequenceNumber: d.sequence,
				Timestamp:      d.timestamp,
				SSRC:           d.ssrc,
			},
			Payload: payload,
		}
		d.sequence++

		raw, err := pkt.Marshal()
		if err != nil {
			return nil, errcode.New(errcode.ErrRTPParseFailed, err)
		}
		packets = append(packets, raw)
	}

	d.timestamp += durationSamples
	return packets, nil
}

// encodeTelephoneEvent builds the 4-byte RFC 4733 §2.3 payload: event
// code, end-bit + reserved + volume, duration.
func encodeTelephoneEvent(event uint8, end bool, volume uint8, duration uint16) []byte {
	b := make([]byte, 4)
	b[0] = event
	if end {
		b[1] = 0x80 | (volume & 0x3F)
	} else {
		b[1] = volume & 0x3F
	}
	b[2] = byte(duration >> 8)
	b[3] = byte(duration)
	return b
}

type errUnknownDTMFDigit byte

func (e errUnknownDTMFDigit) Error() string {
	return "unknown DTMF digit: " + string(byte(e))
}
