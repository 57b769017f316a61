// Package codec defines the RTP payload-type vocabulary the Media Session
// negotiates and the codec-level transcode used for the two audio codecs
// the core handles directly (PCMU/PCMA). Everything else is carried
// opaquely: the RTP payload bytes pass through to the device sink
// unmodified, since decoding H.264/Opus/etc. is outside this module's
// scope (spec §6, "out of scope" list).
package codec

import "github.com/zaf/g711"

// PayloadType is the RTP/AVP static payload type, per RFC 3551 table 4/5.
type PayloadType uint8

const (
	PCMU PayloadType = 0
	PCMA PayloadType = 8
	G722 PayloadType = 9
	L16Stereo PayloadType = 10
	L16Mono   PayloadType = 11
	Opus      PayloadType = 96
	H264      PayloadType = 97
	H265      PayloadType = 98
	VP8       PayloadType = 99
	VP9       PayloadType = 100

	// TelephoneEvent is the RFC 4733 DTMF payload type this module uses by
	// default; it is negotiable in SDP but not one of the static RFC 3551
	// assignments.
	TelephoneEvent PayloadType = 101
)

// Name returns the rtpmap encoding name for a payload type, or "" if
// unknown.
func Name(pt PayloadType) string {
	switch pt {
	case PCMU:
		return "PCMU"
	case PCMA:
		return "PCMA"
	case G722:
		return "G722"
	case L16Stereo, L16Mono:
		return "L16"
	case Opus:
		return "opus"
	case H264:
		return "H264"
	case H265:
		return "H265"
	case VP8:
		return "VP8"
	case VP9:
		return "VP9"
	case TelephoneEvent:
		return "telephone-event"
	default:
		return ""
	}
}

// ClockRate returns the RTP clock rate a payload type runs at. Audio
// codecs in the RFC 3551 static table default to 8000 Hz except where
// noted; video and Opus rates follow their usual RTP conventions.
func ClockRate(pt PayloadType, configuredSampleRate int) int {
	switch pt {
	case Opus:
		return 48000
	case H264, H265, VP8, VP9:
		return 90000
	case TelephoneEvent:
		return 8000
	default:
		if configuredSampleRate > 0 {
			return configuredSampleRate
		}
		return 8000
	}
}

// Encoder turns PCM16LE sample bytes into the wire payload for a codec.
type Encoder interface {
	Encode(pcm16le []byte) []byte
}

// Decoder turns a codec's wire payload back into PCM16LE sample bytes.
type Decoder interface {
	Decode(payload []byte) []byte
}

// NewEncoder returns the Encoder for a payload type, or nil if the codec
// is passthrough (the caller hands RTP payload bytes straight to the
// device without transcoding).
func NewEncoder(pt PayloadType) Encoder {
	switch pt {
	case PCMU:
		return ulawCodec{}
	case PCMA:
		return alawCodec{}
	default:
		return nil
	}
}

// NewDecoder mirrors NewEncoder for the receive path.
func NewDecoder(pt PayloadType) Decoder {
	switch pt {
	case PCMU:
		return ulawCodec{}
	case PCMA:
		return alawCodec{}
	default:
		return nil
	}
}

type ulawCodec struct{}

func (ulawCodec) Encode(pcm16le []byte) []byte { return g711.EncodeUlaw(pcm16le) }
func (ulawCodec) Decode(payload []byte) []byte { return g711.DecodeUlaw(payload) }

type alawCodec struct{}

func (alawCodec) Encode(pcm16le []byte) []byte { return g711.EncodeAlaw(pcm16le) }
func (alawCodec) Decode(payload []byte) []byte { return g711.DecodeAlaw(payload) }
