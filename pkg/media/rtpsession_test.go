package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddedsip/uacore/pkg/codec"
)

func TestRTPPacketizeDepacketizeRoundTrip(t *testing.T) {
	sender := newRTPSession(codec.PCMA, 8000)
	receiver := newRTPSession(codec.PCMA, 8000)

	pcm := make([]byte, 320) // 160 samples * 2 bytes, 20ms at 8000Hz
	for i := range pcm {
		pcm[i] = byte(i)
	}

	raw, err := sender.packetize(pcm)
	require.NoError(t, err)

	decoded, err := receiver.depacketize(raw)
	require.NoError(t, err)
	assert.Len(t, decoded, len(pcm))
}

func TestRTPTimestampAdvancesBySamplesPerFrame(t *testing.T) {
	sender := newRTPSession(codec.PCMA, 8000)
	startTS := sender.timestamp

	pcm := make([]byte, 320)
	_, err := sender.packetize(pcm)
	require.NoError(t, err)

	assert.Equal(t, startTS+160, sender.timestamp)
}

func TestRTCPSenderReportCarriesCounts(t *testing.T) {
	sender := newRTPSession(codec.PCMA, 8000)
	sender.stats.PacketsSent = 5
	sender.stats.BytesSent = 800

	raw := sender.buildRTCPReport()
	assert.NotEmpty(t, raw)
}

func TestDTMFDigitProducesFourPackets(t *testing.T) {
	sender := newDTMFSender(codec.TelephoneEvent, 0x12345678, 1000, 8000)
	pkts, err := sender.BuildDigit('5', 1600, 10)
	require.NoError(t, err)
	assert.Len(t, pkts, 4)
}

func TestDTMFUnknownDigitErrors(t *testing.T) {
	sender := newDTMFSender(codec.TelephoneEvent, 1, 0, 0)
	_, err := sender.BuildDigit('Z', 1600, 10)
	assert.Error(t, err)
}
