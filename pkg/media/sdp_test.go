package media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddedsip/uacore/pkg/codec"
	"github.com/embeddedsip/uacore/pkg/ice"
)

func TestSDPRoundTrip(t *testing.T) {
	// Fixed local config from the spec's SDP round-trip scenario: PCMA,
	// 8000 Hz, one host candidate at 192.0.2.1:20000, ufrag abcd, pwd
	// 12345678.
	candidate := ice.Candidate{
		Type:       ice.CandidateHost,
		Foundation: "1",
		Component:  1,
		Priority:   2130706431,
		IP:         "192.0.2.1",
		Port:       20000,
	}
	require.Equal(t, "1 1 UDP 2130706431 192.0.2.1 20000 typ host", candidate.SDPLine())

	s := &Session{
		cfg: Config{
			Audio: AudioConfig{Enabled: true, PayloadType: codec.PCMA, SampleRate: 8000},
			Direction: DirectionSendRecv,
		},
		sessionIDSeed: 1,
	}

	// Build a minimal media description directly, bypassing the ICE agent
	// dependency buildLocalSDP otherwise needs.
	md, err := s.buildMediaDescription("audio", "192.0.2.1", 20000, codec.PCMA, 8000,
		[]ice.Candidate{candidate}, "abcd", "12345678")
	require.NoError(t, err)

	raw, err := md.Marshal()
	require.NoError(t, err)
	rendered := string(raw)

	assert.Contains(t, rendered, "m=audio 20000 RTP/AVP 8")
	assert.Contains(t, rendered, "a=rtpmap:8 PCMA/8000")
	assert.Contains(t, rendered, "a=ice-ufrag:abcd")
	assert.Contains(t, rendered, "a=ice-pwd:12345678")
	assert.Contains(t, rendered, "a=candidate:1 1 UDP 2130706431 192.0.2.1 20000 typ host")
}

func TestParseRemoteSDPIgnoresUnknownAttributes(t *testing.T) {
	raw := "v=0\r\n" +
		"o=- 1 1 IN IP4 198.51.100.2\r\n" +
		"s=-\r\n" +
		"c=IN IP4 198.51.100.2\r\n" +
		"t=0 0\r\n" +
		"m=audio 30000 RTP/AVP 8\r\n" +
		"a=rtpmap:8 PCMA/8000\r\n" +
		"a=ice-ufrag:xyz1\r\n" +
		"a=ice-pwd:abcdefgh\r\n" +
		"a=unknown-future-attribute:surprise\r\n" +
		"a=candidate:1 1 UDP 2130706431 198.51.100.2 30000 typ host\r\n"

	remote, err := parseRemoteSDP(raw)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.2", remote.ConnectionIP)
	assert.Equal(t, 30000, remote.AudioPort)
	assert.Equal(t, codec.PCMA, remote.AudioPayload)
	assert.Equal(t, "xyz1", remote.ICEUfrag)
	assert.Equal(t, "abcdefgh", remote.ICEPwd)
	require.Len(t, remote.Candidates, 1)
	assert.Equal(t, "198.51.100.2", remote.Candidates[0].IP)
}

func TestParseRemoteSDPRejectsMissingAudio(t *testing.T) {
	raw := "v=0\r\no=- 1 1 IN IP4 198.51.100.2\r\ns=-\r\nc=IN IP4 198.51.100.2\r\nt=0 0\r\n"
	_, err := parseRemoteSDP(raw)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "audio"))
}
