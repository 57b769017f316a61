package ice

import (
	"testing"

	pion "github.com/pion/ice/v4"
	"github.com/stretchr/testify/assert"
)

func TestCandidateSDPLineHost(t *testing.T) {
	c := Candidate{
		Type:       CandidateHost,
		Transport:  TransportUDP,
		Foundation: "1",
		Component:  1,
		Priority:   2130706431,
		IP:         "192.168.1.5",
		Port:       42000,
	}
	assert.Equal(t, "1 1 UDP 2130706431 192.168.1.5 42000 typ host", c.SDPLine())
}

func TestCandidateSDPLineWithRelated(t *testing.T) {
	c := Candidate{
		Type:        CandidateServerReflexive,
		Foundation:  "2",
		Component:   1,
		Priority:    1694498815,
		IP:          "203.0.113.9",
		Port:        42001,
		RelatedIP:   "192.168.1.5",
		RelatedPort: 42000,
	}
	assert.Equal(t, "2 1 UDP 1694498815 203.0.113.9 42001 typ srflx raddr 192.168.1.5 rport 42000", c.SDPLine())
}

func TestFromPionStateMapping(t *testing.T) {
	assert.Equal(t, StateConnected, fromPionState(pion.ConnectionStateConnected))
	assert.Equal(t, StateConnected, fromPionState(pion.ConnectionStateCompleted))
	assert.Equal(t, StateFailed, fromPionState(pion.ConnectionStateFailed))
	assert.Equal(t, StateDisconnected, fromPionState(pion.ConnectionStateDisconnected))
	assert.Equal(t, StateClosed, fromPionState(pion.ConnectionStateClosed))
}
