package turnrelay

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/embeddedsip/uacore/pkg/ice"
)

func TestListenAndClose(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", Config{
		Realm:        "uacore-test",
		Username:     "u",
		Password:     "p",
		RelayAddress: "127.0.0.1",
		Log:          zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, srv.Addr())
	require.NoError(t, srv.Close())
}

// TestAgentGathersRelayCandidate drives a real pkg/ice.Agent against this
// package's TURN server and asserts a relay candidate is produced, the
// same path a Media Session takes when Config.TurnHost is set (spec §6).
func TestAgentGathersRelayCandidate(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", Config{
		Realm:        "uacore-test",
		Username:     "relayuser",
		Password:     "relaypass",
		RelayAddress: "127.0.0.1",
		Log:          zerolog.Nop(),
	})
	require.NoError(t, err)
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	agent, err := ice.New(ice.Config{
		TurnHost:   host,
		TurnPort:   port,
		TurnUser:   "relayuser",
		TurnPass:   "relaypass",
		TrickleICE: false,
		Log:        zerolog.Nop(),
	})
	require.NoError(t, err)
	defer agent.Close()

	require.NoError(t, agent.Gather())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	<-agent.GatheringDone(ctx)

	// The relay candidate arrives asynchronously, after the ALLOCATE
	// round trip to the TURN server; local credentials (what
	// GatheringDone waits on) are available earlier. Poll briefly rather
	// than assume ordering.
	deadline := time.Now().Add(4 * time.Second)
	var sawRelay bool
	var last []ice.Candidate
	for time.Now().Before(deadline) {
		last = agent.LocalCandidates()
		for _, c := range last {
			if strings.Contains(c.SDPLine(), "typ relay") {
				sawRelay = true
			}
		}
		if sawRelay {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.True(t, sawRelay, "expected a relay candidate via the local TURN server, got %v", last)
}
