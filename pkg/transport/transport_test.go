package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPEndpointSendReceive(t *testing.T) {
	var mu sync.Mutex
	var received []byte
	var from Address

	cfgB := Config{Kind: KindUDP, BindAddr: "127.0.0.1", BindPort: 0}
	epB, err := New(cfgB, func(data []byte, addr Address) {
		mu.Lock()
		defer mu.Unlock()
		received = append([]byte(nil), data...)
		from = addr
	}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, epB.Open())
	defer epB.Close()

	cfgA := Config{Kind: KindUDP, BindAddr: "127.0.0.1", BindPort: 0}
	epA, err := New(cfgA, func([]byte, Address) {}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, epA.Open())
	defer epA.Close()

	n, err := epA.Send([]byte("hello"), epB.LocalAddr())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.NoError(t, epB.Loop(200*time.Millisecond))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "hello", string(received))
	assert.Equal(t, epA.LocalAddr().Port, from.Port)
}

func TestUDPSendWithoutAddressFails(t *testing.T) {
	ep, err := New(Config{Kind: KindUDP, BindAddr: "127.0.0.1"}, func([]byte, Address) {}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, ep.Open())
	defer ep.Close()

	_, err = ep.Send([]byte("x"), Address{})
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	ep, err := New(Config{Kind: KindUDP, BindAddr: "127.0.0.1"}, func([]byte, Address) {}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, ep.Open())
	require.NoError(t, ep.Close())
	require.NoError(t, ep.Close())
	require.NoError(t, ep.Destroy())
}

func TestOpenTwiceFails(t *testing.T) {
	ep, err := New(Config{Kind: KindUDP, BindAddr: "127.0.0.1"}, func([]byte, Address) {}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, ep.Open())
	defer ep.Close()

	err = ep.Open()
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	invite := []byte("INVITE sip:bob@example.com SIP/2.0\r\n")
	assert.Equal(t, ProtocolSIP, Classify(invite))

	statusLine := []byte("SIP/2.0 200 OK\r\n")
	assert.Equal(t, ProtocolSIP, Classify(statusLine))

	stun := make([]byte, 20)
	stun[0] = 0x00
	stun[4], stun[5], stun[6], stun[7] = 0x21, 0x12, 0xa4, 0x42
	assert.Equal(t, ProtocolSTUN, Classify(stun))

	rtp := []byte{0x80, 0x00, 0x00, 0x00}
	assert.Equal(t, ProtocolRTP, Classify(rtp))

	rtcp := []byte{0x80, 200, 0x00, 0x00}
	assert.Equal(t, ProtocolRTCP, Classify(rtcp))

	assert.Equal(t, ProtocolUnknown, Classify([]byte{0xff, 0xff}))
}
