package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDTLSHandshakeAndSendReceive(t *testing.T) {
	var mu sync.Mutex
	var received []byte

	epB, err := New(Config{Kind: KindTLSServer, BindAddr: "127.0.0.1", BindPort: 0}, func(data []byte, _ Address) {
		mu.Lock()
		defer mu.Unlock()
		received = append([]byte(nil), data...)
	}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, epB.Open())
	defer epB.Close()

	epA, err := New(Config{Kind: KindTLSClient, BindAddr: "127.0.0.1", BindPort: 0}, func([]byte, Address) {}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, epA.Open())
	defer epA.Close()

	n, err := epA.Send([]byte("hello"), epB.LocalAddr())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, epB.Loop(100*time.Millisecond))
		mu.Lock()
		got := string(received)
		mu.Unlock()
		if got == "hello" {
			return
		}
	}
	t.Fatal("did not receive dtls payload within deadline")
}

func TestDTLSServerSendBeforeHandshakeErrors(t *testing.T) {
	ep, err := New(Config{Kind: KindTLSServer, BindAddr: "127.0.0.1", BindPort: 0}, func([]byte, Address) {}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, ep.Open())
	defer ep.Close()

	_, err = ep.Send([]byte("x"), Address{})
	assert.Error(t, err)
}
