// Package turnrelay runs a local TURN server for exercising the Media
// Session's TURN relay path end to end. Spec §6 only asks the core to be
// able to *use* a TURN server (configured via turn-host/turn-user/
// turn-pass and handed to the ICE Agent as a relay candidate source); it
// never asks the core to run one. This package exists so that path can be
// driven against a real TURN implementation in tests instead of a remote
// fixture, using the long-term-credential flow pion/turn ships for
// exactly this purpose.
package turnrelay

import (
	"fmt"
	"net"

	"github.com/pion/turn/v4"
	"github.com/rs/zerolog"

	"github.com/embeddedsip/uacore/pkg/ice"
)

// Config configures a Server.
type Config struct {
	// Realm is the digest realm advertised in ALLOCATE challenges.
	Realm string
	// Username/Password are the single long-term credential this server
	// accepts; a real deployment would back AuthHandler with a user store
	// instead.
	Username string
	Password string
	// RelayAddress is the address relayed allocations are bound to; for a
	// loopback test server this is "127.0.0.1".
	RelayAddress string

	Log zerolog.Logger
}

// Server is a minimal long-term-credential TURN server bound to a single
// UDP listener.
type Server struct {
	inner *turn.Server
	conn  net.PacketConn
	addr  string
}

// Listen starts a TURN server listening on udpAddr (e.g. "127.0.0.1:0" to
// pick a free port).
func Listen(udpAddr string, cfg Config) (*Server, error) {
	conn, err := net.ListenPacket("udp4", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("turnrelay: listen udp: %w", err)
	}

	key := turn.GenerateAuthKey(cfg.Username, cfg.Realm, cfg.Password)

	inner, err := turn.NewServer(turn.ServerConfig{
		Realm: cfg.Realm,
		AuthHandler: func(username, realm string, _ net.Addr) ([]byte, bool) {
			if username != cfg.Username || realm != cfg.Realm {
				return nil, false
			}
			return key, true
		},
		PacketConnConfigs: []turn.PacketConnConfig{
			{
				PacketConn: conn,
				RelayAddressGenerator: &turn.RelayAddressGeneratorStatic{
					RelayAddress: net.ParseIP(cfg.RelayAddress),
					Address:      cfg.RelayAddress,
				},
			},
		},
		LoggerFactory: ice.NewLoggerFactory(cfg.Log),
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("turnrelay: new server: %w", err)
	}

	return &Server{inner: inner, conn: conn, addr: conn.LocalAddr().String()}, nil
}

// Addr returns the host:port the server is listening on.
func (s *Server) Addr() string {
	return s.addr
}

// Close shuts the TURN server and its socket down.
func (s *Server) Close() error {
	return s.inner.Close()
}
