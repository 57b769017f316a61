package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/pion/dtls/v2"

	"github.com/embeddedsip/uacore/pkg/errcode"
)

const dtlsHandshakeTimeout = 10 * time.Second

// dtlsImpl is the Transport's optional secure-signaling kind (spec §1:
// "no SIPS/TLS handshake, though TLS transport may be plugged in"). It
// carries the same single-peer datagram semantics as udpImpl but through
// a DTLS session. Grounded on the teacher's pkg/rtp/transport_dtls.go
// establishDTLSClient/acceptDTLSConnection methods — generalized from a
// goroutine-per-transport blocking model to this package's
// budget-bounded Loop contract: the handshake itself still runs to
// completion in one goroutine (DTLS handshakes aren't naturally
// resumable mid-flight), but Loop only waits out its own budget for it
// to land, picking the result up on a later tick if it hasn't.
type dtlsImpl struct {
	serverSide bool

	mu       sync.Mutex
	udpConn  *net.UDPConn
	dtlsConn *dtls.Conn
	peer     Address

	handshaking bool
	handshakeCh chan handshakeResult
}

type handshakeResult struct {
	conn *dtls.Conn
	err  error
}

func (t *dtlsImpl) open(cfg Config) error {
	network := "udp4"
	if cfg.EnableIPv6 {
		network = "udp"
	}
	laddr, err := net.ResolveUDPAddr(network, fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.BindPort))
	if err != nil {
		return errcode.New(errcode.ErrTransportInvalidAddr, err)
	}

	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return errcode.New(errcode.ErrAllocFailed, err)
	}

	t.mu.Lock()
	t.udpConn = conn
	t.mu.Unlock()

	if t.serverSide {
		t.startServerHandshake()
	}
	return nil
}

// startServerHandshake begins the DTLS accept handshake over the already
// bound socket, once, in the background; loop() polls handshakeCh.
func (t *dtlsImpl) startServerHandshake() {
	t.mu.Lock()
	if t.handshaking || t.dtlsConn != nil {
		t.mu.Unlock()
		return
	}
	t.handshaking = true
	conn := t.udpConn
	ch := make(chan handshakeResult, 1)
	t.handshakeCh = ch
	t.mu.Unlock()

	go func() {
		cfg, err := buildDTLSConfig()
		if err != nil {
			ch <- handshakeResult{nil, err}
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), dtlsHandshakeTimeout)
		defer cancel()
		dc, err := dtls.ServerWithContext(ctx, conn, cfg)
		ch <- handshakeResult{dc, err}
	}()
}

func (t *dtlsImpl) localAddr() Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.udpConn != nil {
		if a, ok := t.udpConn.LocalAddr().(*net.UDPAddr); ok {
			return Address{IP: a.IP.String(), Port: a.Port, Family: family(a.IP)}
		}
	}
	return Address{}
}

// send writes through the established DTLS session, dialing and
// handshaking as a client against `to` on the first call if no session
// exists yet (spec's create/open/send contract has no dedicated "dial"
// verb, so the client side connects lazily exactly like udpImpl).
func (t *dtlsImpl) send(data []byte, to Address) (int, error) {
	t.mu.Lock()
	conn := t.dtlsConn
	serverSide := t.serverSide
	t.mu.Unlock()

	if conn == nil {
		if serverSide {
			return 0, errcode.New(errcode.ErrTransportNotOpen, fmt.Errorf("dtls handshake not complete yet"))
		}
		if to.IsZero() {
			return 0, errcode.New(errcode.ErrTransportInvalidAddr, fmt.Errorf("missing destination for first dtls send"))
		}
		var err error
		conn, err = t.dialAndHandshake(to)
		if err != nil {
			return 0, err
		}
	}

	n, err := conn.Write(data)
	if err != nil {
		return n, errcode.New(errcode.ErrTransportConnReset, err)
	}
	return n, nil
}

func (t *dtlsImpl) dialAndHandshake(to Address) (*dtls.Conn, error) {
	t.mu.Lock()
	local := t.udpConn
	t.mu.Unlock()
	if local != nil {
		local.Close()
	}

	raddr := &net.UDPAddr{IP: net.ParseIP(to.IP), Port: to.Port}
	rawConn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, errcode.New(errcode.ErrTransportConnRefused, err)
	}

	dtlsCfg, err := buildDTLSConfig()
	if err != nil {
		rawConn.Close()
		return nil, errcode.New(errcode.ErrAllocFailed, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dtlsHandshakeTimeout)
	defer cancel()
	dc, err := dtls.ClientWithContext(ctx, rawConn, dtlsCfg)
	if err != nil {
		rawConn.Close()
		return nil, errcode.New(errcode.ErrTransportConnRefused, err)
	}

	t.mu.Lock()
	t.dtlsConn = dc
	t.peer = to
	t.mu.Unlock()
	return dc, nil
}

func (t *dtlsImpl) loop(budget time.Duration, deliver ReceiveFunc) error {
	deadline := time.Now().Add(budget)

	t.mu.Lock()
	conn := t.dtlsConn
	handshaking := t.handshaking
	ch := t.handshakeCh
	t.mu.Unlock()

	if conn == nil && handshaking {
		select {
		case res := <-ch:
			t.mu.Lock()
			t.handshaking = false
			if res.err == nil {
				t.dtlsConn = res.conn
				if ra, ok := res.conn.RemoteAddr().(*net.UDPAddr); ok {
					t.peer = Address{IP: ra.IP.String(), Port: ra.Port, Family: family(ra.IP)}
				}
			}
			conn = t.dtlsConn
			t.mu.Unlock()
			if res.err != nil {
				return nil // best-effort: caller may retry via a fresh Loop tick
			}
		case <-time.After(time.Until(deadline)):
			return nil
		}
	}

	if conn == nil {
		return nil
	}

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		conn.SetReadDeadline(time.Now().Add(remaining))
		buf := make([]byte, 1500)
		n, err := conn.Read(buf)
		if n > 0 {
			deliver(buf[:n], t.peerAddr())
		}
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return nil
			}
			return err
		}
	}
}

func (t *dtlsImpl) peerAddr() Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peer
}

func (t *dtlsImpl) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var err error
	if t.dtlsConn != nil {
		err = t.dtlsConn.Close()
	}
	if t.udpConn != nil {
		if cerr := t.udpConn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// buildDTLSConfig mirrors the teacher's buildDTLSConfig field list,
// trimmed to the fields this core can actually populate: no
// certificate-provisioning surface exists here (spec §1 excludes a
// SIPS/TLS PKI story), so each session gets a throwaway self-signed
// identity and skips peer verification.
func buildDTLSConfig() (*dtls.Config, error) {
	cert, err := selfSignedCertificate()
	if err != nil {
		return nil, err
	}
	return &dtls.Config{
		Certificates:         []tls.Certificate{cert},
		InsecureSkipVerify:   true,
		ExtendedMasterSecret: dtls.RequireExtendedMasterSecret,
	}, nil
}

func selfSignedCertificate() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "uacore"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
