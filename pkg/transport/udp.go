package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/embeddedsip/uacore/pkg/errcode"
)

// udpImpl is the mandatory UDP backend (spec §4.1). A single UDP endpoint
// may carry SIP, STUN, RTP and RTCP simultaneously; this package never
// looks at the payload to decide that, see Classify.
type udpImpl struct {
	conn *net.UDPConn
	buf  []byte
}

func (u *udpImpl) open(cfg Config) error {
	host := cfg.BindAddr
	network := "udp4"
	if cfg.EnableIPv6 {
		network = "udp"
	}

	addr, err := net.ResolveUDPAddr(network, fmt.Sprintf("%s:%d", host, cfg.BindPort))
	if err != nil {
		return errcode.New(errcode.ErrTransportInvalidAddr, err)
	}

	conn, err := net.ListenUDP(network, addr)
	if err != nil {
		return errcode.New(errcode.ErrAllocFailed, err)
	}

	if err := applyReuseAndBuffers(conn, cfg); err != nil {
		conn.Close()
		return errcode.New(errcode.ErrAllocFailed, err)
	}

	bufSize := cfg.RecvBufSize
	if bufSize == 0 {
		bufSize = 1500
	}

	u.conn = conn
	u.buf = make([]byte, bufSize)
	return nil
}

func (u *udpImpl) localAddr() Address {
	if u.conn == nil {
		return Address{}
	}
	a := u.conn.LocalAddr().(*net.UDPAddr)
	return Address{IP: a.IP.String(), Port: a.Port, Family: family(a.IP)}
}

func (u *udpImpl) send(data []byte, to Address) (int, error) {
	dst, err := net.ResolveUDPAddr("udp", to.String())
	if err != nil {
		return 0, errcode.New(errcode.ErrTransportInvalidAddr, err)
	}
	n, err := u.conn.WriteToUDP(data, dst)
	if err != nil {
		return n, classifyUDPError(err)
	}
	return n, nil
}

func (u *udpImpl) loop(budget time.Duration, deliver ReceiveFunc) error {
	deadline := time.Now().Add(budget)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		u.conn.SetReadDeadline(time.Now().Add(remaining))
		n, from, err := u.conn.ReadFromUDP(u.buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}
			// Catastrophic: the socket itself is broken.
			return err
		}
		if n > 0 {
			payload := make([]byte, n)
			copy(payload, u.buf[:n])
			deliver(payload, Address{IP: from.IP.String(), Port: from.Port, Family: family(from.IP)})
		}
	}
}

func (u *udpImpl) close() error {
	if u.conn == nil {
		return nil
	}
	return u.conn.Close()
}

func family(ip net.IP) string {
	if ip.To4() != nil {
		return "ip4"
	}
	return "ip6"
}

func classifyUDPError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errcode.New(errcode.ErrTransportTimeout, err)
	}
	if errors.Is(err, net.ErrClosed) {
		return errcode.New(errcode.ErrTransportNotOpen, err)
	}
	return errcode.New(errcode.ErrTransportUnreachable, err)
}
