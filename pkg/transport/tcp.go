package transport

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/embeddedsip/uacore/pkg/errcode"
)

// tcpImpl is the optional stream transport. It supports both a listening
// server side (accepting one connection at a time, sufficient for a
// single-peer signaling channel) and an outbound client side.
type tcpImpl struct {
	serverSide bool

	mu       sync.Mutex
	listener net.Listener
	conn     net.Conn
	reader   *bufio.Reader
	peer     Address
}

func (t *tcpImpl) open(cfg Config) error {
	addr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.BindPort)

	if t.serverSide {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return errcode.New(errcode.ErrAllocFailed, err)
		}
		t.listener = ln
		return nil
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return errcode.New(errcode.ErrTransportConnRefused, err)
	}
	t.setConn(conn)
	return nil
}

func (t *tcpImpl) setConn(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	if ra, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		t.peer = Address{IP: ra.IP.String(), Port: ra.Port, Family: family(ra.IP)}
	}
}

func (t *tcpImpl) localAddr() Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		if a, ok := t.listener.Addr().(*net.TCPAddr); ok {
			return Address{IP: a.IP.String(), Port: a.Port, Family: family(a.IP)}
		}
	}
	if t.conn != nil {
		if a, ok := t.conn.LocalAddr().(*net.TCPAddr); ok {
			return Address{IP: a.IP.String(), Port: a.Port, Family: family(a.IP)}
		}
	}
	return Address{}
}

func (t *tcpImpl) send(data []byte, to Address) (int, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return 0, errcode.New(errcode.ErrTransportNotOpen, fmt.Errorf("no accepted/dialed connection yet"))
	}
	n, err := conn.Write(data)
	if err != nil {
		return n, errcode.New(errcode.ErrTransportConnReset, err)
	}
	return n, nil
}

func (t *tcpImpl) loop(budget time.Duration, deliver ReceiveFunc) error {
	deadline := time.Now().Add(budget)

	t.mu.Lock()
	listener := t.listener
	conn := t.conn
	t.mu.Unlock()

	if conn == nil && listener != nil {
		// Accept with a budget-bounded deadline if the listener supports it.
		if dl, ok := listener.(interface{ SetDeadline(time.Time) error }); ok {
			dl.SetDeadline(deadline)
		}
		c, err := listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}
			return nil // best-effort: keep listening on the next Loop call
		}
		t.setConn(c)
		t.mu.Lock()
		conn = t.conn
		t.mu.Unlock()
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

		line, err := t.reader.ReadBytes('\n')
		if len(line) > 0 {
			payload := make([]byte, len(line))
			copy(payload, line)
			deliver(payload, t.peerAddr())
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Connection dropped: catastrophic for this endpoint instance.
			return err
		}
	}
}

func (t *tcpImpl) peerAddr() Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peer
}

func (t *tcpImpl) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var err error
	if t.conn != nil {
		err = t.conn.Close()
	}
	if t.listener != nil {
		if lerr := t.listener.Close(); lerr != nil && err == nil {
			err = lerr
		}
	}
	return err
}
