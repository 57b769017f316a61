// Package transport implements the unified transport abstraction: one
// endpoint owns one socket (or broker connection) and carries opaque byte
// streams or datagrams to and from a peer. SIP messages, STUN, RTP and
// RTCP may all ride the same UDP endpoint; this package does not
// demultiplex them (see Classify), that is left to the component that opened
// the socket.
package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/embeddedsip/uacore/pkg/errcode"
	"github.com/embeddedsip/uacore/pkg/metrics"
)

// Kind enumerates the transport kinds an Endpoint may carry.
type Kind string

const (
	KindUDP       Kind = "udp"
	KindTCP       Kind = "tcp"
	KindTCPServer Kind = "tcp-server"
	KindTCPClient Kind = "tcp-client"
	KindTLS       Kind = "tls"
	KindTLSServer Kind = "tls-server"
	KindTLSClient Kind = "tls-client"
	KindMQTT      Kind = "mqtt"
)

// Address is a value type carrying an IP, a port and an address family
// tag. Freely copied.
type Address struct {
	IP     string
	Port   int
	Family string // "ip4" or "ip6"
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.IP, a.Port)
}

// IsZero reports whether the address was never populated.
func (a Address) IsZero() bool {
	return a.IP == "" && a.Port == 0
}

// MQTTConfig configures the optional pub/sub broker transport.
type MQTTConfig struct {
	Broker      string
	Port        int
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Config configures a Transport endpoint at creation time.
type Config struct {
	Kind Kind

	BindAddr string
	BindPort int // 0 means auto-assigned; observable via LocalAddr() after Open

	EnableIPv6 bool
	NonBlock   bool

	ReuseAddr bool
	ReusePort bool

	RecvBufSize int
	SendBufSize int

	MQTT MQTTConfig
}

// ReceiveFunc is invoked once per inbound datagram/message with the raw
// bytes and the address it arrived from.
type ReceiveFunc func(data []byte, from Address)

// OnErrorFunc is invoked on catastrophic socket errors; after it fires the
// endpoint has already transitioned to closed.
type OnErrorFunc func(err error)

// lifecycle is the created -> open -> looped* -> closed -> destroyed state.
type lifecycle int

const (
	stateCreated lifecycle = iota
	stateOpen
	stateClosed
)

// Endpoint is the transport handle. At most one Endpoint may be open per
// instance; Close is idempotent.
type Endpoint struct {
	mu     sync.Mutex
	config Config
	state  lifecycle
	impl   endpointImpl
	onRecv ReceiveFunc
	onErr  OnErrorFunc
	log    zerolog.Logger
	met    *metrics.Registry
}

// endpointImpl is the kind-specific backend. Exactly one is active per
// Endpoint, selected in New by Config.Kind.
type endpointImpl interface {
	open(cfg Config) error
	localAddr() Address
	send(data []byte, to Address) (int, error)
	loop(budget time.Duration, deliver ReceiveFunc) error
	close() error
}

// New creates an Endpoint in the pre-open state and registers the receive
// callback. It does not touch the network until Open is called.
func New(cfg Config, onRecv ReceiveFunc, log zerolog.Logger) (*Endpoint, error) {
	if onRecv == nil {
		return nil, errcode.New(errcode.ErrInvalidArgument, fmt.Errorf("nil receive callback"))
	}

	var impl endpointImpl
	switch cfg.Kind {
	case KindUDP:
		impl = &udpImpl{}
	case KindTCP, KindTCPServer, KindTCPClient:
		impl = &tcpImpl{serverSide: cfg.Kind == KindTCPServer || cfg.Kind == KindTCP}
	case KindTLS, KindTLSServer, KindTLSClient:
		impl = &dtlsImpl{serverSide: cfg.Kind == KindTLSServer || cfg.Kind == KindTLS}
	case KindMQTT:
		impl = &mqttImpl{}
	default:
		return nil, errcode.New(errcode.ErrInvalidArgument, fmt.Errorf("unsupported transport kind %q", cfg.Kind))
	}

	return &Endpoint{
		config: cfg,
		impl:   impl,
		onRecv: onRecv,
		log:    log.With().Str("component", "transport").Str("kind", string(cfg.Kind)).Logger(),
		met:    metrics.Default(),
	}, nil
}

// Open binds/connects as required by the configured kind. On success the
// bound port is observable via LocalAddr.
func (e *Endpoint) Open() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateCreated {
		return errcode.New(errcode.ErrTransportAlreadyOpen, nil)
	}

	if err := e.impl.open(e.config); err != nil {
		return err
	}
	e.state = stateOpen
	e.log.Info().Str("local_addr", e.impl.localAddr().String()).Msg("transport opened")
	return nil
}

// LocalAddr returns the bound local address. Only meaningful once Open has
// succeeded.
func (e *Endpoint) LocalAddr() Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateOpen {
		return Address{}
	}
	return e.impl.localAddr()
}

// Send delivers one datagram (UDP) or enqueues bytes on a stream (TCP).
// For datagram kinds a missing `to` is an error.
func (e *Endpoint) Send(data []byte, to Address) (int, error) {
	e.mu.Lock()
	open := e.state == stateOpen
	impl := e.impl
	kind := e.config.Kind
	e.mu.Unlock()

	if !open {
		return 0, errcode.New(errcode.ErrTransportNotOpen, nil)
	}
	if kind == KindUDP && to.IsZero() {
		return 0, errcode.New(errcode.ErrTransportInvalidAddr, fmt.Errorf("missing destination for datagram send"))
	}

	n, err := impl.send(data, to)
	if err != nil {
		e.log.Debug().Err(err).Msg("send failed")
	}
	return n, err
}

// Loop drains ready incoming datagrams for up to budget, invoking the
// receive callback exactly once per datagram. It returns after up to
// budget even if idle. Individual parse/decode errors inside the backend
// are never surfaced here; they are logged and the datagram is dropped.
func (e *Endpoint) Loop(budget time.Duration) error {
	e.mu.Lock()
	open := e.state == stateOpen
	impl := e.impl
	e.mu.Unlock()

	if !open {
		return nil
	}

	err := impl.loop(budget, e.onRecv)
	if err != nil {
		e.mu.Lock()
		_ = impl.close()
		e.state = stateClosed
		kind := e.config.Kind
		e.mu.Unlock()
		e.met.TransportErrors.WithLabelValues(string(kind)).Inc()
		e.log.Error().Err(err).Msg("transport socket error, endpoint closed")
		if e.onErr != nil {
			e.onErr(err)
		}
	}
	return nil
}

// OnError registers the catastrophic-error hook (spec §4.1 failure
// semantics).
func (e *Endpoint) OnError(f OnErrorFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onErr = f
}

// Close idempotently releases the socket and buffers.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateClosed || e.state == stateCreated {
		e.state = stateClosed
		return nil
	}
	err := e.impl.close()
	e.state = stateClosed
	return err
}

// Destroy releases any remaining resources. Safe to call after Close;
// never call it twice.
func (e *Endpoint) Destroy() error {
	return e.Close()
}
