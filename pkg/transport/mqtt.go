package transport

import (
	"fmt"
	"time"

	"github.com/embeddedsip/uacore/pkg/errcode"
)

// mqttImpl is the optional pub/sub broker transport. No third-party MQTT
// client ships in the example pack this module is grounded on (see
// DESIGN.md), so this backend is a thin placeholder: it validates
// configuration and satisfies the Endpoint lifecycle/loop contract, but
// Send always reports ErrTransportUnreachable and Loop only waits out its
// budget without delivering anything. It exists so callers can select KindMQTT without a type
// assertion failure; it is not exercised by the SIP/media data path.
type mqttImpl struct {
	cfg   MQTTConfig
	ready bool
}

func (m *mqttImpl) open(cfg Config) error {
	if cfg.MQTT.Broker == "" {
		return errcode.New(errcode.ErrInvalidArgument, fmt.Errorf("mqtt: broker address required"))
	}
	m.cfg = cfg.MQTT
	m.ready = true
	return nil
}

func (m *mqttImpl) localAddr() Address {
	return Address{IP: m.cfg.Broker, Port: m.cfg.Port}
}

func (m *mqttImpl) send(data []byte, to Address) (int, error) {
	return 0, errcode.New(errcode.ErrTransportUnreachable, fmt.Errorf("mqtt transport has no broker connection wired in"))
}

func (m *mqttImpl) loop(budget time.Duration, deliver ReceiveFunc) error {
	time.Sleep(budget)
	return nil
}

func (m *mqttImpl) close() error {
	m.ready = false
	return nil
}
