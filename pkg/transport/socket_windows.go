//go:build windows

package transport

import "net"

// Windows has no SO_REUSEPORT and SO_REUSEADDR semantics differ enough
// from POSIX that silently applying them would be misleading; buffer
// sizing still goes through net.UDPConn's portable setters.
func applyReuseAndBuffers(conn *net.UDPConn, cfg Config) error {
	if cfg.RecvBufSize > 0 {
		if err := conn.SetReadBuffer(cfg.RecvBufSize); err != nil {
			return err
		}
	}
	if cfg.SendBufSize > 0 {
		if err := conn.SetWriteBuffer(cfg.SendBufSize); err != nil {
			return err
		}
	}
	return nil
}
