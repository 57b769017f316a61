//go:build !linux && !darwin && !windows

package transport

import "net"

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
