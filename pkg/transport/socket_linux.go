//go:build linux

package transport

import (
	"net"

	"golang.org/x/sys/unix"
)

func applyReuseAndBuffers(conn *net.UDPConn, cfg Config) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var ctrlErr error
	err = raw.Control(func(fd uintptr) {
		if cfg.ReuseAddr {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
				ctrlErr = e
				return
			}
		}
		if cfg.ReusePort {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); e != nil {
				ctrlErr = e
				return
			}
		}
		if cfg.RecvBufSize > 0 {
			unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.RecvBufSize)
		}
		if cfg.SendBufSize > 0 {
			unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.SendBufSize)
		}
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
