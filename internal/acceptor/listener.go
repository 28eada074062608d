package acceptor

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// bindListener creates, binds, and listens on a non-blocking TCP socket,
// returning its descriptor. IPv6Only false on an IPv6 bind address gives a
// dual-stack socket; an empty BindAddress binds IPv4 INADDR_ANY.
func bindListener(cfg Config) (int32, error) {
	ip := net.ParseIP(cfg.BindAddress)
	family := unix.AF_INET
	if ip != nil && ip.To4() == nil {
		family = unix.AF_INET6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("acceptor: socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("acceptor: SO_REUSEADDR: %w", err)
	}

	if family == unix.AF_INET6 {
		only := 0
		if cfg.IPv6Only {
			only = 1
		}
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, only); err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("acceptor: IPV6_V6ONLY: %w", err)
		}
		var addr unix.SockaddrInet6
		addr.Port = int(cfg.Port)
		if ip != nil {
			copy(addr.Addr[:], ip.To16())
		}
		if err := unix.Bind(fd, &addr); err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("acceptor: bind: %w", err)
		}
	} else {
		var addr unix.SockaddrInet4
		addr.Port = int(cfg.Port)
		if ip != nil {
			copy(addr.Addr[:], ip.To4())
		}
		if err := unix.Bind(fd, &addr); err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("acceptor: bind: %w", err)
		}
	}

	if err := unix.Listen(fd, cfg.Backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("acceptor: listen: %w", err)
	}

	return int32(fd), nil
}
