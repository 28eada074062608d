package acceptor

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestBindListenerIPv4(t *testing.T) {
	cfg := Config{BindAddress: "127.0.0.1", Port: 0, Backlog: 16}
	fd, err := bindListener(cfg)
	if err != nil {
		t.Fatalf("bindListener: %v", err)
	}
	defer unix.Close(int(fd))

	sa, err := unix.Getsockname(int(fd))
	if err != nil {
		t.Fatalf("Getsockname: %v", err)
	}
	if _, ok := sa.(*unix.SockaddrInet4); !ok {
		t.Errorf("expected SockaddrInet4, got %T", sa)
	}
}

func TestBindListenerIPv4Any(t *testing.T) {
	cfg := Config{BindAddress: "", Port: 0, Backlog: 16}
	fd, err := bindListener(cfg)
	if err != nil {
		t.Fatalf("bindListener: %v", err)
	}
	defer unix.Close(int(fd))

	sa, err := unix.Getsockname(int(fd))
	if err != nil {
		t.Fatalf("Getsockname: %v", err)
	}
	if _, ok := sa.(*unix.SockaddrInet4); !ok {
		t.Errorf("expected SockaddrInet4 for empty bind address, got %T", sa)
	}
}

func TestBindListenerIPv6(t *testing.T) {
	cfg := Config{BindAddress: "::1", Port: 0, Backlog: 16}
	fd, err := bindListener(cfg)
	if err != nil {
		t.Skipf("IPv6 loopback unavailable in this environment: %v", err)
	}
	defer unix.Close(int(fd))

	sa, err := unix.Getsockname(int(fd))
	if err != nil {
		t.Fatalf("Getsockname: %v", err)
	}
	if _, ok := sa.(*unix.SockaddrInet6); !ok {
		t.Errorf("expected SockaddrInet6, got %T", sa)
	}
}

func TestBindListenerRejectsInUsePort(t *testing.T) {
	cfg := Config{BindAddress: "127.0.0.1", Port: 0, Backlog: 16}
	fd1, err := bindListener(cfg)
	if err != nil {
		t.Fatalf("bindListener: %v", err)
	}
	defer unix.Close(int(fd1))

	sa, err := unix.Getsockname(int(fd1))
	if err != nil {
		t.Fatalf("Getsockname: %v", err)
	}
	port := sa.(*unix.SockaddrInet4).Port

	cfg.Port = uint16(port)
	fd2, err := bindListener(cfg)
	if err == nil {
		unix.Close(int(fd2))
		t.Fatal("expected bind to a port already listening on to fail")
	}
}

func TestNewValidatesNumReactors(t *testing.T) {
	_, err := New(Config{BindAddress: "127.0.0.1", Port: 0}, 0, func(int, int32) {})
	if err == nil {
		t.Error("expected New to reject numReactors <= 0")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	cfg := Config{BindAddress: "127.0.0.1", Port: 0}
	a, err := New(cfg, 2, func(int, int32) {})
	if err != nil {
		t.Skipf("ring creation unavailable in this environment: %v", err)
	}
	defer a.Stop()

	if a.cfg.WaitTimeout != DefaultWaitTimeout {
		t.Errorf("WaitTimeout = %v, want default %v", a.cfg.WaitTimeout, DefaultWaitTimeout)
	}
	if a.cfg.AcceptBatch != defaultAcceptBatch {
		t.Errorf("AcceptBatch = %d, want default %d", a.cfg.AcceptBatch, defaultAcceptBatch)
	}
	if a.cfg.Backlog != 1024 {
		t.Errorf("Backlog = %d, want default 1024", a.cfg.Backlog)
	}
}
