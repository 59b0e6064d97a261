//go:build unix

package motenet

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// directConn is a kernel datagram socket to an IP reachable mote.
type directConn struct {
	d  *Descriptor
	fd int
	v4 bool
}

func openDirect(d *Descriptor) (transport, error) {
	// the first candidate decides the address family, like the
	// connect that will usually follow
	v4 := d.Addrs[0].Addr().Is4()
	family := unix.AF_INET6
	if v4 {
		family = unix.AF_INET
	}
	fd, err := unix.Socket(family, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)
	return &directConn{d: d, fd: fd, v4: v4}, nil
}

// sockaddr converts addr into a kernel address of the socket's
// family. A nil addr means the first resolved candidate.
func (c *directConn) sockaddr(addr net.Addr) (unix.Sockaddr, error) {
	var ap netip.AddrPort
	switch a := addr.(type) {
	case nil:
		if len(c.d.Addrs) == 0 {
			return nil, invalidf("no destination address")
		}
		ap = c.d.Addrs[0]
	case *net.UDPAddr:
		if a == nil {
			return nil, invalidf("nil address")
		}
		ap = a.AddrPort()
	case *net.IPAddr:
		if a == nil {
			return nil, invalidf("nil address")
		}
		ip, ok := netip.AddrFromSlice(a.IP)
		if !ok {
			return nil, invalidf("bad IP address %v", a)
		}
		ap = netip.AddrPortFrom(ip.WithZone(a.Zone), 0)
	default:
		return nil, invalidf("address %v is not an IP address", addr)
	}

	ip := ap.Addr().Unmap()
	if c.v4 {
		if !ip.Is4() {
			return nil, invalidf("address %v is not an IPv4 address", ap)
		}
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: ip.As4()}, nil
	}
	sa := &unix.SockaddrInet6{Port: int(ap.Port()), Addr: ap.Addr().As16()}
	if zone := ap.Addr().Zone(); zone != "" {
		ifi, err := net.InterfaceByName(zone)
		if err != nil {
			return nil, fmt.Errorf("zone %q: %w", zone, err)
		}
		sa.ZoneId = uint32(ifi.Index)
	}
	return sa, nil
}

func udpAddr(sa unix.Sockaddr) net.Addr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return net.UDPAddrFromAddrPort(netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)))
	case *unix.SockaddrInet6:
		ip := netip.AddrFrom16(sa.Addr)
		if sa.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(sa.ZoneId)); err == nil {
				ip = ip.WithZone(ifi.Name)
			}
		}
		return net.UDPAddrFromAddrPort(netip.AddrPortFrom(ip, uint16(sa.Port)))
	}
	return nil
}

func (c *directConn) bind(addr net.Addr) error {
	sa, err := c.sockaddr(addr)
	if err != nil {
		return err
	}
	return os.NewSyscallError("bind", unix.Bind(c.fd, sa))
}

func (c *directConn) connect(addr net.Addr) error {
	sa, err := c.sockaddr(addr)
	if err != nil {
		return err
	}
	if err := unix.Connect(c.fd, sa); err != nil {
		return os.NewSyscallError("connect", err)
	}
	c.d.connected = true
	return nil
}

func (c *directConn) send(b []byte, to net.Addr) (int, error) {
	if to == nil {
		if !c.d.connected {
			return -1, invalidf("no destination address")
		}
		n, err := unix.Write(c.fd, b)
		if err != nil {
			return -1, os.NewSyscallError("send", err)
		}
		return n, nil
	}
	sa, err := c.sockaddr(to)
	if err != nil {
		return -1, err
	}
	if err := unix.Sendto(c.fd, b, 0, sa); err != nil {
		return -1, os.NewSyscallError("sendto", err)
	}
	return len(b), nil
}

func (c *directConn) recv(b []byte) (int, net.Addr, error) {
	for {
		n, sa, err := unix.Recvfrom(c.fd, b, 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return -1, nil, os.NewSyscallError("recvfrom", err)
		}
		return n, udpAddr(sa), nil
	}
}

func (c *directConn) localAddr() (net.Addr, error) {
	sa, err := unix.Getsockname(c.fd)
	if err != nil {
		return nil, os.NewSyscallError("getsockname", err)
	}
	return udpAddr(sa), nil
}

func (c *directConn) syscallConn() (syscall.RawConn, error) {
	return directRawConn{c}, nil
}

// directRawConn hands the kernel socket of a direct connection to
// callers that multiplex it themselves.
type directRawConn struct {
	c *directConn
}

func (rc directRawConn) Control(f func(fd uintptr)) error {
	if rc.c.fd < 0 {
		return os.NewSyscallError("control", unix.EBADF)
	}
	f(uintptr(rc.c.fd))
	return nil
}

func (rc directRawConn) Read(f func(fd uintptr) bool) error {
	return rc.wait(unix.POLLIN, f)
}

func (rc directRawConn) Write(f func(fd uintptr) bool) error {
	return rc.wait(unix.POLLOUT, f)
}

// wait calls f until it reports done, polling for events in between.
func (rc directRawConn) wait(events int16, f func(fd uintptr) bool) error {
	for {
		fd := rc.c.fd
		if fd < 0 {
			return os.NewSyscallError("poll", unix.EBADF)
		}
		if f(uintptr(fd)) {
			return nil
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		if _, err := unix.Poll(fds, -1); err != nil && !errors.Is(err, unix.EINTR) {
			return os.NewSyscallError("poll", err)
		}
	}
}

func (c *directConn) close() error {
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return os.NewSyscallError("close", err)
}
