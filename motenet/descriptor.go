package motenet

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/metal-stack/motenet/am"
)

// Source is the kind of path a connection takes to the mote network.
type Source int

// The supported connection sources.
const (
	// SourceNone marks a descriptor that has not been parsed.
	SourceNone Source = iota
	// SourceDirect talks to an IP reachable mote through kernel
	// sockets.
	SourceDirect
	// SourceServer talks AM through a serial forwarder over TCP.
	SourceServer
	// SourceSerial talks AM over a serial line.
	SourceSerial
)

func (s Source) String() string {
	switch s {
	case SourceDirect:
		return "direct"
	case SourceServer:
		return "server"
	case SourceSerial:
		return "serial"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// SockType selects how Send and Recv treat the AM header.
type SockType int

// Socket types. The values match the BSD constants.
const (
	// SockDgram sockets exchange payloads; the connection layer
	// adds and strips the AM header and filters received frames.
	SockDgram SockType = 2
	// SockRaw sockets exchange complete AM frames, unfiltered.
	SockRaw SockType = 3
)

func (t SockType) String() string {
	switch t {
	case SockDgram:
		return "dgram"
	case SockRaw:
		return "raw"
	default:
		return fmt.Sprintf("socktype(%d)", int(t))
	}
}

// Size limits of the descriptor strings.
const (
	MaxDeviceLen = 32
	MaxBaudLen   = 16
	MaxTextLen   = 80
)

// Descriptor describes one logical connection to the mote network,
// whether or not it is open.
type Descriptor struct {
	// Source is fixed when the descriptor is parsed.
	Source Source

	// Host and Port as written in the connection string, and the
	// addresses they resolved to. Direct and Server only.
	Host  string
	Port  string
	Addrs []netip.AddrPort

	// Device and Baud of a Serial connection.
	Device string
	Baud   string

	// Text is the connection string the descriptor was parsed from.
	Text string

	// Local and Remote are the AM endpoints set by Bind and Connect.
	// Direct connections leave addressing to the kernel and never
	// use them.
	Local  am.Addr
	Remote am.Addr

	Family   int
	SockType SockType

	connected bool
	open      bool
}

// Target returns the host:port or device:baud pair the descriptor
// was parsed from.
func (d *Descriptor) Target() string {
	switch d.Source {
	case SourceSerial:
		return d.Device + ":" + d.Baud
	default:
		return net.JoinHostPort(d.Host, d.Port)
	}
}

func (d *Descriptor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "(%s) ", d.Text)
	switch d.Source {
	case SourceDirect, SourceServer:
		fmt.Fprintf(&b, "%s@", d.Source)
		for _, a := range d.Addrs {
			fmt.Fprintf(&b, "<%s>", a)
		}
	case SourceSerial:
		fmt.Fprintf(&b, "serial@%s:%s", d.Device, d.Baud)
	default:
		fmt.Fprintf(&b, "unknown, %d", int(d.Source))
	}
	return b.String()
}
