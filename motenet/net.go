// Package motenet gives programs a socket shaped API to a mote
// network. Depending on the connection string, traffic goes straight
// to IP reachable motes through kernel sockets, or is carried as
// Active Messages through a serial forwarder or over a serial line.
//
// A connection is used like a BSD socket:
//
//	d, err := motenet.Parse(ctx, "server@localhost:9001")
//	h, err := motenet.Socket(ctx, d, am.Family, motenet.SockDgram)
//	err = motenet.Bind(h, am.Addr{Addr: 0x0001, Type: 0xa0})
//	err = motenet.Connect(h, am.Addr{Addr: 0x0004, Type: 0xa0})
//	n, err := motenet.Send(h, payload)
//	n, from, err := motenet.RecvFrom(h, buf)
//	err = motenet.Close(h)
//
// Each handle must be used by one goroutine at a time.
package motenet // import "github.com/metal-stack/motenet/motenet"

import (
	"context"
	"net"
	"os"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/metal-stack/motenet/serialsource"
)

// DefaultMaxConns is the number of connections a Net keeps open when
// MaxConns is not set.
const DefaultMaxConns = 5

// Handle identifies an open connection. Handle values are never
// reused within a Net.
type Handle int

// PacketConn is a packet transport carrying AM frames. Both
// *sfsource.Conn and *serialsource.Source implement it.
//
// ReadPacket returns io.EOF once the transport has been closed by the
// other side.
type PacketConn interface {
	ReadPacket() ([]byte, error)
	WritePacket(pkt []byte) error
	Close() error
}

// Net is a table of open mote connections and the configuration used
// to open them. The zero value is ready to use.
type Net struct {
	// MaxConns bounds the number of open connections. Zero means
	// DefaultMaxConns.
	MaxConns int

	// Log receives diagnostics. If nil, logging is suppressed.
	Log *zap.SugaredLogger

	// Debug traces resolved addresses and every frame sent or
	// accepted to Log, at debug level.
	Debug bool

	// Observer, if set, is told about every AM frame sent, accepted
	// or dropped.
	Observer Observer

	// Resolver resolves hosts for direct and server connections.
	// Defaults to net.DefaultResolver.
	Resolver Resolver

	// Getenv looks up the environment fallback of Parse. Defaults to
	// os.Getenv.
	Getenv func(key string) string

	// Dialer connects to serial forwarders.
	Dialer *net.Dialer

	// OpenSerial opens serial connections. Defaults to
	// serialsource.Open.
	OpenSerial func(device, baud string, notify func(serialsource.Problem)) (PacketConn, error)

	mu    sync.Mutex
	last  Handle
	conns map[Handle]*conn
}

type conn struct {
	d *Descriptor
	t transport
}

// Default is the Net used by the package level functions.
var Default = &Net{}

func (n *Net) log() *zap.SugaredLogger {
	if n.Log == nil {
		return zap.NewNop().Sugar()
	}
	return n.Log
}

func (n *Net) getenv(key string) string {
	if n.Getenv != nil {
		return n.Getenv(key)
	}
	return os.Getenv(key)
}

func (n *Net) resolver() Resolver {
	if n.Resolver != nil {
		return n.Resolver
	}
	return net.DefaultResolver
}

func (n *Net) maxConns() int {
	if n.MaxConns > 0 {
		return n.MaxConns
	}
	return DefaultMaxConns
}

func (n *Net) observer() Observer {
	var obs Observers
	if n.Debug {
		obs = append(obs, &DebugObserver{Log: n.log()})
	}
	if n.Observer != nil {
		obs = append(obs, n.Observer)
	}
	switch len(obs) {
	case 0:
		return nopObserver{}
	case 1:
		return obs[0]
	}
	return obs
}

// Len returns the number of open connections.
func (n *Net) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.conns)
}

// Lookup returns the descriptor of an open connection.
func (n *Net) Lookup(h Handle) (*Descriptor, error) {
	c, err := n.lookup(h)
	if err != nil {
		return nil, err
	}
	return c.d, nil
}

func (n *Net) lookup(h Handle) (*conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.conns[h]
	if !ok {
		return nil, ErrInvalidHandle
	}
	return c, nil
}

func (n *Net) full() bool {
	return len(n.conns) >= n.maxConns()
}

// Socket opens the transport described by d and returns a handle for
// it. family is recorded for diagnostics; typ decides whether Send
// and Recv exchange payloads (SockDgram) or whole AM frames (SockRaw).
//
// Nothing is left open when Socket fails.
func (n *Net) Socket(ctx context.Context, d *Descriptor, family int, typ SockType) (Handle, error) {
	if d == nil {
		return -1, invalidf("nil descriptor")
	}
	if typ != SockDgram && typ != SockRaw {
		return -1, invalidf("unsupported socket type %s", typ)
	}
	n.mu.Lock()
	if d.open {
		n.mu.Unlock()
		return -1, invalidf("descriptor %s is already open", d.Text)
	}
	if n.full() {
		n.mu.Unlock()
		return -1, ErrNoDescriptorSlots
	}
	n.mu.Unlock()

	t, err := n.open(ctx, d)
	if err != nil {
		n.log().Errorw("open failed", "conn", d.Text, "error", err)
		return -1, err
	}
	d.Family = family
	d.SockType = typ

	n.mu.Lock()
	defer n.mu.Unlock()
	if d.open {
		// opened by someone else while we were opening it
		t.close()
		return -1, invalidf("descriptor %s is already open", d.Text)
	}
	if n.full() {
		// lost a race for the last slot
		t.close()
		return -1, ErrNoDescriptorSlots
	}
	if n.conns == nil {
		n.conns = map[Handle]*conn{}
	}
	n.last++
	h := n.last
	n.conns[h] = &conn{d: d, t: t}
	d.open = true
	return h, nil
}

// Bind sets the local address of h. For AM connections addr must be
// an am.Addr; it becomes the source of sent frames and the filter for
// received ones. Direct connections bind the kernel socket.
func (n *Net) Bind(h Handle, addr net.Addr) error {
	c, err := n.lookup(h)
	if err != nil {
		return err
	}
	return c.t.bind(addr)
}

// Connect sets the remote address of h. For AM connections addr must
// be an am.Addr, used as the destination when Send is not given one.
// Direct connections connect the kernel socket.
func (n *Net) Connect(h Handle, addr net.Addr) error {
	c, err := n.lookup(h)
	if err != nil {
		return err
	}
	return c.t.connect(addr)
}

// Send sends b to the connected remote address of h.
func (n *Net) Send(h Handle, b []byte) (int, error) {
	return n.SendTo(h, b, nil)
}

// SendTo sends b to the address to, or to the connected remote address
// if to is nil. It returns the number of bytes handed to the transport,
// which for datagram AM sockets includes the AM header.
func (n *Net) SendTo(h Handle, b []byte, to net.Addr) (int, error) {
	c, err := n.lookup(h)
	if err != nil {
		return -1, err
	}
	if len(b) == 0 {
		return -1, invalidf("empty buffer")
	}
	return c.t.send(b, to)
}

// Recv receives one packet into b. A packet larger than b is
// truncated; the rest of it is lost. Recv returns 0 and no error once
// the other side has closed the connection.
func (n *Net) Recv(h Handle, b []byte) (int, error) {
	l, _, err := n.RecvFrom(h, b)
	return l, err
}

// RecvFrom is like Recv, and also returns the sender of the packet.
// For AM connections the sender is an am.Addr carrying the source
// address, group and type of the frame.
func (n *Net) RecvFrom(h Handle, b []byte) (int, net.Addr, error) {
	c, err := n.lookup(h)
	if err != nil {
		return -1, nil, err
	}
	if len(b) == 0 {
		return -1, nil, invalidf("empty buffer")
	}
	return c.t.recv(b)
}

// LocalAddr returns the local address of h: the bound AM address, or
// the kernel socket's address for direct connections.
func (n *Net) LocalAddr(h Handle) (net.Addr, error) {
	c, err := n.lookup(h)
	if err != nil {
		return nil, err
	}
	return c.t.localAddr()
}

// SyscallConn returns the raw connection underneath h, for callers
// that poll it or set socket options themselves. Direct connections
// return their kernel socket and Server connections their TCP
// connection. Serial connections have no file descriptor to offer and
// fail with ErrInvalidArgument.
//
// Reading or writing the raw connection bypasses AM framing.
func (n *Net) SyscallConn(h Handle) (syscall.RawConn, error) {
	c, err := n.lookup(h)
	if err != nil {
		return nil, err
	}
	return c.t.syscallConn()
}

// Close closes the connection h and forgets it. Closing a handle
// twice returns ErrInvalidHandle.
func (n *Net) Close(h Handle) error {
	n.mu.Lock()
	c, ok := n.conns[h]
	if !ok {
		n.mu.Unlock()
		return ErrInvalidHandle
	}
	delete(n.conns, h)
	c.d.open = false
	c.d.Addrs = nil
	n.mu.Unlock()

	return c.t.close()
}

// SetDebug turns frame tracing of the Default Net on or off for
// connections opened afterwards, and returns the previous setting.
func SetDebug(on bool) bool {
	prev := Default.Debug
	Default.Debug = on
	return prev
}

// Parse parses a connection string using Default.
func Parse(ctx context.Context, text string) (*Descriptor, error) {
	return Default.Parse(ctx, text)
}

// Socket opens a connection in Default.
func Socket(ctx context.Context, d *Descriptor, family int, typ SockType) (Handle, error) {
	return Default.Socket(ctx, d, family, typ)
}

// Bind sets the local address of a connection in Default.
func Bind(h Handle, addr net.Addr) error { return Default.Bind(h, addr) }

// Connect sets the remote address of a connection in Default.
func Connect(h Handle, addr net.Addr) error { return Default.Connect(h, addr) }

// Send sends on a connection in Default.
func Send(h Handle, b []byte) (int, error) { return Default.Send(h, b) }

// SendTo sends to an address on a connection in Default.
func SendTo(h Handle, b []byte, to net.Addr) (int, error) { return Default.SendTo(h, b, to) }

// Recv receives from a connection in Default.
func Recv(h Handle, b []byte) (int, error) { return Default.Recv(h, b) }

// RecvFrom receives from a connection in Default.
func RecvFrom(h Handle, b []byte) (int, net.Addr, error) { return Default.RecvFrom(h, b) }

// Close closes a connection in Default.
func Close(h Handle) error { return Default.Close(h) }

// SyscallConn returns the raw connection of a connection in Default.
func SyscallConn(h Handle) (syscall.RawConn, error) { return Default.SyscallConn(h) }
