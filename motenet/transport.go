package motenet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/metal-stack/motenet/am"
	"github.com/metal-stack/motenet/serialsource"
	"github.com/metal-stack/motenet/sfsource"
)

// transport is what every connection source provides to the socket
// calls.
type transport interface {
	bind(addr net.Addr) error
	connect(addr net.Addr) error
	send(b []byte, to net.Addr) (int, error)
	recv(b []byte) (int, net.Addr, error)
	localAddr() (net.Addr, error)
	syscallConn() (syscall.RawConn, error)
	close() error
}

// packetLimiter is implemented by packet connections that cap the
// size of a packet.
type packetLimiter interface {
	MaxPacket() int
}

// open selects and opens the transport for d.
func (n *Net) open(ctx context.Context, d *Descriptor) (transport, error) {
	switch d.Source {
	case SourceDirect:
		if len(d.Addrs) == 0 {
			return nil, invalidf("direct connection %s has no addresses", d.Text)
		}
		t, err := openDirect(d)
		if err != nil {
			return nil, &OpenError{Conn: d.Text, Source: d.Source, Err: err}
		}
		return t, nil

	case SourceServer:
		if len(d.Addrs) == 0 {
			return nil, invalidf("server connection %s has no addresses", d.Text)
		}
		pc, err := n.dialServer(ctx, d)
		if err != nil {
			return nil, &OpenError{Conn: d.Text, Source: d.Source, Err: err}
		}
		return n.newAMTransport(d, pc), nil

	case SourceSerial:
		openSerial := n.OpenSerial
		if openSerial == nil {
			openSerial = func(device, baud string, notify func(serialsource.Problem)) (PacketConn, error) {
				return serialsource.Open(device, baud, notify)
			}
		}
		log := n.log().With("conn", d.Text)
		pc, err := openSerial(d.Device, d.Baud, func(p serialsource.Problem) {
			log.Warnw("serial link", "note", p.String())
		})
		if err != nil {
			return nil, &OpenError{Conn: d.Text, Source: d.Source, Err: err}
		}
		return n.newAMTransport(d, pc), nil

	default:
		return nil, invalidf("unknown connection source %s", d.Source)
	}
}

// dialServer connects to the first candidate address that accepts a
// connection and completes the serial forwarder handshake.
func (n *Net) dialServer(ctx context.Context, d *Descriptor) (PacketConn, error) {
	var errs []error
	for _, a := range d.Addrs {
		c, err := sfsource.Dial(ctx, n.Dialer, a.String())
		if errors.Is(err, sfsource.ErrHandshake) {
			// the forwarder is there but does not speak to us,
			// other candidates will not do better
			return nil, fmt.Errorf("%w: %w", ErrForwarderInitFailed, err)
		}
		if err != nil {
			n.log().Debugw("connect failed", "conn", d.Text, "addr", a, "error", err)
			errs = append(errs, err)
			continue
		}
		return c, nil
	}
	return nil, errors.Join(errs...)
}

// amTransport carries AM frames over a serial forwarder or serial
// line, adding and stripping headers for datagram sockets.
type amTransport struct {
	d   *Descriptor
	pc  PacketConn
	obs Observer
	eof bool
}

func (n *Net) newAMTransport(d *Descriptor, pc PacketConn) *amTransport {
	return &amTransport{
		d:   d,
		pc:  pc,
		obs: n.observer(),
	}
}

func amAddr(addr net.Addr) (am.Addr, error) {
	switch a := addr.(type) {
	case am.Addr:
		return a, nil
	case *am.Addr:
		if a != nil {
			return *a, nil
		}
	}
	return am.Addr{}, invalidf("address %v is not an AM address", addr)
}

func (t *amTransport) bind(addr net.Addr) error {
	a, err := amAddr(addr)
	if err != nil {
		return err
	}
	t.d.Local = a
	return nil
}

func (t *amTransport) connect(addr net.Addr) error {
	a, err := amAddr(addr)
	if err != nil {
		return err
	}
	t.d.Remote = a
	t.d.connected = true
	return nil
}

func (t *amTransport) localAddr() (net.Addr, error) {
	return t.d.Local, nil
}

func (t *amTransport) send(b []byte, to net.Addr) (int, error) {
	if t.eof {
		return -1, ErrClosed
	}
	var frame []byte
	switch t.d.SockType {
	case SockRaw:
		// the caller built the header
		frame = b
	case SockDgram:
		dest := t.d.Remote
		switch {
		case to != nil:
			a, err := amAddr(to)
			if err != nil {
				return -1, err
			}
			dest = a
		case !t.d.connected:
			return -1, invalidf("no destination address")
		}
		var err error
		frame, err = am.Encode(t.d.Local, dest, b)
		if err != nil {
			return -1, invalidf("%s", err)
		}
	default:
		return -1, invalidf("unsupported socket type %s", t.d.SockType)
	}

	if pl, ok := t.pc.(packetLimiter); ok && len(frame) > pl.MaxPacket() {
		return -1, invalidf("frame of %d bytes exceeds the %d bytes a %s connection carries", len(frame), pl.MaxPacket(), t.d.Source)
	}

	t.obs.FrameSent(t.d, frame)
	if err := t.pc.WritePacket(frame); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, serialsource.ErrClosed) {
			t.eof = true
			return -1, ErrClosed
		}
		return -1, fmt.Errorf("writing frame: %w", err)
	}
	return len(frame), nil
}

// recv returns the next frame that passes the filter of the local
// address. Raw sockets see every frame.
func (t *amTransport) recv(b []byte) (int, net.Addr, error) {
	if t.d.SockType != SockDgram && t.d.SockType != SockRaw {
		return -1, nil, invalidf("unsupported socket type %s", t.d.SockType)
	}
	for {
		frame, err := t.pc.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				t.eof = true
				return 0, nil, nil
			}
			return -1, nil, fmt.Errorf("reading frame: %w", err)
		}

		if t.d.SockType == SockRaw {
			t.obs.FrameAccepted(t.d, frame)
			return copy(b, frame), rawSource(frame), nil
		}

		h, reason := am.Filter(t.d.Local, frame)
		if reason != am.Accept {
			t.obs.FrameDropped(t.d, frame, reason)
			continue
		}
		t.obs.FrameAccepted(t.d, frame)
		return copy(b, frame[am.HeaderLen:]), h.Source(), nil
	}
}

// rawSource reads the sender out of a frame that has not been
// checked. Frames too short to have a header have no sender.
func rawSource(frame []byte) net.Addr {
	if len(frame) < am.HeaderLen {
		return nil
	}
	return am.Addr{
		Addr:  uint16(frame[3])<<8 | uint16(frame[4]),
		Group: frame[6],
		Type:  frame[7],
	}
}

func (t *amTransport) syscallConn() (syscall.RawConn, error) {
	sc, ok := t.pc.(syscall.Conn)
	if !ok {
		return nil, invalidf("%s connections have no file descriptor", t.d.Source)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return nil, invalidf("%s", err)
	}
	return rc, nil
}

func (t *amTransport) close() error {
	return t.pc.Close()
}
