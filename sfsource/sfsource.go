// Package sfsource speaks the serial forwarder protocol: a TCP
// stream on which a gateway relays AM packets to and from a mote
// network, each packet prefixed by a one byte length.
package sfsource // import "github.com/metal-stack/motenet/sfsource"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
)

// Version is the protocol version this package speaks.
const Version = ' '

// MaxPacketLen is the largest packet the length prefix can describe.
const MaxPacketLen = 0xff

// ErrHandshake is returned when the peer does not answer the
// protocol greeting correctly.
var ErrHandshake = errors.New("serial forwarder handshake failed")

// Handshake performs the version exchange on rw. Both sides send 'U'
// followed by their version byte; the lower version is used and must
// be one this package speaks.
func Handshake(rw io.ReadWriter) error {
	if _, err := rw.Write([]byte{'U', Version}); err != nil {
		return fmt.Errorf("%w: writing greeting: %s", ErrHandshake, err)
	}
	var check [2]byte
	if _, err := io.ReadFull(rw, check[:]); err != nil {
		return fmt.Errorf("%w: reading greeting: %s", ErrHandshake, err)
	}
	if check[0] != 'U' {
		return fmt.Errorf("%w: bad greeting 0x%02x", ErrHandshake, check[0])
	}
	version := check[1]
	if version > Version {
		version = Version
	}
	if version != Version {
		return fmt.Errorf("%w: unsupported version 0x%02x", ErrHandshake, version)
	}
	return nil
}

// Conn is a packet connection to a serial forwarder.
//
// Reads and writes may be issued from different goroutines, but
// concurrent reads (or concurrent writes) are serialized.
type Conn struct {
	conn io.ReadWriteCloser

	rmu sync.Mutex
	wmu sync.Mutex
}

// NewConn wraps an established stream, performing the handshake.
// rw is not closed if the handshake fails.
func NewConn(rw io.ReadWriteCloser) (*Conn, error) {
	if err := Handshake(rw); err != nil {
		return nil, err
	}
	return &Conn{conn: rw}, nil
}

// Dial connects to the serial forwarder at addr and performs the
// handshake. A handshake failure closes the connection and returns an
// error wrapping ErrHandshake.
func Dial(ctx context.Context, d *net.Dialer, addr string) (*Conn, error) {
	if d == nil {
		d = &net.Dialer{}
	}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	ret, err := NewConn(c)
	if err != nil {
		c.Close()
		return nil, err
	}
	return ret, nil
}

// ReadPacket returns the next packet from the forwarder. It returns
// io.EOF once the forwarder has closed the stream.
func (c *Conn) ReadPacket() ([]byte, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	var l [1]byte
	if _, err := io.ReadFull(c.conn, l[:]); err != nil {
		return nil, eof(err)
	}
	pkt := make([]byte, l[0])
	if _, err := io.ReadFull(c.conn, pkt); err != nil {
		return nil, eof(err)
	}
	return pkt, nil
}

// MaxPacket returns the largest packet WritePacket accepts.
func (c *Conn) MaxPacket() int { return MaxPacketLen }

// SyscallConn returns the raw network connection to the forwarder.
func (c *Conn) SyscallConn() (syscall.RawConn, error) {
	sc, ok := c.conn.(syscall.Conn)
	if !ok {
		return nil, errors.New("stream has no file descriptor")
	}
	return sc.SyscallConn()
}

// WritePacket sends pkt to the forwarder.
func (c *Conn) WritePacket(pkt []byte) error {
	if len(pkt) > MaxPacketLen {
		return fmt.Errorf("packet of %d bytes exceeds %d", len(pkt), MaxPacketLen)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()

	b := make([]byte, 1+len(pkt))
	b[0] = byte(len(pkt))
	copy(b[1:], pkt)
	_, err := c.conn.Write(b)
	return err
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the local network address, if known.
func (c *Conn) LocalAddr() net.Addr {
	if nc, ok := c.conn.(net.Conn); ok {
		return nc.LocalAddr()
	}
	return nil
}

// A stream cut in the middle of a packet is still the end of the
// stream as far as callers are concerned.
func eof(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return io.EOF
	}
	return err
}
