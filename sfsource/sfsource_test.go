package sfsource

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forwarder answers the greeting on c with greet and returns c.
func forwarder(t *testing.T, c net.Conn, greet []byte) {
	t.Helper()
	var us [2]byte
	if _, err := io.ReadFull(c, us[:]); err != nil {
		t.Errorf("forwarder reading greeting: %s", err)
		return
	}
	if us != [2]byte{'U', ' '} {
		t.Errorf("client sent greeting % x", us)
	}
	if _, err := c.Write(greet); err != nil {
		t.Errorf("forwarder writing greeting: %s", err)
	}
}

func TestPacketsOverPipe(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		forwarder(t, server, []byte{'U', ' '})
		// echo one packet back with its bytes reversed
		var l [1]byte
		io.ReadFull(server, l[:])
		pkt := make([]byte, l[0])
		io.ReadFull(server, pkt)
		for i, j := 0, len(pkt)-1; i < j; i, j = i+1, j-1 {
			pkt[i], pkt[j] = pkt[j], pkt[i]
		}
		server.Write(append([]byte{byte(len(pkt))}, pkt...))
		server.Close()
	}()

	c, err := NewConn(client)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.WritePacket([]byte{1, 2, 3}))
	pkt, err := c.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 2, 1}, pkt)

	_, err = c.ReadPacket()
	assert.Equal(t, io.EOF, err)
	<-done
}

func TestHandshakeRejectsBadGreeting(t *testing.T) {
	for name, greet := range map[string][]byte{
		"not U":       {'X', ' '},
		"old version": {'U', 0x10},
	} {
		t.Run(name, func(t *testing.T) {
			client, server := net.Pipe()
			defer server.Close()
			go forwarder(t, server, greet)

			_, err := NewConn(client)
			assert.True(t, errors.Is(err, ErrHandshake), "got %v", err)
			client.Close()
		})
	}
}

func TestHandshakeAcceptsNewerPeer(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	go forwarder(t, server, []byte{'U', '!'})

	c, err := NewConn(client)
	require.NoError(t, err)
	c.Close()
}

func TestDialClosesOnHandshakeFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	closed := make(chan error, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			closed <- err
			return
		}
		defer c.Close()
		c.Write([]byte{'N', 'O'})
		// the client must hang up after rejecting us
		_, err = io.ReadAll(c)
		closed <- err
	}()

	_, err = Dial(context.Background(), nil, l.Addr().String())
	require.ErrorIs(t, err, ErrHandshake)
	assert.NoError(t, <-closed)
}

func TestWritePacketTooLong(t *testing.T) {
	c := &Conn{}
	assert.Error(t, c.WritePacket(make([]byte, MaxPacketLen+1)))
}
