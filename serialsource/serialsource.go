// Package serialsource talks to a mote over a serial line using the
// framed serial protocol: frames are delimited by a sync byte, escaped,
// and protected by a CRC, and data frames may ask to be acknowledged.
//
// A Source is not safe for concurrent use.
package serialsource // import "github.com/metal-stack/motenet/serialsource"

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

const (
	syncByte   = 0x7e
	escapeByte = 0x7d
	escapeXor  = 0x20

	protoAck         = 0x43
	protoPacketAck   = 0x44
	protoPacketNoAck = 0x45

	// MTU bounds the unescaped size of a frame body, CRC included.
	MTU = 512

	// DefaultAckTimeout is how long WritePacket waits for the mote to
	// acknowledge a frame.
	DefaultAckTimeout = time.Second
)

var (
	// ErrAckTimeout is returned by WritePacket when the mote did not
	// acknowledge a frame in time.
	ErrAckTimeout = errors.New("no acknowledgement from mote")
	// ErrClosed is returned by operations on a closed Source.
	ErrClosed = errors.New("serial source closed")

	errTimeout = errors.New("read timeout")
)

// Problem is a link anomaly reported through the notify callback.
// None of them are fatal to the Source.
type Problem int

// Anomalies reported by a Source.
const (
	UnknownPacketType Problem = iota
	AckTimeout
	Sync
	TooLong
	TooShort
	BadSync
	BadCRC
	Closed
	NoMemory
	IOError
)

func (p Problem) String() string {
	switch p {
	case UnknownPacketType:
		return "unknown_packet_type"
	case AckTimeout:
		return "ack_timeout"
	case Sync:
		return "sync"
	case TooLong:
		return "too_long"
	case TooShort:
		return "too_short"
	case BadSync:
		return "bad_sync"
	case BadCRC:
		return "bad_crc"
	case Closed:
		return "closed"
	case NoMemory:
		return "no_memory"
	case IOError:
		return "unix_error"
	default:
		return fmt.Sprintf("problem(%d)", int(p))
	}
}

// deadliner is implemented by net.Conn style links.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// timeouter is implemented by serial ports, whose reads return 0, nil
// when the timeout expires.
type timeouter interface {
	SetReadTimeout(t time.Duration) error
}

// Source is a packet link to a mote over a serial line.
type Source struct {
	// AckTimeout bounds the wait for acknowledgements. Links that
	// cannot time out reads are written without asking for one.
	AckTimeout time.Duration

	port   io.ReadWriteCloser
	notify func(Problem)
	closed bool

	seq uint8

	// receive state, kept across reads so a timeout in the middle
	// of a frame loses nothing
	rbuf    [256]byte
	rpos    int
	rlen    int
	inSync  bool
	escaped bool
	frame   []byte

	pending [][]byte
}

// New returns a Source speaking the serial protocol over port. notify,
// if not nil, is told about link anomalies.
func New(port io.ReadWriteCloser, notify func(Problem)) *Source {
	if notify == nil {
		notify = func(Problem) {}
	}
	return &Source{
		AckTimeout: DefaultAckTimeout,
		port:       port,
		notify:     notify,
		frame:      make([]byte, 0, MTU),
	}
}

// MaxPacket returns the largest packet WritePacket accepts.
func (s *Source) MaxPacket() int { return MTU - 4 }

// Close closes the underlying port.
func (s *Source) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.port.Close()
}

// ReadPacket returns the payload of the next data frame. It returns
// io.EOF when the port has been closed.
func (s *Source) ReadPacket() ([]byte, error) {
	if len(s.pending) > 0 {
		pkt := s.pending[0]
		s.pending = s.pending[1:]
		return pkt, nil
	}
	for {
		pkt, _, err := s.readFrame()
		if err != nil {
			return nil, err
		}
		if pkt != nil {
			return pkt, nil
		}
		// stray acknowledgement
	}
}

// WritePacket frames pkt and sends it. When the link supports read
// timeouts the frame requests an acknowledgement, and WritePacket waits
// up to AckTimeout for it; data frames arriving meanwhile are kept for
// ReadPacket.
func (s *Source) WritePacket(pkt []byte) error {
	if s.closed {
		return ErrClosed
	}
	if len(pkt) > s.MaxPacket() {
		s.notify(TooLong)
		return fmt.Errorf("packet of %d bytes exceeds the serial MTU", len(pkt))
	}
	wantAck := s.AckTimeout > 0 && s.canTimeout()
	if !wantAck {
		return s.writeFrame(append([]byte{protoPacketNoAck}, pkt...))
	}

	s.seq++
	seq := s.seq
	if err := s.writeFrame(append([]byte{protoPacketAck, seq}, pkt...)); err != nil {
		return err
	}

	deadline := time.Now().Add(s.AckTimeout)
	defer s.clearTimeout()
	for {
		if err := s.setTimeout(deadline); err != nil {
			return err
		}
		data, ackSeq, err := s.readFrame()
		switch {
		case errors.Is(err, errTimeout):
			s.notify(AckTimeout)
			return ErrAckTimeout
		case err != nil:
			return err
		case data != nil:
			s.pending = append(s.pending, data)
		case ackSeq == seq:
			return nil
		}
	}
}

func (s *Source) canTimeout() bool {
	switch s.port.(type) {
	case deadliner, timeouter:
		return true
	}
	return false
}

func (s *Source) setTimeout(deadline time.Time) error {
	switch p := s.port.(type) {
	case deadliner:
		return p.SetReadDeadline(deadline)
	case timeouter:
		d := time.Until(deadline)
		if d <= 0 {
			return errTimeout
		}
		return p.SetReadTimeout(d)
	}
	return nil
}

func (s *Source) clearTimeout() {
	switch p := s.port.(type) {
	case deadliner:
		p.SetReadDeadline(time.Time{})
	case timeouter:
		p.SetReadTimeout(-1)
	}
}

// readFrame reads until a complete, valid frame has arrived. It
// returns the payload of a data frame, which is never nil, or nil and
// the sequence number of an acknowledgement.
func (s *Source) readFrame() (data []byte, ackSeq uint8, err error) {
	for {
		b, err := s.readByte()
		if err != nil {
			return nil, 0, err
		}

		if !s.inSync {
			if b == syncByte {
				s.inSync = true
				s.escaped = false
				s.frame = s.frame[:0]
				s.notify(Sync)
			}
			continue
		}
		if len(s.frame) >= MTU {
			s.notify(TooLong)
			s.inSync = false
			continue
		}
		if s.escaped {
			if b == syncByte {
				s.notify(BadSync)
				s.inSync = false
				continue
			}
			b ^= escapeXor
			s.escaped = false
		} else if b == escapeByte {
			s.escaped = true
			continue
		} else if b == syncByte {
			body := s.frame
			s.frame = s.frame[:0]
			if len(body) == 0 {
				// back to back sync bytes
				continue
			}
			if len(body) < 4 {
				s.notify(TooShort)
				continue
			}
			n := len(body) - 2
			if crc(body[:n]) != uint16(body[n])|uint16(body[n+1])<<8 {
				s.notify(BadCRC)
				continue
			}
			data, ackSeq, ok, err := s.dispatch(body[:n])
			if err != nil {
				return nil, 0, err
			}
			if ok {
				return data, ackSeq, nil
			}
			continue
		}
		s.frame = append(s.frame, b)
	}
}

// dispatch interprets a checked frame body.
func (s *Source) dispatch(body []byte) (data []byte, ackSeq uint8, ok bool, err error) {
	switch body[0] {
	case protoAck:
		return nil, body[1], true, nil
	case protoPacketAck:
		seq := body[1]
		data = make([]byte, len(body)-2)
		copy(data, body[2:])
		if err := s.writeFrame([]byte{protoAck, seq}); err != nil {
			return nil, 0, false, err
		}
		return data, 0, true, nil
	case protoPacketNoAck:
		data = make([]byte, len(body)-1)
		copy(data, body[1:])
		return data, 0, true, nil
	default:
		s.notify(UnknownPacketType)
		return nil, 0, false, nil
	}
}

func (s *Source) readByte() (byte, error) {
	for s.rpos >= s.rlen {
		if s.closed {
			return 0, io.EOF
		}
		n, err := s.port.Read(s.rbuf[:])
		s.rpos, s.rlen = 0, n
		if n > 0 {
			break
		}
		switch {
		case err == nil:
			// serial ports report an expired timeout this way
			if _, ok := s.port.(timeouter); ok {
				return 0, errTimeout
			}
		case isTimeout(err):
			return 0, errTimeout
		case isClosed(err):
			s.notify(Closed)
			return 0, io.EOF
		default:
			s.notify(IOError)
			return 0, err
		}
	}
	b := s.rbuf[s.rpos]
	s.rpos++
	return b, nil
}

func (s *Source) writeFrame(body []byte) error {
	c := crc(body)
	body = append(body, byte(c), byte(c>>8))

	out := make([]byte, 0, 2*len(body)+2)
	out = append(out, syncByte)
	for _, b := range body {
		if b == syncByte || b == escapeByte {
			out = append(out, escapeByte, b^escapeXor)
			continue
		}
		out = append(out, b)
	}
	out = append(out, syncByte)

	if _, err := s.port.Write(out); err != nil {
		if isClosed(err) {
			s.notify(Closed)
			return ErrClosed
		}
		s.notify(IOError)
		return err
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed) ||
		isPortClosed(err)
}
