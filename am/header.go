package am

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Header is a decoded AM header.
//
// For EncapLen16 frames Len holds the 16 bit length and Group is
// always GroupAny, since that encapsulation has no group field.
type Header struct {
	Encap uint8
	Dest  uint16
	Src   uint16
	Len   uint16
	Group uint8
	Type  uint8
}

var (
	// ErrShortFrame is returned for frames shorter than HeaderLen.
	ErrShortFrame = errors.New("frame shorter than AM header")
	// ErrUnknownEncap is returned for frames whose encapsulation
	// byte is neither EncapBasic nor EncapLen16.
	ErrUnknownEncap = errors.New("unknown AM encapsulation")
)

// Unmarshal decodes the header at the start of frame.
func Unmarshal(frame []byte) (*Header, error) {
	if len(frame) < HeaderLen {
		return nil, ErrShortFrame
	}
	h := &Header{
		Encap: frame[0],
		Dest:  binary.BigEndian.Uint16(frame[1:3]),
		Src:   binary.BigEndian.Uint16(frame[3:5]),
		Type:  frame[7],
	}
	switch h.Encap {
	case EncapBasic:
		h.Len = uint16(frame[5])
		h.Group = frame[6]
	case EncapLen16:
		h.Len = binary.BigEndian.Uint16(frame[5:7])
		h.Group = GroupAny
	default:
		return nil, fmt.Errorf("%w 0x%02x", ErrUnknownEncap, h.Encap)
	}
	return h, nil
}

// MarshalTo writes the wire form of h into b, which must hold at
// least HeaderLen bytes.
func (h *Header) MarshalTo(b []byte) error {
	if len(b) < HeaderLen {
		return ErrShortFrame
	}
	b[0] = h.Encap
	binary.BigEndian.PutUint16(b[1:3], h.Dest)
	binary.BigEndian.PutUint16(b[3:5], h.Src)
	switch h.Encap {
	case EncapBasic:
		if h.Len > MaxPayload {
			return fmt.Errorf("payload length %d does not fit a basic AM header", h.Len)
		}
		b[5] = uint8(h.Len)
		b[6] = h.Group
	case EncapLen16:
		binary.BigEndian.PutUint16(b[5:7], h.Len)
	default:
		return fmt.Errorf("%w 0x%02x", ErrUnknownEncap, h.Encap)
	}
	b[7] = h.Type
	return nil
}

// Marshal returns the wire form of h.
func (h *Header) Marshal() ([]byte, error) {
	b := make([]byte, HeaderLen)
	if err := h.MarshalTo(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Source returns the sending endpoint described by h.
func (h *Header) Source() Addr {
	return Addr{Addr: h.Src, Group: h.Group, Type: h.Type}
}

// Encode builds a basic frame carrying payload from local to dest.
// Group and type come from local, as the sending side owns them.
func Encode(local, dest Addr, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("payload of %d bytes exceeds %d", len(payload), MaxPayload)
	}
	h := Header{
		Encap: EncapBasic,
		Dest:  dest.Addr,
		Src:   local.Addr,
		Len:   uint16(len(payload)),
		Group: local.Group,
		Type:  local.Type,
	}
	frame := make([]byte, HeaderLen+len(payload))
	if err := h.MarshalTo(frame); err != nil {
		return nil, err
	}
	copy(frame[HeaderLen:], payload)
	return frame, nil
}
