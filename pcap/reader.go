package pcap

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// Reader extracts packets from a pcap file.
//
// Use it like a bufio.Scanner:
//
//	for r.Next() {
//		pkt := r.Packet()
//	}
//	if err := r.Err(); err != nil {
//	}
type Reader struct {
	LinkType LinkType
	SnapLen  uint32

	r     *bufio.Reader
	order binary.ByteOrder
	tmult int64
	pkt   *Packet
	err   error
}

// NewReader returns a new Reader that decodes pcap data from r.
func NewReader(r io.Reader) (*Reader, error) {
	ret := &Reader{
		r:     bufio.NewReader(r),
		order: binary.LittleEndian,
	}

	var header fileHeader
	bs := make([]byte, fileHeaderLen)
	if _, err := io.ReadFull(ret.r, bs); err != nil {
		return nil, fmt.Errorf("reading pcap header: %w", err)
	}

	// The magic is defined as "same" or "opposite" endian, so it
	// doesn't tell us the byte order alone. The version numbers do.
	if err := binary.Read(bytes.NewReader(bs), ret.order, &header); err != nil {
		return nil, err
	}
	if header.Major == 0x200 && header.Minor == 0x400 {
		ret.order = binary.BigEndian
		if err := binary.Read(bytes.NewReader(bs), ret.order, &header); err != nil {
			return nil, err
		}
	}
	switch header.Magic {
	case magicMicro:
		ret.tmult = int64(time.Microsecond)
	case magicNano:
		ret.tmult = int64(time.Nanosecond)
	default:
		return nil, errors.New("bad magic")
	}

	if header.Major != 2 || header.Minor != 4 {
		return nil, fmt.Errorf("unknown pcap version %d.%d", header.Major, header.Minor)
	}

	ret.LinkType = LinkType(header.Type)
	ret.SnapLen = header.Snaplen

	return ret, nil
}

// Next advances to the next packet, which is then available through
// Packet. It returns false at the end of the input or on error.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}

	var hdr recordHeader
	if err := binary.Read(r.r, r.order, &hdr); err != nil {
		if err != io.EOF {
			r.err = fmt.Errorf("reading packet header: %w", err)
		}
		return false
	}

	bs := make([]byte, hdr.Len)
	if _, err := io.ReadFull(r.r, bs); err != nil {
		r.err = fmt.Errorf("reading packet: %w", err)
		return false
	}

	r.pkt = &Packet{
		Timestamp: time.Unix(int64(hdr.Sec), r.tmult*int64(hdr.SubSec)),
		Length:    int(hdr.OrigLen),
		Bytes:     bs,
	}
	return true
}

// Packet returns the packet read by the last call to Next.
func (r *Reader) Packet() *Packet {
	return r.pkt
}

// Err returns the first error encountered by Next. Reaching the end of
// the input is not an error.
func (r *Reader) Err() error {
	return r.err
}

// ReadAll decodes every packet in r.
func ReadAll(r io.Reader) (LinkType, []*Packet, error) {
	pr, err := NewReader(r)
	if err != nil {
		return 0, nil, err
	}
	var pkts []*Packet
	for pr.Next() {
		pkts = append(pkts, pr.Packet())
	}
	return pr.LinkType, pkts, pr.Err()
}
