package pcap

import (
	"encoding/binary"
	"io"
)

// Writer serializes Packets to an io.Writer. The file header is
// written along with the first packet.
type Writer struct {
	Writer    io.Writer
	LinkType  LinkType
	SnapLen   uint32
	ByteOrder binary.ByteOrder // defaults to binary.LittleEndian

	headerWritten bool
}

// NewWriter returns a Writer of packets of the given link type, with
// the largest snap length.
func NewWriter(w io.Writer, link LinkType) *Writer {
	return &Writer{
		Writer:   w,
		LinkType: link,
		SnapLen:  65535,
	}
}

func (w *Writer) order() binary.ByteOrder {
	if w.ByteOrder != nil {
		return w.ByteOrder
	}
	return binary.LittleEndian
}

func (w *Writer) header() error {
	hdr := fileHeader{
		Magic:   magicNano,
		Major:   2,
		Minor:   4,
		Snaplen: w.SnapLen,
		Type:    uint32(w.LinkType),
	}

	if err := binary.Write(w.Writer, w.order(), hdr); err != nil {
		return err
	}
	w.headerWritten = true
	return nil
}

// Put serializes pkt to w.Writer. Packet bytes beyond SnapLen are cut
// off; a Length of zero means len(pkt.Bytes).
func (w *Writer) Put(pkt *Packet) error {
	if !w.headerWritten {
		if err := w.header(); err != nil {
			return err
		}
	}
	bs := pkt.Bytes
	if w.SnapLen > 0 && uint32(len(bs)) > w.SnapLen {
		bs = bs[:w.SnapLen]
	}
	orig := pkt.Length
	if orig == 0 {
		orig = len(pkt.Bytes)
	}
	hdr := recordHeader{
		Sec:     uint32(pkt.Timestamp.Unix()),
		SubSec:  uint32(pkt.Timestamp.Nanosecond()),
		Len:     uint32(len(bs)),
		OrigLen: uint32(orig),
	}

	if err := binary.Write(w.Writer, w.order(), hdr); err != nil {
		return err
	}
	_, err := w.Writer.Write(bs)
	return err
}
