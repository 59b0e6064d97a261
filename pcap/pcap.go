// Package pcap reads and writes packet captures in the classic
// libpcap file format.
package pcap

import (
	"encoding/binary"
	"time"
)

// LinkType describes the contents of each packet in a pcap.
type LinkType uint32

// Link types used by motenet traces.
const (
	LinkEthernet LinkType = 1
	LinkRaw      LinkType = 101
	// LinkAM is the first user defined link type. Each packet is an
	// Active Message frame starting with its 8 byte header.
	LinkAM LinkType = 147
)

const (
	magicMicro = 0xa1b2c3d4
	magicNano  = 0xa1b23c4d
)

// Packet is one raw packet and its metadata.
type Packet struct {
	Timestamp time.Time
	// Length is the length of the packet on the wire, which may be
	// more than len(Bytes) if the capture was truncated.
	Length int
	Bytes  []byte
}

type fileHeader struct {
	Magic uint32
	Major uint16
	Minor uint16
	// Timezone correction and time accuracy, both 0 in practice.
	Ignored uint64
	Snaplen uint32
	Type    uint32
}

type recordHeader struct {
	Sec     uint32
	SubSec  uint32
	Len     uint32
	OrigLen uint32
}

var fileHeaderLen = binary.Size(fileHeader{})
