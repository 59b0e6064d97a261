// Package am implements the Active Message encapsulation used by
// motes: the 8 byte AM header, AM socket addresses and the receive
// filter applied to incoming frames.
package am // import "github.com/metal-stack/motenet/am"

import "fmt"

// Family is the address family tag of AM sockets.
const Family = 20

// Encapsulation kinds, carried in the first byte of every frame.
const (
	EncapBasic uint8 = 0x00
	EncapLen16 uint8 = 0x80
)

// Well known addresses and wildcards.
const (
	AddrBroadcast uint16 = 0xffff
	AddrAny       uint16 = 0x0000

	GroupAny uint8 = 0x00
	TypeAny  uint8 = 0x00
)

// HeaderLen is the size of both the basic and the len16 header.
const HeaderLen = 8

// MaxPayload is the largest payload a basic header can describe.
const MaxPayload = 0xff

// Addr is an AM socket address. The zero value is the wildcard
// address: it matches any destination, group and type on receive.
//
// Addr implements net.Addr.
type Addr struct {
	Addr  uint16
	Group uint8
	// Type is the AM type of the payload, the AM equivalent of a port.
	Type uint8
}

// Network returns "am".
func (a Addr) Network() string { return "am" }

func (a Addr) String() string {
	return fmt.Sprintf("%04x:%02x/%02x", a.Addr, a.Group, a.Type)
}

// IsWildcard reports whether a has no address, group or type set.
func (a Addr) IsWildcard() bool {
	return a == Addr{}
}
