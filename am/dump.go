package am

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Dump renders frame the way the mote tools print packets:
//
//	dddd:tt (t) (l: n): xx xx xx ...
//
// Frames too short to carry a header are printed as bare hex.
func Dump(frame []byte) string {
	var b strings.Builder
	if len(frame) >= HeaderLen {
		dest := binary.BigEndian.Uint16(frame[1:3])
		typ := frame[7]
		fmt.Fprintf(&b, "%04x:%d (%02x) (l: %d): ", dest, typ, typ, len(frame))
	}
	for i, c := range frame {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02x", c)
	}
	return b.String()
}
