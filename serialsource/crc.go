package serialsource

import "github.com/sigurn/crc16"

// The serial protocol appends CRC-16/CCITT with initial value 0
// (XMODEM) to every frame, low byte first.
var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

func crc(b []byte) uint16 {
	return crc16.Checksum(b, crcTable)
}
