package serialsource

import (
	"errors"
	"fmt"
	"strconv"

	"go.bug.st/serial"
)

// platformBauds maps mote platform names to the baud rate their
// serial stack runs at.
var platformBauds = map[string]int{
	"mica":       19200,
	"mica2":      57600,
	"mica2dot":   19200,
	"micaz":      57600,
	"iris":       57600,
	"telos":      115200,
	"telosb":     115200,
	"tmote":      115200,
	"eyes":       115200,
	"intelmote2": 115200,
	"shimmer":    115200,
	"tinynode":   115200,
	"z1":         115200,
	"epic":       115200,
}

// BaudRate interprets a baud specification, either a number or the
// name of a mote platform.
func BaudRate(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("invalid baud rate %d", n)
		}
		return n, nil
	}
	if n, ok := platformBauds[s]; ok {
		return n, nil
	}
	return 0, fmt.Errorf("unknown baud rate or platform %q", s)
}

// Open opens device at the given baud specification and returns a
// Source reading from it.
func Open(device, baud string, notify func(Problem)) (*Source, error) {
	rate, err := BaudRate(baud)
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: rate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", device, err)
	}
	// drop whatever the mote sent before we were listening
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("flushing %s: %w", device, err)
	}
	return New(port, notify), nil
}

func isPortClosed(err error) bool {
	var pe *serial.PortError
	return errors.As(err, &pe) && pe.Code() == serial.PortClosed
}
