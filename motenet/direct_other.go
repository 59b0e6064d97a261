//go:build !unix

package motenet

import (
	"errors"
	"runtime"
)

func openDirect(d *Descriptor) (transport, error) {
	return nil, errors.New("direct connections are not supported on " + runtime.GOOS)
}
