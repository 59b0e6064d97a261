package motenet

import (
	"errors"
	"fmt"
)

// Errors returned by the connection layer. Use errors.Is to test for
// them, as most are wrapped with more context.
var (
	ErrParseFailed           = errors.New("connection string did not parse")
	ErrUnrecognizedScheme    = errors.New("unrecognized connection type")
	ErrNoConnectionSpecified = errors.New("no connection specified")
	ErrTransportOpenFailed   = errors.New("opening transport failed")
	ErrForwarderInitFailed   = errors.New("serial forwarder initialization failed")
	ErrNoDescriptorSlots     = errors.New("no free connection slots")
	ErrInvalidHandle         = errors.New("invalid handle")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrClosed                = errors.New("connection closed by peer")
)

// ParseError describes a connection string that could not be turned
// into a Descriptor. It matches ErrParseFailed, and unwraps to the
// specific cause.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Text == "" {
		return "motenet: " + e.Err.Error()
	}
	return fmt.Sprintf("motenet: parsing %q: %s", e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes every ParseError match ErrParseFailed.
func (e *ParseError) Is(target error) bool { return target == ErrParseFailed }

// OpenError describes a transport that could not be opened. It
// matches ErrTransportOpenFailed, and unwraps to the underlying error.
type OpenError struct {
	Conn   string
	Source Source
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("motenet: opening %s (%s): %s", e.Source, e.Conn, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// Is makes every OpenError match ErrTransportOpenFailed.
func (e *OpenError) Is(target error) bool { return target == ErrTransportOpenFailed }

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidArgument}, args...)...)
}
