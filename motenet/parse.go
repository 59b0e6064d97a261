package motenet

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// EnvVar names the environment variable consulted when no connection
// string is given.
const EnvVar = "MOTECOM"

// Resolver looks up hosts and services. *net.Resolver implements it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
	LookupPort(ctx context.Context, network, service string) (int, error)
}

// Parse turns a connection string into a Descriptor. An empty text
// falls back to the MOTECOM environment variable. The accepted forms
// are:
//
//	<host>:<port>              direct, e.g. [fe80::1]:9001
//	server@<host>:<port>       serial forwarder, "sf" is an alias
//	serial@<device>:<baud>     e.g. serial@/dev/ttyUSB0:115200
//
// IPv6 literals must be written in brackets. Hosts are resolved for
// direct and server connections; every candidate address is kept.
func (n *Net) Parse(ctx context.Context, text string) (*Descriptor, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		s = strings.TrimSpace(n.getenv(EnvVar))
	}
	if s == "" {
		return nil, &ParseError{Err: ErrNoConnectionSpecified}
	}

	d := &Descriptor{Text: truncate(s, MaxTextLen)}
	scheme, rest, found := strings.Cut(s, "@")
	if !found {
		d.Source = SourceDirect
		if err := n.resolve(ctx, d, s, "udp"); err != nil {
			return nil, &ParseError{Text: s, Err: err}
		}
		return d, nil
	}

	switch scheme = strings.TrimSpace(scheme); scheme {
	case "server", "sf":
		d.Source = SourceServer
		if err := n.resolve(ctx, d, rest, "tcp"); err != nil {
			return nil, &ParseError{Text: s, Err: err}
		}
	case "serial":
		d.Source = SourceSerial
		dev, baud, err := splitHostPort(rest)
		if err != nil {
			return nil, &ParseError{Text: s, Err: err}
		}
		d.Device = truncate(dev, MaxDeviceLen)
		d.Baud = truncate(baud, MaxBaudLen)
	default:
		n.log().Warnw("unrecognized connection type", "type", scheme)
		return nil, &ParseError{Text: s, Err: fmt.Errorf("%w %q", ErrUnrecognizedScheme, scheme)}
	}
	return d, nil
}

// resolve looks up the host:port in s, asking for addresses usable
// with the given transport network.
func (n *Net) resolve(ctx context.Context, d *Descriptor, s, network string) error {
	host, port, err := splitHostPort(s)
	if err != nil {
		return err
	}
	d.Host, d.Port = host, port

	r := n.resolver()
	p, err := r.LookupPort(ctx, network, port)
	if err != nil {
		return fmt.Errorf("looking up port %q: %w", port, err)
	}
	ips, err := r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("looking up host %q: %w", host, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("host %q has no addresses", host)
	}
	d.Addrs = make([]netip.AddrPort, 0, len(ips))
	for _, ip := range ips {
		d.Addrs = append(d.Addrs, netip.AddrPortFrom(ip.Unmap(), uint16(p)))
	}
	if n.Debug {
		for _, a := range d.Addrs {
			n.log().Debugw("resolved", "conn", d.Text, "network", network, "addr", a)
		}
	}
	return nil
}

// splitHostPort splits at the last colon, so the port of an IPv6
// literal can be found, and strips the brackets around the host.
func splitHostPort(s string) (host, port string, err error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return "", "", errors.New("missing ':' between host and port")
	}
	host = strings.TrimSpace(s[:i])
	port = strings.TrimSpace(s[i+1:])
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	host = strings.TrimSpace(host)
	if host == "" {
		return "", "", errors.New("empty host")
	}
	if port == "" {
		return "", "", errors.New("empty port")
	}
	return host, port, nil
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
