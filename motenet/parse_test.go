package motenet

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/netip"
	"strings"
	"testing"

	"github.com/foxcpp/go-mockdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	hosts    map[string][]netip.Addr
	networks []string
}

func (r *fakeResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{ip}, nil
	}
	addrs, ok := r.hosts[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return addrs, nil
}

func (r *fakeResolver) LookupPort(ctx context.Context, network, service string) (int, error) {
	r.networks = append(r.networks, network)
	return net.DefaultResolver.LookupPort(ctx, network, service)
}

func newTestResolver() *fakeResolver {
	return &fakeResolver{hosts: map[string][]netip.Addr{
		"localhost": {netip.MustParseAddr("::1"), netip.MustParseAddr("127.0.0.1")},
		"mote":      {netip.MustParseAddr("2001:db8::4")},
	}}
}

func TestParse(t *testing.T) {
	tests := []struct {
		text    string
		source  Source
		host    string
		port    string
		device  string
		baud    string
		addrs   []string
		network string
	}{
		{
			text:    "serial@/dev/ttyUSB0:115200",
			source:  SourceSerial,
			device:  "/dev/ttyUSB0",
			baud:    "115200",
			network: "",
		},
		{
			text:    "serial@COM3:telosb",
			source:  SourceSerial,
			device:  "COM3",
			baud:    "telosb",
			network: "",
		},
		{
			text:    "server@localhost:9001",
			source:  SourceServer,
			host:    "localhost",
			port:    "9001",
			addrs:   []string{"[::1]:9001", "127.0.0.1:9001"},
			network: "tcp",
		},
		{
			text:    "sf@mote:9002",
			source:  SourceServer,
			host:    "mote",
			port:    "9002",
			addrs:   []string{"[2001:db8::4]:9002"},
			network: "tcp",
		},
		{
			text:    "[fe80::1%eth0]:9001",
			source:  SourceDirect,
			host:    "fe80::1%eth0",
			port:    "9001",
			addrs:   []string{"[fe80::1%eth0]:9001"},
			network: "udp",
		},
		{
			text:    "  10.0.0.7:1234 ",
			source:  SourceDirect,
			host:    "10.0.0.7",
			port:    "1234",
			addrs:   []string{"10.0.0.7:1234"},
			network: "udp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			r := newTestResolver()
			n := &Net{Resolver: r}
			d, err := n.Parse(context.Background(), tt.text)
			require.NoError(t, err)

			assert.Equal(t, tt.source, d.Source)
			assert.Equal(t, strings.TrimSpace(tt.text), d.Text)
			assert.Equal(t, tt.host, d.Host)
			assert.Equal(t, tt.port, d.Port)
			assert.Equal(t, tt.device, d.Device)
			assert.Equal(t, tt.baud, d.Baud)

			var addrs []string
			for _, a := range d.Addrs {
				addrs = append(addrs, a.String())
			}
			assert.Equal(t, tt.addrs, addrs)

			if tt.network == "" {
				assert.Empty(t, r.networks)
			} else {
				assert.Equal(t, []string{tt.network}, r.networks)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		text string
		want error
	}{
		{text: "bogus@host:1", want: ErrUnrecognizedScheme},
		{text: "Server@localhost:9001", want: ErrUnrecognizedScheme},
		{text: "server@localhost", want: ErrParseFailed},
		{text: "serial@:115200", want: ErrParseFailed},
		{text: "serial@/dev/ttyUSB0:", want: ErrParseFailed},
		{text: "nohost.invalid:9001", want: ErrParseFailed},
		{text: "localhost:nosuchservice", want: ErrParseFailed},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			n := &Net{Resolver: newTestResolver()}
			d, err := n.Parse(context.Background(), tt.text)
			require.Error(t, err)
			assert.Nil(t, d)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrParseFailed)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.text, perr.Text)
		})
	}
}

func TestParseEnvironment(t *testing.T) {
	env := map[string]string{}
	n := &Net{
		Resolver: newTestResolver(),
		Getenv:   func(key string) string { return env[key] },
	}

	_, err := n.Parse(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoConnectionSpecified)
	assert.ErrorIs(t, err, ErrParseFailed)

	env[EnvVar] = "serial@/dev/ttyS0:57600"
	d, err := n.Parse(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, SourceSerial, d.Source)
	assert.Equal(t, "/dev/ttyS0", d.Device)
	assert.Equal(t, "57600", d.Baud)

	// an explicit string wins
	d, err = n.Parse(context.Background(), "serial@/dev/ttyS1:9600")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS1", d.Device)
}

func TestParseTruncates(t *testing.T) {
	dev := "/dev/" + strings.Repeat("x", 60)
	n := &Net{}
	d, err := n.Parse(context.Background(), "serial@"+dev+":115200")
	require.NoError(t, err)
	assert.Len(t, d.Device, MaxDeviceLen)
	assert.Len(t, d.Text, MaxTextLen)
	assert.Equal(t, "115200", d.Baud)
}

func TestParseWithDNS(t *testing.T) {
	srv, err := mockdns.NewServerWithLogger(map[string]mockdns.Zone{
		"gateway.motes.test.": {
			A:    []string{"192.0.2.10"},
			AAAA: []string{"2001:db8::10"},
		},
	}, log.New(io.Discard, "", 0), false)
	require.NoError(t, err)
	defer srv.Close()

	srv.PatchNet(net.DefaultResolver)
	defer mockdns.UnpatchNet(net.DefaultResolver)

	n := &Net{}
	d, err := n.Parse(context.Background(), "server@gateway.motes.test:9001")
	require.NoError(t, err)
	assert.Equal(t, SourceServer, d.Source)
	assert.ElementsMatch(t, []netip.AddrPort{
		netip.MustParseAddrPort("192.0.2.10:9001"),
		netip.MustParseAddrPort("[2001:db8::10]:9001"),
	}, d.Addrs)

	_, err = n.Parse(context.Background(), "server@missing.motes.test:9001")
	assert.ErrorIs(t, err, ErrParseFailed)
}

func TestDescriptorString(t *testing.T) {
	n := &Net{Resolver: newTestResolver()}
	d, err := n.Parse(context.Background(), "server@[::1]:9001")
	require.NoError(t, err)
	assert.Equal(t, "[::1]:9001", d.Target())
	assert.Equal(t, "(server@[::1]:9001) server@<[::1]:9001>", d.String())

	d, err = n.Parse(context.Background(), "serial@/dev/ttyUSB0:115200")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0:115200", d.Target())
	assert.Equal(t, "(serial@/dev/ttyUSB0:115200) serial@/dev/ttyUSB0:115200", d.String())
}
