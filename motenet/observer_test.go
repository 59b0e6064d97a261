package motenet

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/metal-stack/motenet/am"
	"github.com/metal-stack/motenet/pcap"
)

// exchange sends one frame and receives two, the first of which the
// filter drops.
func exchange(t *testing.T, n *Net) {
	t.Helper()
	var conns []*fakeConn
	open := fakeSerialNet(&conns).OpenSerial
	n.OpenSerial = open

	d, err := n.Parse(context.Background(), "serial@/dev/ttyUSB0:115200")
	require.NoError(t, err)
	h, err := n.Socket(context.Background(), d, am.Family, SockDgram)
	require.NoError(t, err)
	defer n.Close(h)

	require.NoError(t, n.Connect(h, am.Addr{Addr: 0x0004}))
	_, err = n.Send(h, []byte{1, 2, 3})
	require.NoError(t, err)

	require.NoError(t, n.Bind(h, am.Addr{Addr: 0x0001}))
	conns[0].deliver(
		[]byte{0x00, 0x00, 0x09, 0x00, 0x04, 0x00, 0x00, 0x00},
		[]byte{0x00, 0x00, 0x01, 0x00, 0x04, 0x01, 0x00, 0x00, 0xaa},
	)
	_, err = n.Recv(h, make([]byte, 8))
	require.NoError(t, err)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	exchange(t, &Net{Observer: m})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesSent.WithLabelValues("serial")))
	assert.Equal(t, 11.0, testutil.ToFloat64(m.bytesSent.WithLabelValues("serial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesReceived.WithLabelValues("serial")))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.bytesReceived.WithLabelValues("serial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesDropped.WithLabelValues("serial", "addr")))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestTraceObserver(t *testing.T) {
	var buf bytes.Buffer
	trace := NewTraceObserver(&buf)
	exchange(t, &Net{Observer: trace})
	require.NoError(t, trace.Err())

	link, pkts, err := pcap.ReadAll(&buf)
	require.NoError(t, err)
	assert.Equal(t, pcap.LinkAM, link)
	require.Len(t, pkts, 2)
	assert.Equal(t, []byte{0x00, 0x00, 0x04, 0x00, 0x00, 0x03, 0x00, 0x00, 1, 2, 3}, pkts[0].Bytes)
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x00, 0x04, 0x01, 0x00, 0x00, 0xaa}, pkts[1].Bytes)
}

func TestDebugObserver(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	exchange(t, &Net{Log: zap.New(core).Sugar(), Debug: true})

	assert.Equal(t, 1, logs.FilterMessage("sending with local AM type 0").Len())
	sent := logs.FilterMessage("send").All()
	require.Len(t, sent, 1)
	assert.Equal(t, "0004:0 (00) (l: 11): 00 00 04 00 00 03 00 00 01 02 03", sent[0].ContextMap()["frame"])
	assert.Equal(t, 1, logs.FilterMessage("drop").Len())
	assert.Equal(t, 1, logs.FilterMessage("recv").Len())
}

func TestDebugObserverRawTypeZero(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var conns []*fakeConn
	n := fakeSerialNet(&conns)
	n.Log = zap.New(core).Sugar()
	n.Debug = true

	d, err := n.Parse(context.Background(), "serial@/dev/ttyUSB0:115200")
	require.NoError(t, err)
	h, err := n.Socket(context.Background(), d, am.Family, SockRaw)
	require.NoError(t, err)
	defer n.Close(h)

	// raw frames carry their own type
	_, err = n.Send(h, []byte{0x00, 0x00, 0x04, 0x00, 0x01, 0x00, 0x00, 0xa0})
	require.NoError(t, err)

	assert.Equal(t, 0, logs.FilterMessage("sending with local AM type 0").Len())
	assert.Equal(t, 1, logs.FilterMessage("send").Len())
}
