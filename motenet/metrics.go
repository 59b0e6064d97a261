package motenet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/metal-stack/motenet/am"
)

// Metrics counts AM frames and bytes per connection source.
type Metrics struct {
	framesSent     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	bytesSent      *prometheus.CounterVec
	bytesReceived  *prometheus.CounterVec
}

// NewMetrics creates the motenet counters and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "motenet",
			Name:      name,
			Help:      help,
		}, append([]string{"source"}, labels...))
	}
	return &Metrics{
		framesSent:     counter("frames_sent_total", "AM frames written to a transport."),
		framesReceived: counter("frames_received_total", "AM frames delivered to the caller."),
		framesDropped:  counter("frames_dropped_total", "AM frames discarded by the receive filter.", "reason"),
		bytesSent:      counter("bytes_sent_total", "Bytes of AM frames written, headers included."),
		bytesReceived:  counter("bytes_received_total", "Bytes of AM frames delivered, headers included."),
	}
}

func (m *Metrics) FrameSent(d *Descriptor, frame []byte) {
	src := d.Source.String()
	m.framesSent.WithLabelValues(src).Inc()
	m.bytesSent.WithLabelValues(src).Add(float64(len(frame)))
}

func (m *Metrics) FrameAccepted(d *Descriptor, frame []byte) {
	src := d.Source.String()
	m.framesReceived.WithLabelValues(src).Inc()
	m.bytesReceived.WithLabelValues(src).Add(float64(len(frame)))
}

func (m *Metrics) FrameDropped(d *Descriptor, frame []byte, reason am.DropReason) {
	m.framesDropped.WithLabelValues(d.Source.String(), reason.String()).Inc()
}
