package motenet

import (
	"io"
	"sync"
	"time"

	"github.com/metal-stack/motenet/am"
	"github.com/metal-stack/motenet/pcap"
)

// TraceObserver writes every sent and accepted frame to a pcap stream
// of link type pcap.LinkAM. Dropped frames are not traced.
type TraceObserver struct {
	mu  sync.Mutex
	w   *pcap.Writer
	now func() time.Time
	err error
}

// NewTraceObserver returns a TraceObserver writing to w.
func NewTraceObserver(w io.Writer) *TraceObserver {
	return &TraceObserver{
		w:   pcap.NewWriter(w, pcap.LinkAM),
		now: time.Now,
	}
}

func (o *TraceObserver) put(frame []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return
	}
	o.err = o.w.Put(&pcap.Packet{
		Timestamp: o.now(),
		Length:    len(frame),
		Bytes:     frame,
	})
}

func (o *TraceObserver) FrameSent(_ *Descriptor, frame []byte)     { o.put(frame) }
func (o *TraceObserver) FrameAccepted(_ *Descriptor, frame []byte) { o.put(frame) }

func (o *TraceObserver) FrameDropped(*Descriptor, []byte, am.DropReason) {}

// Err returns the first write error. Once a write has failed nothing
// more is traced.
func (o *TraceObserver) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}
