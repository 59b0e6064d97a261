package motenet

import (
	"go.uber.org/zap"

	"github.com/metal-stack/motenet/am"
)

// Observer is told about AM frames as they pass through a connection.
// Frames must not be modified or retained.
type Observer interface {
	// FrameSent is called with every frame about to be written.
	FrameSent(d *Descriptor, frame []byte)
	// FrameAccepted is called with every frame handed to the caller.
	FrameAccepted(d *Descriptor, frame []byte)
	// FrameDropped is called with every frame the receive filter
	// discards.
	FrameDropped(d *Descriptor, frame []byte, reason am.DropReason)
}

// Observers passes every event on to each of its elements in turn.
type Observers []Observer

func (o Observers) FrameSent(d *Descriptor, frame []byte) {
	for _, obs := range o {
		obs.FrameSent(d, frame)
	}
}

func (o Observers) FrameAccepted(d *Descriptor, frame []byte) {
	for _, obs := range o {
		obs.FrameAccepted(d, frame)
	}
}

func (o Observers) FrameDropped(d *Descriptor, frame []byte, reason am.DropReason) {
	for _, obs := range o {
		obs.FrameDropped(d, frame, reason)
	}
}

type nopObserver struct{}

func (nopObserver) FrameSent(*Descriptor, []byte)                    {}
func (nopObserver) FrameAccepted(*Descriptor, []byte)                {}
func (nopObserver) FrameDropped(*Descriptor, []byte, am.DropReason) {}

// DebugObserver logs every frame as hex at debug level.
type DebugObserver struct {
	Log *zap.SugaredLogger
}

func (o *DebugObserver) FrameSent(d *Descriptor, frame []byte) {
	if d.SockType == SockDgram && d.Local.Type == am.TypeAny {
		o.Log.Warnw("sending with local AM type 0", "conn", d.Text)
	}
	o.Log.Debugw("send", "conn", d.Text, "frame", am.Dump(frame))
}

func (o *DebugObserver) FrameAccepted(d *Descriptor, frame []byte) {
	o.Log.Debugw("recv", "conn", d.Text, "frame", am.Dump(frame))
}

func (o *DebugObserver) FrameDropped(d *Descriptor, frame []byte, reason am.DropReason) {
	o.Log.Debugw("drop", "conn", d.Text, "reason", reason.String(), "frame", am.Dump(frame))
}
