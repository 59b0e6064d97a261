package am

// DropReason says why the receive filter rejected a frame.
type DropReason int

// Filter outcomes, in the order the checks are applied.
const (
	Accept DropReason = iota
	DropShort
	DropEncap
	DropAddr
	DropGroup
	DropType
)

func (r DropReason) String() string {
	switch r {
	case Accept:
		return "accept"
	case DropShort:
		return "short"
	case DropEncap:
		return "encap"
	case DropAddr:
		return "addr"
	case DropGroup:
		return "group"
	case DropType:
		return "type"
	default:
		return "unknown"
	}
}

// Filter checks frame against the local endpoint. It returns the
// decoded header and Accept, or nil and the reason the frame must be
// dropped.
//
// A frame is accepted when it is addressed to the broadcast address,
// to local.Addr, or local.Addr is AddrAny; and its group and type
// match local's unless those are wildcards.
func Filter(local Addr, frame []byte) (*Header, DropReason) {
	if len(frame) < HeaderLen {
		return nil, DropShort
	}
	h, err := Unmarshal(frame)
	if err != nil {
		return nil, DropEncap
	}
	if h.Dest != AddrBroadcast && local.Addr != AddrAny && local.Addr != h.Dest {
		return nil, DropAddr
	}
	if local.Group != GroupAny && local.Group != h.Group {
		return nil, DropGroup
	}
	if local.Type != TypeAny && local.Type != h.Type {
		return nil, DropType
	}
	return h, Accept
}
