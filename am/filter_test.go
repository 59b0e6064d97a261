package am

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameTo(dest uint16, grp, typ uint8) []byte {
	f, err := Encode(Addr{Addr: 0x0042, Group: grp, Type: typ}, Addr{Addr: dest}, []byte{0xde, 0xad})
	if err != nil {
		panic(err)
	}
	return f
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name  string
		local Addr
		frame []byte
		want  DropReason
	}{
		{"wildcard accepts everything", Addr{}, frameTo(0x0007, 3, 4), Accept},
		{"broadcast beats local address", Addr{Addr: 0x0001}, frameTo(AddrBroadcast, 0, 0), Accept},
		{"unicast to us", Addr{Addr: 0x0001}, frameTo(0x0001, 0, 0), Accept},
		{"unicast to someone else", Addr{Addr: 0x0001}, frameTo(0x0002, 0, 0), DropAddr},
		{"group mismatch", Addr{Group: 5}, frameTo(0x0001, 6, 0), DropGroup},
		{"group match", Addr{Group: 5}, frameTo(0x0001, 5, 0), Accept},
		{"type mismatch", Addr{Type: 0xa0}, frameTo(0x0001, 0, 0xa1), DropType},
		{"type match", Addr{Type: 0xa0}, frameTo(0x0001, 0, 0xa0), Accept},
		{"short frame", Addr{}, []byte{0, 0, 1}, DropShort},
		{"unknown encap", Addr{}, []byte{0x01, 0, 1, 0, 2, 0, 0, 0}, DropEncap},
		{"len16 passes encap check", Addr{}, []byte{0x80, 0, 1, 0, 2, 0, 0, 7}, Accept},
		{"len16 has no group", Addr{Group: 1}, []byte{0x80, 0, 1, 0, 2, 0, 0, 7}, DropGroup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, got := Filter(tt.local, tt.frame)
			assert.Equal(t, tt.want, got)
			if tt.want == Accept {
				require.NotNil(t, h)
			} else {
				assert.Nil(t, h)
			}
		})
	}
}

// TestFilterLaw checks every combination of a small address space
// against the acceptance rule written out longhand.
func TestFilterLaw(t *testing.T) {
	addrs := []uint16{AddrAny, 0x0001, 0x0002, AddrBroadcast}
	vals := []uint8{0, 1, 2}
	for _, la := range addrs {
		for _, lg := range vals {
			for _, lt := range vals {
				local := Addr{Addr: la, Group: lg, Type: lt}
				for _, fd := range addrs {
					for _, fg := range vals {
						for _, ft := range vals {
							want := (fd == AddrBroadcast || la == AddrAny || fd == la) &&
								(lg == GroupAny || fg == lg) &&
								(lt == TypeAny || ft == lt)
							_, r := Filter(local, frameTo(fd, fg, ft))
							if (r == Accept) != want {
								t.Fatalf("local %v frame dest=%04x grp=%d type=%d: got %v, want accept=%v", local, fd, fg, ft, r, want)
							}
						}
					}
				}
			}
		}
	}
}
