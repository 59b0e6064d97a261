package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/metal-stack/motenet/am"
	"github.com/metal-stack/motenet/motenet"
)

var sendCmd = &cobra.Command{
	Use:   "send [conn] encap dest src len grp type [data...]",
	Short: "Send one Active Message",
	Long: `Send builds an AM frame from the hex header fields and data bytes on the
commandline and sends it as is. The frame and the resolved connection
are logged.`,
	Args: cobra.MinimumNArgs(6),
	Run: func(cmd *cobra.Command, args []string) {
		req, err := parseSendArgs(args)
		if err != nil {
			fatalf("%s", err)
		}

		log := newLogger()
		defer log.Sync()
		n := newNet(log)
		n.Debug = true

		if err := send(cmd.Context(), n, req); err != nil {
			fatalf("%s", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

type sendRequest struct {
	Conn   string
	Frame  []byte
	Local  am.Addr
	Remote am.Addr
}

// parseSendArgs reads the optional connection string, the six header
// fields and the data bytes. An argument containing ':' is a
// connection string.
func parseSendArgs(args []string) (*sendRequest, error) {
	req := &sendRequest{}
	if len(args) > 0 && strings.Contains(args[0], ":") {
		req.Conn = args[0]
		args = args[1:]
	}
	if len(args) < 6 {
		return nil, fmt.Errorf("need encap, dest, src, len, grp and type, got %d fields", len(args))
	}

	fields := []struct {
		name string
		bits int
	}{
		{"encap", 8}, {"dest", 16}, {"src", 16}, {"len", 8}, {"grp", 8}, {"type", 8},
	}
	vals := make([]uint64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(args[i], 16, f.bits)
		if err != nil {
			return nil, fmt.Errorf("bad %s %q: %w", f.name, args[i], err)
		}
		vals[i] = v
	}

	h := am.Header{
		Encap: uint8(vals[0]),
		Dest:  uint16(vals[1]),
		Src:   uint16(vals[2]),
		Len:   uint16(vals[3]),
		Group: uint8(vals[4]),
		Type:  uint8(vals[5]),
	}
	frame, err := h.Marshal()
	if err != nil {
		return nil, err
	}
	for _, s := range args[6:] {
		v, err := strconv.ParseUint(s, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("bad data byte %q: %w", s, err)
		}
		frame = append(frame, byte(v))
	}

	req.Frame = frame
	req.Local = am.Addr{Addr: h.Src, Group: am.GroupAny, Type: h.Type}
	req.Remote = am.Addr{Addr: h.Dest, Group: am.GroupAny, Type: h.Type}
	return req, nil
}

func send(ctx context.Context, n *motenet.Net, req *sendRequest) error {
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := n.Parse(ctx, req.Conn)
	if err != nil {
		return fmt.Errorf("connection string %q didn't parse: %w", req.Conn, err)
	}
	n.Log.Infow("connecting", "conn", d.String())

	// raw, the frame carries its own header
	h, err := n.Socket(ctx, d, am.Family, motenet.SockRaw)
	if err != nil {
		return err
	}
	defer n.Close(h)

	if err := n.Bind(h, req.Local); err != nil {
		return err
	}
	if err := n.Connect(h, req.Remote); err != nil {
		return err
	}
	if _, err := n.SendTo(h, req.Frame, req.Remote); err != nil {
		return fmt.Errorf("sending: %w", err)
	}
	return nil
}
