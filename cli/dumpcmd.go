package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/metal-stack/motenet/am"
	"github.com/metal-stack/motenet/pcap"
)

var dumpCmd = &cobra.Command{
	Use:   "dump file.pcap",
	Short: "Print the frames of a trace written by listen --pcap",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := os.Open(args[0])
		if err != nil {
			fatalf("unable to open trace: %s", err)
		}
		defer f.Close()
		if err := dump(f, os.Stdout); err != nil {
			fatalf("%s: %s", args[0], err)
		}
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}

// dump prints every frame of an AM trace the way listen does.
func dump(r io.Reader, w io.Writer) error {
	pr, err := pcap.NewReader(r)
	if err != nil {
		return err
	}
	if pr.LinkType != pcap.LinkAM {
		return fmt.Errorf("link type %d is not an AM trace", pr.LinkType)
	}
	for pr.Next() {
		pkt := pr.Packet()
		var src am.Addr
		if h, err := am.Unmarshal(pkt.Bytes); err == nil {
			src = h.Source()
		}
		if _, err := fmt.Fprintln(w, formatPacket(src, pkt.Bytes)); err != nil {
			return err
		}
	}
	return pr.Err()
}
