package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/metal-stack/motenet/am"
	"github.com/metal-stack/motenet/motenet"
)

var listenCmd = &cobra.Command{
	Use:   "listen [conn]",
	Short: "Print every Active Message received",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conn := ""
		if len(args) > 0 {
			conn = args[0]
		}
		metricsAddr, err := cmd.Flags().GetString("metrics-addr")
		if err != nil {
			fatalf("Error reading flag: %s", err)
		}
		pcapFile, err := cmd.Flags().GetString("pcap")
		if err != nil {
			fatalf("Error reading flag: %s", err)
		}

		log := newLogger()
		defer log.Sync()
		n := newNet(log)

		var observers motenet.Observers
		if metricsAddr != "" {
			reg := prometheus.NewRegistry()
			observers = append(observers, motenet.NewMetrics(reg))
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			go func() {
				log.Infow("serving metrics", "addr", metricsAddr)
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					log.Errorw("metrics server", "error", err)
				}
			}()
		}
		if pcapFile != "" {
			f, err := os.Create(pcapFile)
			if err != nil {
				fatalf("unable to create trace: %s", err)
			}
			defer f.Close()
			trace := motenet.NewTraceObserver(f)
			defer func() {
				if err := trace.Err(); err != nil {
					log.Errorw("writing trace", "file", pcapFile, "error", err)
				}
			}()
			observers = append(observers, trace)
		}
		if len(observers) > 0 {
			n.Observer = observers
		}

		if err := listen(cmd.Context(), n, conn, os.Stdout); err != nil {
			fatalf("%s", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address")
	listenCmd.Flags().String("pcap", "", "write received frames to this pcap file")
}

// listen prints every frame arriving on conn to w, until the other
// side closes the connection.
func listen(ctx context.Context, n *motenet.Net, conn string, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := n.Parse(ctx, conn)
	if err != nil {
		return fmt.Errorf("connection string %q didn't parse: %w", conn, err)
	}
	n.Log.Infow("connecting", "conn", d.String())

	h, err := n.Socket(ctx, d, am.Family, motenet.SockRaw)
	if err != nil {
		return err
	}
	defer n.Close(h)

	if err := n.Bind(h, am.Addr{Addr: 0x0001}); err != nil {
		return err
	}
	if err := n.Connect(h, am.Addr{Addr: am.AddrBroadcast}); err != nil {
		return err
	}

	buf := make([]byte, 1024)
	for {
		l, from, err := n.RecvFrom(h, buf)
		if err != nil {
			return fmt.Errorf("receiving: %w", err)
		}
		if l == 0 {
			return nil
		}
		var src am.Addr
		if a, ok := from.(am.Addr); ok {
			src = a
		}
		if _, err := fmt.Fprintln(w, formatPacket(src, buf[:l])); err != nil {
			return err
		}
	}
}

func formatPacket(from am.Addr, pkt []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%04x:%02x (%d) (l: %d): ", from.Addr, from.Type, from.Type, len(pkt))
	for _, c := range pkt {
		fmt.Fprintf(&b, "%02x ", c)
	}
	return b.String()
}
